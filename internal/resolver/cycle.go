package resolver

// cycleCheck classifies a request against the in-flight resolution stack.
type cycleCheck int

const (
	// cycleNone: the key is not currently being constructed.
	cycleNone cycleCheck = iota
	// cycleFatal: re-entrant request with no deferred indirection on the
	// cyclic path.
	cycleFatal
	// cycleResolvable: the cyclic edge passes through a binding scheduled for
	// deferred materialization and may be broken with a placeholder.
	cycleResolvable
)

type cycleEntry struct {
	key TypeKey
	// delayed marks a lazy/callable/scoped node whose children may refer back
	// to any key on the stack segment it encloses.
	delayed bool
	// placeholder is allocated when a cycle through this entry is broken.
	placeholder string
}

// cycleDetector tracks the in-flight resolution stack for one top-level
// request and classifies re-entrant requests.
type cycleDetector struct {
	stack []cycleEntry
	index map[string][]int
}

func newCycleDetector() *cycleDetector {
	return &cycleDetector{index: map[string][]int{}}
}

// Enter pushes a key onto the stack for the duration of its construction.
func (c *cycleDetector) Enter(key TypeKey) {
	c.index[key.String()] = append(c.index[key.String()], len(c.stack))
	c.stack = append(c.stack, cycleEntry{key: key})
}

// Leave pops the most recent occurrence of key.
func (c *cycleDetector) Leave(key TypeKey) {
	c.stack = c.stack[:len(c.stack)-1]
	occurrences := c.index[key.String()]
	c.index[key.String()] = occurrences[:len(occurrences)-1]
}

// Delay pre-registers the key currently on top of the stack as a delayed
// construction, before the engine recurses into its children.
func (c *cycleDetector) Delay() {
	c.stack[len(c.stack)-1].delayed = true
}

// Check classifies a request for key against the current stack.
func (c *cycleDetector) Check(key TypeKey) cycleCheck {
	occurrences := c.index[key.String()]
	if len(occurrences) == 0 {
		return cycleNone
	}
	first := occurrences[len(occurrences)-1]
	for _, entry := range c.stack[first:] {
		if entry.delayed {
			return cycleResolvable
		}
	}
	return cycleFatal
}

// Placeholder returns the placeholder name for a resolvable cyclic request,
// allocating one via alloc on first use.
func (c *cycleDetector) Placeholder(key TypeKey, alloc func() string) string {
	occurrences := c.index[key.String()]
	entry := &c.stack[occurrences[len(occurrences)-1]]
	if entry.placeholder == "" {
		entry.placeholder = alloc()
	}
	return entry.placeholder
}

// ConsumePlaceholder returns and clears the placeholder allocated for the
// topmost occurrence of key, exactly once, so later requests within the same
// pass reuse the already-materialized value.
func (c *cycleDetector) ConsumePlaceholder(key TypeKey) (string, bool) {
	occurrences := c.index[key.String()]
	if len(occurrences) == 0 {
		return "", false
	}
	entry := &c.stack[occurrences[len(occurrences)-1]]
	if entry.placeholder == "" {
		return "", false
	}
	name := entry.placeholder
	entry.placeholder = ""
	return name, true
}

// Trace returns the keys currently in flight, outermost first.
func (c *cycleDetector) Trace() []TypeKey {
	out := make([]TypeKey, len(c.stack))
	for i, entry := range c.stack {
		out[i] = entry.key
	}
	return out
}
