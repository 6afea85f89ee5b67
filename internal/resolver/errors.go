package resolver

import "strings"

// ResolveError is a hard resolution failure: an unresolvable request, a
// genuine cycle, a scope conflict or a malformed caller-supplied parameter
// list. It carries the resolution path that led to the failure and aborts the
// current top-level request only.
type ResolveError struct {
	Message string
	Trace   []TypeKey
}

func (e *ResolveError) Error() string {
	if len(e.Trace) < 2 {
		return e.Message
	}
	parts := make([]string, len(e.Trace))
	for i, key := range e.Trace {
		parts[i] = key.String()
	}
	return e.Message + " (resolution path: " + strings.Join(parts, " -> ") + ")"
}
