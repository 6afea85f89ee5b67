package resolver

import (
	"fmt"
	"go/types"
	"strings"

	"github.com/scottjasso/kotlin-inject/internal/strcase"
)

// Arg is a positional caller-supplied argument available at the current
// resolution site.
type Arg struct {
	Name string
	Type types.Type
}

// Context is the threaded resolution state: the binding table view, the
// currently available positional arguments, the name allocator for the
// generated function, and the currently-constructing key guard. Contexts are
// derived immutably; the allocator is shared across derivations.
type Context struct {
	Result *Result
	Args   []Arg
	Names  *NameAllocator
	// constructing prevents a scoped binding from re-entering its own store
	// lookup while its create path is being resolved.
	constructing string
	// entry is the accessor method whose body is being resolved; a provider
	// accessor must not resolve its own key back to itself.
	entry *types.Func
}

// NewContext creates a fresh context for one top-level request.
func NewContext(result *Result) *Context {
	return &Context{Result: result, Names: NewNameAllocator()}
}

// ForEntry derives a context marking fn as the accessor method under
// resolution.
func (c *Context) ForEntry(fn *types.Func) *Context {
	derived := *c
	derived.entry = fn
	return &derived
}

// WithArgs derives a context with the given positional arguments available.
func (c *Context) WithArgs(args []Arg) *Context {
	derived := *c
	derived.Args = args
	return &derived
}

// WithConstructing derives a context marking key as currently constructing.
func (c *Context) WithConstructing(key TypeKey) *Context {
	derived := *c
	derived.constructing = key.String()
	return &derived
}

// Constructing reports whether key is the one currently being constructed.
func (c *Context) Constructing(key TypeKey) bool {
	return c.constructing == key.String()
}

// ArgsFingerprint is the snapshot of available argument types used as part of
// the resolution cache key: the same type may resolve differently depending
// on what arguments are in scope at the call site.
func (c *Context) ArgsFingerprint() string {
	if len(c.Args) == 0 {
		return ""
	}
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = types.TypeString(arg.Type, nil)
	}
	return strings.Join(parts, ",")
}

// NameAllocator hands out unique local-variable names within one generated
// function. It is reset for each new independent top-level request.
type NameAllocator struct {
	used map[string]int
}

func NewNameAllocator() *NameAllocator {
	return &NameAllocator{used: map[string]int{}}
}

// Allocate returns a unique lowerCamelCase name derived from base.
func (n *NameAllocator) Allocate(base string) string {
	name := strcase.LowerCamelCase(base)
	if name == "" {
		name = "v"
	}
	count := n.used[name]
	n.used[name] = count + 1
	if count == 0 {
		return name
	}
	return fmt.Sprintf("%s%d", name, count)
}

// AllocateFor derives a name from the requested key's type.
func (n *NameAllocator) AllocateFor(key TypeKey) string {
	return n.Allocate(baseName(key.Type))
}

// Reset clears all allocations for a new generated function.
func (n *NameAllocator) Reset() {
	n.used = map[string]int{}
}

func baseName(t types.Type) string {
	switch t := t.(type) {
	case *types.Pointer:
		return baseName(t.Elem())
	case *types.Named:
		return t.Obj().Name()
	case *types.Slice:
		return baseName(t.Elem()) + "Slice"
	case *types.Map:
		return baseName(t.Elem()) + "Map"
	case *types.Basic:
		return t.Name()
	case *types.Signature:
		return "fn"
	}
	return "v"
}
