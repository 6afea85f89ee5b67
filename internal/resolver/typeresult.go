package resolver

import (
	"go/types"

	"github.com/scottjasso/kotlin-inject/internal/model"
)

// TypeResult is the closed set of construction-plan variants. A resolved
// entry point is a tree of TypeResults, consumed by the code emission stage.
//
//sumtype:decl
type TypeResult interface{ typeResult() }

// Ref pairs a requested key with the plan that satisfies it.
type Ref struct {
	Key    TypeKey
	Result TypeResult
}

// Param is one resolved argument of a constructor or provides call.
type Param struct {
	Name string
	Type types.Type
	// Ref is the plan producing the argument value, nil when Omitted.
	Ref *Ref
	// Omitted marks an optional parameter left at its zero value.
	Omitted bool
}

// ConstructorCall constructs the value by calling an injectable constructor.
type ConstructorCall struct {
	Constructor *model.Constructor
	Params      []Param
}

// ProvidesCall invokes a provides method on a component instance reached via
// the accessor path.
type ProvidesCall struct {
	Method   *types.Func
	Accessor string
	Params   []Param
}

// ProviderCall invokes a provider-accessor method, the cross-component
// visibility shortcut.
type ProviderCall struct {
	Method   *types.Func
	Accessor string
}

// ScopedFetch fetches-or-creates the value in the owning component's scope
// store, memoizing per component instance.
type ScopedFetch struct {
	Key   TypeKey
	Scope string
	Owner ScopedComponent
	Child *Ref
}

// SingletonRef references a declared stateless singleton instance.
type SingletonRef struct {
	Singleton *model.Singleton
}

// LazyWrap wraps the child plan in a memoizing inject.Lazy.
type LazyWrap struct {
	Elem  types.Type
	Child *Ref
}

// FuncWrap defers the child plan behind a zero-argument function literal,
// re-evaluated at every call.
type FuncWrap struct {
	Sig   *types.Signature
	Child *Ref
}

// NamedFuncWrap is a FuncWrap converted to a named function alias.
type NamedFuncWrap struct {
	Alias *types.Named
	Child *Ref
}

// SetElement is one contributor to a SetResult. Multi contributors produce a
// whole slice that is appended element-wise.
type SetElement struct {
	Ref   *Ref
	Multi bool
}

// SetResult aggregates set-multibinding contributors into a slice.
type SetResult struct {
	Elem     types.Type
	Elements []SetElement
}

// MapEntry is one contributor to a MapResult. Single contributors produce an
// inject.Pair, multi contributors a whole map that is merged in.
type MapEntry struct {
	Ref   *Ref
	Multi bool
}

// MapResult aggregates map-multibinding contributors into a map.
type MapResult struct {
	Key     types.Type
	Value   types.Type
	Entries []MapEntry
}

// FactoryArg is one caller-supplied argument of an assisted factory.
type FactoryArg struct {
	Name string
	Type types.Type
}

// AssistedFactory implements a single-method factory interface whose method
// mixes caller-supplied and injected parameters.
type AssistedFactory struct {
	Factory *model.Factory
	Args    []FactoryArg
	Target  *Ref
}

// AssistedFuncFactory is an assisted factory expressed as a function type
// (named or anonymous) rather than an interface.
type AssistedFuncFactory struct {
	Sig    *types.Signature
	Alias  *types.Named
	Args   []FactoryArg
	Target *Ref
}

// LocalVarRef references the local placeholder allocated for a key that is
// still under construction further up the stack.
type LocalVarRef struct {
	Name string
}

// LateInit materializes Child into the placeholder Name after the enclosing
// cycle has been constructed.
type LateInit struct {
	Name  string
	Child *Ref
}

// ArgRef consumes a caller-supplied positional argument by name.
type ArgRef struct {
	Name string
	Type types.Type
}

func (*ConstructorCall) typeResult()     {}
func (*ProvidesCall) typeResult()        {}
func (*ProviderCall) typeResult()        {}
func (*ScopedFetch) typeResult()         {}
func (*SingletonRef) typeResult()        {}
func (*LazyWrap) typeResult()            {}
func (*FuncWrap) typeResult()            {}
func (*NamedFuncWrap) typeResult()       {}
func (*SetResult) typeResult()           {}
func (*MapResult) typeResult()           {}
func (*AssistedFactory) typeResult()     {}
func (*AssistedFuncFactory) typeResult() {}
func (*LocalVarRef) typeResult()         {}
func (*LateInit) typeResult()            {}
func (*ArgRef) typeResult()              {}

// Children returns the direct child plans of a result.
func Children(r TypeResult) []*Ref {
	switch r := r.(type) {
	case *ConstructorCall:
		return paramRefs(r.Params)
	case *ProvidesCall:
		return paramRefs(r.Params)
	case *ProviderCall:
		return nil
	case *ScopedFetch:
		return []*Ref{r.Child}
	case *SingletonRef:
		return nil
	case *LazyWrap:
		return []*Ref{r.Child}
	case *FuncWrap:
		return []*Ref{r.Child}
	case *NamedFuncWrap:
		return []*Ref{r.Child}
	case *SetResult:
		out := make([]*Ref, 0, len(r.Elements))
		for _, elem := range r.Elements {
			out = append(out, elem.Ref)
		}
		return out
	case *MapResult:
		out := make([]*Ref, 0, len(r.Entries))
		for _, entry := range r.Entries {
			out = append(out, entry.Ref)
		}
		return out
	case *AssistedFactory:
		return []*Ref{r.Target}
	case *AssistedFuncFactory:
		return []*Ref{r.Target}
	case *LocalVarRef:
		return nil
	case *LateInit:
		return []*Ref{r.Child}
	case *ArgRef:
		return nil
	}
	return nil
}

func paramRefs(params []Param) []*Ref {
	var out []*Ref
	for _, p := range params {
		if p.Ref != nil {
			out = append(out, p.Ref)
		}
	}
	return out
}

// Walk visits every plan in the tree depth-first, parents before children.
func Walk(r TypeResult, visit func(TypeResult) bool) bool {
	if !visit(r) {
		return false
	}
	for _, child := range Children(r) {
		if child != nil && child.Result != nil {
			if !Walk(child.Result, visit) {
				return false
			}
		}
	}
	return true
}

// Cacheable reports whether a plan may be reused across request sites. A plan
// containing a context-local placeholder reference is position-dependent and
// must not be cached; a late-init wrapper owns its materialization name and
// is always safe.
func Cacheable(r TypeResult) bool {
	switch r := r.(type) {
	case *LocalVarRef:
		return false
	case *LateInit:
		return true
	default:
		for _, child := range Children(r) {
			if child != nil && child.Result != nil && !Cacheable(child.Result) {
				return false
			}
		}
		return true
	}
}
