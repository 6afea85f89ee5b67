package resolver

import (
	"go/token"
	"go/types"

	"github.com/scottjasso/kotlin-inject/internal/directiveparser"
	"github.com/scottjasso/kotlin-inject/internal/model"
)

// Member is a direct binding backed by a component's provides method.
type Member struct {
	Key       TypeKey
	Method    *types.Func
	Directive *directiveparser.DirectiveProvides
	// Accessor is the field path from the generated root to the component
	// instance owning the method.
	Accessor string
	// Scope is the scope marker merged from the member and its shadowed
	// overrides, or "".
	Scope string
	// Owner is the component the member was collected for. For scoped
	// bindings this is the declared type whose store caches the value.
	Owner *model.Component
	Pos   token.Position
}

// ContainerMember is a single contribution to a set or map multibinding.
type ContainerMember struct {
	Key       ContainerKey
	Method    *types.Func
	Directive *directiveparser.DirectiveProvides
	Accessor  string
	// Multiple marks a contributor whose return value is itself a collection
	// contributed element-wise.
	Multiple bool
	Owner    *model.Component
	Pos      token.Position
}

// ProviderMember is a provider-accessor entry: a method used to reach a type
// whose concrete source is otherwise inaccessible from the requesting
// component.
type ProviderMember struct {
	Key      TypeKey
	Method   *types.Func
	Accessor string
	Owner    *model.Component
	Pos      token.Position
}

// Result is the mutable binding table of one component declaration. Lookup
// traverses the component's own tables first, then its embedded
// sub-components depth-first.
type Result struct {
	Component *model.Component
	Accessor  string
	// Direct and Providers are keyed by TypeKey.String(); Containers by the
	// container's aggregate TypeKey.String().
	Direct     map[string]*Member
	Containers map[string][]*ContainerMember
	Providers  map[string]*ProviderMember
	// Scopes registers this component as a scope store owner.
	Scopes  map[string]ScopedComponent
	Parents []*Result
}

func newResult(component *model.Component, accessor string) *Result {
	return &Result{
		Component:  component,
		Accessor:   accessor,
		Direct:     map[string]*Member{},
		Containers: map[string][]*ContainerMember{},
		Providers:  map[string]*ProviderMember{},
		Scopes:     map[string]ScopedComponent{},
	}
}

// FindDirect looks up a direct binding for key, self then ancestors.
func (r *Result) FindDirect(key TypeKey) *Member {
	var found *Member
	r.walk(func(result *Result) bool {
		if m, ok := result.Direct[key.String()]; ok {
			found = m
			return false
		}
		return true
	})
	return found
}

// FindProvider looks up a provider-accessor binding for key, self then
// ancestors.
func (r *Result) FindProvider(key TypeKey) *ProviderMember {
	var found *ProviderMember
	r.walk(func(result *Result) bool {
		if m, ok := result.Providers[key.String()]; ok {
			found = m
			return false
		}
		return true
	})
	return found
}

// FindContainers gathers every contributor for a container key across the
// full self+ancestor chain.
func (r *Result) FindContainers(key ContainerKey) []*ContainerMember {
	var out []*ContainerMember
	r.walk(func(result *Result) bool {
		out = append(out, result.Containers[key.Aggregate().String()]...)
		return true
	})
	return out
}

// FindScope locates the registered owner of a scope, self then ancestors.
func (r *Result) FindScope(scope string) (ScopedComponent, bool) {
	var found ScopedComponent
	ok := false
	r.walk(func(result *Result) bool {
		if owner, exists := result.Scopes[scope]; exists {
			found, ok = owner, true
			return false
		}
		return true
	})
	return found, ok
}

// KnownScopes returns every registered component+scope pair reachable from
// this result, for diagnostic listings.
func (r *Result) KnownScopes() []ScopedComponent {
	var out []ScopedComponent
	seen := map[string]bool{}
	r.walk(func(result *Result) bool {
		for scope, owner := range result.Scopes {
			if !seen[scope+"|"+owner.Component.Name()] {
				seen[scope+"|"+owner.Component.Name()] = true
				out = append(out, owner)
			}
		}
		return true
	})
	return out
}

// walk visits this result then its parents depth-first. The visitor returns
// false to stop.
func (r *Result) walk(visit func(*Result) bool) bool {
	if !visit(r) {
		return false
	}
	for _, parent := range r.Parents {
		if !parent.walk(visit) {
			return false
		}
	}
	return true
}
