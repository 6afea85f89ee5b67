package resolver

import (
	"go/token"
	"go/types"
	"sort"

	"github.com/scottjasso/kotlin-inject/internal/directiveparser"
	"github.com/scottjasso/kotlin-inject/internal/model"
)

// TypeInfo is the cached per-declaration summary of a component: its provides
// and provider members after override reduction, its scope, and whether
// collection may proceed at all.
type TypeInfo struct {
	Provides  []memberInfo
	Providers []memberInfo
	Scope     string
	// ScopeOwner is the declaration in the ancestry carrying the scope marker.
	ScopeOwner *types.Named
	Valid      bool
}

// memberInfo is one member after the override-shadowing reduction pass, with
// the metadata of shadowed declarations merged in.
type memberInfo struct {
	fn       *types.Func
	owner    *types.Named
	provides *directiveparser.DirectiveProvides
	provider *directiveparser.DirectiveProvider
	// scope merged across the override group.
	scope string
	// abstract members come from an interface declaration and have no body.
	abstract bool
}

// Collector scans component declarations into binding tables. Configuration
// errors are reported to the diagnostics sink and collection continues, so a
// single run surfaces every problem.
type Collector struct {
	app   *model.App
	diags *model.Diagnostics

	results map[resultKey]*Result
	infos   map[*types.TypeName]*TypeInfo
}

type resultKey struct {
	decl     *types.TypeName
	accessor string
}

// NewCollector creates a collector whose state is scoped to one generation
// run.
func NewCollector(app *model.App) *Collector {
	return &Collector{
		app:     app,
		diags:   app.Diags,
		results: map[resultKey]*Result{},
		infos:   map[*types.TypeName]*TypeInfo{},
	}
}

// Collect builds the full reachable binding table for a root component,
// honoring embedding and override shadowing.
func (c *Collector) Collect(component *model.Component) *Result {
	return c.collect(component, "", true)
}

func (c *Collector) collect(component *model.Component, accessor string, owning bool) *Result {
	key := resultKey{decl: component.Named.Obj(), accessor: accessor}
	if r, ok := c.results[key]; ok {
		return r
	}
	r := newResult(component, accessor)
	// Registered before recursing so a component embedding itself transitively
	// terminates.
	c.results[key] = r

	info := c.typeInfo(component)
	if !info.Valid {
		return r
	}

	for _, m := range info.Provides {
		c.registerProvides(r, component, m)
	}
	for _, m := range info.Providers {
		c.registerProvider(r, component, m)
	}

	for _, parent := range c.app.ParentFields(component) {
		parentAccessor := parent.Name
		if accessor != "" {
			parentAccessor = accessor + "." + parent.Name
		}
		r.Parents = append(r.Parents, c.collect(parent.Component, parentAccessor, false))
	}

	if info.Scope != "" {
		if other, ok := r.FindScope(info.Scope); ok {
			c.diags.Errorf(component.Pos, "component %s claims scope %s already owned by %s",
				component.Name(), info.Scope, other.Component.Name())
		} else {
			r.Scopes[info.Scope] = ScopedComponent{Component: component, Accessor: accessor}
		}
	}

	if owning {
		c.crossCheck(r)
	}
	return r
}

// typeInfo builds (or returns the cached) per-declaration summary.
func (c *Collector) typeInfo(component *model.Component) *TypeInfo {
	if info, ok := c.infos[component.Named.Obj()]; ok {
		return info
	}
	info := &TypeInfo{Valid: true}
	c.infos[component.Named.Obj()] = info

	// Scope discovery: at most one distinct marker in the ancestry.
	for _, marker := range c.app.ScopeMarkers(component.Named) {
		if info.Scope == "" {
			info.Scope = marker.Scope
			info.ScopeOwner = marker.On
			continue
		}
		if marker.Scope != info.Scope {
			c.diags.Errorf(component.Pos, "component %s has conflicting scope markers %s (on %s) and %s (on %s)",
				component.Name(), info.Scope, info.ScopeOwner.Obj().Name(), marker.Scope, marker.On.Obj().Name())
			info.Valid = false
			return info
		}
	}

	for _, m := range c.reduceMembers(component) {
		switch {
		case m.provides != nil:
			info.Provides = append(info.Provides, m)
		case m.provider != nil:
			info.Providers = append(info.Providers, m)
		}
	}
	return info
}

// reduceMembers collects all declared and promoted members and applies the
// override-shadowing reduction: group by name, keep the most-derived
// declaration, merge the shadowed declarations' provider flag and scope
// markers into it.
func (c *Collector) reduceMembers(component *model.Component) []memberInfo {
	candidates := c.app.Members(component.Named)
	groups := map[string][]model.Member{}
	var order []string
	for _, candidate := range candidates {
		name := candidate.Func.Name()
		if _, ok := groups[name]; !ok {
			order = append(order, name)
		}
		groups[name] = append(groups[name], candidate)
	}

	var out []memberInfo
	for _, name := range order {
		group := groups[name]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Depth < group[j].Depth })

		winner := group[0]
		if len(group) > 1 && group[1].Depth == winner.Depth {
			c.diags.Errorf(c.app.Position(winner.Func), "member %s is ambiguous between %s and %s",
				name, winner.Owner.Obj().Name(), group[1].Owner.Obj().Name())
			continue
		}

		info := memberInfo{
			fn:       winner.Func,
			owner:    winner.Owner,
			abstract: isAbstractOwner(winner.Owner),
		}
		switch directive := c.app.MethodDirective(winner.Func).(type) {
		case *directiveparser.DirectiveProvides:
			info.provides = directive
			info.scope = directive.Scope
		case *directiveparser.DirectiveProvider:
			info.provider = directive
		}

		scopeConflict := false
		for _, shadowed := range group[1:] {
			switch directive := c.app.MethodDirective(shadowed.Func).(type) {
			case *directiveparser.DirectiveProvides:
				if directive.Scope == "" {
					continue
				}
				if info.scope == "" {
					info.scope = directive.Scope
				} else if info.scope != directive.Scope {
					c.diags.Errorf(c.app.Position(winner.Func),
						"member %s merges conflicting scopes %s and %s from overridden declarations",
						name, info.scope, directive.Scope)
					scopeConflict = true
				}
			case *directiveparser.DirectiveProvider:
				if info.provider == nil {
					info.provider = directive
				}
			}
		}
		if scopeConflict {
			info.scope = ""
		}
		out = append(out, info)
	}
	return out
}

func isAbstractOwner(named *types.Named) bool {
	_, ok := named.Underlying().(*types.Interface)
	return ok
}

// EntryPoint is an abstract accessor method of a concrete component whose
// body the generator must supply: a method promoted from an embedded
// interface with no concrete override and no provides directive.
type EntryPoint struct {
	Method    *types.Func
	Qualifier string
	// Provider entry points are additionally registered as cross-component
	// bindings.
	Provider bool
}

// EntryPoints enumerates the accessor methods to generate for a concrete
// component, in declaration order.
func (c *Collector) EntryPoints(component *model.Component) []EntryPoint {
	if component.Abstract() {
		return nil
	}
	var out []EntryPoint
	for _, m := range c.reduceMembers(component) {
		if !m.abstract || m.provides != nil {
			continue
		}
		ep := EntryPoint{Method: m.fn}
		if m.provider != nil {
			ep.Provider = true
			ep.Qualifier = m.provider.Qualifier
		}
		out = append(out, ep)
	}
	return out
}

// registerProvides validates a provides member and inserts it into the
// appropriate table, reporting duplicates at both declarations.
func (c *Collector) registerProvides(r *Result, component *model.Component, m memberInfo) {
	pos := c.app.Position(m.fn)
	if !m.fn.Exported() {
		c.diags.Errorf(pos, "provides member %s must be exported", m.fn.Name())
		return
	}
	results := m.fn.Signature().Results()
	if results.Len() == 0 {
		c.diags.Errorf(pos, "provides member %s must return a value", m.fn.Name())
		return
	}
	if results.Len() > 1 {
		c.diags.Errorf(pos, "provides member %s must return exactly one value", m.fn.Name())
		return
	}
	ret := results.At(0).Type()
	if !model.IsValidBindingType(ret) {
		c.diags.Errorf(pos, "provides member %s return type %s cannot be bound", m.fn.Name(), types.TypeString(ret, nil))
		return
	}
	if m.abstract && !component.Abstract() {
		c.diags.Errorf(pos, "abstract provides member %s in concrete component %s has no implementation",
			m.fn.Name(), component.Name())
		return
	}

	directive := m.provides
	switch {
	case directive.IntoSet && !directive.Multi:
		key := SetKey{Elem: ret, Qualifier: directive.Qualifier}
		c.registerContainer(r, component, m, key, false, pos)

	case directive.IntoSet && directive.Multi:
		elem, ok := model.SetElem(ret)
		if !ok {
			c.diags.Errorf(pos, "provides member %s with into=set multi must return a slice, not %s",
				m.fn.Name(), types.TypeString(ret, nil))
			return
		}
		key := SetKey{Elem: elem, Qualifier: directive.Qualifier}
		c.registerContainer(r, component, m, key, true, pos)

	case directive.IntoMap && !directive.Multi:
		k, v, ok := model.PairKV(ret)
		if !ok {
			c.diags.Errorf(pos, "provides member %s with into=map must return an inject.Pair, not %s",
				m.fn.Name(), types.TypeString(ret, nil))
			return
		}
		key := MapKey{Key: k, Value: v, Qualifier: directive.Qualifier}
		c.registerContainer(r, component, m, key, false, pos)

	case directive.IntoMap && directive.Multi:
		k, v, ok := model.MapKV(ret)
		if !ok {
			c.diags.Errorf(pos, "provides member %s with into=map multi must return a map, not %s",
				m.fn.Name(), types.TypeString(ret, nil))
			return
		}
		key := MapKey{Key: k, Value: v, Qualifier: directive.Qualifier}
		c.registerContainer(r, component, m, key, true, pos)

	default:
		key := TypeKey{Type: ret, Qualifier: directive.Qualifier}
		member := &Member{
			Key:       key,
			Method:    m.fn,
			Directive: directive,
			Accessor:  r.Accessor,
			Scope:     m.scope,
			Owner:     component,
			Pos:       pos,
		}
		if existing, ok := r.Direct[key.String()]; ok {
			c.reportDuplicate(key, existing.Pos, existing.Method, pos, m.fn)
			return
		}
		if contributors := r.Containers[key.String()]; len(contributors) > 0 {
			c.reportDuplicate(key, contributors[0].Pos, contributors[0].Method, pos, m.fn)
			return
		}
		r.Direct[key.String()] = member
	}
}

func (c *Collector) registerContainer(r *Result, component *model.Component, m memberInfo, key ContainerKey, multiple bool, pos token.Position) {
	aggregate := key.Aggregate()
	if existing, ok := r.Direct[aggregate.String()]; ok {
		c.reportDuplicate(aggregate, existing.Pos, existing.Method, pos, m.fn)
		return
	}
	r.Containers[aggregate.String()] = append(r.Containers[aggregate.String()], &ContainerMember{
		Key:       key,
		Method:    m.fn,
		Directive: m.provides,
		Accessor:  r.Accessor,
		Multiple:  multiple,
		Owner:     component,
		Pos:       pos,
	})
}

func (c *Collector) registerProvider(r *Result, component *model.Component, m memberInfo) {
	pos := c.app.Position(m.fn)
	results := m.fn.Signature().Results()
	if results.Len() != 1 {
		c.diags.Errorf(pos, "provider accessor %s must return exactly one value", m.fn.Name())
		return
	}
	ret := results.At(0).Type()
	if !model.IsValidBindingType(ret) {
		c.diags.Errorf(pos, "provider accessor %s return type %s cannot be bound", m.fn.Name(), types.TypeString(ret, nil))
		return
	}
	key := TypeKey{Type: ret, Qualifier: m.provider.Qualifier}
	if existing, ok := r.Providers[key.String()]; ok {
		c.reportDuplicate(key, existing.Pos, existing.Method, pos, m.fn)
		return
	}
	r.Providers[key.String()] = &ProviderMember{
		Key:      key,
		Method:   m.fn,
		Accessor: r.Accessor,
		Owner:    component,
		Pos:      pos,
	}
}

func (c *Collector) reportDuplicate(key TypeKey, aPos token.Position, aFn *types.Func, bPos token.Position, bFn *types.Func) {
	c.diags.Errorf(aPos, "duplicate binding for %s, also provided by %s", key, bFn.FullName())
	c.diags.Errorf(bPos, "duplicate binding for %s, also provided by %s", key, aFn.FullName())
}

// crossCheck compares the root's own direct table against every transitively
// embedded table. Joint contribution to the same multibinding container is
// allowed; duplicate singular bindings are not.
func (c *Collector) crossCheck(r *Result) {
	var ancestors []*Result
	for _, parent := range r.Parents {
		parent.walk(func(result *Result) bool {
			ancestors = append(ancestors, result)
			return true
		})
	}
	for keyStr, member := range r.Direct {
		for _, ancestor := range ancestors {
			if other, ok := ancestor.Direct[keyStr]; ok {
				c.reportDuplicate(member.Key, member.Pos, member.Method, other.Pos, other.Method)
			}
		}
	}
}
