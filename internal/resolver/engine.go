package resolver

import (
	"fmt"
	"go/types"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/scottjasso/kotlin-inject/internal/model"
)

// Engine resolves (TypeKey, Context) pairs into construction plans. It owns
// the per-run plan cache and the cycle detector. All state is created fresh
// per generation run; nothing is shared between runs.
type Engine struct {
	app    *model.App
	diags  *model.Diagnostics
	cache  map[cacheKey]TypeResult
	cycles *cycleDetector
}

// The cache key includes the snapshot of currently available positional
// arguments: the same type may resolve differently depending on what
// arguments are in scope at the call site.
type cacheKey struct {
	key  string
	args string
}

// NewEngine creates an engine for one generation run.
func NewEngine(app *model.App) *Engine {
	return &Engine{
		app:    app,
		diags:  app.Diags,
		cache:  map[cacheKey]TypeResult{},
		cycles: newCycleDetector(),
	}
}

// Resolve resolves an explicit request. A miss is a hard failure carrying the
// resolution path.
func (e *Engine) Resolve(key TypeKey, ctx *Context) (TypeResult, error) {
	r, err := e.resolve(key, ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if r == nil {
		return nil, e.failf(key, "no binding found for %s", key)
	}
	return r, nil
}

// resolve returns (nil, nil) on a miss; the caller decides whether the miss
// is fatal.
func (e *Engine) resolve(key TypeKey, ctx *Context) (TypeResult, error) {
	switch e.cycles.Check(key) {
	case cycleResolvable:
		name := e.cycles.Placeholder(key, func() string { return ctx.Names.AllocateFor(key) })
		return &LocalVarRef{Name: name}, nil
	case cycleFatal:
		return nil, e.failf(key, "dependency cycle detected for %s", key)
	case cycleNone:
	}

	entryName := ""
	if ctx.entry != nil {
		entryName = ctx.entry.FullName()
	}
	ck := cacheKey{key: key.String() + "|constructing=" + ctx.constructing + "|entry=" + entryName, args: ctx.ArgsFingerprint()}
	if cached, ok := e.cache[ck]; ok {
		return cached, nil
	}

	e.cycles.Enter(key)
	plan, err := e.resolveUncached(key, ctx)
	if plan != nil && err == nil {
		// A cycle through this key was broken with a placeholder below; wrap
		// the original occurrence for post-hoc initialization.
		if name, ok := e.cycles.ConsumePlaceholder(key); ok {
			plan = &LateInit{Name: name, Child: &Ref{Key: key, Result: plan}}
		}
	}
	e.cycles.Leave(key)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, nil
	}
	if Cacheable(plan) {
		e.cache[ck] = plan
	}
	return plan, nil
}

// resolveUncached applies the priority cascade, first match wins.
func (e *Engine) resolveUncached(key TypeKey, ctx *Context) (TypeResult, error) {
	// 1. Provider accessor: cross-component visibility shortcut. A provider
	// accessor resolving its own body skips itself.
	if m := ctx.Result.FindProvider(key); m != nil && m.Method != ctx.entry {
		return &ProviderCall{Method: m.Method, Accessor: m.Accessor}, nil
	}

	// 2. Direct binding.
	if m := ctx.Result.FindDirect(key); m != nil {
		return e.resolveMember(key, m, ctx)
	}

	// 3. Set multibinding: []T, []func() T or []*inject.Lazy[T].
	if r, err := e.resolveSet(key, ctx); r != nil || err != nil {
		return r, err
	}

	// 4. Map multibinding.
	if r, err := e.resolveMap(key, ctx); r != nil || err != nil {
		return r, err
	}

	// 5. Callable-shaped request: deferred wrapper resolving the return type
	// at call time. Function shapes with parameters are assisted function
	// factories.
	if sig, alias, ok := model.FuncShape(key.Type); ok {
		if r, err := e.resolveFuncWrap(key, sig, alias, ctx); r != nil || err != nil {
			return r, err
		}
	}
	if sig, alias, ok := funcFactoryShape(key.Type); ok {
		if r, err := e.resolveFuncFactory(key, sig, alias, ctx); r != nil || err != nil {
			return r, err
		}
	}

	// 6. Lazy-shaped request: memoizing deferred wrapper. Lazy carries a
	// sync.Once so it must be requested by pointer.
	if elem, ok := model.LazyElem(key.Type); ok {
		if _, isPtr := key.Type.(*types.Pointer); !isPtr {
			return nil, e.failf(key, "lazy bindings must be requested as a pointer, use *%s", types.TypeString(key.Type, nil))
		}
		if r, err := e.resolveLazy(key, elem, ctx); r != nil || err != nil {
			return r, err
		}
	}

	// 7. Declared singleton instance.
	if singleton := e.app.SingletonFor(key.Type, key.Qualifier); singleton != nil {
		return &SingletonRef{Singleton: singleton}, nil
	}

	// 8. Injectable constructor.
	if r, err := e.resolveByConstructor(key, ctx); r != nil || err != nil {
		return r, err
	}

	// 9. Assisted factory interface.
	if named, ok := model.DerefNamed(key.Type); ok {
		if factory := e.app.FactoryFor(named); factory != nil {
			return e.resolveFactory(key, factory, ctx)
		}
	}

	// 10. A positional argument available at this call site.
	if key.Qualifier == "" {
		for _, arg := range ctx.Args {
			if model.Assignable(arg.Type, key.Type) {
				return &ArgRef{Name: arg.Name, Type: arg.Type}, nil
			}
		}
	}

	// Miss.
	return nil, nil
}

// resolveMember builds the plan for a direct provides binding, honoring its
// scope.
func (e *Engine) resolveMember(key TypeKey, m *Member, ctx *Context) (TypeResult, error) {
	if m.Scope != "" && !ctx.Constructing(key) {
		return e.resolveScoped(key, m.Scope, ctx, func(scopedCtx *Context) (TypeResult, error) {
			return e.resolveMember(key, m, scopedCtx)
		})
	}
	params, err := e.resolveParams(key, m.Method, providesSpec(m.Directive), m.Scope, ctx)
	if err != nil {
		return nil, err
	}
	return &ProvidesCall{Method: m.Method, Accessor: m.Accessor, Params: params}, nil
}

// resolveScoped produces a fetch-or-create plan against the scope's owning
// component store. The constructing guard prevents the create path from
// re-entering its own store lookup.
func (e *Engine) resolveScoped(key TypeKey, scope string, ctx *Context, build func(*Context) (TypeResult, error)) (TypeResult, error) {
	owner, ok := ctx.Result.FindScope(scope)
	if !ok {
		known := ctx.Result.KnownScopes()
		if len(known) == 0 {
			return nil, e.failf(key, "no component owns scope %s (no scoped components in the graph)", scope)
		}
		listing := make([]string, len(known))
		for i, sc := range known {
			listing[i] = sc.Component.Name()
		}
		return nil, e.failf(key, "no component owns scope %s (known scoped components: %s)", scope, strings.Join(listing, ", "))
	}
	// Scoped construction is deferred through the store; cycles through it
	// are breakable.
	e.cycles.Delay()
	child, err := build(ctx.WithConstructing(key))
	if err != nil {
		return nil, err
	}
	return &ScopedFetch{
		Key:   key,
		Scope: scope,
		Owner: owner,
		Child: &Ref{Key: key, Result: child},
	}, nil
}

// resolveSet aggregates set-multibinding contributors, individually wrapped
// to match the requested element shape.
func (e *Engine) resolveSet(key TypeKey, ctx *Context) (TypeResult, error) {
	elem, ok := model.SetElem(key.Type)
	if !ok {
		return nil, nil
	}

	type elemShape int
	const (
		plain elemShape = iota
		fnShape
		lazyShape
	)

	shape := plain
	inner := elem
	contributors := ctx.Result.FindContainers(SetKey{Elem: elem, Qualifier: key.Qualifier})
	if len(contributors) == 0 {
		if sig, _, ok := model.FuncShape(elem); ok {
			shape, inner = fnShape, sig.Results().At(0).Type()
		} else if lazyElem, ok := model.LazyElem(elem); ok {
			if _, isPtr := elem.(*types.Pointer); !isPtr {
				return nil, e.failf(key, "lazy bindings must be requested as a pointer, use []*%s", types.TypeString(elem, nil))
			}
			shape, inner = lazyShape, lazyElem
		}
		if shape != plain {
			contributors = ctx.Result.FindContainers(SetKey{Elem: inner, Qualifier: key.Qualifier})
		}
	}
	if len(contributors) == 0 {
		return nil, nil
	}

	if shape != plain {
		// Per-element deferred wrappers make cycles through the set breakable.
		e.cycles.Delay()
	}

	innerKey := QualifiedKey(inner, key.Qualifier)
	result := &SetResult{Elem: elem}
	for _, cm := range contributors {
		if cm.Multiple && shape != plain {
			return nil, e.failf(key, "multi contributor %s cannot be aggregated into %s", cm.Method.FullName(), key)
		}
		childKey := innerKey
		if cm.Multiple {
			childKey = QualifiedKey(types.NewSlice(inner), key.Qualifier)
		}
		child, err := e.resolveContributor(childKey, cm, ctx)
		if err != nil {
			return nil, err
		}
		ref := &Ref{Key: childKey, Result: child}
		switch shape {
		case fnShape:
			sig, _, _ := model.FuncShape(elem)
			ref = &Ref{Key: Key(elem), Result: &FuncWrap{Sig: sig, Child: ref}}
		case lazyShape:
			ref = &Ref{Key: Key(elem), Result: &LazyWrap{Elem: inner, Child: ref}}
		}
		result.Elements = append(result.Elements, SetElement{Ref: ref, Multi: cm.Multiple})
	}
	return result, nil
}

// resolveMap aggregates map-multibinding contributors.
func (e *Engine) resolveMap(key TypeKey, ctx *Context) (TypeResult, error) {
	k, v, ok := model.MapKV(key.Type)
	if !ok {
		return nil, nil
	}
	contributors := ctx.Result.FindContainers(MapKey{Key: k, Value: v, Qualifier: key.Qualifier})
	if len(contributors) == 0 {
		return nil, nil
	}
	result := &MapResult{Key: k, Value: v}
	for _, cm := range contributors {
		childKey := Key(cm.Method.Signature().Results().At(0).Type())
		childKey.Qualifier = key.Qualifier
		child, err := e.resolveContributor(childKey, cm, ctx)
		if err != nil {
			return nil, err
		}
		result.Entries = append(result.Entries, MapEntry{
			Ref:   &Ref{Key: childKey, Result: child},
			Multi: cm.Multiple,
		})
	}
	return result, nil
}

// resolveContributor builds the plan for one container contribution,
// honoring its scope.
func (e *Engine) resolveContributor(key TypeKey, cm *ContainerMember, ctx *Context) (TypeResult, error) {
	if cm.Directive.Scope != "" && !ctx.Constructing(key) {
		return e.resolveScoped(key, cm.Directive.Scope, ctx, func(scopedCtx *Context) (TypeResult, error) {
			return e.resolveContributor(key, cm, scopedCtx)
		})
	}
	params, err := e.resolveParams(key, cm.Method, providesSpec(cm.Directive), cm.Directive.Scope, ctx)
	if err != nil {
		return nil, err
	}
	return &ProvidesCall{Method: cm.Method, Accessor: cm.Accessor, Params: params}, nil
}

// resolveFuncWrap resolves a zero-argument callable request as a deferred
// wrapper around its return type, constructed lazily at every call.
func (e *Engine) resolveFuncWrap(key TypeKey, sig *types.Signature, alias *types.Named, ctx *Context) (TypeResult, error) {
	e.cycles.Delay()
	innerKey := QualifiedKey(sig.Results().At(0).Type(), key.Qualifier)
	child, err := e.resolve(innerKey, ctx)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	ref := &Ref{Key: innerKey, Result: child}
	if alias != nil {
		return &NamedFuncWrap{Alias: alias, Child: ref}, nil
	}
	return &FuncWrap{Sig: sig, Child: ref}, nil
}

// resolveLazy resolves a Lazy[T] request as a memoizing deferred wrapper.
func (e *Engine) resolveLazy(key TypeKey, elem types.Type, ctx *Context) (TypeResult, error) {
	e.cycles.Delay()
	innerKey := QualifiedKey(elem, key.Qualifier)
	child, err := e.resolve(innerKey, ctx)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	return &LazyWrap{Elem: elem, Child: &Ref{Key: innerKey, Result: child}}, nil
}

// resolveByConstructor resolves a type with exactly one eligible injectable
// constructor.
func (e *Engine) resolveByConstructor(key TypeKey, ctx *Context) (TypeResult, error) {
	var eligible []*model.Constructor
	for _, ctor := range e.app.ConstructorsFor(key.Type) {
		if ctor.Directive.Qualifier == key.Qualifier {
			eligible = append(eligible, ctor)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	if len(eligible) > 1 {
		names := make([]string, len(eligible))
		for i, ctor := range eligible {
			names[i] = ctor.Function.FullName()
		}
		return nil, e.failf(key, "ambiguous constructors for %s: %s", key, strings.Join(names, ", "))
	}
	return e.resolveConstructor(key, eligible[0], ctx)
}

func (e *Engine) resolveConstructor(key TypeKey, ctor *model.Constructor, ctx *Context) (TypeResult, error) {
	directive := ctor.Directive
	if directive.Scope != "" && !ctx.Constructing(key) {
		return e.resolveScoped(key, directive.Scope, ctx, func(scopedCtx *Context) (TypeResult, error) {
			return e.resolveConstructor(key, ctor, scopedCtx)
		})
	}
	params, err := e.resolveParams(key, ctor.Function, injectSpec(directive), directive.Scope, ctx)
	if err != nil {
		return nil, err
	}
	return &ConstructorCall{Constructor: ctor, Params: params}, nil
}

// resolveFactory resolves an assisted factory interface: the single abstract
// method's parameters become the caller-supplied argument list, and the
// method's result type is resolved in a context where those arguments are
// available as positional bindings.
func (e *Engine) resolveFactory(key TypeKey, factory *model.Factory, ctx *Context) (TypeResult, error) {
	sig := factory.Method.Signature()
	if sig.Results().Len() != 1 {
		return nil, e.failf(key, "factory method %s must return exactly one value", factory.Method.FullName())
	}
	target := sig.Results().At(0).Type()

	args, factoryArgs := e.factoryArgs(sig, ctx)
	targetKey := Key(target)
	child, err := e.resolve(targetKey, ctx.WithArgs(args))
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, e.failf(key, "no binding found for factory target %s", targetKey)
	}
	return &AssistedFactory{
		Factory: factory,
		Args:    factoryArgs,
		Target:  &Ref{Key: targetKey, Result: child},
	}, nil
}

// resolveFuncFactory resolves an assisted factory expressed as a function
// type with parameters.
func (e *Engine) resolveFuncFactory(key TypeKey, sig *types.Signature, alias *types.Named, ctx *Context) (TypeResult, error) {
	target := sig.Results().At(0).Type()
	args, factoryArgs := e.factoryArgs(sig, ctx)
	targetKey := QualifiedKey(target, key.Qualifier)
	child, err := e.resolve(targetKey, ctx.WithArgs(args))
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, nil
	}
	return &AssistedFuncFactory{
		Sig:    sig,
		Alias:  alias,
		Args:   factoryArgs,
		Target: &Ref{Key: targetKey, Result: child},
	}, nil
}

// factoryArgs derives the ordered (name, type) caller-supplied argument list
// from a factory method signature.
func (e *Engine) factoryArgs(sig *types.Signature, ctx *Context) ([]Arg, []FactoryArg) {
	params := sig.Params()
	args := make([]Arg, params.Len())
	factoryArgs := make([]FactoryArg, params.Len())
	for i := range params.Len() {
		param := params.At(i)
		name := param.Name()
		if name == "" || name == "_" {
			name = ctx.Names.Allocate(baseName(param.Type()))
		}
		args[i] = Arg{Name: name, Type: param.Type()}
		factoryArgs[i] = FactoryArg{Name: name, Type: param.Type()}
	}
	return args, factoryArgs
}

func (e *Engine) failf(key TypeKey, format string, args ...any) error {
	trace := append(e.cycles.Trace(), key)
	return &ResolveError{Message: fmt.Sprintf(format, args...), Trace: trace}
}

// funcFactoryShape matches function types (named or anonymous) taking at
// least one parameter and returning exactly one value.
func funcFactoryShape(t types.Type) (*types.Signature, *types.Named, bool) {
	switch t := t.(type) {
	case *types.Signature:
		if t.Params().Len() > 0 && t.Results().Len() == 1 && t.Recv() == nil {
			return t, nil, true
		}
	case *types.Named:
		if sig, ok := t.Underlying().(*types.Signature); ok {
			if sig.Params().Len() > 0 && sig.Results().Len() == 1 {
				return sig, t, true
			}
		}
	}
	return nil, nil, false
}
