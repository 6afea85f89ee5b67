// Package generator renders resolved construction plans as Go source. Each
// package containing concrete components receives one generated file holding
// the bodies of that package's component accessor methods.
package generator

import (
	"fmt"
	"go/types"
	"path/filepath"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/scottjasso/kotlin-inject/internal/codewriter"
	"github.com/scottjasso/kotlin-inject/internal/model"
	"github.com/scottjasso/kotlin-inject/internal/resolver"
)

// GeneratedFile is the default basename of generated files.
const GeneratedFile = "kinject.go"

type Option func(*options)

type options struct {
	tags    []string
	command string
}

// WithTags adds build tags to generated files.
func WithTags(tags ...string) Option {
	return func(o *options) { o.tags = append(o.tags, tags...) }
}

// WithCommand records the command line to include in the generated-code
// header so readers know how to regenerate.
func WithCommand(command string) Option {
	return func(o *options) { o.command = command }
}

// Generate resolves every accessor of every concrete component and renders
// the generated files, keyed by output path. Resolution and emission problems
// are reported to the app's diagnostics sink; Generate itself fails only on
// internal errors.
func Generate(app *model.App, opts ...Option) (map[string][]byte, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	byDir := map[string][]*model.Component{}
	var dirs []string
	for _, comp := range app.Components {
		if comp.Abstract() {
			continue
		}
		dir := filepath.Dir(comp.Pos.Filename)
		if _, ok := byDir[dir]; !ok {
			dirs = append(dirs, dir)
		}
		byDir[dir] = append(byDir[dir], comp)
	}

	collector := resolver.NewCollector(app)
	out := map[string][]byte{}
	for _, dir := range dirs {
		comps := byDir[dir]
		w := codewriter.New(comps[0].Package.Name)
		if o.command != "" {
			w.Header("// Code generated by %q. DO NOT EDIT.", o.command)
		} else {
			w.Header("// Code generated by kinject. DO NOT EDIT.")
		}
		if len(o.tags) > 0 {
			w.Header("//go:build %s", strings.Join(o.tags, " && "))
		}

		f := &fileGen{
			app:       app,
			collector: collector,
			diags:     app.Diags,
			w:         w,
			pkg:       comps[0].Package.Types,
			declNames: resolver.NewNameAllocator(),
		}
		for _, comp := range comps {
			f.component(comp)
		}
		f.flushFactories()
		out[filepath.Join(dir, GeneratedFile)] = w.Bytes()
	}
	return out, nil
}

// fileGen accumulates one generated file.
type fileGen struct {
	app       *model.App
	collector *resolver.Collector
	diags     *model.Diagnostics
	w         *codewriter.Writer
	pkg       *types.Package
	// declNames allocates file-level declaration names (factory impl types).
	declNames *resolver.NameAllocator
	pending   []pendingFactory
}

// pendingFactory is a factory implementation type queued for emission after
// the accessor method that referenced it.
type pendingFactory struct {
	name string
	plan *resolver.AssistedFactory
	comp *model.Component
}

func (f *fileGen) component(comp *model.Component) {
	result := f.collector.Collect(comp)
	for _, ep := range f.collector.EntryPoints(comp) {
		f.entryPoint(comp, result, ep)
	}
}

// entryPoint resolves and emits one accessor method body.
func (f *fileGen) entryPoint(comp *model.Component, result *resolver.Result, ep resolver.EntryPoint) {
	pos := f.app.Position(ep.Method)
	sig := ep.Method.Signature()
	results := sig.Results()
	errMode := false
	switch {
	case results.Len() == 1:
	case results.Len() == 2 && model.IsErrorType(results.At(1).Type()):
		errMode = true
	default:
		f.diags.Errorf(pos, "accessor %s must return a value or a value and an error", ep.Method.Name())
		return
	}
	retType := results.At(0).Type()

	names := resolver.NewNameAllocator()
	names.Allocate("c")
	names.Allocate("err")
	names.Allocate("out")

	params := make([]string, sig.Params().Len())
	args := make([]resolver.Arg, sig.Params().Len())
	body := f.w.Fork()
	m := &methodGen{
		f:       f,
		w:       body,
		names:   names,
		recv:    "c",
		comp:    comp,
		canFail: errMode,
		failRet: "return out, err",
		where:   ep.Method.Name(),
	}
	for i := range sig.Params().Len() {
		p := sig.Params().At(i)
		name := p.Name()
		if name == "" || name == "_" {
			name = names.Allocate("arg")
		} else {
			names.Allocate(name)
		}
		params[i] = name + " " + m.typ(p.Type())
		args[i] = resolver.Arg{Name: name, Type: p.Type()}
	}

	engine := resolver.NewEngine(f.app)
	ctx := resolver.NewContext(result).ForEntry(ep.Method).WithArgs(args)
	ctx.Names = names
	key := resolver.QualifiedKey(retType, ep.Qualifier)
	plan, err := engine.Resolve(key, ctx)
	if err != nil {
		f.diags.Errorf(pos, "%s: %s", ep.Method.Name(), err)
		return
	}

	var expr string
	fail := func() bool {
		var emitErr error
		body.In(func(*codewriter.Writer) {
			expr, emitErr = m.expr(plan)
		})
		if emitErr != nil {
			f.diags.Errorf(pos, "%s: %s", ep.Method.Name(), emitErr)
			return true
		}
		return false
	}()
	if fail {
		return
	}

	recv := m.typ(types.NewPointer(comp.Named))
	if errMode {
		f.w.L("func (c %s) %s(%s) (out %s, err error) {", recv, ep.Method.Name(), strings.Join(params, ", "), m.typ(retType))
		f.w.W("%s", body.BodyString())
		f.w.In(func(w *codewriter.Writer) { w.L("return %s, nil", expr) })
	} else {
		f.w.L("func (c %s) %s(%s) %s {", recv, ep.Method.Name(), strings.Join(params, ", "), m.typ(retType))
		f.w.W("%s", body.BodyString())
		f.w.In(func(w *codewriter.Writer) { w.L("return %s", expr) })
	}
	f.w.L("}")
	f.w.L("")
}

// flushFactories emits implementation types for every assisted factory
// referenced while generating this file. Factory targets may reference
// further factories, so drain until stable.
func (f *fileGen) flushFactories() {
	for len(f.pending) > 0 {
		p := f.pending[0]
		f.pending = f.pending[1:]
		f.factoryImpl(p)
	}
}

func (f *fileGen) factoryImpl(p pendingFactory) {
	factory := p.plan.Factory
	method := factory.Method
	pos := f.app.Position(method)
	if planCanFail(p.plan.Target.Result) {
		f.diags.Errorf(pos, "%s: cannot construct %s through a factory because its construction can fail",
			method.Name(), p.plan.Target.Key)
		return
	}

	names := resolver.NewNameAllocator()
	names.Allocate("f")
	m := &methodGen{
		f:       f,
		w:       f.w.Fork(),
		names:   names,
		recv:    "f.c",
		comp:    p.comp,
		canFail: false,
		where:   method.Name(),
	}
	for _, arg := range p.plan.Args {
		names.Allocate(arg.Name)
	}

	var expr string
	var emitErr error
	m.w.In(func(*codewriter.Writer) {
		expr, emitErr = m.expr(p.plan.Target.Result)
	})
	if emitErr != nil {
		f.diags.Errorf(pos, "%s: %s", method.Name(), emitErr)
		return
	}

	params := make([]string, len(p.plan.Args))
	for i, arg := range p.plan.Args {
		params[i] = arg.Name + " " + m.typ(arg.Type)
	}
	f.w.L("type %s struct {", p.name)
	f.w.In(func(w *codewriter.Writer) { w.L("c %s", m.typ(types.NewPointer(p.comp.Named))) })
	f.w.L("}")
	f.w.L("")
	f.w.L("func (f %s) %s(%s) %s {", p.name, method.Name(), strings.Join(params, ", "), m.typ(p.plan.Target.Key.Type))
	f.w.W("%s", m.w.BodyString())
	f.w.In(func(w *codewriter.Writer) { w.L("return %s", expr) })
	f.w.L("}")
	f.w.L("")
}

// methodGen emits the statements and final expression of one generated
// function body. Statements are written to w as they are produced; expr
// returns the expression yielding the resolved value.
type methodGen struct {
	f       *fileGen
	w       *codewriter.Writer
	names   *resolver.NameAllocator
	recv    string
	comp    *model.Component
	// canFail is true where a constructor error can be propagated.
	canFail bool
	failRet string
	where   string
}

func (m *methodGen) expr(r resolver.TypeResult) (string, error) {
	switch r := r.(type) {
	case *resolver.ConstructorCall:
		return m.constructorCall(r)
	case *resolver.ProvidesCall:
		args, err := m.callArgs(r.Params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s.%s(%s)", m.access(r.Accessor), r.Method.Name(), args), nil
	case *resolver.ProviderCall:
		return fmt.Sprintf("%s.%s()", m.access(r.Accessor), r.Method.Name()), nil
	case *resolver.ScopedFetch:
		return m.scopedFetch(r)
	case *resolver.SingletonRef:
		return m.objRef(r.Singleton.Var), nil
	case *resolver.LazyWrap:
		return m.lazyWrap(r)
	case *resolver.FuncWrap:
		return m.funcWrap(r.Sig, nil, r.Child)
	case *resolver.NamedFuncWrap:
		sig := r.Alias.Underlying().(*types.Signature)
		return m.funcWrap(sig, r.Alias, r.Child)
	case *resolver.SetResult:
		return m.setResult(r)
	case *resolver.MapResult:
		return m.mapResult(r)
	case *resolver.AssistedFactory:
		name := m.f.declNames.Allocate(r.Factory.Named.Obj().Name() + "Impl")
		m.f.pending = append(m.f.pending, pendingFactory{name: name, plan: r, comp: m.comp})
		return fmt.Sprintf("%s{c: %s}", name, m.root()), nil
	case *resolver.AssistedFuncFactory:
		return m.funcFactory(r)
	case *resolver.LocalVarRef:
		return r.Name, nil
	case *resolver.LateInit:
		m.w.L("var %s %s", r.Name, m.typ(r.Child.Key.Type))
		expr, err := m.expr(r.Child.Result)
		if err != nil {
			return "", err
		}
		m.w.L("%s = %s", r.Name, expr)
		return r.Name, nil
	case *resolver.ArgRef:
		return r.Name, nil
	}
	return "", errors.Errorf("unsupported plan node %T", r)
}

func (m *methodGen) constructorCall(r *resolver.ConstructorCall) (string, error) {
	ctor := r.Constructor
	args, err := m.callArgs(r.Params)
	if err != nil {
		return "", err
	}
	call := fmt.Sprintf("%s(%s)", m.objRef(ctor.Function), args)
	if !ctor.ReturnsError {
		return call, nil
	}
	if !m.canFail {
		return "", errors.Errorf("constructor %s returns an error, so %s must be able to return one",
			ctor.Function.FullName(), m.where)
	}
	name := m.names.AllocateFor(resolver.Key(ctor.Provides))
	m.w.L("%s, err := %s", name, call)
	m.w.L("if err != nil {")
	m.w.In(func(w *codewriter.Writer) {
		m.f.w.Import("fmt")
		w.L("err = fmt.Errorf(%q, err)", ctor.Function.Name()+": %w")
		w.L("%s", m.failRet)
	})
	m.w.L("}")
	return name, nil
}

func (m *methodGen) callArgs(params []resolver.Param) (string, error) {
	args := make([]string, 0, len(params))
	for _, p := range params {
		if p.Omitted {
			name := m.names.Allocate(p.Name)
			m.w.L("var %s %s", name, m.typ(p.Type))
			args = append(args, name)
			continue
		}
		expr, err := m.expr(p.Ref.Result)
		if err != nil {
			return "", err
		}
		args = append(args, expr)
	}
	return strings.Join(args, ", "), nil
}

func (m *methodGen) scopedFetch(r *resolver.ScopedFetch) (string, error) {
	owner := r.Owner.Component
	if !ownerHasStore(owner) {
		return "", errors.Errorf("component %s owns scope %s and must embed inject.Store", owner.Name(), r.Scope)
	}
	store := m.access(r.Owner.Accessor) + ".Store"

	sub := m.fork(true, "return nil, err")
	var expr string
	var err error
	sub.w.In(func(*codewriter.Writer) {
		expr, err = sub.expr(r.Child.Result)
		if err == nil {
			sub.w.L("return %s, nil", expr)
		}
	})
	if err != nil {
		return "", err
	}
	closure := fmt.Sprintf("func() (any, error) {\n%s%s}", sub.w.BodyString(), m.w.Indentation())

	name := m.names.AllocateFor(r.Key)
	switch {
	case m.canFail:
		m.w.L("%s, err := %s.Get(%q, %s)", name, store, r.Key.String(), closure)
		m.w.L("if err != nil {")
		m.w.In(func(w *codewriter.Writer) { w.L("%s", m.failRet) })
		m.w.L("}")
	case planCanFail(r.Child.Result):
		return "", errors.Errorf("scoped binding %s can fail, so %s must be able to return an error", r.Key, m.where)
	default:
		m.w.L("%s, _ := %s.Get(%q, %s)", name, store, r.Key.String(), closure)
	}
	return fmt.Sprintf("%s.(%s)", name, m.typ(r.Key.Type)), nil
}

func (m *methodGen) lazyWrap(r *resolver.LazyWrap) (string, error) {
	if planCanFail(r.Child.Result) {
		return "", errors.Errorf("cannot defer %s lazily because its construction can fail", r.Child.Key)
	}
	m.f.w.Import(model.RuntimePackage)
	body, err := m.deferredBody(r.Child)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("inject.NewLazy(func() %s {\n%s%s})", m.typ(r.Child.Key.Type), body, m.w.Indentation()), nil
}

func (m *methodGen) funcWrap(sig *types.Signature, alias *types.Named, child *resolver.Ref) (string, error) {
	if planCanFail(child.Result) {
		return "", errors.Errorf("cannot defer %s behind a function because its construction can fail", child.Key)
	}
	body, err := m.deferredBody(child)
	if err != nil {
		return "", err
	}
	lit := fmt.Sprintf("func() %s {\n%s%s}", m.typ(sig.Results().At(0).Type()), body, m.w.Indentation())
	if alias != nil {
		return fmt.Sprintf("%s(%s)", m.typ(alias), lit), nil
	}
	return lit, nil
}

func (m *methodGen) funcFactory(r *resolver.AssistedFuncFactory) (string, error) {
	if planCanFail(r.Target.Result) {
		return "", errors.Errorf("cannot defer %s behind a factory function because its construction can fail", r.Target.Key)
	}
	sub := m.fork(false, "")
	for _, arg := range r.Args {
		sub.names.Allocate(arg.Name)
	}
	var expr string
	var err error
	sub.w.In(func(*codewriter.Writer) {
		expr, err = sub.expr(r.Target.Result)
		if err == nil {
			sub.w.L("return %s", expr)
		}
	})
	if err != nil {
		return "", err
	}
	params := make([]string, len(r.Args))
	for i, arg := range r.Args {
		params[i] = arg.Name + " " + m.typ(arg.Type)
	}
	lit := fmt.Sprintf("func(%s) %s {\n%s%s}",
		strings.Join(params, ", "), m.typ(r.Target.Key.Type), sub.w.BodyString(), m.w.Indentation())
	if r.Alias != nil {
		return fmt.Sprintf("%s(%s)", m.typ(r.Alias), lit), nil
	}
	return lit, nil
}

func (m *methodGen) setResult(r *resolver.SetResult) (string, error) {
	name := m.names.AllocateFor(resolver.Key(types.NewSlice(r.Elem)))
	m.w.L("%s := make([]%s, 0, %d)", name, m.typ(r.Elem), len(r.Elements))
	for _, elem := range r.Elements {
		expr, err := m.expr(elem.Ref.Result)
		if err != nil {
			return "", err
		}
		if elem.Multi {
			m.w.L("%s = append(%s, %s...)", name, name, expr)
		} else {
			m.w.L("%s = append(%s, %s)", name, name, expr)
		}
	}
	return name, nil
}

func (m *methodGen) mapResult(r *resolver.MapResult) (string, error) {
	name := m.names.AllocateFor(resolver.Key(types.NewMap(r.Key, r.Value)))
	m.w.L("%s := map[%s]%s{}", name, m.typ(r.Key), m.typ(r.Value))
	for _, entry := range r.Entries {
		expr, err := m.expr(entry.Ref.Result)
		if err != nil {
			return "", err
		}
		if entry.Multi {
			k := m.names.Allocate("k")
			v := m.names.Allocate("v")
			m.w.L("for %s, %s := range %s {", k, v, expr)
			m.w.In(func(w *codewriter.Writer) { w.L("%s[%s] = %s", name, k, v) })
			m.w.L("}")
		} else {
			e := m.names.Allocate("entry")
			m.w.L("%s := %s", e, expr)
			m.w.L("%s[%s.Key] = %s.Value", name, e, e)
		}
	}
	return name, nil
}

// deferredBody renders a child plan as the body of a zero-argument closure,
// ending in a return statement.
func (m *methodGen) deferredBody(child *resolver.Ref) (string, error) {
	sub := m.fork(false, "")
	var err error
	sub.w.In(func(*codewriter.Writer) {
		var expr string
		expr, err = sub.expr(child.Result)
		if err == nil {
			sub.w.L("return %s", expr)
		}
	})
	if err != nil {
		return "", err
	}
	return sub.w.BodyString(), nil
}

// fork derives a methodGen writing to a fresh body at the same indentation,
// sharing the name allocator and file state.
func (m *methodGen) fork(canFail bool, failRet string) *methodGen {
	return &methodGen{
		f:       m.f,
		w:       m.w.Fork(),
		names:   m.names,
		recv:    m.recv,
		comp:    m.comp,
		canFail: canFail,
		failRet: failRet,
		where:   m.where,
	}
}

// access renders the receiver expression for a component accessor path.
func (m *methodGen) access(accessor string) string {
	if accessor == "" {
		return m.recv
	}
	return m.recv + "." + accessor
}

// root renders the pointer to the root component instance.
func (m *methodGen) root() string {
	return m.recv
}

// typ renders a type relative to the generated file's package, registering
// imports as a side effect.
func (m *methodGen) typ(t types.Type) string {
	return types.TypeString(t, m.qualifier)
}

func (m *methodGen) qualifier(p *types.Package) string {
	if p == m.f.pkg {
		return ""
	}
	m.f.w.Import(p.Path())
	return p.Name()
}

// objRef renders a package-level object reference relative to the generated
// file's package.
func (m *methodGen) objRef(obj types.Object) string {
	if obj.Pkg() == nil || obj.Pkg() == m.f.pkg {
		return obj.Name()
	}
	m.f.w.Import(obj.Pkg().Path())
	return obj.Pkg().Name() + "." + obj.Name()
}

func ownerHasStore(owner *model.Component) bool {
	obj, _, _ := types.LookupFieldOrMethod(owner.Named, true, owner.Named.Obj().Pkg(), "Store")
	field, ok := obj.(*types.Var)
	return ok && model.IsStore(field.Type())
}

// planCanFail reports whether any constructor in the plan can return an
// error.
func planCanFail(r resolver.TypeResult) bool {
	fail := false
	resolver.Walk(r, func(n resolver.TypeResult) bool {
		if c, ok := n.(*resolver.ConstructorCall); ok && c.Constructor.ReturnsError {
			fail = true
			return false
		}
		return true
	})
	return fail
}
