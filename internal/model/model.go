// Package model loads Go packages and builds the declaration model consumed by
// the binding collector and resolution engine: components, injectable
// constructors, singleton instances and assisted factories, found via
// //inject: compiler directives.
package model

import (
	"go/ast"
	"go/token"
	"go/types"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/alecthomas/errors"
	"golang.org/x/mod/modfile"
	"golang.org/x/tools/go/packages"

	"github.com/scottjasso/kotlin-inject/internal/directiveparser"
)

// RuntimePackage is the import path of the runtime support package referenced
// by generated code (inject.Lazy, inject.Pair, inject.Store).
const RuntimePackage = "github.com/scottjasso/kotlin-inject"

// Component is a struct or interface type annotated //inject:component.
type Component struct {
	Pos       token.Position
	Package   *packages.Package
	Named     *types.Named
	Directive *directiveparser.DirectiveComponent
}

// Abstract reports whether the component is declared as an interface.
func (c *Component) Abstract() bool {
	_, ok := c.Named.Underlying().(*types.Interface)
	return ok
}

// Name returns the fully-qualified name of the component type.
func (c *Component) Name() string { return types.TypeString(c.Named, nil) }

// Constructor is a function annotated //inject:inject, returning (T) or
// (T, error).
type Constructor struct {
	Pos       token.Position
	Package   *packages.Package
	Function  *types.Func
	Directive *directiveparser.DirectiveInject
	Provides  types.Type
	// ReturnsError is true for the (T, error) shape.
	ReturnsError bool
}

// Singleton is a package-level var annotated //inject:singleton.
type Singleton struct {
	Pos       token.Position
	Package   *packages.Package
	Var       *types.Var
	Directive *directiveparser.DirectiveSingleton
}

// Factory is a single-method interface annotated //inject:factory. The
// method's parameters are caller-supplied arguments for constructing the
// method's result type.
type Factory struct {
	Pos       token.Position
	Package   *packages.Package
	Named     *types.Named
	Method    *types.Func
	Directive *directiveparser.DirectiveFactory
}

// Member is a method of a component together with the depth in the embedding
// ancestry at which it was found. Depth 0 is the component itself; deeper
// members were promoted from anonymously embedded types.
type Member struct {
	Func  *types.Func
	Depth int
	Owner *types.Named
}

// ScopeMarker records a scope found on a declaration in a component's
// embedding ancestry.
type ScopeMarker struct {
	Scope string
	On    *types.Named
}

// ParentField is a named field of a component whose type is itself a
// component: an embedded sub-component reachable through that field.
type ParentField struct {
	Name      string
	Component *Component
}

// App is the loaded universe of declarations for one generation run. All
// state is request-scoped; nothing survives the run.
type App struct {
	Fset         *token.FileSet
	Dest         *types.Package
	Packages     []*packages.Package
	Components   []*Component
	Constructors map[string][]*Constructor
	Singletons   []*Singleton
	Factories    []*Factory
	Diags        *Diagnostics

	methodDirectives map[*types.Func]directiveparser.Directive
	components       map[*types.TypeName]*Component
	factories        map[*types.TypeName]*Factory
}

type loadOptions struct {
	patterns []string
	tags     []string
	debug    bool
}

// Option configures Load.
type Option func(*loadOptions)

// WithPatterns adds additional package patterns to search for directives.
func WithPatterns(patterns ...string) Option {
	return func(o *loadOptions) { o.patterns = append(o.patterns, patterns...) }
}

// WithTags sets build tags for type analysis.
func WithTags(tags ...string) Option {
	return func(o *loadOptions) { o.tags = append(o.tags, tags...) }
}

// WithDebug enables debug logging during package loading.
func WithDebug(enable bool) Option {
	return func(o *loadOptions) { o.debug = enable }
}

// Load statically loads the destination package and any additional patterns,
// then scans them for //inject: directives to build the declaration model.
// Malformed declarations are reported to the returned App's Diags and do not
// halt loading.
func Load(dest string, options ...Option) (*App, error) {
	opts := &loadOptions{}
	for _, opt := range options {
		opt(opts)
	}

	destImport, err := importPathForDir(dest)
	if err != nil {
		return nil, errors.Errorf("failed to determine import path for destination directory %s: %w", dest, err)
	}

	var logf func(string, ...any)
	if opts.debug {
		logf = log.Printf
	}

	app := &App{
		Fset:             token.NewFileSet(),
		Constructors:     map[string][]*Constructor{},
		Diags:            &Diagnostics{},
		methodDirectives: map[*types.Func]directiveparser.Directive{},
		components:       map[*types.TypeName]*Component{},
		factories:        map[*types.TypeName]*Factory{},
	}

	cfg := &packages.Config{
		Logf: logf,
		Fset: app.Fset,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedTypes | packages.NeedSyntax |
			packages.NeedTypesInfo,
	}
	if len(opts.tags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(opts.tags, ",")}
	}
	pkgs, err := packages.Load(cfg, append(opts.patterns, dest)...)
	if err != nil {
		return nil, errors.Errorf("failed to load packages: %w", err)
	}
	app.Packages = pkgs

	for _, pkg := range pkgs {
		if pkg.PkgPath == destImport {
			app.Dest = pkg.Types
		}
		app.analysePackage(pkg)
	}
	if app.Dest == nil {
		return nil, errors.Errorf("destination package %q not found", destImport)
	}
	return app, nil
}

// Parse a directive from a comment. Returns (nil, nil) if no directive is present.
func parseDirective(doc *ast.CommentGroup) (directiveparser.Directive, error) {
	if doc == nil {
		return nil, nil
	}
	for _, comment := range doc.List {
		if strings.HasPrefix(comment.Text, "//inject:") {
			return directiveparser.Parse(comment.Text[2:])
		}
	}
	return nil, nil
}

func (a *App) analysePackage(pkg *packages.Package) {
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.FuncDecl:
				directive, err := parseDirective(decl.Doc)
				if err != nil {
					a.Diags.Errorf(a.Fset.Position(decl.Pos()), "%s", err)
					continue
				} else if directive == nil {
					continue
				}
				a.analyseFunc(pkg, decl, directive)

			case *ast.GenDecl:
				a.analyseGenDecl(pkg, decl)
			}
		}
	}
}

func (a *App) analyseFunc(pkg *packages.Package, decl *ast.FuncDecl, directive directiveparser.Directive) {
	obj := pkg.TypesInfo.ObjectOf(decl.Name)
	fn, ok := obj.(*types.Func)
	if !ok {
		return
	}
	pos := a.Fset.Position(decl.Pos())

	if decl.Recv != nil {
		switch directive.(type) {
		case *directiveparser.DirectiveProvides, *directiveparser.DirectiveProvider:
			a.methodDirectives[fn] = directive
		default:
			a.Diags.Errorf(pos, "%s is not valid on a method", directive)
		}
		return
	}

	injectDir, ok := directive.(*directiveparser.DirectiveInject)
	if !ok {
		a.Diags.Errorf(pos, "%s is not valid on a function", directive)
		return
	}
	ctor := a.buildConstructor(pkg, decl, fn, injectDir)
	if ctor != nil {
		key := types.TypeString(ctor.Provides, nil)
		a.Constructors[key] = append(a.Constructors[key], ctor)
	}
}

func (a *App) buildConstructor(pkg *packages.Package, decl *ast.FuncDecl, fn *types.Func, directive *directiveparser.DirectiveInject) *Constructor {
	pos := a.Fset.Position(decl.Pos())
	sig := fn.Signature()
	results := sig.Results()

	if results.Len() == 0 || results.Len() > 2 {
		a.Diags.Errorf(pos, "constructor %s must return (T) or (T, error)", fn.Name())
		return nil
	}
	returnsError := false
	if results.Len() == 2 {
		if !IsErrorType(results.At(1).Type()) {
			a.Diags.Errorf(pos, "constructor %s second return value must be error", fn.Name())
			return nil
		}
		returnsError = true
	}
	provided := results.At(0).Type()
	if !IsValidBindingType(provided) {
		a.Diags.Errorf(pos, "constructor %s return type %s cannot be bound", fn.Name(), types.TypeString(provided, nil))
		return nil
	}

	params := map[string]bool{}
	for i := range sig.Params().Len() {
		params[sig.Params().At(i).Name()] = true
	}
	for _, name := range directive.Assisted {
		if !params[name] {
			a.Diags.Errorf(pos, "constructor %s has no parameter %q named by assisted=", fn.Name(), name)
		}
	}
	for _, name := range directive.Optional {
		if !params[name] {
			a.Diags.Errorf(pos, "constructor %s has no parameter %q named by optional=", fn.Name(), name)
		}
	}
	for _, q := range directive.Qualifiers {
		if !params[q.Param] {
			a.Diags.Errorf(pos, "constructor %s has no parameter %q named by qualifiers=", fn.Name(), q.Param)
		}
	}

	return &Constructor{
		Pos:          pos,
		Package:      pkg,
		Function:     fn,
		Directive:    directive,
		Provides:     provided,
		ReturnsError: returnsError,
	}
}

func (a *App) analyseGenDecl(pkg *packages.Package, decl *ast.GenDecl) {
	declDirective, err := parseDirective(decl.Doc)
	if err != nil {
		a.Diags.Errorf(a.Fset.Position(decl.Pos()), "%s", err)
		return
	}
	for _, spec := range decl.Specs {
		switch spec := spec.(type) {
		case *ast.TypeSpec:
			if iface, ok := spec.Type.(*ast.InterfaceType); ok {
				a.analyseInterfaceMethods(pkg, iface)
			}
			directive := declDirective
			if specDirective, err := parseDirective(spec.Doc); err != nil {
				a.Diags.Errorf(a.Fset.Position(spec.Pos()), "%s", err)
				continue
			} else if specDirective != nil {
				directive = specDirective
			}
			if directive == nil {
				continue
			}
			a.analyseTypeSpec(pkg, spec, directive)

		case *ast.ValueSpec:
			directive := declDirective
			if specDirective, err := parseDirective(spec.Doc); err != nil {
				a.Diags.Errorf(a.Fset.Position(spec.Pos()), "%s", err)
				continue
			} else if specDirective != nil {
				directive = specDirective
			}
			if directive == nil {
				continue
			}
			a.analyseValueSpec(pkg, spec, directive)
		}
	}
}

// analyseInterfaceMethods picks up directives attached to interface method
// declarations: abstract provides members and provider accessors.
func (a *App) analyseInterfaceMethods(pkg *packages.Package, iface *ast.InterfaceType) {
	for _, field := range iface.Methods.List {
		if len(field.Names) == 0 {
			continue
		}
		directive, err := parseDirective(field.Doc)
		if err != nil {
			a.Diags.Errorf(a.Fset.Position(field.Pos()), "%s", err)
			continue
		}
		if directive == nil {
			continue
		}
		fn, ok := pkg.TypesInfo.ObjectOf(field.Names[0]).(*types.Func)
		if !ok {
			continue
		}
		switch directive.(type) {
		case *directiveparser.DirectiveProvides, *directiveparser.DirectiveProvider:
			a.methodDirectives[fn] = directive
		default:
			a.Diags.Errorf(a.Fset.Position(field.Pos()), "%s is not valid on an interface method", directive)
		}
	}
}

func (a *App) analyseTypeSpec(pkg *packages.Package, spec *ast.TypeSpec, directive directiveparser.Directive) {
	pos := a.Fset.Position(spec.Pos())
	obj, ok := pkg.TypesInfo.ObjectOf(spec.Name).(*types.TypeName)
	if !ok {
		return
	}
	named, ok := obj.Type().(*types.Named)
	if !ok {
		a.Diags.Errorf(pos, "%s is only valid on a defined type", directive)
		return
	}

	switch directive := directive.(type) {
	case *directiveparser.DirectiveComponent:
		switch named.Underlying().(type) {
		case *types.Struct, *types.Interface:
		default:
			a.Diags.Errorf(pos, "component %s must be a struct or interface type", obj.Name())
			return
		}
		component := &Component{Pos: pos, Package: pkg, Named: named, Directive: directive}
		a.Components = append(a.Components, component)
		a.components[obj] = component

	case *directiveparser.DirectiveFactory:
		iface, ok := named.Underlying().(*types.Interface)
		if !ok {
			a.Diags.Errorf(pos, "factory %s must be an interface type", obj.Name())
			return
		}
		if iface.NumMethods() != 1 {
			a.Diags.Errorf(pos, "factory %s must declare exactly one method, has %d", obj.Name(), iface.NumMethods())
			return
		}
		factory := &Factory{Pos: pos, Package: pkg, Named: named, Method: iface.Method(0), Directive: directive}
		a.Factories = append(a.Factories, factory)
		a.factories[obj] = factory

	default:
		a.Diags.Errorf(pos, "%s is not valid on a type", directive)
	}
}

func (a *App) analyseValueSpec(pkg *packages.Package, spec *ast.ValueSpec, directive directiveparser.Directive) {
	pos := a.Fset.Position(spec.Pos())
	singletonDirective, ok := directive.(*directiveparser.DirectiveSingleton)
	if !ok {
		a.Diags.Errorf(pos, "%s is not valid on a var", directive)
		return
	}
	for _, name := range spec.Names {
		v, ok := pkg.TypesInfo.ObjectOf(name).(*types.Var)
		if !ok {
			continue
		}
		if st, ok := v.Type().Underlying().(*types.Struct); !ok || st.NumFields() > 0 {
			a.Diags.Errorf(pos, "singleton %s must be a stateless struct value", name.Name)
			continue
		}
		a.Singletons = append(a.Singletons, &Singleton{Pos: pos, Package: pkg, Var: v, Directive: singletonDirective})
	}
}

// MethodDirective returns the //inject: directive attached to a method, or nil.
func (a *App) MethodDirective(fn *types.Func) directiveparser.Directive {
	return a.methodDirectives[fn]
}

// ComponentFor returns the component declared for the given named type, or nil.
func (a *App) ComponentFor(named *types.Named) *Component {
	return a.components[named.Obj()]
}

// FactoryFor returns the assisted factory declared for the given named type, or nil.
func (a *App) FactoryFor(named *types.Named) *Factory {
	return a.factories[named.Obj()]
}

// ConstructorsFor returns the injectable constructors providing exactly the
// given type.
func (a *App) ConstructorsFor(t types.Type) []*Constructor {
	return a.Constructors[types.TypeString(t, nil)]
}

// SingletonFor returns the singleton instance bound to the given type and
// qualifier, or nil.
func (a *App) SingletonFor(t types.Type, qualifier string) *Singleton {
	for _, s := range a.Singletons {
		if s.Directive.Qualifier == qualifier && types.Identical(s.Var.Type(), t) {
			return s
		}
	}
	return nil
}

// Members enumerates all methods of a component declaration and of its
// anonymously embedded ancestry, deepest last. Override shadowing is NOT
// applied here; the binding collector reduces the candidate list explicitly.
func (a *App) Members(named *types.Named) []Member {
	var out []Member
	visited := map[*types.TypeName]bool{}
	a.collectMembers(named, 0, visited, &out)
	return out
}

func (a *App) collectMembers(named *types.Named, depth int, visited map[*types.TypeName]bool, out *[]Member) {
	if visited[named.Obj()] {
		return
	}
	visited[named.Obj()] = true

	switch underlying := named.Underlying().(type) {
	case *types.Struct:
		for i := range named.NumMethods() {
			*out = append(*out, Member{Func: named.Method(i), Depth: depth, Owner: named})
		}
		for i := range underlying.NumFields() {
			field := underlying.Field(i)
			if !field.Anonymous() {
				continue
			}
			if embedded, ok := DerefNamed(field.Type()); ok {
				a.collectMembers(embedded, depth+1, visited, out)
			}
		}
	case *types.Interface:
		for i := range underlying.NumExplicitMethods() {
			*out = append(*out, Member{Func: underlying.ExplicitMethod(i), Depth: depth, Owner: named})
		}
		for i := range underlying.NumEmbeddeds() {
			if embedded, ok := DerefNamed(underlying.EmbeddedType(i)); ok {
				a.collectMembers(embedded, depth+1, visited, out)
			}
		}
	}
}

// ScopeMarkers returns every scope marker on the component declaration and
// its anonymously embedded ancestry.
func (a *App) ScopeMarkers(named *types.Named) []ScopeMarker {
	var out []ScopeMarker
	visited := map[*types.TypeName]bool{}
	a.collectScopeMarkers(named, visited, &out)
	return out
}

func (a *App) collectScopeMarkers(named *types.Named, visited map[*types.TypeName]bool, out *[]ScopeMarker) {
	if visited[named.Obj()] {
		return
	}
	visited[named.Obj()] = true

	if component := a.ComponentFor(named); component != nil && component.Directive.Scope != "" {
		*out = append(*out, ScopeMarker{Scope: component.Directive.Scope, On: named})
	}
	if st, ok := named.Underlying().(*types.Struct); ok {
		for i := range st.NumFields() {
			field := st.Field(i)
			if !field.Anonymous() {
				continue
			}
			if embedded, ok := DerefNamed(field.Type()); ok {
				a.collectScopeMarkers(embedded, visited, out)
			}
		}
	}
}

// ParentFields returns the named fields of a component whose types are
// themselves components: the embedded sub-components.
func (a *App) ParentFields(c *Component) []ParentField {
	st, ok := c.Named.Underlying().(*types.Struct)
	if !ok {
		return nil
	}
	var out []ParentField
	for i := range st.NumFields() {
		field := st.Field(i)
		if field.Anonymous() {
			continue
		}
		named, ok := DerefNamed(field.Type())
		if !ok {
			continue
		}
		if parent := a.ComponentFor(named); parent != nil {
			out = append(out, ParentField{Name: field.Name(), Component: parent})
		}
	}
	return out
}

// Position returns the position of an object in the loaded file set.
func (a *App) Position(obj types.Object) token.Position {
	return a.Fset.Position(obj.Pos())
}

func importPathForDir(dir string) (string, error) {
	if !modfile.IsDirectoryPath(dir) {
		return dir, nil
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Errorf("failed to get absolute path for directory %s: %w", dir, err)
	}
	dir = root
	// Search up directories for go.mod file
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		if root == "/" {
			return "", errors.Errorf("couldn't find a go.mod file above %s", dir)
		}
		root = filepath.Dir(root)
	}
	dir, err = filepath.Rel(root, dir)
	if err != nil {
		return "", errors.Errorf("failed to get relative path for directory %s: %w", dir, err)
	}
	goModPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(goModPath) //nolint
	if err != nil {
		return "", errors.Errorf("failed to read go.mod file at %s: %w", goModPath, err)
	}
	mod, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return "", errors.Errorf("failed to parse go.mod file at %s: %w", goModPath, err)
	}
	return path.Join(mod.Module.Mod.Path, dir), nil
}
