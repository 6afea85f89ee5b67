package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/scottjasso/kotlin-inject/internal/directiveparser"
)

func TestLoadComponents(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:component scope=Request
type RequestComponent struct{}

//inject:component
type Bindings interface {
	DB() string
}
`)
	assert.False(t, app.Diags.HasErrors())
	assert.Equal(t, 3, len(app.Components))

	assert.Equal(t, "test.App", app.Components[0].Name())
	assert.False(t, app.Components[0].Abstract())
	assert.Equal(t, "Request", app.Components[1].Directive.Scope)
	assert.True(t, app.Components[2].Abstract())
}

func TestComponentMustBeStructOrInterface(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Bad int
`)
	assertDiagnostic(t, app, "component Bad must be a struct or interface type")
}

func TestLoadConstructor(t *testing.T) {
	app := loadTestCode(t, `
package main

type DB struct{}

type Service struct{ db *DB }

//inject:inject
func NewDB() (*DB, error) { return &DB{}, nil }

//inject:inject assisted=name
func NewService(name string, db *DB) *Service { return &Service{db: db} }
`)
	assert.False(t, app.Diags.HasErrors())

	dbCtors := app.Constructors["*test.DB"]
	assert.Equal(t, 1, len(dbCtors))
	assert.True(t, dbCtors[0].ReturnsError)

	svcCtors := app.Constructors["*test.Service"]
	assert.Equal(t, 1, len(svcCtors))
	assert.False(t, svcCtors[0].ReturnsError)
	assert.True(t, svcCtors[0].Directive.IsAssisted("name"))
}

func TestConstructorShapeErrors(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:inject
func NoResult() {}

//inject:inject
func BadSecond() (int, string) { return 0, "" }

//inject:inject assisted=missing
func NoSuchParam(real int) int { return real }
`)
	assertDiagnostic(t, app, "constructor NoResult must return (T) or (T, error)")
	assertDiagnostic(t, app, "constructor BadSecond second return value must be error")
	assertDiagnostic(t, app, `constructor NoSuchParam has no parameter "missing" named by assisted=`)
}

func TestLoadSingleton(t *testing.T) {
	app := loadTestCode(t, `
package main

type Clock struct{}

type Stateful struct{ n int }

//inject:singleton
var SystemClock = Clock{}

//inject:singleton
var Bad = Stateful{}
`)
	assert.Equal(t, 1, len(app.Singletons))
	assert.Equal(t, "SystemClock", app.Singletons[0].Var.Name())
	assertDiagnostic(t, app, "singleton Bad must be a stateless struct value")
}

func TestLoadFactory(t *testing.T) {
	app := loadTestCode(t, `
package main

type User struct{ name string }

//inject:factory
type UserFactory interface {
	Create(name string) *User
}

//inject:factory
type TooMany interface {
	A() int
	B() int
}
`)
	assert.Equal(t, 1, len(app.Factories))
	assert.Equal(t, "Create", app.Factories[0].Method.Name())
	assertDiagnostic(t, app, "factory TooMany must declare exactly one method, has 2")
}

func TestMalformedDirectiveIsSoft(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:provides on a function
func Bogus() int { return 0 }

//inject:component
type App struct{}
`)
	// The bad declaration is reported but the rest of the package loads.
	assert.True(t, app.Diags.HasErrors())
	assert.Equal(t, 1, len(app.Components))
}

func TestMembersDepth(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Base struct{}

//inject:provides
func (Base) DB() string { return "base" }

//inject:component
type App struct {
	Base
}

//inject:provides
func (App) DB() string { return "app" }

//inject:provides
func (App) Log() int { return 0 }
`)
	assert.False(t, app.Diags.HasErrors())

	appComp := app.ComponentFor(app.Components[1].Named)
	members := app.Members(appComp.Named)

	byName := map[string][]int{}
	for _, m := range members {
		byName[m.Func.Name()] = append(byName[m.Func.Name()], m.Depth)
	}
	assert.Equal(t, []int{0, 1}, byName["DB"])
	assert.Equal(t, []int{0}, byName["Log"])
}

func TestMembersFromEmbeddedInterface(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Abstract interface {
	Value() int
}

//inject:component
type App struct {
	Abstract
}
`)
	assert.False(t, app.Diags.HasErrors())
	members := app.Members(app.Components[1].Named)
	assert.Equal(t, 1, len(members))
	assert.Equal(t, "Value", members[0].Func.Name())
	assert.Equal(t, 1, members[0].Depth)
}

func TestScopeMarkers(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component scope=Session
type SessionScope struct{}

//inject:component
type App struct {
	SessionScope
}
`)
	markers := app.ScopeMarkers(app.Components[1].Named)
	assert.Equal(t, 1, len(markers))
	assert.Equal(t, "Session", markers[0].Scope)
}

func TestParentFields(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Parent struct{}

//inject:component
type Child struct {
	Parent *Parent
	other  int
}
`)
	child := app.Components[1]
	parents := app.ParentFields(child)
	assert.Equal(t, 1, len(parents))
	assert.Equal(t, "Parent", parents[0].Name)
	assert.Equal(t, "test.Parent", parents[0].Component.Name())
}

func TestMethodDirective(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:provides qualifier=primary
func (App) DB() string { return "" }
`)
	members := app.Members(app.Components[0].Named)
	assert.Equal(t, 1, len(members))
	directive, ok := app.MethodDirective(members[0].Func).(*directiveparser.DirectiveProvides)
	assert.True(t, ok)
	assert.Equal(t, "primary", directive.Qualifier)
}

func assertDiagnostic(t *testing.T, app *App, fragment string) {
	t.Helper()
	for _, diag := range app.Diags.All() {
		if strings.Contains(diag.Message, fragment) {
			return
		}
	}
	t.Fatalf("no diagnostic containing %q in %v", fragment, app.Diags.All())
}

func loadTestCode(t *testing.T, code string) *App {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("..", ".."))
	assert.NoError(t, err)

	tmpDir := t.TempDir()
	goMod := fmt.Sprintf(`module test

go 1.24

require github.com/scottjasso/kotlin-inject v0.0.0

replace github.com/scottjasso/kotlin-inject => %s
`, root)
	assert.NoError(t, os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte(goMod), 0600))
	assert.NoError(t, os.WriteFile(filepath.Join(tmpDir, "main.go"), []byte(code), 0600))

	oldDir, err := os.Getwd()
	assert.NoError(t, err)
	assert.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })

	app, err := Load(".")
	assert.NoError(t, err)
	return app
}
