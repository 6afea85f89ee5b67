package resolver

import (
	"go/types"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestCollectDirectBindings(t *testing.T) {
	app := loadTestCode(t, `
package main

type DB struct{}

//inject:component
type App struct{}

//inject:provides
func (App) DB() *DB { return &DB{} }

//inject:provides qualifier=replica
func (App) Replica() *DB { return &DB{} }
`)
	result := NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.False(t, app.Diags.HasErrors())

	primary := result.Direct["*test.DB"]
	assert.NotZero(t, primary)
	assert.Equal(t, "DB", primary.Method.Name())

	replica := result.Direct["@replica *test.DB"]
	assert.NotZero(t, replica)
	assert.Equal(t, "replica", replica.Key.Qualifier)
}

func TestCollectDuplicateReportsBothDeclarations(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:provides
func (App) A() string { return "a" }

//inject:provides
func (App) B() string { return "b" }
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.Equal(t, 2, countDiagnostics(app, "duplicate binding for string"))
}

func TestCollectProvidesValidation(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:provides
func (App) nothing() {}

//inject:provides
func (App) Two() (int, string) { return 0, "" }
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assertDiagnostic(t, app, "provides member nothing must be exported")
	assertDiagnostic(t, app, "provides member Two must return exactly one value")
}

func TestCollectOverrideShadowing(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Base struct{}

//inject:provides scope=Session
func (Base) DB() string { return "base" }

//inject:component scope=Session
type App struct {
	Base
}

//inject:provides
func (App) DB() string { return "app" }
`)
	result := NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.False(t, app.Diags.HasErrors())

	member := result.Direct["string"]
	assert.NotZero(t, member)
	// The outer declaration wins, the shadowed declaration's scope is merged.
	assert.Equal(t, "test.App", types.TypeString(member.Method.Signature().Recv().Type(), nil))
	assert.Equal(t, "Session", member.Scope)
}

func TestCollectAmbiguousSameDepth(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Left struct{}

//inject:provides
func (Left) Val() int { return 1 }

//inject:component
type Right struct{}

//inject:provides
func (Right) Val() int { return 2 }

//inject:component
type App struct {
	Left
	Right
}
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assertDiagnostic(t, app, "member Val is ambiguous between")
}

func TestCollectScopeDoubleClaim(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component scope=Session
type First struct{}

//inject:component scope=Session
type Second struct {
	Parent *First
}
`)
	NewCollector(app).Collect(componentNamed(t, app, "Second"))
	assertDiagnostic(t, app, "claims scope Session already owned by test.First")
}

func TestCollectConflictingScopeMarkers(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component scope=A
type MarkerA struct{}

//inject:component scope=B
type MarkerB struct{}

//inject:component
type App struct {
	MarkerA
	MarkerB
}
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assertDiagnostic(t, app, "conflicting scope markers")
}

func TestCollectMultibindings(t *testing.T) {
	app := loadTestCode(t, `
package main

import "github.com/scottjasso/kotlin-inject"

//inject:component
type App struct{}

//inject:provides into=set
func (App) One() string { return "one" }

//inject:provides into=set multi
func (App) Rest() []string { return nil }

//inject:provides into=map
func (App) Entry() inject.Pair[string, int] { return inject.Entry("a", 1) }

//inject:provides into=map multi
func (App) Entries() map[string]int { return nil }
`)
	result := NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.False(t, app.Diags.HasErrors())

	set := result.Containers["[]string"]
	assert.Equal(t, 2, len(set))
	assert.False(t, set[0].Multiple)
	assert.True(t, set[1].Multiple)

	m := result.Containers["map[string]int"]
	assert.Equal(t, 2, len(m))
}

func TestCollectMultibindingShapeErrors(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:provides into=set multi
func (App) NotSlice() string { return "" }

//inject:provides into=map
func (App) NotPair() string { return "" }

//inject:provides into=map multi
func (App) NotMap() string { return "" }
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assertDiagnostic(t, app, "with into=set multi must return a slice")
	assertDiagnostic(t, app, "with into=map must return an inject.Pair")
	assertDiagnostic(t, app, "with into=map multi must return a map")
}

func TestCollectDirectVersusContainerDuplicate(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct{}

//inject:provides into=set
func (App) One() string { return "one" }

//inject:provides
func (App) All() []string { return nil }
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.Equal(t, 2, countDiagnostics(app, "duplicate binding for []string"))
}

func TestCollectAbstractProvidesInConcreteComponent(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Bindings interface {
	//inject:provides
	DB() string
}

//inject:component
type App struct {
	Bindings
}
`)
	NewCollector(app).Collect(componentNamed(t, app, "App"))
	assertDiagnostic(t, app, "abstract provides member DB in concrete component test.App has no implementation")
}

func TestCollectParentDuplicateAcrossLevels(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Parent struct{}

//inject:provides
func (Parent) Val() int { return 1 }

//inject:component
type Child struct {
	Parent *Parent
}

//inject:provides
func (Child) Val() int { return 2 }
`)
	NewCollector(app).Collect(componentNamed(t, app, "Child"))
	assert.Equal(t, 2, countDiagnostics(app, "duplicate binding for int"))
}

func TestCollectJointContributionAcrossLevels(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Parent struct{}

//inject:provides into=set
func (Parent) FromParent() string { return "p" }

//inject:component
type Child struct {
	Parent *Parent
}

//inject:provides into=set
func (Child) FromChild() string { return "c" }
`)
	result := NewCollector(app).Collect(componentNamed(t, app, "Child"))
	assert.False(t, app.Diags.HasErrors())

	contributors := result.FindContainers(SetKey{Elem: result.Containers["[]string"][0].Key.(SetKey).Elem})
	assert.Equal(t, 2, len(contributors))
}

func TestCollectProviderAccessors(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type App struct {
	Exposed
}

//inject:component
type Exposed interface {
	//inject:provider
	DB() string
}
`)
	result := NewCollector(app).Collect(componentNamed(t, app, "App"))
	assert.False(t, app.Diags.HasErrors())
	assert.NotZero(t, result.Providers["string"])
}

func TestEntryPoints(t *testing.T) {
	app := loadTestCode(t, `
package main

//inject:component
type Accessors interface {
	DB() string

	//inject:provider
	Exposed() int
}

//inject:component
type App struct {
	Accessors
}

//inject:provides
func (App) ProvideDB() string { return "" }

//inject:provides
func (App) ProvideInt() int { return 0 }
`)
	collector := NewCollector(app)
	collector.Collect(componentNamed(t, app, "App"))
	eps := collector.EntryPoints(componentNamed(t, app, "App"))
	assert.Equal(t, 2, len(eps))
	assert.Equal(t, "DB", eps[0].Method.Name())
	assert.False(t, eps[0].Provider)
	assert.Equal(t, "Exposed", eps[1].Method.Name())
	assert.True(t, eps[1].Provider)
}
