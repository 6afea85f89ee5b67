package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/scottjasso/kotlin-inject/internal/model"
)

func loadTestCode(t *testing.T, code string) *model.App {
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

	app, err := model.Load(".")
	assert.NoError(t, err)
	return app
}

// componentNamed finds a loaded component by its bare type name.
func componentNamed(t *testing.T, app *model.App, name string) *model.Component {
	t.Helper()
	for _, comp := range app.Components {
		if comp.Named.Obj().Name() == name {
			return comp
		}
	}
	t.Fatalf("no component named %s", name)
	return nil
}

// resolveEntry collects the component's bindings and resolves the named
// accessor method's return type, mirroring what generation does.
func resolveEntry(t *testing.T, app *model.App, compName, accessor string) (TypeResult, error) {
	t.Helper()
	comp := componentNamed(t, app, compName)
	collector := NewCollector(app)
	result := collector.Collect(comp)
	for _, ep := range collector.EntryPoints(comp) {
		if ep.Method.Name() != accessor {
			continue
		}
		sig := ep.Method.Signature()
		args := make([]Arg, sig.Params().Len())
		for i := range sig.Params().Len() {
			p := sig.Params().At(i)
			args[i] = Arg{Name: p.Name(), Type: p.Type()}
		}
		engine := NewEngine(app)
		ctx := NewContext(result).ForEntry(ep.Method).WithArgs(args)
		return engine.Resolve(QualifiedKey(sig.Results().At(0).Type(), ep.Qualifier), ctx)
	}
	t.Fatalf("no accessor named %s on %s", accessor, compName)
	return nil, nil
}

func assertDiagnostic(t *testing.T, app *model.App, fragment string) {
	t.Helper()
	for _, diag := range app.Diags.All() {
		if strings.Contains(diag.Message, fragment) {
			return
		}
	}
	t.Fatalf("no diagnostic containing %q in %v", fragment, app.Diags.All())
}

func countDiagnostics(app *model.App, fragment string) int {
	n := 0
	for _, diag := range app.Diags.All() {
		if strings.Contains(diag.Message, fragment) {
			n++
		}
	}
	return n
}
