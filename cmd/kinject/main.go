package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	"github.com/fatih/color"
	"github.com/kballard/go-shellquote"

	"github.com/scottjasso/kotlin-inject/internal/flock"
	"github.com/scottjasso/kotlin-inject/internal/generator"
	"github.com/scottjasso/kotlin-inject/internal/model"
)

var cli struct {
	Version     kong.VersionFlag   `help:"Print the version and exit."`
	Chdir       kong.ChangeDirFlag `help:"Change to this directory before running." placeholder:"DIR" short:"C"`
	Debug       bool               `help:"Enable debug logging."`
	Tags        []string           `help:"Tags to enable during type analysis (will also be read from $GOFLAGS)." placeholder:"TAG"`
	OutputTags  []string           `help:"Tags to add to generated code."`
	Check       bool               `help:"Report diagnostics without writing generated files."`
	LockTimeout time.Duration      `help:"How long to wait for a concurrent run to finish." default:"30s"`
	Dest        string             `help:"Root package directory to analyse." arg:"" type:"existingdir"`
	Patterns    []string           `help:"Additional package patterns to scan." arg:"" optional:""`
}

func main() {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		version = info.Main.Version
	}
	kctx := kong.Parse(&cli,
		kong.Description("Compile-time dependency injection for Go."),
		kong.Configuration(kongtoml.Loader, ".kinject.toml"),
		kong.Vars{"version": version},
	)

	tags := append(cli.Tags, parseGoTags()...)
	app, err := model.Load(cli.Dest,
		model.WithPatterns(cli.Patterns...),
		model.WithTags(tags...),
		model.WithDebug(cli.Debug),
	)
	kctx.FatalIfErrorf(err)

	files, err := generator.Generate(app,
		generator.WithTags(cli.OutputTags...),
		generator.WithCommand(shellquote.Join(os.Args...)),
	)
	kctx.FatalIfErrorf(err)

	errorColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow)
	for _, diag := range app.Diags.All() {
		if diag.Severity == model.Error {
			errorColor.Fprintf(os.Stderr, "%s: error: ", diag.Pos)
		} else {
			warnColor.Fprintf(os.Stderr, "%s: warning: ", diag.Pos)
		}
		color.New(color.Reset).Fprintln(os.Stderr, diag.Message)
	}
	if app.Diags.HasErrors() {
		kctx.Exit(1)
	}
	if cli.Check {
		kctx.Exit(0)
	}

	for path, content := range files {
		err := writeLocked(path, content, cli.LockTimeout)
		kctx.FatalIfErrorf(err)
	}
}

// writeLocked writes a generated file under an advisory lock so concurrent
// runs against the same tree do not interleave.
func writeLocked(path string, content []byte, timeout time.Duration) error {
	release, err := flock.Acquire(context.Background(), filepath.Join(filepath.Dir(path), ".kinject.lock"), timeout)
	if err != nil {
		return err
	}
	defer release() //nolint
	return os.WriteFile(path, content, 0600)
}

func parseGoTags() []string {
	goFlags := os.Getenv("GOFLAGS")
	words, err := shellquote.Split(goFlags)
	if err != nil {
		return nil
	}
	tags := []string{}
	for _, word := range words {
		if strings.HasPrefix(word, "-tags=") {
			tags = append(tags, strings.Split(word[6:], ",")...)
		} else if strings.HasPrefix(word, "--tags=") {
			tags = append(tags, strings.Split(word[7:], ",")...)
		}
	}
	return tags
}
