// Package codewriter provides an indentation and import tracking writer for
// generated Go source.
package codewriter

import (
	"bytes"
	"fmt"
	"sort"
)

// Writer accumulates the body of a generated file. Imports registered while
// writing are emitted as a sorted import block when the file is rendered.
type Writer struct {
	pkg     string
	header  []string
	imports map[string]bool
	body    bytes.Buffer
	indent  string
}

// New creates a Writer for a file in the named package.
func New(pkg string) *Writer {
	return &Writer{pkg: pkg, imports: map[string]bool{}}
}

// Header adds a formatted line emitted before the package clause, for
// generated-code markers and build tags.
func (w *Writer) Header(format string, args ...any) {
	w.header = append(w.header, fmt.Sprintf(format, args...))
}

// Import registers an import path for the rendered file. Registering the same
// path repeatedly is a no-op.
func (w *Writer) Import(path string) {
	if path != "" {
		w.imports[path] = true
	}
}

// L writes a formatted line at the current indentation.
func (w *Writer) L(format string, args ...any) {
	w.body.WriteString(w.indent)
	fmt.Fprintf(&w.body, format, args...)
	w.body.WriteByte('\n')
}

// W writes formatted text verbatim, without indentation or a trailing
// newline.
func (w *Writer) W(format string, args ...any) {
	fmt.Fprintf(&w.body, format, args...)
}

// Indent writes the current indentation, for continuing a line started with W.
func (w *Writer) Indent() {
	w.body.WriteString(w.indent)
}

// Indentation returns the current indentation prefix.
func (w *Writer) Indentation() string {
	return w.indent
}

// In runs fn with the indentation increased by one level.
func (w *Writer) In(fn func(w *Writer)) {
	w.indent += "\t"
	fn(w)
	w.indent = w.indent[:len(w.indent)-1]
}

// Fork returns a Writer with a fresh body that shares this Writer's import
// set and starts at the current indentation. Useful for rendering a nested
// block into a string before inlining it.
func (w *Writer) Fork() *Writer {
	return &Writer{pkg: w.pkg, imports: w.imports, indent: w.indent}
}

// BodyString returns only the accumulated body, without the package clause or
// imports.
func (w *Writer) BodyString() string {
	return w.body.String()
}

// Bytes renders the complete file: package clause, import block, body.
func (w *Writer) Bytes() []byte {
	var out bytes.Buffer
	for _, line := range w.header {
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if len(w.header) > 0 {
		out.WriteByte('\n')
	}
	fmt.Fprintf(&out, "package %s\n\n", w.pkg)
	if len(w.imports) > 0 {
		paths := make([]string, 0, len(w.imports))
		for path := range w.imports {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		out.WriteString("import (\n")
		for _, path := range paths {
			fmt.Fprintf(&out, "\t%q\n", path)
		}
		out.WriteString(")\n\n")
	}
	out.Write(w.body.Bytes())
	return out.Bytes()
}

// String renders the complete file as a string.
func (w *Writer) String() string {
	return string(w.Bytes())
}
