package model

import (
	"fmt"
	"go/token"
)

// Severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Diagnostic is a message attached to a specific declaration element.
type Diagnostic struct {
	Pos      token.Position
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Diagnostics collects element-attached errors and warnings. Configuration
// mistakes are reported here rather than aborting, so a single run surfaces
// every problem in the graph.
type Diagnostics struct {
	diags []Diagnostic
}

// Errorf reports an error attached to the element at pos.
func (d *Diagnostics) Errorf(pos token.Position, format string, args ...any) {
	d.diags = append(d.diags, Diagnostic{Pos: pos, Severity: Error, Message: fmt.Sprintf(format, args...)})
}

// Warnf reports a warning attached to the element at pos.
func (d *Diagnostics) Warnf(pos token.Position, format string, args ...any) {
	d.diags = append(d.diags, Diagnostic{Pos: pos, Severity: Warning, Message: fmt.Sprintf(format, args...)})
}

// All returns every collected diagnostic in report order.
func (d *Diagnostics) All() []Diagnostic { return d.diags }

// Errors returns only the error-severity diagnostics.
func (d *Diagnostics) Errors() []Diagnostic {
	var out []Diagnostic
	for _, diag := range d.diags {
		if diag.Severity == Error {
			out = append(out, diag)
		}
	}
	return out
}

// HasErrors reports whether any error-severity diagnostic was collected.
func (d *Diagnostics) HasErrors() bool {
	for _, diag := range d.diags {
		if diag.Severity == Error {
			return true
		}
	}
	return false
}
