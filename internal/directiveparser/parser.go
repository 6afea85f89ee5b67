// Package directiveparser implements a parser for kinject's compiler directives.
package directiveparser

import (
	"strings"

	"github.com/alecthomas/errors"
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	annotationParser = participle.MustBuild[annotation](
		participle.Lexer(directiveLexer),
		participle.Union[Directive](
			&DirectiveComponent{},
			&DirectiveProvides{},
			&DirectiveProvider{},
			&DirectiveInject{},
			&DirectiveSingleton{},
			&DirectiveFactory{},
		),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
	)
	directiveLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
		{Name: "String", Pattern: `"(\\.|[^"])*"`},
		{Name: "Punct", Pattern: `[=:,]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})
)

type annotation struct {
	Directive Directive `parser:"'inject' ':' @@"`
}

// Directive is the set of kinject compiler directives.
type Directive interface {
	directive()
	// Validate the directive.
	Validate() error
	String() string
}

// ParamQualifier attaches a qualifier to a named parameter of the annotated
// function, e.g. qualifiers=db:primary,cache:shared.
type ParamQualifier struct {
	Param     string `parser:"@Ident ':'"`
	Qualifier string `parser:"@Ident"`
}

func (p *ParamQualifier) String() string { return p.Param + ":" + p.Qualifier }

// DirectiveComponent marks a struct or interface type as a component:
//
//	//inject:component [scope=<Name>]
type DirectiveComponent struct {
	Scope string `parser:"'component' ('scope' '=' @Ident)?"`
}

func (d *DirectiveComponent) directive() {}
func (d *DirectiveComponent) String() string {
	out := "inject:component"
	if d.Scope != "" {
		out += " scope=" + d.Scope
	}
	return out
}
func (d *DirectiveComponent) Validate() error { return nil }

// DirectiveProvides marks a component method as a binding:
//
//	//inject:provides [into=set|into=map] [multi] [scope=<Name>] [qualifier=<q>] [qualifiers=<p:q,...>] [optional=<p,...>]
type DirectiveProvides struct {
	IntoSet    bool              `parser:"'provides' ( 'into' '=' ( @'set'"`
	IntoMap    bool              `parser:"                        | @'map' )"`
	Multi      bool              `parser:"           | @'multi'"`
	Scope      string            `parser:"           | 'scope' '=' @Ident"`
	Qualifier  string            `parser:"           | 'qualifier' '=' @Ident"`
	Qualifiers []*ParamQualifier `parser:"           | 'qualifiers' '=' @@ (',' @@)*"`
	Optional   []string          `parser:"           | 'optional' '=' @Ident (',' @Ident)* )*"`
}

func (d *DirectiveProvides) directive() {}
func (d *DirectiveProvides) String() string {
	out := "inject:provides"
	switch {
	case d.IntoSet:
		out += " into=set"
	case d.IntoMap:
		out += " into=map"
	}
	if d.Multi {
		out += " multi"
	}
	if d.Scope != "" {
		out += " scope=" + d.Scope
	}
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	if len(d.Qualifiers) > 0 {
		quals := make([]string, len(d.Qualifiers))
		for i, q := range d.Qualifiers {
			quals[i] = q.String()
		}
		out += " qualifiers=" + strings.Join(quals, ",")
	}
	if len(d.Optional) > 0 {
		out += " optional=" + strings.Join(d.Optional, ",")
	}
	return out
}
func (d *DirectiveProvides) Validate() error {
	if d.IntoSet && d.IntoMap {
		return errors.New("into=set and into=map are mutually exclusive")
	}
	if d.Multi && !d.IntoSet && !d.IntoMap {
		return errors.New("multi requires into=set or into=map")
	}
	return nil
}

// ParamQualifierFor returns the qualifier attached to the named parameter, or "".
func (d *DirectiveProvides) ParamQualifierFor(param string) string {
	return qualifierFor(d.Qualifiers, param)
}

// DirectiveProvider marks a component method as a provider accessor, exposing
// a binding whose concrete source is otherwise unreachable from the caller:
//
//	//inject:provider [qualifier=<q>]
type DirectiveProvider struct {
	Declared  bool   `parser:"@'provider'"`
	Qualifier string `parser:"('qualifier' '=' @Ident)?"`
}

func (d *DirectiveProvider) directive() {}
func (d *DirectiveProvider) String() string {
	out := "inject:provider"
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	return out
}
func (d *DirectiveProvider) Validate() error { return nil }

// DirectiveInject marks a constructor function as injectable:
//
//	//inject:inject [scope=<Name>] [qualifier=<q>] [assisted=<p,...>] [qualifiers=<p:q,...>] [optional=<p,...>]
type DirectiveInject struct {
	Scope      string            `parser:"'inject' ( 'scope' '=' @Ident"`
	Qualifier  string            `parser:"         | 'qualifier' '=' @Ident"`
	Assisted   []string          `parser:"         | 'assisted' '=' @Ident (',' @Ident)*"`
	Qualifiers []*ParamQualifier `parser:"         | 'qualifiers' '=' @@ (',' @@)*"`
	Optional   []string          `parser:"         | 'optional' '=' @Ident (',' @Ident)* )*"`
}

func (d *DirectiveInject) directive() {}
func (d *DirectiveInject) String() string {
	out := "inject:inject"
	if d.Scope != "" {
		out += " scope=" + d.Scope
	}
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	if len(d.Assisted) > 0 {
		out += " assisted=" + strings.Join(d.Assisted, ",")
	}
	if len(d.Qualifiers) > 0 {
		quals := make([]string, len(d.Qualifiers))
		for i, q := range d.Qualifiers {
			quals[i] = q.String()
		}
		out += " qualifiers=" + strings.Join(quals, ",")
	}
	if len(d.Optional) > 0 {
		out += " optional=" + strings.Join(d.Optional, ",")
	}
	return out
}
func (d *DirectiveInject) Validate() error { return nil }

// IsAssisted reports whether the named parameter is marked caller-supplied.
func (d *DirectiveInject) IsAssisted(param string) bool {
	for _, p := range d.Assisted {
		if p == param {
			return true
		}
	}
	return false
}

// ParamQualifierFor returns the qualifier attached to the named parameter, or "".
func (d *DirectiveInject) ParamQualifierFor(param string) string {
	return qualifierFor(d.Qualifiers, param)
}

// DirectiveSingleton marks a package-level var as a stateless singleton
// instance binding:
//
//	//inject:singleton [qualifier=<q>]
type DirectiveSingleton struct {
	Declared  bool   `parser:"@'singleton'"`
	Qualifier string `parser:"('qualifier' '=' @Ident)?"`
}

func (d *DirectiveSingleton) directive() {}
func (d *DirectiveSingleton) String() string {
	out := "inject:singleton"
	if d.Qualifier != "" {
		out += " qualifier=" + d.Qualifier
	}
	return out
}
func (d *DirectiveSingleton) Validate() error { return nil }

// DirectiveFactory marks a single-method interface as an assisted factory:
//
//	//inject:factory
type DirectiveFactory struct {
	Declared bool `parser:"@'factory'"`
}

func (d *DirectiveFactory) directive()      {}
func (d *DirectiveFactory) String() string  { return "inject:factory" }
func (d *DirectiveFactory) Validate() error { return nil }

func qualifierFor(quals []*ParamQualifier, param string) string {
	for _, q := range quals {
		if q.Param == param {
			return q.Qualifier
		}
	}
	return ""
}

// Parse a directive of the form "inject:<directive> ...".
func Parse(text string) (Directive, error) {
	ann, err := annotationParser.ParseString("", text)
	if err != nil {
		return nil, errors.Errorf("invalid directive %q: %w", text, err)
	}
	if err := ann.Directive.Validate(); err != nil {
		return nil, errors.Errorf("invalid directive %q: %w", text, err)
	}
	return ann.Directive, nil
}
