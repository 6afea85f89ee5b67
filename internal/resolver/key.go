// Package resolver turns the declarative binding graph of a component into
// concrete construction plans. It contains the binding collector, the
// resolution engine, the cycle detector and the construction-plan result
// model.
package resolver

import (
	"fmt"
	"go/types"

	"github.com/scottjasso/kotlin-inject/internal/model"
)

// TypeKey is the identity of a requested binding: the structural type plus an
// optional qualifier. Two keys are equal when their types are identical and
// their qualifiers match.
type TypeKey struct {
	Type      types.Type
	Qualifier string
}

// Key constructs an unqualified TypeKey.
func Key(t types.Type) TypeKey { return TypeKey{Type: t} }

// QualifiedKey constructs a TypeKey with a qualifier.
func QualifiedKey(t types.Type, qualifier string) TypeKey {
	return TypeKey{Type: t, Qualifier: qualifier}
}

// String returns the canonical form of the key, used for table lookup.
func (k TypeKey) String() string {
	s := types.TypeString(k.Type, nil)
	if k.Qualifier != "" {
		return "@" + k.Qualifier + " " + s
	}
	return s
}

// Equal reports structural + qualifier equality.
func (k TypeKey) Equal(other TypeKey) bool {
	return k.Qualifier == other.Qualifier && types.Identical(k.Type, other.Type)
}

// ContainerKey is the identity of a multibinding aggregation.
//
//sumtype:decl
type ContainerKey interface {
	containerKey()
	// Aggregate returns the TypeKey of the aggregated container result.
	Aggregate() TypeKey
	String() string
}

// SetKey aggregates individual contributors into a []Elem.
type SetKey struct {
	Elem      types.Type
	Qualifier string
}

func (SetKey) containerKey() {}

func (k SetKey) Aggregate() TypeKey {
	return TypeKey{Type: types.NewSlice(k.Elem), Qualifier: k.Qualifier}
}

func (k SetKey) String() string {
	return fmt.Sprintf("set<%s>", k.Aggregate())
}

// MapKey aggregates individual contributors into a map[Key]Value.
type MapKey struct {
	Key       types.Type
	Value     types.Type
	Qualifier string
}

func (MapKey) containerKey() {}

func (k MapKey) Aggregate() TypeKey {
	return TypeKey{Type: types.NewMap(k.Key, k.Value), Qualifier: k.Qualifier}
}

func (k MapKey) String() string {
	return fmt.Sprintf("map<%s>", k.Aggregate())
}

// ScopedComponent pairs a scope-owning component with the accessor path
// needed to reach its instance store from the root being generated.
type ScopedComponent struct {
	Component *model.Component
	Accessor  string
}

func (s ScopedComponent) String() string {
	if s.Accessor == "" {
		return s.Component.Name()
	}
	return s.Component.Name() + " (via ." + s.Accessor + ")"
}
