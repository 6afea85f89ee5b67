package model

import (
	"go/types"
)

// IsErrorType reports whether t is the builtin error interface.
func IsErrorType(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	return named.Obj().Name() == "error" && named.Obj().Pkg() == nil
}

// IsValidBindingType reports whether t can be the subject of a binding: a
// resolved, value-like type. Invalid (unresolved) types and error are
// rejected.
func IsValidBindingType(t types.Type) bool {
	if t == nil || IsErrorType(t) {
		return false
	}
	if basic, ok := t.(*types.Basic); ok && basic.Kind() == types.Invalid {
		return false
	}
	if tuple, ok := t.(*types.Tuple); ok && tuple.Len() == 0 {
		return false
	}
	return true
}

// IsNilable reports whether the zero value of t is nil.
func IsNilable(t types.Type) bool {
	switch t.Underlying().(type) {
	case *types.Pointer, *types.Interface, *types.Slice, *types.Map, *types.Chan, *types.Signature:
		return true
	}
	return false
}

// Assignable reports whether a value of type src is assignable to dst.
func Assignable(src, dst types.Type) bool {
	if src == nil || dst == nil {
		return false
	}
	return types.AssignableTo(src, dst)
}

// DerefNamed unwraps an optional pointer and returns the named type beneath
// it, if any.
func DerefNamed(t types.Type) (*types.Named, bool) {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	return named, ok
}

// FuncShape reports whether t is callable-shaped: a zero-argument
// single-result function type, or a named alias of one. The second return is
// the named alias when present.
func FuncShape(t types.Type) (*types.Signature, *types.Named, bool) {
	switch t := t.(type) {
	case *types.Signature:
		if t.Params().Len() == 0 && t.Results().Len() == 1 && t.Recv() == nil {
			return t, nil, true
		}
	case *types.Named:
		if sig, ok := t.Underlying().(*types.Signature); ok {
			if sig.Params().Len() == 0 && sig.Results().Len() == 1 {
				return sig, t, true
			}
		}
	}
	return nil, nil, false
}

func runtimeNamed(t types.Type, name string) (*types.Named, bool) {
	named, ok := DerefNamed(t)
	if !ok {
		return nil, false
	}
	obj := named.Obj()
	if obj.Pkg() == nil || obj.Pkg().Path() != RuntimePackage || obj.Name() != name {
		return nil, false
	}
	return named, true
}

// LazyElem reports whether t is the runtime's Lazy[T] (or *Lazy[T]) wrapper,
// returning the element type.
func LazyElem(t types.Type) (types.Type, bool) {
	named, ok := runtimeNamed(t, "Lazy")
	if !ok || named.TypeArgs().Len() != 1 {
		return nil, false
	}
	return named.TypeArgs().At(0), true
}

// PairKV reports whether t is the runtime's Pair[K, V] map-entry shape,
// returning the key and value types.
func PairKV(t types.Type) (types.Type, types.Type, bool) {
	named, ok := runtimeNamed(t, "Pair")
	if !ok || named.TypeArgs().Len() != 2 {
		return nil, nil, false
	}
	return named.TypeArgs().At(0), named.TypeArgs().At(1), true
}

// IsStore reports whether t is the runtime's scoped-binding Store.
func IsStore(t types.Type) bool {
	_, ok := runtimeNamed(t, "Store")
	return ok
}

// SetElem reports whether t is set-shaped ([]T), returning the element type.
func SetElem(t types.Type) (types.Type, bool) {
	slice, ok := t.(*types.Slice)
	if !ok {
		return nil, false
	}
	return slice.Elem(), true
}

// MapKV reports whether t is map-shaped (map[K]V), returning key and value
// types.
func MapKV(t types.Type) (types.Type, types.Type, bool) {
	m, ok := t.(*types.Map)
	if !ok {
		return nil, nil, false
	}
	return m.Key(), m.Elem(), true
}
