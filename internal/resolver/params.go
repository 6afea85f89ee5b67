package resolver

import (
	"go/types"
	"strconv"
	"strings"

	"github.com/scottjasso/kotlin-inject/internal/directiveparser"
	"github.com/scottjasso/kotlin-inject/internal/model"
)

// paramSpec abstracts over the per-parameter attributes of the different
// directive kinds during parameter resolution.
type paramSpec struct {
	assisted  func(name string) bool
	optional  func(name string) bool
	qualifier func(name string) string
	// explicit is true when the directive carries any assisted markers,
	// selecting strict declaration-order argument consumption.
	explicit bool
}

func providesSpec(d *directiveparser.DirectiveProvides) paramSpec {
	return paramSpec{
		assisted:  func(string) bool { return false },
		optional:  func(name string) bool { return contains(d.Optional, name) },
		qualifier: d.ParamQualifierFor,
	}
}

func injectSpec(d *directiveparser.DirectiveInject) paramSpec {
	return paramSpec{
		assisted:  d.IsAssisted,
		optional:  func(name string) bool { return contains(d.Optional, name) },
		qualifier: d.ParamQualifierFor,
		explicit:  len(d.Assisted) > 0,
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// resolveParams builds the parameter plans for a provides method or
// constructor call. Parameters marked assisted consume the context's
// positional arguments strictly in declaration order; everything else is
// resolved from the graph. Without assisted markers a deprecated fallback
// matches trailing arguments to trailing parameters by assignability.
func (e *Engine) resolveParams(key TypeKey, fn *types.Func, spec paramSpec, scope string, ctx *Context) ([]Param, error) {
	sig := fn.Signature()
	tuple := sig.Params()
	params := make([]Param, 0, tuple.Len())

	if spec.explicit {
		if scope != "" {
			return nil, e.failf(key, "%s: scoped bindings cannot take caller-supplied parameters", fn.FullName())
		}
		next := 0
		for i := range tuple.Len() {
			p := tuple.At(i)
			name := paramName(p, i)
			if spec.assisted(name) {
				if next >= len(ctx.Args) {
					if spec.optional(name) {
						params = append(params, Param{Name: name, Type: p.Type(), Omitted: true})
						continue
					}
					return nil, e.failf(key, "%s: no argument supplied for assisted parameter %q", fn.FullName(), name)
				}
				arg := ctx.Args[next]
				if !model.Assignable(arg.Type, p.Type()) {
					return nil, e.failf(key, "%s: mismatched parameters: argument %q (%s) is not assignable to assisted parameter %q (%s)",
						fn.FullName(), arg.Name, arg.Type, name, p.Type())
				}
				next++
				params = append(params, Param{
					Name: name,
					Type: p.Type(),
					Ref:  &Ref{Key: Key(p.Type()), Result: &ArgRef{Name: arg.Name, Type: arg.Type}},
				})
				continue
			}
			param, err := e.resolveGraphParam(key, fn, name, p.Type(), spec, ctx)
			if err != nil {
				return nil, err
			}
			params = append(params, param)
		}
		if next < len(ctx.Args) {
			leftover := make([]string, 0, len(ctx.Args)-next)
			for _, arg := range ctx.Args[next:] {
				leftover = append(leftover, arg.Name)
			}
			return nil, e.failf(key, "%s: mismatched parameters: arguments %s were not consumed by any assisted parameter",
				fn.FullName(), strings.Join(leftover, ", "))
		}
		return params, nil
	}

	// Legacy positional matching: walk parameters and arguments from the end,
	// pairing them while assignable. Matched parameters take the argument
	// directly instead of a graph resolution.
	matched := map[int]Arg{}
	ai := len(ctx.Args) - 1
	for i := tuple.Len() - 1; i >= 0 && ai >= 0; i-- {
		if !model.Assignable(ctx.Args[ai].Type, tuple.At(i).Type()) {
			break
		}
		matched[i] = ctx.Args[ai]
		ai--
	}
	if len(matched) > 0 && scope != "" {
		return nil, e.failf(key, "%s: scoped bindings cannot take caller-supplied parameters", fn.FullName())
	}

	for i := range tuple.Len() {
		p := tuple.At(i)
		name := paramName(p, i)
		if arg, ok := matched[i]; ok {
			e.diags.Warnf(e.app.Position(fn),
				"%s: implicit positional matching of parameter %q is deprecated, mark it with assisted=", fn.FullName(), name)
			params = append(params, Param{
				Name: name,
				Type: p.Type(),
				Ref:  &Ref{Key: Key(p.Type()), Result: &ArgRef{Name: arg.Name, Type: arg.Type}},
			})
			continue
		}
		param, err := e.resolveGraphParam(key, fn, name, p.Type(), spec, ctx)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}

// resolveGraphParam resolves a single non-assisted parameter from the graph,
// honoring its qualifier and optional markers.
func (e *Engine) resolveGraphParam(key TypeKey, fn *types.Func, name string, typ types.Type, spec paramSpec, ctx *Context) (Param, error) {
	paramKey := QualifiedKey(typ, spec.qualifier(name))
	child, err := e.resolve(paramKey, ctx)
	if err != nil {
		return Param{}, err
	}
	if child == nil {
		if spec.optional(name) {
			return Param{Name: name, Type: typ, Omitted: true}, nil
		}
		return Param{}, e.failf(paramKey, "%s: no binding found for parameter %q (%s)", fn.FullName(), name, paramKey)
	}
	return Param{Name: name, Type: typ, Ref: &Ref{Key: paramKey, Result: child}}, nil
}

func paramName(p *types.Var, i int) string {
	if p.Name() == "" || p.Name() == "_" {
		return "arg" + strconv.Itoa(i)
	}
	return p.Name()
}
