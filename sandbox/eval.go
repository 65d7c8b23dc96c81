package sandbox

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"go.uber.org/zap"

	"github.com/flowforge/flowforge/types"
)

// Evaluator parses and evaluates expressions in an isolated scope. It is
// stateless and safe for concurrent use.
type Evaluator struct {
	logger *zap.Logger
	funcs  map[string]function.Function
}

// NewEvaluator creates an expression evaluator.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger: logger.With(zap.String("component", "sandbox")),
		funcs: map[string]function.Function{
			"has_key":  hasKeyFunc,
			"contains": containsFunc,
			"length":   stdlib.LengthFunc,
			"lower":    stdlib.LowerFunc,
			"upper":    stdlib.UpperFunc,
			"coalesce": stdlib.CoalesceFunc,
		},
	}
}

// Evaluate parses expr and evaluates it against vars, returning a plain Go
// value.
func (e *Evaluator) Evaluate(expr string, vars map[string]any) (any, error) {
	val, err := e.eval(expr, vars)
	if err != nil {
		return nil, err
	}
	return ctyToNative(val)
}

// EvaluateBool evaluates expr and coerces the result to a boolean using
// truthiness rules: false, null, zero, "" and empty collections are false.
func (e *Evaluator) EvaluateBool(expr string, vars map[string]any) (bool, error) {
	val, err := e.eval(expr, vars)
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

func (e *Evaluator) eval(expr string, vars map[string]any) (cty.Value, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "expr", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, types.NewError(types.ErrSandboxViolation,
			fmt.Sprintf("parse expression: %s", diags.Error()))
	}

	scope := make(map[string]cty.Value, len(vars))
	for name, v := range vars {
		cv, err := nativeToCty(v)
		if err != nil {
			e.logger.Debug("skipping unconvertible variable",
				zap.String("name", name), zap.Error(err))
			continue
		}
		scope[name] = cv
	}

	val, diags := parsed.Value(&hcl.EvalContext{
		Variables: scope,
		Functions: e.funcs,
	})
	if diags.HasErrors() {
		return cty.NilVal, types.NewError(types.ErrSandboxViolation,
			fmt.Sprintf("evaluate expression: %s", diags.Error()))
	}
	return val, nil
}

func truthy(v cty.Value) bool {
	if v.IsNull() {
		return false
	}
	ty := v.Type()
	switch {
	case ty == cty.Bool:
		return v.True()
	case ty == cty.String:
		return v.AsString() != ""
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f != 0
	case ty.IsObjectType() || ty.IsMapType() || ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		return v.LengthInt() > 0
	default:
		return true
	}
}

var hasKeyFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "collection", Type: cty.DynamicPseudoType, AllowNull: true},
		{Name: "key", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		coll, key := args[0], args[1]
		if coll.IsNull() {
			return cty.False, nil
		}
		ty := coll.Type()
		switch {
		case ty.IsObjectType():
			return cty.BoolVal(ty.HasAttribute(key.AsString())), nil
		case ty.IsMapType():
			return coll.HasIndex(key), nil
		default:
			return cty.False, nil
		}
	},
})

var containsFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "collection", Type: cty.DynamicPseudoType, AllowNull: true},
		{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		coll, want := args[0], args[1]
		if coll.IsNull() {
			return cty.False, nil
		}
		ty := coll.Type()
		switch {
		case ty == cty.String:
			if want.Type() != cty.String || want.IsNull() {
				return cty.False, nil
			}
			return cty.BoolVal(strings.Contains(coll.AsString(), want.AsString())), nil
		case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
			for it := coll.ElementIterator(); it.Next(); {
				_, elem := it.Element()
				eq := elem.Equals(want)
				if eq.IsKnown() && eq.True() {
					return cty.True, nil
				}
			}
			return cty.False, nil
		default:
			return cty.False, nil
		}
	},
})
