package projection

import (
	"fmt"

	"github.com/orneryd/nornicproj/pkg/eval"
)

// AddType returns the static result type of lhs + rhs.
//
//	Integer + Integer          -> Integer
//	Integer/Float pairs        -> Float
//	anything involving Text    -> Text
//	everything else            -> Object (generic runtime add)
func AddType(lhs, rhs Type) Type {
	switch {
	case lhs == TypeInteger && rhs == TypeInteger:
		return TypeInteger
	case isNumeric(lhs) && isNumeric(rhs):
		return TypeFloat
	case lhs == TypeText || rhs == TypeText:
		return TypeText
	}
	return TypeObject
}

// SubType returns the static result type of lhs - rhs.
//
//	Integer - Integer          -> Integer
//	Integer/Float pairs        -> Float
//	everything else            -> Number (generic runtime subtract)
func SubType(lhs, rhs Type) Type {
	switch {
	case lhs == TypeInteger && rhs == TypeInteger:
		return TypeInteger
	case isNumeric(lhs) && isNumeric(rhs):
		return TypeFloat
	}
	return TypeNumber
}

func isNumeric(t Type) bool { return t == TypeInteger || t == TypeFloat }

// CoerceAdd composes lhs + rhs, specialized on the operands' static types.
func CoerceAdd(lhs, rhs Symbol) Symbol {
	l, r := lhs.Expr, rhs.Expr

	switch typ := AddType(lhs.Type, rhs.Type); typ {
	case TypeInteger:
		return NewSymbol(NewExpr(binary(l.Source, "+", r.Source), func(c *Ctx) any {
			return asInt(l.Eval(c)) + asInt(r.Eval(c))
		}), typ)

	case TypeFloat:
		return NewSymbol(NewExpr(binary(asFloatSource(lhs), "+", asFloatSource(rhs)), func(c *Ctx) any {
			return asFloat(l.Eval(c)) + asFloat(r.Eval(c))
		}), typ)

	case TypeText:
		return NewSymbol(NewExpr(binary(asTextSource(lhs), "+", asTextSource(rhs)), func(c *Ctx) any {
			return asText(lhs.Type, l.Eval(c)) + asText(rhs.Type, r.Eval(c))
		}), typ)

	default:
		return NewSymbol(NewExpr(fmt.Sprintf("f.Add(%s, %s)", l.Source, r.Source), func(c *Ctx) any {
			return c.Add(l.Eval(c), r.Eval(c))
		}), TypeObject)
	}
}

// CoerceSub composes lhs - rhs, specialized on the operands' static types.
func CoerceSub(lhs, rhs Symbol) Symbol {
	l, r := lhs.Expr, rhs.Expr

	switch typ := SubType(lhs.Type, rhs.Type); typ {
	case TypeInteger:
		return NewSymbol(NewExpr(binary(l.Source, "-", r.Source), func(c *Ctx) any {
			return asInt(l.Eval(c)) - asInt(r.Eval(c))
		}), typ)

	case TypeFloat:
		return NewSymbol(NewExpr(binary(asFloatSource(lhs), "-", asFloatSource(rhs)), func(c *Ctx) any {
			return asFloat(l.Eval(c)) - asFloat(r.Eval(c))
		}), typ)

	default:
		return NewSymbol(NewExpr(fmt.Sprintf("f.Subtract(%s, %s)", l.Source, r.Source), func(c *Ctx) any {
			return c.Subtract(l.Eval(c), r.Eval(c))
		}), TypeNumber)
	}
}

func binary(l, op, r string) string {
	return "(" + l + " " + op + " " + r + ")"
}

func asFloatSource(s Symbol) string {
	if s.Type == TypeInteger {
		return "float64(" + s.Expr.Source + ")"
	}
	return s.Expr.Source
}

func asTextSource(s Symbol) string {
	if s.Type == TypeText {
		return s.Expr.Source
	}
	return "eval.Text(" + s.Expr.Source + ")"
}

// Statically typed operands only fail to match their Go type when the frame
// already holds an error; the zero value is discarded in that case.

func asInt(v any) int64 {
	i, _ := v.(int64)
	return i
}

func asFloat(v any) float64 {
	f, _ := eval.ToFloat64(v)
	return f
}

func asText(t Type, v any) string {
	if t == TypeText {
		s, _ := v.(string)
		return s
	}
	return eval.Text(v)
}
