// Package formula evaluates restricted arithmetic expressions used by
// credential scoring rules. It is a security boundary: expressions come
// from operator-supplied configuration, so evaluation walks a parsed AST
// and rejects anything outside a small arithmetic whitelist instead of
// interpreting arbitrary code.
package formula

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
)

// Evaluation errors. Callers in authority scoring degrade any of these
// to a per-credential score of 0 rather than aborting the calculation.
var (
	// ErrParse indicates the expression is not valid arithmetic syntax.
	ErrParse = errors.New("formula: parse error")

	// ErrDisallowed indicates the expression uses a construct outside
	// the whitelist (unknown name, unsupported operator, call to a
	// function not on the allow-list).
	ErrDisallowed = errors.New("formula: disallowed construct")

	// ErrArity indicates a whitelisted function received the wrong
	// number of arguments.
	ErrArity = errors.New("formula: wrong argument count")
)

// maxDepth bounds AST recursion so pathological configuration cannot
// blow the stack.
const maxDepth = 64

// Expr is a compiled scoring expression. Compile once per rule and
// reuse; Eval is safe for concurrent use.
type Expr struct {
	src  string
	root ast.Expr
}

// Compile parses and validates an expression. Only binary and unary
// arithmetic, parentheses, numeric literals, the variable `value`, and
// calls to sqrt/min/max are accepted.
func Compile(src string) (*Expr, error) {
	root, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := check(root, 0); err != nil {
		return nil, err
	}
	return &Expr{src: src, root: root}, nil
}

// String returns the original expression source.
func (e *Expr) String() string { return e.src }

// Eval evaluates the expression with `value` bound to the given number.
func (e *Expr) Eval(value float64) (float64, error) {
	return eval(e.root, value)
}

// Eval is a convenience for one-shot evaluation: compile plus eval.
// Scoring rules that are evaluated repeatedly should Compile once.
func Eval(src string, value float64) (float64, error) {
	expr, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return expr.Eval(value)
}

// check validates the AST against the whitelist before any evaluation.
func check(node ast.Expr, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: expression too deeply nested", ErrDisallowed)
	}

	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return fmt.Errorf("%w: literal %s", ErrDisallowed, n.Value)
		}
		return nil

	case *ast.Ident:
		if n.Name != "value" {
			return fmt.Errorf("%w: unknown name %q", ErrDisallowed, n.Name)
		}
		return nil

	case *ast.ParenExpr:
		return check(n.X, depth+1)

	case *ast.UnaryExpr:
		if n.Op != token.SUB && n.Op != token.ADD {
			return fmt.Errorf("%w: unary operator %s", ErrDisallowed, n.Op)
		}
		return check(n.X, depth+1)

	case *ast.BinaryExpr:
		switch n.Op {
		case token.ADD, token.SUB, token.MUL, token.QUO:
		default:
			return fmt.Errorf("%w: operator %s", ErrDisallowed, n.Op)
		}
		if err := check(n.X, depth+1); err != nil {
			return err
		}
		return check(n.Y, depth+1)

	case *ast.CallExpr:
		ident, ok := n.Fun.(*ast.Ident)
		if !ok {
			return fmt.Errorf("%w: computed call target", ErrDisallowed)
		}
		switch ident.Name {
		case "sqrt":
			if len(n.Args) != 1 {
				return fmt.Errorf("%w: sqrt takes 1 argument, got %d", ErrArity, len(n.Args))
			}
		case "min", "max":
			if len(n.Args) < 2 {
				return fmt.Errorf("%w: %s takes at least 2 arguments, got %d", ErrArity, ident.Name, len(n.Args))
			}
		default:
			return fmt.Errorf("%w: function %q", ErrDisallowed, ident.Name)
		}
		for _, arg := range n.Args {
			if err := check(arg, depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrDisallowed, node)
	}
}

// eval walks a checked AST. The node set mirrors check exactly.
func eval(node ast.Expr, value float64) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return f, nil

	case *ast.Ident:
		return value, nil

	case *ast.ParenExpr:
		return eval(n.X, value)

	case *ast.UnaryExpr:
		x, err := eval(n.X, value)
		if err != nil {
			return 0, err
		}
		if n.Op == token.SUB {
			return -x, nil
		}
		return x, nil

	case *ast.BinaryExpr:
		x, err := eval(n.X, value)
		if err != nil {
			return 0, err
		}
		y, err := eval(n.Y, value)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrDisallowed)
			}
			return x / y, nil
		}
		return 0, fmt.Errorf("%w: operator %s", ErrDisallowed, n.Op)

	case *ast.CallExpr:
		ident := n.Fun.(*ast.Ident)
		args := make([]float64, len(n.Args))
		for i, arg := range n.Args {
			v, err := eval(arg, value)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		switch ident.Name {
		case "sqrt":
			if args[0] < 0 {
				return 0, fmt.Errorf("%w: sqrt of negative number", ErrDisallowed)
			}
			return math.Sqrt(args[0]), nil
		case "min":
			result := args[0]
			for _, v := range args[1:] {
				result = math.Min(result, v)
			}
			return result, nil
		case "max":
			result := args[0]
			for _, v := range args[1:] {
				result = math.Max(result, v)
			}
			return result, nil
		}
		return 0, fmt.Errorf("%w: function %q", ErrDisallowed, ident.Name)

	default:
		return 0, fmt.Errorf("%w: %T", ErrDisallowed, node)
	}
}
