package workflow

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"

	"github.com/akios/akios/pkg/value"
)

// maxConditionChars and maxConditionDepth bound the `condition:` field
// of a step (spec.md §4.7 "Condition Evaluator"): long or deeply nested
// expressions are rejected before evaluation, not during it.
const (
	maxConditionChars = 1024
	maxConditionDepth = 20
)

// ErrForbiddenConstruct is returned for any condition expression using a
// node kind outside the allowlist (spec.md §7 error table).
var ErrForbiddenConstruct = fmt.Errorf("condition uses a forbidden construct")

// allowedIdents is the set of bareword identifiers a condition may use
// besides execution-context variables: boolean literals only (the Go
// parser treats `true`/`false` as identifiers, not keywords).
var allowedIdents = map[string]bool{"true": true, "false": true}

// EvaluateCondition parses expr with go/parser (as an expression, never
// a full program) and walks the resulting AST rejecting anything beyond
// a safe subset: literals, identifiers (resolved against the execution
// context), binary/unary operators, and parenthesization. This is the
// Go-native equivalent of the original's `ast`-module node-type
// allowlist walker (spec.md §9) — go/ast plays the same role here that
// Python's ast module plays there, and reuses the standard library
// rather than a bespoke parser, since no expression-sandbox library
// exists anywhere in the corpus.
func EvaluateCondition(expr string, ec *ExecutionContext) (bool, error) {
	if expr == "" {
		return true, nil
	}
	if len(expr) > maxConditionChars {
		return false, fmt.Errorf("%w: expression exceeds %d characters", ErrForbiddenConstruct, maxConditionChars)
	}

	node, err := parser.ParseExpr(expr)
	if err != nil {
		return false, fmt.Errorf("condition: parse error: %w", err)
	}

	if depth := astDepth(node); depth > maxConditionDepth {
		return false, fmt.Errorf("%w: expression exceeds nesting depth %d", ErrForbiddenConstruct, maxConditionDepth)
	}

	if err := rejectUnsafe(node); err != nil {
		return false, err
	}

	v, err := evalNode(node, ec)
	if err != nil {
		return false, err
	}

	b, ok := v.Bool()
	if !ok {
		return false, fmt.Errorf("condition: expression did not evaluate to a boolean")
	}
	return b, nil
}

// rejectUnsafe walks the full tree first and fails closed on any node
// type not explicitly allowed — calls, composite literals, function
// literals, type assertions, and so on are all rejected, since none of
// them can appear in a
// sandboxed boolean condition.
func rejectUnsafe(n ast.Node) error {
	var walkErr error
	ast.Inspect(n, func(node ast.Node) bool {
		if walkErr != nil {
			return false
		}
		switch v := node.(type) {
		case nil, *ast.ParenExpr, *ast.BinaryExpr, *ast.UnaryExpr,
			*ast.BasicLit, *ast.Ident:
			// allowed
		case *ast.SelectorExpr:
			// allowed: dotted field access, e.g. step_1_result.summary
		case *ast.IndexExpr:
			// allowed: subscript access with a literal string or integer
			// key, e.g. step_1_output['status'] or items[0] (spec.md §4.8).
			// evalIndex rejects anything but a BasicLit index at eval time;
			// the walk itself doesn't need to special-case the index node
			// beyond letting it recurse, since BasicLit/Ident are already
			// allowed kinds.
		default:
			walkErr = fmt.Errorf("%w: %T", ErrForbiddenConstruct, v)
			return false
		}
		return true
	})
	return walkErr
}

func astDepth(n ast.Node) int {
	max := 0
	var walk func(ast.Node, int)
	walk = func(node ast.Node, depth int) {
		if depth > max {
			max = depth
		}
		ast.Inspect(node, func(child ast.Node) bool {
			if child == nil || child == node {
				return true
			}
			walk(child, depth+1)
			return false
		})
	}
	walk(n, 0)
	return max
}

// evalNode evaluates an already-validated AST node against the
// execution context. Only the node kinds rejectUnsafe allows appear
// here; anything else is an internal invariant violation, not a runtime
// condition failure.
func evalNode(n ast.Expr, ec *ExecutionContext) (value.Value, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return evalNode(e.X, ec)
	case *ast.BasicLit:
		return evalBasicLit(e)
	case *ast.Ident:
		return evalIdent(e, ec)
	case *ast.SelectorExpr:
		return evalSelector(e, ec)
	case *ast.IndexExpr:
		return evalIndex(e, ec)
	case *ast.UnaryExpr:
		return evalUnary(e, ec)
	case *ast.BinaryExpr:
		return evalBinary(e, ec)
	default:
		return value.Null(), fmt.Errorf("%w: unevaluable node %T", ErrForbiddenConstruct, e)
	}
}

func evalBasicLit(lit *ast.BasicLit) (value.Value, error) {
	switch lit.Kind {
	case token.INT:
		var i int64
		if _, err := fmt.Sscanf(lit.Value, "%d", &i); err != nil {
			return value.Null(), fmt.Errorf("condition: invalid integer literal %q", lit.Value)
		}
		return value.Int(i), nil
	case token.FLOAT:
		var f float64
		if _, err := fmt.Sscanf(lit.Value, "%g", &f); err != nil {
			return value.Null(), fmt.Errorf("condition: invalid float literal %q", lit.Value)
		}
		return value.Float(f), nil
	case token.STRING:
		s, err := unquoteGoString(lit.Value)
		if err != nil {
			return value.Null(), err
		}
		return value.String(s), nil
	case token.CHAR:
		// Condition strings are written single-quoted (e.g. 'success'),
		// per spec.md §4.8's example syntax. go/parser lexes that as a
		// rune literal regardless of content length — it never validates
		// "exactly one rune" itself, so a multi-character 'status' parses
		// fine and just needs unquoting like a string would.
		s, err := unquoteGoString(lit.Value)
		if err != nil {
			return value.Null(), err
		}
		return value.String(s), nil
	default:
		return value.Null(), fmt.Errorf("%w: literal kind %v", ErrForbiddenConstruct, lit.Kind)
	}
}

func unquoteGoString(raw string) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("condition: malformed string literal %q", raw)
	}
	return raw[1 : len(raw)-1], nil
}

func evalIdent(id *ast.Ident, ec *ExecutionContext) (value.Value, error) {
	switch id.Name {
	case "true":
		return value.Bool(true), nil
	case "false":
		return value.Bool(false), nil
	}
	v, ok := ec.Get(id.Name)
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

func evalSelector(sel *ast.SelectorExpr, ec *ExecutionContext) (value.Value, error) {
	base, err := evalNode(sel.X, ec)
	if err != nil {
		return value.Null(), err
	}
	v, ok := base.Get(sel.Sel.Name)
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

// evalIndex evaluates a subscript expression against a map or list
// value, e.g. step_1_output['status'] or items[0] (spec.md §4.8). The
// index itself must be a literal string or integer; any other index
// expression is rejected here.
func evalIndex(idx *ast.IndexExpr, ec *ExecutionContext) (value.Value, error) {
	if _, ok := idx.Index.(*ast.BasicLit); !ok {
		return value.Null(), fmt.Errorf("%w: subscript index must be a string or integer literal", ErrForbiddenConstruct)
	}
	base, err := evalNode(idx.X, ec)
	if err != nil {
		return value.Null(), err
	}
	key, err := evalNode(idx.Index, ec)
	if err != nil {
		return value.Null(), err
	}

	if s, ok := key.String(); ok {
		v, ok := base.Get(s)
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	}
	if i, ok := key.Int(); ok {
		v, ok := base.Index(int(i))
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	}
	return value.Null(), fmt.Errorf("condition: subscript index must be a string or integer literal")
}

func evalUnary(u *ast.UnaryExpr, ec *ExecutionContext) (value.Value, error) {
	x, err := evalNode(u.X, ec)
	if err != nil {
		return value.Null(), err
	}
	switch u.Op {
	case token.NOT:
		b, _ := x.Bool()
		return value.Bool(!b), nil
	case token.SUB:
		if i, ok := x.Int(); ok {
			return value.Int(-i), nil
		}
		if f, ok := x.Float(); ok {
			return value.Float(-f), nil
		}
		return value.Null(), fmt.Errorf("condition: unary - on non-numeric value")
	default:
		return value.Null(), fmt.Errorf("%w: unary operator %v", ErrForbiddenConstruct, u.Op)
	}
}

func evalBinary(b *ast.BinaryExpr, ec *ExecutionContext) (value.Value, error) {
	x, err := evalNode(b.X, ec)
	if err != nil {
		return value.Null(), err
	}

	// Short-circuit && and || before evaluating the right side.
	if b.Op == token.LAND || b.Op == token.LOR {
		xb, _ := x.Bool()
		if b.Op == token.LAND && !xb {
			return value.Bool(false), nil
		}
		if b.Op == token.LOR && xb {
			return value.Bool(true), nil
		}
		y, err := evalNode(b.Y, ec)
		if err != nil {
			return value.Null(), err
		}
		yb, _ := y.Bool()
		return value.Bool(yb), nil
	}

	y, err := evalNode(b.Y, ec)
	if err != nil {
		return value.Null(), err
	}

	switch b.Op {
	case token.EQL:
		return value.Bool(valuesEqual(x, y)), nil
	case token.NEQ:
		return value.Bool(!valuesEqual(x, y)), nil
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		return compareNumeric(b.Op, x, y)
	default:
		return value.Null(), fmt.Errorf("%w: binary operator %v", ErrForbiddenConstruct, b.Op)
	}
}

func valuesEqual(x, y value.Value) bool {
	if xs, ok := x.String(); ok {
		ys, ok2 := y.String()
		return ok2 && xs == ys
	}
	if xb, ok := x.Bool(); ok {
		yb, ok2 := y.Bool()
		return ok2 && xb == yb
	}
	xf, xok := numericOf(x)
	yf, yok := numericOf(y)
	if xok && yok {
		return xf == yf
	}
	return false
}

func numericOf(v value.Value) (float64, bool) {
	if i, ok := v.Int(); ok {
		return float64(i), true
	}
	if f, ok := v.Float(); ok {
		return f, true
	}
	return 0, false
}

func compareNumeric(op token.Token, x, y value.Value) (value.Value, error) {
	xf, xok := numericOf(x)
	yf, yok := numericOf(y)
	if !xok || !yok {
		return value.Null(), fmt.Errorf("condition: comparison operator requires numeric operands")
	}
	switch op {
	case token.LSS:
		return value.Bool(xf < yf), nil
	case token.LEQ:
		return value.Bool(xf <= yf), nil
	case token.GTR:
		return value.Bool(xf > yf), nil
	case token.GEQ:
		return value.Bool(xf >= yf), nil
	default:
		return value.Null(), fmt.Errorf("%w: comparison operator %v", ErrForbiddenConstruct, op)
	}
}
