package queryspec

import (
	"fmt"
	"math/big"
	"strings"

	"go.starlark.net/syntax"

	"duck-export/internal/domain"
)

// maxExpressionBytes bounds the size of an expression-shaped spec.
const maxExpressionBytes = 64 * 1024

// parseExpression reads a method chain such as
//
//	Product.objects.filter(price__gte=10).order_by("-price").values("name", "price")[:100]
//
// into a domain.Query. The text is parsed with the Starlark grammar and the
// syntax tree is walked as data; nothing is evaluated.
func parseExpression(spec string) (domain.Query, error) {
	if len(spec) > maxExpressionBytes {
		return domain.Query{}, fmt.Errorf("expression exceeds %d bytes", maxExpressionBytes)
	}
	expr, err := (&syntax.FileOptions{}).ParseExpr("query", spec, 0)
	if err != nil {
		return domain.Query{}, fmt.Errorf("expression: %w", err)
	}

	var steps []syntax.Expr
	for {
		switch e := expr.(type) {
		case *syntax.ParenExpr:
			expr = e.X
			continue
		case *syntax.SliceExpr:
			if len(steps) > 0 {
				return domain.Query{}, fmt.Errorf("expression: slicing must be the last step")
			}
			steps = append(steps, e)
			expr = e.X
			continue
		case *syntax.CallExpr:
			dot, ok := e.Fn.(*syntax.DotExpr)
			if !ok {
				return domain.Query{}, fmt.Errorf("expression: calls must be methods on an entity")
			}
			steps = append(steps, e)
			expr = dot.X
			continue
		}
		break
	}

	entity, manager, err := entityName(expr)
	if err != nil {
		return domain.Query{}, err
	}
	if len(steps) == 0 && !manager {
		return domain.Query{}, fmt.Errorf("expression: %q is a bare name, not a query", entity)
	}
	q := domain.Query{Entity: entity}

	// steps were collected outermost first; apply them innermost first.
	for i := len(steps) - 1; i >= 0; i-- {
		switch s := steps[i].(type) {
		case *syntax.CallExpr:
			if err := applyMethod(&q, s); err != nil {
				return domain.Query{}, err
			}
		case *syntax.SliceExpr:
			if err := applySlice(&q, s); err != nil {
				return domain.Query{}, err
			}
		}
	}
	return q, nil
}

// entityName accepts an identifier, a dotted schema.table pair, and an
// optional trailing ".objects" manager, which it reports.
func entityName(expr syntax.Expr) (string, bool, error) {
	switch e := expr.(type) {
	case *syntax.Ident:
		switch e.Name {
		case "True", "False", "None":
			return "", false, fmt.Errorf("expression: %s is a literal, not an entity", e.Name)
		}
		return e.Name, false, nil
	case *syntax.DotExpr:
		base, manager, err := entityName(e.X)
		if err != nil {
			return "", false, err
		}
		if manager {
			return "", false, fmt.Errorf("expression: unexpected attribute %q after objects", e.Name.Name)
		}
		if e.Name.Name == "objects" {
			return base, true, nil
		}
		if strings.Contains(base, ".") {
			return "", false, fmt.Errorf("expression: entity %q has too many qualifiers", base+"."+e.Name.Name)
		}
		return base + "." + e.Name.Name, false, nil
	default:
		return "", false, fmt.Errorf("expression: expected an entity name, got %T", expr)
	}
}

func applyMethod(q *domain.Query, call *syntax.CallExpr) error {
	method := call.Fn.(*syntax.DotExpr).Name.Name
	switch method {
	case "all":
		return noArgs(method, call)
	case "distinct":
		if err := noArgs(method, call); err != nil {
			return err
		}
		q.Distinct = true
		return nil
	case "filter", "exclude":
		f, err := lookupArgs(method, call)
		if err != nil {
			return err
		}
		if len(f.Conditions) == 0 {
			return nil
		}
		f.Negate = method == "exclude"
		q.Filters = append(q.Filters, f)
		return nil
	case "values", "values_list", "only":
		fields, err := stringArgs(method, call)
		if err != nil {
			return err
		}
		if q.Fields != nil {
			return fmt.Errorf("expression: projection is set more than once")
		}
		q.Fields = fields
		return nil
	case "order_by":
		fields, err := stringArgs(method, call)
		if err != nil {
			return err
		}
		q.OrderBy = fields
		return nil
	default:
		return fmt.Errorf("expression: unsupported method %q", method)
	}
}

func noArgs(method string, call *syntax.CallExpr) error {
	if len(call.Args) > 0 {
		return fmt.Errorf("expression: %s() takes no arguments", method)
	}
	return nil
}

// stringArgs collects positional string literals. values_list(flat=True) style
// keyword options are accepted and ignored.
func stringArgs(method string, call *syntax.CallExpr) ([]string, error) {
	out := []string{}
	for _, arg := range call.Args {
		if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
			if method == "values_list" {
				continue
			}
			return nil, fmt.Errorf("expression: %s() takes no keyword arguments", method)
		}
		lit, ok := arg.(*syntax.Literal)
		if !ok || lit.Token != syntax.STRING {
			return nil, fmt.Errorf("expression: %s() arguments must be string literals", method)
		}
		out = append(out, lit.Value.(string))
	}
	return out, nil
}

// lookupArgs turns field__lookup=value keyword arguments into conditions.
func lookupArgs(method string, call *syntax.CallExpr) (domain.Filter, error) {
	var f domain.Filter
	for _, arg := range call.Args {
		kw, ok := arg.(*syntax.BinaryExpr)
		if !ok || kw.Op != syntax.EQ {
			return f, fmt.Errorf("expression: %s() takes only keyword arguments", method)
		}
		name, ok := kw.X.(*syntax.Ident)
		if !ok {
			return f, fmt.Errorf("expression: %s() keyword must be an identifier", method)
		}
		value, err := literalValue(kw.Y)
		if err != nil {
			return f, fmt.Errorf("expression: %s(%s=...): %w", method, name.Name, err)
		}
		field, lookup := splitLookup(name.Name)
		f.Conditions = append(f.Conditions, domain.Condition{Field: field, Lookup: lookup, Value: value})
	}
	return f, nil
}

// splitLookup splits "price__gte" into ("price", "gte"). A suffix that is not
// a known lookup is part of the field name.
func splitLookup(name string) (string, domain.Lookup) {
	i := strings.LastIndex(name, "__")
	if i <= 0 {
		return name, domain.LookupExact
	}
	lookup := domain.Lookup(name[i+2:])
	if !lookup.IsKnown() || lookup == "" {
		return name, domain.LookupExact
	}
	return name[:i], lookup
}

func literalValue(expr syntax.Expr) (any, error) {
	switch e := expr.(type) {
	case *syntax.Literal:
		switch e.Token {
		case syntax.STRING:
			return e.Value.(string), nil
		case syntax.INT:
			switch n := e.Value.(type) {
			case int64:
				return n, nil
			case *big.Int:
				return nil, fmt.Errorf("integer %s out of range", n.String())
			}
		case syntax.FLOAT:
			return e.Value.(float64), nil
		}
		return nil, fmt.Errorf("unsupported literal %s", e.Raw)
	case *syntax.Ident:
		switch e.Name {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected name %q; only literals are allowed", e.Name)
	case *syntax.UnaryExpr:
		if e.Op != syntax.MINUS {
			return nil, fmt.Errorf("unsupported operator %s", e.Op)
		}
		v, err := literalValue(e.X)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, fmt.Errorf("cannot negate %T", v)
	case *syntax.ParenExpr:
		return literalValue(e.X)
	case *syntax.ListExpr:
		return literalList(e.List)
	case *syntax.TupleExpr:
		return literalList(e.List)
	default:
		return nil, fmt.Errorf("only literals are allowed, got %T", expr)
	}
}

func literalList(items []syntax.Expr) ([]any, error) {
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := literalValue(item)
		if err != nil {
			return nil, err
		}
		if _, nested := v.([]any); nested {
			return nil, fmt.Errorf("nested lists are not supported")
		}
		out = append(out, v)
	}
	return out, nil
}

func applySlice(q *domain.Query, s *syntax.SliceExpr) error {
	if s.Step != nil {
		return fmt.Errorf("expression: slice step is not supported")
	}
	lo, err := sliceBound(s.Lo)
	if err != nil {
		return err
	}
	hi, err := sliceBound(s.Hi)
	if err != nil {
		return err
	}
	q.Offset = lo
	if s.Hi != nil {
		if hi <= lo {
			return fmt.Errorf("expression: slice [%d:%d] selects no rows", lo, hi)
		}
		q.Limit = hi - lo
	}
	return nil
}

func sliceBound(e syntax.Expr) (int, error) {
	if e == nil {
		return 0, nil
	}
	lit, ok := e.(*syntax.Literal)
	if !ok || lit.Token != syntax.INT {
		return 0, fmt.Errorf("expression: slice bounds must be non-negative integer literals")
	}
	n, ok := lit.Value.(int64)
	if !ok || n < 0 || n > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("expression: slice bound %s out of range", lit.Raw)
	}
	return int(n), nil
}
