package sqlbuild

import (
	"fmt"
	"strconv"
	"strings"

	"duck-export/internal/domain"
)

// Statement is executable SQL with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Build compiles q into a single SELECT statement for dialect d.
func Build(q domain.Query, d Dialect) (Statement, error) {
	return build(q, d, q.Offset, q.Limit, q.Limit > 0)
}

// BuildPage compiles the window [offset, offset+limit) of q's result set.
// The window is relative to q's own offset and never extends past q's own limit.
func BuildPage(q domain.Query, d Dialect, offset, limit int) (Statement, error) {
	if limit <= 0 {
		return Statement{}, fmt.Errorf("page limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return Statement{}, fmt.Errorf("page offset must not be negative, got %d", offset)
	}
	n := limit
	if q.Limit > 0 {
		remaining := q.Limit - offset
		if remaining < 0 {
			remaining = 0
		}
		if remaining < n {
			n = remaining
		}
	}
	return build(q, d, q.Offset+offset, n, true)
}

type builder struct {
	d    Dialect
	sb   strings.Builder
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func build(q domain.Query, d Dialect, offset, limit int, hasLimit bool) (Statement, error) {
	if err := ValidateTableName(q.Entity); err != nil {
		return Statement{}, fmt.Errorf("entity: %w", err)
	}
	b := &builder{d: d}

	b.sb.WriteString("SELECT ")
	if q.Distinct {
		b.sb.WriteString("DISTINCT ")
	}
	if len(q.Fields) == 0 {
		b.sb.WriteString("*")
	} else {
		for i, f := range q.Fields {
			if err := ValidateIdentifier(f); err != nil {
				return Statement{}, fmt.Errorf("field: %w", err)
			}
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.sb.WriteString(QuoteIdentifier(f))
		}
	}
	b.sb.WriteString(" FROM ")
	b.sb.WriteString(QuoteTableName(q.Entity))

	if len(q.Filters) > 0 {
		b.sb.WriteString(" WHERE ")
		for i, f := range q.Filters {
			if i > 0 {
				b.sb.WriteString(" AND ")
			}
			if err := b.filter(f); err != nil {
				return Statement{}, err
			}
		}
	}

	if len(q.OrderBy) > 0 {
		b.sb.WriteString(" ORDER BY ")
		for i, entry := range q.OrderBy {
			field, desc := domain.OrderField(entry)
			if err := ValidateIdentifier(field); err != nil {
				return Statement{}, fmt.Errorf("order_by: %w", err)
			}
			if i > 0 {
				b.sb.WriteString(", ")
			}
			b.sb.WriteString(QuoteIdentifier(field))
			if desc {
				b.sb.WriteString(" DESC")
			}
		}
	}

	switch {
	case hasLimit:
		b.sb.WriteString(" LIMIT " + strconv.Itoa(limit))
	case offset > 0 && d == SQLite:
		// SQLite rejects OFFSET without LIMIT.
		b.sb.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		b.sb.WriteString(" OFFSET " + strconv.Itoa(offset))
	}

	return Statement{SQL: b.sb.String(), Args: b.args}, nil
}

func (b *builder) filter(f domain.Filter) error {
	if len(f.Conditions) == 0 {
		return fmt.Errorf("filter has no conditions")
	}
	if f.Negate {
		b.sb.WriteString("NOT ")
	}
	b.sb.WriteString("(")
	for i, c := range f.Conditions {
		if i > 0 {
			b.sb.WriteString(" AND ")
		}
		if err := b.condition(c); err != nil {
			return err
		}
	}
	b.sb.WriteString(")")
	return nil
}

func (b *builder) condition(c domain.Condition) error {
	if err := ValidateIdentifier(c.Field); err != nil {
		return fmt.Errorf("filter field: %w", err)
	}
	col := QuoteIdentifier(c.Field)
	lookup := c.Lookup.Normalize()

	switch lookup {
	case domain.LookupExact:
		if c.Value == nil {
			b.sb.WriteString(col + " IS NULL")
			return nil
		}
		if !isScalar(c.Value) {
			return lookupErr(c, "a scalar value")
		}
		b.sb.WriteString(col + " = " + b.bind(c.Value))

	case domain.LookupIExact:
		s, ok := c.Value.(string)
		if !ok {
			return lookupErr(c, "a string")
		}
		b.sb.WriteString("LOWER(" + col + ") = LOWER(" + b.bind(s) + ")")

	case domain.LookupContains, domain.LookupIContains,
		domain.LookupStartsWith, domain.LookupIStartsWith,
		domain.LookupEndsWith, domain.LookupIEndsWith:
		s, ok := c.Value.(string)
		if !ok {
			return lookupErr(c, "a string")
		}
		b.like(col, lookup, s)

	case domain.LookupGT, domain.LookupGTE, domain.LookupLT, domain.LookupLTE:
		if c.Value == nil || !isScalar(c.Value) {
			return lookupErr(c, "a non-null scalar value")
		}
		b.sb.WriteString(col + " " + comparison[lookup] + " " + b.bind(c.Value))

	case domain.LookupIn:
		list, ok := c.Value.([]any)
		if !ok {
			return lookupErr(c, "a list")
		}
		if len(list) == 0 {
			b.sb.WriteString("1 = 0")
			return nil
		}
		marks := make([]string, len(list))
		for i, v := range list {
			if v == nil || !isScalar(v) {
				return lookupErr(c, "a list of non-null scalars")
			}
			marks[i] = b.bind(v)
		}
		b.sb.WriteString(col + " IN (" + strings.Join(marks, ", ") + ")")

	case domain.LookupIsNull:
		isNull, ok := c.Value.(bool)
		if !ok {
			return lookupErr(c, "a boolean")
		}
		if isNull {
			b.sb.WriteString(col + " IS NULL")
		} else {
			b.sb.WriteString(col + " IS NOT NULL")
		}

	case domain.LookupRange:
		list, ok := c.Value.([]any)
		if !ok || len(list) != 2 || list[0] == nil || list[1] == nil || !isScalar(list[0]) || !isScalar(list[1]) {
			return lookupErr(c, "a pair of non-null scalars")
		}
		b.sb.WriteString(col + " BETWEEN " + b.bind(list[0]) + " AND " + b.bind(list[1]))

	default:
		return fmt.Errorf("unsupported lookup %q on field %q", c.Lookup, c.Field)
	}
	return nil
}

var comparison = map[domain.Lookup]string{
	domain.LookupGT:  ">",
	domain.LookupGTE: ">=",
	domain.LookupLT:  "<",
	domain.LookupLTE: "<=",
}

func (b *builder) like(col string, lookup domain.Lookup, s string) {
	pattern := EscapeLike(s)
	switch lookup {
	case domain.LookupContains, domain.LookupIContains:
		pattern = "%" + pattern + "%"
	case domain.LookupStartsWith, domain.LookupIStartsWith:
		pattern += "%"
	default:
		pattern = "%" + pattern
	}
	insensitive := lookup == domain.LookupIContains || lookup == domain.LookupIStartsWith || lookup == domain.LookupIEndsWith
	if insensitive {
		b.sb.WriteString("LOWER(" + col + ") LIKE LOWER(" + b.bind(pattern) + `) ESCAPE '\'`)
		return
	}
	b.sb.WriteString(col + " LIKE " + b.bind(pattern) + ` ESCAPE '\'`)
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	default:
		return false
	}
}

func lookupErr(c domain.Condition, want string) error {
	return fmt.Errorf("lookup %q on field %q requires %s, got %T", c.Lookup.Normalize(), c.Field, want, c.Value)
}
