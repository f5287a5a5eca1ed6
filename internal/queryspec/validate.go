package queryspec

import (
	"fmt"
	"strings"

	"duck-export/internal/domain"
	"duck-export/internal/sqlbuild"
)

// validate checks q against the structural rules every query must satisfy
// and, when e is non-nil, against the entity's permitted fields.
func validate(q domain.Query, e *Entity) error {
	if strings.TrimSpace(q.Entity) == "" {
		return fmt.Errorf("entity is required")
	}
	if q.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", q.Limit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", q.Offset)
	}

	checkField := func(role, field string) error {
		if err := sqlbuild.ValidateIdentifier(field); err != nil {
			return fmt.Errorf("%s %q: %w", role, field, err)
		}
		if e != nil && !e.HasField(field) {
			return fmt.Errorf("%s %q is not a field of entity %q", role, field, q.Entity)
		}
		return nil
	}

	seen := make(map[string]bool, len(q.Fields))
	for _, f := range q.Fields {
		if err := checkField("field", f); err != nil {
			return err
		}
		if seen[f] {
			return fmt.Errorf("field %q is projected more than once", f)
		}
		seen[f] = true
	}

	for i, f := range q.Filters {
		if len(f.Conditions) == 0 {
			return fmt.Errorf("filter %d has no conditions", i)
		}
		for _, c := range f.Conditions {
			if err := checkField("filter field", c.Field); err != nil {
				return err
			}
			if !c.Lookup.IsKnown() {
				return fmt.Errorf("unknown lookup %q on field %q", c.Lookup, c.Field)
			}
		}
	}

	for _, entry := range q.OrderBy {
		field, _ := domain.OrderField(entry)
		if err := checkField("order_by field", field); err != nil {
			return err
		}
	}
	return nil
}
