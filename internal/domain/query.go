package domain

import "strings"

// Lookup names the comparison applied by a Condition.
type Lookup string

// Supported lookups. An empty Lookup means LookupExact.
const (
	LookupExact       Lookup = "exact"
	LookupIExact      Lookup = "iexact"
	LookupContains    Lookup = "contains"
	LookupIContains   Lookup = "icontains"
	LookupStartsWith  Lookup = "startswith"
	LookupIStartsWith Lookup = "istartswith"
	LookupEndsWith    Lookup = "endswith"
	LookupIEndsWith   Lookup = "iendswith"
	LookupGT          Lookup = "gt"
	LookupGTE         Lookup = "gte"
	LookupLT          Lookup = "lt"
	LookupLTE         Lookup = "lte"
	LookupIn          Lookup = "in"
	LookupIsNull      Lookup = "isnull"
	LookupRange       Lookup = "range"
)

var knownLookups = map[Lookup]bool{
	LookupExact: true, LookupIExact: true,
	LookupContains: true, LookupIContains: true,
	LookupStartsWith: true, LookupIStartsWith: true,
	LookupEndsWith: true, LookupIEndsWith: true,
	LookupGT: true, LookupGTE: true, LookupLT: true, LookupLTE: true,
	LookupIn: true, LookupIsNull: true, LookupRange: true,
}

// IsKnown reports whether l is a supported lookup.
func (l Lookup) IsKnown() bool { return l == "" || knownLookups[l] }

// Normalize maps the empty lookup to LookupExact.
func (l Lookup) Normalize() Lookup {
	if l == "" {
		return LookupExact
	}
	return l
}

// Condition compares one field against a value.
type Condition struct {
	Field  string `json:"field"`
	Lookup Lookup `json:"lookup,omitempty"`
	Value  any    `json:"value"`
}

// Filter is a conjunction of conditions, optionally negated as a whole.
type Filter struct {
	Conditions []Condition `json:"conditions"`
	Negate     bool        `json:"negate,omitempty"`
}

// Query is the structured description of what an export reads: a projection
// over one entity with optional filtering, ordering and windowing.
type Query struct {
	Entity   string   `json:"entity"`
	Fields   []string `json:"fields,omitempty"`
	Filters  []Filter `json:"filters,omitempty"`
	OrderBy  []string `json:"order_by,omitempty"`
	Distinct bool     `json:"distinct,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// IsOrdered reports whether the query specifies an explicit order.
func (q Query) IsOrdered() bool { return len(q.OrderBy) > 0 }

// OrderField splits an order_by entry into its field and direction.
func OrderField(entry string) (field string, desc bool) {
	if strings.HasPrefix(entry, "-") {
		return entry[1:], true
	}
	return strings.TrimPrefix(entry, "+"), false
}

// QueryShape records which representation a ResolvedQuery came from.
type QueryShape string

// Query shapes.
const (
	ShapeSerialized QueryShape = "serialized"
	ShapeExpression QueryShape = "expression"
	ShapeStructured QueryShape = "structured"
)

// ResolvedQuery is a validated query bound to a table, a projection and a SQL
// dialect. SQL and Args can be executed as-is.
type ResolvedQuery struct {
	Query   Query
	Table   string
	Columns []string // nil when every column of the table is projected
	Dialect string
	SQL     string
	Args    []any
	Shape   QueryShape
}
