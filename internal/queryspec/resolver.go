// Package queryspec turns runtime query text into validated, executable
// queries. Two textual shapes are accepted: the JSON serialization of a
// domain.Query and a method-chain expression over a named entity.
package queryspec

import (
	"errors"
	"strings"

	"duck-export/internal/domain"
	"duck-export/internal/sqlbuild"
)

// Resolver resolves query specs for one SQL dialect.
type Resolver struct {
	dialect sqlbuild.Dialect
	catalog *Catalog
}

// NewResolver creates a Resolver. catalog may be nil, in which case entity
// names are used as table names and any valid field may be referenced.
func NewResolver(dialect sqlbuild.Dialect, catalog *Catalog) *Resolver {
	return &Resolver{dialect: dialect, catalog: catalog}
}

// Dialect returns the dialect queries are compiled for.
func (r *Resolver) Dialect() sqlbuild.Dialect { return r.dialect }

// Resolve parses spec as a serialized query, then as an expression. It never
// touches the data source.
func (r *Resolver) Resolve(spec string) (*domain.ResolvedQuery, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, &domain.InvalidQueryError{Reason: domain.ReasonUnrecognized}
	}

	q, jsonErr := decodeSerialized(spec)
	if jsonErr == nil {
		return r.resolve(q, domain.ShapeSerialized)
	}
	q, exprErr := parseExpression(spec)
	if exprErr == nil {
		return r.resolve(q, domain.ShapeExpression)
	}
	return nil, &domain.InvalidQueryError{
		Reason: domain.ReasonUnrecognized,
		Err:    errors.Join(jsonErr, exprErr),
	}
}

// ResolveQuery validates and compiles a query built by the caller.
func (r *Resolver) ResolveQuery(q domain.Query) (*domain.ResolvedQuery, error) {
	return r.resolve(q, domain.ShapeStructured)
}

func (r *Resolver) resolve(q domain.Query, shape domain.QueryShape) (*domain.ResolvedQuery, error) {
	q.Fields = append([]string(nil), q.Fields...)
	table := q.Entity

	var entity *Entity
	if r.catalog != nil {
		e, ok := r.catalog.Lookup(q.Entity)
		if !ok {
			return nil, domain.ErrInvalidQuery("unknown entity %q", q.Entity)
		}
		entity = &e
		table = e.Table
		if len(q.Fields) == 0 && len(e.Fields) > 0 {
			q.Fields = append(q.Fields, e.Fields...)
		}
	}

	if err := validate(q, entity); err != nil {
		return nil, &domain.InvalidQueryError{Reason: err.Error()}
	}

	compiled := q
	compiled.Entity = table
	stmt, err := sqlbuild.Build(compiled, r.dialect)
	if err != nil {
		return nil, &domain.InvalidQueryError{Reason: err.Error()}
	}

	var columns []string
	if len(q.Fields) > 0 {
		columns = q.Fields
	}
	return &domain.ResolvedQuery{
		Query:   compiled,
		Table:   table,
		Columns: columns,
		Dialect: string(r.dialect),
		SQL:     stmt.SQL,
		Args:    stmt.Args,
		Shape:   shape,
	}, nil
}
