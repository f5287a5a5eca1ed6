// Package header binds an ordered export header to query result columns and
// projects result rows into CSV field text in header order.
package header

import (
	"slices"
	"strings"

	"duck-export/internal/domain"
)

// Projection is a header bound to a concrete set of result columns.
type Projection struct {
	header  domain.Header
	columns []string
	index   []int // index[i] is the result column of header column i
}

// Bind resolves every header key against columns. Keys match exactly first,
// then case-insensitively.
func Bind(h domain.Header, columns []string) (*Projection, error) {
	return bind(h, columns, 0)
}

func bind(h domain.Header, columns []string, offset int64) (*Projection, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	index := make([]int, len(h))
	for i, col := range h {
		pos := columnIndex(columns, col.Key)
		if pos < 0 {
			return nil, &domain.MissingFieldError{Key: col.Key, Offset: offset}
		}
		index[i] = pos
	}
	return &Projection{header: h, columns: slices.Clone(columns), index: index}, nil
}

// CheckKeys verifies up front that every header key is among columns.
// A nil columns slice means the projection is not known before execution
// and always passes.
func CheckKeys(h domain.Header, columns []string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if columns == nil {
		return nil
	}
	for _, col := range h {
		if columnIndex(columns, col.Key) < 0 {
			return &domain.MissingFieldError{Key: col.Key, Offset: -1}
		}
	}
	return nil
}

func columnIndex(columns []string, key string) int {
	if i := slices.Index(columns, key); i >= 0 {
		return i
	}
	return slices.IndexFunc(columns, func(c string) bool { return strings.EqualFold(c, key) })
}

// Labels returns the label row.
func (p *Projection) Labels() []string {
	return p.header.Labels()
}

// Project renders every row of chunk in header order. A chunk whose columns
// differ from the bound ones is rebound first.
func (p *Projection) Project(chunk domain.Chunk) ([][]string, error) {
	if !slices.Equal(chunk.Columns, p.columns) {
		rebound, err := bind(p.header, chunk.Columns, chunk.Offset)
		if err != nil {
			return nil, err
		}
		*p = *rebound
	}

	out := make([][]string, len(chunk.Rows))
	for r, row := range chunk.Rows {
		rec := make([]string, len(p.index))
		for i, pos := range p.index {
			if pos >= len(row) {
				return nil, &domain.MissingFieldError{Key: p.header[i].Key, Offset: chunk.Offset + int64(r)}
			}
			rec[i] = FormatValue(row[pos])
		}
		out[r] = rec
	}
	return out, nil
}
