package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"duck-export/internal/domain"
	"duck-export/internal/sqlbuild"
)

// Mode selects how a Reader pages through a result set.
type Mode string

// Paging modes.
const (
	// ModeCursor runs the query once and batches rows off the open cursor.
	ModeCursor Mode = "cursor"
	// ModeOffset issues one LIMIT/OFFSET statement per chunk inside a single
	// transaction. It requires an ordered query.
	ModeOffset Mode = "offset"
)

// ParseMode parses a paging mode name. An empty name means ModeCursor.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCursor:
		return ModeCursor, nil
	case ModeOffset:
		return ModeOffset, nil
	default:
		return "", domain.ErrValidation("unknown paging mode %q: use cursor or offset", s)
	}
}

// Reader executes resolved queries and delivers their rows in chunks.
type Reader struct {
	db   *sql.DB
	mode Mode
}

var _ domain.ChunkReader = (*Reader)(nil)

// NewReader creates a Reader over db.
func NewReader(db *sql.DB, mode Mode) *Reader {
	if mode == "" {
		mode = ModeCursor
	}
	return &Reader{db: db, mode: mode}
}

// Mode returns the paging mode.
func (r *Reader) Mode() Mode { return r.mode }

// ForEachChunk executes q and calls fn once per chunk in result order. Every
// chunk holds exactly pageSize rows except the last, which holds the
// remainder; an empty result yields no chunks. onColumns, when set, is called
// once with the result columns before the first chunk, even when the result is
// empty. It returns the number of rows delivered. Errors returned by
// onColumns or fn abort the read and are returned as-is.
func (r *Reader) ForEachChunk(ctx context.Context, q *domain.ResolvedQuery, pageSize int, onColumns func([]string) error, fn func(domain.Chunk) error) (int64, error) {
	if pageSize <= 0 {
		return 0, domain.ErrValidation("page size must be positive, got %d", pageSize)
	}
	if q == nil {
		return 0, domain.ErrValidation("query is required")
	}
	if r.mode == ModeOffset {
		return r.offsetChunks(ctx, q, pageSize, onColumns, fn)
	}
	return r.cursorChunks(ctx, q, pageSize, onColumns, fn)
}

// chunker accumulates rows and hands complete chunks to fn.
type chunker struct {
	ctx       context.Context
	onColumns func([]string) error
	fn        func(domain.Chunk) error
	announced bool
	index     int
	total     int64
}

// announce reports the result columns the first time they are known.
func (c *chunker) announce(columns []string) error {
	if c.announced || c.onColumns == nil {
		return nil
	}
	c.announced = true
	return c.onColumns(columns)
}

func (c *chunker) emit(columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	chunk := domain.Chunk{Index: c.index, Offset: c.total, Columns: columns, Rows: rows}
	if err := c.fn(chunk); err != nil {
		return err
	}
	c.index++
	c.total += int64(len(rows))
	return c.ctx.Err()
}

// sourceErr attributes err to the chunk starting at offset, preferring the
// context error when the read was cancelled.
func (c *chunker) sourceErr(err error) error {
	if ctxErr := c.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &domain.DataSourceError{Offset: c.total, Err: err}
}

func (r *Reader) cursorChunks(ctx context.Context, q *domain.ResolvedQuery, pageSize int, onColumns func([]string) error, fn func(domain.Chunk) error) (int64, error) {
	c := &chunker{ctx: ctx, onColumns: onColumns, fn: fn}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return 0, c.sourceErr(fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, c.sourceErr(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, c.sourceErr(err)
	}
	if err := c.announce(columns); err != nil {
		return 0, err
	}

	batch := make([][]any, 0, pageSize)
	for rows.Next() {
		row, err := scanRow(rows, len(columns))
		if err != nil {
			return c.total, c.sourceErr(err)
		}
		batch = append(batch, row)
		if len(batch) == pageSize {
			if err := c.emit(columns, batch); err != nil {
				return c.total, err
			}
			batch = make([][]any, 0, pageSize)
		}
	}
	if err := rows.Err(); err != nil {
		return c.total, c.sourceErr(err)
	}
	if err := c.emit(columns, batch); err != nil {
		return c.total, err
	}
	return c.total, nil
}

func (r *Reader) offsetChunks(ctx context.Context, q *domain.ResolvedQuery, pageSize int, onColumns func([]string) error, fn func(domain.Chunk) error) (int64, error) {
	if !q.Query.IsOrdered() {
		return 0, domain.ErrValidation("offset paging requires an ordered query: add order_by")
	}
	dialect := sqlbuild.Dialect(q.Dialect)
	c := &chunker{ctx: ctx, onColumns: onColumns, fn: fn}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.sourceErr(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	for {
		if q.Query.Limit > 0 && c.total >= int64(q.Query.Limit) {
			break
		}
		stmt, err := sqlbuild.BuildPage(q.Query, dialect, int(c.total), pageSize)
		if err != nil {
			return c.total, &domain.InvalidQueryError{Reason: err.Error()}
		}
		columns, page, err := queryPage(ctx, tx, stmt, pageSize)
		if err != nil {
			return c.total, c.sourceErr(err)
		}
		if err := c.announce(columns); err != nil {
			return c.total, err
		}
		if err := c.emit(columns, page); err != nil {
			return c.total, err
		}
		if len(page) < pageSize {
			break
		}
	}

	if err := tx.Commit(); err != nil {
		return c.total, c.sourceErr(fmt.Errorf("commit: %w", err))
	}
	return c.total, nil
}

func queryPage(ctx context.Context, tx *sql.Tx, stmt sqlbuild.Statement, pageSize int) ([]string, [][]any, error) {
	rows, err := tx.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	page := make([][]any, 0, pageSize)
	for rows.Next() {
		row, err := scanRow(rows, len(columns))
		if err != nil {
			return nil, nil, err
		}
		page = append(page, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, page, nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}
