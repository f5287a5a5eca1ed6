// Package domain defines the core types, ports and errors of the exporter.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ReasonUnrecognized is the stable reason reported when a query spec matches
// neither the serialized nor the expression shape.
const ReasonUnrecognized = "not a recognized query representation"

// InvalidQueryError indicates that a query spec could not be resolved.
// No output file is ever created for it.
type InvalidQueryError struct {
	Reason string
	Err    error
}

func (e *InvalidQueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid query: %s: %v", e.Reason, e.Err)
	}
	return "invalid query: " + e.Reason
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }

// ErrInvalidQuery creates an InvalidQueryError with a formatted reason.
func ErrInvalidQuery(format string, args ...interface{}) *InvalidQueryError {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// MissingFieldError indicates that a header key names a field the query
// results do not carry.
type MissingFieldError struct {
	Key    string
	Offset int64 // row offset of the chunk that exposed the mismatch, -1 when checked up front
}

func (e *MissingFieldError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("header key %q is not a field of the query projection", e.Key)
	}
	return fmt.Sprintf("header key %q missing from result row at offset %d", e.Key, e.Offset)
}

// DataSourceError wraps a failure raised by the data source while rows were
// being retrieved. Offset is the cumulative row offset of the failing chunk.
type DataSourceError struct {
	Offset int64
	Err    error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("data source error at row offset %d: %v", e.Offset, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure on the export file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export file %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("export file %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
