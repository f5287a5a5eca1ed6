// Package csvout streams export rows into a uniquely named CSV file.
package csvout

import (
	"encoding/csv"
	"fmt"
	"os"

	"duck-export/internal/domain"
)

// State is the lifecycle position of a Writer.
type State int

// Writer states. Closed and Failed are terminal.
const (
	StateIdle State = iota
	StateHeaderWritten
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderWritten:
		return "header_written"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FilePattern is the os.CreateTemp pattern used for export files.
const FilePattern = "export-*.csv"

// Writer owns one export file. It is not safe for concurrent use.
type Writer struct {
	file  *os.File
	csv   *csv.Writer
	path  string
	state State
	rows  int64
	cols  int
}

// Create opens a new, uniquely named export file in dir. An empty dir means
// the platform temp directory.
func Create(dir string) (*Writer, error) {
	f, err := os.CreateTemp(dir, FilePattern)
	if err != nil {
		return nil, &domain.IOError{Op: "create", Path: dir, Err: err}
	}
	w := csv.NewWriter(f)
	w.UseCRLF = true
	return &Writer{file: f, csv: w, path: f.Name(), state: StateIdle}, nil
}

// Path returns the file path. It is valid in every state.
func (w *Writer) Path() string { return w.path }

// State returns the current lifecycle state.
func (w *Writer) State() State { return w.state }

// Rows returns the number of data records written so far.
func (w *Writer) Rows() int64 { return w.rows }

// WriteHeader writes the label row. It must be the first write.
func (w *Writer) WriteHeader(labels []string) error {
	if w.state != StateIdle {
		return w.transitionErr("write header")
	}
	if len(labels) == 0 {
		return w.fail(domain.ErrValidation("header row must have at least one label"))
	}
	w.cols = len(labels)
	if err := w.writeRecord(labels); err != nil {
		return w.fail(&domain.IOError{Op: "write", Path: w.path, Err: err})
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.state = StateHeaderWritten
	return nil
}

// WriteRows appends one chunk of records and flushes them to the file.
func (w *Writer) WriteRows(rows [][]string) error {
	if w.state != StateHeaderWritten && w.state != StateStreaming {
		return w.transitionErr("write rows")
	}
	for _, rec := range rows {
		if len(rec) != w.cols {
			return w.fail(domain.ErrValidation("record has %d fields, header has %d", len(rec), w.cols))
		}
		if err := w.writeRecord(rec); err != nil {
			return w.fail(&domain.IOError{Op: "write", Path: w.path, Err: err})
		}
	}
	if err := w.flush(); err != nil {
		return err
	}
	w.rows += int64(len(rows))
	w.state = StateStreaming
	return nil
}

// emptyRecord is a record holding one empty field. encoding/csv would write it
// as a blank line, which readers skip.
const emptyRecord = "\"\"\r\n"

func (w *Writer) writeRecord(rec []string) error {
	if len(rec) != 1 || rec[0] != "" {
		return w.csv.Write(rec)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	_, err := w.file.WriteString(emptyRecord)
	return err
}

// Close flushes, syncs and closes the file and returns its path.
func (w *Writer) Close() (string, error) {
	if w.state != StateHeaderWritten && w.state != StateStreaming {
		return "", w.transitionErr("close")
	}
	if err := w.flush(); err != nil {
		return "", err
	}
	if err := w.file.Sync(); err != nil {
		return "", w.fail(&domain.IOError{Op: "sync", Path: w.path, Err: err})
	}
	if err := w.file.Close(); err != nil {
		w.state = StateFailed
		return "", &domain.IOError{Op: "close", Path: w.path, Err: err}
	}
	w.state = StateClosed
	return w.path, nil
}

// Abort moves the writer to Failed and closes the file, leaving any partial
// content on disk. It returns cause, or the close error when cause is nil.
// Aborting a terminal writer is a no-op.
func (w *Writer) Abort(cause error) error {
	if w.state == StateClosed || w.state == StateFailed {
		return cause
	}
	w.csv.Flush()
	w.state = StateFailed
	if err := w.file.Close(); err != nil && cause == nil {
		return &domain.IOError{Op: "close", Path: w.path, Err: err}
	}
	return cause
}

func (w *Writer) flush() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return w.fail(&domain.IOError{Op: "write", Path: w.path, Err: err})
	}
	return nil
}

// fail closes the file and records the terminal Failed state.
func (w *Writer) fail(err error) error {
	w.state = StateFailed
	_ = w.file.Close()
	return err
}

func (w *Writer) transitionErr(op string) error {
	return fmt.Errorf("csv writer: cannot %s in state %s", op, w.state)
}
