package csvout

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-export/internal/domain"
)

func TestWriter_Lifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	w, err := Create(dir)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, w.State())
	assert.True(t, strings.HasPrefix(filepath.Base(w.Path()), "export-"))
	assert.Equal(t, ".csv", filepath.Ext(w.Path()))
	assert.Equal(t, dir, filepath.Dir(w.Path()))

	require.NoError(t, w.WriteHeader([]string{"Name", "Price", "Stock Quantity"}))
	assert.Equal(t, StateHeaderWritten, w.State())

	require.NoError(t, w.WriteRows([][]string{{"Test Product 1", "19.99", "100"}}))
	require.NoError(t, w.WriteRows([][]string{{"Test Product 2", "29.99", "200"}}))
	assert.Equal(t, StateStreaming, w.State())
	assert.Equal(t, int64(2), w.Rows())

	path, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, StateClosed, w.State())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Name,Price,Stock Quantity\r\nTest Product 1,19.99,100\r\nTest Product 2,29.99,200\r\n", string(data))
}

func TestWriter_HeaderOnly(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"Name"}))
	path, err := w.Close()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Name\r\n", string(data))
}

func TestWriter_Quoting(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"Label, with comma", "Plain"}))
	require.NoError(t, w.WriteRows([][]string{
		{`say "hi"`, "line\nbreak"},
		{"", " padded "},
	}))
	path, err := w.Close()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"\"Label, with comma\",Plain\r\n\"say \"\"hi\"\"\",\"line\r\nbreak\"\r\n,\" padded \"\r\n",
		string(data))
}

func TestWriter_SingleEmptyFieldSurvivesReadBack(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"Price"}))
	require.NoError(t, w.WriteRows([][]string{{""}, {"2.50"}}))
	require.NoError(t, w.WriteRows([][]string{{""}}))
	path, err := w.Close()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Price\r\n\"\"\r\n2.50\r\n\"\"\r\n", string(data))

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Price"}, {""}, {"2.50"}, {""}}, records)
}

func TestWriter_EmptyFieldsInWiderRecords(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"Name", "Price"}))
	require.NoError(t, w.WriteRows([][]string{{"", ""}}))
	path, err := w.Close()
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Name,Price\r\n,\r\n", string(data))
}

func TestWriter_InvalidTransitions(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)

	err = w.WriteRows([][]string{{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot write rows in state idle")

	_, err = w.Close()
	require.Error(t, err)

	require.NoError(t, w.WriteHeader([]string{"A"}))
	err = w.WriteHeader([]string{"A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state header_written")

	_, err = w.Close()
	require.NoError(t, err)
	err = w.WriteRows(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state closed")
}

func TestWriter_FieldCountMismatchFails(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"A", "B"}))
	require.NoError(t, w.WriteRows([][]string{{"1", "2"}}))

	err = w.WriteRows([][]string{{"only one"}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateFailed, w.State())

	// Failed is terminal and the partial file stays on disk.
	require.Error(t, w.WriteRows([][]string{{"3", "4"}}))
	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "A,B\r\n1,2\r\n", string(data))
}

func TestWriter_Abort(t *testing.T) {
	t.Parallel()

	w, err := Create(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader([]string{"A"}))
	require.NoError(t, w.WriteRows([][]string{{"1"}}))

	cause := errors.New("source went away")
	assert.Equal(t, cause, w.Abort(cause))
	assert.Equal(t, StateFailed, w.State())
	assert.Equal(t, cause, w.Abort(cause))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t, "A\r\n1\r\n", string(data))
}

func TestCreate_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := Create(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	var ioErr *domain.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "create", ioErr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
