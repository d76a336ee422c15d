package edk

import (
	"context"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Row is one record of a source table, keyed by column name. Values are kept
// as strings the way they arrive from CSV-shaped sources; numeric access
// parses on demand.
type Row map[string]string

// Get returns the value of col, or "" if the column is absent.
func (r Row) Get(col string) string { return r[col] }

// Float parses the value of col as a float64.
func (r Row) Float(col string) (float64, error) {
	v, ok := r[col]
	if !ok || v == "" {
		return 0, errors.Errorf("row has no value for column '%s'", col)
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, errors.Wrapf(err, "parsing column '%s'", col)
}

// Rows is an in-memory table.
type Rows []Row

// Where returns the rows whose col equals val.
func (rs Rows) Where(col, val string) Rows {
	out := make(Rows, 0)
	for _, r := range rs {
		if r[col] == val {
			out = append(out, r)
		}
	}
	return out
}

// WhereIn returns the rows whose col value is a member of vals.
func (rs Rows) WhereIn(col string, vals map[string]struct{}) Rows {
	out := make(Rows, 0)
	for _, r := range rs {
		if _, ok := vals[r[col]]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Column returns the col value of every row, in row order.
func (rs Rows) Column(col string) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r[col]
	}
	return out
}

// TableSource loads a named source table. Implementations resolve the ref
// however suits their backing store (file path, object key, DB table) and
// should be safe for concurrent use.
type TableSource interface {
	Load(ctx context.Context, ref string) (Rows, error)
}

// TableLoader is the memoized table access handed to plugins via Input.
// Loads for the same ref are coalesced so concurrent entity workers trigger
// at most one underlying load per table.
type TableLoader interface {
	Load(ctx context.Context, ref string) (Rows, error)
}

// NamedReadCloser is a reader with a name, usually a file or object key.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
}

// RawSource produces a sequence of named readers, e.g. the files of a
// directory or the objects under an S3 prefix. NextReader returns io.EOF
// when the sequence is exhausted.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}
