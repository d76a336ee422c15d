// Package csv provides an edk.TableSource reading CSV files from a
// directory, plus helpers for reading tables out of arbitrary readers
// (e.g. an S3 raw source).
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ecodata/edk"
	"github.com/pkg/errors"
)

// Source resolves table refs to CSV files under Dir. Implements
// edk.TableSource.
type Source struct {
	Dir string
}

// NewSource returns a Source rooted at dir.
func NewSource(dir string) *Source {
	return &Source{Dir: dir}
}

// Load reads the table named by ref. Refs may include the .csv suffix or
// omit it.
func (s *Source) Load(ctx context.Context, ref string) (edk.Rows, error) {
	name := ref
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	path := filepath.Join(s.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening table '%s'", ref)
	}
	defer f.Close()
	rows, err := ReadTable(f)
	return rows, errors.Wrapf(err, "reading table '%s'", ref)
}

// ReadTable reads a whole CSV table, using the first line as header.
func ReadTable(r io.Reader) (edk.Rows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are tolerated, validated below
	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("table is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if err := validateHeader(header); err != nil {
		return nil, errors.Wrap(err, "validating header")
	}
	rows := make(edk.Rows, 0)
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading line %d", line+1)
		}
		line++
		row, err := parseRecord(header, record)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}

func parseRecord(header []string, record []string) (edk.Row, error) {
	if len(record) > len(header) {
		for i := len(header); i < len(record); i++ {
			if strings.TrimSpace(record[i]) != "" {
				return nil, errors.Errorf("data in non-headered field %d: %v", i, record)
			}
		}
	}
	empty := true
	row := make(edk.Row, len(header))
	for i := 0; i < len(header) && i < len(record); i++ {
		v := strings.TrimSpace(record[i])
		if v == "" {
			continue
		}
		empty = false
		row[header[i]] = v
	}
	if empty {
		return nil, nil // skip blank lines
	}
	return row, nil
}

// RawTableSource loads every table produced by an edk.RawSource, keyed by
// reader name without the .csv suffix. Useful for object-store backends
// where listing is cheaper than per-ref access.
type RawTableSource struct {
	rs     edk.RawSource
	loaded map[string]edk.Rows
}

// NewRawTableSource wraps rs.
func NewRawTableSource(rs edk.RawSource) *RawTableSource {
	return &RawTableSource{rs: rs}
}

// Load implements edk.TableSource. The first call drains the raw source;
// later calls serve from the scanned set. Callers normally wrap this in an
// edk.TableCache, which also serializes concurrent access.
func (s *RawTableSource) Load(ctx context.Context, ref string) (edk.Rows, error) {
	if s.loaded == nil {
		if err := s.scan(); err != nil {
			return nil, err
		}
	}
	key := strings.TrimSuffix(ref, ".csv")
	rows, ok := s.loaded[key]
	if !ok {
		return nil, errors.Errorf("raw source has no table '%s'", ref)
	}
	return rows, nil
}

func (s *RawTableSource) scan() error {
	s.loaded = make(map[string]edk.Rows)
	for {
		r, err := s.rs.NextReader()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "getting next reader")
		}
		rows, err := ReadTable(r)
		if cerr := r.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "reading '%s'", r.Name())
		}
		key := strings.TrimSuffix(filepath.Base(r.Name()), ".csv")
		s.loaded[key] = rows
	}
}
