package fake_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/ecodata/edk/fake"
)

func TestGeneratorDeterministic(t *testing.T) {
	a := fake.NewGenerator(42).Rows(50)
	b := fake.NewGenerator(42).Rows(50)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed must generate identical rows")
	}
	c := fake.NewGenerator(43).Rows(50)
	if reflect.DeepEqual(a, c) {
		t.Fatal("different seeds should diverge")
	}
}

func TestGeneratorRowShape(t *testing.T) {
	rows := fake.NewGenerator(1).Rows(100)
	for _, r := range rows {
		if r["id_taxon"] == "" || r["tax_fam"] == "" || r["tax_sp"] == "" {
			t.Fatalf("taxonomy must always be present: %v", r)
		}
		if _, err := r.Float("lat"); err != nil {
			t.Fatalf("lat must parse: %v", r)
		}
		if _, err := r.Float("lon"); err != nil {
			t.Fatalf("lon must parse: %v", r)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := fake.NewGenerator(7).WriteCSV(&buf, 10); err != nil {
		t.Fatalf("writing csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 11 {
		t.Fatalf("expected header + 10 records, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(fake.Columns, ",") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
}
