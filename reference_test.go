package edk_test

import (
	"testing"

	"github.com/ecodata/edk"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		in        string
		isRef     bool
		outputKey string
		path      []string
		op        edk.RefOp
		field     string
		n         int
	}{
		{in: "plain string", isRef: false},
		{in: "@occ", isRef: true, outputKey: "occ", op: edk.OpValue},
		{in: "@occ.all", isRef: true, outputKey: "occ", op: edk.OpAll},
		{in: "@occ.count", isRef: true, outputKey: "occ", op: edk.OpCount},
		{in: "@occ.first", isRef: true, outputKey: "occ", op: edk.OpFirst},
		{in: "@occ.first:name", isRef: true, outputKey: "occ", op: edk.OpFirst, field: "name"},
		{in: "@occ.unique:plot", isRef: true, outputKey: "occ", op: edk.OpUnique, field: "plot"},
		{in: "@occ.take:3", isRef: true, outputKey: "occ", op: edk.OpTake, n: 3},
		{in: "@stats.summary.mean", isRef: true, outputKey: "stats", path: []string{"summary", "mean"}, op: edk.OpValue},
		{in: "@stats.cells.count", isRef: true, outputKey: "stats", path: []string{"cells"}, op: edk.OpCount},
	}
	for _, test := range tests {
		ref, isRef, err := edk.ParseReference(test.in)
		if err != nil {
			t.Fatalf("parsing '%s': %v", test.in, err)
		}
		if isRef != test.isRef {
			t.Fatalf("'%s': isRef=%v, expected %v", test.in, isRef, test.isRef)
		}
		if !isRef {
			continue
		}
		if ref.OutputKey != test.outputKey || ref.Op != test.op || ref.Field != test.field || ref.N != test.n {
			t.Fatalf("'%s': got %+v", test.in, ref)
		}
		if len(ref.Path) != len(test.path) {
			t.Fatalf("'%s': path %v, expected %v", test.in, ref.Path, test.path)
		}
		for i := range test.path {
			if ref.Path[i] != test.path[i] {
				t.Fatalf("'%s': path %v, expected %v", test.in, ref.Path, test.path)
			}
		}
	}
}

func TestParseReferenceErrors(t *testing.T) {
	for _, in := range []string{"@", "@occ.", "@occ..all", "@occ.unique", "@occ.take:0", "@occ.take:x", "@occ.count:2"} {
		_, isRef, err := edk.ParseReference(in)
		if !isRef {
			t.Fatalf("'%s' should be recognized as a reference", in)
		}
		if err == nil {
			t.Fatalf("'%s' should fail to parse", in)
		}
	}
}

func refResults() map[string]interface{} {
	return map[string]interface{}{
		"step1": []interface{}{
			map[string]interface{}{"name": "Araucaria columnaris", "plot": "p1"},
			map[string]interface{}{"name": "Araucaria rulei", "plot": "p1"},
			map[string]interface{}{"name": "Agathis ovata", "plot": "p2"},
			map[string]interface{}{"name": "Agathis ovata", "plot": "p3"},
			map[string]interface{}{"name": "Araucaria rulei", "plot": "p2"},
		},
		"stats": map[string]interface{}{
			"summary": map[string]interface{}{"mean": 12.5},
		},
	}
}

func mustParseRef(t *testing.T, s string) *edk.Reference {
	t.Helper()
	ref, isRef, err := edk.ParseReference(s)
	if err != nil || !isRef {
		t.Fatalf("parsing '%s': isRef=%v err=%v", s, isRef, err)
	}
	return ref
}

func TestResolveCount(t *testing.T) {
	v, err := mustParseRef(t, "@step1.count").Resolve(refResults())
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if v != 5 {
		t.Fatalf("expected 5, got %v", v)
	}
}

func TestResolveFirstField(t *testing.T) {
	v, err := mustParseRef(t, "@step1.first:name").Resolve(refResults())
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if v != "Araucaria columnaris" {
		t.Fatalf("expected first name, got %v", v)
	}
}

func TestResolveUnique(t *testing.T) {
	v, err := mustParseRef(t, "@step1.unique:plot").Resolve(refResults())
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	plots, ok := v.([]interface{})
	if !ok || len(plots) != 3 {
		t.Fatalf("expected 3 unique plots, got %#v", v)
	}
	// first-seen order
	for i, want := range []string{"p1", "p2", "p3"} {
		if plots[i] != want {
			t.Fatalf("position %d: expected %s, got %v", i, want, plots[i])
		}
	}
}

func TestResolveTakeAndPath(t *testing.T) {
	v, err := mustParseRef(t, "@step1.take:2").Resolve(refResults())
	if err != nil {
		t.Fatalf("resolving take: %v", err)
	}
	if list := v.([]interface{}); len(list) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(list))
	}
	v, err = mustParseRef(t, "@stats.summary.mean").Resolve(refResults())
	if err != nil {
		t.Fatalf("resolving path: %v", err)
	}
	if v != 12.5 {
		t.Fatalf("expected 12.5, got %v", v)
	}
}

func TestResolveRows(t *testing.T) {
	results := map[string]interface{}{
		"occ": edk.Rows{
			{"plot": "p1", "dbh": "10"},
			{"plot": "p2", "dbh": "20"},
		},
	}
	v, err := mustParseRef(t, "@occ.count").Resolve(results)
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected 2, got %v", v)
	}
	v, err = mustParseRef(t, "@occ.first:plot").Resolve(results)
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if v != "p1" {
		t.Fatalf("expected p1, got %v", v)
	}
}

func TestResolveUnresolved(t *testing.T) {
	_, err := mustParseRef(t, "@missing.count").Resolve(refResults())
	if err == nil {
		t.Fatal("expected unresolved reference error")
	}
	ue, ok := err.(*edk.UnresolvedReferenceError)
	if !ok {
		t.Fatalf("expected UnresolvedReferenceError, got %T: %v", err, err)
	}
	if ue.OutputKey != "missing" {
		t.Fatalf("unexpected output key '%s'", ue.OutputKey)
	}
}

func TestParseParamsRewritesTree(t *testing.T) {
	raw := map[string]interface{}{
		"rows":  "@occ.all",
		"title": "Occurrences",
		"items": []interface{}{
			map[string]interface{}{"label": "count", "value": "@occ.count"},
		},
	}
	parsed, err := edk.ParseParams(raw)
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if _, ok := parsed["rows"].(*edk.Reference); !ok {
		t.Fatalf("rows should be a parsed reference, got %T", parsed["rows"])
	}
	if parsed["title"] != "Occurrences" {
		t.Fatalf("literals must pass through, got %v", parsed["title"])
	}
	item := parsed["items"].([]interface{})[0].(map[string]interface{})
	if _, ok := item["value"].(*edk.Reference); !ok {
		t.Fatalf("nested reference should be parsed, got %T", item["value"])
	}
}
