package edk_test

import (
	"testing"

	"github.com/ecodata/edk"
)

var taxLevels = []edk.Level{
	{Name: "family", Column: "tax_fam"},
	{Name: "genus", Column: "tax_gen"},
	{Name: "species", Column: "tax_sp"},
}

func taxRow(fam, gen, sp, id string) edk.Row {
	return edk.Row{"tax_fam": fam, "tax_gen": gen, "tax_sp": sp, "id_taxon": id}
}

func findByLabel(t *testing.T, tree *edk.Tree, label string) *edk.Node {
	t.Helper()
	var found *edk.Node
	for _, n := range tree.Nodes() {
		if n.Label == label {
			if found != nil {
				t.Fatalf("more than one node labeled '%s'", label)
			}
			found = n
		}
	}
	if found == nil {
		t.Fatalf("no node labeled '%s'", label)
	}
	return found
}

func TestBuildAraucariaceae(t *testing.T) {
	b := &edk.Builder{Levels: taxLevels, IDColumn: "id_taxon"}
	tree, err := b.Build(edk.Rows{
		taxRow("Araucariaceae", "Araucaria", "columnaris", "t1"),
		taxRow("Araucariaceae", "Araucaria", "rulei", "t2"),
	})
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	if tree.Len() != 4 {
		t.Fatalf("expected 1 family + 1 genus + 2 species = 4 nodes, got %d", tree.Len())
	}
	fam := findByLabel(t, tree, "Araucariaceae")
	gen := findByLabel(t, tree, "Araucaria")
	col := findByLabel(t, tree, "columnaris")
	rul := findByLabel(t, tree, "rulei")

	if gen.ParentID != fam.ID {
		t.Fatal("genus must share the family as parent")
	}
	if col.ParentID != gen.ID || rul.ParentID != gen.ID {
		t.Fatal("both species must have the genus as parent")
	}
	contains := func(outer, inner *edk.Node) bool {
		return outer.Left < inner.Left && inner.Right < outer.Right
	}
	if !contains(gen, col) || !contains(gen, rul) {
		t.Fatal("genus interval must strictly contain both species intervals")
	}
	if !contains(fam, gen) {
		t.Fatal("family interval must strictly contain the genus interval")
	}
	if col.Natural != "t1" || rul.Natural != "t2" {
		t.Fatalf("species must carry their natural ids, got '%s' and '%s'", col.Natural, rul.Natural)
	}
	// columnaris sorts before rulei, so it must be numbered first.
	if col.Left >= rul.Left {
		t.Fatalf("lexicographic DFS order violated: columnaris [%d,%d], rulei [%d,%d]",
			col.Left, col.Right, rul.Left, rul.Right)
	}
}

func TestBuildInvariants(t *testing.T) {
	b := &edk.Builder{Levels: taxLevels}
	tree, err := b.Build(edk.Rows{
		taxRow("Araucariaceae", "Araucaria", "columnaris", ""),
		taxRow("Araucariaceae", "Agathis", "ovata", ""),
		taxRow("Myrtaceae", "Syzygium", "acre", ""),
		taxRow("Myrtaceae", "Syzygium", "", ""),
	})
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	for _, n := range tree.Nodes() {
		if n.Left >= n.Right {
			t.Fatalf("node '%s': left %d >= right %d", n.Label, n.Left, n.Right)
		}
		if n.ParentID != "" {
			p, ok := tree.Node(n.ParentID)
			if !ok {
				t.Fatalf("node '%s' has dangling parent", n.Label)
			}
			if !(p.Left < n.Left && n.Right < p.Right) {
				t.Fatalf("node '%s' [%d,%d] not inside parent '%s' [%d,%d]",
					n.Label, n.Left, n.Right, p.Label, p.Left, p.Right)
			}
		}
	}
	// Boundaries are contiguous: 2*len(nodes) counters in use.
	used := make(map[int]bool)
	for _, n := range tree.Nodes() {
		if used[n.Left] || used[n.Right] {
			t.Fatalf("node '%s' reuses a boundary", n.Label)
		}
		used[n.Left], used[n.Right] = true, true
	}
	for i := 1; i <= 2*tree.Len(); i++ {
		if !used[i] {
			t.Fatalf("boundary %d unused", i)
		}
	}
}

func TestBuildDeterminism(t *testing.T) {
	rows := edk.Rows{
		taxRow("Myrtaceae", "Syzygium", "acre", "t9"),
		taxRow("Araucariaceae", "Araucaria", "columnaris", "t1"),
		taxRow("Araucariaceae", "Agathis", "ovata", "t3"),
		taxRow("Araucariaceae", "Araucaria", "rulei", "t2"),
	}
	shuffled := edk.Rows{rows[3], rows[1], rows[0], rows[2]}

	b := &edk.Builder{Levels: taxLevels, IDColumn: "id_taxon"}
	first, err := b.Build(rows)
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	second, err := b.Build(shuffled)
	if err != nil {
		t.Fatalf("rebuilding: %v", err)
	}
	if first.Len() != second.Len() {
		t.Fatalf("node counts differ: %d vs %d", first.Len(), second.Len())
	}
	for i, a := range first.Nodes() {
		z := second.Nodes()[i]
		if a.ID != z.ID || a.Left != z.Left || a.Right != z.Right || a.ParentID != z.ParentID {
			t.Fatalf("node %d differs across rebuilds: %+v vs %+v", i, a, z)
		}
	}
}

func TestBuildPlaceholders(t *testing.T) {
	rows := edk.Rows{
		taxRow("Araucariaceae", "", "columnaris", ""),
		taxRow("", "Araucaria", "rulei", ""),
	}
	b := &edk.Builder{Levels: taxLevels, Policy: edk.MergePlaceholders}
	tree, err := b.Build(rows)
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	// Row 1: family -> placeholder genus -> species.
	// Row 2: placeholder family -> genus -> species.
	var fillers int
	for _, n := range tree.Nodes() {
		if n.Placeholder {
			fillers++
			if n.Label != "unknown genus" && n.Label != "unknown family" {
				t.Fatalf("unexpected placeholder label '%s'", n.Label)
			}
		}
	}
	if fillers != 2 {
		t.Fatalf("expected 2 placeholders, got %d", fillers)
	}
	col := findByLabel(t, tree, "columnaris")
	gen, ok := tree.Node(col.ParentID)
	if !ok || !gen.Placeholder {
		t.Fatal("columnaris must hang off the synthesized genus")
	}
}

func TestBuildPlaceholderMergePolicy(t *testing.T) {
	// Same surviving levels, different missing-level patterns.
	rows := edk.Rows{
		taxRow("Araucariaceae", "", "columnaris", ""),
		taxRow("Araucariaceae", "", "rulei", ""),
	}
	merged, err := (&edk.Builder{Levels: taxLevels, Policy: edk.MergePlaceholders}).Build(rows)
	if err != nil {
		t.Fatalf("building merged: %v", err)
	}
	// family + shared placeholder genus + 2 species
	if merged.Len() != 4 {
		t.Fatalf("merge policy: expected 4 nodes, got %d", merged.Len())
	}

	distinct, err := (&edk.Builder{Levels: taxLevels, Policy: edk.DistinctPlaceholders}).Build(rows)
	if err != nil {
		t.Fatalf("building distinct: %v", err)
	}
	// Both rows still share the identical missing pattern, so even the
	// distinct policy yields one placeholder here.
	if distinct.Len() != 4 {
		t.Fatalf("distinct policy: expected 4 nodes, got %d", distinct.Len())
	}
}

func TestBuildMergeKeepsLevelsApart(t *testing.T) {
	// The same value surviving at different depths: a genus "Beilschmiedia"
	// under an unknown family is not the family "Beilschmiedia" with an
	// unknown genus. Under the merge policy both rows have exactly one
	// surviving value, so a level-blind identity would collide and report a
	// spurious conflict.
	rows := edk.Rows{
		taxRow("", "Beilschmiedia", "oreophila", ""),
		taxRow("Beilschmiedia", "", "obscura", ""),
	}
	tree, err := (&edk.Builder{Levels: taxLevels, Policy: edk.MergePlaceholders}).Build(rows)
	if err != nil {
		t.Fatalf("structurally consistent sparse rows must build: %v", err)
	}
	// Two separate three-node subtrees.
	if tree.Len() != 6 {
		t.Fatalf("expected 6 nodes, got %d", tree.Len())
	}
	if len(tree.Roots()) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree.Roots()))
	}
	ore := findByLabel(t, tree, "oreophila")
	gen, ok := tree.Node(ore.ParentID)
	if !ok || gen.Placeholder || gen.Label != "Beilschmiedia" || gen.Level != 1 {
		t.Fatalf("oreophila must hang off the real genus: %+v", gen)
	}
	fam, ok := tree.Node(gen.ParentID)
	if !ok || !fam.Placeholder || fam.Level != 0 {
		t.Fatalf("the genus's parent must be a synthesized family: %+v", fam)
	}
	obs := findByLabel(t, tree, "obscura")
	pgen, ok := tree.Node(obs.ParentID)
	if !ok || !pgen.Placeholder || pgen.Level != 1 {
		t.Fatalf("obscura must hang off a synthesized genus: %+v", pgen)
	}
	pfam, ok := tree.Node(pgen.ParentID)
	if !ok || pfam.Placeholder || pfam.Label != "Beilschmiedia" || pfam.Level != 0 {
		t.Fatalf("the synthesized genus must sit under the real family: %+v", pfam)
	}
}

func TestBuildConflict(t *testing.T) {
	b := &edk.Builder{Levels: taxLevels, IDColumn: "id_taxon"}
	_, err := b.Build(edk.Rows{
		taxRow("Araucariaceae", "Araucaria", "columnaris", "t1"),
		taxRow("Myrtaceae", "Araucaria", "columnaris", "t1"),
	})
	if err == nil {
		t.Fatal("expected conflicting ancestry to fail the build")
	}
	if _, ok := err.(*edk.HierarchyConflictError); !ok {
		t.Fatalf("expected HierarchyConflictError, got %T: %v", err, err)
	}
}

func TestTreeQueries(t *testing.T) {
	b := &edk.Builder{Levels: taxLevels, IDColumn: "id_taxon"}
	tree, err := b.Build(edk.Rows{
		taxRow("Araucariaceae", "Araucaria", "columnaris", "t1"),
		taxRow("Araucariaceae", "Araucaria", "rulei", "t2"),
		taxRow("Araucariaceae", "Agathis", "ovata", "t3"),
		taxRow("Myrtaceae", "Syzygium", "acre", "t4"),
	})
	if err != nil {
		t.Fatalf("building: %v", err)
	}
	fam := findByLabel(t, tree, "Araucariaceae")
	desc, err := tree.DescendantsOf(fam.ID)
	if err != nil {
		t.Fatalf("descendants: %v", err)
	}
	if len(desc) != 5 { // 2 genera + 3 species
		t.Fatalf("expected 5 descendants, got %d", len(desc))
	}
	for _, d := range desc {
		if d.Label == "Syzygium" || d.Label == "acre" || d.Label == "Myrtaceae" {
			t.Fatalf("'%s' is not a descendant of Araucariaceae", d.Label)
		}
	}

	rul := findByLabel(t, tree, "rulei")
	anc, err := tree.AncestorsOf(rul.ID)
	if err != nil {
		t.Fatalf("ancestors: %v", err)
	}
	if len(anc) != 2 {
		t.Fatalf("expected 2 ancestors, got %d", len(anc))
	}
	if anc[0].Label != "Araucariaceae" || anc[1].Label != "Araucaria" {
		t.Fatalf("ancestors out of order: %s, %s", anc[0].Label, anc[1].Label)
	}

	gen := findByLabel(t, tree, "Araucaria")
	keys, err := tree.SubtreeKeys(gen.ID)
	if err != nil {
		t.Fatalf("subtree keys: %v", err)
	}
	for _, want := range []string{gen.ID, "t1", "t2"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("subtree keys missing '%s'", want)
		}
	}
	if _, ok := keys["t3"]; ok {
		t.Fatal("subtree keys must not include the sibling genus's species")
	}

	children, err := tree.ChildrenOf(fam.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 2 || children[0].Label != "Agathis" || children[1].Label != "Araucaria" {
		t.Fatalf("unexpected children: %+v", children)
	}
}

func TestNewTreeRejectsInvalid(t *testing.T) {
	levels := taxLevels[:1]
	nodes := []*edk.Node{
		{ID: "a", Left: 1, Right: 6, Label: "a"},
		{ID: "b", ParentID: "a", Left: 2, Right: 7, Label: "b"}, // crosses parent boundary
	}
	if _, err := edk.NewTree(levels, nodes); err == nil {
		t.Fatal("expected overlapping intervals to be rejected")
	}
	nodes = []*edk.Node{{ID: "a", Left: 3, Right: 3, Label: "a"}}
	if _, err := edk.NewTree(levels, nodes); err == nil {
		t.Fatal("expected left==right to be rejected")
	}
}
