package edk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// Level is one depth of a hierarchy, mapped to a column of the source
// table. Levels are ordered root to leaf, e.g. family, genus, species.
type Level struct {
	Name   string `yaml:"name"`
	Column string `yaml:"column"`
}

// PlaceholderPolicy controls how placeholder nodes synthesized for missing
// intermediate levels are identified.
type PlaceholderPolicy string

const (
	// MergePlaceholders identifies a placeholder by its surviving ancestor
	// values only, so rows with different missing-level patterns but
	// identical surviving levels share one placeholder.
	MergePlaceholders PlaceholderPolicy = "merge"
	// DistinctPlaceholders keeps the empty slot in the identity, so such
	// rows get separate placeholders.
	DistinctPlaceholders PlaceholderPolicy = "distinct"
)

// Node is one member of a built hierarchy. Its id is a stable hash of the
// path of level values leading to it, so rebuilding from unchanged source
// data reproduces identical ids regardless of row order.
type Node struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	// Level indexes into the hierarchy's level sequence.
	Level int `json:"level"`
	// Left and Right are the nested-set interval boundaries. A node's
	// descendants are exactly the nodes whose interval its own strictly
	// contains.
	Left  int    `json:"left"`
	Right int    `json:"right"`
	Label string `json:"label"`
	// Natural is the entity identifier from the source table's id column,
	// when one is configured. Empty for placeholder and interior nodes.
	Natural string `json:"natural,omitempty"`
	// Placeholder marks nodes synthesized for missing intermediate levels.
	Placeholder bool `json:"placeholder,omitempty"`
}

// HierarchyConflictError reports source data that cannot produce a single
// consistent tree, e.g. one natural id appearing under two different paths.
// The build fails rather than guessing.
type HierarchyConflictError struct {
	Level  string
	Key    string
	Detail string
}

func (e *HierarchyConflictError) Error() string {
	return fmt.Sprintf("hierarchy conflict at level '%s' for '%s': %s", e.Level, e.Key, e.Detail)
}

// Builder constructs a nested-set Tree from a flat source table. Rebuilds
// are always total: a build produces a complete new tree, never a patch of
// an existing one.
type Builder struct {
	Levels []Level
	// IDColumn optionally names a column holding a natural entity id for
	// leaf rows.
	IDColumn string
	Policy   PlaceholderPolicy
}

// key separator; never appears in level values that came through Row.
const keySep = "\x1f"

type buildNode struct {
	key       string
	parentKey string
	level     int
	label     string
	natural   string
	filler    bool
	children  []*buildNode
	out       *Node
}

// Build scans rows and produces the hierarchy tree. Rows with no value in
// any level column are skipped. Missing intermediate levels synthesize
// placeholder nodes so the tree is never broken by sparse data.
func (b *Builder) Build(rows Rows) (*Tree, error) {
	if len(b.Levels) == 0 {
		return nil, errors.New("hierarchy has no levels")
	}
	policy := b.Policy
	if policy == "" {
		policy = MergePlaceholders
	}

	byKey := make(map[string]*buildNode)
	naturals := make(map[string]*buildNode)
	order := make([]*buildNode, 0)

	for i, row := range rows {
		values := make([]string, len(b.Levels))
		deepest := -1
		for d, lvl := range b.Levels {
			values[d] = strings.TrimSpace(row[lvl.Column])
			if values[d] != "" {
				deepest = d
			}
		}
		if deepest < 0 {
			continue
		}
		parentKey := ""
		for d := 0; d <= deepest; d++ {
			key := b.nodeKey(values, d, policy)
			label := values[d]
			filler := label == ""
			if filler {
				label = "unknown " + b.Levels[d].Name
			}
			natural := ""
			if d == deepest && b.IDColumn != "" {
				natural = strings.TrimSpace(row[b.IDColumn])
			}
			if natural != "" {
				// The same natural id reached through two different paths
				// is a structural inconsistency, not two entities.
				if prev, ok := naturals[natural]; ok && prev.key != key {
					return nil, &HierarchyConflictError{
						Level:  b.Levels[d].Name,
						Key:    label,
						Detail: fmt.Sprintf("id '%s' already belongs to '%s'", natural, prev.label),
					}
				}
			}
			if n, ok := byKey[key]; ok {
				if n.parentKey != parentKey {
					return nil, &HierarchyConflictError{
						Level:  b.Levels[d].Name,
						Key:    label,
						Detail: fmt.Sprintf("row %d places it under a different parent than an earlier row", i),
					}
				}
				if natural != "" {
					if n.natural != "" && n.natural != natural {
						return nil, &HierarchyConflictError{
							Level:  b.Levels[d].Name,
							Key:    label,
							Detail: fmt.Sprintf("conflicting ids '%s' and '%s'", n.natural, natural),
						}
					}
					n.natural = natural
					naturals[natural] = n
				}
			} else {
				n := &buildNode{
					key:       key,
					parentKey: parentKey,
					level:     d,
					label:     label,
					natural:   natural,
					filler:    filler,
				}
				byKey[key] = n
				order = append(order, n)
				if natural != "" {
					naturals[natural] = n
				}
				if parentKey != "" {
					byKey[parentKey].children = append(byKey[parentKey].children, n)
				}
			}
			parentKey = key
		}
	}

	roots := make([]*buildNode, 0)
	for _, n := range order {
		if n.parentKey == "" {
			roots = append(roots, n)
		}
	}

	// Deterministic numbering: children visited lexicographically by label,
	// with the identity key breaking label ties.
	sortNodes := func(ns []*buildNode) {
		sort.Slice(ns, func(i, j int) bool {
			if ns[i].label != ns[j].label {
				return ns[i].label < ns[j].label
			}
			return ns[i].key < ns[j].key
		})
	}
	sortNodes(roots)

	counter := 0
	nodes := make([]*Node, 0, len(order))
	var visit func(n *buildNode, parentID string)
	visit = func(n *buildNode, parentID string) {
		counter++
		out := &Node{
			ID:          nodeID(n.level, n.key),
			ParentID:    parentID,
			Level:       n.level,
			Left:        counter,
			Label:       n.label,
			Natural:     n.natural,
			Placeholder: n.filler,
		}
		n.out = out
		nodes = append(nodes, out)
		sortNodes(n.children)
		for _, c := range n.children {
			visit(c, out.ID)
		}
		counter++
		out.Right = counter
	}
	for _, r := range roots {
		visit(r, "")
	}

	return NewTree(b.Levels, nodes)
}

// nodeKey computes the identity of the node at depth d for one row's level
// values. Under the merge policy, empty intermediate values are dropped
// from the identity. Each surviving value carries its source level index:
// a value at genus depth must never collide with the same value at family
// depth when the slots around them are empty.
func (b *Builder) nodeKey(values []string, d int, policy PlaceholderPolicy) string {
	parts := make([]string, 0, d+1)
	for i := 0; i <= d; i++ {
		if values[i] == "" && policy == MergePlaceholders {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d=%s", i, values[i]))
	}
	return fmt.Sprintf("%d%s%s", d, keySep, strings.Join(parts, keySep))
}

// nodeID derives the stable node id by hashing the level index together
// with the identity path.
func nodeID(level int, key string) string {
	h := xxh3.HashString128(fmt.Sprintf("%d%s%s", level, keySep, key))
	return fmt.Sprintf("%016x%016x", h.Hi, h.Lo)
}

// Tree is an immutable nested-set hierarchy. It is safe for concurrent
// reads by any number of entity workers.
type Tree struct {
	levels  []Level
	byID    map[string]*Node
	preordr []*Node // ascending by Left
}

// NewTree assembles a Tree from nodes and validates the nested-set
// invariants: every left < right, child intervals strictly contained in
// their parent's, sibling intervals disjoint. Used both by the Builder and
// when reloading a persisted tree.
func NewTree(levels []Level, nodes []*Node) (*Tree, error) {
	t := &Tree{
		levels:  levels,
		byID:    make(map[string]*Node, len(nodes)),
		preordr: make([]*Node, len(nodes)),
	}
	copy(t.preordr, nodes)
	sort.Slice(t.preordr, func(i, j int) bool { return t.preordr[i].Left < t.preordr[j].Left })

	for _, n := range t.preordr {
		if n.Left >= n.Right {
			return nil, errors.Errorf("node '%s' has invalid interval [%d,%d]", n.Label, n.Left, n.Right)
		}
		if _, ok := t.byID[n.ID]; ok {
			return nil, errors.Errorf("duplicate node id '%s'", n.ID)
		}
		t.byID[n.ID] = n
	}
	stack := make([]*Node, 0)
	for _, n := range t.preordr {
		for len(stack) > 0 && n.Left > stack[len(stack)-1].Right {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			if n.ParentID != "" {
				return nil, errors.Errorf("root-positioned node '%s' claims parent '%s'", n.Label, n.ParentID)
			}
		} else {
			top := stack[len(stack)-1]
			if n.Right >= top.Right {
				return nil, errors.Errorf("node '%s' interval [%d,%d] overlaps '%s' [%d,%d]",
					n.Label, n.Left, n.Right, top.Label, top.Left, top.Right)
			}
			if n.ParentID != top.ID {
				return nil, errors.Errorf("node '%s' is inside '%s' but claims a different parent", n.Label, top.Label)
			}
		}
		stack = append(stack, n)
	}
	return t, nil
}

// Levels returns the hierarchy's level sequence.
func (t *Tree) Levels() []Level { return t.levels }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.preordr) }

// Node returns the node with the given id.
func (t *Tree) Node(id string) (*Node, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Nodes returns all nodes in depth-first (ascending Left) order. Callers
// must not modify the returned slice or nodes.
func (t *Tree) Nodes() []*Node { return t.preordr }

// Roots returns the top-level nodes.
func (t *Tree) Roots() []*Node {
	out := make([]*Node, 0)
	for _, n := range t.preordr {
		if n.ParentID == "" {
			out = append(out, n)
		}
	}
	return out
}

// DescendantsOf returns the nodes strictly inside the given node's
// interval, in depth-first order. A single range condition; no recursion.
func (t *Tree) DescendantsOf(id string) ([]*Node, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, errors.Errorf("no node with id '%s'", id)
	}
	i := sort.Search(len(t.preordr), func(i int) bool { return t.preordr[i].Left > n.Left })
	out := make([]*Node, 0)
	for ; i < len(t.preordr) && t.preordr[i].Left < n.Right; i++ {
		out = append(out, t.preordr[i])
	}
	return out, nil
}

// AncestorsOf returns the nodes whose interval strictly contains the given
// node's, ordered root first.
func (t *Tree) AncestorsOf(id string) ([]*Node, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, errors.Errorf("no node with id '%s'", id)
	}
	out := make([]*Node, 0)
	for _, c := range t.preordr {
		if c.Left >= n.Left {
			break
		}
		if c.Right > n.Right {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChildrenOf returns the direct children of the given node in label order.
func (t *Tree) ChildrenOf(id string) ([]*Node, error) {
	desc, err := t.DescendantsOf(id)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0)
	for _, n := range desc {
		if n.ParentID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

// SubtreeKeys returns the ids and natural ids of the node and all its
// descendants, as a membership set for row filtering.
func (t *Tree) SubtreeKeys(id string) (map[string]struct{}, error) {
	n, ok := t.byID[id]
	if !ok {
		return nil, errors.Errorf("no node with id '%s'", id)
	}
	desc, err := t.DescendantsOf(id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(desc)+1)
	add := func(n *Node) {
		out[n.ID] = struct{}{}
		if n.Natural != "" {
			out[n.Natural] = struct{}{}
		}
	}
	add(n)
	for _, d := range desc {
		add(d)
	}
	return out, nil
}
