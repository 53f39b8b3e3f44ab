// Package tree implements the binary decision trees that cluster contexts
// into acoustic-model leaves. Nodes live in a flat arena and refer to each
// other by index.
package tree

import (
	"fmt"
	"sort"

	"github.com/ieee0824/voicecluster-go/acoustic"
	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/logging"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/question"
)

var log = logging.Component("tree")

// NodeID indexes a node in its tree's arena.
type NodeID int

// NoNode is the null reference.
const NoNode NodeID = -1

// Node is either a leaf naming an acoustic stream or a non-leaf asking a
// question. Non-leaves have exactly two children; leaves have none.
type Node struct {
	Leaf     bool
	LeafName string
	Index    int // non-leaf name: 0 for the root, then -1, -2, ...
	Question string
	Parent   NodeID
	No       NodeID
	Yes      NodeID
}

// Tree is a named decision tree rooted at index 0 of its arena.
type Tree struct {
	name   string
	nodes  []Node
	root   NodeID
	leaves map[string]NodeID
}

// NewLeaf returns a degenerate tree made of a single leaf.
func NewLeaf(name, leafName string) (*Tree, error) {
	if _, err := ParseName(name); err != nil {
		return nil, err
	}
	t := &Tree{name: name}
	t.nodes = []Node{{Leaf: true, LeafName: leafName, Parent: NoNode, No: NoNode, Yes: NoNode}}
	t.root = 0
	t.leaves = map[string]NodeID{leafName: 0}
	return t, nil
}

// Split replaces leaf leafName with a non-leaf asking questionName whose
// children are two new leaves.
func (t *Tree) Split(leafName, questionName, noLeaf, yesLeaf string) error {
	id, ok := t.leaves[leafName]
	if !ok {
		return fmt.Errorf("%w: leaf %q not in tree %s", errs.ErrReference, leafName, t.name)
	}
	if noLeaf == yesLeaf {
		return fmt.Errorf("%w: split of %q reuses leaf name %q", errs.ErrConflict, leafName, noLeaf)
	}
	for _, n := range []string{noLeaf, yesLeaf} {
		if _, dup := t.leaves[n]; dup && n != leafName {
			return fmt.Errorf("%w: leaf %q already in tree %s", errs.ErrConflict, n, t.name)
		}
	}
	delete(t.leaves, leafName)

	no := t.add(Node{Leaf: true, LeafName: noLeaf, Parent: id, No: NoNode, Yes: NoNode})
	yes := t.add(Node{Leaf: true, LeafName: yesLeaf, Parent: id, No: NoNode, Yes: NoNode})
	n := &t.nodes[id]
	n.Leaf = false
	n.LeafName = ""
	n.Question = questionName
	n.No, n.Yes = no, yes
	t.leaves[noLeaf] = no
	t.leaves[yesLeaf] = yes
	t.AssignNames()
	return nil
}

func (t *Tree) add(n Node) NodeID {
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// Rename replaces the tree name after validating it.
func (t *Tree) Rename(name string) error {
	if _, err := ParseName(name); err != nil {
		return err
	}
	t.name = name
	return nil
}

// Info decodes the tree name. Names are validated whenever they are set.
func (t *Tree) Info() Name {
	n, _ := ParseName(t.name)
	return n
}

// Root returns the root node.
func (t *Tree) Root() NodeID { return t.root }

// Node returns the node with the given id. The pointer is invalidated by any
// structural mutation.
func (t *Tree) Node(id NodeID) *Node { return &t.nodes[id] }

// NodeCount returns the number of nodes.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// LeafCount returns the number of leaves.
func (t *Tree) LeafCount() int { return len(t.leaves) }

// Leaf looks up a leaf by name.
func (t *Tree) Leaf(name string) (NodeID, bool) {
	id, ok := t.leaves[name]
	return id, ok
}

// Leaves returns leaf names in pre-order.
func (t *Tree) Leaves() []string {
	var out []string
	t.PreOrderVisit(func(_ NodeID, n *Node) bool {
		if n.Leaf {
			out = append(out, n.LeafName)
		}
		return true
	})
	return out
}

// QuestionNames returns the distinct questions asked by non-leaves, sorted.
func (t *Tree) QuestionNames() []string {
	seen := make(map[string]bool)
	for i := range t.nodes {
		if !t.nodes[i].Leaf {
			seen[t.nodes[i].Question] = true
		}
	}
	out := make([]string, 0, len(seen))
	for q := range seen {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// LeafInfo decodes a leaf name with the stream macro grammar.
func LeafInfo(leafName string) (acoustic.MacroName, bool) {
	return acoustic.ParseMacroName(leafName)
}

// PreOrderVisit walks node, no-child, yes-child. The walk stops as soon as
// visit returns false; the result reports whether it ran to completion.
func (t *Tree) PreOrderVisit(visit func(id NodeID, n *Node) bool) bool {
	if len(t.nodes) == 0 {
		return true
	}
	stack := []NodeID{t.root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &t.nodes[id]
		if !visit(id, n) {
			return false
		}
		if !n.Leaf {
			stack = append(stack, n.Yes, n.No)
		}
	}
	return true
}

// Filter descends from the root, asking each non-leaf's question of the
// label, and returns the leaf reached.
func (t *Tree) Filter(questions map[string]*question.Question, l *label.Label) (string, error) {
	id := t.root
	for {
		n := &t.nodes[id]
		if n.Leaf {
			return n.LeafName, nil
		}
		q, ok := questions[n.Question]
		if !ok {
			return "", fmt.Errorf("%w: question %q used by tree %s", errs.ErrReference, n.Question, t.name)
		}
		yes, err := q.Matches(l)
		if err != nil {
			return "", fmt.Errorf("tree %s: %w", t.name, err)
		}
		if yes {
			id = n.Yes
		} else {
			id = n.No
		}
	}
}

// Validate checks the binary-tree invariants.
func (t *Tree) Validate() error {
	if len(t.nodes) == 0 {
		return fmt.Errorf("%w: tree %s has no nodes", errs.ErrStructural, t.name)
	}
	if t.nodes[t.root].Parent != NoNode {
		return fmt.Errorf("%w: tree %s root has a parent", errs.ErrStructural, t.name)
	}
	reached := 0
	var bad error
	t.PreOrderVisit(func(id NodeID, n *Node) bool {
		reached++
		if n.Leaf {
			if n.No != NoNode || n.Yes != NoNode {
				bad = fmt.Errorf("%w: leaf %q of tree %s has children", errs.ErrStructural, n.LeafName, t.name)
			}
			return bad == nil
		}
		if n.No == NoNode || n.Yes == NoNode {
			bad = fmt.Errorf("%w: node %d of tree %s lacks two children", errs.ErrStructural, n.Index, t.name)
			return false
		}
		if t.nodes[n.No].Parent != id || t.nodes[n.Yes].Parent != id {
			bad = fmt.Errorf("%w: node %d of tree %s has inconsistent parent links", errs.ErrStructural, n.Index, t.name)
			return false
		}
		return true
	})
	if bad != nil {
		return bad
	}
	if reached != len(t.nodes) {
		return fmt.Errorf("%w: tree %s has %d unreachable nodes", errs.ErrStructural, t.name, len(t.nodes)-reached)
	}
	return nil
}

// AssignNames numbers non-leaves 0, -1, -2, ... in pre-order and reorders
// the arena so non-leaves come first by descending name, then the leaves.
func (t *Tree) AssignNames() {
	var order []NodeID
	next := 0
	t.PreOrderVisit(func(id NodeID, n *Node) bool {
		if !n.Leaf {
			n.Index = next
			next--
		}
		order = append(order, id)
		return true
	})
	sort.SliceStable(order, func(i, j int) bool {
		return sortKey(&t.nodes[order[i]]) > sortKey(&t.nodes[order[j]])
	})
	t.reorder(order)
}

// sortKey ranks leaves below every non-leaf.
func sortKey(n *Node) int {
	if n.Leaf {
		return minSortKey
	}
	return n.Index
}

const minSortKey = -1 << 62

// reorder rebuilds the arena in the given order, dropping nodes not listed.
func (t *Tree) reorder(order []NodeID) {
	remap := make(map[NodeID]NodeID, len(order))
	for i, id := range order {
		remap[id] = NodeID(i)
	}
	mapID := func(id NodeID) NodeID {
		if id == NoNode {
			return NoNode
		}
		return remap[id]
	}
	nodes := make([]Node, len(order))
	leaves := make(map[string]NodeID)
	for i, id := range order {
		n := t.nodes[id]
		n.Parent = mapID(n.Parent)
		n.No = mapID(n.No)
		n.Yes = mapID(n.Yes)
		nodes[i] = n
		if n.Leaf {
			leaves[n.LeafName] = NodeID(i)
		}
	}
	t.root = mapID(t.root)
	t.nodes = nodes
	t.leaves = leaves
}

// compact drops nodes no longer reachable from the root.
func (t *Tree) compact() {
	var order []NodeID
	t.PreOrderVisit(func(id NodeID, _ *Node) bool {
		order = append(order, id)
		return true
	})
	t.reorder(order)
}

// DeleteLeaves removes every named leaf together with its parent, hoisting
// the parent's other child into the grandparent. Parent links are
// snapshotted before the first splice; a leaf whose snapshot parent was
// already removed by an earlier deletion of the same batch is kept, as is a
// root leaf. Leaves are processed in name order. It returns the names
// actually deleted.
func (t *Tree) DeleteLeaves(names []string) []string {
	targets := make([]string, 0, len(names))
	snapshot := make(map[NodeID]NodeID)
	for _, name := range names {
		if id, ok := t.leaves[name]; ok {
			if _, dup := snapshot[id]; !dup {
				targets = append(targets, name)
			}
			snapshot[id] = t.nodes[id].Parent
		}
	}
	sort.Strings(targets)

	removed := make(map[NodeID]bool)
	var deleted []string
	for _, name := range targets {
		id := t.leaves[name]
		p := snapshot[id]
		if p == NoNode {
			log.WithField("tree", t.name).WithField("leaf", name).Debug("root leaf kept")
			continue
		}
		if removed[p] {
			log.WithField("tree", t.name).WithField("leaf", name).Debug("parent already spliced out in this batch, leaf kept")
			continue
		}
		parent := &t.nodes[p]
		sibling := parent.No
		if sibling == id {
			sibling = parent.Yes
		}
		g := parent.Parent
		t.nodes[sibling].Parent = g
		if g == NoNode {
			t.root = sibling
		} else if t.nodes[g].No == p {
			t.nodes[g].No = sibling
		} else {
			t.nodes[g].Yes = sibling
		}
		removed[id], removed[p] = true, true
		delete(t.leaves, name)
		deleted = append(deleted, name)
	}
	if len(deleted) > 0 {
		t.compact()
		t.AssignNames()
	}
	return deleted
}

// PruneStream drops index from the tree's stream list.
func (t *Tree) PruneStream(index int) error {
	info := t.Info()
	streams := info.StreamIndexes()
	pos := -1
	for i, s := range streams {
		if s == index {
			pos = i
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: stream %d not governed by tree %s", errs.ErrReference, index, t.name)
	}
	if len(streams) == 1 {
		return fmt.Errorf("%w: stream %d is the only stream of tree %s", errs.ErrStructural, index, t.name)
	}
	kept := make([]int, 0, len(streams)-1)
	kept = append(kept, streams[:pos]...)
	kept = append(kept, streams[pos+1:]...)
	info.Streams = kept
	t.name = info.String()
	return nil
}

// HasStream reports whether the tree governs stream index.
func (t *Tree) HasStream(index int) bool {
	for _, s := range t.Info().StreamIndexes() {
		if s == index {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (t *Tree) Clone() *Tree {
	c := &Tree{name: t.name, root: t.root}
	c.nodes = append([]Node(nil), t.nodes...)
	c.leaves = make(map[string]NodeID, len(t.leaves))
	for k, v := range t.leaves {
		c.leaves[k] = v
	}
	return c
}
