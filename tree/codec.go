package tree

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// Load parses one tree block of a forest file. The block is either
//
//	"<treeName>"
//	"<leafName>"
//
// for a single-leaf tree, or
//
//	"<treeName>"
//	{
//	<nodeName> <questionName> <noChildRef> <yesChildRef>
//	...
//	}
//
// where node names are 0, -1, -2, ... and a child reference starting with
// '-' names another non-leaf; anything else is a quoted leaf name.
func Load(lines []string) (*Tree, error) {
	trimmed := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			trimmed = append(trimmed, l)
		}
	}
	if len(trimmed) == 0 {
		return nil, errs.Formatf("empty tree block")
	}
	name, err := unquote(trimmed[0])
	if err != nil {
		return nil, fmt.Errorf("tree name: %w", err)
	}
	if _, err := ParseName(name); err != nil {
		return nil, err
	}

	switch {
	case len(trimmed) == 2:
		leaf, err := unquote(trimmed[1])
		if err != nil {
			return nil, fmt.Errorf("tree %s: %w", name, err)
		}
		return NewLeaf(name, leaf)
	case len(trimmed) >= 4 && trimmed[1] == "{" && trimmed[len(trimmed)-1] == "}":
		return loadBody(name, trimmed[2:len(trimmed)-1])
	}
	return nil, errs.Formatf("tree %s: block is neither a single leaf nor a braced body", name)
}

type rawNode struct {
	index    int
	question string
	no, yes  string
}

func loadBody(name string, body []string) (*Tree, error) {
	t := &Tree{name: name, root: NoNode, leaves: make(map[string]NodeID)}
	byIndex := make(map[int]NodeID)
	raws := make([]rawNode, 0, len(body))

	for _, line := range body {
		f := strings.Fields(line)
		if len(f) != 4 {
			return nil, errs.Formatf("tree %s: node line %q: want 4 fields, got %d", name, line, len(f))
		}
		idx, err := strconv.Atoi(f[0])
		if err != nil || idx > 0 {
			return nil, errs.Formatf("tree %s: node name %q is not a non-positive integer", name, f[0])
		}
		if _, dup := byIndex[idx]; dup {
			return nil, errs.Formatf("tree %s: node %d defined twice", name, idx)
		}
		id := t.add(Node{Index: idx, Question: f[1], Parent: NoNode, No: NoNode, Yes: NoNode})
		byIndex[idx] = id
		raws = append(raws, rawNode{index: idx, question: f[1], no: f[2], yes: f[3]})
	}

	root, ok := byIndex[0]
	if !ok {
		return nil, errs.Formatf("tree %s: no root node 0", name)
	}
	t.root = root

	for _, r := range raws {
		id := byIndex[r.index]
		no, err := t.child(name, id, r.no, byIndex)
		if err != nil {
			return nil, err
		}
		yes, err := t.child(name, id, r.yes, byIndex)
		if err != nil {
			return nil, err
		}
		t.nodes[id].No = no
		t.nodes[id].Yes = yes
	}

	for idx, id := range byIndex {
		if id != root && t.nodes[id].Parent == NoNode {
			return nil, errs.Formatf("tree %s: node %d is never referenced", name, idx)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) child(treeName string, parent NodeID, ref string, byIndex map[int]NodeID) (NodeID, error) {
	if strings.HasPrefix(ref, "-") {
		idx, err := strconv.Atoi(ref)
		if err != nil {
			return NoNode, errs.Formatf("tree %s: child reference %q", treeName, ref)
		}
		id, ok := byIndex[idx]
		if !ok {
			return NoNode, errs.Formatf("tree %s: undefined node %d", treeName, idx)
		}
		if t.nodes[id].Parent != NoNode {
			return NoNode, errs.Formatf("tree %s: node %d referenced twice", treeName, idx)
		}
		t.nodes[id].Parent = parent
		return id, nil
	}

	leaf := strings.Trim(ref, `"`)
	if leaf == "" {
		return NoNode, errs.Formatf("tree %s: empty leaf name", treeName)
	}
	if _, dup := t.leaves[leaf]; dup {
		return NoNode, errs.Formatf("tree %s: leaf %q appears twice", treeName, leaf)
	}
	id := t.add(Node{Leaf: true, LeafName: leaf, Parent: parent, No: NoNode, Yes: NoNode})
	t.leaves[leaf] = id
	return id, nil
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", errs.Formatf("expected quoted name, got %q", s)
	}
	return s[1 : len(s)-1], nil
}

// Save writes the tree in the block form read by Load. Non-leaf names are
// reassigned first.
func (t *Tree) Save(w io.Writer) error {
	t.AssignNames()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%q\n", t.name)
	root := &t.nodes[t.root]
	if root.Leaf {
		fmt.Fprintf(bw, "%q\n", root.LeafName)
		return bw.Flush()
	}
	fmt.Fprintln(bw, "{")
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Leaf {
			break
		}
		fmt.Fprintf(bw, "%4d %s %s %s\n", n.Index, n.Question, t.ref(n.No), t.ref(n.Yes))
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func (t *Tree) ref(id NodeID) string {
	n := &t.nodes[id]
	if n.Leaf {
		return strconv.Quote(n.LeafName)
	}
	return strconv.Itoa(n.Index)
}
