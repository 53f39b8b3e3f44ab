// Package triphone enumerates the phone contexts each decision-tree leaf
// serves.
package triphone

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/forest"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/question"
	"github.com/ieee0824/voicecluster-go/tree"
)

// Triphone is a context-dependent phone written "left-center+right".
type Triphone string

// Make builds a triphone from its parts.
func Make(left, center, right string) Triphone {
	return Triphone(left + "-" + center + "+" + right)
}

// Parts splits the triphone. ok is false for a bare monophone.
func (t Triphone) Parts() (left, center, right string, ok bool) {
	s := string(t)
	dash := strings.IndexByte(s, '-')
	plus := strings.LastIndexByte(s, '+')
	if dash < 0 || plus < dash {
		return "", s, "", false
	}
	return s[:dash], s[dash+1 : plus], s[plus+1:], true
}

// Center returns the central phone. A bare monophone is its own center.
func (t Triphone) Center() string {
	_, c, _, _ := t.Parts()
	return c
}

// Label places the triphone's phones into a fresh label over schema.
func (t Triphone) Label(schema *label.Schema) (*label.Label, error) {
	l, c, r, ok := t.Parts()
	if !ok {
		return nil, errs.Formatf("triphone %q is not left-center+right", string(t))
	}
	lab := label.New(schema)
	for _, kv := range [][2]string{
		{label.FeatureLeftPhone, l},
		{label.FeatureCentralPhone, c},
		{label.FeatureRightPhone, r},
	} {
		if err := lab.SetFeature(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return lab, nil
}

// FromPhones converts a phone sequence into triphones, using boundary as the
// context outside the sequence.
func FromPhones(phones []string, boundary string) []Triphone {
	if len(phones) == 0 {
		return nil
	}
	out := make([]Triphone, len(phones))
	for i, p := range phones {
		left, right := boundary, boundary
		if i > 0 {
			left = phones[i-1]
		}
		if i < len(phones)-1 {
			right = phones[i+1]
		}
		out[i] = Make(left, p, right)
	}
	return out
}

// Set holds the left, central and right phones a leaf accepts. Each list is
// sorted.
type Set struct {
	Left    []string `json:"left"`
	Central []string `json:"central"`
	Right   []string `json:"right"`
}

// Size is the number of triphones the set spans.
func (s *Set) Size() int {
	return len(s.Left) * len(s.Central) * len(s.Right)
}

// Empty reports whether no triphone reaches the leaf.
func (s *Set) Empty() bool {
	return s.Size() == 0
}

// Triphones expands the Cartesian product in left, central, right order.
func (s *Set) Triphones() []Triphone {
	out := make([]Triphone, 0, s.Size())
	for _, l := range s.Left {
		for _, c := range s.Central {
			for _, r := range s.Right {
				out = append(out, Make(l, c, r))
			}
		}
	}
	return out
}

// Contains reports whether the set spans t.
func (s *Set) Contains(t Triphone) bool {
	l, c, r, ok := t.Parts()
	return ok && has(s.Left, l) && has(s.Central, c) && has(s.Right, r)
}

func has(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

func (s *Set) slot(feature string) *[]string {
	switch feature {
	case label.FeatureLeftPhone:
		return &s.Left
	case label.FeatureCentralPhone:
		return &s.Central
	case label.FeatureRightPhone:
		return &s.Right
	}
	return nil
}

func (s *Set) clone() *Set {
	return &Set{
		Left:    append([]string(nil), s.Left...),
		Central: append([]string(nil), s.Central...),
		Right:   append([]string(nil), s.Right...),
	}
}

func (s *Set) union(o *Set) {
	s.Left = unionSorted(s.Left, o.Left)
	s.Central = unionSorted(s.Central, o.Central)
	s.Right = unionSorted(s.Right, o.Right)
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, v := range append(append([]string(nil), a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// split partitions phones into those the question accepts and the rest.
func split(phones []string, q *question.Question) (yes, no []string) {
	for _, p := range phones {
		if q.MatchValue(p) {
			yes = append(yes, p)
		} else {
			no = append(no, p)
		}
	}
	return yes, no
}

type item struct {
	id  tree.NodeID
	set *Set
}

// Enumerate walks t breadth-first from a root set spanning inventory in every
// position (the central position narrowed to the tree's phone for
// phone-dependent trees). At each node asking about a phone position the yes
// child keeps the phones the question accepts and the no child the rest;
// other questions pass the set through. The result maps each leaf name to
// the set reaching it.
func Enumerate(t *tree.Tree, questions map[string]*question.Question, inventory []string) (map[string]*Set, error) {
	all := unionSorted(nil, inventory)
	root := &Set{Left: all, Central: all, Right: all}
	if info := t.Info(); info.PhoneDependent() {
		root.Central = []string{info.Phone}
	}

	out := make(map[string]*Set)
	queue := []item{{id: t.Root(), set: root}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		n := t.Node(it.id)
		if n.Leaf {
			out[n.LeafName] = it.set
			continue
		}
		q, ok := questions[n.Question]
		if !ok {
			return nil, fmt.Errorf("%w: question %q used by tree %s", errs.ErrReference, n.Question, t.Name())
		}
		yesSet, noSet := it.set.clone(), it.set.clone()
		if pos := it.set.slot(q.Feature); pos != nil {
			yes, no := split(*pos, q)
			*yesSet.slot(q.Feature) = yes
			*noSet.slot(q.Feature) = no
		}
		queue = append(queue, item{id: n.No, set: noSet}, item{id: n.Yes, set: yesSet})
	}
	return out, nil
}

// EnumerateForest runs Enumerate over every tree. A leaf name shared by
// several trees receives the union of their sets.
func EnumerateForest(f *forest.Forest, inventory []string) (map[string]*Set, error) {
	out := make(map[string]*Set)
	for _, t := range f.Trees() {
		sets, err := Enumerate(t, f.Questions(), inventory)
		if err != nil {
			return nil, err
		}
		for leaf, s := range sets {
			if prev, ok := out[leaf]; ok {
				prev.union(s)
				continue
			}
			out[leaf] = s
		}
	}
	return out, nil
}
