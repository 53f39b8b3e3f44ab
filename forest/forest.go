// Package forest groups decision trees with the question dictionary they
// share.
package forest

import (
	"fmt"
	"sort"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/logging"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/question"
	"github.com/ieee0824/voicecluster-go/tree"
)

var log = logging.Component("forest")

// Forest is a named set of trees plus every question they may ask. Trees are
// kept in insertion order and are unique by name.
type Forest struct {
	name      string
	schema    *label.Schema
	questions map[string]*question.Question
	trees     []*tree.Tree
	byName    map[string]int
}

// New returns an empty forest over schema.
func New(name string, schema *label.Schema) *Forest {
	return &Forest{
		name:      name,
		schema:    schema,
		questions: make(map[string]*question.Question),
		byName:    make(map[string]int),
	}
}

// Name returns the forest name.
func (f *Forest) Name() string { return f.name }

// Schema returns the label schema questions are evaluated against.
func (f *Forest) Schema() *label.Schema { return f.schema }

// Questions returns the question dictionary. Callers must not modify it.
func (f *Forest) Questions() map[string]*question.Question { return f.questions }

// Question looks up a question by name.
func (f *Forest) Question(name string) (*question.Question, bool) {
	q, ok := f.questions[name]
	return q, ok
}

// QuestionNames returns the question names in sorted order.
func (f *Forest) QuestionNames() []string {
	return question.SortedNames(f.questions)
}

// Trees returns the trees in insertion order.
func (f *Forest) Trees() []*tree.Tree {
	return append([]*tree.Tree(nil), f.trees...)
}

// Tree looks up a tree by name.
func (f *Forest) Tree(name string) (*tree.Tree, bool) {
	i, ok := f.byName[name]
	if !ok {
		return nil, false
	}
	return f.trees[i], true
}

// AddQuestion adds q to the dictionary. Re-adding an equivalent question is a
// no-op; a different question under the same name is a conflict.
func (f *Forest) AddQuestion(q *question.Question) error {
	if old, ok := f.questions[q.Name]; ok {
		if !question.Equivalent(old, q) {
			return fmt.Errorf("%w: question %q: %s vs %s", errs.ErrConflict, q.Name, old.Expression(), q.Expression())
		}
		return nil
	}
	f.questions[q.Name] = q
	return nil
}

// AddTree appends t. Tree names must be unique.
func (f *Forest) AddTree(t *tree.Tree) error {
	if _, ok := f.byName[t.Name()]; ok {
		return fmt.Errorf("%w: tree %s defined twice in forest %s", errs.ErrConflict, t.Name(), f.name)
	}
	f.byName[t.Name()] = len(f.trees)
	f.trees = append(f.trees, t)
	return nil
}

func (f *Forest) reindex() {
	f.byName = make(map[string]int, len(f.trees))
	for i, t := range f.trees {
		f.byName[t.Name()] = i
	}
}

// Validate checks every tree and that every question a tree asks is in the
// dictionary.
func (f *Forest) Validate() error {
	for _, t := range f.trees {
		if err := t.Validate(); err != nil {
			return err
		}
		for _, qn := range t.QuestionNames() {
			if _, ok := f.questions[qn]; !ok {
				return fmt.Errorf("%w: tree %s asks undefined question %q", errs.ErrReference, t.Name(), qn)
			}
		}
	}
	return nil
}

// Combine unions the trees and questions of forests into a new forest named
// name. When two forests hold a tree of the same name the first one wins.
// Two questions of the same name with different expressions are a conflict.
// Trees are copied; the inputs are not modified.
func Combine(name string, forests ...*Forest) (*Forest, error) {
	if len(forests) == 0 {
		return nil, fmt.Errorf("%w: nothing to combine", errs.ErrReference)
	}
	out := New(name, forests[0].schema)
	for _, src := range forests {
		if !src.schema.Equal(out.schema) {
			return nil, fmt.Errorf("%w: forest %s uses schema %s, want %s", errs.ErrConflict, src.name, src.schema.Name(), out.schema.Name())
		}
		for _, qn := range src.QuestionNames() {
			if err := out.AddQuestion(src.questions[qn]); err != nil {
				return nil, fmt.Errorf("combine %s: %w", src.name, err)
			}
		}
		for _, t := range src.trees {
			if _, dup := out.byName[t.Name()]; dup {
				log.WithField("tree", t.Name()).WithField("forest", src.name).Debug("duplicate tree skipped")
				continue
			}
			if err := out.AddTree(t.Clone()); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ReSortQuestions drops every question no non-leaf node asks and returns the
// dropped names in order.
func (f *Forest) ReSortQuestions() []string {
	used := make(map[string]bool)
	for _, t := range f.trees {
		for _, qn := range t.QuestionNames() {
			used[qn] = true
		}
	}
	var dropped []string
	for _, qn := range f.QuestionNames() {
		if !used[qn] {
			delete(f.questions, qn)
			dropped = append(dropped, qn)
		}
	}
	if len(dropped) > 0 {
		log.WithField("dropped", len(dropped)).Debug("question dictionary rebuilt")
	}
	return dropped
}

// DeleteLeaves removes the named leaves from every tree that holds them and
// returns the names actually removed, sorted.
func (f *Forest) DeleteLeaves(names []string) []string {
	var deleted []string
	for _, t := range f.trees {
		deleted = append(deleted, t.DeleteLeaves(names)...)
	}
	sort.Strings(deleted)
	return deleted
}

// PruneStream removes stream index from every tree that governs it. It fails
// without modifying anything when no tree governs the stream or when index is
// the only stream of one of them.
func (f *Forest) PruneStream(index int) error {
	var hit []*tree.Tree
	for _, t := range f.trees {
		if !t.HasStream(index) {
			continue
		}
		if len(t.Info().StreamIndexes()) == 1 {
			return fmt.Errorf("%w: stream %d is the only stream of tree %s", errs.ErrStructural, index, t.Name())
		}
		hit = append(hit, t)
	}
	if len(hit) == 0 {
		return fmt.Errorf("%w: no tree of forest %s governs stream %d", errs.ErrReference, f.name, index)
	}
	for _, t := range hit {
		if err := t.PruneStream(index); err != nil {
			return err
		}
	}
	f.reindex()
	return nil
}

// States returns the sorted state indexes the trees cover.
func (f *Forest) States() []int {
	seen := make(map[int]bool)
	for _, t := range f.trees {
		seen[t.Info().State] = true
	}
	return sortedInts(seen)
}

// Streams returns the sorted stream indexes the trees cover.
func (f *Forest) Streams() []int {
	seen := make(map[int]bool)
	for _, t := range f.trees {
		for _, s := range t.Info().StreamIndexes() {
			seen[s] = true
		}
	}
	return sortedInts(seen)
}

// Phones returns the sorted central phones of the phone-dependent trees.
func (f *Forest) Phones() []string {
	seen := make(map[string]bool)
	for _, t := range f.trees {
		if info := t.Info(); info.PhoneDependent() {
			seen[info.Phone] = true
		}
	}
	phones := make([]string, 0, len(seen))
	for p := range seen {
		phones = append(phones, p)
	}
	sort.Strings(phones)
	return phones
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Covers reports whether some tree governs state and stream.
func (f *Forest) Covers(state, stream int) bool {
	for _, t := range f.trees {
		if t.Info().State == state && t.HasStream(stream) {
			return true
		}
	}
	return false
}

// Find routes l through the tree for state and stream and returns the leaf
// reached. A tree dedicated to the label's central phone is preferred over a
// phone-independent one.
func (f *Forest) Find(l *label.Label, state, stream int) (string, *tree.Tree, error) {
	var shared *tree.Tree
	for _, t := range f.trees {
		info := t.Info()
		if info.State != state || !t.HasStream(stream) {
			continue
		}
		if !info.PhoneDependent() {
			if shared == nil {
				shared = t
			}
			continue
		}
		if info.Phone == l.CentralPhone() {
			leaf, err := t.Filter(f.questions, l)
			return leaf, t, err
		}
	}
	if shared == nil {
		return "", nil, fmt.Errorf("%w: no tree for state %d stream %d (phone %s)", errs.ErrReference, state, stream, l.CentralPhone())
	}
	leaf, err := shared.Filter(f.questions, l)
	return leaf, shared, err
}

// TreeSummary describes one tree.
type TreeSummary struct {
	Name   string `json:"name"`
	Nodes  int    `json:"nodes"`
	Leaves int    `json:"leaves"`
}

// Summary is a digest of a forest.
type Summary struct {
	Name      string        `json:"name"`
	Schema    string        `json:"schema"`
	Questions int           `json:"questions"`
	Nodes     int           `json:"nodes"`
	Leaves    int           `json:"leaves"`
	States    []int         `json:"states"`
	Streams   []int         `json:"streams"`
	Phones    []string      `json:"phones"`
	Trees     []TreeSummary `json:"trees"`
}

// Summary computes the digest.
func (f *Forest) Summary() Summary {
	s := Summary{
		Name:      f.name,
		Schema:    f.schema.Name(),
		Questions: len(f.questions),
		States:    f.States(),
		Streams:   f.Streams(),
		Phones:    f.Phones(),
	}
	for _, t := range f.trees {
		s.Nodes += t.NodeCount()
		s.Leaves += t.LeafCount()
		s.Trees = append(s.Trees, TreeSummary{Name: t.Name(), Nodes: t.NodeCount(), Leaves: t.LeafCount()})
	}
	return s
}
