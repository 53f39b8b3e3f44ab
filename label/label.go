// Package label encodes and decodes context labels: ordered feature vectors
// rendered as text with a separator after every slot but the last.
package label

import (
	"fmt"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// Label is a context feature vector over a Schema.
// values stays nil while every slot is NotApplicable.
type Label struct {
	schema *Schema
	values []string
	text   string
}

// New returns a label with every slot NotApplicable.
func New(s *Schema) *Label {
	l := &Label{schema: s}
	l.render()
	return l
}

// Parse decodes text under schema s. A text without separators is read as a
// monophone label holding only the central phone.
func Parse(text string, s *Schema) (*Label, error) {
	n := s.Size()
	tokens := make([]string, 0, n)
	rest := text
	for i := 0; i < n-1; i++ {
		sep := s.Separator(i)
		idx := strings.Index(rest, sep)
		if idx < 0 {
			break
		}
		tokens = append(tokens, rest[:idx])
		rest = rest[idx+len(sep):]
	}
	tokens = append(tokens, rest)

	l := &Label{schema: s}
	switch {
	case len(tokens) == 1:
		l.set(1, text)
	case len(tokens) == 2:
		return nil, errs.Formatf("label %q: two-feature form is not valid", text)
	case len(tokens) != n:
		return nil, errs.Formatf("label %q: got %d features, schema %q has %d", text, len(tokens), s.Name(), n)
	default:
		if next := s.terminator(); next != "" && strings.Contains(rest, next) {
			return nil, errs.Formatf("label %q: more features than schema %q holds", text, s.Name())
		}
		for i, tok := range tokens {
			l.set(i, tok)
		}
	}
	l.render()
	return l, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string, s *Schema) *Label {
	l, err := Parse(text, s)
	if err != nil {
		panic(err)
	}
	return l
}

// Schema returns the schema the label is laid out by.
func (l *Label) Schema() *Schema { return l.schema }

// Feature returns the value of the named slot.
func (l *Label) Feature(name string) (string, error) {
	i, ok := l.schema.Index(name)
	if !ok {
		return "", fmt.Errorf("%w: feature %q not in schema %q", errs.ErrReference, name, l.schema.Name())
	}
	return l.At(i), nil
}

// At returns the value of slot i.
func (l *Label) At(i int) string {
	if l.values == nil || i < 0 || i >= len(l.values) {
		return NotApplicable
	}
	return l.values[i]
}

// SetFeature assigns the named slot and re-renders the text.
func (l *Label) SetFeature(name, value string) error {
	i, ok := l.schema.Index(name)
	if !ok {
		return fmt.Errorf("%w: feature %q not in schema %q", errs.ErrReference, name, l.schema.Name())
	}
	l.set(i, value)
	l.render()
	return nil
}

// set writes slot i without re-rendering. Assigning NotApplicable to a sparse
// label keeps it sparse.
func (l *Label) set(i int, value string) {
	if value == "" {
		value = NotApplicable
	}
	if l.values == nil {
		if value == NotApplicable {
			return
		}
		l.values = make([]string, l.schema.Size())
		for j := range l.values {
			l.values[j] = NotApplicable
		}
	}
	l.values[i] = value
}

// LeftPhone returns the left context phone.
func (l *Label) LeftPhone() string { return l.At(0) }

// CentralPhone returns the central phone.
func (l *Label) CentralPhone() string { return l.At(1) }

// RightPhone returns the right context phone.
func (l *Label) RightPhone() string { return l.At(2) }

// Resize re-lays the label over s, keeping values by slot position and
// padding new slots with NotApplicable. A smaller schema truncates silently;
// callers that must not lose values check s.Size() first.
func (l *Label) Resize(s *Schema) {
	if l.values != nil {
		values := make([]string, s.Size())
		for i := range values {
			values[i] = l.At(i)
		}
		l.values = values
	}
	l.schema = s
	l.render()
}

// Sparse reports whether no slot has been assigned a value.
func (l *Label) Sparse() bool { return l.values == nil }

func (l *Label) render() {
	var sb strings.Builder
	n := l.schema.Size()
	for i := 0; i < n; i++ {
		sb.WriteString(l.At(i))
		sb.WriteString(l.schema.Separator(i))
	}
	l.text = sb.String()
}

// String returns the serialized form.
func (l *Label) String() string { return l.text }

// Equal compares serialized text only, so labels over different schemas with
// the same surface text are equal.
func (l *Label) Equal(o *Label) bool {
	if l == nil || o == nil {
		return l == o
	}
	return l.text == o.text
}
