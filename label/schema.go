package label

import (
	"fmt"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// Mandatory feature slots; every schema starts with these three.
const (
	FeatureLeftPhone    = "LeftPhone"
	FeatureCentralPhone = "CentralPhone"
	FeatureRightPhone   = "RightPhone"
)

// NotApplicable is the token rendered for a slot without a value.
const NotApplicable = "xx"

// DefaultSeparators is the default separator alphabet: the 94 printable
// non-space ASCII characters, punctuation first and the pattern
// metacharacters '*' and '?' last.
var DefaultSeparators = buildDefaultSeparators()

func buildDefaultSeparators() string {
	const preferred = "-+=@_^!#$%&;:/|~<>,."
	var sb strings.Builder
	sb.WriteString(preferred)
	for c := byte('!'); c <= '~'; c++ {
		if c == '*' || c == '?' || strings.IndexByte(preferred, c) >= 0 {
			continue
		}
		sb.WriteByte(c)
	}
	sb.WriteString("*?")
	return sb.String()
}

// Schema is an ordered, named list of context feature slots together with the
// separator alphabet used to render them.
type Schema struct {
	name       string
	features   []string
	index      map[string]int
	separators string
}

// SchemaOption configures a Schema.
type SchemaOption func(*Schema)

// WithSeparators replaces the default separator alphabet.
func WithSeparators(seps string) SchemaOption {
	return func(s *Schema) {
		s.separators = seps
	}
}

// NewSchema builds a schema. The mandatory phone slots are prepended when
// features does not already start with them.
func NewSchema(name string, features []string, opts ...SchemaOption) (*Schema, error) {
	s := &Schema{
		name:       name,
		index:      make(map[string]int),
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	mandatory := []string{FeatureLeftPhone, FeatureCentralPhone, FeatureRightPhone}
	all := make([]string, 0, len(features)+len(mandatory))
	if !hasPrefix(features, mandatory) {
		all = append(all, mandatory...)
	}
	all = append(all, features...)

	for i, f := range all {
		if f == "" {
			return nil, errs.Formatf("schema %q: empty feature name at slot %d", name, i)
		}
		if _, dup := s.index[f]; dup {
			return nil, fmt.Errorf("%w: schema %q: duplicate feature %q", errs.ErrConflict, name, f)
		}
		s.index[f] = i
	}
	s.features = all

	seen := make(map[rune]bool)
	for _, r := range s.separators {
		if r > 0x7e || r <= ' ' {
			return nil, errs.Formatf("schema %q: separator %q is not printable ASCII", name, r)
		}
		if seen[r] {
			return nil, fmt.Errorf("%w: schema %q: separator %q repeated", errs.ErrConflict, name, r)
		}
		seen[r] = true
	}
	if len(all) > len(DefaultSeparators) {
		return nil, errs.Formatf("schema %q: %d features exceed the %d-symbol alphabet", name, len(all), len(DefaultSeparators))
	}
	if len(all)-1 > len(s.separators) {
		return nil, errs.Formatf("schema %q: %d features need %d separators, got %d", name, len(all), len(all)-1, len(s.separators))
	}
	return s, nil
}

// DefaultTriphoneSchema returns the three-slot "l-c+r" schema.
func DefaultTriphoneSchema() *Schema {
	s, err := NewSchema("triphone", nil)
	if err != nil {
		panic(err)
	}
	return s
}

func hasPrefix(features, prefix []string) bool {
	if len(features) < len(prefix) {
		return false
	}
	for i := range prefix {
		if features[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Name returns the registry name of the schema.
func (s *Schema) Name() string { return s.name }

// Size returns the number of slots.
func (s *Schema) Size() int { return len(s.features) }

// Features returns a copy of the slot names in order.
func (s *Schema) Features() []string {
	out := make([]string, len(s.features))
	copy(out, s.features)
	return out
}

// Index returns the slot of a feature name.
func (s *Schema) Index(feature string) (int, bool) {
	i, ok := s.index[feature]
	return i, ok
}

// Separator returns the separator following slot i, or "" for the last slot.
func (s *Schema) Separator(i int) string {
	if i < 0 || i >= len(s.features)-1 {
		return ""
	}
	return s.separators[i : i+1]
}

// Separators returns the separators around slot i: the one preceding it and
// the one following it.
func (s *Schema) Separators(i int) (left, right string) {
	return s.Separator(i - 1), s.Separator(i)
}

// Equal reports whether two schemas describe the same layout.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.name != o.name || len(s.features) != len(o.features) {
		return false
	}
	for i := range s.features {
		if s.features[i] != o.features[i] {
			return false
		}
	}
	return s.activeSeparators() == o.activeSeparators()
}

// terminator is the symbol that may not appear in the last slot: separator
// n-1 when the alphabet has one, else the last active separator.
func (s *Schema) terminator() string {
	n := len(s.features)
	switch {
	case len(s.separators) >= n:
		return s.separators[n-1 : n]
	case n >= 2:
		return s.separators[n-2 : n-1]
	}
	return ""
}

func (s *Schema) activeSeparators() string {
	if len(s.features) == 0 {
		return ""
	}
	return s.separators[:len(s.features)-1]
}

// Registry holds schemas under caller-chosen names. It is owned by the caller
// and is not safe for concurrent registration.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds s. Registering an equal schema twice is a no-op; a different
// schema under a taken name fails with ErrConflict.
func (r *Registry) Register(s *Schema) error {
	if old, ok := r.schemas[s.name]; ok {
		if old.Equal(s) {
			return nil
		}
		return fmt.Errorf("%w: schema %q already registered with a different layout", errs.ErrConflict, s.name)
	}
	r.schemas[s.name] = s
	return nil
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: schema %q", errs.ErrReference, name)
	}
	return s, nil
}

// Names returns the registered schema names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	return names
}
