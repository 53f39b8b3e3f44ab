// Package voicecluster ties a label schema, a decision forest and an
// acoustic macro file into a voice that maps context labels to the Gaussian
// streams synthesizing them.
package voicecluster

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ieee0824/voicecluster-go/acoustic"
	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/forest"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/leafindex"
	"github.com/ieee0824/voicecluster-go/lexicon"
	"github.com/ieee0824/voicecluster-go/triphone"
)

// Voice is a loaded clustering result.
type Voice struct {
	Schema    *label.Schema
	Forest    *forest.Forest
	Models    *acoustic.MacroFile
	Inventory *lexicon.Inventory
	Dict      *lexicon.Dictionary
	Boundary  string // context phone used outside a word

	applyFloors bool
}

// Option configures a Voice.
type Option func(*Voice)

// WithSchema sets the label schema. The default is the bare triphone schema.
func WithSchema(s *label.Schema) Option {
	return func(v *Voice) {
		v.Schema = s
	}
}

// WithInventory sets the phoneme inventory used for enumeration.
func WithInventory(inv *lexicon.Inventory) Option {
	return func(v *Voice) {
		v.Inventory = inv
	}
}

// WithDictionary attaches a pronunciation dictionary for word lookups.
func WithDictionary(d *lexicon.Dictionary) Option {
	return func(v *Voice) {
		v.Dict = d
	}
}

// WithBoundary sets the context phone placed around words.
func WithBoundary(phone string) Option {
	return func(v *Voice) {
		v.Boundary = phone
	}
}

// WithVarianceFloors applies the varFloor<n> macros to every stream on load.
func WithVarianceFloors(enabled bool) Option {
	return func(v *Voice) {
		v.applyFloors = enabled
	}
}

func newVoice(opts []Option) *Voice {
	v := &Voice{
		Schema:    label.DefaultTriphoneSchema(),
		Inventory: lexicon.DefaultInventory(),
		Boundary:  "sil",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// NewVoice loads a forest file and a macro file, text or binary.
func NewVoice(forestPath, modelPath string, opts ...Option) (*Voice, error) {
	v := newVoice(opts)

	f, err := forest.LoadFile(forestPath, v.Schema)
	if err != nil {
		return nil, fmt.Errorf("load forest: %w", err)
	}
	v.Forest = f

	v.Models, err = LoadModels(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	if err := v.init(); err != nil {
		return nil, err
	}
	return v, nil
}

// NewVoiceFromModels creates a Voice from pre-loaded parts.
func NewVoiceFromModels(f *forest.Forest, mf *acoustic.MacroFile, opts ...Option) (*Voice, error) {
	v := newVoice(opts)
	v.Forest, v.Models = f, mf
	v.Schema = f.Schema()
	if err := v.init(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Voice) init() error {
	if v.applyFloors {
		if _, err := v.Models.ApplyVarianceFloors(); err != nil {
			return fmt.Errorf("apply variance floors: %w", err)
		}
	}
	return nil
}

// LoadModels reads a macro file, choosing the binary or text reader from
// the first record body.
func LoadModels(path string) (*acoustic.MacroFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if IsBinaryModel(data) {
		return acoustic.ReadBinaryMacroFile(bytes.NewReader(data))
	}
	return acoustic.ReadMacroFile(bytes.NewReader(data))
}

// IsBinaryModel reports whether the body after the first macro header starts
// with a binary symbol rather than a <TAG>.
func IsBinaryModel(data []byte) bool {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return false
	}
	rest := bytes.TrimLeft(data[i+1:], " \t\r\n")
	return len(rest) > 0 && rest[0] == ':'
}

// Resolution is the stream one tree picks for a label.
type Resolution struct {
	State  int
	Stream int
	Tree   string
	Leaf   string
	Model  *acoustic.Stream
}

// Resolve routes l through every (state, stream) pair the forest covers and
// looks up the chosen leaves in the macro file.
func (v *Voice) Resolve(l *label.Label) ([]Resolution, error) {
	var out []Resolution
	for _, state := range v.Forest.States() {
		for _, stream := range v.Forest.Streams() {
			if !v.Forest.Covers(state, stream) {
				continue
			}
			leaf, t, err := v.Forest.Find(l, state, stream)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", l, err)
			}
			s, ok := v.Models.Stream(leaf)
			if !ok {
				return nil, fmt.Errorf("resolve %s: %w: leaf %q has no stream macro", l, errs.ErrReference, leaf)
			}
			out = append(out, Resolution{State: state, Stream: stream, Tree: t.Name(), Leaf: leaf, Model: s})
		}
	}
	return out, nil
}

// ResolveText parses text with the voice schema and resolves it.
func (v *Voice) ResolveText(text string) ([]Resolution, error) {
	l, err := label.Parse(text, v.Schema)
	if err != nil {
		return nil, err
	}
	return v.Resolve(l)
}

// ResolveWord resolves each triphone of a dictionary word.
func (v *Voice) ResolveWord(word string) (map[triphone.Triphone][]Resolution, error) {
	if v.Dict == nil {
		return nil, fmt.Errorf("%w: no dictionary attached", errs.ErrReference)
	}
	phones, ok := v.Dict.Phones(word)
	if !ok {
		return nil, fmt.Errorf("%w: word %q not in dictionary", errs.ErrReference, word)
	}
	out := make(map[triphone.Triphone][]Resolution)
	for _, tri := range triphone.FromPhones(phones, v.Boundary) {
		l, err := tri.Label(v.Schema)
		if err != nil {
			return nil, err
		}
		res, err := v.Resolve(l)
		if err != nil {
			return nil, err
		}
		out[tri] = res
	}
	return out, nil
}

// Enumerate computes, for every leaf, the triphones of the inventory that
// reach it.
func (v *Voice) Enumerate() (map[string]*triphone.Set, error) {
	return triphone.EnumerateForest(v.Forest, v.Inventory.Phones())
}

// Index enumerates the leaves and stores them as a new build.
func (v *Voice) Index(store *leafindex.Store) (leafindex.Build, error) {
	sets, err := v.Enumerate()
	if err != nil {
		return leafindex.Build{}, err
	}
	return store.Save(v.Forest.Name(), v.Inventory.Phones(), sets)
}

// Validate checks the forest, the macro file, and that every leaf names a
// stream macro.
func (v *Voice) Validate() error {
	if err := v.Forest.Validate(); err != nil {
		return err
	}
	if err := v.Models.Validate(); err != nil {
		return err
	}
	var missing []string
	for _, t := range v.Forest.Trees() {
		for _, leaf := range t.Leaves() {
			if _, ok := v.Models.Stream(leaf); !ok {
				missing = append(missing, leaf)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d leaves without stream macros, first %q", errs.ErrReference, len(missing), missing[0])
	}
	return nil
}
