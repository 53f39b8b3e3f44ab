package acoustic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/internal/logging"
)

var log = logging.Component("acoustic")

// VarFloorPrefix names the per-stream variance floor macros: varFloor1,
// varFloor2, ...
const VarFloorPrefix = "varFloor"

// Options is the global ~o block.
type Options struct {
	StreamWidths []int  // <STREAMINFO>
	MSD          []bool // <MSDINFO>, nil when absent
	VecSize      int    // <VECSIZE>
	Kinds        []string
}

// VarFloor is a ~v macro.
type VarFloor struct {
	Name     string
	Variance []float64
}

// Transition is a ~t macro: a square matrix of transition probabilities.
type Transition struct {
	Name   string
	Matrix [][]float64
}

// States returns the matrix order.
func (t *Transition) States() int {
	return len(t.Matrix)
}

// Ref is either a reference to a named macro or an inline definition.
type Ref[T any] struct {
	Name   string
	Inline *T
}

// IsMacro reports whether the reference names a global macro.
func (r Ref[T]) IsMacro() bool {
	return r.Inline == nil
}

// StreamSlot is one stream of an emitting state.
type StreamSlot struct {
	Index  int
	Stream Ref[Stream]
}

// State is one emitting state of a model.
type State struct {
	Index   int
	Streams []StreamSlot
}

// Model is a ~h macro.
type Model struct {
	Name      string
	NumStates int
	States    []State
	Trans     Ref[Transition]
}

// State returns the state with the given index, creating it in index order
// when absent.
func (m *Model) State(index int) *State {
	for i := range m.States {
		if m.States[i].Index == index {
			return &m.States[i]
		}
	}
	m.States = append(m.States, State{Index: index})
	sort.Slice(m.States, func(i, j int) bool { return m.States[i].Index < m.States[j].Index })
	return m.State(index)
}

// MacroFile holds the option block and the four macro tables. Each table
// keeps its definition order for writing.
type MacroFile struct {
	Options Options

	varFloors   map[string]*VarFloor
	transitions map[string]*Transition
	streams     map[string]*Stream
	models      map[string]*Model

	varFloorOrder   []string
	transitionOrder []string
	streamOrder     []string
	modelOrder      []string
}

// NewMacroFile returns an empty container.
func NewMacroFile() *MacroFile {
	return &MacroFile{
		varFloors:   make(map[string]*VarFloor),
		transitions: make(map[string]*Transition),
		streams:     make(map[string]*Stream),
		models:      make(map[string]*Model),
	}
}

func conflict(kind, name string) error {
	return fmt.Errorf("%w: %s macro %q defined twice", errs.ErrConflict, kind, name)
}

// AddVarFloor defines a ~v macro.
func (mf *MacroFile) AddVarFloor(v *VarFloor) error {
	if _, ok := mf.varFloors[v.Name]; ok {
		return conflict("variance floor", v.Name)
	}
	mf.varFloors[v.Name] = v
	mf.varFloorOrder = append(mf.varFloorOrder, v.Name)
	return nil
}

// AddTransition defines a ~t macro.
func (mf *MacroFile) AddTransition(t *Transition) error {
	if _, ok := mf.transitions[t.Name]; ok {
		return conflict("transition", t.Name)
	}
	mf.transitions[t.Name] = t
	mf.transitionOrder = append(mf.transitionOrder, t.Name)
	return nil
}

// AddStream defines a ~s macro.
func (mf *MacroFile) AddStream(s *Stream) error {
	if _, ok := mf.streams[s.Name]; ok {
		return conflict("stream", s.Name)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	mf.streams[s.Name] = s
	mf.streamOrder = append(mf.streamOrder, s.Name)
	return nil
}

// AddModel defines a ~h macro. Every macro reference in the model must
// already be defined.
func (mf *MacroFile) AddModel(m *Model) error {
	if _, ok := mf.models[m.Name]; ok {
		return conflict("model", m.Name)
	}
	if err := mf.checkRefs(m); err != nil {
		return err
	}
	mf.models[m.Name] = m
	mf.modelOrder = append(mf.modelOrder, m.Name)
	return nil
}

func (mf *MacroFile) checkRefs(m *Model) error {
	for _, st := range m.States {
		for _, slot := range st.Streams {
			if slot.Stream.IsMacro() {
				if _, ok := mf.streams[slot.Stream.Name]; !ok {
					return fmt.Errorf("%w: model %s state %d: undefined stream macro %q", errs.ErrReference, m.Name, st.Index, slot.Stream.Name)
				}
			}
		}
	}
	if m.Trans.IsMacro() && m.Trans.Name != "" {
		if _, ok := mf.transitions[m.Trans.Name]; !ok {
			return fmt.Errorf("%w: model %s: undefined transition macro %q", errs.ErrReference, m.Name, m.Trans.Name)
		}
	}
	return nil
}

// VarFloor looks up a ~v macro.
func (mf *MacroFile) VarFloor(name string) (*VarFloor, bool) {
	v, ok := mf.varFloors[name]
	return v, ok
}

// Transition looks up a ~t macro.
func (mf *MacroFile) Transition(name string) (*Transition, bool) {
	t, ok := mf.transitions[name]
	return t, ok
}

// Stream looks up a ~s macro.
func (mf *MacroFile) Stream(name string) (*Stream, bool) {
	s, ok := mf.streams[name]
	return s, ok
}

// Model looks up a ~h macro.
func (mf *MacroFile) Model(name string) (*Model, bool) {
	m, ok := mf.models[name]
	return m, ok
}

// VarFloorNames returns ~v names in definition order.
func (mf *MacroFile) VarFloorNames() []string { return append([]string(nil), mf.varFloorOrder...) }

// TransitionNames returns ~t names in definition order.
func (mf *MacroFile) TransitionNames() []string { return append([]string(nil), mf.transitionOrder...) }

// StreamNames returns ~s names in definition order.
func (mf *MacroFile) StreamNames() []string { return append([]string(nil), mf.streamOrder...) }

// ModelNames returns ~h names in definition order.
func (mf *MacroFile) ModelNames() []string { return append([]string(nil), mf.modelOrder...) }

// ResolveStream returns the stream a reference designates.
func (mf *MacroFile) ResolveStream(r Ref[Stream]) (*Stream, error) {
	if r.Inline != nil {
		return r.Inline, nil
	}
	s, ok := mf.streams[r.Name]
	if !ok {
		return nil, fmt.Errorf("%w: stream macro %q", errs.ErrReference, r.Name)
	}
	return s, nil
}

// ResolveTransition returns the matrix a reference designates.
func (mf *MacroFile) ResolveTransition(r Ref[Transition]) (*Transition, error) {
	if r.Inline != nil {
		return r.Inline, nil
	}
	t, ok := mf.transitions[r.Name]
	if !ok {
		return nil, fmt.Errorf("%w: transition macro %q", errs.ErrReference, r.Name)
	}
	return t, nil
}

// StreamIndex returns the stream index a named stream belongs to: the index
// encoded in its macro name, or else the slot it occupies in the first model
// using it. Zero means unknown.
func (mf *MacroFile) StreamIndex(name string) int {
	if m, ok := ParseMacroName(name); ok {
		return m.Stream
	}
	for _, mn := range mf.modelOrder {
		for _, st := range mf.models[mn].States {
			for _, slot := range st.Streams {
				if slot.Stream.IsMacro() && slot.Stream.Name == name {
					return slot.Index
				}
			}
		}
	}
	return 0
}

// CorrectVariance floors the variances of the named stream macro.
func (mf *MacroFile) CorrectVariance(stream string, floor []float64) error {
	s, ok := mf.streams[stream]
	if !ok {
		return fmt.Errorf("%w: stream macro %q", errs.ErrReference, stream)
	}
	return s.CorrectVariance(floor)
}

// ApplyVarianceFloors floors every stream, global and inline, with the
// varFloor<n> macro of its stream index. Streams whose index has no floor
// macro are left alone. It returns the number of streams corrected.
func (mf *MacroFile) ApplyVarianceFloors() (int, error) {
	floors := make(map[int][]float64)
	for name, v := range mf.varFloors {
		if n, err := strconv.Atoi(strings.TrimPrefix(name, VarFloorPrefix)); err == nil && strings.HasPrefix(name, VarFloorPrefix) {
			floors[n] = v.Variance
		}
	}
	if len(floors) == 0 {
		return 0, nil
	}

	count := 0
	for _, name := range mf.streamOrder {
		floor, ok := floors[mf.StreamIndex(name)]
		if !ok {
			continue
		}
		if err := mf.streams[name].CorrectVariance(floor); err != nil {
			return count, err
		}
		count++
	}
	for _, mn := range mf.modelOrder {
		for _, st := range mf.models[mn].States {
			for _, slot := range st.Streams {
				floor, ok := floors[slot.Index]
				if slot.Stream.Inline == nil || !ok {
					continue
				}
				if err := slot.Stream.Inline.CorrectVariance(floor); err != nil {
					return count, fmt.Errorf("model %s state %d: %w", mn, st.Index, err)
				}
				count++
			}
		}
	}
	log.WithField("streams", count).Debug("applied variance floors")
	return count, nil
}

// checkMixtures reports the first stream, global or inline, that has no
// components. Neither file form can carry one.
func (mf *MacroFile) checkMixtures() error {
	for _, n := range mf.streamOrder {
		if len(mf.streams[n].Mixture) == 0 {
			return errs.Formatf("stream %s: no mixture components", n)
		}
	}
	for _, mn := range mf.modelOrder {
		for _, st := range mf.models[mn].States {
			for _, slot := range st.Streams {
				if in := slot.Stream.Inline; in != nil && len(in.Mixture) == 0 {
					return errs.Formatf("model %s state %d stream %d: no mixture components", mn, st.Index, slot.Index)
				}
			}
		}
	}
	return nil
}

// Validate checks every Gaussian, the declared stream widths and every macro
// reference.
func (mf *MacroFile) Validate() error {
	width := func(index int) int {
		if index < 1 || index > len(mf.Options.StreamWidths) {
			return -1
		}
		return mf.Options.StreamWidths[index-1]
	}
	checkWidth := func(s *Stream, index int) error {
		w := width(index)
		if err := s.Validate(); err != nil {
			return err
		}
		if d := s.Dim(); w >= 0 && d != 0 && d != w {
			return fmt.Errorf("stream %s: %w: %d dims, stream %d is %d wide", s.Name, errs.ErrDimensionMismatch, d, index, w)
		}
		return nil
	}

	if n := len(mf.Options.MSD); n != 0 && n != len(mf.Options.StreamWidths) {
		return fmt.Errorf("%w: %d MSD flags for %d streams", errs.ErrDimensionMismatch, n, len(mf.Options.StreamWidths))
	}
	for _, name := range mf.streamOrder {
		if err := checkWidth(mf.streams[name], mf.StreamIndex(name)); err != nil {
			return err
		}
	}
	for _, mn := range mf.modelOrder {
		m := mf.models[mn]
		if err := mf.checkRefs(m); err != nil {
			return err
		}
		for _, st := range m.States {
			for _, slot := range st.Streams {
				if slot.Stream.Inline == nil {
					continue
				}
				if err := checkWidth(slot.Stream.Inline, slot.Index); err != nil {
					return fmt.Errorf("model %s state %d: %w", mn, st.Index, err)
				}
			}
		}
		if t := m.Trans.Inline; t != nil {
			if err := checkSquare(t); err != nil {
				return fmt.Errorf("model %s: %w", mn, err)
			}
		}
	}
	for _, tn := range mf.transitionOrder {
		if err := checkSquare(mf.transitions[tn]); err != nil {
			return err
		}
	}
	return nil
}

func checkSquare(t *Transition) error {
	for i, row := range t.Matrix {
		if len(row) != len(t.Matrix) {
			return fmt.Errorf("transition %s row %d: %w: %d columns, want %d", t.Name, i, errs.ErrDimensionMismatch, len(row), len(t.Matrix))
		}
	}
	return nil
}
