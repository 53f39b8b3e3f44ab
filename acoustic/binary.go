package acoustic

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// Symbol codes of the binary form. Each symbol is written as ':' followed by
// the code byte; counts are big-endian int32 and values big-endian float32.
const (
	symBeginHMM   byte = 0
	symEndHMM     byte = 2
	symNumMixes   byte = 3
	symNumStates  byte = 4
	symStreamInfo byte = 5
	symVecSize    byte = 6
	symMixture    byte = 10
	symState      byte = 11
	symStream     byte = 12
	symMean       byte = 14
	symVariance   byte = 15
	symGConst     byte = 18
	symTransP     byte = 21
	symMSDInfo    byte = 40
	symKind       byte = 41

	// symEnd is reported when the input holds no further symbol.
	symEnd byte = 0xff
)

// macroTypes is the alphabet of characters that may follow '~' in a macro
// marker.
const macroTypes = "bcdhijmoprstuvwx"

// RecordKind identifies what BinaryReader.Next returned.
type RecordKind int

const (
	KindEnd RecordKind = iota
	KindOptions
	KindVarFloor
	KindTransition
	KindStream
	KindModel
)

func (k RecordKind) String() string {
	switch k {
	case KindEnd:
		return "end"
	case KindOptions:
		return "options"
	case KindVarFloor:
		return "varfloor"
	case KindTransition:
		return "transition"
	case KindStream:
		return "stream"
	case KindModel:
		return "model"
	}
	return fmt.Sprintf("RecordKind(%d)", int(k))
}

// Record is one macro definition read from a binary file. Exactly one of the
// pointer fields is set, matching Kind; a KindModel record carries only the
// model name.
type Record struct {
	Kind       RecordKind
	Name       string
	Options    *Options
	VarFloor   *VarFloor
	Transition *Transition
	Stream     *Stream
}

// BinaryReader is a forward-only cursor over the macro records of a binary
// model file. The first model macro ends the record scan.
type BinaryReader struct {
	r      *bufio.Reader
	closer io.Closer
	done   bool
}

// NewBinaryReader wraps r.
func NewBinaryReader(r io.Reader) *BinaryReader {
	return &BinaryReader{r: bufio.NewReader(r)}
}

// OpenBinary opens a binary model file. The caller must Close it.
func OpenBinary(path string) (*BinaryReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open binary model: %w", err)
	}
	br := NewBinaryReader(f)
	br.closer = f
	return br, nil
}

// Close releases the underlying file, if the reader owns one.
func (br *BinaryReader) Close() error {
	if br.closer == nil {
		return nil
	}
	err := br.closer.Close()
	br.closer = nil
	return err
}

// Next returns the next macro record. At end of input, and after the first
// model record, it returns a KindEnd record and a nil error.
func (br *BinaryReader) Next() (Record, error) {
	if br.done {
		return Record{Kind: KindEnd}, nil
	}
	typ, ok := br.scanMacro()
	if !ok {
		br.done = true
		return Record{Kind: KindEnd}, nil
	}
	if typ == 'o' {
		o, err := br.options()
		if err != nil {
			return Record{}, fmt.Errorf("~o: %w", err)
		}
		return Record{Kind: KindOptions, Options: o}, nil
	}

	name, err := br.quoted()
	if err != nil {
		return Record{}, fmt.Errorf("~%c: %w", typ, err)
	}
	switch typ {
	case 'v':
		v, err := br.vector(symVariance)
		if err != nil {
			return Record{}, fmt.Errorf("~v %s: %w", name, err)
		}
		return Record{Kind: KindVarFloor, Name: name, VarFloor: &VarFloor{Name: name, Variance: v}}, nil
	case 't':
		t, err := br.transition(name)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: KindTransition, Name: name, Transition: t}, nil
	case 's', 'p':
		s, err := br.mixture(name)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: KindStream, Name: name, Stream: s}, nil
	case 'h':
		br.done = true
		return Record{Kind: KindModel, Name: name}, nil
	}
	return Record{}, errs.Formatf("unsupported macro type ~%c", typ)
}

// scanMacro advances past the next "~<type><space|newline>" marker. Bytes
// that do not form a valid marker are skipped.
func (br *BinaryReader) scanMacro() (byte, bool) {
	for {
		b, err := br.r.ReadByte()
		if err != nil {
			return 0, false
		}
		if b != '~' {
			continue
		}
		p, err := br.r.Peek(2)
		if err != nil {
			continue
		}
		typ := lower(p[0])
		if strings.IndexByte(macroTypes, typ) < 0 || (p[1] != ' ' && p[1] != '\n') {
			continue
		}
		br.r.Discard(2)
		return typ, true
	}
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\r' || b == '\t'
}

func (br *BinaryReader) skipSpace() {
	for {
		b, err := br.r.ReadByte()
		if err != nil {
			return
		}
		if !isSpace(b) {
			br.r.UnreadByte()
			return
		}
	}
}

func (br *BinaryReader) peekSym() byte {
	br.skipSpace()
	p, err := br.r.Peek(2)
	if err != nil || p[0] != ':' {
		return symEnd
	}
	return p[1]
}

func (br *BinaryReader) sym() byte {
	s := br.peekSym()
	if s != symEnd {
		br.r.Discard(2)
	}
	return s
}

func (br *BinaryReader) expect(code byte) error {
	if s := br.sym(); s != code {
		return errs.Formatf("expected symbol %d, got %d", code, s)
	}
	return nil
}

func (br *BinaryReader) int32() (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(br.r, b[:]); err != nil {
		return 0, errs.Formatf("unexpected end of record")
	}
	return int(int32(binary.BigEndian.Uint32(b[:]))), nil
}

func (br *BinaryReader) float32() (float64, error) {
	var b [4]byte
	if _, err := io.ReadFull(br.r, b[:]); err != nil {
		return 0, errs.Formatf("unexpected end of record")
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b[:]))), nil
}

func (br *BinaryReader) count() (int, error) {
	n, err := br.int32()
	if err == nil && n < 0 {
		err = errs.Formatf("negative count %d", n)
	}
	return n, err
}

func (br *BinaryReader) quoted() (string, error) {
	br.skipSpace()
	b, err := br.r.ReadByte()
	if err != nil || b != '"' {
		return "", errs.Formatf("expected quoted macro name")
	}
	s, err := br.r.ReadString('"')
	if err != nil {
		return "", errs.Formatf("unterminated macro name")
	}
	return s[:len(s)-1], nil
}

func (br *BinaryReader) vector(code byte) ([]float64, error) {
	if err := br.expect(code); err != nil {
		return nil, err
	}
	n, err := br.count()
	if err != nil {
		return nil, err
	}
	v := make([]float64, n)
	for i := range v {
		if v[i], err = br.float32(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (br *BinaryReader) options() (*Options, error) {
	o := &Options{}
	for {
		switch br.peekSym() {
		case symStreamInfo:
			br.sym()
			n, err := br.count()
			if err != nil {
				return nil, err
			}
			o.StreamWidths = make([]int, n)
			for i := range o.StreamWidths {
				if o.StreamWidths[i], err = br.int32(); err != nil {
					return nil, err
				}
			}
		case symMSDInfo:
			br.sym()
			n, err := br.count()
			if err != nil {
				return nil, err
			}
			o.MSD = make([]bool, n)
			for i := range o.MSD {
				f, err := br.int32()
				if err != nil {
					return nil, err
				}
				o.MSD[i] = f != 0
			}
		case symVecSize:
			br.sym()
			n, err := br.int32()
			if err != nil {
				return nil, err
			}
			o.VecSize = n
		case symKind:
			br.sym()
			n, err := br.count()
			if err != nil {
				return nil, err
			}
			b := make([]byte, n)
			if _, err := io.ReadFull(br.r, b); err != nil {
				return nil, errs.Formatf("unexpected end of record")
			}
			o.Kinds = append(o.Kinds, string(b))
		case symEnd:
			return o, nil
		default:
			return nil, errs.Formatf("unexpected symbol %d in options", br.peekSym())
		}
	}
}

func (br *BinaryReader) transition(name string) (*Transition, error) {
	if err := br.expect(symTransP); err != nil {
		return nil, fmt.Errorf("transition %s: %w", name, err)
	}
	n, err := br.count()
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", name, err)
	}
	t := &Transition{Name: name, Matrix: make([][]float64, n)}
	for i := range t.Matrix {
		t.Matrix[i] = make([]float64, n)
		for j := range t.Matrix[i] {
			if t.Matrix[i][j], err = br.float32(); err != nil {
				return nil, fmt.Errorf("transition %s: %w", name, err)
			}
		}
	}
	return t, nil
}

func (br *BinaryReader) mixture(name string) (*Stream, error) {
	s := &Stream{Name: name}
	declared := 1
	if br.peekSym() == symNumMixes {
		br.sym()
		n, err := br.count()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		declared = n
	}
	if br.peekSym() != symMixture {
		g, err := br.gaussian()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		g.Weight = 1
		s.Mixture = append(s.Mixture, g)
		return s, nil
	}
	for br.peekSym() == symMixture {
		br.sym()
		if _, err := br.int32(); err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		w, err := br.float32()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		g, err := br.gaussian()
		if err != nil {
			return nil, fmt.Errorf("stream %s mixture %d: %w", name, len(s.Mixture)+1, err)
		}
		g.Weight = w
		s.Mixture = append(s.Mixture, g)
	}
	if len(s.Mixture) > declared {
		return nil, errs.Formatf("stream %s: %d mixtures, %d declared", name, len(s.Mixture), declared)
	}
	return s, nil
}

func (br *BinaryReader) gaussian() (Gaussian, error) {
	var g Gaussian
	var err error
	if g.Mean, err = br.vector(symMean); err != nil {
		return g, err
	}
	if g.Variance, err = br.vector(symVariance); err != nil {
		return g, err
	}
	if err := g.Validate(); err != nil {
		return g, err
	}
	if br.peekSym() == symGConst {
		br.sym()
		if g.GConst, err = br.float32(); err != nil {
			return g, err
		}
	} else {
		g.ComputeGConst()
	}
	return g, nil
}

// ReadBinaryMacroFile builds a MacroFile from a binary model file. Records
// before the first model macro are definitions; after it, stream, transition
// and variance-floor markers are references attached to the current model.
func ReadBinaryMacroFile(r io.Reader) (*MacroFile, error) {
	br := NewBinaryReader(r)
	mf := NewMacroFile()
	for {
		rec, err := br.Next()
		if err != nil {
			return nil, fmt.Errorf("read binary model: %w", err)
		}
		switch rec.Kind {
		case KindEnd:
			return mf, nil
		case KindOptions:
			mf.Options = *rec.Options
		case KindVarFloor:
			err = mf.AddVarFloor(rec.VarFloor)
		case KindTransition:
			err = mf.AddTransition(rec.Transition)
		case KindStream:
			err = mf.AddStream(rec.Stream)
		case KindModel:
			if err := br.models(mf, rec.Name); err != nil {
				return nil, fmt.Errorf("read binary model: %w", err)
			}
			return mf, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read binary model: %w", err)
		}
	}
}

// LoadBinaryMacroFile reads a binary model file from disk.
func LoadBinaryMacroFile(path string) (*MacroFile, error) {
	br, err := OpenBinary(path)
	if err != nil {
		return nil, err
	}
	defer br.Close()
	return ReadBinaryMacroFile(br.r)
}

type modelBuilder struct {
	mf     *MacroFile
	cur    *Model
	state  int
	stream int
}

func (b *modelBuilder) finish() error {
	if b.cur == nil {
		return nil
	}
	m := b.cur
	b.cur = nil
	if m.NumStates == 0 && len(m.States) > 0 {
		m.NumStates = m.States[len(m.States)-1].Index + 1
	}
	return b.mf.AddModel(m)
}

func (b *modelBuilder) start(name string) error {
	if err := b.finish(); err != nil {
		return err
	}
	b.cur = &Model{Name: name}
	b.state, b.stream = 0, 0
	return nil
}

func (b *modelBuilder) streamRef(name string) error {
	state, index := b.state, b.stream
	if state == 0 || index == 0 {
		info, ok := ParseMacroName(name)
		if !ok && state == 0 {
			return errs.Formatf("model %s: stream reference %q outside any state", b.cur.Name, name)
		}
		if state == 0 {
			state = info.State
		}
		if index == 0 {
			index = info.Stream
		}
	}
	st := b.cur.State(state)
	if index == 0 {
		index = len(st.Streams) + 1
	}
	st.Streams = append(st.Streams, StreamSlot{Index: index, Stream: Ref[Stream]{Name: name}})
	b.stream = 0
	return nil
}

func (br *BinaryReader) models(mf *MacroFile, first string) error {
	b := &modelBuilder{mf: mf}
	if err := b.start(first); err != nil {
		return err
	}
	for {
		br.skipSpace()
		c, err := br.r.ReadByte()
		if err == io.EOF {
			return b.finish()
		}
		if err != nil {
			return err
		}
		switch c {
		case ':':
			if err := br.modelSymbol(b); err != nil {
				return err
			}
		case '~':
			if err := br.modelMacro(b); err != nil {
				return err
			}
		default:
			return errs.Formatf("unexpected byte %#x in model section", c)
		}
	}
}

func (br *BinaryReader) modelSymbol(b *modelBuilder) error {
	code, err := br.r.ReadByte()
	if err != nil {
		return errs.Formatf("unexpected end of record")
	}
	if b.cur == nil {
		return errs.Formatf("symbol %d outside a model", code)
	}
	switch code {
	case symBeginHMM:
	case symEndHMM:
		return b.finish()
	case symNumStates:
		n, err := br.count()
		if err != nil {
			return err
		}
		b.cur.NumStates = n
	case symState:
		n, err := br.count()
		if err != nil {
			return err
		}
		b.state, b.stream = n, 0
		b.cur.State(n)
	case symStream:
		n, err := br.count()
		if err != nil {
			return err
		}
		b.stream = n
	default:
		return errs.Formatf("model %s: unexpected symbol %d", b.cur.Name, code)
	}
	return nil
}

func (br *BinaryReader) modelMacro(b *modelBuilder) error {
	p, err := br.r.Peek(2)
	if err != nil || (p[1] != ' ' && p[1] != '\n') {
		return errs.Formatf("malformed macro marker in model section")
	}
	typ := lower(p[0])
	br.r.Discard(2)
	name, err := br.quoted()
	if err != nil {
		return err
	}
	if typ == 'h' {
		return b.start(name)
	}
	if b.cur == nil {
		return errs.Formatf("~%c %q outside a model", typ, name)
	}
	switch typ {
	case 's', 'p':
		return b.streamRef(name)
	case 't':
		b.cur.Trans = Ref[Transition]{Name: name}
		return nil
	case 'v':
		if _, ok := b.mf.VarFloor(name); !ok {
			return fmt.Errorf("%w: model %s: undefined variance floor %q", errs.ErrReference, b.cur.Name, name)
		}
		return nil
	}
	return errs.Formatf("model %s: unsupported macro ~%c", b.cur.Name, typ)
}

type binWriter struct {
	w *bufio.Writer
}

func (bw *binWriter) sym(code byte) {
	bw.w.WriteByte(':')
	bw.w.WriteByte(code)
}

func (bw *binWriter) int32(n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(n)))
	bw.w.Write(b[:])
}

func (bw *binWriter) float32(f float64) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(float32(f)))
	bw.w.Write(b[:])
}

func (bw *binWriter) macro(typ byte, name string) {
	fmt.Fprintf(bw.w, "~%c %q\n", typ, name)
}

func (bw *binWriter) vector(code byte, v []float64) {
	bw.sym(code)
	bw.int32(len(v))
	for _, x := range v {
		bw.float32(x)
	}
}

func (bw *binWriter) transition(t *Transition) {
	bw.sym(symTransP)
	bw.int32(len(t.Matrix))
	for _, row := range t.Matrix {
		for _, x := range row {
			bw.float32(x)
		}
	}
}

func (bw *binWriter) mixture(s *Stream) {
	if len(s.Mixture) == 1 && s.Mixture[0].Weight == 1 {
		bw.gaussian(&s.Mixture[0])
		return
	}
	bw.sym(symNumMixes)
	bw.int32(len(s.Mixture))
	for i := range s.Mixture {
		bw.sym(symMixture)
		bw.int32(i + 1)
		bw.float32(s.Mixture[i].Weight)
		bw.gaussian(&s.Mixture[i])
	}
}

func (bw *binWriter) gaussian(g *Gaussian) {
	bw.vector(symMean, g.Mean)
	bw.vector(symVariance, g.Variance)
	bw.sym(symGConst)
	bw.float32(g.GConst)
}

// WriteBinary serialises mf in binary form. Models must reference their
// streams and transitions through macros.
func WriteBinary(w io.Writer, mf *MacroFile) error {
	if err := mf.checkMixtures(); err != nil {
		return err
	}
	for _, n := range mf.modelOrder {
		m := mf.models[n]
		for _, st := range m.States {
			for _, slot := range st.Streams {
				if !slot.Stream.IsMacro() {
					return errs.Formatf("model %s state %d stream %d: inline streams have no binary form", n, st.Index, slot.Index)
				}
			}
		}
		if !m.Trans.IsMacro() {
			return errs.Formatf("model %s: inline transitions have no binary form", n)
		}
	}

	bw := &binWriter{w: bufio.NewWriter(w)}
	o := mf.Options
	bw.w.WriteString("~o\n")
	if len(o.StreamWidths) > 0 {
		bw.sym(symStreamInfo)
		bw.int32(len(o.StreamWidths))
		for _, x := range o.StreamWidths {
			bw.int32(x)
		}
	}
	if len(o.MSD) > 0 {
		bw.sym(symMSDInfo)
		bw.int32(len(o.MSD))
		for _, m := range o.MSD {
			if m {
				bw.int32(1)
			} else {
				bw.int32(0)
			}
		}
	}
	bw.sym(symVecSize)
	bw.int32(o.VecSize)
	for _, k := range o.Kinds {
		bw.sym(symKind)
		bw.int32(len(k))
		bw.w.WriteString(k)
	}
	bw.w.WriteByte('\n')

	for _, n := range mf.varFloorOrder {
		bw.macro('v', n)
		bw.vector(symVariance, mf.varFloors[n].Variance)
	}
	for _, n := range mf.transitionOrder {
		bw.macro('t', n)
		bw.transition(mf.transitions[n])
	}
	for _, n := range mf.streamOrder {
		bw.macro('s', n)
		bw.mixture(mf.streams[n])
	}
	for _, n := range mf.modelOrder {
		m := mf.models[n]
		bw.macro('h', n)
		bw.sym(symBeginHMM)
		bw.sym(symNumStates)
		bw.int32(m.NumStates)
		for _, st := range m.States {
			bw.sym(symState)
			bw.int32(st.Index)
			for _, slot := range st.Streams {
				bw.sym(symStream)
				bw.int32(slot.Index)
				bw.macro('s', slot.Stream.Name)
			}
		}
		if m.Trans.Name != "" {
			bw.macro('t', m.Trans.Name)
		}
		bw.sym(symEndHMM)
	}
	return bw.w.Flush()
}
