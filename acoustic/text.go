package acoustic

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/sirupsen/logrus"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokMacro
	tokTag
	tokString
	tokWord
)

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of file"
	}
	return fmt.Sprintf("%q (line %d)", t.text, t.line)
}

// tokenize splits macro-file text into ~x macro markers, <TAG>s (upper
// cased), quoted strings and bare words.
func tokenize(r io.Reader) ([]token, error) {
	br := bufio.NewReader(r)
	var toks []token
	line := 1
	var word strings.Builder
	flush := func() {
		if word.Len() > 0 {
			toks = append(toks, token{kind: tokWord, text: word.String(), line: line})
			word.Reset()
		}
	}
	for {
		c, _, err := br.ReadRune()
		if err == io.EOF {
			flush()
			return toks, nil
		}
		if err != nil {
			return nil, err
		}
		switch {
		case c == '\n':
			flush()
			line++
		case unicode.IsSpace(c):
			flush()
		case c == '~' && word.Len() == 0:
			t, _, err := br.ReadRune()
			if err != nil || !unicode.IsLetter(t) {
				return nil, errs.Formatf("line %d: dangling ~", line)
			}
			toks = append(toks, token{kind: tokMacro, text: "~" + string(unicode.ToLower(t)), line: line})
		case c == '<':
			flush()
			tag, err := br.ReadString('>')
			if err != nil {
				return nil, errs.Formatf("line %d: unterminated <tag>", line)
			}
			toks = append(toks, token{kind: tokTag, text: "<" + strings.ToUpper(tag), line: line})
		case c == '"':
			flush()
			s, err := br.ReadString('"')
			if err != nil {
				return nil, errs.Formatf("line %d: unterminated string", line)
			}
			toks = append(toks, token{kind: tokString, text: s[:len(s)-1], line: line})
		default:
			word.WriteRune(c)
		}
	}
}

type textParser struct {
	toks []token
	pos  int
	mf   *MacroFile
}

func (p *textParser) peek() token {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}
	return p.toks[p.pos]
}

func (p *textParser) next() token {
	t := p.peek()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *textParser) peekTag(tag string) bool {
	t := p.peek()
	return t.kind == tokTag && t.text == tag
}

func (p *textParser) expectTag(tag string) error {
	if t := p.next(); t.kind != tokTag || t.text != tag {
		return errs.Formatf("expected %s, got %v", tag, t)
	}
	return nil
}

func (p *textParser) name() (string, error) {
	t := p.next()
	if t.kind != tokString && t.kind != tokWord {
		return "", errs.Formatf("expected macro name, got %v", t)
	}
	return t.text, nil
}

func (p *textParser) int() (int, error) {
	t := p.next()
	n, err := strconv.Atoi(t.text)
	if t.kind != tokWord || err != nil {
		return 0, errs.Formatf("expected integer, got %v", t)
	}
	return n, nil
}

func (p *textParser) float() (float64, error) {
	t := p.next()
	f, err := strconv.ParseFloat(t.text, 64)
	if t.kind != tokWord || err != nil {
		return 0, errs.Formatf("expected number, got %v", t)
	}
	return f, nil
}

func (p *textParser) vector(tag string) ([]float64, error) {
	if err := p.expectTag(tag); err != nil {
		return nil, err
	}
	n, err := p.int()
	if err != nil {
		return nil, err
	}
	v := make([]float64, n)
	for i := range v {
		if v[i], err = p.float(); err != nil {
			return nil, fmt.Errorf("%s element %d: %w", tag, i+1, err)
		}
	}
	return v, nil
}

// ReadMacroFile parses a text macro file.
func ReadMacroFile(r io.Reader) (*MacroFile, error) {
	toks, err := tokenize(r)
	if err != nil {
		return nil, fmt.Errorf("read macro file: %w", err)
	}
	p := &textParser{toks: toks, mf: NewMacroFile()}
	for p.peek().kind != tokEOF {
		if err := p.macro(); err != nil {
			return nil, fmt.Errorf("read macro file: %w", err)
		}
	}
	log.WithFields(logrus.Fields{
		"streams": len(p.mf.streamOrder),
		"models":  len(p.mf.modelOrder),
	}).Debug("read macro file")
	return p.mf, nil
}

// LoadMacroFile reads a text macro file from disk.
func LoadMacroFile(path string) (*MacroFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open macro file: %w", err)
	}
	defer f.Close()
	return ReadMacroFile(f)
}

func (p *textParser) macro() error {
	t := p.next()
	if t.kind != tokMacro {
		return errs.Formatf("expected macro, got %v", t)
	}
	if t.text == "~o" {
		return p.options()
	}
	name, err := p.name()
	if err != nil {
		return err
	}
	switch t.text {
	case "~v":
		v, err := p.vector("<VARIANCE>")
		if err != nil {
			return fmt.Errorf("~v %s: %w", name, err)
		}
		return p.mf.AddVarFloor(&VarFloor{Name: name, Variance: v})
	case "~t":
		tr, err := p.transition(name)
		if err != nil {
			return err
		}
		return p.mf.AddTransition(tr)
	case "~s", "~p":
		s, err := p.mixture(name)
		if err != nil {
			return err
		}
		return p.mf.AddStream(s)
	case "~h":
		m, err := p.model(name)
		if err != nil {
			return err
		}
		return p.mf.AddModel(m)
	}
	return errs.Formatf("unsupported macro type %v", t)
}

func (p *textParser) options() error {
	o := &p.mf.Options
	for p.peek().kind == tokTag {
		t := p.next()
		switch t.text {
		case "<STREAMINFO>":
			n, err := p.int()
			if err != nil {
				return err
			}
			o.StreamWidths = make([]int, n)
			for i := range o.StreamWidths {
				if o.StreamWidths[i], err = p.int(); err != nil {
					return err
				}
			}
		case "<MSDINFO>":
			n, err := p.int()
			if err != nil {
				return err
			}
			o.MSD = make([]bool, n)
			for i := range o.MSD {
				f, err := p.int()
				if err != nil {
					return err
				}
				o.MSD[i] = f != 0
			}
		case "<VECSIZE>":
			n, err := p.int()
			if err != nil {
				return err
			}
			o.VecSize = n
		default:
			o.Kinds = append(o.Kinds, t.text)
		}
	}
	return nil
}

func (p *textParser) transition(name string) (*Transition, error) {
	if err := p.expectTag("<TRANSP>"); err != nil {
		return nil, fmt.Errorf("transition %s: %w", name, err)
	}
	n, err := p.int()
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", name, err)
	}
	t := &Transition{Name: name, Matrix: make([][]float64, n)}
	for i := range t.Matrix {
		t.Matrix[i] = make([]float64, n)
		for j := range t.Matrix[i] {
			if t.Matrix[i][j], err = p.float(); err != nil {
				return nil, fmt.Errorf("transition %s [%d][%d]: %w", name, i, j, err)
			}
		}
	}
	return t, nil
}

func (p *textParser) mixture(name string) (*Stream, error) {
	s := &Stream{Name: name}
	declared := 1
	if p.peekTag("<NUMMIXES>") {
		p.next()
		n, err := p.int()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		declared = n
	}
	if !p.peekTag("<MIXTURE>") {
		g, err := p.gaussian()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		g.Weight = 1
		s.Mixture = append(s.Mixture, g)
		return s, nil
	}
	for p.peekTag("<MIXTURE>") {
		p.next()
		if _, err := p.int(); err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		w, err := p.float()
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", name, err)
		}
		g, err := p.gaussian()
		if err != nil {
			return nil, fmt.Errorf("stream %s mixture %d: %w", name, len(s.Mixture)+1, err)
		}
		g.Weight = w
		s.Mixture = append(s.Mixture, g)
	}
	if len(s.Mixture) > declared {
		return nil, errs.Formatf("stream %s: %d mixtures, <NUMMIXES> %d", name, len(s.Mixture), declared)
	}
	return s, nil
}

func (p *textParser) gaussian() (Gaussian, error) {
	var g Gaussian
	var err error
	if g.Mean, err = p.vector("<MEAN>"); err != nil {
		return g, err
	}
	if g.Variance, err = p.vector("<VARIANCE>"); err != nil {
		return g, err
	}
	if err := g.Validate(); err != nil {
		return g, err
	}
	if p.peekTag("<GCONST>") {
		p.next()
		if g.GConst, err = p.float(); err != nil {
			return g, err
		}
	} else {
		g.ComputeGConst()
	}
	return g, nil
}

func (p *textParser) streamRef(model string, index int) (Ref[Stream], error) {
	t := p.peek()
	if t.kind == tokMacro && (t.text == "~s" || t.text == "~p") {
		p.next()
		name, err := p.name()
		if err != nil {
			return Ref[Stream]{}, err
		}
		if _, ok := p.mf.streams[name]; !ok {
			return Ref[Stream]{}, fmt.Errorf("%w: model %s: undefined stream macro %q", errs.ErrReference, model, name)
		}
		return Ref[Stream]{Name: name}, nil
	}
	s, err := p.mixture("")
	if err != nil {
		return Ref[Stream]{}, fmt.Errorf("model %s stream %d: %w", model, index, err)
	}
	return Ref[Stream]{Inline: s}, nil
}

func (p *textParser) model(name string) (*Model, error) {
	m := &Model{Name: name}
	if err := p.expectTag("<BEGINHMM>"); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	if err := p.expectTag("<NUMSTATES>"); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	n, err := p.int()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	m.NumStates = n

	for p.peekTag("<STATE>") {
		p.next()
		idx, err := p.int()
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		if idx < 2 || idx >= n {
			return nil, errs.Formatf("model %s: state %d outside emitting range 2..%d", name, idx, n-1)
		}
		st := State{Index: idx}
		if p.peekTag("<NUMMIXES>") && !p.peekStreamless() {
			// per-stream mixture counts precede multi-stream states
			p.next()
			for p.peek().kind == tokWord {
				p.next()
			}
		}
		if !p.peekTag("<STREAM>") {
			ref, err := p.streamRef(name, 1)
			if err != nil {
				return nil, err
			}
			st.Streams = append(st.Streams, StreamSlot{Index: 1, Stream: ref})
		}
		for p.peekTag("<STREAM>") {
			p.next()
			si, err := p.int()
			if err != nil {
				return nil, fmt.Errorf("model %s state %d: %w", name, idx, err)
			}
			ref, err := p.streamRef(name, si)
			if err != nil {
				return nil, err
			}
			st.Streams = append(st.Streams, StreamSlot{Index: si, Stream: ref})
		}
		m.States = append(m.States, st)
	}

	t := p.peek()
	switch {
	case t.kind == tokMacro && t.text == "~t":
		p.next()
		tn, err := p.name()
		if err != nil {
			return nil, err
		}
		if _, ok := p.mf.transitions[tn]; !ok {
			return nil, fmt.Errorf("%w: model %s: undefined transition macro %q", errs.ErrReference, name, tn)
		}
		m.Trans = Ref[Transition]{Name: tn}
	case p.peekTag("<TRANSP>"):
		tr, err := p.transition("")
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		m.Trans = Ref[Transition]{Inline: tr}
	default:
		return nil, errs.Formatf("model %s: expected transition, got %v", name, t)
	}
	if err := p.expectTag("<ENDHMM>"); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	return m, nil
}

// peekStreamless reports whether the <NUMMIXES> at the cursor belongs to a
// single-stream mixture body rather than a per-stream count list, i.e. it
// carries one count and is followed by <MIXTURE> or <MEAN>.
func (p *textParser) peekStreamless() bool {
	if p.pos+2 >= len(p.toks) {
		return true
	}
	after := p.toks[p.pos+2]
	return after.kind == tokTag && (after.text == "<MIXTURE>" || after.text == "<MEAN>")
}

// Write serialises the container in text form. Every float is written with
// %.5e.
func (mf *MacroFile) Write(w io.Writer) error {
	if err := mf.checkMixtures(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	mf.writeOptions(bw)
	for _, n := range mf.varFloorOrder {
		fmt.Fprintf(bw, "~v %q\n", n)
		writeVector(bw, "<VARIANCE>", mf.varFloors[n].Variance)
	}
	for _, n := range mf.transitionOrder {
		fmt.Fprintf(bw, "~t %q\n", n)
		writeTransition(bw, mf.transitions[n])
	}
	for _, n := range mf.streamOrder {
		fmt.Fprintf(bw, "~s %q\n", n)
		writeMixture(bw, mf.streams[n])
	}
	for _, n := range mf.modelOrder {
		mf.writeModel(bw, mf.models[n])
	}
	return bw.Flush()
}

// SaveMacroFile writes mf to path in text form.
func SaveMacroFile(path string, mf *MacroFile) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create macro file: %w", err)
	}
	defer f.Close()
	if err := mf.Write(f); err != nil {
		return fmt.Errorf("write macro file: %w", err)
	}
	return f.Close()
}

func (mf *MacroFile) writeOptions(bw *bufio.Writer) {
	o := mf.Options
	if len(o.StreamWidths) == 0 && len(o.MSD) == 0 && o.VecSize == 0 && len(o.Kinds) == 0 {
		return
	}
	bw.WriteString("~o\n")
	if len(o.StreamWidths) > 0 {
		fmt.Fprintf(bw, "<STREAMINFO> %d", len(o.StreamWidths))
		for _, w := range o.StreamWidths {
			fmt.Fprintf(bw, " %d", w)
		}
		bw.WriteByte('\n')
	}
	if len(o.MSD) > 0 {
		fmt.Fprintf(bw, "<MSDINFO> %d", len(o.MSD))
		for _, m := range o.MSD {
			if m {
				bw.WriteString(" 1")
			} else {
				bw.WriteString(" 0")
			}
		}
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "<VECSIZE> %d", o.VecSize)
	for _, k := range o.Kinds {
		bw.WriteString(k)
	}
	bw.WriteByte('\n')
}

func writeVector(bw *bufio.Writer, tag string, v []float64) {
	fmt.Fprintf(bw, "%s %d\n", tag, len(v))
	if len(v) == 0 {
		return
	}
	for _, x := range v {
		fmt.Fprintf(bw, " %.5e", x)
	}
	bw.WriteByte('\n')
}

func writeTransition(bw *bufio.Writer, t *Transition) {
	fmt.Fprintf(bw, "<TRANSP> %d\n", len(t.Matrix))
	for _, row := range t.Matrix {
		for _, x := range row {
			fmt.Fprintf(bw, " %.5e", x)
		}
		bw.WriteByte('\n')
	}
}

func writeMixture(bw *bufio.Writer, s *Stream) {
	single := len(s.Mixture) == 1 && s.Mixture[0].Weight == 1
	if !single {
		fmt.Fprintf(bw, "<NUMMIXES> %d\n", len(s.Mixture))
	}
	for i := range s.Mixture {
		g := &s.Mixture[i]
		if !single {
			fmt.Fprintf(bw, "<MIXTURE> %d %.5e\n", i+1, g.Weight)
		}
		writeVector(bw, "<MEAN>", g.Mean)
		writeVector(bw, "<VARIANCE>", g.Variance)
		if g.Dim() > 0 {
			fmt.Fprintf(bw, "<GCONST> %.5e\n", g.GConst)
		}
	}
}

func (mf *MacroFile) writeModel(bw *bufio.Writer, m *Model) {
	fmt.Fprintf(bw, "~h %q\n<BEGINHMM>\n<NUMSTATES> %d\n", m.Name, m.NumStates)
	for _, st := range m.States {
		fmt.Fprintf(bw, "<STATE> %d\n", st.Index)
		multi := len(st.Streams) != 1 || st.Streams[0].Index != 1
		for _, slot := range st.Streams {
			if multi {
				fmt.Fprintf(bw, "<STREAM> %d\n", slot.Index)
			}
			if slot.Stream.IsMacro() {
				fmt.Fprintf(bw, "~s %q\n", slot.Stream.Name)
			} else {
				writeMixture(bw, slot.Stream.Inline)
			}
		}
	}
	if m.Trans.IsMacro() {
		fmt.Fprintf(bw, "~t %q\n", m.Trans.Name)
	} else {
		writeTransition(bw, m.Trans.Inline)
	}
	bw.WriteString("<ENDHMM>\n")
}
