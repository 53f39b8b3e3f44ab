package acoustic

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inlineState = `<STREAM> 1
<MEAN> 3
 0 0 0
<VARIANCE> 3
 1 1 1`

const sampleMMF = `~o
<STREAMINFO> 2 3 1
<MSDINFO> 2 0 1
<VECSIZE> 4<NULLD><USER><DIAGC>
~v "varFloor1"
<VARIANCE> 3
 1.0e-02 1.0e-02 1.0e-02
~t "trP_1"
<TRANSP> 4
 0 1 0 0
 0 0.6 0.4 0
 0 0 0.7 0.3
 0 0 0 0
~s "a_s2_mgc_1_1"
<NUMMIXES> 2
<MIXTURE> 1 0.4
<MEAN> 3
 0.1 0.2 0.3
<VARIANCE> 3
 0.001 0.5 1.0
<MIXTURE> 2 0.6
<MEAN> 3
 -0.1 0 0.1
<VARIANCE> 3
 1 1 1
~s "a_s2_lf0_2_1"
<NUMMIXES> 2
<MIXTURE> 1 0.9
<MEAN> 1
 5.0
<VARIANCE> 1
 0.2
<MIXTURE> 2 0.1
<MEAN> 0
<VARIANCE> 0
~h "a"
<BEGINHMM>
<NUMSTATES> 4
<STATE> 2
<STREAM> 1
~s "a_s2_mgc_1_1"
<STREAM> 2
~s "a_s2_lf0_2_1"
<STATE> 3
` + inlineState + `
<STREAM> 2
~s "a_s2_lf0_2_1"
~t "trP_1"
<ENDHMM>
`

func readSample(t *testing.T, text string) *MacroFile {
	t.Helper()
	mf, err := ReadMacroFile(strings.NewReader(text))
	require.NoError(t, err)
	return mf
}

func TestParseMacroName(t *testing.T) {
	tests := []struct {
		name string
		want MacroName
		ok   bool
	}{
		{"a_s2_mgc_1_1", MacroName{Phone: "a", State: 2, Type: ModelSpectrum, Stream: 1, Serial: 1}, true},
		{"sil_s4_lf0_3_17", MacroName{Phone: "sil", State: 4, Type: ModelPitch, Stream: 3, Serial: 17}, true},
		{"n_y_s2_bap_1_3", MacroName{Phone: "n_y", State: 2, Type: ModelAperiodicity, Stream: 1, Serial: 3}, true},
		{"all_s2_dur_1_9", MacroName{Phone: "all", State: 2, Type: ModelDuration, Stream: 1, Serial: 9}, true},
		{"a_s2_xyz_1_1", MacroName{}, false},
		{"a_2_mgc_1_1", MacroName{}, false},
		{"a_s2_mgc_0_1", MacroName{}, false},
		{"_s2_mgc_1_1", MacroName{}, false},
		{"trP_1", MacroName{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMacroName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if ok {
				assert.Equal(t, tt.name, got.String())
			}
		})
	}
}

func TestModelType(t *testing.T) {
	for _, ty := range []ModelType{ModelDuration, ModelSpectrum, ModelPitch, ModelAperiodicity} {
		assert.Equal(t, ty, ParseModelType(ty.String()))
	}
	assert.Equal(t, ModelUnknown, ParseModelType("f0"))
	assert.Equal(t, "unknown", ModelUnknown.String())
}

func TestReadMacroFile(t *testing.T) {
	mf := readSample(t, sampleMMF)

	assert.Equal(t, []int{3, 1}, mf.Options.StreamWidths)
	assert.Equal(t, []bool{false, true}, mf.Options.MSD)
	assert.Equal(t, 4, mf.Options.VecSize)
	assert.Equal(t, []string{"<NULLD>", "<USER>", "<DIAGC>"}, mf.Options.Kinds)

	assert.Equal(t, []string{"varFloor1"}, mf.VarFloorNames())
	assert.Equal(t, []string{"trP_1"}, mf.TransitionNames())
	assert.Equal(t, []string{"a_s2_mgc_1_1", "a_s2_lf0_2_1"}, mf.StreamNames())
	assert.Equal(t, []string{"a"}, mf.ModelNames())

	s, ok := mf.Stream("a_s2_lf0_2_1")
	require.True(t, ok)
	require.Len(t, s.Mixture, 2)
	assert.Equal(t, 0, s.Mixture[1].Dim())
	assert.Equal(t, 1, s.Dim())
	assert.Equal(t, ModelPitch, s.Type())

	m, ok := mf.Model("a")
	require.True(t, ok)
	assert.Equal(t, 4, m.NumStates)
	require.Len(t, m.States, 2)
	assert.Equal(t, "a_s2_mgc_1_1", m.States[0].Streams[0].Stream.Name)
	assert.True(t, m.States[0].Streams[1].Stream.IsMacro())
	inline := m.States[1].Streams[0].Stream
	require.False(t, inline.IsMacro())
	assert.Equal(t, []float64{1, 1, 1}, inline.Inline.Mixture[0].Variance)

	tr, err := mf.ResolveTransition(m.Trans)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.States())
	assert.InDelta(t, 0.4, tr.Matrix[1][2], 1e-12)

	require.NoError(t, mf.Validate())
}

func TestTextRoundTrip(t *testing.T) {
	mf := readSample(t, sampleMMF)
	var buf bytes.Buffer
	require.NoError(t, mf.Write(&buf))

	re := readSample(t, buf.String())
	assertEquivalent(t, mf, re, 1e-5)

	var again bytes.Buffer
	require.NoError(t, re.Write(&again))
	assert.Equal(t, buf.String(), again.String())
}

func assertEquivalent(t *testing.T, want, got *MacroFile, tol float64) {
	t.Helper()
	assert.Equal(t, want.Options, got.Options)
	assert.Equal(t, want.StreamNames(), got.StreamNames())
	assert.Equal(t, want.TransitionNames(), got.TransitionNames())
	assert.Equal(t, want.VarFloorNames(), got.VarFloorNames())
	assert.Equal(t, want.ModelNames(), got.ModelNames())

	for _, n := range want.StreamNames() {
		a, _ := want.Stream(n)
		b, ok := got.Stream(n)
		require.True(t, ok, n)
		assertSameStream(t, a, b, tol)
	}
	for _, n := range want.TransitionNames() {
		a, _ := want.Transition(n)
		b, _ := got.Transition(n)
		require.Equal(t, len(a.Matrix), len(b.Matrix))
		for i := range a.Matrix {
			assertClose(t, a.Matrix[i], b.Matrix[i], tol)
		}
	}
	for _, n := range want.ModelNames() {
		a, _ := want.Model(n)
		b, _ := got.Model(n)
		assert.Equal(t, a.NumStates, b.NumStates)
		assert.Equal(t, a.Trans.Name, b.Trans.Name)
		require.Equal(t, len(a.States), len(b.States))
		for i := range a.States {
			require.Equal(t, len(a.States[i].Streams), len(b.States[i].Streams))
			for j, slot := range a.States[i].Streams {
				other := b.States[i].Streams[j]
				assert.Equal(t, slot.Index, other.Index)
				assert.Equal(t, slot.Stream.Name, other.Stream.Name)
				if slot.Stream.Inline != nil {
					require.NotNil(t, other.Stream.Inline)
					assertSameStream(t, slot.Stream.Inline, other.Stream.Inline, tol)
				}
			}
		}
	}
}

func assertSameStream(t *testing.T, a, b *Stream, tol float64) {
	t.Helper()
	require.Equal(t, len(a.Mixture), len(b.Mixture), a.Name)
	for i := range a.Mixture {
		x, y := a.Mixture[i], b.Mixture[i]
		assert.InDelta(t, x.Weight, y.Weight, tol)
		assertClose(t, x.Mean, y.Mean, tol)
		assertClose(t, x.Variance, y.Variance, tol)
		if x.Dim() > 0 {
			assert.InEpsilon(t, x.GConst, y.GConst, tol)
		}
	}
}

func assertClose(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol*math.Max(1, math.Abs(want[i])))
	}
}

func TestReadMacroFileErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{
			name: "undefined stream macro",
			text: "~h \"a\"\n<BEGINHMM>\n<NUMSTATES> 3\n<STATE> 2\n~s \"missing\"\n<TRANSP> 3\n0 1 0\n0 0.5 0.5\n0 0 0\n<ENDHMM>\n",
			want: errs.ErrReference,
		},
		{
			name: "undefined transition macro",
			text: "~h \"a\"\n<BEGINHMM>\n<NUMSTATES> 3\n<STATE> 2\n<MEAN> 1\n0\n<VARIANCE> 1\n1\n~t \"nope\"\n<ENDHMM>\n",
			want: errs.ErrReference,
		},
		{
			name: "mean variance mismatch",
			text: "~s \"x\"\n<MEAN> 2\n0 0\n<VARIANCE> 1\n1\n",
			want: errs.ErrDimensionMismatch,
		},
		{
			name: "truncated vector",
			text: "~s \"x\"\n<MEAN> 3\n0 0\n",
			want: errs.ErrFormat,
		},
		{
			name: "duplicate stream",
			text: "~s \"x\"\n<MEAN> 1\n0\n<VARIANCE> 1\n1\n~s \"x\"\n<MEAN> 1\n0\n<VARIANCE> 1\n1\n",
			want: errs.ErrConflict,
		},
		{
			name: "too many mixtures",
			text: "~s \"x\"\n<NUMMIXES> 1\n<MIXTURE> 1 0.5\n<MEAN> 1\n0\n<VARIANCE> 1\n1\n<MIXTURE> 2 0.5\n<MEAN> 1\n0\n<VARIANCE> 1\n1\n",
			want: errs.ErrFormat,
		},
		{
			name: "missing macro marker",
			text: "<MEAN> 1\n0\n",
			want: errs.ErrFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMacroFile(strings.NewReader(tt.text))
			assert.True(t, errors.Is(err, tt.want), "err = %v", err)
		})
	}
}

func TestCorrectVariance(t *testing.T) {
	mf := readSample(t, sampleMMF)
	s, _ := mf.Stream("a_s2_mgc_1_1")
	before := s.Mixture[0].GConst

	require.NoError(t, mf.CorrectVariance("a_s2_mgc_1_1", []float64{0.01, 0.01, 0.01}))
	assert.Equal(t, []float64{0.01, 0.5, 1.0}, s.Mixture[0].Variance)
	assert.Equal(t, []float64{1, 1, 1}, s.Mixture[1].Variance)
	assert.Greater(t, s.Mixture[0].GConst, before)

	err := mf.CorrectVariance("a_s2_mgc_1_1", []float64{0.01, 0.01})
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))

	err = mf.CorrectVariance("nope", []float64{0.01})
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestCorrectVarianceSkipsMSDSpace(t *testing.T) {
	mf := readSample(t, sampleMMF)
	require.NoError(t, mf.CorrectVariance("a_s2_lf0_2_1", []float64{0.5}))
	s, _ := mf.Stream("a_s2_lf0_2_1")
	assert.Equal(t, []float64{0.5}, s.Mixture[0].Variance)
	assert.Empty(t, s.Mixture[1].Variance)
}

func TestApplyVarianceFloors(t *testing.T) {
	mf := readSample(t, sampleMMF)
	n, err := mf.ApplyVarianceFloors()
	require.NoError(t, err)
	// a_s2_mgc_1_1 plus the inline stream-1 mixture of state 3
	assert.Equal(t, 2, n)
	s, _ := mf.Stream("a_s2_mgc_1_1")
	assert.InDelta(t, 0.01, s.Mixture[0].Variance[0], 1e-12)
}

func TestStreamLogProb(t *testing.T) {
	single := &Stream{Name: "x", Mixture: []Gaussian{{Weight: 1, Mean: []float64{0}, Variance: []float64{1}}}}
	single.Mixture[0].ComputeGConst()
	lp, err := single.LogProb([]float64{0})
	require.NoError(t, err)
	assert.InDelta(t, -0.5*math.Log(2*math.Pi), lp, 1e-12)

	g := single.Mixture[0]
	g.Weight = 0.5
	twin := &Stream{Name: "y", Mixture: []Gaussian{g, g}}
	lp2, err := twin.LogProb([]float64{0})
	require.NoError(t, err)
	assert.InDelta(t, lp, lp2, 1e-12)

	_, err = single.LogProb([]float64{0, 1})
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch))
}

func TestValidateStreamWidth(t *testing.T) {
	mf := readSample(t, sampleMMF)
	mf.Options.StreamWidths = []int{2, 1}
	err := mf.Validate()
	assert.True(t, errors.Is(err, errs.ErrDimensionMismatch), "err = %v", err)
}

func TestEmptyMixtureRejected(t *testing.T) {
	mf := NewMacroFile()
	err := mf.AddStream(&Stream{Name: "a_s2_mgc_1_1"})
	assert.True(t, errors.Is(err, errs.ErrFormat), "err = %v", err)

	mf = readSample(t, macroOnlySample())
	s, ok := mf.Stream("a_s2_mgc_1_1")
	require.True(t, ok)
	s.Mixture = nil

	assert.True(t, errors.Is(mf.Validate(), errs.ErrFormat))
	assert.True(t, errors.Is(mf.Write(&bytes.Buffer{}), errs.ErrFormat))
	assert.True(t, errors.Is(WriteBinary(&bytes.Buffer{}, mf), errs.ErrFormat))

	_, err = ReadMacroFile(strings.NewReader("~s \"x\"\n<NUMMIXES> 0\n"))
	assert.Error(t, err)
}

func macroOnlySample() string {
	return strings.Replace(sampleMMF, inlineState, "<STREAM> 1\n~s \"a_s2_mgc_1_1\"", 1)
}

func TestBinaryRoundTrip(t *testing.T) {
	mf := readSample(t, macroOnlySample())
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, mf))

	re, err := ReadBinaryMacroFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assertEquivalent(t, mf, re, 1e-6)
	require.NoError(t, re.Validate())
}

func TestBinaryReaderNext(t *testing.T) {
	mf := readSample(t, macroOnlySample())
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, mf))

	r := NewBinaryReader(&buf)
	var kinds []RecordKind
	var names []string
	for {
		rec, err := r.Next()
		require.NoError(t, err)
		kinds = append(kinds, rec.Kind)
		names = append(names, rec.Name)
		if rec.Kind == KindEnd {
			break
		}
	}
	assert.Equal(t, []RecordKind{KindOptions, KindVarFloor, KindTransition, KindStream, KindStream, KindModel, KindEnd}, kinds)
	assert.Equal(t, []string{"", "varFloor1", "trP_1", "a_s2_mgc_1_1", "a_s2_lf0_2_1", "a", ""}, names)

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, KindEnd, rec.Kind)
}

func TestBinaryScanSkipsNoise(t *testing.T) {
	mf := readSample(t, macroOnlySample())
	var buf bytes.Buffer
	buf.WriteString("junk~q ~sx ")
	require.NoError(t, WriteBinary(&buf, mf))

	re, err := ReadBinaryMacroFile(&buf)
	require.NoError(t, err)
	assert.Equal(t, mf.StreamNames(), re.StreamNames())
}

func TestBinaryTruncated(t *testing.T) {
	mf := readSample(t, macroOnlySample())
	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, mf))

	data := buf.Bytes()
	cut := bytes.Index(data, []byte(`~s "a_s2_lf0_2_1"`))
	require.Greater(t, cut, 0)
	_, err := ReadBinaryMacroFile(bytes.NewReader(data[:cut+30]))
	assert.True(t, errors.Is(err, errs.ErrFormat), "err = %v", err)
}

func TestBinaryRejectsInline(t *testing.T) {
	mf := readSample(t, sampleMMF)
	err := WriteBinary(&bytes.Buffer{}, mf)
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestBinaryStateFromMacroName(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("~s \"a_s3_mgc_1_1\"\n")
	bw := &binWriter{w: bufio.NewWriter(&buf)}
	bw.vector(symMean, []float64{0})
	bw.vector(symVariance, []float64{1})
	bw.w.WriteString("~h \"a\"\n~s \"a_s3_mgc_1_1\"\n")
	require.NoError(t, bw.w.Flush())

	mf, err := ReadBinaryMacroFile(&buf)
	require.NoError(t, err)
	m, ok := mf.Model("a")
	require.True(t, ok)
	require.Len(t, m.States, 1)
	assert.Equal(t, 3, m.States[0].Index)
	assert.Equal(t, 4, m.NumStates)
	assert.Equal(t, 1, m.States[0].Streams[0].Index)
}
