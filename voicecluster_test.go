package voicecluster

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ieee0824/voicecluster-go/acoustic"
	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/leafindex"
	"github.com/ieee0824/voicecluster-go/lexicon"
	"github.com/ieee0824/voicecluster-go/triphone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testForest = `QS "CentralPhone=Vowel" {"*-a+*","*-i+*"}
QS "RightPhone==sil" {"*+sil"}

"{*}[2].stream[1]"
{
   0 CentralPhone=Vowel "all_s2_mgc_1_1" "all_s2_mgc_1_2"
}

"{*}[2].stream[2]"
{
   0 RightPhone==sil "all_s2_lf0_2_1" "all_s2_lf0_2_2"
}
`

func streamMacro(name string, mean, variance float64) string {
	f := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	return "~s \"" + name + "\"\n<MEAN> 1\n " + f(mean) + "\n<VARIANCE> 1\n " + f(variance) + "\n"
}

func testModels(skip string) string {
	var sb strings.Builder
	sb.WriteString("~o\n<STREAMINFO> 2 1 1\n<VECSIZE> 2<NULLD><USER><DIAGC>\n")
	sb.WriteString("~v \"varFloor1\"\n<VARIANCE> 1\n 0.5\n")
	for i, name := range []string{"all_s2_mgc_1_1", "all_s2_mgc_1_2", "all_s2_lf0_2_1", "all_s2_lf0_2_2"} {
		if name == skip {
			continue
		}
		sb.WriteString(streamMacro(name, float64(i), 0.1))
	}
	return sb.String()
}

func writeFiles(t *testing.T, models string) (forestPath, modelPath string) {
	t.Helper()
	dir := t.TempDir()
	forestPath = filepath.Join(dir, "trees.inf")
	modelPath = filepath.Join(dir, "models.mmf")
	require.NoError(t, os.WriteFile(forestPath, []byte(testForest), 0o644))
	require.NoError(t, os.WriteFile(modelPath, []byte(models), 0o644))
	return forestPath, modelPath
}

func leaves(res []Resolution) []string {
	out := make([]string, len(res))
	for i, r := range res {
		out[i] = r.Leaf
	}
	return out
}

func TestNewVoiceResolve(t *testing.T) {
	fp, mp := writeFiles(t, testModels(""))
	v, err := NewVoice(fp, mp)
	require.NoError(t, err)
	require.NoError(t, v.Validate())
	assert.Equal(t, "trees", v.Forest.Name())

	res, err := v.ResolveText("k-a+sil")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []string{"all_s2_mgc_1_2", "all_s2_lf0_2_2"}, leaves(res))
	assert.Equal(t, 2, res[1].Stream)
	assert.Equal(t, "{*}[2].stream[2]", res[1].Tree)
	assert.InDelta(t, 1.0, res[0].Model.Mixture[0].Mean[0], 1e-12)

	_, err = v.ResolveText("k-a")
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestNewVoiceBinaryModels(t *testing.T) {
	mf, err := acoustic.ReadMacroFile(strings.NewReader(testModels("")))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, acoustic.WriteBinary(&buf, mf))
	assert.True(t, IsBinaryModel(buf.Bytes()))
	assert.False(t, IsBinaryModel([]byte(testModels(""))))

	fp, mp := writeFiles(t, buf.String())
	v, err := NewVoice(fp, mp)
	require.NoError(t, err)
	res, err := v.ResolveText("a-k+i")
	require.NoError(t, err)
	assert.Equal(t, []string{"all_s2_mgc_1_1", "all_s2_lf0_2_1"}, leaves(res))
}

func TestVarianceFloors(t *testing.T) {
	fp, mp := writeFiles(t, testModels(""))
	v, err := NewVoice(fp, mp, WithVarianceFloors(true))
	require.NoError(t, err)
	s, _ := v.Models.Stream("all_s2_mgc_1_1")
	assert.Equal(t, []float64{0.5}, s.Mixture[0].Variance)
	// no varFloor2 macro
	s, _ = v.Models.Stream("all_s2_lf0_2_1")
	assert.Equal(t, []float64{0.1}, s.Mixture[0].Variance)
}

func TestResolveWord(t *testing.T) {
	dict, err := lexicon.LoadDictionary(strings.NewReader("か\tカ\tk a\n"))
	require.NoError(t, err)
	fp, mp := writeFiles(t, testModels(""))
	v, err := NewVoice(fp, mp, WithDictionary(dict))
	require.NoError(t, err)

	got, err := v.ResolveWord("か")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"all_s2_mgc_1_1", "all_s2_lf0_2_1"}, leaves(got[triphone.Triphone("sil-k+a")]))
	assert.Equal(t, []string{"all_s2_mgc_1_2", "all_s2_lf0_2_2"}, leaves(got[triphone.Triphone("k-a+sil")]))

	_, err = v.ResolveWord("なし")
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestResolveWordWithoutDictionary(t *testing.T) {
	fp, mp := writeFiles(t, testModels(""))
	v, err := NewVoice(fp, mp)
	require.NoError(t, err)
	_, err = v.ResolveWord("か")
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestValidateMissingStream(t *testing.T) {
	fp, mp := writeFiles(t, testModels("all_s2_lf0_2_2"))
	v, err := NewVoice(fp, mp)
	require.NoError(t, err)
	assert.True(t, errors.Is(v.Validate(), errs.ErrReference))

	_, err = v.ResolveText("k-a+sil")
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestIndex(t *testing.T) {
	fp, mp := writeFiles(t, testModels(""))
	v, err := NewVoice(fp, mp, WithInventory(lexicon.NewInventory([]string{"a", "i", "k", "sil"})))
	require.NoError(t, err)

	store, err := leafindex.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	b, err := v.Index(store)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Leaves)

	got, err := store.Leaves(b.ID, "k-a+sil")
	require.NoError(t, err)
	assert.Equal(t, []string{"all_s2_lf0_2_2", "all_s2_mgc_1_2"}, got)
}
