package lexicon

import (
	"errors"
	"strings"
	"testing"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/question"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInventory(t *testing.T) {
	inv, err := LoadInventory(strings.NewReader("# vowels\na i u e o\nk s t # consonants\nsil a\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e", "i", "k", "o", "s", "sil", "t", "u"}, inv.Phones())
	assert.True(t, inv.Contains("sil"))
	assert.False(t, inv.Contains("#"))

	_, err = LoadInventory(strings.NewReader("# nothing\n"))
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestInventoryCheck(t *testing.T) {
	inv := NewInventory([]string{"a", "k", "sh"})
	require.NoError(t, inv.Check([]string{"k", "a"}))

	err := inv.Check([]string{"k", "xyzzy"})
	require.True(t, errors.Is(err, errs.ErrReference))
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"ka", "ka", 0},
		{"", "ai", 2},
		{"a", "", 1},
		{"ka", "ga", 1},
		{"ka", "kai", 1},
		{"kai", "ka", 1},
		{"しゃ", "しゅ", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, editDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestLoadPhoneGroups(t *testing.T) {
	groups, err := LoadPhoneGroups(strings.NewReader(`# classes
Vowel a i u e o
Voiced_Stop g d b
Silence sil pau  # pauses
`))
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, question.Group{Name: "Voiced_Stop", Values: []string{"g", "d", "b"}}, groups[1])

	_, err = LoadPhoneGroups(strings.NewReader("Vowel\n"))
	assert.True(t, errors.Is(err, errs.ErrFormat))
	_, err = LoadPhoneGroups(strings.NewReader("V a\nV i\n"))
	assert.True(t, errors.Is(err, errs.ErrConflict))
}

func TestPhoneGroupsCoverDefaultInventory(t *testing.T) {
	groups, err := LoadPhoneGroups(strings.NewReader("Vowel a i u e o\nSilence sil pau\n"))
	require.NoError(t, err)
	_, err = question.FromPhoneGroups(label.FeatureCentralPhone, groups, DefaultInventory().Phones(), label.DefaultTriphoneSchema())
	var cov *errs.CoverageError
	require.True(t, errors.As(err, &cov))
	assert.Contains(t, cov.Missing, "k")
	assert.NotContains(t, cov.Missing, "a")
}
