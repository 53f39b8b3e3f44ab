package label

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriphone(t *testing.T) {
	s, err := NewSchema("tri", nil, WithSeparators("-+"))
	require.NoError(t, err)

	l, err := Parse("ax-b+eh", s)
	require.NoError(t, err)

	got, err := l.Feature(FeatureCentralPhone)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, "ax", l.LeftPhone())
	assert.Equal(t, "eh", l.RightPhone())
	assert.Equal(t, "ax-b+eh", l.String())
}

func TestParseMinimalAlphabet(t *testing.T) {
	s, err := NewSchema("tri", nil, WithSeparators("-+"))
	require.NoError(t, err)

	tests := []struct {
		text  string
		right string
		ok    bool
	}{
		{"ax-b+eh", "eh", true},
		{"ax-b+eh+", "", false},
		{"ax-b+eh+x", "", false},
		{"ax-b+eh-x", "eh-x", true},
		{"ax-b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			l, err := Parse(tt.text, s)
			if !tt.ok {
				assert.True(t, errors.Is(err, errs.ErrFormat), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.right, l.RightPhone())
			assert.Equal(t, tt.text, l.String())
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	s, err := NewSchema("full", []string{"Phone.PhoneIdentity", "Syllable.Position", "Word.Pos"})
	require.NoError(t, err)
	require.Equal(t, 6, s.Size())

	tests := []string{
		"a-b+c=1@2_noun",
		"sil-k+a=0@10_verb",
		"xx-a+xx=xx@xx_xx",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			l, err := Parse(text, s)
			require.NoError(t, err)
			assert.Equal(t, text, l.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	s, err := NewSchema("full", []string{"Extra"})
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
	}{
		{"two tokens", "a-b"},
		{"too few", "a-b+c"},
		{"too many", "a-b+c=d@e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, s)
			assert.True(t, errors.Is(err, errs.ErrFormat), "err = %v", err)
		})
	}
}

func TestParseMonophone(t *testing.T) {
	l, err := Parse("a", DefaultTriphoneSchema())
	require.NoError(t, err)
	assert.Equal(t, "a", l.CentralPhone())
	assert.Equal(t, NotApplicable, l.LeftPhone())
	assert.Equal(t, "xx-a+xx", l.String())
}

func TestSetFeatureSparse(t *testing.T) {
	s := DefaultTriphoneSchema()
	l := New(s)
	assert.True(t, l.Sparse())
	assert.Equal(t, "xx-xx+xx", l.String())

	require.NoError(t, l.SetFeature(FeatureLeftPhone, NotApplicable))
	assert.True(t, l.Sparse(), "assigning the NA token must not materialize values")

	require.NoError(t, l.SetFeature(FeatureRightPhone, "o"))
	assert.False(t, l.Sparse())
	assert.Equal(t, "xx-xx+o", l.String())

	err := l.SetFeature("Missing", "1")
	assert.True(t, errors.Is(err, errs.ErrReference))
	_, err = l.Feature("Missing")
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestResize(t *testing.T) {
	small := DefaultTriphoneSchema()
	big, err := NewSchema("big", []string{"Stress", "Tone"})
	require.NoError(t, err)

	l := MustParse("k-a+i", small)
	l.Resize(big)
	assert.Equal(t, "k-a+i=xx@xx", l.String())
	v, err := l.Feature("Tone")
	require.NoError(t, err)
	assert.Equal(t, NotApplicable, v)

	l.Resize(small)
	assert.Equal(t, "k-a+i", l.String())
}

func TestEqualUsesText(t *testing.T) {
	a, err := NewSchema("a", nil)
	require.NoError(t, err)
	b, err := NewSchema("b", nil)
	require.NoError(t, err)

	assert.True(t, MustParse("k-a+i", a).Equal(MustParse("k-a+i", b)))
	assert.False(t, MustParse("k-a+i", a).Equal(MustParse("k-a+u", a)))
}

func TestSchemaValidation(t *testing.T) {
	_, err := NewSchema("dup", []string{"X", "X"})
	assert.True(t, errors.Is(err, errs.ErrConflict))

	_, err = NewSchema("tiny", []string{"X", "Y"}, WithSeparators("-+"))
	assert.True(t, errors.Is(err, errs.ErrFormat))

	s, err := NewSchema("exact", []string{"X"}, WithSeparators("-+="))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Size())

	many := make([]string, len(DefaultSeparators))
	for i := range many {
		many[i] = fmt.Sprintf("F%d", i)
	}
	_, err = NewSchema("wide", many)
	assert.True(t, errors.Is(err, errs.ErrFormat))

	_, err = NewSchema("rep", nil, WithSeparators("--+"))
	assert.True(t, errors.Is(err, errs.ErrConflict))

	assert.Len(t, DefaultSeparators, 94)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s1, err := NewSchema("voice", []string{"Tone"})
	require.NoError(t, err)
	s2, err := NewSchema("voice", []string{"Tone"})
	require.NoError(t, err)
	s3, err := NewSchema("voice", []string{"Stress"})
	require.NoError(t, err)

	require.NoError(t, r.Register(s1))
	require.NoError(t, r.Register(s2))
	assert.True(t, errors.Is(r.Register(s3), errs.ErrConflict))

	got, err := r.Lookup("voice")
	require.NoError(t, err)
	assert.Same(t, s1, got)

	_, err = r.Lookup("none")
	assert.True(t, errors.Is(err, errs.ErrReference))
	assert.Equal(t, []string{"voice"}, r.Names())
}
