package lexicon

import (
	"errors"
	"strings"
	"testing"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDict = `# Japanese pronunciation dictionary
東京	トウキョウ	t o u k y o u
タワー	タワー	t a w a a
食べる	タベル	t a b e r u
食べる	タベル	t a b e r u
`

func TestLoadDictionary(t *testing.T) {
	d, err := LoadDictionary(strings.NewReader(testDict))
	require.NoError(t, err)

	entries := d.Lookup("東京")
	require.Len(t, entries, 1)
	assert.Equal(t, "トウキョウ", entries[0].Reading)
	assert.Equal(t, []string{"t", "o", "u", "k", "y", "o", "u"}, entries[0].Phones)

	assert.Len(t, d.Lookup("食べる"), 2)
	assert.Equal(t, []string{"タワー", "東京", "食べる"}, d.Words())

	_, ok := d.Phones("存在しない")
	assert.False(t, ok)
}

func TestLoadDictionaryErrors(t *testing.T) {
	for _, text := range []string{"word\treading\n", "word\treading\t \n"} {
		_, err := LoadDictionary(strings.NewReader(text))
		assert.True(t, errors.Is(err, errs.ErrFormat), "input %q", text)
	}
}

func TestDictionaryValidate(t *testing.T) {
	d, err := LoadDictionary(strings.NewReader(testDict))
	require.NoError(t, err)
	require.NoError(t, d.Validate(DefaultInventory()))

	d.Add("シー", "シー", []string{"shh", "i"})
	err = d.Validate(DefaultInventory())
	require.True(t, errors.Is(err, errs.ErrReference))
	assert.Contains(t, err.Error(), `did you mean "sh"`)
}
