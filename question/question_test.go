package question

import (
	"errors"
	"strconv"
	"testing"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *label.Schema {
	t.Helper()
	s, err := label.NewSchema("test", []string{"Phone.PhoneIdentity", "Syllable.Position"})
	require.NoError(t, err)
	return s
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		patterns []string
		value    string
		want     bool
	}{
		{[]string{"a"}, "a", true},
		{[]string{"a"}, "ab", false},
		{[]string{"1?"}, "12", true},
		{[]string{"1?"}, "1", false},
		{[]string{"1?"}, "21", false},
		{[]string{"x", "2?"}, "25", true},
		{nil, "a", false},
	}
	for _, tt := range tests {
		got := MatchPattern(tt.patterns, tt.value)
		assert.Equal(t, tt.want, got, "MatchPattern(%v, %q)", tt.patterns, tt.value)
	}
}

func TestLessValueSetExact(t *testing.T) {
	for v := 0; v <= 1300; v++ {
		pats := LessValueSet(v)
		for _, p := range pats {
			require.NotEqual(t, byte(WildCard), p[0], "v=%d pattern %q starts with a wildcard", v, p)
		}
		for x := 0; x < 2000; x++ {
			got := MatchPattern(pats, strconv.Itoa(x))
			if got != (x < v) {
				t.Fatalf("v=%d: MatchPattern(%v, %d) = %v", v, pats, x, got)
			}
		}
	}
}

func TestLessValueSetShape(t *testing.T) {
	assert.Nil(t, LessValueSet(0))
	assert.Equal(t, []string{"0", "1", "2"}, LessValueSet(3))
	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
		"1?", "2?", "3?", "4?", "5?", "6?", "7?", "8?", "9?",
		"10?", "11?", "120", "121", "122", "123", "124"}, LessValueSet(125))
}

func TestExpandWildCard(t *testing.T) {
	assert.Equal(t, []string{"7"}, ExpandWildCard("7"))
	got := ExpandWildCard("1?")
	require.Len(t, got, 10)
	assert.Equal(t, "10", got[0])
	assert.Equal(t, "19", got[9])
	assert.Len(t, ExpandWildCard("??"), 100)
}

func TestLessEqualQuestion(t *testing.T) {
	s := testSchema(t)
	q, err := New("Phone.PhoneIdentity", LessEqual, "2", nil, s)
	require.NoError(t, err)
	assert.Equal(t, "Phone.PhoneIdentity<=2", q.Name)
	assert.Equal(t, LessEqual, q.Op)
	assert.Equal(t, []string{"0", "1", "2"}, q.Values)

	_, err = New("Phone.PhoneIdentity", Less, "x", nil, s)
	assert.True(t, errors.Is(err, errs.ErrFormat))
	_, err = New("Nope", Equal, "a", []string{"a"}, s)
	assert.True(t, errors.Is(err, errs.ErrReference))
}

func TestNewComparisonFolds(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		symbol   string
		op       Operator
		inverted bool
	}{
		{"<", Less, false},
		{"<=", LessEqual, false},
		{">", LessEqual, true},
		{">=", Less, true},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			q, inv, err := NewComparison("Syllable.Position", tt.symbol, 4, s)
			require.NoError(t, err)
			assert.Equal(t, tt.op, q.Op)
			assert.Equal(t, tt.inverted, inv)
		})
	}
	_, _, err := NewComparison("Syllable.Position", "!=", 4, s)
	assert.Error(t, err)
}

func TestFromPhoneGroupsCoverage(t *testing.T) {
	s := testSchema(t)
	groups := []Group{
		{Name: "Vowel", Values: []string{"a", "i", "u"}},
		{Name: "Stop", Values: []string{"k", "t"}},
	}
	qs, err := FromPhoneGroups(label.FeatureCentralPhone, groups, []string{"a", "i", "u", "k", "t"}, s)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "CentralPhone=Vowel", qs[0].Name)
	assert.Equal(t, Belong, qs[0].Op)

	_, err = FromPhoneGroups(label.FeatureCentralPhone, groups, []string{"a", "s", "n"}, s)
	var cov *errs.CoverageError
	require.True(t, errors.As(err, &cov))
	assert.Equal(t, []string{"n", "s"}, cov.Missing)
	assert.True(t, errors.Is(err, errs.ErrCoverage))
}

func TestFromIntegers(t *testing.T) {
	s := testSchema(t)
	qs, err := FromIntegers("Syllable.Position", []int{2, 0, 1, 1}, s)
	require.NoError(t, err)

	names := make([]string, len(qs))
	for i, q := range qs {
		names[i] = q.Name
	}
	assert.Equal(t, []string{
		"Syllable.Position==0", "Syllable.Position<=0",
		"Syllable.Position==1", "Syllable.Position<=1",
		"Syllable.Position==2",
	}, names)
}

func TestFromEnum(t *testing.T) {
	s := testSchema(t)
	qs, err := FromEnum(label.FeatureLeftPhone, []string{"a", "sil"}, s)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, `QS "LeftPhone==sil" {"sil-*"}`, qs[1].Expression())
}

func TestMatchesLabel(t *testing.T) {
	s := testSchema(t)
	l := label.MustParse("k-a+i=12@3", s)

	q := Must(New(label.FeatureCentralPhone, Belong, "Vowel", []string{"a", "i"}, s))
	ok, err := q.Matches(l)
	require.NoError(t, err)
	assert.True(t, ok)

	q = Must(New("Phone.PhoneIdentity", Less, "12", nil, s))
	ok, err = q.Matches(l)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseLineRoundTrip(t *testing.T) {
	s := testSchema(t)
	qs := []*Question{
		Must(New(label.FeatureCentralPhone, Belong, "Vowel", []string{"a", "i", "u"}, s)),
		Must(New(label.FeatureLeftPhone, Equal, "sil", []string{"sil"}, s)),
		Must(New("Syllable.Position", LessEqual, "14", nil, s)),
		Must(New("Phone.PhoneIdentity", Less, "3", nil, s)),
	}
	for _, q := range qs {
		t.Run(q.Name, func(t *testing.T) {
			got, err := ParseLine(q.Expression(), s)
			require.NoError(t, err)
			assert.Equal(t, q.Name, got.Name)
			assert.Equal(t, q.Feature, got.Feature)
			assert.Equal(t, q.Op, got.Op)
			assert.True(t, Equivalent(q, got))
		})
	}
}

func TestParseLineEscapes(t *testing.T) {
	s := label.DefaultTriphoneSchema()
	q := Must(New(label.FeatureCentralPhone, Belong, `Odd"set\`, []string{`a"b`, `c\d`, "e,f"}, s))

	got, err := ParseLine(q.Expression(), s)
	require.NoError(t, err)
	assert.Equal(t, q.Name, got.Name)
	assert.Equal(t, q.Values, got.Values)
	assert.Equal(t, q.Expression(), got.Expression())

	_, err = ParseLine(`QS "x" {"*-a+*" "*-i+*"}`, s)
	assert.True(t, errors.Is(err, errs.ErrFormat))
	_, err = ParseLine(`QS "x {"*-a+*"}`, s)
	assert.True(t, errors.Is(err, errs.ErrFormat))
}

func TestParseLineBareHTS(t *testing.T) {
	s := label.DefaultTriphoneSchema()
	q, err := ParseLine(`QS "C-Vowel" {*-a+*,*-i+*}`, s)
	require.NoError(t, err)
	assert.Equal(t, label.FeatureCentralPhone, q.Feature)
	assert.Equal(t, Belong, q.Op)
	assert.Equal(t, []string{"a", "i"}, q.Values)

	q, err = ParseLine(`QS "R-sil" {*+sil}`, s)
	require.NoError(t, err)
	assert.Equal(t, label.FeatureRightPhone, q.Feature)
}

func TestParseLineErrors(t *testing.T) {
	s := testSchema(t)
	bad := []string{
		`Q "x" {a-*}`,
		`QS x {a-*}`,
		`QS "x" a-*`,
		`QS "x" {}`,
		`QS "x" {a-*,*-b+*}`,
		`QS "Phone.PhoneIdentity<3" {"*=0@*","*=1@*"}`,
	}
	for _, line := range bad {
		_, err := ParseLine(line, s)
		assert.True(t, errors.Is(err, errs.ErrFormat), "ParseLine(%q) err = %v", line, err)
	}
}

func TestBelongWildcardExpandedOnWrite(t *testing.T) {
	s := testSchema(t)
	q := Must(New("Syllable.Position", Belong, "Teens", []string{"1?"}, s))
	assert.Len(t, q.Patterns(), 10)
	got, err := ParseLine(q.Expression(), s)
	require.NoError(t, err)
	assert.Len(t, got.Values, 10)
	assert.True(t, got.MatchValue("15"))
}
