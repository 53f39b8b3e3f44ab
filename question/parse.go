package question

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
)

// Keyword starts every question line of a forest file.
const Keyword = "QS"

// IsQuestionLine reports whether line declares a question.
func IsQuestionLine(line string) bool {
	f := strings.Fields(line)
	return len(f) > 0 && f[0] == Keyword
}

// ParseLine decodes `QS "<name>" {<pattern>,...}`. Patterns may be quoted or
// bare. The feature slot is recovered from the separators around the values;
// the operator comes from the name when it has the form
// <feature><op><valueSetName>, otherwise the question is a Belong over a set
// named after the question.
func ParseLine(line string, schema *label.Schema) (*Question, error) {
	rest := strings.TrimSpace(line)
	if !strings.HasPrefix(rest, Keyword) {
		return nil, errs.Formatf("question line %q: missing %s keyword", line, Keyword)
	}
	rest = strings.TrimSpace(rest[len(Keyword):])

	name, rest, err := cutQuoted(rest)
	if err != nil {
		return nil, fmt.Errorf("question line %q: %w", line, err)
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "{") || !strings.HasSuffix(rest, "}") {
		return nil, errs.Formatf("question line %q: pattern list must be enclosed in braces", line)
	}
	raw, err := splitPatterns(rest[1 : len(rest)-1])
	if err != nil {
		return nil, fmt.Errorf("question %q: %w", name, err)
	}
	if len(raw) == 0 {
		return nil, errs.Formatf("question %q: no patterns", name)
	}

	slot := -1
	values := make([]string, 0, len(raw))
	for _, p := range raw {
		s, v, ok := splitPattern(p, schema)
		if !ok {
			return nil, errs.Formatf("question %q: pattern %q fits no feature slot", name, p)
		}
		if slot >= 0 && s != slot {
			return nil, errs.Formatf("question %q: patterns address more than one feature", name)
		}
		slot = s
		values = append(values, v)
	}
	feature := schema.Features()[slot]

	q := &Question{Name: name, Feature: feature}
	q.LeftSep, q.RightSep = schema.Separators(slot)

	op, setName, ok := splitName(name, feature)
	if !ok {
		q.Op = Belong
		q.ValueSetName = name
		q.Values = dedupe(values)
		return q, nil
	}
	q.Op = op
	q.ValueSetName = setName

	switch op {
	case Less, LessEqual:
		built, err := New(feature, op, setName, nil, schema)
		if err != nil {
			return nil, err
		}
		if !sameSet(built.Values, values) {
			return nil, errs.Formatf("question %q: values do not match the %s %s threshold set", name, op, setName)
		}
		q.Values = built.Values
	case Equal:
		if len(values) != 1 {
			return nil, errs.Formatf("question %q: Equal takes one value, got %d", name, len(values))
		}
		q.Values = values
	default:
		q.Values = dedupe(values)
	}
	return q, nil
}

// splitPattern strips the '*' context wildcards and separators from a
// pattern and returns the slot it addresses.
func splitPattern(p string, schema *label.Schema) (slot int, value string, ok bool) {
	lead := strings.HasPrefix(p, "*")
	trail := strings.HasSuffix(p, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(p, "*"), "*")
	for i := 0; i < schema.Size(); i++ {
		l, r := schema.Separators(i)
		if (l != "") != lead || (r != "") != trail {
			continue
		}
		if len(core) < len(l)+len(r) || !strings.HasPrefix(core, l) || !strings.HasSuffix(core, r) {
			continue
		}
		return i, core[len(l) : len(core)-len(r)], true
	}
	return -1, "", false
}

// splitName parses <feature><op><valueSetName>.
func splitName(name, feature string) (Operator, string, bool) {
	if !strings.HasPrefix(name, feature) {
		return 0, "", false
	}
	rest := name[len(feature):]
	for _, op := range []Operator{LessEqual, Equal, Less, Belong} {
		if sym := op.Symbol(); strings.HasPrefix(rest, sym) && len(rest) > len(sym) {
			return op, rest[len(sym):], true
		}
	}
	return 0, "", false
}

func cutQuoted(s string) (quoted, rest string, err error) {
	if !strings.HasPrefix(s, `"`) {
		return "", "", errs.Formatf("expected quoted name at %q", s)
	}
	prefix, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", errs.Formatf("unterminated quoted name at %q", s)
	}
	quoted, err = strconv.Unquote(prefix)
	if err != nil {
		return "", "", errs.Formatf("bad quoted name %s", prefix)
	}
	return quoted, s[len(prefix):], nil
}

// splitPatterns reads the comma separated body of a pattern list. Quoted
// patterns may hold commas and escapes; bare ones run to the next comma.
func splitPatterns(body string) ([]string, error) {
	var out []string
	rest := strings.TrimSpace(body)
	for rest != "" {
		var p string
		if rest[0] == '"' {
			q, tail, err := cutQuoted(rest)
			if err != nil {
				return nil, err
			}
			p, rest = q, strings.TrimSpace(tail)
			if rest != "" && rest[0] != ',' {
				return nil, errs.Formatf("expected ',' after pattern %q", p)
			}
		} else {
			i := strings.IndexByte(rest, ',')
			if i < 0 {
				i = len(rest)
			}
			p, rest = strings.TrimSpace(rest[:i]), rest[i:]
		}
		rest = strings.TrimSpace(strings.TrimPrefix(rest, ","))
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// Equivalent reports whether two questions render the same QS line.
func Equivalent(a, b *Question) bool {
	return a.Expression() == b.Expression()
}

// SortedNames returns the keys of a question dictionary in order.
func SortedNames(qs map[string]*Question) []string {
	names := make([]string, 0, len(qs))
	for n := range qs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Must panics if err is non-nil and returns q otherwise.
func Must(q *Question, err error) *Question {
	if err != nil {
		panic(fmt.Sprintf("question: %v", err))
	}
	return q
}
