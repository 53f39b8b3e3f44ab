// Package question builds and evaluates the binary context questions asked at
// decision-tree nodes.
package question

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
)

// Operator is the comparison a question applies to its feature.
type Operator int

const (
	// Equal matches one value.
	Equal Operator = iota
	// Belong matches any value of a named set.
	Belong
	// Less matches integers below a threshold.
	Less
	// LessEqual matches integers up to and including a threshold.
	LessEqual
)

// Symbol returns the operator as written inside question names.
func (op Operator) Symbol() string {
	switch op {
	case Equal:
		return "=="
	case Belong:
		return "="
	case Less:
		return "<"
	case LessEqual:
		return "<="
	}
	return "?"
}

func (op Operator) String() string {
	switch op {
	case Equal:
		return "Equal"
	case Belong:
		return "Belong"
	case Less:
		return "Less"
	case LessEqual:
		return "LessEqual"
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// Question is a named predicate over one feature slot.
type Question struct {
	Name         string
	Feature      string
	Op           Operator
	ValueSetName string
	Values       []string
	LeftSep      string
	RightSep     string
}

// New builds a question over feature. Less and LessEqual derive their values
// from valueSetName, which must be a non-negative integer; values is ignored
// for them.
func New(feature string, op Operator, valueSetName string, values []string, schema *label.Schema) (*Question, error) {
	slot, ok := schema.Index(feature)
	if !ok {
		return nil, fmt.Errorf("%w: feature %q not in schema %q", errs.ErrReference, feature, schema.Name())
	}
	q := &Question{
		Feature:      feature,
		Op:           op,
		ValueSetName: valueSetName,
	}
	q.LeftSep, q.RightSep = schema.Separators(slot)

	switch op {
	case Less, LessEqual:
		v, err := strconv.Atoi(valueSetName)
		if err != nil || v < 0 {
			return nil, errs.Formatf("question %s%s%s: threshold is not a non-negative integer", feature, op.Symbol(), valueSetName)
		}
		if op == Less {
			q.Values = LessValueSet(v)
		} else {
			q.Values = LessEqualValueSet(v)
		}
	case Equal:
		if len(values) != 1 {
			return nil, errs.Formatf("question %s==%s: Equal takes one value, got %d", feature, valueSetName, len(values))
		}
		q.Values = []string{values[0]}
	case Belong:
		if len(values) == 0 {
			return nil, errs.Formatf("question %s=%s: empty value set", feature, valueSetName)
		}
		q.Values = dedupe(values)
	default:
		return nil, errs.Formatf("question over %s: unknown operator %d", feature, int(op))
	}
	q.Name = feature + op.Symbol() + valueSetName
	return q, nil
}

// NewComparison builds a threshold question from a comparison symbol. The
// symbols > and >= are folded into <= and <; inverted then reports that the
// yes and no branches swap meaning.
func NewComparison(feature, symbol string, threshold int, schema *label.Schema) (q *Question, inverted bool, err error) {
	var op Operator
	switch symbol {
	case "<":
		op = Less
	case "<=":
		op = LessEqual
	case ">":
		op, inverted = LessEqual, true
	case ">=":
		op, inverted = Less, true
	default:
		return nil, false, errs.Formatf("comparison %q is not one of < <= > >=", symbol)
	}
	q, err = New(feature, op, strconv.Itoa(threshold), nil, schema)
	return q, inverted, err
}

// Group is a named set of values, typically a phonetic class.
type Group struct {
	Name   string
	Values []string
}

// FromPhoneGroups builds one Belong question per group over feature. Every
// phoneme of inventory must belong to at least one group.
func FromPhoneGroups(feature string, groups []Group, inventory []string, schema *label.Schema) ([]*Question, error) {
	covered := make(map[string]bool)
	for _, g := range groups {
		for _, v := range g.Values {
			covered[v] = true
		}
	}
	var missing []string
	for _, p := range inventory {
		if !covered[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &errs.CoverageError{Missing: missing}
	}

	qs := make([]*Question, 0, len(groups))
	for _, g := range groups {
		q, err := New(feature, Belong, g.Name, g.Values, schema)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// FromEnum builds one Equal question per value.
func FromEnum(feature string, values []string, schema *label.Schema) ([]*Question, error) {
	qs := make([]*Question, 0, len(values))
	for _, v := range values {
		q, err := New(feature, Equal, v, []string{v}, schema)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// FromIntegers builds one Equal question per distinct value and one
// LessEqual question per boundary between adjacent values.
func FromIntegers(feature string, values []int, schema *label.Schema) ([]*Question, error) {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	uniq := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}

	qs := make([]*Question, 0, 2*len(uniq))
	for i, v := range uniq {
		if v < 0 {
			return nil, errs.Formatf("feature %s: negative value %d", feature, v)
		}
		s := strconv.Itoa(v)
		q, err := New(feature, Equal, s, []string{s}, schema)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
		if i < len(uniq)-1 {
			q, err := New(feature, LessEqual, s, nil, schema)
			if err != nil {
				return nil, err
			}
			qs = append(qs, q)
		}
	}
	return qs, nil
}

// MatchValue reports whether a feature value answers yes.
func (q *Question) MatchValue(value string) bool {
	return MatchPattern(q.Values, value)
}

// Matches evaluates the question against the label's feature value.
func (q *Question) Matches(l *label.Label) (bool, error) {
	v, err := l.Feature(q.Feature)
	if err != nil {
		return false, err
	}
	return q.MatchValue(v), nil
}

// Patterns returns the values written to a QS line. Belong questions authored
// with wildcard shorthand are expanded.
func (q *Question) Patterns() []string {
	if q.Op != Belong {
		return q.Values
	}
	var out []string
	for _, v := range q.Values {
		out = append(out, ExpandWildCard(v)...)
	}
	return out
}

// Pattern wraps a value with the slot separators and the '*' context wildcard.
func (q *Question) Pattern(value string) string {
	var sb strings.Builder
	if q.LeftSep != "" {
		sb.WriteByte('*')
		sb.WriteString(q.LeftSep)
	}
	sb.WriteString(value)
	if q.RightSep != "" {
		sb.WriteString(q.RightSep)
		sb.WriteByte('*')
	}
	return sb.String()
}

// Expression renders the question as a QS line.
func (q *Question) Expression() string {
	pats := q.Patterns()
	quoted := make([]string, len(pats))
	for i, p := range pats {
		quoted[i] = strconv.Quote(q.Pattern(p))
	}
	return fmt.Sprintf("QS %q {%s}", q.Name, strings.Join(quoted, ","))
}

func (q *Question) String() string {
	return q.Expression()
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sortValues(out)
	return out
}
