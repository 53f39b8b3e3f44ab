package tree

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// AnyPhone marks a phone-independent tree.
const AnyPhone = "*"

// Name is the decoded form of a tree name:
// {<phone>}[<state>] optionally followed by .stream[<list>].
type Name struct {
	Phone   string
	State   int
	Streams []int // nil means the single stream 1
}

// ParseName decodes a tree name. Stream lists accept comma separated indexes
// and a-b ranges.
func ParseName(s string) (Name, error) {
	var n Name
	if !strings.HasPrefix(s, "{") {
		return n, errs.Formatf("tree name %q: missing {phone}", s)
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return n, errs.Formatf("tree name %q: unterminated {phone}", s)
	}
	n.Phone = s[1:end]
	if n.Phone == "" {
		return n, errs.Formatf("tree name %q: empty phone", s)
	}
	rest := s[end+1:]

	state, rest, err := cutBracket(rest)
	if err != nil {
		return n, errs.Formatf("tree name %q: state: %v", s, err)
	}
	n.State, err = strconv.Atoi(state)
	if err != nil {
		return n, errs.Formatf("tree name %q: state %q is not an integer", s, state)
	}

	if rest == "" {
		return n, nil
	}
	if !strings.HasPrefix(rest, ".stream") {
		return n, errs.Formatf("tree name %q: unexpected suffix %q", s, rest)
	}
	list, rest, err := cutBracket(rest[len(".stream"):])
	if err != nil || rest != "" {
		return n, errs.Formatf("tree name %q: malformed stream list", s)
	}
	n.Streams, err = parseStreamList(list)
	if err != nil {
		return n, errs.Formatf("tree name %q: %v", s, err)
	}
	return n, nil
}

func cutBracket(s string) (inner, rest string, err error) {
	if !strings.HasPrefix(s, "[") {
		return "", "", errs.Formatf("expected [ at %q", s)
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", "", errs.Formatf("unterminated [ at %q", s)
	}
	return s[1:end], s[end+1:], nil
}

func parseStreamList(list string) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i > 0 {
			lo, hi = part[:i], part[i+1:]
		}
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, errs.Formatf("stream index %q", part)
		}
		b, err := strconv.Atoi(hi)
		if err != nil || b < a || a < 1 {
			return nil, errs.Formatf("stream range %q", part)
		}
		for i := a; i <= b; i++ {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	if len(out) == 0 {
		return nil, errs.Formatf("empty stream list")
	}
	sort.Ints(out)
	return out, nil
}

// StreamIndexes returns the streams the tree governs.
func (n Name) StreamIndexes() []int {
	if n.Streams == nil {
		return []int{1}
	}
	return n.Streams
}

// PhoneDependent reports whether the tree applies to a single central phone.
func (n Name) PhoneDependent() bool {
	return n.Phone != AnyPhone
}

func (n Name) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	sb.WriteString(n.Phone)
	sb.WriteString("}[")
	sb.WriteString(strconv.Itoa(n.State))
	sb.WriteByte(']')
	if n.Streams != nil {
		sb.WriteString(".stream[")
		for i, s := range n.Streams {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(s))
		}
		sb.WriteByte(']')
	}
	return sb.String()
}
