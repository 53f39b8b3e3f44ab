package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/question"
)

// LoadPhoneGroups reads phonetic classes, one per line:
//
//	<GroupName> <phone> <phone> ...
//
// '#' starts a comment. Group names must be unique.
func LoadPhoneGroups(r io.Reader) ([]question.Group, error) {
	var groups []question.Group
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		if len(f) < 2 {
			return nil, errs.Formatf("line %d: group %q has no phones", lineNum, f[0])
		}
		if seen[f[0]] {
			return nil, fmt.Errorf("%w: line %d: group %q defined twice", errs.ErrConflict, lineNum, f[0])
		}
		seen[f[0]] = true
		groups = append(groups, question.Group{Name: f[0], Values: f[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read phone groups: %w", err)
	}
	return groups, nil
}

// LoadPhoneGroupsFile is a convenience wrapper that opens a file path.
func LoadPhoneGroupsFile(path string) ([]question.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open phone groups: %w", err)
	}
	defer f.Close()
	return LoadPhoneGroups(f)
}
