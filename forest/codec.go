package forest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
	"github.com/ieee0824/voicecluster-go/label"
	"github.com/ieee0824/voicecluster-go/question"
	"github.com/ieee0824/voicecluster-go/tree"
)

// Load reads a forest file: a leading run of QS lines followed by tree blocks
// separated by blank lines.
func Load(r io.Reader, name string, schema *label.Schema) (*Forest, error) {
	f := New(name, schema)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	inQuestions := true
	var block []string
	blockStart := 0

	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if dangling(block) {
			return errs.Formatf("forest %s: tree block at line %d is not terminated", name, blockStart)
		}
		t, err := tree.Load(block)
		if err != nil {
			return fmt.Errorf("forest %s line %d: %w", name, blockStart, err)
		}
		block = block[:0]
		return f.AddTree(t)
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if inQuestions {
			if line == "" {
				continue
			}
			if question.IsQuestionLine(line) {
				q, err := question.ParseLine(line, schema)
				if err != nil {
					return nil, fmt.Errorf("forest %s line %d: %w", name, lineNum, err)
				}
				if err := f.AddQuestion(q); err != nil {
					return nil, fmt.Errorf("forest %s line %d: %w", name, lineNum, err)
				}
				continue
			}
			inQuestions = false
		}
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(block) == 0 {
			blockStart = lineNum
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read forest %s: %w", name, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	log.WithField("forest", name).
		WithField("questions", len(f.questions)).
		WithField("trees", len(f.trees)).
		Debug("forest loaded")
	return f, nil
}

// dangling reports a braced block without its closing brace.
func dangling(block []string) bool {
	opened := false
	for _, l := range block {
		switch l {
		case "{":
			opened = true
		case "}":
			opened = false
		}
	}
	return opened
}

// LoadFile reads a forest file; the forest is named after the file.
func LoadFile(path string, schema *label.Schema) (*Forest, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open forest: %w", err)
	}
	defer fh.Close()
	return Load(fh, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), schema)
}

// Save writes the forest in the form read by Load: sorted QS lines, a blank
// line, then each tree followed by a blank line.
func (f *Forest) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, qn := range f.QuestionNames() {
		fmt.Fprintln(bw, f.questions[qn].Expression())
	}
	if len(f.questions) > 0 {
		fmt.Fprintln(bw)
	}
	for _, t := range f.trees {
		if err := t.Save(bw); err != nil {
			return fmt.Errorf("save tree %s: %w", t.Name(), err)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// SaveFile writes the forest to path.
func (f *Forest) SaveFile(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create forest: %w", err)
	}
	defer fh.Close()
	if err := f.Save(fh); err != nil {
		return err
	}
	return fh.Close()
}
