package lexicon

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ieee0824/voicecluster-go/errs"
)

// Entry is one pronunciation of a word.
type Entry struct {
	Word    string
	Reading string
	Phones  []string
}

// Dictionary maps words to their pronunciation variants.
type Dictionary struct {
	Entries map[string][]Entry
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{Entries: make(map[string][]Entry)}
}

// Add appends a pronunciation variant for word.
func (d *Dictionary) Add(word, reading string, phones []string) {
	d.Entries[word] = append(d.Entries[word], Entry{Word: word, Reading: reading, Phones: phones})
}

// LoadDictionary reads a tab-separated pronunciation dictionary:
// word<TAB>reading<TAB>phone phone phone ...
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := NewDictionary()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) < 3 {
			return nil, errs.Formatf("line %d: expected 3 tab-separated fields, got %d", lineNum, len(parts))
		}
		phones := strings.Fields(parts[2])
		if len(phones) == 0 {
			return nil, errs.Formatf("line %d: word %q has no phones", lineNum, parts[0])
		}
		d.Add(parts[0], parts[1], phones)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	return d, nil
}

// LoadDictionaryFile is a convenience wrapper that opens a file path.
func LoadDictionaryFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return LoadDictionary(f)
}

// Lookup returns all pronunciation variants for a word.
func (d *Dictionary) Lookup(word string) []Entry {
	return d.Entries[word]
}

// Phones returns the first pronunciation of word.
func (d *Dictionary) Phones(word string) ([]string, bool) {
	entries := d.Entries[word]
	if len(entries) == 0 {
		return nil, false
	}
	return entries[0].Phones, true
}

// Words returns the dictionary words in sorted order.
func (d *Dictionary) Words() []string {
	words := make([]string, 0, len(d.Entries))
	for w := range d.Entries {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Validate checks every pronunciation against inv.
func (d *Dictionary) Validate(inv *Inventory) error {
	for _, w := range d.Words() {
		for _, e := range d.Entries[w] {
			if err := inv.Check(e.Phones); err != nil {
				return fmt.Errorf("word %s: %w", w, err)
			}
		}
	}
	return nil
}
