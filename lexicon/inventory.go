// Package lexicon loads the phone-level resources a voice is built from:
// the phoneme inventory, phonetic question groups and pronunciation
// dictionaries.
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

// Inventory is the set of phonemes a voice distinguishes.
type Inventory struct {
	phones []string
	set    map[string]bool
}

// NewInventory builds an inventory; duplicates are dropped.
func NewInventory(phones []string) *Inventory {
	inv := &Inventory{set: make(map[string]bool, len(phones))}
	for _, p := range phones {
		if !inv.set[p] {
			inv.set[p] = true
			inv.phones = append(inv.phones, p)
		}
	}
	sort.Strings(inv.phones)
	return inv
}

// DefaultInventory is the Japanese phoneme set.
func DefaultInventory() *Inventory {
	return NewInventory([]string{
		"sil", "pau",
		"a", "i", "u", "e", "o",
		"k", "g", "t", "d", "p", "b",
		"s", "z", "h", "f",
		"ch", "ts", "j",
		"m", "n", "N",
		"r",
		"y", "w",
		"sh",
		"cl",
	})
}

// LoadInventory reads whitespace separated phones. '#' starts a comment.
func LoadInventory(r io.Reader) (*Inventory, error) {
	var phones []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		phones = append(phones, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	if len(phones) == 0 {
		return nil, errs.Formatf("inventory lists no phones")
	}
	return NewInventory(phones), nil
}

// LoadInventoryFile is a convenience wrapper that opens a file path.
func LoadInventoryFile(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory: %w", err)
	}
	defer f.Close()
	return LoadInventory(f)
}

// Phones returns the sorted phones.
func (inv *Inventory) Phones() []string {
	return append([]string(nil), inv.phones...)
}

// Contains reports whether p is in the inventory.
func (inv *Inventory) Contains(p string) bool {
	return inv.set[p]
}

// Check fails with ErrReference on the first phone not in the inventory.
func (inv *Inventory) Check(phones []string) error {
	for _, p := range phones {
		if inv.set[p] {
			continue
		}
		if s := suggest(p, inv.phones); s != "" {
			return fmt.Errorf("%w: unknown phone %q (did you mean %q?)", errs.ErrReference, p, s)
		}
		return fmt.Errorf("%w: unknown phone %q", errs.ErrReference, p)
	}
	return nil
}
