package terminal

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/derekparker/trie"
)

// prefixIndex maps names to the index of the entry they belong to. A name
// can be looked up by any prefix that only belongs to one entry.
type prefixIndex struct {
	names *trie.Trie
}

func newPrefixIndex() *prefixIndex {
	return &prefixIndex{names: trie.New()}
}

func (p *prefixIndex) add(name string, idx int) {
	p.names.Add(name, idx)
}

// lookup returns the index of the entry named by s. An exact match always
// wins over a longer name that s is a prefix of.
func (p *prefixIndex) lookup(s string) (int, error) {
	if s == "" {
		return -1, errNoMatch
	}
	if n, ok := p.names.Find(s); ok {
		return n.Meta().(int), nil
	}

	found := -1
	ambiguous := false
	for _, name := range p.names.PrefixSearch(s) {
		n, ok := p.names.Find(name)
		if !ok {
			continue
		}
		idx := n.Meta().(int)
		if found >= 0 && found != idx {
			ambiguous = true
		}
		found = idx
	}
	switch {
	case ambiguous:
		return -1, ambiguousError{prefix: s, candidates: p.complete(s)}
	case found < 0:
		return -1, errNoMatch
	}
	return found, nil
}

// complete returns the sorted names starting with prefix.
func (p *prefixIndex) complete(prefix string) []string {
	r := p.names.PrefixSearch(prefix)
	sort.Strings(r)
	return r
}

var errNoMatch = errors.New("no match")

type ambiguousError struct {
	prefix     string
	candidates []string
}

func (ae ambiguousError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %s", ae.prefix, strings.Join(ae.candidates, ", "))
}
