package history

import "strings"

// MatchType selects how Search compares the query term against a
// command's text (spec §4.B "search").
type MatchType int

const (
	MatchContains MatchType = iota
	MatchPrefix
)

// matches reports whether cmd matches term under t. A contains match
// requires strict containment: an item whose command text equals term
// exactly never matches (spec §4.B "search", invariant 8), so a user
// never sees their own typed string suggested back.
func (t MatchType) matches(cmd, term string) bool {
	if cmd == term {
		return false
	}
	switch t {
	case MatchPrefix:
		return strings.HasPrefix(cmd, term)
	default:
		return strings.Contains(cmd, term)
	}
}

// SearchIterator walks matching items backward (older) on request,
// deduplicating on the fly and skipping any command text present in the
// externally-supplied skip list (spec §4.B "search").
type SearchIterator struct {
	items []Item // most recent first
	pos   int
	term  string
	typ   MatchType
	skip  map[string]bool
	seen  map[string]bool
}

// Search returns an iterator over items matching term under typ,
// excluding any command text in skips (spec §4.B "search").
func (s *Session) Search(term string, typ MatchType, skips []string) *SearchIterator {
	s.mu.Lock()
	items := s.combinedLocked()
	s.mu.Unlock()

	skip := make(map[string]bool, len(skips))
	for _, sk := range skips {
		skip[sk] = true
	}

	return &SearchIterator{
		items: items,
		term:  term,
		typ:   typ,
		skip:  skip,
		seen:  make(map[string]bool),
	}
}

// Next advances to the next (older) match and returns it. ok is false
// once the iterator is exhausted.
func (it *SearchIterator) Next() (Item, bool) {
	for it.pos < len(it.items) {
		item := it.items[it.pos]
		it.pos++

		if it.seen[item.Command] {
			continue
		}
		if it.skip[item.Command] {
			continue
		}
		if !it.typ.matches(item.Command, it.term) {
			continue
		}
		it.seen[item.Command] = true
		return item, true
	}
	return Item{}, false
}

// Rewind resets the iterator back to the most recent item, as if newly
// constructed, while preserving the dedup set already accumulated (spec
// §4.B "may be rewound").
func (it *SearchIterator) Rewind() {
	it.pos = 0
}
