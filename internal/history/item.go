// Package history implements the history engine of spec §4.B: an
// append-only per-session command log with lazy mmap-backed loading,
// merge-on-save across concurrently-writing sessions, and prefix/contains
// search.
//
// Grounded on the teacher's internal/storage package for the
// durable-file-with-atomic-rename discipline (internal/storage/db.go's
// WAL-then-checkpoint pattern, adapted here to a plain-file
// write-to-temp-then-rename since the on-disk format is spec'd as
// line-oriented YAML rather than SQLite), and on gopkg.in/yaml.v3's
// escaping conventions used by the teacher's internal/workflow file
// format for multiline strings.
package history

import (
	"strconv"
	"strings"
	"time"
)

// Item is an immutable history entry (spec §3 "History item"): command
// text, creation timestamp, and the list of path-like tokens confirmed
// to exist at recording time.
type Item struct {
	Command string
	When    time.Time
	Paths   []string
}

// merge combines two items with the same command text per spec §4.B
// "add": the timestamp becomes the max of the two, and the required-paths
// list grows to the longer of the two.
func (it Item) merge(other Item) Item {
	when := it.When
	if other.When.After(when) {
		when = other.When
	}
	paths := it.Paths
	if len(other.Paths) > len(paths) {
		paths = other.Paths
	}
	return Item{Command: it.Command, When: when, Paths: paths}
}

// escape implements spec §4.B's on-disk escaping: each backslash is
// doubled, each literal newline is replaced by "\n".
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// unescape inverts escape. It is a bijection with escape for all Unicode
// strings (spec invariant 7).
func unescape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// encodeBlock renders an item as a §4.B on-disk block:
//
//	- cmd: <escaped command>
//	   when: <unix-time>
//	   paths:
//	    - <escaped path>
func encodeBlock(it Item) string {
	var b strings.Builder
	b.WriteString("- cmd: ")
	b.WriteString(escape(it.Command))
	b.WriteByte('\n')
	b.WriteString("   when: ")
	b.WriteString(formatUnix(it.When))
	b.WriteByte('\n')
	if len(it.Paths) > 0 {
		b.WriteString("   paths:\n")
		for _, p := range it.Paths {
			b.WriteString("    - ")
			b.WriteString(escape(p))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func formatUnix(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}
