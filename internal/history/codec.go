package history

import (
	"strconv"
	"strings"
	"time"
)

// indexedItem pairs a decoded Item with the byte offset its block starts
// at within the buffer it was decoded from (spec §3 "History item"'s
// "byte offset" and §4.B "Lazy load").
type indexedItem struct {
	Item
	offset int
}

// scanItems walks data line by line and decodes every well-formed
// "- cmd:" block at column 0, skipping YAML document delimiters and
// corrupt blocks without aborting the scan (spec §4.B "Corrupt items are
// skipped, not fatal").
func scanItems(data []byte) []indexedItem {
	lines, offsets := splitLinesWithOffsets(data)

	var out []indexedItem
	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "- cmd:"):
			blockStart := offsets[i]
			item, consumed, ok := decodeBlock(lines[i:])
			if ok {
				out = append(out, indexedItem{Item: item, offset: blockStart})
			}
			i += consumed
		case isDocDelimiter(line):
			i++
		default:
			i++
		}
	}
	return out
}

// isDocDelimiter reports whether line is a tolerated YAML document
// delimiter (spec §4.B: lines beginning with "%", "---", or "...").
func isDocDelimiter(line string) bool {
	return strings.HasPrefix(line, "%") || strings.HasPrefix(line, "---") || strings.HasPrefix(line, "...")
}

// decodeBlock decodes a single item starting at lines[0] (which must be
// a "- cmd:" line). It returns the number of lines consumed, including
// any continuation lines, so the caller can advance past the block even
// when decoding fails partway through.
func decodeBlock(lines []string) (Item, int, bool) {
	cmdLine := lines[0]
	rest := strings.TrimPrefix(cmdLine, "- cmd:")
	rest = strings.TrimPrefix(rest, " ")
	cmd := unescape(rest)

	consumed := 1
	var when time.Time
	var paths []string
	inPaths := false

	for consumed < len(lines) {
		line := lines[consumed]
		if line == "" || strings.HasPrefix(line, "- cmd:") || !strings.HasPrefix(line, " ") {
			break
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "when:"):
			inPaths = false
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, "when:"))
			if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
				when = time.Unix(sec, 0)
			}
		case trimmed == "paths:":
			inPaths = true
		case inPaths && strings.HasPrefix(trimmed, "- "):
			paths = append(paths, unescape(strings.TrimPrefix(trimmed, "- ")))
		default:
			// Unrecognized continuation line; tolerate and move on.
		}
		consumed++
	}

	if cmd == "" {
		return Item{}, consumed, false
	}
	return Item{Command: cmd, When: when, Paths: paths}, consumed, true
}

// splitLinesWithOffsets splits data into lines (without trailing
// newlines) alongside the byte offset each line starts at.
func splitLinesWithOffsets(data []byte) ([]string, []int) {
	var lines []string
	var offsets []int

	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			lines = append(lines, string(data[start:i]))
			offsets = append(offsets, start)
			start = i + 1
		}
	}
	return lines, offsets
}
