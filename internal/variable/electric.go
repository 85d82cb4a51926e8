package variable

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// electricGetters computes spec §3/§6 "electric" names on demand. Each
// getter assumes s.mu is already held (Get/Exists call these locked).
var electricGetters = map[string]func(*Store) (Values, bool){
	"status": func(s *Store) (Values, bool) {
		return Values{fmt.Sprintf("%d", s.status)}, true
	},
	"history": func(s *Store) (Values, bool) {
		if s.history == nil {
			return Values{}, true
		}
		return Values(s.history.Items()), true
	},
	"umask": func(s *Store) (Values, bool) {
		return Values{currentUmask()}, true
	},
	"COLUMNS": func(s *Store) (Values, bool) {
		cols, _ := s.termDimensions()
		return Values{fmt.Sprintf("%d", cols)}, true
	},
	"LINES": func(s *Store) (Values, bool) {
		_, lines := s.termDimensions()
		return Values{fmt.Sprintf("%d", lines)}, true
	},
}

// termDimensions returns (columns, lines). Open Question (spec §9): the
// original's LINES code path returned terminal *width* for one call site,
// almost certainly a bug; corefish always returns height for LINES and
// width for COLUMNS.
func (s *Store) termDimensions() (cols, lines int) {
	if s.termSize != nil {
		return s.termSize()
	}
	ws, err := unix.IoctlGetWinsize(0, unix.TIOCGWINSZ)
	if err != nil {
		return 80, 24
	}
	return int(ws.Col), int(ws.Row)
}

// currentUmask reads the process umask without permanently changing it,
// since the OS has no read-only umask(2) query: set a throwaway value,
// read back the prior mask, then restore it (spec §4.A "umask").
func currentUmask() string {
	old := unix.Umask(0o022)
	unix.Umask(old)
	return fmt.Sprintf("%04o", old)
}

// setUmaskLocked implements spec §4.A: "Setting umask parses the value as
// octal in [0,0777] and applies it via the OS; no variable entry is
// created."
func (s *Store) setUmaskLocked(values Values) SetResult {
	if len(values) == 0 {
		return Invalid
	}
	var mask int
	if _, err := fmt.Sscanf(values[0], "%o", &mask); err != nil {
		return Invalid
	}
	if mask < 0 || mask > 0o777 {
		return Invalid
	}
	unix.Umask(mask)
	return OK
}
