package variable

import "strings"

// ExportedEnvironment returns a cached, lazily regenerated array of
// "K=V" records suitable for handing to a spawned child process (spec
// §4.A "exported_environment").
func (s *Store) ExportedEnvironment() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exportedEnvDirty && s.exportedEnvCache != nil {
		return s.exportedEnvCache
	}

	merged := make(map[string]*entry)
	for _, scope := range s.scopes {
		for name, e := range scope.vars {
			if e.exported {
				merged[name] = e
			}
		}
	}
	for name, e := range s.universal {
		if e.exported {
			merged[name] = e
		}
	}

	out := make([]string, 0, len(merged))
	for name, e := range merged {
		out = append(out, name+"="+s.joinForExport(name, e.values))
	}

	s.exportedEnvCache = out
	s.exportedEnvDirty = false
	return out
}

// joinForExport joins an entry's values with ":" (POSIX array-export
// convention), except for denylisted names which are exported verbatim
// without join-conversion (spec §4.A: "a configured deny-list (e.g.
// DISPLAY) is exported without join-conversion").
func (s *Store) joinForExport(name string, values Values) string {
	if isEmptySentinel(values) {
		return ""
	}
	if s.denylist[name] {
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
	return strings.Join(values, ":")
}
