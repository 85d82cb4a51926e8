package variable

// localeCategories is the fixed locale-variable set of spec §4.A
// "Locale awareness".
var localeCategories = []string{
	"LC_COLLATE", "LC_CTYPE", "LC_MESSAGES", "LC_MONETARY", "LC_NUMERIC", "LC_TIME",
}

func isLocaleName(name string) bool {
	if name == "LANG" || name == "LC_ALL" {
		return true
	}
	for _, c := range localeCategories {
		if c == name {
			return true
		}
	}
	return false
}

// rawLocked looks up a variable's first value without going through the
// public Get (which takes the lock); callers must already hold s.mu.
func (s *Store) rawLocked(name string) (string, bool) {
	if node, e := s.internalFind(name); node != nil {
		if len(e.values) > 0 && !isEmptySentinel(e.values) {
			return e.values[0], true
		}
		return "", true
	}
	if e, ok := s.universal[name]; ok {
		if len(e.values) > 0 && !isEmptySentinel(e.values) {
			return e.values[0], true
		}
		return "", true
	}
	return "", false
}

// effectiveLocaleLocked computes the effective per-category locale per
// spec §4.A: "LC_ALL wins if present, else LANG for all categories, then
// each per-category variable overrides."
func (s *Store) effectiveLocaleLocked() map[string]string {
	base := ""
	if v, ok := s.rawLocked("LC_ALL"); ok && v != "" {
		base = v
	} else if v, ok := s.rawLocked("LANG"); ok {
		base = v
	}

	eff := make(map[string]string, len(localeCategories))
	for _, c := range localeCategories {
		eff[c] = base
	}
	if _, ok := s.rawLocked("LC_ALL"); !ok {
		for _, c := range localeCategories {
			if v, ok := s.rawLocked(c); ok && v != "" {
				eff[c] = v
			}
		}
	}
	return eff
}

func fingerprint(eff map[string]string) string {
	s := ""
	for _, c := range localeCategories {
		s += c + "=" + eff[c] + ";"
	}
	return s
}

// reapplyLocaleLocked re-derives the effective locale and fires the
// refresh hooks only when it actually changed (spec §4.A; scenario S2:
// "the second is idempotent and produces no visible change").
func (s *Store) reapplyLocaleLocked() {
	eff := s.effectiveLocaleLocked()
	fp := fingerprint(eff)

	prevMessages := ""
	if s.lastEffectiveLocale != "" {
		prevMessages = extractCategory(s.lastEffectiveLocale, "LC_MESSAGES")
	}

	if fp == s.lastEffectiveLocale {
		return
	}
	s.lastEffectiveLocale = fp

	if s.hooks.OnLocaleRefresh != nil {
		s.hooks.OnLocaleRefresh()
	}
	if eff["LC_MESSAGES"] != prevMessages && s.hooks.OnMessageCatalogReload != nil {
		s.hooks.OnMessageCatalogReload()
	}
}

func extractCategory(fp, cat string) string {
	idx := 0
	for {
		next := idx
		for next < len(fp) && fp[next] != ';' {
			next++
		}
		if next >= len(fp) {
			return ""
		}
		kv := fp[idx:next]
		if len(kv) > len(cat)+1 && kv[:len(cat)+1] == cat+"=" {
			return kv[len(cat)+1:]
		}
		idx = next + 1
	}
}
