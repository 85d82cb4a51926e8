package event

import "strings"

// escapeArg POSIX single-quotes an argument for inclusion in a handler
// command line (spec §4.C "Delivery": "each argument shell-escaped").
//
// github.com/google/shlex (used elsewhere in this module, e.g.
// internal/history's path-token extraction) only provides the inverse
// operation (Split); it has no Join/Quote. The single-quote-with-escaped-
// embedded-quote convention here is the standard POSIX-shell quoting
// shlex.Split itself understands, so shlex.Split(escapeArg(s)) yields
// the single token s.
func escapeArg(s string) string {
	if s != "" && needsNoEscaping(s) {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'\''`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func needsNoEscaping(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ':':
		default:
			return false
		}
	}
	return true
}

// buildCommandLine concatenates a handler name and its event arguments,
// each shell-escaped and separated by spaces (spec §4.C "Delivery").
func buildCommandLine(handlerName string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, handlerName)
	for _, a := range args {
		parts = append(parts, escapeArg(a))
	}
	return strings.Join(parts, " ")
}
