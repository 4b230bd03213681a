package slug

import (
	"regexp"
	"strings"
)

var reCode = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,39}$`)

// IsCode reports whether s is a normalized item code or container number:
// uppercase alphanumerics with '-' or '_', 1-40 chars.
func IsCode(s string) bool {
	return reCode.MatchString(s)
}

// NormalizeCode uppercases s and replaces runs of characters outside
// [A-Z0-9_-] with a single '-', trimming separators from both ends and
// capping the result at 40 characters. Item codes and container numbers come
// from spreadsheet imports and are compared normalized.
func NormalizeCode(s string) string {
	if s == "" {
		return s
	}
	out := make([]rune, 0, len(s))
	prevSep := false
	for _, r := range strings.ToUpper(s) {
		switch {
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
			prevSep = false
		case r == '-' || r == '_':
			if prevSep {
				continue
			}
			out = append(out, r)
			prevSep = true
		default:
			if !prevSep {
				out = append(out, '-')
				prevSep = true
			}
		}
		if len(out) >= 40 {
			break
		}
	}
	return strings.Trim(string(out), "-_")
}
