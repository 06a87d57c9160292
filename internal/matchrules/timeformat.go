package matchrules

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout converts a Java SimpleDateFormat-style pattern, as carried
// in pact files, to a Go time layout. Unrecognised letters pass through
// unchanged; quoted literals ('T') are unwrapped.
func TimeLayout(pattern string) string {
	replacements := []struct{ from, to string }{
		{"yyyy", "2006"},
		{"yy", "06"},
		{"MMMM", "January"},
		{"MMM", "Jan"},
		{"MM", "01"},
		{"dd", "02"},
		{"EEEE", "Monday"},
		{"EEE", "Mon"},
		{"HH", "15"},
		{"hh", "03"},
		{"mm", "04"},
		{"ss", "05"},
		{"SSS", "000"},
		{"aa", "PM"},
		{"a", "PM"},
		{"XXX", "Z07:00"},
		{"XX", "Z0700"},
		{"X", "Z07"},
		{"ZZZ", "-0700"},
		{"Z", "-0700"},
		{"zzz", "MST"},
		{"z", "MST"},
	}

	var b strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] == '\'' {
			// Quoted literal: copy verbatim up to the closing quote.
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end == -1 {
				b.WriteString(pattern[i+1:])
				break
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for _, r := range replacements {
			if strings.HasPrefix(pattern[i:], r.from) {
				b.WriteString(r.to)
				i += len(r.from)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(pattern[i])
			i++
		}
	}
	return b.String()
}

func matchTimeFormat(actual any, pattern, what string) error {
	s := stringify(actual)
	layout := TimeLayout(pattern)
	if _, err := time.Parse(layout, s); err != nil {
		return fmt.Errorf("expected %s to be a %s matching %q", describe(actual), what, pattern)
	}
	return nil
}
