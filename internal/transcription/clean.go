package transcription

import "regexp"

var quotedPattern = regexp.MustCompile(`'([^']*)'`)

// ExtractContent strips quoting artifacts from a delta. If s contains a
// single-quoted substring, the text between the first pair of quotes is
// returned; otherwise s is returned unchanged.
func ExtractContent(s string) string {
	if s == "" {
		return s
	}
	m := quotedPattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[1]
}
