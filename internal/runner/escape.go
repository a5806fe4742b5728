package runner

import "strings"

// EscapeQuoted prepares s for embedding between double quotes in a command
// line forwarded through an intermediate shell layer. Any run of backslashes
// immediately preceding a double quote is doubled and the quote itself is
// backslash-escaped; a trailing backslash run is doubled so it cannot
// swallow the closing quote.
func EscapeQuoted(s string) string {
	var b strings.Builder
	slashes := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat("\\", slashes*2+1))
			b.WriteByte('"')
			slashes = 0
		default:
			if slashes > 0 {
				b.WriteString(strings.Repeat("\\", slashes))
				slashes = 0
			}
			b.WriteByte(c)
		}
	}
	b.WriteString(strings.Repeat("\\", slashes*2))
	return b.String()
}

// UnescapeQuoted inverts EscapeQuoted exactly.
func UnescapeQuoted(s string) string {
	var b strings.Builder
	slashes := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat("\\", slashes/2))
			if slashes%2 == 1 {
				b.WriteByte('"')
			}
			slashes = 0
		default:
			if slashes > 0 {
				b.WriteString(strings.Repeat("\\", slashes))
				slashes = 0
			}
			b.WriteByte(c)
		}
	}
	b.WriteString(strings.Repeat("\\", slashes/2))
	return b.String()
}

// QuoteArg wraps s in single quotes for a POSIX sh command line; an embedded
// single quote closes the quoting, emits an escaped quote and reopens it.
// Nothing inside single quotes is expanded, so dollars, backticks and
// backslash runs pass through byte for byte.
func QuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
