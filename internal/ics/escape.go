package ics

import "strings"

// escaper applies RFC 5545 TEXT escaping. Backslash must come first so the
// backslashes introduced by later rules are not doubled.
var escaper = strings.NewReplacer(
	`\`, `\\`,
	`;`, `\;`,
	`,`, `\,`,
	"\n", `\n`,
)

// Escape encodes free text for a TEXT property value. CRLF and bare CR are
// treated as line breaks.
func Escape(text string) string {
	if text == "" {
		return ""
	}
	return escaper.Replace(normalizeBreaks(text))
}

// normalizeBreaks turns CRLF and bare CR into LF.
func normalizeBreaks(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
