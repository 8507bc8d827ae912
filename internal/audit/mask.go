package audit

import (
	"strings"
	"unicode/utf8"
)

const (
	validationPreviewLen = 100
	xssPreviewLen        = 200
)

// MaskEmail keeps the first and last character of the local part:
// user@example.com becomes u***r@example.com. Local parts of one or two
// characters keep only the first. Anything without both a local part and a
// domain becomes ***@***.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "***@***"
	}
	local := []rune(parts[0])
	masked := string(local[0]) + "***"
	if len(local) > 2 {
		masked += string(local[len(local)-1])
	}
	return masked + "@" + parts[1]
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var angleEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// xssPreview is the first 200 runes of raw with angle brackets escaped.
func xssPreview(raw string) string {
	return angleEscaper.Replace(truncate(raw, xssPreviewLen))
}
