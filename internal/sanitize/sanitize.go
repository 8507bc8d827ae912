package sanitize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)

	// ASCII control characters other than \t (0x09) and \n (0x0A)
	controlPattern = regexp.MustCompile(`[\x00-\x08\x0B-\x1F\x7F]`)

	// script protocols and inline handlers, handler value included up to the next '>'
	scriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)data:text/html`),
		regexp.MustCompile(`(?i)on\w+\s*=[^>]*`),
	}

	// horizontal whitespace, including the unicode spaces browsers submit
	spacePattern = regexp.MustCompile(`[\s\p{Zs}\x{FEFF}\x{2028}\x{2029}]+`)

	nonUsernamePattern = regexp.MustCompile(`[^a-z0-9_]`)

	uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

	// leading numeric prefix, same acceptance as a browser's parseFloat minus Infinity
	floatPrefix = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
)

// Text strips markup, control characters and script fragments from free-form
// text, then normalizes whitespace line by line. Newlines are preserved.
//
// Stripping can splice a new pattern together ("javajavascript:script:"), so
// the cleaning pass repeats until the string stops changing. Each changing pass
// either shortens the string or turns a non-space whitespace rune into a space,
// so the loop always terminates, and the result is a fixed point.
func Text(s string) string {
	for {
		next := textPass(s)
		if next == s {
			return next
		}
		s = next
	}
}

func textPass(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = controlPattern.ReplaceAllString(s, "")
	for _, re := range scriptPatterns {
		s = re.ReplaceAllString(s, "")
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// SingleLine is Text with newlines folded into single spaces. The result never
// contains '\n'.
func SingleLine(s string) string {
	for {
		next := Text(s)
		next = strings.ReplaceAll(next, "\n", " ")
		next = strings.TrimSpace(spacePattern.ReplaceAllString(next, " "))
		if next == s {
			return next
		}
		s = next
	}
}

// Email lowercases the address and removes every whitespace rune and any
// tag-like substring. It does not check the format.
func Email(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = spacePattern.ReplaceAllString(s, "")
	return tagPattern.ReplaceAllString(s, "")
}

// Username lowercases and trims, then drops every rune outside [a-z0-9_].
func Username(s string) string {
	if s == "" {
		return ""
	}
	s = strings.TrimSpace(strings.ToLower(s))
	return nonUsernamePattern.ReplaceAllString(s, "")
}

// Coordinate converts a marker coordinate to a float clamped to [0, 1] and
// rounded to six decimal places. Strings are parsed by their leading numeric
// prefix. ok is false for nil, unparsable, NaN or infinite input; callers must
// reject rather than default in that case.
func Coordinate(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case json.Number:
		p, ok := parseFloatPrefix(string(x))
		if !ok {
			return 0, false
		}
		f = p
	case string:
		p, ok := parseFloatPrefix(x)
		if !ok {
			return 0, false
		}
		f = p
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Max(0, math.Min(1, f))
	return math.Round(f*1e6) / 1e6, true
}

func parseFloatPrefix(s string) (float64, bool) {
	m := floatPrefix.FindString(strings.TrimLeft(s, " \t\n\r\f\v"))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// out-of-range exponents come back as ±Inf with ErrRange
		return 0, false
	}
	return f, true
}

// UUID lowercases and trims s and returns it only when it has the canonical
// 8-4-4-4-12 hexadecimal shape. Version and variant bits are not checked.
func UUID(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !uuidPattern.MatchString(s) {
		return "", false
	}
	return s, true
}
