package sanitize

import "regexp"

var xssPatterns = []*regexp.Regexp{
	tagPattern,
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
}

// dangerous content is rejected outright by validation, so the tag check is
// narrowed to script tags; other markup has already been stripped by Text
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)data:text/html`),
}

// ContainsXSSPatterns reports whether s looks like an injection attempt: any
// tag-like substring, a script protocol, or an inline event handler.
//
// It is a cheap audit signal only. It never blocks a request; the sanitizers
// strip the same pattern families, and false positives just mean extra audit
// lines.
func ContainsXSSPatterns(s string) bool {
	if s == "" {
		return false
	}
	return matchAny(xssPatterns, s)
}

// ContainsDangerousContent reports whether s still carries script tags,
// script protocols or event-handler attributes. Validation rejects such values.
func ContainsDangerousContent(s string) bool {
	if s == "" {
		return false
	}
	return matchAny(dangerousPatterns, s)
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
