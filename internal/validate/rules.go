package validate

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keithlinneman/ephemera/internal/sanitize"
)

// RuleKind names a constraint the interpreter knows how to evaluate.
type RuleKind string

const (
	KindRequired      RuleKind = "required"
	KindString        RuleKind = "string"
	KindNumber        RuleKind = "number"
	KindFinite        RuleKind = "finite"
	KindMinLen        RuleKind = "min_len"
	KindMaxLen        RuleKind = "max_len"
	KindTrimmedMinLen RuleKind = "trimmed_min_len"
	KindPattern       RuleKind = "pattern"
	KindNotIn         RuleKind = "not_in"
	KindOneOf         RuleKind = "one_of"
	KindUUID          RuleKind = "uuid"
	KindDate          RuleKind = "date"
	KindDateRange     RuleKind = "date_range"
	KindMin           RuleKind = "min"
	KindMax           RuleKind = "max"
	KindSafeText      RuleKind = "safe_text"
	KindHexColor      RuleKind = "hex_color"
)

// fatal kinds establish the value's type; later rules on the field are skipped
// when one fails.
func (k RuleKind) fatal() bool {
	switch k {
	case KindRequired, KindString, KindNumber, KindFinite:
		return true
	}
	return false
}

// Rule is a single tagged constraint. Only the parameters relevant to Kind are
// read: N for lengths, F for numeric bounds, Pattern for patterns, Set for
// membership checks.
type Rule struct {
	Kind    RuleKind
	N       int
	F       float64
	Pattern *regexp.Regexp
	Set     []string
	Message string
}

const (
	MsgRequired        = "Required"
	MsgExpectedString  = "Expected string"
	MsgExpectedNumber  = "Expected number"
	MsgInvalidContent  = "Invalid content detected"
	MsgInvalidDate     = "Invalid date format (YYYY-MM-DD)"
	MsgDateOutOfRange  = "Date out of valid range"
	MsgUnavailableName = "This username is not available"
)

var (
	datePattern     = regexp.MustCompile(`^\d{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12]\d|3[01])$`)
	hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

func Required(msg string) Rule       { return Rule{Kind: KindRequired, Message: msg} }
func String(msg string) Rule         { return Rule{Kind: KindString, Message: msg} }
func Number(msg string) Rule         { return Rule{Kind: KindNumber, Message: msg} }
func Finite(msg string) Rule         { return Rule{Kind: KindFinite, Message: msg} }
func MinLen(n int, msg string) Rule  { return Rule{Kind: KindMinLen, N: n, Message: msg} }
func MaxLen(n int, msg string) Rule  { return Rule{Kind: KindMaxLen, N: n, Message: msg} }
func Min(f float64, msg string) Rule { return Rule{Kind: KindMin, F: f, Message: msg} }
func Max(f float64, msg string) Rule { return Rule{Kind: KindMax, F: f, Message: msg} }
func UUID(msg string) Rule           { return Rule{Kind: KindUUID, Message: msg} }
func Date(msg string) Rule           { return Rule{Kind: KindDate, Message: msg} }
func DateRange(msg string) Rule      { return Rule{Kind: KindDateRange, Message: msg} }
func SafeText(msg string) Rule       { return Rule{Kind: KindSafeText, Message: msg} }
func HexColor(msg string) Rule       { return Rule{Kind: KindHexColor, Message: msg} }
func TrimmedMinLen(n int, msg string) Rule {
	return Rule{Kind: KindTrimmedMinLen, N: n, Message: msg}
}

func Pattern(re *regexp.Regexp, msg string) Rule {
	return Rule{Kind: KindPattern, Pattern: re, Message: msg}
}

// NotIn fails when the value matches any member of set, ignoring case.
func NotIn(set []string, msg string) Rule {
	return Rule{Kind: KindNotIn, Set: set, Message: msg}
}

// OneOf fails unless the value exactly matches a member of set.
func OneOf(set []string, msg string) Rule {
	return Rule{Kind: KindOneOf, Set: set, Message: msg}
}

// eval checks v against r. The returned value replaces v for the following
// rules; only the number rule converts.
func (r Rule) eval(v any, now time.Time) (any, bool) {
	switch r.Kind {
	case KindRequired:
		if v == nil {
			return v, false
		}
		if s, ok := v.(string); ok && s == "" {
			return v, false
		}
		return v, true

	case KindString:
		_, ok := v.(string)
		return v, ok

	case KindNumber:
		f, ok := toFloat(v)
		if !ok {
			return v, false
		}
		return f, true

	case KindFinite:
		f, ok := v.(float64)
		return v, ok && !math.IsNaN(f) && !math.IsInf(f, 0)

	case KindMin, KindMax:
		f, ok := v.(float64)
		if !ok {
			return v, false
		}
		if r.Kind == KindMin {
			return v, f >= r.F
		}
		return v, f <= r.F
	}

	s, ok := v.(string)
	if !ok {
		return v, false
	}

	switch r.Kind {
	case KindMinLen:
		return v, utf8.RuneCountInString(s) >= r.N
	case KindMaxLen:
		return v, utf8.RuneCountInString(s) <= r.N
	case KindTrimmedMinLen:
		return v, utf8.RuneCountInString(strings.TrimSpace(s)) >= r.N
	case KindPattern:
		return v, r.Pattern != nil && r.Pattern.MatchString(s)
	case KindNotIn:
		for _, m := range r.Set {
			if strings.EqualFold(m, s) {
				return v, false
			}
		}
		return v, true
	case KindOneOf:
		for _, m := range r.Set {
			if m == s {
				return v, true
			}
		}
		return v, false
	case KindUUID:
		// uuid.Parse also accepts urn and brace forms, which are 36+ bytes with
		// a different layout; only the bare 8-4-4-4-12 form is 36 bytes
		if len(s) != 36 {
			return v, false
		}
		_, err := uuid.Parse(s)
		return v, err == nil
	case KindDate:
		return v, datePattern.MatchString(s)
	case KindDateRange:
		return v, inDateWindow(s, now)
	case KindSafeText:
		return v, !sanitize.ContainsDangerousContent(s)
	case KindHexColor:
		return v, hexColorPattern.MatchString(s)
	}
	return v, false
}

// inDateWindow accepts calendar dates from Jan 1 a hundred years before now's
// year through Dec 31 of the following year.
func inDateWindow(s string, now time.Time) bool {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return false
	}
	y := now.Year()
	lo := time.Date(y-100, time.January, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(y+1, time.December, 31, 0, 0, 0, 0, time.UTC)
	return !d.Before(lo) && !d.After(hi)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	}
	return 0, false
}
