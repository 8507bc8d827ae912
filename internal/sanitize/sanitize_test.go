package sanitize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"script tag", "<script>alert('xss')</script>", "alert('xss')"},
		{"collapses spaces", "  hello   world  ", "hello world"},
		{"keeps newlines", "line one  \n   line   two\n\n", "line one\nline two"},
		{"control characters", "a\x00b\x07c\td", "abc d"},
		{"carriage return", "one\r\ntwo", "one\ntwo"},
		{"img with handler", `<img src=x onerror=alert(1)>`, ""},
		{"bare handler", "click onclick=alert(1) here", "click"},
		{"javascript protocol", "JavaScript:alert(1)", "alert(1)"},
		{"vbscript protocol", "VBScript:msgbox", "msgbox"},
		{"data html", "data:text/html,<b>x</b>", ",x"},
		{"nested protocol", "javajavascript:script:alert(1)", "alert(1)"},
		{"plain text", "Ticket stub, row 4", "Ticket stub, row 4"},
		{"unicode space", "a  b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Fatalf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"first\nsecond\n third", "first second third"},
		{"  <b>bold</b>\n\n\nlabel  ", "bold label"},
		{"tab\tseparated\nlines", "tab separated lines"},
	}
	for _, tt := range tests {
		if got := SingleLine(tt.input); got != tt.want {
			t.Errorf("SingleLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"Test@Example.COM", "test@example.com"},
		{" john . doe @ ex ample.com ", "john.doe@example.com"},
		{"<b>a</b>@x.com", "a@x.com"},
		{"tab\t@x.com", "tab@x.com"},
	}
	for _, tt := range tests {
		if got := Email(tt.input); got != tt.want {
			t.Errorf("Email(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"  John_Doe-123!  ", "john_doe123"},
		{"ADMIN", "admin"},
		{"<script>", "script"},
		{"émile", "mile"},
	}
	for _, tt := range tests {
		if got := Username(tt.input); got != tt.want {
			t.Errorf("Username(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCoordinate(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   float64
		wantOK bool
	}{
		{"nil", nil, 0, false},
		{"mid", 0.5, 0.5, true},
		{"zero", 0.0, 0, true},
		{"one", 1.0, 1, true},
		{"negative clamps", -0.1, 0, true},
		{"above clamps", 1.5, 1, true},
		{"rounds", 0.1234567, 0.123457, true},
		{"string", "0.25", 0.25, true},
		{"string prefix", "0.5px", 0.5, true},
		{"leading space and dot", "  .75", 0.75, true},
		{"unparsable", "abc", 0, false},
		{"empty string", "", 0, false},
		{"infinity string", "Infinity", 0, false},
		{"exponent overflow", "1e999", 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"neg inf", math.Inf(-1), 0, false},
		{"int", 1, 1, true},
		{"json number", json.Number("0.3"), 0.3, true},
		{"float32", float32(0.5), 0.5, true},
		{"unsupported type", []int{1}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Coordinate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Coordinate(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Fatalf("Coordinate(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoordinate_RangeAndPrecision(t *testing.T) {
	inputs := []float64{-1e9, -1, -0.0000001, 0, 0.1, 0.3333333333, 0.9999999, 1, 2, 1e9}
	for _, in := range inputs {
		got, ok := Coordinate(in)
		if !ok {
			t.Fatalf("Coordinate(%v) rejected a finite value", in)
		}
		if got < 0 || got > 1 {
			t.Fatalf("Coordinate(%v) = %v, outside [0,1]", in, got)
		}
		if scaled := got * 1e6; math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("Coordinate(%v) = %v has more than 6 decimals", in, got)
		}
		again, _ := Coordinate(got)
		if again != got {
			t.Fatalf("Coordinate not idempotent: %v -> %v", got, again)
		}
	}
}

func TestUUID(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"550E8400-E29B-41D4-A716-446655440000", "550e8400-e29b-41d4-a716-446655440000", true},
		{" 550e8400-e29b-41d4-a716-446655440000 ", "550e8400-e29b-41d4-a716-446655440000", true},
		{"00000000-0000-0000-0000-000000000000", "00000000-0000-0000-0000-000000000000", true},
		{"550e8400e29b41d4a716446655440000", "", false},
		{"g50e8400-e29b-41d4-a716-446655440000", "", false},
		{"550e8400-e29b-41d4-a716-44665544000", "", false},
		{"{550e8400-e29b-41d4-a716-446655440000}", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := UUID(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("UUID(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

// tricky inputs where one stripping pass exposes another pattern
var idempotenceCorpus = []string{
	"",
	"plain",
	"<<a>b>",
	"<a<b>>c",
	"javajavascript:script:x",
	"jav<x>ascript:alert(1)",
	"ononclick=click=",
	"on\nclick=x",
	"  spaced \t\t out \n\n\n  lines  ",
	"data:text/htmdata:text/htmll,x",
	"\x00\x01<\x02script>",
	"<script>alert('xss')</script>",
	"Mixed CASE Email@Example.Com ",
	"a b c",
	"vb<i>script:</i>x",
}

func TestIdempotence(t *testing.T) {
	fns := map[string]func(string) string{
		"Text":       Text,
		"SingleLine": SingleLine,
		"Email":      Email,
		"Username":   Username,
	}
	for name, fn := range fns {
		for _, in := range idempotenceCorpus {
			once := fn(in)
			if twice := fn(once); twice != once {
				t.Errorf("%s not idempotent for %q: %q -> %q", name, in, once, twice)
			}
		}
	}
}

func TestSingleLine_NeverContainsNewline(t *testing.T) {
	for _, in := range idempotenceCorpus {
		if got := SingleLine(in); strings.Contains(got, "\n") {
			t.Errorf("SingleLine(%q) = %q contains a newline", in, got)
		}
	}
}

func FuzzText(f *testing.F) {
	for _, s := range idempotenceCorpus {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		if !utf8.ValidString(s) {
			t.Skip()
		}
		once := Text(s)
		if Text(once) != once {
			t.Fatalf("Text not idempotent for %q", s)
		}
		line := SingleLine(s)
		if strings.Contains(line, "\n") {
			t.Fatalf("SingleLine(%q) contains newline", s)
		}
		if SingleLine(line) != line {
			t.Fatalf("SingleLine not idempotent for %q", s)
		}
	})
}
