package sanitize

import "testing"

func TestContainsXSSPatterns(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"hello world", false},
		{"<script>alert('xss')</script>", true},
		{"<img src=x>", true},
		{"a < b and c > d", true}, // over-logging is fine
		{"JAVASCRIPT:void(0)", true},
		{"vbscript:msgbox", true},
		{"Data:Text/HTML;base64,xx", true},
		{"onload = run()", true},
		{"onion rings", false},
		{"button=primary", false},
		{"Ticket from 1998, Paris", false},
	}
	for _, tt := range tests {
		if got := ContainsXSSPatterns(tt.input); got != tt.want {
			t.Errorf("ContainsXSSPatterns(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestContainsDangerousContent(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"", false},
		{"<b>bold</b>", false},
		{"<SCRIPT src=x>", true},
		{"see javascript:alert(1)", true},
		{"onerror=x", true},
		{"data:text/html,x", true},
		{"a normal caption", false},
	}
	for _, tt := range tests {
		if got := ContainsDangerousContent(tt.input); got != tt.want {
			t.Errorf("ContainsDangerousContent(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDetectorAndSanitizerOverlap(t *testing.T) {
	raw := "<script>alert('xss')</script>"
	if !ContainsXSSPatterns(raw) {
		t.Fatal("raw input should be flagged")
	}
	clean := Text(raw)
	if clean != "alert('xss')" {
		t.Fatalf("Text = %q", clean)
	}
	if ContainsXSSPatterns(clean) {
		t.Fatalf("sanitized value %q still flagged", clean)
	}
}
