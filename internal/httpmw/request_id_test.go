package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("RequestIDFromContext = %q, want abc", got)
	}
	// empty id leaves the context untouched
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("WithRequestID with empty id should return ctx unchanged")
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		inbound   string
		propagate bool
	}{
		{"generates when missing", "", "", false},
		{"propagates uuid", "", "7d444840-9dc0-11d1-b245-5ffdce74fad2", true},
		{"propagates alb trace id", "", "Root=1-67891233-abcdef012345678912345678;Self=1-6789", true},
		{"custom header", "X-Correlation-Id", "corr_42", true},
		{"rejects newline", "", "abc\nlevel=ERROR msg=forged", false},
		{"rejects spaces", "", "abc def", false},
		{"rejects html", "", "<script>", false},
		{"rejects oversized", "", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := tt.header
			if hdr == "" {
				hdr = "X-Request-Id"
			}

			var seen string
			h := RequestID(tt.header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.inbound != "" {
				req.Header[hdr] = []string{tt.inbound}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Header().Get(hdr) != seen {
				t.Fatalf("response header %q != context id %q", rec.Header().Get(hdr), seen)
			}
			if tt.propagate {
				if seen != tt.inbound {
					t.Fatalf("id = %q, want propagated %q", seen, tt.inbound)
				}
				return
			}
			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("generated id %q is not a uuid: %v", seen, err)
			}
		})
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	h := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[RequestIDFromContext(r.Context())] = true
	}))
	for i := 0; i < 50; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	}
	if len(seen) != 50 {
		t.Fatalf("unique ids = %d, want 50", len(seen))
	}
}
