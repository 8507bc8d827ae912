package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/keithlinneman/ephemera/internal/actions"
	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/httpmw"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	"github.com/keithlinneman/ephemera/internal/validate"
)

// test helpers

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type discardSink struct{}

func (discardSink) Write(context.Context, audit.Event) error { return nil }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type testAPI struct {
	t     *testing.T
	h     http.Handler
	blobs *baas.MemoryBlobs
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	backend := baas.NewMemory(baas.WithBcryptCost(bcrypt.MinCost))
	blobs := baas.NewMemoryBlobs()
	svc, err := actions.New(actions.Deps{
		Auth:      backend,
		Store:     backend,
		Blobs:     blobs,
		Limiter:   ratelimit.New(ctx, ratelimit.WithClock(clock)),
		Validator: validate.New(validate.WithClock(clock)),
		Auditor:   audit.New(discardSink{}, audit.WithClock(clock)),
	})
	if err != nil {
		t.Fatalf("actions.New: %v", err)
	}

	api := NewAPI(svc, log.Nop())
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	r.NotFound(api.NotFound)

	return &testAPI{t: t, h: httpmw.ClientIP(r), blobs: blobs}
}

type call struct {
	method string
	path   string
	body   any
	ip     string
	token  string

	contentType string
	raw         []byte
}

func (a *testAPI) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var body io.Reader = http.NoBody
	switch {
	case c.raw != nil:
		body = bytes.NewReader(c.raw)
	case c.body != nil:
		b, err := json.Marshal(c.body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	} else if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.ip != "" {
		req.Header.Set("X-Forwarded-For", c.ip)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
}

func wantError(t *testing.T, rec *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	var resp errorResponse
	decode(t, rec, &resp)
	if resp.Error == "" {
		t.Fatalf("error body missing: %s", rec.Body.String())
	}
	if msg != "" && resp.Error != msg {
		t.Fatalf("error = %q, want %q", resp.Error, msg)
	}
}

// signUp registers username from its own client address and returns the token.
func (a *testAPI) signUp(username, ip string) string {
	a.t.Helper()
	rec := a.do(call{method: "POST", path: "/api/auth/signup", ip: ip, body: map[string]any{
		"email":    username + "@example.com",
		"password": "hunter22",
		"username": username,
	}})
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("signup %s: status = %d body %s", username, rec.Code, rec.Body.String())
	}
	var sess baas.Session
	decode(a.t, rec, &sess)
	if sess.Token == "" {
		a.t.Fatal("signup returned no token")
	}
	return sess.Token
}

func pageForm(t *testing.T, fields map[string]string, filename string, image []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if image != nil {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf.Bytes(), mw.FormDataContentType()
}

func (a *testAPI) createPage(token, visibility string) string {
	a.t.Helper()
	body, ct := pageForm(a.t, map[string]string{
		"title":      "Concert night",
		"page_date":  "2025-01-01",
		"visibility": visibility,
	}, "scan.png", pngHeader)
	rec := a.do(call{method: "POST", path: "/api/pages", token: token, raw: body, contentType: ct})
	if rec.Code != http.StatusCreated {
		a.t.Fatalf("create page: status = %d body %s", rec.Code, rec.Body.String())
	}
	var page map[string]any
	decode(a.t, rec, &page)
	return page["id"].(string)
}

// auth

func TestSignUpSignInSignOut(t *testing.T) {
	a := newTestAPI(t)
	token := a.signUp("alice", "198.51.100.1")

	rec := a.do(call{method: "POST", path: "/api/auth/signin", ip: "198.51.100.1", body: map[string]any{
		"email": "alice@example.com", "password": "hunter22",
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("signin status = %d body %s", rec.Code, rec.Body.String())
	}
	var sess baas.Session
	decode(t, rec, &sess)
	if sess.Token == "" || sess.Token == token {
		t.Fatalf("signin token = %q", sess.Token)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", got)
	}

	rec = a.do(call{method: "POST", path: "/api/auth/signout", token: sess.Token})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signout status = %d", rec.Code)
	}

	// the signed out token no longer authenticates
	rec = a.do(call{method: "POST", path: "/api/timelines", token: sess.Token, body: map[string]any{"name": "x"}})
	wantError(t, rec, http.StatusUnauthorized, actions.MsgNotAuthenticated)
}

func TestErrorBodyCarriesCorrelation(t *testing.T) {
	a := newTestAPI(t)
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	traced := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := trace.ContextWithSpanContext(r.Context(), trace.NewSpanContext(trace.SpanContextConfig{
				TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
			}))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}

	tests := []struct {
		name  string
		stack httpmw.Stack
		req   func() *http.Request
		want  httpmw.Correlation
	}{
		{
			name:  "bare handler",
			stack: nil,
			req:   func() *http.Request { return httptest.NewRequest("GET", "/api/nowhere", http.NoBody) },
			want:  httpmw.Correlation{},
		},
		{
			name:  "request id echoed",
			stack: httpmw.Stack{httpmw.RequestID("")},
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/api/nowhere", http.NoBody)
				r.Header.Set("X-Request-Id", "req-42")
				return r
			},
			want: httpmw.Correlation{RequestID: "req-42"},
		},
		{
			name:  "trace id matches header",
			stack: httpmw.Stack{httpmw.RequestID(""), traced, httpmw.ExposeTrace("")},
			req: func() *http.Request {
				r := httptest.NewRequest("POST", "/api/auth/signin", strings.NewReader("{"))
				r.Header.Set("X-Request-Id", "req-43")
				return r
			},
			want: httpmw.Correlation{RequestID: "req-43", TraceID: traceID.String()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.stack.Then(a.h).ServeHTTP(rec, tt.req())
			if rec.Code < 400 {
				t.Fatalf("status = %d, want an error", rec.Code)
			}
			var resp errorResponse
			decode(t, rec, &resp)
			if resp.Error == "" {
				t.Fatalf("error body missing: %s", rec.Body.String())
			}
			if resp.Correlation != tt.want {
				t.Fatalf("correlation = %+v, want %+v", resp.Correlation, tt.want)
			}
			if got := rec.Header().Get(httpmw.DefaultTraceHeader); got != tt.want.TraceID {
				t.Fatalf("%s = %q, want %q", httpmw.DefaultTraceHeader, got, tt.want.TraceID)
			}
		})
	}
}

func TestSignIn_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.signUp("alice", "198.51.100.1")

	tests := []struct {
		name   string
		body   any
		raw    []byte
		status int
		msg    string
	}{
		{"wrong password", map[string]any{"email": "alice@example.com", "password": "wrong-one"}, nil, http.StatusUnauthorized, "Invalid login credentials"},
		{"invalid email", map[string]any{"email": "nope", "password": "hunter22"}, nil, http.StatusBadRequest, ""},
		{"malformed json", nil, []byte(`{"email":`), http.StatusBadRequest, msgBadBody},
		{"array body", nil, []byte(`[1,2]`), http.StatusBadRequest, msgBadBody},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := "192.0.2." + string(rune('1'+i))
			rec := a.do(call{method: "POST", path: "/api/auth/signin", ip: ip, body: tt.body, raw: tt.raw, contentType: "application/json"})
			wantError(t, rec, tt.status, tt.msg)
		})
	}
}

func TestSignUp_Duplicate(t *testing.T) {
	a := newTestAPI(t)
	a.signUp("alice", "198.51.100.1")

	rec := a.do(call{method: "POST", path: "/api/auth/signup", ip: "198.51.100.2", body: map[string]any{
		"email": "alice@example.com", "password": "hunter22", "username": "alice2",
	}})
	wantError(t, rec, http.StatusConflict, "User already registered")
}

func TestSignIn_RateLimited(t *testing.T) {
	a := newTestAPI(t)
	body := map[string]any{"email": "bad", "password": "x"}
	for range 5 {
		rec := a.do(call{method: "POST", path: "/api/auth/signin", ip: "203.0.113.9", body: body})
		wantError(t, rec, http.StatusBadRequest, "")
	}

	rec := a.do(call{method: "POST", path: "/api/auth/signin", ip: "203.0.113.9, 10.0.0.1", body: body})
	wantError(t, rec, http.StatusTooManyRequests, "Too many requests. Please try again in 60 seconds.")
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}

	// a different client is unaffected
	rec = a.do(call{method: "POST", path: "/api/auth/signin", ip: "203.0.113.10", body: body})
	wantError(t, rec, http.StatusBadRequest, "")
}

// pages, markers, timelines

func TestPageLifecycle(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signUp("alice", "198.51.100.1")
	pageID := a.createPage(alice, "public")

	if keys := a.blobs.Keys(""); len(keys) != 1 || !strings.HasSuffix(keys[0], pageID+"/original.png") {
		t.Fatalf("blob keys = %v", keys)
	}

	rec := a.do(call{method: "PATCH", path: "/api/pages/" + pageID, token: alice, body: map[string]any{"caption": "front row"}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("patch status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = a.do(call{method: "GET", path: "/api/users/alice/pages"})
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Pages []map[string]any `json:"pages"`
	}
	decode(t, rec, &list)
	if len(list.Pages) != 1 || list.Pages[0]["caption"] != "front row" {
		t.Fatalf("pages = %v", list.Pages)
	}

	rec = a.do(call{method: "POST", path: "/api/markers", token: alice, body: map[string]any{
		"page_id": pageID, "x": 0.5, "y": 0.25, "label": "Ticket stub",
	}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("marker status = %d body %s", rec.Code, rec.Body.String())
	}
	var marker map[string]any
	decode(t, rec, &marker)
	markerID := marker["id"].(string)

	rec = a.do(call{method: "PATCH", path: "/api/markers/" + markerID, token: alice, body: map[string]any{
		"page_id": pageID, "x": 0.1, "y": 0.9, "label": "Wristband",
	}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("marker patch status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = a.do(call{method: "GET", path: "/api/pages/" + pageID + "/markers"})
	var markers struct {
		Markers []map[string]any `json:"markers"`
	}
	decode(t, rec, &markers)
	if len(markers.Markers) != 1 || markers.Markers[0]["label"] != "Wristband" {
		t.Fatalf("markers = %v", markers.Markers)
	}

	rec = a.do(call{method: "DELETE", path: "/api/markers/" + markerID + "?page_id=" + pageID, token: alice})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("marker delete status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = a.do(call{method: "DELETE", path: "/api/pages/" + pageID, token: alice})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("page delete status = %d body %s", rec.Code, rec.Body.String())
	}
	if keys := a.blobs.Keys(""); len(keys) != 0 {
		t.Fatalf("blob left behind: %v", keys)
	}

	rec = a.do(call{method: "GET", path: "/api/pages/" + pageID + "/markers"})
	wantError(t, rec, http.StatusNotFound, actions.MsgPageNotFound)
}

func TestCreatePage_Rejections(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signUp("alice", "198.51.100.1")
	fields := map[string]string{"page_date": "2025-01-01", "visibility": "public"}

	tests := []struct {
		name   string
		token  string
		image  []byte
		file   string
		status int
		msg    string
	}{
		{"anonymous", "", pngHeader, "a.png", http.StatusUnauthorized, actions.MsgSignInToCreate},
		{"no image", alice, nil, "", http.StatusBadRequest, actions.MsgImageRequired},
		{"not an image", alice, []byte("<svg onload=alert(1)>"), "a.png", http.StatusBadRequest, actions.MsgImageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ct := pageForm(t, fields, tt.file, tt.image)
			rec := a.do(call{method: "POST", path: "/api/pages", token: tt.token, raw: body, contentType: ct})
			wantError(t, rec, tt.status, tt.msg)
		})
	}

	rec := a.do(call{method: "POST", path: "/api/pages", token: alice, body: fields})
	wantError(t, rec, http.StatusBadRequest, msgBadBody)
}

func TestForeignPageIsNotFound(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signUp("alice", "198.51.100.1")
	mallory := a.signUp("mallory", "198.51.100.2")
	pageID := a.createPage(alice, "private")

	rec := a.do(call{method: "PATCH", path: "/api/pages/" + pageID, token: mallory, body: map[string]any{"title": "mine now"}})
	wantError(t, rec, http.StatusNotFound, actions.MsgPageNotFound)

	rec = a.do(call{method: "GET", path: "/api/pages/" + pageID + "/markers", token: mallory})
	wantError(t, rec, http.StatusNotFound, actions.MsgPageNotFound)

	rec = a.do(call{method: "DELETE", path: "/api/pages/not-a-uuid", token: mallory})
	wantError(t, rec, http.StatusBadRequest, actions.MsgInvalidPageID)
}

func TestTimelineAssignment(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signUp("alice", "198.51.100.1")
	pageID := a.createPage(alice, "public")

	rec := a.do(call{method: "POST", path: "/api/timelines", token: alice, body: map[string]any{"name": "Road trip"}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("timeline status = %d body %s", rec.Code, rec.Body.String())
	}
	var tl map[string]any
	decode(t, rec, &tl)
	tid := tl["id"].(string)

	rec = a.do(call{method: "PATCH", path: "/api/timelines/" + tid, token: alice, body: map[string]any{"name": "Trip", "color": "red"}})
	wantError(t, rec, http.StatusBadRequest, "Color must be a valid hex color")

	rec = a.do(call{method: "PUT", path: "/api/pages/" + pageID + "/timelines", token: alice, body: map[string]any{"timeline_ids": []string{"bogus"}}})
	wantError(t, rec, http.StatusBadRequest, actions.MsgInvalidTimeline)

	rec = a.do(call{method: "PUT", path: "/api/pages/" + pageID + "/timelines", token: alice, body: map[string]any{"timeline_ids": []string{tid}}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("assign status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = a.do(call{method: "GET", path: "/api/pages/" + pageID + "/timelines", token: alice})
	var got pageTimelines
	decode(t, rec, &got)
	if len(got.TimelineIDs) != 1 || got.TimelineIDs[0] != tid {
		t.Fatalf("timeline_ids = %v", got.TimelineIDs)
	}

	rec = a.do(call{method: "GET", path: "/api/timelines", token: alice})
	var list struct {
		Timelines []map[string]any `json:"timelines"`
	}
	decode(t, rec, &list)
	if len(list.Timelines) != 1 {
		t.Fatalf("timelines = %v", list.Timelines)
	}

	rec = a.do(call{method: "DELETE", path: "/api/timelines/" + tid, token: alice})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("timeline delete status = %d", rec.Code)
	}
	rec = a.do(call{method: "GET", path: "/api/pages/" + pageID + "/timelines", token: alice})
	decode(t, rec, &got)
	if got.TimelineIDs == nil || len(got.TimelineIDs) != 0 {
		t.Fatalf("assignments survived timeline delete: %v", got.TimelineIDs)
	}
}

// plumbing

func TestInvalidTokenIsAnonymous(t *testing.T) {
	a := newTestAPI(t)
	alice := a.signUp("alice", "198.51.100.1")
	a.createPage(alice, "public")

	// reads still work
	rec := a.do(call{method: "GET", path: "/api/users/alice/pages", token: "garbage"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = a.do(call{method: "POST", path: "/api/markers", token: "garbage", body: map[string]any{}})
	wantError(t, rec, http.StatusUnauthorized, actions.MsgNotAuthenticated)
}

func TestNotFound(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(call{method: "GET", path: "/api/nope"})
	wantError(t, rec, http.StatusNotFound, msgNotFound)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", http.NoBody)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Errorf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[actions.ErrorKind]int{
		actions.KindValidation:      http.StatusBadRequest,
		actions.KindUnauthenticated: http.StatusUnauthorized,
		actions.KindNotFound:        http.StatusNotFound,
		actions.KindConflict:        http.StatusConflict,
		actions.KindRateLimited:     http.StatusTooManyRequests,
		actions.KindUpstream:        http.StatusBadGateway,
		actions.ErrorKind("other"):  http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%q) = %d, want %d", kind, got, want)
		}
	}
}
