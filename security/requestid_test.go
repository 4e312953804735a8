package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()
	if a == b {
		t.Error("GenerateRequestID() returned duplicate IDs")
	}
	if !requestIDPattern.MatchString(a) {
		t.Errorf("GenerateRequestID() = %q does not match the accepted pattern", a)
	}
}

func TestRequestIDContext(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "abc")
	if got := GetRequestID(ctx); got != "abc" {
		t.Errorf("GetRequestID() = %q, want abc", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		upstream string
		wantKept bool
	}{
		{name: "no upstream id", upstream: "", wantKept: false},
		{name: "valid upstream id", upstream: "req-123_abc", wantKept: true},
		{name: "injection attempt", upstream: "bad\r\nX-Evil: 1", wantKept: false},
		{name: "too long", upstream: strings.Repeat("a", 129), wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.upstream != "" {
				req.Header[RequestIDHeader] = []string{tt.upstream}
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("request id missing from context")
			}
			if rec.Header().Get(RequestIDHeader) != seen {
				t.Errorf("response header = %q, want %q", rec.Header().Get(RequestIDHeader), seen)
			}
			if kept := seen == tt.upstream; kept != tt.wantKept {
				t.Errorf("upstream kept = %v, want %v", kept, tt.wantKept)
			}
		})
	}
}

func TestSetAPIHeaders_Minimal(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAPIHeaders(rec)

	for header, want := range map[string]string{
		"Content-Type":           "application/json",
		"X-Content-Type-Options": "nosniff",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}
