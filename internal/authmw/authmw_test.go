package authmw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
})

func TestBearerToken(t *testing.T) {
	t.Parallel()

	h := BearerToken(log.Nop(), "current-token", "previous-token")(okHandler)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"current token", "Bearer current-token", http.StatusOK, ""},
		{"previous token", "Bearer previous-token", http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, "missing or malformed authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "missing or malformed authorization header"},
		{"lowercase scheme", "bearer current-token", http.StatusUnauthorized, "missing or malformed authorization header"},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
		{"token prefix only", "Bearer current", http.StatusUnauthorized, "invalid token"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError == "" {
				if rec.Body.String() != "ok" {
					t.Errorf("body = %q, want ok", rec.Body.String())
				}
				return
			}
			if !strings.Contains(rec.Body.String(), tt.wantError) {
				t.Errorf("body = %q, want error %q", rec.Body.String(), tt.wantError)
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestBearerToken_IgnoresBlankTokens(t *testing.T) {
	t.Parallel()

	h := BearerToken(nil, "", "  ", "secret")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("blank bearer accepted: status = %d", rec.Code)
	}
}

func TestBearerToken_NoTokens_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic without tokens")
		}
	}()
	BearerToken(log.Nop(), "", " ")
}

func TestMatchAny(t *testing.T) {
	t.Parallel()

	accepted := [][]byte{[]byte("a"), []byte("bb")}
	if !matchAny([]byte("bb"), accepted) {
		t.Error("expected match for second token")
	}
	if matchAny([]byte("b"), accepted) || matchAny(nil, accepted) {
		t.Error("unexpected match")
	}
}
