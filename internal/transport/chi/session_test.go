package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/imagespace/internal/domain/session"
)

func tokenRecorder(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = session.Token(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestSessionToken_Header(t *testing.T) {
	var got string
	handler := SessionTokenMiddleware("girderToken")(tokenRecorder(&got))

	req := httptest.NewRequest("GET", "/results", http.NoBody)
	req.Header.Set("Girder-Token", " abc ")
	req.AddCookie(&http.Cookie{Name: "girderToken", Value: "cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "abc" {
		t.Errorf("header token: got %q, want %q", got, "abc")
	}
}

func TestSessionToken_Cookie(t *testing.T) {
	var got string
	handler := SessionTokenMiddleware("girderToken")(tokenRecorder(&got))

	req := httptest.NewRequest("GET", "/results", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "girderToken", Value: "cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "cookie" {
		t.Errorf("cookie token: got %q, want %q", got, "cookie")
	}
}

func TestSessionToken_CookieDisabled(t *testing.T) {
	var got string
	handler := SessionTokenMiddleware("")(tokenRecorder(&got))

	req := httptest.NewRequest("GET", "/results", http.NoBody)
	req.AddCookie(&http.Cookie{Name: "girderToken", Value: "cookie"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "" {
		t.Errorf("expected no token, got %q", got)
	}
}

func TestSessionToken_ExemptPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			var got string
			handler := SessionTokenMiddleware("girderToken")(tokenRecorder(&got))

			req := httptest.NewRequest("GET", path, http.NoBody)
			req.Header.Set("Girder-Token", "abc")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
			}
			if got != "" {
				t.Errorf("%s: token must not be attached, got %q", path, got)
			}
		})
	}
}

func TestSessionToken_Missing(t *testing.T) {
	var got string
	handler := SessionTokenMiddleware("girderToken")(tokenRecorder(&got))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/results", http.NoBody))

	if got != "" {
		t.Errorf("expected no token, got %q", got)
	}
}
