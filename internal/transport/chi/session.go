package chi

import (
	"net/http"
	"strings"

	"github.com/kailas-cloud/imagespace/internal/domain/session"
	"github.com/kailas-cloud/imagespace/internal/transport/girder"
)

// exemptPaths never carry a session token (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// SessionTokenMiddleware attaches the caller's Girder session token to the
// request context. The Girder-Token header wins over the cookie. Requests
// without a token pass through: image URLs then lose any embedded token.
func SessionTokenMiddleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimSpace(r.Header.Get(girder.TokenHeader))
			if token == "" && cookieName != "" {
				if c, err := r.Cookie(cookieName); err == nil {
					token = strings.TrimSpace(c.Value)
				}
			}
			if token != "" {
				r = r.WithContext(session.WithToken(r.Context(), token))
			}
			next.ServeHTTP(w, r)
		})
	}
}
