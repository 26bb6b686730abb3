// Package authmw guards the extraction API with static bearer tokens.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

const bearerPrefix = "Bearer "

// BearerToken returns middleware that accepts a request when its
// Authorization header carries one of tokens. Several tokens may be active
// at once so a client token can be rotated without downtime. Empty tokens
// are ignored; at least one non-empty token is required.
func BearerToken(logger log.Logger, tokens ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	var accepted [][]byte
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			accepted = append(accepted, []byte(t))
		}
	}
	if len(accepted) == 0 {
		panic(xerrors.New("authmw: at least one token is required"))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) {
				deny(w, "missing or malformed authorization header")
				return
			}

			if !matchAny([]byte(auth[len(bearerPrefix):]), accepted) {
				logger.Warn(r.Context(), "rejected api token", "path", r.URL.Path, "remote", r.RemoteAddr)
				deny(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchAny compares got against every token so the time taken does not
// depend on which token matched.
func matchAny(got []byte, accepted [][]byte) bool {
	ok := 0
	for _, want := range accepted {
		ok |= subtle.ConstantTimeCompare(got, want)
	}
	return ok == 1
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="openie"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
