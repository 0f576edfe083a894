package httpapi

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/davitran/accountd/internal/account"
	"github.com/davitran/accountd/internal/token"
)

type contextKey uint8

const claimsKey contextKey = iota

// claimsFrom returns the verified claims placed by Authenticated, or nil on
// an unauthenticated request.
func claimsFrom(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey).(*token.Claims)
	return c
}

// Authenticated verifies the bearer token and gates out disabled and
// unverified accounts. An absent token and an invalid one both end in 401,
// but are logged apart so operators can tell client bugs from expiries.
func (h *Handler) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.log.Debug("request without bearer token", zap.String("path", r.URL.Path))
			respondFail(w, http.StatusUnauthorized, "missing access token")
			return
		}

		claims, err := h.svc.Authenticate(raw)
		if err != nil {
			h.log.Debug("bearer token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			respondError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only the listed roles past. It must run after
// Authenticated.
func (h *Handler) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFrom(r.Context())
			if claims == nil {
				respondFail(w, http.StatusUnauthorized, "missing access token")
				return
			}
			if _, ok := allowed[claims.Role]; !ok {
				h.log.Info("role denied",
					zap.String("path", r.URL.Path),
					zap.String("role", claims.Role))
				respondError(w, r, account.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// withCORS answers preflights and stamps allow headers for configured
// origins. "*" allows any origin.
func withCORS(allowed []string) func(http.Handler) http.Handler {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }
	alist := make([]string, len(allowed))
	for i, v := range allowed {
		alist[i] = trim(v)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := trim(r.Header.Get("Origin"))
			match := ""
			for _, a := range alist {
				if a == "*" || (origin != "" && strings.EqualFold(origin, a)) {
					match = origin
					break
				}
			}

			w.Header().Add("Vary", "Origin")
			if match != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", match)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
