// Package server provides the HTTP API server, middleware, and handlers for
// the engagement pipeline.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/requestctx"
)

// KeyResolver maps an API key to its tenant.
type KeyResolver interface {
	ResolveAPIKey(key string) (string, bool)
}

func apiKey(r *http.Request) string {
	if key := r.Header.Get("X-Engage-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// AuthMiddleware validates X-Engage-Key or Authorization: Bearer <key> and
// sets the tenant (and optional X-Engage-Reviewer) in the request context.
func AuthMiddleware(keys KeyResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID, ok := keys.ResolveAPIKey(apiKey(r))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
				return
			}
			ctx := requestctx.WithTenant(r.Context(), tenantID)
			if reviewer := strings.TrimSpace(r.Header.Get("X-Engage-Reviewer")); reviewer != "" {
				ctx = requestctx.WithReviewer(ctx, reviewer)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware guards operator routes. An empty adminKey disables them.
func AdminMiddleware(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				writeError(w, http.StatusForbidden, "forbidden", "admin routes are disabled")
				return
			}
			if subtle.ConstantTimeCompare([]byte(apiKey(r)), []byte(adminKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing admin key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Engage-Key, X-Engage-Reviewer")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
