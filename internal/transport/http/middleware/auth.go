package middleware

import (
	"context"
	"net/http"
	"strings"

	"salaryrules/internal/domain/auth"
	"salaryrules/internal/transport/http/api"
)

type ctxKey string

const ctxKeyClient ctxKey = "client"

// Auth puts the client of a valid bearer token into the request context.
// Requests without one pass through unauthenticated.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, parts[1])
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithClient(r.Context(), auth.ClientContext{
				ClientID: claims.ClientID,
				TenantID: claims.TenantID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireClient rejects requests Auth did not authenticate.
func RequireClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetClient(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="payroll"`)
			api.Fail(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithClient(ctx context.Context, client auth.ClientContext) context.Context {
	return context.WithValue(ctx, ctxKeyClient, client)
}

func GetClient(ctx context.Context) (auth.ClientContext, bool) {
	client, ok := ctx.Value(ctxKeyClient).(auth.ClientContext)
	return client, ok
}
