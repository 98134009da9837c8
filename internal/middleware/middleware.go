package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"gitlab.ozon.dev/qwestard/laundry/internal/audit"
	"gitlab.ozon.dev/qwestard/laundry/internal/models"
)

type ctxKey struct{}

type IdentityResolver interface {
	Resolve(userID, token string) (models.User, error)
}

type Auditor interface {
	Log(record audit.AuditLog)
}

// UserFrom returns the identity attached by AuthMiddleware.
func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}

func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// AuthMiddleware expects Basic credentials: the user id as username and the
// session token as password.
func AuthMiddleware(resolver IdentityResolver, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !methodInList(r.Method, methods) {
				next.ServeHTTP(w, r)
				return
			}
			id, token, ok := r.BasicAuth()
			if !ok {
				unauthorized(w)
				return
			}
			u, err := resolver.Resolve(id, token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="laundry"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

func LogMiddleware(auditor Auditor, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if methodInList(r.Method, methods) {
				log.Printf("[%s] %s", r.Method, r.URL.Path)
				if auditor != nil {
					auditor.Log(audit.AuditLog{
						Timestamp: time.Now().UTC(),
						Endpoint:  r.URL.Path,
						Request:   r.Method + " " + r.URL.String(),
						Message:   "Request received",
					})
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func methodInList(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
