package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const uploaderContextKey contextKey = "uploader"

// Uploader is the authenticated caller of a request.
type Uploader struct {
	ID   string
	Name string
}

// WithUploader returns a context carrying u.
func WithUploader(ctx context.Context, u Uploader) context.Context {
	return context.WithValue(ctx, uploaderContextKey, u)
}

// UploaderFromContext returns the uploader set by Middleware, if any.
func UploaderFromContext(ctx context.Context) (Uploader, bool) {
	u, ok := ctx.Value(uploaderContextKey).(Uploader)
	return u, ok
}

// Middleware validates "Authorization: Bearer" tokens. A valid token puts
// its uploader into the request context; an invalid one is rejected. A
// missing token is rejected only when required is true.
func Middleware(m *JWTManager, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					unauthorized(w, "missing bearer token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "malformed authorization header")
				return
			}

			claims, err := m.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				unauthorized(w, err.Error())
				return
			}

			ctx := WithUploader(r.Context(), Uploader{ID: claims.Subject, Name: claims.Name})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tenderd"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": "unauthorized", "message": msg})
}
