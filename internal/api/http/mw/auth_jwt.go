package mw

import (
	"anchor/internal/security"
	"anchor/pkg/httputil"
	"context"
	"errors"
	"net/http"
)

// Key for claims in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier security.Verifier
}

func NewJWTMiddleware(v security.Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("jwt verifier is required to the middleware")
	}
	return &JWTMiddleware{verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			_ = httputil.Error(w, r, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects requests whose token lacks scope; no claims in ctx means jwt is disabled
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims != nil && !claims.HasScope(scope) {
				_ = httputil.Error(w, r, http.StatusForbidden, "forbidden", "missing scope "+scope, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) *security.Claims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*security.Claims)
	return claims
}
