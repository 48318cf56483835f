package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/httputil"
)

type contextKey string

// SubjectKey carries the authenticated JWT subject through the request context.
const SubjectKey contextKey = "subject"

// AuthMiddleware validates a Bearer token on the ledger-ops surface. Tokens
// are HMAC-signed with the shared admin secret.
func AuthMiddleware(secret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteAPIError(w, constants.ErrAuthHeaderRequired)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				httputil.WriteAPIError(w, constants.ErrInvalidToken)
				return
			}

			subject, err := token.Claims.GetSubject()
			if err != nil || subject == "" {
				httputil.WriteAPIError(w, constants.ErrInvalidTokenClaims)
				return
			}

			ctx := context.WithValue(r.Context(), SubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectKey).(string)
	return subject, ok
}
