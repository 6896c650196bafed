package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/pullstream-backend/api/responses"
	pkgAuth "github.com/angelmondragon/pullstream-backend/pkg/auth"
	"github.com/angelmondragon/pullstream-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
)

// Auth requires a bearer access token and seeds the request context with
// the caller identity every gig operation is checked against.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			identity := claims.Caller()
			ctx := WithIdentity(r.Context(), identity)
			if logg != nil {
				ctx = logg.WithFields(logg.WithIdentity(ctx, identity), map[string]any{"token_id": claims.ID})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" with any casing of the scheme.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
