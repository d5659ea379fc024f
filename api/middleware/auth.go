package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/betza-storefront/api/responses"
	"github.com/angelmondragon/betza-storefront/internal/identity"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
)

// IdentityResolver turns a bearer token into an identity; *identity.TokenResolver satisfies it.
type IdentityResolver interface {
	Resolve(token string) (identity.State, error)
}

// Auth validates a bearer token and seeds the request context with the caller's identity.
func Auth(resolver IdentityResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(resolver, logg, responses.WriteError)
}

// FunctionAuth is Auth for the payment function endpoints; rejections use the
// {"error": message} body those clients parse.
func FunctionAuth(resolver IdentityResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return authenticate(resolver, logg, responses.WriteFunctionError)
}

type errorWriter func(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error)

func authenticate(resolver IdentityResolver, logg *logger.Logger, writeErr errorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeErr(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			state, err := resolver.Resolve(token)
			if err != nil {
				writeErr(r.Context(), logg, w, err)
				return
			}
			if !state.IsAuthenticated() {
				writeErr(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, state.UserID)
			ctx = context.WithValue(ctx, ctxEmail, state.Email)
			if logg != nil {
				ctx = logg.WithUserID(ctx, state.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
