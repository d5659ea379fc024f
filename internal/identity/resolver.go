package identity

import (
	"strings"

	"github.com/angelmondragon/betza-storefront/pkg/auth"
	"github.com/angelmondragon/betza-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
)

// TokenResolver turns hosted-auth access tokens into identity states.
type TokenResolver struct {
	cfg config.JWTConfig
}

func NewTokenResolver(cfg config.JWTConfig) (*TokenResolver, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "jwt secret is required")
	}
	return &TokenResolver{cfg: cfg}, nil
}

// Resolve returns the anonymous state for an empty token and an unauthorized
// error for a token that fails validation.
func (r *TokenResolver) Resolve(token string) (State, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Anonymous(), nil
	}
	claims, err := auth.ParseAccessToken(r.cfg, token)
	if err != nil {
		return Anonymous(), pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	return Authenticated(claims.UserID(), claims.Email), nil
}
