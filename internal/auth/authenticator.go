package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Shivanand-hulikatti/eventreg/internal/model"
)

// Authenticator verifies a request and returns the caller's identity.
// Failures wrap model.ErrAuthRequired.
type Authenticator interface {
	Authenticate(r *http.Request) (*model.Identity, error)
}

// BearerAuthenticator reads an HS256 JWT from the Authorization header.
type BearerAuthenticator struct {
	jwt *JWTManager
}

func NewBearerAuthenticator(m *JWTManager) *BearerAuthenticator {
	return &BearerAuthenticator{jwt: m}
}

func (a *BearerAuthenticator) Authenticate(r *http.Request) (*model.Identity, error) {
	token, err := TokenFromHeader(r.Header.Get("Authorization"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthRequired, err)
	}
	claims, err := a.jwt.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuthRequired, err)
	}
	return claims.Identity(), nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *model.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by WithIdentity, or nil.
func IdentityFrom(ctx context.Context) *model.Identity {
	id, _ := ctx.Value(identityKey{}).(*model.Identity)
	return id
}
