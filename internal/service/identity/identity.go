package identity

import (
	"context"
	"errors"

	"TradeCast/internal/domain/models"
)

// ErrUnauthenticated is returned for unknown, expired, or malformed tokens.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Identity is the resolved caller behind a token.
type Identity struct {
	UserID   string
	RiskTier models.RiskTier
	Admin    bool
}

// Provider resolves bearer tokens to identities. All authenticated surfaces
// (sync API, websocket gateway, admin API) share one provider so a token means
// the same caller everywhere.
type Provider interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
