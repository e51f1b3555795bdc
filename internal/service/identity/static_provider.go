package identity

import (
	"context"
	"strings"

	"TradeCast/internal/domain/models"
)

// StaticProvider resolves tokens from a fixed config map. Intended for local
// development and tests; value format is "user_id:tier" or "user_id:tier:admin".
type StaticProvider struct {
	tokens map[string]Identity
}

func NewStaticProvider(raw map[string]string) *StaticProvider {
	tokens := make(map[string]Identity, len(raw))
	for token, spec := range raw {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 {
			continue
		}
		tier, ok := models.ParseRiskTier(parts[1])
		if !ok {
			continue
		}
		tokens[token] = Identity{
			UserID:   parts[0],
			RiskTier: tier,
			Admin:    len(parts) > 2 && parts[2] == "admin",
		}
	}
	return &StaticProvider{tokens: tokens}
}

func (p *StaticProvider) Verify(_ context.Context, token string) (*Identity, error) {
	id, ok := p.tokens[token]
	if !ok {
		return nil, ErrUnauthenticated
	}
	out := id
	return &out, nil
}
