package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"TradeCast/internal/domain/models"
	xhttp "TradeCast/pkg/http"
)

// HTTPProvider verifies tokens against the external account service.
type HTTPProvider struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPProvider builds an HTTP verifier with timeout and base URL.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	UserID   string `json:"user_id"`
	RiskTier string `json:"risk_tier"`
	Admin    bool   `json:"admin"`
}

func (p *HTTPProvider) Verify(ctx context.Context, token string) (*Identity, error) {
	if p.client == nil || p.baseURL == "" {
		return nil, fmt.Errorf("identity http client not initialized")
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var resp verifyResponse
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    p.baseURL + "/v1/tokens/verify",
		Body:   verifyRequest{Token: token},
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden || se.Status == http.StatusNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}

	tier, ok := models.ParseRiskTier(resp.RiskTier)
	if !ok || resp.UserID == "" {
		return nil, ErrUnauthenticated
	}
	return &Identity{UserID: resp.UserID, RiskTier: tier, Admin: resp.Admin}, nil
}
