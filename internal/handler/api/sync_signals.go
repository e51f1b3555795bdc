package api

import (
	"github.com/labstack/echo/v4"

	models "TradeCast/internal/domain/models"
	"TradeCast/internal/service/identity"
	"TradeCast/internal/service/ratelimit"
	"TradeCast/internal/usecase"
	xhttp "TradeCast/pkg/http"
	xlogger "TradeCast/pkg/logger"
)

// SyncHandler is the authenticated pull surface: catch-up listings, delivery
// acknowledgements, and per-user stats. Every response is scoped to the
// caller's own tier.
type SyncHandler struct {
	logger   *xlogger.Logger
	sync     *usecase.SyncService
	provider identity.Provider
	limiter  *ratelimit.Limiter
}

func NewSyncHandler(logger *xlogger.Logger, sync *usecase.SyncService, provider identity.Provider, limiter *ratelimit.Limiter) *SyncHandler {
	return &SyncHandler{logger: logger, sync: sync, provider: provider, limiter: limiter}
}

func (h *SyncHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", Authenticate(h.provider, h.logger), RateLimit(h.limiter, 30, 10))
	g.GET("/signals", h.Sync)
	g.GET("/signals/recent", h.Recent)
	g.GET("/signals/stats", h.Stats)
	g.POST("/signals/:id/delivered", h.Ack)
}

func (h *SyncHandler) Sync(c echo.Context) error {
	req := &models.SyncRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}

	id := CallerIdentity(c)
	res, err := h.sync.Sync(c.Request().Context(), id.UserID, id.RiskTier, req)
	if err != nil {
		h.logger.Error("sync error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncHandler) Recent(c echo.Context) error {
	req := &models.SyncRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}

	id := CallerIdentity(c)
	res, err := h.sync.Recent(c.Request().Context(), id.UserID, id.RiskTier, req)
	if err != nil {
		h.logger.Error("recent sync error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncHandler) Stats(c echo.Context) error {
	id := CallerIdentity(c)
	st, err := h.sync.Stats(c.Request().Context(), id.UserID, id.RiskTier)
	if err != nil {
		h.logger.Error("stats error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, st)
}

// Ack confirms delivery from the client side, complementing the push path.
func (h *SyncHandler) Ack(c echo.Context) error {
	id := CallerIdentity(c)
	if err := h.sync.Ack(c.Request().Context(), id.UserID, c.Param("id")); err != nil {
		h.logger.Error("ack error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]bool{"acknowledged": true})
}
