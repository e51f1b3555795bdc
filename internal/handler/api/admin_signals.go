package api

import (
	"github.com/labstack/echo/v4"

	models "TradeCast/internal/domain/models"
	"TradeCast/internal/service/identity"
	"TradeCast/internal/usecase"
	xhttp "TradeCast/pkg/http"
	xlogger "TradeCast/pkg/logger"
)

// AdminSignalsHandler is the admin ingestion and lifecycle surface.
type AdminSignalsHandler struct {
	logger   *xlogger.Logger
	signals  *usecase.SignalService
	provider identity.Provider
}

func NewAdminSignalsHandler(logger *xlogger.Logger, signals *usecase.SignalService, provider identity.Provider) *AdminSignalsHandler {
	return &AdminSignalsHandler{logger: logger, signals: signals, provider: provider}
}

func (h *AdminSignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/admin", Authenticate(h.provider, h.logger), RequireAdmin())
	g.POST("/signals", h.Create)
	g.PATCH("/signals/:id/archive", h.Archive)
	g.POST("/signals/:id/taken", h.MarkTaken)
}

// Create ingests one signal. 201 on a fresh insert, 200 with exists=true when
// the dedup key already has a winner, 422 on validation failure.
func (h *AdminSignalsHandler) Create(c echo.Context) error {
	req := &models.CreateSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}

	id := CallerIdentity(c)
	res, err := h.signals.Create(c.Request().Context(), req, id.UserID, models.OriginAdmin)
	if err != nil {
		h.logger.Error("create signal error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}

	if res.Existing {
		return xhttp.SuccessResponse(c, models.DuplicateSignalResponse{Exists: true, Signal: res.Signal})
	}
	return xhttp.CreatedResponse(c, models.CreateSignalResponse{Signal: res.Signal, MatchedUsers: res.MatchedUsers})
}

// Archive retires an active signal.
func (h *AdminSignalsHandler) Archive(c echo.Context) error {
	sig, err := h.signals.Archive(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("archive signal error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

// MarkTaken records an outcome against an active signal.
func (h *AdminSignalsHandler) MarkTaken(c echo.Context) error {
	req := &models.MarkTakenRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.UnprocessableResponse(c, verr)
	}

	id := CallerIdentity(c)
	sig, err := h.signals.MarkTaken(c.Request().Context(), c.Param("id"), id.UserID, req)
	if err != nil {
		h.logger.Error("mark taken error", xlogger.Error(err))
		return domainErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sig)
}
