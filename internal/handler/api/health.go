package api

import (
	"github.com/labstack/echo/v4"

	domrepo "TradeCast/internal/domain/repository"
	xhttp "TradeCast/pkg/http"
)

// HealthHandler reports store connectivity.
type HealthHandler struct {
	store domrepo.SignalStore
}

func NewHealthHandler(store domrepo.SignalStore) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return xhttp.DataResponse(c, 503, map[string]string{"status": "degraded"})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
