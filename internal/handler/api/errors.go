package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	domrepo "TradeCast/internal/domain/repository"
	xhttp "TradeCast/pkg/http"
)

// domainErrorResponse maps the storage error taxonomy onto HTTP statuses:
// validation 422, unknown id 404, illegal lifecycle change 400.
func domainErrorResponse(c echo.Context, err error) error {
	if ve, ok := domrepo.AsValidation(err); ok {
		errs := make([]xhttp.ValidationError, 0, len(ve.Fields))
		for field, msg := range ve.Fields {
			errs = append(errs, xhttp.ValidationError{
				Code:    "ERR_VALIDATION",
				Field:   field,
				Message: msg,
			})
		}
		return xhttp.UnprocessableResponse(c, errs)
	}
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("signal not found"))
	}
	if errors.Is(err, domrepo.ErrInvalidTransition) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("signal is not active"))
	}
	return xhttp.AppErrorResponse(c, err)
}
