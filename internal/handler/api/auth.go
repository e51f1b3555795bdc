package api

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"TradeCast/internal/service/identity"
	"TradeCast/internal/service/ratelimit"
	xhttp "TradeCast/pkg/http"
	xlogger "TradeCast/pkg/logger"
)

const identityContextKey = "caller_identity"

// Authenticate resolves the bearer token through the shared identity provider
// and stores the caller on the echo context. All authenticated routes go
// through this middleware so a token means the same caller everywhere.
func Authenticate(provider identity.Provider, logger *xlogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			id, err := provider.Verify(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					return xhttp.AppErrorResponse(c, xhttp.UnauthorizedError("invalid or missing token"))
				}
				logger.Error("identity verify error", xlogger.Error(err))
				return xhttp.AppErrorResponse(c, xhttp.InternalError("identity service unavailable"))
			}
			c.Set(identityContextKey, id)
			return next(c)
		}
	}
}

// RequireAdmin gates the admin surface. Runs after Authenticate.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := CallerIdentity(c)
			if id == nil || !id.Admin {
				return xhttp.AppErrorResponse(c, xhttp.ForbiddenError("admin access required"))
			}
			return next(c)
		}
	}
}

// RateLimit applies a per-user token bucket. Runs after Authenticate.
func RateLimit(limiter *ratelimit.Limiter, capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := CallerIdentity(c)
			if id != nil && !limiter.Allow("user:"+id.UserID, capacity, refillPerSec) {
				return xhttp.DataResponse(c, 429, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// CallerIdentity returns the identity placed by Authenticate, or nil.
func CallerIdentity(c echo.Context) *identity.Identity {
	id, _ := c.Get(identityContextKey).(*identity.Identity)
	return id
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.QueryParam("token")
}
