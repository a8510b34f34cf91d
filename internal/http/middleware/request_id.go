package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestID ensures every request carries an X-Request-ID for log
// correlation. A client-supplied id is kept; otherwise one is generated.
// The id is echoed on the response and stored in the echo context.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
				c.Request().Header.Set(echo.HeaderXRequestID, id)
			}

			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.Set("request_id", id)

			return next(c)
		}
	}
}
