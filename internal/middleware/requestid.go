package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo context key holding the request id.
const RequestIDKey = "request_id"

// maxRequestIDLen bounds ids taken from callers.
const maxRequestIDLen = 128

// RequestID returns an Echo middleware that assigns every request an id,
// reusing the caller's X-Request-Id when present. The id is kept in the echo
// context for logs and spans only; it is neither forwarded nor added to the
// response, which is relayed exactly as the target sent it.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			c.Set(RequestIDKey, id)
			return next(c)
		}
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(RequestIDKey).(string)
	return id
}
