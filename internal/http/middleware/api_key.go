package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// PresentedKey returns the operator key from X-API-Key, falling back to a
// bearer token (what hosted cron callers send).
func PresentedKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// ValidAPIKey reports whether r carries key. An empty key disables the check.
func ValidAPIKey(r *http.Request, key string) bool {
	if key == "" {
		return true
	}
	got := PresentedKey(r)
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1
}

// APIKeyMiddleware rejects requests that do not present the configured operator key.
func APIKeyMiddleware(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return next(c)
			}
			if PresentedKey(c.Request()) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			if !ValidAPIKey(c.Request(), key) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			return next(c)
		}
	}
}
