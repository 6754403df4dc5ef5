package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jmehdipour/notify-gateway/internal/config"
	"github.com/jmehdipour/notify-gateway/internal/http/middleware"
	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// isScheduledCall reports whether r came from a scheduler rather than an operator.
func isScheduledCall(r *http.Request, uaMarker string) bool {
	if strings.EqualFold(r.Header.Get("X-Scheduled-Trigger"), "true") {
		return true
	}
	if uaMarker != "" && strings.Contains(strings.ToLower(r.UserAgent()), strings.ToLower(uaMarker)) {
		return true
	}
	switch strings.ToLower(r.URL.Query().Get("cron")) {
	case "1", "true":
		return true
	}
	return false
}

// broadcastHandler runs one broadcast synchronously.
// POST is a manual run; GET is only accepted from a scheduler.
func broadcastHandler(b Broadcaster, trig config.TriggerConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		scheduled := isScheduledCall(req, trig.UserAgentMarker)

		var mode model.TriggerMode
		switch {
		case req.Method == http.MethodPost && scheduled:
			mode = model.TriggerScheduled
		case req.Method == http.MethodPost:
			mode = model.TriggerManual
		case req.Method == http.MethodGet && scheduled:
			mode = model.TriggerScheduled
		default:
			return c.JSON(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		}

		if !middleware.ValidAPIKey(req, trig.APIKey) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		sum, err := b.Run(req.Context(), mode)
		if err != nil {
			logger.Log.Error("broadcast failed", zap.String("mode", mode.String()), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "Broadcast failed",
				"details": err.Error(),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Broadcast complete: %d succeeded, %d failed", sum.Succeeded, sum.Failed),
			"summary": sum,
		})
	}
}
