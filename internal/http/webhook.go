package http

import (
	"encoding/json"
	"net/http"

	"github.com/jmehdipour/notify-gateway/internal/logger"
	"github.com/jmehdipour/notify-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// webhookHandler receives subscription-change events from the social client.
// Every decodable event is acknowledged with 200, including ones that could
// not be persisted; the ingestor logs and counts those.
func webhookHandler(ing Ingestor) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Method != http.MethodPost {
			return c.JSON(http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		}

		var ev model.WebhookEvent
		if err := json.NewDecoder(c.Request().Body).Decode(&ev); err != nil {
			logger.Log.Error("webhook body not decodable", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		}

		// store failures are already logged by the ingestor
		_, _ = ing.Ingest(c.Request().Context(), ev)

		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	}
}
