// Package server exposes the questionnaire engine over HTTP: hosts create a
// session per respondent, push answer updates, and observe state snapshots
// by polling or over a websocket stream. The server renders nothing; it is
// purely the engine's transport.
package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ellykits/lite-quest/internal/config"
	"github.com/ellykits/lite-quest/internal/platform/auth"
	"github.com/ellykits/lite-quest/internal/platform/middleware"
	"github.com/ellykits/lite-quest/internal/session"
)

// New builds the echo instance with all middleware and routes wired.
func New(cfg *config.Config, registry *session.Registry, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": registry.Len(),
		})
	})

	api := e.Group("/api")
	if cfg.AuthEnabled() {
		api.Use(auth.RequireToken(cfg.AuthSecret))
	}

	h := NewHandler(registry, logger)
	h.RegisterRoutes(api)

	return e
}
