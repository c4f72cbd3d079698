package proc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/samber/lo"

	"github.com/leeineian/jukebox/sys"
)

// NewStatusRouter serves read-only playback and health information.
func NewStatusRouter(registry *Registry, health *HealthMonitor) *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.Use(middleware.Recover())
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "method=${method}, uri=${uri}, status=${status}\n",
		Output: debugWriter{},
	}))

	api := r.Group("/api")
	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, health.Report())
	})
	api.GET("/sessions", func(c echo.Context) error {
		snaps := lo.FilterMap(registry.Sessions(), func(id string, _ int) (Snapshot, bool) {
			return registry.Snapshot(id)
		})
		return c.JSON(http.StatusOK, echo.Map{
			"count":    len(snaps),
			"sessions": snaps,
		})
	})
	api.GET("/sessions/:id", func(c echo.Context) error {
		snap, ok := registry.Snapshot(c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, echo.Map{
				"message": ErrSessionNotFound.Error(),
			})
		}
		return c.JSON(http.StatusOK, snap)
	})
	return r
}

// debugWriter forwards request log lines to the debug logger.
type debugWriter struct{}

func (debugWriter) Write(p []byte) (int, error) {
	sys.LogDebug("[HTTP] %s", strings.TrimSpace(string(p)))
	return len(p), nil
}

// StatusServer runs the status router on addr until shut down.
type StatusServer struct {
	addr string
	e    *echo.Echo
}

func NewStatusServer(addr string, registry *Registry, health *HealthMonitor) *StatusServer {
	return &StatusServer{addr: addr, e: NewStatusRouter(registry, health)}
}

func (s *StatusServer) Run() {
	sys.LogInfo("Status API listening on %s", s.addr)
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sys.LogError("Status API stopped: %v", err)
	}
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
