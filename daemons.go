package main

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"

	"github.com/leeineian/jukebox/home"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// registerDaemons queues the background loops; sys starts them once the
// gateway reports ready.
func registerDaemons(cfg *sys.Config, client *bot.Client, registry *proc.Registry, health *proc.HealthMonitor) {
	sys.RegisterDaemon(sys.LogCache, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { registry.Caches().Run(ctx) }, nil
	})

	sys.RegisterDaemon(sys.LogHealth, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { health.Run(ctx) }, nil
	})

	sys.RegisterDaemon(sys.LogPlayer, func(ctx context.Context) (bool, func(), func()) {
		return true, func() { home.WatchEvents(ctx, client) }, nil
	})

	sys.RegisterDaemon(sys.LogInfo, func(ctx context.Context) (bool, func(), func()) {
		rotator := proc.NewPresenceRotator(client, registry, health)
		return true, func() { rotator.Run(ctx) }, nil
	})

	sys.RegisterDaemon(sys.LogDebug, func(ctx context.Context) (bool, func(), func()) {
		if cfg.StatusAddr == "" {
			return false, nil, nil
		}
		srv := proc.NewStatusServer(cfg.StatusAddr, registry, health)
		shutdown := func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
		return true, srv.Run, shutdown
	})
}
