package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/jukebox/sys"
)

// presenceVisibleKey is the bot_config key that turns the rotating presence off.
const presenceVisibleKey = "presence_visible"

func rotationInterval() time.Duration {
	return time.Duration(30+rand.IntN(31)) * time.Second
}

// PresenceRotator cycles the bot's "Listening to" line through a few live
// figures: active sessions, uptime and tracks played.
type PresenceRotator struct {
	client   *bot.Client
	registry *Registry
	health   *HealthMonitor
	last     string
}

func NewPresenceRotator(client *bot.Client, registry *Registry, health *HealthMonitor) *PresenceRotator {
	return &PresenceRotator{client: client, registry: registry, health: health}
}

func (p *PresenceRotator) Run(ctx context.Context) {
	for {
		p.update(ctx)
		select {
		case <-time.After(rotationInterval()):
		case <-ctx.Done():
			return
		}
	}
}

func (p *PresenceRotator) update(ctx context.Context) {
	if v, err := sys.GetBotConfig(ctx, presenceVisibleKey); err == nil && v == "false" {
		_ = p.client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	text := pickStatus(p.candidates(ctx), p.last, rand.IntN)
	p.last = text

	err := p.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	)
	if err != nil {
		sys.LogDebug("Presence update failed: %v", err)
		return
	}
	sys.LogDebug("Presence set to %q", text)
}

func (p *PresenceRotator) candidates(ctx context.Context) []string {
	out := []string{"/play"}
	if n := len(p.registry.Sessions()); n > 0 {
		out = append(out, fmt.Sprintf("%d %s", n, pluralize(n, "session", "sessions")))
	}
	if p.health != nil {
		out = append(out, "Uptime: "+formatUptime(p.health.Uptime()))
	}
	if plays, err := sys.CountPlays(ctx); err == nil && plays > 0 {
		out = append(out, humanize.Comma(int64(plays))+" tracks played")
	}
	return out
}

// pickStatus chooses a random candidate other than last when there is one.
func pickStatus(candidates []string, last string, intn func(int) int) string {
	if len(candidates) == 0 {
		return ""
	}
	fresh := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != last {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return candidates[0]
	}
	return fresh[intn(len(fresh))]
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
