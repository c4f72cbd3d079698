package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/dustin/go-humanize"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "health",
		Description:              "Show bot health (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
	}, handleHealth)
}

func handleHealth(event *events.ApplicationCommandInteractionCreate) {
	latency := time.Since(event.ID().Time())
	plays, _ := sys.CountPlays(sys.AppContext)

	content := formatHealth(svc.Health.Report(), svc.Registry.Caches().Stats(), svc.Registry.Retrier().Pending(), plays, latency)
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		SetEphemeral(true).
		AddComponents(sys.NewTextContainer(content)).
		Build())
}

func formatHealth(r proc.HealthReport, caches []proc.CacheStats, retrying, plays int, latency time.Duration) string {
	var sb strings.Builder
	sb.WriteString("# 🩺 Health\n")
	fmt.Fprintf(&sb, "> **Uptime:** %s\n", r.Uptime)
	fmt.Fprintf(&sb, "> **Memory:** %s\n", r.Memory)
	fmt.Fprintf(&sb, "> **Errors:** %d\n", r.Errors)
	if r.LastError != "" {
		fmt.Fprintf(&sb, "> **Last error:** `%s`\n", r.LastError)
	}
	fmt.Fprintf(&sb, "> **Sessions:** %d\n", r.Sessions)
	fmt.Fprintf(&sb, "> **Retrying:** %d\n", retrying)
	fmt.Fprintf(&sb, "> **Tracks played:** %s\n", humanize.Comma(int64(plays)))
	fmt.Fprintf(&sb, "> **Latency:** %dms\n", latency.Milliseconds())
	for _, c := range caches {
		fmt.Fprintf(&sb, "> **%s cache:** %d/%d (%d hits, %d misses)\n", c.Name, c.Size, c.MaxSize, c.Hits, c.Misses)
	}
	return strings.TrimRight(sb.String(), "\n")
}
