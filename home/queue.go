package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const queuePageSize = 10

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "queue",
		Description: "Show the current track and what plays next",
	}, handleQueue)
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "history",
		Description: "Show the tracks played recently in this server",
	}, handleHistory)
}

func handleQueue(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	snap, ok := svc.Registry.Snapshot(id)
	if !ok || (snap.Current == nil && len(snap.Pending) == 0) {
		sys.Respond(event, sys.MsgQueueEmpty, true)
		return
	}

	var thumb string
	if snap.Current != nil {
		thumb = snap.Current.Thumbnail
	}
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(
			sys.NewThumbnailSection(formatNowPlaying(snap), thumb),
			discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
			discord.NewTextDisplay(formatUpcoming(snap.Pending)),
		)).
		SetEphemeral(true).
		Build())
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	d = d.Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatNowPlaying(snap proc.Snapshot) string {
	if snap.Current == nil {
		return "⏹️ **Nothing playing**"
	}
	icon := "▶️"
	if snap.Status == proc.StatusPaused {
		icon = "⏸️"
	}
	t := snap.Current
	return fmt.Sprintf("%s **Now Playing:**\n[%s](%s) `%s` · requested by %s", icon, t.Title, t.URL, formatDuration(t.Duration), t.RequestedBy)
}

func formatUpcoming(pending []proc.Track) string {
	if len(pending) == 0 {
		return "**Up next:**\n_Empty_"
	}

	var sb strings.Builder
	sb.WriteString("**Up next:**\n")
	for i, t := range lo.Slice(pending, 0, queuePageSize) {
		fmt.Fprintf(&sb, "`%d.` [%s](%s) `%s`\n", i+1, t.Title, t.URL, formatDuration(t.Duration))
	}
	if extra := len(pending) - queuePageSize; extra > 0 {
		fmt.Fprintf(&sb, "*...and %d more*\n", extra)
	}

	total := lo.SumBy(pending, func(t proc.Track) time.Duration { return t.Duration })
	fmt.Fprintf(&sb, "-# %s tracks · %s total", humanize.Comma(int64(len(pending))), formatDuration(total))
	return sb.String()
}

func handleHistory(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	records, err := sys.RecentPlays(sys.AppContext, id, queuePageSize)
	if err != nil {
		sys.LogDatabase("Failed to load history for %s: %v", id, err)
		sys.Respond(event, sys.MsgHistoryFailed, true)
		return
	}
	if len(records) == 0 {
		sys.Respond(event, sys.MsgHistoryEmpty, true)
		return
	}
	sys.Respond(event, formatHistory(records, time.Now()), true)
}

func formatHistory(records []sys.PlayRecord, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("🕘 **Recently played:**\n")
	for i, r := range records {
		fmt.Fprintf(&sb, "`%d.` [%s](%s) · %s · %s\n", i+1, r.Title, r.URL, r.RequestedBy, humanize.RelTime(r.PlayedAt, now, "ago", "from now"))
	}
	return strings.TrimRight(sb.String(), "\n")
}
