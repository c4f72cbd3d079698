package home

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

// Services are the long-lived objects the commands operate on. main wires
// them once the client exists.
type Services struct {
	Registry *proc.Registry
	Voice    *proc.VoiceSystem
	Lookup   *proc.Lookup
	YouTube  *proc.YouTube
	Health   *proc.HealthMonitor
}

var (
	svc Services

	// Text channel that last issued /play per session, for notices.
	noticeChannels sync.Map
)

// Bind installs the services used by every command handler.
func Bind(s Services) {
	svc = s
}

// guildSession resolves the session id of the guild the command came from,
// answering the user itself when there is none.
func guildSession(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, string, bool) {
	guildID := event.GuildID()
	if guildID == nil {
		sys.Respond(event, sys.MsgGuildOnly, true)
		return 0, "", false
	}
	return *guildID, proc.SessionID(*guildID), true
}

func rememberNoticeChannel(sessionID string, channelID snowflake.ID) {
	noticeChannels.Store(sessionID, channelID)
}

func noticeChannel(sessionID string) (snowflake.ID, bool) {
	v, ok := noticeChannels.Load(sessionID)
	if !ok {
		return 0, false
	}
	return v.(snowflake.ID), true
}

// WatchEvents keeps the play history and the per-session notice channels in
// step with registry events. It returns when ctx is
// done or the registry shuts down.
func WatchEvents(ctx context.Context, client *bot.Client) {
	sub := svc.Registry.Subscribe()
	defer svc.Registry.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			handleEvent(ctx, client, ev)
		}
	}
}

func handleEvent(ctx context.Context, client *bot.Client, ev proc.Event) {
	switch ev.Kind {
	case proc.EventTrackStarted:
		err := sys.RecordPlay(ctx, sys.PlayRecord{
			GuildID:         ev.SessionID,
			Title:           ev.Track.Title,
			URL:             ev.Track.URL,
			RequestedBy:     ev.Track.RequestedBy,
			DurationSeconds: int64(ev.Track.Duration.Seconds()),
			PlayedAt:        ev.At,
		})
		if err != nil {
			sys.LogDatabase("Failed to record play: %v", err)
		}
	case proc.EventTrackDropped:
		svc.Health.RecordError(ev.Err)
		msg := fmt.Sprintf(sys.MsgPlayDropped, ev.Track.Title)
		if errors.Is(ev.Err, proc.ErrRetryExhausted) {
			msg += "\n-# " + sys.ErrResolveExhausted
		}
		notify(ctx, client, ev.SessionID, msg)
	case proc.EventTrackFailed:
		svc.Health.RecordError(ev.Err)
		notify(ctx, client, ev.SessionID, fmt.Sprintf(sys.MsgPlayFailedTrack, ev.Track.Title))
	case proc.EventQueueEnded:
		sys.LogDebug("Queue ended for %s", ev.SessionID)
	case proc.EventSessionClosed:
		forgetSession(ev.SessionID)
	}
}

func notify(ctx context.Context, client *bot.Client, sessionID, content string) {
	channelID, ok := noticeChannel(sessionID)
	if !ok {
		return
	}
	if err := sys.SendChannelText(ctx, client, channelID, content); err != nil {
		sys.LogError("Failed to send notice to %s: %v", channelID, err)
	}
}

// forgetSession drops per-session command state after the bot leaves.
func forgetSession(sessionID string) {
	noticeChannels.Delete(sessionID)
}
