package home

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const lookupTimeout = 2 * time.Minute

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a song or playlist from YouTube or Spotify",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:         "query",
				Description:  "Search terms or a YouTube/Spotify link",
				Required:     true,
				Autocomplete: true,
			},
		},
	}, handlePlay)
	sys.RegisterAutocompleteHandler("play", handlePlayAutocomplete)
}

func handlePlay(event *events.ApplicationCommandInteractionCreate) {
	guildID, id, ok := guildSession(event)
	if !ok {
		return
	}
	query := event.SlashCommandInteractionData().String("query")
	user := event.User()

	_ = event.DeferCreateMessage(false)

	vs, ok := event.Client().Caches.VoiceState(guildID, user.ID)
	if !ok || vs.ChannelID == nil {
		_ = sys.EditReplyText(event, sys.MsgPlayNotInVoice)
		return
	}
	sys.LogPlayer("User %s (%s) requested playback in %s: %s", user.Username, user.ID, id, query)

	var added []proc.Track
	err := svc.Registry.WithLock(id, func() error {
		svc.Registry.EnsureSession(id)

		ctx, cancel := context.WithTimeout(sys.AppContext, lookupTimeout)
		defer cancel()

		tracks, err := svc.Lookup.Find(ctx, query, user.Username)
		if err != nil {
			return err
		}
		if len(tracks) == 0 {
			return proc.ErrNoResults
		}
		svc.Registry.Enqueue(id, tracks...)
		added = tracks

		if !svc.Voice.Connected(guildID) {
			if err := svc.Voice.Join(ctx, guildID, *vs.ChannelID); err != nil {
				return fmt.Errorf("%w: %w", errJoin, err)
			}
		}
		rememberNoticeChannel(id, event.Channel().ID())

		sys.SafeGo(func() {
			if _, err := svc.Registry.AdvanceIfIdle(sys.AppContext, id); err != nil {
				sys.LogDebug("Advance for %s ended: %v", id, err)
			}
		})
		return nil
	})

	_ = sys.EditReplyText(event, playReply(err, added))
}

var errJoin = errors.New("voice join failed")

// playReply picks the user-facing answer for a /play outcome.
func playReply(err error, added []proc.Track) string {
	switch {
	case errors.Is(err, proc.ErrLockBusy):
		return sys.MsgPlayBusy
	case errors.Is(err, proc.ErrNoResults):
		return sys.MsgPlayNoResults
	case errors.Is(err, proc.ErrSpotifyDisabled):
		return sys.MsgPlaySpotifyOff
	case errors.Is(err, proc.ErrUnsupportedLink):
		return sys.MsgPlayUnsupported
	case errors.Is(err, errJoin):
		sys.LogError("Play failed: %v", err)
		return sys.MsgPlayJoinFailed
	case err != nil:
		sys.LogError("Play failed: %v", err)
		if svc.Health != nil {
			svc.Health.RecordError(err)
		}
		return sys.MsgPlayFailed
	case len(added) == 1:
		return fmt.Sprintf(sys.MsgPlayAddedOne, added[0].Title)
	default:
		return fmt.Sprintf(sys.MsgPlayAddedMany, len(added))
	}
}

func handlePlayAutocomplete(event *events.AutocompleteInteractionCreate) {
	f := event.Data.Focused()
	if f.Name != "query" {
		return
	}
	q := strings.TrimSpace(f.String())
	if q == "" || strings.Contains(q, "http") || svc.YouTube == nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	ctx, cancel := context.WithTimeout(sys.AppContext, 2500*time.Millisecond)
	defer cancel()
	rs, err := svc.YouTube.Suggest(ctx, q)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}

	cs := make([]discord.AutocompleteChoice, 0, len(rs))
	for _, r := range rs {
		cs = append(cs, discord.AutocompleteChoiceString{Name: r.Name, Value: r.URL})
	}
	_ = event.AutocompleteResult(cs)
}
