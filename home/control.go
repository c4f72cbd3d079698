package home

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/jukebox/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "skip",
		Description: "Skip the current track",
	}, handleSkip)
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "pause",
		Description: "Pause playback",
	}, handlePause)
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "resume",
		Description: "Resume playback",
	}, handleResume)
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "stop",
		Description: "Stop playback and clear the queue",
	}, handleStop)
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "leave",
		Description: "Leave the voice channel and forget the queue",
	}, handleLeave)
}

func handleSkip(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	t, ok := svc.Registry.Skip(id)
	if !ok {
		sys.Respond(event, sys.MsgNothingPlaying, true)
		return
	}
	sys.LogPlayer("User %s skipped %s in %s", event.User().Username, t, id)
	sys.Respond(event, fmt.Sprintf(sys.MsgSkipped, t.Title), false)
}

func handlePause(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	if !svc.Registry.Pause(id) {
		sys.Respond(event, sys.MsgNotPaused, true)
		return
	}
	sys.Respond(event, sys.MsgPaused, false)
}

func handleResume(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	if !svc.Registry.Resume(id) {
		sys.Respond(event, sys.MsgNotResumed, true)
		return
	}
	sys.Respond(event, sys.MsgResumed, false)
}

func handleStop(event *events.ApplicationCommandInteractionCreate) {
	_, id, ok := guildSession(event)
	if !ok {
		return
	}
	if err := svc.Registry.Clear(id); err != nil {
		sys.Respond(event, sys.MsgNothingPlaying, true)
		return
	}
	sys.LogPlayer("User %s stopped playback in %s", event.User().Username, id)
	sys.Respond(event, sys.MsgStopped, false)
}

func handleLeave(event *events.ApplicationCommandInteractionCreate) {
	guildID, id, ok := guildSession(event)
	if !ok {
		return
	}
	if !svc.Voice.Connected(guildID) {
		sys.Respond(event, sys.MsgNotConnected, true)
		return
	}
	svc.Voice.Leave(context.Background(), guildID)
	forgetSession(id)
	sys.Respond(event, sys.MsgLeft, false)
}
