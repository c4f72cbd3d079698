package proc

import (
	"context"
	"iter"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/jukebox/sys"
)

// VoiceSystem owns the guild voice connections and binds each one to the
// player registry as that guild's sink.
type VoiceSystem struct {
	client   *bot.Client
	registry *Registry

	mu       sync.Mutex
	sessions map[snowflake.ID]*VoiceSession
}

// VoiceSession is one live voice connection.
type VoiceSession struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Conn      voice.Conn

	sink *DiscordSink
	// autoPaused is set when playback was held because the channel emptied.
	autoPaused bool
}

func NewVoiceSystem(client *bot.Client, registry *Registry) *VoiceSystem {
	vs := &VoiceSystem{
		client:   client,
		registry: registry,
		sessions: make(map[snowflake.ID]*VoiceSession),
	}
	sys.RegisterVoiceStateUpdateHandler(vs.onVoiceStateUpdate)
	return vs
}

// SessionID is the registry key for a guild.
func SessionID(guildID snowflake.ID) string {
	return guildID.String()
}

func (vs *VoiceSystem) GetSession(guildID snowflake.ID) *VoiceSession {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return vs.sessions[guildID]
}

// Connected reports whether the bot holds a voice connection in the guild.
func (vs *VoiceSystem) Connected(guildID snowflake.ID) bool {
	return vs.GetSession(guildID) != nil
}

// Join connects to channelID and attaches a fresh sink to the guild's player.
// Joining the channel the bot is already in is a no-op; joining another one
// moves the bot and keeps the queue.
func (vs *VoiceSystem) Join(ctx context.Context, guildID, channelID snowflake.ID) error {
	id := SessionID(guildID)

	vs.mu.Lock()
	old, ok := vs.sessions[guildID]
	if ok && old.ChannelID == channelID {
		vs.mu.Unlock()
		return nil
	}
	delete(vs.sessions, guildID)
	vs.mu.Unlock()

	if ok {
		// The current track cannot follow the bot; pending tracks do.
		_ = vs.registry.Stop(id)
		old.sink.Close()
		old.Conn.Close(ctx)
	}

	// The gateway delivers voice events while Open waits, so no lock is held here.
	sys.LogVoice(sys.MsgVoiceJoining, channelID, guildID)
	conn := vs.client.VoiceManager.CreateConn(guildID)
	if err := conn.Open(ctx, channelID, false, false); err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFail, guildID, err)
		conn.Close(ctx)
		return err
	}

	sess := &VoiceSession{
		GuildID:   guildID,
		ChannelID: channelID,
		Conn:      conn,
		sink:      NewDiscordSink(id, conn),
	}
	vs.mu.Lock()
	vs.sessions[guildID] = sess
	vs.mu.Unlock()
	vs.registry.AttachSink(id, sess.sink)
	return nil
}

// Leave disconnects from the guild and tears down its player and queue.
func (vs *VoiceSystem) Leave(ctx context.Context, guildID snowflake.ID) {
	vs.mu.Lock()
	sess, ok := vs.sessions[guildID]
	delete(vs.sessions, guildID)
	vs.mu.Unlock()

	_ = vs.registry.Leave(SessionID(guildID))
	if ok && sess.Conn != nil {
		sess.Conn.Close(ctx)
	}
}

// Shutdown closes every voice connection in parallel.
func (vs *VoiceSystem) Shutdown(ctx context.Context) {
	sys.LogVoice(sys.MsgVoiceShuttingDown)

	vs.mu.Lock()
	sessions := vs.sessions
	vs.sessions = make(map[snowflake.ID]*VoiceSession)
	vs.mu.Unlock()

	var wg sync.WaitGroup
	for id, sess := range sessions {
		wg.Go(func() {
			_ = vs.registry.Leave(SessionID(id))
			sess.Conn.Close(ctx)
		})
	}
	wg.Wait()
}

// countHumans counts the non-bot users other than self in channelID.
func countHumans(states iter.Seq[discord.VoiceState], channelID, self snowflake.ID, isBot func(snowflake.ID) bool) int {
	n := 0
	for state := range states {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == self {
			continue
		}
		if !isBot(state.UserID) {
			n++
		}
	}
	return n
}

// onVoiceStateUpdate follows the bot when it is moved or kicked, and holds
// playback while nobody is listening.
func (vs *VoiceSystem) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	guildID := event.VoiceState.GuildID
	client := event.Client()

	if event.VoiceState.UserID == client.ID() {
		if event.VoiceState.ChannelID == nil {
			if vs.Connected(guildID) {
				sys.LogVoice(sys.MsgVoiceDisconnected, guildID)
				vs.Leave(context.Background(), guildID)
			}
			return
		}
		vs.mu.Lock()
		if sess, ok := vs.sessions[guildID]; ok {
			sess.ChannelID = *event.VoiceState.ChannelID
		}
		vs.mu.Unlock()
		return
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	sess, ok := vs.sessions[guildID]
	if !ok || sess.ChannelID == 0 {
		return
	}

	humans := countHumans(client.Caches.VoiceStates(guildID), sess.ChannelID, client.ID(), func(id snowflake.ID) bool {
		m, ok := client.Caches.Member(guildID, id)
		return ok && m.User.Bot
	})

	id := SessionID(guildID)
	switch {
	case humans == 0 && !sess.autoPaused:
		if vs.registry.Pause(id) {
			sys.LogVoice(sys.MsgVoiceNoHumansPause, guildID)
			sess.autoPaused = true
		}
	case humans > 0 && sess.autoPaused:
		sess.autoPaused = false
		if vs.registry.Resume(id) {
			sys.LogVoice(sys.MsgVoiceHumansResume, guildID)
		}
	}
}
