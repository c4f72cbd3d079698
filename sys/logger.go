package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// --- Globals & Styles ---

var (
	// Level colors
	infoColor  = color.New()
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	fatalColor = color.New(color.FgRed, color.Bold)
	debugColor = color.New(color.FgHiBlack)

	// Component colors
	databaseColor = color.New()
	voiceColor    = color.New(color.FgMagenta)
	playerColor   = color.New(color.FgGreen)
	resolverColor = color.New(color.FgBlue)
	cacheColor    = color.New(color.FgHiBlack)
	healthColor   = color.New(color.FgCyan)

	DefaultTimeFormat = "15:04:05"
	IsSilent          = false
	LogToFile         = false
	Logger            *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

const LevelFatal = slog.LevelError + 4

// --- Initialization ---

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout

	if LogToFile {
		logName := GetProjectName() + ".log"
		if exePath, err := os.Executable(); err == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		f, err := os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			logFile = f
			writer = io.MultiWriter(os.Stdout, NewStripANSIWriter(logFile))
		}
	}

	color.NoColor = false

	Logger = slog.New(NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	}))
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

// --- Public Logging API ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), LevelFatal, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// Component Loggers

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogPlayer(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func LogResolver(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "resolver"))
}

func LogCache(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...), slog.String("component", "cache"))
}

func LogHealth(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "health"))
}

// LogComponentWarn logs a warning tagged with a component.
func LogComponentWarn(component, format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...), slog.String("component", component))
}

// --- Log Handler Implementation ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w     io.Writer
	opts  *BotLogHandlerOptions
	mu    *sync.Mutex
	attrs []slog.Attr
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	levelStr, levelColor := levelStyle(r.Level)

	component := ""
	find := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	}
	for _, a := range h.attrs {
		if !find(a) {
			break
		}
	}
	if component == "" {
		r.Attrs(find)
	}

	fmt.Fprintf(h.w, "%s", time.Now().Format(DefaultTimeFormat))

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		fmt.Fprintf(h.w, " %s\n", colorizeWithResets(getComponentColor(component), fmt.Sprintf("[%s] %s", component, r.Message)))
		return nil
	}

	displayMsg := fmt.Sprintf("[%s] %s", levelStr, r.Message)
	if levelStr == "INFO" && strings.HasPrefix(r.Message, "[") {
		if idx := strings.Index(r.Message, "]"); idx > 0 && idx < 20 {
			displayMsg = r.Message
		}
	}
	fmt.Fprintf(h.w, " %s\n", colorizeWithResets(levelColor, displayMsg))
	return nil
}

// WithAttrs keeps attributes so a "component" set through slog.With still tags the line.
func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *BotLogHandler) WithGroup(string) slog.Handler { return h }

// --- Formatting Helpers ---

func levelStyle(level slog.Level) (string, *color.Color) {
	switch {
	case level >= LevelFatal:
		return "FATAL", fatalColor
	case level >= slog.LevelError:
		return "ERROR", errorColor
	case level >= slog.LevelWarn:
		return "WARN", warnColor
	case level >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", debugColor
	}
}

func getComponentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "VOICE":
		return voiceColor
	case "PLAYER":
		return playerColor
	case "RESOLVER":
		return resolverColor
	case "CACHE":
		return cacheColor
	case "HEALTH":
		return healthColor
	default:
		return color.New(color.FgCyan)
	}
}

func colorizeWithResets(c *color.Color, text string) string {
	if !strings.Contains(text, "\x1b[0m") {
		return c.Sprint(text)
	}

	marker := "@@@MSG@@@"
	wrapped := c.Sprint(marker)
	idx := strings.Index(wrapped, marker)
	if idx <= 0 {
		return text
	}
	startSeq := wrapped[:idx]

	return c.Sprint(strings.ReplaceAll(text, "\x1b[0m", "\x1b[0m"+startSeq))
}

// --- Utilities & State ---

func GetLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile == nil {
		return ""
	}
	return logFile.Name()
}

// --- ANSI Stripper ---

type StripANSIWriter struct {
	w  io.Writer
	re *regexp.Regexp
}

func NewStripANSIWriter(w io.Writer) *StripANSIWriter {
	return &StripANSIWriter{
		w:  w,
		re: regexp.MustCompile(`\x1b\[[0-9;]*m`),
	}
}

func (s *StripANSIWriter) Write(p []byte) (n int, err error) {
	_, err = s.w.Write(s.re.ReplaceAll(p, nil))
	return len(p), err
}

// --- Message Constants ---

const (
	// --- Infrastructure & Lifecycle ---
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgConfigTuningLoaded  = "Loaded tuning file: %s"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDaemonStarting      = "Starting..."
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgGenericError        = "%v"

	// --- Command Loader & Registry ---
	MsgLoaderSyncCommands   = "Syncing %s commands..."
	MsgLoaderUpToDate       = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderCleanup        = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting    = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered  = "[DEV] Registered: %s"
	MsgLoaderDevFail        = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear = "[DEV] Clearing global commands..."
	MsgLoaderProdStarting   = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered = "[PROD] Registered: %s"
	MsgLoaderProdFail       = "[PROD] Global registration failed: %w"
	MsgLoaderPanicRecovered = "Panic recovered in handler: %v"

	// --- Playback ---
	MsgPlayerNowPlaying    = "Now playing in %s: %s"
	MsgPlayerQueueEmpty    = "Queue empty for %s"
	MsgPlayerTrackDropped  = "Dropped %q in %s: %v"
	MsgPlayerSinkError     = "Sink error in %s: %v"
	MsgPlayerRetry         = "Retry %d for %s: %v"
	MsgPlayerRateLimited   = "Rate limited on %s (attempt %d): %v"
	MsgPlayerStaleDiscard  = "Discarding stale result for %s in %s"
	MsgVoiceJoining        = "Joining channel %s in guild %s"
	MsgVoiceJoinFail       = "Failed to connect to voice in guild %s: %v"
	MsgVoiceDisconnected   = "Bot disconnected by external event in guild %s"
	MsgVoiceNoHumansPause  = "Pausing playback in guild %s (No humans)"
	MsgVoiceHumansResume   = "Resuming playback in guild %s"
	MsgVoiceShuttingDown   = "Shutting down voice sessions..."
	MsgVoiceTranscoderFail = "Transcoder failed for %s: %v"

	// --- User Facing ---
	MsgPlayNotInVoice   = "❌ You need to be in a voice channel to play music!"
	MsgPlayBusy         = "⏳ Please wait, processing another request..."
	MsgPlayNoResults    = "❌ No tracks found for your query."
	MsgPlayAddedOne     = "🎵 Added to queue: **%s**"
	MsgPlayAddedMany    = "📋 Added **%d** tracks to queue"
	MsgPlayFailed       = "❌ An error occurred while processing your request."
	MsgPlayDropped      = "⚠️ Skipped **%s**: it could not be loaded."
	MsgPlayFailedTrack  = "⚠️ Playback of **%s** failed, moving on."
	MsgNothingPlaying   = "❌ Nothing is playing right now."
	MsgSkipped          = "⏭️ Skipped **%s**"
	MsgPaused           = "⏸️ Paused."
	MsgNotPaused        = "❌ Nothing to pause."
	MsgResumed          = "▶️ Resumed."
	MsgNotResumed       = "❌ Nothing to resume."
	MsgStopped          = "⏹️ Stopped playback and cleared the queue."
	MsgLeft             = "👋 Left the voice channel."
	MsgNotConnected     = "❌ I'm not in a voice channel."
	MsgQueueEmpty       = "📭 The queue is empty."
	MsgHistoryEmpty     = "No tracks have been played here yet."
	MsgHistoryFailed    = "Failed to load play history."
	MsgGuildOnly        = "This command can only be used in a server."
	MsgPlaySpotifyOff   = "❌ Spotify links are not enabled on this bot."
	MsgPlayUnsupported  = "❌ That link is not supported."
	MsgPlayJoinFailed   = "❌ I couldn't join your voice channel."
	MsgQueueEnded       = "📭 Queue finished."
	ErrResolveExhausted = "Could not load the track after several attempts."
)
