package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leeineian/jukebox/home"
	"github.com/leeineian/jukebox/proc"
	"github.com/leeineian/jukebox/sys"
)

const pidFile = ".bot.pid"

func main() {
	// LogFatal panics so deferred cleanup still runs.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, "\n[FATAL] %s\n", msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	forceReg := flag.Bool("force-reg", false, "Re-register commands even when unchanged")
	flag.Parse()

	sys.InitLogger(*silent, true)

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(sys.MsgConfigFailedToLoad, err)
	}

	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal("Failed to initialize database: %v", err)
	}
	defer sys.CloseDatabase()

	sys.LogInfo(sys.MsgBotStarting, sys.GetProjectName())

	f := acquirePIDLock()
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(pidFile)
	}()

	if err := run(cfg, *silent, *skipReg, *forceReg); err != nil {
		sys.LogFatal(sys.MsgGenericError, err)
	}
}

// acquirePIDLock takes an exclusive lock on the PID file, terminating the
// instance that holds it, and writes our PID.
func acquirePIDLock() *os.File {
	f, err := os.OpenFile(pidFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal("Failed to open PID file: %v", err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			sys.LogFatal("Failed to lock PID file: %v", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			<-ticker.C
			continue
		}

		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			<-ticker.C
			continue
		}

		sys.LogInfo(sys.MsgBotKillingOld, oldPid)
		_ = process.Signal(syscall.SIGTERM)
		if !waitExit(process, ticker.C, 5*time.Second) {
			sys.LogWarn("Old process %d is stubborn. Sending SIGKILL...", oldPid)
			_ = process.Signal(syscall.SIGKILL)
			if !waitExit(process, ticker.C, 2*time.Second) {
				sys.LogWarn("Process %d still exists after SIGKILL", oldPid)
			}
		}
		sys.LogInfo(sys.MsgBotOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()
	return f
}

func waitExit(p *os.Process, tick <-chan time.Time, limit time.Duration) bool {
	timeout := time.After(limit)
	for {
		select {
		case <-tick:
			if err := p.Signal(syscall.Signal(0)); err != nil {
				return true
			}
		case <-timeout:
			return false
		}
	}
}

func run(cfg *sys.Config, silent, skipReg, forceReg bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	sys.SetAppContext(ctx)

	ct := cfg.Tuning.CacheSettings()
	caches := proc.NewCacheManager(ct.TTL, ct.MaxSize, ct.SweepInterval)
	retrier := proc.NewRetrier()

	rt := cfg.Tuning.RetrySettings()
	policy := proc.RetryPolicy{
		MaxAttempts:  rt.MaxAttempts,
		InitialDelay: rt.InitialDelay,
		Multiplier:   rt.Multiplier,
		MaxDelay:     rt.MaxDelay,
	}

	pt := cfg.Tuning.PlaybackSettings()
	yt := proc.NewYouTube(proc.YouTubeConfig{
		Caches:        caches,
		Retrier:       retrier,
		Policy:        policy,
		PlaylistLimit: pt.PlaylistLimit,
		SearchTimeout: pt.SearchTimeout,
	})

	var sp *proc.Spotify
	if cfg.HasSpotify() {
		sp = proc.NewSpotify(ctx, proc.SpotifyConfig{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			Search:       yt,
			Caches:       caches,
			Retrier:      retrier,
			Policy:       policy,
			Limit:        pt.PlaylistLimit,
		})
	} else {
		sys.LogInfo("Spotify credentials not set, Spotify links are disabled")
	}

	registry := proc.NewRegistry(proc.RegistryConfig{
		Resolver: yt,
		Caches:   caches,
		Retrier:  retrier,
		Policy:   policy,
		Context:  ctx,
	})

	client, err := sys.CreateClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}
	defer client.Close(context.Background())

	voice := proc.NewVoiceSystem(client, registry)
	health := proc.NewHealthMonitor(cfg.Tuning.HealthSettings(), func() int { return len(registry.Sessions()) })

	home.Bind(home.Services{
		Registry: registry,
		Voice:    voice,
		Lookup:   proc.NewLookup(yt, sp),
		YouTube:  yt,
		Health:   health,
	})

	registerDaemons(cfg, client, registry, health)

	if !skipReg {
		if err := sys.RegisterCommands(ctx, client, cfg.GuildID, forceReg); err != nil {
			sys.LogError(sys.MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo("Skipping command registration as requested.")
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	voice.Shutdown(shutdownCtx)
	if err := registry.Shutdown(shutdownCtx); err != nil {
		sys.LogWarn("Registry shutdown incomplete: %v", err)
	}
	sys.LogInfo("Shutting down all daemons...")
	sys.ShutdownDaemons()

	if botUser, ok := client.Caches.SelfUser(); ok {
		sys.LogInfo(sys.MsgBotShutdown, botUser.Username)
	} else {
		sys.LogInfo(sys.MsgBotShutdown, sys.GetProjectName())
	}
	return nil
}
