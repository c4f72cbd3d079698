package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// --- Environment ---

type Config struct {
	Token               string
	GuildID             string
	DatabasePath        string
	Silent              bool
	SpotifyClientID     string
	SpotifyClientSecret string
	StatusAddr          string

	Tuning Tuning
}

// Tuning holds the optional knobs read from the TOML tuning file.
type Tuning struct {
	Cache    CacheTuning    `koanf:"cache"`
	Retry    RetryTuning    `koanf:"retry"`
	Playback PlaybackTuning `koanf:"playback"`
	Health   HealthTuning   `koanf:"health"`
}

type CacheTuning struct {
	TTL           time.Duration `koanf:"ttl"`
	MaxSize       int           `koanf:"max_size"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

type RetryTuning struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	Multiplier   float64       `koanf:"multiplier"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

type PlaybackTuning struct {
	PlaylistLimit int           `koanf:"playlist_limit"`
	SearchTimeout time.Duration `koanf:"search_timeout"`
}

type HealthTuning struct {
	Interval       time.Duration `koanf:"interval"`
	MemoryWarnMB   uint64        `koanf:"memory_warn_mb"`
	ReportInterval time.Duration `koanf:"report_interval"`
}

var GlobalConfig *Config

// LoadConfig reads .env, the environment and the optional tuning file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	tuning, err := LoadTuning(tuningPaths())
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning file: %w", err)
	}

	cfg := &Config{
		Token:               os.Getenv("DISCORD_TOKEN"),
		GuildID:             os.Getenv("GUILD_ID"),
		DatabasePath:        dbPath,
		Silent:              silent,
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		StatusAddr:          os.Getenv("STATUS_ADDR"),
		Tuning:              *tuning,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	return nil
}

// HasSpotify reports whether Spotify client credentials are configured.
func (c *Config) HasSpotify() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// --- Tuning File ---

// LoadTuning merges the given TOML files in order (last wins). Missing files are skipped.
func LoadTuning(paths []string) (*Tuning, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		LogDebug(MsgConfigTuningLoaded, path)
	}

	t := &Tuning{}
	if err := k.Unmarshal("", t); err != nil {
		return nil, err
	}
	return t, nil
}

func tuningPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "jukebox", "config.toml"))
	}
	paths = append(paths, "jukebox.toml")
	return append(paths, os.Getenv("JUKEBOX_CONFIG"))
}

// CacheSettings returns the cache tuning with defaults applied.
func (t Tuning) CacheSettings() CacheTuning {
	c := t.Cache
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	return c
}

// RetrySettings returns the retry tuning with defaults applied.
func (t Tuning) RetrySettings() RetryTuning {
	r := t.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = 3
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.Multiplier < 1 {
		r.Multiplier = 2
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = 5 * time.Second
	}
	return r
}

// PlaybackSettings returns the playback tuning with defaults applied.
func (t Tuning) PlaybackSettings() PlaybackTuning {
	p := t.Playback
	if p.PlaylistLimit <= 0 {
		p.PlaylistLimit = 100
	}
	if p.SearchTimeout <= 0 {
		p.SearchTimeout = 10 * time.Second
	}
	return p
}

// HealthSettings returns the health tuning with defaults applied.
func (t Tuning) HealthSettings() HealthTuning {
	h := t.Health
	if h.Interval <= 0 {
		h.Interval = time.Minute
	}
	if h.MemoryWarnMB == 0 {
		h.MemoryWarnMB = 450
	}
	if h.ReportInterval <= 0 {
		h.ReportInterval = time.Hour
	}
	return h
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "jukebox"
	if err == nil {
		projectName = strings.TrimSuffix(filepath.Base(exePath), ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "jukebox"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
