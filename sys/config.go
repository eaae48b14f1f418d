package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
)

type Config struct {
	Token         string
	GuildID       string
	DatabasePath  string
	OwnerIDs      []snowflake.ID
	RedisURL      string
	MediaDir      string
	Silent        bool
	YoutubePrefix string
	YTMusicPrefix string

	ResolveTimeout     time.Duration
	StopDebounce       time.Duration
	AdvanceDelay       time.Duration
	RetryDelay         time.Duration
	BatchInterval      time.Duration
	DefaultMaxDuration time.Duration
	DefaultQueueLimit  int
	PlaylistLimit      int
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
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

	ownerIDs, err := parseOwnerIDs(os.Getenv("OWNER_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Token:         os.Getenv("DISCORD_TOKEN"),
		GuildID:       os.Getenv("GUILD_ID"),
		DatabasePath:  dbPath,
		OwnerIDs:      ownerIDs,
		RedisURL:      os.Getenv("REDIS_URL"),
		MediaDir:      os.Getenv("MEDIA_DIR"),
		Silent:        silent,
		YoutubePrefix: envString("VOICE_YT_PREFIX", "[YT]"),
		YTMusicPrefix: envString("VOICE_YTM_PREFIX", "[YTM]"),

		ResolveTimeout:     envDuration("RESOLVE_TIMEOUT", 20*time.Second),
		StopDebounce:       envDuration("STOP_DEBOUNCE", 3*time.Second),
		AdvanceDelay:       envDuration("ADVANCE_DELAY", time.Second),
		RetryDelay:         envDuration("RETRY_DELAY", 2*time.Second),
		BatchInterval:      envDuration("BATCH_INTERVAL", 750*time.Millisecond),
		DefaultMaxDuration: envDuration("DEFAULT_MAX_DURATION", time.Hour),
		DefaultQueueLimit:  envInt("DEFAULT_QUEUE_LIMIT", 100),
		PlaylistLimit:      envInt("PLAYLIST_LIMIT", 50),
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
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("invalid RESOLVE_TIMEOUT: must be positive")
	}
	if c.DefaultQueueLimit <= 0 {
		return fmt.Errorf("invalid DEFAULT_QUEUE_LIMIT: must be positive")
	}
	return nil
}

// IsOwner reports whether id is listed in OWNER_IDS.
func (c *Config) IsOwner(id snowflake.ID) bool {
	for _, o := range c.OwnerIDs {
		if o == id {
			return true
		}
	}
	return false
}

func parseOwnerIDs(raw string) ([]snowflake.ID, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []snowflake.ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := snowflake.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid OWNER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		LogWarn(MsgConfigBadValue, key, v, def)
		return def
	}
	return d
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		LogWarn(MsgConfigBadValue, key, v, def)
		return def
	}
	return n
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
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
