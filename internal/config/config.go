package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Room    RoomConfig    `yaml:"room"`
	Torrent TorrentConfig `yaml:"torrent"`
	Auth    AuthConfig    `yaml:"auth"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// RoomConfig configures the Room Synchronization Engine and its backing store.
type RoomConfig struct {
	// InactivityPeriodSeconds is ROOM_INACTIVITY_PERIOD: how long a room with
	// zero connections sits loaded before the sweeper evicts it.
	InactivityPeriodSeconds int    `yaml:"inactivity_period_seconds"`
	DBURL                   string `yaml:"db_url"`
}

func (r RoomConfig) InactivityPeriod() time.Duration {
	return time.Duration(r.InactivityPeriodSeconds) * time.Second
}

// TorrentConfig configures the embedded BitTorrent client and save paths.
type TorrentConfig struct {
	MetadataFolder  string `yaml:"metadata_folder"`
	GlobalCacheSize int64  `yaml:"global_cache_size"` // MB
	AddTimeout      int    `yaml:"add_timeout"`       // seconds

	// SavePath is TORRENT_SAVE_PATH: parent of each room's download directory.
	SavePath string `yaml:"save_path"`
	// FilesSavePath is TORRENT_FILES_SAVE_PATH: storage for uploaded .torrent blobs.
	FilesSavePath string `yaml:"files_save_path"`
	// MaxTorrentFileSize is MAX_TORRENT_FILE_SIZE: reject larger uploads (413).
	MaxTorrentFileSize int64 `yaml:"max_torrent_file_size"`

	IdleEnabled bool `yaml:"idle_enabled"`
	IdleTimeout int  `yaml:"idle_timeout"` // seconds
	StartPaused bool `yaml:"start_paused"`
}

func (t TorrentConfig) AddTimeoutDuration() time.Duration {
	return time.Duration(t.AddTimeout) * time.Second
}

// AuthConfig holds the inputs the external auth collaborator needs.
type AuthConfig struct {
	AuthSecretKey       string `yaml:"auth_secret_key"`
	PWSecretKey         string `yaml:"pw_secret_key"`
	AccessTokenExpireMS int    `yaml:"access_token_expire_ms"`
}

func (a AuthConfig) AccessTokenExpire() time.Duration {
	return time.Duration(a.AccessTokenExpireMS) * time.Millisecond
}

// MetricsConfig configures Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: 4444,
		},
		Room: RoomConfig{
			InactivityPeriodSeconds: 600,
			DBURL:                   "./data/syncstream.db",
		},
		Torrent: TorrentConfig{
			MetadataFolder:     "./data/torrents",
			GlobalCacheSize:    4096, // MB
			AddTimeout:         60,
			SavePath:           "./data/rooms",
			FilesSavePath:      "./data/uploaded-torrents",
			MaxTorrentFileSize: 10 * 1024 * 1024,
			IdleEnabled:        true,
			IdleTimeout:        300,
			StartPaused:        true,
		},
		Auth: AuthConfig{
			AccessTokenExpireMS: int((30 * time.Minute).Milliseconds()),
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOM_INACTIVITY_PERIOD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Room.InactivityPeriodSeconds = n
		}
	}
	if v := os.Getenv("DB_URL"); v != "" {
		cfg.Room.DBURL = v
	}
	if v := os.Getenv("TORRENT_SAVE_PATH"); v != "" {
		cfg.Torrent.SavePath = v
	}
	if v := os.Getenv("TORRENT_FILES_SAVE_PATH"); v != "" {
		cfg.Torrent.FilesSavePath = v
	}
	if v := os.Getenv("MAX_TORRENT_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Torrent.MaxTorrentFileSize = n
		}
	}
	if v := os.Getenv("AUTH_SECRET_KEY"); v != "" {
		cfg.Auth.AuthSecretKey = v
	}
	if v := os.Getenv("PW_SECRET_KEY"); v != "" {
		cfg.Auth.PWSecretKey = v
	}
	if v := os.Getenv("ACCESS_TOKEN_EXPIRE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.AccessTokenExpireMS = n
		}
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = n
		}
	}
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Torrent.MetadataFolder,
		c.Torrent.SavePath,
		c.Torrent.FilesSavePath,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
