package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Board     BoardConfig     `yaml:"board"`
	Client    ClientConfig    `yaml:"client"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:""`
}

// BoardConfig holds the time horizons shared by server rooms and clients.
type BoardConfig struct {
	TrailLifetime   time.Duration `yaml:"trail_lifetime" env:"BOARD_TRAIL_LIFETIME" env-default:"7500ms"`
	PeerInactivity  time.Duration `yaml:"peer_inactivity" env:"BOARD_PEER_INACTIVITY" env-default:"30s"`
	CursorStaleness time.Duration `yaml:"cursor_staleness" env:"BOARD_CURSOR_STALENESS" env-default:"2s"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"BOARD_CLEANUP_INTERVAL" env-default:"1s"`
	HitRadius       float64       `yaml:"hit_radius" env:"BOARD_HIT_RADIUS" env-default:"10"`
}

type ClientConfig struct {
	ServerURL      string        `yaml:"server_url" env:"CLIENT_SERVER_URL" env-default:""`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"CLIENT_RECONNECT_DELAY" env-default:"2s"`
	HouseCode      string        `yaml:"house_code" env:"CLIENT_HOUSE_CODE" env-default:""`
	RoomName       string        `yaml:"room_name" env:"CLIENT_ROOM_NAME" env-default:""`
	DisplayName    string        `yaml:"display_name" env:"CLIENT_DISPLAY_NAME" env-default:""`
}

type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled" env:"DISCOVERY_ENABLED" env-default:"false"`
	Instance string `yaml:"instance" env:"DISCOVERY_INSTANCE" env-default:""`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

// Load reads the config from path when it exists and falls back to
// environment variables otherwise. Used by the client, which is often
// started without a config file.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
				return nil, err
			}
			cfg.setDefaults()
			return &cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if c.Board.TrailLifetime <= 0 {
		c.Board.TrailLifetime = 7500 * time.Millisecond
	}
	if c.Board.PeerInactivity <= 0 {
		c.Board.PeerInactivity = 30 * time.Second
	}
	if c.Board.CursorStaleness <= 0 {
		c.Board.CursorStaleness = 2 * time.Second
	}
	if c.Board.CleanupInterval <= 0 {
		c.Board.CleanupInterval = time.Second
	}
	if c.Board.HitRadius <= 0 {
		c.Board.HitRadius = 10
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = "ws://localhost:8080/ws"
	}
	if c.Client.ReconnectDelay <= 0 {
		c.Client.ReconnectDelay = 2 * time.Second
	}
	if c.Client.DisplayName == "" {
		c.Client.DisplayName = "anonymous"
	}
	if c.Discovery.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Discovery.Instance = host
		} else {
			c.Discovery.Instance = "trailboard"
		}
	}
}
