package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/circuitcast/go/internal/dbconfig"
)

const (
	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"
)

// HostConfig configures the controlling device.
type HostConfig struct {
	Server   ServerConfig  `yaml:"server"`
	Catalog  CatalogConfig `yaml:"catalog"`
	NATS     NATSConfig    `yaml:"nats"`
	Session  SessionConfig `yaml:"session"`
	Outbox   OutboxConfig  `yaml:"outbox"`
	LogLevel string        `yaml:"log_level"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// PublicURL is how stations reach this host; the inbound station
	// endpoint is derived from it.
	PublicURL string `yaml:"public_url"`
}

type CatalogConfig struct {
	Driver         string          `yaml:"driver"` // memory | postgres
	SeedPath       string          `yaml:"seed_path"`
	MigrationsPath string          `yaml:"migrations_path"`
	Database       dbconfig.Config `yaml:"database"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"` // empty disables NATS
	LocatePrefix  string        `yaml:"locate_prefix"`
	LocateTimeout time.Duration `yaml:"locate_timeout"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix"`
}

type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// Stations maps identities to websocket URLs for hosts without NATS.
	Stations map[string]string `yaml:"stations"`
}

type OutboxConfig struct {
	QueueSize  int           `yaml:"queue_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// StationConfig configures one display device.
type StationConfig struct {
	Listen    string `yaml:"listen"`
	PublicURL string `yaml:"public_url"` // websocket URL the host dials
	AliasDB   string `yaml:"alias_db"`   // empty keeps the alias in memory
	// Address overrides the generated pairing code.
	Address        string          `yaml:"address"`
	SeedPath       string          `yaml:"seed_path"`
	NATS           NATSConfig      `yaml:"nats"`
	DriftTolerance time.Duration   `yaml:"drift_tolerance"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
	LogLevel       string          `yaml:"log_level"`
}

type ReconnectConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

func DefaultHost() HostConfig {
	return HostConfig{
		Server: ServerConfig{Addr: ":8080", PublicURL: "http://localhost:8080"},
		Catalog: CatalogConfig{
			Driver:         CatalogMemory,
			MigrationsPath: "go/internal/catalog/migrations",
			Database:       dbconfig.Default(),
		},
		NATS: NATSConfig{
			LocatePrefix:  "circuitcast.stations.locate",
			LocateTimeout: 2 * time.Second,
			Stream:        "CIRCUITCAST_SESSIONS",
			SubjectPrefix: "circuitcast.session",
		},
		Session:  SessionConfig{HeartbeatInterval: time.Second},
		Outbox:   OutboxConfig{QueueSize: 256, MaxRetries: 3, RetryDelay: time.Second},
		LogLevel: "info",
	}
}

func DefaultStation() StationConfig {
	return StationConfig{
		Listen:         ":9090",
		PublicURL:      "ws://localhost:9090/ws",
		NATS:           NATSConfig{LocatePrefix: "circuitcast.stations.locate"},
		DriftTolerance: time.Second,
		Reconnect:      ReconnectConfig{MaxAttempts: 20, Delay: time.Second, MaxDelay: 10 * time.Second},
		LogLevel:       "info",
	}
}

// LoadHost reads path over the defaults, then applies environment overrides.
// An empty path uses defaults and environment only.
//
//	CIRCUITCAST_ADDR, CIRCUITCAST_PUBLIC_URL, CIRCUITCAST_CATALOG_DRIVER,
//	CIRCUITCAST_SEED_PATH, CIRCUITCAST_NATS_URL, CIRCUITCAST_HEARTBEAT,
//	CIRCUITCAST_LOG_LEVEL and the DB_* variables
func LoadHost(path string) (*HostConfig, error) {
	cfg := DefaultHost()
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	applyHostEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// LoadStation is LoadHost for station settings.
//
//	CIRCUITCAST_LISTEN, CIRCUITCAST_PUBLIC_URL, CIRCUITCAST_ALIAS_DB,
//	CIRCUITCAST_ADDRESS, CIRCUITCAST_NATS_URL, CIRCUITCAST_DRIFT_TOLERANCE,
//	CIRCUITCAST_LOG_LEVEL
func LoadStation(path string) (*StationConfig, error) {
	cfg := DefaultStation()
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}

	applyStationEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func readYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyHostEnv(cfg *HostConfig) {
	if v := os.Getenv("CIRCUITCAST_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CIRCUITCAST_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("CIRCUITCAST_CATALOG_DRIVER"); v != "" {
		cfg.Catalog.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("CIRCUITCAST_SEED_PATH"); v != "" {
		cfg.Catalog.SeedPath = v
	}
	if v := os.Getenv("CIRCUITCAST_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CIRCUITCAST_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("CIRCUITCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.Catalog.Database.ApplyEnv()
}

func applyStationEnv(cfg *StationConfig) {
	if v := os.Getenv("CIRCUITCAST_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CIRCUITCAST_PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	}
	if v := os.Getenv("CIRCUITCAST_ALIAS_DB"); v != "" {
		cfg.AliasDB = v
	}
	if v := os.Getenv("CIRCUITCAST_ADDRESS"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("CIRCUITCAST_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("CIRCUITCAST_DRIFT_TOLERANCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DriftTolerance = d
		}
	}
	if v := os.Getenv("CIRCUITCAST_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	if v := os.Getenv("CIRCUITCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// StationCallbackURL is the websocket endpoint stations dial back to.
func (c *HostConfig) StationCallbackURL() string {
	u, err := url.Parse(c.Server.PublicURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/station"
	return u.String()
}

func (c *HostConfig) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if _, err := url.Parse(c.Server.PublicURL); err != nil || c.Server.PublicURL == "" {
		return fmt.Errorf("server.public_url must be a valid URL")
	}
	switch c.Catalog.Driver {
	case CatalogMemory:
	case CatalogPostgres:
		if c.Catalog.Database.Host == "" {
			return fmt.Errorf("catalog.database.host is required")
		}
		if c.Catalog.Database.Database == "" {
			return fmt.Errorf("catalog.database.database is required")
		}
	default:
		return fmt.Errorf("catalog.driver %q: want %s or %s", c.Catalog.Driver, CatalogMemory, CatalogPostgres)
	}
	if c.Session.HeartbeatInterval <= 0 {
		return fmt.Errorf("session.heartbeat_interval must be positive")
	}
	return nil
}

func (c *StationConfig) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.PublicURL == "" {
		return fmt.Errorf("public_url is required")
	}
	if c.DriftTolerance < 0 {
		return fmt.Errorf("drift_tolerance must not be negative")
	}
	if c.Reconnect.Delay < 0 || c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect settings must not be negative")
	}
	return nil
}
