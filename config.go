package main

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the tracker's declarative document (spec.md §6): logging level,
// console-log interval, statistics enable, database engine selection,
// persistence enable/interval, admin token, feature flags, sweeper
// intervals, and server binds. The fields handled by applyEnvOverrides
// (log level, database engine and DSN, admin token, HTTP bind, persistence
// enable and interval, and the whitelist/blacklist/keys/users flags) can be
// overridden by a correspondingly named GOTRACK_<FIELD> environment
// variable; the other fields have no environment override.
type Config struct {
	LogLevel           string `yaml:"log_level"`
	ConsoleLogInterval int    `yaml:"console_log_interval"` // seconds
	StatisticsEnable   bool   `yaml:"statistics_enable"`

	DBEngine            string `yaml:"db_engine"` // sqlite3 | mysql | pgsql
	DBDSN               string `yaml:"db_dsn"`
	PersistenceEnable   bool   `yaml:"persistence_enable"`
	PersistenceInterval int    `yaml:"persistence_interval"` // seconds, default 60

	AdminToken string `yaml:"admin_token"`

	FeatureWhitelist bool `yaml:"feature_whitelist"`
	FeatureBlacklist bool `yaml:"feature_blacklist"`
	FeatureKeys      bool `yaml:"feature_keys"`
	FeatureUsers     bool `yaml:"feature_users"`
	FeatureSwagger   bool `yaml:"feature_swagger"`

	KeysCleanupIntervalSec int `yaml:"keys_cleanup_interval_sec"`

	AnnounceIntervalSec    int `yaml:"announce_interval_sec"`
	AnnounceIntervalMinSec int `yaml:"announce_interval_min_sec"`

	PeersCleanupIntervalSec int `yaml:"peers_cleanup_interval_sec"`
	PeerTimeoutSec          int `yaml:"peer_timeout_sec"`
	PeersReturnedDefault    int `yaml:"peers_returned_default"`
	PeersReturnedMax        int `yaml:"peers_returned_max"`
	PeersCleanupThreads     int `yaml:"peers_cleanup_threads"`

	InsertVacant bool `yaml:"insert_vacant"`

	WatchConfig bool `yaml:"watch_config"`

	TrustedProxies []string `yaml:"trusted_proxies"`

	UDPBinds []BindConfig `yaml:"udp_binds"`
	HTTPBind string       `yaml:"http_bind"`
}

// BindConfig names one listener: family, address, and optional TLS
// material (TLS termination itself is an external collaborator, per
// spec.md §1; only the bind shape is specified here).
type BindConfig struct {
	Family  string `yaml:"family"` // v4 | v6
	Address string `yaml:"address"`
	CertPEM string `yaml:"cert_pem"`
	KeyPEM  string `yaml:"key_pem"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ConsoleLogInterval == 0 {
		cfg.ConsoleLogInterval = 60
	}
	if cfg.PersistenceInterval == 0 {
		cfg.PersistenceInterval = 60
	}
	if cfg.KeysCleanupIntervalSec == 0 {
		cfg.KeysCleanupIntervalSec = 300
	}
	if cfg.AnnounceIntervalSec == 0 {
		cfg.AnnounceIntervalSec = 1800
	}
	if cfg.AnnounceIntervalMinSec == 0 {
		cfg.AnnounceIntervalMinSec = 900
	}
	if cfg.PeersCleanupIntervalSec == 0 {
		cfg.PeersCleanupIntervalSec = 300
	}
	if cfg.PeerTimeoutSec == 0 {
		cfg.PeerTimeoutSec = 3600
	}
	if cfg.PeersReturnedDefault == 0 {
		cfg.PeersReturnedDefault = 50
	}
	if cfg.PeersReturnedMax == 0 {
		cfg.PeersReturnedMax = 74 // MaxPeersReturned, internal/codec
	}
	if cfg.PeersCleanupThreads == 0 {
		cfg.PeersCleanupThreads = 256 // one per shard, spec.md §4.9
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = ":6881"
	}
}

// applyEnvOverrides generalizes the teacher's plain os.Getenv usage
// elsewhere (db.go's DSN assembly) into an env-override layer covering the
// fields listed on Config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOTRACK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GOTRACK_DB_ENGINE"); v != "" {
		cfg.DBEngine = v
	}
	if v := os.Getenv("GOTRACK_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("GOTRACK_ADMIN_TOKEN"); v != "" {
		cfg.AdminToken = v
	}
	if v := os.Getenv("GOTRACK_HTTP_BIND"); v != "" {
		cfg.HTTPBind = v
	}
	if v := os.Getenv("GOTRACK_PERSISTENCE_ENABLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PersistenceEnable = b
		}
	}
	if v := os.Getenv("GOTRACK_PERSISTENCE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PersistenceInterval = n
		}
	}
	if v := os.Getenv("GOTRACK_FEATURE_WHITELIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FeatureWhitelist = b
		}
	}
	if v := os.Getenv("GOTRACK_FEATURE_BLACKLIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FeatureBlacklist = b
		}
	}
	if v := os.Getenv("GOTRACK_FEATURE_KEYS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FeatureKeys = b
		}
	}
	if v := os.Getenv("GOTRACK_FEATURE_USERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FeatureUsers = b
		}
	}
}

func (c *Config) announceInterval() time.Duration {
	return time.Duration(c.AnnounceIntervalSec) * time.Second
}

func (c *Config) announceIntervalMin() time.Duration {
	return time.Duration(c.AnnounceIntervalMinSec) * time.Second
}
