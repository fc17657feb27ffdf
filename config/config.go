// ABOUTME: flowgraph configuration: optional YAML file, then FLOWGRAPH_* environment overrides.
// ABOUTME: Enforces the security constraint that remote binds require a signing key.

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrRemoteWithoutKey = errors.New(
		"FLOWGRAPH_ALLOW_REMOTE is true but FLOWGRAPH_JWT_SECRET is not set; refusing to start without authentication",
	)
	ErrNonLoopbackBind = errors.New(
		"FLOWGRAPH_BIND is a non-loopback address but FLOWGRAPH_ALLOW_REMOTE is not true; set FLOWGRAPH_ALLOW_REMOTE=true and FLOWGRAPH_JWT_SECRET to allow remote access",
	)
)

// DefaultBind is the loopback address the tree service listens on by default.
const DefaultBind = "127.0.0.1:7790"

// Config holds client and server settings.
type Config struct {
	ServerURL      string        `yaml:"server_url"`      // Tree service base URL (FLOWGRAPH_SERVER_URL)
	Token          string        `yaml:"token"`           // Bearer token sent by the client (FLOWGRAPH_TOKEN)
	User           string        `yaml:"user"`            // Caller identity without a token (FLOWGRAPH_USER)
	Bind           string        `yaml:"bind"`            // Listen address for serve (FLOWGRAPH_BIND)
	DataDir        string        `yaml:"data_dir"`        // Database directory (FLOWGRAPH_DATA_DIR)
	JWTSecret      string        `yaml:"jwt_secret"`      // HS256 signing key for serve (FLOWGRAPH_JWT_SECRET)
	AllowRemote    bool          `yaml:"allow_remote"`    // Permit non-loopback binds (FLOWGRAPH_ALLOW_REMOTE)
	SessionTTL     time.Duration `yaml:"session_ttl"`     // Idle editing session lifetime
	MaxSessions    int           `yaml:"max_sessions"`    // Open editing session cap
	RequestTimeout time.Duration `yaml:"request_timeout"` // Client HTTP timeout
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	user := os.Getenv("USER")
	if user == "" {
		user = "anonymous"
	}
	return &Config{
		ServerURL:      "http://" + DefaultBind,
		User:           user,
		Bind:           DefaultBind,
		SessionTTL:     30 * time.Minute,
		MaxSessions:    32,
		RequestTimeout: 30 * time.Second,
	}
}

// Load reads the YAML file at path over the defaults, then applies environment
// overrides and validates the result. An empty path or a missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ServerURL = envOrDefault("FLOWGRAPH_SERVER_URL", c.ServerURL)
	c.Token = envOrDefault("FLOWGRAPH_TOKEN", c.Token)
	c.User = envOrDefault("FLOWGRAPH_USER", c.User)
	c.Bind = envOrDefault("FLOWGRAPH_BIND", c.Bind)
	c.DataDir = envOrDefault("FLOWGRAPH_DATA_DIR", c.DataDir)
	c.JWTSecret = envOrDefault("FLOWGRAPH_JWT_SECRET", c.JWTSecret)
	if v := os.Getenv("FLOWGRAPH_ALLOW_REMOTE"); v != "" {
		c.AllowRemote = v == "true" || v == "1" || v == "yes"
	}
}

// Validate refuses remote access without authentication and non-loopback binds
// without an explicit opt-in.
func (c *Config) Validate() error {
	if c.AllowRemote && c.JWTSecret == "" {
		return ErrRemoteWithoutKey
	}
	if c.AllowRemote {
		return nil
	}
	// Only 127.0.0.0/8, ::1, and "localhost" are considered safe.
	host, _, err := net.SplitHostPort(c.Bind)
	if err != nil || host == "" {
		return nil
	}
	ip := net.ParseIP(host)
	switch {
	case ip != nil && ip.IsLoopback():
	case ip != nil:
		return fmt.Errorf("%w: FLOWGRAPH_BIND=%s", ErrNonLoopbackBind, c.Bind)
	case host == "localhost":
	default:
		return fmt.Errorf("%w: FLOWGRAPH_BIND=%s", ErrNonLoopbackBind, c.Bind)
	}
	return nil
}

// DatabasePath is the sqlite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tree.db")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
