// ABOUTME: Tests for configuration loading: YAML file, environment overrides, and bind validation.
// ABOUTME: Also covers the .env loader and XDG directory resolution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FLOWGRAPH_SERVER_URL", "FLOWGRAPH_TOKEN", "FLOWGRAPH_USER", "FLOWGRAPH_BIND",
		"FLOWGRAPH_DATA_DIR", "FLOWGRAPH_JWT_SECRET", "FLOWGRAPH_ALLOW_REMOTE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != DefaultBind {
		t.Errorf("bind = %q", cfg.Bind)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.SessionTTL)
	}
	if filepath.Base(cfg.DataDir) != "flowgraph" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.DatabasePath() != filepath.Join(cfg.DataDir, "tree.db") {
		t.Errorf("database path = %q", cfg.DatabasePath())
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
server_url: http://tree.internal:9000
user: bob
data_dir: /var/lib/flowgraph
session_ttl: 5m
max_sessions: 4
`)
	t.Setenv("FLOWGRAPH_USER", "carol")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "http://tree.internal:9000" {
		t.Errorf("server url = %q", cfg.ServerURL)
	}
	if cfg.User != "carol" {
		t.Errorf("user = %q, want env override", cfg.User)
	}
	if cfg.DataDir != "/var/lib/flowgraph" || cfg.MaxSessions != 4 || cfg.SessionTTL != 5*time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", "server_url: [unterminated\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidateBind(t *testing.T) {
	tests := []struct {
		name   string
		bind   string
		remote bool
		secret string
		want   error
	}{
		{"loopback v4", "127.0.0.1:7790", false, "", nil},
		{"loopback v6", "[::1]:7790", false, "", nil},
		{"localhost", "localhost:7790", false, "", nil},
		{"public without opt-in", "0.0.0.0:7790", false, "", ErrNonLoopbackBind},
		{"hostname without opt-in", "tree.example.com:7790", false, "", ErrNonLoopbackBind},
		{"remote without key", "0.0.0.0:7790", true, "", ErrRemoteWithoutKey},
		{"remote with key", "0.0.0.0:7790", true, "s3cret", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Bind: tt.bind, AllowRemote: tt.remote, JWTSecret: tt.secret}
			err := cfg.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAllowRemoteFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLOWGRAPH_BIND", "0.0.0.0:7790")
	t.Setenv("FLOWGRAPH_ALLOW_REMOTE", "true")
	if _, err := Load(""); !errors.Is(err, ErrRemoteWithoutKey) {
		t.Fatalf("err = %v, want ErrRemoteWithoutKey", err)
	}
	t.Setenv("FLOWGRAPH_JWT_SECRET", "s3cret")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.AllowRemote || cfg.JWTSecret != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", `# comment
TEST_FG_A=hello
export TEST_FG_B="quoted value"
TEST_FG_C='single'
TEST_FG_D=a=b
TEST_FG_KEEP=new
not a pair
`)
	for _, k := range []string{"TEST_FG_A", "TEST_FG_B", "TEST_FG_C", "TEST_FG_D"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("TEST_FG_KEEP", "existing")

	LoadDotEnv(path)

	want := map[string]string{
		"TEST_FG_A":    "hello",
		"TEST_FG_B":    "quoted value",
		"TEST_FG_C":    "single",
		"TEST_FG_D":    "a=b",
		"TEST_FG_KEEP": "existing",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	LoadDotEnv(filepath.Join(t.TempDir(), "nope.env"))
}

func TestDefaultDirsHonorXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")

	data, err := DefaultDataDir()
	if err != nil || data != "/tmp/xdg-data/flowgraph" {
		t.Errorf("data dir = %q, %v", data, err)
	}
	conf, err := DefaultConfigDir()
	if err != nil || conf != "/tmp/xdg-config/flowgraph" {
		t.Errorf("config dir = %q, %v", conf, err)
	}
	if got := DefaultConfigPath(); got != "/tmp/xdg-config/flowgraph/config.yaml" {
		t.Errorf("config path = %q", got)
	}
}

func TestDefaultDirsFallBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")

	data, _ := DefaultDataDir()
	if data != filepath.Join(home, ".local", "share", "flowgraph") {
		t.Errorf("data dir = %q", data)
	}
	conf, _ := DefaultConfigDir()
	if conf != filepath.Join(home, ".config", "flowgraph") {
		t.Errorf("config dir = %q", conf)
	}
}
