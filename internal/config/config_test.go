package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q, want :8080", cfg.Addr)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.Path != "lists.db" {
		t.Fatalf("db = %+v", cfg.DB)
	}
	if cfg.Log.Level != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.Log.Level)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.toml")
	body := `
addr = ":9090"

[log]
level = "debug"
format = "json"

[db]
driver = "postgres"
url = "postgres://file@localhost/lists"
pool_size = 4
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LISTS_DB_URL", "postgres://env@localhost/lists")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Log.Level != slog.LevelDebug || cfg.Log.Format != "json" {
		t.Fatalf("log = %+v", cfg.Log)
	}
	if cfg.DB.URL != "postgres://env@localhost/lists" {
		t.Fatalf("env should override file url, got %q", cfg.DB.URL)
	}
	if cfg.DB.PoolSize != 4 {
		t.Fatalf("pool size = %d", cfg.DB.PoolSize)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("LISTS_DB_DRIVER", "mysql")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.DB.Driver = DriverPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres without url")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
