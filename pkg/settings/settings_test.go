package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestIsReady(t *testing.T) {
	full := ConnectionConfig{Host: "omero.example.org", Port: "4064", Username: "alice", Password: "x"}

	tests := []struct {
		name   string
		mutate func(*ConnectionConfig)
		want   bool
	}{
		{"all set", func(c *ConnectionConfig) {}, true},
		{"no host", func(c *ConnectionConfig) { c.Host = "" }, false},
		{"no port", func(c *ConnectionConfig) { c.Port = "" }, false},
		{"no username", func(c *ConnectionConfig) { c.Username = "" }, false},
		{"no password", func(c *ConnectionConfig) { c.Password = "" }, false},
		{"all empty", func(c *ConnectionConfig) { *c = ConnectionConfig{} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			if got := cfg.IsReady(); got != tt.want {
				t.Errorf("IsReady() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate_Port(t *testing.T) {
	cfg := ConnectionConfig{Host: "h", Username: "u", Password: "p"}

	for _, port := range []string{"0", "65536", "abc", "-1"} {
		cfg.Port = port
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for port %q", port)
		}
	}

	for _, port := range []string{"1", "4064", "65535", " 443 "} {
		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			t.Errorf("unexpected error for port %q: %v", port, err)
		}
	}
}

func TestString_HidesPassword(t *testing.T) {
	cfg := ConnectionConfig{Host: "h", Port: "1", Username: "u", Password: "hunter2"}
	if strings.Contains(cfg.String(), "hunter2") {
		t.Errorf("password leaked: %s", cfg.String())
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope", "settings.yaml"))

	cfg := store.Load()
	if cfg != (ConnectionConfig{}) {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "settings.yaml")
	store := NewStore(path)

	want := ConnectionConfig{Host: "omero.example.org", Port: "4064", Username: "alice", Password: "x"}
	if err := store.Save(want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("settings file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("settings mode = %v, want 0600", info.Mode().Perm())
	}

	if got := store.Load(); got != want {
		t.Errorf("loaded %+v, want %+v", got, want)
	}
}

func TestStore_SaveRestrictsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("omero:\n  host: old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewStore(path).Save(ConnectionConfig{Host: "h", Port: "443", Username: "u", Password: "p"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("settings mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestStore_SaveDoesNotValidate(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.yaml"))

	partial := ConnectionConfig{Host: "only-host"}
	if err := store.Save(partial); err != nil {
		t.Fatalf("save of partial config failed: %v", err)
	}
	if got := store.Load(); got.Host != "only-host" || got.IsReady() {
		t.Errorf("unexpected loaded config %+v", got)
	}
}

func TestStore_EnvOverride(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "settings.yaml"))
	if err := store.Save(ConnectionConfig{Host: "file-host", Port: "4064", Username: "u", Password: "p"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OMEROWATCH_OMERO_HOST", "env-host")

	if got := store.Load().Host; got != "env-host" {
		t.Errorf("host = %q, want env-host", got)
	}
}
