// Package settings holds the OMERO connection parameters and persists them
// to a small YAML settings file.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/spf13/viper"
)

// Settings keys, grouped under "omero" in the settings file.
const (
	KeyHost     = "omero.host"
	KeyPort     = "omero.port"
	KeyUsername = "omero.username"
	KeyPassword = "omero.password"
)

// ConnectionConfig holds the four connection parameters. Port is kept as
// the string the user typed; Validate checks it is a usable port number.
type ConnectionConfig struct {
	Host     string
	Port     string
	Username string
	Password string
}

// IsReady reports whether all four fields are filled in.
func (c ConnectionConfig) IsReady() bool {
	return c.Host != "" && c.Port != "" && c.Username != "" && c.Password != ""
}

// PortNumber parses Port.
func (c ConnectionConfig) PortNumber() (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", c.Port)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// Validate checks that the config is ready and the port is in range.
func (c ConnectionConfig) Validate() error {
	if !c.IsReady() {
		return fmt.Errorf("connection settings incomplete: host, port, username and password are required")
	}
	if _, err := c.PortNumber(); err != nil {
		return err
	}
	return nil
}

// String never includes the password.
func (c ConnectionConfig) String() string {
	return fmt.Sprintf("%s@%s:%s", c.Username, c.Host, c.Port)
}

// Store reads and writes ConnectionConfig from a settings file. It uses its
// own viper instance so it never touches the application configuration.
type Store struct {
	path string
}

// NewStore creates a store backed by the YAML file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the settings file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OMEROWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{KeyHost, KeyPort, KeyUsername, KeyPassword} {
		v.SetDefault(key, "")
	}
	return v
}

// Load reads the connection settings. A missing or unreadable file yields
// empty fields rather than an error.
func (s *Store) Load() ConnectionConfig {
	v := s.newViper()
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("settings_read_skipped", "path", s.path, "error", err)
	}

	return ConnectionConfig{
		Host:     v.GetString(KeyHost),
		Port:     v.GetString(KeyPort),
		Username: v.GetString(KeyUsername),
		Password: v.GetString(KeyPassword),
	}
}

// Save writes all four fields back without validating them.
func (s *Store) Save(cfg ConnectionConfig) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create settings directory")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set(KeyHost, cfg.Host)
	v.Set(KeyPort, cfg.Port)
	v.Set(KeyUsername, cfg.Username)
	v.Set(KeyPassword, cfg.Password)

	// The file holds a password; create it owner-only.
	v.SetConfigPermissions(0600)
	if err := v.WriteConfigAs(s.path); err != nil {
		slog.Error("settings_write_failed", "path", s.path, "error", err)
		return errors.Wrap(err, "failed to write settings")
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		return errors.Wrap(err, "failed to restrict settings permissions")
	}

	slog.Info("settings_saved", "path", s.path, "connection", cfg.String(), "ready", cfg.IsReady())
	return nil
}
