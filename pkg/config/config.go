// Package config loads the tw-reminders settings from
// $XDG_CONFIG_HOME/tw-reminders/config.yaml and TW_REMINDERS_* variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/reconcile"
	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/state"
	"github.com/harrisonrobin/twreminders/pkg/util"
)

const (
	xdgAppName     = "tw-reminders"
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "TW_REMINDERS"
)

// Remote backends.
const (
	RemoteCommand = "command"
	RemoteGoogle  = "google"
)

// ErrInvalidConfig wraps every problem with the configuration file or its
// values. Callers treat it as fatal.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DataDir     string       `mapstructure:"data_dir" yaml:"data_dir"`
	Task        TaskConfig   `mapstructure:"task" yaml:"task"`
	Remote      string       `mapstructure:"remote" yaml:"remote"`
	Agent       AgentConfig  `mapstructure:"agent" yaml:"agent"`
	DefaultList string       `mapstructure:"default_list" yaml:"default_list"`
	// PendingOnly fetches only open reminders. A reminder completed
	// remotely then looks deleted, and its local task is deleted instead
	// of completed.
	PendingOnly bool         `mapstructure:"pending_only" yaml:"pending_only"`
	State       StateConfig  `mapstructure:"state" yaml:"state"`
	Google      GoogleConfig `mapstructure:"google" yaml:"google"`
	Log         LogConfig    `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, empty when none existed.
	File string `mapstructure:"-" yaml:"-"`
}

type TaskConfig struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
	Data   string `mapstructure:"data" yaml:"data"`
}

type AgentConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MarshalYAML writes the timeout as a duration string ("10s").
func (a AgentConfig) MarshalYAML() (any, error) {
	return struct {
		Path    string `yaml:"path"`
		Timeout string `yaml:"timeout"`
	}{a.Path, a.Timeout.String()}, nil
}

type StateConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

type GoogleConfig struct {
	Credentials string `mapstructure:"credentials" yaml:"credentials"`
	Token       string `mapstructure:"token" yaml:"token"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/tw-reminders, falling back to
// ~/.config/tw-reminders.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

// DefaultDataDir returns $XDG_DATA_HOME/tw-reminders, falling back to
// ~/.local/share/tw-reminders.
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, xdgAppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", xdgAppName), nil
}

// GetConfigPath returns the default config file location.
func GetConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName+"."+configFileType), nil
}

func setDefaults(v *viper.Viper) error {
	configDir, err := DefaultConfigDir()
	if err != nil {
		return err
	}
	dataDir, err := DefaultDataDir()
	if err != nil {
		return err
	}
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("task.binary", "task")
	v.SetDefault("task.data", "")
	v.SetDefault("remote", RemoteCommand)
	v.SetDefault("agent.path", "tw-reminders-listener")
	v.SetDefault("agent.timeout", reminders.DefaultTimeout)
	v.SetDefault("default_list", util.DefaultList)
	v.SetDefault("pending_only", false)
	v.SetDefault("state.backend", state.BackendJSON)
	v.SetDefault("google.credentials", filepath.Join(configDir, "credentials.json"))
	v.SetDefault("google.token", filepath.Join(configDir, "token.json"))
	v.SetDefault("log.level", "info")
	return nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() (*Config, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configFile, or config.yaml in the default config directory
// when configFile is empty. A missing default file is not an error; a
// missing explicit file is. Environment variables override the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v); err != nil {
		return nil, fmt.Errorf("resolve default directories: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		configDir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrInvalidConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that have a fixed set of choices.
func (c *Config) Validate() error {
	var problems []string
	if c.DataDir == "" {
		problems = append(problems, "data_dir is empty")
	}
	switch c.Remote {
	case RemoteCommand:
		if c.Agent.Path == "" {
			problems = append(problems, "agent.path is empty")
		}
	case RemoteGoogle:
	default:
		problems = append(problems, fmt.Sprintf("remote %q is not one of command, google", c.Remote))
	}
	if c.Agent.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("agent.timeout %s must be positive", c.Agent.Timeout))
	}
	switch c.State.Backend {
	case state.BackendJSON, state.BackendSQLite:
	default:
		problems = append(problems, fmt.Sprintf("state.backend %q is not one of json, sqlite", c.State.Backend))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
	return l, nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

// StatePath is the file the mapping store persists to.
func (c *Config) StatePath() string {
	return state.Path(c.State.Backend, c.DataDir)
}

// LocationsPath is the location directory file.
func (c *Config) LocationsPath() string {
	return filepath.Join(c.DataDir, locations.FileName)
}

// LockPath is the run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, reconcile.LockFileName)
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

const pendingOnlyWarning = "# pending_only: true deletes the local task of a reminder completed remotely\n" +
	"# instead of completing it.\n"

// Save writes cfg to path as YAML, creating the directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	b, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, append([]byte(pendingOnlyWarning), b...), 0600)
}
