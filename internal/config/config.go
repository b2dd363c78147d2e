// Package config provides Viper-based configuration loading for tilenet.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// NetworkConfig holds transport settings shared by the host and client roles.
type NetworkConfig struct {
	// Host is the bind address when hosting and the default target when joining.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the session listener.
	Port int `mapstructure:"port"`
	// ConnectTimeout bounds a client's connection attempt.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// WriteTimeout is the per-write deadline on a connection socket.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadBuffer is the size of the per-connection socket read buffer in bytes.
	ReadBuffer int `mapstructure:"read_buffer"`
	// InboundQueue is the capacity of a connection's decoded-message queue.
	InboundQueue int `mapstructure:"inbound_queue"`
	// OutboundQueue is the capacity of a connection's encoded-frame queue.
	OutboundQueue int `mapstructure:"outbound_queue"`
	// MaxLineLength is the longest inbound line, in bytes, a connection accepts
	// before it is dropped. Zero means unlimited.
	MaxLineLength int `mapstructure:"max_line_length"`
}

// Addr returns the "host:port" address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (n NetworkConfig) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// SessionConfig holds multiplayer session cadence and shutdown settings.
type SessionConfig struct {
	// PollInterval is how often the reader goroutine drains the transport.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// InboxSize is the capacity of the session inbox between reader and simulation.
	InboxSize int `mapstructure:"inbox_size"`
	// TurnDuration is the length of one host turn.
	TurnDuration time.Duration `mapstructure:"turn_duration"`
	// TurnResolution is how often spent action points are advanced within a turn.
	TurnResolution time.Duration `mapstructure:"turn_resolution"`
	// ActionPointsPerTurn is the action point budget accrued over one turn.
	ActionPointsPerTurn float64 `mapstructure:"action_points_per_turn"`
	// StopTimeout bounds how long Quit waits for background goroutines.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// FlushTimeout bounds how long Quit waits for final messages to be written.
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// SimulationConfig holds the external simulation loop settings.
type SimulationConfig struct {
	// TickRate is the number of read/write passes per second.
	TickRate int `mapstructure:"tick_rate"`
}

// TickInterval returns the duration of one simulation tick.
//
// Precondition: TickRate > 0.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// PlayerConfig describes the local player announced to peers.
type PlayerConfig struct {
	Name          string `mapstructure:"name"`
	TileID        int    `mapstructure:"tile_id"`
	Dexterity     int    `mapstructure:"dexterity"`
	LocationIndex int    `mapstructure:"location_index"`
	LevelIndex    int    `mapstructure:"level_index"`
	X             int    `mapstructure:"x"`
	Y             int    `mapstructure:"y"`
}

// NPCConfig locates monster templates spawned when hosting.
type NPCConfig struct {
	// TemplatesDir is a directory of monster YAML files. Empty disables spawning.
	TemplatesDir string `mapstructure:"templates_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, sends log output to a rotating file instead of stderr.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Config is the top-level application configuration.
type Config struct {
	Network    NetworkConfig    `mapstructure:"network"`
	Session    SessionConfig    `mapstructure:"session"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Player     PlayerConfig     `mapstructure:"player"`
	NPC        NPCConfig        `mapstructure:"npc"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateNetwork(c.Network),
		validateSession(c.Session),
		validateSimulation(c.Simulation),
		validatePlayer(c.Player),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateNetwork(n NetworkConfig) error {
	var errs []string
	if n.Host == "" {
		errs = append(errs, "network.host must not be empty")
	}
	if n.Port < 0 || n.Port > 65535 {
		errs = append(errs, fmt.Sprintf("network.port must be 0-65535, got %d", n.Port))
	}
	if n.ConnectTimeout <= 0 {
		errs = append(errs, "network.connect_timeout must be positive")
	}
	if n.WriteTimeout < 0 {
		errs = append(errs, "network.write_timeout must not be negative")
	}
	if n.ReadBuffer < 1 {
		errs = append(errs, fmt.Sprintf("network.read_buffer must be >= 1, got %d", n.ReadBuffer))
	}
	if n.InboundQueue < 1 {
		errs = append(errs, fmt.Sprintf("network.inbound_queue must be >= 1, got %d", n.InboundQueue))
	}
	if n.OutboundQueue < 1 {
		errs = append(errs, fmt.Sprintf("network.outbound_queue must be >= 1, got %d", n.OutboundQueue))
	}
	if n.MaxLineLength < 0 {
		errs = append(errs, fmt.Sprintf("network.max_line_length must be >= 0, got %d", n.MaxLineLength))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.PollInterval <= 0 {
		errs = append(errs, "session.poll_interval must be positive")
	}
	if s.InboxSize < 1 {
		errs = append(errs, fmt.Sprintf("session.inbox_size must be >= 1, got %d", s.InboxSize))
	}
	if s.TurnDuration <= 0 {
		errs = append(errs, "session.turn_duration must be positive")
	}
	if s.TurnResolution <= 0 || s.TurnResolution > s.TurnDuration {
		errs = append(errs, "session.turn_resolution must be positive and not exceed session.turn_duration")
	}
	if s.ActionPointsPerTurn < 0 {
		errs = append(errs, "session.action_points_per_turn must not be negative")
	}
	if s.StopTimeout <= 0 {
		errs = append(errs, "session.stop_timeout must be positive")
	}
	if s.FlushTimeout < 0 {
		errs = append(errs, "session.flush_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	if s.TickRate < 1 || s.TickRate > 1000 {
		return fmt.Errorf("simulation.tick_rate must be 1-1000, got %d", s.TickRate)
	}
	return nil
}

func validatePlayer(p PlayerConfig) error {
	if p.Name == "" {
		return fmt.Errorf("player.name must not be empty")
	}
	if strings.ContainsAny(p.Name, "|\r\n") {
		return fmt.Errorf("player.name must not contain '|' or line breaks")
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with TILENET_ prefix
	v.SetEnvPrefix("TILENET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network.host", "0.0.0.0")
	v.SetDefault("network.port", 9999)
	v.SetDefault("network.connect_timeout", "5s")
	v.SetDefault("network.write_timeout", "5s")
	v.SetDefault("network.read_buffer", 4096)
	v.SetDefault("network.inbound_queue", 256)
	v.SetDefault("network.outbound_queue", 256)
	v.SetDefault("network.max_line_length", 4096)

	v.SetDefault("session.poll_interval", "10ms")
	v.SetDefault("session.inbox_size", 1024)
	v.SetDefault("session.turn_duration", "1s")
	v.SetDefault("session.turn_resolution", "50ms")
	v.SetDefault("session.action_points_per_turn", 100)
	v.SetDefault("session.stop_timeout", "2s")
	v.SetDefault("session.flush_timeout", "500ms")

	v.SetDefault("simulation.tick_rate", 20)

	v.SetDefault("player.name", "Player")
	v.SetDefault("player.tile_id", 0)
	v.SetDefault("player.dexterity", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
}

// Default returns the configuration produced by defaults alone.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("config.Default: defaults are invalid: %v", err))
	}
	return cfg
}
