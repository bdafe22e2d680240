package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/vango-dev/readyroom/internal/errors"
	"github.com/vango-dev/readyroom/pkg/game"
	"github.com/vango-dev/readyroom/pkg/protocol"
	"github.com/vango-dev/readyroom/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "readyroom.json"

	// DefaultTCPAddress is the raw TCP listen address.
	DefaultTCPAddress = "127.0.0.1:10101"

	// DefaultHTTPAddress is the admin HTTP listen address.
	DefaultHTTPAddress = ":8080"

	// DefaultCapacity is the number of clients the registry can hold.
	DefaultCapacity = 64

	// MaxCapacity is the largest roster a ConnectionAccepted can carry.
	MaxCapacity = protocol.MaxEntries
)

// Config represents the complete readyroom.json configuration.
type Config struct {
	// Listen contains the listen addresses.
	Listen ListenConfig `json:"listen"`

	// Capacity is the maximum number of simultaneously connected clients.
	Capacity int `json:"capacity,omitempty"`

	// Game contains the state machine timing.
	Game GameConfig `json:"game"`

	// Admission contains the accept-loop rate limit.
	Admission AdmissionConfig `json:"admission"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout Duration `json:"writeTimeout,omitempty"`

	// Log contains logger settings.
	Log LogConfig `json:"log"`

	// Archive contains the chat transcript export settings.
	Archive ArchiveConfig `json:"archive"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ListenConfig contains listen addresses. An empty address disables that
// listener.
type ListenConfig struct {
	TCP  string `json:"tcp"`
	HTTP string `json:"http"`
}

// GameConfig mirrors game.Config.
type GameConfig struct {
	CountdownTicks   int      `json:"countdownTicks,omitempty"`
	Tick             Duration `json:"tick,omitempty"`
	TickInterval     Duration `json:"tickInterval,omitempty"`
	ExchangeInterval Duration `json:"exchangeInterval,omitempty"`
	Dwell            Duration `json:"dwell,omitempty"`
	ReplyLines       []string `json:"replyLines,omitempty"`
	MaxChatText      int      `json:"maxChatText,omitempty"`
}

// AdmissionConfig contains the connection rate limit.
type AdmissionConfig struct {
	// Rate is the sustained connections per second. Zero or negative is
	// unlimited.
	Rate float64 `json:"rate"`

	// Burst is the number of connections admitted at once.
	Burst int `json:"burst,omitempty"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// ArchiveConfig contains the S3 transcript export settings.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Prefix  string `json:"prefix,omitempty"`
	Region  string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint string `json:"endpoint,omitempty"`

	// Timeout bounds one upload.
	Timeout Duration `json:"timeout,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	g := game.DefaultConfig()
	s := server.DefaultServerConfig()
	return &Config{
		Listen: ListenConfig{
			TCP:  DefaultTCPAddress,
			HTTP: DefaultHTTPAddress,
		},
		Capacity: DefaultCapacity,
		Game: GameConfig{
			CountdownTicks:   g.CountdownTicks,
			Tick:             Duration(g.Tick),
			TickInterval:     Duration(g.TickInterval),
			ExchangeInterval: Duration(g.ExchangeInterval),
			Dwell:            Duration(g.Dwell),
			ReplyLines:       g.ReplyLines,
			MaxChatText:      g.MaxChatText,
		},
		Admission: AdmissionConfig{
			Rate:  s.AcceptRate,
			Burst: s.AcceptBurst,
		},
		WriteTimeout: Duration(s.WriteTimeout),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Archive: ArchiveConfig{
			Prefix:  "transcripts/",
			Region:  "us-east-1",
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load reads readyroom.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path. Fields absent
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E100").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E101").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.FromError(err, "E101")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E104").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E104").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for zeroed fields.
func (c *Config) applyDefaults() {
	def := New()
	if c.Capacity == 0 {
		c.Capacity = def.Capacity
	}
	if c.Game.CountdownTicks == 0 {
		c.Game.CountdownTicks = def.Game.CountdownTicks
	}
	if c.Game.Tick == 0 {
		c.Game.Tick = def.Game.Tick
	}
	if c.Game.TickInterval == 0 {
		c.Game.TickInterval = def.Game.TickInterval
	}
	if c.Game.ExchangeInterval == 0 {
		c.Game.ExchangeInterval = def.Game.ExchangeInterval
	}
	if c.Game.Dwell == 0 {
		c.Game.Dwell = def.Game.Dwell
	}
	if c.Game.ReplyLines == nil {
		c.Game.ReplyLines = def.Game.ReplyLines
	}
	if c.Game.MaxChatText == 0 {
		c.Game.MaxChatText = def.Game.MaxChatText
	}
	if c.Admission.Burst == 0 {
		c.Admission.Burst = def.Admission.Burst
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = def.Archive.Prefix
	}
	if c.Archive.Region == "" {
		c.Archive.Region = def.Archive.Region
	}
	if c.Archive.Timeout == 0 {
		c.Archive.Timeout = def.Archive.Timeout
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("E102").WithDetail(fmt.Sprintf(format, args...))
	}

	if c.Capacity < 1 || c.Capacity > MaxCapacity {
		return invalid("capacity must be between 1 and %d, got %d", MaxCapacity, c.Capacity)
	}
	if c.Game.CountdownTicks < 0 {
		return invalid("countdownTicks must not be negative")
	}
	if c.Game.MaxChatText < 0 {
		return invalid("maxChatText must not be negative")
	}
	for name, d := range map[string]Duration{
		"game.tick":             c.Game.Tick,
		"game.tickInterval":     c.Game.TickInterval,
		"game.exchangeInterval": c.Game.ExchangeInterval,
		"game.dwell":            c.Game.Dwell,
		"writeTimeout":          c.WriteTimeout,
		"archive.timeout":       c.Archive.Timeout,
	} {
		if d < 0 {
			return invalid("%s must not be negative", name)
		}
	}
	if err := c.ToGame().Validate(); err != nil {
		return errors.New("E102").WithDetail(strings.TrimPrefix(err.Error(), "game: ")).Wrap(err)
	}
	if err := c.ToServer().ValidateConfig(); err != nil {
		return errors.New("E102").WithDetail(strings.TrimPrefix(err.Error(), "server: ")).Wrap(err)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return invalid("log.level must be one of %s", strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return invalid("log.format must be one of %s", strings.Join(logFormats, ", "))
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("E400")
	}
	return nil
}

// ToGame returns the state machine configuration.
func (c *Config) ToGame() *game.Config {
	return &game.Config{
		CountdownTicks:   c.Game.CountdownTicks,
		Tick:             c.Game.Tick.Std(),
		TickInterval:     c.Game.TickInterval.Std(),
		ExchangeInterval: c.Game.ExchangeInterval.Std(),
		Dwell:            c.Game.Dwell.Std(),
		ReplyLines:       slices.Clone(c.Game.ReplyLines),
		MaxChatText:      c.Game.MaxChatText,
	}
}

// ToServer returns the listener configuration.
func (c *Config) ToServer() *server.ServerConfig {
	s := server.DefaultServerConfig()
	s.TCPAddress = c.Listen.TCP
	s.HTTPAddress = c.Listen.HTTP
	s.AcceptRate = c.Admission.Rate
	s.AcceptBurst = c.Admission.Burst
	s.WriteTimeout = c.WriteTimeout.Std()
	return s
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
