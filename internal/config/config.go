package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"roomhub/pkg/types"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http" validate:"required"`
	WebSocket *WebSocketConfig `json:"websocket" validate:"required"`
	Room      *RoomConfig      `json:"room" validate:"required"`
	Storage   *StorageConfig   `json:"storage" validate:"required"`
	Log       *LogConfig       `json:"log" validate:"required"`
}

type HTTPConfig struct {
	Host         string        `json:"host" validate:"required"`
	Port         int           `json:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `json:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `json:"write_timeout" validate:"gt=0"`
	StaticPath   string        `json:"static_path" validate:"required"`
}

// FUNCTIONAL DISCOVERY: The pong wait must outlast the ping interval or every
// healthy peer would time out between heartbeats
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval" validate:"gt=0"`
	ReadTimeout    time.Duration `json:"read_timeout" validate:"gt=0,gtfield=PingInterval"`
	WriteTimeout   time.Duration `json:"write_timeout" validate:"gt=0"`
	BufferSize     int           `json:"buffer_size" validate:"min=1"`
	MaxMessageSize int64         `json:"max_message_size" validate:"min=1"`
}

type RoomConfig struct {
	Width    float64  `json:"width" validate:"gt=0"`
	Height   float64  `json:"height" validate:"gt=0"`
	Patterns []string `json:"patterns" validate:"dive,required"`
}

type StorageConfig struct {
	Backend      string        `json:"backend" validate:"oneof=disk sqlite badger"`
	ImagePath    string        `json:"image_path" validate:"required_if=Backend disk"`
	DatabasePath string        `json:"database_path" validate:"required_if=Backend sqlite"`
	BadgerPath   string        `json:"badger_path" validate:"required_if=Backend badger"`
	Timeout      time.Duration `json:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `json:"pretty"`
}

// FUNCTIONAL DISCOVERY: Defaults serve on loopback with disk-backed images
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			StaticPath:   "./static",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 16 << 20,
		},
		Room: &RoomConfig{
			Width:    types.DefaultRoomWidth,
			Height:   types.DefaultRoomHeight,
			Patterns: append([]string(nil), types.DefaultPatterns...),
		},
		Storage: &StorageConfig{
			Backend:      "disk",
			ImagePath:    "./images",
			DatabasePath: "./roomhub.db",
			BadgerPath:   "./roomhub.badger",
			Timeout:      10 * time.Second,
		},
		Log: &LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Validate checks every section against its struct tags
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envOverrides lists every ROOMHUB_* key; nil means "not set"
type envOverrides struct {
	HTTPHost            *string        `env:"ROOMHUB_HTTP_HOST"`
	HTTPPort            *int           `env:"ROOMHUB_HTTP_PORT"`
	HTTPReadTimeout     *time.Duration `env:"ROOMHUB_HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout    *time.Duration `env:"ROOMHUB_HTTP_WRITE_TIMEOUT"`
	StaticPath          *string        `env:"ROOMHUB_STATIC_PATH"`
	WSPingInterval      *time.Duration `env:"ROOMHUB_WEBSOCKET_PING_INTERVAL"`
	WSReadTimeout       *time.Duration `env:"ROOMHUB_WEBSOCKET_READ_TIMEOUT"`
	WSWriteTimeout      *time.Duration `env:"ROOMHUB_WEBSOCKET_WRITE_TIMEOUT"`
	WSBufferSize        *int           `env:"ROOMHUB_WEBSOCKET_BUFFER_SIZE"`
	WSMaxMessageSize    *int64         `env:"ROOMHUB_WEBSOCKET_MAX_MESSAGE_SIZE"`
	RoomWidth           *float64       `env:"ROOMHUB_ROOM_WIDTH"`
	RoomHeight          *float64       `env:"ROOMHUB_ROOM_HEIGHT"`
	RoomPatterns        *string        `env:"ROOMHUB_ROOM_PATTERNS"`
	StorageBackend      *string        `env:"ROOMHUB_STORAGE_BACKEND"`
	StorageImagePath    *string        `env:"ROOMHUB_IMAGE_PATH"`
	StorageDatabasePath *string        `env:"ROOMHUB_DATABASE_PATH"`
	StorageBadgerPath   *string        `env:"ROOMHUB_BADGER_PATH"`
	StorageTimeout      *time.Duration `env:"ROOMHUB_STORAGE_TIMEOUT"`
	LogLevel            *string        `env:"ROOMHUB_LOG_LEVEL"`
	LogPretty           *bool          `env:"ROOMHUB_LOG_PRETTY"`
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Unset keys keep their defaults; a malformed value is an error rather than silently ignored
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()

	var overrides envOverrides
	if _, err := env.UnmarshalFromEnviron(&overrides); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	overrides.apply(config)

	return config, nil
}

func (o *envOverrides) apply(c *Config) {
	setString(&c.HTTP.Host, o.HTTPHost)
	setInt(&c.HTTP.Port, o.HTTPPort)
	setDuration(&c.HTTP.ReadTimeout, o.HTTPReadTimeout)
	setDuration(&c.HTTP.WriteTimeout, o.HTTPWriteTimeout)
	setString(&c.HTTP.StaticPath, o.StaticPath)

	setDuration(&c.WebSocket.PingInterval, o.WSPingInterval)
	setDuration(&c.WebSocket.ReadTimeout, o.WSReadTimeout)
	setDuration(&c.WebSocket.WriteTimeout, o.WSWriteTimeout)
	setInt(&c.WebSocket.BufferSize, o.WSBufferSize)
	if o.WSMaxMessageSize != nil {
		c.WebSocket.MaxMessageSize = *o.WSMaxMessageSize
	}

	if o.RoomWidth != nil {
		c.Room.Width = *o.RoomWidth
	}
	if o.RoomHeight != nil {
		c.Room.Height = *o.RoomHeight
	}
	// TECHNICAL DISCOVERY: Patterns are separated by ";;" since regexes routinely contain commas
	if o.RoomPatterns != nil {
		c.Room.Patterns = strings.Split(*o.RoomPatterns, ";;")
	}

	setString(&c.Storage.Backend, o.StorageBackend)
	setString(&c.Storage.ImagePath, o.StorageImagePath)
	setString(&c.Storage.DatabasePath, o.StorageDatabasePath)
	setString(&c.Storage.BadgerPath, o.StorageBadgerPath)
	setDuration(&c.Storage.Timeout, o.StorageTimeout)

	setString(&c.Log.Level, o.LogLevel)
	if o.LogPretty != nil {
		c.Log.Pretty = *o.LogPretty
	}
}

func setString(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *time.Duration) {
	if src != nil {
		*dst = *src
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		StaticPath   string `json:"static_path"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval   string `json:"ping_interval"`
		ReadTimeout    string `json:"read_timeout"`
		WriteTimeout   string `json:"write_timeout"`
		BufferSize     int    `json:"buffer_size"`
		MaxMessageSize int64  `json:"max_message_size"`
	} `json:"websocket"`
	Room *struct {
		Width    float64  `json:"width"`
		Height   float64  `json:"height"`
		Patterns []string `json:"patterns"`
	} `json:"room"`
	Storage *struct {
		Backend      string `json:"backend"`
		ImagePath    string `json:"image_path"`
		DatabasePath string `json:"database_path"`
		BadgerPath   string `json:"badger_path"`
		Timeout      string `json:"timeout"`
	} `json:"storage"`
	Log *struct {
		Level  string `json:"level"`
		Pretty *bool  `json:"pretty"`
	} `json:"log"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// applyFile overlays the fields present in filepath onto config
func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var parseErr error
	duration := func(dst *time.Duration, raw string) {
		if raw == "" || parseErr != nil {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			parseErr = fmt.Errorf("config file %s: %w", filepath, err)
			return
		}
		*dst = d
	}

	if h := file.HTTP; h != nil {
		setString(&config.HTTP.Host, &h.Host)
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		duration(&config.HTTP.ReadTimeout, h.ReadTimeout)
		duration(&config.HTTP.WriteTimeout, h.WriteTimeout)
		setString(&config.HTTP.StaticPath, &h.StaticPath)
	}

	if ws := file.WebSocket; ws != nil {
		duration(&config.WebSocket.PingInterval, ws.PingInterval)
		duration(&config.WebSocket.ReadTimeout, ws.ReadTimeout)
		duration(&config.WebSocket.WriteTimeout, ws.WriteTimeout)
		if ws.BufferSize > 0 {
			config.WebSocket.BufferSize = ws.BufferSize
		}
		if ws.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = ws.MaxMessageSize
		}
	}

	if r := file.Room; r != nil {
		if r.Width > 0 {
			config.Room.Width = r.Width
		}
		if r.Height > 0 {
			config.Room.Height = r.Height
		}
		if len(r.Patterns) > 0 {
			config.Room.Patterns = r.Patterns
		}
	}

	if s := file.Storage; s != nil {
		setString(&config.Storage.Backend, &s.Backend)
		setString(&config.Storage.ImagePath, &s.ImagePath)
		setString(&config.Storage.DatabasePath, &s.DatabasePath)
		setString(&config.Storage.BadgerPath, &s.BadgerPath)
		duration(&config.Storage.Timeout, s.Timeout)
	}

	if l := file.Log; l != nil {
		setString(&config.Log.Level, &l.Level)
		if l.Pretty != nil {
			config.Log.Pretty = *l.Pretty
		}
	}

	return parseErr
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// Enables flexible deployment patterns while maintaining sane defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	config, err := LoadFromEnv()
	if err != nil {
		log.Warn().Str("module", "config").Err(err).Msg("ignoring environment overrides")
		config = DefaultConfig()
	}

	if filepath != "" {
		// Silently degrade on file errors - environment/defaults still work
		if err := applyFile(config, filepath); err != nil {
			log.Warn().Str("module", "config").Err(err).Msg("ignoring config file")
		}
	}

	return config
}
