package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/xyself/blivedm/internal/errors"
	"github.com/xyself/blivedm/pkg/archive"
	"github.com/xyself/blivedm/pkg/client"
)

const (
	// ConfigFileName is the name of the optional configuration file.
	ConfigFileName = "blivedm.json"

	// EnvFileName is loaded into the environment before it is read.
	EnvFileName = ".env"

	// DefaultLogLevel is used when none is configured.
	DefaultLogLevel = "info"

	// DefaultServiceName identifies traces.
	DefaultServiceName = "blivedm"
)

// Duration is a time.Duration written as "30s" in JSON and in the
// environment.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config is the complete blivedm configuration.
type Config struct {
	// Rooms are the room ids the watch command connects to.
	Rooms []int64 `json:"rooms,omitempty" env:"BLIVEDM_ROOMS" envSeparator:","`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"logLevel,omitempty" env:"BLIVEDM_LOG_LEVEL"`

	// SessData is the SESSDATA login cookie. Empty means anonymous.
	SessData string `json:"-" env:"BLIVEDM_SESSDATA"`

	// Buvid is the device id cookie.
	Buvid string `json:"buvid,omitempty" env:"BLIVEDM_BUVID"`

	// UserAgent is sent with API requests and the websocket handshake.
	UserAgent string `json:"userAgent,omitempty" env:"BLIVEDM_USER_AGENT"`

	Session  SessionConfig  `json:"session,omitempty"`
	OpenLive OpenLiveConfig `json:"openLive,omitempty"`
	Archive  ArchiveConfig  `json:"archive,omitempty"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	OTel     OTelConfig     `json:"otel,omitempty"`

	configPath string
}

// SessionConfig holds chat session timing.
type SessionConfig struct {
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty" env:"BLIVEDM_HEARTBEAT_INTERVAL"`
	HandshakeTimeout  Duration `json:"handshakeTimeout,omitempty" env:"BLIVEDM_HANDSHAKE_TIMEOUT"`

	// Insecure dials ws:// instead of wss://.
	Insecure bool `json:"insecure,omitempty" env:"BLIVEDM_INSECURE"`
}

// OpenLiveConfig holds open platform app credentials.
type OpenLiveConfig struct {
	AccessKeyID     string `json:"-" env:"BLIVEDM_OPEN_ACCESS_KEY_ID"`
	AccessKeySecret string `json:"-" env:"BLIVEDM_OPEN_ACCESS_KEY_SECRET"`
	AppID           int64  `json:"appId,omitempty" env:"BLIVEDM_OPEN_APP_ID"`

	// Code is the streamer's identity code.
	Code string `json:"code,omitempty" env:"BLIVEDM_OPEN_CODE"`
}

// ArchiveConfig selects where raw notifications are stored. Both sinks
// may be empty, which disables archiving.
type ArchiveConfig struct {
	SQLite        string   `json:"sqlite,omitempty" env:"BLIVEDM_ARCHIVE_SQLITE"`
	S3Bucket      string   `json:"s3Bucket,omitempty" env:"BLIVEDM_ARCHIVE_S3_BUCKET"`
	S3Prefix      string   `json:"s3Prefix,omitempty" env:"BLIVEDM_ARCHIVE_S3_PREFIX"`
	S3Region      string   `json:"s3Region,omitempty" env:"AWS_REGION"`
	S3Endpoint    string   `json:"s3Endpoint,omitempty" env:"BLIVEDM_ARCHIVE_S3_ENDPOINT"`
	BatchSize     int      `json:"batchSize,omitempty" env:"BLIVEDM_ARCHIVE_BATCH_SIZE"`
	FlushInterval Duration `json:"flushInterval,omitempty" env:"BLIVEDM_ARCHIVE_FLUSH_INTERVAL"`

	// Static S3 credentials, read from the standard AWS variables. With
	// no access key requests are sent unsigned.
	AccessKeyID     string `json:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `json:"-" env:"AWS_SESSION_TOKEN"`
}

// MetricsConfig configures the metrics and health endpoint.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":9090". Empty disables it.
	Addr string `json:"addr,omitempty" env:"BLIVEDM_METRICS_ADDR"`
}

// OTelConfig configures trace export.
type OTelConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint. Empty disables export.
	Endpoint    string `json:"endpoint,omitempty" env:"BLIVEDM_OTEL_ENDPOINT"`
	ServiceName string `json:"serviceName,omitempty" env:"BLIVEDM_OTEL_SERVICE_NAME"`
	Insecure    bool   `json:"insecure,omitempty" env:"BLIVEDM_OTEL_INSECURE"`
}

// Default returns a Config with default values.
func Default() *Config {
	cc := client.DefaultConfig()
	return &Config{
		LogLevel:  DefaultLogLevel,
		Buvid:     cc.Buvid,
		UserAgent: cc.UserAgent,
		Session: SessionConfig{
			HeartbeatInterval: Duration(cc.HeartbeatInterval),
			HandshakeTimeout:  Duration(cc.HandshakeTimeout),
		},
		Archive: ArchiveConfig{
			BatchSize:     archive.DefaultBatchSize,
			FlushInterval: Duration(archive.DefaultFlushInterval),
		},
		OTel: OTelConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// Load builds the configuration for dir: defaults, then blivedm.json if it
// exists, then dir/.env and the environment.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	var (
		cfg *Config
		err error
	)
	if _, statErr := os.Stat(path); statErr == nil {
		cfg, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
	}

	envPath := filepath.Join(dir, EnvFileName)
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, errors.New("E201").
				WithDetail("Failed to read " + envPath + ": " + err.Error())
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from path on top of the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("E201").Wrap(err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E201").
			WithDetail("Failed to parse " + path + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}
	cfg.configPath = path
	return cfg, nil
}

// ApplyEnv overrides fields whose BLIVEDM_* (or AWS_*) variable is set.
// Variables that are unset leave the field alone.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return errors.New("E201").
			WithDetail("Failed to parse environment: " + err.Error()).
			Wrap(err)
	}
	return nil
}

// Path returns the file the config was loaded from, "" when none.
func (c *Config) Path() string {
	return c.configPath
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("E201").WithDetail(fmt.Sprintf(format, args...))
	}
	for _, id := range c.Rooms {
		if id <= 0 {
			return invalid("room id %d must be positive", id)
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return invalid("%v", err)
	}
	if c.Session.HeartbeatInterval <= 0 {
		return invalid("session.heartbeatInterval must be positive")
	}
	if c.Session.HandshakeTimeout <= 0 {
		return invalid("session.handshakeTimeout must be positive")
	}
	if c.Archive.BatchSize <= 0 {
		return invalid("archive.batchSize must be positive")
	}
	if c.Archive.FlushInterval <= 0 {
		return invalid("archive.flushInterval must be positive")
	}
	if c.Archive.S3Bucket != "" && c.Archive.S3Region == "" {
		return invalid("archive.s3Region (AWS_REGION) is required with an S3 bucket")
	}
	return nil
}

// ValidateOpenLive reports missing open platform settings.
func (c *Config) ValidateOpenLive() error {
	o := c.OpenLive
	var missing []string
	if o.AccessKeyID == "" {
		missing = append(missing, "BLIVEDM_OPEN_ACCESS_KEY_ID")
	}
	if o.AccessKeySecret == "" {
		missing = append(missing, "BLIVEDM_OPEN_ACCESS_KEY_SECRET")
	}
	if o.AppID <= 0 {
		missing = append(missing, "BLIVEDM_OPEN_APP_ID")
	}
	if o.Code == "" {
		missing = append(missing, "BLIVEDM_OPEN_CODE")
	}
	if len(missing) > 0 {
		return errors.New("E201").
			WithDetail("Open platform sessions need " + strings.Join(missing, ", ") + ".")
	}
	return nil
}

// ClientConfig returns the session settings as a client.Config.
func (c *Config) ClientConfig() *client.Config {
	cc := client.DefaultConfig()
	cc.HeartbeatInterval = time.Duration(c.Session.HeartbeatInterval)
	cc.HandshakeTimeout = time.Duration(c.Session.HandshakeTimeout)
	cc.Insecure = c.Session.Insecure
	if c.UserAgent != "" {
		cc.UserAgent = c.UserAgent
	}
	if c.Buvid != "" {
		cc.Buvid = c.Buvid
	}
	return cc
}

// Level returns the configured log level, info when invalid.
func (c *Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
