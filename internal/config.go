package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/beamline/internal/ident"
	"github.com/starford/beamline/internal/metadata"
	"github.com/starford/beamline/internal/record"
	"github.com/starford/beamline/internal/retry"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Watch     WatchConfig       `yaml:"watch"`
	Retry     RetryConfig       `yaml:"retry"`
	Transform TransformConfig   `yaml:"transform"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	NATS      NATSConfig        `yaml:"nats"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if err := c.Transform.Validate(); err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration. LogFile, when
// set, receives a copy of every log line.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	LogFile  string     `yaml:"log_file"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WatchConfig describes what is watched and how events are processed.
// FoldersFile lists one absolute folder per line.
type WatchConfig struct {
	FoldersFile     string        `yaml:"folders_file"`
	Folders         []string      `yaml:"folders"`
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	Ignore          []string      `yaml:"ignore"`
	SweepOnStart    bool          `yaml:"sweep_on_start"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Settle          time.Duration `yaml:"settle"`
	LockFile        string        `yaml:"lock_file"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.FoldersFile == "" && len(c.Folders) == 0 {
		return fmt.Errorf("either folders_file or folders must be set")
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.QueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// RetryConfig bounds the wait for files still held by a producer.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxAttempts     int           `yaml:"max_attempts"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

// Validate validates the retry configuration.
func (c *RetryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.InitialInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxInterval, validation.Required, validation.Min(c.InitialInterval)),
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
	)
}

// Policy converts the configuration into a retry.Policy.
func (c *RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Interval:    c.InitialInterval,
		MaxInterval: c.MaxInterval,
		MaxAttempts: c.MaxAttempts,
		MaxElapsed:  c.MaxElapsed,
	}
}

// TransformConfig selects the transform variants and their parameters.
type TransformConfig struct {
	IdentifierVariant string         `yaml:"identifier_variant"`
	RenamePolicy      string         `yaml:"rename_policy"`
	MetadataStrategy  string         `yaml:"metadata_strategy"`
	MetadataGate      string         `yaml:"metadata_gate"`
	LengthThreshold   float64        `yaml:"length_threshold"`
	ProfileType       string         `yaml:"profile_type"`
	NamePrefixes      []string       `yaml:"name_prefixes"`
	RemnantSentinel   string         `yaml:"remnant_sentinel"`
	Elements          ElementsConfig `yaml:"elements"`
}

// ElementsConfig names the elements the structural strategy looks at.
// Producer exports use BA and PI for groups and pieces.
type ElementsConfig struct {
	ProfileGroup string   `yaml:"profile_group"`
	ProfileType  string   `yaml:"profile_type"`
	PieceInfo    string   `yaml:"piece_info"`
	Length       string   `yaml:"length"`
	Identifiers  []string `yaml:"identifiers"`
}

// Validate validates the transform configuration.
func (c *TransformConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.IdentifierVariant, validation.In("rich", "legacy")),
		validation.Field(&c.RenamePolicy, validation.In(string(record.PolicyRename), string(record.PolicyReplace))),
		validation.Field(&c.MetadataStrategy, validation.In(
			string(metadata.StrategyBoth), string(metadata.StrategyPattern), string(metadata.StrategyStructural))),
		validation.Field(&c.MetadataGate, validation.In(string(metadata.GateProfileLength), string(metadata.GateProfile))),
		validation.Field(&c.LengthThreshold, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.NamePrefixes, validation.Each(validation.Required)),
	)
}

// Variant returns the configured identifier variant.
func (c *TransformConfig) Variant() ident.Variant {
	v, _ := ident.ParseVariant(c.IdentifierVariant)
	return v
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NATSConfig enables run notifications. An empty URL disables them.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	policy := retry.DefaultPolicy()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Enabled: true,
				Port:    8080,
			},
		},
		Watch: WatchConfig{
			FoldersFile:     "./config/folders.txt",
			Workers:         4,
			QueueSize:       1024,
			SweepOnStart:    true,
			ShutdownTimeout: 30 * time.Second,
			Settle:          time.Second,
			LockFile:        "./beamline.lock",
		},
		Retry: RetryConfig{
			InitialInterval: policy.Interval,
			MaxInterval:     policy.MaxInterval,
			MaxAttempts:     policy.MaxAttempts,
			MaxElapsed:      policy.MaxElapsed,
		},
		Transform: TransformConfig{
			IdentifierVariant: "rich",
			RenamePolicy:      string(record.PolicyRename),
			MetadataStrategy:  string(metadata.StrategyBoth),
			MetadataGate:      string(metadata.GateProfileLength),
			LengthThreshold:   metadata.DefaultLengthThreshold,
			ProfileType:       "L",
			NamePrefixes:      metadata.DefaultNamePrefixes,
			RemnantSentinel:   "v",
		},
		SQLite: SQLiteConfig{
			Path: "./beamline.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		NATS: NATSConfig{
			SubjectPrefix: "beamline.runs",
		},
	}
}
