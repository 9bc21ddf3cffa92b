// Package config loads the process configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Identity modes, mirrored from the ledger.
const (
	IdentityEncrypted = "encrypted"
	IdentityClear     = "clear"
)

var ErrInvalid = errors.New("invalid configuration")

type Store struct {
	Backend       string        `env:"TOMBOLA_STORE,default=file"`
	DataDir       string        `env:"TOMBOLA_DATA_DIR,default=data"`
	RedisAddr     string        `env:"TOMBOLA_REDIS_ADDR,default=localhost:6379"`
	RedisPassword string        `env:"TOMBOLA_REDIS_PASSWORD"`
	RedisDB       int           `env:"TOMBOLA_REDIS_DB,default=0"`
	RedisPrefix   string        `env:"TOMBOLA_REDIS_PREFIX,default=tombola:"`
	RedisChannel  string        `env:"TOMBOLA_REDIS_CHANNEL"`
	RedisTimeout  time.Duration `env:"TOMBOLA_REDIS_TIMEOUT,default=2s"`
}

type Protection struct {
	EncryptionKey string `env:"TOMBOLA_ENCRYPTION_KEY"`
	IdentityMode  string `env:"TOMBOLA_IDENTITY_MODE,default=encrypted"`
	FailClosed    bool   `env:"TOMBOLA_FAIL_CLOSED,default=false"`
}

type Draw struct {
	Minimum  int    `env:"TOMBOLA_MINIMUM_PARTICIPANTS,default=150"`
	Deadline string `env:"TOMBOLA_DEADLINE,default=2025-12-31T23:59:59Z"`
	Schedule string `env:"TOMBOLA_WATCH_SCHEDULE,default=@every 30s"`
}

type Admin struct {
	Email        string   `env:"TOMBOLA_ADMIN_EMAIL,default=admin@tombola.com"`
	Password     string   `env:"TOMBOLA_ADMIN_PASSWORD"`
	SecurityCode string   `env:"TOMBOLA_ADMIN_SECURITY_CODE"`
	JWTSecret    string   `env:"TOMBOLA_JWT_SECRET"`
	SuperAdmins  []string `env:"TOMBOLA_SUPER_ADMINS"`
}

// Config is the whole process configuration.
type Config struct {
	Port    string `env:"TOMBOLA_PORT,default=8080"`
	GinMode string `env:"GIN_MODE,default=release"`
	LogFile string `env:"TOMBOLA_LOG_FILE"`
	Verbose bool   `env:"TOMBOLA_VERBOSE,default=true"`

	Store      Store
	Protection Protection
	Draw       Draw
	Admin      Admin
}

// Load reads envFile when it exists, then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints and parses derived values.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}

	switch c.Protection.IdentityMode {
	case IdentityEncrypted:
		if c.Protection.EncryptionKey == "" {
			return fmt.Errorf("%w: TOMBOLA_ENCRYPTION_KEY is required in encrypted mode", ErrInvalid)
		}
	case IdentityClear:
	default:
		return fmt.Errorf("%w: unknown identity mode %q", ErrInvalid, c.Protection.IdentityMode)
	}

	if c.Admin.Password == "" || c.Admin.SecurityCode == "" || c.Admin.JWTSecret == "" {
		return fmt.Errorf("%w: admin password, security code and JWT secret are required", ErrInvalid)
	}

	if _, err := time.Parse(time.RFC3339, c.Draw.Deadline); err != nil {
		return fmt.Errorf("%w: deadline: %v", ErrInvalid, err)
	}
	if c.Draw.Minimum < 0 {
		return fmt.Errorf("%w: negative participant minimum", ErrInvalid)
	}
	return nil
}

// Deadline is the parsed draw deadline. Validate has already rejected an
// unparsable value.
func (c *Config) Deadline() time.Time {
	t, _ := time.Parse(time.RFC3339, c.Draw.Deadline)
	return t.UTC()
}

// Addr is the listen address.
func (c *Config) Addr() string { return ":" + c.Port }
