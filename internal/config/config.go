// Package config loads the portal configuration.
//
// Values are layered, later sources winning:
//   - built-in defaults
//   - a YAML file named by --config or PORTAL_CONFIG
//   - a .env file in the working directory, if present
//   - environment variables
//   - command-line flags
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	UploadsLocal = "local"
	UploadsS3    = "s3"

	SessionsMemory = "memory"
	SessionsRedis  = "redis"
)

type Config struct {
	Addr     string         `yaml:"addr"`
	Database DatabaseConfig `yaml:"database"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Session  SessionConfig  `yaml:"session"`
	Admin    AdminConfig    `yaml:"admin"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Log      LogConfig      `yaml:"log"`

	// LoginRatePerMinute limits login attempts per client IP. Zero
	// disables the limit.
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	// PostgresDSN is also read from DATABASE_URL.
	PostgresDSN string `yaml:"postgres_dsn"`
}

type UploadsConfig struct {
	// Backend is "local" or "s3".
	Backend  string   `yaml:"backend"`
	Dir      string   `yaml:"dir"`
	MaxBytes int64    `yaml:"max_bytes"`
	S3       S3Config `yaml:"s3"`
}

// S3Config points at an S3 compatible bucket. When Endpoint is empty
// and AccountID is set the Cloudflare R2 endpoint is used.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccountID       string `yaml:"account_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
}

type SessionConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	// Secret signs the session cookie. A random one is generated at
	// startup when empty, which logs everyone out on restart.
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Secure bool          `yaml:"secure_cookie"`
	Redis  RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AdminConfig is the account seeded when its username is free.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
}

type OAuthConfig struct {
	GoogleKey    string `yaml:"google_key"`
	GoogleSecret string `yaml:"google_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether Google sign-in is configured.
func (o OAuthConfig) Enabled() bool {
	return o.GoogleKey != "" && o.GoogleSecret != ""
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Addr: ":3000",
		Database: DatabaseConfig{
			Driver:     DriverSQLite,
			SQLitePath: "portal.db",
		},
		Uploads: UploadsConfig{
			Backend:  UploadsLocal,
			Dir:      filepath.Join(os.TempDir(), "uploads"),
			MaxBytes: 16 << 20,
			S3:       S3Config{Region: "auto"},
		},
		Session: SessionConfig{
			Backend: SessionsMemory,
			TTL:     24 * time.Hour,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "admin123",
			FullName: "Administrator",
		},
		OAuth: OAuthConfig{
			CallbackURL: "http://localhost:3000/auth/google/callback",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		LoginRatePerMinute: 20,
	}
}

// Load builds the configuration from args (without the program name)
// and the process environment, then validates it. It returns
// pflag.ErrHelp when --help was requested.
func Load(args []string) (*Config, error) {
	flags := pflag.NewFlagSet("portal", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML config file (env PORTAL_CONFIG)")
	addr := flags.String("addr", "", "listen address")
	logLevel := flags.String("log-level", "", "log level (debug, info, warn, error)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = os.Getenv("PORTAL_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if flags.Changed("addr") {
		cfg.Addr = *addr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays the PORTAL_* variables and DATABASE_URL.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("PORTAL_ADDR", &c.Addr)
	str("PORTAL_DB_DRIVER", &c.Database.Driver)
	str("PORTAL_SQLITE_PATH", &c.Database.SQLitePath)
	str("DATABASE_URL", &c.Database.PostgresDSN)
	str("PORTAL_UPLOAD_BACKEND", &c.Uploads.Backend)
	str("PORTAL_UPLOAD_DIR", &c.Uploads.Dir)
	str("PORTAL_S3_BUCKET", &c.Uploads.S3.Bucket)
	str("PORTAL_S3_PREFIX", &c.Uploads.S3.Prefix)
	str("PORTAL_S3_ACCOUNT_ID", &c.Uploads.S3.AccountID)
	str("PORTAL_S3_ACCESS_KEY_ID", &c.Uploads.S3.AccessKeyID)
	str("PORTAL_S3_ACCESS_KEY_SECRET", &c.Uploads.S3.AccessKeySecret)
	str("PORTAL_S3_ENDPOINT", &c.Uploads.S3.Endpoint)
	str("PORTAL_S3_REGION", &c.Uploads.S3.Region)
	str("PORTAL_SESSION_BACKEND", &c.Session.Backend)
	str("PORTAL_SESSION_SECRET", &c.Session.Secret)
	str("PORTAL_REDIS_ADDR", &c.Session.Redis.Addr)
	str("PORTAL_REDIS_PASSWORD", &c.Session.Redis.Password)
	str("PORTAL_ADMIN_USERNAME", &c.Admin.Username)
	str("PORTAL_ADMIN_PASSWORD", &c.Admin.Password)
	str("PORTAL_ADMIN_FULL_NAME", &c.Admin.FullName)
	str("GOOGLE_KEY", &c.OAuth.GoogleKey)
	str("GOOGLE_SECRET", &c.OAuth.GoogleSecret)
	str("PORTAL_OAUTH_CALLBACK_URL", &c.OAuth.CallbackURL)
	str("PORTAL_LOG_LEVEL", &c.Log.Level)
	str("PORTAL_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("PORTAL_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PORTAL_MAX_UPLOAD_BYTES: %w", err)
		}
		c.Uploads.MaxBytes = n
	}
	if v, ok := lookup("PORTAL_SESSION_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTAL_SESSION_TTL: %w", err)
		}
		c.Session.TTL = d
	}
	if v, ok := lookup("PORTAL_SECURE_COOKIE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PORTAL_SECURE_COOKIE: %w", err)
		}
		c.Session.Secure = b
	}
	if v, ok := lookup("PORTAL_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTAL_REDIS_DB: %w", err)
		}
		c.Session.Redis.DB = n
	}
	if v, ok := lookup("PORTAL_LOGIN_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTAL_LOGIN_RATE: %w", err)
		}
		c.LoginRatePerMinute = n
	}
	return nil
}

// Validate rejects unknown backends and missing required keys.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgres_dsn (DATABASE_URL) is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	switch c.Uploads.Backend {
	case UploadsLocal:
		if c.Uploads.Dir == "" {
			errs = append(errs, errors.New("uploads.dir is required for the local backend"))
		}
	case UploadsS3:
		s3 := c.Uploads.S3
		if s3.Bucket == "" {
			errs = append(errs, errors.New("uploads.s3.bucket is required for the s3 backend"))
		}
		if s3.Endpoint == "" && s3.AccountID == "" {
			errs = append(errs, errors.New("uploads.s3 needs an endpoint or an account_id"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown upload backend %q", c.Uploads.Backend))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}

	switch c.Session.Backend {
	case SessionsMemory:
	case SessionsRedis:
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.Session.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}

	if c.Admin.Username == "" || c.Admin.Password == "" {
		errs = append(errs, errors.New("admin.username and admin.password are required"))
	}
	if c.LoginRatePerMinute < 0 {
		errs = append(errs, errors.New("login_rate_per_minute must not be negative"))
	}
	return errors.Join(errs...)
}
