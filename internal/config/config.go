package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	LDAP         LDAPConfig         `yaml:"ldap"`
	Redis        RedisConfig        `yaml:"redis"`
	Log          LogConfig          `yaml:"log"`
	Audit        AuditConfig        `yaml:"audit"`
	Registration RegistrationConfig `yaml:"registration"`
	Admin        AdminConfig        `yaml:"admin"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// AllowOrigins for CORS; empty allows all.
	AllowOrigins []string `yaml:"allow_origins"`
	// RateLimit is requests per second per IP on auth endpoints.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret            string `yaml:"secret"`
	ExpireHour        int    `yaml:"expire_hour"`
	LeewaySeconds     int    `yaml:"leeway_seconds"`
	Issuer            string `yaml:"issuer"`
	RefreshExpireHour int    `yaml:"refresh_expire_hour"`
}

func (j JWTConfig) TTL() time.Duration { return time.Duration(j.ExpireHour) * time.Hour }

func (j JWTConfig) Leeway() time.Duration { return time.Duration(j.LeewaySeconds) * time.Second }

func (j JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshExpireHour) * time.Hour
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// RedisConfig for the optional async notification queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// WorkerConcurrency caps parallel deliveries in the worker. Zero means 5.
	WorkerConcurrency int `yaml:"worker_concurrency"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type AuditConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	CleanupCron   string `yaml:"cleanup_cron"`
}

type RegistrationConfig struct {
	// Enabled turns on anonymous self-registration as guest or member.
	Enabled bool `yaml:"enabled"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// DefaultAdminPassword is used when no admin password is configured.
const DefaultAdminPassword = "admin123"

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      "8080",
			Mode:      "debug",
			RateLimit: 5,
			RateBurst: 10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "tasksentry.db",
		},
		JWT: JWTConfig{
			ExpireHour:        1,
			LeewaySeconds:     120,
			Issuer:            "tasksentry",
			RefreshExpireHour: 24 * 7,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(uid=%s)",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Log: LogConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			CleanupCron:   "0 3 * * *",
		},
		Registration: RegistrationConfig{
			Enabled: true,
		},
		Admin: AdminConfig{
			Username: "admin",
			Email:    "admin@example.com",
			Password: DefaultAdminPassword,
		},
	}
}

var validDrivers = map[string]bool{"sqlite": true, "mysql": true, "postgres": true}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("jwt.secret is required (set JWT_SECRET)"))
	}
	if c.JWT.ExpireHour <= 0 {
		errs = append(errs, errors.New("jwt.expire_hour must be positive"))
	}
	if c.JWT.RefreshExpireHour <= 0 {
		errs = append(errs, errors.New("jwt.refresh_expire_hour must be positive"))
	}
	if c.JWT.LeewaySeconds < 0 {
		errs = append(errs, errors.New("jwt.leeway_seconds must not be negative"))
	}
	if !validDrivers[c.Database.Driver] {
		errs = append(errs, fmt.Errorf("unsupported database driver: %q", c.Database.Driver))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("audit.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if hours, err := strconv.Atoi(os.Getenv("JWT_EXPIRE_HOUR")); err == nil {
		c.JWT.ExpireHour = hours
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		c.Admin.Password = password
	}
	if os.Getenv("LDAP_ENABLED") == "true" {
		c.LDAP.Enabled = true
	}
	if host := os.Getenv("LDAP_HOST"); host != "" {
		c.LDAP.Host = host
	}
	if baseDN := os.Getenv("LDAP_BASE_DN"); baseDN != "" {
		c.LDAP.BaseDN = baseDN
	}
	if bindDN := os.Getenv("LDAP_BIND_DN"); bindDN != "" {
		c.LDAP.BindDN = bindDN
	}
	if bindPassword := os.Getenv("LDAP_BIND_PASSWORD"); bindPassword != "" {
		c.LDAP.BindPassword = bindPassword
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		if err := c.parseRedisURL(redisURL); err == nil {
			c.Redis.Enabled = true
		}
	}
}

// parseRedisURL fills the redis section from a redis:// or rediss:// URL.
func (c *Config) parseRedisURL(redisURL string) error {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}
	c.Redis.Addr = opts.Addr
	c.Redis.Password = opts.Password
	c.Redis.DB = opts.DB
	return nil
}

// RedisOptions converts the redis section into go-redis client options.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// UsesDefaultAdminPassword reports whether the bootstrap admin password was
// left at its built-in value.
func (c *Config) UsesDefaultAdminPassword() bool {
	return c.Admin.Password == DefaultAdminPassword
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}
