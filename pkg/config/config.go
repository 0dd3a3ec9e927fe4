package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	SMSProviderTwilio  = "twilio"
	SMSProviderConsole = "console"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	OTP       OTPConfig
	SMS       SMSConfig
	Billing   BillingConfig
	Cache     CacheConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// OTPConfig tunes phone one-time-code sign in.
type OTPConfig struct {
	Length         int
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
}

// SMSConfig holds carrier credentials and dispatch worker sizing.
// Empty Twilio credentials are valid: sends then fail as an upstream error.
type SMSConfig struct {
	Provider         string
	AccountSID       string
	AuthToken        string
	FromNumber       string
	DispatchWorkers  int
	DispatchBuffer   int
	DispatchMaxRetry int
}

// Configured reports whether every carrier credential is present.
func (c SMSConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

// BillingConfig controls how fee periods are derived from the wall clock.
type BillingConfig struct {
	TimeZone string
}

// Location resolves the billing time zone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheConfig governs the Redis-backed dashboard cache.
type CacheConfig struct {
	Enabled  bool
	StatsTTL time.Duration
}

// StorageConfig configures profile photo storage and signed download links.
type StorageConfig struct {
	Dir             string
	PublicURL       string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxPhotoBytes   int64
	AllowedMIMEs    []string
}

// RateLimitConfig throttles unauthenticated auth endpoints per client IP.
type RateLimitConfig struct {
	AuthPerSecond float64
	AuthBurst     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.OTP = OTPConfig{
		Length:         v.GetInt("OTP_LENGTH"),
		TTL:            parseDuration(v.GetString("OTP_TTL"), 5*time.Minute),
		ResendCooldown: parseDuration(v.GetString("OTP_RESEND_COOLDOWN"), time.Minute),
		MaxAttempts:    v.GetInt("OTP_MAX_ATTEMPTS"),
	}

	cfg.SMS = SMSConfig{
		Provider:         strings.ToLower(v.GetString("SMS_PROVIDER")),
		AccountSID:       v.GetString("TWILIO_ACCOUNT_SID"),
		AuthToken:        v.GetString("TWILIO_AUTH_TOKEN"),
		FromNumber:       v.GetString("TWILIO_PHONE_NUMBER"),
		DispatchWorkers:  v.GetInt("SMS_DISPATCH_WORKERS"),
		DispatchBuffer:   v.GetInt("SMS_DISPATCH_BUFFER"),
		DispatchMaxRetry: v.GetInt("SMS_DISPATCH_MAX_RETRIES"),
	}

	cfg.Billing = BillingConfig{TimeZone: v.GetString("BILLING_TIMEZONE")}

	cfg.Cache = CacheConfig{
		Enabled:  v.GetBool("ENABLE_CACHE"),
		StatsTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), 5*time.Minute),
	}

	maxPhoto := v.GetInt64("PROFILE_PHOTO_MAX_BYTES")
	if maxPhoto <= 0 {
		maxPhoto = 2 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Dir:             v.GetString("STORAGE_DIR"),
		PublicURL:       strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 15*time.Minute),
		MaxPhotoBytes:   maxPhoto,
		AllowedMIMEs:    splitAndTrim(v.GetString("PROFILE_PHOTO_ALLOWED_MIME_TYPES")),
	}

	cfg.RateLimit = RateLimitConfig{
		AuthPerSecond: v.GetFloat64("AUTH_RATE_LIMIT_PER_SECOND"),
		AuthBurst:     v.GetInt("AUTH_RATE_LIMIT_BURST"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tuition")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "tuition-api")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)

	v.SetDefault("SMS_PROVIDER", SMSProviderTwilio)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_PHONE_NUMBER", "")
	v.SetDefault("SMS_DISPATCH_WORKERS", 2)
	v.SetDefault("SMS_DISPATCH_BUFFER", 64)
	v.SetDefault("SMS_DISPATCH_MAX_RETRIES", 0)

	v.SetDefault("BILLING_TIMEZONE", "UTC")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("STATS_CACHE_TTL", "5m")

	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "15m")
	v.SetDefault("PROFILE_PHOTO_MAX_BYTES", 2*1024*1024)
	v.SetDefault("PROFILE_PHOTO_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp")

	v.SetDefault("AUTH_RATE_LIMIT_PER_SECOND", 1)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 10)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
