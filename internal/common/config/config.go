// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Database      DatabaseConfig     `mapstructure:"database"`
	JWT           JWTConfig          `mapstructure:"jwt"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Kafka         KafkaConfig        `mapstructure:"kafka"`
	Voice         VoiceConfig        `mapstructure:"voice"`
	Documents     DocumentsConfig    `mapstructure:"documents"`
	Permissions   PermissionsConfig  `mapstructure:"permissions"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// GatewayConfig holds settings for the API gateway binary.
type GatewayConfig struct {
	Address        string            `mapstructure:"address"`
	UpstreamURL    string            `mapstructure:"upstream_url"`
	AllowedOrigins []string          `mapstructure:"allowed_origins"`
	RateLimit      RateLimitConfig   `mapstructure:"rate_limit"`
	PublicPaths    []string          `mapstructure:"public_paths"`
	TierLimits     map[string]int    `mapstructure:"tier_limits"`
	Headers        map[string]string `mapstructure:"headers"`
}

// RateLimitConfig configures the fixed-window limiter.
type RateLimitConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Requests int  `mapstructure:"requests"`
	WindowMS int  `mapstructure:"window_ms"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds token issuance and verification settings.
type JWTConfig struct {
	Secret          string `mapstructure:"secret"`
	Issuer          string `mapstructure:"issuer"`
	AccessTTL       int    `mapstructure:"access_ttl"`  // milliseconds
	RefreshTTL      int    `mapstructure:"refresh_ttl"` // milliseconds
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
	TOTPIssuer      string `mapstructure:"totp_issuer"`
	TOTPEnrollTTLMS int    `mapstructure:"totp_enroll_ttl_ms"`
}

// StorageConfig holds object storage (S3-compatible) settings.
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KafkaConfig holds event bus settings.
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	DialTimeout   int      `mapstructure:"dial_timeout"` // milliseconds
}

// VoiceConfig holds settings for the voice streaming service and its vendors.
type VoiceConfig struct {
	STT struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"stt"`

	TTS struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		VoiceID string `mapstructure:"voice_id"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"tts"`

	Intent struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"intent"`

	RegistryPath      string `mapstructure:"registry_path"`
	MaxUtteranceBytes int    `mapstructure:"max_utterance_bytes"`
	IdleTimeout       int    `mapstructure:"idle_timeout"` // milliseconds
}

// DocumentsConfig holds upload validation settings.
type DocumentsConfig struct {
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	AllowedMIMETypes  []string `mapstructure:"allowed_mime_types"`
	IndexName         string   `mapstructure:"index_name"`
}

// PermissionsConfig holds the cached permission-check settings.
type PermissionsConfig struct {
	CacheTTLMS int `mapstructure:"cache_ttl_ms"`
}

// NotificationConfig holds settings for outbound email/SMS.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
