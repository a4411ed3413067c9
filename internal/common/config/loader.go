// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like JWT_SECRET
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or any parent up to the
// module root, so binaries and tests behave the same regardless of cwd.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from plain environment variables when the
// YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.JWT.Secret == "" {
		if val := os.Getenv("JWT_SECRET"); val != "" {
			cfg.JWT.Secret = val
		}
	}

	if cfg.Storage.AccessKey == "" {
		if val := os.Getenv("STORAGE_ACCESS_KEY"); val != "" {
			cfg.Storage.AccessKey = val
		}
	}
	if cfg.Storage.SecretKey == "" {
		if val := os.Getenv("STORAGE_SECRET_KEY"); val != "" {
			cfg.Storage.SecretKey = val
		}
	}

	if cfg.Voice.STT.APIKey == "" {
		if val := os.Getenv("STT_API_KEY"); val != "" {
			cfg.Voice.STT.APIKey = val
		}
	}
	if cfg.Voice.TTS.APIKey == "" {
		if val := os.Getenv("TTS_API_KEY"); val != "" {
			cfg.Voice.TTS.APIKey = val
		}
	}
	if cfg.Voice.Intent.APIKey == "" {
		if val := os.Getenv("INTENT_API_KEY"); val != "" {
			cfg.Voice.Intent.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8081"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Gateway.Address == "" {
		cfg.Gateway.Address = ":8080"
	}
	if cfg.Gateway.RateLimit.Requests == 0 {
		cfg.Gateway.RateLimit.Requests = 120
	}
	if cfg.Gateway.RateLimit.WindowMS == 0 {
		cfg.Gateway.RateLimit.WindowMS = 60000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 15 * 60 * 1000
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = 7 * 24 * 60 * 60 * 1000
	}
	if cfg.JWT.BcryptCost == 0 {
		cfg.JWT.BcryptCost = 12
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "platform-services"
	}
	if cfg.JWT.TOTPIssuer == "" {
		cfg.JWT.TOTPIssuer = cfg.App.Name
	}
	if cfg.JWT.TOTPEnrollTTLMS == 0 {
		cfg.JWT.TOTPEnrollTTLMS = 10 * 60 * 1000
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "platform.events"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "analytics-worker"
	}
	if cfg.Kafka.DialTimeout == 0 {
		cfg.Kafka.DialTimeout = 10000
	}

	if cfg.Voice.STT.Timeout == 0 {
		cfg.Voice.STT.Timeout = 30000
	}
	if cfg.Voice.TTS.Timeout == 0 {
		cfg.Voice.TTS.Timeout = 30000
	}
	if cfg.Voice.Intent.Timeout == 0 {
		cfg.Voice.Intent.Timeout = 15000
	}
	if cfg.Voice.MaxUtteranceBytes == 0 {
		cfg.Voice.MaxUtteranceBytes = 10 << 20
	}
	if cfg.Voice.IdleTimeout == 0 {
		cfg.Voice.IdleTimeout = 120000
	}

	if cfg.Documents.MaxSizeBytes == 0 {
		cfg.Documents.MaxSizeBytes = 25 << 20
	}
	if len(cfg.Documents.AllowedExtensions) == 0 {
		cfg.Documents.AllowedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".docx"}
	}
	if cfg.Documents.IndexName == "" {
		cfg.Documents.IndexName = "documents"
	}

	if cfg.Permissions.CacheTTLMS == 0 {
		cfg.Permissions.CacheTTLMS = 5 * 60 * 1000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}

	return nil
}
