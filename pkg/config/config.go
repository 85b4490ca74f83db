package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Notification transports understood by the dispatcher.
const (
	TransportRedis = "redis"
	TransportKafka = "kafka"
	TransportNone  = "none"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Documents     DocumentsConfig
	Archives      ArchivesConfig
	Notifications NotificationsConfig
	Dashboard     DashboardConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr is the host:port pair handed to the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig tunes the request lifecycle engine.
type WorkflowConfig struct {
	ReferencePrefix string
	AdvisoryPolicy  string
}

// DocumentsConfig points the renderer at its static inputs.
type DocumentsConfig struct {
	LetterheadFile     string
	SignaturesDir      string
	VerificationSecret string
	MaxSignatureBytes  int64
}

// ArchivesConfig controls archive downloads.
type ArchivesConfig struct {
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// NotificationsConfig selects the delivery transport and worker pool sizing.
type NotificationsConfig struct {
	Transport    string
	Workers      int
	BufferSize   int
	MaxRetries   int
	RetryDelay   time.Duration
	RedisListKey string
	KafkaBrokers []string
	KafkaTopic   string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		ReferencePrefix: strings.ToUpper(strings.TrimSpace(v.GetString("WORKFLOW_REFERENCE_PREFIX"))),
		AdvisoryPolicy:  strings.ToUpper(strings.TrimSpace(v.GetString("WORKFLOW_ADVISORY_POLICY"))),
	}

	maxSignature := v.GetInt64("DOCUMENTS_MAX_SIGNATURE_BYTES")
	if maxSignature <= 0 {
		maxSignature = 2 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		LetterheadFile:     v.GetString("DOCUMENTS_LETTERHEAD_FILE"),
		SignaturesDir:      v.GetString("DOCUMENTS_SIGNATURES_DIR"),
		VerificationSecret: v.GetString("DOCUMENTS_VERIFICATION_SECRET"),
		MaxSignatureBytes:  maxSignature,
	}

	cfg.Archives = ArchivesConfig{
		SignedURLSecret: v.GetString("ARCHIVES_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("ARCHIVES_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		Transport:    strings.ToLower(strings.TrimSpace(v.GetString("NOTIFICATIONS_TRANSPORT"))),
		Workers:      v.GetInt("NOTIFICATIONS_WORKERS"),
		BufferSize:   v.GetInt("NOTIFICATIONS_BUFFER_SIZE"),
		MaxRetries:   v.GetInt("NOTIFICATIONS_MAX_RETRIES"),
		RetryDelay:   parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 2*time.Second),
		RedisListKey: v.GetString("NOTIFICATIONS_REDIS_LIST"),
		KafkaBrokers: splitAndTrim(v.GetString("NOTIFICATIONS_KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("NOTIFICATIONS_KAFKA_TOPIC"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheEnabled: v.GetBool("DASHBOARD_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with. Production must not
// run on the development secrets.
func (c *Config) Validate() error {
	var problems []string
	switch c.Notifications.Transport {
	case TransportRedis, TransportNone:
	case TransportKafka:
		if len(c.Notifications.KafkaBrokers) == 0 || c.Notifications.KafkaTopic == "" {
			problems = append(problems, "kafka transport needs NOTIFICATIONS_KAFKA_BROKERS and NOTIFICATIONS_KAFKA_TOPIC")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown NOTIFICATIONS_TRANSPORT %q", c.Notifications.Transport))
	}
	if c.Workflow.ReferencePrefix == "" {
		problems = append(problems, "WORKFLOW_REFERENCE_PREFIX must not be empty")
	}
	if c.Env == EnvProduction {
		for key, value := range map[string]string{
			"JWT_SECRET":                    c.JWT.Secret,
			"DOCUMENTS_VERIFICATION_SECRET": c.Documents.VerificationSecret,
			"ARCHIVES_SIGNED_URL_SECRET":    c.Archives.SignedURLSecret,
		} {
			if value == "" || strings.HasPrefix(value, "dev_") {
				problems = append(problems, key+" must be set in production")
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "demandes")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "demandes-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WORKFLOW_REFERENCE_PREFIX", "AUT")
	v.SetDefault("WORKFLOW_ADVISORY_POLICY", "MAJORITY")

	v.SetDefault("DOCUMENTS_LETTERHEAD_FILE", "")
	v.SetDefault("DOCUMENTS_SIGNATURES_DIR", "./signatures")
	v.SetDefault("DOCUMENTS_VERIFICATION_SECRET", "dev_verification_secret")
	v.SetDefault("DOCUMENTS_MAX_SIGNATURE_BYTES", 2*1024*1024)

	v.SetDefault("ARCHIVES_SIGNED_URL_SECRET", "dev_archives_secret")
	v.SetDefault("ARCHIVES_SIGNED_URL_TTL", "30m")

	v.SetDefault("NOTIFICATIONS_TRANSPORT", TransportRedis)
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_BUFFER_SIZE", 256)
	v.SetDefault("NOTIFICATIONS_MAX_RETRIES", 5)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "2s")
	v.SetDefault("NOTIFICATIONS_REDIS_LIST", "demandes:notifications")
	v.SetDefault("NOTIFICATIONS_KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("NOTIFICATIONS_KAFKA_TOPIC", "demandes.notifications")

	v.SetDefault("DASHBOARD_CACHE_ENABLED", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
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
