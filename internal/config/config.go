package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/BradenHooton/turnstile/pkg/secrets"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Limits   LimitsConfig
	Webhook  WebhookConfig
	Notify   NotifyConfig
	Cleanup  CleanupConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
	// WebhookRequestsPerMinute bounds each source IP on the public webhook routes
	WebhookRequestsPerMinute int
	// ServiceRequestsPerMinute bounds each calling service on the attempt API
	ServiceRequestsPerMinute int
}

type AuthConfig struct {
	ServiceTokenSecret string
	ServiceTokenExpiry time.Duration
}

// LimitsConfig holds per-action attempt policies, keyed by identifier and by IP
type LimitsConfig struct {
	Identifier models.PolicySet
	IP         models.PolicySet
}

type WebhookConfig struct {
	// Secrets maps provider name (lowercase) to its signing secret
	Secrets            map[string]string
	SignatureTolerance time.Duration
	MaxBodyBytes       int64
}

// NotifyConfig configures lockout notifications. An empty AWSRegion selects mock mode.
type NotifyConfig struct {
	AWSRegion   string
	FromAddress string
}

func (c NotifyConfig) MockMode() bool {
	return c.AWSRegion == "" || c.FromAddress == ""
}

type CleanupConfig struct {
	Interval         time.Duration
	AttemptRetention time.Duration
	WebhookRetention time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	tokenSecret := getEnv("SERVICE_TOKEN_SECRET", "")
	if tokenSecret == "" {
		return nil, fmt.Errorf("SERVICE_TOKEN_SECRET is required")
	}
	if err := validateTokenSecret(tokenSecret, env); err != nil {
		return nil, err
	}

	limits := LimitsConfig{
		Identifier: models.PolicySet{
			models.ActionLogin:         policyFromEnv("LOGIN", 5, 15*time.Minute),
			models.ActionSignup:        policyFromEnv("SIGNUP", 3, time.Hour),
			models.ActionPasswordReset: policyFromEnv("PASSWORD_RESET", 3, time.Hour),
		},
	}
	limits.IP = models.PolicySet{
		models.ActionLogin:         ipPolicyFromEnv("LOGIN", 20, limits.Identifier[models.ActionLogin].Window),
		models.ActionSignup:        ipPolicyFromEnv("SIGNUP", 10, limits.Identifier[models.ActionSignup].Window),
		models.ActionPasswordReset: ipPolicyFromEnv("PASSWORD_RESET", 10, limits.Identifier[models.ActionPasswordReset].Window),
	}

	if err := validatePolicies("", limits.Identifier); err != nil {
		return nil, err
	}
	if err := validatePolicies("_IP", limits.IP); err != nil {
		return nil, err
	}

	webhookSecrets, err := loadWebhookSecrets(getEnv("WEBHOOK_PROVIDERS", "stripe"), getEnv("SECRETS_MASTER_KEY", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "turnstile"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:                     getEnv("PORT", "8080"),
			Env:                      env,
			LogLevel:                 getEnv("LOG_LEVEL", "info"),
			ReadTimeout:              getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:             getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:              getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies:           splitList(getEnv("TRUSTED_PROXIES", "")),
			WebhookRequestsPerMinute: getEnvAsInt("WEBHOOK_REQUESTS_PER_MINUTE", 120),
			ServiceRequestsPerMinute: getEnvAsInt("SERVICE_REQUESTS_PER_MINUTE", 6000),
		},
		Auth: AuthConfig{
			ServiceTokenSecret: tokenSecret,
			ServiceTokenExpiry: getEnvAsDuration("SERVICE_TOKEN_EXPIRY", 1*time.Hour),
		},
		Limits: limits,
		Webhook: WebhookConfig{
			Secrets:            webhookSecrets,
			SignatureTolerance: getEnvAsDuration("WEBHOOK_SIGNATURE_TOLERANCE", 5*time.Minute),
			MaxBodyBytes:       int64(getEnvAsInt("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		},
		Notify: NotifyConfig{
			AWSRegion:   getEnv("AWS_REGION", ""),
			FromAddress: getEnv("NOTIFY_FROM_ADDRESS", ""),
		},
		Cleanup: CleanupConfig{
			Interval:         getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AttemptRetention: getEnvAsDuration("ATTEMPT_RETENTION", 2*limits.Identifier.LongestWindow()),
			WebhookRetention: getEnvAsDuration("WEBHOOK_RETENTION", 30*24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if cfg.Cleanup.Interval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive (got %s)", cfg.Cleanup.Interval)
	}

	// Pruning inside the window would silently reset counters
	if cfg.Cleanup.AttemptRetention < limits.Identifier.LongestWindow() ||
		cfg.Cleanup.AttemptRetention < limits.IP.LongestWindow() {
		return nil, fmt.Errorf("ATTEMPT_RETENTION (%s) must not be shorter than the longest rate limit window", cfg.Cleanup.AttemptRetention)
	}

	return cfg, nil
}

// SecretsMasterKey returns SECRETS_MASTER_KEY without loading the rest of
// the configuration
func SecretsMasterKey() (string, error) {
	_ = godotenv.Load()

	key := getEnv("SECRETS_MASTER_KEY", "")
	if key == "" {
		return "", fmt.Errorf("SECRETS_MASTER_KEY is required")
	}
	return key, nil
}

// validateTokenSecret enforces minimum strength for the service token secret
func validateTokenSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("SERVICE_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("SERVICE_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// validatePolicies rejects configured actions that would not limit anything.
// Only action types with no policy at all are unlimited.
func validatePolicies(suffix string, policies models.PolicySet) error {
	for _, action := range sortedActions(policies) {
		p := policies[action]
		prefix := strings.ToUpper(string(action))
		if p.MaxAttempts <= 0 {
			return fmt.Errorf("%s%s_MAX_ATTEMPTS must be positive (got %d)", prefix, suffix, p.MaxAttempts)
		}
		if p.Window <= 0 {
			return fmt.Errorf("%s_WINDOW must be positive (got %s)", prefix, p.Window)
		}
	}
	return nil
}

func sortedActions(policies models.PolicySet) []models.ActionType {
	actions := make([]models.ActionType, 0, len(policies))
	for a := range policies {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// loadWebhookSecrets reads WEBHOOK_SECRET_<PROVIDER> or, when set,
// WEBHOOK_SECRET_<PROVIDER>_ENC decrypted with the master key.
// Providers without a secret are left out and their webhooks are rejected.
func loadWebhookSecrets(providerList, masterKey string) (map[string]string, error) {
	out := make(map[string]string)
	for _, provider := range splitList(providerList) {
		provider = strings.ToLower(provider)
		envKey := "WEBHOOK_SECRET_" + strings.ToUpper(provider)

		if enc := getEnv(envKey+"_ENC", ""); enc != "" {
			if masterKey == "" {
				return nil, fmt.Errorf("%s_ENC is set but SECRETS_MASTER_KEY is empty", envKey)
			}
			plain, err := secrets.Decrypt(masterKey, enc)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt %s_ENC: %w", envKey, err)
			}
			out[provider] = plain
			continue
		}

		if plain := getEnv(envKey, ""); plain != "" {
			out[provider] = plain
		}
	}
	return out, nil
}

func policyFromEnv(prefix string, defaultMax int, defaultWindow time.Duration) models.AttemptPolicy {
	return models.AttemptPolicy{
		MaxAttempts: getEnvAsInt(prefix+"_MAX_ATTEMPTS", defaultMax),
		Window:      getEnvAsDuration(prefix+"_WINDOW", defaultWindow),
	}
}

func ipPolicyFromEnv(prefix string, defaultMax int, window time.Duration) models.AttemptPolicy {
	return models.AttemptPolicy{
		MaxAttempts: getEnvAsInt(prefix+"_IP_MAX_ATTEMPTS", defaultMax),
		Window:      window,
	}
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
