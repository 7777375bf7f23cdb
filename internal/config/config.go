package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Clinic details used on the PDF and in the mail-client handoff
	ClinicName         string
	ClinicPhone        string
	ClinicAddress      string
	ReceptionEmail     string
	CORSAllowedOrigins []string

	// Intake sessions
	SessionSecret     string
	SessionTTL        time.Duration
	DraftSaveInterval time.Duration
	SessionSweepEvery time.Duration

	// Rate limiting on the generate endpoint (per IP)
	GenerateRatePerSec float64
	GenerateBurst      int

	// Draft storage: Redis when RedisAddr is set, else DynamoDB when
	// DraftTable is set, else process memory.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DraftTable    string

	// Compliance audit trail. Empty disables it.
	DatabaseURL string
	// Guards /ops endpoints. Empty leaves them unmounted.
	OpsToken string

	// Reception notice email: "sendgrid", "ses" or "none"
	EmailProvider       string
	EmailFromAddress    string
	EmailFromName       string
	SendGridAPIKey      string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		ClinicName:         getEnv("CLINIC_NAME", "Heart Health Cardiology"),
		ClinicPhone:        getEnv("CLINIC_PHONE", ""),
		ClinicAddress:      getEnv("CLINIC_ADDRESS", ""),
		ReceptionEmail:     getEnv("CLINIC_RECEPTION_EMAIL", "reception@example.com"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		SessionSecret:     getEnv("INTAKE_SESSION_SECRET", ""),
		SessionTTL:        getEnvAsDuration("INTAKE_SESSION_TTL", 2*time.Hour),
		DraftSaveInterval: getEnvAsDuration("INTAKE_DRAFT_SAVE_INTERVAL", 5*time.Second),
		SessionSweepEvery: getEnvAsDuration("INTAKE_SESSION_SWEEP_INTERVAL", time.Minute),

		GenerateRatePerSec: getEnvAsFloat("GENERATE_RATE_PER_SEC", 0.2),
		GenerateBurst:      getEnvAsInt("GENERATE_BURST", 3),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DraftTable:    getEnv("INTAKE_DRAFTS_TABLE", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		OpsToken:    getEnv("OPS_TOKEN", ""),

		EmailProvider:       strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "none"))),
		EmailFromAddress:    getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Clinic Website"),
		SendGridAPIKey:      getEnv("SENDGRID_API_KEY", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
