package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from the environment. A .env file in the
// working directory is loaded first if present; real environment variables
// win over it (godotenv does not override existing values).
func parseEnv(config *Config) {
	_ = godotenv.Load()

	config.EndpointAddrHTTP = getEnv("HTTP_ADDR", config.EndpointAddrHTTP)
	config.DatabaseDSN = getEnv("DATABASE_DSN", config.DatabaseDSN)

	config.S3User = getEnv("S3_USER", config.S3User)
	config.S3Password = getEnv("S3_PASSWORD", config.S3Password)
	config.S3Bucket = getEnv("S3_BUCKET", config.S3Bucket)
	config.S3Region = getEnv("S3_REGION", config.S3Region)
	config.S3BaseEndpoint = getEnv("S3_BASE_ENDPOINT", config.S3BaseEndpoint)

	config.SMTPHost = getEnv("SMTP_HOST", config.SMTPHost)
	config.SMTPPort = getEnvInt("SMTP_PORT", config.SMTPPort)
	config.SMTPUser = getEnv("SMTP_USER", config.SMTPUser)
	config.SMTPPassword = getEnv("SMTP_PASSWORD", config.SMTPPassword)
	config.SMTPFrom = getEnv("SMTP_FROM", config.SMTPFrom)

	config.CronSpec = getEnv("REPORT_CRON", config.CronSpec)
	config.Timezone = getEnv("REPORT_TIMEZONE", config.Timezone)
	config.Workers = getEnvInt("REPORT_WORKERS", config.Workers)
	config.OpTimeout = getEnvDuration("REPORT_OP_TIMEOUT", config.OpTimeout)
	config.WindowLength = getEnvDuration("REPORT_WINDOW", config.WindowLength)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
