package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Telegram
	BotToken string

	// Wallet node
	NodeBaseURL string
	NodeAPIKey  string

	// Webhook
	WebhookEndpoint string
	WebhookPort     int

	// Database
	DBPath string

	// Attestation
	PriceBytes          int64
	PriceTimeoutSec     int64
	MaxCheckingAttempts int
	AttestorAddress     string

	// Rewards
	RewardBytes         int64
	ReferralRewardBytes int64
	DistributionAddress string

	// Email
	AdminEmail    string
	FromEmail     string
	FromEmailName string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string

	// Secret salt for pseudonymous user IDs. Required, never logged.
	Salt string
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// Wallet node
		NodeBaseURL: strings.TrimSuffix(getEnv("NODE_BASE_URL", "http://127.0.0.1:6611"), "/"),
		NodeAPIKey:  getEnv("NODE_API_KEY", ""),

		// Webhook
		WebhookEndpoint: getEnv("WEBHOOK_ENDPOINT", ""),
		WebhookPort:     getEnvInt("WEBHOOK_PORT", 8080),

		// Database
		DBPath: getEnv("DB_PATH", "./attestation.db"),

		// Attestation
		PriceBytes:          getEnvInt64("PRICE_BYTES", 100),
		PriceTimeoutSec:     getEnvInt64("PRICE_TIMEOUT", 3600),
		MaxCheckingAttempts: getEnvInt("MAX_CHECKING_ATTEMPTS", 5),
		AttestorAddress:     getEnv("ATTESTOR_ADDRESS", ""),

		// Rewards
		RewardBytes:         getEnvInt64("REWARD_BYTES", 200),
		ReferralRewardBytes: getEnvInt64("REFERRAL_REWARD_BYTES", 200),
		DistributionAddress: getEnv("DISTRIBUTION_ADDRESS", ""),

		// Email
		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		FromEmail:     getEnv("FROM_EMAIL", ""),
		FromEmailName: getEnv("FROM_EMAIL_NAME", "Email attestation bot"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvInt("SMTP_PORT", 465),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),

		Salt: getEnv("SALT", ""),
	}
}

// Validate returns the list of missing required options.
func (c *Config) Validate() []string {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "BOT_TOKEN is required")
	}
	if c.Salt == "" {
		missing = append(missing, "SALT is required")
	}
	if c.AttestorAddress == "" {
		missing = append(missing, "ATTESTOR_ADDRESS is required")
	}
	if c.AdminEmail == "" || c.FromEmail == "" {
		missing = append(missing, "ADMIN_EMAIL and FROM_EMAIL are required")
	}
	if c.SMTPHost == "" || c.SMTPUser == "" || c.SMTPPassword == "" {
		missing = append(missing, "SMTP_HOST, SMTP_USER and SMTP_PASSWORD are required")
	}
	return missing
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}
