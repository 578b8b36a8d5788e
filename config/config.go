package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath   string        `yaml:"database_path"`
	ServerAddress  string        `yaml:"server_address"`
	PublicURL      string        `yaml:"public_url"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	InvitationTTL  time.Duration `yaml:"invitation_ttl"`
	InvoiceDueDays int           `yaml:"invoice_due_days"`
	InvoicesDir    string        `yaml:"invoices_dir"`
	Currency       string        `yaml:"currency"`

	InvoiceTemplateImage string `yaml:"invoice_template_image"`
	ChromePath           string `yaml:"chrome_path"`

	LogLevel       string   `yaml:"log_level"`
	LogDevelopment bool     `yaml:"log_development"`
	CORSOrigins    []string `yaml:"cors_origins"`

	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTTopic    string `yaml:"mqtt_topic"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTUsername string `yaml:"mqtt_username"`
	MQTTPassword string `yaml:"mqtt_password"`

	WhatsAppAPIURL string `yaml:"whatsapp_api_url"`
	EncryptionKey  string `yaml:"encryption_key"`
	SnowflakeNode  int64  `yaml:"snowflake_node"`
	WebhookSecret  string `yaml:"webhook_secret"`

	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
}

func Default() *Config {
	return &Config{
		DatabasePath:      "./raas-platform.db",
		ServerAddress:     ":8081",
		PublicURL:         "http://localhost:5173",
		JWTSecret:         "raas-platform-secret-change-in-production",
		TokenTTL:          24 * time.Hour,
		InvitationTTL:     7 * 24 * time.Hour,
		InvoiceDueDays:    10,
		InvoicesDir:       "./invoices",
		Currency:          "R$",
		LogLevel:          "info",
		CORSOrigins:       []string{"http://localhost:5173", "http://localhost:4173"},
		MQTTTopic:         "raas/+/energy",
		MQTTClientID:      "raas-platform",
		WhatsAppAPIURL:    "https://graph.facebook.com/v19.0",
		SnowflakeNode:     1,
		SchedulerInterval: time.Hour,
	}
}

// Load applies, in order: defaults, the YAML file named by CONFIG_FILE,
// a .env file in the working directory, and the environment.
func Load() (*Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.PublicURL = getEnv("PUBLIC_URL", c.PublicURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.TokenTTL = getEnvDuration("TOKEN_TTL", c.TokenTTL)
	c.InvitationTTL = getEnvDuration("INVITATION_TTL", c.InvitationTTL)
	c.InvoiceDueDays = getEnvInt("INVOICE_DUE_DAYS", c.InvoiceDueDays)
	c.InvoicesDir = getEnv("INVOICES_DIR", c.InvoicesDir)
	c.Currency = getEnv("CURRENCY", c.Currency)
	c.InvoiceTemplateImage = getEnv("INVOICE_TEMPLATE_IMAGE", c.InvoiceTemplateImage)
	c.ChromePath = getEnv("CHROME_PATH", c.ChromePath)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogDevelopment = getEnv("LOG_DEVELOPMENT", strconv.FormatBool(c.LogDevelopment)) == "true"
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.CORSOrigins = strings.Split(origins, ",")
	}
	c.MQTTBroker = getEnv("MQTT_BROKER", c.MQTTBroker)
	c.MQTTTopic = getEnv("MQTT_TOPIC", c.MQTTTopic)
	c.MQTTClientID = getEnv("MQTT_CLIENT_ID", c.MQTTClientID)
	c.MQTTUsername = getEnv("MQTT_USERNAME", c.MQTTUsername)
	c.MQTTPassword = getEnv("MQTT_PASSWORD", c.MQTTPassword)
	c.WhatsAppAPIURL = getEnv("WHATSAPP_API_URL", c.WhatsAppAPIURL)
	c.EncryptionKey = getEnv("ENCRYPTION_KEY", c.EncryptionKey)
	c.SnowflakeNode = int64(getEnvInt("SNOWFLAKE_NODE", int(c.SnowflakeNode)))
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)
	c.SchedulerInterval = getEnvDuration("SCHEDULER_INTERVAL", c.SchedulerInterval)
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: jwt secret is required")
	}
	if c.TokenTTL <= 0 || c.InvitationTTL <= 0 {
		return fmt.Errorf("config: token and invitation ttl must be positive")
	}
	if c.InvoiceDueDays < 0 {
		return fmt.Errorf("config: invoice due days must not be negative")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("config: snowflake node must be between 0 and 1023")
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("config: scheduler interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
