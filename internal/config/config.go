package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	ServiceToken        string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	PublicBaseURL       string
	ProviderBaseURL     string
	ProviderTokenURL    string
	Timezone            string
}

func NewConfig() (*Config, error) {
	env := os.Getenv("PULSE_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("PULSE_ENCRYPTION_KEY_BASE64"),
		ServiceToken:        os.Getenv("PULSE_SERVICE_TOKEN"),
		DBHost:              getEnvOrDefault("PULSE_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("PULSE_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("PULSE_DB_USER", "pulsecrm"),
		DBPassword:          os.Getenv("PULSE_DB_PASSWORD"),
		DBName:              getEnvOrDefault("PULSE_DB_NAME", "pulsecrm"),
		DBSSLMode:           getEnvOrDefault("PULSE_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		PublicBaseURL:       getEnvOrDefault("PULSE_PUBLIC_BASE_URL", "http://localhost:8080"),
		ProviderBaseURL:     getEnvOrDefault("PULSE_PROVIDER_BASE_URL", "https://graph.microsoft.com/v1.0"),
		ProviderTokenURL:    os.Getenv("PULSE_PROVIDER_TOKEN_URL"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("PULSE_ENCRYPTION_KEY_BASE64 is required")
	}

	if c.ServiceToken == "" {
		return fmt.Errorf("PULSE_SERVICE_TOKEN is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("PULSE_DB_PASSWORD is required")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.DBUsername),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
