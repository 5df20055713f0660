/**
 * @description
 * This file handles the configuration management for the
 * subscription-service. It uses the 'viper' library to load
 * configuration from environment variables, providing a centralized and
 * consistent way to manage application settings.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort      string `mapstructure:"SERVER_PORT"`
	DatabaseURL     string `mapstructure:"DATABASE_URL"`
	IdentityJWKSURL string `mapstructure:"IDENTITY_JWKS_URL"`
	RabbitMQURL     string `mapstructure:"RABBITMQ_URL"`
	RedisURL        string `mapstructure:"REDIS_URL"`

	BinanceAPIBaseURL string `mapstructure:"BINANCE_API_BASE_URL"`

	VerifyRateLimit         int `mapstructure:"VERIFY_RATE_LIMIT"`
	VerifyRateWindowSeconds int `mapstructure:"VERIFY_RATE_WINDOW_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8087")
	viper.SetDefault("BINANCE_API_BASE_URL", "https://api.binance.com")
	viper.SetDefault("VERIFY_RATE_LIMIT", 10)
	viper.SetDefault("VERIFY_RATE_WINDOW_SECONDS", 60)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("IDENTITY_JWKS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("BINANCE_API_BASE_URL")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT")
	_ = viper.BindEnv("VERIFY_RATE_WINDOW_SECONDS")

	err = viper.Unmarshal(&config)
	return
}
