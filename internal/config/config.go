/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payments-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`

	JWTSecret      string `mapstructure:"JWT_SECRET"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	PaymentProvider  string `mapstructure:"PAYMENT_PROVIDER"`
	StripeSecretKey  string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeAPIBaseURL string `mapstructure:"STRIPE_API_BASE_URL"`
	CulqiSecretKey   string `mapstructure:"CULQI_SECRET_KEY"`
	CulqiAPIBaseURL  string `mapstructure:"CULQI_API_BASE_URL"`
	IzipayShopID     string `mapstructure:"IZIPAY_SHOP_ID"`
	IzipayAPIKey     string `mapstructure:"IZIPAY_API_KEY"`
	IzipayAPIBaseURL string `mapstructure:"IZIPAY_API_BASE_URL"`

	PlatformFeePercent float64 `mapstructure:"PLATFORM_FEE_PERCENT"`
	PaymentCurrency    string  `mapstructure:"PAYMENT_CURRENCY"`

	ProfilesServiceURL        string `mapstructure:"PROFILES_SERVICE_URL"`
	WorkOrdersServiceURL      string `mapstructure:"WORK_ORDERS_SERVICE_URL"`
	ServiceRequestsServiceURL string `mapstructure:"SERVICE_REQUESTS_SERVICE_URL"`
	NotificationsServiceURL   string `mapstructure:"NOTIFICATIONS_SERVICE_URL"`

	CheckoutRateLimitPerMinute int `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYMENT_PROVIDER", "stripe")
	viper.SetDefault("PLATFORM_FEE_PERCENT", 15.0)
	viper.SetDefault("PAYMENT_CURRENCY", "USD")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payments:rate_limit")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)

	// Bind environment variables explicitly so they survive Unmarshal even
	// when no config file is present.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("PAYMENT_PROVIDER")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("CULQI_SECRET_KEY")
	_ = viper.BindEnv("CULQI_API_BASE_URL")
	_ = viper.BindEnv("IZIPAY_SHOP_ID")
	_ = viper.BindEnv("IZIPAY_API_KEY")
	_ = viper.BindEnv("IZIPAY_API_BASE_URL")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("PAYMENT_CURRENCY")
	_ = viper.BindEnv("PROFILES_SERVICE_URL")
	_ = viper.BindEnv("WORK_ORDERS_SERVICE_URL")
	_ = viper.BindEnv("SERVICE_REQUESTS_SERVICE_URL")
	_ = viper.BindEnv("NOTIFICATIONS_SERVICE_URL")
	_ = viper.BindEnv("CHECKOUT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// PORT is the convention most container platforms inject; it wins over
	// SERVER_PORT when both are set.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payments:rate_limit"
	}

	config.PaymentProvider = strings.ToLower(strings.TrimSpace(config.PaymentProvider))
	if config.PaymentProvider == "" {
		config.PaymentProvider = "stripe"
	}

	config.PaymentCurrency = strings.ToUpper(strings.TrimSpace(config.PaymentCurrency))
	if config.PaymentCurrency == "" {
		config.PaymentCurrency = "USD"
	}

	if config.PlatformFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative platform fee percent; coercing to zero\" fee_percent=%f", config.PlatformFeePercent)
		config.PlatformFeePercent = 0
	}
	if config.PlatformFeePercent > 100 {
		log.Printf("level=warn component=config msg=\"platform fee percent above 100; capping\" fee_percent=%f", config.PlatformFeePercent)
		config.PlatformFeePercent = 100
	}

	if config.CheckoutRateLimitPerMinute < 0 {
		config.CheckoutRateLimitPerMinute = 0
	}

	return
}

// AllowedOriginList splits the configured comma-separated origins into the
// slice the CORS middleware expects.
func (c *Config) AllowedOriginList() []string {
	raw := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(raw))
	for _, origin := range raw {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
