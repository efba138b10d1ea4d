package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Zarinpal ZarinpalConfig
	ORS      ORSConfig
	SMS      SMSConfig
	Booking  BookingConfig
	CORS     CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	BaseURL     string // public base URL, used to build the payment callback
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds the trip-search cache configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	SearchTTL time.Duration // how long cached search results stay fresh
}

// ZarinpalConfig holds payment gateway configuration
type ZarinpalConfig struct {
	MerchantID  string // 36-char merchant UUID (SECRET)
	Sandbox     bool
	CallbackURL string
	MockMode    bool // local development: skip the real gateway entirely
	Timeout     time.Duration
}

// ORSConfig holds upstream reservation provider configuration
type ORSConfig struct {
	BaseURL            string
	DefaultSellerToken string // fallback credential when an agency has none
	Timeout            time.Duration
}

// SMSConfig holds the customer/operator SMS gateway configuration
type SMSConfig struct {
	Mode          string // "dev" logs instead of sending
	APIURL        string
	APIKey        string
	Sender        string
	OperatorPhone string // receives paid-but-unreserved alerts
}

// BookingConfig holds orchestration policy knobs
type BookingConfig struct {
	MinLeadTime     time.Duration // offers departing sooner are not shown
	LookupRetries   int           // bounded retry for trip lookup
	RetentionWindow time.Duration // unpaid tickets older than this are purged
	CleanupSchedule string        // cron spec for the retention sweep
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			BaseURL:     getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			SearchTTL: time.Duration(getEnvAsInt("SEARCH_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Zarinpal: ZarinpalConfig{
			MerchantID:  getEnv("ZARINPAL_MERCHANT_ID", ""),
			Sandbox:     getEnvAsBool("ZARINPAL_SANDBOX", true),
			CallbackURL: getEnv("ZARINPAL_CALLBACK_URL", ""),
			MockMode:    getEnvAsBool("ZARINPAL_MOCK_MODE", false),
			Timeout:     time.Duration(getEnvAsInt("ZARINPAL_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		ORS: ORSConfig{
			BaseURL:            getEnv("ORS_BASE_URL", "https://mrbilit.mrshoofer.ir"),
			DefaultSellerToken: getEnv("ORS_DEFAULT_SELLER_TOKEN", ""),
			Timeout:            time.Duration(getEnvAsInt("ORS_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:          getEnv("SMS_MODE", "dev"),
			APIURL:        getEnv("SMS_API_URL", ""),
			APIKey:        getEnv("SMS_API_KEY", ""),
			Sender:        getEnv("SMS_SENDER", ""),
			OperatorPhone: getEnv("SMS_OPERATOR_PHONE", ""),
		},
		Booking: BookingConfig{
			MinLeadTime:     time.Duration(getEnvAsInt("BOOKING_MIN_LEAD_MINUTES", 45)) * time.Minute,
			LookupRetries:   getEnvAsInt("BOOKING_LOOKUP_RETRIES", 3),
			RetentionWindow: time.Duration(getEnvAsInt("BOOKING_RETENTION_HOURS", 48)) * time.Hour,
			CleanupSchedule: getEnv("BOOKING_CLEANUP_SCHEDULE", "0 0 4 * * *"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if !c.Zarinpal.MockMode {
		if c.Zarinpal.MerchantID == "" {
			return fmt.Errorf("ZARINPAL_MERCHANT_ID is required unless ZARINPAL_MOCK_MODE is enabled")
		}
		if len(c.Zarinpal.MerchantID) != 36 {
			log.Printf("ZARINPAL_MERCHANT_ID format may be incorrect: expected 36 characters, got %d", len(c.Zarinpal.MerchantID))
		}
		if c.Zarinpal.CallbackURL == "" {
			return fmt.Errorf("ZARINPAL_CALLBACK_URL is required unless ZARINPAL_MOCK_MODE is enabled")
		}
	}

	if c.SMS.Mode == "production" {
		if c.SMS.APIURL == "" {
			return fmt.Errorf("SMS_API_URL is required in production SMS mode")
		}
		if c.SMS.APIKey == "" {
			return fmt.Errorf("SMS_API_KEY is required in production SMS mode")
		}
	}

	if c.Booking.LookupRetries < 1 {
		return fmt.Errorf("BOOKING_LOOKUP_RETRIES must be at least 1")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
