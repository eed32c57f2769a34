package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Environment string
	Port        string
	StoreDriver string // redis, mongo or memory
	DatabaseURL string
	RedisURL    string
	JWTSecret   string
	TokenTTL    time.Duration

	// Firebase Config
	FirebaseCredentials string

	// Twilio Config
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	// Alert delivery
	DeliveryTransports []string // device, push, twilio, log
	DispatchWorkers    int
	DispatchRetries    int

	// Session timing
	GracePeriodSeconds int
	ExtendSeconds      int
	LocationDelay      time.Duration
	DispatchSettle     time.Duration

	// Static location reported in alerts
	LocationAddress   string
	LocationShortCode string

	// App Settings
	RateLimitRequest int
	RateLimitWindow  int // minutes
	CORSOrigins      []string
}

func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "redis")),
		DatabaseURL: getEnv("DATABASE_URL", "mongodb://localhost:27017/haven"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		TokenTTL:    time.Duration(getEnvAsInt("TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,

		// Firebase
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		// Twilio
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),

		// Delivery
		DeliveryTransports: getEnvAsList("DELIVERY_TRANSPORT", []string{"device", "log"}),
		DispatchWorkers:    getEnvAsInt("DISPATCH_WORKERS", 2),
		DispatchRetries:    getEnvAsInt("DISPATCH_RETRIES", 3),

		// Session timing
		GracePeriodSeconds: getEnvAsInt("GRACE_PERIOD_SECONDS", 8),
		ExtendSeconds:      getEnvAsInt("EXTEND_SECONDS", 600),
		LocationDelay:      time.Duration(getEnvAsInt("LOCATION_DELAY_MS", 1500)) * time.Millisecond,
		DispatchSettle:     time.Duration(getEnvAsInt("DISPATCH_SETTLE_MS", 1500)) * time.Millisecond,

		// Location
		LocationAddress:   getEnv("DEMO_LOCATION_ADDRESS", "8 Ave SW, Calgary, AB T2P 1E5"),
		LocationShortCode: getEnv("DEMO_LOCATION_SHORTCODE", "///puzzle.glorious.flick"),

		// App Settings
		RateLimitRequest: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:  getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 1),
		CORSOrigins:      getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) HasTwilio() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

func InitRedis(cfg *Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		// Fallback to default config
		opt = &redis.Options{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		}
	}

	client := redis.NewClient(opt)
	return client
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
