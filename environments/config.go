package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Messenger MessengerConfig
	Scheduler SchedulerConfig
	Alert     AlertConfig
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MessengerConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	Token         string
	Timeout       time.Duration
	RetryCount    int
}

type SchedulerConfig struct {
	TickInterval           time.Duration
	DuePageSize            int
	MaxBatchesPerTick      int
	DefaultBatchSize       int
	DefaultBatchIntervalMs int64
	StaleInProgressAfter   time.Duration
	MaxAttempts            int
	AutoStart              bool
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	APIKey          string
	SchedulerAPIKey string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from the environment. A .env file in the working
// directory, when present, is loaded first without overriding real variables.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "outreach"),
			Password: GetEnv("DB_PASSWORD", "outreach123"),
			DBName:   GetEnv("DB_NAME", "outreach_campaigns"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Messenger: MessengerConfig{
			BaseURL:       GetEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    GetEnv("WHATSAPP_API_VERSION", "v21.0"),
			PhoneNumberID: GetEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			Token:         GetEnv("WHATSAPP_TOKEN", ""),
			Timeout:       time.Duration(GetEnvAsInt("WHATSAPP_TIMEOUT_SECONDS", 30)) * time.Second,
			RetryCount:    GetEnvAsInt("WHATSAPP_RETRY_COUNT", 2),
		},
		Scheduler: SchedulerConfig{
			TickInterval:           GetEnvAsDuration("SCHEDULER_TICK_INTERVAL", 30*time.Second),
			DuePageSize:            GetEnvAsInt("SCHEDULER_DUE_PAGE_SIZE", 50),
			MaxBatchesPerTick:      GetEnvAsInt("SCHEDULER_MAX_BATCHES_PER_TICK", 10),
			DefaultBatchSize:       GetEnvAsInt("BROADCAST_DEFAULT_BATCH_SIZE", 20),
			DefaultBatchIntervalMs: int64(GetEnvAsInt("BROADCAST_DEFAULT_BATCH_INTERVAL_MS", 0)),
			StaleInProgressAfter:   GetEnvAsDuration("SCHEDULER_STALE_IN_PROGRESS_AFTER", 10*time.Minute),
			MaxAttempts:            GetEnvAsInt("LEAD_MAX_ATTEMPTS", 0),
			AutoStart:              GetEnvAsBool("AUTO_START_SCHEDULER", true),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			APIKey:          GetEnv("API_KEY", ""),
			SchedulerAPIKey: GetEnv("SCHEDULER_API_KEY", ""),
		},
		Log: LogConfig{
			Level:  GetEnv("LOG_LEVEL", "info"),
			Pretty: GetEnvAsBool("LOG_PRETTY", false),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
