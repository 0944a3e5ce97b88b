package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"outreachly/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment    string      `json:"environment"`
	ServerPort     string      `json:"server_port"`
	BaseURL        string      `json:"base_url"` // public URL used for tracking links
	EncryptionKey  string      `json:"-"`
	DBHost         string      `json:"db_host"`
	DBPort         string      `json:"db_port"`
	DBUser         string      `json:"db_user"`
	DBPassword     string      `json:"-"`
	DBName         string      `json:"db_name"`
	DBSSLMode      string      `json:"db_ssl_mode"`
	DBMaxIdleConns int         `json:"db_max_idle_conns"`
	DBMaxOpenConns int         `json:"db_max_open_conns"`
	Redis          RedisConfig `json:"redis"`

	// Global fallback provider (per-user providers live in EmailSettings)
	ResendAPIKey string `json:"-"`

	// Error reporting; empty DSN disables capture
	SentryDSN string `json:"-"`

	// Delivery tuning
	SendDelayMs           int      `json:"send_delay_ms"`
	ProviderTimeoutSec    int      `json:"provider_timeout_sec"`
	TrackingExcludedHosts []string `json:"tracking_excluded_hosts"`

	// Worker cadences
	SchedulerIntervalSec int `json:"scheduler_interval_sec"`
	FollowUpIntervalSec  int `json:"follow_up_interval_sec"`
	IMAPPollIntervalSec  int `json:"imap_poll_interval_sec"`

	RateLimitDeliverability int `json:"rate_limit_deliverability"`
}

func init() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:5000"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "outreachly"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		SentryDSN:    getEnv("SENTRY_DSN", ""),

		SendDelayMs:        getEnvAsInt("SEND_DELAY_MS", 150),
		ProviderTimeoutSec: getEnvAsInt("PROVIDER_TIMEOUT_SEC", 30),
		TrackingExcludedHosts: splitAndTrim(getEnv(
			"TRACKING_EXCLUDED_HOSTS",
			"youtube.com,youtu.be,vimeo.com,loom.com",
		)),

		SchedulerIntervalSec: getEnvAsInt("SCHEDULER_INTERVAL_SEC", 60),
		FollowUpIntervalSec:  getEnvAsInt("FOLLOW_UP_INTERVAL_SEC", 300),
		IMAPPollIntervalSec:  getEnvAsInt("IMAP_POLL_INTERVAL_SEC", 300),

		RateLimitDeliverability: getEnvAsInt("RATE_LIMIT_DELIVERABILITY", 10),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(AppConfig.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes, got %d", len(AppConfig.EncryptionKey))
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateDB is exported so tests can run the same migrations against sqlite.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.EmailSettings{},
		&models.Contact{},
		&models.Template{},
		&models.Campaign{},
		&models.CampaignContact{},
		&models.EmailEvent{},
		&models.WarmupSchedule{},
		&models.FollowUpSequence{},
		&models.FollowUpQueueEntry{},
		&models.InboxMessage{},
		&models.ActivityLog{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Base URL: %s", AppConfig.BaseURL)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Fallback provider configured: %t", AppConfig.ResendAPIKey != "")
}
