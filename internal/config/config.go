package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Telegram TelegramConfig
	APRS     APRSConfig
	ORS      ORSConfig
	Follow   FollowConfig
	Store    StoreConfig
	Logging  LoggingConfig
	Infra    InfraConfig
}

type AppConfig struct {
	Port        string `validate:"required"`
	Environment string
	NatsURL     string
}

type TelegramConfig struct {
	Token       string `validate:"required"`
	SetupKey    string `validate:"required"`
	OwnerChatID string // optional seed for a fresh directory
}

type APRSConfig struct {
	APIKey        string
	FollowCall    string
	ReplayFile    string        // replays a recorded route instead of querying aprs.fi
	PollInterval  time.Duration `validate:"gt=0"`
	MaxFailures   int           `validate:"min=1"`
	BackoffBase   float64       `validate:"gte=0"`
	BackoffGrowth float64       `validate:"gte=1"`
}

type ORSConfig struct {
	APIKey  string
	BaseURL string `validate:"required,url"`
}

type FollowConfig struct {
	Thresholds []int `validate:"min=2"`
}

type StoreConfig struct {
	Backend      string `validate:"oneof=file redis postgres"`
	DataFilePath string
	RedisURL     string
	RedisKey     string
	DBConnection string
}

type LoggingConfig struct {
	FilePath     string
	ConsoleLevel string
	FileLevel    string
}

type InfraConfig struct {
	OtelEnabled  bool
	OtelEndpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:        getEnv("APP_PORT", "3000"),
			Environment: getEnv("GO_ENV", "development"),
			NatsURL:     getEnv("NATS_URL", ""),
		},
		Telegram: TelegramConfig{
			Token:       getEnv("TELEGRAM_TOKEN", ""),
			SetupKey:    getEnv("SETUP_KEY", ""),
			OwnerChatID: getEnv("OWNER_CHAT_ID", ""),
		},
		APRS: APRSConfig{
			APIKey:        getEnv("APRS_API_KEY", ""),
			FollowCall:    getEnv("APRS_FOLLOW_CALL", ""),
			ReplayFile:    getEnv("APRS_REPLAY_FILE", ""),
			PollInterval:  getEnvAsDuration("APRS_POLL_INTERVAL", 90*time.Second),
			MaxFailures:   getEnvAsInt("APRS_MAX_FAILURES", 7),
			BackoffBase:   getEnvAsFloat("APRS_BACKOFF_BASE", 86),
			BackoffGrowth: getEnvAsFloat("APRS_BACKOFF_GROWTH", 4),
		},
		ORS: ORSConfig{
			APIKey:  getEnv("OPEN_ROUTE_SERVICE_KEY", ""),
			BaseURL: getEnv("OPEN_ROUTE_SERVICE_URL", "https://api.openrouteservice.org"),
		},
		Follow: FollowConfig{
			Thresholds: getEnvAsIntList("ALERT_THRESHOLDS", []int{-1, 60, 30, 10, 1}),
		},
		Store: StoreConfig{
			Backend:      strings.ToLower(getEnv("STORE_BACKEND", "file")),
			DataFilePath: getEnv("DATA_FILE_PATH", "data/directory.json"),
			RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
			RedisKey:     getEnv("REDIS_DIRECTORY_KEY", "aprs-friend-alert:directory"),
			DBConnection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Logging: LoggingConfig{
			FilePath:     getEnv("LOG_FILE_PATH", "logs/aprs-friend-alert.log"),
			ConsoleLevel: getEnv("CONSOLE_LOGGING_LEVEL", "info"),
			FileLevel:    getEnv("FILE_LOGGING_LEVEL", "debug"),
		},
		Infra: InfraConfig{
			OtelEnabled:  getEnv("OTEL_ENABLED", "") == "true",
			OtelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

// Validate checks the settings every run needs. Problems with optional
// integrations (APRS, ORS, NATS) are reported by HasAPRS/HasORS instead, since
// those only disable a feature.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Store.Backend == "postgres" && c.Store.DBConnection == "" {
		return errors.New("invalid configuration: DB_CONNECTION_STRING is required for the postgres store")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) HasAPRS() bool {
	return c.APRS.ReplayFile != "" || (c.APRS.APIKey != "" && c.APRS.FollowCall != "")
}

func (c *Config) HasORS() bool {
	return c.ORS.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") and plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsIntList(key string, fallback []int) []int {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	parts := strings.Split(strValue, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, v)
	}
	return out
}
