package util

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	NotificationBackendPostgres  = "postgres"
	NotificationBackendFirestore = "firestore"
	NotificationBackendMemory    = "memory"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AllowedOrigins          []string      `mapstructure:"ALLOWED_ORIGINS"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	HTTPServerAddress       string        `mapstructure:"HTTP_SERVER_ADDRESS"`
	TokenSecretKey          string        `mapstructure:"TOKEN_SECRET_KEY"`
	AccessTokenDuration     time.Duration `mapstructure:"ACCESS_TOKEN_DURATION"`
	RefreshTokenDuration    time.Duration `mapstructure:"REFRESH_TOKEN_DURATION"`
	RedisServerAddress      string        `mapstructure:"REDIS_SERVER_ADDRESS"`
	NotificationBackend     string        `mapstructure:"NOTIFICATION_BACKEND"`
	FirebaseProjectID       string        `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string        `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	GoogleClientID          string        `mapstructure:"GOOGLE_CLIENT_ID"`
	DiscordBotToken         string        `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordChannelID        string        `mapstructure:"DISCORD_CHANNEL_ID"`
	NotificationRetention   time.Duration `mapstructure:"NOTIFICATION_RETENTION"`
	StreamPingInterval      time.Duration `mapstructure:"STREAM_PING_INTERVAL"`
	EventsChannel           string        `mapstructure:"EVENTS_CHANNEL"`
	BootstrapAdminEmail     string        `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword  string        `mapstructure:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	// Set defaults for non-sensitive config
	viper.SetDefault("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	viper.SetDefault("HTTP_SERVER_ADDRESS", "0.0.0.0:8080")
	viper.SetDefault("ACCESS_TOKEN_DURATION", "15m")
	viper.SetDefault("REFRESH_TOKEN_DURATION", "168h")
	viper.SetDefault("NOTIFICATION_BACKEND", NotificationBackendPostgres)
	viper.SetDefault("NOTIFICATION_RETENTION", "2160h")
	viper.SetDefault("STREAM_PING_INTERVAL", "25s")
	viper.SetDefault("EVENTS_CHANNEL", "schoolhub:events")

	// Prefer environment variables over config file
	viper.AutomaticEnv()

	// Load config file
	viper.SetConfigFile(path)
	if err = viper.ReadInConfig(); err != nil {
		return
	}

	// Unmarshal config into struct
	err = viper.UnmarshalExact(&config)
	if err != nil {
		return
	}

	// Validate required configuration
	err = validateConfig(config)
	return
}

func validateConfig(config Config) error {
	if config.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if config.TokenSecretKey == "" {
		return fmt.Errorf("TOKEN_SECRET_KEY is required")
	}
	if config.RedisServerAddress == "" {
		return fmt.Errorf("REDIS_SERVER_ADDRESS is required")
	}
	if config.AccessTokenDuration <= 0 || config.RefreshTokenDuration <= config.AccessTokenDuration {
		return fmt.Errorf("REFRESH_TOKEN_DURATION must be longer than ACCESS_TOKEN_DURATION")
	}

	switch config.NotificationBackend {
	case NotificationBackendPostgres, NotificationBackendMemory:
	case NotificationBackendFirestore:
		if config.FirebaseProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown NOTIFICATION_BACKEND %q", config.NotificationBackend)
	}

	if config.DiscordBotToken != "" && config.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set")
	}

	return nil
}
