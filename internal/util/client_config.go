package util

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ClientConfig stores the configuration of the terminal client.
type ClientConfig struct {
	APIBaseURL           string        `mapstructure:"API_BASE_URL"`
	StreamURL            string        `mapstructure:"STREAM_URL"`
	LoginEmail           string        `mapstructure:"LOGIN_EMAIL"`
	LoginPassword        string        `mapstructure:"LOGIN_PASSWORD"`
	PollInterval         time.Duration `mapstructure:"POLL_INTERVAL"`
	PageSize             int           `mapstructure:"PAGE_SIZE"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReconnectBaseDelay   time.Duration `mapstructure:"RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay    time.Duration `mapstructure:"RECONNECT_MAX_DELAY"`
	ReconnectMaxAttempts int           `mapstructure:"RECONNECT_MAX_ATTEMPTS"`
}

// LoadClientConfig reads the client configuration from an optional file and
// the environment. A missing file is not an error.
func LoadClientConfig(path string) (config ClientConfig, err error) {
	v := viper.New()
	v.SetDefault("API_BASE_URL", "http://localhost:8080/v1")
	v.SetDefault("STREAM_URL", "ws://localhost:8080/v1/notifications/stream")
	v.SetDefault("LOGIN_EMAIL", "")
	v.SetDefault("LOGIN_PASSWORD", "")
	v.SetDefault("POLL_INTERVAL", "1m")
	v.SetDefault("PAGE_SIZE", 20)
	v.SetDefault("REQUEST_TIMEOUT", "10s")
	v.SetDefault("RECONNECT_BASE_DELAY", "1s")
	v.SetDefault("RECONNECT_MAX_DELAY", "30s")
	v.SetDefault("RECONNECT_MAX_ATTEMPTS", 8)

	v.AutomaticEnv()

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			v.SetConfigFile(path)
			if err = v.ReadInConfig(); err != nil {
				return
			}
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	err = validateClientConfig(config)
	return
}

func validateClientConfig(config ClientConfig) error {
	if config.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if config.StreamURL == "" {
		return fmt.Errorf("STREAM_URL is required")
	}
	if config.PageSize <= 0 || config.PageSize > 100 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 100")
	}
	if config.ReconnectBaseDelay <= 0 || config.ReconnectMaxDelay < config.ReconnectBaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must not be shorter than RECONNECT_BASE_DELAY")
	}
	if config.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be positive")
	}

	return nil
}
