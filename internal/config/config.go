package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "PAGES"

type Config struct {
	Addr          string
	StoreURL      string
	StoreToken    string
	DatabaseURL   string
	MigrationsDir string
	RedisURL      string
	MeiliURL      string
	MeiliKey      string
	HistoryDir    string
	TokenSecret   string
	AutosaveDelay time.Duration
	RetryDelay    time.Duration
	JobID         string
	FolderID      string
}

// NewViper returns a viper instance with defaults, PAGES_* environment
// overrides and the optional config file applied. An empty configFile looks
// for pages.yaml in the working directory; a missing default file is not an
// error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("pages")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8788")
	v.SetDefault("store_url", "")
	v.SetDefault("store_token", "")
	v.SetDefault("database_url", "")
	v.SetDefault("migrations_dir", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("meili_url", "")
	v.SetDefault("meili_key", "")
	v.SetDefault("history_dir", "./data/history")
	v.SetDefault("token_secret", "pages-dev-secret")
	v.SetDefault("autosave_delay", 1200*time.Millisecond)
	v.SetDefault("retry_delay", 2*time.Second)
	v.SetDefault("job_id", "")
	v.SetDefault("folder_id", "")
}

func Load(v *viper.Viper) Config {
	return Config{
		Addr:          v.GetString("addr"),
		StoreURL:      strings.TrimRight(v.GetString("store_url"), "/"),
		StoreToken:    v.GetString("store_token"),
		DatabaseURL:   v.GetString("database_url"),
		MigrationsDir: v.GetString("migrations_dir"),
		RedisURL:      v.GetString("redis_url"),
		MeiliURL:      v.GetString("meili_url"),
		MeiliKey:      v.GetString("meili_key"),
		HistoryDir:    v.GetString("history_dir"),
		TokenSecret:   v.GetString("token_secret"),
		AutosaveDelay: positiveDuration(v.GetDuration("autosave_delay"), 1200*time.Millisecond),
		RetryDelay:    positiveDuration(v.GetDuration("retry_delay"), 2*time.Second),
		JobID:         strings.TrimSpace(v.GetString("job_id")),
		FolderID:      strings.TrimSpace(v.GetString("folder_id")),
	}
}

func positiveDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
