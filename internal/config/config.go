package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	ReportInterval time.Duration
	// ReportTime, when set (HH:MM), sends reports once a day instead of on ReportInterval.
	ReportTime string
	Timezone   string
	HTTPAddr   string
}

const (
	defaultDatabaseURL = "daily_planner.db"
	defaultReportHours = 5
	defaultHTTPAddr    = ":8080"
	keyTelegramToken   = "telegram_token"
	keyDatabaseURL     = "database_url"
	keyReportInterval  = "report_interval_hours"
	keyReportTime      = "report_time"
	keyTimezone        = "timezone"
	keyHTTPAddr        = "http_addr"
)

// Load reads configuration from an optional YAML file and environment variables
// (TELEGRAM_TOKEN, DATABASE_URL, ...). Environment values win over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault(keyDatabaseURL, defaultDatabaseURL)
	v.SetDefault(keyReportInterval, defaultReportHours)
	v.SetDefault(keyHTTPAddr, defaultHTTPAddr)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{keyTelegramToken, keyDatabaseURL, keyReportInterval, keyReportTime, keyTimezone, keyHTTPAddr} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		TelegramToken:  strings.TrimSpace(v.GetString(keyTelegramToken)),
		DatabaseURL:    strings.TrimSpace(v.GetString(keyDatabaseURL)),
		ReportInterval: parseInterval(strings.TrimSpace(v.GetString(keyReportInterval))),
		ReportTime:     strings.TrimSpace(v.GetString(keyReportTime)),
		Timezone:       strings.TrimSpace(v.GetString(keyTimezone)),
		HTTPAddr:       strings.TrimSpace(v.GetString(keyHTTPAddr)),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = defaultReportHours * time.Hour
	}
	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// RequireTelegram fails when the bot token is missing.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location resolves Timezone; empty means the machine's local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
