// Package config loads process configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration.
type Config struct {
	Calendar struct {
		// Provider selects the event source: "google" or "caldav".
		Provider   string `yaml:"provider"`
		CalendarID string `yaml:"calendar_id"`
		PastDays   int    `yaml:"sync_window_past_days"`
		FutureDays int    `yaml:"sync_window_future_days"`
		MaxResults int64  `yaml:"max_results"`
		// CalDAV settings, used when provider is "caldav".
		CalDAVEndpoint string `yaml:"caldav_endpoint"`
		CalDAVCalendar string `yaml:"caldav_calendar"`
	} `yaml:"calendar"`

	EventFilter struct {
		// Pattern selects which event titles are synchronized.
		Pattern string `yaml:"pattern"`
	} `yaml:"event_filter"`

	Extraction struct {
		Provider            string  `yaml:"provider"`
		Model               string  `yaml:"model"`
		APIKey              string  `yaml:"api_key"`
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		// DomainCompanies maps an email domain to the company it belongs to.
		DomainCompanies map[string]string `yaml:"domain_companies"`
	} `yaml:"extraction"`

	Spreadsheet struct {
		SpreadsheetID    string `yaml:"spreadsheet_id"`
		SheetName        string `yaml:"sheet_name"`
		ReducedSheetName string `yaml:"reduced_sheet_name"`
		ReducedMode      bool   `yaml:"reduced_mode"`
	} `yaml:"spreadsheet"`

	Sync struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"sync"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Calendar.Provider = "google"
	cfg.Calendar.CalendarID = "primary"
	cfg.Calendar.PastDays = 30
	cfg.Calendar.FutureDays = 60
	cfg.Calendar.MaxResults = 250
	cfg.EventFilter.Pattern = `^[\s　]*【B】`
	cfg.Extraction.Provider = "openai"
	cfg.Extraction.Model = "gpt-4o-mini"
	cfg.Extraction.ConfidenceThreshold = 0.8
	cfg.Spreadsheet.SheetName = "Bookings"
	cfg.Spreadsheet.ReducedSheetName = "Bookings_Simple"
	cfg.Sync.Timezone = "Asia/Tokyo"
	cfg.Logging.Level = "info"
	return cfg
}

// Load reads the YAML file at path (when it exists) over the defaults and
// then applies environment overrides. Env vars win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("GOOGLE_CALENDAR_ID", &cfg.Calendar.CalendarID)
	setInt("SYNC_WINDOW_PAST_DAYS", &cfg.Calendar.PastDays)
	setInt("SYNC_WINDOW_FUTURE_DAYS", &cfg.Calendar.FutureDays)
	setString("GOOGLE_SPREADSHEET_ID", &cfg.Spreadsheet.SpreadsheetID)
	setString("BOOKING_SHEET_NAME", &cfg.Spreadsheet.SheetName)
	setString("EXTRACTION_PROVIDER", &cfg.Extraction.Provider)
	setString("EXTRACTION_MODEL", &cfg.Extraction.Model)
	setString("OPENAI_API_KEY", &cfg.Extraction.APIKey)
	setFloat("CONFIDENCE_THRESHOLD", &cfg.Extraction.ConfidenceThreshold)
	setString("PRIMARY_TIMEZONE", &cfg.Sync.Timezone)
	setString("LOG_LEVEL", &cfg.Logging.Level)
}

func validate(cfg *Config) error {
	if cfg.Extraction.ConfidenceThreshold < 0 || cfg.Extraction.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0, 1], got %v", cfg.Extraction.ConfidenceThreshold)
	}
	switch cfg.Calendar.Provider {
	case "google", "caldav":
	default:
		return fmt.Errorf("unknown calendar provider: %q", cfg.Calendar.Provider)
	}
	return nil
}
