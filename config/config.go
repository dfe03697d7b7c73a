// Copyright (c) 2025 Gr4ph1xZ
// Licensed under the MIT License

// Package config provides configuration management for the Minol MQTT bridge.
//
// Configuration comes from a YAML file or, when no file is present, entirely
// from environment variables. The two sources are mutually exclusive by
// presence of the file, matching the add-on options-vs-environment split the
// bridge is deployed with.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Gr4ph1xZ/Minol-MQTT-Bridge/pkg/util"
)

const (
	defaultBaseURL       = "https://webservices.minol.com"
	defaultMQTTPort      = 1883
	defaultClientID      = "minol-mqtt-bridge"
	defaultIntervalHours = 6
	defaultMonthsBack    = 12
	defaultLogLevel      = "info"
)

// Config represents the application configuration
type Config struct {
	Minol   MinolConfig   `yaml:"minol"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Sync    SyncConfig    `yaml:"sync"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// MinolConfig holds the customer portal account settings
type MinolConfig struct {
	Email    string `yaml:"email" validate:"required"`
	Password string `yaml:"password" validate:"required"`
	BaseURL  string `yaml:"base_url" validate:"required,url"`
}

// MQTTConfig holds the message bus connection settings.
// An empty Host enables mDNS broker discovery at startup.
type MQTTConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=1,lte=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// SyncConfig holds the sync cycle settings
type SyncConfig struct {
	IntervalHours int `yaml:"interval_hours" validate:"gte=1,lte=168"`
	MonthsBack    int `yaml:"months_back" validate:"gte=1,lte=36"`
}

// HistoryConfig holds the optional InfluxDB consumption-history sink
// settings. The sink is enabled when URL is non-empty.
type HistoryConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Interval returns the configured sync interval as a duration.
func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// HistoryEnabled reports whether the optional history sink is configured.
func (c *Config) HistoryEnabled() bool {
	return c.History.URL != ""
}

// Load reads configuration from a YAML file if it exists, otherwise from
// environment variables, then applies defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		data, readErr := util.ReadFileSafely(path)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
		}
	} else {
		cfg.fromEnvironment()
	}

	cfg.setDefaults()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", validateErr)
	}

	return &cfg, nil
}

// fromEnvironment builds the configuration entirely from environment variables
func (c *Config) fromEnvironment() {
	c.Minol.Email = os.Getenv("MINOL_EMAIL")
	c.Minol.Password = os.Getenv("MINOL_PASSWORD")
	c.Minol.BaseURL = os.Getenv("BASE_URL")

	c.MQTT.Host = os.Getenv("MQTT_HOST")
	c.MQTT.Username = os.Getenv("MQTT_USER")
	c.MQTT.Password = os.Getenv("MQTT_PASSWORD")
	c.MQTT.ClientID = os.Getenv("MQTT_CLIENT_ID")
	if port := os.Getenv("MQTT_PORT"); port != "" {
		p, parseErr := strconv.Atoi(port)
		if parseErr == nil {
			c.MQTT.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MQTT_PORT '%s': %v\n", port, parseErr)
		}
	}

	if interval := os.Getenv("SCAN_INTERVAL_HOURS"); interval != "" {
		h, parseErr := strconv.Atoi(interval)
		if parseErr == nil {
			c.Sync.IntervalHours = h
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse SCAN_INTERVAL_HOURS '%s': %v\n", interval, parseErr)
		}
	}
	if months := os.Getenv("MONTHS_BACK"); months != "" {
		m, parseErr := strconv.Atoi(months)
		if parseErr == nil {
			c.Sync.MonthsBack = m
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse MONTHS_BACK '%s': %v\n", months, parseErr)
		}
	}

	c.History.URL = os.Getenv("INFLUXDB_URL")
	c.History.Token = os.Getenv("INFLUXDB_TOKEN")
	c.History.Organization = os.Getenv("INFLUXDB_ORG")
	c.History.Bucket = os.Getenv("INFLUXDB_BUCKET")

	c.Logging.Level = os.Getenv("LOG_LEVEL")
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Minol.BaseURL == "" {
		c.Minol.BaseURL = defaultBaseURL
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = defaultMQTTPort
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaultClientID
	}
	if c.Sync.IntervalHours == 0 {
		c.Sync.IntervalHours = defaultIntervalHours
	}
	if c.Sync.MonthsBack == 0 {
		c.Sync.MonthsBack = defaultMonthsBack
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed %q validation", strings.ToLower(fe.Namespace()), fe.Tag())
		}
		return err
	}

	if err := c.validatePortalURL(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return c.validateLogging()
}

// validatePortalURL requires HTTPS for non-local portal endpoints
func (c *Config) validatePortalURL() error {
	parsed, err := url.Parse(c.Minol.BaseURL)
	if err != nil {
		return fmt.Errorf("minol.base_url is not a valid URL: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil
	}

	hostname := strings.ToLower(parsed.Hostname())
	isLocal := hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.") ||
		strings.HasPrefix(hostname, "172.")

	if !isLocal {
		return fmt.Errorf("minol.base_url must use HTTPS for non-local connections (got %s). Using HTTP transmits credentials in plaintext", parsed.Scheme)
	}
	return nil
}

// validateHistory requires the full credential set when the sink is enabled
func (c *Config) validateHistory() error {
	if !c.HistoryEnabled() {
		return nil
	}
	if c.History.Token == "" {
		return fmt.Errorf("history.token is required when history.url is set")
	}
	if c.History.Organization == "" {
		return fmt.Errorf("history.organization is required when history.url is set")
	}
	if c.History.Bucket == "" {
		return fmt.Errorf("history.bucket is required when history.url is set")
	}
	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, fatal")
	}
	return nil
}
