package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	LedgerBaseURL string `yaml:"ledger_base_url"`
	LedgerWSURL   string `yaml:"ledger_ws_url"`

	GameID        string `yaml:"game_id"`
	PlayerAddress string `yaml:"player_address"`

	XUserID    string `yaml:"x_user_id"`
	XSessionID string `yaml:"x_session_id"`

	PollIntervalMS        int `yaml:"poll_interval_ms"`
	ResubscribeCooldownMS int `yaml:"resubscribe_cooldown_ms"`
	DeliveryTimeoutMS     int `yaml:"delivery_timeout_ms"`
	MaxPollFailures       int `yaml:"max_poll_failures"`
	LedgerRetryMax        int `yaml:"ledger_retry_max"`

	RedisURL            string `yaml:"redis_url"`
	SnapshotCacheTTLSec int    `yaml:"snapshot_cache_ttl_sec"`
	DatabaseURL         string `yaml:"database_url"`

	HTTPAddr    string `yaml:"http_addr"`
	MessagesDir string `yaml:"messages_dir"`
}

// Load reads .env (if present), then the YAML file named by CHESS_SYNC_CONFIG, then the
// process environment. Later sources win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CHESS_SYNC_CONFIG")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		PollIntervalMS:        3000,
		ResubscribeCooldownMS: 15000,
		DeliveryTimeoutMS:     30000,
		MaxPollFailures:       5,
		LedgerRetryMax:        3,
		SnapshotCacheTTLSec:   86400,
		HTTPAddr:              ":8088",
	}
}

func (c *AppConfig) overlayFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) overlayEnv() {
	setString(&c.LedgerBaseURL, "LEDGER_BASE_URL")
	setString(&c.LedgerWSURL, "LEDGER_WS_URL")
	setString(&c.GameID, "GAME_ID")
	setString(&c.PlayerAddress, "PLAYER_ADDRESS")
	setString(&c.XUserID, "X_USER_ID")
	setString(&c.XSessionID, "X_SESSION_ID")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.MessagesDir, "MESSAGES_DIR")

	setPositiveInt(&c.PollIntervalMS, "POLL_INTERVAL_MS")
	setPositiveInt(&c.ResubscribeCooldownMS, "RESUBSCRIBE_COOLDOWN_MS")
	setPositiveInt(&c.DeliveryTimeoutMS, "DELIVERY_TIMEOUT_MS")
	setPositiveInt(&c.MaxPollFailures, "MAX_POLL_FAILURES")
	setPositiveInt(&c.LedgerRetryMax, "LEDGER_RETRY_MAX")
	setPositiveInt(&c.SnapshotCacheTTLSec, "SNAPSHOT_CACHE_TTL_SEC")
}

// Validate checks required keys.
func (c *AppConfig) Validate() error {
	c.LedgerBaseURL = strings.TrimRight(strings.TrimSpace(c.LedgerBaseURL), "/")
	if c.LedgerBaseURL == "" {
		return errors.New("LEDGER_BASE_URL is required")
	}
	if strings.TrimSpace(c.GameID) == "" {
		return errors.New("GAME_ID is required")
	}
	if strings.TrimSpace(c.PlayerAddress) == "" {
		return errors.New("PLAYER_ADDRESS is required")
	}
	if c.PollIntervalMS <= 0 || c.ResubscribeCooldownMS <= 0 || c.DeliveryTimeoutMS <= 0 {
		return errors.New("poll interval, cooldown and delivery timeout must be positive")
	}
	return nil
}

func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *AppConfig) ResubscribeCooldown() time.Duration {
	return time.Duration(c.ResubscribeCooldownMS) * time.Millisecond
}

func (c *AppConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutMS) * time.Millisecond
}

func (c *AppConfig) SnapshotCacheTTL() time.Duration {
	return time.Duration(c.SnapshotCacheTTLSec) * time.Second
}

// Headers returns the X-User-* headers sent to the ledger gateway.
func (c *AppConfig) Headers() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setPositiveInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
