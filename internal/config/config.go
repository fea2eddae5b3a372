package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Primary   Primary   `mapstructure:"primary"`
	Secondary Secondary `mapstructure:"secondary"`
	Market    Market    `mapstructure:"market"`
	Trading   Trading   `mapstructure:"trading"`
	Telegram  Telegram  `mapstructure:"telegram"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Primary holds the configuration for the authenticated primary market data feed.
type Primary struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"api_key"`
	ClientCode     string  `mapstructure:"client_code"`
	Password       string  `mapstructure:"password"`
	TotpSecret     string  `mapstructure:"totp_secret"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	QuoteAttempts  int     `mapstructure:"quote_attempts"`
	RateRetryDelay int     `mapstructure:"rate_retry_delay_seconds"`
	SessionTTL     int     `mapstructure:"session_ttl_minutes"`
}

// SessionValidity returns the window within which a login session is reused.
func (p Primary) SessionValidity() time.Duration {
	return time.Duration(p.SessionTTL) * time.Minute
}

// Secondary holds the configuration for the unauthenticated fallback feed.
// Only symbols listed here are ever routed to it.
type Secondary struct {
	BaseURL     string   `mapstructure:"base_url"`
	Symbols     []string `mapstructure:"symbols"`
	MaxAttempts int      `mapstructure:"max_attempts"`
	BackoffBase int      `mapstructure:"backoff_base_seconds"`
	BackoffCap  int      `mapstructure:"backoff_cap_seconds"`
}

// VenueToken identifies an instrument on a specific venue of the primary feed.
// Some symbols map to several venue/token pairs which are tried in order.
type VenueToken struct {
	Venue string `mapstructure:"venue"`
	Token string `mapstructure:"token"`
}

// Market holds symbol routing and fallback configuration for the price resolver.
type Market struct {
	CacheTTL         int                     `mapstructure:"cache_ttl_seconds"`
	Venues           map[string][]VenueToken `mapstructure:"venues"`
	SyntheticEnabled bool                    `mapstructure:"synthetic_enabled"`
	SyntheticBases   map[string]float64      `mapstructure:"synthetic_bases"`
}

// CacheValidity returns the TTL applied to cached quotes.
func (m Market) CacheValidity() time.Duration {
	return time.Duration(m.CacheTTL) * time.Second
}

// Trading holds the configuration for the trade lifecycle and monitor.
type Trading struct {
	MarginRate          float64 `mapstructure:"margin_rate"`
	InitialMargin       float64 `mapstructure:"initial_margin"`
	MonitorInterval     int     `mapstructure:"monitor_interval_seconds"`
	MonitorErrorBackoff int     `mapstructure:"monitor_error_backoff_seconds"`
}

// Telegram holds the optional notification bot configuration.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// Server holds the configuration for the metrics endpoint.
type Server struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("primary.rate_limit", 3) // requests per second
	viper.SetDefault("primary.rate_limit_burst", 3)
	viper.SetDefault("primary.quote_attempts", 3)
	viper.SetDefault("primary.rate_retry_delay_seconds", 2)
	viper.SetDefault("primary.session_ttl_minutes", 60)
	viper.SetDefault("secondary.max_attempts", 3)
	viper.SetDefault("secondary.backoff_base_seconds", 2)
	viper.SetDefault("secondary.backoff_cap_seconds", 10)
	viper.SetDefault("market.cache_ttl_seconds", 300)
	viper.SetDefault("market.synthetic_enabled", true)
	viper.SetDefault("trading.margin_rate", 0.20)
	viper.SetDefault("trading.initial_margin", 100000)
	viper.SetDefault("trading.monitor_interval_seconds", 30)
	viper.SetDefault("trading.monitor_error_backoff_seconds", 60)
	viper.SetDefault("server.metrics_port", 9090)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
