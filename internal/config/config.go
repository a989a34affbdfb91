package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Telegram  TelegramConfig  `yaml:"telegram" mapstructure:"telegram"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Buzz      BuzzConfig      `yaml:"buzz" mapstructure:"buzz"`
	Rank      RankConfig      `yaml:"rank" mapstructure:"rank"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Dispatch  DispatchConfig  `yaml:"dispatch" mapstructure:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters (postgres only).
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// TelegramConfig holds bot credentials and the operational chat.
type TelegramConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	AdminChatID  int64  `yaml:"admin_chat_id" mapstructure:"admin_chat_id"`
	AutoRegister bool   `yaml:"auto_register" mapstructure:"auto_register"`
}

// SourceConfig configures the quest catalog fetcher.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
}

// ScorerConfig configures the trust scorer and its signal sources.
type ScorerConfig struct {
	SafeBrowsingKey     string `yaml:"safe_browsing_key" mapstructure:"safe_browsing_key"`
	SafeBrowsingURL     string `yaml:"safe_browsing_url" mapstructure:"safe_browsing_url"`
	EtherscanKey        string `yaml:"etherscan_key" mapstructure:"etherscan_key"`
	EtherscanURL        string `yaml:"etherscan_url" mapstructure:"etherscan_url"`
	WhoisKey            string `yaml:"whois_key" mapstructure:"whois_key"`
	WhoisURL            string `yaml:"whois_url" mapstructure:"whois_url"`
	TimeoutSecs         int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ScamThreshold       int    `yaml:"scam_threshold" mapstructure:"scam_threshold"`
	SuspiciousThreshold int    `yaml:"suspicious_threshold" mapstructure:"suspicious_threshold"`
}

// BuzzConfig configures the social buzz rater.
type BuzzConfig struct {
	BearerToken string `yaml:"bearer_token" mapstructure:"bearer_token"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// RankConfig configures rank-based dispatch eligibility.
type RankConfig struct {
	Floor          float64 `yaml:"floor" mapstructure:"floor"`
	ImmediateMinXP float64 `yaml:"immediate_min_xp" mapstructure:"immediate_min_xp"`
	ImmediateMaxXP float64 `yaml:"immediate_max_xp" mapstructure:"immediate_max_xp"`
}

// PipelineConfig configures cycle-level behavior.
type PipelineConfig struct {
	CooldownHours int `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
}

// DispatchConfig configures broadcast pacing.
type DispatchConfig struct {
	SendPauseMS int `yaml:"send_pause_ms" mapstructure:"send_pause_ms"`
}

// SchedulerConfig holds the cadences of the recurring jobs.
type SchedulerConfig struct {
	LiveIntervalSecs int    `yaml:"live_interval_secs" mapstructure:"live_interval_secs"`
	IntervalMinutes  int    `yaml:"interval_minutes" mapstructure:"interval_minutes"`
	DailyHourUTC     int    `yaml:"daily_hour_utc" mapstructure:"daily_hour_utc"`
	HeartbeatMinutes int    `yaml:"heartbeat_minutes" mapstructure:"heartbeat_minutes"`
	LiveLimit        int    `yaml:"live_limit" mapstructure:"live_limit"`
	IntervalLimit    int    `yaml:"interval_limit" mapstructure:"interval_limit"`
	DailyLimit       int    `yaml:"daily_limit" mapstructure:"daily_limit"`
	UptimeURL        string `yaml:"uptime_url" mapstructure:"uptime_url"`
}

// ServerConfig configures the keep-alive HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DROPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so AutomaticEnv can see it.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "dropbot.db")
	v.SetDefault("store.pool.max_conns", 0)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_chat_id", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("telegram.auto_register", true)
	v.SetDefault("source.base_url", "https://zealy.io")
	v.SetDefault("source.timeout_secs", 20)
	v.SetDefault("source.rate_per_sec", 2)
	v.SetDefault("source.burst", 4)
	v.SetDefault("scorer.safe_browsing_key", "")
	v.SetDefault("scorer.etherscan_key", "")
	v.SetDefault("scorer.whois_key", "")
	v.SetDefault("scorer.safe_browsing_url", "https://safebrowsing.googleapis.com/v4/threatMatches:find")
	v.SetDefault("scorer.etherscan_url", "https://api.etherscan.io/api")
	v.SetDefault("scorer.whois_url", "https://www.whoisxmlapi.com/whoisserver/WhoisService")
	v.SetDefault("scorer.timeout_secs", 10)
	v.SetDefault("scorer.scam_threshold", 60)
	v.SetDefault("scorer.suspicious_threshold", 30)
	v.SetDefault("buzz.bearer_token", "")
	v.SetDefault("buzz.base_url", "https://api.twitter.com")
	v.SetDefault("buzz.timeout_secs", 10)
	v.SetDefault("rank.floor", 35.0)
	v.SetDefault("rank.immediate_min_xp", 100)
	v.SetDefault("rank.immediate_max_xp", 1000)
	v.SetDefault("pipeline.cooldown_hours", 24)
	v.SetDefault("dispatch.send_pause_ms", 150)
	v.SetDefault("scheduler.live_interval_secs", 60)
	v.SetDefault("scheduler.interval_minutes", 16)
	v.SetDefault("scheduler.daily_hour_utc", 9)
	v.SetDefault("scheduler.heartbeat_minutes", 4)
	v.SetDefault("scheduler.live_limit", 25)
	v.SetDefault("scheduler.interval_limit", 40)
	v.SetDefault("scheduler.daily_limit", 50)
	v.SetDefault("scheduler.uptime_url", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
