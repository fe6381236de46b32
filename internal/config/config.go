package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"birrwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Pair      PairConfig      `mapstructure:"pair"`
	Peg       PegConfig       `mapstructure:"peg"`
	Official  OfficialConfig  `mapstructure:"official"`
	Stats     StatsConfig     `mapstructure:"stats"`
	History   HistoryConfig   `mapstructure:"history"`
	Report    ReportConfig    `mapstructure:"report"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// FetchConfig governs the per-cycle fetch fan-out.
type FetchConfig struct {
	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PageDelay time.Duration `mapstructure:"page_delay"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SourcesConfig declares the marketplace adapters and the pooled subset.
type SourcesConfig struct {
	Unified  UnifiedConfig  `mapstructure:"unified"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	// Pooled names the sources combined into the headline sample; empty
	// pools every source.
	Pooled []string `mapstructure:"pooled"`
}

// UnifiedConfig covers the unified P2P aggregation endpoint; one adapter is
// built per listed market.
type UnifiedConfig struct {
	BaseURL string   `mapstructure:"base_url"`
	Markets []string `mapstructure:"markets"`
	Rows    int      `mapstructure:"rows"`
}

// ExchangeConfig covers the direct exchange C2C endpoint.
type ExchangeConfig struct {
	Name      string   `mapstructure:"name"`
	SearchURL string   `mapstructure:"search_url"`
	Sides     []string `mapstructure:"sides"`
	Rows      int      `mapstructure:"rows"`
}

// PairConfig fixes the trading pair.
type PairConfig struct {
	Asset string `mapstructure:"asset"`
	Fiat  string `mapstructure:"fiat"`
}

// PegConfig selects and parameterises the stablecoin peg source.
type PegConfig struct {
	Source      string `mapstructure:"source"` // "spot" or "chain"
	SpotURL     string `mapstructure:"spot_url"`
	AssetID     string `mapstructure:"asset_id"`
	RPCURL      string `mapstructure:"rpc_url"`
	FeedAddress string `mapstructure:"feed_address"`
}

// OfficialConfig selects and parameterises the official-rate source.
type OfficialConfig struct {
	Source      string `mapstructure:"source"` // "api" or "scrape"
	APIURL      string `mapstructure:"api_url"`
	ScrapeURL   string `mapstructure:"scrape_url"`
	RowSelector string `mapstructure:"row_selector"`
}

// StatsConfig tunes the aggregation engine.
type StatsConfig struct {
	BandLow  float64 `mapstructure:"band_low"`
	BandHigh float64 `mapstructure:"band_high"`
	// PercentileStrategy forces "inclusive" or "nearest-rank"; empty lets
	// the startup probe decide.
	PercentileStrategy string `mapstructure:"percentile_strategy"`
}

// HistoryConfig locates the append-only log.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig sets dashboard output behaviour.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Charts    bool   `mapstructure:"charts"`
}

// SchedulerConfig governs the optional internal watch loop.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines premium alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BIRRWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "birrwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("fetch.workers", 10)
	v.SetDefault("fetch.timeout", "8s")
	v.SetDefault("fetch.page_delay", "250ms")
	v.SetDefault("fetch.user_agent", "birrwatch/1.0")

	v.SetDefault("sources.unified.markets", []string{"binance", "okx"})
	v.SetDefault("sources.unified.rows", 20)
	v.SetDefault("sources.exchange.name", "binance.c2c")
	v.SetDefault("sources.exchange.search_url", "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search")
	v.SetDefault("sources.exchange.sides", []string{"SELL", "BUY"})
	v.SetDefault("sources.exchange.rows", 20)
	v.SetDefault("sources.pooled", []string{})

	v.SetDefault("pair.asset", "USDT")
	v.SetDefault("pair.fiat", "ETB")

	v.SetDefault("peg.source", "spot")
	v.SetDefault("peg.spot_url", "https://api.coingecko.com/api/v3/simple/price?ids=tether&vs_currencies=usd")
	v.SetDefault("peg.asset_id", "tether")

	v.SetDefault("official.source", "api")
	v.SetDefault("official.api_url", "https://open.er-api.com/v6/latest/USD")

	v.SetDefault("stats.band_low", 50.0)
	v.SetDefault("stats.band_high", 400.0)
	v.SetDefault("stats.percentile_strategy", "")

	v.SetDefault("history.path", "data/history.csv")

	v.SetDefault("report.output_dir", "public")
	v.SetDefault("report.charts", true)

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 5.0)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be greater than zero")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be greater than zero")
	}
	if c.Stats.BandLow >= c.Stats.BandHigh {
		return fmt.Errorf("stats.band_low must be below stats.band_high")
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path must be set")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Peg.Source {
	case "spot", "chain":
	default:
		return fmt.Errorf("peg.source must be \"spot\" or \"chain\"")
	}
	switch c.Official.Source {
	case "api", "scrape":
	default:
		return fmt.Errorf("official.source must be \"api\" or \"scrape\"")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}
