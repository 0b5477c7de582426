// Package config loads application configuration and installs the global logger.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Proxy      ProxyConfig      `yaml:"proxy" mapstructure:"proxy"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	Catalogs   CatalogsConfig   `yaml:"catalogs" mapstructure:"catalogs"`
	Report     ReportConfig     `yaml:"report" mapstructure:"report"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ProxyConfig configures the proxy registry.
type ProxyConfig struct {
	// File holds one proxy URI per line: scheme://[user:pass@]host[:port].
	File string `yaml:"file" mapstructure:"file"`

	// ProbeURLs is the health-check battery. A proxy is reachable only if
	// every probe returns a non-5xx, non-429 response.
	ProbeURLs []string `yaml:"probe_urls" mapstructure:"probe_urls"`

	// DisableCooldownSecs is how long a disabled proxy stays out of the
	// reachable set before unconditional reinstatement.
	DisableCooldownSecs int `yaml:"disable_cooldown_secs" mapstructure:"disable_cooldown_secs"`

	// EmptyPoolWaitSecs is the backoff before GetRandom re-checks an empty
	// reachable set.
	EmptyPoolWaitSecs int `yaml:"empty_pool_wait_secs" mapstructure:"empty_pool_wait_secs"`

	ProbeTimeoutSecs int `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
}

// CrawlConfig configures discovery, harvesting and extraction.
type CrawlConfig struct {
	// MaxItemsPerFilter is the item count above which a price window is
	// bisected further.
	MaxItemsPerFilter int `yaml:"max_items_per_filter" mapstructure:"max_items_per_filter"`

	// MaxPages caps listing-page requests per filter. Pages beyond the cap
	// are an accepted, logged coverage gap.
	MaxPages int `yaml:"max_pages" mapstructure:"max_pages"`

	// MaxPrice is the upper bound of the root price window, in minor units.
	MaxPrice int `yaml:"max_price" mapstructure:"max_price"`

	// Concurrency bounds the product-extraction fan-out per catalog.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	// CompletionThreshold is the parsed-vs-discovered percentage gating
	// catalog acceptance vs. retry.
	CompletionThreshold float64 `yaml:"completion_threshold" mapstructure:"completion_threshold"`

	// RetryDelaySecs is the pause before the retry pass over failed catalogs.
	RetryDelaySecs int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`

	// RequestsPerSecond and Burst feed the shared client-side rate limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`

	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CatalogsConfig points at the catalog/brand/SKU input files.
type CatalogsConfig struct {
	CatalogsFile string `yaml:"catalogs_file" mapstructure:"catalogs_file"`
	BrandsFile   string `yaml:"brands_file" mapstructure:"brands_file"`
	SKUsFile     string `yaml:"skus_file" mapstructure:"skus_file"`
}

// ReportConfig configures the delimited report output and its transfer.
type ReportConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	FilePrefix string `yaml:"file_prefix" mapstructure:"file_prefix"`

	FTPAddr     string `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	FTPDir      string `yaml:"ftp_dir" mapstructure:"ftp_dir"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the status/metrics HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the smoke checker and alert webhook.
type MonitoringConfig struct {
	WebhookURL    string `yaml:"webhook_url" mapstructure:"webhook_url"`
	SmokeCatalogs int    `yaml:"smoke_catalogs" mapstructure:"smoke_catalogs"`
	SmokeProducts int    `yaml:"smoke_products" mapstructure:"smoke_products"`

	// FailureRateThreshold is the failed-catalog fraction above which a run
	// alert fires.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and WBCRAWLER_* environment
// variables, applying defaults for every knob.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WBCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("proxy.file", "proxies.txt")
	v.SetDefault("proxy.probe_urls", DefaultProbeURLs())
	v.SetDefault("proxy.disable_cooldown_secs", 20)
	v.SetDefault("proxy.empty_pool_wait_secs", 20)
	v.SetDefault("proxy.probe_timeout_secs", 15)
	v.SetDefault("crawl.max_items_per_filter", 1000)
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.max_price", 100_000_000)
	v.SetDefault("crawl.concurrency", 45)
	v.SetDefault("crawl.completion_threshold", 90.0)
	v.SetDefault("crawl.retry_delay_secs", 2*60*60)
	v.SetDefault("crawl.requests_per_second", 20.0)
	v.SetDefault("crawl.burst", 60)
	v.SetDefault("crawl.timeout_secs", 30)
	v.SetDefault("catalogs.catalogs_file", "csv/catalogs.csv")
	v.SetDefault("catalogs.brands_file", "csv/brands.csv")
	v.SetDefault("catalogs.skus_file", "csv/skus_id.csv")
	v.SetDefault("report.dir", "csv")
	v.SetDefault("report.file_prefix", "d_parsed_data_")
	v.SetDefault("store.path", "wb-crawler.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.smoke_catalogs", 5)
	v.SetDefault("monitoring.smoke_products", 50)
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// DefaultProbeURLs returns the stock health-check battery: the production
// host plus the content-delivery mirrors.
func DefaultProbeURLs() []string {
	urls := []string{
		"https://www.wildberries.ru/",
		"https://card.wb.ru/",
		"https://wb.ru/",
	}
	for i := 1; i <= 11; i++ {
		urls = append(urls, fmt.Sprintf("https://basket-%02d.wb.ru/", i))
	}
	return urls
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
