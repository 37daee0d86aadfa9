package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log          LogConfig        `yaml:"log" mapstructure:"log"`
	Overpass     OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Nominatim    NominatimConfig  `yaml:"nominatim" mapstructure:"nominatim"`
	SVI          SVIConfig        `yaml:"svi" mapstructure:"svi"`
	Access       AccessConfig     `yaml:"access" mapstructure:"access"`
	Cache        CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Batch        BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig     `yaml:"server" mapstructure:"server"`
	Store        StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	TaxonomyPath string           `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
}

// OverpassConfig configures the OSM feature and road source.
type OverpassConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxRetries  int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// NominatimConfig configures the geocoder.
type NominatimConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RPS       float64 `yaml:"rps" mapstructure:"rps"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// SVIConfig points at the social vulnerability tract dataset.
type SVIConfig struct {
	Path   string   `yaml:"path" mapstructure:"path"`
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// AccessConfig tunes the accessibility pipeline.
type AccessConfig struct {
	RadiusM              float64 `yaml:"radius_m" mapstructure:"radius_m"`
	BufferM              float64 `yaml:"buffer_m" mapstructure:"buffer_m"`
	GroceryTier          string  `yaml:"grocery_tier" mapstructure:"grocery_tier"`
	BetweennessCutoff    float64 `yaml:"betweenness_cutoff" mapstructure:"betweenness_cutoff"`
	BetweennessMode      string  `yaml:"betweenness_mode" mapstructure:"betweenness_mode"`
	PageRankDamping      float64 `yaml:"pagerank_damping" mapstructure:"pagerank_damping"`
	ConsolidateTolerance float64 `yaml:"consolidate_tolerance" mapstructure:"consolidate_tolerance"`
	KeepDeadEnds         bool    `yaml:"keep_dead_ends" mapstructure:"keep_dead_ends"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	Path       string `yaml:"path" mapstructure:"path"`
	RedisURL   string `yaml:"redis_url" mapstructure:"redis_url"`
	Prefix     string `yaml:"prefix" mapstructure:"prefix"`
	TTLHours   int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// TTL returns the cache entry lifetime; zero means entries never expire.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	RetryAttempts  int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryDelaySecs int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	ProgressEvery  int `yaml:"progress_every" mapstructure:"progress_every"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	EnableRuns     bool     `yaml:"enable_runs" mapstructure:"enable_runs"`
}

// StoreConfig configures the PostGIS export target.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MonitoringConfig configures failure-rate alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	EmptyRateThreshold   float64 `yaml:"empty_rate_threshold" mapstructure:"empty_rate_threshold"`
	MinPlaces            int     `yaml:"min_places" mapstructure:"min_places"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("FOODACCESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.rps", 0.5)
	v.SetDefault("overpass.user_agent", "food-access-cli/1.0")
	v.SetDefault("overpass.max_retries", 3)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.rps", 1.0)
	v.SetDefault("nominatim.user_agent", "food-access-cli/1.0")
	v.SetDefault("svi.path", "")
	v.SetDefault("svi.fields", []string{"density"})
	v.SetDefault("access.radius_m", 10000.0)
	v.SetDefault("access.buffer_m", 5000.0)
	v.SetDefault("access.grocery_tier", "primary")
	v.SetDefault("access.betweenness_cutoff", 500.0)
	v.SetDefault("access.betweenness_mode", "hops")
	v.SetDefault("access.pagerank_damping", 0.85)
	v.SetDefault("access.consolidate_tolerance", 10.0)
	v.SetDefault("access.keep_dead_ends", false)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", "food-access-cache.db")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.prefix", "food-access:")
	v.SetDefault("cache.ttl_hours", 0)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.retry_attempts", 3)
	v.SetDefault("batch.retry_delay_secs", 60)
	v.SetDefault("batch.progress_every", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.enable_runs", false)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.empty_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_places", 5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("taxonomy_path", "")

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

var (
	cacheDrivers  = map[string]bool{"memory": true, "sqlite": true, "redis": true, "none": true}
	cutoffModes   = map[string]bool{"hops": true, "cost": true}
	groceryTiers  = map[string]bool{"primary": true, "secondary": true, "tertiary": true}
	validateModes = map[string]bool{"run": true, "batch": true, "serve": true, "export": true, "places": true}
)

// Validate checks the settings needed by a command mode ("run", "batch",
// "serve", "export" or "places") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	if !validateModes[mode] {
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if mode == "places" {
		return nil
	}

	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Access.RadiusM <= 0 {
		add("access.radius_m must be > 0")
	}
	if c.Access.BufferM < 0 {
		add("access.buffer_m must be >= 0")
	}
	if !groceryTiers[c.Access.GroceryTier] {
		add("access.grocery_tier must be primary, secondary or tertiary")
	}
	if !cutoffModes[c.Access.BetweennessMode] {
		add("access.betweenness_mode must be hops or cost")
	}
	if c.Access.PageRankDamping <= 0 || c.Access.PageRankDamping >= 1 {
		add("access.pagerank_damping must be between 0 and 1")
	}
	if c.Access.ConsolidateTolerance < 0 {
		add("access.consolidate_tolerance must be >= 0")
	}

	if !cacheDrivers[c.Cache.Driver] {
		add("cache.driver %q is not one of memory, sqlite, redis, none", c.Cache.Driver)
	}
	if c.Cache.Driver == "sqlite" && c.Cache.Path == "" {
		add("cache.path is required for the sqlite driver")
	}
	if c.Cache.Driver == "redis" && c.Cache.RedisURL == "" {
		add("cache.redis_url is required for the redis driver")
	}
	if c.Cache.TTLHours < 0 {
		add("cache.ttl_hours must be >= 0")
	}

	switch mode {
	case "batch":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 16 {
			add("batch.concurrency must be between 1 and 16")
		}
		if c.Batch.RetryAttempts < 1 {
			add("batch.retry_attempts must be >= 1")
		}
		if c.Batch.RetryDelaySecs < 0 {
			add("batch.retry_delay_secs must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Cache.Driver == "none" {
			add("cache.driver none leaves nothing to serve")
		}
	case "export":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required")
		}
	}

	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		add("monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Monitoring.EmptyRateThreshold < 0 || c.Monitoring.EmptyRateThreshold > 1 {
		add("monitoring.empty_rate_threshold must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
