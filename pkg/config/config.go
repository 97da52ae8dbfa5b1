package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"PriceFeatures/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated warn/error entries are shipped to Kafka when Topic is set.
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"pricefeatures.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
		CORS            bool          `yaml:"cors"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"20"`
			Burst int     `yaml:"burst" default:"40"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Features struct {
		Lags             []int   `yaml:"lags"`
		RollingWindows   []int   `yaml:"rolling_windows"`
		RangeWindow      int     `yaml:"range_window"`
		RSIPeriod        int     `yaml:"rsi_period"`
		MACDFast         int     `yaml:"macd_fast"`
		MACDSlow         int     `yaml:"macd_slow"`
		MACDSignal       int     `yaml:"macd_signal"`
		MACDWindow       int     `yaml:"macd_window"`
		MACDSignalWindow int     `yaml:"macd_signal_window"`
		BollingerPeriod  int     `yaml:"bollinger_period"`
		BollingerK       float64 `yaml:"bollinger_k"`
		ATRPeriod        int     `yaml:"atr_period"`
		StochK           int     `yaml:"stoch_k"`
		StochD           int     `yaml:"stoch_d"`
		ChangeHorizons   []int   `yaml:"change_horizons"`
		VolatilityWindow int     `yaml:"volatility_window"`
		MomentumHorizons []int   `yaml:"momentum_horizons"`
		TargetHorizon    int     `yaml:"target_horizon"`
		Timezone         string  `yaml:"timezone"`
		NormalizeMin     float64 `yaml:"normalize_min" validate:"gte=0"`
		NormalizeMax     float64 `yaml:"normalize_max" validate:"gte=0"`
	} `yaml:"features"`
	Enrichment struct {
		ContextSize  int           `yaml:"context_size" default:"100" validate:"gt=0"`
		MinHistory   int           `yaml:"min_history" default:"60" validate:"gt=0,ltefield=ContextSize"`
		BatchSize    int           `yaml:"batch_size" default:"1000" validate:"gt=0"`
		Retention    time.Duration `yaml:"retention" default:"2160h"`
		CleanupEvery time.Duration `yaml:"cleanup_every" default:"1h"`
		Source       string        `yaml:"source" default:"binance"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"5m"`
	} `yaml:"enrichment"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		PriceTable       string        `yaml:"price_table" default:"btc_prices"`
		FeatureTable     string        `yaml:"feature_table" default:"btc_features"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Topics       struct {
			Prices   string `yaml:"prices" default:"btc.prices"`
			Features string `yaml:"features" default:"btc.features"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"pricefeatures"`
			StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
			BufferSize  int           `yaml:"buffer_size" default:"64"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"btc.prices.dlq"`
			SlowMessage time.Duration `yaml:"slow_message" default:"500ms"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Host      string `yaml:"host" default:"localhost"`
		Port      int    `yaml:"port" default:"6379"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size" default:"10"`
		Prefix    string `yaml:"prefix" default:"pricefeatures"`
		QueueJobs struct {
			Workers    int           `yaml:"workers" default:"1"`
			RetryLimit int           `yaml:"retry_limit" default:"2"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key" validate:"required_if=Enabled true"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbol         string        `yaml:"symbol" default:"BINANCE:BTCUSDT"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"finnhub"`
	Forecast struct {
		Enabled bool          `yaml:"enabled"`
		URL     string        `yaml:"url" validate:"required_if=Enabled true"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
		Retries int           `yaml:"retries" default:"2"`
	} `yaml:"forecast"`
}

var validate = validator.New()

// Load reads a YAML file, applies defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("FORECAST_URL"); v != "" {
		c.Forecast.URL = v
	}
	c.Enrichment.Retention = util.ParseDurationDefault(getenv("ENRICH_RETENTION"), c.Enrichment.Retention)
	c.Enrichment.BatchSize = util.ParseIntDefault(getenv("ENRICH_BATCH_SIZE"), c.Enrichment.BatchSize)
}

// Validate checks field rules and cross-section constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Features.NormalizeMax != 0 || c.Features.NormalizeMin != 0 {
		if c.Features.NormalizeMax <= c.Features.NormalizeMin {
			return fmt.Errorf("features.normalize_max must exceed features.normalize_min")
		}
	}
	if c.Enrichment.Retention < 0 {
		return fmt.Errorf("enrichment.retention must not be negative")
	}
	if c.Finnhub.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("finnhub collection needs clickhouse enabled")
	}
	return nil
}
