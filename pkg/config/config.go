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

// ErrInvalidConfiguration marks settings the engine refuses to start with.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Data sources understood by the price provider factory.
const (
	SourceMock           = "mock"
	SourceBinance        = "binance"
	SourceBinanceFutures = "binance_futures"
)

// Config holds environment-driven settings for the signal core.
type Config struct {
	Port      string
	EnableAPI bool

	// Market data
	Symbols        []string
	DataSource     string
	BinanceTestnet bool
	FastInterval   string
	SlowInterval   string
	HistoryBars    int
	FetchTimeout   time.Duration
	// Requests per second allowed against the upstream provider (0 = unlimited).
	ProviderRateLimit float64
	// How long fetched history is reused before going upstream again (0 = off).
	ProviderCacheTTL time.Duration

	// Scheduler
	EvalInterval time.Duration
	EvalWorkers  int

	// Risk / ledger
	ConfidenceThreshold float64
	RiskPerTrade        float64 // fraction of equity (0.02 = 2%)
	MarginRate          float64 // 0.1 = 10x leverage
	MaxPositions        int
	StartingBalance     float64
	DrawdownAlertPct    float64

	// Storage
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string // "json" or "console"

	// API
	APIRateLimit float64
	APIBurst     int
}

// fileOverlay is the optional YAML file referenced by CONFIG_FILE.
// Zero values leave the environment setting untouched.
type fileOverlay struct {
	Symbols    []string `yaml:"symbols"`
	DataSource string   `yaml:"data_source"`
	Timeframes struct {
		Fast string `yaml:"fast"`
		Slow string `yaml:"slow"`
		Bars int    `yaml:"bars"`
	} `yaml:"timeframes"`
	Risk struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		RiskPerTrade        float64 `yaml:"risk_per_trade"`
		MarginRate          float64 `yaml:"margin_rate"`
		MaxPositions        int     `yaml:"max_positions"`
		StartingBalance     float64 `yaml:"starting_balance"`
	} `yaml:"risk"`
	EvalInterval string `yaml:"eval_interval"`
}

// Load reads environment variables (optionally via .env) into Config, applies the
// YAML overlay named by CONFIG_FILE and validates the result.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		EnableAPI:           getEnv("ENABLE_API", "true") == "true",
		Symbols:             splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT")),
		DataSource:          strings.ToLower(getEnv("DATA_SOURCE", SourceMock)),
		BinanceTestnet:      getEnv("BINANCE_TESTNET", "false") == "true",
		FastInterval:        getEnv("FAST_INTERVAL", "5m"),
		SlowInterval:        getEnv("SLOW_INTERVAL", "4h"),
		HistoryBars:         env.integer("HISTORY_BARS", 100),
		FetchTimeout:        env.duration("FETCH_TIMEOUT", 10*time.Second),
		ProviderRateLimit:   env.number("PROVIDER_RATE_LIMIT", 10),
		ProviderCacheTTL:    env.duration("PROVIDER_CACHE_TTL", 15*time.Second),
		EvalInterval:        env.duration("EVAL_INTERVAL", 5*time.Minute),
		EvalWorkers:         env.integer("EVAL_WORKERS", 4),
		ConfidenceThreshold: env.number("CONFIDENCE_THRESHOLD", 80),
		RiskPerTrade:        env.number("RISK_PER_TRADE", 0.02),
		MarginRate:          env.number("MARGIN_RATE", 0.1),
		MaxPositions:        env.integer("MAX_POSITIONS", 3),
		StartingBalance:     env.number("STARTING_BALANCE", 10000),
		DrawdownAlertPct:    env.number("DRAWDOWN_ALERT_PCT", 10),
		DBPath:              getEnv("DB_PATH", "./data/signals.db"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "console")),
		APIRateLimit:        env.number("API_RATE_LIMIT", 20),
		APIBurst:            env.integer("API_BURST", 50),
	}
	if len(env.problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(env.problems, "; "))
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFile merges a YAML overlay into cfg.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.applyYAML(data)
}

func (c *Config) applyYAML(data []byte) error {
	var f fileOverlay
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: parse yaml: %v", ErrInvalidConfiguration, err)
	}

	if syms := normalizeSymbols(f.Symbols); len(syms) > 0 {
		c.Symbols = syms
	}
	if f.DataSource != "" {
		c.DataSource = strings.ToLower(f.DataSource)
	}
	if f.Timeframes.Fast != "" {
		c.FastInterval = f.Timeframes.Fast
	}
	if f.Timeframes.Slow != "" {
		c.SlowInterval = f.Timeframes.Slow
	}
	if f.Timeframes.Bars != 0 {
		c.HistoryBars = f.Timeframes.Bars
	}
	if f.Risk.ConfidenceThreshold != 0 {
		c.ConfidenceThreshold = f.Risk.ConfidenceThreshold
	}
	if f.Risk.RiskPerTrade != 0 {
		c.RiskPerTrade = f.Risk.RiskPerTrade
	}
	if f.Risk.MarginRate != 0 {
		c.MarginRate = f.Risk.MarginRate
	}
	if f.Risk.MaxPositions != 0 {
		c.MaxPositions = f.Risk.MaxPositions
	}
	if f.Risk.StartingBalance != 0 {
		c.StartingBalance = f.Risk.StartingBalance
	}
	if f.EvalInterval != "" {
		d, err := time.ParseDuration(f.EvalInterval)
		if err != nil {
			return fmt.Errorf("%w: eval_interval %q: %v", ErrInvalidConfiguration, f.EvalInterval, err)
		}
		c.EvalInterval = d
	}
	return nil
}

// Validate rejects settings that would make the engine misbehave at runtime.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Symbols) == 0 {
		problems = append(problems, "no symbols configured")
	}
	switch c.DataSource {
	case SourceMock, SourceBinance, SourceBinanceFutures:
	default:
		problems = append(problems, fmt.Sprintf("unknown data source %q", c.DataSource))
	}
	if c.FastInterval == "" || c.SlowInterval == "" {
		problems = append(problems, "timeframe intervals must be set")
	}
	if c.HistoryBars < 50 {
		problems = append(problems, fmt.Sprintf("history bars %d below minimum 50", c.HistoryBars))
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "fetch timeout must be positive")
	}
	if c.ProviderCacheTTL < 0 {
		problems = append(problems, "provider cache ttl must not be negative")
	}
	if c.EvalInterval <= 0 {
		problems = append(problems, "eval interval must be positive")
	}
	if c.EvalWorkers <= 0 {
		problems = append(problems, "eval workers must be positive")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		problems = append(problems, fmt.Sprintf("confidence threshold %.2f outside [0,100]", c.ConfidenceThreshold))
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		problems = append(problems, fmt.Sprintf("risk per trade %.4f must be in (0,1)", c.RiskPerTrade))
	}
	if c.MarginRate <= 0 || c.MarginRate > 1 {
		problems = append(problems, fmt.Sprintf("margin rate %.4f must be in (0,1]", c.MarginRate))
	}
	if c.MaxPositions <= 0 {
		problems = append(problems, fmt.Sprintf("max positions %d must be positive", c.MaxPositions))
	}
	if c.StartingBalance <= 0 {
		problems = append(problems, "starting balance must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	return normalizeSymbols(strings.Split(val, ","))
}

// normalizeSymbols trims and upper-cases symbols and drops empty entries.
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// envReader parses typed environment values, recording every value that does
// not parse instead of silently using the default.
type envReader struct {
	problems []string
}

func (r *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func (r *envReader) fail(key, value, want string) {
	r.problems = append(r.problems, fmt.Sprintf("%s=%q is not %s", key, value, want))
}

func (r *envReader) number(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, "a number")
		return def
	}
	return f
}

func (r *envReader) integer(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, "an integer")
		return def
	}
	return i
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, "a duration")
		return def
	}
	return d
}
