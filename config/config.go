package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/updown/internal/domain"
)

// Config es la configuración estática del bot. Los parámetros de la
// estrategia viven aparte, en el documento de tunables (ver LoadTunables).
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	API       APIConfig       `yaml:"api"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Storage   StorageConfig   `yaml:"storage"`
	TradeLog  TradeLogConfig  `yaml:"tradelog"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Predictor PredictorConfig `yaml:"predictor"`
	Retrain   RetrainConfig   `yaml:"retrain"`
	Live      LiveConfig      `yaml:"live"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig controla el loop principal.
type EngineConfig struct {
	Mode                 string  `yaml:"mode"` // paper | live
	TickSeconds          float64 `yaml:"tick_seconds"`
	CooldownSeconds      int     `yaml:"cooldown_seconds"`
	ActivityFloorSeconds int     `yaml:"activity_floor_seconds"` // bajo este tiempo restante se liquida
	SettleDelaySeconds   int     `yaml:"settle_delay_seconds"`
	OrderSizeUSDC        float64 `yaml:"order_size_usdc"`
	StrikeAttempts       int     `yaml:"strike_attempts"`
	DefaultVolatility    float64 `yaml:"default_volatility"` // USD/min si fallan IV y realizada
	RealizedCandles      int     `yaml:"realized_candles"`
	SummaryTrades        int     `yaml:"summary_trades"`
	TunablesPath         string  `yaml:"tunables_path"`
	ReloadSeconds        int     `yaml:"reload_seconds"`
}

// APIConfig contiene los base URLs de Polymarket.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSURL     string `yaml:"ws_url"`
}

// OracleConfig apunta al precio de referencia y al índice de volatilidad.
type OracleConfig struct {
	BinanceBase string `yaml:"binance_base"`
	Symbol      string `yaml:"symbol"`
	DeribitBase string `yaml:"deribit_base"`
	Currency    string `yaml:"currency"`
}

// StorageConfig controla dónde se persiste el espejo SQLite.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// TradeLogConfig controla el JSONL append-only.
type TradeLogConfig struct {
	Path  string `yaml:"path"`
	MaxMB int    `yaml:"max_mb"`
}

// MetricsConfig: addr vacío desactiva el endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// PredictorConfig configura ONNX Runtime y el artefacto inicial (opcional).
type PredictorConfig struct {
	Path        string `yaml:"path"`
	LibraryPath string `yaml:"library_path"`
	InputName   string `yaml:"input_name"`
	OutputName  string `yaml:"output_name"`
}

// RetrainConfig configura el canal hacia el pipeline de entrenamiento.
type RetrainConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Backend         string `yaml:"backend"` // file | redis
	SpoolDir        string `yaml:"spool_dir"`
	RedisURL        string `yaml:"redis_url"`
	Stream          string `yaml:"stream"`
	ArtifactKey     string `yaml:"artifact_key"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	PollSeconds     int    `yaml:"poll_seconds"`
}

// LiveConfig solo aplica con engine.mode = live.
type LiveConfig struct {
	Redeem       bool   `yaml:"redeem"`
	RelayURL     string `yaml:"relay_url"`
	RedeemTarget string `yaml:"redeem_target"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.NewOpError(domain.ErrConfig, "config.Load", fmt.Errorf("parse YAML: %w", err))
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, domain.NewOpError(domain.ErrConfig, "config.Load", err)
	}
	return &cfg, nil
}

// IsLive es true cuando el engine opera con dinero real.
func (c *Config) IsLive() bool {
	return c.Engine.Mode == "live"
}

// TickInterval devuelve el intervalo del loop como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickSeconds * float64(time.Second))
}

// ReloadInterval devuelve cada cuánto se sondea el documento de tunables.
func (c *Config) ReloadInterval() time.Duration {
	return time.Duration(c.Engine.ReloadSeconds) * time.Second
}

// RetrainInterval devuelve cada cuánto se pide un reentrenamiento.
func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.Retrain.IntervalMinutes) * time.Minute
}

// RetrainPoll devuelve cada cuánto se busca un artefacto nuevo.
func (c *Config) RetrainPoll() time.Duration {
	return time.Duration(c.Retrain.PollSeconds) * time.Second
}

func (c *Config) validate() error {
	switch c.Engine.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("engine.mode must be paper or live, got %q", c.Engine.Mode)
	}
	switch c.Retrain.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("retrain.backend must be file or redis, got %q", c.Retrain.Backend)
	}
	if c.Retrain.Enabled && c.Retrain.Backend == "redis" && c.Retrain.RedisURL == "" {
		return fmt.Errorf("retrain.redis_url is required with the redis backend")
	}
	return nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("UPDOWN_MODE"); v != "" {
		cfg.Engine.Mode = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Retrain.RedisURL = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	e := &cfg.Engine
	if e.Mode == "" {
		e.Mode = "paper"
	}
	if e.TickSeconds <= 0 {
		e.TickSeconds = 2
	}
	if e.CooldownSeconds <= 0 {
		e.CooldownSeconds = 15
	}
	if e.ActivityFloorSeconds <= 0 {
		e.ActivityFloorSeconds = 30
	}
	if e.SettleDelaySeconds <= 0 {
		e.SettleDelaySeconds = 5
	}
	if e.OrderSizeUSDC <= 0 {
		e.OrderSizeUSDC = 1.0
	}
	if e.StrikeAttempts <= 0 {
		e.StrikeAttempts = 5
	}
	if e.DefaultVolatility <= 0 {
		e.DefaultVolatility = 25.0
	}
	if e.RealizedCandles <= 1 {
		e.RealizedCandles = 60
	}
	if e.SummaryTrades <= 0 {
		e.SummaryTrades = 20
	}
	if e.TunablesPath == "" {
		e.TunablesPath = "config/tunables.yaml"
	}
	if e.ReloadSeconds <= 0 {
		e.ReloadSeconds = 60
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WSURL == "" {
		cfg.API.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}

	if cfg.Oracle.BinanceBase == "" {
		cfg.Oracle.BinanceBase = "https://api.binance.com"
	}
	if cfg.Oracle.Symbol == "" {
		cfg.Oracle.Symbol = "BTCUSDT"
	}
	if cfg.Oracle.DeribitBase == "" {
		cfg.Oracle.DeribitBase = "https://www.deribit.com"
	}
	if cfg.Oracle.Currency == "" {
		cfg.Oracle.Currency = "BTC"
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "updown.db"
	}
	if cfg.TradeLog.Path == "" {
		cfg.TradeLog.Path = "logs/trades.jsonl"
	}
	if cfg.TradeLog.MaxMB <= 0 {
		cfg.TradeLog.MaxMB = 10
	}

	if cfg.Retrain.Backend == "" {
		cfg.Retrain.Backend = "file"
	}
	if cfg.Retrain.SpoolDir == "" {
		cfg.Retrain.SpoolDir = "retrain"
	}
	if cfg.Retrain.IntervalMinutes <= 0 {
		cfg.Retrain.IntervalMinutes = 180
	}
	if cfg.Retrain.PollSeconds <= 0 {
		cfg.Retrain.PollSeconds = 60
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
