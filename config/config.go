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

// Config es la configuración completa del bot.
type Config struct {
	Whale    WhaleConfig    `yaml:"whale"`
	Copy     CopyConfig     `yaml:"copy"`
	Paper    PaperConfig    `yaml:"paper"`
	Live     LiveConfig     `yaml:"live"`
	API      APIConfig      `yaml:"api"`
	Feed     FeedConfig     `yaml:"feed"`
	Status   StatusConfig   `yaml:"status"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Telegram TelegramConfig `yaml:"telegram"`
	Cache    CacheConfig    `yaml:"cache"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// WhaleConfig define qué es una ballena y cuándo es de calidad.
type WhaleConfig struct {
	MinTradeUSD float64 `yaml:"min_trade_usd"`
	MinWinRate  float64 `yaml:"min_win_rate"` // porcentaje, 0-100
}

// CopyConfig controla el motor de copia.
type CopyConfig struct {
	AutoCopy       bool    `yaml:"auto_copy"`
	MinConsensus   float64 `yaml:"min_consensus"`   // fracción de votos YES, (0,1]
	CopyPercentage float64 `yaml:"copy_percentage"` // % del nocional de la ballena
	MaxPositionUSD float64 `yaml:"max_position_usd"`
	Workers        int     `yaml:"workers"`
}

// PaperConfig controla el ledger simulado.
type PaperConfig struct {
	Enabled             bool    `yaml:"enabled"`
	StartingBalance     float64 `yaml:"starting_balance"`
	MarkIntervalSeconds int     `yaml:"mark_interval_seconds"` // 0 desactiva el refresco de marks
}

// LiveConfig contiene las credenciales para operar con dinero real.
type LiveConfig struct {
	PrivateKey string `yaml:"private_key"`
	Funder     string `yaml:"funder"` // proxy wallet de Polymarket
	RPCURL     string `yaml:"rpc_url"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	DataBase  string `yaml:"data_base"`
	StatsBase string `yaml:"stats_base"`
}

// FeedConfig controla el websocket de actividad.
type FeedConfig struct {
	URL                 string `yaml:"url"`
	PingSeconds         int    `yaml:"ping_seconds"`
	ReconnectSeconds    int    `yaml:"reconnect_seconds"`
	MaxReconnectSeconds int    `yaml:"max_reconnect_seconds"`
	BackfillLimit       int    `yaml:"backfill_limit"` // 0 desactiva el backfill tras reconectar
}

// StatusConfig controla el bloque de estado periódico.
type StatusConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// OracleConfig lista los modelos del swarm.
type OracleConfig struct {
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Voters         []VoterConfig `yaml:"voters"`
}

// VoterConfig describe un modelo. La API key se lee de la variable APIKeyEnv.
type VoterConfig struct {
	Name       string  `yaml:"name"`
	BaseURL    string  `yaml:"base_url"`
	Model      string  `yaml:"model"`
	APIKeyEnv  string  `yaml:"api_key_env"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// APIKey resuelve la key del voter desde el entorno.
func (v VoterConfig) APIKey() string {
	if v.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(v.APIKeyEnv)
}

// TelegramConfig activa las alertas por Telegram cuando hay token y chat.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Enabled indica si hay que crear el notifier de Telegram.
func (t TelegramConfig) Enabled() bool {
	return t.Token != "" && t.ChatID != 0
}

// CacheConfig activa la caché Redis de estadísticas de traders.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

// MetricsConfig controla el endpoint de Prometheus. Addr vacío lo desactiva.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default devuelve la configuración por defecto. Load la usa como base del YAML,
// así que las claves ausentes conservan estos valores.
func Default() Config {
	return Config{
		Whale: WhaleConfig{MinTradeUSD: 10_000, MinWinRate: 60},
		Copy: CopyConfig{
			AutoCopy:       false,
			MinConsensus:   0.70,
			CopyPercentage: 10,
			MaxPositionUSD: 100,
			Workers:        4,
		},
		Paper: PaperConfig{Enabled: true, StartingBalance: 10_000, MarkIntervalSeconds: 300},
		Live:  LiveConfig{RPCURL: "https://polygon-rpc.com"},
		API: APIConfig{
			CLOBBase:  "https://clob.polymarket.com",
			GammaBase: "https://gamma-api.polymarket.com",
			DataBase:  "https://data-api.polymarket.com",
			StatsBase: "https://api.predictfolio.com",
		},
		Feed: FeedConfig{
			URL:                 "wss://ws-live-data.polymarket.com",
			PingSeconds:         5,
			ReconnectSeconds:    5,
			MaxReconnectSeconds: 60,
			BackfillLimit:       200,
		},
		Status:  StatusConfig{IntervalSeconds: 30},
		Oracle:  OracleConfig{TimeoutSeconds: 30},
		Cache:   CacheConfig{TTLSeconds: 900},
		Storage: StorageConfig{DSN: "whalebot.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse aplica YAML y entorno sobre Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	return &cfg, nil
}

// Mode devuelve "paper" o "live".
func (c *Config) Mode() string {
	if c.Paper.Enabled {
		return "paper"
	}
	return "live"
}

// StatusInterval devuelve el intervalo del bloque de estado.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Status.IntervalSeconds) * time.Second
}

// MarkInterval devuelve el intervalo de refresco de marks; 0 lo desactiva.
func (c *Config) MarkInterval() time.Duration {
	return time.Duration(c.Paper.MarkIntervalSeconds) * time.Second
}

// Validate comprueba rangos y credenciales. Un error aquí es fatal.
func (c *Config) Validate() error {
	var errs []error
	if c.Whale.MinTradeUSD <= 0 {
		errs = append(errs, errors.New("whale.min_trade_usd must be > 0"))
	}
	if c.Whale.MinWinRate < 0 || c.Whale.MinWinRate > 100 {
		errs = append(errs, errors.New("whale.min_win_rate must be within [0,100]"))
	}
	if c.Copy.MinConsensus <= 0 || c.Copy.MinConsensus > 1 {
		errs = append(errs, errors.New("copy.min_consensus must be within (0,1]"))
	}
	if c.Copy.CopyPercentage <= 0 || c.Copy.CopyPercentage > 100 {
		errs = append(errs, errors.New("copy.copy_percentage must be within (0,100]"))
	}
	if c.Copy.MaxPositionUSD <= 0 {
		errs = append(errs, errors.New("copy.max_position_usd must be > 0"))
	}
	if c.Paper.Enabled && c.Paper.StartingBalance <= 0 {
		errs = append(errs, errors.New("paper.starting_balance must be > 0"))
	}
	if !c.Paper.Enabled {
		if c.Live.PrivateKey == "" {
			errs = append(errs, errors.New("live mode requires POLYMARKET_PRIVATE_KEY"))
		}
		if c.Live.Funder == "" {
			errs = append(errs, errors.New("live mode requires POLYMARKET_FUNDER"))
		}
	}
	for i, v := range c.Oracle.Voters {
		if v.BaseURL == "" || v.Model == "" {
			errs = append(errs, fmt.Errorf("oracle.voters[%d]: base_url and model are required", i))
		}
	}
	if c.Copy.AutoCopy && len(c.Oracle.Voters) == 0 {
		errs = append(errs, errors.New("copy.auto_copy requires at least one oracle voter"))
	}
	return errors.Join(errs...)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
// Se usan los nombres de variable históricos del bot.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	float := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	float("MIN_WHALE_TRADE_SIZE", &cfg.Whale.MinTradeUSD)
	float("MIN_WHALE_WIN_RATE", &cfg.Whale.MinWinRate)
	float("MIN_AI_CONSENSUS", &cfg.Copy.MinConsensus)
	boolean("AUTO_COPY_ENABLED", &cfg.Copy.AutoCopy)
	float("MAX_POSITION_SIZE", &cfg.Copy.MaxPositionUSD)
	float("COPY_PERCENTAGE", &cfg.Copy.CopyPercentage)
	float("PAPER_STARTING_BALANCE", &cfg.Paper.StartingBalance)
	boolean("PAPER_TRADING_ENABLED", &cfg.Paper.Enabled)
	str("POLYMARKET_PRIVATE_KEY", &cfg.Live.PrivateKey)
	str("POLYMARKET_FUNDER", &cfg.Live.Funder)
	str("POLYGON_RPC_URL", &cfg.Live.RPCURL)
	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		} else {
			cfg.Telegram.ChatID = id
		}
	}
	return errors.Join(errs...)
}

// setDefaults rellena los valores que el YAML dejó vacíos a propósito.
func setDefaults(cfg *Config) {
	d := Default()
	if cfg.Copy.Workers <= 0 {
		cfg.Copy.Workers = d.Copy.Workers
	}
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = d.Feed.URL
	}
	if cfg.Feed.PingSeconds <= 0 {
		cfg.Feed.PingSeconds = d.Feed.PingSeconds
	}
	if cfg.Feed.ReconnectSeconds <= 0 {
		cfg.Feed.ReconnectSeconds = d.Feed.ReconnectSeconds
	}
	if cfg.Feed.MaxReconnectSeconds < cfg.Feed.ReconnectSeconds {
		cfg.Feed.MaxReconnectSeconds = max(d.Feed.MaxReconnectSeconds, cfg.Feed.ReconnectSeconds)
	}
	if cfg.Status.IntervalSeconds <= 0 {
		cfg.Status.IntervalSeconds = d.Status.IntervalSeconds
	}
	if cfg.Oracle.TimeoutSeconds <= 0 {
		cfg.Oracle.TimeoutSeconds = d.Oracle.TimeoutSeconds
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = d.API.CLOBBase
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = d.API.GammaBase
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = d.API.DataBase
	}
	if cfg.API.StatsBase == "" {
		cfg.API.StatsBase = d.API.StatsBase
	}
	if cfg.Live.RPCURL == "" {
		cfg.Live.RPCURL = d.Live.RPCURL
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = d.Storage.DSN
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = d.Log.Format
	}
}
