package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the study planner service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminEnabled    bool          `mapstructure:"admin_enabled"`
}

// LLMConfig selects and configures the text generation backend
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"` // openai or langchain
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	MaxRetries     int           `mapstructure:"max_retries"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
}

func (l LLMConfig) Normalize() LLMConfig {
	l.Provider = strings.ToLower(strings.TrimSpace(l.Provider))
	if l.Provider == "" {
		l.Provider = "openai"
	}
	if l.BaseURL == "" {
		l.BaseURL = "https://api.openai.com/v1"
	}
	l.BaseURL = strings.TrimRight(l.BaseURL, "/")
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	if l.MaxRetries < 0 {
		l.MaxRetries = 0
	}
	if l.Burst <= 0 {
		l.Burst = 1
	}
	return l
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "langchain":
	default:
		return fmt.Errorf("llm.provider must be openai or langchain, got %q", l.Provider)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0,2]")
	}
	if l.RequestsPerSec < 0 {
		return fmt.Errorf("llm.requests_per_sec must be >= 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Driver {
	case "postgres":
		return s.Postgres.Validate()
	case "sqlite":
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path required")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver must be postgres or sqlite, got %q", s.Driver)
	}
}

// DSN returns the connection string for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "sqlite" {
		return s.SQLite.Path
	}
	return s.Postgres.DSN()
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required")
	}
	return nil
}

// DSN builds a postgres URL, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// SQLiteConfig configures the embedded store
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis connection settings. An empty host disables
// the interaction event stream.
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      string        `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Stream    string        `mapstructure:"stream"`
	StreamMax int64         `mapstructure:"stream_max_len"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	if strings.TrimSpace(r.Stream) == "" {
		return fmt.Errorf("storage.redis.stream required")
	}
	return nil
}

// RetrievalConfig controls the lexical search helper
type RetrievalConfig struct {
	Engine     string        `mapstructure:"engine"` // overlap or bleve
	CorpusPath string        `mapstructure:"corpus_path"`
	TopK       int           `mapstructure:"top_k"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (r RetrievalConfig) Normalize() RetrievalConfig {
	r.Engine = strings.ToLower(strings.TrimSpace(r.Engine))
	if r.Engine == "" {
		r.Engine = "overlap"
	}
	if r.TopK <= 0 {
		r.TopK = 3
	}
	if r.Timeout <= 0 {
		r.Timeout = 10 * time.Second
	}
	return r
}

func (r RetrievalConfig) Validate() error {
	if r.Engine != "overlap" && r.Engine != "bleve" {
		return fmt.Errorf("retrieval.engine must be overlap or bleve, got %q", r.Engine)
	}
	if strings.TrimSpace(r.CorpusPath) == "" {
		return fmt.Errorf("retrieval.corpus_path required")
	}
	return nil
}

// IngestConfig controls document chunking
type IngestConfig struct {
	DocumentsDir string        `mapstructure:"documents_dir"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	ChunkOverlap int           `mapstructure:"chunk_overlap"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

func (i IngestConfig) Validate() error {
	if i.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0")
	}
	if i.ChunkOverlap < 0 || i.ChunkOverlap >= i.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be within [0, chunk_size)")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0 when telemetry is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.default_timeout", "30s")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_enabled", true)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "studybuddy.db")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.stream", "studybuddy:interactions")
	v.SetDefault("storage.redis.stream_max_len", 10000)
	v.SetDefault("retrieval.engine", "overlap")
	v.SetDefault("retrieval.corpus_path", "./corpus.json")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.timeout", "10s")
	v.SetDefault("ingest.documents_dir", "./documents")
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.fetch_timeout", "30s")
	v.SetDefault("telemetry.service_name", "studybuddy")
}

// Load reads configuration from path (or the default search paths) and
// validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("STUDYBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (STUDYBUDDY_*)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// a missing default config is fine, defaults and env cover everything
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Retrieval = cfg.Retrieval.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Retrieval.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}

// LoadConfig is Load that panics on error.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}
