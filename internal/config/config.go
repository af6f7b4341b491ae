// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"IRB_HOST" yaml:"host"`
	Port int    `envconfig:"IRB_PORT" yaml:"port"`

	// Dataset configuration
	Datasets DatasetsConfig `yaml:"datasets"`

	// Feature shard configuration
	Features FeaturesConfig `yaml:"features"`

	// Extraction configuration
	Extract ExtractConfig `yaml:"extract"`

	// Ranking configuration
	Ranking RankingConfig `yaml:"ranking"`

	// Scoring configuration
	Scoring ScoringConfig `yaml:"scoring"`

	// Qdrant configuration
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Shard watcher configuration
	Watch WatchConfig `yaml:"watch"`

	// Run storage configuration
	Runs RunsConfig `yaml:"runs"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`
}

// DatasetsConfig holds dataset location and image loading settings.
type DatasetsConfig struct {
	Root       string `envconfig:"IRB_DATASETS_ROOT" yaml:"root"`
	ListFile   string `envconfig:"IRB_WHITENING_LIST" yaml:"list_file"`
	ResizeSide int    `envconfig:"IRB_RESIZE_SIDE" yaml:"resize_side"` // -1 = original, -2 = cap at 1024
}

// FeaturesConfig holds feature shard settings.
type FeaturesConfig struct {
	Dir       string `envconfig:"IRB_FEATURES_DIR" yaml:"dir"`
	Codec     string `envconfig:"IRB_FEATURES_CODEC" yaml:"codec"`
	Split     string `envconfig:"IRB_FEATURES_SPLIT" yaml:"split"`
	Layer     string `envconfig:"IRB_FEATURES_LAYER" yaml:"layer"`
	WorldSize int    `envconfig:"IRB_WORLD_SIZE" yaml:"world_size"` // 0 = infer from shards
}

// ExtractConfig holds feature extraction settings.
type ExtractConfig struct {
	Embedder   string `envconfig:"IRB_EMBEDDER" yaml:"embedder"`
	URL        string `envconfig:"IRB_EMBED_URL" yaml:"url"`
	Dim        int    `envconfig:"IRB_EMBED_DIM" yaml:"dim"` // feature dimension of the http embedder
	BatchSize  int    `envconfig:"IRB_EMBED_BATCH_SIZE" yaml:"batch_size"`
	Workers    int    `envconfig:"IRB_EXTRACT_WORKERS" yaml:"workers"`
	NodeID     int    `envconfig:"IRB_NODE_ID" yaml:"node_id"`
	NumNodes   int    `envconfig:"IRB_NUM_NODES" yaml:"num_nodes"`
	Seed       int64  `envconfig:"IRB_SEED" yaml:"seed"`
	InitMethod string `envconfig:"IRB_INIT_METHOD" yaml:"init_method"`
	RunID      string `envconfig:"IRB_RUN_ID" yaml:"run_id"`
}

// RankingConfig holds similarity engine settings.
type RankingConfig struct {
	Engine   string `envconfig:"IRB_RANKING_ENGINE" yaml:"engine"`
	AnnLimit int    `envconfig:"IRB_ANN_LIMIT" yaml:"ann_limit"`
}

// ScoringConfig holds evaluation scoring settings.
type ScoringConfig struct {
	Ks []int `envconfig:"IRB_SCORING_KS" yaml:"ks"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	URL              string `envconfig:"QDRANT_URL" yaml:"url"`
	APIKey           string `envconfig:"QDRANT_API_KEY" yaml:"api_key"`
	CollectionPrefix string `envconfig:"QDRANT_COLLECTION_PREFIX" yaml:"collection_prefix"`
}

// RedisConfig holds Redis settings for metric persistence.
type RedisConfig struct {
	URL string `envconfig:"IRB_REDIS_URL" yaml:"url"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"IRB_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"IRB_KAFKA_BROKERS" yaml:"kafka_brokers"`
	EventLog     string `envconfig:"IRB_EVENT_LOG" yaml:"event_log"` // empty = disabled
}

// WatchConfig holds shard drop-directory watcher settings.
type WatchConfig struct {
	Dir        string        `envconfig:"IRB_WATCH_DIR" yaml:"dir"` // empty = features dir
	Window     time.Duration `envconfig:"IRB_WATCH_WINDOW" yaml:"window"`
	Evaluate   bool          `envconfig:"IRB_WATCH_EVALUATE" yaml:"evaluate"`
	Dataset    string        `envconfig:"IRB_WATCH_DATASET" yaml:"dataset"`
	IgnoreFile string        `envconfig:"IRB_WATCH_IGNORE_FILE" yaml:"ignore_file"`
}

// RunsConfig holds evaluation run storage settings.
type RunsConfig struct {
	Backend string `envconfig:"IRB_RUNS_BACKEND" yaml:"backend"`
	Dir     string `envconfig:"IRB_RUNS_DIR" yaml:"dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"IRB_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"IRB_LOG_FORMAT" yaml:"format"`
	File   string `envconfig:"IRB_LOG_FILE" yaml:"file"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	APIKey      string `envconfig:"IRB_API_KEY" yaml:"api_key"`
	RateLimit   int    `envconfig:"IRB_RATE_LIMIT" yaml:"rate_limit"` // 0 = disabled
	CORSOrigins string `envconfig:"IRB_CORS_ORIGINS" yaml:"cors_origins"`
}

// MetricsConfig holds metrics exposition settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"IRB_METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"IRB_METRICS_PATH" yaml:"path"`

	// Persistence selects the time-series backing store, "memory" or
	// "redis". Redis keeps the stats history across restarts.
	Persistence string `envconfig:"IRB_METRICS_PERSISTENCE" yaml:"persistence"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080

	cfg.Datasets = DatasetsConfig{
		Root:       "./data",
		ResizeSide: 1024,
	}

	cfg.Features = FeaturesConfig{
		Dir:   "./features",
		Codec: "gob",
		Split: "test",
		Layer: "heads",
	}

	cfg.Extract = ExtractConfig{
		Embedder:   "tiny",
		BatchSize:  32,
		Workers:    4,
		NodeID:     0,
		NumNodes:   1,
		Seed:       0,
		InitMethod: "tcp",
		RunID:      "auto",
	}

	cfg.Ranking = RankingConfig{
		Engine:   "exact",
		AnnLimit: 1000,
	}

	cfg.Scoring = ScoringConfig{
		Ks: []int{1, 5, 10},
	}

	cfg.Qdrant = QdrantConfig{
		URL:              "http://localhost:6333",
		CollectionPrefix: "irbench_",
	}

	cfg.Redis = RedisConfig{
		URL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Watch = WatchConfig{
		Window:     2 * time.Second,
		IgnoreFile: ".irbignore",
	}

	cfg.Runs = RunsConfig{
		Backend: "file",
		Dir:     "./runs",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		CORSOrigins: "*",
	}

	cfg.Metrics = MetricsConfig{
		Enabled:     true,
		Path:        "/metrics",
		Persistence: "memory",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	// Dataset validation
	if c.Datasets.ResizeSide != -1 && c.Datasets.ResizeSide != -2 && c.Datasets.ResizeSide < 1 {
		errs = append(errs, fmt.Sprintf("invalid resize_side: %d (must be -1, -2, or a positive pixel size)", c.Datasets.ResizeSide))
	}

	// Feature validation
	validCodecs := map[string]bool{"gob": true, "hdf5": true}
	if !validCodecs[c.Features.Codec] {
		errs = append(errs, fmt.Sprintf("invalid feature codec: %s (must be gob or hdf5)", c.Features.Codec))
	}

	if c.Features.WorldSize < 0 {
		errs = append(errs, "world_size must not be negative")
	}

	// Extraction validation
	validEmbedders := map[string]bool{"tiny": true, "http": true}
	if !validEmbedders[c.Extract.Embedder] {
		errs = append(errs, fmt.Sprintf("invalid embedder: %s (must be tiny or http)", c.Extract.Embedder))
	}

	if c.Extract.Embedder == "http" && c.Extract.URL == "" {
		errs = append(errs, "embed url is required for the http embedder")
	}

	if c.Extract.Embedder == "http" && c.Extract.Dim < 1 {
		errs = append(errs, "embed dim is required for the http embedder")
	}

	if c.Extract.BatchSize < 1 {
		errs = append(errs, "batch_size must be positive")
	}

	if c.Extract.Workers < 1 {
		errs = append(errs, "workers must be positive")
	}

	if c.Extract.NumNodes < 1 {
		errs = append(errs, "num_nodes must be positive")
	}

	if c.Extract.NodeID < 0 || c.Extract.NodeID >= c.Extract.NumNodes {
		errs = append(errs, fmt.Sprintf("node_id %d out of range for %d nodes", c.Extract.NodeID, c.Extract.NumNodes))
	}

	validInitMethods := map[string]bool{"tcp": true, "env": true, "file": true}
	if !validInitMethods[c.Extract.InitMethod] {
		errs = append(errs, fmt.Sprintf("invalid init_method: %s (must be tcp, env, or file)", c.Extract.InitMethod))
	}

	// Ranking validation
	validEngines := map[string]bool{"exact": true, "qdrant": true}
	if !validEngines[c.Ranking.Engine] {
		errs = append(errs, fmt.Sprintf("invalid ranking engine: %s (must be exact or qdrant)", c.Ranking.Engine))
	}

	if c.Ranking.Engine == "qdrant" && c.Ranking.AnnLimit < 1 {
		errs = append(errs, "ann_limit must be positive for the qdrant engine")
	}

	// Scoring validation
	for i, k := range c.Scoring.Ks {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("scoring ks must be positive, got %d", k))
			break
		}
		if i > 0 && k <= c.Scoring.Ks[i-1] {
			errs = append(errs, "scoring ks must be strictly increasing")
			break
		}
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "kafka_brokers is required for the kafka bus")
	}

	// Watch validation
	if c.Watch.Window <= 0 {
		errs = append(errs, "watch window must be positive")
	}

	// Run storage validation
	validRunBackends := map[string]bool{"memory": true, "file": true}
	if !validRunBackends[c.Runs.Backend] {
		errs = append(errs, fmt.Sprintf("invalid runs backend: %s (must be memory or file)", c.Runs.Backend))
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Metrics validation
	validPersistence := map[string]bool{"memory": true, "redis": true}
	if !validPersistence[c.Metrics.Persistence] {
		errs = append(errs, fmt.Sprintf("invalid metrics persistence: %s (must be memory or redis)", c.Metrics.Persistence))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WatchDir returns the directory the shard watcher should observe.
func (c *Config) WatchDir() string {
	if c.Watch.Dir != "" {
		return c.Watch.Dir
	}
	return c.Features.Dir
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
