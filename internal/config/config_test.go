package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	// Set environment variables
	os.Setenv("IRB_PORT", "9090")
	os.Setenv("IRB_LOG_LEVEL", "debug")
	os.Setenv("IRB_SCORING_KS", "1,10,100")
	defer func() {
		os.Unsetenv("IRB_PORT")
		os.Unsetenv("IRB_LOG_LEVEL")
		os.Unsetenv("IRB_SCORING_KS")
	}()

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	if len(cfg.Scoring.Ks) != 3 || cfg.Scoring.Ks[2] != 100 {
		t.Errorf("Scoring.Ks = %v, want [1 10 100]", cfg.Scoring.Ks)
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
host: "127.0.0.1"
port: 8888
log:
  level: warn
  format: json
qdrant:
  url: "http://custom:6333"
datasets:
  root: /data/retrieval
  resize_side: -2
features:
  codec: hdf5
extract:
  embedder: http
  url: "http://embedder:9000"
  num_nodes: 2
  node_id: 1
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Host)
	}

	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888", cfg.Port)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %s, want warn", cfg.Log.Level)
	}

	if cfg.Qdrant.URL != "http://custom:6333" {
		t.Errorf("Qdrant.URL = %s, want http://custom:6333", cfg.Qdrant.URL)
	}

	if cfg.Datasets.Root != "/data/retrieval" {
		t.Errorf("Datasets.Root = %s, want /data/retrieval", cfg.Datasets.Root)
	}

	if cfg.Datasets.ResizeSide != -2 {
		t.Errorf("Datasets.ResizeSide = %d, want -2", cfg.Datasets.ResizeSide)
	}

	if cfg.Features.Codec != "hdf5" {
		t.Errorf("Features.Codec = %s, want hdf5", cfg.Features.Codec)
	}

	if cfg.Extract.NodeID != 1 || cfg.Extract.NumNodes != 2 {
		t.Errorf("Extract node = %d/%d, want 1/2", cfg.Extract.NodeID, cfg.Extract.NumNodes)
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	if cfg.Features.Codec != "gob" {
		t.Errorf("Features.Codec = %s, want gob", cfg.Features.Codec)
	}

	if cfg.Ranking.Engine != "exact" {
		t.Errorf("Ranking.Engine = %s, want exact", cfg.Ranking.Engine)
	}

	if len(cfg.Scoring.Ks) != 3 || cfg.Scoring.Ks[0] != 1 || cfg.Scoring.Ks[1] != 5 || cfg.Scoring.Ks[2] != 10 {
		t.Errorf("Scoring.Ks = %v, want [1 5 10]", cfg.Scoring.Ks)
	}

	if cfg.Extract.InitMethod != "tcp" || cfg.Extract.RunID != "auto" {
		t.Errorf("Extract init = %s/%s, want tcp/auto", cfg.Extract.InitMethod, cfg.Extract.RunID)
	}

	if cfg.Qdrant.CollectionPrefix != "irbench_" {
		t.Errorf("Qdrant.CollectionPrefix = %s, want irbench_", cfg.Qdrant.CollectionPrefix)
	}

	if cfg.Watch.Window != 2*time.Second {
		t.Errorf("Watch.Window = %v, want 2s", cfg.Watch.Window)
	}

	if cfg.Metrics.Persistence != "memory" {
		t.Errorf("Metrics.Persistence = %s, want memory", cfg.Metrics.Persistence)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Port = 0
			},
			wantErr: true,
		},
		{
			name: "invalid resize side",
			modify: func(c *Config) {
				c.Datasets.ResizeSide = -3
			},
			wantErr: true,
		},
		{
			name: "resize side original",
			modify: func(c *Config) {
				c.Datasets.ResizeSide = -1
			},
			wantErr: false,
		},
		{
			name: "invalid feature codec",
			modify: func(c *Config) {
				c.Features.Codec = "npy"
			},
			wantErr: true,
		},
		{
			name: "invalid embedder",
			modify: func(c *Config) {
				c.Extract.Embedder = "onnx"
			},
			wantErr: true,
		},
		{
			name: "http embedder without url",
			modify: func(c *Config) {
				c.Extract.Embedder = "http"
			},
			wantErr: true,
		},
		{
			name: "node id out of range",
			modify: func(c *Config) {
				c.Extract.NodeID = 2
				c.Extract.NumNodes = 2
			},
			wantErr: true,
		},
		{
			name: "invalid init method",
			modify: func(c *Config) {
				c.Extract.InitMethod = "mpi"
			},
			wantErr: true,
		},
		{
			name: "invalid ranking engine",
			modify: func(c *Config) {
				c.Ranking.Engine = "faiss"
			},
			wantErr: true,
		},
		{
			name: "scoring ks not increasing",
			modify: func(c *Config) {
				c.Scoring.Ks = []int{5, 5, 10}
			},
			wantErr: true,
		},
		{
			name: "scoring ks zero",
			modify: func(c *Config) {
				c.Scoring.Ks = []int{0, 5}
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "invalid bus type",
			modify: func(c *Config) {
				c.Bus.Type = "nats"
			},
			wantErr: true,
		},
		{
			name: "kafka bus without brokers",
			modify: func(c *Config) {
				c.Bus.Type = "kafka"
			},
			wantErr: true,
		},
		{
			name: "invalid runs backend",
			modify: func(c *Config) {
				c.Runs.Backend = "sqlite"
			},
			wantErr: true,
		},
		{
			name: "zero watch window",
			modify: func(c *Config) {
				c.Watch.Window = 0
			},
			wantErr: true,
		},
		{
			name: "invalid metrics persistence",
			modify: func(c *Config) {
				c.Metrics.Persistence = "postgres"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{
		Host: "localhost",
		Port: 8080,
	}

	if addr := cfg.Address(); addr != "localhost:8080" {
		t.Errorf("Address() = %s, want localhost:8080", addr)
	}
}

func TestWatchDir(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	if got := cfg.WatchDir(); got != cfg.Features.Dir {
		t.Errorf("WatchDir() = %s, want features dir %s", got, cfg.Features.Dir)
	}

	cfg.Watch.Dir = "/incoming"
	if got := cfg.WatchDir(); got != "/incoming" {
		t.Errorf("WatchDir() = %s, want /incoming", got)
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{}

	cfg.Log.Level = "debug"
	if !cfg.IsDevelopment() {
		t.Error("IsDevelopment() = false, want true for debug level")
	}

	cfg.Log.Level = "info"
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true, want false for info level")
	}
}
