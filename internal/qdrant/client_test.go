package qdrant

import (
	"testing"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.Host != DefaultHost {
		t.Errorf("expected host %s, got %s", DefaultHost, cfg.Host)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Port)
	}

	if cfg.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, cfg.Timeout)
	}
}

func TestDefaultCollectionConfig(t *testing.T) {
	cfg := DefaultCollectionConfig("roxford5k", 2048)

	if cfg.Name != "roxford5k" {
		t.Errorf("expected name 'roxford5k', got %s", cfg.Name)
	}

	if cfg.VectorSize != 2048 {
		t.Errorf("expected vector size 2048, got %d", cfg.VectorSize)
	}

	if !cfg.OnDiskPayload {
		t.Error("expected OnDiskPayload to be true")
	}
}

func TestClientConfigFromURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"empty keeps defaults", "", DefaultHost, DefaultPort, false, false},
		{"rest port plus one", "http://qdrant.example.com:6333", "qdrant.example.com", 6334, false, false},
		{"https enables tls", "https://qdrant.example.com:443", "qdrant.example.com", 444, true, false},
		{"no port keeps default", "http://qdrant.example.com", "qdrant.example.com", DefaultPort, false, false},
		{"bare host and port", "10.0.0.5:6333", "10.0.0.5", 6334, false, false},
		{"bad port", "10.0.0.5:abc", "", 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ClientConfigFromURL(tt.url, "secret")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("host = %s, expected %s", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("port = %d, expected %d", cfg.Port, tt.wantPort)
			}
			if cfg.UseTLS != tt.wantTLS {
				t.Errorf("tls = %v, expected %v", cfg.UseTLS, tt.wantTLS)
			}
			if cfg.APIKey != "secret" {
				t.Errorf("api key = %s, expected secret", cfg.APIKey)
			}
		})
	}
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"roxford5k", "irbench_roxford5k"},
		{"rparis6k", "irbench_rparis6k"},
		{"instre", "irbench_instre"},
	}

	for _, tt := range tests {
		result := collectionName(tt.input)
		if result != tt.expected {
			t.Errorf("collectionName(%s) = %s, expected %s", tt.input, result, tt.expected)
		}
	}
}

func TestFeaturePointToQdrant(t *testing.T) {
	point := FeaturePoint{
		Index:   42,
		Name:    "all_souls_000013",
		Dataset: "roxford5k",
		Vector:  []float32{0.1, 0.2, 0.3},
	}

	qp, err := featurePointToQdrant(point)
	if err != nil {
		t.Fatalf("featurePointToQdrant() error = %v", err)
	}

	if qp.Id == nil {
		t.Fatal("point ID not set")
	}
	if qp.Payload["name"].GetStringValue() != "all_souls_000013" {
		t.Errorf("payload name = %v, want all_souls_000013", qp.Payload["name"])
	}
	if qp.Payload["dataset"].GetStringValue() != "roxford5k" {
		t.Errorf("payload dataset = %v, want roxford5k", qp.Payload["dataset"])
	}
}

func TestFeaturePointToQdrant_Invalid(t *testing.T) {
	if _, err := featurePointToQdrant(FeaturePoint{Index: -1, Vector: []float32{1}}); err == nil {
		t.Error("expected error for negative index")
	}

	if _, err := featurePointToQdrant(FeaturePoint{Index: 0}); err == nil {
		t.Error("expected error for empty vector")
	}
}

func TestBuildDatasetFilter(t *testing.T) {
	// Empty dataset should return nil
	if result := buildDatasetFilter(""); result != nil {
		t.Error("expected nil for empty dataset")
	}

	result := buildDatasetFilter("rparis6k")
	if result == nil {
		t.Fatal("expected non-nil for dataset filter")
	}
	if len(result.Must) != 1 {
		t.Errorf("expected 1 condition, got %d", len(result.Must))
	}
}

func TestCollectionInfo(t *testing.T) {
	info := CollectionInfo{
		Name:          "roxford5k",
		PointsCount:   4993,
		VectorsCount:  4993,
		Status:        "green",
		SegmentsCount: 4,
	}

	if info.Name != "roxford5k" {
		t.Errorf("expected name 'roxford5k', got %s", info.Name)
	}

	if info.PointsCount != 4993 {
		t.Errorf("expected points count 4993, got %d", info.PointsCount)
	}

	if info.Status != "green" {
		t.Errorf("expected status 'green', got %s", info.Status)
	}
}
