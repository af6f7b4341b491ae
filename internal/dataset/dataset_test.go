package dataset

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

func TestNamePredicates(t *testing.T) {
	tests := []struct {
		name      string
		revisited bool
		instre    bool
		whitening bool
	}{
		{"roxford5k", true, false, false},
		{"rparis6k", true, false, false},
		{"oxford5k", false, false, false},
		{"paris6k", false, false, false},
		{"instre", false, true, false},
		{"whitening", false, false, true},
		{"", false, false, false},
		{"ROxford5k", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRevisited(tt.name); got != tt.revisited {
				t.Errorf("IsRevisited(%q) = %v, want %v", tt.name, got, tt.revisited)
			}
			if got := IsInstre(tt.name); got != tt.instre {
				t.Errorf("IsInstre(%q) = %v, want %v", tt.name, got, tt.instre)
			}
			if got := IsWhitening(tt.name); got != tt.whitening {
				t.Errorf("IsWhitening(%q) = %v, want %v", tt.name, got, tt.whitening)
			}
		})
	}
}

func TestLoad_Routing(t *testing.T) {
	root := t.TempDir()
	writeRevisitedFixture(t, root, "roxford5k", revisitedFixture())
	writeInstreFixture(t, root, instreFixture())
	writeClassicFixture(t, root, "oxford5k")

	listFile := filepath.Join(root, "whitening_list.txt")
	if err := os.WriteFile(listFile, []byte("a.jpg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		opts       Options
		dataset    string
		wantTiered bool
	}{
		{"revisited", Options{Root: root}, "roxford5k", true},
		{"instre", Options{Root: root}, "instre", false},
		{"classic", Options{Root: root}, "oxford5k", false},
		{"whitening", Options{Root: root, ListFile: listFile}, "whitening", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Load(tt.opts, tt.dataset)
			if err != nil {
				t.Fatalf("Load(%s) error = %v", tt.dataset, err)
			}
			if d.Name() != tt.dataset {
				t.Errorf("Name() = %s, want %s", d.Name(), tt.dataset)
			}
			if d.Tiered() != tt.wantTiered {
				t.Errorf("Tiered() = %v, want %v", d.Tiered(), tt.wantTiered)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	root := t.TempDir()

	t.Run("empty name", func(t *testing.T) {
		_, err := Load(Options{Root: root}, "")
		if err == nil {
			t.Fatal("Load() expected error for empty name")
		}
		if !apperrors.IsValidation(err) {
			t.Errorf("Load() error = %v, want validation error", err)
		}
	})

	t.Run("whitening without list", func(t *testing.T) {
		if _, err := Load(Options{Root: root}, "whitening"); err == nil {
			t.Error("Load() expected error for whitening without list file")
		}
	})

	t.Run("unknown dataset", func(t *testing.T) {
		if _, err := Load(Options{Root: root}, "landmarks42"); err == nil {
			t.Error("Load() expected error for unknown dataset dir")
		}
	})
}

func TestKnown(t *testing.T) {
	known := Known()
	if len(known) != 5 {
		t.Fatalf("Known() has %d entries, want 5", len(known))
	}
	for _, name := range known {
		if name == "whitening" {
			t.Error("Known() should not advertise whitening sets")
		}
	}
}
