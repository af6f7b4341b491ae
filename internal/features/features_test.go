package features

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestFeatureSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		set     FeatureSet
		wantErr bool
	}{
		{"empty", FeatureSet{}, false},
		{"consistent", FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 4}, Targets: []int64{0, 1}, Indices: []int64{0, 1}}, false},
		{"no annotations", FeatureSet{Dim: 2, Features: []float32{1, 2}}, false},
		{"data without dim", FeatureSet{Features: []float32{1, 2}}, true},
		{"ragged buffer", FeatureSet{Dim: 3, Features: []float32{1, 2, 3, 4}}, true},
		{"target count off", FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 4}, Targets: []int64{0}}, true},
		{"index count off", FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 4}, Indices: []int64{0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.set.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFeatureSet_Rows(t *testing.T) {
	set := FeatureSet{Dim: 3, Features: []float32{1, 2, 3, 4, 5, 6}}

	if set.Len() != 2 {
		t.Errorf("Len() = %d, want 2", set.Len())
	}
	if got := set.Row(1); !reflect.DeepEqual(got, []float32{4, 5, 6}) {
		t.Errorf("Row(1) = %v, want [4 5 6]", got)
	}
}

func TestFeatureSet_Fingerprint(t *testing.T) {
	a := FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 4}}
	b := FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 4}}
	c := FeatureSet{Dim: 2, Features: []float32{1, 2, 3, 5}}
	d := FeatureSet{Dim: 4, Features: []float32{1, 2, 3, 4}}

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical sets should share a fingerprint")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different data should change the fingerprint")
	}
	if a.Fingerprint() == d.Fingerprint() {
		t.Error("different shape should change the fingerprint")
	}
	if len(a.Fingerprint()) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a.Fingerprint()))
	}
}

func TestSaveOpen_Gob(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ShardName(0, "train", "res5", ExtGob))

	in := &FeatureSet{
		Dim:      3,
		Features: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6},
		Targets:  []int64{7, 8},
		Indices:  []int64{4, 2},
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestSave_Invalid(t *testing.T) {
	dir := t.TempDir()

	if err := Save(filepath.Join(dir, "x.feat"), &FeatureSet{Dim: 3, Features: []float32{1}}); err == nil {
		t.Error("Save() expected error for ragged set")
	}
	if err := Save(filepath.Join(dir, "x.npy"), &FeatureSet{}); err == nil {
		t.Error("Save() expected error for unsupported extension")
	}
}

func TestOpen_Missing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "rank0_train_res5.feat")); err == nil {
		t.Error("Open() expected error for missing shard")
	}
}
