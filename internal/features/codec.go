package features

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// Shard file extensions. Gob is the native codec; HDF5 is the bridge for
// shards produced by Python trainers.
const (
	ExtGob  = ".feat"
	ExtHDF5 = ".h5"
)

// gobShard is the on-disk gob payload of a .feat file.
type gobShard struct {
	Dim      int
	Features []float32
	Targets  []int64
	Indices  []int64
}

// Save writes the set to path, choosing the codec from the extension.
func Save(path string, set *FeatureSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtGob:
		return saveGob(path, set)
	case ExtHDF5, ".hdf5":
		return saveHDF5(path, set)
	default:
		return apperrors.FeatureError(fmt.Sprintf("unsupported shard extension %q", filepath.Ext(path)), nil)
	}
}

// Open reads a shard file, choosing the codec from the extension.
func Open(path string) (*FeatureSet, error) {
	var (
		set *FeatureSet
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtGob:
		set, err = openGob(path)
	case ExtHDF5, ".hdf5":
		set, err = openHDF5(path)
	default:
		return nil, apperrors.FeatureError(fmt.Sprintf("unsupported shard extension %q", filepath.Ext(path)), nil)
	}
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

func saveGob(path string, set *FeatureSet) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.FeatureError(fmt.Sprintf("create shard %s", path), err)
	}
	defer f.Close()

	payload := gobShard{
		Dim:      set.Dim,
		Features: set.Features,
		Targets:  set.Targets,
		Indices:  set.Indices,
	}
	if err := gob.NewEncoder(f).Encode(payload); err != nil {
		return apperrors.FeatureError(fmt.Sprintf("encode shard %s", path), err)
	}
	return nil
}

func openGob(path string) (*FeatureSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("open shard %s", path), err)
	}
	defer f.Close()

	var payload gobShard
	if err := gob.NewDecoder(f).Decode(&payload); err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("decode shard %s", path), err)
	}
	return &FeatureSet{
		Dim:      payload.Dim,
		Features: payload.Features,
		Targets:  payload.Targets,
		Indices:  payload.Indices,
	}, nil
}
