//go:build cgo

package features

import (
	"fmt"

	"gonum.org/v1/hdf5"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// HDF5 dataset names inside a shard file.
const (
	h5Features = "features"
	h5Targets  = "targets"
	h5Indices  = "indices"
)

func saveHDF5(path string, set *FeatureSet) error {
	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return apperrors.FeatureError(fmt.Sprintf("create shard %s", path), err)
	}
	defer f.Close()

	n := uint(set.Len())
	if err := writeDataset(f, h5Features, []uint{n, uint(set.Dim)}, hdf5.T_NATIVE_FLOAT, &set.Features); err != nil {
		return apperrors.FeatureError(fmt.Sprintf("write %s to %s", h5Features, path), err)
	}
	if set.Targets != nil {
		if err := writeDataset(f, h5Targets, []uint{n}, hdf5.T_NATIVE_INT64, &set.Targets); err != nil {
			return apperrors.FeatureError(fmt.Sprintf("write %s to %s", h5Targets, path), err)
		}
	}
	if set.Indices != nil {
		if err := writeDataset(f, h5Indices, []uint{n}, hdf5.T_NATIVE_INT64, &set.Indices); err != nil {
			return apperrors.FeatureError(fmt.Sprintf("write %s to %s", h5Indices, path), err)
		}
	}
	return nil
}

func writeDataset(f *hdf5.File, name string, dims []uint, dtype *hdf5.Datatype, data interface{}) error {
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()

	dset, err := f.CreateDataset(name, dtype, space)
	if err != nil {
		return err
	}
	defer dset.Close()

	return dset.Write(data)
}

func openHDF5(path string) (*FeatureSet, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("open shard %s", path), err)
	}
	defer f.Close()

	dset, err := f.OpenDataset(h5Features)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("open %s in %s", h5Features, path), err)
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("read %s dims in %s", h5Features, path), err)
	}
	if len(dims) != 2 {
		return nil, apperrors.FeatureError(fmt.Sprintf(
			"%s in %s has %d dimensions, want 2", h5Features, path, len(dims)), nil)
	}

	set := &FeatureSet{
		Dim:      int(dims[1]),
		Features: make([]float32, dims[0]*dims[1]),
	}
	if len(set.Features) > 0 {
		if err := dset.Read(&set.Features); err != nil {
			return nil, apperrors.FeatureError(fmt.Sprintf("read %s in %s", h5Features, path), err)
		}
	}

	// Python-written shards may omit the annotation datasets.
	set.Targets, err = readInt64Dataset(f, h5Targets)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("read %s in %s", h5Targets, path), err)
	}
	set.Indices, err = readInt64Dataset(f, h5Indices)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("read %s in %s", h5Indices, path), err)
	}
	return set, nil
}

func readInt64Dataset(f *hdf5.File, name string) ([]int64, error) {
	dset, err := f.OpenDataset(name)
	if err != nil {
		return nil, nil // absent dataset
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	n := space.SimpleExtentNPoints()
	if n == 0 {
		return nil, nil
	}

	out := make([]int64, n)
	if err := dset.Read(&out); err != nil {
		return nil, err
	}
	return out, nil
}
