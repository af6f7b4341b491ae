//go:build !cgo

package features

import (
	"fmt"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// The HDF5 codec is backed by gonum.org/v1/hdf5, a cgo binding to libhdf5,
// so it cannot be compiled into a cgo-disabled build. These stubs keep the
// extension dispatch in codec.go linking; .h5 shard I/O reports an error.

func saveHDF5(path string, _ *FeatureSet) error {
	return apperrors.FeatureError(fmt.Sprintf("write shard %s: HDF5 codec requires a cgo-enabled build", path), nil)
}

func openHDF5(path string) (*FeatureSet, error) {
	return nil, apperrors.FeatureError(fmt.Sprintf("open shard %s: HDF5 codec requires a cgo-enabled build", path), nil)
}
