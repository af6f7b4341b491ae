// Package features models extracted feature shards: row-major float32
// feature matrices with their targets and dataset indices, the per-rank shard
// files distributed extraction writes, and the merge that reassembles them
// into a single index-ordered set.
package features

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/hash"
)

// FeatureSet is a dense N x Dim float32 feature matrix. Targets and Indices
// are optional per-row annotations; shard files always carry both so merged
// sets can be reordered by dataset index.
type FeatureSet struct {
	Dim      int
	Features []float32
	Targets  []int64
	Indices  []int64
}

// Len returns the number of feature rows.
func (s *FeatureSet) Len() int {
	if s.Dim <= 0 {
		return 0
	}
	return len(s.Features) / s.Dim
}

// Row returns feature row i. The slice aliases the underlying buffer.
func (s *FeatureSet) Row(i int) []float32 {
	return s.Features[i*s.Dim : (i+1)*s.Dim]
}

// Validate checks the internal consistency of the set.
func (s *FeatureSet) Validate() error {
	if s.Dim <= 0 {
		if len(s.Features) > 0 {
			return apperrors.FeatureError(fmt.Sprintf("feature set has data but dim %d", s.Dim), nil)
		}
		return nil
	}
	if len(s.Features)%s.Dim != 0 {
		return apperrors.FeatureError(fmt.Sprintf(
			"feature buffer length %d is not a multiple of dim %d", len(s.Features), s.Dim), nil)
	}
	n := s.Len()
	if len(s.Targets) != 0 && len(s.Targets) != n {
		return apperrors.FeatureError(fmt.Sprintf("%d targets for %d rows", len(s.Targets), n), nil)
	}
	if len(s.Indices) != 0 && len(s.Indices) != n {
		return apperrors.FeatureError(fmt.Sprintf("%d indices for %d rows", len(s.Indices), n), nil)
	}
	return nil
}

// Fingerprint returns a short stable digest of the feature payload, used to
// tie evaluation runs to the exact features they scored.
func (s *FeatureSet) Fingerprint() string {
	return hash.FeatureFingerprint(s.Len(), s.Dim, float32Bytes(s.Features))
}

func float32Bytes(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
