package features

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

var shardRankRe = regexp.MustCompile(`^rank(\d+)_`)

// ShardName returns the canonical shard file name for one extraction rank,
// rank<r>_<split>_<layer> plus the codec extension.
func ShardName(rank int, split, layer, ext string) string {
	return fmt.Sprintf("rank%d_%s_%s%s", rank, split, layer, ext)
}

// ShardRank extracts the rank from a shard file name. The second return is
// false when the name does not follow the shard convention.
func ShardRank(name string) (int, bool) {
	m := shardRankRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	rank, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return rank, true
}

// ShardSplit extracts the split from a shard file name for the given layer.
// The second return is false when the name is not a shard of that layer.
func ShardSplit(name, layer string) (string, bool) {
	base := filepath.Base(name)
	m := shardRankRe.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	rest := base[len(m[0]):]

	ext := ""
	for _, candidate := range []string{ExtGob, ExtHDF5, ".hdf5"} {
		if strings.HasSuffix(strings.ToLower(rest), candidate) {
			ext = candidate
			break
		}
	}
	if ext == "" {
		return "", false
	}
	rest = rest[:len(rest)-len(ext)]

	suffix := "_" + layer
	if !strings.HasSuffix(rest, suffix) {
		return "", false
	}
	split := strings.TrimSuffix(rest, suffix)
	if split == "" {
		return "", false
	}
	return split, true
}

// Discover maps extraction ranks to shard files for one (split, layer) pair.
// When a rank has both a gob and an HDF5 shard the gob one wins.
func Discover(dir, split, layer string) (map[int]string, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("rank*_%s_%s{%s,%s,.hdf5}", split, layer, ExtGob, ExtHDF5))
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, apperrors.FeatureError(fmt.Sprintf("glob shards %s", pattern), err)
	}

	sort.Strings(matches)
	shards := make(map[int]string, len(matches))
	for _, path := range matches {
		rank, ok := ShardRank(path)
		if !ok {
			continue
		}
		if _, exists := shards[rank]; !exists {
			shards[rank] = path
		}
	}
	return shards, nil
}

// Complete reports whether every rank in [0, world) has a shard file.
func Complete(shards map[int]string, world int) bool {
	if world <= 0 {
		return false
	}
	for rank := 0; rank < world; rank++ {
		if _, ok := shards[rank]; !ok {
			return false
		}
	}
	return true
}

// Merge reassembles the per-rank shards of one (split, layer) pair into a
// single set ordered by ascending dataset index. Every rank in [0, world)
// must have written a shard. Rows sharing an index keep the copy from the
// lowest rank. world 0 infers the world size from the shards present.
func Merge(dir, split, layer string, world int) (*FeatureSet, error) {
	shards, err := Discover(dir, split, layer)
	if err != nil {
		return nil, err
	}
	if world <= 0 {
		for rank := range shards {
			if rank+1 > world {
				world = rank + 1
			}
		}
	}
	if world == 0 {
		return nil, apperrors.FeatureError(fmt.Sprintf(
			"no shards for %s/%s under %s", split, layer, dir), nil)
	}

	type row struct {
		feature []float32
		target  int64
	}
	merged := make(map[int64]row)
	dim := 0

	for rank := 0; rank < world; rank++ {
		path, ok := shards[rank]
		if !ok {
			return nil, apperrors.FeatureError(fmt.Sprintf(
				"missing shard for rank %d of %s/%s under %s", rank, split, layer, dir), nil)
		}
		set, err := Open(path)
		if err != nil {
			return nil, err
		}
		if set.Len() != len(set.Indices) {
			return nil, apperrors.FeatureError(fmt.Sprintf(
				"shard %s has %d rows but %d indices", path, set.Len(), len(set.Indices)), nil)
		}
		if set.Len() == 0 {
			continue
		}
		if dim == 0 {
			dim = set.Dim
		} else if set.Dim != dim {
			return nil, apperrors.FeatureError(fmt.Sprintf(
				"shard %s has dim %d, earlier shards have %d", path, set.Dim, dim), nil)
		}

		for i, idx := range set.Indices {
			if _, seen := merged[idx]; seen {
				continue
			}
			r := row{feature: set.Row(i)}
			if len(set.Targets) == set.Len() {
				r.target = set.Targets[i]
			}
			merged[idx] = r
		}
	}

	indices := make([]int64, 0, len(merged))
	for idx := range merged {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(a, b int) bool { return indices[a] < indices[b] })

	out := &FeatureSet{
		Dim:      dim,
		Features: make([]float32, 0, len(indices)*dim),
		Targets:  make([]int64, 0, len(indices)),
		Indices:  indices,
	}
	for _, idx := range indices {
		r := merged[idx]
		out.Features = append(out.Features, r.feature...)
		out.Targets = append(out.Targets, r.target)
	}
	return out, nil
}
