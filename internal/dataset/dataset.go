// Package dataset loads instance-retrieval benchmark ground truth and maps
// query and database items to image files. Four layouts are supported: the
// revisited Oxford/Paris benchmarks, the classic Oxford/Paris lab-file
// protocol, INSTRE and plain whitening image lists.
package dataset

import (
	"github.com/irbench/ir-bench/internal/image"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// Relevance holds one query's raw ground-truth sets as database indices.
// Tiered benchmarks fill Easy/Hard/Junk; the classic protocol fills Good and
// Junk; INSTRE fills Good only.
type Relevance struct {
	Easy []int
	Hard []int
	Junk []int
	Good []int
}

// Dataset is the common surface of all benchmark adapters.
type Dataset interface {
	Name() string
	NumDatabase() int
	NumQueries() int
	// DatabasePath returns the image file of database item i.
	DatabasePath(i int) string
	// QueryPath returns the image file of query i.
	QueryPath(i int) string
	// QueryName returns the label of query i used in reports.
	QueryName(i int) string
	// QueryROI reports the query crop region when the benchmark defines one.
	QueryROI(i int) (image.ROI, bool)
	// GroundTruth returns the raw relevance sets of query i.
	GroundTruth(i int) Relevance
	// Tiered reports whether the benchmark uses the Easy/Medium/Hard
	// evaluation protocol.
	Tiered() bool
}

// IsRevisited reports whether name is one of the revisited benchmarks.
func IsRevisited(name string) bool {
	return name == "roxford5k" || name == "rparis6k"
}

// IsInstre reports whether name is the INSTRE benchmark.
func IsInstre(name string) bool {
	return name == "instre"
}

// IsWhitening reports whether name denotes a whitening training image list.
func IsWhitening(name string) bool {
	return name == "whitening"
}

// Known lists the benchmark names the service advertises.
func Known() []string {
	return []string{"roxford5k", "rparis6k", "oxford5k", "paris6k", "instre"}
}

// Options locates benchmark data on disk. Root is the parent directory of
// per-dataset folders. ListFile is only read for whitening sets.
type Options struct {
	Root     string
	ListFile string
}

// Load opens the named benchmark. Revisited, INSTRE and whitening names route
// to their adapters; any other name is treated as a classic lab-file layout,
// the fallback the evaluation protocol has always used.
func Load(opts Options, name string) (Dataset, error) {
	if name == "" {
		return nil, apperrors.ValidationError("dataset name is required")
	}
	switch {
	case IsRevisited(name):
		return OpenRevisited(opts.Root, name)
	case IsInstre(name):
		return OpenInstre(opts.Root)
	case IsWhitening(name):
		if opts.ListFile == "" {
			return nil, apperrors.ValidationError("whitening datasets need a list file")
		}
		return OpenWhitening(opts.Root, opts.ListFile)
	default:
		return OpenClassic(opts.Root, name)
	}
}
