package dataset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/irbench/ir-bench/internal/image"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

const instreValSeed = 123

// instreGnd mirrors gnd_instre.json: database and query image lists plus
// per-query positives stored as 1-based database indices.
type instreGnd struct {
	ImList  []string         `json:"imlist"`
	QImList []string         `json:"qimlist"`
	Gnd     []instreGndEntry `json:"gnd"`
}

type instreGndEntry struct {
	Pos []int `json:"pos"`
}

// Instre adapts the INSTRE benchmark. Image paths in the ground truth are
// relative to the dataset directory. Besides the full mAP the benchmark
// reports a validation mAP over a fixed seeded subset of queries.
type Instre struct {
	dir       string
	gnd       instreGnd
	positives [][]int
	valSubset []int
}

// OpenInstre reads <root>/instre/gnd_instre.json and converts the 1-based
// positives to 0-based indices.
func OpenInstre(root string) (*Instre, error) {
	dir := filepath.Join(root, "instre")
	gndPath := filepath.Join(dir, "gnd_instre.json")
	data, err := os.ReadFile(gndPath)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read ground truth %s", gndPath), err)
	}

	var gnd instreGnd
	if err := json.Unmarshal(data, &gnd); err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("parse ground truth %s", gndPath), err)
	}
	if len(gnd.Gnd) != len(gnd.QImList) {
		return nil, apperrors.DatasetError(fmt.Sprintf(
			"%s lists %d queries but %d ground-truth entries", gndPath, len(gnd.QImList), len(gnd.Gnd)), nil)
	}

	positives := make([][]int, len(gnd.Gnd))
	for q, e := range gnd.Gnd {
		positives[q] = make([]int, len(e.Pos))
		for i, p := range e.Pos {
			if p < 1 || p > len(gnd.ImList) {
				return nil, apperrors.DatasetError(fmt.Sprintf(
					"%s: query %d positive %d outside [1, %d]", gndPath, q, p, len(gnd.ImList)), nil)
			}
			positives[q][i] = p - 1
		}
	}

	return &Instre{
		dir:       dir,
		gnd:       gnd,
		positives: positives,
		valSubset: valSubset(len(gnd.QImList)),
	}, nil
}

// valSubset picks a tenth of the queries with a fixed seed so the validation
// mAP is comparable across runs.
func valSubset(nq int) []int {
	r := rand.New(rand.NewSource(instreValSeed))
	perm := r.Perm(nq)
	subset := append([]int(nil), perm[:nq/10]...)
	sort.Ints(subset)
	return subset
}

func (d *Instre) Name() string     { return "instre" }
func (d *Instre) NumDatabase() int { return len(d.gnd.ImList) }
func (d *Instre) NumQueries() int  { return len(d.gnd.QImList) }
func (d *Instre) Tiered() bool     { return false }

func (d *Instre) DatabasePath(i int) string {
	return filepath.Join(d.dir, filepath.FromSlash(d.gnd.ImList[i]))
}

func (d *Instre) QueryPath(i int) string {
	return filepath.Join(d.dir, filepath.FromSlash(d.gnd.QImList[i]))
}

func (d *Instre) QueryName(i int) string {
	return d.gnd.QImList[i]
}

// QueryROI always reports false: INSTRE has no notion of query regions.
func (d *Instre) QueryROI(int) (image.ROI, bool) {
	return image.ROI{}, false
}

func (d *Instre) GroundTruth(i int) Relevance {
	return Relevance{Good: d.positives[i]}
}

// ValSubset returns the sorted validation query indices.
func (d *Instre) ValSubset() []int {
	return d.valSubset
}
