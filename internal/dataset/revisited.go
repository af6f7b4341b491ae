package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/irbench/ir-bench/internal/image"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// revisitedGnd mirrors the ground-truth document of the revisited
// Oxford/Paris benchmarks: gnd_<name>.json with the image list, the query
// list and per-query easy/hard/junk sets plus the query bounding box.
type revisitedGnd struct {
	ImList  []string            `json:"imlist"`
	QImList []string            `json:"qimlist"`
	Gnd     []revisitedGndEntry `json:"gnd"`
}

type revisitedGndEntry struct {
	Easy []int     `json:"easy"`
	Hard []int     `json:"hard"`
	Junk []int     `json:"junk"`
	BBox []float32 `json:"bbx"`
}

// Revisited adapts the roxford5k and rparis6k benchmarks. Images live under
// <root>/<name>/jpg and the ground truth under <root>/<name>/gnd_<name>.json.
type Revisited struct {
	name string
	dir  string
	gnd  revisitedGnd
}

// OpenRevisited reads the ground-truth document of a revisited benchmark.
func OpenRevisited(root, name string) (*Revisited, error) {
	if !IsRevisited(name) {
		return nil, apperrors.ValidationError(fmt.Sprintf("%s is not a revisited benchmark", name))
	}

	dir := filepath.Join(root, name)
	gndPath := filepath.Join(dir, fmt.Sprintf("gnd_%s.json", name))
	data, err := os.ReadFile(gndPath)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read ground truth %s", gndPath), err)
	}

	var gnd revisitedGnd
	if err := json.Unmarshal(data, &gnd); err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("parse ground truth %s", gndPath), err)
	}
	if len(gnd.Gnd) != len(gnd.QImList) {
		return nil, apperrors.DatasetError(fmt.Sprintf(
			"%s lists %d queries but %d ground-truth entries", gndPath, len(gnd.QImList), len(gnd.Gnd)), nil)
	}

	return &Revisited{name: name, dir: dir, gnd: gnd}, nil
}

func (d *Revisited) Name() string     { return d.name }
func (d *Revisited) NumDatabase() int { return len(d.gnd.ImList) }
func (d *Revisited) NumQueries() int  { return len(d.gnd.QImList) }
func (d *Revisited) Tiered() bool     { return true }

func (d *Revisited) DatabasePath(i int) string {
	return filepath.Join(d.dir, "jpg", d.gnd.ImList[i]+".jpg")
}

func (d *Revisited) QueryPath(i int) string {
	return filepath.Join(d.dir, "jpg", d.gnd.QImList[i]+".jpg")
}

func (d *Revisited) QueryName(i int) string {
	return d.gnd.QImList[i]
}

func (d *Revisited) QueryROI(i int) (image.ROI, bool) {
	bbx := d.gnd.Gnd[i].BBox
	if len(bbx) != 4 {
		return image.ROI{}, false
	}
	return image.ROI{Xmin: bbx[0], Ymin: bbx[1], Xmax: bbx[2], Ymax: bbx[3]}, true
}

func (d *Revisited) GroundTruth(i int) Relevance {
	g := d.gnd.Gnd[i]
	return Relevance{Easy: g.Easy, Hard: g.Hard, Junk: g.Junk}
}
