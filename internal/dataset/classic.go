package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/irbench/ir-bench/internal/image"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// Some images in the Paris dataset are corrupted and every published result
// excludes them. See https://www.robots.ox.ac.uk/~vgg/data/parisbuildings/corrupt.txt.
var blacklisted = map[string]struct{}{
	"paris_louvre_000136":      {},
	"paris_louvre_000146":      {},
	"paris_moulinrouge_000422": {},
	"paris_museedorsay_001059": {},
	"paris_notredame_000188":   {},
	"paris_pantheon_000284":    {},
	"paris_pantheon_000960":    {},
	"paris_pantheon_000974":    {},
	"paris_pompidou_000195":    {},
	"paris_pompidou_000196":    {},
	"paris_pompidou_000201":    {},
	"paris_pompidou_000467":    {},
	"paris_pompidou_000640":    {},
	"paris_sacrecoeur_000299":  {},
	"paris_sacrecoeur_000330":  {},
	"paris_sacrecoeur_000353":  {},
	"paris_triomphe_000662":    {},
	"paris_triomphe_000833":    {},
	"paris_triomphe_000863":    {},
	"paris_triomphe_000867":    {},
}

type classicQuery struct {
	name     string
	filename string
	roi      image.ROI
	hasROI   bool
	good     []int
	junk     []int
}

// Classic adapts the original Oxford5k/Paris6k lab-file protocol: a jpg/
// directory holding the database and a lab/ directory with one
// <query>_query.txt, <query>_ok.txt, <query>_good.txt and <query>_junk.txt
// per query. Positives are the union of the ok and good lists.
type Classic struct {
	name    string
	imgRoot string
	images  []string
	queries []classicQuery
}

// OpenClassic scans the jpg/ listing and parses every lab file.
func OpenClassic(root, name string) (*Classic, error) {
	dir := filepath.Join(root, name)
	labRoot := filepath.Join(dir, "lab")
	imgRoot := filepath.Join(dir, "jpg")

	images, err := listImages(imgRoot)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(images))
	for i, img := range images {
		index[img] = i
	}

	labs, err := os.ReadDir(labRoot)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read lab dir %s", labRoot), err)
	}

	d := &Classic{name: name, imgRoot: imgRoot, images: images}
	for _, e := range labs {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "_query.txt") {
			continue
		}
		q, err := parseQuery(labRoot, strings.TrimSuffix(e.Name(), "_query.txt"), index)
		if err != nil {
			return nil, err
		}
		d.queries = append(d.queries, q)
	}
	if len(d.queries) == 0 {
		return nil, apperrors.DatasetError(fmt.Sprintf("no query lab files under %s", labRoot), nil)
	}
	return d, nil
}

// listImages returns the sorted, extension-stripped jpg/ listing with the
// corrupt Paris images removed.
func listImages(imgRoot string) ([]string, error) {
	entries, err := os.ReadDir(imgRoot)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read image dir %s", imgRoot), err)
	}
	images := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, bad := blacklisted[base]; bad {
			continue
		}
		images = append(images, base)
	}
	sort.Strings(images)
	return images, nil
}

func parseQuery(labRoot, qName string, index map[string]int) (classicQuery, error) {
	queryFile := filepath.Join(labRoot, qName+"_query.txt")
	line, err := readFirstLine(queryFile)
	if err != nil {
		return classicQuery{}, apperrors.DatasetError(fmt.Sprintf("read query file %s", queryFile), err)
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return classicQuery{}, apperrors.DatasetError(fmt.Sprintf("query file %s is empty", queryFile), nil)
	}

	q := classicQuery{
		name: qName,
		// Oxford query lines carry an oxc1_ prefix the image names do not.
		filename: strings.TrimPrefix(fields[0], "oxc1_"),
	}
	if len(fields) >= 5 {
		var coords [4]float32
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				return classicQuery{}, apperrors.DatasetError(fmt.Sprintf(
					"query file %s: bad roi value %q", queryFile, fields[i+1]), err)
			}
			coords[i] = float32(v)
		}
		q.roi = image.ROI{Xmin: coords[0], Ymin: coords[1], Xmax: coords[2], Ymax: coords[3]}
		q.hasROI = true
	}

	ok, err := readLabelSet(labRoot, qName+"_ok.txt")
	if err != nil {
		return classicQuery{}, err
	}
	good, err := readLabelSet(labRoot, qName+"_good.txt")
	if err != nil {
		return classicQuery{}, err
	}
	junk, err := readLabelSet(labRoot, qName+"_junk.txt")
	if err != nil {
		return classicQuery{}, err
	}
	for name := range good {
		ok[name] = struct{}{}
	}

	q.good = toIndices(ok, index)
	q.junk = toIndices(junk, index)
	return q, nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	return "", scanner.Err()
}

func readLabelSet(labRoot, name string) (map[string]struct{}, error) {
	path := filepath.Join(labRoot, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read label file %s", path), err)
	}
	defer f.Close()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			set[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read label file %s", path), err)
	}
	return set, nil
}

// toIndices maps label names to ascending database indices. Names missing
// from the listing (the blacklisted Paris images) are dropped.
func toIndices(names map[string]struct{}, index map[string]int) []int {
	indices := make([]int, 0, len(names))
	for name := range names {
		if i, ok := index[name]; ok {
			indices = append(indices, i)
		}
	}
	sort.Ints(indices)
	return indices
}

func (d *Classic) Name() string     { return d.name }
func (d *Classic) NumDatabase() int { return len(d.images) }
func (d *Classic) NumQueries() int  { return len(d.queries) }
func (d *Classic) Tiered() bool     { return false }

func (d *Classic) DatabasePath(i int) string {
	return filepath.Join(d.imgRoot, d.images[i]+".jpg")
}

func (d *Classic) QueryPath(i int) string {
	return filepath.Join(d.imgRoot, d.queries[i].filename+".jpg")
}

func (d *Classic) QueryROI(i int) (image.ROI, bool) {
	return d.queries[i].roi, d.queries[i].hasROI
}

func (d *Classic) GroundTruth(i int) Relevance {
	q := d.queries[i]
	return Relevance{Good: q.good, Junk: q.junk}
}

func (d *Classic) QueryName(i int) string {
	return d.queries[i].name
}
