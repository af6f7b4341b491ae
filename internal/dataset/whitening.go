package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/irbench/ir-bench/internal/image"
	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
	"github.com/irbench/ir-bench/internal/pkg/security"
)

// Whitening is a plain training image list used to fit feature whitening. It
// has no queries and no ground truth; only the extraction pipeline reads it.
type Whitening struct {
	root  string
	paths []string
}

// OpenWhitening reads a list file of image paths relative to root, one per
// line. Blank lines are skipped and every entry is validated before it is
// joined to the root.
func OpenWhitening(root, listFile string) (*Whitening, error) {
	f, err := os.Open(listFile)
	if err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("open image list %s", listFile), err)
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := security.ValidatePath(line); err != nil {
			return nil, apperrors.DatasetError(fmt.Sprintf(
				"image list %s line %d", listFile, lineNo), err)
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.DatasetError(fmt.Sprintf("read image list %s", listFile), err)
	}
	if len(paths) == 0 {
		return nil, apperrors.DatasetError(fmt.Sprintf("image list %s is empty", listFile), nil)
	}

	return &Whitening{root: root, paths: paths}, nil
}

func (d *Whitening) Name() string     { return "whitening" }
func (d *Whitening) NumDatabase() int { return len(d.paths) }
func (d *Whitening) NumQueries() int  { return 0 }
func (d *Whitening) Tiered() bool     { return false }

func (d *Whitening) DatabasePath(i int) string {
	return filepath.Join(d.root, filepath.FromSlash(d.paths[i]))
}

func (d *Whitening) QueryPath(int) string { return "" }
func (d *Whitening) QueryName(int) string { return "" }

func (d *Whitening) GroundTruth(int) Relevance {
	return Relevance{}
}

func (d *Whitening) QueryROI(int) (image.ROI, bool) {
	return image.ROI{}, false
}
