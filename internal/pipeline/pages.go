package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ironsheep/drawdiff/internal/raster"
)

var pageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

// PagesFromDir returns the page images in dir sorted by file name. The
// drawing name of each page is its file name without extension. Files are
// not opened until their unit runs.
func PagesFromDir(dir string, dpi float64) ([]PageInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !pageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return PagesFromFiles(paths, dpi), nil
}

// PagesFromFiles returns one page per path, in the given order.
func PagesFromFiles(paths []string, dpi float64) []PageInput {
	pages := make([]PageInput, len(paths))
	for i, p := range paths {
		base := filepath.Base(p)
		pages[i] = PageInput{
			Name:   strings.TrimSuffix(base, filepath.Ext(base)),
			Source: raster.FromFile(p, dpi),
		}
	}
	return pages
}
