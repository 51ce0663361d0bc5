package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// renderPages converts every PDF page to a PNG using pdftoppm
// (poppler-utils). 200 DPI keeps amounts legible for the model without
// ballooning the upload size.
func renderPages(filePath string) ([][]byte, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("pdftoppm not available (install poppler-utils): %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "vision-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	imgPrefix := filepath.Join(tmpDir, "page")
	cmd := exec.Command("pdftoppm", "-r", "200", "-png", filePath, imgPrefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %v (output: %s)", err, string(out))
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp dir: %v", err)
	}

	var imageFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			imageFiles = append(imageFiles, filepath.Join(tmpDir, e.Name()))
		}
	}
	sort.Strings(imageFiles)
	if len(imageFiles) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}

	pages := make([][]byte, 0, len(imageFiles))
	for _, f := range imageFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page %s: %v", f, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

// splitHalves crops a page image into top and bottom halves with a 10%
// vertical overlap, so a record sitting on the split line appears whole in
// at least one half.
func splitHalves(pageImage []byte) (top, bottom []byte, err error) {
	img, err := png.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode page image: %v", err)
	}

	bounds := img.Bounds()
	h := bounds.Dy()
	overlap := h / 10
	mid := bounds.Min.Y + h/2

	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, nil, fmt.Errorf("page image does not support cropping")
	}

	topRect := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, mid+overlap)
	bottomRect := image.Rect(bounds.Min.X, mid-overlap, bounds.Max.X, bounds.Max.Y)

	encode := func(r image.Rectangle) ([]byte, error) {
		var buf bytes.Buffer
		if err := png.Encode(&buf, sub.SubImage(r)); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	if top, err = encode(topRect); err != nil {
		return nil, nil, err
	}
	if bottom, err = encode(bottomRect); err != nil {
		return nil, nil, err
	}
	return top, bottom, nil
}
