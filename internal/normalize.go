package internal

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// ErrDecode marks an artifact that exists but is not a readable PNG.
var ErrDecode = errors.New("artifact is not a valid image")

// NormalizeImage fits src inside a width×height canvas without cropping or
// distortion ("contain"), centres it, and leaves the remaining area fully
// transparent. Images that already have the target size are copied as is.
func NormalizeImage(src image.Image, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 || width == 0 || height == 0 {
		return dst
	}

	if sw == width && sh == height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
		return dst
	}

	scale := math.Min(float64(width)/float64(sw), float64(height)/float64(sh))
	fw := clampDim(int(math.Round(float64(sw)*scale)), width)
	fh := clampDim(int(math.Round(float64(sh)*scale)), height)

	x0 := (width - fw) / 2
	y0 := (height - fh) / 2
	target := image.Rect(x0, y0, x0+fw, y0+fh)
	draw.CatmullRom.Scale(dst, target, src, sb, draw.Src, nil)
	return dst
}

func clampDim(v, limit int) int {
	if v < 1 {
		return 1
	}
	if v > limit {
		return limit
	}
	return v
}

// Normalize rewrites the PNG at path in place so that it is exactly
// width×height. The caller checks that the file exists; a file that cannot
// be decoded yields an error wrapping ErrDecode.
func Normalize(path string, width, height int) error {
	_, err := normalizeFile(path, width, height)
	return err
}

// normalizeFile is Normalize returning the image it wrote.
func normalizeFile(path string, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("normalize %s: target size must be positive, got %d×%d", path, width, height)
	}

	src, err := decodePNG(path)
	if err != nil {
		return nil, err
	}

	img := NormalizeImage(src, width, height)
	if err := writePNG(path, img); err != nil {
		return nil, err
	}
	return img, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w: %v", path, ErrDecode, err)
	}
	return img, nil
}

// writePNG encodes img next to path and renames it into place, so readers
// never observe a half-written artifact. Parent directories are created.
func writePNG(path string, img image.Image) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming %s: %w", tmpName, err)
	}
	return nil
}
