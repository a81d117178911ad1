package internal

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readTestPNG(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := decodePNG(path)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestNormalize_ResizesToTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	writeTestPNG(t, path, solidImage(400, 300, white))

	if err := Normalize(path, 1280, 800); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	b := readTestPNG(t, path).Bounds()
	if b.Dx() != 1280 || b.Dy() != 800 {
		t.Fatalf("expected 1280×800, got %d×%d", b.Dx(), b.Dy())
	}
}

func TestNormalizeImage_ContainPadsTransparent(t *testing.T) {
	// 100×100 into 200×100: scaled to 100×100 and centred, 50px bars left and right.
	out := NormalizeImage(solidImage(100, 100, red), 200, 100)

	if got := out.NRGBAAt(10, 50); got.A != 0 {
		t.Errorf("expected transparent padding, got %+v", got)
	}
	if got := out.NRGBAAt(190, 50); got.A != 0 {
		t.Errorf("expected transparent padding, got %+v", got)
	}
	if got := out.NRGBAAt(100, 50); got.R < 250 || got.A < 250 {
		t.Errorf("expected opaque red content in the centre, got %+v", got)
	}
}

func TestNormalizeImage_ExactSizeIsCopied(t *testing.T) {
	src := solidImage(30, 20, white)
	fillRect(src, image.Rect(3, 3, 7, 9), red)

	out := NormalizeImage(src, 30, 20)
	for y := 0; y < 20; y++ {
		for x := 0; x < 30; x++ {
			a := src.RGBAAt(x, y)
			b := out.NRGBAAt(x, y)
			if a.R != b.R || a.G != b.G || a.B != b.B || a.A != b.A {
				t.Fatalf("pixel (%d,%d) changed: %+v -> %+v", x, y, a, b)
			}
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	src := solidImage(400, 300, white)
	fillRect(src, image.Rect(50, 50, 120, 90), black)
	writeTestPNG(t, path, src)

	if err := Normalize(path, 1280, 800); err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := Normalize(path, 1280, 800); err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("normalizing twice changed the file")
	}
}

func TestNormalize_DecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Normalize(path, 100, 100)
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "not a png" {
		t.Fatalf("undecodable file must be left untouched")
	}
}

func TestNormalize_RejectsNonPositiveTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	writeTestPNG(t, path, solidImage(10, 10, white))

	if err := Normalize(path, 0, 10); err == nil {
		t.Fatalf("expected error for zero width")
	}
}
