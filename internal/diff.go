package internal

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// DiffThreshold is the matching tolerance on the normalized (0..1) YIQ
// colour distance. Smaller is stricter.
const DiffThreshold = 0.1

// maxYIQDelta is the largest possible squared YIQ distance between two
// 8-bit colours.
const maxYIQDelta = 35215.0

// ErrGeometryMismatch is returned when the differ is handed two images of
// different size. Normalization makes this unreachable in a healthy run.
var ErrGeometryMismatch = errors.New("image dimensions differ")

var (
	// colorAdded marks pixels where the candidate carries content the
	// baseline lacks.
	colorAdded = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	// colorRemoved marks pixels where the baseline carries content the
	// candidate lacks.
	colorRemoved = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
)

// DiffResult is the outcome of comparing two equally sized images.
type DiffResult struct {
	// Image has a coloured pixel for every mismatch and is transparent
	// everywhere else.
	Image      *image.NRGBA
	Mismatched int
	Added      int
	Removed    int
	Total      int
	// Similarity is the share of matching pixels, 0..100.
	Similarity float64
}

// DiffImages classifies every pixel of baseline and candidate as matching or
// mismatching. Both colours are blended onto white and compared in YIQ
// space against DiffThreshold. A mismatch where the candidate is darker
// (more ink) is drawn red, otherwise blue.
func DiffImages(baseline, candidate image.Image) (*DiffResult, error) {
	bb := baseline.Bounds()
	cb := candidate.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return nil, fmt.Errorf(
			"%w: baseline is %d×%d, candidate is %d×%d",
			ErrGeometryMismatch, bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy(),
		)
	}

	a := toNRGBA(baseline)
	b := toNRGBA(candidate)
	w, h := bb.Dx(), bb.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	total := w * h
	if total == 0 {
		return &DiffResult{Image: out, Similarity: 100}, nil
	}

	maxDelta := maxYIQDelta * DiffThreshold * DiffThreshold

	workers := runtime.GOMAXPROCS(0)
	if workers > h {
		workers = h
	}
	rows := (h + workers - 1) / workers

	var added, removed atomic.Int64
	var wg sync.WaitGroup
	for y0 := 0; y0 < h; y0 += rows {
		y1 := min(y0+rows, h)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			var localAdded, localRemoved int64
			for y := y0; y < y1; y++ {
				ia := a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y)
				ib := b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y)
				oi := out.PixOffset(0, y)
				for x := 0; x < w; x++ {
					pa := a.Pix[ia+x*4 : ia+x*4+4 : ia+x*4+4]
					pb := b.Pix[ib+x*4 : ib+x*4+4 : ib+x*4+4]
					if pa[0] == pb[0] && pa[1] == pb[1] && pa[2] == pb[2] && pa[3] == pb[3] {
						continue
					}
					delta, candidateDarker := yiqDelta(pa, pb)
					if delta <= maxDelta {
						continue
					}
					c := colorRemoved
					if candidateDarker {
						c = colorAdded
						localAdded++
					} else {
						localRemoved++
					}
					o := out.Pix[oi+x*4 : oi+x*4+4 : oi+x*4+4]
					o[0], o[1], o[2], o[3] = c.R, c.G, c.B, c.A
				}
			}
			added.Add(localAdded)
			removed.Add(localRemoved)
		}(y0, y1)
	}
	wg.Wait()

	res := &DiffResult{
		Image:   out,
		Added:   int(added.Load()),
		Removed: int(removed.Load()),
		Total:   total,
	}
	res.Mismatched = res.Added + res.Removed
	res.Similarity = float64(total-res.Mismatched) / float64(total) * 100
	return res, nil
}

// yiqDelta returns the squared YIQ distance between two non-premultiplied
// pixels after blending each onto white, and whether the second pixel is
// darker than the first.
func yiqDelta(p1, p2 []uint8) (float64, bool) {
	r1, g1, b1 := blendWhite(p1)
	r2, g2, b2 := blendWhite(p2)

	y1 := rgb2y(r1, g1, b1)
	y2 := rgb2y(r2, g2, b2)
	y := y1 - y2
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	return 0.5053*y*y + 0.299*i*i + 0.1957*q*q, y2 <= y1
}

func blendWhite(p []uint8) (r, g, b float64) {
	a := float64(p[3]) / 255
	r = 255 + (float64(p[0])-255)*a
	g = 255 + (float64(p[1])-255)*a
	b = 255 + (float64(p[2])-255)*a
	return r, g, b
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(n, n.Bounds(), img, b.Min, draw.Src)
	return n
}

// FormatDiffSummary returns a human-readable diff summary string.
func FormatDiffSummary(changed, total int) string {
	if changed == 0 {
		return "diff: no changes"
	}
	pct := float64(changed) / float64(total) * 100
	if pct < 0.1 {
		return fmt.Sprintf("diff: %s pixels changed (<0.1%%)", humanize.Comma(int64(changed)))
	}
	return fmt.Sprintf("diff: %s pixels changed (%.1f%%)", humanize.Comma(int64(changed)), pct)
}
