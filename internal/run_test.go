package internal

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeCapturer writes a solid white screenshot unless the URL is listed in
// fail, in which case it leaves a partial file behind and errors.
type fakeCapturer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeCapturer) Capture(ctx context.Context, url, dest string) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if f.fail[url] {
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return errors.New("navigation timeout")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(16, 10, white)); err != nil {
		return err
	}
	return os.WriteFile(dest, buf.Bytes(), 0o644)
}

func newTestRunner(t *testing.T, c Capturer, pages ...PagePath) *Runner {
	t.Helper()
	dir := t.TempDir()
	return &Runner{
		BaselineURL:  "https://staging.example.com",
		CandidateURL: "https://www.example.com",
		Pages:        pages,
		OutputDir:    filepath.Join(dir, "screenshots"),
		ReportDir:    dir,
		Workers:      2,
		Capturer:     c,
		now:          func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestRunner_CapturesAndCompares(t *testing.T) {
	fc := &fakeCapturer{}
	r := newTestRunner(t, fc, "/", "/apply/")

	out, err := r.Run(context.Background(), Device{Name: "desktop", Width: 16, Height: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantCalls := []string{
		"https://staging.example.com/",
		"https://www.example.com/",
		"https://staging.example.com/apply/",
		"https://www.example.com/apply/",
	}
	if strings.Join(fc.calls, " ") != strings.Join(wantCalls, " ") {
		t.Fatalf("unexpected capture order: %v", fc.calls)
	}
	if out.Summary.Passed != 2 || out.Summary.Total != 2 {
		t.Fatalf("expected 2 passing pages, got %+v", out.Summary)
	}
	if out.Results[0].Page != "/" || out.Results[1].Page != "/apply/" {
		t.Fatalf("results must keep configured page order: %+v", out.Results)
	}
	if _, err := os.Stat(out.ReportPath); err != nil {
		t.Fatalf("report not written: %v", err)
	}
	saved, err := LoadResults(out.ResultsPath)
	if err != nil || len(saved) != 2 {
		t.Fatalf("results not persisted: %v %+v", err, saved)
	}
}

func TestRunner_CaptureFailureIsTagged(t *testing.T) {
	fc := &fakeCapturer{fail: map[string]bool{"https://www.example.com/apply/": true}}
	r := newTestRunner(t, fc, "/", "/apply/")

	out, err := r.Run(context.Background(), Device{Name: "desktop", Width: 16, Height: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Results[1].Similarity; got.Tag != TagCaptureError {
		t.Fatalf("expected CaptureError for /apply/, got %v", got)
	}
	if got := out.Results[0].Similarity; got.IsError() || got.Percent != 100 {
		t.Fatalf("other pages must be unaffected, got %v", got)
	}
	layout := Layout{Root: r.OutputDir, Device: "desktop"}
	if _, err := os.Stat(layout.Path(RoleCandidate, "/apply/")); !os.IsNotExist(err) {
		t.Fatalf("partial screenshot must be removed")
	}
	if out.Summary.Errors != 1 || out.Summary.Passed != 1 {
		t.Fatalf("unexpected summary: %+v", out.Summary)
	}
}

func TestRunner_StaleScreenshotIsNotReused(t *testing.T) {
	fc := &fakeCapturer{fail: map[string]bool{"https://staging.example.com/": true}}
	r := newTestRunner(t, fc, "/")
	layout := Layout{Root: r.OutputDir, Device: "desktop"}
	writeTestPNG(t, layout.Path(RoleBaseline, "/"), solidImage(16, 10, white))

	out, err := r.Run(context.Background(), Device{Name: "desktop", Width: 16, Height: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Results[0].Similarity; got.Tag != TagCaptureError {
		t.Fatalf("expected CaptureError, got %v", got)
	}
}

func TestRunner_WithoutCapturer(t *testing.T) {
	r := newTestRunner(t, nil, "/", "/missing/")
	layout := Layout{Root: r.OutputDir, Device: "desktop"}
	writeTestPNG(t, layout.Path(RoleBaseline, "/"), solidImage(16, 10, white))
	writeTestPNG(t, layout.Path(RoleCandidate, "/"), solidImage(16, 10, black))

	out, err := r.Run(context.Background(), Device{Name: "desktop", Width: 16, Height: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Results[0].Similarity; got.IsError() || got.Percent != 0 {
		t.Fatalf("expected similarity 0 for /, got %v", got)
	}
	if got := out.Results[1].Similarity; got.Tag != TagMissingFile {
		t.Fatalf("expected MissingFile for /missing/, got %v", got)
	}
	if out.Summary.Failed != 1 || out.Summary.Errors != 1 {
		t.Fatalf("unexpected summary: %+v", out.Summary)
	}
}

func TestRunner_CancelledRunLeavesPagesOut(t *testing.T) {
	fc := &fakeCapturer{}
	r := newTestRunner(t, fc, "/", "/apply/")
	layout := Layout{Root: r.OutputDir, Device: "desktop"}
	writeTestPNG(t, layout.Path(RoleBaseline, "/"), solidImage(16, 10, white))
	writeTestPNG(t, layout.Path(RoleCandidate, "/"), solidImage(16, 10, white))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Run(ctx, Device{Name: "desktop", Width: 16, Height: 10})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fc.calls) != 0 {
		t.Fatalf("no capture may start after cancellation, got %v", fc.calls)
	}
	if out == nil || len(out.Results) != 0 {
		t.Fatalf("uncompared pages must not be reported, got %+v", out)
	}
	saved, err := LoadResults(out.ResultsPath)
	if err != nil || len(saved) != 0 {
		t.Fatalf("expected empty persisted results, got %+v (%v)", saved, err)
	}
}
