package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Capturer writes a PNG screenshot of url to dest. On failure dest must be
// left absent; the error is only logged.
type Capturer interface {
	Capture(ctx context.Context, url, dest string) error
}

// Device is a named viewport; its size is also the normalization target.
type Device struct {
	Name   string
	Width  int
	Height int
}

// Runner performs one comparison pass for a device.
type Runner struct {
	BaselineURL  string
	CandidateURL string
	Pages        []PagePath
	OutputDir    string
	ReportDir    string
	Workers      int
	// Capturer may be nil to compare screenshots already on disk.
	Capturer Capturer
	Logger   *slog.Logger

	now func() time.Time
}

// RunOutcome is what a pass produced.
type RunOutcome struct {
	Device      string             `json:"device"`
	Results     []ComparisonResult `json:"results"`
	Summary     Summary            `json:"summary"`
	ReportPath  string             `json:"report"`
	ResultsPath string             `json:"results_file"`
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run captures every page on both origins, compares them, persists the
// results and writes the report. Per-page problems never abort the pass.
// Pages left uncompared because ctx was cancelled are omitted from the
// results; the partial outcome is returned together with an error wrapping
// ctx.Err(). Failing to persist the results or report is also an error.
func (r *Runner) Run(ctx context.Context, dev Device) (*RunOutcome, error) {
	log := r.logger().With("device", dev.Name)
	layout := Layout{Root: r.OutputDir, Device: dev.Name}

	captureFailed := make(map[PagePath]bool)
	if r.Capturer != nil {
		for _, p := range r.Pages {
			if ctx.Err() != nil {
				break
			}
			if !r.capturePage(ctx, log, layout, p) {
				captureFailed[p] = true
			}
		}
	}

	cmp := NewComparator(layout, dev.Width, dev.Height, log)
	tasks := make([]Task[ComparisonResult], len(r.Pages))
	for i, p := range r.Pages {
		tasks[i] = func(context.Context) (ComparisonResult, error) {
			diffPath := layout.Path(RoleDiff, p)
			if err := os.Remove(diffPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return ComparisonResult{}, fmt.Errorf("removing stale diff %s: %w", diffPath, err)
			}
			return cmp.ComparePage(p), nil
		}
	}
	outcomes := SettleAll(ctx, r.Workers, tasks...)

	results := make([]ComparisonResult, 0, len(r.Pages))
	skipped := 0
	for i, o := range outcomes {
		res := o.Value
		if o.Err != nil && isContextErr(o.Err) {
			log.Warn("run: comparison skipped, run cancelled", "page", r.Pages[i])
			skipped++
			continue
		}
		if o.Err != nil {
			log.Error("run: comparison aborted", "page", r.Pages[i], "error", o.Err)
			res = ComparisonResult{Page: r.Pages[i], Similarity: Failed(TagDecodeError)}
		}
		if res.Similarity.Tag == TagMissingFile && captureFailed[res.Page] {
			res.Similarity = Failed(TagCaptureError)
		}
		log.Info("run: page compared", "page", res.Page, "similarity", res.Similarity.String(),
			"status", Classify(res.Similarity).String())
		results = append(results, res)
	}

	out := &RunOutcome{
		Device:      dev.Name,
		Results:     results,
		Summary:     Summarize(results),
		ResultsPath: layout.ResultsPath(),
	}
	if err := SaveResults(out.ResultsPath, dev.Name, results); err != nil {
		return out, fmt.Errorf("saving results: %w", err)
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	path, err := WriteReport(r.ReportDir, results, ReportMeta{
		Device:       dev.Name,
		BaselineURL:  r.BaselineURL,
		CandidateURL: r.CandidateURL,
		GeneratedAt:  now(),
	}, layout)
	if err != nil {
		return out, err
	}
	out.ReportPath = path
	log.Info("run: report written", "path", path,
		"passed", out.Summary.Passed, "failed", out.Summary.Failed, "errors", out.Summary.Errors)
	if skipped > 0 {
		return out, fmt.Errorf("run cancelled, %d of %d pages not compared: %w", skipped, len(r.Pages), ctx.Err())
	}
	return out, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// capturePage captures both origins for one page and reports whether both
// screenshots were written.
func (r *Runner) capturePage(ctx context.Context, log *slog.Logger, layout Layout, p PagePath) bool {
	ok := true
	targets := []struct {
		origin string
		role   Role
	}{
		{r.BaselineURL, RoleBaseline},
		{r.CandidateURL, RoleCandidate},
	}
	for _, t := range targets {
		dest := layout.Path(t.role, p)
		// A stale screenshot from an earlier run must not stand in for a
		// failed capture.
		if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("run: removing stale screenshot", "path", dest, "error", err)
		}

		u, err := PageURL(t.origin, p)
		if err != nil {
			log.Error("run: building page URL", "page", p, "error", err)
			ok = false
			continue
		}
		if err := r.Capturer.Capture(ctx, u, dest); err != nil {
			log.Warn("run: capture failed", "url", u, "role", t.role, "error", err)
			_ = os.Remove(dest)
			ok = false
			continue
		}
		log.Debug("run: captured", "url", u, "path", dest)
	}
	return ok
}
