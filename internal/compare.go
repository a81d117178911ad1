package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Comparator turns a baseline/candidate screenshot pair into a similarity
// score. It holds no mutable state; one value can serve many pages
// concurrently as long as each page owns its files.
type Comparator struct {
	Width  int
	Height int
	Layout Layout
	Logger *slog.Logger
}

// NewComparator returns a comparator normalizing to width×height and
// resolving page artifacts through layout.
func NewComparator(layout Layout, width, height int, logger *slog.Logger) *Comparator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comparator{Width: width, Height: height, Layout: layout, Logger: logger}
}

// ComparePage compares the staging and prod screenshots of one page and
// writes its diff artifact.
func (c *Comparator) ComparePage(p PagePath) ComparisonResult {
	sim := c.Compare(
		c.Layout.Path(RoleBaseline, p),
		c.Layout.Path(RoleCandidate, p),
		c.Layout.Path(RoleDiff, p),
	)
	return ComparisonResult{Page: p, Similarity: sim}
}

// Compare never fails past the page: every problem becomes an error tag.
func (c *Comparator) Compare(baselinePath, candidatePath, diffPath string) Similarity {
	res, err := c.Diff(baselinePath, candidatePath, diffPath)
	if err != nil {
		tag := TagFor(err)
		if tag == TagSizeMismatch {
			c.Logger.Error("compare: geometry mismatch after normalization", "baseline", baselinePath, "error", err)
		} else {
			c.Logger.Warn("compare: page not comparable", "baseline", baselinePath, "tag", tag, "error", err)
		}
		return Failed(tag)
	}
	return Score(res.Similarity)
}

// Diff normalizes both screenshots, diffs them and writes the diff image to
// diffPath. A diff image that cannot be written is logged, not returned.
func (c *Comparator) Diff(baselinePath, candidatePath, diffPath string) (*DiffResult, error) {
	for _, p := range []string{baselinePath, candidatePath} {
		// Any stat failure counts as a missing artifact.
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingArtifact, p)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrMissingArtifact, p, err)
		}
	}

	baseline, err := normalizeFile(baselinePath, c.Width, c.Height)
	if err != nil {
		return nil, fmt.Errorf("normalizing baseline: %w", err)
	}
	candidate, err := normalizeFile(candidatePath, c.Width, c.Height)
	if err != nil {
		return nil, fmt.Errorf("normalizing candidate: %w", err)
	}

	res, err := DiffImages(baseline, candidate)
	if err != nil {
		return nil, err
	}

	if err := writePNG(diffPath, res.Image); err != nil {
		c.Logger.Error("compare: writing diff image failed", "path", diffPath, "error", err)
	} else {
		c.Logger.Debug("compare: diff written",
			"path", diffPath, "similarity", res.Similarity, "summary", FormatDiffSummary(res.Mismatched, res.Total))
	}
	return res, nil
}
