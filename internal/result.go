package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// PassThreshold is the minimum similarity, in percent, for a page to pass.
const PassThreshold = 95.0

// ErrorTag names why a page has no similarity score.
type ErrorTag string

const (
	TagMissingFile  ErrorTag = "MissingFile"
	TagSizeMismatch ErrorTag = "SizeMismatch"
	TagDecodeError  ErrorTag = "DecodeError"
	TagCaptureError ErrorTag = "CaptureError"
)

// ErrMissingArtifact is returned when a baseline or candidate screenshot is
// absent at comparison time.
var ErrMissingArtifact = errors.New("screenshot artifact missing")

// TagFor maps a comparison error to the tag recorded in the result.
func TagFor(err error) ErrorTag {
	switch {
	case errors.Is(err, ErrMissingArtifact):
		return TagMissingFile
	case errors.Is(err, ErrGeometryMismatch):
		return TagSizeMismatch
	default:
		return TagDecodeError
	}
}

// Similarity is either a percentage in [0,100] or, when Tag is set, the
// reason no percentage could be computed.
type Similarity struct {
	Percent float64
	Tag     ErrorTag
}

// Score builds a numeric similarity.
func Score(pct float64) Similarity { return Similarity{Percent: pct} }

// Failed builds a tagged similarity.
func Failed(tag ErrorTag) Similarity { return Similarity{Tag: tag} }

// IsError reports whether s carries an error tag instead of a number.
func (s Similarity) IsError() bool { return s.Tag != "" }

func (s Similarity) String() string {
	if s.IsError() {
		return string(s.Tag)
	}
	return fmt.Sprintf("%.2f%%", s.Percent)
}

// MarshalJSON encodes a number or the tag string.
func (s Similarity) MarshalJSON() ([]byte, error) {
	if s.IsError() {
		return json.Marshal(string(s.Tag))
	}
	if math.IsNaN(s.Percent) || math.IsInf(s.Percent, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(s.Percent)
}

// UnmarshalJSON accepts a number, a tag string, or null (NaN).
func (s *Similarity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Similarity{Percent: math.NaN()}
		return nil
	}
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		if tag == "" {
			return fmt.Errorf("similarity: empty error tag")
		}
		*s = Failed(ErrorTag(tag))
		return nil
	}
	var pct float64
	if err := json.Unmarshal(data, &pct); err != nil {
		return fmt.Errorf("similarity must be a number or an error tag: %w", err)
	}
	*s = Score(pct)
	return nil
}

// ComparisonResult is the outcome for one page.
type ComparisonResult struct {
	Page       PagePath   `json:"page"`
	Similarity Similarity `json:"similarity"`
}

// Status is the pass/fail/error classification of a result.
type Status int

const (
	StatusPass Status = iota
	StatusFail
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusFail:
		return "fail"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Classify applies PassThreshold. Exactly 95.0 passes.
func Classify(s Similarity) Status {
	switch {
	case s.IsError():
		return StatusError
	case s.Percent >= PassThreshold:
		return StatusPass
	default:
		return StatusFail
	}
}

// Summary holds the aggregate counts of a run.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
	Total  int `json:"total"`
}

// Summarize counts results by status. Order does not matter.
func Summarize(results []ComparisonResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch Classify(r.Similarity) {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		default:
			s.Errors++
		}
	}
	return s
}

// SortResults returns a copy of results ordered by severity: error-tagged
// entries first in their original order, then numeric scores ascending,
// then entries without a comparable number (NaN). The input is not modified.
func SortResults(results []ComparisonResult) []ComparisonResult {
	out := make([]ComparisonResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := sortRank(out[i].Similarity), sortRank(out[j].Similarity)
		if ri != rj {
			return ri < rj
		}
		if ri == 1 {
			return out[i].Similarity.Percent < out[j].Similarity.Percent
		}
		return false
	})
	return out
}

func sortRank(s Similarity) int {
	switch {
	case s.IsError():
		return 0
	case math.IsNaN(s.Percent):
		return 2
	default:
		return 1
	}
}

type resultsFile struct {
	Version int                `json:"v"`
	Device  string             `json:"device"`
	Results []ComparisonResult `json:"results"`
}

// SaveResults writes results to path atomically using a temp file + rename.
func SaveResults(path, device string, results []ComparisonResult) error {
	if results == nil {
		results = []ComparisonResult{}
	}
	data, err := json.MarshalIndent(resultsFile{Version: 1, Device: device, Results: results}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// LoadResults reads a file written by SaveResults.
func LoadResults(path string) ([]ComparisonResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f resultsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("parsing %s: unsupported results version %d", path, f.Version)
	}
	return f.Results, nil
}
