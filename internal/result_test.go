package internal

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"testing"
)

func TestClassify_Threshold(t *testing.T) {
	tests := []struct {
		sim  Similarity
		want Status
	}{
		{Score(100), StatusPass},
		{Score(95), StatusPass},
		{Score(94.999), StatusFail},
		{Score(0), StatusFail},
		{Score(math.NaN()), StatusFail},
		{Failed(TagMissingFile), StatusError},
		{Failed(TagCaptureError), StatusError},
	}
	for _, tt := range tests {
		if got := Classify(tt.sim); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.sim, got, tt.want)
		}
	}
}

func TestSortResults_SeverityOrder(t *testing.T) {
	in := []ComparisonResult{
		{Page: "/a", Similarity: Failed(TagMissingFile)},
		{Page: "/b", Similarity: Score(92)},
		{Page: "/c", Similarity: Failed(TagDecodeError)},
		{Page: "/d", Similarity: Score(99)},
	}
	got := SortResults(in)

	want := []PagePath{"/a", "/c", "/b", "/d"}
	for i, p := range want {
		if got[i].Page != p {
			t.Fatalf("position %d: expected %s, got %s (%+v)", i, p, got[i].Page, got)
		}
	}
	if in[0].Page != "/a" || in[1].Page != "/b" {
		t.Fatalf("input must not be reordered")
	}
}

func TestSortResults_NaNLast(t *testing.T) {
	got := SortResults([]ComparisonResult{
		{Page: "/nan", Similarity: Score(math.NaN())},
		{Page: "/high", Similarity: Score(99)},
		{Page: "/err", Similarity: Failed(TagSizeMismatch)},
		{Page: "/low", Similarity: Score(10)},
	})
	want := []PagePath{"/err", "/low", "/high", "/nan"}
	for i, p := range want {
		if got[i].Page != p {
			t.Fatalf("position %d: expected %s, got %s", i, p, got[i].Page)
		}
	}
}

func TestSummarize_CountsSum(t *testing.T) {
	var results []ComparisonResult
	for i := 0; i < 7; i++ {
		results = append(results, ComparisonResult{Page: PagePath(fmt.Sprintf("/p%d", i)), Similarity: Score(float64(i * 16))})
	}
	results = append(results, ComparisonResult{Page: "/x", Similarity: Failed(TagCaptureError)})

	s := Summarize(results)
	if s.Total != 8 || s.Passed+s.Failed+s.Errors != s.Total {
		t.Fatalf("counts do not add up: %+v", s)
	}
	// 96 is the only passing score.
	if s.Passed != 1 || s.Failed != 6 || s.Errors != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}

	reversed := make([]ComparisonResult, len(results))
	for i := range results {
		reversed[len(results)-1-i] = results[i]
	}
	if Summarize(reversed) != s {
		t.Fatalf("counts must not depend on order")
	}
}

func TestSimilarity_JSON(t *testing.T) {
	tests := []struct {
		sim  Similarity
		want string
	}{
		{Score(97.5), `97.5`},
		{Failed(TagMissingFile), `"MissingFile"`},
		{Score(math.NaN()), `null`},
	}
	for _, tt := range tests {
		raw, err := json.Marshal(tt.sim)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.sim, err)
		}
		if string(raw) != tt.want {
			t.Errorf("marshal %v = %s, want %s", tt.sim, raw, tt.want)
		}

		var back Similarity
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if back.Tag != tt.sim.Tag {
			t.Errorf("tag round trip: %q -> %q", tt.sim.Tag, back.Tag)
		}
		if !back.IsError() && back.String() != tt.sim.String() {
			t.Errorf("value round trip: %v -> %v", tt.sim, back)
		}
	}

	var bad Similarity
	if err := json.Unmarshal([]byte(`{"x":1}`), &bad); err == nil {
		t.Errorf("expected error for object similarity")
	}
}

func TestSaveLoadResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desktop", "results.json")
	in := []ComparisonResult{
		{Page: "/", Similarity: Score(100)},
		{Page: "/apply/", Similarity: Failed(TagCaptureError)},
	}
	if err := SaveResults(path, "desktop", in); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}
	out, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestTagFor(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorTag
	}{
		{fmt.Errorf("%w: /tmp/x.png", ErrMissingArtifact), TagMissingFile},
		{fmt.Errorf("diffing: %w", ErrGeometryMismatch), TagSizeMismatch},
		{fmt.Errorf("normalizing: %w", ErrDecode), TagDecodeError},
	}
	for _, tt := range tests {
		if got := TagFor(tt.err); got != tt.want {
			t.Errorf("TagFor(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
