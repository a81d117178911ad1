package internal

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed report.html.tmpl
var reportTemplateText string

var reportTemplate = template.Must(template.New("report").Parse(reportTemplateText))

// ReportMeta is the run metadata shown in the report header.
type ReportMeta struct {
	Device       string
	BaselineURL  string
	CandidateURL string
	GeneratedAt  time.Time
}

type reportImage struct {
	Label     string
	Available bool
	Src       template.URL
	Size      string
}

type reportRow struct {
	Page         string
	Status       string
	Similarity   string
	BaselineURL  string
	CandidateURL string
	Images       []reportImage
}

type reportData struct {
	Meta        ReportMeta
	GeneratedAt string
	Threshold   float64
	Summary     Summary
	Columns     []string
	Rows        []reportRow
}

var roleLabels = map[Role]string{
	RoleBaseline:  "Staging (baseline)",
	RoleCandidate: "Production (candidate)",
	RoleDiff:      "Diff",
}

// ReportFileName is the deterministic report name for a device.
func ReportFileName(device string) string {
	return "visual-report-" + ArtifactKey(PagePath(device)) + ".html"
}

// BuildReport renders a self-contained HTML report. Counts come from the
// results as given; rows are rendered in severity order. Screenshots are
// read from layout and inlined as base64, so the document stays readable
// after the files are gone. Missing files render a placeholder.
func BuildReport(w io.Writer, results []ComparisonResult, meta ReportMeta, layout Layout) error {
	data := reportData{
		Meta:        meta,
		GeneratedAt: meta.GeneratedAt.UTC().Format(time.RFC3339),
		Threshold:   PassThreshold,
		Summary:     Summarize(results),
	}
	for _, role := range Roles {
		data.Columns = append(data.Columns, roleLabels[role])
	}

	for _, r := range SortResults(results) {
		row := reportRow{
			Page:         string(r.Page),
			Status:       Classify(r.Similarity).String(),
			Similarity:   r.Similarity.String(),
			BaselineURL:  pageURLOrJoin(meta.BaselineURL, r.Page),
			CandidateURL: pageURLOrJoin(meta.CandidateURL, r.Page),
		}
		for _, role := range Roles {
			img, err := inlineImage(layout.Path(role, r.Page))
			if err != nil {
				return err
			}
			img.Label = roleLabels[role]
			row.Images = append(row.Images, img)
		}
		data.Rows = append(data.Rows, row)
	}

	return reportTemplate.Execute(w, data)
}

func inlineImage(path string) (reportImage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return reportImage{}, nil
		}
		return reportImage{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return reportImage{
		Available: true,
		Src:       template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)),
		Size:      humanize.Bytes(uint64(len(raw))),
	}, nil
}

// WriteReport renders the report into dir and returns its path. The file
// is replaced atomically.
func WriteReport(dir string, results []ComparisonResult, meta ReportMeta, layout Layout) (string, error) {
	var buf bytes.Buffer
	if err := BuildReport(&buf, results, meta, layout); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	path := filepath.Join(dir, ReportFileName(meta.Device))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}
