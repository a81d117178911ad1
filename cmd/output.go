package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/witanlabs/sitediff/internal"
)

// ExitError signals a non-zero exit code without printing an error message.
type ExitError struct{ Code int }

func (e *ExitError) Error() string { return "" }

// exitFailed is returned when any page failed or errored.
var exitFailed = &ExitError{Code: 2}

func jsonPrint(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOutcome writes the human summary of one device pass, worst pages first.
func printOutcome(out *internal.RunOutcome) {
	s := out.Summary
	fmt.Printf("%s: %d pages, %d passed, %d failed, %d errors\n", out.Device, s.Total, s.Passed, s.Failed, s.Errors)
	for _, r := range internal.SortResults(out.Results) {
		status := internal.Classify(r.Similarity)
		if status == internal.StatusPass {
			continue
		}
		fmt.Printf("  %-5s %-40s %s\n", status, r.Page, r.Similarity)
	}
	if out.ReportPath != "" {
		fmt.Printf("report: %s\n", out.ReportPath)
	}
}
