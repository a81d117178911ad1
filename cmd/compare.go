package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/witanlabs/sitediff/internal"
)

var (
	compareWidth  int
	compareHeight int
	compareOutput string
)

var compareCmd = &cobra.Command{
	Use:   "compare <staging.png> <prod.png>",
	Short: "Compare two screenshots",
	Long: `Normalize two PNG screenshots to the same size, diff them and write the
highlighted diff image.

Both inputs are rewritten in place at the target size, the same way a run
normalizes its screenshots. Added content is drawn red, removed content blue.

Examples:
  sitediff compare staging.png prod.png
  sitediff compare staging.png prod.png --width 390 --height 844 -o diff.png`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().IntVar(&compareWidth, "width", 1280, "Target width in pixels")
	compareCmd.Flags().IntVar(&compareHeight, "height", 800, "Target height in pixels")
	compareCmd.Flags().StringVarP(&compareOutput, "output", "o", "", "Diff image path (default: temp file)")
	rootCmd.AddCommand(compareCmd)
}

type compareOutcome struct {
	Baseline   string              `json:"baseline"`
	Candidate  string              `json:"candidate"`
	Diff       string              `json:"diff,omitempty"`
	Similarity internal.Similarity `json:"similarity"`
	Status     string              `json:"status"`
	Changed    int                 `json:"changed"`
	Total      int                 `json:"total"`
	Error      string              `json:"error,omitempty"`
}

func runCompare(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if compareWidth <= 0 || compareHeight <= 0 {
		return fmt.Errorf("--width and --height must be positive, got %dx%d", compareWidth, compareHeight)
	}
	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}

	outPath := compareOutput
	if outPath == "" {
		f, err := os.CreateTemp("", "sitediff-diff-*.png")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		outPath = f.Name()
		f.Close()
	}
	if abs, err := filepath.Abs(outPath); err == nil {
		outPath = abs
	}

	cmp := internal.NewComparator(internal.Layout{}, compareWidth, compareHeight, log)
	out := compareOutcome{Baseline: args[0], Candidate: args[1]}
	res, err := cmp.Diff(args[0], args[1], outPath)
	if err != nil {
		out.Similarity = internal.Failed(internal.TagFor(err))
		out.Error = err.Error()
		if compareOutput == "" {
			_ = os.Remove(outPath)
		}
	} else {
		out.Similarity = internal.Score(res.Similarity)
		out.Changed = res.Mismatched
		out.Total = res.Total
		out.Diff = outPath
	}
	status := internal.Classify(out.Similarity)
	out.Status = status.String()

	if jsonOutput {
		if err := jsonPrint(out); err != nil {
			return err
		}
	} else if out.Error != "" {
		fmt.Printf("%s: %s\n", out.Similarity, out.Error)
	} else {
		fmt.Printf("%s\n%s | similarity %s | %s\n", out.Diff, status, out.Similarity,
			internal.FormatDiffSummary(out.Changed, out.Total))
	}

	if status != internal.StatusPass {
		return exitFailed
	}
	return nil
}
