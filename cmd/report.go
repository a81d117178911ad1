package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/witanlabs/sitediff/internal"
)

var reportDevice string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild HTML reports from saved results",
	Long: `Rebuild visual-report-{device}.html from the results.json and screenshots
of an earlier run, without capturing or comparing anything.

Examples:
  sitediff report
  sitediff report --device desktop`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDevice, "device", "", "Only rebuild the named device")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	devices := cfg.RunDevices()
	if reportDevice != "" {
		dev, ok := cfg.Device(reportDevice)
		if !ok {
			return fmt.Errorf("unknown device %q", reportDevice)
		}
		devices = []internal.Device{dev}
	}

	outcomes := make([]*internal.RunOutcome, 0, len(devices))
	failed := false
	for _, dev := range devices {
		layout := internal.Layout{Root: cfg.OutputDir, Device: dev.Name}
		results, err := internal.LoadResults(layout.ResultsPath())
		if err != nil {
			return fmt.Errorf("device %s: loading results (run 'sitediff run' first): %w", dev.Name, err)
		}

		path, err := internal.WriteReport(cfg.ReportDir, results, internal.ReportMeta{
			Device:       dev.Name,
			BaselineURL:  cfg.BaselineURL,
			CandidateURL: cfg.CandidateURL,
			GeneratedAt:  time.Now(),
		}, layout)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
		}
		log.Info("report: written", "device", dev.Name, "path", path)

		out := &internal.RunOutcome{
			Device:      dev.Name,
			Results:     results,
			Summary:     internal.Summarize(results),
			ReportPath:  path,
			ResultsPath: layout.ResultsPath(),
		}
		outcomes = append(outcomes, out)
		if out.Summary.Failed > 0 || out.Summary.Errors > 0 {
			failed = true
		}
	}

	if jsonOutput {
		if err := jsonPrint(outcomes); err != nil {
			return err
		}
	} else {
		for _, out := range outcomes {
			printOutcome(out)
		}
	}

	if failed {
		return exitFailed
	}
	return nil
}
