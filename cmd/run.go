package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/witanlabs/sitediff/capture"
	"github.com/witanlabs/sitediff/internal"
)

var (
	runDevice      string
	runSkipCapture bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture and compare every configured page",
	Long: `Capture every configured page on both origins, compare the screenshots and
write one HTML report per device.

Screenshots land in {output_dir}/{device}/{staging,prod,diff}/. Reports are
written to {report_dir}/visual-report-{device}.html.

Examples:
  sitediff run
  sitediff run --device mobile
  sitediff run --skip-capture          # re-compare screenshots already on disk
  sitediff --json run --baseline-url https://staging.example.com`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDevice, "device", "", "Only run the named device")
	runCmd.Flags().BoolVar(&runSkipCapture, "skip-capture", false, "Compare the screenshots already on disk without launching Chrome")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
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
	if runDevice != "" {
		dev, ok := cfg.Device(runDevice)
		if !ok {
			return fmt.Errorf("unknown device %q", runDevice)
		}
		devices = []internal.Device{dev}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var browser *capture.Browser
	if !runSkipCapture {
		browser = capture.New(capture.Config{
			RemoteURL: cfg.Capture.Remote,
			Headless:  cfg.Capture.IsHeadless(),
			Timeout:   cfg.Capture.Timeout,
			FullPage:  cfg.Capture.IsFullPage(),
			Logger:    log,
		})
		if err := browser.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := browser.Close(); err != nil {
				log.Warn("run: closing browser", "error", err)
			}
		}()
	}

	outcomes := make([]*internal.RunOutcome, 0, len(devices))
	failed := false
	for _, dev := range devices {
		runner := &internal.Runner{
			BaselineURL:  cfg.BaselineURL,
			CandidateURL: cfg.CandidateURL,
			Pages:        cfg.PagePaths(),
			OutputDir:    cfg.OutputDir,
			ReportDir:    cfg.ReportDir,
			Workers:      cfg.Workers,
			Logger:       log,
		}
		if browser != nil {
			runner.Capturer = browser.Device(dev.Width, dev.Height)
		}

		out, err := runner.Run(ctx, dev)
		if err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
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
