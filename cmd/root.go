package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/witanlabs/sitediff/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	configPath   string
	logLevel     string
	logFormat    string
	jsonOutput   bool
	baselineURL  string
	candidateURL string
)

var rootCmd = &cobra.Command{
	Use:   "sitediff",
	Short: "Visual regression checks between staging and production",
	Long: `Capture the same pages on a staging and a production origin, compare the
screenshots pixel by pixel and write a self-contained HTML report.

A page passes when its similarity is at least 95%.

Configuration is read from --config, $SITEDIFF_CONFIG or ./sitediff.yaml.

Exit codes:
  0  every page passed
  1  usage or configuration error
  2  at least one page failed or could not be compared`,
	Version:       Version,
	SilenceErrors: true,
}

func init() {
	addGlobalFlags(rootCmd.PersistentFlags())
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&configPath, "config", "", "Config file (env: SITEDIFF_CONFIG, default ./sitediff.yaml)")
	fs.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-formatted summaries")
	fs.StringVar(&baselineURL, "baseline-url", "", "Staging origin (env: SITEDIFF_BASELINE_URL)")
	fs.StringVar(&candidateURL, "candidate-url", "", "Production origin (env: SITEDIFF_CANDIDATE_URL)")
}

// newLogger builds the process logger. Logs go to w (stderr in practice) so
// that stdout stays reserved for results.
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("--log-format must be 'text' or 'json', got %q", logFormat)
	}
}

// loadConfig reads the config file, applies flag overrides and validates
// the result.
func loadConfig() (*config.Config, error) {
	path := config.Path(configPath)
	cfg, err := config.Load(path, configPath != "" || os.Getenv("SITEDIFF_CONFIG") != "")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if baselineURL != "" {
		cfg.BaselineURL = baselineURL
	}
	if candidateURL != "" {
		cfg.CandidateURL = candidateURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", path, err)
	}
	return cfg, nil
}

// Execute runs the CLI. Cancelling ctx aborts captures and probes in flight.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
