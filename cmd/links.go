package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/witanlabs/sitediff/client"
	"github.com/witanlabs/sitediff/internal"
)

var linksOrigin string

var linksCmd = &cobra.Command{
	Use:   "links [page...]",
	Short: "Check that links and images on each page resolve",
	Long: `Fetch each page and check every <a href> and <img src> it references.
Each URL is requested once; a transport error or an HTTP status of 400 or
more marks it broken.

Pages default to the configured page list.

Examples:
  sitediff links
  sitediff links /apply/ --origin staging
  sitediff --json links`,
	RunE: runLinks,
}

func init() {
	linksCmd.Flags().StringVar(&linksOrigin, "origin", "both", "Origin to check: staging, prod or both")
	rootCmd.AddCommand(linksCmd)
}

type linksOutcome struct {
	Origin string             `json:"origin"`
	Page   internal.PagePath  `json:"page"`
	Report *client.PageReport `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

func runLinks(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	log, err := newLogger(os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var origins []string
	switch linksOrigin {
	case "staging":
		origins = []string{cfg.BaselineURL}
	case "prod":
		origins = []string{cfg.CandidateURL}
	case "both":
		origins = []string{cfg.BaselineURL, cfg.CandidateURL}
	default:
		return fmt.Errorf("--origin must be 'staging', 'prod' or 'both', got %q", linksOrigin)
	}

	pages := cfg.PagePaths()
	if len(args) > 0 {
		pages = make([]internal.PagePath, len(args))
		for i, a := range args {
			pages[i] = internal.PagePath(a)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c := client.New(cfg.Probe.Timeout, cfg.Probe.Concurrency)
	c.UserAgent = "sitediff/" + Version

	var outcomes []linksOutcome
	broken := 0
	for _, origin := range origins {
		for _, p := range pages {
			o := linksOutcome{Origin: origin, Page: p}
			u, err := internal.PageURL(origin, p)
			if err == nil {
				o.Report, err = c.CheckPage(ctx, u)
			}
			if err != nil {
				log.Warn("links: page not checked", "origin", origin, "page", p, "error", err)
				o.Error = describePageError(err)
				broken++
			} else {
				log.Debug("links: page checked", "url", u, "references", len(o.Report.Checks), "broken", o.Report.Broken)
				broken += o.Report.Broken
			}
			outcomes = append(outcomes, o)
		}
	}

	if jsonOutput {
		if err := jsonPrint(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Error != "" {
				fmt.Printf("%s%s: %s\n", o.Origin, o.Page, o.Error)
				continue
			}
			fmt.Printf("%s: %d references, %d broken\n", o.Report.Page, len(o.Report.Checks), o.Report.Broken)
			for _, r := range o.Report.Checks {
				if !r.Broken() {
					continue
				}
				fmt.Printf("  %-5s %s  %s\n", r.Kind, r.URL, r.Err)
			}
		}
	}

	if broken > 0 {
		return exitFailed
	}
	return nil
}

// describePageError words a page that is gone differently from one that
// could not be fetched.
func describePageError(err error) string {
	if client.IsNotFound(err) {
		return "page not found (HTTP 404)"
	}
	return err.Error()
}
