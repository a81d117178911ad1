// Package config loads the sitediff YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/witanlabs/sitediff/internal"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when neither --config nor $SITEDIFF_CONFIG is set.
const DefaultFile = "sitediff.yaml"

// Config is the top-level sitediff configuration.
type Config struct {
	BaselineURL  string         `yaml:"baseline_url"`
	CandidateURL string         `yaml:"candidate_url"`
	Pages        []string       `yaml:"pages"`
	Devices      []DeviceConfig `yaml:"devices"`
	OutputDir    string         `yaml:"output_dir"`
	ReportDir    string         `yaml:"report_dir"`
	Workers      int            `yaml:"workers"`
	Capture      CaptureConfig  `yaml:"capture"`
	Probe        ProbeConfig    `yaml:"probe"`
}

// DeviceConfig is a named viewport.
type DeviceConfig struct {
	Name   string `yaml:"name"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

// CaptureConfig controls Chrome.
type CaptureConfig struct {
	Remote   string        `yaml:"remote"`
	Headless *bool         `yaml:"headless"`
	Timeout  time.Duration `yaml:"timeout"`
	FullPage *bool         `yaml:"full_page"`
}

// ProbeConfig controls the link checker.
type ProbeConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// IsHeadless defaults to true.
func (c CaptureConfig) IsHeadless() bool { return c.Headless == nil || *c.Headless }

// IsFullPage defaults to true.
func (c CaptureConfig) IsFullPage() bool { return c.FullPage == nil || *c.FullPage }

// Path resolves which file to read: the explicit path, else $SITEDIFF_CONFIG,
// else DefaultFile.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("SITEDIFF_CONFIG"); v != "" {
		return v
	}
	return DefaultFile
}

// Load reads the config file at path. A missing file is not an error when
// the path was not given explicitly, so a run can be driven entirely by
// flags and environment. Env overrides are applied after the file.
func Load(path string, explicit bool) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if v := os.Getenv("SITEDIFF_BASELINE_URL"); v != "" {
		cfg.BaselineURL = v
	}
	if v := os.Getenv("SITEDIFF_CANDIDATE_URL"); v != "" {
		cfg.CandidateURL = v
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Devices) == 0 {
		c.Devices = []DeviceConfig{{Name: "desktop", Width: 1280, Height: 800}}
	}
	if c.OutputDir == "" {
		c.OutputDir = "screenshots"
	}
	if c.ReportDir == "" {
		c.ReportDir = "."
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = 30 * time.Second
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = 10 * time.Second
	}
	if c.Probe.Concurrency <= 0 {
		c.Probe.Concurrency = 16
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.BaselineURL) == "" {
		errs = append(errs, errors.New("baseline_url is required"))
	} else if _, err := internal.PageURL(c.BaselineURL, "/"); err != nil {
		errs = append(errs, fmt.Errorf("baseline_url: %w", err))
	}
	if strings.TrimSpace(c.CandidateURL) == "" {
		errs = append(errs, errors.New("candidate_url is required"))
	} else if _, err := internal.PageURL(c.CandidateURL, "/"); err != nil {
		errs = append(errs, fmt.Errorf("candidate_url: %w", err))
	}

	if len(c.Pages) == 0 {
		errs = append(errs, errors.New("pages must list at least one page"))
	}
	keys := make(map[string]string, len(c.Pages))
	for _, p := range c.Pages {
		key := internal.ArtifactKey(internal.PagePath(p))
		if prev, ok := keys[key]; ok {
			errs = append(errs, fmt.Errorf("pages %q and %q map to the same file name %q", prev, p, key))
			continue
		}
		keys[key] = p
	}

	names := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: name is required", i))
		} else if names[d.Name] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name))
		}
		names[d.Name] = true
		if d.Width <= 0 || d.Height <= 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: viewport %dx%d must be positive", i, d.Width, d.Height))
		}
	}
	return errors.Join(errs...)
}

// PagePaths returns the configured pages in order.
func (c *Config) PagePaths() []internal.PagePath {
	out := make([]internal.PagePath, len(c.Pages))
	for i, p := range c.Pages {
		out[i] = internal.PagePath(p)
	}
	return out
}

// Device looks up a device by name.
func (c *Config) Device(name string) (internal.Device, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return internal.Device{Name: d.Name, Width: d.Width, Height: d.Height}, true
		}
	}
	return internal.Device{}, false
}

// RunDevices returns every configured device.
func (c *Config) RunDevices() []internal.Device {
	out := make([]internal.Device, len(c.Devices))
	for i, d := range c.Devices {
		out[i] = internal.Device{Name: d.Name, Width: d.Width, Height: d.Height}
	}
	return out
}
