// Package capture takes page screenshots with headless Chrome driven by Rod.
// One Browser is started per run and reused sequentially for every page.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrNotStarted is returned by Capture before Start or after Close.
var ErrNotStarted = errors.New("capture: browser not started")

// Config configures the browser session.
type Config struct {
	// RemoteURL is the control URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs the local Chrome without a window.
	Headless bool

	// Timeout bounds navigation plus screenshot for a single page.
	// Default: 30s.
	Timeout time.Duration

	// FullPage captures the whole scrollable page instead of the viewport.
	FullPage bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns the Chrome process (or remote connection).
type Browser struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// New creates a Browser. Call Start to launch Chrome.
func New(cfg Config) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

// Start launches Chrome, or connects to RemoteURL when set.
func (b *Browser) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.cfg.Logger
	wsURL := b.cfg.RemoteURL
	if wsURL != "" {
		log.Info("capture: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(b.cfg.Headless)
		l = l.Set("disable-blink-features", "AutomationControlled")
		l = l.Set("hide-scrollbars")

		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("capture: launch chrome: %w", err)
		}
		wsURL = u
		b.lnch = l
		log.Info("capture: launched local chrome", "url", wsURL, "headless", b.cfg.Headless)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return fmt.Errorf("capture: connect: %w", err)
	}
	if err := rb.IgnoreCertErrors(true); err != nil {
		log.Warn("capture: ignore cert errors failed", "error", err)
	}
	b.browser = rb
	return nil
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleanup()
}

func (b *Browser) cleanup() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

func (b *Browser) current() *rod.Browser {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.browser
}

// Device returns a Capturer rendering pages at the given viewport size.
func (b *Browser) Device(width, height int) *Capturer {
	return &Capturer{b: b, width: width, height: height}
}

// Capturer takes screenshots at a fixed viewport size.
type Capturer struct {
	b      *Browser
	width  int
	height int
}

// Capture navigates to pageURL and writes a PNG screenshot to dest. On any
// failure dest is left untouched and the error describes the cause; the
// timeout only aborts this page.
func (c *Capturer) Capture(ctx context.Context, pageURL, dest string) error {
	rb := c.b.current()
	if rb == nil {
		return ErrNotStarted
	}
	log := c.b.cfg.Logger

	page, err := stealth.Page(rb)
	if err != nil {
		return fmt.Errorf("capture: create tab: %w", err)
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             c.width,
		Height:            c.height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("capture: set viewport: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, c.b.cfg.Timeout)
	defer cancel()
	p := page.Context(pageCtx)

	if err := p.Navigate(pageURL); err != nil {
		return fmt.Errorf("capture: navigate %s: %w", pageURL, err)
	}
	if err := p.WaitLoad(); err != nil {
		log.Warn("capture: wait load timeout", "url", pageURL, "error", err)
	}

	img, err := p.Screenshot(c.b.cfg.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("capture: screenshot %s: %w", pageURL, err)
	}

	return writeFile(dest, img)
}

// writeFile writes data to path through a temp file so that a failed write
// never leaves a truncated PNG behind.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("capture: creating %s: %w", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("capture: writing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("capture: writing %s: %w", path, err)
	}
	return nil
}
