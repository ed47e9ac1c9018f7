package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"companion/internal/config"
	appLog "companion/internal/log"
)

// Default viewport of the calendar snapshot. The /calendar page is laid out
// for this size.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 960
	DefaultTimeout = 30 * time.Second
)

// readySelector is set on <body> once the server-rendered grid is complete.
const readySelector = `body[data-ready="true"]`

// Options defines a single snapshot.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/calendar".
	URL string

	// OutputPath receives the PNG.
	OutputPath string

	// Width and Height are the viewport in pixels. Zero means the defaults.
	Width  int
	Height int

	// Username and Password are sent as basic auth when the web surface is
	// protected.
	Username string
	Password string

	Timeout time.Duration
}

// FromConfig derives snapshot options for the local web surface.
func FromConfig(cfg *config.Config) Options {
	opts := Options{
		URL:        "http://" + cfg.Listen + "/calendar",
		OutputPath: cfg.Snapshot.Path,
		Width:      cfg.Snapshot.Width,
		Height:     cfg.Snapshot.Height,
	}
	if cfg.BasicAuth != nil {
		opts.Username = cfg.BasicAuth.Username
		opts.Password = cfg.BasicAuth.Password
	}
	return opts
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// SnapshotPNG opens the calendar page in headless Chromium, waits for the
// ready marker and writes a full-page PNG to opts.OutputPath.
func SnapshotPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	start := time.Now()
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	if opts.Username != "" {
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{
				"Authorization": basicAuth(opts.Username, opts.Password),
			}),
		)
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(readySelector, chromedp.ByQuery),
		chromedp.FullScreenshot(&png, 100),
	)
	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := config.WriteFileAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("calendar snapshot written",
		"path", opts.OutputPath,
		"bytes", len(png),
		"took", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
