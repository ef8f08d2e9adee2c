package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"widget-preview/internal/widget"
)

// Report is the outcome of probing one preview frame.
type Report struct {
	Outcome       Outcome  `json:"outcome"`
	Stage         string   `json:"stage,omitempty"`
	Selector      string   `json:"selector"`
	Attempts      int      `json:"attempts"`
	ElapsedMs     int64    `json:"elapsedMs"`
	RequestErrors []string `json:"requestErrors"`
	Error         string   `json:"error,omitempty"`
}

// Chrome loads preview frames in a headless browser.
type Chrome struct {
	execPath  string
	timeout   time.Duration
	logger    *slog.Logger
	noSandbox bool
}

type ChromeOption func(*Chrome)

// WithExecPath points at a specific Chrome or Chromium binary.
func WithExecPath(path string) ChromeOption {
	return func(c *Chrome) {
		c.execPath = strings.TrimSpace(path)
	}
}

// WithNoSandbox turns off the Chrome sandbox. The page runs untrusted
// embeds, so only enable it where the process is already isolated, such as a
// container without the privileges the sandbox needs.
func WithNoSandbox(enabled bool) ChromeOption {
	return func(c *Chrome) {
		c.noSandbox = enabled
	}
}

func WithTimeout(d time.Duration) ChromeOption {
	return func(c *Chrome) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) ChromeOption {
	return func(c *Chrome) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewChrome(opts ...ChromeOption) *Chrome {
	c := &Chrome{timeout: 60 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chrome) flags() map[string]any {
	flags := map[string]any{
		"headless":    true,
		"disable-gpu": true,
	}
	if c.noSandbox {
		flags["no-sandbox"] = true
	}
	return flags
}

// Probe opens url, installs the network logger before any page script runs
// and polls for the widget root on the policy's schedule.
func (c *Chrome) Probe(ctx context.Context, url string, p widget.Policy) (Report, error) {
	p = p.Normalized()
	if strings.TrimSpace(url) == "" {
		return Report{}, errors.New("probe: url must not be empty")
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range c.flags() {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		c.logger.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
	}))
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, c.timeout)
	defer cancelTimeout()

	err := chromedp.Run(timeoutCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(widget.NetworkPatch()).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
	)
	if err != nil {
		return Report{}, fmt.Errorf("probe: navigate %s: %w", url, err)
	}

	selector, _ := json.Marshal(p.WidgetSelector)
	res := Detect(timeoutCtx, p, func(ctx context.Context) (bool, error) {
		var found bool
		if err := chromedp.Run(ctx, chromedp.Evaluate(fmt.Sprintf("!!document.querySelector(%s)", selector), &found)); err != nil {
			return false, err
		}
		return found, nil
	})

	report := Report{
		Outcome:       res.Outcome,
		Selector:      p.WidgetSelector,
		Attempts:      res.Attempts,
		ElapsedMs:     res.Elapsed.Milliseconds(),
		RequestErrors: []string{},
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}

	var stage string
	var reqErrs []string
	_ = chromedp.Run(timeoutCtx,
		chromedp.Evaluate(`document.documentElement.getAttribute('data-widget-outcome') || ''`, &stage),
		chromedp.Evaluate(`(window.__widgetPreviewNet && window.__widgetPreviewNet.errors) || []`, &reqErrs),
	)
	report.Stage = stage
	if reqErrs != nil {
		report.RequestErrors = reqErrs
	}

	c.logger.Info("widget probe finished",
		"url", url,
		"outcome", string(report.Outcome),
		"attempts", report.Attempts,
		"request_errors", len(report.RequestErrors),
	)
	return report, nil
}
