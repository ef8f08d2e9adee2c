package widget

import (
	"strings"
	"time"
)

// DefaultTag is the custom element the supported widget registers.
const DefaultTag = "ra-chatbot-widget"

// Policy drives the browser runtime and the server-side probe. Durations
// serialize as milliseconds.
type Policy struct {
	WidgetTag      string
	WidgetSelector string

	DetectAttempts  int
	InitialDelay    time.Duration
	BackoffFactor   float64
	MaxDelay        time.Duration
	CleanupInterval time.Duration
	CleanupWindow   time.Duration
	// LoadTimeout bounds the wait for an external widget script. Detection
	// starts when it expires even if the script never loads.
	LoadTimeout     time.Duration

	ChatHints          []string
	OverlaySignatures  []string
	SessionKeyPatterns []string

	DockOffsetPx int
	MaxWidthPx   int
	MaxHeightPx  int
	FallbackFab  bool
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		WidgetTag:       DefaultTag,
		DetectAttempts:  6,
		InitialDelay:    1500 * time.Millisecond,
		BackoffFactor:   1.5,
		MaxDelay:        5 * time.Second,
		CleanupInterval: time.Second,
		CleanupWindow:   15 * time.Second,
		LoadTimeout:     5 * time.Second,
		ChatHints:       []string{"chatbot", "chat", "messenger", "livechat", "widget"},
		OverlaySignatures: []string{
			"powered by", "desenvolvido por", "feito com",
			"newsletter", "inscreva-se", "subscribe",
		},
		SessionKeyPatterns: []string{"conversation", "session", "thread", "chat", "visitor"},
		DockOffsetPx:       20,
		MaxWidthPx:         420,
		MaxHeightPx:        680,
		FallbackFab:        true,
	}
}

// Normalized fills zero fields from DefaultPolicy.
func (p Policy) Normalized() Policy {
	d := DefaultPolicy()
	if strings.TrimSpace(p.WidgetTag) == "" {
		p.WidgetTag = d.WidgetTag
	}
	p.WidgetTag = strings.ToLower(strings.TrimSpace(p.WidgetTag))
	if strings.TrimSpace(p.WidgetSelector) == "" {
		p.WidgetSelector = p.WidgetTag
	}
	if p.DetectAttempts <= 0 {
		p.DetectAttempts = d.DetectAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = d.BackoffFactor
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = max(d.MaxDelay, p.InitialDelay)
	}
	if p.CleanupInterval <= 0 {
		p.CleanupInterval = d.CleanupInterval
	}
	if p.CleanupWindow <= 0 {
		p.CleanupWindow = d.CleanupWindow
	}
	if p.LoadTimeout <= 0 {
		p.LoadTimeout = d.LoadTimeout
	}
	if len(p.ChatHints) == 0 {
		p.ChatHints = d.ChatHints
	}
	if len(p.OverlaySignatures) == 0 {
		p.OverlaySignatures = d.OverlaySignatures
	}
	if len(p.SessionKeyPatterns) == 0 {
		p.SessionKeyPatterns = d.SessionKeyPatterns
	}
	if p.DockOffsetPx <= 0 {
		p.DockOffsetPx = d.DockOffsetPx
	}
	if p.MaxWidthPx <= 0 {
		p.MaxWidthPx = d.MaxWidthPx
	}
	if p.MaxHeightPx <= 0 {
		p.MaxHeightPx = d.MaxHeightPx
	}
	return p
}

// Delays is the wait before each detection attempt: InitialDelay grown by
// BackoffFactor and capped at MaxDelay.
func (p Policy) Delays() []time.Duration {
	p = p.Normalized()
	out := make([]time.Duration, 0, p.DetectAttempts)
	d := float64(p.InitialDelay)
	for range p.DetectAttempts {
		out = append(out, min(time.Duration(d), p.MaxDelay))
		d *= p.BackoffFactor
	}
	return out
}

// Window is the longest time detection can take before declaring fallback.
func (p Policy) Window() time.Duration {
	var total time.Duration
	for _, d := range p.Delays() {
		total += d
	}
	return total
}

// MaxWait bounds the time from page load to an outcome when the widget
// script is external: the load timeout plus the detection window.
func (p Policy) MaxWait() time.Duration {
	return p.Normalized().LoadTimeout + p.Window()
}

// runtimePolicy is the JSON shape read by runtime.js.
type runtimePolicy struct {
	WidgetTag          string   `json:"widgetTag"`
	WidgetSelector     string   `json:"widgetSelector"`
	DelaysMs           []int64  `json:"delaysMs"`
	CleanupIntervalMs  int64    `json:"cleanupIntervalMs"`
	CleanupWindowMs    int64    `json:"cleanupWindowMs"`
	LoadTimeoutMs      int64    `json:"loadTimeoutMs"`
	ChatHints          []string `json:"chatHints"`
	OverlaySignatures  []string `json:"overlaySignatures"`
	SessionKeyPatterns []string `json:"sessionKeyPatterns"`
	DockOffsetPx       int      `json:"dockOffsetPx"`
	MaxWidthPx         int      `json:"maxWidthPx"`
	MaxHeightPx        int      `json:"maxHeightPx"`
	FallbackFab        bool     `json:"fallbackFab"`
}

func (p Policy) runtime() runtimePolicy {
	p = p.Normalized()
	delays := p.Delays()
	ms := make([]int64, len(delays))
	for i, d := range delays {
		ms[i] = d.Milliseconds()
	}
	return runtimePolicy{
		WidgetTag:          p.WidgetTag,
		WidgetSelector:     p.WidgetSelector,
		DelaysMs:           ms,
		CleanupIntervalMs:  p.CleanupInterval.Milliseconds(),
		CleanupWindowMs:    p.CleanupWindow.Milliseconds(),
		LoadTimeoutMs:      p.LoadTimeout.Milliseconds(),
		ChatHints:          lowerAll(p.ChatHints),
		OverlaySignatures:  lowerAll(p.OverlaySignatures),
		SessionKeyPatterns: lowerAll(p.SessionKeyPatterns),
		DockOffsetPx:       p.DockOffsetPx,
		MaxWidthPx:         p.MaxWidthPx,
		MaxHeightPx:        p.MaxHeightPx,
		FallbackFab:        p.FallbackFab,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
