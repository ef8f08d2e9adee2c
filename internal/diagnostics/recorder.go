package diagnostics

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

const DefaultCapacity = 200

// Entry is one recorded log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// Recorder is a slog.Handler keeping the most recent entries in memory.
type Recorder struct {
	ring   *ring
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func NewRecorder(capacity int, level slog.Leveler) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Recorder{ring: &ring{entries: make([]Entry, capacity)}, level: level}
}

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	e := Entry{Time: rec.Time.UTC(), Level: rec.Level.String(), Message: rec.Message}
	attrs := make(map[string]any, rec.NumAttrs()+len(r.attrs))
	for _, a := range r.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		v := a.Value.Resolve().Any()
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		attrs[r.key(a.Key)] = v
		return true
	})
	if len(attrs) > 0 {
		e.Attrs = attrs
	}

	r.ring.mu.Lock()
	defer r.ring.mu.Unlock()
	r.ring.entries[r.ring.next] = e
	r.ring.next = (r.ring.next + 1) % len(r.ring.entries)
	if r.ring.next == 0 {
		r.ring.full = true
	}
	return nil
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *r
	c.attrs = slices.Clone(r.attrs)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: r.key(a.Key), Value: a.Value})
	}
	return &c
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if name == "" {
		return r
	}
	c := *r
	c.groups = append(slices.Clone(r.groups), name)
	return &c
}

func (r *Recorder) key(k string) string {
	for i := len(r.groups) - 1; i >= 0; i-- {
		k = r.groups[i] + "." + k
	}
	return k
}

// Entries returns up to limit recent entries, newest first. limit <= 0
// returns everything kept.
func (r *Recorder) Entries(limit int) []Entry {
	r.ring.mu.Lock()
	defer r.ring.mu.Unlock()

	n := r.ring.next
	if r.ring.full {
		n = len(r.ring.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	idx := r.ring.next
	for range limit {
		idx = (idx - 1 + len(r.ring.entries)) % len(r.ring.entries)
		out = append(out, r.ring.entries[idx])
	}
	return out
}

// NewLogger fans out to a JSON handler on w and to rec.
func NewLogger(w io.Writer, level slog.Leveler, rec *Recorder) *slog.Logger {
	jsonHandler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	if rec == nil {
		return slog.New(jsonHandler)
	}
	return slog.New(slogmulti.Fanout(jsonHandler, rec))
}
