package storage

import (
	"context"
	"errors"
	"log/slog"
)

// Storage modes reported by Status.
const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// FallbackRecorder counts operations that degraded to the local store.
type FallbackRecorder interface {
	StorageFallback(table, op string)
}

// Status describes which backend currently accepts operations.
type Status struct {
	Backend          string `json:"backend"`
	RemoteConfigured bool   `json:"remoteConfigured"`
	Mode             string `json:"mode"`
}

// Fallback routes every operation to the remote store when it is configured
// for the table and retries against the local store when it is not, or when
// the remote call fails. Remote failures are logged and never returned.
type Fallback struct {
	local    Store
	remote   Remote
	backend  string
	logger   *slog.Logger
	recorder FallbackRecorder
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

func WithLogger(logger *slog.Logger) FallbackOption {
	return func(f *Fallback) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func WithRecorder(r FallbackRecorder) FallbackOption {
	return func(f *Fallback) {
		f.recorder = r
	}
}

// WithBackendName sets the name reported by Status for the remote backend.
func WithBackendName(name string) FallbackOption {
	return func(f *Fallback) {
		f.backend = name
	}
}

// NewFallback wraps local and an optional remote. A nil remote means
// local-only mode.
func NewFallback(local Store, remote Remote, opts ...FallbackOption) (*Fallback, error) {
	if local == nil {
		return nil, errors.New("storage: local store must not be nil")
	}
	f := &Fallback{
		local:   local,
		remote:  remote,
		backend: "remote",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Fallback) useRemote(table Table) bool {
	return f.remote != nil && f.remote.Configured(table)
}

func (f *Fallback) degrade(table Table, op string, err error) {
	f.logger.Warn("remote storage failed, using local store", "table", string(table), "op", op, "err", err)
	if f.recorder != nil {
		f.recorder.StorageFallback(string(table), op)
	}
}

func (f *Fallback) Create(ctx context.Context, table Table, row Row) (string, error) {
	if f.useRemote(table) {
		id, err := f.remote.Create(ctx, table, row)
		if err == nil {
			return id, nil
		}
		f.degrade(table, "create", err)
	}
	return f.local.Create(ctx, table, row)
}

func (f *Fallback) List(ctx context.Context, table Table) ([]Row, error) {
	if f.useRemote(table) {
		rows, err := f.remote.List(ctx, table)
		if err == nil {
			return rows, nil
		}
		f.degrade(table, "list", err)
	}
	return f.local.List(ctx, table)
}

func (f *Fallback) Get(ctx context.Context, table Table, id string) (Row, error) {
	if f.useRemote(table) {
		row, err := f.remote.Get(ctx, table, id)
		if err == nil {
			return row, nil
		}
		// Rows written during an outage only exist locally.
		if !errors.Is(err, ErrNotFound) {
			f.degrade(table, "get", err)
		}
	}
	return f.local.Get(ctx, table, id)
}

func (f *Fallback) Update(ctx context.Context, table Table, id string, partial Row) error {
	if f.useRemote(table) {
		err := f.remote.Update(ctx, table, id, partial)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			f.degrade(table, "update", err)
		}
	}
	return f.local.Update(ctx, table, id, partial)
}

func (f *Fallback) Delete(ctx context.Context, table Table, id string) error {
	if f.useRemote(table) {
		err := f.remote.Delete(ctx, table, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			f.degrade(table, "delete", err)
		}
	}
	return f.local.Delete(ctx, table, id)
}

// Status reports the active mode for the storage-status indicator.
func (f *Fallback) Status() Status {
	if f.remote == nil || !f.remote.Configured(TableClients) {
		return Status{Backend: "local", Mode: ModeLocal}
	}
	return Status{Backend: f.backend, RemoteConfigured: true, Mode: ModeRemote}
}

// Ping checks remote reachability. Local-only mode and remotes without a
// reachability check report nil.
func (f *Fallback) Ping(ctx context.Context) error {
	if f.remote == nil {
		return nil
	}
	p, ok := f.remote.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
