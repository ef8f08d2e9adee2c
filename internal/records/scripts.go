package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"widget-preview/internal/domain"
	"widget-preview/internal/storage"
)

// LegacyClientName labels scripts read from the legacy layout.
const LegacyClientName = "Legacy"

// LegacyReader exposes the earlier single-object script layout.
type LegacyReader interface {
	LegacyScripts() (map[string]json.RawMessage, error)
}

// WithLegacy makes ScriptService fall back to the legacy layout on lookups.
func WithLegacy(r LegacyReader) Option {
	return func(o *options) {
		o.legacy = r
	}
}

// ScriptService is the typed facade over the scripts table.
type ScriptService struct {
	store storage.Store
	opts  options
}

func NewScriptService(store storage.Store, opts ...Option) (*ScriptService, error) {
	if store == nil {
		return nil, errors.New("records: store must not be nil")
	}
	return &ScriptService{store: store, opts: buildOptions(opts)}, nil
}

// Create stores s as an active script and returns its id.
func (s *ScriptService) Create(ctx context.Context, sc domain.ChatScript) (string, error) {
	now := formatTime(s.opts.now())
	row := storage.Row{
		"clientId":   sc.ClientID,
		"clientName": sc.ClientName,
		"clientSlug": sc.ClientSlug,
		"script":     sc.Script,
		"isActive":   true,
		"createdAt":  now,
		"updatedAt":  now,
	}
	putOptional(row, "title", sc.Title)
	putOptional(row, "description", sc.Description)

	id, err := s.store.Create(ctx, storage.TableScripts, row)
	if err != nil {
		return "", fmt.Errorf("records: create script: %w", err)
	}
	return id, nil
}

// List returns every script, newest first. Legacy entries are not included.
func (s *ScriptService) List(ctx context.Context) ([]domain.ChatScript, error) {
	rows, err := s.store.List(ctx, storage.TableScripts)
	if err != nil {
		return nil, fmt.Errorf("records: list scripts: %w", err)
	}
	out := make([]domain.ChatScript, 0, len(rows))
	for _, r := range rows {
		out = append(out, scriptFromRow(r))
	}
	sortNewestFirst(out)
	return out, nil
}

// GetByID looks the id up in the store and then in the legacy layout.
func (s *ScriptService) GetByID(ctx context.Context, id string) (domain.ChatScript, error) {
	row, err := s.store.Get(ctx, storage.TableScripts, id)
	if err == nil {
		return scriptFromRow(row), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.ChatScript{}, fmt.Errorf("records: get script %q: %w", id, err)
	}
	legacy, lerr := s.Legacy()
	if lerr != nil {
		return domain.ChatScript{}, lerr
	}
	for _, sc := range legacy {
		if sc.ID == id {
			return sc, nil
		}
	}
	return domain.ChatScript{}, fmt.Errorf("records: get script %q: %w", id, ErrNotFound)
}

// GetByClient returns the scripts owned by clientID, newest first.
func (s *ScriptService) GetByClient(ctx context.Context, clientID string) ([]domain.ChatScript, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ChatScript, 0)
	for _, sc := range all {
		if sc.ClientID == clientID {
			out = append(out, sc)
		}
	}
	return out, nil
}

// GetBySlug returns the newest active script whose client slug is slug.
func (s *ScriptService) GetBySlug(ctx context.Context, slug string) (domain.ChatScript, error) {
	all, err := s.List(ctx)
	if err != nil {
		return domain.ChatScript{}, err
	}
	for _, sc := range all {
		if sc.ClientSlug == slug && sc.IsActive {
			return sc, nil
		}
	}
	return domain.ChatScript{}, fmt.Errorf("records: script for slug %q: %w", slug, ErrNotFound)
}

// Update applies the non-nil fields of patch and bumps updatedAt.
func (s *ScriptService) Update(ctx context.Context, id string, patch domain.ScriptPatch) error {
	row := storage.Row{"updatedAt": formatTime(s.opts.now())}
	if patch.Title != nil {
		row["title"] = *patch.Title
	}
	if patch.Description != nil {
		row["description"] = *patch.Description
	}
	if patch.Script != nil {
		row["script"] = *patch.Script
	}
	if patch.IsActive != nil {
		row["isActive"] = *patch.IsActive
	}
	if err := s.store.Update(ctx, storage.TableScripts, id, row); err != nil {
		return fmt.Errorf("records: update script %q: %w", id, err)
	}
	return nil
}

func (s *ScriptService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, storage.TableScripts, id); err != nil {
		return fmt.Errorf("records: delete script %q: %w", id, err)
	}
	return nil
}

// Legacy returns the scripts of the legacy layout, newest first. Entries
// that cannot be decoded are skipped.
func (s *ScriptService) Legacy() ([]domain.ChatScript, error) {
	if s.opts.legacy == nil {
		return nil, nil
	}
	raw, err := s.opts.legacy.LegacyScripts()
	if err != nil {
		return nil, fmt.Errorf("records: read legacy scripts: %w", err)
	}
	out := make([]domain.ChatScript, 0, len(raw))
	for id, msg := range raw {
		var ls domain.LegacyScript
		if err := json.Unmarshal(msg, &ls); err != nil {
			slog.Warn("skipping undecodable legacy script", "id", id, "err", err)
			continue
		}
		created := parseTime(ls.CreatedAt)
		out = append(out, domain.ChatScript{
			ID:         id,
			ClientName: LegacyClientName,
			Script:     ls.Script,
			Title:      ls.Title,
			IsActive:   true,
			CreatedAt:  created,
			UpdatedAt:  created,
		})
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(scripts []domain.ChatScript) {
	slices.SortStableFunc(scripts, func(a, b domain.ChatScript) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		// Keep map-sourced legacy entries in a stable order.
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

func scriptFromRow(r storage.Row) domain.ChatScript {
	return domain.ChatScript{
		ID:          stringValue(r[storage.FieldID]),
		ClientID:    stringValue(r["clientId"]),
		ClientName:  r.String("clientName"),
		ClientSlug:  r.String("clientSlug"),
		Script:      r.String("script"),
		Title:       r.String("title"),
		Description: r.String("description"),
		IsActive:    boolValue(r["isActive"]),
		CreatedAt:   parseTime(r["createdAt"]),
		UpdatedAt:   parseTime(r["updatedAt"]),
	}
}
