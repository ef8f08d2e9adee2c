package usecase

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"widget-preview/internal/domain"
	"widget-preview/internal/probe"
	"widget-preview/internal/records"
	"widget-preview/internal/storage"
	"widget-preview/internal/widget"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// clients
// ---------------------------------------------------------------------------

type memClients struct {
	mu        sync.Mutex
	rows      []domain.Client
	seq       int
	createErr error
	listErr   error
	deleteErr error
}

func (m *memClients) Create(_ context.Context, c domain.Client) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	c.ID = fmt.Sprintf("c%d", m.seq)
	c.CreatedAt = baseTime.Add(time.Duration(m.seq) * time.Minute)
	c.UpdatedAt = c.CreatedAt
	m.rows = append(m.rows, c)
	return c.ID, nil
}

func (m *memClients) List(context.Context) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := slices.Clone(m.rows)
	slices.SortStableFunc(out, func(a, b domain.Client) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *memClients) Get(_ context.Context, id string) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Client{}, records.ErrNotFound
}

func (m *memClients) GetBySlug(_ context.Context, slug string) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.rows {
		if c.Slug == slug {
			return c, nil
		}
	}
	return domain.Client{}, records.ErrNotFound
}

func (m *memClients) Update(_ context.Context, id string, p domain.ClientPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.rows {
		if c.ID != id {
			continue
		}
		if p.Name != nil {
			c.Name = *p.Name
		}
		if p.Email != nil {
			c.Email = *p.Email
		}
		if p.Phone != nil {
			c.Phone = *p.Phone
		}
		if p.Company != nil {
			c.Company = *p.Company
		}
		m.rows[i] = c
		return nil
	}
	return records.ErrNotFound
}

func (m *memClients) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, c := range m.rows {
		if c.ID == id {
			m.rows = slices.Delete(m.rows, i, i+1)
			return nil
		}
	}
	return records.ErrNotFound
}

// ---------------------------------------------------------------------------
// scripts
// ---------------------------------------------------------------------------

type memScripts struct {
	mu        sync.Mutex
	rows      []domain.ChatScript
	legacy    []domain.ChatScript
	seq       int
	createErr error
	failFor   map[string]error
}

func (m *memScripts) Create(_ context.Context, sc domain.ChatScript) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	m.seq++
	sc.ID = fmt.Sprintf("s%d", m.seq)
	sc.IsActive = true
	sc.CreatedAt = baseTime.Add(time.Duration(m.seq) * time.Minute)
	sc.UpdatedAt = sc.CreatedAt
	m.rows = append(m.rows, sc)
	return sc.ID, nil
}

// add stores sc as given, bypassing Create defaults.
func (m *memScripts) add(sc domain.ChatScript) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, sc)
}

func (m *memScripts) List(context.Context) ([]domain.ChatScript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.rows)
	slices.SortStableFunc(out, func(a, b domain.ChatScript) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (m *memScripts) GetByID(ctx context.Context, id string) (domain.ChatScript, error) {
	all, _ := m.List(ctx)
	for _, sc := range append(all, m.legacy...) {
		if sc.ID == id {
			return sc, nil
		}
	}
	return domain.ChatScript{}, records.ErrNotFound
}

func (m *memScripts) GetByClient(ctx context.Context, clientID string) ([]domain.ChatScript, error) {
	all, _ := m.List(ctx)
	out := []domain.ChatScript{}
	for _, sc := range all {
		if sc.ClientID == clientID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (m *memScripts) GetBySlug(ctx context.Context, slug string) (domain.ChatScript, error) {
	all, _ := m.List(ctx)
	for _, sc := range all {
		if sc.ClientSlug == slug && sc.IsActive {
			return sc, nil
		}
	}
	return domain.ChatScript{}, records.ErrNotFound
}

func (m *memScripts) Update(_ context.Context, id string, p domain.ScriptPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sc := range m.rows {
		if sc.ID != id {
			continue
		}
		if p.Title != nil {
			sc.Title = *p.Title
		}
		if p.Description != nil {
			sc.Description = *p.Description
		}
		if p.Script != nil {
			sc.Script = *p.Script
		}
		if p.IsActive != nil {
			sc.IsActive = *p.IsActive
		}
		m.rows[i] = sc
		return nil
	}
	return records.ErrNotFound
}

func (m *memScripts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[id]; err != nil {
		return err
	}
	for i, sc := range m.rows {
		if sc.ID == id {
			m.rows = slices.Delete(m.rows, i, i+1)
			return nil
		}
	}
	return records.ErrNotFound
}

func (m *memScripts) Legacy() ([]domain.ChatScript, error) {
	return m.legacy, nil
}

// ---------------------------------------------------------------------------
// conversations, domains, status, prober
// ---------------------------------------------------------------------------

type memConversations struct {
	mu      sync.Mutex
	entries []domain.ConversationEntry
	seq     int
}

func (m *memConversations) Archive(_ context.Context, scriptID, convID string) (domain.ConversationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := domain.ConversationEntry{
		ID:             fmt.Sprintf("e%d", m.seq),
		ScriptID:       scriptID,
		ConversationID: convID,
		ArchivedAt:     baseTime.Add(time.Duration(m.seq) * time.Second),
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memConversations) History(_ context.Context, scriptID string) ([]domain.ConversationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ConversationEntry{}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].ScriptID == scriptID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memConversations) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = slices.Delete(m.entries, i, i+1)
			return nil
		}
	}
	return records.ErrNotFound
}

type fakeDomains struct {
	added     []string
	removed   []string
	addErr    error
	removeErr error
}

func (f *fakeDomains) AddDomain(_ context.Context, slug string) (string, error) {
	if f.addErr != nil {
		return "", f.addErr
	}
	f.added = append(f.added, slug)
	return slug + ".converseia.com", nil
}

func (f *fakeDomains) RemoveDomain(_ context.Context, slug string) error {
	f.removed = append(f.removed, slug)
	return f.removeErr
}

type fixedStatus struct{}

func (fixedStatus) Status() storage.Status {
	return storage.Status{Backend: "local", Mode: storage.ModeLocal}
}

type fakeProber struct {
	url    string
	report probe.Report
	err    error
}

func (f *fakeProber) Probe(_ context.Context, url string, _ widget.Policy) (probe.Report, error) {
	f.url = url
	return f.report, f.err
}
