package usecase

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"widget-preview/internal/domain"
	"widget-preview/internal/storage"
)

const cascadeParallelism = 8

// Manager backs the client manager: listings, edits and cascading deletes.
type Manager struct {
	clients ClientStore
	scripts ScriptStore
	status  StatusReporter
	links   Links
	domains DomainRegistrar
	logger  *slog.Logger
}

type ManagerOption func(*Manager)

// WithDomainCleanup removes a client's subdomain when the client is deleted.
func WithDomainCleanup(r DomainRegistrar) ManagerOption {
	return func(m *Manager) {
		m.domains = r
	}
}

func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

type ClientSummary struct {
	domain.Client
	ScriptCount int    `json:"scriptCount"`
	Link        string `json:"link"`
}

type ScriptSummary struct {
	domain.ChatScript
	Link        string `json:"link"`
	PreviewLink string `json:"previewLink"`
}

type Overview struct {
	Clients      []ClientSummary `json:"clients"`
	TotalScripts int             `json:"totalScripts"`
	Storage      storage.Status  `json:"storage"`
}

// DeleteReport lists what a cascading client delete did.
type DeleteReport struct {
	ClientID       string   `json:"clientId"`
	DeletedScripts []string `json:"deletedScripts"`
	FailedScripts  []string `json:"failedScripts,omitempty"`
	ClientDeleted  bool     `json:"clientDeleted"`
	DomainError    string   `json:"domainError,omitempty"`
}

func NewManager(clients ClientStore, scripts ScriptStore, status StatusReporter, links Links, opts ...ManagerOption) (*Manager, error) {
	if clients == nil {
		return nil, errors.New("usecase: client store must not be nil")
	}
	if scripts == nil {
		return nil, errors.New("usecase: script store must not be nil")
	}
	if status == nil {
		return nil, errors.New("usecase: status reporter must not be nil")
	}
	m := &Manager{clients: clients, scripts: scripts, status: status, links: links, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Overview lists clients newest first with their script counts.
func (m *Manager) Overview(ctx context.Context) (Overview, error) {
	clients, err := m.clients.List(ctx)
	if err != nil {
		return Overview{}, storeError(err)
	}
	scripts, err := m.scripts.List(ctx)
	if err != nil {
		return Overview{}, storeError(err)
	}
	counts := make(map[string]int, len(clients))
	for _, sc := range scripts {
		counts[sc.ClientID]++
	}
	out := Overview{
		Clients:      make([]ClientSummary, 0, len(clients)),
		TotalScripts: len(scripts),
		Storage:      m.status.Status(),
	}
	for _, c := range clients {
		out.Clients = append(out.Clients, ClientSummary{
			Client:      c,
			ScriptCount: counts[c.ID],
			Link:        m.links.Client(c.Slug),
		})
	}
	return out, nil
}

func (m *Manager) Client(ctx context.Context, id string) (domain.Client, error) {
	c, err := m.clients.Get(ctx, id)
	if isNotFound(err) {
		return domain.Client{}, newError(ErrorNotFound, ReasonClientNotFound, err)
	}
	if err != nil {
		return domain.Client{}, storeError(err)
	}
	return c, nil
}

// ClientScripts returns the scripts of an existing client, newest first.
func (m *Manager) ClientScripts(ctx context.Context, clientID string) ([]ScriptSummary, error) {
	if _, err := m.Client(ctx, clientID); err != nil {
		return nil, err
	}
	scripts, err := m.scripts.GetByClient(ctx, clientID)
	if err != nil {
		return nil, storeError(err)
	}
	return m.summarize(scripts), nil
}

func (m *Manager) Scripts(ctx context.Context) ([]ScriptSummary, error) {
	scripts, err := m.scripts.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return m.summarize(scripts), nil
}

func (m *Manager) Script(ctx context.Context, id string) (ScriptSummary, error) {
	sc, err := m.scripts.GetByID(ctx, id)
	if isNotFound(err) {
		return ScriptSummary{}, newError(ErrorNotFound, ReasonScriptNotFound, err)
	}
	if err != nil {
		return ScriptSummary{}, storeError(err)
	}
	return m.summarize([]domain.ChatScript{sc})[0], nil
}

// UpdateClient saves the edited fields. The slug never changes since it is
// part of every published link.
func (m *Manager) UpdateClient(ctx context.Context, id string, patch domain.ClientPatch) (domain.Client, error) {
	patch.Name = trimmed(patch.Name)
	patch.Email = trimmed(patch.Email)
	patch.Phone = trimmed(patch.Phone)
	patch.Company = trimmed(patch.Company)
	if patch.Name != nil && *patch.Name == "" {
		return domain.Client{}, newError(ErrorInvalidInput, ReasonEmptyName, nil)
	}
	if err := validateStruct(patch); err != nil {
		return domain.Client{}, err
	}
	err := m.clients.Update(ctx, id, patch)
	if isNotFound(err) {
		return domain.Client{}, newError(ErrorNotFound, ReasonClientNotFound, err)
	}
	if err != nil {
		return domain.Client{}, storeError(err)
	}
	return m.Client(ctx, id)
}

func (m *Manager) UpdateScript(ctx context.Context, id string, patch domain.ScriptPatch) (ScriptSummary, error) {
	if patch.Script != nil && strings.TrimSpace(*patch.Script) == "" {
		return ScriptSummary{}, newError(ErrorInvalidInput, ReasonEmptyScript, nil)
	}
	patch.Title = trimmed(patch.Title)
	patch.Description = trimmed(patch.Description)
	if err := validateStruct(patch); err != nil {
		return ScriptSummary{}, err
	}
	err := m.scripts.Update(ctx, id, patch)
	if isNotFound(err) {
		return ScriptSummary{}, newError(ErrorNotFound, ReasonScriptNotFound, err)
	}
	if err != nil {
		return ScriptSummary{}, storeError(err)
	}
	return m.Script(ctx, id)
}

// DeleteClient deletes every script of the client in parallel and then the
// client. When a script delete fails the client is kept and the report lists
// the failures; scripts already deleted stay deleted.
func (m *Manager) DeleteClient(ctx context.Context, id string, confirmed bool) (DeleteReport, error) {
	if !confirmed {
		return DeleteReport{}, newError(ErrorInvalidInput, ReasonConfirmationRequired, nil)
	}
	client, err := m.Client(ctx, id)
	if err != nil {
		return DeleteReport{}, err
	}
	scripts, err := m.scripts.GetByClient(ctx, id)
	if err != nil {
		return DeleteReport{}, storeError(err)
	}

	report := DeleteReport{ClientID: id, DeletedScripts: []string{}}
	var mu sync.Mutex
	var firstErr error
	g := new(errgroup.Group)
	g.SetLimit(cascadeParallelism)
	for _, sc := range scripts {
		g.Go(func() error {
			err := m.scripts.Delete(ctx, sc.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && !isNotFound(err) {
				m.logger.Error("cascade script delete failed", "client_id", id, "script_id", sc.ID, "err", err)
				report.FailedScripts = append(report.FailedScripts, sc.ID)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			report.DeletedScripts = append(report.DeletedScripts, sc.ID)
			return nil
		})
	}
	_ = g.Wait()
	slices.Sort(report.DeletedScripts)
	slices.Sort(report.FailedScripts)

	if len(report.FailedScripts) > 0 {
		return report, newError(ErrorInternal, ReasonCascadeIncomplete, firstErr)
	}
	if err := m.clients.Delete(ctx, id); err != nil && !isNotFound(err) {
		return report, storeError(err)
	}
	report.ClientDeleted = true

	if m.domains != nil {
		if err := m.domains.RemoveDomain(ctx, client.Slug); err != nil {
			m.logger.Warn("domain removal failed", "slug", client.Slug, "err", err)
			report.DomainError = err.Error()
		}
	}
	m.logger.Info("client deleted", "client_id", id, "scripts", len(report.DeletedScripts))
	return report, nil
}

func (m *Manager) DeleteScript(ctx context.Context, id string) error {
	err := m.scripts.Delete(ctx, id)
	if isNotFound(err) {
		return newError(ErrorNotFound, ReasonScriptNotFound, err)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}

func (m *Manager) summarize(scripts []domain.ChatScript) []ScriptSummary {
	out := make([]ScriptSummary, 0, len(scripts))
	for _, sc := range scripts {
		s := ScriptSummary{ChatScript: sc, PreviewLink: m.links.Preview(sc.ID)}
		if sc.ClientSlug != "" {
			s.Link = m.links.Client(sc.ClientSlug)
		}
		out = append(out, s)
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
