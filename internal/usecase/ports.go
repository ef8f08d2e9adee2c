package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"widget-preview/internal/domain"
	"widget-preview/internal/probe"
	"widget-preview/internal/records"
	"widget-preview/internal/storage"
	"widget-preview/internal/widget"
)

type ClientStore interface {
	Create(ctx context.Context, c domain.Client) (string, error)
	List(ctx context.Context) ([]domain.Client, error)
	Get(ctx context.Context, id string) (domain.Client, error)
	GetBySlug(ctx context.Context, slug string) (domain.Client, error)
	Update(ctx context.Context, id string, patch domain.ClientPatch) error
	Delete(ctx context.Context, id string) error
}

type ScriptStore interface {
	Create(ctx context.Context, sc domain.ChatScript) (string, error)
	List(ctx context.Context) ([]domain.ChatScript, error)
	GetByID(ctx context.Context, id string) (domain.ChatScript, error)
	GetByClient(ctx context.Context, clientID string) ([]domain.ChatScript, error)
	GetBySlug(ctx context.Context, slug string) (domain.ChatScript, error)
	Update(ctx context.Context, id string, patch domain.ScriptPatch) error
	Delete(ctx context.Context, id string) error
	Legacy() ([]domain.ChatScript, error)
}

type ConversationStore interface {
	Archive(ctx context.Context, scriptID, conversationID string) (domain.ConversationEntry, error)
	History(ctx context.Context, scriptID string) ([]domain.ConversationEntry, error)
	Delete(ctx context.Context, entryID string) error
}

// DomainRegistrar attaches and detaches per-client subdomains.
type DomainRegistrar interface {
	AddDomain(ctx context.Context, slug string) (string, error)
	RemoveDomain(ctx context.Context, slug string) error
}

type StatusReporter interface {
	Status() storage.Status
}

type Prober interface {
	Probe(ctx context.Context, url string, p widget.Policy) (probe.Report, error)
}

// Links builds the public URLs of clients and scripts.
type Links struct {
	origin string
}

func NewLinks(origin string) Links {
	return Links{origin: strings.TrimRight(strings.TrimSpace(origin), "/")}
}

func (l Links) Client(slug string) string {
	return l.origin + "/" + slug
}

func (l Links) Preview(scriptID string) string {
	return l.origin + "/preview/" + scriptID
}

func (l Links) Frame(scriptID string) string {
	return l.origin + "/preview/" + scriptID + "/frame"
}

func isNotFound(err error) bool {
	return errors.Is(err, records.ErrNotFound)
}

func storeError(err error) *Error {
	return newError(ErrorInternal, ReasonStoreError, err)
}

var newUUID = func() string {
	return uuid.NewString()
}
