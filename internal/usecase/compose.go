package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"widget-preview/internal/domain"
	"widget-preview/internal/slug"
)

// Composer states, in submission order.
const (
	StateIdle           = "idle"
	StateValidating     = "validating"
	StateCreatingClient = "creating-client"
	StateCreatingScript = "creating-script"
	StateLinkGenerated  = "link-generated"
)

type Composer struct {
	clients ClientStore
	scripts ScriptStore
	links   Links
	domains DomainRegistrar
	logger  *slog.Logger

	reserved []string
}

type ComposerOption func(*Composer)

// WithDomainRegistrar registers a subdomain for every new client.
func WithDomainRegistrar(r DomainRegistrar) ComposerOption {
	return func(c *Composer) {
		c.domains = r
	}
}

// WithReservedSlugs rejects these slugs in addition to slug.Reserved.
func WithReservedSlugs(reserved ...string) ComposerOption {
	return func(c *Composer) {
		c.reserved = append(c.reserved, reserved...)
	}
}

func WithComposerLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// ComposeInput is one composer submission. NewClient selects between
// creating a client from Name/Slug/contact fields and reusing ClientID.
type ComposeInput struct {
	Script      string `json:"script"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=1000"`

	NewClient bool   `json:"newClient"`
	ClientID  string `json:"clientId"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
}

type newClientFields struct {
	Name    string `json:"name" validate:"max=120"`
	Slug    string `json:"slug" validate:"max=50"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone" validate:"max=40"`
	Company string `json:"company" validate:"max=120"`
}

type ComposeOutput struct {
	State       string `json:"state"`
	ClientID    string `json:"clientId"`
	ScriptID    string `json:"scriptId"`
	Slug        string `json:"slug"`
	Link        string `json:"link"`
	PreviewLink string `json:"previewLink"`
	Domain      string `json:"domain,omitempty"`
	DomainError string `json:"domainError,omitempty"`
}

func NewComposer(clients ClientStore, scripts ScriptStore, links Links, opts ...ComposerOption) (*Composer, error) {
	if clients == nil {
		return nil, errors.New("usecase: client store must not be nil")
	}
	if scripts == nil {
		return nil, errors.New("usecase: script store must not be nil")
	}
	c := &Composer{clients: clients, scripts: scripts, links: links, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DeriveSlug is the slug the composer would use for name.
func DeriveSlug(name string) string {
	return slug.Derive(name)
}

// Compose validates in, creates the client when asked to and stores the
// script. Nothing is written when validation or the slug check fails.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (ComposeOutput, error) {
	c.transition(StateValidating)
	out, err := c.compose(ctx, in)
	if err != nil {
		c.transition(StateIdle)
		return ComposeOutput{State: StateIdle}, err
	}
	return out, nil
}

func (c *Composer) compose(ctx context.Context, in ComposeInput) (ComposeOutput, error) {
	script := strings.TrimSpace(in.Script)
	if script == "" {
		return ComposeOutput{}, newError(ErrorInvalidInput, ReasonEmptyScript, nil)
	}

	var client domain.Client
	if in.NewClient {
		fields := newClientFields{
			Name:    strings.TrimSpace(in.Name),
			Email:   strings.TrimSpace(in.Email),
			Phone:   strings.TrimSpace(in.Phone),
			Company: strings.TrimSpace(in.Company),
		}
		if fields.Name == "" {
			return ComposeOutput{}, newError(ErrorInvalidInput, ReasonEmptyName, nil)
		}
		fields.Slug = slug.Derive(in.Slug)
		if strings.TrimSpace(in.Slug) == "" {
			fields.Slug = slug.Derive(fields.Name)
		}
		if fields.Slug == "" {
			return ComposeOutput{}, newError(ErrorInvalidInput, ReasonEmptySlug, nil)
		}
		if err := validateStruct(fields); err != nil {
			return ComposeOutput{}, err
		}
		if slug.IsReserved(fields.Slug, c.reserved...) {
			return ComposeOutput{}, newError(ErrorInvalidInput, ReasonSlugReserved, nil)
		}
		client = domain.Client{
			Name:    fields.Name,
			Slug:    fields.Slug,
			Email:   fields.Email,
			Phone:   fields.Phone,
			Company: fields.Company,
		}
	} else {
		id := strings.TrimSpace(in.ClientID)
		if id == "" {
			return ComposeOutput{}, newError(ErrorInvalidInput, ReasonClientNotSelected, nil)
		}
		existing, err := c.clients.Get(ctx, id)
		if isNotFound(err) {
			return ComposeOutput{}, newError(ErrorNotFound, ReasonClientNotFound, err)
		}
		if err != nil {
			return ComposeOutput{}, storeError(err)
		}
		client = existing
	}
	if err := validateStruct(in); err != nil {
		return ComposeOutput{}, err
	}

	var out ComposeOutput
	if in.NewClient {
		_, err := c.clients.GetBySlug(ctx, client.Slug)
		if err == nil {
			return ComposeOutput{}, newError(ErrorConflict, ReasonSlugTaken, nil)
		}
		if !isNotFound(err) {
			return ComposeOutput{}, storeError(err)
		}

		c.transition(StateCreatingClient)
		id, err := c.clients.Create(ctx, client)
		if err != nil {
			return ComposeOutput{}, storeError(err)
		}
		client.ID = id
		out.Domain, out.DomainError = c.registerDomain(ctx, client.Slug)
	}

	c.transition(StateCreatingScript)
	scriptID, err := c.scripts.Create(ctx, domain.ChatScript{
		ClientID:    client.ID,
		ClientName:  client.Name,
		ClientSlug:  client.Slug,
		Script:      in.Script,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return ComposeOutput{}, storeError(err)
	}

	c.transition(StateLinkGenerated)
	out.State = StateLinkGenerated
	out.ClientID = client.ID
	out.ScriptID = scriptID
	out.Slug = client.Slug
	out.Link = c.links.Client(client.Slug)
	out.PreviewLink = c.links.Preview(scriptID)
	return out, nil
}

func (c *Composer) registerDomain(ctx context.Context, clientSlug string) (string, string) {
	if c.domains == nil {
		return "", ""
	}
	name, err := c.domains.AddDomain(ctx, clientSlug)
	if err != nil {
		c.logger.Warn("domain registration failed", "slug", clientSlug, "err", err)
		return "", err.Error()
	}
	return name, ""
}

func (c *Composer) transition(state string) {
	c.logger.Debug("composer state", "state", state)
}
