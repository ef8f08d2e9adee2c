package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"widget-preview/internal/domain"
	"widget-preview/internal/probe"
	"widget-preview/internal/widget"
)

// How a preview reference was resolved.
const (
	ResolvedByID   = "id"
	ResolvedBySlug = "slug"
)

// Previewer resolves preview references and keeps the conversation history
// of preview pages.
type Previewer struct {
	scripts       ScriptStore
	clients       ClientStore
	conversations ConversationStore
	links         Links
	policy        widget.Policy
	prober        Prober
	logger        *slog.Logger
}

type PreviewerOption func(*Previewer)

func WithPolicy(p widget.Policy) PreviewerOption {
	return func(v *Previewer) {
		v.policy = p.Normalized()
	}
}

// WithProber enables headless verification of preview frames.
func WithProber(p Prober) PreviewerOption {
	return func(v *Previewer) {
		v.prober = p
	}
}

func WithPreviewerLogger(logger *slog.Logger) PreviewerOption {
	return func(v *Previewer) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Preview is a resolved script ready to be rendered.
type Preview struct {
	Script     domain.ChatScript
	Embed      widget.Embed
	ResolvedBy string
}

// NewConversationOutput is the result of starting a fresh conversation.
type NewConversationOutput struct {
	ConversationID string                    `json:"conversationId"`
	Archived       *domain.ConversationEntry `json:"archived,omitempty"`
}

func NewPreviewer(scripts ScriptStore, clients ClientStore, conversations ConversationStore, links Links, opts ...PreviewerOption) (*Previewer, error) {
	if scripts == nil {
		return nil, errors.New("usecase: script store must not be nil")
	}
	if clients == nil {
		return nil, errors.New("usecase: client store must not be nil")
	}
	if conversations == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	v := &Previewer{
		scripts:       scripts,
		clients:       clients,
		conversations: conversations,
		links:         links,
		policy:        widget.DefaultPolicy(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

func (v *Previewer) Policy() widget.Policy {
	return v.policy
}

func (v *Previewer) ProbeEnabled() bool {
	return v.prober != nil
}

// Resolve tries ref as a script id (legacy layout included) and then as a
// client slug, picking that client's newest active script. The stored script
// must contain a usable <script> tag.
func (v *Previewer) Resolve(ctx context.Context, ref string) (Preview, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Preview{}, newError(ErrorNotFound, ReasonNotFound, nil)
	}

	sc, by, err := v.lookup(ctx, ref)
	if err != nil {
		return Preview{}, err
	}
	emb, err := widget.Extract(sc.Script)
	if err != nil {
		v.logger.Warn("stored script has no usable script tag", "script_id", sc.ID, "err", err)
		return Preview{}, newError(ErrorInvalidInput, ReasonMalformedScript, err)
	}
	return Preview{Script: sc, Embed: emb, ResolvedBy: by}, nil
}

func (v *Previewer) lookup(ctx context.Context, ref string) (domain.ChatScript, string, error) {
	sc, err := v.scripts.GetByID(ctx, ref)
	if err == nil {
		return sc, ResolvedByID, nil
	}
	if !isNotFound(err) {
		return domain.ChatScript{}, "", storeError(err)
	}

	sc, err = v.scripts.GetBySlug(ctx, ref)
	if err == nil {
		return sc, ResolvedBySlug, nil
	}
	if !isNotFound(err) {
		return domain.ChatScript{}, "", storeError(err)
	}

	// Rows written by other tools may lack the denormalized client slug.
	client, err := v.clients.GetBySlug(ctx, ref)
	switch {
	case err == nil:
		scripts, err := v.scripts.GetByClient(ctx, client.ID)
		if err != nil {
			return domain.ChatScript{}, "", storeError(err)
		}
		for _, s := range scripts {
			if s.IsActive {
				return s, ResolvedBySlug, nil
			}
		}
	case !isNotFound(err):
		return domain.ChatScript{}, "", storeError(err)
	}

	return domain.ChatScript{}, "", v.missing(ctx)
}

// missing tells an empty store apart from an unknown reference.
func (v *Previewer) missing(ctx context.Context) error {
	all, err := v.scripts.List(ctx)
	if err != nil {
		return storeError(err)
	}
	if len(all) > 0 {
		return newError(ErrorNotFound, ReasonNotFound, nil)
	}
	legacy, err := v.scripts.Legacy()
	if err != nil {
		return storeError(err)
	}
	if len(legacy) > 0 {
		return newError(ErrorNotFound, ReasonNotFound, nil)
	}
	return newError(ErrorNotFound, ReasonEmptyStore, nil)
}

// NewConversation archives current, when given, and returns a fresh
// conversation id for the preview of scriptID.
func (v *Previewer) NewConversation(ctx context.Context, scriptID, current string) (NewConversationOutput, error) {
	if err := v.requireScript(ctx, scriptID); err != nil {
		return NewConversationOutput{}, err
	}
	out := NewConversationOutput{ConversationID: newUUID()}
	if current = strings.TrimSpace(current); current != "" {
		entry, err := v.conversations.Archive(ctx, scriptID, current)
		if err != nil {
			return NewConversationOutput{}, storeError(err)
		}
		out.Archived = &entry
	}
	v.logger.Info("conversation reset", "script_id", scriptID, "archived", out.Archived != nil)
	return out, nil
}

func (v *Previewer) History(ctx context.Context, scriptID string) ([]domain.ConversationEntry, error) {
	if err := v.requireScript(ctx, scriptID); err != nil {
		return nil, err
	}
	entries, err := v.conversations.History(ctx, scriptID)
	if err != nil {
		return nil, storeError(err)
	}
	return entries, nil
}

// DeleteConversation removes one history entry of scriptID.
func (v *Previewer) DeleteConversation(ctx context.Context, scriptID, entryID string) error {
	entries, err := v.History(ctx, scriptID)
	if err != nil {
		return err
	}
	owned := false
	for _, e := range entries {
		if e.ID == entryID {
			owned = true
			break
		}
	}
	if !owned {
		return newError(ErrorNotFound, ReasonEntryNotFound, nil)
	}
	err = v.conversations.Delete(ctx, entryID)
	if isNotFound(err) {
		return newError(ErrorNotFound, ReasonEntryNotFound, err)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}

// Probe loads the preview frame of scriptID in a headless browser.
func (v *Previewer) Probe(ctx context.Context, scriptID string) (probe.Report, error) {
	if v.prober == nil {
		return probe.Report{}, newError(ErrorNotFound, ReasonNotFound, errors.New("probe disabled"))
	}
	p, err := v.Resolve(ctx, scriptID)
	if err != nil {
		return probe.Report{}, err
	}
	report, err := v.prober.Probe(ctx, v.links.Frame(p.Script.ID), v.policy)
	if err != nil {
		return probe.Report{}, newError(ErrorUpstream, ReasonProbeFailed, err)
	}
	return report, nil
}

func (v *Previewer) requireScript(ctx context.Context, scriptID string) error {
	_, err := v.scripts.GetByID(ctx, strings.TrimSpace(scriptID))
	if isNotFound(err) {
		return newError(ErrorNotFound, ReasonScriptNotFound, err)
	}
	if err != nil {
		return storeError(err)
	}
	return nil
}
