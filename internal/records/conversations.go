package records

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"widget-preview/internal/domain"
	"widget-preview/internal/storage"
)

// ConversationService keeps the archived conversations of preview pages.
type ConversationService struct {
	store storage.Store
	opts  options
}

func NewConversationService(store storage.Store, opts ...Option) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("records: store must not be nil")
	}
	return &ConversationService{store: store, opts: buildOptions(opts)}, nil
}

// Archive records conversationID as a finished conversation of scriptID.
func (s *ConversationService) Archive(ctx context.Context, scriptID, conversationID string) (domain.ConversationEntry, error) {
	scriptID = strings.TrimSpace(scriptID)
	conversationID = strings.TrimSpace(conversationID)
	if scriptID == "" || conversationID == "" {
		return domain.ConversationEntry{}, errors.New("records: Archive: script id and conversation id are required")
	}
	at := s.opts.now().UTC()
	id, err := s.store.Create(ctx, storage.TableConversations, storage.Row{
		"scriptId":       scriptID,
		"conversationId": conversationID,
		"archivedAt":     formatTime(at),
	})
	if err != nil {
		return domain.ConversationEntry{}, fmt.Errorf("records: archive conversation: %w", err)
	}
	return domain.ConversationEntry{ID: id, ScriptID: scriptID, ConversationID: conversationID, ArchivedAt: at}, nil
}

// History returns the archived conversations of scriptID, newest first.
func (s *ConversationService) History(ctx context.Context, scriptID string) ([]domain.ConversationEntry, error) {
	rows, err := s.store.List(ctx, storage.TableConversations)
	if err != nil {
		return nil, fmt.Errorf("records: list conversations: %w", err)
	}
	out := make([]domain.ConversationEntry, 0)
	for _, r := range rows {
		e := domain.ConversationEntry{
			ID:             stringValue(r[storage.FieldID]),
			ScriptID:       stringValue(r["scriptId"]),
			ConversationID: r.String("conversationId"),
			ArchivedAt:     parseTime(r["archivedAt"]),
		}
		if e.ScriptID == scriptID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.ConversationEntry) int {
		return b.ArchivedAt.Compare(a.ArchivedAt)
	})
	return out, nil
}

// Delete removes one history entry.
func (s *ConversationService) Delete(ctx context.Context, entryID string) error {
	if err := s.store.Delete(ctx, storage.TableConversations, entryID); err != nil {
		return fmt.Errorf("records: delete conversation %q: %w", entryID, err)
	}
	return nil
}
