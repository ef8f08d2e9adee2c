package domain

import "time"

// ConversationEntry is an archived widget conversation of a preview page.
type ConversationEntry struct {
	ID             string    `json:"id"`
	ScriptID       string    `json:"scriptId"`
	ConversationID string    `json:"conversationId"`
	ArchivedAt     time.Time `json:"archivedAt"`
}
