package domain

import "time"

// ChatScript is a pasted third-party widget embed. Script is stored verbatim
// and is never sanitized.
type ChatScript struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId"`
	ClientName  string    `json:"clientName"`
	ClientSlug  string    `json:"clientSlug"`
	Script      string    `json:"script"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ScriptPatch carries the editable script fields. Nil fields are left untouched.
type ScriptPatch struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	Script      *string `json:"script,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// LegacyScript is the record shape of the earlier local layout, a single
// object keyed by script id.
type LegacyScript struct {
	Script    string `json:"script"`
	Title     string `json:"title,omitempty"`
	CreatedAt any    `json:"createdAt,omitempty"`
}
