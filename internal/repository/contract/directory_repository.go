package contract

import (
	"context"

	"aprs-friend-alert/internal/model"
)

// DirectoryRepository persists the whole directory document at once.
// Load returns an empty document when nothing has been saved yet.
type DirectoryRepository interface {
	Load(ctx context.Context) (model.DirectoryDocument, error)
	Save(ctx context.Context, doc model.DirectoryDocument) error
}

// ConversationRepository keeps in-flight dialogs. Entries may expire, which
// callers treat as a reset to the idle state.
type ConversationRepository interface {
	Get(chatID string) (*model.Conversation, bool)
	Save(conv *model.Conversation)
	Delete(chatID string)
}
