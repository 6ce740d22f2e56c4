package model

import "time"

type ConversationState string

const (
	StateIdle                               ConversationState = "IDLE"
	StateAwaitingSetupKey                   ConversationState = "AWAITING_SETUP_KEY"
	StateAwaitingDisplayName                ConversationState = "AWAITING_DISPLAY_NAME"
	StateAwaitingAddressLabel               ConversationState = "AWAITING_ADDRESS_LABEL"
	StateAwaitingAddressText                ConversationState = "AWAITING_ADDRESS_TEXT"
	StateAwaitingAddressConfirmation        ConversationState = "AWAITING_ADDRESS_CONFIRMATION"
	StateAwaitingAmbiguousDestinationChoice ConversationState = "AWAITING_AMBIGUOUS_DESTINATION_CHOICE"
)

// Scratch holds the partially entered fields of a multi-step dialog.
type Scratch struct {
	SuggestedName string
	Label         string
	RawText       string
	Coordinate    *Coordinate

	// Destination choice (the waiting room): candidates found but not yet selected.
	Candidates []DestinationCandidate
	Alertees   []string
}

// Conversation is the in-memory dialog state of one chat. It is never persisted.
type Conversation struct {
	ChatID    string
	State     ConversationState
	Scratch   Scratch
	UpdatedAt time.Time
}

func NewConversation(chatID string) *Conversation {
	return &Conversation{ChatID: chatID, State: StateIdle, UpdatedAt: time.Now()}
}

func (c *Conversation) Reset() {
	c.State = StateIdle
	c.Scratch = Scratch{}
}
