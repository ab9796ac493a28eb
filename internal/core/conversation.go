package core

import "context"

// Turn is one (role, content) pair of a conversation, oldest first when in a
// slice. Role is "user" or "assistant".
type Turn struct {
	Role    string
	Content string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversationalist is the conversation session manager: it owns the mapping
// between a user and whatever context the model needs to answer with history.
//
// Implementations: AssistantService (provider-side thread per user) and
// CompletionService (in-process window of recent turns).
type Conversationalist interface {
	// Initialize establishes a fresh conversation context for the user and
	// replays history into it, oldest turn first. A nil or empty history
	// yields an empty conversation, not an error. Any previous context for
	// the user is replaced.
	Initialize(ctx context.Context, userID int64, history []Turn) error

	// Send delivers one user turn and returns the assistant's reply. The
	// context is created on first use, rebuilt from persisted history.
	Send(ctx context.Context, userID int64, text string) (string, error)

	// Reset discards the user's conversation context. Safe to call when no
	// context is active.
	Reset(ctx context.Context, userID int64) error
}

// DocumentIndexer submits a stored file to the provider's document index so
// later answers can cite it. Only the assistant-backed session manager
// provides one.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, userID int64, filePath string) error
}
