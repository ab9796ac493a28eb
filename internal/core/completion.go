package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumora-labs/chat-assistant/internal/store"
	"github.com/sashabaranov/go-openai"
)

const (
	completionSystemPrompt = "You are a helpful assistant."

	// completionWindow bounds the model context to the most recent turns.
	completionWindow = 20
)

// completionState is one user's conversation window. Its lock is held for the
// whole of Send so concurrent messages from the same user cannot interleave
// and drop turns; different users never contend on it.
type completionState struct {
	mu     sync.Mutex
	loaded bool
	turns  []Turn
}

// CompletionService is the simpler session manager: no provider-side thread,
// just an in-process window of the last turns fed into a single synchronous
// chat completion per message.
type CompletionService struct {
	client  *openai.Client
	dbStore *store.SQLiteStore
	model   string

	mu     sync.Mutex
	states map[int64]*completionState
}

func NewCompletionService(client *openai.Client, db *store.SQLiteStore, model string) *CompletionService {
	return &CompletionService{
		client:  client,
		dbStore: db,
		model:   model,
		states:  make(map[int64]*completionState),
	}
}

func (s *CompletionService) state(userID int64) *completionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		st = &completionState{}
		s.states[userID] = st
	}
	return st
}

// Initialize replaces the user's window with the tail of the given history.
func (s *CompletionService) Initialize(ctx context.Context, userID int64, history []Turn) error {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	window := make([]Turn, len(history))
	copy(window, history)
	st.turns = trimWindow(window)
	st.loaded = true
	return nil
}

// Send appends the user turn to the window and asks the model for one reply.
// A cold window (first message, or first use after a restart) is rebuilt from
// the persisted conversation first.
func (s *CompletionService) Send(ctx context.Context, userID int64, text string) (string, error) {
	st := s.state(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.loaded {
		rows, err := s.dbStore.GetLastNMessagesByUserID(userID, completionWindow)
		if err != nil {
			return "", fmt.Errorf("failed to load history for user %d: %w", userID, err)
		}
		history := make([]Turn, 0, len(rows))
		for _, row := range rows {
			role := RoleAssistant
			if row.IsUser {
				role = RoleUser
			}
			history = append(history, Turn{Role: role, Content: row.Content})
		}
		st.turns = trimWindow(history)
		st.loaded = true
	}

	st.turns = trimWindow(append(st.turns, Turn{Role: RoleUser, Content: text}))

	messages := make([]openai.ChatCompletionMessage, 0, len(st.turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: completionSystemPrompt,
	})
	for _, turn := range st.turns {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	st.turns = trimWindow(append(st.turns, Turn{Role: RoleAssistant, Content: reply}))

	return reply, nil
}

// Reset forgets the user's window.
func (s *CompletionService) Reset(ctx context.Context, userID int64) error {
	s.mu.Lock()
	delete(s.states, userID)
	s.mu.Unlock()
	return nil
}

func trimWindow(window []Turn) []Turn {
	if len(window) > completionWindow {
		window = window[len(window)-completionWindow:]
	}
	return window
}
