package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lumora-labs/chat-assistant/internal/store"
)

// degradedReply is what the user sees when the provider call fails: the chat
// request cycle itself must never break because of a bad model call.
const degradedReply = "I'm sorry, but I encountered an error while processing your request."

type ChatService struct {
	dbStore *store.SQLiteStore
	conv    Conversationalist
}

func NewChatService(db *store.SQLiteStore, conv Conversationalist) *ChatService {
	return &ChatService{
		dbStore: db,
		conv:    conv,
	}
}

// Handle processes one user turn: the inbound message is made durable before
// the provider is called, and the reply is made durable before it is
// returned. A crash mid-flow therefore leaves at most a trailing unanswered
// user message, never an orphaned reply.
func (s *ChatService) Handle(ctx context.Context, userID int64, text string) (*store.Message, *store.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyMessage
	}

	userMsg := store.Message{
		UserID:  userID,
		Content: text,
		IsUser:  true,
	}
	if err := s.dbStore.CreateMessage(&userMsg); err != nil {
		return nil, nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply, err := s.conv.Send(ctx, userID, text)
	if err != nil {
		log.Printf("Error generating reply for user %d: %v", userID, err)
		reply = degradedReply
	}

	botMsg := store.Message{
		UserID:  userID,
		Content: reply,
		IsUser:  false,
	}
	if err := s.dbStore.CreateMessage(&botMsg); err != nil {
		return nil, nil, fmt.Errorf("failed to store bot message: %w", err)
	}

	return &userMsg, &botMsg, nil
}

// Reset discards the provider-side conversation and then deletes the user's
// persisted messages in one transaction.
func (s *ChatService) Reset(ctx context.Context, userID int64) error {
	if err := s.conv.Reset(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	return s.dbStore.DeleteMessagesByUserID(userID)
}

// Feedback records a thumbs-up/down on a message owned by the user. Unknown
// ids and other users' messages report the same not-found error.
func (s *ChatService) Feedback(ctx context.Context, userID int64, messageID string, liked bool) error {
	return s.dbStore.UpdateMessageFeedback(messageID, userID, liked)
}

// History returns the user's conversation, oldest first.
func (s *ChatService) History(ctx context.Context, userID int64) ([]store.Message, error) {
	return s.dbStore.GetMessagesByUserID(userID)
}
