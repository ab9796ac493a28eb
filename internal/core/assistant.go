package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lumora-labs/chat-assistant/internal/store"
	"github.com/sashabaranov/go-openai"
)

const (
	assistantInstructions = "You are a helpful assistant. When documents have been uploaded to this " +
		"conversation, use them to ground your answers and say so when they do not cover the question."

	runPollInterval = 500 * time.Millisecond
	runPollMax      = 3 * time.Second
	runPollBudget   = 90 * time.Second

	indexPollInterval = 1 * time.Second
	indexPollMax      = 5 * time.Second
	indexPollBudget   = 120 * time.Second
)

// conversationHandle is the provider-side session for one user: an opaque
// thread, the assistant bound to it, and the vector store its file_search
// tool reads from.
type conversationHandle struct {
	threadID      string
	assistantID   string
	vectorStoreID string
}

// AssistantService keeps one provider-side conversation per user. Handles are
// created lazily from persisted history and torn down on reset; they are
// never shared across users.
type AssistantService struct {
	client  *openai.Client
	dbStore *store.SQLiteStore
	model   string

	mu      sync.Mutex
	handles map[int64]*conversationHandle
}

func NewAssistantService(client *openai.Client, db *store.SQLiteStore, model string) *AssistantService {
	return &AssistantService{
		client:  client,
		dbStore: db,
		model:   model,
		handles: make(map[int64]*conversationHandle),
	}
}

// Initialize replaces the user's handle with a fresh one and replays the
// given history into the new thread so the model keeps full context.
func (s *AssistantService) Initialize(ctx context.Context, userID int64, history []Turn) error {
	handle, err := s.createHandle(ctx, userID, history)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.handles[userID]
	s.handles[userID] = handle
	s.mu.Unlock()

	if old != nil {
		s.teardownHandle(ctx, old)
	}
	return nil
}

func (s *AssistantService) createHandle(ctx context.Context, userID int64, history []Turn) (*conversationHandle, error) {
	vectorStore, err := s.client.CreateVectorStore(ctx, openai.VectorStoreRequest{
		Name: fmt.Sprintf("chat-user-%d", userID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	name := fmt.Sprintf("chat-assistant-user-%d", userID)
	instructions := assistantInstructions
	assistant, err := s.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        s.model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{
				VectorStoreIDs: []string{vectorStore.ID},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}

	var messages []openai.ThreadMessage
	for _, turn := range history {
		role := openai.ThreadMessageRoleUser
		if turn.Role == RoleAssistant {
			role = openai.ThreadMessageRoleAssistant
		}
		messages = append(messages, openai.ThreadMessage{
			Role:    role,
			Content: turn.Content,
		})
	}

	thread, err := s.client.CreateThread(ctx, openai.ThreadRequest{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	return &conversationHandle{
		threadID:      thread.ID,
		assistantID:   assistant.ID,
		vectorStoreID: vectorStore.ID,
	}, nil
}

// ensureHandle returns the user's handle, building one from the persisted
// conversation when none is active (first message, or first use after a
// restart).
func (s *AssistantService) ensureHandle(ctx context.Context, userID int64) (*conversationHandle, error) {
	s.mu.Lock()
	handle := s.handles[userID]
	s.mu.Unlock()
	if handle != nil {
		return handle, nil
	}

	rows, err := s.dbStore.GetMessagesByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for user %d: %w", userID, err)
	}
	history := make([]Turn, 0, len(rows))
	for _, row := range rows {
		role := RoleAssistant
		if row.IsUser {
			role = RoleUser
		}
		history = append(history, Turn{Role: role, Content: row.Content})
	}

	if err := s.Initialize(ctx, userID, history); err != nil {
		return nil, err
	}

	s.mu.Lock()
	handle = s.handles[userID]
	s.mu.Unlock()
	return handle, nil
}

// Send appends the message to the user's thread, starts a run and waits for
// it to complete, then returns the newest assistant-authored message.
func (s *AssistantService) Send(ctx context.Context, userID int64, text string) (string, error) {
	handle, err := s.ensureHandle(ctx, userID)
	if err != nil {
		return "", err
	}

	_, err = s.client.CreateMessage(ctx, handle.threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to append message to thread: %w", err)
	}

	run, err := s.client.CreateRun(ctx, handle.threadID, openai.RunRequest{
		AssistantID: handle.assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.waitForRun(ctx, handle.threadID, run.ID); err != nil {
		return "", err
	}

	return s.latestAssistantReply(ctx, handle.threadID)
}

func (s *AssistantService) waitForRun(ctx context.Context, threadID, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, runPollBudget)
	defer cancel()

	return Poll(ctx, runPollInterval, runPollMax, func(ctx context.Context) (bool, error) {
		run, err := s.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return false, fmt.Errorf("failed to retrieve run %s: %w", runID, err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return true, nil
		case openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusCancelled, openai.RunStatusIncomplete:
			return false, fmt.Errorf("run %s ended with status %s", runID, run.Status)
		case openai.RunStatusRequiresAction:
			return false, fmt.Errorf("run %s requires a tool action, which is not supported", runID)
		default:
			// queued, in_progress, cancelling: keep waiting.
			return false, nil
		}
	})
}

func (s *AssistantService) latestAssistantReply(ctx context.Context, threadID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := s.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list thread messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text != nil && content.Text.Value != "" {
				return content.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("run completed but no assistant reply was found in thread %s", threadID)
}

// Reset drops the user's conversation handle. Provider-side cleanup is best
// effort: a fresh handle is built on the next message either way.
func (s *AssistantService) Reset(ctx context.Context, userID int64) error {
	s.mu.Lock()
	handle := s.handles[userID]
	delete(s.handles, userID)
	s.mu.Unlock()

	if handle != nil {
		s.teardownHandle(ctx, handle)
	}
	return nil
}

func (s *AssistantService) teardownHandle(ctx context.Context, handle *conversationHandle) {
	if _, err := s.client.DeleteThread(ctx, handle.threadID); err != nil {
		log.Printf("Failed to delete thread %s: %v", handle.threadID, err)
	}
	if _, err := s.client.DeleteAssistant(ctx, handle.assistantID); err != nil {
		log.Printf("Failed to delete assistant %s: %v", handle.assistantID, err)
	}
	if _, err := s.client.DeleteVectorStore(ctx, handle.vectorStoreID); err != nil {
		log.Printf("Failed to delete vector store %s: %v", handle.vectorStoreID, err)
	}
}

// IndexDocument uploads a stored file to the provider and attaches it to the
// conversation's vector store, waiting until indexing reaches a terminal
// state so the caller knows whether the document is searchable.
func (s *AssistantService) IndexDocument(ctx context.Context, userID int64, filePath string) error {
	handle, err := s.ensureHandle(ctx, userID)
	if err != nil {
		return err
	}

	file, err := s.client.CreateFile(ctx, openai.FileRequest{
		FileName: filePath,
		FilePath: filePath,
		Purpose:  "assistants",
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to provider: %w", err)
	}

	if _, err := s.client.CreateVectorStoreFile(ctx, handle.vectorStoreID, openai.VectorStoreFileRequest{
		FileID: file.ID,
	}); err != nil {
		return fmt.Errorf("failed to attach file to vector store: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, indexPollBudget)
	defer cancel()

	return Poll(ctx, indexPollInterval, indexPollMax, func(ctx context.Context) (bool, error) {
		vsFile, err := s.client.RetrieveVectorStoreFile(ctx, handle.vectorStoreID, file.ID)
		if err != nil {
			return false, fmt.Errorf("failed to retrieve vector store file: %w", err)
		}
		switch vsFile.Status {
		case "completed":
			return true, nil
		case "failed", "cancelled":
			return false, fmt.Errorf("indexing of file %s ended with status %s", file.ID, vsFile.Status)
		default:
			return false, nil
		}
	})
}
