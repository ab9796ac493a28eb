package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/lumora-labs/chat-assistant/internal/store"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider mimics the handful of provider endpoints the assistant
// service talks to: vector stores, assistants, threads, messages and runs.
type fakeProvider struct {
	runPolls       atomic.Int32
	indexPolls     atomic.Int32
	deletes        atomic.Int32
	threadMessages []map[string]string
	failRun        bool
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/vector_stores", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "vs_test"})
	})
	mux.HandleFunc("POST /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "asst_test"})
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []map[string]string `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		f.threadMessages = req.Messages
		writeProviderJSON(w, map[string]any{"id": "thread_test"})
	})
	mux.HandleFunc("POST /v1/threads/thread_test/messages", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "msg_user"})
	})
	mux.HandleFunc("POST /v1/threads/thread_test/runs", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "run_test", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/thread_test/runs/run_test", func(w http.ResponseWriter, r *http.Request) {
		n := f.runPolls.Add(1)
		status := "in_progress"
		if n >= 2 {
			status = "completed"
			if f.failRun {
				status = "failed"
			}
		}
		writeProviderJSON(w, map[string]any{"id": "run_test", "status": status})
	})
	mux.HandleFunc("GET /v1/threads/thread_test/messages", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{
			"data": []map[string]any{
				{
					"id":   "msg_reply",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "text", "text": map[string]any{"value": "Hello back"}},
					},
				},
			},
		})
	})
	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "file_test"})
	})
	mux.HandleFunc("POST /v1/vector_stores/vs_test/files", func(w http.ResponseWriter, r *http.Request) {
		writeProviderJSON(w, map[string]any{"id": "file_test", "status": "in_progress"})
	})
	mux.HandleFunc("GET /v1/vector_stores/vs_test/files/file_test", func(w http.ResponseWriter, r *http.Request) {
		status := "in_progress"
		if f.indexPolls.Add(1) >= 2 {
			status = "completed"
		}
		writeProviderJSON(w, map[string]any{"id": "file_test", "status": status})
	})

	deleted := func(w http.ResponseWriter, r *http.Request) {
		f.deletes.Add(1)
		writeProviderJSON(w, map[string]any{"deleted": true})
	}
	mux.HandleFunc("DELETE /v1/threads/thread_test", deleted)
	mux.HandleFunc("DELETE /v1/assistants/asst_test", deleted)
	mux.HandleFunc("DELETE /v1/vector_stores/vs_test", deleted)

	return mux
}

func writeProviderJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func newAssistantTestService(t *testing.T, provider *fakeProvider) (*AssistantService, *store.SQLiteStore) {
	t.Helper()
	server := httptest.NewServer(provider.handler())
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	client := openai.NewClientWithConfig(cfg)

	dbStore := newCoreTestStore(t)
	return NewAssistantService(client, dbStore, "gpt-4o-mini"), dbStore
}

func TestAssistantSendReplaysHistoryAndPollsRun(t *testing.T) {
	provider := &fakeProvider{}
	svc, dbStore := newAssistantTestService(t, provider)
	userID := createTestUser(t, dbStore, "alice")

	// Two persisted turns must be replayed into the new thread.
	for _, row := range []store.Message{
		{UserID: userID, Content: "earlier question", IsUser: true},
		{UserID: userID, Content: "earlier answer", IsUser: false},
	} {
		msg := row
		require.NoError(t, dbStore.CreateMessage(&msg))
	}

	reply, err := svc.Send(context.Background(), userID, "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello back", reply)

	require.Len(t, provider.threadMessages, 2)
	assert.Equal(t, "user", provider.threadMessages[0]["role"])
	assert.Equal(t, "earlier question", provider.threadMessages[0]["content"])
	assert.Equal(t, "assistant", provider.threadMessages[1]["role"])
	assert.Equal(t, "earlier answer", provider.threadMessages[1]["content"])

	assert.GreaterOrEqual(t, provider.runPolls.Load(), int32(2), "run must be polled until completed")
}

func TestAssistantSendSurfacesFailedRun(t *testing.T) {
	provider := &fakeProvider{failRun: true}
	svc, dbStore := newAssistantTestService(t, provider)
	userID := createTestUser(t, dbStore, "alice")

	_, err := svc.Send(context.Background(), userID, "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestAssistantResetTearsDownHandle(t *testing.T) {
	provider := &fakeProvider{}
	svc, dbStore := newAssistantTestService(t, provider)
	userID := createTestUser(t, dbStore, "alice")

	_, err := svc.Send(context.Background(), userID, "Hello")
	require.NoError(t, err)

	require.NoError(t, svc.Reset(context.Background(), userID))
	assert.Equal(t, int32(3), provider.deletes.Load(), "thread, assistant and vector store are deleted")

	// Resetting again with no active handle is a no-op.
	require.NoError(t, svc.Reset(context.Background(), userID))
	assert.Equal(t, int32(3), provider.deletes.Load())
}

func TestAssistantIndexDocumentWaitsForCompletion(t *testing.T) {
	provider := &fakeProvider{}
	svc, dbStore := newAssistantTestService(t, provider)
	userID := createTestUser(t, dbStore, "alice")

	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	require.NoError(t, svc.IndexDocument(context.Background(), userID, path))
	assert.GreaterOrEqual(t, provider.indexPolls.Load(), int32(2), "indexing must be polled until completed")
}

func TestAssistantInitializeReplacesHandle(t *testing.T) {
	provider := &fakeProvider{}
	svc, dbStore := newAssistantTestService(t, provider)
	userID := createTestUser(t, dbStore, "alice")

	require.NoError(t, svc.Initialize(context.Background(), userID, nil))
	require.NoError(t, svc.Initialize(context.Background(), userID, []Turn{
		{Role: RoleUser, Content: fmt.Sprintf("turn for user %d", userID)},
	}))

	// Replacing the handle tears the old one down.
	assert.Equal(t, int32(3), provider.deletes.Load())
	require.Len(t, provider.threadMessages, 1)
}
