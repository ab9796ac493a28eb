package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/lumora-labs/chat-assistant/internal/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin browser clients only; the session cookie already gates access.
		return r.Header.Get("Origin") == "" || r.Host == hostOf(r.Header.Get("Origin"))
	},
}

func hostOf(origin string) string {
	for i := 0; i < len(origin); i++ {
		if origin[i] == '/' && i+1 < len(origin) && origin[i+1] == '/' {
			return origin[i+2:]
		}
	}
	return origin
}

type wsClientEvent struct {
	Type    string `json:"type"` // "send_message" or "reset_conversation"
	Message string `json:"message,omitempty"`
}

type wsServerEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	IsUser    bool   `json:"is_user"`
	MessageID string `json:"message_id,omitempty"`
}

// WebSocketHandler is the push-channel variant of the chat surface. Replies
// are written only to the connection that sent the message; there is no
// cross-user broadcast.
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for user %d: %v", userID, err)
		return
	}
	defer conn.Close()

	for {
		var event wsClientEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error for user %d: %v", userID, err)
			}
			return
		}

		switch event.Type {
		case "send_message":
			_, botMsg, err := h.chatService.Handle(r.Context(), userID, event.Message)
			if err != nil {
				if errors.Is(err, core.ErrEmptyMessage) {
					h.writeWSEvent(conn, userID, wsServerEvent{Type: "error", Message: "Message is required"})
				} else {
					log.Printf("WebSocket chat failed for user %d: %v", userID, err)
					h.writeWSEvent(conn, userID, wsServerEvent{Type: "error", Message: "Failed to process message"})
				}
				continue
			}
			h.writeWSEvent(conn, userID, wsServerEvent{
				Type:      "message",
				Message:   botMsg.Content,
				IsUser:    false,
				MessageID: botMsg.ID,
			})

		case "reset_conversation":
			if err := h.chatService.Reset(r.Context(), userID); err != nil {
				log.Printf("WebSocket reset failed for user %d: %v", userID, err)
				h.writeWSEvent(conn, userID, wsServerEvent{Type: "error", Message: "Failed to reset conversation"})
				continue
			}
			h.writeWSEvent(conn, userID, wsServerEvent{Type: "reset", Message: "Conversation reset successfully"})

		default:
			h.writeWSEvent(conn, userID, wsServerEvent{Type: "error", Message: "Unknown event type"})
		}
	}
}

func (h *APIHandler) writeWSEvent(conn *websocket.Conn, userID int64, event wsServerEvent) {
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("WebSocket write failed for user %d: %v", userID, err)
	}
}
