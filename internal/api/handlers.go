package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lumora-labs/chat-assistant/internal/auth"
	"github.com/lumora-labs/chat-assistant/internal/core"
	"github.com/lumora-labs/chat-assistant/internal/store"
)

type APIHandler struct {
	dbStore       *store.SQLiteStore
	chatService   *core.ChatService
	uploadService *core.UploadService
}

func NewAPIHandler(db *store.SQLiteStore, cs *core.ChatService, us *core.UploadService) *APIHandler {
	return &APIHandler{
		dbStore:       db,
		chatService:   cs,
		uploadService: us,
	}
}

// SessionAuthMiddleware gates everything behind the session cookie. Browser
// page requests are redirected to the login form; API requests get 401.
func (h *APIHandler) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err != nil {
			h.rejectUnauthenticated(w, r)
			return
		}

		userID, err := auth.ValidateSessionToken(cookie.Value)
		if err != nil {
			h.rejectUnauthenticated(w, r)
			return
		}

		user, err := h.dbStore.GetUserByID(userID)
		if err != nil {
			log.Printf("Error loading user %d in auth middleware: %v", userID, err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			h.rejectUnauthenticated(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) rejectUnauthenticated(w http.ResponseWriter, r *http.Request) {
	if isBrowserRequest(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
}

func isBrowserRequest(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Credential endpoints

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decodeCredentials accepts either a JSON body or an HTML form post.
func decodeCredentials(r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Email = r.PostFormValue("email")
	req.Password = r.PostFormValue("password")
	return req, nil
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username, email and password are required"})
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process password"})
		return
	}

	user, err := h.dbStore.CreateUser(req.Username, req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username or email already taken"})
			return
		}
		log.Printf("Error creating user %s: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create user"})
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}

	user, err := h.dbStore.GetUserByUsername(req.Username)
	if err != nil {
		// A store failure is not an auth failure.
		log.Printf("Error getting user %s: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process login"})
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}

	token, err := auth.GenerateSessionToken(user.ID)
	if err != nil {
		log.Printf("Error generating session token for user %s: %v", req.Username, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to establish session"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Chat endpoints

type chatRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	_, botMsg, err := h.chatService.Handle(r.Context(), userID, req.Message)
	if err != nil {
		if errors.Is(err, core.ErrEmptyMessage) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Message is required"})
			return
		}
		log.Printf("Error handling chat message for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process message"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"response": botMsg.Content})
}

func (h *APIHandler) ResetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	if err := h.chatService.Reset(r.Context(), userID); err != nil {
		log.Printf("Error resetting conversation for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to reset conversation"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation reset successfully"})
}

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	messages, err := h.chatService.History(r.Context(), userID)
	if err != nil {
		log.Printf("Error loading history for user %d: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load history"})
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type feedbackRequest struct {
	MessageID string `json:"message_id"`
	IsLike    bool   `json:"is_like"`
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error"})
		return
	}

	err := h.chatService.Feedback(r.Context(), userID, req.MessageID, req.IsLike)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error"})
			return
		}
		log.Printf("Error setting feedback on message %s by user %d: %v", req.MessageID, userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// Upload endpoints

const maxUploadBytes = 32 << 20 // 32 MiB

func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file part"})
		return
	}
	defer file.Close()

	_, fileURL, err := h.uploadService.Accept(r.Context(), userID, header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNoFilename):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No selected file"})
		case errors.Is(err, core.ErrBadExtension):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "File type not allowed"})
		case errors.Is(err, core.ErrIndexing):
			// The file is stored and visible in history; only retrieval over
			// its content is in doubt.
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error":    "File stored but not yet indexed for retrieval",
				"file_url": fileURL,
			})
		default:
			log.Printf("Error accepting upload for user %d: %v", userID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to store file"})
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "File uploaded successfully",
		"file_url": fileURL,
	})
}

func (h *APIHandler) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	path, err := h.uploadService.Resolve(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		log.Printf("Error resolving upload %q: %v", name, err)
		http.Error(w, "Failed to read file", http.StatusInternalServerError)
		return
	}
	http.ServeFile(w, r, path)
}
