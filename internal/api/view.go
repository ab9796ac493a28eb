package api

import (
	"html/template"
	"log"
	"net/http"

	"github.com/lumora-labs/chat-assistant/internal/store"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>Chat Assistant</title></head>
<body>
  <h1>Chat Assistant</h1>
  <p><a href="/logout">Log out</a></p>
  <div id="history">
  {{range .Messages}}
    <p class="{{if .IsUser}}user{{else}}assistant{{end}}">
      <strong>{{if .IsUser}}You{{else}}Assistant{{end}}:</strong> {{.Content}}
    </p>
  {{else}}
    <p><em>No messages yet. Say hello!</em></p>
  {{end}}
  </div>
  <form method="post" action="/upload" enctype="multipart/form-data">
    <input type="file" name="file">
    <button type="submit">Upload</button>
  </form>
</body>
</html>
`))

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Log in</title></head>
<body>
  <h1>Log in</h1>
  <form method="post" action="/login">
    <input name="username" placeholder="Username" required>
    <input name="password" type="password" placeholder="Password" required>
    <button type="submit">Log in</button>
  </form>
  <p>No account? <a href="/register">Register</a></p>
</body>
</html>
`))

var registerTemplate = template.Must(template.New("register").Parse(`<!DOCTYPE html>
<html>
<head><title>Register</title></head>
<body>
  <h1>Register</h1>
  <form method="post" action="/register">
    <input name="username" placeholder="Username" required>
    <input name="email" type="email" placeholder="Email" required>
    <input name="password" type="password" placeholder="Password" required>
    <button type="submit">Register</button>
  </form>
  <p>Already registered? <a href="/login">Log in</a></p>
</body>
</html>
`))

type indexData struct {
	Messages []store.Message
}

// IndexHandler renders the conversation view for the logged-in user.
func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	messages, err := h.chatService.History(r.Context(), userID)
	if err != nil {
		log.Printf("Error loading history for user %d: %v", userID, err)
		http.Error(w, "Failed to load conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, indexData{Messages: messages}); err != nil {
		log.Printf("Error rendering index: %v", err)
	}
}

func (h *APIHandler) LoginPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTemplate.Execute(w, nil); err != nil {
		log.Printf("Error rendering login page: %v", err)
	}
}

func (h *APIHandler) RegisterPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := registerTemplate.Execute(w, nil); err != nil {
		log.Printf("Error rendering register page: %v", err)
	}
}
