package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	ID          string    `json:"message_id"` // Using UUID for external ID
	UserID      int64     `json:"-"`
	Content     string    `json:"content"`
	IsUser      bool      `json:"is_user"`
	Timestamp   time.Time `json:"timestamp"`
	Feedback    *bool     `json:"feedback"` // nil until feedback is given; true = like
	HasFeedback bool      `json:"thereIsFeedback"`
}
