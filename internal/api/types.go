package api

import (
	"encoding/json"
	"time"
)

// User is the denormalized user snapshot carried inside a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is the credential material plus user snapshot returned by the auth
// endpoints.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// envelope is the discriminated response shape used by non-auth endpoints:
// {success, data} on success, {success:false, error} on failure.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// authResponse is the shape of the sign-in/sign-up/get-session endpoints.
type authResponse struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Identity is the /api/auth/me payload: the backend's authoritative role
// record. Role is null while the account has not chosen one.
type Identity struct {
	Role       string
	ReviewerID string
}

// Project is a project listed on the marketplace.
type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FileURL     string    `json:"fileUrl"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Application is a reviewer's application to review a project.
type Application struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	ReviewerID string    `json:"reviewerId"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Feedback is a submitted review, optionally rated by the owner.
type Feedback struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	ReviewerID string    `json:"reviewerId"`
	Body       string    `json:"body"`
	Rating     int       `json:"rating"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Notification is a user-facing event with a read marker.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewerProfile carries the reviewer's accumulated experience points.
type ReviewerProfile struct {
	ReviewerID string `json:"reviewerId"`
	XP         int    `json:"xp"`
}
