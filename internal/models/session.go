package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses
const (
	SessionStatusActive   = "active"
	SessionStatusInactive = "inactive"
	SessionStatusRevoked  = "revoked"
)

// Session is a stored credential bundle for one third-party account. The
// credential fields are opaque here and never leave the process except toward
// the execution backend.
type Session struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Phone         string    `json:"phone"`
	SessionString string    `json:"-"`
	APIID         int       `json:"-"`
	APIHash       string    `json:"-"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

func (s *Session) HasCredentials() bool {
	return s.SessionString != "" && s.APIID != 0 && s.APIHash != ""
}
