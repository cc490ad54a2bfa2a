package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a person known to the system. Email is kept in sync with
// whatever the identity provider last reported.
type User struct {
	UserID    uuid.UUID // UUIDv7
	Email     string    // globally unique
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExternalUserLink maps an identity provider subject to a User.
// Unique on (Provider, ExternalUserID).
type ExternalUserLink struct {
	Provider       string
	ExternalUserID string
	UserID         uuid.UUID
}
