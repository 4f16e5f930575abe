package models

import (
	"time"
)

// User is the principal identity attached to a connection. The snapshot is
// taken once at authentication time; account writes belong to the auth
// collaborator, this service only reads.
type User struct {
	ID                string     `json:"id"`
	FirstName         string     `json:"firstName"`
	LastName          string     `json:"lastName"`
	Email             string     `json:"email"`
	Photo             string     `json:"photo,omitempty"`
	About             string     `json:"about,omitempty"`
	PasswordChangedAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}
