package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Organization struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	CreatedAt   time.Time
}

type OrganizationMember struct {
	OrganizationID string
	UserID         string
	Role           string
	CreatedAt      time.Time
	// Joined for API responses
	UserEmail string
	UserName  string
}

type OrganizationInvite struct {
	ID             string
	OrganizationID string
	Email          string
	Token          string
	Status         string
	InvitedBy      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

type Board struct {
	ID             string
	Name           string
	Description    string
	OrganizationID string
	CreatedBy      string
	CreatedAt      time.Time
}

// List is a positioned column on a board. Position is a dense zero-based
// index unique within the board; it is only ever rewritten by a reorder.
type List struct {
	ID       string
	Title    string
	BoardID  string
	Position int
}

// Card belongs to exactly one list. Position is dense and zero-based within
// the list; ListID changes only when a reorder crosses lists.
type Card struct {
	ID          string
	Title       string
	Description string
	ListID      string
	BoardID     string
	Position    int
	IsComplete  bool
	UserID      string
}

// CardActivity is one append-only entry in a card's audit trail. Rows are
// never updated or deleted.
type CardActivity struct {
	ID          string
	CardID      string
	ActionType  string
	Description string
	Details     string
	CreatedBy   string
	CreatedAt   time.Time
}
