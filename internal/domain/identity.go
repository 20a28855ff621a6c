package domain

import "github.com/google/uuid"

const RoleAdmin = "admin"

// Identity is the caller as resolved from the bearer token or the guest
// checkout session header. Either may be empty, not both.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	SessionID string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func (i Identity) Authenticated() bool {
	return i.UserID != uuid.Nil
}

func (i Identity) Anonymous() bool {
	return i.UserID == uuid.Nil && i.SessionID == ""
}

// Key identifies the caller for rate limiting.
func (i Identity) Key() string {
	if i.UserID != uuid.Nil {
		return "user:" + i.UserID.String()
	}
	return "guest:" + i.SessionID
}

func (i Identity) UserRef() *uuid.UUID {
	if i.UserID == uuid.Nil {
		return nil
	}
	id := i.UserID
	return &id
}
