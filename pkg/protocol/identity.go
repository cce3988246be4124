package protocol

import (
	"context"
	"errors"
	"slices"
)

// ErrUserNotFound is returned by IdentityStore for unknown user ids.
var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (u *User) HasRole(role string) bool {
	return role != "" && slices.Contains(u.Roles, role)
}

// IdentityStore resolves users. The engine only uses it for the admin bypass.
type IdentityStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)
}
