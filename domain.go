package app

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a list or item does not exist for the
	// requesting user. Rows owned by other users look exactly the same as
	// rows that never existed.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned when a username/password pair does
	// not match the user directory.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIncompleteForm is returned when a login is attempted with a missing
	// username or password, before the user directory is consulted.
	ErrIncompleteForm = errors.New("incomplete form")
	// ErrInvalidToken is returned for malformed, forged, or expired session
	// tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrEmptyName is returned when a list name or item description is empty.
	ErrEmptyName = errors.New("name must not be empty")
)

// List is a named, ordered collection of reminder items owned by one user.
type List struct {
	ID      int64
	Owner   string
	Name    string
	Ordinal int
}

// Item is a single reminder inside a list.
type Item struct {
	ID          int64
	ListID      int64
	Description string
	Completed   bool
	Ordinal     int
}

// ReminderStore represents the actions that can be taken about reminder
// lists and their items. Every operation is scoped to the owner username;
// ids belonging to another user behave as if they do not exist.
type ReminderStore interface {
	Close() error

	Lists(ctx context.Context, owner string) ([]List, error)
	GetList(ctx context.Context, owner string, id int64) (List, error)
	CreateList(ctx context.Context, owner, name string) (List, error)
	RenameList(ctx context.Context, owner string, id int64, name string) error
	DeleteList(ctx context.Context, owner string, id int64) error

	Items(ctx context.Context, owner string, listID int64) ([]Item, error)
	GetItem(ctx context.Context, owner string, id int64) (Item, error)
	CreateItem(ctx context.Context, owner string, listID int64, description string) (Item, error)
	RenameItem(ctx context.Context, owner string, id int64, description string) error
	ToggleItem(ctx context.Context, owner string, id int64) (Item, error)
	DeleteItem(ctx context.Context, owner string, id int64) error
}

// UserStore represents the actions that can be taken about users.
type UserStore interface {
	Close()
	Authenticate(username, password string) (*User, error)
	Create(user *User, password string) error
	ByUsername(username string) (*User, error)
}

// User represents a user in our system.
type User struct {
	Username     string
	PasswordHash string
}
