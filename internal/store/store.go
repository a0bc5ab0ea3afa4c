//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store declares the persistence contracts of the chat service.
// Backends live in the postgres and embedded subpackages.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/johndosdos/skillxchange/internal/model"
)

// Messages is the persistent message store. It is append-only apart from
// the read flag, which only ever goes from false to true.
type Messages interface {
	// Append stores a new message and returns it with its id and timestamp.
	Append(ctx context.Context, from, to, content string) (model.Message, error)
	// ListBetween returns the conversation between a and b in both
	// directions, oldest first.
	ListBetween(ctx context.Context, userA, userB string) ([]model.Message, error)
	// MarkRead flags every unread message from sender to recipient as read
	// and returns how many changed.
	MarkRead(ctx context.Context, recipient, sender string) (int64, error)
	// UnreadCountsByRecipient maps canonical sender ids to their unread count.
	UnreadCountsByRecipient(ctx context.Context, recipient string) (map[string]int, error)
	// Counterparts returns the distinct canonical ids user has exchanged
	// messages with.
	Counterparts(ctx context.Context, userID string) ([]string, error)
}

// Users is the user directory.
type Users interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error)
	ListActiveUsers(ctx context.Context) ([]model.User, error)
}

// Store is a complete backend.
type Store interface {
	Messages
	Users
	Close() error
}
