package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Conversation model related methods.
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	// DeleteConversation removes the conversation and its messages in one
	// transaction, messages first.
	DeleteConversation(ctx context.Context, delete *DeleteConversation) error

	// Message model related methods.
	//
	// CreateMessage inserts the message and bumps the parent conversation's
	// last_message_ts and total_messages as one logical unit. It fails with
	// ErrConversationNotFound if the parent does not exist.
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	DeleteMessage(ctx context.Context, delete *DeleteMessage) error
}
