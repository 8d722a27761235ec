package store

import "github.com/pkg/errors"

// DefaultConversationTitle is used until a title is derived from the first
// user message.
const DefaultConversationTitle = "New conversation"

// ErrConversationNotFound is returned when an operation targets a
// conversation that does not exist (or has been deleted).
var ErrConversationNotFound = errors.New("conversation not found")

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationStatusActive   ConversationStatus = "ACTIVE"
	ConversationStatusArchived ConversationStatus = "ARCHIVED"
	ConversationStatusDeleted  ConversationStatus = "DELETED"
)

type Conversation struct {
	ID            int32
	UID           string
	UserID        int32
	Title         string
	Status        ConversationStatus
	StartedTs     int64
	LastMessageTs int64
	TotalMessages int32
}

type FindConversation struct {
	ID     *int32
	UID    *string
	UserID *int32
	Status *ConversationStatus
	// ExcludeDeleted filters out DELETED conversations regardless of Status.
	ExcludeDeleted bool
	Limit          *int
}

type UpdateConversation struct {
	ID            int32
	Title         *string
	Status        *ConversationStatus
	LastMessageTs *int64
}

type DeleteConversation struct {
	ID int32
}

// MessageSender identifies which side of the exchange produced a message.
type MessageSender string

const (
	MessageSenderUser      MessageSender = "USER"
	MessageSenderAssistant MessageSender = "ASSISTANT"
)

type Message struct {
	ID             int32
	UID            string
	ConversationID int32
	UserID         int32
	Sender         MessageSender
	Content        string
	Model          *string
	ResponseTimeMs *int64
	CreatedTs      int64
}

type FindMessage struct {
	ID             *int32
	UID            *string
	ConversationID *int32
	Sender         *MessageSender
	// Limit keeps the most recent N messages; results are always returned
	// oldest-first regardless of Limit.
	Limit *int
}

type DeleteMessage struct {
	ID             *int32
	ConversationID *int32
}
