package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
)

// MockDriver is an in-memory implementation of Driver for testing.
// It honors the same contracts as the SQL drivers: message creation touches
// the parent conversation atomically, and listing follows the same ordering.
type MockDriver struct {
	mu sync.Mutex

	conversations map[int32]*Conversation
	messages      map[int32]*Message

	nextConversationID int32
	nextMessageID      int32

	// CreateMessageErr, when set, is returned by CreateMessage to simulate a
	// persistence failure.
	CreateMessageErr error
}

// NewMockDriver creates an empty in-memory driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		conversations: make(map[int32]*Conversation),
		messages:      make(map[int32]*Message),
	}
}

func (d *MockDriver) GetDB() *sql.DB { return nil }

func (d *MockDriver) Close() error { return nil }

func (d *MockDriver) IsInitialized(ctx context.Context) (bool, error) { return true, nil }

func (d *MockDriver) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextConversationID++
	create.ID = d.nextConversationID
	if create.Status == "" {
		create.Status = ConversationStatusActive
	}
	clone := *create
	d.conversations[create.ID] = &clone
	return create, nil
}

func (d *MockDriver) ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*Conversation, 0)
	for _, c := range d.conversations {
		if find.ID != nil && c.ID != *find.ID {
			continue
		}
		if find.UID != nil && c.UID != *find.UID {
			continue
		}
		if find.UserID != nil && c.UserID != *find.UserID {
			continue
		}
		if find.Status != nil && c.Status != *find.Status {
			continue
		}
		if find.ExcludeDeleted && c.Status == ConversationStatusDeleted {
			continue
		}
		clone := *c
		list = append(list, &clone)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].LastMessageTs != list[j].LastMessageTs {
			return list[i].LastMessageTs > list[j].LastMessageTs
		}
		return list[i].ID > list[j].ID
	})
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[:*find.Limit]
	}
	return list, nil
}

func (d *MockDriver) UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.conversations[update.ID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.LastMessageTs != nil {
		c.LastMessageTs = *update.LastMessageTs
	}
	clone := *c
	return &clone, nil
}

func (d *MockDriver) DeleteConversation(ctx context.Context, del *DeleteConversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.conversations[del.ID]; !ok {
		return ErrConversationNotFound
	}
	for id, m := range d.messages {
		if m.ConversationID == del.ID {
			delete(d.messages, id)
		}
	}
	delete(d.conversations, del.ID)
	return nil
}

func (d *MockDriver) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CreateMessageErr != nil {
		return nil, d.CreateMessageErr
	}

	c, ok := d.conversations[create.ConversationID]
	if !ok || c.Status == ConversationStatusDeleted {
		return nil, ErrConversationNotFound
	}

	c.LastMessageTs = create.CreatedTs
	c.TotalMessages++

	d.nextMessageID++
	create.ID = d.nextMessageID
	clone := *create
	d.messages[create.ID] = &clone
	return create, nil
}

func (d *MockDriver) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]*Message, 0)
	for _, m := range d.messages {
		if find.ID != nil && m.ID != *find.ID {
			continue
		}
		if find.UID != nil && m.UID != *find.UID {
			continue
		}
		if find.ConversationID != nil && m.ConversationID != *find.ConversationID {
			continue
		}
		if find.Sender != nil && m.Sender != *find.Sender {
			continue
		}
		clone := *m
		list = append(list, &clone)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedTs != list[j].CreatedTs {
			return list[i].CreatedTs < list[j].CreatedTs
		}
		return list[i].ID < list[j].ID
	})
	if find.Limit != nil && len(list) > *find.Limit {
		list = list[len(list)-*find.Limit:]
	}
	return list, nil
}

func (d *MockDriver) DeleteMessage(ctx context.Context, del *DeleteMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, m := range d.messages {
		if del.ID != nil && m.ID != *del.ID {
			continue
		}
		if del.ConversationID != nil && m.ConversationID != *del.ConversationID {
			continue
		}
		delete(d.messages, id)
	}
	return nil
}
