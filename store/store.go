package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/finbuddy/finbuddy/internal/profile"
	"github.com/finbuddy/finbuddy/store/cache"
)

// titleMaxRunes is the display-title budget; longer first messages are
// truncated to this many runes with a trailing ellipsis.
const titleMaxRunes = 50

// Store provides database access to conversations and messages. It is the
// sole mutator of persisted chat state.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// activeConversationCache maps user id to the user's active conversation.
	// Derived from the database, never authoritative.
	activeConversationCache *cache.Cache
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
	}

	return &Store{
		driver:                  driver,
		profile:                 profile,
		activeConversationCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.activeConversationCache.Close()
	return s.driver.Close()
}

// GetOrCreateActiveConversation returns the user's active conversation,
// creating one with the default title if none exists. Repeated calls for the
// same user return the same conversation until it is archived or deleted.
func (s *Store) GetOrCreateActiveConversation(ctx context.Context, userID int32) (*Conversation, error) {
	cacheKey := activeConversationCacheKey(userID)
	if v, ok := s.activeConversationCache.Get(cacheKey); ok {
		if c, ok := v.(*Conversation); ok {
			return c, nil
		}
	}

	active := ConversationStatusActive
	limit := 1
	list, err := s.driver.ListConversations(ctx, &FindConversation{
		UserID: &userID,
		Status: &active,
		Limit:  &limit,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to find active conversation")
	}
	if len(list) > 0 {
		s.activeConversationCache.Set(cacheKey, list[0])
		return list[0], nil
	}

	now := time.Now().Unix()
	conversation, err := s.driver.CreateConversation(ctx, &Conversation{
		UID:           shortuuid.New(),
		UserID:        userID,
		Title:         DefaultConversationTitle,
		Status:        ConversationStatusActive,
		StartedTs:     now,
		LastMessageTs: now,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	s.activeConversationCache.Set(cacheKey, conversation)
	return conversation, nil
}

// LoadHistory returns up to limit of the conversation's most recent messages,
// oldest-first. An empty conversation yields an empty slice.
func (s *Store) LoadHistory(ctx context.Context, conversationID int32, limit int) ([]*Message, error) {
	find := &FindMessage{ConversationID: &conversationID}
	if limit > 0 {
		find.Limit = &limit
	}
	messages, err := s.driver.ListMessages(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load history")
	}
	return messages, nil
}

// AppendMessage inserts the message and atomically updates the parent
// conversation's last_message_ts and total_messages. UID and CreatedTs are
// filled in when unset.
func (s *Store) AppendMessage(ctx context.Context, create *Message) (*Message, error) {
	if create.UID == "" {
		create.UID = shortuuid.New()
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}

	message, err := s.driver.CreateMessage(ctx, create)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to append message")
	}
	// The cached active conversation now carries stale counters.
	s.activeConversationCache.Delete(activeConversationCacheKey(create.UserID))
	return message, nil
}

// ListConversations returns the user's conversations, most recently active
// first, excluding deleted ones.
func (s *Store) ListConversations(ctx context.Context, userID int32, limit int) ([]*Conversation, error) {
	find := &FindConversation{
		UserID:         &userID,
		ExcludeDeleted: true,
	}
	if limit > 0 {
		find.Limit = &limit
	}
	list, err := s.driver.ListConversations(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return list, nil
}

// GetConversation returns a single conversation by id.
func (s *Store) GetConversation(ctx context.Context, id int32) (*Conversation, error) {
	list, err := s.driver.ListConversations(ctx, &FindConversation{ID: &id})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get conversation")
	}
	if len(list) == 0 {
		return nil, ErrConversationNotFound
	}
	return list[0], nil
}

// ArchiveConversation moves the conversation out of the active state.
func (s *Store) ArchiveConversation(ctx context.Context, id int32) error {
	archived := ConversationStatusArchived
	conversation, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		ID:     id,
		Status: &archived,
	})
	if err != nil {
		return errors.Wrap(err, "failed to archive conversation")
	}
	s.activeConversationCache.Delete(activeConversationCacheKey(conversation.UserID))
	return nil
}

// DeleteConversation removes the conversation and cascades its messages.
func (s *Store) DeleteConversation(ctx context.Context, id int32) error {
	conversation, err := s.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if err := s.driver.DeleteConversation(ctx, &DeleteConversation{ID: id}); err != nil {
		return errors.Wrap(err, "failed to delete conversation")
	}
	s.activeConversationCache.Delete(activeConversationCacheKey(conversation.UserID))
	return nil
}

// UpdateTitle sets the display title of a conversation.
func (s *Store) UpdateTitle(ctx context.Context, id int32, title string) error {
	conversation, err := s.driver.UpdateConversation(ctx, &UpdateConversation{
		ID:    id,
		Title: &title,
	})
	if err != nil {
		return errors.Wrap(err, "failed to update title")
	}
	s.activeConversationCache.Delete(activeConversationCacheKey(conversation.UserID))
	return nil
}

// GenerateTitle derives a display title from the conversation's first user
// message, truncated to 50 runes with a trailing ellipsis. Falls back to the
// default title when no user message exists yet.
func (s *Store) GenerateTitle(ctx context.Context, conversationID int32) (string, error) {
	user := MessageSenderUser
	messages, err := s.driver.ListMessages(ctx, &FindMessage{
		ConversationID: &conversationID,
		Sender:         &user,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to load messages for title")
	}
	if len(messages) == 0 {
		return DefaultConversationTitle, nil
	}
	return TruncateTitle(messages[0].Content), nil
}

// TruncateTitle shortens text to the display-title budget.
func TruncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleMaxRunes {
		return text
	}
	return string(runes[:titleMaxRunes]) + "…"
}

func activeConversationCacheKey(userID int32) string {
	return fmt.Sprintf("active-conversation:%d", userID)
}
