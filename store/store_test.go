package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finbuddy/finbuddy/internal/profile"
)

func newTestStore(t *testing.T) (*Store, *MockDriver) {
	t.Helper()
	driver := NewMockDriver()
	s := New(driver, &profile.Profile{Mode: "dev", Driver: "sqlite"})
	t.Cleanup(func() { _ = s.Close() })
	return s, driver
}

func TestGetOrCreateActiveConversation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, ConversationStatusActive, first.Status)
	require.Equal(t, DefaultConversationTitle, first.Title)
	require.NotEmpty(t, first.UID)

	// Repeated calls return the same conversation, not a new one.
	second, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	// A different user gets their own conversation.
	other, err := s.GetOrCreateActiveConversation(ctx, 2)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	list, err := s.ListConversations(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestGetOrCreateActiveConversationAfterArchive(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.ArchiveConversation(ctx, first.ID))

	second, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	// Both remain listed; only the archived one left the active state.
	list, err := s.ListConversations(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestAppendMessageUpdatesConversation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)

	exchanges := []struct {
		sender  MessageSender
		content string
	}{
		{MessageSenderUser, "how much did I spend on groceries?"},
		{MessageSenderAssistant, "You spent $250 on groceries this month."},
		{MessageSenderUser, "and last month?"},
		{MessageSenderAssistant, "$310 last month."},
	}
	for _, e := range exchanges {
		_, err := s.AppendMessage(ctx, &Message{
			ConversationID: conversation.ID,
			UserID:         1,
			Sender:         e.sender,
			Content:        e.content,
		})
		require.NoError(t, err)
	}

	updated, err := s.GetConversation(ctx, conversation.ID)
	require.NoError(t, err)
	require.Equal(t, int32(4), updated.TotalMessages)
	require.GreaterOrEqual(t, updated.LastMessageTs, conversation.LastMessageTs)
}

func TestAppendMessageMissingConversation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.AppendMessage(ctx, &Message{
		ConversationID: 999,
		UserID:         1,
		Sender:         MessageSenderUser,
		Content:        "hello",
	})
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestAppendMessagePersistenceError(t *testing.T) {
	ctx := context.Background()
	s, driver := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)

	driver.CreateMessageErr = errors.New("disk full")
	_, err = s.AppendMessage(ctx, &Message{
		ConversationID: conversation.ID,
		UserID:         1,
		Sender:         MessageSenderUser,
		Content:        "hello",
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConversationNotFound)
}

func TestLoadHistoryOrderingAndWindow(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)

	contents := []string{"a", "b", "c", "d", "e"}
	for i, content := range contents {
		_, err := s.AppendMessage(ctx, &Message{
			ConversationID: conversation.ID,
			UserID:         1,
			Sender:         MessageSenderUser,
			Content:        content,
			CreatedTs:      int64(1000 + i),
		})
		require.NoError(t, err)
	}

	all, err := s.LoadHistory(ctx, conversation.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		require.Equal(t, contents[i], m.Content)
	}

	// A window keeps the most recent messages, still oldest-first.
	window, err := s.LoadHistory(ctx, conversation.ID, 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	require.Equal(t, "c", window[0].Content)
	require.Equal(t, "e", window[2].Content)
}

func TestLoadHistoryEmptyConversation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)

	history, err := s.LoadHistory(ctx, conversation.ID, 10)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	s, driver := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, &Message{
		ConversationID: conversation.ID,
		UserID:         1,
		Sender:         MessageSenderUser,
		Content:        "hello",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, conversation.ID))

	_, err = s.GetConversation(ctx, conversation.ID)
	require.ErrorIs(t, err, ErrConversationNotFound)

	messages, err := driver.ListMessages(ctx, &FindMessage{ConversationID: &conversation.ID})
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestGenerateTitle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	conversation, err := s.GetOrCreateActiveConversation(ctx, 1)
	require.NoError(t, err)

	// No user message yet falls back to the default title.
	title, err := s.GenerateTitle(ctx, conversation.ID)
	require.NoError(t, err)
	require.Equal(t, DefaultConversationTitle, title)

	long := strings.Repeat("spending ", 10)
	_, err = s.AppendMessage(ctx, &Message{
		ConversationID: conversation.ID,
		UserID:         1,
		Sender:         MessageSenderUser,
		Content:        long,
	})
	require.NoError(t, err)

	title, err = s.GenerateTitle(ctx, conversation.ID)
	require.NoError(t, err)
	require.Equal(t, string([]rune(long)[:50])+"…", title)
}

func TestTruncateTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short unchanged", "budget check", "budget check"},
		{"exactly fifty", strings.Repeat("x", 50), strings.Repeat("x", 50)},
		{"over fifty", strings.Repeat("x", 51), strings.Repeat("x", 50) + "…"},
		{"multibyte runes", strings.Repeat("预", 60), strings.Repeat("预", 50) + "…"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateTitle(tt.in); got != tt.want {
				t.Errorf("TruncateTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
