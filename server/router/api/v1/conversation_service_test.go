package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finbuddy/finbuddy/store"
)

func seedConversation(t *testing.T, s *store.Store, userID int32, messages ...string) *store.Conversation {
	t.Helper()
	ctx := context.Background()
	conversation, err := s.GetOrCreateActiveConversation(ctx, userID)
	require.NoError(t, err)
	for i, content := range messages {
		sender := store.MessageSenderUser
		if i%2 == 1 {
			sender = store.MessageSenderAssistant
		}
		_, err := s.AppendMessage(ctx, &store.Message{
			ConversationID: conversation.ID,
			UserID:         userID,
			Sender:         sender,
			Content:        content,
		})
		require.NoError(t, err)
	}
	return conversation
}

func TestListConversations(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1", "a1")

	rec := doRequest(e, http.MethodGet, "/api/v1/conversations", "", "1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []ConversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	require.Equal(t, conversation.ID, resp[0].ID)
	require.Equal(t, int32(2), resp[0].TotalMessages)

	// Another user sees nothing.
	rec = doRequest(e, http.MethodGet, "/api/v1/conversations", "", "2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp)
}

func TestListConversationMessages(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1", "a1", "q2")

	rec := doRequest(e, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conversation.ID), "", "1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	require.Equal(t, "q1", resp[0].Content)
	require.Equal(t, string(store.MessageSenderAssistant), resp[1].Sender)
	require.Equal(t, "q2", resp[2].Content)
}

func TestConversationOwnershipHidden(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1")

	// Someone else's conversation reads as not found.
	rec := doRequest(e, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conversation.ID), "", "2")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(e, http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%d", conversation.ID), "", "2")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveConversation(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1")

	rec := doRequest(e, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/archive", conversation.ID), "", "1")
	require.Equal(t, http.StatusNoContent, rec.Code)

	updated, err := service.Store.GetConversation(context.Background(), conversation.ID)
	require.NoError(t, err)
	require.Equal(t, store.ConversationStatusArchived, updated.Status)
}

func TestUpdateConversationTitle(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1")

	target := fmt.Sprintf("/api/v1/conversations/%d/title", conversation.ID)
	rec := doRequest(e, http.MethodPatch, target, `{"title": "Grocery budget"}`, "1")
	require.Equal(t, http.StatusNoContent, rec.Code)

	updated, err := service.Store.GetConversation(context.Background(), conversation.ID)
	require.NoError(t, err)
	require.Equal(t, "Grocery budget", updated.Title)

	rec = doRequest(e, http.MethodPatch, target, `{"title": "  "}`, "1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteConversation(t *testing.T) {
	service, e := newTestService(t, &stubGateway{})
	conversation := seedConversation(t, service.Store, 1, "q1", "a1")

	rec := doRequest(e, http.MethodDelete, fmt.Sprintf("/api/v1/conversations/%d", conversation.ID), "", "1")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := service.Store.GetConversation(context.Background(), conversation.ID)
	require.ErrorIs(t, err, store.ErrConversationNotFound)
}
