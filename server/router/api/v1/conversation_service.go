package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/finbuddy/finbuddy/store"
)

// ConversationResponse is the wire shape of a conversation.
type ConversationResponse struct {
	ID            int32  `json:"id"`
	UID           string `json:"uid"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	StartedTs     int64  `json:"started_ts"`
	LastMessageTs int64  `json:"last_message_ts"`
	TotalMessages int32  `json:"total_messages"`
}

// MessageResponse is the wire shape of a message.
type MessageResponse struct {
	ID             int32  `json:"id"`
	UID            string `json:"uid"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms,omitempty"`
	CreatedTs      int64  `json:"created_ts"`
}

// ListConversations returns the user's conversations, most recent first.
// GET /api/v1/conversations
func (s *APIV1Service) ListConversations(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	list, err := s.Store.ListConversations(c.Request().Context(), userID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list conversations"})
	}

	resp := make([]ConversationResponse, 0, len(list))
	for _, conversation := range list {
		resp = append(resp, convertConversation(conversation))
	}
	return c.JSON(http.StatusOK, resp)
}

// ListConversationMessages returns a conversation's messages oldest-first.
// GET /api/v1/conversations/:id/messages
func (s *APIV1Service) ListConversationMessages(c echo.Context) error {
	conversation, ok := s.ownedConversation(c)
	if !ok {
		return nil
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.Store.LoadHistory(c.Request().Context(), conversation.ID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load messages"})
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		item := MessageResponse{
			ID:        m.ID,
			UID:       m.UID,
			Sender:    string(m.Sender),
			Content:   m.Content,
			CreatedTs: m.CreatedTs,
		}
		if m.Model != nil {
			item.Model = *m.Model
		}
		if m.ResponseTimeMs != nil {
			item.ResponseTimeMs = *m.ResponseTimeMs
		}
		resp = append(resp, item)
	}
	return c.JSON(http.StatusOK, resp)
}

// ArchiveConversation moves a conversation out of the active state; the next
// send will start a fresh one.
// POST /api/v1/conversations/:id/archive
func (s *APIV1Service) ArchiveConversation(c echo.Context) error {
	conversation, ok := s.ownedConversation(c)
	if !ok {
		return nil
	}

	if err := s.Store.ArchiveConversation(c.Request().Context(), conversation.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to archive conversation"})
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateConversationTitleRequest is the body of the title update.
type UpdateConversationTitleRequest struct {
	Title string `json:"title"`
}

// UpdateConversationTitle renames a conversation.
// PATCH /api/v1/conversations/:id/title
func (s *APIV1Service) UpdateConversationTitle(c echo.Context) error {
	conversation, ok := s.ownedConversation(c)
	if !ok {
		return nil
	}

	var req UpdateConversationTitleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title must not be empty"})
	}

	if err := s.Store.UpdateTitle(c.Request().Context(), conversation.ID, store.TruncateTitle(title)); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to update title"})
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteConversation removes a conversation and all of its messages.
// DELETE /api/v1/conversations/:id
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	conversation, ok := s.ownedConversation(c)
	if !ok {
		return nil
	}

	if err := s.Store.DeleteConversation(c.Request().Context(), conversation.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete conversation"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ownedConversation resolves the :id path param and checks the caller owns
// it. A conversation belonging to someone else reads as not found. When it
// returns false the error response has already been written.
func (s *APIV1Service) ownedConversation(c echo.Context) (*store.Conversation, bool) {
	userID, err := currentUserID(c)
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		return nil, false
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return nil, false
	}

	conversation, err := s.Store.GetConversation(c.Request().Context(), int32(id))
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			_ = c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		} else {
			_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load conversation"})
		}
		return nil, false
	}
	if conversation.UserID != userID || conversation.Status == store.ConversationStatusDeleted {
		_ = c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return nil, false
	}
	return conversation, true
}

func convertConversation(conversation *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:            conversation.ID,
		UID:           conversation.UID,
		Title:         conversation.Title,
		Status:        string(conversation.Status),
		StartedTs:     conversation.StartedTs,
		LastMessageTs: conversation.LastMessageTs,
		TotalMessages: conversation.TotalMessages,
	}
}
