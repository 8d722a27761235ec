package v1

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	gerrors "github.com/finbuddy/finbuddy/server/internal/errors"
)

// SendChatMessageRequest is the body of POST /api/v1/chat.
type SendChatMessageRequest struct {
	Text string `json:"text"`
}

// SendChatMessageResponse is the reply for one exchange.
type SendChatMessageResponse struct {
	ConversationID  int32  `json:"conversation_id"`
	ConversationUID string `json:"conversation_uid"`
	Reply           string `json:"reply"`
	Model           string `json:"model,omitempty"`
	ResponseTimeMs  int64  `json:"response_time_ms"`
	UsedFallback    bool   `json:"used_fallback"`
	Failed          bool   `json:"failed"`
}

// SendChatMessage handles one chat exchange.
// POST /api/v1/chat
func (s *APIV1Service) SendChatMessage(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if !s.rateLimiter.Allow(rateLimitKey(userID)) {
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "too many messages, slow down a little",
			"code":  string(gerrors.ErrCodeRateLimitExceeded),
		})
	}

	var req SendChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := s.Gateway.Send(c.Request().Context(), userID, req.Text)
	if err != nil {
		var gatewayErr *gerrors.GatewayError
		if errors.As(err, &gatewayErr) {
			switch gatewayErr.Code {
			case gerrors.ErrCodeInvalidArgument:
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": gatewayErr.Message,
					"code":  string(gatewayErr.Code),
				})
			case gerrors.ErrCodePersistenceError:
				// The exchange may have produced a reply that could not be
				// stored; surface it with an explicit durability flag.
				if result != nil {
					slog.Warn("returning unpersisted exchange",
						slog.Int64("user_id", int64(userID)),
						slog.String("error", gatewayErr.Error()))
					return c.JSON(http.StatusOK, echo.Map{
						"conversation_id":  result.ConversationID,
						"conversation_uid": result.ConversationUID,
						"reply":            result.Reply,
						"model":            result.Model,
						"response_time_ms": result.ResponseTimeMs,
						"used_fallback":    result.UsedFallback,
						"failed":           result.Failed,
						"persisted":        false,
					})
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "failed to save your message, please retry",
					"code":  string(gatewayErr.Code),
				})
			}
		}
		slog.Error("chat exchange failed",
			slog.Int64("user_id", int64(userID)),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, SendChatMessageResponse{
		ConversationID:  result.ConversationID,
		ConversationUID: result.ConversationUID,
		Reply:           result.Reply,
		Model:           result.Model,
		ResponseTimeMs:  result.ResponseTimeMs,
		UsedFallback:    result.UsedFallback,
		Failed:          result.Failed,
	})
}

// GetServiceAvailability reports which providers currently answer probes.
// GET /api/v1/chat/availability
func (s *APIV1Service) GetServiceAvailability(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Gateway.CheckServiceAvailability(c.Request().Context()))
}

// GetDiagnostics runs the detailed out-of-band connection test.
// GET /api/v1/chat/diagnostics
func (s *APIV1Service) GetDiagnostics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Probe.TestConnectionDetailed(c.Request().Context()))
}

// currentUserID resolves the authenticated user. Authentication itself is an
// external collaborator; the upstream proxy injects the header.
func currentUserID(c echo.Context) (int32, error) {
	raw := c.Request().Header.Get("X-User-ID")
	if raw == "" {
		return 0, errors.New("missing X-User-ID header")
	}
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid X-User-ID header %q", raw)
	}
	return int32(id), nil
}

func rateLimitKey(userID int32) string {
	return "chat:" + strconv.FormatInt(int64(userID), 10)
}
