// Package chat implements the orchestration gateway: it routes a user
// message to the knowledge backend, fails over to the general backend, and
// persists every exchange through the conversation store.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/finbuddy/finbuddy/internal/profile"
	"github.com/finbuddy/finbuddy/plugin/llm"
	gerrors "github.com/finbuddy/finbuddy/server/internal/errors"
	"github.com/finbuddy/finbuddy/server/internal/observability"
	"github.com/finbuddy/finbuddy/store"
)

const (
	// FallbackDisclosure is appended to every fallback-sourced answer so the
	// user knows it did not come from the finance knowledge service.
	FallbackDisclosure = "\n\n_Note: this answer came from our general assistant because the finance knowledge service was unavailable. Your financial records were not consulted._"

	// ApologyMessage is returned when both providers fail. Never replaced by
	// a raw provider error.
	ApologyMessage = "Sorry, I couldn't process your question right now. Please try again in a moment."

	// knowledgeModel labels assistant messages answered by the primary
	// backend, which does not report a model identifier of its own.
	knowledgeModel = "knowledge-backend"

	// titledExchanges is how many initial exchanges trigger a best-effort
	// title regeneration for the conversation.
	titledExchanges = 3

	// titleTimeout bounds the asynchronous title update.
	titleTimeout = 10 * time.Second
)

// KnowledgeProvider is the primary, retrieval-augmented backend.
type KnowledgeProvider interface {
	Query(ctx context.Context, text string, history []llm.Turn) (*llm.NormalizedAnswer, error)
	Probe(ctx context.Context) (string, error)
}

// GeneralProvider is the fallback chat-completion backend.
type GeneralProvider interface {
	Complete(ctx context.Context, text string, history []llm.Turn) (string, error)
	Probe(ctx context.Context) error
	Model() string
}

// SendResult carries the outcome of one exchange. Failed results are still
// results: the fallback decision and failure kind are part of the contract,
// not just log lines.
type SendResult struct {
	ConversationID  int32
	ConversationUID string
	Reply           string
	Model           string
	ResponseTimeMs  int64
	UsedFallback    bool
	Failed          bool
	FailureCode     gerrors.ErrorCode
}

// Gateway orchestrates one exchange: persist, query, fail over, persist.
type Gateway struct {
	profile   *profile.Profile
	store     *store.Store
	knowledge KnowledgeProvider
	general   GeneralProvider
	logger    *slog.Logger
}

// NewGateway creates a gateway wired to the given store and providers.
func NewGateway(profile *profile.Profile, s *store.Store, knowledge KnowledgeProvider, general GeneralProvider, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		profile:   profile,
		store:     s,
		knowledge: knowledge,
		general:   general,
		logger:    logger,
	}
}

// Send runs one exchange for the user. The user's message is persisted
// before any provider is contacted, so it survives every failure mode. A
// non-nil result may be returned together with a persistence error when the
// assistant's turn could not be stored; the caller may still display it.
func (g *Gateway) Send(ctx context.Context, userID int32, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, gerrors.New(gerrors.ErrCodeInvalidArgument, "message text must not be empty")
	}

	reqCtx := observability.NewRequestContext(g.logger, "primary", userID)
	ctx = observability.WithRequestContext(ctx, reqCtx)

	conversation, err := g.store.GetOrCreateActiveConversation(ctx, userID)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.ErrCodePersistenceError, "failed to resolve active conversation", err)
	}
	reqCtx.Debug("resolved conversation",
		slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)))

	userMessage, err := g.store.AppendMessage(ctx, &store.Message{
		ConversationID: conversation.ID,
		UserID:         userID,
		Sender:         store.MessageSenderUser,
		Content:        text,
	})
	if err != nil {
		return nil, gerrors.Wrap(gerrors.ErrCodePersistenceError, "failed to persist user message", err)
	}

	history := g.loadHistory(ctx, reqCtx, conversation.ID, userMessage.ID)

	result := &SendResult{
		ConversationID:  conversation.ID,
		ConversationUID: conversation.UID,
	}

	start := time.Now()
	answer, primaryErr := g.knowledge.Query(ctx, text, history)
	if primaryErr == nil {
		result.Reply = answer.Content
		result.Model = knowledgeModel
	} else {
		reqCtx.Warn("primary provider failed, trying fallback",
			slog.String(observability.LogFieldErrorCode, string(classifyProviderError(primaryErr))),
			slog.String("error", primaryErr.Error()))
		reqCtx.Provider = "fallback"

		reply, fallbackErr := g.general.Complete(ctx, text, history)
		if fallbackErr != nil {
			reqCtx.Error("fallback provider failed, exchange lost", fallbackErr,
				slog.String(observability.LogFieldErrorCode, string(classifyProviderError(fallbackErr))),
				slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)))
			// Only the user's message survives a total failure.
			result.Reply = ApologyMessage
			result.Failed = true
			result.FailureCode = gerrors.ErrCodeTotalFailure
			return result, nil
		}
		result.Reply = reply + FallbackDisclosure
		result.Model = g.general.Model()
		result.UsedFallback = true
	}
	result.ResponseTimeMs = time.Since(start).Milliseconds()

	if _, err := g.store.AppendMessage(ctx, &store.Message{
		ConversationID: conversation.ID,
		UserID:         userID,
		Sender:         store.MessageSenderAssistant,
		Content:        result.Reply,
		Model:          &result.Model,
		ResponseTimeMs: &result.ResponseTimeMs,
	}); err != nil {
		// Durability gap: the user saw an answer that is not stored.
		reqCtx.Error("failed to persist assistant message", err,
			slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)))
		return result, gerrors.Wrap(gerrors.ErrCodePersistenceError, "failed to persist assistant message", err)
	}

	g.maybeGenerateTitle(conversation)

	reqCtx.Info("exchange completed",
		slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)),
		slog.Int64(observability.LogFieldDuration, result.ResponseTimeMs),
		slog.Bool("used_fallback", result.UsedFallback),
		slog.Int(observability.LogFieldMessageLen, len(result.Reply)))
	return result, nil
}

// loadHistory returns the bounded recent history as provider turns, oldest
// first, excluding the just-persisted user message. A load failure degrades
// to an empty context rather than failing the exchange.
func (g *Gateway) loadHistory(ctx context.Context, reqCtx *observability.RequestContext, conversationID, excludeMessageID int32) []llm.Turn {
	messages, err := g.store.LoadHistory(ctx, conversationID, g.profile.HistoryWindow)
	if err != nil {
		reqCtx.Warn("failed to load history, continuing without context",
			slog.String("error", err.Error()))
		return nil
	}

	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		if m.ID == excludeMessageID {
			continue
		}
		role := llm.RoleUser
		if m.Sender == store.MessageSenderAssistant {
			role = llm.RoleAssistant
		}
		turns = append(turns, llm.Turn{Role: role, Content: m.Content})
	}
	return turns
}

// maybeGenerateTitle regenerates the conversation title during the first few
// exchanges. Best effort: runs detached from the request, failures logged.
func (g *Gateway) maybeGenerateTitle(conversation *store.Conversation) {
	// TotalMessages was read before this exchange's two messages landed.
	if conversation.TotalMessages >= 2*titledExchanges {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()

		title, err := g.store.GenerateTitle(ctx, conversation.ID)
		if err != nil {
			g.logger.Warn("failed to generate conversation title",
				slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)),
				slog.String("error", err.Error()))
			return
		}
		if title == conversation.Title {
			return
		}
		if err := g.store.UpdateTitle(ctx, conversation.ID, title); err != nil {
			g.logger.Warn("failed to update conversation title",
				slog.Int64(observability.LogFieldConversationID, int64(conversation.ID)),
				slog.String("error", err.Error()))
		}
	}()
}

// classifyProviderError maps a provider failure to its error code for
// logging and reporting.
func classifyProviderError(err error) gerrors.ErrorCode {
	switch err.(type) {
	case *llm.TimeoutError:
		return gerrors.ErrCodeTimeout
	case *llm.UpstreamError:
		return gerrors.ErrCodeUpstreamError
	case *llm.MalformedResponseError:
		return gerrors.ErrCodeMalformedResponse
	case *llm.TransportError:
		return gerrors.ErrCodeNetworkError
	default:
		return gerrors.ErrCodeNetworkError
	}
}
