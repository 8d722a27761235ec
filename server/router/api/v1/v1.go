package v1

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/finbuddy/finbuddy/internal/profile"
	"github.com/finbuddy/finbuddy/plugin/llm"
	"github.com/finbuddy/finbuddy/server/chat"
	"github.com/finbuddy/finbuddy/server/middleware"
	"github.com/finbuddy/finbuddy/store"
)

// ChatGateway is the orchestration surface the HTTP layer talks to.
type ChatGateway interface {
	Send(ctx context.Context, userID int32, text string) (*chat.SendResult, error)
	CheckServiceAvailability(ctx context.Context) *chat.Availability
}

// ConnectionProber runs the out-of-band diagnostics check.
type ConnectionProber interface {
	TestConnectionDetailed(ctx context.Context) *llm.ProbeReport
}

// APIV1Service exposes the chat gateway over HTTP.
type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Gateway ChatGateway
	Probe   ConnectionProber

	rateLimiter *middleware.RateLimiter
}

// NewAPIV1Service creates the HTTP service around the gateway.
func NewAPIV1Service(profile *profile.Profile, store *store.Store, gateway ChatGateway, probe ConnectionProber) *APIV1Service {
	return &APIV1Service{
		Profile: profile,
		Store:   store,
		Gateway: gateway,
		Probe:   probe,
		// One exchange every 2 seconds per user, small burst for quick
		// follow-up questions.
		rateLimiter: middleware.NewRateLimiter(rate.Every(2*time.Second), 5),
	}
}

// Register mounts all v1 routes on the echo server.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	g := echoServer.Group("/api/v1")

	g.POST("/chat", s.SendChatMessage)
	g.GET("/chat/availability", s.GetServiceAvailability)
	g.GET("/chat/diagnostics", s.GetDiagnostics)

	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:id/messages", s.ListConversationMessages)
	g.POST("/conversations/:id/archive", s.ArchiveConversation)
	g.PATCH("/conversations/:id/title", s.UpdateConversationTitle)
	g.DELETE("/conversations/:id", s.DeleteConversation)
}
