// Package server assembles the HTTP surface around the chat gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/finbuddy/finbuddy/internal/profile"
	"github.com/finbuddy/finbuddy/plugin/llm"
	"github.com/finbuddy/finbuddy/server/chat"
	apiv1 "github.com/finbuddy/finbuddy/server/router/api/v1"
	"github.com/finbuddy/finbuddy/store"
)

// Server is the HTTP server hosting the gateway API.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	gateway    *chat.Gateway
}

// NewServer wires the store, providers, and routes into a runnable server.
func NewServer(ctx context.Context, profile *profile.Profile, s *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true

	echoServer.Use(echomiddleware.RecoverWithConfig(echomiddleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("panic recovered in handler",
				slog.String("path", c.Path()),
				slog.String("error", err.Error()))
			return err
		},
	}))
	echoServer.Use(echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{
		// Leave headroom over the provider deadline so timeouts surface as
		// gateway failures, not severed connections.
		Timeout: profile.RequestTimeout + 15*time.Second,
	}))
	echoServer.Use(echomiddleware.CORS())

	knowledge := llm.NewKnowledgeClient(profile)
	general := llm.NewGeneralClient(profile)
	gateway := chat.NewGateway(profile, s, knowledge, general, slog.Default())
	probe := llm.NewDiagnosticsProbe(knowledge, profile)

	server := &Server{
		Profile:    profile,
		Store:      s,
		echoServer: echoServer,
		gateway:    gateway,
	}

	apiV1Service := apiv1.NewAPIV1Service(profile, s, gateway, probe)
	apiV1Service.Register(echoServer)

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	return server, nil
}

// Start begins serving on the profile's address and port.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

// Shutdown gracefully stops the server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server gracefully", slog.String("error", err.Error()))
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", slog.String("error", err.Error()))
	}
	slog.Info("finbuddy gateway stopped")
}
