package chat

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Availability reports which providers currently answer probe calls.
type Availability struct {
	Primary  bool `json:"primary"`
	Fallback bool `json:"fallback"`
}

// availabilityTimeout bounds the whole check, both probes included.
const availabilityTimeout = 15 * time.Second

// CheckServiceAvailability probes both providers independently and in
// parallel. It never returns an error: an unreachable provider is reported
// as false, with the cause logged.
func (g *Gateway) CheckServiceAvailability(ctx context.Context) *Availability {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	availability := &Availability{}

	var eg errgroup.Group
	eg.Go(func() error {
		if _, err := g.knowledge.Probe(ctx); err != nil {
			g.logger.Warn("primary provider probe failed", slog.String("error", err.Error()))
			return nil
		}
		availability.Primary = true
		return nil
	})
	eg.Go(func() error {
		if err := g.general.Probe(ctx); err != nil {
			g.logger.Warn("fallback provider probe failed", slog.String("error", err.Error()))
			return nil
		}
		availability.Fallback = true
		return nil
	})
	_ = eg.Wait()

	return availability
}
