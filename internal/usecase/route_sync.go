package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "speedliner/internal/domain/repository"
	"speedliner/pkg/logger"
)

// RouteSync pulls the route document from the route source and hands it to the hub.
type RouteSync struct {
	source   drepo.RouteSource
	hub      *SessionHub
	interval time.Duration
	metrics  drepo.Metrics
	logger   *logger.Logger
}

func NewRouteSync(source drepo.RouteSource, hub *SessionHub, interval time.Duration, metrics drepo.Metrics, log *logger.Logger) *RouteSync {
	if log == nil {
		log = logger.Nop()
	}
	return &RouteSync{
		source:   source,
		hub:      hub,
		interval: interval,
		metrics:  metricsOrNop(metrics),
		logger:   log,
	}
}

// SyncOnce fetches and applies the current route document.
func (r *RouteSync) SyncOnce(ctx context.Context) error {
	start := time.Now()
	raw, err := r.source.FetchRoutes(ctx)
	if err != nil {
		r.metrics.RecordError("routes_fetch")
		return fmt.Errorf("fetch routes: %w", err)
	}
	res, err := r.hub.SetRoutesData(raw)
	if err != nil {
		return fmt.Errorf("apply routes: %w", err)
	}
	r.metrics.RecordLatency("routes_sync", time.Since(start).Seconds())
	r.logger.Info("routes synced",
		logger.Int("accepted", res.Accepted),
		logger.Int("rejected", res.Rejected),
		logger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

// Run syncs once and then on every interval until ctx is done. A zero
// interval syncs once.
func (r *RouteSync) Run(ctx context.Context) {
	if err := r.SyncOnce(ctx); err != nil {
		r.logger.Error("initial route sync failed", logger.Error(err))
	}
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SyncOnce(ctx); err != nil {
				r.logger.Error("route sync failed", logger.Error(err))
			}
		}
	}
}
