// Package jobs runs background maintenance for the negotiator.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/internal/metrics"
	"github.com/Checker-Finance/private-otc/internal/store"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

// ExpirySweeper periodically moves active requests and quotes past their
// deadline to expired. Reads already expire rows lazily; the sweep keeps
// stored status honest for rows nobody reads.
type ExpirySweeper struct {
	logger   *zap.Logger
	store    store.ExpiryStore
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewExpirySweeper constructs a sweeper that runs every interval.
func NewExpirySweeper(logger *zap.Logger, st store.ExpiryStore, interval time.Duration) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		logger:   logger,
		store:    st,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop or ctx cancellation.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry_sweeper.started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stopCh:
			s.logger.Info("expiry_sweeper.stopped (manual stop)")
			return
		case <-ctx.Done():
			s.logger.Info("expiry_sweeper.stopped (context canceled)")
			return
		}
	}
}

// Stop halts the sweeper.
func (s *ExpirySweeper) Stop() {
	close(s.stopCh)
}

// RunOnce executes one sweep and returns how many requests and quotes expired.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (requests, quotes int) {
	start := time.Now()
	now := s.now()

	reqIDs, err := s.store.ExpireQuoteRequests(ctx, now)
	if err != nil {
		s.logger.Error("expiry_sweeper.requests_failed", zap.Error(err))
	}
	for range reqIDs {
		metrics.IncTransition(string(model.RequestExpired))
	}

	quoteIDs, err := s.store.ExpireQuotes(ctx, now)
	if err != nil {
		s.logger.Error("expiry_sweeper.quotes_failed", zap.Error(err))
	}

	if len(reqIDs) > 0 || len(quoteIDs) > 0 {
		s.logger.Info("expiry_sweeper.success",
			zap.Strings("quote_request_ids", reqIDs),
			zap.Int("quotes", len(quoteIDs)),
			zap.Duration("duration", time.Since(start)))
	}
	return len(reqIDs), len(quoteIDs)
}
