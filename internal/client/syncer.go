package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
	"github.com/dealerhub/announce-api/pkg/jobs"
)

type receiptPoster interface {
	PostViewed(ctx context.Context, id string) error
	PostAcknowledged(ctx context.Context, id string) error
}

// Syncer propagates local viewed and acknowledged state to the gateway
// without blocking the display state machine. Calls are fire-and-forget with
// zero automatic retries: a failed sync is logged and dropped, never rolled
// back locally. A later fetch reconciles, and the server-side mutations are
// idempotent.
type Syncer struct {
	gateway receiptPoster
	logger  *zap.Logger
	queue   *jobs.Queue
}

// NewSyncer builds a syncer dispatching on a background worker queue.
func NewSyncer(gateway receiptPoster, logger *zap.Logger, workers, buffer int) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Syncer{gateway: gateway, logger: logger}
	s.queue = jobs.NewQueue("receipt-sync", s.dispatch, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: buffer,
		MaxRetries: 0,
		Logger:     logger,
	})
	return s
}

// Start launches the sync workers.
func (s *Syncer) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers. Outcomes of in-flight calls are ignored.
func (s *Syncer) Stop() {
	s.queue.Stop()
}

// SyncViewed schedules a best-effort view receipt for the id.
func (s *Syncer) SyncViewed(id string) {
	s.enqueue(id, models.ReceiptKindView)
}

// SyncAcknowledged schedules a best-effort acknowledgment receipt for the id.
func (s *Syncer) SyncAcknowledged(id string) {
	s.enqueue(id, models.ReceiptKindAcknowledge)
}

func (s *Syncer) enqueue(id string, kind models.ReceiptKind) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      fmt.Sprintf("%s-%s", kind, id),
		Type:    string(kind),
		Payload: id,
	})
	if err != nil {
		s.logger.Warn("receipt sync not scheduled",
			zap.String("announcement_id", id),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *Syncer) dispatch(ctx context.Context, job jobs.Job) error {
	id, _ := job.Payload.(string)
	var err error
	switch models.ReceiptKind(job.Type) {
	case models.ReceiptKindAcknowledge:
		err = s.gateway.PostAcknowledged(ctx, id)
	default:
		err = s.gateway.PostViewed(ctx, id)
	}
	if err != nil {
		s.logger.Warn("receipt sync failed",
			zap.String("announcement_id", id),
			zap.String("kind", job.Type),
			zap.Error(err))
		return err
	}
	return nil
}
