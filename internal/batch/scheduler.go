package batch

import (
	"anchor/internal/domain"
	"context"
	"errors"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type Processor interface {
	ProcessBatch(ctx context.Context) (*domain.BatchResult, error)
}

type PendingCounter interface {
	Stats(ctx context.Context) (domain.QueueStats, error)
}

// Scheduler triggers a batch every interval once enough intents are pending.
// A failed cycle is only logged; the next tick is the retry.
type Scheduler struct {
	log       logger.Logger
	processor Processor
	counter   PendingCounter
	interval  time.Duration
	minSize   int
}

func NewScheduler(log logger.Logger, processor Processor, counter PendingCounter, interval time.Duration, minSize int) (*Scheduler, error) {
	if processor == nil {
		return nil, errors.New("processor is required to the scheduler")
	}
	if counter == nil {
		return nil, errors.New("pending counter is required to the scheduler")
	}

	// sane defaults
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if minSize <= 0 {
		minSize = 1
	}

	return &Scheduler{
		log:       log,
		processor: processor,
		counter:   counter,
		interval:  interval,
		minSize:   minSize,
	}, nil
}

// Run blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Infof("Batch scheduler started, interval=%s min_batch_size=%d", s.interval, s.minSize)

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("Batch scheduler stopped")
			return
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs at most one cycle and reports whether a batch was produced
func (s *Scheduler) Tick(ctx context.Context) bool {
	stats, err := s.counter.Stats(ctx)
	if err != nil {
		s.log.Errorf("Failed to read queue stats, error=%v", err)
		return false
	}
	if stats.Pending < s.minSize {
		return false
	}

	res, err := s.processor.ProcessBatch(ctx)
	switch {
	case err == nil:
		s.log.Debugf("Scheduled batch %s done", res.BatchID)
		return true
	case errors.Is(err, domain.ErrNoPendingIntents), errors.Is(err, domain.ErrBatchInProgress):
		s.log.Debugf("Scheduled batch skipped: %v", err)
	default:
		s.log.Errorf("Scheduled batch failed, retry on next tick, error=%v", err)
	}
	return false
}
