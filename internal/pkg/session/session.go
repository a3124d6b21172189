// Package session runs one scan: it owns the scanner handle, feeds the pipeline and drains
// outcomes to the publishers through a bounded queue.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/kegscale-reader/internal/pkg/contxt"
	"github.com/anicoll/kegscale-reader/internal/pkg/model"
	"github.com/anicoll/kegscale-reader/internal/pkg/scanner"
)

const (
	DefaultQueueSize = 256

	maxBatch       = 32
	publishTimeout = 10 * time.Second
)

type advertisementScanner interface {
	Scan(ctx context.Context, handle scanner.Handler) error
}

type advertisementPipeline interface {
	OnAdvertisement(adv model.Advertisement) (model.Outcome, bool)
}

type publisher interface {
	RegisterScales(ctx context.Context, scales []model.ScaleDescriptor)
	Publish(ctx context.Context, outcomes ...model.Outcome) int
}

// Stats are cumulative counters for one session.
type Stats struct {
	Seen    uint64 `json:"seen"`
	Matched uint64 `json:"matched"`
	Decoded uint64 `json:"decoded"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	// Published counts outcomes accepted by at least one sink.
	Published uint64 `json:"published"`
}

type Session struct {
	scales    []model.ScaleDescriptor
	pipeline  advertisementPipeline
	scanner   advertisementScanner
	publisher publisher
	queue     chan model.Outcome
	logger    *zap.Logger

	seen, matched, decoded, failed, dropped, published atomic.Uint64
}

func New(scales []model.ScaleDescriptor, p advertisementPipeline, s advertisementScanner, pub publisher, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		scales:    scales,
		pipeline:  p,
		scanner:   s,
		publisher: pub,
		queue:     make(chan model.Outcome, queueSize),
		logger:    zap.L(),
	}
}

// Run scans until ctx is cancelled or the scanner finishes, then drains queued outcomes.
// A cancelled ctx is a clean stop and returns nil.
func (s *Session) Run(ctx context.Context) error {
	if len(s.scales) == 0 {
		s.logger.Warn("no scales configured, every advertisement will be ignored")
	} else {
		s.logger.Info("starting scan session", zap.Int("scales", len(s.scales)))
	}

	registerCtx, cancel := contxt.NewContext(ctx, publishTimeout)
	s.publisher.RegisterScales(registerCtx, s.scales)
	cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer close(s.queue)
		return s.scanner.Scan(egCtx, s.handle)
	})
	eg.Go(func() error {
		s.dispatch(ctx)
		return nil
	})

	err := eg.Wait()
	stats := s.Stats()
	s.logger.Info("scan session finished",
		zap.Uint64("seen", stats.Seen),
		zap.Uint64("matched", stats.Matched),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped),
	)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// handle is the scanner callback. It runs the pipeline and never blocks: when the queue is
// full the outcome is dropped and counted.
func (s *Session) handle(adv model.Advertisement) {
	s.seen.Add(1)
	outcome, ok := s.pipeline.OnAdvertisement(adv)
	if !ok {
		return
	}
	s.matched.Add(1)
	if outcome.Failed() {
		s.failed.Add(1)
	} else {
		s.decoded.Add(1)
	}

	select {
	case s.queue <- outcome:
	default:
		s.dropped.Add(1)
		s.logger.Warn("outcome queue full, dropping", zap.String("address", outcome.Address))
	}
}

func (s *Session) dispatch(ctx context.Context) {
	batch := make([]model.Outcome, 0, maxBatch)
	for o := range s.queue {
		batch = append(batch[:0], o)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		pubCtx, cancel := contxt.NewContext(ctx, publishTimeout)
		n := s.publisher.Publish(pubCtx, batch...)
		cancel()
		s.published.Add(uint64(n))
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		Seen:      s.seen.Load(),
		Matched:   s.matched.Load(),
		Decoded:   s.decoded.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Published: s.published.Load(),
	}
}

// LogStats writes the current counters; scheduled periodically by the caller.
func (s *Session) LogStats() {
	stats := s.Stats()
	s.logger.Info("scan stats",
		zap.Uint64("seen", stats.Seen),
		zap.Uint64("matched", stats.Matched),
		zap.Uint64("decoded", stats.Decoded),
		zap.Uint64("failed", stats.Failed),
		zap.Uint64("dropped", stats.Dropped),
		zap.Uint64("published", stats.Published),
	)
}
