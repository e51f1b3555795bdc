package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	applogger "TradeCast/pkg/logger"
)

// Broadcaster pushes committed fan-out events onto the broadcast channel
// asynchronously so ingestion latency never includes broker round trips.
// Publish failures are retried with jittered backoff and then logged; the
// signal row is already durable, so a lost event is recoverable via sync.
type Broadcaster struct {
	publisher  domrepo.EventPublisher
	metrics    domrepo.Metrics
	l          *applogger.Logger
	ch         chan *models.FanoutEvent
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopCh     chan struct{}
}

type BroadcasterConfig struct {
	QueueSize  int
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

func NewBroadcaster(publisher domrepo.EventPublisher, metrics domrepo.Metrics, cfg BroadcasterConfig, l *applogger.Logger) *Broadcaster {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 100 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = 2 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Broadcaster{
		publisher:  publisher,
		metrics:    metrics,
		l:          l,
		ch:         make(chan *models.FanoutEvent, cfg.QueueSize),
		retryMax:   cfg.RetryMax,
		backoffMin: cfg.BackoffMin,
		backoffMax: cfg.BackoffMax,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the single publish worker. One worker keeps the per-tier
// publish order identical to enqueue order.
func (b *Broadcaster) Start() {
	b.wg.Add(1)
	go b.run()
}

// Enqueue accepts an event without blocking the caller. A full queue drops
// the event and logs it; pull-based sync covers the gap.
func (b *Broadcaster) Enqueue(ev *models.FanoutEvent) {
	select {
	case b.ch <- ev:
	default:
		b.metrics.RecordError("broadcast_queue_full")
		b.l.Error("broadcast queue full, dropping event",
			applogger.String("signal_id", ev.SignalID),
		)
	}
}

// Stop drains in-flight work and shuts the worker down.
func (b *Broadcaster) Stop(ctx context.Context) error {
	var err error
	b.stopOnce.Do(func() {
		close(b.stopCh)
		close(b.ch)

		done := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

func (b *Broadcaster) run() {
	defer b.wg.Done()
	for ev := range b.ch {
		b.publishWithRetry(ev)
	}
}

func (b *Broadcaster) publishWithRetry(ev *models.FanoutEvent) {
	var err error
	for attempt := 1; attempt <= b.retryMax; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = b.publisher.PublishEvent(ctx, ev)
		cancel()
		if err == nil {
			return
		}
		b.metrics.RecordError("broadcast_publish")

		sleep := b.backoffMin * time.Duration(1<<uint(attempt-1))
		if sleep > b.backoffMax {
			sleep = b.backoffMax
		}
		sleep -= time.Duration(rand.Int63n(int64(sleep) / 2))
		select {
		case <-time.After(sleep):
		case <-b.stopCh:
			b.l.Error("broadcast abandoned on shutdown",
				applogger.String("signal_id", ev.SignalID),
				applogger.Error(err),
			)
			return
		}
	}
	b.l.Error("broadcast failed after retries",
		applogger.String("signal_id", ev.SignalID),
		applogger.String("risk_tier", string(ev.RiskTier)),
		applogger.Int("attempts", b.retryMax),
		applogger.Error(err),
	)
}
