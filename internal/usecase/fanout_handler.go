package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradeCast/internal/domain/models"
	domrepo "TradeCast/internal/domain/repository"
	"TradeCast/internal/gateway"
	pkgkafka "TradeCast/pkg/kafka"
	applogger "TradeCast/pkg/logger"
)

// Pusher is the slice of the gateway hub the fan-out path needs.
type Pusher interface {
	Push(group string, data []byte) int
}

// FanoutHandler consumes fan-out events, creates delivery records for every
// matched subscriber, and pushes the signal to connected clients. Delivery
// records are written before any push attempt so tracking stays durable even
// when the realtime leg fails entirely.
type FanoutHandler struct {
	topic       string
	signals     domrepo.SignalStore
	deliveries  domrepo.DeliveryStore
	subscribers domrepo.SubscriberStore
	pusher      Pusher
	audit       domrepo.AuditSink
	metrics     domrepo.Metrics
	l           *applogger.Logger
}

func NewFanoutHandler(
	topic string,
	signals domrepo.SignalStore,
	deliveries domrepo.DeliveryStore,
	subscribers domrepo.SubscriberStore,
	pusher Pusher,
	audit domrepo.AuditSink,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *FanoutHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &FanoutHandler{
		topic:       topic,
		signals:     signals,
		deliveries:  deliveries,
		subscribers: subscribers,
		pusher:      pusher,
		audit:       audit,
		metrics:     metrics,
		l:           l,
	}
}

func (h *FanoutHandler) Topic() string { return h.topic }

// Handle processes one fan-out event. The event carries only ids; the
// canonical signal is re-fetched so consumers never act on stale payloads.
func (h *FanoutHandler) Handle(ctx context.Context, b []byte) error {
	start := time.Now()

	var ev models.FanoutEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("fanout_unmarshal")
		return err
	}

	sig, err := h.signals.Get(ctx, ev.SignalID)
	if err != nil {
		h.metrics.RecordError("fanout_fetch")
		return err
	}
	// a signal archived or taken between publish and consume is not pushed
	if sig.Status != models.StatusActive {
		h.l.Info("skipping fanout for non-active signal",
			applogger.String("id", sig.ID),
			applogger.String("status", string(sig.Status)),
		)
		return nil
	}

	subs, err := h.subscribers.ActiveByTier(ctx, sig.RiskTier)
	if err != nil {
		h.metrics.RecordError("fanout_subscribers")
		return err
	}

	userIDs := make([]string, 0, len(subs))
	for _, sub := range subs {
		userIDs = append(userIDs, sub.UserID)
	}
	if err := h.deliveries.EnsureRecords(ctx, sig.ID, userIDs); err != nil {
		h.metrics.RecordError("fanout_ensure_records")
		return err
	}
	h.metrics.RecordFanout(string(sig.RiskTier), len(userIDs))

	payload, err := json.Marshal(models.PushMessage{Event: models.PushEventSignalNew, Signal: sig})
	if err != nil {
		h.metrics.RecordError("fanout_marshal")
		return err
	}

	delivered := 0
	for _, uid := range userIDs {
		if h.pusher.Push(gateway.UserGroup(uid), payload) == 0 {
			continue // offline, sync will catch them up
		}
		delivered++
		if err := h.deliveries.MarkDelivered(ctx, uid, sig.ID); err != nil {
			h.metrics.RecordError("fanout_mark_delivered")
			h.l.Error("mark delivered failed",
				applogger.String("signal_id", sig.ID),
				applogger.String("user_id", uid),
				applogger.Error(err),
			)
			continue
		}
		h.appendAudit(sig.ID, uid, "push")
	}

	h.metrics.RecordPush(string(sig.RiskTier), delivered)
	h.metrics.RecordLatency("fanout_seconds", time.Since(start).Seconds())
	h.l.Info("fanout complete",
		applogger.String("signal_id", sig.ID),
		applogger.String("risk_tier", string(sig.RiskTier)),
		applogger.Int("matched", len(userIDs)),
		applogger.Int("pushed", delivered),
	)
	return nil
}

// appendAudit is best effort; audit outages never affect delivery.
func (h *FanoutHandler) appendAudit(signalID, userID, event string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.audit.Append(ctx, signalID, userID, event, time.Now().UTC()); err != nil {
		h.metrics.RecordError("audit_append")
	}
}

var _ pkgkafka.MessageHandler = (*FanoutHandler)(nil)
