package job

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/metrics"
	"pointsystem/internal/model"
	"pointsystem/pkg/idgen"

	"go.uber.org/zap"
)

// Relay results used as metric labels.
const (
	relaySent    = "sent"
	relayRetry   = "retry"
	relayFailed  = "failed"
	relayDropped = "dropped"
)

// Publisher sends one keyed message; *mq.Producer satisfies it.
type Publisher interface {
	SendMessage(topic, key string, value []byte) error
}

// HistoryRelay publishes committed point transactions. Enqueue only buffers;
// sending happens on the relay's own goroutine every interval, in enqueue
// order. A message that fails is retried on the next tick and blocks the ones
// behind it, so a user's events are never reordered. After MaxRetryCount
// failures the message is dropped.
type HistoryRelay struct {
	producer Publisher
	topic    string
	numbers  *idgen.Snowflake
	log      *zap.Logger
	metrics  *metrics.Metrics

	queue     chan *model.OutboxMessage
	pending   []*model.OutboxMessage
	interval  time.Duration
	batchSize int
	maxRetry  int

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewHistoryRelay creates a relay publishing to topic. Zero config values
// fall back to defaults.
func NewHistoryRelay(producer Publisher, topic string, cfg config.RelayConfig, numbers *idgen.Snowflake, log *zap.Logger, m *metrics.Metrics) *HistoryRelay {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	return &HistoryRelay{
		producer:  producer,
		topic:     topic,
		numbers:   numbers,
		log:       log,
		metrics:   m,
		queue:     make(chan *model.OutboxMessage, cfg.BufferSize),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		maxRetry:  cfg.MaxRetryCount,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Enqueue buffers trans for publishing. It never blocks; when the buffer is
// full the event is dropped and logged.
func (r *HistoryRelay) Enqueue(trans *model.PointTransaction) {
	event := model.PointEvent{
		EventNo:       r.numbers.Number(idgen.PrefixEvent),
		TransactionID: trans.ID,
		TransactionNo: trans.TransactionNo,
		UserID:        trans.UserID,
		Amount:        trans.Amount,
		Type:          trans.Type,
		BalanceAfter:  trans.BalanceAfter,
		TimeMillis:    trans.TimeMillis(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.log.Error("[HistoryRelay] encode event failed", zap.String("transaction_no", trans.TransactionNo), zap.Error(err))
		return
	}

	msg := &model.OutboxMessage{
		MessageKey: strconv.FormatInt(trans.UserID, 10),
		Topic:      r.topic,
		Payload:    payload,
		Status:     model.OutboxStatusPending,
		CreatedAt:  time.Now(),
	}
	select {
	case r.queue <- msg:
	default:
		r.metrics.RecordRelay(relayDropped)
		r.log.Warn("[HistoryRelay] buffer full, event dropped",
			zap.String("transaction_no", trans.TransactionNo), zap.Int64("user_id", trans.UserID))
	}
}

// Start runs until ctx is done or Stop is called, then makes one last
// attempt to send what is buffered.
func (r *HistoryRelay) Start(ctx context.Context) {
	defer close(r.done)
	r.log.Info("[HistoryRelay] started", zap.String("topic", r.topic), zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			r.log.Info("[HistoryRelay] context done, exiting")
			return
		case <-r.stopCh:
			r.flush()
			r.log.Info("[HistoryRelay] stopped")
			return
		case <-ticker.C:
			r.processPending()
		}
	}
}

// Stop ends Start and waits for the final flush.
func (r *HistoryRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}

// flush drains the buffer in batches until it is empty or a send fails.
func (r *HistoryRelay) flush() {
	for {
		before := len(r.pending) + len(r.queue)
		if before == 0 {
			return
		}
		r.processPending()
		if after := len(r.pending) + len(r.queue); after >= before {
			r.log.Warn("[HistoryRelay] unsent events discarded on shutdown", zap.Int("count", after))
			return
		}
	}
}

func (r *HistoryRelay) processPending() {
drain:
	for len(r.pending) < r.batchSize {
		select {
		case msg := <-r.queue:
			r.pending = append(r.pending, msg)
		default:
			break drain
		}
	}

	sent := 0
	for _, msg := range r.pending {
		if !r.sendMessage(msg) {
			break
		}
		sent++
	}
	r.pending = r.pending[sent:]
}

// sendMessage reports whether msg is finished with, sent or given up on.
func (r *HistoryRelay) sendMessage(msg *model.OutboxMessage) bool {
	err := r.producer.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		msg.Status = model.OutboxStatusSent
		r.metrics.RecordRelay(relaySent)
		r.log.Debug("[HistoryRelay] event sent", zap.String("topic", msg.Topic), zap.String("key", msg.MessageKey))
		return true
	}

	msg.RetryCount++
	if msg.RetryCount >= r.maxRetry {
		msg.Status = model.OutboxStatusFailed
		r.metrics.RecordRelay(relayFailed)
		r.log.Error("[HistoryRelay] event dropped after max retries",
			zap.String("key", msg.MessageKey), zap.Int("retry_count", msg.RetryCount), zap.Error(err))
		return true
	}

	r.metrics.RecordRelay(relayRetry)
	r.log.Warn("[HistoryRelay] send failed, will retry",
		zap.String("key", msg.MessageKey), zap.Int("retry_count", msg.RetryCount), zap.Error(err))
	return false
}
