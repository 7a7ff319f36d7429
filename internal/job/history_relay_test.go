package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/mq"
	"pointsystem/internal/metrics"
	"pointsystem/internal/model"
	"pointsystem/pkg/idgen"

	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMessage struct {
	topic, key string
	value      []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	sent     []sentMessage
	attempts int
}

func (f *fakePublisher) SendMessage(topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, sentMessage{topic: topic, key: key, value: value})
	return nil
}

func (f *fakePublisher) snapshot() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newRelay(t *testing.T, p Publisher, cfg config.RelayConfig, m *metrics.Metrics) *HistoryRelay {
	t.Helper()
	numbers, err := idgen.NewSnowflake(1)
	require.NoError(t, err)
	return NewHistoryRelay(p, "point-history", cfg, numbers, zap.NewNop(), m)
}

func transaction(id, userID, amount int64) *model.PointTransaction {
	return &model.PointTransaction{
		ID:            id,
		TransactionNo: fmt.Sprintf("CHG%d", id),
		UserID:        userID,
		Amount:        amount,
		Type:          model.TransactionTypeCharge,
		BalanceAfter:  amount,
		CreatedAt:     time.UnixMilli(1700000000000 + id),
	}
}

func TestHistoryRelay_PublishesInOrder(t *testing.T) {
	p := &fakePublisher{}
	r := newRelay(t, p, config.RelayConfig{Interval: 5 * time.Millisecond, BatchSize: 2, MaxRetryCount: 3, BufferSize: 16}, nil)

	go r.Start(context.Background())
	for i := int64(1); i <= 5; i++ {
		r.Enqueue(transaction(i, 7, i*10))
	}

	require.Eventually(t, func() bool { return len(p.snapshot()) == 5 }, time.Second, 5*time.Millisecond)
	r.Stop()

	for i, msg := range p.snapshot() {
		assert.Equal(t, "point-history", msg.topic)
		assert.Equal(t, "7", msg.key)

		var event model.PointEvent
		require.NoError(t, json.Unmarshal(msg.value, &event))
		assert.Equal(t, int64(i+1), event.TransactionID)
		assert.Equal(t, int64(7), event.UserID)
		assert.Equal(t, int64(i+1)*10, event.Amount)
		assert.Equal(t, model.TransactionTypeCharge, event.Type)
		assert.Equal(t, 1700000000000+int64(i+1), event.TimeMillis)
		assert.NotEmpty(t, event.EventNo)
	}
}

func TestHistoryRelay_RetriesWithoutReordering(t *testing.T) {
	p := &fakePublisher{failures: 2}
	m := metrics.New(prometheus.NewRegistry())
	r := newRelay(t, p, config.RelayConfig{Interval: 5 * time.Millisecond, BatchSize: 10, MaxRetryCount: 5, BufferSize: 16}, m)

	r.Enqueue(transaction(1, 1, 10))
	r.Enqueue(transaction(2, 1, 20))
	go r.Start(context.Background())

	require.Eventually(t, func() bool { return len(p.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	r.Stop()

	sent := p.snapshot()
	var first, second model.PointEvent
	require.NoError(t, json.Unmarshal(sent[0].value, &first))
	require.NoError(t, json.Unmarshal(sent[1].value, &second))
	assert.Equal(t, int64(1), first.TransactionID)
	assert.Equal(t, int64(2), second.TransactionID)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayMessagesTotal.WithLabelValues(relayRetry)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayMessagesTotal.WithLabelValues(relaySent)))
}

func TestHistoryRelay_DropsAfterMaxRetries(t *testing.T) {
	p := &fakePublisher{failures: 2}
	m := metrics.New(prometheus.NewRegistry())
	r := newRelay(t, p, config.RelayConfig{Interval: 5 * time.Millisecond, BatchSize: 10, MaxRetryCount: 2, BufferSize: 16}, m)

	r.Enqueue(transaction(1, 1, 10))
	r.Enqueue(transaction(2, 1, 20))
	go r.Start(context.Background())

	require.Eventually(t, func() bool { return len(p.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	r.Stop()

	var event model.PointEvent
	require.NoError(t, json.Unmarshal(p.snapshot()[0].value, &event))
	assert.Equal(t, int64(2), event.TransactionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayMessagesTotal.WithLabelValues(relayFailed)))
}

func TestHistoryRelay_DropsWhenBufferFull(t *testing.T) {
	p := &fakePublisher{}
	m := metrics.New(prometheus.NewRegistry())
	r := newRelay(t, p, config.RelayConfig{Interval: time.Hour, BatchSize: 10, MaxRetryCount: 1, BufferSize: 2}, m)

	for i := int64(1); i <= 4; i++ {
		r.Enqueue(transaction(i, 1, 1))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RelayMessagesTotal.WithLabelValues(relayDropped)))

	go r.Start(context.Background())
	r.Stop()

	// the final flush sends what was buffered
	assert.Len(t, p.snapshot(), 2)
}

func TestHistoryRelay_FlushOnContextDone(t *testing.T) {
	p := &fakePublisher{}
	r := newRelay(t, p, config.RelayConfig{Interval: time.Hour, BatchSize: 1, MaxRetryCount: 1, BufferSize: 8}, nil)

	for i := int64(1); i <= 3; i++ {
		r.Enqueue(transaction(i, 1, 1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(finished)
	}()
	cancel()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("relay did not exit")
	}
	assert.Len(t, p.snapshot(), 3)
}

func TestHistoryRelay_WithSaramaProducer(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event model.PointEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.UserID != 9 || event.Amount != 30 {
			return errors.New("unexpected event")
		}
		return nil
	})

	producer := mq.NewProducer(sp)
	r := newRelay(t, producer, config.RelayConfig{Interval: time.Hour, BatchSize: 10, MaxRetryCount: 1, BufferSize: 8}, nil)
	r.Enqueue(transaction(1, 9, 30))

	go r.Start(context.Background())
	r.Stop()

	require.NoError(t, producer.Close())
}
