package kafka

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func newPartitionMessage(topic string, partition, seq int) *message {
	return &message{
		topic: topic,
		data:  []byte(fmt.Sprintf("%d:%d", partition, seq)),
		km:    kafka.Message{Topic: topic, Partition: partition, Offset: int64(seq)},
	}
}

// orderHandler records the sequence numbers it sees, keyed by the partition
// label embedded in the payload ("<partition>:<seq>").
type orderHandler struct {
	topic string

	mu   sync.Mutex
	seen map[string][]int
}

func newOrderHandler(topic string) *orderHandler {
	return &orderHandler{topic: topic, seen: make(map[string][]int)}
}

func (h *orderHandler) Topic() string { return h.topic }

func (h *orderHandler) Handle(_ context.Context, data []byte) error {
	part, rawSeq, ok := strings.Cut(string(data), ":")
	if !ok {
		return fmt.Errorf("malformed payload %q", data)
	}
	seq, err := strconv.Atoi(rawSeq)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.seen[part] = append(h.seen[part], seq)
	h.mu.Unlock()
	return nil
}

func (h *orderHandler) sequences() map[string][]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]int, len(h.seen))
	for part, seqs := range h.seen {
		out[part] = append([]int(nil), seqs...)
	}
	return out
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	base := []ConsumerOption{
		WithConsumerBrokers([]string{"127.0.0.1:9092"}),
		WithConsumerBufferSize(64),
	}
	c, err := NewConsumer(append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestConsumerPreservesPartitionOrderAcrossWorkers(t *testing.T) {
	const (
		topic      = "signals.fanout"
		partitions = 4
		perPart    = 2500
	)

	c := newTestConsumer(t, WithConsumerWorkers(8))
	handler := newOrderHandler(topic)
	c.RegisterHandler(handler)
	c.startWorkers()

	// Interleave partitions the way concurrent partition readers would.
	for seq := 0; seq < perPart; seq++ {
		for part := 0; part < partitions; part++ {
			msg := newPartitionMessage(topic, part, seq)
			c.route(topic, part) <- msg
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	seqs := handler.sequences()
	require.Len(t, seqs, partitions)
	for part, got := range seqs {
		require.Len(t, got, perPart, "partition %s", part)
		for i, seq := range got {
			require.Equalf(t, i, seq, "partition %s handled out of order at index %d", part, i)
		}
	}
}

func TestConsumerRoutesPartitionToSingleWorker(t *testing.T) {
	c := newTestConsumer(t, WithConsumerWorkers(8))

	for part := 0; part < 16; part++ {
		first := c.route("signals.fanout", part)
		for i := 0; i < 10; i++ {
			require.True(t, first == c.route("signals.fanout", part), "partition %d remapped", part)
		}
	}

	// Different topics with the same partition number may map anywhere, but
	// the mapping has to stay stable per topic too.
	require.True(t, c.route("signals.dlq", 0) == c.route("signals.dlq", 0))
}
