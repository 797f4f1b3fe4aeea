package events

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/pkg/types"
)

type fakeProducer struct {
	mu   sync.Mutex
	msgs []*kafka.Message
	fail bool
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, msg)
	p.mu.Unlock()
	delivered := *msg
	if p.fail {
		delivered.TopicPartition.Error = kafka.NewError(kafka.ErrAllBrokersDown, "brokers down", false)
	}
	go func() { deliveryChan <- &delivered }()
	return nil
}

func sigString(b byte) string {
	var s types.Signature
	for i := range s {
		s[i] = b
	}
	return s.String()
}

func TestEncodeOutcome(t *testing.T) {
	bt := int64(1700000000)
	rec := &outcome.Record{
		Signature:  sigString(1),
		Outcome:    "FAILED_EXECUTION",
		Commitment: "confirmed",
		Slot:       12,
		BlockTime:  &bt,
		Error:      "boom",
		Logs:       []string{"a", "b"},
		RecordedAt: time.UnixMilli(5000),
	}
	data, err := EncodeOutcome(rec)
	require.NoError(t, err)
	assert.Equal(t, EventTypeOutcome, binary.LittleEndian.Uint32(data[:4]))

	var msg structpb.Struct
	require.NoError(t, proto.Unmarshal(data[4:], &msg))
	m := msg.AsMap()
	assert.Equal(t, "FAILED_EXECUTION", m["outcome"])
	assert.Equal(t, float64(12), m["slot"])
	assert.Equal(t, float64(bt), m["block_time"])
	assert.Equal(t, []any{"a", "b"}, m["logs"])
	assert.Equal(t, float64(5000), m["recorded_at"])
	_, hasUnits := m["compute_units"]
	assert.False(t, hasUnits)
}

func TestPublish(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, Option{Topic: "txflow.outcome", Partitions: 4})

	records := []*outcome.Record{
		{Signature: sigString(1), Outcome: "SUCCEEDED"},
		{Signature: sigString(2), Outcome: "TIMED_OUT"},
	}
	require.NoError(t, p.Publish(context.Background(), records))
	require.Len(t, producer.msgs, 2)
	for _, msg := range producer.msgs {
		assert.Equal(t, "txflow.outcome", *msg.TopicPartition.Topic)
		assert.Less(t, msg.TopicPartition.Partition, int32(4))
	}
	assert.Equal(t, p.partition(sigString(1)), p.partition(sigString(1)))
	assert.Equal(t, int32(0), p.partition("not-a-signature"))
}

func TestPublish_DeliveryFailure(t *testing.T) {
	p := NewPublisher(&fakeProducer{fail: true}, Option{Topic: "t"})
	err := p.Publish(context.Background(), []*outcome.Record{{Signature: sigString(3), Outcome: "SUCCEEDED"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1/1")
}

func TestPublish_LargeBatchEncodedInParallel(t *testing.T) {
	producer := &fakeProducer{}
	p := NewPublisher(producer, Option{Topic: "t", Partitions: 8})

	records := make([]*outcome.Record, 0, 100)
	for i := 0; i < 100; i++ {
		records = append(records, &outcome.Record{Signature: sigString(byte(i + 1)), Outcome: "SUCCEEDED"})
	}
	require.NoError(t, p.Publish(context.Background(), records))

	keys := map[string]bool{}
	for _, msg := range producer.msgs {
		keys[string(msg.Key)] = true
	}
	assert.Len(t, keys, 100)
}
