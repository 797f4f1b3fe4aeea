package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
)

const testTopic = "test-topic"

// fakeProducer 按 topic 决定投递结果
type fakeProducer struct {
	mu        sync.Mutex
	produced  []*kafka.Message
	produceEr error
	deliverEr map[string]error
	hold      map[string]bool // 不回执，模拟超时
}

func (p *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	if p.produceEr != nil {
		return p.produceEr
	}
	p.mu.Lock()
	p.produced = append(p.produced, msg)
	p.mu.Unlock()

	topic := *msg.TopicPartition.Topic
	if p.hold[topic] {
		return nil
	}
	delivered := *msg
	delivered.TopicPartition.Error = p.deliverEr[topic]
	go func() { deliveryChan <- &delivered }()
	return nil
}

func TestSendKafkaJobs_Delivered(t *testing.T) {
	producer := &fakeProducer{}
	jobs := []*KafkaJob{
		{Topic: testTopic, Key: []byte("a"), Value: []byte("test message 1")},
		{Topic: testTopic, Value: []byte("test message 2")},
	}

	ok, failed := SendKafkaJobs(context.Background(), producer, jobs, time.Second)
	assert.Len(t, ok, 2)
	assert.Empty(t, failed)
	assert.Len(t, producer.produced, 2)
}

func TestSendKafkaJobs_Failures(t *testing.T) {
	producer := &fakeProducer{
		deliverEr: map[string]error{"broken": kafka.NewError(kafka.ErrMsgTimedOut, "timed out", false)},
		hold:      map[string]bool{"slow": true},
	}
	jobs := []*KafkaJob{
		{Topic: testTopic, Value: []byte("ok")},
		{Topic: "broken", Value: []byte("x")},
		{Topic: "slow", Value: []byte("y")},
	}

	ok, failed := SendKafkaJobs(context.Background(), producer, jobs, 20*time.Millisecond)
	assert.Len(t, ok, 1)
	assert.Len(t, failed, 2)
	for _, f := range failed {
		assert.Contains(t, []string{"broken", "slow"}, f.Job.Topic)
		assert.Error(t, f.Err)
	}
}

func TestSendKafkaJobs_ProduceErrorAndCancel(t *testing.T) {
	_, failed := SendKafkaJobs(context.Background(), &fakeProducer{produceEr: errors.New("queue full")},
		[]*KafkaJob{{Topic: testTopic}}, time.Second)
	assert.Len(t, failed, 1)
	assert.ErrorContains(t, failed[0].Err, "queue full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, failed = SendKafkaJobs(ctx, &fakeProducer{hold: map[string]bool{testTopic: true}},
		[]*KafkaJob{{Topic: testTopic}}, time.Second)
	assert.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, context.Canceled)
}

func TestSendKafkaJobs_Empty(t *testing.T) {
	ok, failed := SendKafkaJobs(context.Background(), &fakeProducer{}, nil, time.Second)
	assert.Empty(t, ok)
	assert.Empty(t, failed)
}
