package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer kafka.Producer 的发送子集，便于替换
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

var _ Producer = (*kafka.Producer)(nil)

// KafkaJob 表示一条需要发送的 Kafka 消息
type KafkaJob struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte
}

// KafkaSendResult 表示每条消息的发送结果
type KafkaSendResult struct {
	Job *KafkaJob
	Err error
}

// SendKafkaJobs 发送一批消息并等待回执，timeout 作用于整批。
// 回执通道按批大小缓冲，超时后迟到的回执不会阻塞 librdkafka 的回调。
func SendKafkaJobs(
	ctx context.Context,
	producer Producer,
	jobs []*KafkaJob,
	timeout time.Duration,
) (ok []*KafkaJob, failed []KafkaSendResult) {
	if len(jobs) == 0 {
		return nil, nil
	}

	deliveries := make(chan kafka.Event, len(jobs))
	pending := make(map[*KafkaJob]struct{}, len(jobs))
	for _, job := range jobs {
		err := producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &job.Topic, Partition: job.Partition},
			Key:            job.Key,
			Value:          job.Value,
			Opaque:         job,
		}, deliveries)
		if err != nil {
			failed = append(failed, KafkaSendResult{Job: job, Err: fmt.Errorf("produce error: %w", err)})
			continue
		}
		pending[job] = struct{}{}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(pending) > 0 {
		select {
		case e := <-deliveries:
			msg, isMsg := e.(*kafka.Message)
			if !isMsg {
				continue
			}
			job, _ := msg.Opaque.(*KafkaJob)
			if _, waiting := pending[job]; !waiting {
				continue
			}
			delete(pending, job)
			if msg.TopicPartition.Error != nil {
				failed = append(failed, KafkaSendResult{Job: job, Err: msg.TopicPartition.Error})
			} else {
				ok = append(ok, job)
			}
		case <-timer.C:
			return ok, failAll(failed, pending, fmt.Errorf("delivery timeout (>%v)", timeout))
		case <-ctx.Done():
			return ok, failAll(failed, pending, fmt.Errorf("ctx cancelled: %w", ctx.Err()))
		}
	}
	return ok, failed
}

func failAll(failed []KafkaSendResult, pending map[*KafkaJob]struct{}, err error) []KafkaSendResult {
	for job := range pending {
		failed = append(failed, KafkaSendResult{Job: job, Err: err})
	}
	return failed
}
