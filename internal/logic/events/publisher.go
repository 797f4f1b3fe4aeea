// Package events 终态结果的 Kafka 事件
package events

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"sol-txflow/internal/consts"
	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/mq"
	"sol-txflow/internal/pkg/types"
	"sol-txflow/internal/pkg/utils"
)

// 事件类型前缀（EncodeEvent 的前 4 字节）
const (
	EventTypeOutcome uint32 = 1
)

// 批量较小时串行编码
const parallelEncodeThreshold = 64

type Option struct {
	Topic          string
	Partitions     int
	MessageTimeout time.Duration
}

// Publisher 实现 outcome.Publisher
type Publisher struct {
	producer mq.Producer
	opt      Option
}

var _ outcome.Publisher = (*Publisher)(nil)

func NewPublisher(producer mq.Producer, opt Option) *Publisher {
	if opt.Partitions <= 0 {
		opt.Partitions = 1
	}
	if opt.MessageTimeout <= 0 {
		opt.MessageTimeout = 3 * time.Second
	}
	return &Publisher{producer: producer, opt: opt}
}

// Publish 同一签名固定落在同一分区
func (p *Publisher) Publish(ctx context.Context, records []*outcome.Record) error {
	workers := 1
	if len(records) >= parallelEncodeThreshold {
		workers = consts.CpuCount
	}
	encoded := utils.ParallelMap(records, workers, func(rec *outcome.Record) *mq.KafkaJob {
		value, err := EncodeOutcome(rec)
		if err != nil {
			logger.Errorf("[Events] encode %s failed: %v", rec.Signature, err)
			return nil
		}
		return &mq.KafkaJob{
			Topic:     p.opt.Topic,
			Partition: p.partition(rec.Signature),
			Key:       []byte(rec.Signature),
			Value:     value,
		}
	})
	jobs := make([]*mq.KafkaJob, 0, len(encoded))
	for _, job := range encoded {
		if job != nil {
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	_, failed := mq.SendKafkaJobs(ctx, p.producer, jobs, p.opt.MessageTimeout)
	if len(failed) > 0 {
		return fmt.Errorf("%d/%d outcome events not delivered, first: %w", len(failed), len(jobs), failed[0].Err)
	}
	return nil
}

func (p *Publisher) partition(signature string) int32 {
	sig, err := types.SignatureFromBase58(signature)
	if err != nil {
		return 0
	}
	return int32(utils.PartitionHashBytes(sig[:], uint32(p.opt.Partitions)))
}

// EncodeOutcome 结果编码为 structpb.Struct，带事件类型前缀
func EncodeOutcome(rec *outcome.Record) ([]byte, error) {
	fields := map[string]any{
		"signature":   rec.Signature,
		"outcome":     rec.Outcome,
		"commitment":  rec.Commitment,
		"slot":        rec.Slot,
		"fee":         rec.Fee,
		"elapsed_ms":  rec.ElapsedMs,
		"recorded_at": rec.RecordedAt.UnixMilli(),
	}
	if rec.BlockTime != nil {
		fields["block_time"] = *rec.BlockTime
	}
	if rec.ComputeUnits != nil {
		fields["compute_units"] = *rec.ComputeUnits
	}
	if rec.Error != "" {
		fields["error"] = rec.Error
		fields["error_raw"] = rec.ErrorRaw
	}
	if len(rec.Logs) > 0 {
		logs := make([]any, len(rec.Logs))
		for i, l := range rec.Logs {
			logs[i] = l
		}
		fields["logs"] = logs
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build outcome struct: %w", err)
	}
	return utils.EncodeEvent(EventTypeOutcome, msg)
}
