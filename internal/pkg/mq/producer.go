package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/utils"
)

const (
	defaultBatchSize   = 32 * 1024
	defaultLingerMs    = 5
	defaultCompression = "lz4"
	metadataTimeoutMs  = 10_000
)

type KafkaProducerOption struct {
	ClientID    string // client.id 前缀，实际值追加本机 IP
	Brokers     string // 多个用英文逗号分隔
	BatchSize   int    // 字节
	LingerMs    int
	Compression string // none / gzip / snappy / lz4 / zstd

	// 为空时走 PLAINTEXT
	SecurityProtocol string
	SaslMechanism    string
	SaslUsername     string
	SaslPassword     string

	Topics []TopicSpec // 启动时不存在则自动创建
}

type TopicSpec struct {
	Topic      string
	Partitions int
}

// NewKafkaProducer 确保 topic 存在后创建幂等生产者
func NewKafkaProducer(cfg KafkaProducerOption) (*kafka.Producer, error) {
	if len(cfg.Topics) > 0 {
		if err := ensureTopics(cfg); err != nil {
			return nil, err
		}
	}
	producer, err := kafka.NewProducer(producerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return producer, nil
}

func ensureTopics(cfg KafkaProducerOption) error {
	adminConf := kafka.ConfigMap{"bootstrap.servers": cfg.Brokers}
	applySecurity(adminConf, cfg)
	admin, err := kafka.NewAdminClient(&adminConf)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	meta, err := admin.GetMetadata(nil, true, metadataTimeoutMs)
	if err != nil {
		return fmt.Errorf("get metadata: %w", err)
	}
	missing := missingTopics(meta.Topics, cfg.Topics, replicationFactor(len(meta.Brokers)))
	if len(missing) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, missing)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range results {
		// 并发启动时另一实例可能已创建
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Error)
		}
		logger.Infof("[mq] topic %s ready", r.Topic)
	}
	return nil
}

func replicationFactor(brokers int) int {
	if brokers > 1 {
		return 2
	}
	return 1
}

func missingTopics(existing map[string]kafka.TopicMetadata, wanted []TopicSpec, rf int) []kafka.TopicSpecification {
	var out []kafka.TopicSpecification
	for _, t := range wanted {
		if _, ok := existing[t.Topic]; ok {
			continue
		}
		partitions := t.Partitions
		if partitions <= 0 {
			partitions = 1
		}
		out = append(out, kafka.TopicSpecification{
			Topic:             t.Topic,
			NumPartitions:     partitions,
			ReplicationFactor: rf,
		})
	}
	return out
}

func applySecurity(conf kafka.ConfigMap, cfg KafkaProducerOption) {
	if cfg.SecurityProtocol == "" {
		return
	}
	conf["security.protocol"] = cfg.SecurityProtocol
	if cfg.SaslMechanism != "" {
		conf["sasl.mechanisms"] = cfg.SaslMechanism
		conf["sasl.username"] = cfg.SaslUsername
		conf["sasl.password"] = cfg.SaslPassword
	}
}

// producerConfig 终态事件要求不丢不重：acks=all + 幂等
func producerConfig(cfg KafkaProducerOption) *kafka.ConfigMap {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	lingerMs := cfg.LingerMs
	if lingerMs <= 0 {
		lingerMs = defaultLingerMs
	}
	compression := cfg.Compression
	if compression == "" {
		compression = defaultCompression
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sol-txflow"
	}

	conf := kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         fmt.Sprintf("%s-%s", clientID, utils.GetLocalIP()),

		"acks":                                  "all",
		"enable.idempotence":                    true,
		"max.in.flight.requests.per.connection": 5, // 幂等场景下最大值为 5

		"delivery.timeout.ms": 30000,
		"request.timeout.ms":  30000,
		"retries":             5,
		"retry.backoff.ms":    100,

		"batch.size":       batchSize,
		"linger.ms":        lingerMs,
		"compression.type": compression,

		// 带日志的结果可能较大
		"message.max.bytes": 2 * 1024 * 1024,
	}
	applySecurity(conf, cfg)
	return &conf
}
