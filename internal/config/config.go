package config

import (
	"fmt"
	"strings"
	"time"

	"sol-txflow/internal/logic/events"
	"sol-txflow/internal/logic/geyser"
	"sol-txflow/internal/logic/ledger"
	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/mq"
	"sol-txflow/internal/server"
)

// go-zero conf 按 json tag 取键，yaml tag 供 yaml.v3 直接解析时使用

type LogConfig struct {
	Format   string `json:"format,optional" yaml:"format"`     // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional" yaml:"log_dir"`   // 日志目录（可为相对路径或绝对路径）
	Level    string `json:"level,optional" yaml:"level"`       // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional" yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// RpcConfig Solana JSON-RPC 节点
type RpcConfig struct {
	Endpoint         string  `json:"endpoint" yaml:"endpoint"`
	RateLimitRPS     float64 `json:"rate_limit_rps,optional" yaml:"rate_limit_rps"` // 0 表示不限流
	RateLimitBurst   int     `json:"rate_limit_burst,optional" yaml:"rate_limit_burst"`
	RequestTimeoutMs int     `json:"request_timeout_ms,optional" yaml:"request_timeout_ms"`
}

func (c *RpcConfig) ToLedgerOption() ledger.Option {
	return ledger.Option{
		Endpoint:       c.Endpoint,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
		RequestTimeout: time.Duration(c.RequestTimeoutMs) * time.Millisecond,
	}
}

type ServerConfig struct {
	ListenAddr       string `json:"listen_addr,optional" yaml:"listen_addr"`
	EnableReflection bool   `json:"enable_reflection,optional" yaml:"enable_reflection"`
	MaxRecvMsgSize   int    `json:"max_recv_msg_size,optional" yaml:"max_recv_msg_size"`
}

func (c *ServerConfig) ToServerOption() server.Option {
	return server.Option{
		ListenAddr:       c.ListenAddr,
		EnableReflection: c.EnableReflection,
		MaxRecvMsgSize:   c.MaxRecvMsgSize,
	}
}

// HttpConfig 运维 HTTP，ListenAddr 为空时不启动
type HttpConfig struct {
	ListenAddr string `json:"listen_addr,optional" yaml:"listen_addr"`
}

type MonitorConfig struct {
	PollIntervalMs int `json:"poll_interval_ms,optional" yaml:"poll_interval_ms"`
	RegistryTTLSec int `json:"registry_ttl_sec,optional" yaml:"registry_ttl_sec"` // 内存聚合保留时长
}

type RetryConfig struct {
	InitialIntervalMs int     `json:"initial_interval_ms,optional" yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `json:"max_interval_ms,optional" yaml:"max_interval_ms"`
	MaxElapsedMs      int     `json:"max_elapsed_ms,optional" yaml:"max_elapsed_ms"`
	Multiplier        float64 `json:"multiplier,optional" yaml:"multiplier"`
	MaxAttempts       uint64  `json:"max_attempts,optional" yaml:"max_attempts"`
}

func (c *RetryConfig) ToRetryPolicy() txn.RetryPolicy {
	return txn.RetryPolicy{
		InitialInterval: time.Duration(c.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(c.MaxIntervalMs) * time.Millisecond,
		MaxElapsedTime:  time.Duration(c.MaxElapsedMs) * time.Millisecond,
		Multiplier:      c.Multiplier,
		MaxAttempts:     c.MaxAttempts,
	}
}

// EstimateConfig 估算常量（lamports），0 取内置默认
type EstimateConfig struct {
	BaseFeePerSignature uint64 `json:"base_fee_per_signature,optional" yaml:"base_fee_per_signature"`
	DefaultPriorityFee  uint64 `json:"default_priority_fee,optional" yaml:"default_priority_fee"`
	MaxPriorityFee      uint64 `json:"max_priority_fee,optional" yaml:"max_priority_fee"`
}

func (c *EstimateConfig) ToEstimateParams() txn.EstimateParams {
	return txn.EstimateParams{
		BaseFeePerSignature: c.BaseFeePerSignature,
		DefaultPriorityFee:  c.DefaultPriorityFee,
		MaxPriorityFee:      c.MaxPriorityFee,
	}
}

type RedisConfig struct {
	Addr     string `json:"addr,optional" yaml:"addr"` // 为空时不启用结果缓存
	Password string `json:"password,optional" yaml:"password"`
	DB       int    `json:"db,optional" yaml:"db"`
	TTLSec   int    `json:"ttl_sec,optional" yaml:"ttl_sec"` // 0 按结果类型取默认 TTL
}

type MysqlConfig struct {
	DSN          string `json:"dsn,optional" yaml:"dsn"` // 为空时不落库
	Debug        bool   `json:"debug,optional" yaml:"debug"`
	RetentionDay int    `json:"retention_day,optional" yaml:"retention_day"`
}

// OutcomeConfig 终态结果缓冲与刷新
type OutcomeConfig struct {
	BufferLimit     int `json:"buffer_limit,optional" yaml:"buffer_limit"`
	FlushIntervalMs int `json:"flush_interval_ms,optional" yaml:"flush_interval_ms"`
	GCIntervalMin   int `json:"gc_interval_min,optional" yaml:"gc_interval_min"`
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置
type KafkaProducerConfig struct {
	Brokers          string `json:"brokers,optional" yaml:"brokers"` // 为空时不发布事件
	ClientID         string `json:"client_id,optional" yaml:"client_id"`
	BatchSize        int    `json:"batch_size,optional" yaml:"batch_size"` // 批处理大小（单位字节）
	LingerMs         int    `json:"linger_ms,optional" yaml:"linger_ms"`   // 批处理最大延迟（毫秒）
	OutcomeTopic     string `json:"outcome_topic,optional" yaml:"outcome_topic"`
	OutcomePartition int    `json:"outcome_partitions,optional" yaml:"outcome_partitions"`
	SendTimeoutMs    int    `json:"send_timeout_ms,optional" yaml:"send_timeout_ms"` // 一批事件等待 ack 的超时
	Compression      string `json:"compression,optional" yaml:"compression"`
	SecurityProtocol string `json:"security_protocol,optional" yaml:"security_protocol"` // 生产环境建议 SASL_SSL
	SaslMechanism    string `json:"sasl_mechanism,optional" yaml:"sasl_mechanism"`
	SaslUsername     string `json:"sasl_username,optional" yaml:"sasl_username"`
	SaslPassword     string `json:"sasl_password,optional" yaml:"sasl_password"`
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	return mq.KafkaProducerOption{
		ClientID:         c.ClientID,
		Brokers:          c.Brokers,
		BatchSize:        c.BatchSize,
		LingerMs:         c.LingerMs,
		Compression:      c.Compression,
		SecurityProtocol: c.SecurityProtocol,
		SaslMechanism:    c.SaslMechanism,
		SaslUsername:     c.SaslUsername,
		SaslPassword:     c.SaslPassword,
		Topics:           []mq.TopicSpec{{Topic: c.OutcomeTopic, Partitions: c.OutcomePartition}},
	}
}

func (c *KafkaProducerConfig) ToEventsOption() events.Option {
	return events.Option{
		Topic:          c.OutcomeTopic,
		Partitions:     c.OutcomePartition,
		MessageTimeout: time.Duration(c.SendTimeoutMs) * time.Millisecond,
	}
}

// GeyserConfig yellowstone 订阅，Endpoint 为空时 Monitor 只轮询
type GeyserConfig struct {
	Endpoint          string   `json:"endpoint,optional" yaml:"endpoint"`
	XToken            string   `json:"x_token,optional" yaml:"x_token"`
	Insecure          bool     `json:"insecure,optional" yaml:"insecure"`
	Commitment        string   `json:"commitment,optional" yaml:"commitment"`
	AccountInclude    []string `json:"account_include,optional" yaml:"account_include"`
	ConnectTimeoutSec int      `json:"connect_timeout_sec,optional" yaml:"connect_timeout_sec"`
	ReconnectSec      int      `json:"reconnect_interval_sec,optional" yaml:"reconnect_interval_sec"`
	PingIntervalSec   int      `json:"stream_ping_interval_sec,optional" yaml:"stream_ping_interval_sec"`
	SendTimeoutSec    int      `json:"send_timeout_sec,optional" yaml:"send_timeout_sec"`
	KeepaliveSec      int      `json:"keepalive_ping_interval_sec,optional" yaml:"keepalive_ping_interval_sec"`
	KeepaliveTimeout  int      `json:"keepalive_ping_timeout_sec,optional" yaml:"keepalive_ping_timeout_sec"`
	MaxRecvMsgSize    int      `json:"max_call_recv_msg_size,optional" yaml:"max_call_recv_msg_size"`
}

func (c *GeyserConfig) ToGeyserOption() geyser.Option {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return geyser.Option{
		Endpoint:          c.Endpoint,
		XToken:            c.XToken,
		Insecure:          c.Insecure,
		Commitment:        txn.Commitment(c.Commitment),
		AccountInclude:    c.AccountInclude,
		ConnectTimeout:    sec(c.ConnectTimeoutSec),
		ReconnectInterval: sec(c.ReconnectSec),
		PingInterval:      sec(c.PingIntervalSec),
		SendTimeout:       sec(c.SendTimeoutSec),
		KeepaliveInterval: sec(c.KeepaliveSec),
		KeepaliveTimeout:  sec(c.KeepaliveTimeout),
		MaxRecvMsgSize:    c.MaxRecvMsgSize,
	}
}

// FeeSyncConfig 优先费行情刷新，IntervalSec 为 0 时不启用
type FeeSyncConfig struct {
	IntervalSec int      `json:"interval_sec,optional" yaml:"interval_sec"`
	MaxAgeSec   int      `json:"max_age_sec,optional" yaml:"max_age_sec"`
	Accounts    []string `json:"accounts,optional" yaml:"accounts"` // 热点可写账户
}

// ServiceConfig 是主配置结构体
type ServiceConfig struct {
	LogConf           LogConfig           `json:"logger,optional" yaml:"logger"`
	RpcConf           RpcConfig           `json:"rpc" yaml:"rpc"`
	ServerConf        ServerConfig        `json:"server,optional" yaml:"server"`
	HttpConf          HttpConfig          `json:"http,optional" yaml:"http"`
	MonitorConf       MonitorConfig       `json:"monitor,optional" yaml:"monitor"`
	RetryConf         RetryConfig         `json:"retry,optional" yaml:"retry"`
	EstimateConf      EstimateConfig      `json:"estimate,optional" yaml:"estimate"`
	RedisConf         RedisConfig         `json:"redis,optional" yaml:"redis"`
	MysqlConf         MysqlConfig         `json:"mysql,optional" yaml:"mysql"`
	OutcomeConf       OutcomeConfig       `json:"outcome,optional" yaml:"outcome"`
	KafkaProducerConf KafkaProducerConfig `json:"kafka_producer,optional" yaml:"kafka_producer"`
	GeyserConf        GeyserConfig        `json:"geyser,optional" yaml:"geyser"`
	FeeSyncConf       FeeSyncConfig       `json:"fee_sync,optional" yaml:"fee_sync"`
}

// Normalize 补默认值并校验必填项
func (c *ServiceConfig) Normalize() error {
	if strings.TrimSpace(c.RpcConf.Endpoint) == "" {
		return fmt.Errorf("rpc.endpoint is required")
	}
	if c.RpcConf.RequestTimeoutMs <= 0 {
		c.RpcConf.RequestTimeoutMs = 10_000
	}
	if c.ServerConf.ListenAddr == "" {
		c.ServerConf.ListenAddr = ":9090"
	}
	if c.MonitorConf.PollIntervalMs <= 0 {
		c.MonitorConf.PollIntervalMs = int(txn.DefaultPollInterval / time.Millisecond)
	}
	if c.MonitorConf.RegistryTTLSec <= 0 {
		c.MonitorConf.RegistryTTLSec = 3600
	}

	def := txn.DefaultRetryPolicy()
	if c.RetryConf.InitialIntervalMs <= 0 {
		c.RetryConf.InitialIntervalMs = int(def.InitialInterval / time.Millisecond)
	}
	if c.RetryConf.MaxIntervalMs <= 0 {
		c.RetryConf.MaxIntervalMs = int(def.MaxInterval / time.Millisecond)
	}
	if c.RetryConf.MaxElapsedMs <= 0 {
		c.RetryConf.MaxElapsedMs = int(def.MaxElapsedTime / time.Millisecond)
	}
	if c.RetryConf.Multiplier <= 0 {
		c.RetryConf.Multiplier = def.Multiplier
	}
	if c.RetryConf.MaxAttempts == 0 {
		c.RetryConf.MaxAttempts = def.MaxAttempts
	}

	if c.MysqlConf.RetentionDay <= 0 {
		c.MysqlConf.RetentionDay = 7
	}
	if c.OutcomeConf.BufferLimit <= 0 {
		c.OutcomeConf.BufferLimit = 10_000
	}
	if c.OutcomeConf.FlushIntervalMs <= 0 {
		c.OutcomeConf.FlushIntervalMs = 1000
	}
	if c.OutcomeConf.GCIntervalMin <= 0 {
		c.OutcomeConf.GCIntervalMin = 60
	}

	if c.KafkaProducerConf.Brokers != "" {
		if c.KafkaProducerConf.OutcomeTopic == "" {
			c.KafkaProducerConf.OutcomeTopic = "txflow-outcome"
		}
		if c.KafkaProducerConf.OutcomePartition <= 0 {
			c.KafkaProducerConf.OutcomePartition = 1
		}
		if c.KafkaProducerConf.ClientID == "" {
			c.KafkaProducerConf.ClientID = "txflow"
		}
		if c.KafkaProducerConf.SendTimeoutMs <= 0 {
			c.KafkaProducerConf.SendTimeoutMs = 3000
		}
	}
	if c.GeyserConf.Commitment != "" {
		if _, err := txn.ParseCommitment(c.GeyserConf.Commitment); err != nil {
			return fmt.Errorf("geyser.commitment: %w", err)
		}
	}
	if c.FeeSyncConf.IntervalSec > 0 && c.FeeSyncConf.MaxAgeSec <= 0 {
		c.FeeSyncConf.MaxAgeSec = c.FeeSyncConf.IntervalSec * 6
	}
	return nil
}

func (c *ServiceConfig) ToManagerOption() outcome.ManagerOption {
	return outcome.ManagerOption{
		BufferLimit: c.OutcomeConf.BufferLimit,
		Retention:   time.Duration(c.MysqlConf.RetentionDay) * 24 * time.Hour,
	}
}

func (c *ServiceConfig) ToMonitorOptions() []txn.MonitorOption {
	return []txn.MonitorOption{
		txn.WithPollInterval(time.Duration(c.MonitorConf.PollIntervalMs) * time.Millisecond),
	}
}
