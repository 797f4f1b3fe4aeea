package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"sol-txflow/internal/cache"
	"sol-txflow/internal/config"
	"sol-txflow/internal/logic/account"
	"sol-txflow/internal/logic/events"
	"sol-txflow/internal/logic/geyser"
	"sol-txflow/internal/logic/journal"
	"sol-txflow/internal/logic/ledger"
	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/mq"
	"sol-txflow/internal/pkg/types"
	"sol-txflow/internal/server"
	"sol-txflow/internal/service"
)

// ServiceContext 包含服务运行所需的全部资源；可选组件未配置时为 nil
type ServiceContext struct {
	Config config.ServiceConfig

	Ledger   *ledger.RpcLedger
	FeeCache *cache.FeeCache
	FeeSync  *service.FeeSyncService
	Watcher  *geyser.Watcher

	Redis    *redis.Client
	Journal  *journal.Dao
	Producer *kafka.Producer
	Outcomes *outcome.Manager

	Engine   *txn.Engine
	Registry *txn.Registry
	Accounts *account.Service

	Server *server.TxflowServer
	Admin  *service.AdminHTTP

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServiceContext 按配置依次初始化各组件，任一必需组件失败即返回错误
func NewServiceContext(c config.ServiceConfig) (*ServiceContext, error) {
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	if err := logger.Init(c.LogConf.ToLogOption()); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sc := &ServiceContext{Config: c, ctx: ctx, cancel: cancel}
	if err := sc.init(); err != nil {
		sc.Close()
		return nil, err
	}
	logger.Infof("[Svc] service context ready, rpc=%s grpc=%s", c.RpcConf.Endpoint, c.ServerConf.ListenAddr)
	return sc, nil
}

func (sc *ServiceContext) init() error {
	c := &sc.Config

	// 1. 链上访问
	sc.Ledger = ledger.New(c.RpcConf.ToLedgerOption())

	// 2. 优先费行情
	var market txn.MarketFeeSource
	if c.FeeSyncConf.IntervalSec > 0 {
		accounts := make([]types.Pubkey, 0, len(c.FeeSyncConf.Accounts))
		for _, s := range c.FeeSyncConf.Accounts {
			pk, err := types.TryPubkeyFromBase58(s)
			if err != nil {
				return fmt.Errorf("fee_sync.accounts %q: %w", s, err)
			}
			accounts = append(accounts, pk)
		}
		sc.FeeCache = cache.NewFeeCache(time.Duration(c.FeeSyncConf.MaxAgeSec) * time.Second)
		sc.FeeSync = service.NewFeeSyncService(sc.Ledger, sc.FeeCache,
			time.Duration(c.FeeSyncConf.IntervalSec)*time.Second, accounts)
		market = sc.FeeCache
	}

	// 3. 终态结果管道：redis -> 缓冲 -> mysql / kafka
	var (
		resultCache outcome.Cache
		resultStore outcome.Journal
		publisher   outcome.Publisher
	)
	if c.RedisConf.Addr != "" {
		sc.Redis = redis.NewClient(&redis.Options{
			Addr:     c.RedisConf.Addr,
			Password: c.RedisConf.Password,
			DB:       c.RedisConf.DB,
		})
		resultCache = outcome.NewRedisStore(sc.Redis, time.Duration(c.RedisConf.TTLSec)*time.Second)
	}
	if c.MysqlConf.DSN != "" {
		dao, err := journal.NewDao(c.MysqlConf.DSN, c.MysqlConf.Debug)
		if err != nil {
			logger.Errorf("[Svc] mysql 初始化失败: %v", err)
			return err
		}
		sc.Journal = dao
		resultStore = dao
	}
	if c.KafkaProducerConf.Brokers != "" {
		producer, err := mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
		if err != nil {
			logger.Errorf("[Svc] Kafka producer 初始化失败: %v", err)
			return err
		}
		sc.Producer = producer
		publisher = events.NewPublisher(producer, c.KafkaProducerConf.ToEventsOption())
	}
	sc.Outcomes = outcome.NewManager(resultCache, resultStore, publisher, c.ToManagerOption())

	// 4. 生命周期引擎
	monitorOpts := append(c.ToMonitorOptions(), txn.WithOutcomeSinks(sc.Outcomes))
	if c.GeyserConf.Endpoint != "" {
		w, err := geyser.NewWatcher(c.GeyserConf.ToGeyserOption())
		if err != nil {
			return fmt.Errorf("geyser watcher: %w", err)
		}
		sc.Watcher = w
		monitorOpts = append(monitorOpts, txn.WithHinter(w))
	}
	retry := c.RetryConf.ToRetryPolicy()
	sc.Engine = txn.NewEngine(sc.Ledger, txn.EngineOptions{
		Retry:          &retry,
		Market:         market,
		EstimateParams: c.EstimateConf.ToEstimateParams(),
		MonitorOptions: monitorOpts,
	})
	sc.Registry = txn.NewRegistry(time.Duration(c.MonitorConf.RegistryTTLSec) * time.Second)
	sc.Accounts = account.NewService(sc.Ledger, sc.Engine.Monitor)

	// 5. 对外接口
	sc.Server = server.NewTxflowServer(c.ServerConf.ToServerOption(),
		server.Registration{Desc: &server.TransactionServiceDesc, Impl: server.NewTransactionService(sc.Engine, sc.Registry, sc.Ledger)},
		server.Registration{Desc: &server.AccountServiceDesc, Impl: server.NewAccountService(sc.Accounts)},
		server.Registration{Desc: &server.ProgramServiceDesc, Impl: server.NewProgramService()},
	)
	if c.HttpConf.ListenAddr != "" {
		sc.Admin = service.NewAdminHTTP(c.HttpConf.ListenAddr, sc.Outcomes, sc.Health)
	}
	return nil
}

// Health 汇总各依赖的连通性，任一失败返回错误
func (sc *ServiceContext) Health(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	details := map[string]any{
		"registry_size":   sc.Registry.Len(),
		"outcome_pending": sc.Outcomes.Pending(),
	}
	slot, err := sc.Ledger.Slot(ctx)
	if err != nil {
		return details, fmt.Errorf("rpc: %w", err)
	}
	details["slot"] = slot
	if sc.FeeCache != nil {
		feeSlot, samples := sc.FeeCache.Latest()
		details["fee_slot"] = feeSlot
		details["fee_samples"] = samples
	}
	if sc.Redis != nil {
		if err := sc.Redis.Ping(ctx).Err(); err != nil {
			return details, fmt.Errorf("redis: %w", err)
		}
	}
	if sc.Journal != nil {
		if err := sc.Journal.Ping(ctx); err != nil {
			return details, fmt.Errorf("mysql: %w", err)
		}
	}
	return details, nil
}

// StartBackground 启动不属于 ServiceGroup 的后台循环
func (sc *ServiceContext) StartBackground() {
	sc.Registry.StartGCLoop(sc.ctx, time.Minute)
	sc.Outcomes.StartGCLoop(sc.ctx, time.Duration(sc.Config.OutcomeConf.GCIntervalMin)*time.Minute)
}

// NewOutcomeFlusher 把 flush loop 包装成 go-zero service.Service
func (sc *ServiceContext) NewOutcomeFlusher() *OutcomeFlusher {
	ctx, cancel := context.WithCancel(sc.ctx)
	return &OutcomeFlusher{
		manager:  sc.Outcomes,
		interval: time.Duration(sc.Config.OutcomeConf.FlushIntervalMs) * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Close 关闭服务上下文中的资源
func (sc *ServiceContext) Close() {
	if sc.cancel != nil {
		sc.cancel()
	}
	if sc.Producer != nil {
		sc.Producer.Flush(3000)
		sc.Producer.Close()
	}
	if sc.Journal != nil {
		if err := sc.Journal.Close(); err != nil {
			logger.Warnf("[Svc] close mysql: %v", err)
		}
	}
	if sc.Redis != nil {
		if err := sc.Redis.Close(); err != nil {
			logger.Warnf("[Svc] close redis: %v", err)
		}
	}
	logger.Sync()
}

type OutcomeFlusher struct {
	manager  *outcome.Manager
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

func (f *OutcomeFlusher) Start() {
	defer close(f.done)
	f.manager.StartFlushLoop(f.ctx, f.interval)
}

// Stop 等待最后一次 flush 完成，最多 10s
func (f *OutcomeFlusher) Stop() {
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(10 * time.Second):
	}
}
