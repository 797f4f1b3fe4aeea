package outcome

import (
	"context"
	"time"

	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/metrics"
	"sol-txflow/internal/pkg/logger"
)

// Cache 按签名的热缓存
type Cache interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, signature string) (*Record, error)
}

// Journal 持久化存储
type Journal interface {
	BatchInsert(ctx context.Context, records []*Record) error
	FindBySignature(ctx context.Context, signature string) (*Record, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Publisher 结果事件下游
type Publisher interface {
	Publish(ctx context.Context, records []*Record) error
}

type ManagerOption struct {
	BufferLimit  int           // 未落库记录上限
	Retention    time.Duration // journal 保留时长
	CacheTimeout time.Duration // 单次 redis 写入超时
}

// Manager 统一封装 Redis + Journal + Kafka，实现 txn.OutcomeSink。
// 结果先写缓存，再进入缓冲区，由 flush loop 批量落库和发布。
type Manager struct {
	cache     Cache
	journal   Journal
	publisher Publisher
	buffer    *recordBuffer
	opt       ManagerOption
	now       func() time.Time
}

var _ txn.OutcomeSink = (*Manager)(nil)

// NewManager cache / journal / publisher 均可为 nil
func NewManager(cache Cache, journal Journal, publisher Publisher, opt ManagerOption) *Manager {
	if opt.BufferLimit <= 0 {
		opt.BufferLimit = 10_000
	}
	if opt.Retention <= 0 {
		opt.Retention = 7 * 24 * time.Hour
	}
	if opt.CacheTimeout <= 0 {
		opt.CacheTimeout = time.Second
	}
	return &Manager{
		cache:     cache,
		journal:   journal,
		publisher: publisher,
		buffer:    newRecordBuffer(opt.BufferLimit),
		opt:       opt,
		now:       time.Now,
	}
}

func (m *Manager) RecordOutcome(ctx context.Context, result txn.MonitorResult) {
	rec := NewRecord(result, m.now())
	metrics.ObserveOutcome(rec.Outcome, result.Elapsed)

	if m.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, m.opt.CacheTimeout)
		if err := m.cache.Put(cctx, rec); err != nil {
			logger.Warnf("[Outcome] cache %s failed: %v", rec.Signature, err)
		}
		cancel()
	}
	if m.journal == nil && m.publisher == nil {
		return
	}
	if dropped := m.buffer.Add(rec); dropped > 0 {
		logger.Warnf("[Outcome] buffer full, dropped %d oldest records", dropped)
	}
}

// Lookup 先查缓存，未命中回退 journal 并回填缓存；都没有返回 nil, nil
func (m *Manager) Lookup(ctx context.Context, signature string) (*Record, error) {
	if m.cache != nil {
		rec, err := m.cache.Get(ctx, signature)
		if err != nil {
			logger.Warnf("[Outcome] cache get %s failed: %v", signature, err)
		} else if rec != nil {
			return rec, nil
		}
	}
	if m.journal == nil {
		return nil, nil
	}
	rec, err := m.journal.FindBySignature(ctx, signature)
	if err != nil || rec == nil {
		return nil, err
	}
	if m.cache != nil {
		if err := m.cache.Put(ctx, rec); err != nil {
			logger.Warnf("[Outcome] cache refill %s failed: %v", signature, err)
		}
	}
	return rec, nil
}

// Flush 把缓冲区写入 journal 并发布；journal 失败的记录放回缓冲区
func (m *Manager) Flush(ctx context.Context) {
	flushed := m.buffer.Flush()
	if len(flushed) == 0 {
		return
	}
	if m.journal != nil {
		if err := m.journal.BatchInsert(ctx, flushed); err != nil {
			logger.Errorf("[Outcome] journal insert %d records failed: %v", len(flushed), err)
			m.buffer.Add(flushed...)
			return
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, flushed); err != nil {
			logger.Errorf("[Outcome] publish %d records failed: %v", len(flushed), err)
		}
	}
}

// StartFlushLoop 启动后台定时 flush，ctx 结束时再 flush 一次
func (m *Manager) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			m.Flush(final)
			cancel()
			return
		case <-ticker.C:
			m.Flush(ctx)
		}
	}
}

// StartGCLoop 启动后台 GC，清理超过保留期的 journal 记录
func (m *Manager) StartGCLoop(ctx context.Context, interval time.Duration) {
	if m.journal == nil {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.journal.DeleteBefore(ctx, m.now().Add(-m.opt.Retention))
				if err != nil {
					logger.Warnf("[Outcome] gc failed: %v", err)
				} else if n > 0 {
					logger.Infof("[Outcome] gc deleted %d journal rows", n)
				}
			}
		}
	}()
}

func (m *Manager) Pending() int {
	return m.buffer.Len()
}
