package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"sol-txflow/internal/cache"
	"sol-txflow/internal/logic/txn"
	"sol-txflow/internal/pkg/logger"
	"sol-txflow/internal/pkg/types"
)

// FeeReader 读取最近的优先费样本
type FeeReader interface {
	RecentPrioritizationFees(ctx context.Context, accounts []types.Pubkey) ([]txn.PrioritizationFee, error)
}

// FeeSyncService 定时刷新 FeeCache
type FeeSyncService struct {
	feeCache *cache.FeeCache
	reader   FeeReader
	interval time.Duration
	timeout  time.Duration
	accounts []types.Pubkey // 热点可写账户，为空时取全网样本
	stopChan chan struct{}
	ctx      context.Context
	cancel   context.CancelCauseFunc
}

func NewFeeSyncService(reader FeeReader, feeCache *cache.FeeCache, interval time.Duration, accounts []types.Pubkey) *FeeSyncService {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	s := &FeeSyncService{
		feeCache: feeCache,
		reader:   reader,
		interval: interval,
		timeout:  5 * time.Second,
		accounts: accounts,
		stopChan: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	// 初始化；失败不阻止启动，估算会退化为实时查询
	const retryCount = 3
	for i := 0; i < retryCount; i++ {
		if err := s.update(); err != nil {
			logger.Warnf("[FeeSyncService] 第 %d 次 update() 失败: %v", i+1, err)
			time.Sleep(time.Second)
			continue
		}
		logger.Infof("[FeeSyncService] 初始优先费同步成功")
		break
	}
	return s
}

func (s *FeeSyncService) Start() {
	s.scheduleNext()
	<-s.stopChan
}

func (s *FeeSyncService) scheduleNext() {
	time.AfterFunc(s.interval, func() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		if err := s.update(); err != nil {
			logger.Warnf("[FeeSyncService] 周期性更新失败: %v", err)
		}
		s.scheduleNext()
	})
}

func (s *FeeSyncService) Stop() {
	s.cancel(errors.New("FeeSyncService stop"))
	select {
	case <-s.stopChan:
		// 已关闭，无需重复关闭
	default:
		close(s.stopChan)
	}
}

func (s *FeeSyncService) update() (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[FeeSyncService] update panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("update panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	fees, err := s.reader.RecentPrioritizationFees(ctx, s.accounts)
	if err != nil {
		return fmt.Errorf("getRecentPrioritizationFees failed: %w", err)
	}
	s.feeCache.Insert(fees)
	median, _ := s.feeCache.MedianPriorityFee()
	logger.Debugf("[FeeSyncService] %d samples in %v, median %d micro-lamports/CU", len(fees), time.Since(start), median)
	return nil
}
