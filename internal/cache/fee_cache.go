package cache

import (
	"sort"
	"sync"
	"time"

	"sol-txflow/internal/logic/txn"
)

// FeeCache 最近 slot 的优先费样本，按 slot 升序保存。
// 实现 txn.MarketFeeSource，供 Estimator 在调用方未指定价格时使用。
type FeeCache struct {
	mu        sync.RWMutex
	samples   []txn.PrioritizationFee
	updatedAt time.Time
	maxAge    time.Duration
	now       func() time.Time
}

var _ txn.MarketFeeSource = (*FeeCache)(nil)

// NewFeeCache maxAge 内没有更新的数据视为过期
func NewFeeCache(maxAge time.Duration) *FeeCache {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &FeeCache{
		samples: make([]txn.PrioritizationFee, 0, 400),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Insert 合并新样本；同一 slot 以新值为准
func (fc *FeeCache) Insert(points []txn.PrioritizationFee) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	const maxCapacity = 400
	const retainCount = 300

	for _, point := range points {
		n := len(fc.samples)
		if n == 0 || point.Slot > fc.samples[n-1].Slot {
			fc.samples = append(fc.samples, point)
			continue
		}
		// 插入到中间
		idx := sort.Search(n, func(i int) bool {
			return fc.samples[i].Slot >= point.Slot
		})
		if idx < n && fc.samples[idx].Slot == point.Slot {
			fc.samples[idx] = point
			continue
		}
		fc.samples = append(fc.samples, txn.PrioritizationFee{})
		copy(fc.samples[idx+1:], fc.samples[idx:])
		fc.samples[idx] = point
	}

	if len(fc.samples) >= maxCapacity {
		// 将后半段复制到前半段，截断为 retainCount 长度
		copy(fc.samples[:retainCount], fc.samples[len(fc.samples)-retainCount:])
		fc.samples = fc.samples[:retainCount]
	}
	if len(points) > 0 {
		fc.updatedAt = fc.now()
	}
}

// MedianPriorityFee 最近样本中非零价格的中位数（micro-lamports / CU）
func (fc *FeeCache) MedianPriorityFee() (uint64, bool) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	if len(fc.samples) == 0 || fc.now().Sub(fc.updatedAt) > fc.maxAge {
		return 0, false
	}
	median := txn.MedianFee(fc.samples)
	return median, median > 0
}

// Latest 最新 slot 及样本数
func (fc *FeeCache) Latest() (slot uint64, count int) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	if len(fc.samples) == 0 {
		return 0, 0
	}
	return fc.samples[len(fc.samples)-1].Slot, len(fc.samples)
}
