package txn

import (
	"context"
	"sync"
	"time"

	"sol-txflow/internal/pkg/logger"
)

// Registry 进程内的交易聚合表，按 ID 查找，过期聚合定期清理
type Registry struct {
	mu  sync.RWMutex
	txs map[string]*Transaction
	ttl time.Duration
	now func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Registry{
		txs: make(map[string]*Transaction),
		ttl: ttl,
		now: time.Now,
	}
}

func (r *Registry) Put(tx *Transaction) {
	r.mu.Lock()
	r.txs[tx.ID()] = tx
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Transaction, error) {
	r.mu.RLock()
	tx, ok := r.txs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(KindNotFound, "transaction %s not found", id).withField("id")
	}
	return tx, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.txs, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txs)
}

// Sweep 删除超过 ttl 未更新的聚合，返回删除数量
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, tx := range r.txs {
		tx.mu.Lock()
		expired := tx.updatedAt.Before(cutoff) && !tx.submitting
		tx.mu.Unlock()
		if expired {
			delete(r.txs, id)
			removed++
		}
	}
	return removed
}

// StartGCLoop 后台定时清理
func (r *Registry) StartGCLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					logger.Debugf("[Registry] swept %d expired transactions, %d left", n, r.Len())
				}
			}
		}
	}()
}
