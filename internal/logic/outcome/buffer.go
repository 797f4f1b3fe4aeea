package outcome

import (
	"sync"
)

// recordBuffer 待批量写入 journal / kafka 的结果
type recordBuffer struct {
	mu     sync.Mutex
	buffer []*Record
	limit  int
}

func newRecordBuffer(limit int) *recordBuffer {
	return &recordBuffer{limit: limit}
}

// Add 超过上限时丢弃最旧的记录，返回丢弃数量
func (b *recordBuffer) Add(records ...*Record) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, records...)
	if b.limit <= 0 || len(b.buffer) <= b.limit {
		return 0
	}
	dropped := len(b.buffer) - b.limit
	b.buffer = append([]*Record(nil), b.buffer[dropped:]...)
	return dropped
}

func (b *recordBuffer) Flush() []*Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	flushed := b.buffer
	b.buffer = nil // reset
	return flushed
}

func (b *recordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
