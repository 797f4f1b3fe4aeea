package utils

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParallelMap(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		var emptyInput []int
		result := ParallelMap(emptyInput, 4, func(i int) int { return i * 2 })
		assert.Empty(t, result)
	})

	t.Run("single input", func(t *testing.T) {
		result := ParallelMap([]int{42}, 4, func(i int) int { return i * 2 })
		assert.Equal(t, []int{84}, result)
	})

	t.Run("multiple inputs keep order", func(t *testing.T) {
		result := ParallelMap([]int{1, 2, 3, 4, 5}, 3, func(i int) int {
			// 随机延迟，验证顺序保持
			time.Sleep(time.Duration(rand.Intn(10)) * time.Millisecond)
			return i * 2
		})
		assert.Equal(t, []int{2, 4, 6, 8, 10}, result)
	})

	t.Run("bounded concurrency", func(t *testing.T) {
		input := make([]int, 60)
		var maxConcurrent, current int32
		ParallelMap(input, 5, func(int) int {
			c := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if c <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, c) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return 0
		})
		assert.LessOrEqual(t, maxConcurrent, int32(5))
		assert.GreaterOrEqual(t, maxConcurrent, int32(2))
	})

	t.Run("panic keeps zero value", func(t *testing.T) {
		result := ParallelMap([]int{1, 2, 3}, 2, func(i int) int {
			if i == 2 {
				panic("boom")
			}
			return i
		})
		assert.Equal(t, []int{1, 0, 3}, result)
	})
}
