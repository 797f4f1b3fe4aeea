package utils

import (
	"runtime/debug"
	"sync"

	"sol-txflow/internal/pkg/logger"
)

// ParallelMap 以最多 workers 个协程并发执行 fn，结果顺序与输入一致。
// 单个任务 panic 时记录日志并保留该位置的零值。
func ParallelMap[T any, R any](input []T, workers int, fn func(T) R) []R {
	result := make([]R, len(input))
	if len(input) == 0 {
		return result
	}
	if workers <= 1 || len(input) == 1 {
		for i, v := range input {
			result[i] = safeCall(fn, v)
		}
		return result
	}
	if workers > len(input) {
		workers = len(input)
	}

	idxCh := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range idxCh {
				result[i] = safeCall(fn, input[i])
			}
		}()
	}
	for i := range input {
		idxCh <- i
	}
	close(idxCh)
	wg.Wait()
	return result
}

func safeCall[T any, R any](fn func(T) R, v T) (r R) {
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("[ParallelMap] task panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(v)
}
