// Package metrics 进程内 prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "txflow"

var (
	Registry = prometheus.NewRegistry()

	rpcRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "Ledger RPC requests by method and result.",
	}, []string{"method", "result"})

	rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_duration_seconds",
		Help:      "Ledger RPC latency.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	operations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "Lifecycle operations by name and error kind (ok on success).",
	}, []string{"operation", "result"})

	outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outcomes_total",
		Help:      "Terminal monitor outcomes.",
	}, []string{"outcome"})

	confirmLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "confirm_latency_seconds",
		Help:      "Time from monitor start to a terminal outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 11),
	})

	registryGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registry_transactions",
		Help:      "Transaction aggregates held in memory.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		rpcRequests, rpcDuration, operations, outcomes, confirmLatency, registryGauge,
	)
}

// ObserveRPC 记录一次 RPC 调用
func ObserveRPC(method string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	rpcRequests.WithLabelValues(method, result).Inc()
	rpcDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// ObserveOperation result 为 ok 或错误种类名
func ObserveOperation(operation, result string) {
	operations.WithLabelValues(operation, result).Inc()
}

func ObserveOutcome(outcome string, elapsed time.Duration) {
	outcomes.WithLabelValues(outcome).Inc()
	confirmLatency.Observe(elapsed.Seconds())
}

func SetRegistrySize(n int) {
	registryGauge.Set(float64(n))
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
