package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/consultflow/workflow"
)

var (
	sizeBuckets     = prometheus.ExponentialBuckets(100, 10, 8)
	llmBuckets      = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	runBuckets      = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	nodeBuckets     = []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60}
	defaultDBLabels = []string{"database"}
)

// Collector 汇总 consultflow 的 Prometheus 指标。
// 实现 llm.MetricsRecorder 与 workflow.Sink。
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec // type: prompt | completion

	workflowRunsTotal     *prometheus.CounterVec // status: terminated | cancelled | failed
	workflowRunDuration   *prometheus.HistogramVec
	workflowRunsInFlight  *prometheus.GaugeVec
	nodeExecutionsTotal   *prometheus.CounterVec
	nodeExecutionDuration *prometheus.HistogramVec
	loopIterationsTotal   *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec
}

// NewCollector 注册到默认 Registry，同一 namespace 只能创建一次
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 注册到指定 Registerer
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	b := builder{f: promauto.With(reg), ns: namespace}
	c := &Collector{
		httpRequestsTotal:   b.counter("http_requests_total", "HTTP requests by method, route and status class.", "method", "path", "status"),
		httpRequestDuration: b.histogram("http_request_duration_seconds", "HTTP request latency.", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     b.histogram("http_request_size_bytes", "HTTP request body size.", sizeBuckets, "method", "path"),
		httpResponseSize:    b.histogram("http_response_size_bytes", "HTTP response body size.", sizeBuckets, "method", "path"),

		llmRequestsTotal:   b.counter("llm_requests_total", "Completion requests by outcome.", "provider", "model", "status"),
		llmRequestDuration: b.histogram("llm_request_duration_seconds", "Completion latency including retries.", llmBuckets, "provider", "model"),
		llmTokensUsed:      b.counter("llm_tokens_used_total", "Tokens consumed.", "provider", "model", "type"),

		workflowRunsTotal:     b.counter("workflow_runs_total", "Finished workflow runs.", "graph", "status"),
		workflowRunDuration:   b.histogram("workflow_run_duration_seconds", "Workflow run wall time.", runBuckets, "graph"),
		workflowRunsInFlight:  b.gauge("workflow_runs_in_flight", "Workflow runs currently executing.", "graph"),
		nodeExecutionsTotal:   b.counter("workflow_node_executions_total", "Node executions by outcome.", "graph", "node", "kind", "status"),
		nodeExecutionDuration: b.histogram("workflow_node_duration_seconds", "Node execution time.", nodeBuckets, "graph", "node"),
		loopIterationsTotal:   b.counter("workflow_loop_iterations_total", "Loop re-entries into a node.", "graph", "node"),

		cacheHits:   b.counter("cache_hits_total", "Cache hits.", "cache_type"),
		cacheMisses: b.counter("cache_misses_total", "Cache misses.", "cache_type"),

		dbConnectionsOpen: b.gauge("db_connections_open", "Open database connections.", defaultDBLabels...),
		dbConnectionsIdle: b.gauge("db_connections_idle", "Idle database connections.", defaultDBLabels...),
		dbQueryDuration:   b.histogram("db_query_duration_seconds", "Database query latency.", prometheus.DefBuckets, "database", "operation"),
	}
	if logger != nil {
		logger.Debug("metrics registered", zap.String("namespace", namespace))
	}
	return c
}

type builder struct {
	f  promauto.Factory
	ns string
}

func (b builder) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return b.f.NewGaugeVec(prometheus.GaugeOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

// RecordHTTPRequest path 应已归一化，避免标签基数失控
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	for kind, n := range map[string]int{"prompt": promptTokens, "completion": completionTokens} {
		if n > 0 {
			c.llmTokensUsed.WithLabelValues(provider, model, kind).Add(float64(n))
		}
	}
}

// OnTransition 把执行器事件折算为运行、节点与循环指标
func (c *Collector) OnTransition(_ context.Context, ev workflow.Event) error {
	switch ev.Phase {
	case workflow.PhaseRunStarted:
		c.workflowRunsInFlight.WithLabelValues(ev.Graph).Inc()
	case workflow.PhaseRunCompleted, workflow.PhaseRunCancelled, workflow.PhaseRunFailed:
		c.workflowRunsInFlight.WithLabelValues(ev.Graph).Dec()
		c.RecordWorkflowRun(ev.Graph, runStatus(ev.Phase), ev.Elapsed)
	case workflow.PhaseNodeCompleted, workflow.PhaseNodeErrored, workflow.PhaseNodeSkipped:
		status := ev.Status
		if status == "" {
			status = string(ev.Phase)
		}
		c.RecordNodeExecution(ev.Graph, ev.Node, string(ev.Kind), status, ev.Elapsed)
	case workflow.PhaseLoopIteration:
		c.loopIterationsTotal.WithLabelValues(ev.Graph, ev.Node).Inc()
	}
	return nil
}

func (c *Collector) RecordWorkflowRun(graph, status string, duration time.Duration) {
	c.workflowRunsTotal.WithLabelValues(graph, status).Inc()
	c.workflowRunDuration.WithLabelValues(graph).Observe(duration.Seconds())
}

// RecordNodeExecution 跳过的节点没有耗时，不进直方图
func (c *Collector) RecordNodeExecution(graph, node, kind, status string, duration time.Duration) {
	c.nodeExecutionsTotal.WithLabelValues(graph, node, kind, status).Inc()
	if duration > 0 {
		c.nodeExecutionDuration.WithLabelValues(graph, node).Observe(duration.Seconds())
	}
}

func (c *Collector) RecordCacheHit(cacheType string) { c.cacheHits.WithLabelValues(cacheType).Inc() }

func (c *Collector) RecordCacheMiss(cacheType string) { c.cacheMisses.WithLabelValues(cacheType).Inc() }

func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func runStatus(p workflow.Phase) string {
	switch p {
	case workflow.PhaseRunCompleted:
		return string(workflow.RunTerminated)
	case workflow.PhaseRunCancelled:
		return string(workflow.RunCancelled)
	}
	return string(workflow.RunFailed)
}

// statusCode 状态码归类为 2xx..5xx
func statusCode(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return string(rune('0'+code/100)) + "xx"
}
