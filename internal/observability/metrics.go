package observability

import (
	"context"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	domain "github.com/yungbote/groundwork-backend/internal/domain/jobs"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiReqError *Counter

	activityTime *HistogramVec
	workerTotal  *Counter
	workerError  *Counter

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec

	promotions        *CounterVec
	graphSync         *CounterVec
	graphSyncLatency  *HistogramVec
	dedupChecks       *CounterVec
	auditDiscrepancy  *GaugeVec
	backlogPending    *GaugeVec
	eventsPublished   *CounterVec
	vectorStoreOps    *HistogramVec

	queueDepth *GaugeVec
	pgStats    *GaugeVec
	redisUp    *Gauge
	redisPing  *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS"))
	if v == "" {
		return 10 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// Init returns nil when METRICS_ENABLED is off; every method is nil-safe.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("gw_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"gw_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		),
		apiInflight: NewGauge("gw_api_inflight_requests", "In-flight API requests."),
		apiReqError: NewCounter("gw_api_requests_error_total", "Total API requests with 5xx status."),
		activityTime: NewHistogramVec(
			"gw_worker_activity_duration_seconds",
			"Worker activity duration in seconds.",
			[]string{"activity", "job_type", "status"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		workerTotal:  NewCounter("gw_worker_activity_total", "Total worker activities."),
		workerError:  NewCounter("gw_worker_activity_error_total", "Total worker activities with failure status."),
		aggregateOps: NewCounterVec("gw_aggregate_operations_total", "Aggregate writes by operation/status.", []string{"operation", "status"}),
		aggregateLatency: NewHistogramVec(
			"gw_aggregate_operation_duration_seconds",
			"Aggregate write duration in seconds.",
			[]string{"operation", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		aggregateConflicts: NewCounterVec("gw_aggregate_conflicts_total", "Aggregate writes rejected with a conflict.", []string{"operation"}),
		aggregateRetries:   NewCounterVec("gw_aggregate_retries_total", "Aggregate writes that failed with a retryable error.", []string{"operation"}),
		promotions:         NewCounterVec("gw_coding_promotions_total", "Candidate promotion outcomes by result.", []string{"result"}),
		graphSync:          NewCounterVec("gw_graph_sync_total", "Graph projection runs by trigger/outcome.", []string{"trigger", "outcome"}),
		graphSyncLatency: NewHistogramVec(
			"gw_graph_sync_duration_seconds",
			"Graph projection duration in seconds.",
			[]string{"trigger"},
			[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		dedupChecks:      NewCounterVec("gw_dedup_checks_total", "Duplicate-gate checks by mode.", []string{"mode"}),
		auditDiscrepancy: NewGaugeVec("gw_coherence_discrepancy", "Last observed store discrepancy by kind.", []string{"kind"}),
		backlogPending:   NewGaugeVec("gw_coding_backlog", "Last observed pending backlog by measure.", []string{"measure"}),
		eventsPublished:  NewCounterVec("gw_events_published_total", "Coding events by type/outcome.", []string{"type", "outcome"}),
		vectorStoreOps: NewHistogramVec(
			"gw_vector_store_operation_duration_seconds",
			"Similarity vector store calls by operation/status.",
			[]string{"operation", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		queueDepth:       NewGaugeVec("gw_job_queue_depth", "Job queue depth by status.", []string{"status"}),
		pgStats:          NewGaugeVec("gw_postgres_stats", "Postgres connection stats.", []string{"metric"}),
		redisUp:          NewGauge("gw_redis_up", "Redis connectivity (1=up, 0=down)."),
		redisPing:        NewGauge("gw_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiReqError,
		m.activityTime, m.workerTotal, m.workerError,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.promotions, m.graphSync, m.graphSyncLatency, m.dedupChecks,
		m.auditDiscrepancy, m.backlogPending, m.eventsPublished, m.vectorStoreOps,
		m.queueDepth, m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
	if isServerErrorStatus(status) {
		m.apiReqError.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

func (m *Metrics) ObserveActivity(activityName, jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.activityTime.Observe(dur.Seconds(), activityName, jobType, status)
	m.workerTotal.Inc()
	if isFailureStatus(status) {
		m.workerError.Inc()
	}
}

// ActivityCount reports observed runs for one activity/job_type/status triple.
func (m *Metrics) ActivityCount(activityName, jobType, status string) uint64 {
	if m == nil {
		return 0
	}
	return m.activityTime.Count(activityName, jobType, status)
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Inc(operation, status)
	m.aggregateLatency.Observe(dur.Seconds(), operation, status)
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.Inc(operation)
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetries.Inc(operation)
}

// ObservePromotion records eligible and skipped counts of one promote call.
func (m *Metrics) ObservePromotion(promoted, skipped int) {
	if m == nil {
		return
	}
	m.promotions.Add(float64(promoted), "promoted")
	m.promotions.Add(float64(skipped), "skipped")
}

func (m *Metrics) ObserveGraphSync(trigger, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.graphSync.Inc(trigger, outcome)
	m.graphSyncLatency.Observe(dur.Seconds(), trigger)
}

func (m *Metrics) IncDedupCheck(mode string) {
	if m == nil {
		return
	}
	m.dedupChecks.Inc(mode)
}

func (m *Metrics) SetAuditDiscrepancy(kind string, v float64) {
	if m == nil {
		return
	}
	m.auditDiscrepancy.Set(v, kind)
}

func (m *Metrics) SetBacklog(measure string, v float64) {
	if m == nil {
		return
	}
	m.backlogPending.Set(v, measure)
}

func (m *Metrics) ObserveVectorStoreOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorStoreOps.Observe(dur.Seconds(), operation, status)
}

func (m *Metrics) IncEventPublished(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsPublished.Inc(eventType, outcome)
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: postgres stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
		m.pgStats.Set(float64(stats.InUse), "in_use")
		m.pgStats.Set(float64(stats.Idle), "idle")
		m.pgStats.Set(float64(stats.WaitCount), "wait_count")
		m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	m.every(ctx, func() {
		start := time.Now()
		if err := rdb.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	statuses := []string{
		domain.StatusQueued, domain.StatusRunning, domain.StatusSucceeded,
		domain.StatusFailed, domain.StatusCanceled,
	}
	m.every(ctx, func() {
		for _, s := range statuses {
			m.queueDepth.Set(0, s)
		}
		var rows []struct {
			Status string
			Count  int64
		}
		if err := db.WithContext(ctx).
			Model(&domain.JobRun{}).
			Select("status, count(*) as count").
			Group("status").
			Scan(&rows).Error; err != nil {
			if log != nil {
				log.Warn("metrics: job queue depth query failed", "error", err)
			}
			return
		}
		for _, row := range rows {
			status := strings.TrimSpace(row.Status)
			if status == "" {
				status = "unknown"
			}
			m.queueDepth.Set(float64(row.Count), status)
		}
	})
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	return len(status) == 3 && status[0] == '5'
}

func isFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "error", "timeout", "panic":
		return true
	default:
		return false
	}
}
