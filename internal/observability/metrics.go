package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiErrors   *Counter

	wsConnections *GaugeVec
	wsRooms       *Gauge
	wsDropped     *CounterVec
	wsDelivered   *Counter

	chatMessages *CounterVec
	chatCreated  *Counter
	chatClosed   *Counter

	ingestEvents     *CounterVec
	heartbeats       *Counter
	presenceOnline   *Gauge
	presenceCacheHit *CounterVec

	dbStats     *GaugeVec
	redisUp     *Gauge
	redisPing   *Gauge
	scrapeEvery time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init installs the process-wide registry. It returns nil when disabled; every
// Metrics method is nil-safe so callers never branch on it.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func New() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("tc_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"tc_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		),
		apiInflight: NewGauge("tc_api_inflight_requests", "In-flight API requests."),
		apiErrors:   NewCounter("tc_api_server_errors_total", "API responses with a 5xx status."),

		wsConnections: NewGaugeVec("tc_ws_connections", "Open socket connections by kind.", []string{"kind"}),
		wsRooms:       NewGauge("tc_ws_rooms", "Rooms with at least one member."),
		wsDropped:     NewCounterVec("tc_ws_dropped_total", "Connections dropped by the registry by reason.", []string{"reason"}),
		wsDelivered:   NewCounter("tc_ws_envelopes_enqueued_total", "Envelopes enqueued to connections."),

		chatMessages: NewCounterVec("tc_chat_messages_total", "Chat messages persisted by sender.", []string{"sender"}),
		chatCreated:  NewCounter("tc_chats_created_total", "Chats opened."),
		chatClosed:   NewCounter("tc_chats_closed_total", "Chats closed."),

		ingestEvents:     NewCounterVec("tc_ingest_events_total", "Tracking events by type and outcome.", []string{"event_type", "outcome"}),
		heartbeats:       NewCounter("tc_presence_heartbeats_total", "Heartbeats recorded."),
		presenceOnline:   NewGauge("tc_presence_online_visitors", "Visitors online at the last dashboard query."),
		presenceCacheHit: NewCounterVec("tc_presence_cache_lookups_total", "Presence cache lookups by result.", []string{"result"}),

		dbStats:     NewGaugeVec("tc_db_stats", "database/sql pool statistics.", []string{"stat"}),
		redisUp:     NewGauge("tc_redis_up", "1 when the last redis ping succeeded."),
		redisPing:   NewGauge("tc_redis_ping_seconds", "Latency of the last redis ping."),
		scrapeEvery: 10 * time.Second,
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

type exposer interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, e := range []exposer{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiErrors,
		m.wsConnections, m.wsRooms, m.wsDropped, m.wsDelivered,
		m.chatMessages, m.chatCreated, m.chatClosed,
		m.ingestEvents, m.heartbeats, m.presenceOnline, m.presenceCacheHit,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := e.WritePrometheus(w); err != nil {
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
		m.apiErrors.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) SetConnections(kind string, n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n), kind)
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.wsRooms.Set(float64(n))
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.wsDropped.Inc(reason)
}

func (m *Metrics) AddDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.wsDelivered.Add(float64(n))
}

func (m *Metrics) IncChatMessage(isAdmin bool) {
	if m == nil {
		return
	}
	sender := "visitor"
	if isAdmin {
		sender = "operator"
	}
	m.chatMessages.Inc(sender)
}

func (m *Metrics) IncChatCreated() {
	if m == nil {
		return
	}
	m.chatCreated.Inc()
}

func (m *Metrics) IncChatClosed() {
	if m == nil {
		return
	}
	m.chatClosed.Inc()
}

func (m *Metrics) IncIngest(eventType, outcome string) {
	if m == nil {
		return
	}
	m.ingestEvents.Inc(eventType, outcome)
}

func (m *Metrics) IncHeartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.presenceOnline.Set(float64(n))
}

func (m *Metrics) IncPresenceCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.presenceCacheHit.Inc("hit")
		return
	}
	m.presenceCacheHit.Inc("miss")
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartRedisCollector pings the presence cache client; it does not own rdb.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(m.scrapeEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
