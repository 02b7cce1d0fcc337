package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Botflow. Регистрируются в глобальном реестре Prometheus
// и отдаются через promhttp.Handler() на /metrics.
var (
	// SessionsCreated — созданные сессии по отрасли и цели.
	SessionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botflow_sessions_created_total",
		Help: "Sessions created, by specialty and goal",
	}, []string{"specialty", "goal"})

	// EventsRecorded — записанные события по типу.
	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botflow_events_recorded_total",
		Help: "Events appended to session logs, by type",
	}, []string{"type"})

	// Transitions — применённые переходы по итоговому статусу.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botflow_transitions_total",
		Help: "Runner transitions applied, by resulting session status",
	}, []string{"status"})

	// DuplicateEvents — автоматические события для уже пройденного шага.
	DuplicateEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botflow_duplicate_events_total",
		Help: "Automatic events ignored because their step was already passed",
	})

	// RevisionConflicts — проигранные гонки optimistic concurrency.
	RevisionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botflow_revision_conflicts_total",
		Help: "Session updates retried after a revision conflict",
	})

	// HandoffsCompleted — сформированные резюме handoff.
	HandoffsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botflow_handoffs_completed_total",
		Help: "Handoff summaries generated",
	})

	// SessionsPurged — сессии, удалённые janitor.
	SessionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botflow_sessions_purged_total",
		Help: "Expired sessions deleted by the janitor",
	})

	// HTTPRequests — HTTP запросы по методу, маршруту и коду ответа.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botflow_http_requests_total",
		Help: "HTTP requests handled, by method, route and status code",
	}, []string{"method", "route", "code"})

	// HTTPDuration — длительность HTTP запросов.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botflow_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
