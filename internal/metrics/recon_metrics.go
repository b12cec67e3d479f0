package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconMetrics содержит метрики для reconciliation операций.
type ReconMetrics struct {
	// Счётчики операций
	classifications   *prometheus.CounterVec
	pendingRecorded   prometheus.Counter
	pendingResolved   *prometheus.CounterVec
	needsReview       prometheus.Counter
	notificationsSent prometheus.Counter
	manualRetries     prometheus.Counter

	// Гистограммы времени выполнения
	verificationDuration  prometheus.Histogram
	registrarCallDuration *prometheus.HistogramVec

	// Счётчики событий timeline
	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для проверок в полёте
	activeVerifications prometheus.Gauge
}

// NewReconMetrics создаёт новый экземпляр метрик reconciliation.
func NewReconMetrics() *ReconMetrics {
	return newReconMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newReconMetricsWithRegisterer(registerer prometheus.Registerer) *ReconMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ReconMetrics{
		classifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dreg_classifications_total",
			Help: "Total number of registrar responses classified, by outcome",
		}, []string{"outcome"}),
		pendingRecorded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_pending_recorded_total",
			Help: "Total number of pending domain records created",
		}),
		pendingResolved: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "dreg_pending_resolved_total",
			Help: "Total number of pending domains resolved, by terminal status",
		}, []string{"status"}),
		needsReview: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_needs_review_total",
			Help: "Total number of pending domains escalated to manual review",
		}),
		notificationsSent: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_notifications_sent_total",
			Help: "Total number of order resolution notifications sent",
		}),
		manualRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_manual_retries_total",
			Help: "Total number of manual registration retries",
		}),
		verificationDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "dreg_verification_duration_seconds",
			Help:    "Duration of pending domain verifications in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		registrarCallDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "dreg_registrar_call_duration_seconds",
			Help:    "Duration of registrar API calls in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "dreg_outbox_events_total",
			Help: "Total number of outbox events published",
		}),
		activeVerifications: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "dreg_active_verifications",
			Help: "Number of verifications currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordClassification увеличивает счётчик классификаций с меткой исхода.
func (m *ReconMetrics) RecordClassification(outcome string) {
	m.classifications.WithLabelValues(outcome).Inc()
}

// RecordPendingRecorded увеличивает счётчик созданных pending-записей.
func (m *ReconMetrics) RecordPendingRecorded() {
	m.pendingRecorded.Inc()
}

// RecordPendingResolved увеличивает счётчик разрешённых записей по терминальному статусу.
func (m *ReconMetrics) RecordPendingResolved(status string) {
	m.pendingResolved.WithLabelValues(status).Inc()
}

// RecordNeedsReview увеличивает счётчик эскалаций на ручную верификацию.
func (m *ReconMetrics) RecordNeedsReview() {
	m.needsReview.Inc()
}

// RecordNotificationSent увеличивает счётчик отправленных уведомлений.
func (m *ReconMetrics) RecordNotificationSent() {
	m.notificationsSent.Inc()
}

// RecordManualRetry увеличивает счётчик ручных повторов регистрации.
func (m *ReconMetrics) RecordManualRetry() {
	m.manualRetries.Inc()
}

// RecordVerificationStarted увеличивает количество проверок в полёте.
func (m *ReconMetrics) RecordVerificationStarted() {
	m.activeVerifications.Inc()
}

// RecordVerificationFinished уменьшает количество проверок в полёте.
func (m *ReconMetrics) RecordVerificationFinished() {
	m.activeVerifications.Dec()
}

// RecordVerificationDuration записывает время выполнения проверки.
func (m *ReconMetrics) RecordVerificationDuration(duration time.Duration) {
	m.verificationDuration.Observe(duration.Seconds())
}

// RecordRegistrarCallDuration записывает время вызова API регистратора.
func (m *ReconMetrics) RecordRegistrarCallDuration(operation string, duration time.Duration) {
	m.registrarCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ReconMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ReconMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
