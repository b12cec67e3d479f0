package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewReconMetrics(t *testing.T) {
	metrics := NewReconMetrics()

	if metrics == nil {
		t.Fatal("NewReconMetrics should not return nil")
	}

	if metrics.classifications == nil {
		t.Error("classifications counter vec should not be nil")
	}

	if metrics.pendingRecorded == nil {
		t.Error("pendingRecorded counter should not be nil")
	}

	if metrics.pendingResolved == nil {
		t.Error("pendingResolved counter vec should not be nil")
	}

	if metrics.needsReview == nil {
		t.Error("needsReview counter should not be nil")
	}

	if metrics.notificationsSent == nil {
		t.Error("notificationsSent counter should not be nil")
	}

	if metrics.manualRetries == nil {
		t.Error("manualRetries counter should not be nil")
	}

	if metrics.verificationDuration == nil {
		t.Error("verificationDuration histogram should not be nil")
	}

	if metrics.registrarCallDuration == nil {
		t.Error("registrarCallDuration histogram vec should not be nil")
	}

	if metrics.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}

	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}

	if metrics.activeVerifications == nil {
		t.Error("activeVerifications gauge should not be nil")
	}
}

func TestNewReconMetricsIdempotentRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newReconMetricsWithRegisterer(reg)
	second := newReconMetricsWithRegisterer(reg)

	// Повторная регистрация возвращает уже существующие коллекторы
	first.RecordPendingRecorded()
	second.RecordPendingRecorded()

	metric := &dto.Metric{}
	if err := first.pendingRecorded.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordClassification(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	metrics.RecordClassification("success")
	metrics.RecordClassification("ambiguous_pending")
	metrics.RecordClassification("ambiguous_pending")

	metric := &dto.Metric{}
	counter, err := metrics.classifications.GetMetricWithLabelValues("ambiguous_pending")
	if err != nil {
		t.Fatalf("failed to get counter: %v", err)
	}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordPendingResolved(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	metrics.RecordPendingResolved("completed")
	metrics.RecordPendingResolved("completed")
	metrics.RecordPendingResolved("failed")

	metric := &dto.Metric{}
	counter, err := metrics.pendingResolved.GetMetricWithLabelValues("completed")
	if err != nil {
		t.Fatalf("failed to get counter: %v", err)
	}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordVerificationDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	// Record some durations
	metrics.RecordVerificationDuration(100 * time.Millisecond)
	metrics.RecordVerificationDuration(500 * time.Millisecond)
	metrics.RecordVerificationDuration(1 * time.Second)

	metric := &dto.Metric{}
	if err := metrics.verificationDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", metric.Histogram.GetSampleCount())
	}

	// Check sum is approximately correct (0.1 + 0.5 + 1.0 = 1.6)
	sum := metric.Histogram.GetSampleSum()
	if sum < 1.5 || sum > 1.7 {
		t.Errorf("expected sum around 1.6, got %f", sum)
	}
}

func TestRecordRegistrarCallDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	metrics.RecordRegistrarCallDuration("register", 50*time.Millisecond)
	metrics.RecordRegistrarCallDuration("check_availability", 100*time.Millisecond)
	metrics.RecordRegistrarCallDuration("check_availability", 25*time.Millisecond)

	checkMetric := &dto.Metric{}
	observer := metrics.registrarCallDuration.WithLabelValues("check_availability")
	if err := observer.(prometheus.Histogram).Write(checkMetric); err != nil {
		t.Fatalf("failed to write check_availability metric: %v", err)
	}

	if checkMetric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples for check_availability, got %d", checkMetric.Histogram.GetSampleCount())
	}
}

func TestVerificationLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	// Simulate verification lifecycle
	metrics.RecordVerificationStarted() // active: 1
	metrics.RecordVerificationStarted() // active: 2
	metrics.RecordVerificationStarted() // active: 3

	metrics.RecordPendingResolved("completed")
	metrics.RecordVerificationFinished() // active: 2
	metrics.RecordPendingResolved("failed")
	metrics.RecordVerificationFinished() // active: 1

	gaugeMetric := &dto.Metric{}
	if err := metrics.activeVerifications.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active verification, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordTimelineAndOutboxEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()
	metrics.RecordOutboxEvent()

	timelineMetric := &dto.Metric{}
	if err := metrics.timelineEvents.Write(timelineMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if timelineMetric.Counter.GetValue() != 3.0 {
		t.Errorf("expected counter value 3.0, got %f", timelineMetric.Counter.GetValue())
	}

	outboxMetric := &dto.Metric{}
	if err := metrics.outboxEvents.Write(outboxMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if outboxMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", outboxMetric.Counter.GetValue())
	}
}

func TestRecordNeedsReviewAndNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := newReconMetricsWithRegisterer(reg)

	metrics.RecordNeedsReview()
	metrics.RecordNotificationSent()
	metrics.RecordNotificationSent()
	metrics.RecordManualRetry()

	reviewMetric := &dto.Metric{}
	if err := metrics.needsReview.Write(reviewMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if reviewMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected needs review 1.0, got %f", reviewMetric.Counter.GetValue())
	}

	sentMetric := &dto.Metric{}
	if err := metrics.notificationsSent.Write(sentMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if sentMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected notifications sent 2.0, got %f", sentMetric.Counter.GetValue())
	}

	retryMetric := &dto.Metric{}
	if err := metrics.manualRetries.Write(retryMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if retryMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected manual retries 1.0, got %f", retryMetric.Counter.GetValue())
	}
}
