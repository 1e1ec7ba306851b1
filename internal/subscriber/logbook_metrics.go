package subscriber

import (
	"context"

	"github.com/cahierdetextes/backend/internal/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	logbookOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cahier_logbook_operations_total",
		Help: "Total recorded logbook operations by operation type",
	}, []string{"operation"})

	logbookHistoryMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cahier_logbook_history_moves_total",
		Help: "Total undo/redo moves",
	}, []string{"direction"})

	logbookRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cahier_logbook_rejected_total",
		Help: "Total operations rejected with the document left unchanged",
	}, []string{"operation"})

	logbookPersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cahier_logbook_persist_failures_total",
		Help: "Total failed attempts to persist a logbook",
	})

	logbookHistoryLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cahier_logbook_history_length",
		Help: "Current history length per logbook instance",
	}, []string{"instance"})

	extractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cahier_extraction_duration_seconds",
		Help:    "Duration of document extraction calls",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})
)

// MetricsSubscriber 把记事本事件转换为 Prometheus 指标
type MetricsSubscriber struct{}

func NewMetricsSubscriber() *MetricsSubscriber {
	return &MetricsSubscriber{}
}

func (s *MetricsSubscriber) Register(bus *eventbus.LogbookEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.LogbookEventChanged, s.handleChanged)
	bus.Subscribe(eventbus.LogbookEventUndone, s.handleMove("undo"))
	bus.Subscribe(eventbus.LogbookEventRedone, s.handleMove("redo"))
	bus.Subscribe(eventbus.LogbookEventRejected, s.handleRejected)
	bus.Subscribe(eventbus.LogbookEventPersistFailed, s.handlePersistFailed)
	bus.Subscribe(eventbus.LogbookEventExtracted, s.handleExtracted)
	bus.Subscribe(eventbus.LogbookEventReset, s.handleReset)
	bus.Subscribe(eventbus.LogbookEventClosed, s.handleClosed)
}

func (s *MetricsSubscriber) handleChanged(ctx context.Context, event eventbus.LogbookEvent) error {
	logbookOperationsTotal.WithLabelValues(event.Operation).Inc()
	logbookHistoryLength.WithLabelValues(event.InstanceID).Set(float64(event.HistoryLen))
	return nil
}

func (s *MetricsSubscriber) handleMove(direction string) eventbus.LogbookEventHandler {
	return func(ctx context.Context, event eventbus.LogbookEvent) error {
		logbookHistoryMovesTotal.WithLabelValues(direction).Inc()
		return nil
	}
}

func (s *MetricsSubscriber) handleRejected(ctx context.Context, event eventbus.LogbookEvent) error {
	logbookRejectedTotal.WithLabelValues(event.Operation).Inc()
	return nil
}

func (s *MetricsSubscriber) handlePersistFailed(ctx context.Context, event eventbus.LogbookEvent) error {
	logbookPersistFailuresTotal.Inc()
	return nil
}

func (s *MetricsSubscriber) handleExtracted(ctx context.Context, event eventbus.LogbookEvent) error {
	status := "success"
	if event.Err != nil {
		status = "error"
	}
	extractionDuration.WithLabelValues(status).Observe(event.Duration.Seconds())
	return nil
}

func (s *MetricsSubscriber) handleReset(ctx context.Context, event eventbus.LogbookEvent) error {
	logbookHistoryLength.WithLabelValues(event.InstanceID).Set(float64(event.HistoryLen))
	return nil
}

// handleClosed 会话离开内存后删除对应的 instance 标签
func (s *MetricsSubscriber) handleClosed(ctx context.Context, event eventbus.LogbookEvent) error {
	logbookHistoryLength.DeleteLabelValues(event.InstanceID)
	return nil
}
