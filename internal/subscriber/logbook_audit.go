package subscriber

import (
	"context"

	"github.com/cahierdetextes/backend/internal/eventbus"
	"k8s.io/klog/v2"
)

// AuditSubscriber 记录记事本事件日志
type AuditSubscriber struct{}

func NewAuditSubscriber() *AuditSubscriber {
	return &AuditSubscriber{}
}

func (s *AuditSubscriber) Register(bus *eventbus.LogbookEventBus) {
	if bus == nil {
		return
	}
	for _, eventType := range []eventbus.LogbookEventType{
		eventbus.LogbookEventChanged,
		eventbus.LogbookEventUndone,
		eventbus.LogbookEventRedone,
		eventbus.LogbookEventRejected,
		eventbus.LogbookEventReset,
		eventbus.LogbookEventClosed,
	} {
		bus.Subscribe(eventType, s.handleEvent)
	}
	bus.Subscribe(eventbus.LogbookEventPersistFailed, s.handlePersistFailed)
	bus.Subscribe(eventbus.LogbookEventExtracted, s.handleExtracted)
}

func (s *AuditSubscriber) handleEvent(ctx context.Context, event eventbus.LogbookEvent) error {
	klog.V(6).Infof("记事本事件: type=%s, instance=%s, operation=%s, history=%d", event.Type, event.InstanceID, event.Operation, event.HistoryLen)
	return nil
}

// handlePersistFailed 保存失败不回滚内存状态，只记录
func (s *AuditSubscriber) handlePersistFailed(ctx context.Context, event eventbus.LogbookEvent) error {
	klog.Errorf("记事本保存失败: instance=%s, operation=%s, err=%v", event.InstanceID, event.Operation, event.Err)
	return nil
}

func (s *AuditSubscriber) handleExtracted(ctx context.Context, event eventbus.LogbookEvent) error {
	if event.Err != nil {
		klog.Warningf("文档抽取失败: instance=%s, duration=%s, err=%v", event.InstanceID, event.Duration, event.Err)
		return nil
	}
	klog.V(6).Infof("文档抽取完成: instance=%s, chapters=%d, duration=%s", event.InstanceID, event.Chapters, event.Duration)
	return nil
}
