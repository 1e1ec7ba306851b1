package eventbus

import "time"

type LogbookEventType string

const (
	LogbookEventChanged       LogbookEventType = "Changed"
	LogbookEventUndone        LogbookEventType = "Undone"
	LogbookEventRedone        LogbookEventType = "Redone"
	LogbookEventRejected      LogbookEventType = "Rejected"
	LogbookEventPersistFailed LogbookEventType = "PersistFailed"
	LogbookEventExtracted     LogbookEventType = "Extracted"
	LogbookEventReset         LogbookEventType = "Reset"
	// 会话离开内存：被淘汰、空闲过期、删除或重新加载
	LogbookEventClosed LogbookEventType = "Closed"
)

type LogbookEvent struct {
	Type       LogbookEventType
	InstanceID string
	Operation  string
	HistoryLen int
	Chapters   int
	Duration   time.Duration // 文档抽取耗时
	Err        error
}

type LogbookEventHandler = Handler[LogbookEvent]
type LogbookEventBus = Bus[LogbookEventType, LogbookEvent]

func NewLogbookEventBus() *LogbookEventBus {
	return NewBus[LogbookEventType, LogbookEvent]()
}
