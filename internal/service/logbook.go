package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cahierdetextes/backend/config"
	"github.com/cahierdetextes/backend/internal/eventbus"
	"github.com/cahierdetextes/backend/internal/model"
	"github.com/cahierdetextes/backend/internal/pkg/history"
	"github.com/cahierdetextes/backend/internal/pkg/outline"
	"github.com/cahierdetextes/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"k8s.io/klog/v2"
)

var (
	ErrEmptyExtraction = errors.New("extraction contains no chapter")
	ErrInvalidInstance = errors.New("invalid instance id")
	ErrNoExtractor     = errors.New("document extraction is not available")
)

// DocumentExtractor 把上传的课程文档转换为章节列表
type DocumentExtractor interface {
	Extract(ctx context.Context, filename string, r io.Reader) ([]model.Chapter, error)
}

// LogbookService 记事本会话：每个实例持有当前文档和撤销历史，
// 每次成功修改后写入存储并发布事件。
// 内存中的会话数量受 max_sessions 限制，空闲超过 session_idle_timeout 的会话被丢弃，
// 被丢弃的会话下次访问时从存储重新加载，历史为空。
type LogbookService struct {
	cfg       *config.Config
	repo      repository.LogbookRepository
	bus       *eventbus.LogbookEventBus
	extractor DocumentExtractor
	now       func() time.Time

	mutex    sync.Mutex // 串行化会话加载
	sessions *expirable.LRU[string, *session]
}

type session struct {
	mutex   sync.Mutex
	id      string
	doc     model.LogbookData
	history *history.Stack[model.LogbookData]
}

func NewLogbookService(cfg *config.Config, repo repository.LogbookRepository, bus *eventbus.LogbookEventBus, extractor DocumentExtractor) *LogbookService {
	s := &LogbookService{
		cfg:       cfg,
		repo:      repo,
		bus:       bus,
		extractor: extractor,
		now:       time.Now,
	}
	s.sessions = expirable.NewLRU[string, *session](cfg.Logbook.MaxSessions, s.closed, cfg.Logbook.SessionIdleTimeout)
	return s
}

// closed 会话离开内存时由缓存回调，调用时持有缓存内部锁，不能再访问 sessions
func (s *LogbookService) closed(id string, _ *session) {
	klog.V(6).Infof("释放记事本会话: instance=%s", id)
	s.publish(context.Background(), eventbus.LogbookEventClosed, eventbus.LogbookEvent{InstanceID: id})
}

// Sessions 内存中的会话数
func (s *LogbookService) Sessions() int {
	return s.sessions.Len()
}

// State 操作完成后的会话状态
type State struct {
	InstanceID    string            `json:"instanceId"`
	Data          model.LogbookData `json:"data"`
	CanUndo       bool              `json:"canUndo"`
	CanRedo       bool              `json:"canRedo"`
	Operation     string            `json:"operation"`
	OperationName string            `json:"operationName"`
	HistoryLen    int               `json:"historyLength"`
}

// ChapterSummary 章节列表摘要，用于批量删除章节
type ChapterSummary struct {
	Index    int    `json:"index"`
	Chapter  string `json:"chapter"`
	Sections int    `json:"sections"`
}

// ExtractionResult 文档抽取结果，确认后通过 ApplyExtraction 应用
type ExtractionResult struct {
	RequestID   string          `json:"requestId"`
	Filename    string          `json:"filename"`
	LessonsData []model.Chapter `json:"lessonsData"`
	DurationMs  int64           `json:"durationMs"`
}

func (s *LogbookService) defaultData() model.LogbookData {
	return model.LogbookData{
		LessonsData: []model.Chapter{},
		Settings: model.Settings{
			TeacherName: s.cfg.Logbook.TeacherName,
			ClassName:   s.cfg.Logbook.ClassName,
		},
	}
}

// session 获取实例会话，不在内存中时从存储加载；存储中没有时以默认文档新建并保存
func (s *LogbookService) session(ctx context.Context, id string) (*session, error) {
	if id == "" {
		return nil, ErrInvalidInstance
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if sess, ok := s.sessions.Get(id); ok {
		// 重新写入以刷新空闲计时
		s.sessions.Add(id, sess)
		return sess, nil
	}
	// 已过期但还未被后台清理的会话，移除时同样触发 closed
	s.sessions.Remove(id)

	doc, stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := &session{
		id:      id,
		doc:     doc,
		history: history.New(doc, model.LogbookData.Clone, model.LogbookData.Equal, s.cfg.Logbook.HistoryLimit),
	}
	if !stored {
		s.persist(ctx, sess, model.OpInitial)
	}
	s.sessions.Add(id, sess)
	klog.V(6).Infof("加载记事本会话: instance=%s, chapters=%d, stored=%t", id, len(doc.LessonsData), stored)
	return sess, nil
}

func (s *LogbookService) load(ctx context.Context, id string) (model.LogbookData, bool, error) {
	row, err := s.repo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaultData(), false, nil
	}
	if err != nil {
		return model.LogbookData{}, false, fmt.Errorf("failed to load logbook: %w", err)
	}

	var doc model.LogbookData
	if err := json.Unmarshal([]byte(row.Data), &doc); err != nil {
		klog.Errorf("记事本数据损坏，使用默认文档: instance=%s, err=%v", id, err)
		return s.defaultData(), true, nil
	}
	if doc.LessonsData == nil {
		doc.LessonsData = []model.Chapter{}
	}
	return doc, true, nil
}

// persist 写入存储；失败只记录日志和事件，不回滚内存状态
func (s *LogbookService) persist(ctx context.Context, sess *session, op string) {
	data, err := json.Marshal(sess.doc)
	if err == nil {
		err = s.repo.Save(ctx, &model.Logbook{InstanceID: sess.id, Data: string(data)})
	}
	if err != nil {
		klog.Errorf("保存记事本失败: instance=%s, operation=%s, err=%v", sess.id, op, err)
		s.publish(ctx, eventbus.LogbookEventPersistFailed, eventbus.LogbookEvent{
			InstanceID: sess.id,
			Operation:  op,
			Err:        err,
		})
	}
}

func (s *LogbookService) publish(ctx context.Context, eventType eventbus.LogbookEventType, event eventbus.LogbookEvent) {
	if s.bus == nil {
		return
	}
	event.Type = eventType
	if err := s.bus.Publish(ctx, eventType, event); err != nil {
		klog.Warningf("发布记事本事件失败: type=%s, instance=%s, err=%v", eventType, event.InstanceID, err)
	}
}

func (sess *session) state() *State {
	op := sess.history.Operation()
	return &State{
		InstanceID:    sess.id,
		Data:          sess.doc.Clone(),
		CanUndo:       sess.history.CanUndo(),
		CanRedo:       sess.history.CanRedo(),
		Operation:     op,
		OperationName: model.OperationName(op),
		HistoryLen:    sess.history.Len(),
	}
}

// apply 在会话锁内执行一次修改：fn 返回的新文档与当前文档相同则不记录也不保存
func (s *LogbookService) apply(ctx context.Context, id, op string, fn func(doc model.LogbookData) (model.LogbookData, error)) (*State, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	next, err := fn(sess.doc)
	if err != nil {
		s.publish(ctx, eventbus.LogbookEventRejected, eventbus.LogbookEvent{InstanceID: id, Operation: op, Err: err})
		return nil, err
	}
	if sess.history.Record(next, op) {
		sess.doc = next
		s.persist(ctx, sess, op)
		s.publish(ctx, eventbus.LogbookEventChanged, eventbus.LogbookEvent{
			InstanceID: id,
			Operation:  op,
			HistoryLen: sess.history.Len(),
			Chapters:   len(next.LessonsData),
		})
	}
	return sess.state(), nil
}

// Get 当前状态
func (s *LogbookService) Get(ctx context.Context, id string) (*State, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()
	return sess.state(), nil
}

// Create 以新生成的实例标识创建记事本
func (s *LogbookService) Create(ctx context.Context) (*State, error) {
	return s.Get(ctx, uuid.New().String())
}

// List 列出已保存的实例
func (s *LogbookService) List(ctx context.Context) ([]model.Logbook, error) {
	return s.repo.List(ctx)
}

// Delete 删除实例及其会话
func (s *LogbookService) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	s.sessions.Remove(id)
	s.mutex.Unlock()
	return s.repo.Delete(ctx, id)
}

// Reset 丢弃内存中的会话和历史，下次访问时从存储重新加载
func (s *LogbookService) Reset(ctx context.Context, id string) (*State, error) {
	s.mutex.Lock()
	s.sessions.Remove(id)
	s.mutex.Unlock()

	state, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, eventbus.LogbookEventReset, eventbus.LogbookEvent{InstanceID: id, HistoryLen: state.HistoryLen})
	return state, nil
}

// Search 过滤当前章节，仅用于展示
func (s *LogbookService) Search(ctx context.Context, id, query string) ([]model.Chapter, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()
	return model.CloneChapters(outline.Filter(sess.doc.LessonsData, query)), nil
}

// Chapters 章节摘要
func (s *LogbookService) Chapters(ctx context.Context, id string) ([]ChapterSummary, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	summaries := make([]ChapterSummary, 0, len(sess.doc.LessonsData))
	for i, c := range sess.doc.LessonsData {
		summaries = append(summaries, ChapterSummary{Index: i, Chapter: c.Chapter, Sections: len(c.Sections)})
	}
	return summaries, nil
}

// EditCell 修改单元格；路径指向分隔行时修改分隔行
func (s *LogbookService) EditCell(ctx context.Context, id string, idx outline.Indices, field, value string) (*State, error) {
	op := model.OpCellEdit
	if idx.IsSeparator {
		op = model.OpCellEditSep
	}
	return s.apply(ctx, id, op, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.SetField(doc, idx, field, value), nil
	})
}

// EditSeparator 修改路径所属节点之后的分隔行
func (s *LogbookService) EditSeparator(ctx context.Context, id string, idx outline.Indices, field, value string) (*State, error) {
	return s.apply(ctx, id, model.OpCellEditSep, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.SetSeparatorField(doc, idx, field, value), nil
	})
}

// AddItem 在路径节点下追加元素，条目类型先规范化
func (s *LogbookService) AddItem(ctx context.Context, id string, idx outline.Indices, elem model.Element) (*State, error) {
	elem.Type = model.NormalizeItemType(elem.Type)
	return s.apply(ctx, id, model.OpItemAdd, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.InsertChild(doc, idx, elem), nil
	})
}

// DeleteNode 删除路径指向的节点
func (s *LogbookService) DeleteNode(ctx context.Context, id string, idx outline.Indices) (*State, error) {
	return s.apply(ctx, id, model.OpItemDelete, func(doc model.LogbookData) (model.LogbookData, error) {
		klog.V(6).Infof("删除节点: instance=%s, node=%q", id, outline.Label(outline.Resolve(doc.LessonsData, idx).Node))
		return outline.Delete(doc, idx), nil
	})
}

// AddSeparator 插入分隔行，date 为空时取所属节点的日期
func (s *LogbookService) AddSeparator(ctx context.Context, id string, idx outline.Indices, date string) (*State, error) {
	return s.apply(ctx, id, model.OpSeparatorAdd, func(doc model.LogbookData) (model.LogbookData, error) {
		if date == "" {
			date = outline.DateOf(outline.Resolve(doc.LessonsData, idx.Owner()).Node)
		}
		return outline.AttachSeparator(doc, idx, date)
	})
}

// DeleteSeparator 删除分隔行
func (s *LogbookService) DeleteSeparator(ctx context.Context, id string, idx outline.Indices) (*State, error) {
	return s.apply(ctx, id, model.OpSeparatorDelete, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.DetachSeparator(doc, idx), nil
	})
}

// DeleteChapters 批量删除章节
func (s *LogbookService) DeleteChapters(ctx context.Context, id string, positions []int) (*State, error) {
	return s.apply(ctx, id, model.OpChapterDelete, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.DeleteChapters(doc, positions), nil
	})
}

// UpdateSettings 修改抬头设置
func (s *LogbookService) UpdateSettings(ctx context.Context, id string, settings model.Settings) (*State, error) {
	return s.apply(ctx, id, model.OpSettingsChange, func(doc model.LogbookData) (model.LogbookData, error) {
		return outline.WithSettings(doc, settings), nil
	})
}

// Import 导入 JSON 文件内容
func (s *LogbookService) Import(ctx context.Context, id string, raw []byte, mode outline.ImportMode) (*State, error) {
	return s.apply(ctx, id, model.OpImport, func(doc model.LogbookData) (model.LogbookData, error) {
		payload, err := outline.ParseImport(raw)
		if err != nil {
			return doc, err
		}
		return outline.Import(doc, payload, mode)
	})
}

// Extract 抽取上传文档，结果不写入记事本
func (s *LogbookService) Extract(ctx context.Context, id, filename string, r io.Reader) (*ExtractionResult, error) {
	if s.extractor == nil {
		return nil, ErrNoExtractor
	}
	requestID := uuid.New().String()
	start := s.now()
	klog.V(6).Infof("开始文档抽取: instance=%s, request=%s, file=%s", id, requestID, filename)

	chapters, err := s.extractor.Extract(ctx, filename, r)
	duration := s.now().Sub(start)
	s.publish(ctx, eventbus.LogbookEventExtracted, eventbus.LogbookEvent{
		InstanceID: id,
		Chapters:   len(chapters),
		Duration:   duration,
		Err:        err,
	})
	if err != nil {
		return nil, err
	}
	return &ExtractionResult{
		RequestID:   requestID,
		Filename:    filename,
		LessonsData: chapters,
		DurationMs:  duration.Milliseconds(),
	}, nil
}

// ApplyExtraction 用抽取结果替换记事本主体，保留设置
func (s *LogbookService) ApplyExtraction(ctx context.Context, id string, chapters []model.Chapter) (*State, error) {
	return s.apply(ctx, id, model.OpAIProcess, func(doc model.LogbookData) (model.LogbookData, error) {
		if len(chapters) == 0 {
			return doc, ErrEmptyExtraction
		}
		return outline.ApplyExtraction(doc, chapters)
	})
}

// ManualSave 立即保存当前文档，不改变历史
func (s *LogbookService) ManualSave(ctx context.Context, id string) (*State, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	s.persist(ctx, sess, model.OpManualSave)
	return sess.state(), nil
}

// Undo 撤销一步，已在历史起点时不做任何事
func (s *LogbookService) Undo(ctx context.Context, id string) (*State, error) {
	return s.move(ctx, id, eventbus.LogbookEventUndone, (*history.Stack[model.LogbookData]).Undo)
}

// Redo 重做一步，已在历史末尾时不做任何事
func (s *LogbookService) Redo(ctx context.Context, id string) (*State, error) {
	return s.move(ctx, id, eventbus.LogbookEventRedone, (*history.Stack[model.LogbookData]).Redo)
}

func (s *LogbookService) move(ctx context.Context, id string, eventType eventbus.LogbookEventType, step func(*history.Stack[model.LogbookData]) (model.LogbookData, bool)) (*State, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	doc, moved := step(sess.history)
	if moved {
		sess.doc = doc
		op := sess.history.Operation()
		s.persist(ctx, sess, op)
		s.publish(ctx, eventType, eventbus.LogbookEvent{InstanceID: id, Operation: op, HistoryLen: sess.history.Len()})
	}
	return sess.state(), nil
}

// Export 导出为带缩进的 JSON 文件
func (s *LogbookService) Export(ctx context.Context, id string) (string, []byte, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return "", nil, err
	}
	sess.mutex.Lock()
	defer sess.mutex.Unlock()

	data, err := json.MarshalIndent(sess.doc, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal logbook: %w", err)
	}
	filename := fmt.Sprintf("cahier_de_textes_%s_%s.json", id, s.now().Format("2006-01-02"))
	return filename, data, nil
}
