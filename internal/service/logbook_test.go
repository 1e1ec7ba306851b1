package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cahierdetextes/backend/config"
	"github.com/cahierdetextes/backend/internal/eventbus"
	"github.com/cahierdetextes/backend/internal/model"
	"github.com/cahierdetextes/backend/internal/pkg/outline"
	"github.com/cahierdetextes/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogbookRepo struct {
	GetFunc    func(ctx context.Context, instanceID string) (*model.Logbook, error)
	SaveFunc   func(ctx context.Context, logbook *model.Logbook) error
	ListFunc   func(ctx context.Context) ([]model.Logbook, error)
	DeleteFunc func(ctx context.Context, instanceID string) error
}

func (m *mockLogbookRepo) Get(ctx context.Context, instanceID string) (*model.Logbook, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, instanceID)
	}
	return nil, repository.ErrNotFound
}

func (m *mockLogbookRepo) Save(ctx context.Context, logbook *model.Logbook) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, logbook)
	}
	return nil
}

func (m *mockLogbookRepo) List(ctx context.Context) ([]model.Logbook, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockLogbookRepo) Delete(ctx context.Context, instanceID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, instanceID)
	}
	return nil
}

// memoryStore 记录每个实例最后一次保存的数据
type memoryStore struct {
	mutex sync.Mutex
	data  map[string]string
	saves int
}

func newMemoryRepo() (*mockLogbookRepo, *memoryStore) {
	store := &memoryStore{data: make(map[string]string)}
	repo := &mockLogbookRepo{
		GetFunc: func(ctx context.Context, instanceID string) (*model.Logbook, error) {
			store.mutex.Lock()
			defer store.mutex.Unlock()
			data, ok := store.data[instanceID]
			if !ok {
				return nil, repository.ErrNotFound
			}
			return &model.Logbook{InstanceID: instanceID, Data: data}, nil
		},
		SaveFunc: func(ctx context.Context, logbook *model.Logbook) error {
			store.mutex.Lock()
			defer store.mutex.Unlock()
			store.data[logbook.InstanceID] = logbook.Data
			store.saves++
			return nil
		},
	}
	return repo, store
}

func (m *memoryStore) load(t *testing.T, id string) model.LogbookData {
	t.Helper()
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var doc model.LogbookData
	require.NoError(t, json.Unmarshal([]byte(m.data[id]), &doc))
	return doc
}

type fakeExtractor struct {
	chapters []model.Chapter
	err      error
}

func (f *fakeExtractor) Extract(ctx context.Context, filename string, r io.Reader) ([]model.Chapter, error) {
	return f.chapters, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Logbook: config.LogbookConfig{
			TeacherName: "Pr. Saad",
			ClassName:   "2ème Bac Scientifique",
		},
	}
}

func newTestService(repo repository.LogbookRepository, bus *eventbus.LogbookEventBus) *LogbookService {
	return NewLogbookService(testConfig(), repo, bus, &fakeExtractor{})
}

const algebraJSON = `{"lessonsData":[{"chapter":"Algebra","date":"2024-09-10","sections":[{"name":"Basics","items":[{"type":"définition","title":"Group"}]}]}],"settings":{"teacherName":"Pr. Saad","className":"2ème Bac Scientifique"}}`

func TestLogbookService_DefaultDocumentIsStored(t *testing.T) {
	repo, store := newMemoryRepo()
	svc := newTestService(repo, nil)

	state, err := svc.Get(context.Background(), model.DefaultInstanceID)
	require.NoError(t, err)
	assert.NotNil(t, state.Data.LessonsData)
	assert.Empty(t, state.Data.LessonsData)
	assert.Equal(t, "Pr. Saad", state.Data.Settings.TeacherName)
	assert.False(t, state.CanUndo)
	assert.Equal(t, model.OpInitial, state.Operation)
	assert.Equal(t, "État initial", state.OperationName)
	assert.Equal(t, 1, store.saves)

	_, err = svc.Get(context.Background(), "")
	assert.True(t, errors.Is(err, ErrInvalidInstance))
}

func TestLogbookService_InsertDeleteUndo(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	ctx := context.Background()

	state, err := svc.AddItem(ctx, "algebra", outline.At(0).Section(0), model.Element{Type: "ex"})
	require.NoError(t, err)
	items := state.Data.LessonsData[0].Sections[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "exemple", items[1].Type)
	assert.True(t, state.CanUndo)

	state, err = svc.DeleteNode(ctx, "algebra", outline.At(0).Section(0).Item(0))
	require.NoError(t, err)
	require.Len(t, state.Data.LessonsData[0].Sections[0].Items, 1)
	assert.Len(t, store.load(t, "algebra").LessonsData[0].Sections[0].Items, 1)

	state, err = svc.Undo(ctx, "algebra")
	require.NoError(t, err)
	assert.Len(t, state.Data.LessonsData[0].Sections[0].Items, 2)
	assert.True(t, state.CanRedo)
	assert.Len(t, store.load(t, "algebra").LessonsData[0].Sections[0].Items, 2, "撤销后应保存")

	state, err = svc.EditCell(ctx, "algebra", outline.At(0), "remark", "révision")
	require.NoError(t, err)
	assert.False(t, state.CanRedo, "新的修改应丢弃重做分支")
	assert.Equal(t, "Édition de cellule", state.OperationName)
}

func TestLogbookService_NoOpEditIsNotRecorded(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	ctx := context.Background()

	state, err := svc.EditCell(ctx, "algebra", outline.At(0), "chapter", "Algebra")
	require.NoError(t, err)
	assert.Equal(t, 1, state.HistoryLen)
	assert.False(t, state.CanUndo)
	assert.Equal(t, 0, store.saves)

	state, err = svc.EditCell(ctx, "algebra", outline.At(7), "chapter", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, state.HistoryLen)
}

func TestLogbookService_UndoRedoAtBounds(t *testing.T) {
	repo, _ := newMemoryRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	state, err := svc.Undo(ctx, "classe")
	require.NoError(t, err)
	assert.False(t, state.CanUndo)

	state, err = svc.Redo(ctx, "classe")
	require.NoError(t, err)
	assert.False(t, state.CanRedo)
}

func TestLogbookService_Separators(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	bus := eventbus.NewLogbookEventBus()
	var rejected []string
	bus.Subscribe(eventbus.LogbookEventRejected, func(ctx context.Context, event eventbus.LogbookEvent) error {
		rejected = append(rejected, event.Operation)
		return nil
	})
	svc := newTestService(repo, bus)
	ctx := context.Background()

	state, err := svc.AddSeparator(ctx, "algebra", outline.At(0), "")
	require.NoError(t, err)
	sep := state.Data.LessonsData[0].SeparatorAfter
	require.NotNil(t, sep)
	assert.Equal(t, "2024-09-10", sep.Date, "日期取自所属章节")
	assert.Equal(t, outline.DefaultSeparatorContent, sep.Content)

	_, err = svc.AddSeparator(ctx, "algebra", outline.At(0), "2030-01-01")
	assert.True(t, errors.Is(err, outline.ErrSeparatorExists))
	assert.Equal(t, []string{model.OpSeparatorAdd}, rejected)

	state, err = svc.EditCell(ctx, "algebra", outline.At(0).Separator(), "remark", "vacances")
	require.NoError(t, err)
	assert.Equal(t, "vacances", state.Data.LessonsData[0].SeparatorAfter.Remark)
	assert.Equal(t, model.OpCellEditSep, state.Operation)

	state, err = svc.EditSeparator(ctx, "algebra", outline.At(0), "content", "Fin du trimestre")
	require.NoError(t, err)
	assert.Equal(t, "Fin du trimestre", state.Data.LessonsData[0].SeparatorAfter.Content)

	state, err = svc.DeleteSeparator(ctx, "algebra", outline.At(0).Separator())
	require.NoError(t, err)
	assert.Nil(t, state.Data.LessonsData[0].SeparatorAfter)
}

func TestLogbookService_ImportAndSettings(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	ctx := context.Background()

	raw := []byte(`{"lessonsData":[{"chapter":"Géométrie","sections":[]}]}`)
	state, err := svc.Import(ctx, "algebra", raw, outline.ImportAppend)
	require.NoError(t, err)
	require.Len(t, state.Data.LessonsData, 2)
	assert.Equal(t, "Importation", state.OperationName)

	_, err = svc.Import(ctx, "algebra", []byte(`{"lessonsData":"x"}`), outline.ImportReplace)
	assert.True(t, errors.Is(err, outline.ErrInvalidFormat))

	state, err = svc.UpdateSettings(ctx, "algebra", model.Settings{TeacherName: "M. Alami", ClassName: "1ère Bac"})
	require.NoError(t, err)
	assert.Equal(t, "M. Alami", store.load(t, "algebra").Settings.TeacherName)

	summaries, err := svc.Chapters(ctx, "algebra")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, ChapterSummary{Index: 0, Chapter: "Algebra", Sections: 1}, summaries[0])

	state, err = svc.DeleteChapters(ctx, "algebra", []int{0})
	require.NoError(t, err)
	require.Len(t, state.Data.LessonsData, 1)
	assert.Equal(t, "Géométrie", state.Data.LessonsData[0].Chapter)
}

func TestLogbookService_Search(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	ctx := context.Background()

	result, err := svc.Search(ctx, "algebra", "group")
	require.NoError(t, err)
	require.Len(t, result, 1)

	result, err = svc.Search(ctx, "algebra", "topologie")
	require.NoError(t, err)
	assert.Empty(t, result)

	state, err := svc.Get(ctx, "algebra")
	require.NoError(t, err)
	assert.Equal(t, 1, state.HistoryLen, "搜索不影响历史")
}

func TestLogbookService_Extraction(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	bus := eventbus.NewLogbookEventBus()
	var extracted []eventbus.LogbookEvent
	bus.Subscribe(eventbus.LogbookEventExtracted, func(ctx context.Context, event eventbus.LogbookEvent) error {
		extracted = append(extracted, event)
		return nil
	})
	chapters := []model.Chapter{{Chapter: "Suites", Sections: []model.Section{}}}
	svc := NewLogbookService(testConfig(), repo, bus, &fakeExtractor{chapters: chapters})
	ctx := context.Background()

	result, err := svc.Extract(ctx, "algebra", "suites.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, chapters, result.LessonsData)
	require.Len(t, extracted, 1)
	assert.Equal(t, 1, extracted[0].Chapters)

	state, err := svc.ApplyExtraction(ctx, "algebra", result.LessonsData)
	require.NoError(t, err)
	require.Len(t, state.Data.LessonsData, 1)
	assert.Equal(t, "Suites", state.Data.LessonsData[0].Chapter)
	assert.Equal(t, "Pr. Saad", state.Data.Settings.TeacherName)
	assert.Equal(t, model.OpAIProcess, state.Operation)

	_, err = svc.ApplyExtraction(ctx, "algebra", nil)
	assert.True(t, errors.Is(err, ErrEmptyExtraction))

	_, err = svc.ApplyExtraction(ctx, "algebra", []model.Chapter{{Chapter: "Sans sections"}})
	assert.True(t, errors.Is(err, outline.ErrInvalidChapter))

	failing := NewLogbookService(testConfig(), repo, nil, &fakeExtractor{err: errors.New("timeout")})
	_, err = failing.Extract(ctx, "algebra", "suites.pdf", strings.NewReader(""))
	assert.Error(t, err)

	none := NewLogbookService(testConfig(), repo, nil, nil)
	_, err = none.Extract(ctx, "algebra", "suites.pdf", strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoExtractor))
}

// 保存失败不回滚内存状态和历史
func TestLogbookService_PersistFailureKeepsState(t *testing.T) {
	repo := &mockLogbookRepo{
		GetFunc: func(ctx context.Context, instanceID string) (*model.Logbook, error) {
			return &model.Logbook{InstanceID: instanceID, Data: algebraJSON}, nil
		},
		SaveFunc: func(ctx context.Context, logbook *model.Logbook) error {
			return errors.New("disk full")
		},
	}
	bus := eventbus.NewLogbookEventBus()
	failures := 0
	bus.Subscribe(eventbus.LogbookEventPersistFailed, func(ctx context.Context, event eventbus.LogbookEvent) error {
		failures++
		return nil
	})
	svc := newTestService(repo, bus)

	state, err := svc.EditCell(context.Background(), "algebra", outline.At(0), "remark", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", state.Data.LessonsData[0].Remark)
	assert.True(t, state.CanUndo)
	assert.Equal(t, 1, failures)
}

func TestLogbookService_CorruptDataFallsBackToDefault(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["broken"] = "{not json"
	svc := newTestService(repo, nil)

	state, err := svc.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Empty(t, state.Data.LessonsData)
	assert.Equal(t, "{not json", store.data["broken"], "损坏的数据在下一次修改前保持不变")
}

func TestLogbookService_LoadError(t *testing.T) {
	repo := &mockLogbookRepo{
		GetFunc: func(ctx context.Context, instanceID string) (*model.Logbook, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(repo, nil)
	_, err := svc.Get(context.Background(), "algebra")
	assert.Error(t, err)
}

func TestLogbookService_ManualSaveAndReset(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	ctx := context.Background()

	_, err := svc.EditCell(ctx, "algebra", outline.At(0), "remark", "x")
	require.NoError(t, err)
	saves := store.saves

	state, err := svc.ManualSave(ctx, "algebra")
	require.NoError(t, err)
	assert.Equal(t, saves+1, store.saves)
	assert.Equal(t, 2, state.HistoryLen, "手动保存不改变历史")
	assert.Equal(t, model.OpCellEdit, state.Operation)
	assert.True(t, state.CanUndo)

	state, err = svc.Reset(ctx, "algebra")
	require.NoError(t, err)
	assert.Equal(t, 1, state.HistoryLen)
	assert.False(t, state.CanUndo)
	assert.Equal(t, "x", state.Data.LessonsData[0].Remark, "从存储重新加载")
}

func TestLogbookService_CreateListDelete(t *testing.T) {
	repo, store := newMemoryRepo()
	var deleted string
	repo.ListFunc = func(ctx context.Context) ([]model.Logbook, error) {
		var list []model.Logbook
		for id := range store.data {
			list = append(list, model.Logbook{InstanceID: id})
		}
		return list, nil
	}
	repo.DeleteFunc = func(ctx context.Context, instanceID string) error {
		deleted = instanceID
		return nil
	}
	svc := newTestService(repo, nil)
	ctx := context.Background()

	state, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Len(t, state.InstanceID, 36)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, state.InstanceID, list[0].InstanceID)

	require.NoError(t, svc.Delete(ctx, state.InstanceID))
	assert.Equal(t, state.InstanceID, deleted)
}

func TestLogbookService_Export(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	svc := newTestService(repo, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC) }

	filename, data, err := svc.Export(context.Background(), "algebra")
	require.NoError(t, err)
	assert.Equal(t, "cahier_de_textes_algebra_2024-05-17.json", filename)
	assert.Contains(t, string(data), "\n  \"lessonsData\"")

	payload, err := outline.ParseImport(data)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", payload.LessonsData[0].Chapter)
}

func TestLogbookService_HistoryLimit(t *testing.T) {
	repo, _ := newMemoryRepo()
	cfg := testConfig()
	cfg.Logbook.HistoryLimit = 3
	svc := NewLogbookService(cfg, repo, nil, nil)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C", "D"} {
		_, err := svc.Import(ctx, "limited", []byte(`{"lessonsData":[{"chapter":"`+name+`","sections":[]}]}`), outline.ImportAppend)
		require.NoError(t, err)
	}
	state, err := svc.Get(ctx, "limited")
	require.NoError(t, err)
	assert.Equal(t, 3, state.HistoryLen)
	assert.Len(t, state.Data.LessonsData, 4)
}

// closedRecorder 收集 Closed 事件中的实例标识
func closedRecorder(bus *eventbus.LogbookEventBus) func() []string {
	var mutex sync.Mutex
	var ids []string
	bus.Subscribe(eventbus.LogbookEventClosed, func(ctx context.Context, event eventbus.LogbookEvent) error {
		mutex.Lock()
		defer mutex.Unlock()
		ids = append(ids, event.InstanceID)
		return nil
	})
	return func() []string {
		mutex.Lock()
		defer mutex.Unlock()
		return append([]string(nil), ids...)
	}
}

func TestLogbookService_SessionCapEvictsLeastRecentlyUsed(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	bus := eventbus.NewLogbookEventBus()
	closed := closedRecorder(bus)
	cfg := testConfig()
	cfg.Logbook.MaxSessions = 2
	svc := NewLogbookService(cfg, repo, bus, nil)
	ctx := context.Background()

	_, err := svc.EditCell(ctx, "algebra", outline.At(0), "remark", "x")
	require.NoError(t, err)
	_, err = svc.Get(ctx, "b")
	require.NoError(t, err)
	_, err = svc.Get(ctx, "algebra")
	require.NoError(t, err)
	_, err = svc.Get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, svc.Sessions())
	assert.Equal(t, []string{"b"}, closed(), "最久未使用的会话被淘汰")

	state, err := svc.Get(ctx, "algebra")
	require.NoError(t, err)
	assert.True(t, state.CanUndo, "仍在内存中的会话保留历史")

	state, err = svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, state.CanUndo)
	assert.Equal(t, []string{"b", "c"}, closed())
}

func TestLogbookService_IdleSessionIsReloaded(t *testing.T) {
	repo, store := newMemoryRepo()
	store.data["algebra"] = algebraJSON
	var loads int
	get := repo.GetFunc
	repo.GetFunc = func(ctx context.Context, instanceID string) (*model.Logbook, error) {
		loads++
		return get(ctx, instanceID)
	}
	bus := eventbus.NewLogbookEventBus()
	closed := closedRecorder(bus)
	cfg := testConfig()
	cfg.Logbook.SessionIdleTimeout = 20 * time.Millisecond
	svc := NewLogbookService(cfg, repo, bus, nil)
	ctx := context.Background()

	_, err := svc.EditCell(ctx, "algebra", outline.At(0), "remark", "x")
	require.NoError(t, err)
	require.Equal(t, 1, loads)

	require.Eventually(t, func() bool {
		return len(closed()) == 1
	}, time.Second, 10*time.Millisecond)

	state, err := svc.Get(ctx, "algebra")
	require.NoError(t, err)
	assert.Equal(t, 2, loads, "空闲会话从存储重新加载")
	assert.False(t, state.CanUndo)
	assert.Equal(t, "x", state.Data.LessonsData[0].Remark)
}

func TestLogbookService_DeleteReleasesSession(t *testing.T) {
	repo, _ := newMemoryRepo()
	bus := eventbus.NewLogbookEventBus()
	closed := closedRecorder(bus)
	svc := newTestService(repo, bus)
	ctx := context.Background()

	_, err := svc.Get(ctx, "algebra")
	require.NoError(t, err)
	require.Equal(t, 1, svc.Sessions())

	require.NoError(t, svc.Delete(ctx, "algebra"))
	assert.Equal(t, 0, svc.Sessions())
	assert.Equal(t, []string{"algebra"}, closed())
}
