package outline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cahierdetextes/backend/internal/model"
)

var (
	ErrInvalidFormat     = errors.New("invalid logbook format")
	ErrInvalidChapter    = errors.New("incomplete chapter")
	ErrInvalidImportMode = errors.New("invalid import mode")
)

// ImportMode 导入方式
type ImportMode string

const (
	ImportReplace ImportMode = "replace"
	ImportAppend  ImportMode = "append"
)

// ImportPayload 解析后的导入文件；Settings 为 nil 表示文件未携带设置
type ImportPayload struct {
	LessonsData []model.Chapter
	Settings    *model.Settings
}

type importFile struct {
	LessonsData json.RawMessage `json:"lessonsData"`
	Settings    *model.Settings `json:"settings"`
}

// ParseImport 校验并解析导入文件，lessonsData 必须存在且为数组
func ParseImport(data []byte) (*ImportPayload, error) {
	var file importFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if !isArray(file.LessonsData) {
		return nil, fmt.Errorf("%w: lessonsData must be an array", ErrInvalidFormat)
	}

	var chapters []model.Chapter
	if err := json.Unmarshal(file.LessonsData, &chapters); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return &ImportPayload{LessonsData: chapters, Settings: file.Settings}, nil
}

// Import 按 mode 合并导入内容，设置仅在文件携带时替换
func Import(doc model.LogbookData, payload *ImportPayload, mode ImportMode) (model.LogbookData, error) {
	next := doc.Clone()
	imported := model.CloneChapters(payload.LessonsData)

	switch mode {
	case ImportReplace, "":
		if imported == nil {
			imported = []model.Chapter{}
		}
		next.LessonsData = imported
	case ImportAppend:
		next.LessonsData = append(next.LessonsData, imported...)
		if next.LessonsData == nil {
			next.LessonsData = []model.Chapter{}
		}
	default:
		return doc, fmt.Errorf("%w: %s", ErrInvalidImportMode, mode)
	}

	if payload.Settings != nil {
		next.Settings = *payload.Settings
	}
	return next, nil
}

type extraction struct {
	LessonsData json.RawMessage `json:"lessonsData"`
}

// ParseExtraction 解析抽取结果 {"lessonsData": [...]} 并校验每个章节
func ParseExtraction(data []byte) ([]model.Chapter, error) {
	var ext extraction
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if !isArray(ext.LessonsData) {
		return nil, fmt.Errorf("%w: lessonsData must be an array", ErrInvalidFormat)
	}

	var chapters []model.Chapter
	if err := json.Unmarshal(ext.LessonsData, &chapters); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := CheckChapters(chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}

// CheckChapters 每个章节都要有标题且带 sections 数组
func CheckChapters(chapters []model.Chapter) error {
	for i, c := range chapters {
		if c.Chapter == "" || c.Sections == nil {
			return fmt.Errorf("%w: chapter %d", ErrInvalidChapter, i)
		}
	}
	return nil
}

// ApplyExtraction 用抽取出的章节替换文档主体，保留设置
func ApplyExtraction(doc model.LogbookData, chapters []model.Chapter) (model.LogbookData, error) {
	if err := CheckChapters(chapters); err != nil {
		return doc, err
	}
	next := doc.Clone()
	next.LessonsData = model.CloneChapters(chapters)
	if next.LessonsData == nil {
		next.LessonsData = []model.Chapter{}
	}
	return next, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
