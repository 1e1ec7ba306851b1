// Package extractor 把上传的课程文档交给 LLM，转换为可直接应用到记事本的章节列表。
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cahierdetextes/backend/internal/model"
	"github.com/cahierdetextes/backend/internal/pkg/outline"
	"github.com/cahierdetextes/backend/internal/utils"
	"k8s.io/klog/v2"
)

// ErrEmptyDocument 文档中没有可识别的文字
var ErrEmptyDocument = errors.New("document contains no text")

// Completer 以 JSON 模式调用的对话模型
type Completer interface {
	ChatJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Extractor 文档抽取器
type Extractor struct {
	llm      Completer
	maxRunes int
}

// New 创建抽取器，maxRunes > 0 时截断过长的文档
func New(llm Completer, maxRunes int) *Extractor {
	return &Extractor{llm: llm, maxRunes: maxRunes}
}

// Extract 读取文档文字，调用模型并校验结果
func (e *Extractor) Extract(ctx context.Context, filename string, r io.Reader) ([]model.Chapter, error) {
	content, err := ReadText(filename, r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}
	if e.maxRunes > 0 && utf8.RuneCountInString(content) > e.maxRunes {
		klog.Warningf("文档过长，截断: file=%s, runes=%d, max=%d", filename, utf8.RuneCountInString(content), e.maxRunes)
		content = string([]rune(content)[:e.maxRunes])
	}

	klog.V(6).Infof("开始抽取文档: file=%s, runes=%d", filename, utf8.RuneCountInString(content))
	raw, err := e.llm.ChatJSON(ctx, buildSystemPrompt(), buildUserPrompt(filename, content))
	if err != nil {
		return nil, fmt.Errorf("failed to call llm: %w", err)
	}

	chapters, err := Parse(raw)
	if err != nil {
		klog.Errorf("模型输出无法解析: file=%s, err=%v", filename, err)
		return nil, err
	}
	klog.V(6).Infof("抽取完成: file=%s, chapters=%d", filename, len(chapters))
	return chapters, nil
}

// Parse 解析模型输出：容忍外层说明文字和顶层数组，并规范化条目类型
func Parse(raw string) ([]model.Chapter, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		trimmed = `{"lessonsData":` + trimmed + `}`
	} else {
		trimmed = utils.ExtractJSON(trimmed)
	}

	chapters, err := outline.ParseExtraction([]byte(trimmed))
	if err != nil {
		return nil, err
	}
	NormalizeTypes(chapters)
	return chapters, nil
}

// NormalizeTypes 原地把所有条目类型替换为规范写法
func NormalizeTypes(chapters []model.Chapter) {
	for ci := range chapters {
		for si := range chapters[ci].Sections {
			sec := &chapters[ci].Sections[si]
			normalizeItems(sec.Items)
			for ui := range sec.SubSections {
				sub := &sec.SubSections[ui]
				normalizeItems(sub.Items)
				for ti := range sub.SubSubSections {
					normalizeItems(sub.SubSubSections[ti].Items)
				}
			}
		}
	}
}

func normalizeItems(items []model.Item) {
	for i := range items {
		items[i].Type = model.NormalizeItemType(items[i].Type)
	}
}
