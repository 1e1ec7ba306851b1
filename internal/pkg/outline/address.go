// Package outline 实现章节层级的位置寻址、写时复制的编辑操作以及搜索过滤。
//
// 节点没有稳定 ID，只能通过位置路径 Indices 定位；任何结构性修改之后，
// 调用方持有的旧路径都可能指向别的节点，需要重新解析。
package outline

import (
	"encoding/json"

	"github.com/cahierdetextes/backend/internal/model"
	"k8s.io/klog/v2"
)

// SlotKey 节点在父节点中所在的集合
type SlotKey string

const (
	SlotNone           SlotKey = ""
	SlotSections       SlotKey = "sections"
	SlotSubsections    SlotKey = "subsections"
	SlotSubsubsections SlotKey = "subsubsections"
	SlotItems          SlotKey = "items"
	SlotSeparatorAfter SlotKey = "separatorAfter"
)

// Indices 位置路径，除 ChapterIndex 外各级可选
type Indices struct {
	ChapterIndex       int  `json:"chapterIndex"`
	SectionIndex       *int `json:"sectionIndex,omitempty"`
	SubsectionIndex    *int `json:"subsectionIndex,omitempty"`
	SubsubsectionIndex *int `json:"subsubsectionIndex,omitempty"`
	ItemIndex          *int `json:"itemIndex,omitempty"`
	IsSeparator        bool `json:"isSeparator,omitempty"`
}

// NoChapter 解码时缺少 chapterIndex 的标记，解析结果总是不存在
const NoChapter = -1

// UnmarshalJSON 缺少 chapterIndex 时置为 NoChapter，而不是默认指向第一个章节
func (i *Indices) UnmarshalJSON(data []byte) error {
	type plain Indices
	var wire struct {
		plain
		ChapterIndex *int `json:"chapterIndex"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*i = Indices(wire.plain)
	i.ChapterIndex = NoChapter
	if wire.ChapterIndex != nil {
		i.ChapterIndex = *wire.ChapterIndex
	}
	return nil
}

// HasChapter 路径是否带有效的章节下标
func (i Indices) HasChapter() bool {
	return i.ChapterIndex >= 0
}

// At 指向第 chapter 个章节的路径
func At(chapter int) Indices {
	return Indices{ChapterIndex: chapter}
}

func (i Indices) Section(n int) Indices {
	i.SectionIndex = &n
	return i
}

func (i Indices) Subsection(n int) Indices {
	i.SubsectionIndex = &n
	return i
}

func (i Indices) Subsubsection(n int) Indices {
	i.SubsubsectionIndex = &n
	return i
}

func (i Indices) Item(n int) Indices {
	i.ItemIndex = &n
	return i
}

// Separator 指向该路径节点之后的分隔行
func (i Indices) Separator() Indices {
	i.IsSeparator = true
	return i
}

// Owner 去掉分隔行标记，指向分隔行的所属节点
func (i Indices) Owner() Indices {
	i.IsSeparator = false
	return i
}

// Node 可被定位的对象：*model.Chapter、*model.Section、*model.SubSection、
// *model.SubSubSection、*model.Item、*model.Separator，或根容器 *Root
type Node any

// Root 章节列表的伪父节点，章节在其中的集合名为 sections
type Root struct {
	Chapters *[]model.Chapter
}

// Found 解析结果；Node 为 nil 表示路径当前不存在
type Found struct {
	Parent Node
	Node   Node
	Key    SlotKey
	Index  int
}

func notFound() Found {
	return Found{Index: -1}
}

// Resolve 按路径自顶向下查找节点。只读，不修改 chapters；
// 路径越界或集合缺失时返回 Node 为 nil 的结果而不是错误。
// 返回的指针指向 chapters 的元素，只应在副本上据此修改。
func Resolve(chapters []model.Chapter, idx Indices) Found {
	return resolve(&Root{Chapters: &chapters}, idx)
}

func resolve(root *Root, idx Indices) (found Found) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("解析路径失败: indices=%+v, err=%v", idx, r)
			found = notFound()
		}
	}()

	if idx.IsSeparator {
		owner := resolve(root, idx.Owner())
		if owner.Node == nil {
			return Found{Key: SlotSeparatorAfter, Index: -1}
		}
		found = Found{Parent: owner.Node, Key: SlotSeparatorAfter, Index: -1}
		if slot := separatorSlot(owner.Node); slot != nil && *slot != nil {
			found.Node = *slot
		}
		return found
	}

	chapters := *root.Chapters
	if idx.ChapterIndex < 0 || idx.ChapterIndex >= len(chapters) {
		return notFound()
	}
	found = Found{
		Parent: root,
		Node:   &chapters[idx.ChapterIndex],
		Key:    SlotSections,
		Index:  idx.ChapterIndex,
	}

	steps := []struct {
		index *int
		key   SlotKey
	}{
		{idx.SectionIndex, SlotSections},
		{idx.SubsectionIndex, SlotSubsections},
		{idx.SubsubsectionIndex, SlotSubsubsections},
		{idx.ItemIndex, SlotItems},
	}
	for _, step := range steps {
		if step.index == nil {
			continue
		}
		if found.Node == nil {
			break
		}
		parent := found.Node
		found = Found{
			Parent: parent,
			Node:   child(parent, step.key, *step.index),
			Key:    step.key,
			Index:  *step.index,
		}
	}
	return found
}

// child 读取 parent 的 key 集合中第 i 个元素，不存在时返回 nil
func child(parent Node, key SlotKey, i int) Node {
	if i < 0 {
		return nil
	}
	switch p := parent.(type) {
	case *model.Chapter:
		if key == SlotSections && i < len(p.Sections) {
			return &p.Sections[i]
		}
	case *model.Section:
		switch {
		case key == SlotSubsections && i < len(p.SubSections):
			return &p.SubSections[i]
		case key == SlotItems && i < len(p.Items):
			return &p.Items[i]
		}
	case *model.SubSection:
		switch {
		case key == SlotSubsubsections && i < len(p.SubSubSections):
			return &p.SubSubSections[i]
		case key == SlotItems && i < len(p.Items):
			return &p.Items[i]
		}
	case *model.SubSubSection:
		if key == SlotItems && i < len(p.Items) {
			return &p.Items[i]
		}
	}
	return nil
}

// separatorSlot 返回节点 separatorAfter 字段的地址；分隔行和根容器没有该字段
func separatorSlot(node Node) **model.Separator {
	switch n := node.(type) {
	case *model.Chapter:
		return &n.SeparatorAfter
	case *model.Section:
		return &n.SeparatorAfter
	case *model.SubSection:
		return &n.SeparatorAfter
	case *model.SubSubSection:
		return &n.SeparatorAfter
	case *model.Item:
		return &n.SeparatorAfter
	}
	return nil
}

// DateOf 节点的 date 字段
func DateOf(node Node) string {
	switch n := node.(type) {
	case *model.Chapter:
		return n.Date
	case *model.Section:
		return n.Date
	case *model.SubSection:
		return n.Date
	case *model.SubSubSection:
		return n.Date
	case *model.Item:
		return n.Date
	case *model.Separator:
		return n.Date
	}
	return ""
}

// Label 节点的展示名称
func Label(node Node) string {
	switch n := node.(type) {
	case *model.Chapter:
		return n.Chapter
	case *model.Section:
		return n.Name
	case *model.SubSection:
		return n.Name
	case *model.SubSubSection:
		return n.Name
	case *model.Item:
		if n.Title != "" {
			return n.Title
		}
		return n.Type
	case *model.Separator:
		return n.Content
	}
	return ""
}
