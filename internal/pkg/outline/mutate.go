package outline

import (
	"errors"
	"slices"
	"strconv"

	"github.com/cahierdetextes/backend/internal/model"
	"k8s.io/klog/v2"
)

var (
	ErrSeparatorExists = errors.New("separator already exists")
)

// DefaultSeparatorContent 手动插入的分隔行默认内容
const DefaultSeparatorContent = "--- Séparateur Manuel ---"

// 以下操作都先深拷贝整份文档再编辑，输入永远不被修改；
// 路径不存在时返回未改动的副本。

// SetField 设置节点的字段；路径带 IsSeparator 时作用于分隔行
func SetField(doc model.LogbookData, idx Indices, field, value string) model.LogbookData {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx)
	if found.Node != nil {
		setField(found.Node, field, value)
	}
	return next
}

// SetSeparatorField 设置路径所属节点之后分隔行的字段，没有分隔行时不做任何事
func SetSeparatorField(doc model.LogbookData, idx Indices, field, value string) model.LogbookData {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx.Separator())
	if sep, ok := found.Node.(*model.Separator); ok {
		setField(sep, field, value)
	}
	return next
}

// InsertChild 在路径节点的子集合末尾追加元素
func InsertChild(doc model.LogbookData, idx Indices, elem model.Element) model.LogbookData {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx.Owner())
	if found.Node == nil {
		return next
	}
	if ChildKey(found.Node) == SlotNone {
		klog.V(6).Infof("节点没有子集合，忽略插入: %q", Label(found.Node))
		return next
	}

	switch n := found.Node.(type) {
	case *model.Chapter:
		n.Sections = append(n.Sections, elem.AsSection())
	case *model.Section:
		n.Items = append(n.Items, elem.AsItem())
	case *model.SubSection:
		n.Items = append(n.Items, elem.AsItem())
	case *model.SubSubSection:
		n.Items = append(n.Items, elem.AsItem())
	}
	return next
}

// ChildKey 插入子节点时使用的集合：章节为 sections，其余容器为 items，
// 条目和分隔行没有子集合
func ChildKey(node Node) SlotKey {
	switch node.(type) {
	case *model.Chapter:
		return SlotSections
	case *model.Section, *model.SubSection, *model.SubSubSection:
		return SlotItems
	}
	return SlotNone
}

// Delete 删除路径指向的节点及其整棵子树
func Delete(doc model.LogbookData, idx Indices) model.LogbookData {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx)
	if found.Parent == nil || found.Index < 0 {
		return next
	}
	removeChild(found.Parent, found.Key, found.Index)
	return next
}

// DeleteChapters 一次删除多个章节，越界位置忽略
func DeleteChapters(doc model.LogbookData, positions []int) model.LogbookData {
	next := doc.Clone()
	if next.LessonsData == nil {
		return next
	}
	drop := make(map[int]bool, len(positions))
	for _, p := range positions {
		drop[p] = true
	}
	kept := make([]model.Chapter, 0, len(next.LessonsData))
	for i, c := range next.LessonsData {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	next.LessonsData = kept
	return next
}

// AttachSeparator 在路径节点之后插入分隔行。已存在时返回 ErrSeparatorExists 和原文档
func AttachSeparator(doc model.LogbookData, idx Indices, date string) (model.LogbookData, error) {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx.Owner())
	slot := separatorSlot(found.Node)
	if slot == nil {
		return next, nil
	}
	if *slot != nil {
		return doc, ErrSeparatorExists
	}
	*slot = &model.Separator{
		Date:    date,
		Content: DefaultSeparatorContent,
		Manual:  true,
	}
	return next, nil
}

// DetachSeparator 删除路径节点之后的分隔行
func DetachSeparator(doc model.LogbookData, idx Indices) model.LogbookData {
	next := doc.Clone()
	found := resolve(rootOf(&next), idx.Owner())
	if slot := separatorSlot(found.Node); slot != nil {
		*slot = nil
	}
	return next
}

// WithSettings 替换抬头设置
func WithSettings(doc model.LogbookData, settings model.Settings) model.LogbookData {
	next := doc.Clone()
	next.Settings = settings
	return next
}

func rootOf(doc *model.LogbookData) *Root {
	return &Root{Chapters: &doc.LessonsData}
}

func removeChild(parent Node, key SlotKey, i int) {
	switch p := parent.(type) {
	case *Root:
		if key == SlotSections && i < len(*p.Chapters) {
			*p.Chapters = slices.Delete(*p.Chapters, i, i+1)
		}
	case *model.Chapter:
		if key == SlotSections && i < len(p.Sections) {
			p.Sections = slices.Delete(p.Sections, i, i+1)
		}
	case *model.Section:
		switch {
		case key == SlotSubsections && i < len(p.SubSections):
			p.SubSections = slices.Delete(p.SubSections, i, i+1)
		case key == SlotItems && i < len(p.Items):
			p.Items = slices.Delete(p.Items, i, i+1)
		}
	case *model.SubSection:
		switch {
		case key == SlotSubsubsections && i < len(p.SubSubSections):
			p.SubSubSections = slices.Delete(p.SubSubSections, i, i+1)
		case key == SlotItems && i < len(p.Items):
			p.Items = slices.Delete(p.Items, i, i+1)
		}
	case *model.SubSubSection:
		if key == SlotItems && i < len(p.Items) {
			p.Items = slices.Delete(p.Items, i, i+1)
		}
	}
}

// setField 按 JSON 字段名写入；未知字段返回 false
func setField(node Node, field, value string) bool {
	switch n := node.(type) {
	case *model.Chapter:
		switch field {
		case "chapter":
			n.Chapter = value
		case "date":
			n.Date = value
		case "remark":
			n.Remark = value
		default:
			return false
		}
		return true
	case *model.Section:
		return setNamed(&n.Name, &n.Type, &n.Details, field, value)
	case *model.SubSection:
		return setNamed(&n.Name, &n.Type, &n.Details, field, value)
	case *model.SubSubSection:
		return setNamed(&n.Name, &n.Type, &n.Details, field, value)
	case *model.Item:
		if field == "type" {
			n.Type = value
			return true
		}
		return setDetail(&n.Details, field, value)
	case *model.Separator:
		switch field {
		case "date":
			n.Date = value
		case "content":
			n.Content = value
		case "remark":
			n.Remark = value
		case "manual":
			manual, err := strconv.ParseBool(value)
			if err != nil {
				return false
			}
			n.Manual = manual
		default:
			return false
		}
		return true
	}
	return false
}

func setNamed(name, typ *string, d *model.Details, field, value string) bool {
	switch field {
	case "name":
		*name = value
	case "type":
		*typ = value
	default:
		return setDetail(d, field, value)
	}
	return true
}

func setDetail(d *model.Details, field, value string) bool {
	switch field {
	case "title":
		d.Title = value
	case "description":
		d.Description = value
	case "number":
		d.Number = value
	case "page":
		d.Page = value
	case "date":
		d.Date = value
	case "remark":
		d.Remark = value
	default:
		return false
	}
	return true
}
