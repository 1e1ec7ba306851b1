package outline

import (
	"strings"

	"github.com/cahierdetextes/backend/internal/model"
)

// Filter 返回包含 query 的节点及其祖先构成的子树。
//
// 节点自身命中时原样保留整棵子树；仅有后代命中时保留一个浅拷贝，
// 其子集合替换为过滤后的结果。空白 query 返回输入本身。
func Filter(chapters []model.Chapter, query string) []model.Chapter {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return chapters
	}
	out := filterSlice(chapters, func(c model.Chapter) (model.Chapter, bool) {
		return filterChapter(c, q)
	})
	if out == nil {
		out = []model.Chapter{}
	}
	return out
}

// filterSlice 保持 nil 与空切片的区别：缺失的集合仍然缺失
func filterSlice[T any](in []T, keep func(T) (T, bool)) []T {
	if in == nil {
		return nil
	}
	out := make([]T, 0, len(in))
	for _, v := range in {
		if kept, ok := keep(v); ok {
			out = append(out, kept)
		}
	}
	return out
}

func filterChapter(c model.Chapter, q string) (model.Chapter, bool) {
	sections := filterSlice(c.Sections, func(s model.Section) (model.Section, bool) {
		return filterSection(s, q)
	})
	if matches(q, c.Chapter, c.Date, c.Remark) {
		return c, true
	}
	if len(sections) == 0 {
		return model.Chapter{}, false
	}
	c.Sections = sections
	return c, true
}

func filterSection(s model.Section, q string) (model.Section, bool) {
	subs := filterSlice(s.SubSections, func(sub model.SubSection) (model.SubSection, bool) {
		return filterSubSection(sub, q)
	})
	items := filterItems(s.Items, q)
	if matches(q, detailFields(s.Details, s.Name, s.Type)...) {
		return s, true
	}
	if len(subs) == 0 && len(items) == 0 {
		return model.Section{}, false
	}
	s.SubSections = subs
	s.Items = items
	return s, true
}

func filterSubSection(s model.SubSection, q string) (model.SubSection, bool) {
	subs := filterSlice(s.SubSubSections, func(sub model.SubSubSection) (model.SubSubSection, bool) {
		return filterSubSubSection(sub, q)
	})
	items := filterItems(s.Items, q)
	if matches(q, detailFields(s.Details, s.Name, s.Type)...) {
		return s, true
	}
	if len(subs) == 0 && len(items) == 0 {
		return model.SubSection{}, false
	}
	s.SubSubSections = subs
	s.Items = items
	return s, true
}

func filterSubSubSection(s model.SubSubSection, q string) (model.SubSubSection, bool) {
	items := filterItems(s.Items, q)
	if matches(q, detailFields(s.Details, s.Name, s.Type)...) {
		return s, true
	}
	if len(items) == 0 {
		return model.SubSubSection{}, false
	}
	s.Items = items
	return s, true
}

func filterItems(items []model.Item, q string) []model.Item {
	return filterSlice(items, func(it model.Item) (model.Item, bool) {
		return it, matches(q, detailFields(it.Details, "", it.Type)...)
	})
}

func detailFields(d model.Details, name, typ string) []string {
	return []string{name, typ, d.Title, d.Description, d.Remark, d.Date, d.Page, d.Number}
}

// matches 任一字段小写后包含 q
func matches(q string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
