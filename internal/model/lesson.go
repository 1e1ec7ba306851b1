package model

import "reflect"

// Settings 记事本抬头信息
type Settings struct {
	TeacherName string `json:"teacherName"`
	ClassName   string `json:"className"`
}

// LogbookData 整份文档：章节层级 + 设置
// 子集合使用 omitzero：nil 表示键不存在，空切片表示键存在但为空
type LogbookData struct {
	LessonsData []Chapter `json:"lessonsData"`
	Settings    Settings  `json:"settings"`
}

// Separator 挂在节点之后的分隔行，不属于位置子节点
type Separator struct {
	Date    string `json:"date"`
	Content string `json:"content"`
	Remark  string `json:"remark"`
	Manual  bool   `json:"manual"`
}

// Details 章节以下各级节点共有的可选字段
type Details struct {
	Title          string     `json:"title,omitempty"`
	Description    string     `json:"description,omitempty"`
	Number         string     `json:"number,omitempty"`
	Page           string     `json:"page,omitempty"`
	Date           string     `json:"date,omitempty"`
	Remark         string     `json:"remark,omitempty"`
	SeparatorAfter *Separator `json:"separatorAfter,omitempty"`
}

type Chapter struct {
	Chapter        string     `json:"chapter"`
	Sections       []Section  `json:"sections,omitzero"`
	Date           string     `json:"date,omitempty"`
	Remark         string     `json:"remark,omitempty"`
	SeparatorAfter *Separator `json:"separatorAfter,omitempty"`
}

type Section struct {
	Name        string       `json:"name"`
	Type        string       `json:"type,omitempty"`
	SubSections []SubSection `json:"subsections,omitzero"`
	Items       []Item       `json:"items,omitzero"`
	Details
}

type SubSection struct {
	Name           string          `json:"name"`
	Type           string          `json:"type,omitempty"`
	SubSubSections []SubSubSection `json:"subsubsections,omitzero"`
	Items          []Item          `json:"items,omitzero"`
	Details
}

type SubSubSection struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Items []Item `json:"items,omitzero"`
	Details
}

// Item 叶子节点
type Item struct {
	Type string `json:"type"`
	Details
}

// Element 插入子节点时的载荷，按目标集合转换为 Section 或 Item
type Element struct {
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Number      string `json:"number,omitempty"`
	Page        string `json:"page,omitempty"`
	Date        string `json:"date,omitempty"`
	Remark      string `json:"remark,omitempty"`
}

// AsItem 转换为条目
func (e Element) AsItem() Item {
	return Item{
		Type: e.Type,
		Details: Details{
			Title:       e.Title,
			Description: e.Description,
			Number:      e.Number,
			Page:        e.Page,
			Date:        e.Date,
			Remark:      e.Remark,
		},
	}
}

// AsSection 转换为小节，用于直接向章节追加
func (e Element) AsSection() Section {
	return Section{
		Name: e.Name,
		Type: e.Type,
		Details: Details{
			Title:       e.Title,
			Description: e.Description,
			Number:      e.Number,
			Page:        e.Page,
			Date:        e.Date,
			Remark:      e.Remark,
		},
	}
}

// Clone 深拷贝整份文档，保留子集合的存在性（nil 与空切片不同）
func (d LogbookData) Clone() LogbookData {
	return LogbookData{
		LessonsData: CloneChapters(d.LessonsData),
		Settings:    d.Settings,
	}
}

// Equal 结构相等
func (d LogbookData) Equal(other LogbookData) bool {
	return reflect.DeepEqual(d, other)
}

func CloneChapters(in []Chapter) []Chapter {
	if in == nil {
		return nil
	}
	out := make([]Chapter, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func (c Chapter) Clone() Chapter {
	out := c
	out.SeparatorAfter = c.SeparatorAfter.Clone()
	if c.Sections != nil {
		out.Sections = make([]Section, len(c.Sections))
		for i, s := range c.Sections {
			out.Sections[i] = s.Clone()
		}
	}
	return out
}

func (s Section) Clone() Section {
	out := s
	out.Details = s.Details.Clone()
	if s.SubSections != nil {
		out.SubSections = make([]SubSection, len(s.SubSections))
		for i, sub := range s.SubSections {
			out.SubSections[i] = sub.Clone()
		}
	}
	out.Items = cloneItems(s.Items)
	return out
}

func (s SubSection) Clone() SubSection {
	out := s
	out.Details = s.Details.Clone()
	if s.SubSubSections != nil {
		out.SubSubSections = make([]SubSubSection, len(s.SubSubSections))
		for i, sub := range s.SubSubSections {
			out.SubSubSections[i] = sub.Clone()
		}
	}
	out.Items = cloneItems(s.Items)
	return out
}

func (s SubSubSection) Clone() SubSubSection {
	out := s
	out.Details = s.Details.Clone()
	out.Items = cloneItems(s.Items)
	return out
}

func (it Item) Clone() Item {
	out := it
	out.Details = it.Details.Clone()
	return out
}

func (d Details) Clone() Details {
	out := d
	out.SeparatorAfter = d.SeparatorAfter.Clone()
	return out
}

func (s *Separator) Clone() *Separator {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

func cloneItems(in []Item) []Item {
	if in == nil {
		return nil
	}
	out := make([]Item, len(in))
	for i, it := range in {
		out[i] = it.Clone()
	}
	return out
}
