package service

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// GuideService 渲染内置的使用指南
type GuideService struct {
	source func() ([]byte, error)

	once     sync.Once
	markdown []byte
	html     []byte
	err      error
}

// NewGuideService source 返回指南的 Markdown 原文
func NewGuideService(source func() ([]byte, error)) *GuideService {
	return &GuideService{source: source}
}

func (s *GuideService) render() {
	s.markdown, s.err = s.source()
	if s.err != nil {
		s.err = fmt.Errorf("failed to read guide: %w", s.err)
		return
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(s.markdown, &buf); err != nil {
		s.err = fmt.Errorf("failed to render guide: %w", err)
		return
	}
	s.html = buf.Bytes()
}

// HTML 指南渲染结果，只渲染一次
func (s *GuideService) HTML() ([]byte, error) {
	s.once.Do(s.render)
	return s.html, s.err
}

// Markdown 指南原文
func (s *GuideService) Markdown() ([]byte, error) {
	s.once.Do(s.render)
	return s.markdown, s.err
}
