package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/cahierdetextes/backend/internal/embed"
)

func TestGuideServiceRendersEmbeddedGuide(t *testing.T) {
	svc := NewGuideService(embed.GuideMarkdown)

	html, err := svc.HTML()
	if err != nil {
		t.Fatalf("HTML error: %v", err)
	}
	if !strings.Contains(string(html), "<h1>Guide d") {
		t.Fatalf("expected rendered title, got %s", html)
	}
	if !strings.Contains(string(html), "<strong>") {
		t.Fatalf("expected emphasis to be rendered")
	}

	md, err := svc.Markdown()
	if err != nil {
		t.Fatalf("Markdown error: %v", err)
	}
	if !strings.HasPrefix(string(md), "# Guide") {
		t.Fatalf("unexpected markdown prefix: %s", md[:20])
	}
}

func TestGuideServiceSourceError(t *testing.T) {
	svc := NewGuideService(func() ([]byte, error) { return nil, errors.New("missing") })
	if _, err := svc.HTML(); err == nil {
		t.Fatalf("expected error")
	}
}
