package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	pdflib "github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupportedFile 不支持的文件类型
var ErrUnsupportedFile = errors.New("unsupported file type")

// SupportedExtensions 可以抽取文本的文件扩展名
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".docx":     true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// SpoolDir pdf 与 docx 解析时临时文件所在目录，为空时使用系统临时目录
var SpoolDir string

// IsSupported 按扩展名判断是否可以抽取
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// ReadText 按扩展名读取文档的纯文本
func ReadText(filename string, r io.Reader) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return pdfText(r)
	case ".docx":
		return docxText(r)
	case ".md", ".markdown":
		return markdownText(r)
	case ".txt":
		data, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(filename))
	}
}

// spool 把上传内容写入临时文件，pdf 与 docx 解析都需要随机访问
func spool(r io.Reader, pattern string) (*os.File, int64, error) {
	tmp, err := os.CreateTemp(SpoolDir, pattern)
	if err != nil {
		return nil, 0, fmt.Errorf("create temp file: %w", err)
	}
	size, err := io.Copy(tmp, r)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, fmt.Errorf("write temp file: %w", err)
	}
	return tmp, size, nil
}

func pdfText(r io.Reader) (string, error) {
	tmp, _, err := spool(r, "cahier-pdf-*.pdf")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	f, reader, err := pdflib.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(strings.TrimSpace(content))
	}
	return strings.TrimSpace(buf.String()), nil
}

func docxText(r io.Reader) (string, error) {
	tmp, size, err := spool(r, "cahier-docx-*.docx")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	doc, err := docx.Parse(tmp, size)
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}

	var lines []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		line := paragraphText(para)
		if line == "" {
			continue
		}
		if level := headingLevel(para); level > 0 {
			line = strings.Repeat("#", level) + " " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

func headingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	for level := 1; level <= 6; level++ {
		if style == fmt.Sprintf("heading%d", level) || style == fmt.Sprintf("titre%d", level) {
			return level
		}
	}
	return 0
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// markdownText 保留标题层级标记，其余块只取文字
func markdownText(r io.Reader) (string, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var blocks []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		content := nodeText(n, src)
		if content == "" {
			continue
		}
		if heading, ok := n.(*ast.Heading); ok {
			content = strings.Repeat("#", heading.Level) + " " + content
		}
		blocks = append(blocks, content)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if c.Type() == ast.TypeBlock && buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(nodeText(c, src))
	}
	return strings.TrimSpace(buf.String())
}
