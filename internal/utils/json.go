package utils

import (
	"k8s.io/klog/v2"
)

// ExtractJSON 从文本中提取第一个完整的 JSON 对象，字符串内的括号不计入层级；
// 找不到时返回原始内容
func ExtractJSON(content string) string {
	start := -1
	end := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range content {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}

	if start >= 0 && end > start {
		return content[start:end]
	}

	klog.V(6).Infof("[ExtractJSON] 未找到完整 JSON 对象，返回原始内容")
	return content
}
