// Package jsonx 从模型的自由文本输出中恢复 JSON。
//
// 支持三种形态：纯 JSON、``` / ```json 围栏包裹、前后带说明文字。
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON 文本中找不到 JSON 片段
var ErrNoJSON = errors.New("no JSON found in model response")

// Extract 返回文本中的 JSON 片段
// 优先按行定位：第一行以 { 或 [ 开头，最后一行以 } 或 ] 结尾；
// 找不到或结果不合法时，退化为第一个 {/[ 到最后一个 }/] 之间的内容；
// 仍不合法时，从每个 {/[ 起做括号配对扫描（忽略字符串内的括号）。
func Extract(text string) (string, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\uFEFF"))
	if text == "" {
		return "", ErrNoJSON
	}

	byLines, linesOK := sliceByLines(text)
	if linesOK && json.Valid([]byte(byLines)) {
		return byLines, nil
	}

	byBytes, bytesOK := sliceByBytes(text)
	if bytesOK && json.Valid([]byte(byBytes)) {
		return byBytes, nil
	}

	if balanced, ok := sliceBalanced(text); ok {
		return balanced, nil
	}

	switch {
	case linesOK:
		return byLines, nil
	case bytesOK:
		return byBytes, nil
	}
	return "", ErrNoJSON
}

// Decode 提取 JSON 并解析到 v
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}
	return nil
}

func sliceByLines(text string) (string, bool) {
	lines := strings.Split(text, "\n")

	start := -1
	for i, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "{") || strings.HasPrefix(l, "[") {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}

	end := -1
	for i := len(lines) - 1; i >= start; i-- {
		l := strings.TrimSpace(lines[i])
		if strings.HasSuffix(l, "}") || strings.HasSuffix(l, "]") {
			end = i
			break
		}
	}
	if end == -1 {
		return "", false
	}

	return strings.TrimSpace(strings.Join(lines[start:end+1], "\n")), true
}

func sliceByBytes(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// sliceBalanced 返回第一段括号配对且合法的 JSON
func sliceBalanced(text string) (string, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		if end, ok := matchBracket(text, i); ok && json.Valid([]byte(text[i:end+1])) {
			return text[i : end+1], true
		}
	}
	return "", false
}

// matchBracket 返回与 start 处括号配对的位置
func matchBracket(text string, start int) (int, bool) {
	var (
		stack    []byte
		inString bool
		escape   bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return 0, false
			}
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
