// Package document 将上传的文档转换为纯文本，供主题提取使用。
package document

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
)

// Kind 文档类型
type Kind string

const (
	KindText Kind = "text"
	KindHTML Kind = "html"
	KindPDF  Kind = "pdf"
)

// Detect 根据文件名、Content-Type 与内容判断文档类型
func Detect(name, contentType string, data []byte) Kind {
	ct := strings.ToLower(contentType)
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case strings.Contains(ct, "pdf"), ext == ".pdf", bytes.HasPrefix(data, []byte("%PDF-")):
		return KindPDF
	case strings.Contains(ct, "html"), ext == ".html", ext == ".htm":
		return KindHTML
	}
	head := strings.ToLower(string(bytes.TrimSpace(data[:min(len(data), 512)])))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") {
		return KindHTML
	}
	return KindText
}

// Extract 返回文档的正文文本
// HTML 通过 readability 提取正文；纯文本与 Markdown 原样返回并丢弃非法 UTF-8 字节；PDF 不支持。
func Extract(name, contentType string, data []byte) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", errcode.Validation("document %q is empty", name)
	}

	switch Detect(name, contentType, data) {
	case KindPDF:
		return "", errcode.UnsupportedDocument("PDF documents are not supported: %s", name)
	case KindHTML:
		article, err := readability.FromReader(bytes.NewReader(data), &url.URL{Scheme: "file", Path: "/" + name})
		if err != nil {
			return "", errcode.Validation("parse html document %q: %v", name, err)
		}
		text := strings.TrimSpace(article.TextContent)
		if text == "" {
			return "", errcode.Validation("document %q has no readable content", name)
		}
		return text, nil
	default:
		return strings.TrimSpace(sanitize(data)), nil
	}
}

func sanitize(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
