package search

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// Searcher 定义通用的搜索接口
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用搜索请求
type Request struct {
	Query      string
	Topic      string // "news" or "general"
	MaxResults int
	Region     string // 例如 "in"、"us"，为空时不限制
}

// Response 通用搜索响应
// Raw 保留搜索服务返回的原始 JSON，供 SERP 分析使用。
type Response struct {
	Results []Result
	Raw     json.RawMessage
}

// Result 单条搜索结果
type Result struct {
	Position      int
	Title         string
	URL           string
	Domain        string
	Content       string
	Score         float64
	PublishedDate string
}

// RawOrResults 返回原始 JSON；原始内容为空时序列化结构化结果
func (r *Response) RawOrResults() json.RawMessage {
	if len(r.Raw) > 0 {
		return r.Raw
	}
	data, err := json.Marshal(r.Results)
	if err != nil {
		return json.RawMessage("[]")
	}
	return data
}

// DomainOf 提取 URL 的主机名，去掉 www. 前缀
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
