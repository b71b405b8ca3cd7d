package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
)

// DefaultBaseURL SerpAPI 搜索接口地址
const DefaultBaseURL = "https://serpapi.com/search.json"

// Client SerpAPI 客户端，一次搜索即一次 GET 请求
type Client struct {
	apiKey  string
	baseURL string
	engine  string
	num     int
	client  *http.Client
}

// Options 客户端可选参数
type Options struct {
	BaseURL string
	Engine  string
	Num     int
	Timeout int // 秒
}

// NewClient 创建一个新的 SerpAPI 客户端
func NewClient(apiKey string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Engine == "" {
		opts.Engine = "google"
	}
	if opts.Num == 0 {
		opts.Num = 10
	}
	timeout := time.Duration(opts.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: opts.BaseURL,
		engine:  opts.Engine,
		num:     opts.Num,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ensure Client implements search.Searcher
var _ search.Searcher = (*Client)(nil)

// SearchResponse SerpAPI 响应中用到的部分
type SearchResponse struct {
	SearchMetadata struct {
		Status string `json:"status"`
	} `json:"search_metadata"`
	Error          string          `json:"error"`
	OrganicResults []OrganicResult `json:"organic_results"`
}

// OrganicResult 自然搜索结果
type OrganicResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Date     string `json:"date"`
}

// Search implements search.Searcher
func (c *Client) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	num := c.num
	if req.MaxResults > 0 {
		num = req.MaxResults
	}

	q := u.Query()
	q.Set("engine", c.engine)
	q.Set("q", req.Query)
	q.Set("num", strconv.Itoa(num))
	q.Set("api_key", c.apiKey)
	if req.Region != "" {
		q.Set("gl", req.Region)
	}
	if req.Topic == "news" {
		q.Set("tbm", "nws")
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		// 错误信息中的 URL 带有 api_key，输出前去掉查询参数
		if ue, ok := err.(*url.Error); ok {
			ue.URL = c.baseURL
		}
		return nil, errcode.Upstream(err, "serpapi request failed")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errcode.Upstream(err, "serpapi read body failed")
	}

	if res.StatusCode != http.StatusOK {
		return nil, errcode.Upstream(fmt.Errorf("status %d: %s", res.StatusCode, string(body)), "serpapi api error (status %d)", res.StatusCode)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, errcode.Upstream(err, "serpapi unmarshal response failed")
	}
	if searchResp.Error != "" {
		return nil, errcode.Upstream(fmt.Errorf("%s", searchResp.Error), "serpapi error: %s", searchResp.Error)
	}

	results := make([]search.Result, 0, len(searchResp.OrganicResults))
	for _, r := range searchResp.OrganicResults {
		results = append(results, search.Result{
			Position:      r.Position,
			Title:         r.Title,
			URL:           r.Link,
			Domain:        search.DomainOf(r.Link),
			Content:       r.Snippet,
			PublishedDate: r.Date,
		})
	}

	return &search.Response{Results: results, Raw: json.RawMessage(body)}, nil
}
