package factory

import (
	"fmt"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/searxng"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/serpapi"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/tavily"
)

// NewSearcher 根据配置创建搜索实例
func NewSearcher(cfg config.SearchConfig) (search.Searcher, error) {
	switch cfg.Provider {
	case "", "serpapi":
		if cfg.SerpAPI.APIKey == "" {
			return nil, fmt.Errorf("serpapi api key is missing")
		}
		return serpapi.NewClient(cfg.SerpAPI.APIKey, serpapi.Options{
			BaseURL: cfg.SerpAPI.BaseURL,
			Engine:  cfg.SerpAPI.Engine,
			Num:     cfg.SerpAPI.Num,
			Timeout: cfg.SerpAPI.Timeout,
		}), nil

	case "tavily":
		if cfg.Tavily.APIKey == "" {
			return nil, fmt.Errorf("tavily api key is missing")
		}
		return tavily.NewClient(cfg.Tavily.APIKey, ""), nil

	case "searxng":
		if cfg.SearXNG.BaseURL == "" {
			return nil, fmt.Errorf("searxng base url is missing")
		}
		return searxng.NewClient(cfg.SearXNG.BaseURL, cfg.SearXNG.Timeout), nil

	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}
