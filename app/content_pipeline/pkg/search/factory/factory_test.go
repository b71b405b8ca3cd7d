package factory

import (
	"testing"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/searxng"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/serpapi"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/tavily"
)

func TestNewSearcher(t *testing.T) {
	s, err := NewSearcher(config.SearchConfig{SerpAPI: config.SerpAPIConfig{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewSearcher(default) error = %v", err)
	}
	if _, ok := s.(*serpapi.Client); !ok {
		t.Errorf("default provider = %T, want *serpapi.Client", s)
	}

	s, err = NewSearcher(config.SearchConfig{Provider: "tavily", Tavily: config.TavilyConfig{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewSearcher(tavily) error = %v", err)
	}
	if _, ok := s.(*tavily.Client); !ok {
		t.Errorf("provider = %T, want *tavily.Client", s)
	}

	s, err = NewSearcher(config.SearchConfig{Provider: "searxng", SearXNG: config.SearXNGConfig{BaseURL: "http://localhost:8080"}})
	if err != nil {
		t.Fatalf("NewSearcher(searxng) error = %v", err)
	}
	if _, ok := s.(*searxng.Client); !ok {
		t.Errorf("provider = %T, want *searxng.Client", s)
	}
}

func TestNewSearcher_Errors(t *testing.T) {
	cases := []config.SearchConfig{
		{Provider: "serpapi"},
		{Provider: "tavily"},
		{Provider: "searxng"},
		{Provider: "bing"},
	}
	for _, c := range cases {
		if _, err := NewSearcher(c); err == nil {
			t.Errorf("NewSearcher(%q) should fail", c.Provider)
		}
	}
}
