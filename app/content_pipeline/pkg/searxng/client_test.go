package searxng

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/search"
)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" || r.URL.Query().Get("categories") != "general" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"query":"q","results":[{"title":"A","url":"https://a.org/x"},{"title":"B","url":"https://b.org/y"},{"title":"C","url":"https://c.org/z"}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, 5).Search(context.Background(), &search.Request{Query: "q", MaxResults: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(resp.Results))
	}
	if resp.Results[1].Domain != "b.org" {
		t.Errorf("Results[1] = %+v", resp.Results[1])
	}
}

func TestClient_SearchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, 5).Search(context.Background(), &search.Request{Query: "q"}); err == nil {
		t.Error("Search() should fail on 429")
	}
}
