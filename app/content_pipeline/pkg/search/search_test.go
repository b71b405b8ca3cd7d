package search

import "testing"

func TestDomainOf(t *testing.T) {
	cases := map[string]string{
		"https://www.WHO.int/news":    "who.int",
		"http://blog.example.in:8080": "blog.example.in",
		"not a url":                   "",
		"":                            "",
	}
	for in, want := range cases {
		if got := DomainOf(in); got != want {
			t.Errorf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResponse_RawOrResults(t *testing.T) {
	r := &Response{Raw: []byte(`{"organic_results":[]}`)}
	if string(r.RawOrResults()) != `{"organic_results":[]}` {
		t.Errorf("RawOrResults() = %s", r.RawOrResults())
	}

	r = &Response{Results: []Result{{Title: "t"}}}
	if len(r.RawOrResults()) == 0 || string(r.RawOrResults()) == "[]" {
		t.Errorf("RawOrResults() should serialize results, got %s", r.RawOrResults())
	}
}
