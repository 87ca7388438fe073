package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/pkg/httpretry"
)

func TestSourceLabel(t *testing.T) {
	tests := map[string]string{
		"https://www.techcrunch.com/x": "techcrunch.com",
		"https://TechCrunch.com/x?y=1": "techcrunch.com",
		"not a url":                    "",
		"":                             "",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, SourceLabel(in))
		})
	}
}

func TestNewsAPI_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "Acme Corp", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","articles":[
			{"source":{"name":"TechCrunch"},"title":"Acme raises $10M","description":"<p>Series A &amp; more</p>","url":"https://www.techcrunch.com/x","publishedAt":"2026-03-01T10:00:00Z"},
			{"source":{"name":"x"},"title":"[Removed]","url":"https://removed.com"}
		]}`))
	}))
	defer srv.Close()

	src := NewNewsAPI(httpretry.NewRetryClient(nil, 0), srv.URL, "secret", 10)
	hits, err := src.Search(context.Background(), "Acme Corp")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Acme raises $10M", hits[0].Title)
	assert.Equal(t, "https://www.techcrunch.com/x", hits[0].Link)
	assert.Equal(t, "Series A & more", hits[0].Snippet)
	assert.Equal(t, "techcrunch.com", hits[0].SourceLabel)
	require.NotNil(t, hits[0].PublishedAt)
}

func TestNewsAPI_ErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":"error","code":"rateLimited","message":"slow down"}`))
	}))
	defer srv.Close()

	src, err := New(Options{Provider: ProviderNewsAPI, APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = src.Search(context.Background(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rateLimited")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

const googleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>"Jane Doe" - Google News</title>
<item>
  <title>Jane Doe named CTO of Acme - Reuters</title>
  <link>https://news.google.com/rss/articles/abc</link>
  <description>&lt;a href="x"&gt;Jane Doe named CTO&lt;/a&gt;</description>
  <pubDate>Sun, 01 Mar 2026 10:00:00 GMT</pubDate>
</item>
<item>
  <title>Second story - Bloomberg</title>
  <link>https://news.google.com/rss/articles/def</link>
</item>
</channel></rss>`

func TestGoogleNews_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"Jane Doe"`, r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(googleFeed))
	}))
	defer srv.Close()

	src := NewGoogleNews(httpretry.NewRetryClient(nil, 0), srv.URL, 1)
	hits, err := src.Search(context.Background(), `"Jane Doe"`)
	require.NoError(t, err)
	require.Len(t, hits, 1, "max results caps the list")
	assert.Equal(t, "Jane Doe named CTO of Acme", hits[0].Title)
	assert.Equal(t, "Reuters", hits[0].SourceLabel)
	assert.Equal(t, "Jane Doe named CTO", hits[0].Snippet)
	require.NotNil(t, hits[0].PublishedAt)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Options{Provider: "bing"})
	assert.Error(t, err)
	_, err = New(Options{Provider: ProviderNewsAPI})
	assert.Error(t, err, "newsapi needs a key")
}
