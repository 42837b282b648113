package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
)

var acme = contracts.Company{ID: "acme.io", Name: "Acme", Industry: "fintech"}

func newTestClient(t *testing.T, key string, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL, key)
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"everything", "Acme (acme.io) fintech security", 1.0},
		{"name only", "Acme ships", 0.4},
		{"name and term", "Acme breach", 0.5},
		{"nothing", "weather report", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Relevance(tt.text, acme, []string{"security", "breach"}))
		})
	}
}

func TestFetch(t *testing.T) {
	client := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/everything", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-Api-Key"))
		assert.Equal(t, `("Acme" OR "acme.io") AND (security OR funding)`, r.URL.Query().Get("q"))
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("from"))
		_, _ = w.Write([]byte(`{
		  "status": "ok",
		  "totalResults": 2,
		  "articles": [
		    {"source": {"name": "TechWire"}, "title": "Acme raises Series B", "description": "fintech funding round",
		     "url": "https://techwire.example/acme-series-b?utm_source=x", "publishedAt": "2024-03-05T08:00:00Z"},
		    {"source": {"name": "Blog"}, "title": "Security roundup", "description": "mentions acme.io",
		     "url": "https://blog.example/roundup", "publishedAt": "2024-03-04T08:00:00Z"}
		  ]
		}`))
	})

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	obs, err := client.Fetch(context.Background(), acme, []string{"security", "funding"}, since)
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, contracts.CategoryNewsMention, obs[0].Category)
	// name + industry + term
	assert.Equal(t, 0.7, obs[0].Confidence)
	assert.Equal(t, contracts.CategoryFundingEvent, obs[1].Category)
	assert.Equal(t, obs[0].DedupKey, obs[1].DedupKey)
	// raises, series b, funding
	assert.Equal(t, 1.0, obs[1].Confidence)

	assert.Equal(t, contracts.CategoryNewsMention, obs[2].Category)
	// the domain also contains the name, plus a term
	assert.Equal(t, 0.8, obs[2].Confidence)
}

func TestFetch_APIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   contracts.ErrorKind
	}{
		{"invalid key", http.StatusUnauthorized, `{"status":"error","code":"apiKeyInvalid","message":"bad"}`, contracts.KindAuth},
		{"rate limited", http.StatusTooManyRequests, `{"status":"error","code":"rateLimited","message":"slow"}`, contracts.KindRateLimited},
		{"exhausted", http.StatusTooManyRequests, `{"status":"error","code":"apiKeyExhausted"}`, contracts.KindRateLimited},
		{"server", http.StatusInternalServerError, `{"status":"error","code":"unexpectedError"}`, contracts.KindSourceUnavailable},
		{"error envelope with 200", http.StatusOK, `{"status":"error","code":"parameterInvalid"}`, contracts.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.Fetch(context.Background(), acme, nil, time.Time{})
			assert.Equal(t, tt.want, contracts.KindOf(err))
		})
	}
}

func TestFetch_SkipsArticleWithoutURL(t *testing.T) {
	client := newTestClient(t, "k", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","totalResults":2,"articles":[
		  {"title":"Acme no link","publishedAt":"2024-03-05T08:00:00Z"},
		  {"title":"Acme security update","url":"https://news.example/acme","publishedAt":"2024-03-05T09:00:00Z"}
		]}`))
	})

	obs, err := client.Fetch(context.Background(), acme, []string{"security"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, contracts.CategoryNewsMention, obs[0].Category)
	assert.Equal(t, "https://news.example/acme", obs[0].DedupKey)
}

func TestFetch_MissingKeyIsAuthError(t *testing.T) {
	client := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a key")
	})
	_, err := client.Fetch(context.Background(), acme, nil, time.Time{})
	assert.ErrorIs(t, err, contracts.ErrAuth)
}
