package reddit

import (
	"context"
	"encoding/json"
	"fmt"
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

func child(name, title, body string, created time.Time) map[string]any {
	return map[string]any{
		"kind": "t3",
		"data": map[string]any{
			"name":        name,
			"title":       title,
			"selftext":    body,
			"subreddit":   "netsec",
			"permalink":   "/r/netsec/comments/" + name,
			"created_utc": float64(created.Unix()),
		},
	}
}

func listingJSON(after string, children ...map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{"data": map[string]any{"after": after, "children": children}})
	return b
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		security, pain int
		mentioned      bool
		want           float64
	}{
		{0, 0, false, 0.1},
		{1, 0, false, 0.25},
		{2, 1, true, 0.7},
		{10, 10, true, 1.0},
		{4, 0, false, 0.6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%v", tt.security, tt.pain, tt.mentioned), func(t *testing.T) {
			assert.Equal(t, tt.want, Confidence(tt.security, tt.pain, tt.mentioned))
		})
	}
}

func TestFetch_PagesUntilSince(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, `"Acme" (breach OR soc 2)`, r.URL.Query().Get("q"))

		switch r.URL.Query().Get("after") {
		case "":
			_, _ = w.Write(listingJSON("t3_b",
				child("t3_a", "Acme breach, need help", "security incident at Acme", since.Add(48*time.Hour)),
			))
		case "t3_b":
			_, _ = w.Write(listingJSON("t3_d",
				child("t3_b", "hello", "", since.Add(time.Hour)),
				child("t3_c", "old", "", since.Add(-time.Hour)),
			))
		default:
			t.Errorf("unexpected page %s", r.URL.RawQuery)
		}
	}))
	defer server.Close()

	client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
	obs, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com", Name: "Acme"}, []string{"breach", "soc 2"}, since)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, "t3_a", first.DedupKey)
	assert.Equal(t, contracts.CategoryCommunityDiscussion, first.Category)
	assert.Equal(t, since.Add(48*time.Hour), first.ObservedAt)
	// breach, incident, security → capped at 0.45; need help → 0.1; mention → 0.2
	assert.Equal(t, 0.85, first.Confidence)

	assert.Equal(t, "t3_b", obs[1].DedupKey)
	assert.Equal(t, 0.1, obs[1].Confidence)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   contracts.ErrorKind
	}{
		{"too many requests", http.StatusTooManyRequests, `{}`, contracts.KindRateLimited},
		{"forbidden", http.StatusForbidden, `{}`, contracts.KindAuth},
		{"unavailable", http.StatusServiceUnavailable, ``, contracts.KindSourceUnavailable},
		{"html instead of json", http.StatusOK, `<html></html>`, contracts.KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
			_, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com", Name: "Acme"}, nil, time.Time{})
			assert.Equal(t, tt.want, contracts.KindOf(err))
		})
	}
}

func TestFetch_SkipsPostWithoutName(t *testing.T) {
	created := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(listingJSON("",
			map[string]any{"kind": "t3", "data": map[string]any{"created_utc": 1}},
			child("t3_ok", "Acme outage", "", created),
		))
	}))
	defer server.Close()

	client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
	obs, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com", Name: "Acme"}, nil, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "t3_ok", obs[0].DedupKey)
}
