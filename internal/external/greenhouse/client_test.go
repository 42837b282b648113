package greenhouse

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

const boardBody = `{
  "jobs": [
    {
      "id": 4011,
      "title": "Senior Security Engineer",
      "updated_at": "2024-03-03T09:00:00-05:00",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/4011",
      "location": {"name": "Remote"},
      "departments": [{"name": "Security"}],
      "content": "&lt;p&gt;Own our &lt;strong&gt;SOC 2&lt;/strong&gt; compliance program.&lt;/p&gt;&lt;ul&gt;&lt;li&gt;DevSecOps tooling&lt;/li&gt;&lt;/ul&gt;"
    },
    {
      "id": 4012,
      "title": "Account Executive",
      "updated_at": "2024-03-03T09:00:00Z",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/4012",
      "content": "&lt;p&gt;Sell things.&lt;/p&gt;"
    },
    {
      "id": 4013,
      "title": "Platform Engineer",
      "updated_at": "2024-03-02T09:00:00Z",
      "content": "&lt;p&gt;Help with compliance automation&lt;/p&gt;"
    },
    {
      "id": 3999,
      "title": "Security Engineer",
      "updated_at": "2023-01-01T00:00:00Z",
      "content": ""
    }
  ]
}`

func TestPlainText(t *testing.T) {
	text, err := PlainText("&lt;p&gt;Hello&lt;/p&gt;&lt;script&gt;x()&lt;/script&gt;&lt;ul&gt;&lt;li&gt;a&lt;/li&gt;&lt;li&gt;b&lt;/li&gt;&lt;/ul&gt;")
	require.NoError(t, err)
	assert.Equal(t, "Hello ab", text)

	text, err = PlainText("")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.5, Confidence(true, 0))
	assert.Equal(t, 0.7, Confidence(true, 2))
	assert.Equal(t, 0.1, Confidence(false, 1))
	assert.Equal(t, 1.0, Confidence(true, 9))
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/acmeboard/jobs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("content"))
		_, _ = w.Write([]byte(boardBody))
	}))
	defer server.Close()

	client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
	company := contracts.Company{ID: "acme.com", Name: "Acme", Handles: map[string]string{"greenhouse": "acmeboard"}}
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	obs, err := client.Fetch(context.Background(), company, []string{"security engineer", "devsecops", "compliance"}, since)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "4011", obs[0].DedupKey)
	assert.Equal(t, "7", obs[0].DedupKey)
	assert.True(t, obs[0].ObservedAt.Equal(time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC)))
	// title match + devsecops + compliance
	assert.Equal(t, 0.7, obs[0].Confidence)

	assert.Equal(t, "4013", obs[1].DedupKey)
	assert.Equal(t, 0.1, obs[1].Confidence)
}

func TestFetch_UnknownBoard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/boards/acme/jobs", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
	obs, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com"}, nil, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   contracts.ErrorKind
	}{
		{"unavailable", http.StatusBadGateway, ``, contracts.KindSourceUnavailable},
		{"not json", http.StatusOK, `<html>`, contracts.KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
			_, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com"}, nil, time.Time{})
			assert.Equal(t, tt.want, contracts.KindOf(err))
		})
	}
}

func TestFetch_SkipsJobWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jobs":[
			{"title":"Security Engineer","updated_at":"2024-03-03T09:00:00Z"},
			{"id":7,"title":"Security Analyst","updated_at":"2024-03-03T09:00:00Z","content":""}
		]}`))
	}))
	defer server.Close()

	client := NewClient(httputil.New(logger.Nop(), 5*time.Second), logger.Nop(), server.URL)
	obs, err := client.Fetch(context.Background(), contracts.Company{ID: "acme.com"}, []string{"security"}, time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "7", obs[0].DedupKey)
}
