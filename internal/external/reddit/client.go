package reddit

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/external"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
)

const (
	defaultBaseURL = "https://www.reddit.com"
	pageLimit      = 100
	maxPages       = 3
)

// Client searches Reddit posts that mention a company
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Reddit client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("reddit"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string `json:"kind"`
			Data post   `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type discussionPayload struct {
	Subreddit   string `json:"subreddit"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author,omitempty"`
	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	Security    int    `json:"security_keywords"`
	Pain        int    `json:"pain_indicators"`
	Mentioned   bool   `json:"company_mentioned"`
}

// Fetch implements contracts.Adapter. Results come newest first, so paging
// stops at the first post older than since.
func (c *Client) Fetch(ctx context.Context, company contracts.Company, terms []string, since time.Time) ([]contracts.RawObservation, error) {
	var out []contracts.RawObservation
	after := ""
	skipped := 0

	for page := 0; page < maxPages; page++ {
		var resp listing
		if _, err := c.httpClient.GetJSON(ctx, c.searchURL(company, terms, after), nil, &resp); err != nil {
			return nil, external.Classify(contracts.SourceCommunity, "search", err)
		}

		reachedSince := false
		for _, child := range resp.Data.Children {
			p := child.Data
			if p.Name == "" || p.CreatedUTC <= 0 {
				skipped++
				c.logger.WithField("company", company.ID).Warn("Skipping post without name or created_utc")
				continue
			}
			created := fromUnix(p.CreatedUTC)
			if created.Before(since) {
				reachedSince = true
				continue
			}
			obs, err := c.toObservation(p, created, company)
			if err != nil {
				skipped++
				c.logger.WithError(err).WithField("post", p.Name).Warn("Skipping malformed post")
				continue
			}
			out = append(out, obs)
		}

		after = resp.Data.After
		if after == "" || reachedSince {
			break
		}
	}

	c.logger.WithFields(map[string]any{
		"company": company.ID,
		"count":   len(out),
		"skipped": skipped,
	}).Debug("Fetched community discussions")

	return out, nil
}

func (c *Client) searchURL(company contracts.Company, terms []string, after string) string {
	q := fmt.Sprintf("%q", company.Name)
	if company.Name == "" {
		q = company.ID
	}
	if len(terms) > 0 {
		q += " (" + strings.Join(terms, " OR ") + ")"
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("sort", "new")
	params.Set("limit", fmt.Sprint(pageLimit))
	params.Set("raw_json", "1")
	if after != "" {
		params.Set("after", after)
	}
	return c.baseURL + "/search.json?" + params.Encode()
}

func (c *Client) toObservation(p post, created time.Time, company contracts.Company) (contracts.RawObservation, error) {
	text := p.Title + " " + p.Selftext
	security := external.CountMatches(text, external.SecurityKeywords)
	pain := external.CountMatches(text, external.PainIndicators)
	mentioned := external.Mentions(text, company)

	payload, err := contracts.MarshalPayload(discussionPayload{
		Subreddit:   p.Subreddit,
		Title:       p.Title,
		URL:         c.baseURL + p.Permalink,
		Author:      p.Author,
		Score:       p.Score,
		NumComments: p.NumComments,
		Security:    security,
		Pain:        pain,
		Mentioned:   mentioned,
	})
	if err != nil {
		return contracts.RawObservation{}, err
	}

	return contracts.RawObservation{
		Category:   contracts.CategoryCommunityDiscussion,
		DedupKey:   p.Name,
		ObservedAt: created,
		Confidence: Confidence(security, pain, mentioned),
		Payload:    payload,
	}, nil
}

// Confidence = 0.1 + min(0.15·security, 0.5) + min(0.1·pain, 0.3) + 0.2 if the company is named
func Confidence(security, pain int, mentioned bool) float64 {
	c := 0.1 + math.Min(0.15*float64(security), 0.5) + math.Min(0.1*float64(pain), 0.3)
	if mentioned {
		c += 0.2
	}
	return external.Round2(external.Clamp01(c))
}

func fromUnix(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}
