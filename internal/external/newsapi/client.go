package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/external"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
)

const (
	defaultBaseURL = "https://newsapi.org"
	pageSize       = 100
	maxPages       = 3
)

// Client queries the NewsAPI /v2/everything endpoint
// ⭐ SSOT: news articles enter only through this client
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
}

// NewClient creates a new NewsAPI client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("newsapi"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

type everythingResponse struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

type article struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type articlePayload struct {
	Title     string   `json:"title"`
	Outlet    string   `json:"outlet,omitempty"`
	Author    string   `json:"author,omitempty"`
	URL       string   `json:"url"`
	Matched   []string `json:"matched,omitempty"`
	FundingKW int      `json:"funding_keywords,omitempty"`
}

// Fetch implements contracts.Adapter. Every relevant article yields a news_mention;
// articles naming the company together with funding vocabulary also yield a funding_event.
func (c *Client) Fetch(ctx context.Context, company contracts.Company, terms []string, since time.Time) ([]contracts.RawObservation, error) {
	if c.apiKey == "" {
		return nil, contracts.NewSourceError(contracts.SourceNews, contracts.KindAuth, "fetch", errors.New("api key not configured"))
	}

	var out []contracts.RawObservation
	skipped := 0
	for page := 1; page <= maxPages; page++ {
		var resp everythingResponse
		_, err := c.httpClient.GetJSON(ctx, c.everythingURL(company, terms, since, page), c.header(), &resp)
		if err != nil {
			if page > 1 && apiCode(err) == "maximumResultsReached" {
				break
			}
			return nil, classify(err)
		}
		if resp.Status != "ok" {
			return nil, classify(&apiError{Code: resp.Code, Message: resp.Message})
		}

		for _, a := range resp.Articles {
			if a.URL == "" || a.PublishedAt.IsZero() {
				skipped++
				c.logger.WithField("title", a.Title).Warn("Skipping article without url or publishedAt")
				continue
			}
			obs, err := toObservations(a, company, terms)
			if err != nil {
				skipped++
				c.logger.WithError(err).WithField("url", a.URL).Warn("Skipping malformed article")
				continue
			}
			out = append(out, obs...)
		}

		if len(resp.Articles) < pageSize || page*pageSize >= resp.TotalResults {
			break
		}
	}

	c.logger.WithFields(map[string]any{
		"company": company.ID,
		"count":   len(out),
		"skipped": skipped,
	}).Debug("Fetched news mentions")

	return out, nil
}

func (c *Client) everythingURL(company contracts.Company, terms []string, since time.Time, page int) string {
	q := fmt.Sprintf("(%q OR %q)", company.Name, company.ID)
	if company.Name == "" {
		q = fmt.Sprintf("%q", company.ID)
	}
	if len(terms) > 0 {
		q += " AND (" + strings.Join(terms, " OR ") + ")"
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprint(pageSize))
	params.Set("page", fmt.Sprint(page))
	if !since.IsZero() {
		params.Set("from", since.UTC().Format(time.RFC3339))
	}
	return c.baseURL + "/v2/everything?" + params.Encode()
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("X-Api-Key", c.apiKey)
	return h
}

// apiError is the NewsAPI error envelope {"status":"error","code":...}
type apiError struct {
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("newsapi %s: %s", e.Code, e.Message)
}

// apiCode extracts the NewsAPI error code from an HTTP error body
func apiCode(err error) string {
	var statusErr *httputil.StatusError
	if !errors.As(err, &statusErr) {
		return ""
	}
	var body everythingResponse
	if json.Unmarshal(statusErr.Body, &body) != nil {
		return ""
	}
	return body.Code
}

func classify(err error) error {
	code := apiCode(err)
	var ae *apiError
	if errors.As(err, &ae) {
		code = ae.Code
	}

	switch code {
	case "apiKeyInvalid", "apiKeyMissing", "apiKeyDisabled":
		return contracts.NewSourceError(contracts.SourceNews, contracts.KindAuth, "everything", err)
	case "apiKeyExhausted", "rateLimited":
		return contracts.NewSourceError(contracts.SourceNews, contracts.KindRateLimited, "everything", err)
	case "unexpectedError":
		return contracts.NewSourceError(contracts.SourceNews, contracts.KindSourceUnavailable, "everything", err)
	}
	if ae != nil {
		return contracts.NewSourceError(contracts.SourceNews, contracts.KindMalformed, "everything", err)
	}
	return external.Classify(contracts.SourceNews, "everything", err)
}

// Relevance = 0.4 name + 0.3 domain + 0.2 industry + 0.1 any query term
func Relevance(text string, company contracts.Company, terms []string) float64 {
	lower := strings.ToLower(text)
	c := 0.0
	if company.Name != "" && strings.Contains(lower, strings.ToLower(company.Name)) {
		c += 0.4
	}
	if strings.Contains(lower, strings.ToLower(company.ID)) {
		c += 0.3
	}
	if company.Industry != "" && strings.Contains(lower, strings.ToLower(company.Industry)) {
		c += 0.2
	}
	if external.CountMatches(text, terms) > 0 {
		c += 0.1
	}
	return external.Round2(external.Clamp01(c))
}

func toObservations(a article, company contracts.Company, terms []string) ([]contracts.RawObservation, error) {
	text := a.Title + " " + a.Description
	funding := external.CountMatches(text, external.FundingKeywords)

	var matched []string
	for _, t := range terms {
		if external.CountMatches(text, []string{t}) > 0 {
			matched = append(matched, t)
		}
	}

	payload, err := contracts.MarshalPayload(articlePayload{
		Title:     a.Title,
		Outlet:    a.Source.Name,
		Author:    a.Author,
		URL:       a.URL,
		Matched:   matched,
		FundingKW: funding,
	})
	if err != nil {
		return nil, err
	}

	out := []contracts.RawObservation{{
		Category:   contracts.CategoryNewsMention,
		DedupKey:   a.URL,
		ObservedAt: a.PublishedAt,
		Confidence: Relevance(text, company, terms),
		Payload:    payload,
	}}

	if funding > 0 && external.Mentions(text, company) {
		out = append(out, contracts.RawObservation{
			Category:   contracts.CategoryFundingEvent,
			DedupKey:   a.URL,
			ObservedAt: a.PublishedAt,
			Confidence: external.Round2(external.Clamp01(0.4 + 0.2*float64(funding))),
			Payload:    payload,
		})
	}
	return out, nil
}
