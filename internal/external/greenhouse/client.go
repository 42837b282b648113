package greenhouse

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/external"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
)

const defaultBaseURL = "https://boards-api.greenhouse.io"

// Client reads a company's public Greenhouse job board
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Greenhouse job board client
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("greenhouse"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type jobsResponse struct {
	Jobs []job `json:"jobs"`
}

type job struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	UpdatedAt   time.Time `json:"updated_at"`
	AbsoluteURL string    `json:"absolute_url"`
	Content     string    `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
}

type postingPayload struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Location    string   `json:"location,omitempty"`
	Departments []string `json:"departments,omitempty"`
	TitleMatch  bool     `json:"title_match"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Fetch implements contracts.Adapter. A company without a board yields no observations.
func (c *Client) Fetch(ctx context.Context, company contracts.Company, terms []string, since time.Time) ([]contracts.RawObservation, error) {
	board := company.Handle(contracts.HandleGreenhouseBoard)
	if board == "" {
		board, _, _ = strings.Cut(company.ID, ".")
	}

	var resp jobsResponse
	endpoint := fmt.Sprintf("%s/v1/boards/%s/jobs?content=true", c.baseURL, board)
	if _, err := c.httpClient.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		var statusErr *httputil.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			c.logger.WithField("board", board).Debug("No job board for company")
			return nil, nil
		}
		return nil, external.Classify(contracts.SourceJobPosting, "list jobs", err)
	}

	var out []contracts.RawObservation
	skipped := 0
	for _, j := range resp.Jobs {
		if j.ID == 0 || j.UpdatedAt.IsZero() {
			skipped++
			c.logger.WithField("title", j.Title).Warn("Skipping job without id or updated_at")
			continue
		}
		if j.UpdatedAt.Before(since) {
			continue
		}

		obs, ok, err := toObservation(j, terms)
		if err != nil {
			skipped++
			c.logger.WithError(err).WithField("job", j.ID).Warn("Skipping malformed job")
			continue
		}
		if ok {
			out = append(out, obs)
		}
	}

	c.logger.WithFields(map[string]any{
		"company": company.ID,
		"board":   board,
		"jobs":    len(resp.Jobs),
		"matched": len(out),
		"skipped": skipped,
	}).Debug("Fetched job postings")

	return out, nil
}

func toObservation(j job, terms []string) (contracts.RawObservation, bool, error) {
	text, err := PlainText(j.Content)
	if err != nil {
		return contracts.RawObservation{}, false, err
	}

	titleMatch := external.CountMatches(j.Title, terms) > 0
	var keywords []string
	for _, t := range terms {
		if external.CountMatches(text, []string{t}) > 0 {
			keywords = append(keywords, t)
		}
	}
	if !titleMatch && len(keywords) == 0 {
		return contracts.RawObservation{}, false, nil
	}

	depts := make([]string, 0, len(j.Departments))
	for _, d := range j.Departments {
		depts = append(depts, d.Name)
	}

	payload, err := contracts.MarshalPayload(postingPayload{
		Title:       j.Title,
		URL:         j.AbsoluteURL,
		Location:    j.Location.Name,
		Departments: depts,
		TitleMatch:  titleMatch,
		Keywords:    keywords,
	})
	if err != nil {
		return contracts.RawObservation{}, false, err
	}

	return contracts.RawObservation{
		Category:   contracts.CategoryHiring,
		DedupKey:   fmt.Sprint(j.ID),
		ObservedAt: j.UpdatedAt,
		Confidence: Confidence(titleMatch, len(keywords)),
		Payload:    payload,
	}, true, nil
}

// Confidence = 0.5 for a title match + 0.1 per content keyword, capped at 1
func Confidence(titleMatch bool, keywords int) float64 {
	c := 0.1 * float64(keywords)
	if titleMatch {
		c += 0.5
	}
	return external.Round2(external.Clamp01(c))
}

// PlainText flattens the HTML-escaped job description into whitespace-normalized text
func PlainText(content string) (string, error) {
	if content == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.UnescapeString(content)))
	if err != nil {
		return "", fmt.Errorf("parse job content: %w", err)
	}
	doc.Find("script, style").Remove()

	var parts []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " "), nil
}
