package github

import (
	"context"
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
	defaultBaseURL = "https://api.github.com"
	perPage        = 100
	maxPages       = 5
)

// Client searches GitHub issues and pull requests of a company's organization
// ⭐ SSOT: GitHub API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
}

// NewClient creates a new GitHub client. An empty baseURL selects api.github.com.
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("github"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

type searchResponse struct {
	TotalCount        int         `json:"total_count"`
	IncompleteResults bool        `json:"incomplete_results"`
	Items             []issueItem `json:"items"`
}

type issueItem struct {
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	State         string    `json:"state"`
	HTMLURL       string    `json:"html_url"`
	RepositoryURL string    `json:"repository_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	User          struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

// activityPayload is stored as the signal payload
type activityPayload struct {
	Repo     string   `json:"repo"`
	Number   int      `json:"number"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	State    string   `json:"state"`
	Author   string   `json:"author,omitempty"`
	Kind     string   `json:"kind"`
	Keywords []string `json:"keywords,omitempty"`
}

// Fetch implements contracts.Adapter
func (c *Client) Fetch(ctx context.Context, company contracts.Company, terms []string, since time.Time) ([]contracts.RawObservation, error) {
	org := company.Handle(contracts.HandleGitHubOrg)
	if org == "" {
		org = orgFromName(company)
	}

	var out []contracts.RawObservation
	skipped := 0
	for page := 1; page <= maxPages; page++ {
		var resp searchResponse
		if _, err := c.httpClient.GetJSON(ctx, c.searchURL(org, terms, since, page), c.header(), &resp); err != nil {
			return nil, external.Classify(contracts.SourceRepoActivity, "search issues", err)
		}

		for _, item := range resp.Items {
			obs, err := toObservation(item, terms)
			if err != nil {
				skipped++
				c.logger.WithError(err).WithField("company", company.ID).Warn("Skipping malformed issue")
				continue
			}
			out = append(out, obs)
		}

		if len(resp.Items) < perPage || page*perPage >= resp.TotalCount {
			break
		}
	}

	c.logger.WithFields(map[string]any{
		"company": company.ID,
		"org":     org,
		"count":   len(out),
		"skipped": skipped,
	}).Debug("Fetched repository activity")

	return out, nil
}

func (c *Client) searchURL(org string, terms []string, since time.Time, page int) string {
	q := fmt.Sprintf("org:%s", org)
	if !since.IsZero() {
		q += " updated:>=" + since.UTC().Format("2006-01-02")
	}
	if len(terms) > 0 {
		quoted := make([]string, 0, len(terms))
		for _, t := range terms {
			if strings.Contains(t, " ") {
				t = `"` + t + `"`
			}
			quoted = append(quoted, t)
		}
		q += " " + strings.Join(quoted, " OR ")
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("sort", "updated")
	params.Set("order", "desc")
	params.Set("per_page", fmt.Sprint(perPage))
	params.Set("page", fmt.Sprint(page))
	return c.baseURL + "/search/issues?" + params.Encode()
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func toObservation(item issueItem, terms []string) (contracts.RawObservation, error) {
	if item.UpdatedAt.IsZero() {
		return contracts.RawObservation{}, fmt.Errorf("issue %d has no updated_at", item.Number)
	}

	repo := repoName(item.RepositoryURL)
	kind := "issue"
	if item.PullRequest != nil {
		kind = "pull_request"
	}

	text := item.Title + " " + item.Body
	keywords := matched(text, terms)
	payload, err := contracts.MarshalPayload(activityPayload{
		Repo:     repo,
		Number:   item.Number,
		Title:    item.Title,
		URL:      item.HTMLURL,
		State:    item.State,
		Author:   item.User.Login,
		Kind:     kind,
		Keywords: keywords,
	})
	if err != nil {
		return contracts.RawObservation{}, err
	}

	return contracts.RawObservation{
		Category:   contracts.CategoryEngineeringActivity,
		DedupKey:   fmt.Sprintf("%s#%d", repo, item.Number),
		ObservedAt: item.UpdatedAt,
		Confidence: confidence(text, terms, kind == "pull_request"),
		Payload:    payload,
	}, nil
}

// confidence = 0.3 base + 0.1 per keyword hit (max 0.5) + 0.1 for pull requests
func confidence(text string, terms []string, pullRequest bool) float64 {
	hits := external.CountMatches(text, terms) + external.CountMatches(text, external.SecurityKeywords)
	c := 0.3 + min(0.1*float64(hits), 0.5)
	if pullRequest {
		c += 0.1
	}
	return external.Round2(external.Clamp01(c))
}

func matched(text string, terms []string) []string {
	var out []string
	for _, t := range terms {
		if external.CountMatches(text, []string{t}) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// repoName turns https://api.github.com/repos/acme/api into acme/api
func repoName(repositoryURL string) string {
	parts := strings.Split(strings.TrimRight(repositoryURL, "/"), "/")
	if len(parts) < 2 {
		return repositoryURL
	}
	return strings.ToLower(parts[len(parts)-2] + "/" + parts[len(parts)-1])
}

func orgFromName(company contracts.Company) string {
	if label, _, ok := strings.Cut(company.ID, "."); ok && label != "" {
		return label
	}
	return strings.ToLower(strings.ReplaceAll(company.Name, " ", ""))
}
