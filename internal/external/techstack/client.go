package techstack

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonboulle/clockwork"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/internal/external"
	"github.com/wonny/intent/pkg/httputil"
	"github.com/wonny/intent/pkg/logger"
)

// Client fingerprints the technologies a company's homepage exposes
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	scheme     string
	clock      clockwork.Clock
}

// NewClient creates a new tech-stack client. scheme defaults to https.
func NewClient(httpClient *httputil.Client, log *logger.Logger, scheme string, clock clockwork.Clock) *Client {
	if scheme == "" {
		scheme = "https"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		httpClient: httpClient,
		logger:     log.WithModule("techstack"),
		scheme:     scheme,
		clock:      clock,
	}
}

type technologyPayload struct {
	Detection
	Homepage string `json:"homepage"`
	Queried  bool   `json:"queried"`
}

// Fetch implements contracts.Adapter. The scan reflects the homepage as of the
// server's Date header, so since is not consulted.
func (c *Client) Fetch(ctx context.Context, company contracts.Company, terms []string, _ time.Time) ([]contracts.RawObservation, error) {
	homepage := c.homepage(company)

	resp, err := c.httpClient.Get(ctx, homepage, http.Header{"Accept": {"text/html"}})
	if err != nil {
		return nil, external.Classify(contracts.SourceTechStack, "fetch homepage", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, contracts.NewSourceError(contracts.SourceTechStack, contracts.KindMalformed, "parse homepage", err)
	}

	observedAt := c.clock.Now()
	if date, err := http.ParseTime(resp.Header.Get("Date")); err == nil {
		observedAt = date
	}

	detections := Detect(resp.Header, doc)
	out := make([]contracts.RawObservation, 0, len(detections))
	for _, d := range detections {
		queried := queriedFor(d.Technology, terms)
		payload, err := contracts.MarshalPayload(technologyPayload{Detection: d, Homepage: homepage, Queried: queried})
		if err != nil {
			c.logger.WithError(err).WithField("technology", d.Technology).Warn("Skipping detection")
			continue
		}
		out = append(out, contracts.RawObservation{
			Category:   contracts.CategoryTechnology,
			DedupKey:   d.Technology,
			ObservedAt: observedAt,
			Confidence: Confidence(d.Evidence, queried),
			Payload:    payload,
		})
	}

	c.logger.WithFields(map[string]any{
		"company":      company.ID,
		"technologies": len(out),
	}).Debug("Scanned homepage")

	return out, nil
}

func (c *Client) homepage(company contracts.Company) string {
	if h := company.Handle(contracts.HandleHomepage); h != "" {
		return h
	}
	return fmt.Sprintf("%s://%s/", c.scheme, company.ID)
}

// Confidence = 0.6 for markup evidence, 0.8 for header evidence, +0.2 when the technology was queried
func Confidence(evidence Evidence, queried bool) float64 {
	c := 0.6
	if evidence == EvidenceHeader {
		c = 0.8
	}
	if queried {
		c += 0.2
	}
	return external.Round2(external.Clamp01(c))
}

func queriedFor(tech string, terms []string) bool {
	for _, t := range terms {
		if strings.EqualFold(strings.TrimSpace(t), tech) {
			return true
		}
	}
	return false
}
