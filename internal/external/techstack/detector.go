package techstack

import (
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Evidence says where a technology was seen
type Evidence string

const (
	EvidenceHeader Evidence = "header"
	EvidenceMarkup Evidence = "markup"
)

// Detection is one technology found on a homepage
type Detection struct {
	Technology string   `json:"technology"`
	Evidence   Evidence `json:"evidence"`
	Marker     string   `json:"marker"`
}

type headerRule struct {
	tech   string
	header string
	match  string // substring of the header value, "" means presence
}

type markupRule struct {
	tech  string
	match string // substring of a script src, link href or meta generator
}

var headerRules = []headerRule{
	{"cloudflare", "Server", "cloudflare"},
	{"cloudflare", "Cf-Ray", ""},
	{"vercel", "X-Vercel-Id", ""},
	{"netlify", "X-Nf-Request-Id", ""},
	{"cloudfront", "X-Amz-Cf-Id", ""},
	{"fastly", "X-Served-By", "cache-"},
	{"nginx", "Server", "nginx"},
	{"next.js", "X-Powered-By", "next.js"},
	{"express", "X-Powered-By", "express"},
}

var markupRules = []markupRule{
	{"stripe", "js.stripe.com"},
	{"segment", "cdn.segment.com"},
	{"sentry", "sentry-cdn.com"},
	{"sentry", "sentry.io"},
	{"okta", "oktacdn.com"},
	{"okta", "okta-signin-widget"},
	{"auth0", "cdn.auth0.com"},
	{"intercom", "widget.intercom.io"},
	{"hubspot", "js.hs-scripts.com"},
	{"google-tag-manager", "googletagmanager.com"},
	{"datadog-rum", "datadoghq-browser-agent.com"},
	{"next.js", "/_next/"},
	{"wordpress", "wordpress"},
	{"shopify", "cdn.shopify.com"},
}

// Detect inspects response headers and page markup. Header evidence wins when a
// technology is seen in both. Results are sorted by technology.
func Detect(header http.Header, doc *goquery.Document) []Detection {
	found := make(map[string]Detection)

	for _, rule := range headerRules {
		values := header.Values(rule.header)
		if len(values) == 0 {
			continue
		}
		value := strings.ToLower(strings.Join(values, ","))
		if rule.match == "" || strings.Contains(value, rule.match) {
			found[rule.tech] = Detection{Technology: rule.tech, Evidence: EvidenceHeader, Marker: rule.header}
		}
	}

	if doc != nil {
		var refs []string
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			refs = append(refs, s.AttrOr("src", ""))
		})
		doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
			refs = append(refs, s.AttrOr("href", ""))
		})
		doc.Find(`meta[name="generator"]`).Each(func(_ int, s *goquery.Selection) {
			refs = append(refs, s.AttrOr("content", ""))
		})

		for _, ref := range refs {
			lower := strings.ToLower(ref)
			for _, rule := range markupRules {
				if _, ok := found[rule.tech]; ok {
					continue
				}
				if strings.Contains(lower, rule.match) {
					found[rule.tech] = Detection{Technology: rule.tech, Evidence: EvidenceMarkup, Marker: ref}
				}
			}
		}
	}

	out := make([]Detection, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Technology < out[j].Technology })
	return out
}
