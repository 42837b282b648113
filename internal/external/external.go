// Package external holds what the source adapters share: mapping transport and
// HTTP failures onto the typed error set, and the keyword heuristics that derive
// observation confidence from payload text.
package external

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/httputil"
)

// Classify maps an httputil error onto a *contracts.SourceError.
//
//	401                         → auth
//	403 with exhausted quota    → rate limited
//	403 otherwise               → auth
//	429                         → rate limited
//	408, 5xx, transport failure → source unavailable
//	other 4xx, undecodable body → malformed
func Classify(source contracts.Source, op string, err error) error {
	if err == nil {
		return nil
	}

	var se *contracts.SourceError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) {
		return contracts.NewSourceError(source, statusKind(statusErr), op, err)
	}

	var decodeErr *httputil.DecodeError
	if errors.As(err, &decodeErr) {
		return contracts.NewSourceError(source, contracts.KindMalformed, op, err)
	}

	return contracts.NewSourceError(source, contracts.KindSourceUnavailable, op, err)
}

func statusKind(e *httputil.StatusError) contracts.ErrorKind {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return contracts.KindAuth
	case e.StatusCode == http.StatusForbidden:
		if e.Header.Get("X-RateLimit-Remaining") == "0" || e.Header.Get("Retry-After") != "" {
			return contracts.KindRateLimited
		}
		return contracts.KindAuth
	case e.StatusCode == http.StatusTooManyRequests:
		return contracts.KindRateLimited
	case httputil.IsRetryableStatus(e.StatusCode):
		return contracts.KindSourceUnavailable
	default:
		return contracts.KindMalformed
	}
}

// Keyword lists shared by the text-based adapters
var (
	SecurityKeywords = []string{
		"security", "vulnerability", "breach", "compliance", "soc 2", "soc2", "iso 27001",
		"gdpr", "hipaa", "pentest", "penetration test", "encryption", "sso", "audit",
		"incident", "ransomware", "zero trust",
	}

	PainIndicators = []string{
		"struggling", "need help", "looking for", "recommend", "alternative to",
		"problem with", "frustrated", "how do you", "any advice", "urgent",
	}

	FundingKeywords = []string{
		"raises", "raised", "funding", "series a", "series b", "series c", "seed round",
		"investment", "acquired", "acquisition", "ipo",
	}
)

// CountMatches counts how many of terms occur in text, case-insensitively.
// Each term counts once.
func CountMatches(text string, terms []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

// Mentions reports whether text mentions the company by name or domain label.
func Mentions(text string, company contracts.Company) bool {
	lower := strings.ToLower(text)
	if name := strings.ToLower(strings.TrimSpace(company.Name)); name != "" && strings.Contains(lower, name) {
		return true
	}
	if label, _, ok := strings.Cut(company.ID, "."); ok && len(label) > 3 && strings.Contains(lower, strings.ToLower(label)) {
		return true
	}
	return false
}

// Clamp01 bounds a confidence to [0, 1]
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Round2 rounds a confidence to two decimals so heuristics stay exact and comparable
func Round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
