package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/intent/internal/contracts"
	"github.com/wonny/intent/pkg/logger"
)

// signalNamespace scopes signal ids; changing it re-keys every stored signal.
var signalNamespace = uuid.MustParse("6f1c1a52-3c55-4f0e-9a53-4d1b2a0e7c11")

// Rejection reasons
var (
	ErrEmptyDedupKey   = errors.New("empty dedup key")
	ErrZeroObservedAt  = errors.New("missing observed_at")
	ErrBadConfidence   = errors.New("confidence outside [0, 1]")
	ErrUnknownCategory = errors.New("unknown category")
	ErrBadPayload      = errors.New("payload is not valid JSON")
)

// SignalID derives the deterministic id of a signal.
// ⭐ SSOT: id = hash(source, category, company_id, dedup_key)
func SignalID(source contracts.Source, category contracts.Category, companyID, dedupKey string) string {
	name := strings.Join([]string{string(source), string(category), companyID, dedupKey}, "\x1f")
	return uuid.NewSHA1(signalNamespace, []byte(name)).String()
}

// Normalizer turns adapter output into Signals.
type Normalizer struct {
	logger *logger.Logger
}

// New creates a Normalizer
func New(log *logger.Logger) *Normalizer {
	return &Normalizer{logger: log.WithModule("normalize")}
}

// Batch is the result of normalizing one fetch
type Batch struct {
	Signals []contracts.Signal
	Dropped int
}

// Normalize validates and canonicalizes observations of one (company, source) fetch.
// Invalid observations are dropped and logged; duplicates within the batch are merged
// the same way the store merges them. Output is ordered by (observed_at, id).
func (n *Normalizer) Normalize(companyID string, source contracts.Source, observations []contracts.RawObservation, collectedAt time.Time) Batch {
	byID := make(map[string]contracts.Signal, len(observations))
	dropped := 0

	for i, obs := range observations {
		sig, err := ToSignal(companyID, source, obs, collectedAt)
		if err != nil {
			dropped++
			n.logger.WithError(err).WithFields(map[string]any{
				"company_id": companyID,
				"source":     source,
				"index":      i,
				"dedup_key":  obs.DedupKey,
			}).Warn("Dropped observation")
			continue
		}

		if existing, ok := byID[sig.ID]; ok {
			byID[sig.ID] = existing.Merge(sig)
			continue
		}
		byID[sig.ID] = sig
	}

	out := make([]contracts.Signal, 0, len(byID))
	for _, sig := range byID {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})

	return Batch{Signals: out, Dropped: dropped}
}

// ToSignal validates and canonicalizes a single observation.
func ToSignal(companyID string, source contracts.Source, obs contracts.RawObservation, collectedAt time.Time) (contracts.Signal, error) {
	key := DedupKey(obs.DedupKey)
	if key == "" {
		return contracts.Signal{}, ErrEmptyDedupKey
	}
	if obs.ObservedAt.IsZero() {
		return contracts.Signal{}, ErrZeroObservedAt
	}
	if math.IsNaN(obs.Confidence) || obs.Confidence < 0 || obs.Confidence > 1 {
		return contracts.Signal{}, fmt.Errorf("%w: %v", ErrBadConfidence, obs.Confidence)
	}
	if !contracts.IsValidCategory(string(obs.Category)) {
		return contracts.Signal{}, fmt.Errorf("%w: %q", ErrUnknownCategory, obs.Category)
	}

	payload, err := canonicalPayload(obs.Payload)
	if err != nil {
		return contracts.Signal{}, err
	}

	return contracts.Signal{
		ID:          SignalID(source, obs.Category, companyID, key),
		CompanyID:   companyID,
		Source:      source,
		Category:    obs.Category,
		DedupKey:    key,
		ObservedAt:  Timestamp(obs.ObservedAt),
		CollectedAt: Timestamp(collectedAt),
		Confidence:  obs.Confidence,
		Payload:     payload,
		SeenCount:   1,
	}, nil
}

// Timestamp converts t to UTC at microsecond precision, the resolution every store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// DedupKey canonicalizes a dedup key. URLs are reduced to scheme-less host+path
// without query, fragment or trailing slash; everything else is trimmed and lowercased.
func DedupKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		if canon, ok := CanonicalURL(key); ok {
			return canon
		}
	}
	return strings.ToLower(key)
}

// CanonicalURL reduces an article or page URL to a stable identity.
func CanonicalURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(u.EscapedPath(), "/")
	return host + path, true
}

func canonicalPayload(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}
