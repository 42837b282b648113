package contracts

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing the adapter, limiter and store boundaries.
type ErrorKind string

const (
	KindUnknown           ErrorKind = ""
	KindSourceUnavailable ErrorKind = "source_unavailable" // timeout, network, upstream 5xx
	KindAuth              ErrorKind = "auth_error"
	KindRateLimited       ErrorKind = "rate_limited"
	KindMalformed         ErrorKind = "malformed_response"
	KindCircuitOpen       ErrorKind = "circuit_open"
	KindSourceDisabled    ErrorKind = "source_disabled"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
	KindNotFound          ErrorKind = "not_found"
	KindInvalid           ErrorKind = "invalid"
)

// Sentinels usable with errors.Is
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrAuth              = errors.New("source authentication failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformed         = errors.New("malformed response")
	ErrCircuitOpen       = errors.New("circuit open")
	ErrSourceDisabled    = errors.New("source disabled")
	ErrStoreUnavailable  = errors.New("signal store unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid input")
)

var kindSentinels = map[ErrorKind]error{
	KindSourceUnavailable: ErrSourceUnavailable,
	KindAuth:              ErrAuth,
	KindRateLimited:       ErrRateLimited,
	KindMalformed:         ErrMalformed,
	KindCircuitOpen:       ErrCircuitOpen,
	KindSourceDisabled:    ErrSourceDisabled,
	KindStoreUnavailable:  ErrStoreUnavailable,
	KindNotFound:          ErrNotFound,
	KindInvalid:           ErrInvalid,
}

// kindOrder fixes the lookup order of KindOf; store failures win over everything else.
var kindOrder = []ErrorKind{
	KindStoreUnavailable,
	KindAuth,
	KindMalformed,
	KindRateLimited,
	KindCircuitOpen,
	KindSourceDisabled,
	KindSourceUnavailable,
	KindNotFound,
	KindInvalid,
}

// SourceError is the typed error returned by adapters and the limiter.
type SourceError struct {
	Source Source
	Kind   ErrorKind
	Op     string
	Err    error
}

// NewSourceError builds a SourceError
func NewSourceError(source Source, kind ErrorKind, op string, err error) *SourceError {
	return &SourceError{Source: source, Kind: kind, Op: op, Err: err}
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Source, e.Op, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of e.Kind
func (e *SourceError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf extracts the ErrorKind of err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	for _, kind := range kindOrder {
		if errors.Is(err, kindSentinels[kind]) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindSourceUnavailable
	}
	return KindUnknown
}

// Retryable reports whether a poll failing with err may be retried in the same cycle.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindSourceUnavailable, KindRateLimited:
		return true
	default:
		return false
	}
}

// IsStoreUnavailable reports whether err is the fatal store condition
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// StoreError wraps a store failure so that errors.Is(err, ErrStoreUnavailable) holds.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
