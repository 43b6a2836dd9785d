package prediction

import (
	"fmt"
	"time"
)

// Kind names a client-observable failure of one generation cycle.
type Kind string

const (
	KindInvalidCredential   Kind = "invalid_credential"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindRateLimited         Kind = "rate_limited"
	KindInvalidInput        Kind = "invalid_input"
	KindCreateError         Kind = "create_error"
	KindStatusError         Kind = "status_error"
	KindStatusTimeout       Kind = "status_timeout"
	KindRequestTimeout      Kind = "request_timeout"
	KindConnection          Kind = "connection_failed"
	KindBadResponse         Kind = "bad_response"
	KindPredictionFailed    Kind = "prediction_failed"
	KindPredictionCanceled  Kind = "prediction_canceled"
	KindPredictionTimeout   Kind = "prediction_timeout"
	KindNoOutput            Kind = "no_output"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidCredential   = &Error{Kind: KindInvalidCredential}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrCreate              = &Error{Kind: KindCreateError}
	ErrStatus              = &Error{Kind: KindStatusError}
	ErrStatusTimeout       = &Error{Kind: KindStatusTimeout}
	ErrRequestTimeout      = &Error{Kind: KindRequestTimeout}
	ErrConnection          = &Error{Kind: KindConnection}
	ErrBadResponse         = &Error{Kind: KindBadResponse}
	ErrPredictionFailed    = &Error{Kind: KindPredictionFailed}
	ErrPredictionCanceled  = &Error{Kind: KindPredictionCanceled}
	ErrPredictionTimeout   = &Error{Kind: KindPredictionTimeout}
	ErrNoOutput            = &Error{Kind: KindNoOutput}
)

// Error is a failed generation cycle.
type Error struct {
	Kind Kind
	// StatusCode is the relay's HTTP status for create/status errors.
	StatusCode int
	// RetryAfter is set for rate-limited submissions when the upstream said so.
	RetryAfter time.Duration
	// Detail is a human readable hint, e.g. the upstream error message.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "prediction: " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}
