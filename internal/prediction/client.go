// Package prediction drives one asynchronous Replicate prediction through the
// relay: submit, poll on a fixed interval until a terminal status or the
// attempt ceiling, then hand back the raw output.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ideaforge/internal/replicate"
)

const (
	DefaultPollInterval  = time.Second
	DefaultMaxAttempts   = 120
	DefaultCreateTimeout = 30 * time.Second
	DefaultStatusTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
)

// GenerationRequest is one system+user prompt pair.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
}

// Prompt is the combined text submitted to the model.
func (r GenerationRequest) Prompt() string {
	return r.SystemPrompt + "\n" + r.UserPrompt
}

// Client runs predictions against a relay endpoint.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	Model    string

	PollInterval  time.Duration
	MaxAttempts   int
	CreateTimeout time.Duration
	StatusTimeout time.Duration
}

// New creates a client with the default timing. httpClient defaults to
// http.DefaultClient and model to replicate.DefaultModel.
func New(endpoint string, httpClient *http.Client, model string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model == "" {
		model = replicate.DefaultModel
	}
	return &Client{
		Endpoint:      endpoint,
		HTTP:          httpClient,
		Model:         model,
		PollInterval:  DefaultPollInterval,
		MaxAttempts:   DefaultMaxAttempts,
		CreateTimeout: DefaultCreateTimeout,
		StatusTimeout: DefaultStatusTimeout,
	}
}

// Run submits req and waits for the prediction to finish.
func (c *Client) Run(ctx context.Context, req GenerationRequest) (replicate.Output, error) {
	current, err := c.create(ctx, req)
	if err != nil {
		return replicate.Output{}, err
	}
	id := current.ID
	log.Printf("prediction: created %s status=%s", id, current.Status)
	Report(ctx, Progress{PredictionID: id, Status: current.Status})

	if current.Status.InFlight() && id == "" {
		return replicate.Output{}, &Error{Kind: KindBadResponse, Detail: "submission response has no id"}
	}

	attempts := 0
	for current.Status.InFlight() && attempts < c.MaxAttempts {
		if err := wait(ctx, c.PollInterval); err != nil {
			return replicate.Output{}, fmt.Errorf("prediction %s: %w", id, err)
		}
		attempts++

		next, err := c.status(ctx, id)
		if err != nil {
			return replicate.Output{}, err
		}
		current = next
		Report(ctx, Progress{PredictionID: id, Attempt: attempts, Status: current.Status})
	}

	switch {
	case current.Status == replicate.StatusFailed:
		return replicate.Output{}, &Error{Kind: KindPredictionFailed, Detail: current.ErrorMessage()}
	case current.Status == replicate.StatusCanceled:
		return replicate.Output{}, &Error{Kind: KindPredictionCanceled}
	case !current.Status.Terminal():
		return replicate.Output{}, &Error{
			Kind:   KindPredictionTimeout,
			Detail: fmt.Sprintf("status %q after %d attempts", current.Status, attempts),
		}
	case !current.Output.Present():
		return replicate.Output{}, &Error{Kind: KindNoOutput}
	}

	log.Printf("prediction: %s succeeded after %d polls, output kind %s", id, attempts, current.Output.Kind)
	return current.Output, nil
}

func (c *Client) create(ctx context.Context, req GenerationRequest) (*replicate.Prediction, error) {
	payload := replicate.CreateRequest{
		Version: c.Model,
		Input:   replicate.PromptInput{Prompt: req.Prompt()},
	}
	resp, err := c.post(ctx, c.CreateTimeout, payload)
	if err != nil {
		return nil, transportError(ctx, KindRequestTimeout, err)
	}

	if resp.status < 200 || resp.status > 299 {
		log.Printf("prediction: create failed with status %d: %s", resp.status, truncate(resp.body, 300))
		e := &Error{StatusCode: resp.status, Detail: upstreamMessage(resp.body)}
		switch resp.status {
		case http.StatusUnauthorized:
			e.Kind = KindInvalidCredential
		case http.StatusPaymentRequired:
			e.Kind = KindInsufficientBalance
		case http.StatusTooManyRequests:
			e.Kind = KindRateLimited
			e.RetryAfter = parseRetryAfter(resp.header.Get("Retry-After"))
		case http.StatusUnprocessableEntity:
			e.Kind = KindInvalidInput
		default:
			e.Kind = KindCreateError
		}
		return nil, e
	}

	var p replicate.Prediction
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.status, Err: err}
	}
	return &p, nil
}

func (c *Client) status(ctx context.Context, id string) (*replicate.Prediction, error) {
	resp, err := c.post(ctx, c.StatusTimeout, replicate.StatusRequest{ID: id})
	if err != nil {
		return nil, transportError(ctx, KindStatusTimeout, err)
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, &Error{Kind: KindStatusError, StatusCode: resp.status, Detail: upstreamMessage(resp.body)}
	}
	var p replicate.Prediction
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return nil, &Error{Kind: KindBadResponse, StatusCode: resp.status, Err: err}
	}
	return &p, nil
}

type relayResponse struct {
	status int
	header http.Header
	body   []byte
}

// post sends one relay call under its own timeout scope.
func (c *Client) post(parent context.Context, timeout time.Duration, payload any) (*relayResponse, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal relay request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &relayResponse{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// transportError classifies a failed relay call. Cancellation of the caller's
// own context is returned as is; expiry of the per-call scope becomes
// timeoutKind.
func transportError(parent context.Context, timeoutKind Kind, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("prediction aborted: %w", perr)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: timeoutKind, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts both delay-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0
		}
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d.Round(time.Second)
		}
	}
	return 0
}

// upstreamMessage pulls a readable message out of an error body.
func upstreamMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	for _, k := range []string{"detail", "error", "title", "details"} {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
