package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Replicate API root.
const DefaultBaseURL = "https://api.replicate.com/v1"

// DefaultModel is the model identifier sent as the prediction version.
const DefaultModel = "openai/gpt-4.1-mini"

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 8 << 20

// NewHTTPClient creates a new HTTP client, optionally configured with a proxy.
func NewHTTPClient(proxyAddr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyAddr != "" {
		proxyURL, err := url.Parse(proxyAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy address: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// authTransport is a wrapper to add the Authorization header to requests.
type authTransport struct {
	token     string
	transport http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.transport.RoundTrip(req)
}

// Reply is an upstream response kept byte for byte.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       json.RawMessage
}

// Client talks to the Replicate predictions API on behalf of the relay.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. baseURL defaults to DefaultBaseURL
// if empty and httpClient defaults to http.DefaultClient if nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// CreatePrediction forwards a creation body as is.
func (c *Client) CreatePrediction(ctx context.Context, token string, body []byte) (*Reply, error) {
	return c.do(ctx, token, http.MethodPost, c.baseURL+"/predictions", body)
}

// GetPrediction fetches the current state of prediction id.
func (c *Client) GetPrediction(ctx context.Context, token, id string) (*Reply, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("prediction id is empty")
	}
	return c.do(ctx, token, http.MethodGet, c.baseURL+"/predictions/"+url.PathEscape(id), nil)
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, body []byte) (*Reply, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("could not create replicate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpClient := *c.http
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &authTransport{token: token, transport: base}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to replicate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading replicate response: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("replicate returned a non-JSON body (status %s)", resp.Status)
	}

	return &Reply{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       json.RawMessage(raw),
	}, nil
}
