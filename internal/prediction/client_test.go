package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/replicate"
)

type scripted struct {
	status int
	body   string
	delay  time.Duration
	header map[string]string
}

// fakeRelay answers creation calls with create and status calls with polls in
// order, repeating the last poll once the script runs out.
type fakeRelay struct {
	mu        sync.Mutex
	create    scripted
	polls     []scripted
	pollCalls int
	pollIDs   []string
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	var s scripted
	f.mu.Lock()
	if _, ok := body["version"]; ok {
		s = f.create
	} else {
		id, _ := body["id"].(string)
		f.pollIDs = append(f.pollIDs, id)
		i := f.pollCalls
		if i >= len(f.polls) {
			i = len(f.polls) - 1
		}
		s = f.polls[i]
		f.pollCalls++
	}
	f.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.delay):
		}
	}
	for k, v := range s.header {
		w.Header().Set(k, v)
	}
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s.body))
}

func (f *fakeRelay) polled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func newTestClient(t *testing.T, relay http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(relay)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/api/replicate", srv.Client(), "test/model")
	c.PollInterval = time.Millisecond
	return c
}

func processing(id string) scripted {
	return scripted{body: `{"id":"` + id + `","status":"processing"}`}
}

var testReq = GenerationRequest{SystemPrompt: "sys", UserPrompt: "user"}

func TestRunImmediateSuccessDoesNotPoll(t *testing.T) {
	relay := &fakeRelay{create: scripted{status: http.StatusCreated, body: `{"id":"p1","status":"succeeded","output":"done"}`}}
	c := newTestClient(t, relay)

	out, err := c.Run(context.Background(), testReq)
	require.NoError(t, err)
	text, ok := out.Text()
	require.True(t, ok)
	assert.Equal(t, "done", text)
	assert.Equal(t, 0, relay.polled())
}

func TestRunPollsUntilSucceeded(t *testing.T) {
	for _, k := range []int{0, 1, 3, 119} {
		polls := make([]scripted, 0, k+1)
		for i := 0; i < k; i++ {
			polls = append(polls, processing("p1"))
		}
		polls = append(polls, scripted{body: `{"id":"p1","status":"succeeded","output":["O","K"]}`})
		relay := &fakeRelay{create: scripted{body: `{"id":"p1","status":"starting"}`}, polls: polls}
		c := newTestClient(t, relay)

		out, err := c.Run(context.Background(), testReq)
		require.NoError(t, err, "k=%d", k)
		text, _ := out.Text()
		assert.Equal(t, "OK", text)
		assert.Equal(t, k+1, relay.polled(), "k=%d", k)
	}
}

func TestRunGivesUpAfterCeiling(t *testing.T) {
	relay := &fakeRelay{create: processing("p1"), polls: []scripted{processing("p1")}}
	c := newTestClient(t, relay)

	_, err := c.Run(context.Background(), testReq)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPredictionTimeout)
	assert.Equal(t, DefaultMaxAttempts, relay.polled())
}

func TestRunPollsWithSubmittedID(t *testing.T) {
	relay := &fakeRelay{
		create: scripted{body: `{"id":"abc","status":"starting"}`},
		polls:  []scripted{processing("abc"), {body: `{"id":"abc","status":"succeeded","output":"x"}`}},
	}
	c := newTestClient(t, relay)
	_, err := c.Run(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "abc"}, relay.pollIDs)
}

func TestRunCreateStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrInvalidCredential},
		{http.StatusPaymentRequired, ErrInsufficientBalance},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnprocessableEntity, ErrInvalidInput},
		{http.StatusInternalServerError, ErrCreate},
	}
	for _, tc := range cases {
		relay := &fakeRelay{
			create: scripted{status: tc.status, body: `{"detail":"nope"}`, header: map[string]string{"Retry-After": "3"}},
			polls:  []scripted{processing("p1")},
		}
		c := newTestClient(t, relay)

		_, err := c.Run(context.Background(), testReq)
		require.Error(t, err)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, 0, relay.polled())

		var perr *Error
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, tc.status, perr.StatusCode)
		assert.Equal(t, "nope", perr.Detail)
		if tc.status == http.StatusTooManyRequests {
			assert.Equal(t, 3*time.Second, perr.RetryAfter)
		}
	}
}

func TestRunTerminalFailures(t *testing.T) {
	cases := []struct {
		name string
		poll string
		want error
	}{
		{"failed", `{"id":"p1","status":"failed","error":"CUDA out of memory"}`, ErrPredictionFailed},
		{"canceled", `{"id":"p1","status":"canceled"}`, ErrPredictionCanceled},
		{"no output", `{"id":"p1","status":"succeeded"}`, ErrNoOutput},
		{"null output", `{"id":"p1","status":"succeeded","output":null}`, ErrNoOutput},
		{"unknown status", `{"id":"p1","status":"queued"}`, ErrPredictionTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			relay := &fakeRelay{create: processing("p1"), polls: []scripted{{body: tc.poll}}}
			c := newTestClient(t, relay)
			_, err := c.Run(context.Background(), testReq)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, relay.polled())
		})
	}

	relay := &fakeRelay{create: processing("p1"), polls: []scripted{{body: `{"id":"p1","status":"failed","error":"CUDA out of memory"}`}}}
	_, err := newTestClient(t, relay).Run(context.Background(), testReq)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "CUDA out of memory", perr.Detail)
}

func TestRunStatusErrorStopsImmediately(t *testing.T) {
	relay := &fakeRelay{
		create: processing("p1"),
		polls:  []scripted{processing("p1"), {status: http.StatusBadGateway, body: `{"error":"Replicate API error"}`}, processing("p1")},
	}
	c := newTestClient(t, relay)

	_, err := c.Run(context.Background(), testReq)
	assert.ErrorIs(t, err, &Error{Kind: KindStatusError, StatusCode: http.StatusBadGateway})
	assert.Equal(t, 2, relay.polled())
}

func TestRunStatusTimeout(t *testing.T) {
	relay := &fakeRelay{
		create: processing("p1"),
		polls:  []scripted{{body: `{"id":"p1","status":"processing"}`, delay: time.Second}},
	}
	c := newTestClient(t, relay)
	c.StatusTimeout = 20 * time.Millisecond

	_, err := c.Run(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrStatusTimeout)
	assert.NotErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 1, relay.polled())
}

func TestRunRequestTimeout(t *testing.T) {
	relay := &fakeRelay{create: scripted{body: `{"id":"p1","status":"processing"}`, delay: time.Second}}
	c := newTestClient(t, relay)
	c.CreateTimeout = 20 * time.Millisecond

	_, err := c.Run(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.Equal(t, 0, relay.polled())
}

func TestRunConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	c := New(endpoint, nil, "")
	_, err := c.Run(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestRunBadResponse(t *testing.T) {
	relay := &fakeRelay{create: scripted{body: `not json`}}
	_, err := newTestClient(t, relay).Run(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrBadResponse)

	relay = &fakeRelay{create: scripted{body: `{"status":"starting"}`}}
	_, err = newTestClient(t, relay).Run(context.Background(), testReq)
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestRunCallerCancellation(t *testing.T) {
	relay := &fakeRelay{create: processing("p1"), polls: []scripted{processing("p1")}}
	c := newTestClient(t, relay)
	c.PollInterval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := c.Run(ctx, testReq)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var perr *Error
	assert.False(t, errors.As(err, &perr))
}

func TestRunSubmitsCombinedPrompt(t *testing.T) {
	var got replicate.CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":"x"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client(), "openai/gpt-4.1-mini").Run(context.Background(), testReq)
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4.1-mini", got.Version)
	assert.Equal(t, "sys\nuser", got.Input.Prompt)
}

func TestRunReportsProgress(t *testing.T) {
	relay := &fakeRelay{
		create: scripted{body: `{"id":"p1","status":"starting"}`},
		polls:  []scripted{processing("p1"), {body: `{"id":"p1","status":"succeeded","output":"x"}`}},
	}
	c := newTestClient(t, relay)

	var seen []Progress
	ctx := WithProgress(context.Background(), func(p Progress) { seen = append(seen, p) })
	_, err := c.Run(ctx, testReq)
	require.NoError(t, err)
	assert.Equal(t, []Progress{
		{PredictionID: "p1", Attempt: 0, Status: replicate.StatusStarting},
		{PredictionID: "p1", Attempt: 1, Status: replicate.StatusProcessing},
		{PredictionID: "p1", Attempt: 2, Status: replicate.StatusSucceeded},
	}, seen)
}

func TestRunEndToEndScenario(t *testing.T) {
	output := `{"categories":[{"name":"Marketing","applications":[{"title":"X","description":"Y","prompt":"Z","examples":["a"]}]}]}`
	succeeded, _ := json.Marshal(map[string]any{"id": "p1", "status": "succeeded", "output": output})
	relay := &fakeRelay{
		create: processing("p1"),
		polls:  []scripted{processing("p1"), {body: string(succeeded)}},
	}
	c := newTestClient(t, relay)

	out, err := c.Run(context.Background(), testReq)
	require.NoError(t, err)
	text, ok := out.Text()
	require.True(t, ok)
	assert.Equal(t, output, text)
	assert.Equal(t, 2, relay.polled())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-4"))
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.InDelta(t, 90, d.Seconds(), 2)
}
