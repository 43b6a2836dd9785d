package replicate

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCreateForwardsBodyWithAuth(t *testing.T) {
	var gotAuth, gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/v1/", srv.Client())
	reply, err := c.CreatePrediction(context.Background(), "secret", []byte(`{"version":"m","input":{"prompt":"hi"}}`))
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/predictions", gotPath)
	assert.JSONEq(t, `{"version":"m","input":{"prompt":"hi"}}`, gotBody)
	assert.Equal(t, http.StatusCreated, reply.StatusCode)
	assert.JSONEq(t, `{"id":"p1","status":"starting"}`, string(reply.Body))
}

func TestClientGetEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Not found."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	reply, err := c.GetPrediction(context.Background(), "secret", "a/b")
	require.NoError(t, err)
	assert.Equal(t, "/predictions/a%2Fb", gotPath)
	assert.Equal(t, http.StatusNotFound, reply.StatusCode)

	_, err = c.GetPrediction(context.Background(), "secret", "  ")
	assert.Error(t, err)
}

func TestClientRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).GetPrediction(context.Background(), "secret", "p1")
	assert.ErrorContains(t, err, "non-JSON")
}

func TestNewHTTPClientProxy(t *testing.T) {
	c, err := NewHTTPClient("http://127.0.0.1:7890", 0)
	require.NoError(t, err)
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	req, _ := http.NewRequest(http.MethodGet, "https://api.replicate.com/v1/predictions", nil)
	u, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7890", u.Host)

	_, err = NewHTTPClient("://bad", 0)
	assert.Error(t, err)
}
