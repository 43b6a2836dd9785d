package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/ai"
	"ideaforge/internal/config"
	"ideaforge/internal/ideas"
)

func TestReadToken(t *testing.T) {
	tok, err := readToken(strings.NewReader("  r8_abc \n"))
	require.NoError(t, err)
	assert.Equal(t, "r8_abc", tok)

	tok, err = readToken(strings.NewReader("r8_noeol"))
	require.NoError(t, err)
	assert.Equal(t, "r8_noeol", tok)
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "  a\n  b", indent("a\nb\n", "  "))
}

func TestPrintCategories(t *testing.T) {
	var b strings.Builder
	printCategories(&b, ideas.FallbackCategories())
	assert.Contains(t, b.String(), "== Process Automation ==")
	assert.Contains(t, b.String(), "Workflow Manager AI")
	assert.Contains(t, b.String(), "  - Automatic generation of periodic reports")
}

func TestPrintProblem(t *testing.T) {
	var b strings.Builder
	printProblem(&b, &ai.Problem{Code: ai.CodeJSONParse, Title: "Could not parse", RawOutput: "I cannot comply."})
	assert.Contains(t, b.String(), "Could not parse (json_parse)")
	assert.Contains(t, b.String(), "    I cannot comply.")

	b.Reset()
	printProblem(&b, nil)
	assert.Empty(t, b.String())
}

// TestInProcessRelay runs a recommendation through the relay handler against
// a fake Replicate API, the way "generate" does without --endpoint.
func TestInProcessRelay(t *testing.T) {
	output := `{"categories":[{"name":"Marketing","applications":[{"title":"X","description":"Y"}]}]}`
	var polls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			body, _ := io.ReadAll(r.Body)
			var req map[string]any
			assert.NoError(t, json.Unmarshal(body, &req))
			assert.Equal(t, "test/model", req["version"])
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if polls.Add(1) < 2 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			resp, _ := json.Marshal(map[string]any{"id": "p1", "status": "succeeded", "output": []string{output[:20], output[20:]}})
			_, _ = w.Write(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv(config.EnvToken, "")
	t.Setenv(config.EnvDeprecatedToken, "")
	config.SetDefaults()
	viper.Set(config.KeyToken, "r8_test")
	viper.Set(config.KeyBaseURL, upstream.URL)
	viper.Set(config.KeyModel, "test/model")
	viper.Set(config.KeyPollInterval, time.Millisecond)

	s := config.Load()
	relay, err := newRelay(s)
	require.NoError(t, err)
	rec, err := newRecommender(s, "", relay, nil)
	require.NoError(t, err)

	res, err := rec.Recommend(context.Background(), "I run a bakery")
	require.NoError(t, err)
	require.Nil(t, res.Problem, "%+v", res.Problem)
	require.Len(t, res.Categories, 1)
	assert.Equal(t, "X", res.Categories[0].Applications[0].Title)
	assert.Equal(t, int32(2), polls.Load())
}
