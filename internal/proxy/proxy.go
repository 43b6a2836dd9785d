// Package proxy relays prediction requests to Replicate with a server-held
// token, so the browser never sees the credential.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"ideaforge/internal/replicate"
)

// maxRequestBytes caps the size of a relay request body.
const maxRequestBytes = 1 << 20

// TokenFunc returns the upstream credential, or "" when none is configured.
// It is called on every request so a token set after startup is picked up.
type TokenFunc func() string

// Handler is the stateless relay endpoint.
type Handler struct {
	client *replicate.Client
	token  TokenFunc
}

// NewHandler creates a relay that forwards through client.
func NewHandler(client *replicate.Client, token TokenFunc) *Handler {
	return &Handler{client: client, token: token}
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("proxy: error encoding JSON response: %v", err)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	token := ""
	if h.token != nil {
		token = strings.TrimSpace(h.token())
	}
	if token == "" {
		writeError(w, http.StatusInternalServerError, errorBody{
			Error: "Replicate API token not set in environment variables (REPLICATE_API_TOKEN)",
		})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}

	var reply *replicate.Reply
	switch {
	case truthy(fields["version"]) && truthy(fields["input"]):
		reply, err = h.client.CreatePrediction(r.Context(), token, bytes.TrimSpace(raw))
	case truthy(fields["id"]):
		reply, err = h.client.GetPrediction(r.Context(), token, scalarString(fields["id"]))
	default:
		writeError(w, http.StatusBadRequest, errorBody{Error: "Invalid request body"})
		return
	}
	if err != nil {
		log.Printf("proxy: upstream call failed: %v", err)
		writeError(w, http.StatusInternalServerError, errorBody{
			Error:   "Replicate API error",
			Details: err.Error(),
		})
		return
	}

	if v := reply.Header.Get("Retry-After"); v != "" {
		w.Header().Set("Retry-After", v)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.StatusCode)
	if _, err := w.Write(reply.Body); err != nil {
		log.Printf("proxy: error writing response: %v", err)
	}
}

// truthy mirrors what a browser client treats as "present": anything other
// than a missing key, null, false, 0 or "".
func truthy(raw json.RawMessage) bool {
	v := strings.TrimSpace(string(raw))
	switch v {
	case "", "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f != 0
	}
	return true
}

// scalarString renders a JSON string or number as the bare value.
func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
