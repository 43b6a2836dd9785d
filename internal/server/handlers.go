package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"ideaforge/internal/ai"
	"ideaforge/internal/db"
)

const defaultHistoryLimit = 20

// HistoryReader is the read side of the history store.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]db.Record, error)
	Get(ctx context.Context, id string) (*db.Record, error)
}

// Options wires the handler's collaborators. History and Page are optional.
type Options struct {
	Relay       http.Handler
	Recommender *ai.Recommender
	History     HistoryReader
	Page        http.Handler
	// TokenConfigured reports whether the relay has a credential.
	TokenConfigured func() bool
	// AllowedOrigins lists cross-origin pages allowed to call the API. Empty
	// means same-origin only.
	AllowedOrigins []string
}

type apiHandler struct {
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler builds the routed handler with CORS and security headers.
func NewHandler(opts Options) http.Handler {
	origins := newOriginPolicy(opts.AllowedOrigins)
	h := &apiHandler{opts: opts, upgrader: newUpgrader(origins)}
	mux := http.NewServeMux()

	mux.Handle("/api/replicate", opts.Relay)
	mux.HandleFunc("/api/recommendations", h.handleRecommendations)
	mux.HandleFunc("/api/recommendations/more", h.handleMore)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/history/", h.handleHistoryByID)
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/ws", h.handleWS)
	if opts.Page != nil {
		mux.Handle("/", opts.Page)
	}

	return securityHeaders(cors(origins, mux))
}

type recommendRequest struct {
	Description string `json:"description"`
}

func (h *apiHandler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.opts.Recommender.Recommend(r.Context(), req.Description)
	if errors.Is(err, ai.ErrEmptyDescription) {
		writeError(w, http.StatusBadRequest, "Description is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate recommendations")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type moreRequest struct {
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *apiHandler) handleMore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}
	var req moreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.opts.Recommender.More(r.Context(), req.Category, req.Description)
	switch {
	case errors.Is(err, ai.ErrEmptyCategory), errors.Is(err, ai.ErrEmptyDescription):
		writeError(w, http.StatusBadRequest, "Category and description are required")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to generate applications")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *apiHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	if h.opts.History == nil {
		writeError(w, http.StatusNotFound, "History is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	records, err := h.opts.History.List(r.Context(), limit)
	if err != nil {
		log.Printf("history: list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Error fetching history")
		return
	}
	if records == nil {
		records = []db.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *apiHandler) handleHistoryByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	if h.opts.History == nil {
		writeError(w, http.StatusNotFound, "History is not enabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "Invalid history ID")
		return
	}
	rec, err := h.opts.History.Get(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "History record not found")
		return
	}
	if err != nil {
		log.Printf("history: get %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Error fetching history record")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *apiHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	configured := h.opts.TokenConfigured != nil && h.opts.TokenConfigured()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"token_configured": configured,
		"history":          h.opts.History != nil,
	})
}
