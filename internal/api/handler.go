package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/refound/refound/internal/embedding"
	"github.com/refound/refound/internal/engine"
	"github.com/refound/refound/internal/item"
)

// maxImageUpload bounds multipart image uploads at 10 MiB.
const maxImageUpload = 10 << 20

// Matcher is the engine surface the HTTP layer drives.
type Matcher interface {
	EnsureEmbeddings(ctx context.Context, typ item.Type, id int64, force bool) engine.EmbeddingResult
	BatchEmbed(ctx context.Context, ids []int64, typ item.Type, force bool) *engine.BatchResult
	Cleanup(ctx context.Context, olderThanDays int) (*engine.CleanupResult, error)
	Stats(ctx context.Context) (*item.EmbeddingStats, error)
	FindSimilar(ctx context.Context, q engine.SimilarQuery) ([]engine.MatchCandidate, error)
	SearchByText(ctx context.Context, query string, q engine.SearchQuery) ([]engine.MatchCandidate, error)
	SearchByImage(ctx context.Context, data []byte, q engine.SearchQuery) ([]engine.MatchCandidate, error)
	ReviewMatch(ctx context.Context, matchID int64, action, notes string, reviewerID int64) (*item.Match, error)
	PendingMatches(ctx context.Context, limit int) ([]*item.Match, error)
}

// OperationDefaults supplies the threshold and result cap for one
// search operation when the request omits them.
type OperationDefaults struct {
	Threshold  float64
	MaxResults int
}

// Defaults holds per-operation search defaults. Each operation carries
// its own pair: item-to-item search casts a narrower net than a free
// text query.
type Defaults struct {
	Similar     OperationDefaults
	TextSearch  OperationDefaults
	ImageSearch OperationDefaults
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	matcher  Matcher
	defaults Defaults
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(m Matcher, defaults Defaults, logger *zap.Logger) *Handler {
	if defaults.Similar.Threshold == 0 {
		defaults.Similar.Threshold = 0.7
	}
	if defaults.Similar.MaxResults == 0 {
		defaults.Similar.MaxResults = 10
	}
	if defaults.TextSearch.Threshold == 0 {
		defaults.TextSearch.Threshold = 0.6
	}
	if defaults.TextSearch.MaxResults == 0 {
		defaults.TextSearch.MaxResults = 20
	}
	if defaults.ImageSearch.Threshold == 0 {
		defaults.ImageSearch.Threshold = 0.7
	}
	if defaults.ImageSearch.MaxResults == 0 {
		defaults.ImageSearch.MaxResults = 15
	}
	return &Handler{matcher: m, defaults: defaults, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Post("/embeddings/generate", h.generateEmbeddings)
		r.Post("/embeddings/batch", h.batchEmbeddings)
		r.Get("/embeddings/stats", h.embeddingStats)
		r.Delete("/embeddings/cleanup", h.cleanupEmbeddings)

		r.Post("/similarity/find", h.findSimilar)
		r.Post("/search/text", h.searchText)
		r.Post("/search/image", h.searchImage)

		r.Get("/matches/pending", h.pendingMatches)
		r.Put("/matches/{id}/review", h.reviewMatch)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "refound-matching"})
}

type generateRequest struct {
	ItemID   int64  `json:"item_id"`
	ItemType string `json:"item_type"`
	Force    bool   `json:"force"`
}

func (h *Handler) generateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := item.ParseType(req.ItemType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	res := h.matcher.EnsureEmbeddings(r.Context(), typ, req.ItemID, req.Force)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":          res,
		"processing_time": time.Since(start).Seconds(),
	})
}

type batchRequest struct {
	ItemIDs  []int64 `json:"item_ids"`
	ItemType string  `json:"item_type"`
	Force    bool    `json:"force"`
}

func (h *Handler) batchEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := item.ParseType(req.ItemType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.ItemIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "item_ids is required"})
		return
	}

	start := time.Now()
	res := h.matcher.BatchEmbed(r.Context(), req.ItemIDs, typ, req.Force)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":          res,
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) embeddingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.matcher.Stats(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) cleanupEmbeddings(w http.ResponseWriter, r *http.Request) {
	days := 90
	if raw := r.URL.Query().Get("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "older_than_days must be a positive integer"})
			return
		}
		days = parsed
	}

	res, err := h.matcher.Cleanup(r.Context(), days)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type findSimilarRequest struct {
	ItemID     int64    `json:"item_id"`
	ItemType   string   `json:"item_type"`
	TargetType *string  `json:"target_type,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults *int     `json:"max_results,omitempty"`
	// Boosts default to enabled; omitting a field keeps its boost on.
	LocationBoost *bool `json:"location_boost,omitempty"`
	TimeBoost     *bool `json:"time_boost,omitempty"`
	Record        bool  `json:"record_matches"`
}

func (h *Handler) findSimilar(w http.ResponseWriter, r *http.Request) {
	var req findSimilarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	typ, err := item.ParseType(req.ItemType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	q := engine.SimilarQuery{
		ItemID:        req.ItemID,
		ItemType:      typ,
		Threshold:     h.defaults.Similar.Threshold,
		MaxResults:    h.defaults.Similar.MaxResults,
		LocationBoost: true,
		TimeBoost:     true,
		Record:        req.Record,
	}
	if req.LocationBoost != nil {
		q.LocationBoost = *req.LocationBoost
	}
	if req.TimeBoost != nil {
		q.TimeBoost = *req.TimeBoost
	}
	if req.TargetType != nil {
		target, err := item.ParseType(*req.TargetType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q.TargetType = &target
	}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}
	if req.MaxResults != nil {
		q.MaxResults = *req.MaxResults
	}

	start := time.Now()
	matches, err := h.matcher.FindSimilar(r.Context(), q)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeMatches(w, matches, start)
}

type searchRequest struct {
	Query      string   `json:"query"`
	ItemType   *string  `json:"item_type,omitempty"`
	Category   string   `json:"category,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	MaxResults *int     `json:"max_results,omitempty"`
}

func (h *Handler) searchQuery(req *searchRequest, d OperationDefaults) (engine.SearchQuery, error) {
	q := engine.SearchQuery{
		Category:   req.Category,
		Threshold:  d.Threshold,
		MaxResults: d.MaxResults,
	}
	if req.ItemType != nil {
		typ, err := item.ParseType(*req.ItemType)
		if err != nil {
			return q, err
		}
		q.ItemType = &typ
	}
	if req.Threshold != nil {
		q.Threshold = *req.Threshold
	}
	if req.MaxResults != nil {
		q.MaxResults = *req.MaxResults
	}
	return q, nil
}

func (h *Handler) searchText(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}
	q, err := h.searchQuery(&req, h.defaults.TextSearch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	matches, err := h.matcher.SearchByText(r.Context(), req.Query, q)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeMatches(w, matches, start)
}

func (h *Handler) searchImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "image file is required"})
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file must be an image"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxImageUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := searchRequest{Category: r.FormValue("category")}
	if v := r.FormValue("item_type"); v != "" {
		req.ItemType = &v
	}
	if v := r.FormValue("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be a number"})
			return
		}
		req.Threshold = &parsed
	}
	if v := r.FormValue("max_results"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_results must be an integer"})
			return
		}
		req.MaxResults = &parsed
	}
	q, err := h.searchQuery(&req, h.defaults.ImageSearch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	matches, err := h.matcher.SearchByImage(r.Context(), data, q)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeMatches(w, matches, start)
}

func (h *Handler) pendingMatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	matches, err := h.matcher.PendingMatches(r.Context(), limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if matches == nil {
		matches = []*item.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"total":   len(matches),
	})
}

type reviewRequest struct {
	Action     string `json:"action"`
	Notes      string `json:"notes"`
	ReviewerID int64  `json:"reviewer_id"`
}

func (h *Handler) reviewMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "match id must be an integer"})
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "action is required"})
		return
	}

	m, err := h.matcher.ReviewMatch(r.Context(), matchID, req.Action, req.Notes, req.ReviewerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) writeMatches(w http.ResponseWriter, matches []engine.MatchCandidate, start time.Time) {
	if matches == nil {
		matches = []engine.MatchCandidate{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches":         matches,
		"total_matches":   len(matches),
		"processing_time": time.Since(start).Seconds(),
	})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrMissingEmbedding):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, embedding.ErrEncoding):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
