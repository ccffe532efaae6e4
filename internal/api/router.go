// Package api serves stored firms and crawl runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/store"
)

const maxPageSize = 500

// Reader is the read side of the firm store.
type Reader interface {
	GetFirm(ctx context.Context, ceref string) (*model.Firm, error)
	ListFirms(ctx context.Context, filter store.FirmFilter) ([]model.Firm, error)
	CountFirms(ctx context.Context, filter store.FirmFilter) (int64, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CrawlRun, error)
	Ping(ctx context.Context) error
}

// FirmPage is the response body of GET /firms.
type FirmPage struct {
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
	Firms  []model.Firm `json:"firms"`
}

type handler struct {
	st  Reader
	log *zap.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(st Reader) http.Handler {
	h := &handler{st: st, log: zap.L().With(zap.String("component", "api"))}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Get("/firms", h.listFirms)
	r.Get("/firms/{ceref}", h.getFirm)
	r.Get("/runs", h.listRuns)
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.st.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listFirms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 100)
	if err != nil || limit < 1 || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be >= 0")
		return
	}

	filter := store.FirmFilter{
		NamePrefix: q.Get("name"),
		Limit:      limit,
		Offset:     offset,
	}
	firms, err := h.st.ListFirms(r.Context(), filter)
	if err != nil {
		h.internal(w, "list firms", err)
		return
	}
	total, err := h.st.CountFirms(r.Context(), filter)
	if err != nil {
		h.internal(w, "count firms", err)
		return
	}
	if firms == nil {
		firms = []model.Firm{}
	}
	writeJSON(w, http.StatusOK, FirmPage{Total: total, Limit: limit, Offset: offset, Firms: firms})
}

func (h *handler) getFirm(w http.ResponseWriter, r *http.Request) {
	ceref := chi.URLParam(r, "ceref")
	firm, err := h.st.GetFirm(r.Context(), ceref)
	if errors.Is(err, store.ErrFirmNotFound) {
		writeError(w, http.StatusNotFound, "firm "+ceref+" not found")
		return
	}
	if err != nil {
		h.internal(w, "get firm", err)
		return
	}
	writeJSON(w, http.StatusOK, firm)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), 50)
	if err != nil || limit < 1 || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	runs, err := h.st.ListRuns(r.Context(), store.RunFilter{
		Spider: r.URL.Query().Get("spider"),
		Limit:  limit,
	})
	if err != nil {
		h.internal(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.CrawlRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *handler) internal(w http.ResponseWriter, op string, err error) {
	h.log.Error("request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
