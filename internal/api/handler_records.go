package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"basekit/internal/domain"
	"basekit/internal/middleware"
)

// recordsResponse wraps list results so pagination metadata has a home.
type recordsResponse struct {
	Records []domain.Row `json:"records"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

type batchUpdateRequest struct {
	Records []batchUpdateEntry `json:"records"`
	Return  bool               `json:"return_records"`
}

type batchUpdateEntry struct {
	ID     string     `json:"id"`
	Fields domain.Row `json:"fields"`
}

type batchUpdateResponse struct {
	Updated int          `json:"updated"`
	Records []domain.Row `json:"records,omitempty"`
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	rows, err := h.records.List(r.Context(), actor, table, limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if limit <= 0 {
		limit = len(rows)
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: rows, Limit: limit, Offset: offset})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	row, err := h.records.Get(r.Context(), actor, table, id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")

	var fields domain.Row
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	row, err := h.records.Create(r.Context(), actor, table, fields)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	var fields domain.Row
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	row, err := h.records.Update(r.Context(), actor, table, id, fields)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	if err := h.records.Delete(r.Context(), actor, table, id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) batchUpdateRecords(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	table := chi.URLParam(r, "table")

	var req batchUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	updates := make([]domain.RecordUpdate, len(req.Records))
	for i, entry := range req.Records {
		updates[i] = domain.RecordUpdate{ID: entry.ID, Fields: entry.Fields}
	}

	result, err := h.records.BatchUpdate(r.Context(), actor, table, updates, req.Return)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, batchUpdateResponse{Updated: result.Updated, Records: result.Records})
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
