package results

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"passage-race/internal/race"
)

// HTTPHandler serves the read-only race history surface.
type HTTPHandler struct {
	service Service
}

func NewHTTPHandler(service Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/results/recent", h.handleRecent)
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.service.Recent(r.Context(), limit)
	if err != nil {
		log.Printf("[Results] recent query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	if records == nil {
		records = []race.RaceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
