package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"lootroom/internal/core/service"
	"lootroom/internal/port"
)

// HTTPHandler exposes the read-only surface: health, a point-in-time JSON
// snapshot and a storage description. Mutations only travel the websocket.
type HTTPHandler struct {
	svc     *service.SyncService
	repo    port.SnapshotRepository
	groupID string
}

func NewHTTPHandler(svc *service.SyncService, repo port.SnapshotRepository, groupID string) *HTTPHandler {
	return &HTTPHandler{svc: svc, repo: repo, groupID: groupID}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.SnapshotCopy())
}

func (h *HTTPHandler) DescribeStorage(w http.ResponseWriter, r *http.Request) {
	desc, err := h.repo.DescribeStorage(r.Context(), h.groupID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"storage": desc})
}

// Router wires the websocket endpoint and the read-only routes behind a
// request-logging middleware.
func Router(hub *Hub, h *HTTPHandler, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			logger.Info("handled", "method", req.Method, "url", req.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/ws").HandlerFunc(hub.HandleWS)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(h.HealthCheck)
	r.Methods(http.MethodGet).Path("/api/snapshot").HandlerFunc(h.GetSnapshot)
	r.Methods(http.MethodGet).Path("/api/storage").HandlerFunc(h.DescribeStorage)
	return r
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
