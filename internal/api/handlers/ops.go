package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"membersync/internal/core"
	"membersync/internal/types"
)

// AlertStore is the subset of the alert repository the ops endpoints use.
type AlertStore interface {
	ListUnresolved(ctx context.Context) ([]types.Alert, error)
	Resolve(ctx context.Context, alertID string) error
}

// SnapshotProvider computes a metrics snapshot over a trailing window.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, window time.Duration) (types.MetricsSnapshot, error)
}

// OpsHandler serves the internal operations endpoints: open alerts, alert
// resolution, and the pipeline metrics snapshot. These are operator-facing
// and deployed behind the internal network boundary, not exposed publicly.
type OpsHandler struct {
	alerts  AlertStore
	metrics SnapshotProvider
	window  time.Duration
	logger  *slog.Logger
}

func NewOpsHandler(alerts AlertStore, metrics SnapshotProvider, window time.Duration, logger *slog.Logger) *OpsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpsHandler{alerts: alerts, metrics: metrics, window: window, logger: logger}
}

func (h *OpsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/internal", func(r chi.Router) {
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts/{alertID}/resolve", h.ResolveAlert)
		r.Get("/metrics", h.MetricsSnapshot)
	})
}

type alertListResponse struct {
	Alerts []alertView `json:"alerts"`
}

type alertView struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *OpsHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alerts.ListUnresolved(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	resp := alertListResponse{Alerts: make([]alertView, 0, len(alerts))}
	for _, a := range alerts {
		resp.Alerts = append(resp.Alerts, alertView{
			ID:        a.ID,
			Message:   a.Message,
			Severity:  string(a.Severity),
			CreatedAt: a.CreatedAt,
		})
	}

	core.JSON(w, r, http.StatusOK, resp)
}

func (h *OpsHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")

	if err := h.alerts.Resolve(r.Context(), alertID); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"resolved": true})
}

type metricsResponse struct {
	WindowStart       time.Time      `json:"window_start"`
	WindowEnd         time.Time      `json:"window_end"`
	TotalEvents       int            `json:"total_events"`
	SuccessfulEvents  int            `json:"successful_events"`
	FailedEvents      int            `json:"failed_events"`
	ErrorRate         float64        `json:"error_rate"`
	AvgProcessingMs   float64        `json:"avg_processing_ms"`
	SlowestMs         int64          `json:"slowest_ms"`
	ErrorsByType      map[string]int `json:"errors_by_type"`
	DuplicateAttempts int            `json:"duplicate_attempts"`
	StuckClaims       int            `json:"stuck_claims"`
}

func (h *OpsHandler) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.metrics.Snapshot(r.Context(), h.window)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, metricsResponse{
		WindowStart:       snap.WindowStart,
		WindowEnd:         snap.WindowEnd,
		TotalEvents:       snap.TotalEvents,
		SuccessfulEvents:  snap.SuccessfulEvents,
		FailedEvents:      snap.FailedEvents,
		ErrorRate:         snap.ErrorRate(),
		AvgProcessingMs:   snap.AvgProcessingMs,
		SlowestMs:         snap.SlowestMs,
		ErrorsByType:      snap.ErrorsByType,
		DuplicateAttempts: snap.DuplicateAttempts,
		StuckClaims:       snap.StuckClaims,
	})
}
