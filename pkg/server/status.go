package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/podwatch/podwatch/pkg/log"
	"github.com/podwatch/podwatch/pkg/types"
)

type statusResponse struct {
	Outcome   types.CycleOutcome `json:"outcome,omitempty"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	Slices    int                `json:"slices"`
	Anomalies int                `json:"anomalies"`
	Error     string             `json:"error,omitempty"`
}

// handleStatus reports the outcome of the most recent acquisition
// cycle. Before the first cycle finishes it returns an empty status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, runErr := s.poller.LastResult()
	var resp statusResponse
	if res != nil {
		resp.Outcome = res.Outcome
		resp.StartedAt = &res.StartedAt
		resp.Slices = len(res.Slices)
		resp.Anomalies = len(res.Anomalies)
	}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	writeJSON(w, resp)
}

func (s *Server) handleListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.storage.GetDeliveryPoints(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list points", slog.Any("error", err))
		writeJSONError(w, "failed to list points", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Points []types.DeliveryPoint `json:"points"`
	}{Points: points})
}

type periodResponse struct {
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleListPeriods(w http.ResponseWriter, r *http.Request) {
	defs := s.registry.Definitions()
	periods := make([]periodResponse, 0, len(defs))
	for _, def := range defs {
		periods = append(periods, periodResponse{
			Key:         def.Key,
			DisplayName: def.DisplayName,
			Description: def.Description,
		})
	}
	writeJSON(w, struct {
		Periods []periodResponse `json:"periods"`
	}{Periods: periods})
}

func (s *Server) handleListAggregates(w http.ResponseWriter, r *http.Request) {
	pointID := r.URL.Query().Get("pointID")
	aggs, err := s.storage.GetAggregates(r.Context(), pointID)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list aggregates", slog.Any("error", err))
		writeJSONError(w, "failed to list aggregates", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Aggregates []types.Aggregate `json:"aggregates"`
	}{Aggregates: aggs})
}

func (s *Server) handleListAnomalies(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, "invalid since parameter, expected RFC3339", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	anomalies, err := s.storage.GetAnomalies(r.Context(), since)
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to list anomalies", slog.Any("error", err))
		writeJSONError(w, "failed to list anomalies", http.StatusInternalServerError)
		return
	}
	writeJSON(w, struct {
		Anomalies []types.Anomaly `json:"anomalies"`
	}{Anomalies: anomalies})
}

// handleDiscover runs delivery point discovery against the portal and
// persists the result.
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	points, err := s.poller.Discover(r.Context())
	if err != nil {
		log.Ctx(r.Context()).ErrorContext(r.Context(), "discovery failed", slog.Any("error", err))
		var authErr *types.AuthenticationError
		if errors.As(err, &authErr) {
			writeJSONError(w, "portal rejected credentials", http.StatusBadGateway)
			return
		}
		writeJSONError(w, "discovery failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, struct {
		Points []types.DeliveryPoint `json:"points"`
	}{Points: points})
}

// handleTriggerCycle kicks off an acquisition cycle in the background.
// The poller already guarantees only one cycle runs at a time.
func (s *Server) handleTriggerCycle(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.poller.RunOnce(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "triggered cycle failed", slog.Any("error", err))
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, struct {
		Started bool `json:"started"`
	}{Started: true})
}
