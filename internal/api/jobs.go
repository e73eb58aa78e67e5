package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// reconcileTimeout bounds a tick triggered through the API.
const reconcileTimeout = 2 * time.Minute

type jobView struct {
	Key          string            `json:"key"`
	GreenhouseID string            `json:"greenhouse_id"`
	FieldIndex   int               `json:"field_index"`
	Device       greenhouse.Device `json:"device"`
	Action       automation.Action `json:"action"`
	RunAt        time.Time         `json:"run_at"`
	Source       greenhouse.Mode   `json:"source"`
	MisfireGrace string            `json:"misfire_grace,omitempty"`
}

type recordView struct {
	jobView
	Outcome automation.Outcome `json:"outcome"`
	At      time.Time          `json:"at"`
}

func jobViewOf(j automation.Job) jobView {
	v := jobView{
		Key:          j.Key.String(),
		GreenhouseID: j.Key.GreenhouseID,
		FieldIndex:   j.Key.FieldIndex,
		Device:       j.Key.Device,
		Action:       j.Key.Action,
		RunAt:        j.RunAt,
		Source:       j.Source,
	}
	if j.MisfireGrace > 0 {
		v.MisfireGrace = j.MisfireGrace.String()
	}
	return v
}

// handleListJobs returns pending jobs by run time and the latest finished
// jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	pending := s.jobs.Pending()
	recent := s.jobs.Recent()

	pendingViews := make([]jobView, len(pending))
	for i, j := range pending {
		pendingViews[i] = jobViewOf(j)
	}
	recentViews := make([]recordView, len(recent))
	for i, rec := range recent {
		recentViews[len(recent)-1-i] = recordView{jobView: jobViewOf(rec.Job), Outcome: rec.Outcome, At: rec.At}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pendingViews,
		"recent":  recentViews,
	})
}

// handleReconcile runs one tick now.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), reconcileTimeout)
	defer cancel()

	res, err := s.reconciler.Tick(ctx)
	switch {
	case errors.Is(err, automation.ErrTickInProgress):
		writeError(w, http.StatusConflict, ErrCodeConflict, "a tick is already running")
		return
	case err != nil:
		s.logger.Error("manual tick failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "tick aborted")
		return
	}

	s.logger.Info("manual tick completed", "subject", subjectOf(r), "jobs_scheduled", res.JobsScheduled)
	writeJSON(w, http.StatusOK, map[string]any{
		"since":          res.Since,
		"greenhouses":    res.Greenhouses,
		"devices":        res.Devices,
		"jobs_scheduled": res.JobsScheduled,
		"actuations":     res.Actuations,
		"skipped":        res.Skipped,
		"duration_ms":    res.Duration.Milliseconds(),
	})
}
