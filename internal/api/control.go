package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// handleControl switches a device at once.
//
//	POST /greenhouses/{id}/fields/{idx}/control?device=fan&action=on
//	POST /greenhouses/{id}/fields/{idx}/control?device=fan&value=100
//
// A positive value means on. action wins when both are given.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id, ok := greenhouseIDParam(w, r)
	if !ok {
		return
	}
	idx, ok := fieldIndexParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	device, err := greenhouse.ParseDevice(q.Get("device"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	action, err := parseControlAction(q.Get("action"), q.Get("value"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	g, err := s.store.Greenhouse(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "failed to get greenhouse", err)
		return
	}
	if _, err := g.Field(idx); err != nil {
		writeNotFound(w, err.Error())
		return
	}

	if err := s.reconciler.Actuate(r.Context(), id, idx, device, action); err != nil {
		s.logger.Warn("operator command failed",
			"greenhouse_id", id, "field_index", idx, "device", device, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "device command failed")
		return
	}

	s.logger.Info("operator command sent",
		"greenhouse_id", id,
		"field_index", idx,
		"device", device,
		"action", action,
		"subject", subjectOf(r),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"greenhouse_id": id,
		"field_index":   idx,
		"device":        device,
		"action":        action,
		"value":         action.Value(),
	})
}

func parseControlAction(rawAction, rawValue string) (automation.Action, error) {
	if rawAction != "" {
		return automation.ParseAction(rawAction)
	}
	if rawValue == "" {
		return "", fmt.Errorf("action or value is required")
	}
	v, err := strconv.Atoi(rawValue)
	if err != nil || v < automation.ValueOff || v > automation.ValueOn {
		return "", fmt.Errorf("value must be between %d and %d", automation.ValueOff, automation.ValueOn)
	}
	if v > 0 {
		return automation.ActionOn, nil
	}
	return automation.ActionOff, nil
}
