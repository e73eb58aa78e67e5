package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

const (
	maxIDLen        = 128
	maxHistoryLimit = 5000
)

// fieldView adds decode failures, which the store keeps out of JSON.
type fieldView struct {
	greenhouse.Field
	ConfigErrors map[greenhouse.Device]string `json:"config_errors,omitempty"`
}

type greenhouseView struct {
	greenhouse.Greenhouse
	Fields []fieldView `json:"fields"`
}

func viewOf(g greenhouse.Greenhouse) greenhouseView {
	v := greenhouseView{Greenhouse: g, Fields: make([]fieldView, len(g.Fields))}
	for i, f := range g.Fields {
		v.Fields[i] = fieldView{Field: f}
		if len(f.ConfigErrors) > 0 {
			v.Fields[i].ConfigErrors = make(map[greenhouse.Device]string, len(f.ConfigErrors))
			for d, err := range f.ConfigErrors {
				v.Fields[i].ConfigErrors[d] = err.Error()
			}
		}
	}
	return v
}

// handleListGreenhouses returns every greenhouse with the newest reading per
// channel.
func (s *Server) handleListGreenhouses(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.writeStoreError(w, "failed to list greenhouses", err)
		return
	}

	views := make([]greenhouseView, len(list))
	for i, g := range list {
		views[i] = viewOf(g)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"greenhouses": views,
		"count":       len(views),
	})
}

// handleGetGreenhouse returns one greenhouse with its recent series.
func (s *Server) handleGetGreenhouse(w http.ResponseWriter, r *http.Request) {
	id, ok := greenhouseIDParam(w, r)
	if !ok {
		return
	}

	g, err := s.store.Greenhouse(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "failed to get greenhouse", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*g))
}

// handleSetDeviceConfig replaces one device's configuration. The body is the
// stored shape, e.g. {"mode":"scheduled","turn_on_at":"06:00","turn_off_after":30}.
func (s *Server) handleSetDeviceConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := greenhouseIDParam(w, r)
	if !ok {
		return
	}
	idx, ok := fieldIndexParam(w, r)
	if !ok {
		return
	}
	device, err := greenhouse.ParseDevice(chi.URLParam(r, "device"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	cfg, err := greenhouse.ParseDeviceConfig(body)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	if err := s.store.SetDeviceConfig(r.Context(), id, idx, device, cfg); err != nil {
		s.writeStoreError(w, "failed to store device config", err)
		return
	}

	s.logger.Info("device config updated",
		"greenhouse_id", id,
		"field_index", idx,
		"device", device,
		"mode", cfg.Mode,
		"subject", subjectOf(r),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"greenhouse_id": id,
		"field_index":   idx,
		"device":        device,
		"config":        cfg,
	})
}

// handleFieldHistory returns readings of one channel, newest first.
//
// channel accepts a canonical name (temperature_sensor) or a transport token
// (temp). start and end are RFC 3339 and optional.
func (s *Server) handleFieldHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := greenhouseIDParam(w, r)
	if !ok {
		return
	}
	idx, ok := fieldIndexParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	channel, err := parseChannel(q.Get("channel"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		writeBadRequest(w, "invalid start timestamp")
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		writeBadRequest(w, "invalid end timestamp")
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxHistoryLimit {
			writeBadRequest(w, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
	}

	readings, err := s.store.History(r.Context(), greenhouse.HistoryQuery{
		GreenhouseID: id,
		FieldIndex:   idx,
		Channel:      channel,
		Start:        start,
		End:          end,
		Limit:        limit,
	})
	if err != nil {
		s.writeStoreError(w, "failed to load history", err)
		return
	}
	if readings == nil {
		readings = []greenhouse.Reading{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"greenhouse_id": id,
		"field_index":   idx,
		"channel":       channel,
		"readings":      readings,
		"count":         len(readings),
	})
}

func parseChannel(raw string) (greenhouse.Channel, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("channel is required")
	}
	if ch := greenhouse.Channel(raw); ch.Valid() {
		return ch, nil
	}
	ch, _, err := greenhouse.MapChannel(raw)
	return ch, err
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func greenhouseIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxIDLen {
		writeBadRequest(w, "invalid greenhouse ID")
		return "", false
	}
	return id, true
}

func fieldIndexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil || idx < 0 {
		writeBadRequest(w, "field index must be a non-negative integer")
		return 0, false
	}
	return idx, true
}

// writeStoreError maps store errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, greenhouse.ErrGreenhouseNotFound), errors.Is(err, greenhouse.ErrFieldNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, greenhouse.ErrUnknownChannel),
		errors.Is(err, greenhouse.ErrUnknownDevice),
		errors.Is(err, greenhouse.ErrMalformedConfig):
		writeValidationError(w, err.Error())
	case errors.Is(err, greenhouse.ErrStoreUnavailable):
		s.logger.Error(message, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
	default:
		s.logger.Error(message, "error", err)
		writeInternalError(w, message)
	}
}

func subjectOf(r *http.Request) string {
	if claims := claimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}
