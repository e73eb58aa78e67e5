package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order for the optional payload timestamp.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type payloadJSON struct {
	Value     json.RawMessage `json:"value"`
	Unit      *string         `json:"unit"`
	Timestamp *string         `json:"timestamp"`
}

// Decoded is the value part of a feed message.
type Decoded struct {
	Value     float64
	Unit      string
	Timestamp time.Time
}

// DecodePayload reads a JSON object or a bare number. defaultUnit fills a
// missing unit and now fills a missing timestamp.
func DecodePayload(payload []byte, defaultUnit string, now time.Time) (Decoded, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return Decoded{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}

	out := Decoded{Unit: defaultUnit, Timestamp: now.UTC()}

	if trimmed[0] != '{' {
		v, err := parseValue(trimmed)
		if err != nil {
			return Decoded{}, err
		}
		out.Value = v
		return out, nil
	}

	var body payloadJSON
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return Decoded{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if len(body.Value) == 0 || string(body.Value) == "null" {
		return Decoded{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}
	v, err := parseValue(body.Value)
	if err != nil {
		return Decoded{}, err
	}
	out.Value = v

	if body.Unit != nil && *body.Unit != "" {
		out.Unit = *body.Unit
	}
	if body.Timestamp != nil && *body.Timestamp != "" {
		ts, err := parseTimestamp(*body.Timestamp)
		if err != nil {
			return Decoded{}, err
		}
		out.Timestamp = ts
	}
	return out, nil
}

// parseValue accepts a JSON number or a quoted number.
func parseValue(raw []byte) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q is not a number", ErrInvalidPayload, s)
	}
	return v, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrInvalidPayload, s)
}
