package greenhouse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SeriesWindow is the number of most recent readings per channel returned by
// full greenhouse reads.
const SeriesWindow = 10

// Placeholders used when a greenhouse is first seen through ingestion.
const (
	PlaceholderLocation = "Unknown"
	placeholderNameFmt  = "Greenhouse %s"
)

// Reading is one timestamped value on a channel.
type Reading struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// Greenhouse is a site with an ordered sequence of fields.
type Greenhouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Location  string    `json:"location"`
	Fields    []Field   `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Field returns the field at index, or ErrFieldNotFound when the index is out
// of range or the slot was deleted.
func (g *Greenhouse) Field(index int) (*Field, error) {
	if index < 0 || index >= len(g.Fields) || !g.Fields[index].Present {
		return nil, fmt.Errorf("%w: greenhouse %s index %d", ErrFieldNotFound, g.ID, index)
	}
	return &g.Fields[index], nil
}

// Field is one growing zone. Series hold the newest reading first.
type Field struct {
	Index   int                        `json:"index"`
	Present bool                       `json:"present"`
	Series  map[Channel][]Reading      `json:"series,omitempty"`
	Devices map[Device]DeviceConfig    `json:"devices,omitempty"`
	Extra   map[string]json.RawMessage `json:"metadata,omitempty"`

	// ConfigErrors records devices whose stored configuration failed to
	// decode. Those devices are absent from Devices.
	ConfigErrors map[Device]error `json:"-"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Latest returns the newest reading on ch.
func (f *Field) Latest(ch Channel) (Reading, bool) {
	series := f.Series[ch]
	if len(series) == 0 {
		return Reading{}, false
	}
	return series[0], true
}

// DeviceConfig returns the decoded configuration for d.
// ok is false when no configuration is stored. A non-nil error means a
// configuration is stored but malformed.
func (f *Field) DeviceConfig(d Device) (cfg DeviceConfig, ok bool, err error) {
	if cfgErr, bad := f.ConfigErrors[d]; bad {
		return DeviceConfig{}, true, cfgErr
	}
	cfg, ok = f.Devices[d]
	return cfg, ok, nil
}

// MaxFieldIndex is the highest field index a reading may address. Writing
// index n materializes every missing field below it.
const MaxFieldIndex = 255

// ReadingInput is a decoded reading addressed to a greenhouse field.
type ReadingInput struct {
	Owner        string
	GreenhouseID string
	FieldIndex   int
	Channel      Channel
	Reading      Reading
}

// Validate checks the addressing and channel of the input.
func (in ReadingInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.GreenhouseID) == "" {
		problems = append(problems, "greenhouse id is required")
	}
	if in.FieldIndex < 0 || in.FieldIndex > MaxFieldIndex {
		problems = append(problems, fmt.Sprintf("field index must be between 0 and %d", MaxFieldIndex))
	}
	if !in.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("channel %q is not canonical", in.Channel))
	}
	if in.Reading.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidReading, strings.Join(problems, "; "))
	}
	return nil
}

// HistoryQuery selects readings of one channel inside an optional time range.
// Zero Start or End leaves that side open.
type HistoryQuery struct {
	GreenhouseID string
	FieldIndex   int
	Channel      Channel
	Start        time.Time
	End          time.Time
	Limit        int
}

// placeholderName is the name given to a greenhouse created by ingestion.
func placeholderName(id string) string {
	return fmt.Sprintf(placeholderNameFmt, id)
}
