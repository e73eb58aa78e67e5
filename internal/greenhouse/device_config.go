package greenhouse

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode selects how a device is driven.
type Mode string

// Device control modes.
const (
	ModeManual    Mode = "manual"
	ModeScheduled Mode = "scheduled"
	ModeAutomatic Mode = "automatic"
)

// Repeat selects which days a scheduled device runs on.
type Repeat string

// Schedule repeat policies.
const (
	RepeatToday    Repeat = "today"
	RepeatEveryday Repeat = "everyday"
	RepeatCustom   Repeat = "custom"
)

// MaxTurnOffAfter is the longest accepted turn_off_after, in minutes (7 days).
const MaxTurnOffAfter = 7 * 24 * 60

// DeviceConfig is the per-device configuration stored in field metadata.
//
// Exactly one of Manual or Scheduled is set for the manual and scheduled
// modes. Automatic mode carries no payload.
type DeviceConfig struct {
	Mode Mode

	// Descriptive fields kept for the mobile clients.
	ID        string
	Name      string
	Status    string
	Intensity *int

	Manual    *ManualConfig
	Scheduled *ScheduledConfig
}

// ManualConfig holds the manual-mode auto-off delay.
// A nil TurnOffAfter keeps the device on until changed externally.
type ManualConfig struct {
	TurnOffAfter *int // minutes
}

// ScheduledConfig holds a daily on/off window.
type ScheduledConfig struct {
	TurnOnAt     ClockTime
	TurnOffAfter int // minutes
	Repeat       Repeat
	Dates        []Date // only for RepeatCustom
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24 hour).
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: turn_on_at %q is not HH:MM", ErrMalformedConfig, s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Date is a calendar day without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrMalformedConfig, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// At combines the day with a clock time in loc.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// deviceConfigJSON is the stored shape of a device configuration.
type deviceConfigJSON struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Mode         Mode     `json:"mode"`
	Status       string   `json:"status,omitempty"`
	Intensity    *int     `json:"intensity,omitempty"`
	TurnOffAfter *int     `json:"turn_off_after"`
	TurnOnAt     string   `json:"turn_on_at,omitempty"`
	Repeat       Repeat   `json:"repeat,omitempty"`
	Dates        []string `json:"dates,omitempty"`
}

// ParseDeviceConfig decodes and validates a stored device configuration.
// Every failure wraps ErrMalformedConfig.
func ParseDeviceConfig(raw []byte) (DeviceConfig, error) {
	var wire deviceConfigJSON
	if err := json.Unmarshal(raw, &wire); err != nil {
		return DeviceConfig{}, fmt.Errorf("%w: %w", ErrMalformedConfig, err)
	}

	cfg := DeviceConfig{
		Mode:      Mode(strings.ToLower(string(wire.Mode))),
		ID:        wire.ID,
		Name:      wire.Name,
		Status:    wire.Status,
		Intensity: wire.Intensity,
	}

	switch cfg.Mode {
	case ModeManual:
		cfg.Manual = &ManualConfig{TurnOffAfter: wire.TurnOffAfter}

	case ModeScheduled:
		if wire.TurnOnAt == "" {
			return DeviceConfig{}, fmt.Errorf("%w: scheduled mode requires turn_on_at", ErrMalformedConfig)
		}
		if wire.TurnOffAfter == nil {
			return DeviceConfig{}, fmt.Errorf("%w: scheduled mode requires turn_off_after", ErrMalformedConfig)
		}
		onAt, err := ParseClockTime(wire.TurnOnAt)
		if err != nil {
			return DeviceConfig{}, err
		}
		sched := &ScheduledConfig{
			TurnOnAt:     onAt,
			TurnOffAfter: *wire.TurnOffAfter,
			Repeat:       wire.Repeat,
		}
		if sched.Repeat == "" {
			sched.Repeat = RepeatToday
		}
		for _, s := range wire.Dates {
			d, err := ParseDate(s)
			if err != nil {
				return DeviceConfig{}, err
			}
			sched.Dates = append(sched.Dates, d)
		}
		cfg.Scheduled = sched

	case ModeAutomatic:

	default:
		return DeviceConfig{}, fmt.Errorf("%w: unknown mode %q", ErrMalformedConfig, wire.Mode)
	}

	if err := cfg.Validate(); err != nil {
		return DeviceConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the per-mode rules.
func (c DeviceConfig) Validate() error {
	switch c.Mode {
	case ModeManual:
		if c.Manual == nil || c.Scheduled != nil {
			return fmt.Errorf("%w: manual mode carries only a manual payload", ErrMalformedConfig)
		}
		if m := c.Manual.TurnOffAfter; m != nil && (*m < 0 || *m > MaxTurnOffAfter) {
			return fmt.Errorf("%w: turn_off_after must be between 0 and %d minutes", ErrMalformedConfig, MaxTurnOffAfter)
		}

	case ModeScheduled:
		s := c.Scheduled
		if s == nil || c.Manual != nil {
			return fmt.Errorf("%w: scheduled mode carries only a scheduled payload", ErrMalformedConfig)
		}
		if s.TurnOnAt.Hour < 0 || s.TurnOnAt.Hour > 23 || s.TurnOnAt.Minute < 0 || s.TurnOnAt.Minute > 59 {
			return fmt.Errorf("%w: turn_on_at %s out of range", ErrMalformedConfig, s.TurnOnAt)
		}
		// A zero window would put the on and off jobs in the same minute.
		if s.TurnOffAfter < 1 || s.TurnOffAfter > MaxTurnOffAfter {
			return fmt.Errorf("%w: turn_off_after must be between 1 and %d minutes", ErrMalformedConfig, MaxTurnOffAfter)
		}
		switch s.Repeat {
		case RepeatToday, RepeatEveryday:
			if len(s.Dates) > 0 {
				return fmt.Errorf("%w: dates are only allowed with repeat=custom", ErrMalformedConfig)
			}
		case RepeatCustom:
			if len(s.Dates) == 0 {
				return fmt.Errorf("%w: repeat=custom requires dates", ErrMalformedConfig)
			}
		default:
			return fmt.Errorf("%w: unknown repeat %q", ErrMalformedConfig, s.Repeat)
		}

	case ModeAutomatic:
		if c.Manual != nil || c.Scheduled != nil {
			return fmt.Errorf("%w: automatic mode carries no payload", ErrMalformedConfig)
		}

	default:
		return fmt.Errorf("%w: unknown mode %q", ErrMalformedConfig, c.Mode)
	}
	return nil
}

// MarshalJSON renders the stored shape.
func (c DeviceConfig) MarshalJSON() ([]byte, error) {
	wire := deviceConfigJSON{
		ID:        c.ID,
		Name:      c.Name,
		Mode:      c.Mode,
		Status:    c.Status,
		Intensity: c.Intensity,
	}
	switch {
	case c.Manual != nil:
		wire.TurnOffAfter = c.Manual.TurnOffAfter
	case c.Scheduled != nil:
		mins := c.Scheduled.TurnOffAfter
		wire.TurnOffAfter = &mins
		wire.TurnOnAt = c.Scheduled.TurnOnAt.String()
		wire.Repeat = c.Scheduled.Repeat
		for _, d := range c.Scheduled.Dates {
			wire.Dates = append(wire.Dates, d.String())
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes and validates via ParseDeviceConfig.
func (c *DeviceConfig) UnmarshalJSON(data []byte) error {
	parsed, err := ParseDeviceConfig(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
