package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// Action is the target state of a device.
type Action string

// Device actions.
const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// Command values sent to the dispatcher.
const (
	ValueOn  = 100
	ValueOff = 0
)

// Value returns the dispatcher value for the action.
func (a Action) Value() int {
	if a == ActionOn {
		return ValueOn
	}
	return ValueOff
}

// ParseAction maps a predictor or API answer onto an Action.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionOn:
		return ActionOn, nil
	case ActionOff:
		return ActionOff, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPrediction, s)
	}
}

// ActionForStatus maps a numeric status reading to on/off: 0 is off,
// anything else is on.
func ActionForStatus(value float64) Action {
	if value == 0 {
		return ActionOff
	}
	return ActionOn
}

// keyTimeLayout renders the run minute inside a job key.
const keyTimeLayout = "2006-01-02 15:04"

// JobKey identifies a scheduled actuation. Two decisions producing equal
// keys collapse to one execution.
type JobKey struct {
	GreenhouseID string
	FieldIndex   int
	Device       greenhouse.Device
	Action       Action

	// RunAt is truncated to the minute.
	RunAt time.Time
}

// NewJobKey builds a key with runAt truncated to the minute.
func NewJobKey(greenhouseID string, fieldIndex int, device greenhouse.Device, action Action, runAt time.Time) JobKey {
	return JobKey{
		GreenhouseID: greenhouseID,
		FieldIndex:   fieldIndex,
		Device:       device,
		Action:       action,
		RunAt:        runAt.Truncate(time.Minute),
	}
}

// String renders "<gh>_<field>_<device>_<YYYY-MM-DD HH:MM>_<action>".
func (k JobKey) String() string {
	return fmt.Sprintf("%s_%d_%s_%s_%s",
		k.GreenhouseID, k.FieldIndex, k.Device, k.RunAt.Format(keyTimeLayout), k.Action)
}

// Job is a one-shot actuation at RunAt.
type Job struct {
	Key   JobKey
	RunAt time.Time

	// Source is the mode that derived the job.
	Source greenhouse.Mode

	// MisfireGrace is how late the job may still fire. Zero means it always
	// fires, however late.
	MisfireGrace time.Duration
}

// Actuation is an immediate device command.
type Actuation struct {
	GreenhouseID string
	FieldIndex   int
	Device       greenhouse.Device
	Action       Action
	Source       greenhouse.Mode
}

// Decision is the outcome of evaluating one device.
// At most one of Jobs and Actuation is set; both empty means no action.
type Decision struct {
	Jobs      []Job
	Actuation *Actuation
}

// Empty reports whether the decision requires nothing.
func (d Decision) Empty() bool {
	return len(d.Jobs) == 0 && d.Actuation == nil
}

// Store is the field store read used by the tick.
type Store interface {
	RecentlyUpdated(ctx context.Context, since time.Time) ([]greenhouse.Greenhouse, error)
}

// Dispatcher sends a device command to the physical layer.
type Dispatcher interface {
	SendControl(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, value int) error
}

// Notifier delivers a human-readable notification.
type Notifier interface {
	Notify(ctx context.Context, title, content string) error
}

// Predictor maps a feature vector to "on" or "off".
type Predictor interface {
	Predict(ctx context.Context, device greenhouse.Device, features map[string]float64) (string, error)
}

// ActuationRecorder keeps a history of sent commands. The InfluxDB client
// satisfies it.
type ActuationRecorder interface {
	WriteActuation(greenhouseID string, fieldIndex int, device string, value int, source string, ts time.Time)
}

// WSHub broadcasts events to WebSocket clients.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notification text.
const notificationTitle = "Device Control"

func notificationContent(action Action, device greenhouse.Device, greenhouseID string) string {
	return fmt.Sprintf("Turned %s %s in greenhouse %s", action, device, greenhouseID)
}
