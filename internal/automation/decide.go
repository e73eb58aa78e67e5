package automation

import (
	"time"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// DeviceState is what the decision functions see of one device.
type DeviceState struct {
	GreenhouseID string
	FieldIndex   int
	Device       greenhouse.Device

	// Status is the newest status reading, if any.
	Status    greenhouse.Reading
	HasStatus bool
}

// StateOf extracts the device state from a field.
func StateOf(greenhouseID string, field *greenhouse.Field, device greenhouse.Device) DeviceState {
	status, ok := field.Latest(device.StatusChannel())
	return DeviceState{
		GreenhouseID: greenhouseID,
		FieldIndex:   field.Index,
		Device:       device,
		Status:       status,
		HasStatus:    ok,
	}
}

func (s DeviceState) job(action Action, runAt time.Time, source greenhouse.Mode, grace time.Duration) Job {
	return Job{
		Key:          NewJobKey(s.GreenhouseID, s.FieldIndex, s.Device, action, runAt),
		RunAt:        runAt,
		Source:       source,
		MisfireGrace: grace,
	}
}

// DecideManual derives the auto-off job of a manually switched device.
//
// The job runs turn_off_after minutes after the newest status reading and is
// produced only once that moment has passed. No status or no delay produce
// nothing. A newest status of off also produces nothing, even past the delay:
// the off job is derived from an on status only.
func DecideManual(s DeviceState, cfg greenhouse.ManualConfig, now time.Time) Decision {
	if cfg.TurnOffAfter == nil || !s.HasStatus {
		return Decision{}
	}
	if ActionForStatus(s.Status.Value) == ActionOff {
		return Decision{}
	}

	due := s.Status.Timestamp.Add(time.Duration(*cfg.TurnOffAfter) * time.Minute).In(now.Location())
	if due.After(now) {
		return Decision{}
	}
	return Decision{Jobs: []Job{s.job(ActionOff, due, greenhouse.ModeManual, 0)}}
}

// DecideScheduled derives the on/off jobs of a scheduled device. now must be
// in the site's local time; turn_on_at is read in that zone.
//
// today and everyday produce the pair for now's calendar day, so a new day
// yields new keys. custom produces a pair for every listed date.
func DecideScheduled(s DeviceState, cfg greenhouse.ScheduledConfig, now time.Time, grace time.Duration) Decision {
	loc := now.Location()
	offAfter := time.Duration(cfg.TurnOffAfter) * time.Minute

	var days []greenhouse.Date
	switch cfg.Repeat {
	case greenhouse.RepeatToday, greenhouse.RepeatEveryday:
		days = []greenhouse.Date{greenhouse.DateOf(now)}
	case greenhouse.RepeatCustom:
		days = cfg.Dates
	default:
		return Decision{}
	}

	jobs := make([]Job, 0, 2*len(days))
	for _, day := range days {
		on := day.At(cfg.TurnOnAt, loc)
		jobs = append(jobs,
			s.job(ActionOn, on, greenhouse.ModeScheduled, grace),
			s.job(ActionOff, on.Add(offAfter), greenhouse.ModeScheduled, grace),
		)
	}
	return Decision{Jobs: jobs}
}

// DecideAutomatic compares the predicted state with the device's status and
// asks for an immediate actuation when they differ. A device that has never
// reported a status is switched to the predicted state.
func DecideAutomatic(s DeviceState, predicted Action) Decision {
	if s.HasStatus && ActionForStatus(s.Status.Value) == predicted {
		return Decision{}
	}
	return Decision{Actuation: &Actuation{
		GreenhouseID: s.GreenhouseID,
		FieldIndex:   s.FieldIndex,
		Device:       s.Device,
		Action:       predicted,
		Source:       greenhouse.ModeAutomatic,
	}}
}
