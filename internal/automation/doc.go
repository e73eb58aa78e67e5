// Package automation is the device automation reconciliation engine.
//
// On every tick the Reconciler reads the greenhouses touched since the last
// tick, evaluates each configured device of each field and either schedules
// a one-shot job, actuates the device immediately, or does nothing.
//
//	┌──────────────┐   RecentlyUpdated   ┌─────────────┐
//	│  Reconciler  │────────────────────▶│ field store │
//	│  (tick.go)   │                     └─────────────┘
//	│      │ per device (errgroup, recover)
//	│      ▼
//	│  Decide*  ──── jobs ────▶ Scheduler ── at run time ──┐
//	│  (decide.go)                                          ▼
//	│      └────── immediate actuation ──────────▶ Dispatcher + Notifier
//	└──────────────┘
//
// # Modes
//
//   - manual: an "off" job at last status change + turn_off_after, once due
//   - scheduled: "on" at turn_on_at and "off" turn_off_after minutes later,
//     for today, every day, or each listed date
//   - automatic: the Predictor decides from the latest readings and the
//     device is switched at once when the prediction differs from its status
//
// # Idempotence
//
// Decisions are re-derived from field state on every tick. Each job is
// identified by a JobKey (greenhouse, field, device, action, minute) and the
// Scheduler inserts a key at most once. Keys of jobs that already ran stay
// remembered for a retention window so a decision derived again after
// execution does not fire a second time.
//
// # Failure isolation
//
// A malformed configuration, a missing feature or a failed external call
// skips only that device for this tick. A store failure aborts the tick;
// the next tick retries.
package automation
