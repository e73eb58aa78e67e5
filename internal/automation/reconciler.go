package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// Defaults for Options.
const (
	DefaultInterval     = time.Minute
	DefaultCallTimeout  = 10 * time.Second
	DefaultWorkers      = 4
	DefaultMisfireGrace = 2 * time.Minute
)

// WebSocket event channels.
const (
	EventJobScheduled   = "job.scheduled"
	EventJobExecuted    = "job.executed"
	EventDeviceActuated = "device.actuated"
)

// Options tunes the reconciler. Zero values select defaults.
type Options struct {
	Interval     time.Duration
	CallTimeout  time.Duration
	Workers      int
	MisfireGrace time.Duration
	Retention    time.Duration

	// Location is the site zone used for turn_on_at and minute_of_day.
	Location *time.Location

	// Now replaces the clock, for tests.
	Now func() time.Time
}

// Deps are the collaborators of the reconciler. Notifier, Recorder and Hub
// may be nil.
type Deps struct {
	Store      Store
	Dispatcher Dispatcher
	Predictor  Predictor
	Notifier   Notifier
	Recorder   ActuationRecorder
	Hub        WSHub
	Logger     Logger
}

// Event is the payload broadcast for job and actuation events.
type Event struct {
	Type         string            `json:"type"`
	Job          string            `json:"job,omitempty"`
	GreenhouseID string            `json:"greenhouse_id"`
	FieldIndex   int               `json:"field_index"`
	Device       greenhouse.Device `json:"device"`
	Action       Action            `json:"action"`
	Source       greenhouse.Mode   `json:"source,omitempty"`
	RunAt        *time.Time        `json:"run_at,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// TickResult summarises one tick.
type TickResult struct {
	Since         time.Time     `json:"since"`
	Greenhouses   int           `json:"greenhouses"`
	Devices       int           `json:"devices"`
	JobsScheduled int           `json:"jobs_scheduled"`
	Actuations    int           `json:"actuations"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
}

type tickCounters struct {
	devices, jobs, actuations, skipped atomic.Int64
}

// Reconciler runs the periodic reconciliation tick.
type Reconciler struct {
	deps      Deps
	opts      Options
	logger    Logger
	scheduler *Scheduler

	tickMu   sync.Mutex
	lastTick time.Time
}

// NewReconciler creates a reconciler and its scheduler.
func NewReconciler(deps Deps, opts Options) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MisfireGrace <= 0 {
		opts.MisfireGrace = DefaultMisfireGrace
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	r := &Reconciler{deps: deps, opts: opts, logger: logger}
	r.scheduler = NewScheduler(r.executeJob, SchedulerOptions{
		Retention: opts.Retention,
		Now:       opts.Now,
		Logger:    logger,
	})
	return r
}

// Scheduler exposes the job scheduler for inspection.
func (r *Reconciler) Scheduler() *Scheduler {
	return r.scheduler
}

// Run ticks immediately and then every Interval until ctx is cancelled.
// Ticks run one after another on this goroutine. On return the scheduler
// is stopped.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.scheduler.Stop()

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runTick(ctx)
		}
	}
}

func (r *Reconciler) runTick(ctx context.Context) {
	res, err := r.Tick(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		r.logger.Warn("skipping tick, previous tick still running")
	case err != nil:
		r.logger.Error("tick aborted", "error", err)
	default:
		r.logger.Info("tick completed",
			"greenhouses", res.Greenhouses,
			"devices", res.Devices,
			"jobs_scheduled", res.JobsScheduled,
			"actuations", res.Actuations,
			"skipped", res.Skipped,
			"duration", res.Duration.String(),
		)
	}
}

type workItem struct {
	greenhouseID string
	field        *greenhouse.Field
	device       greenhouse.Device
}

// Tick evaluates every configured device of every recently updated
// greenhouse once. It returns ErrTickInProgress if another tick holds the
// lock, and aborts with the store error if the read fails.
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	if !r.tickMu.TryLock() {
		return TickResult{}, ErrTickInProgress
	}
	defer r.tickMu.Unlock()

	started := r.opts.Now()
	since := started.Add(-r.opts.Interval)
	if !r.lastTick.IsZero() && r.lastTick.Before(since) {
		since = r.lastTick
	}

	greenhouses, err := r.deps.Store.RecentlyUpdated(ctx, since)
	if err != nil {
		return TickResult{}, fmt.Errorf("reading recently updated greenhouses: %w", err)
	}
	r.scheduler.Prune()

	var items []workItem
	for gi := range greenhouses {
		g := &greenhouses[gi]
		for fi := range g.Fields {
			f := &g.Fields[fi]
			if !f.Present {
				continue
			}
			for _, d := range greenhouse.Devices() {
				items = append(items, workItem{greenhouseID: g.ID, field: f, device: d})
			}
		}
	}

	var counters tickCounters
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for _, item := range items {
		item := item
		g.Go(func() error {
			r.evaluate(ctx, item, &counters)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // evaluate never returns an error

	r.lastTick = started
	return TickResult{
		Since:         since,
		Greenhouses:   len(greenhouses),
		Devices:       int(counters.devices.Load()),
		JobsScheduled: int(counters.jobs.Load()),
		Actuations:    int(counters.actuations.Load()),
		Skipped:       int(counters.skipped.Load()),
		Duration:      r.opts.Now().Sub(started),
	}, nil
}

// evaluate runs one device inside its own failure boundary.
func (r *Reconciler) evaluate(ctx context.Context, item workItem, counters *tickCounters) {
	attrs := []any{
		"greenhouse_id", item.greenhouseID,
		"field_index", item.field.Index,
		"device", item.device,
	}
	defer func() {
		if rec := recover(); rec != nil {
			counters.skipped.Add(1)
			r.logger.Error("device evaluation panicked", append(attrs, "panic", rec)...)
		}
	}()

	cfg, ok, err := item.field.DeviceConfig(item.device)
	if !ok {
		return
	}
	counters.devices.Add(1)
	if err != nil {
		counters.skipped.Add(1)
		r.logger.Warn("skipping device with malformed config", append(attrs, "error", err)...)
		return
	}

	decision, err := r.decide(ctx, item, cfg)
	if err != nil {
		counters.skipped.Add(1)
		r.logger.Warn("skipping device this tick", append(attrs, "mode", cfg.Mode, "error", err)...)
		return
	}

	for _, job := range decision.Jobs {
		if r.scheduler.AddIfAbsent(job) {
			counters.jobs.Add(1)
			r.logger.Info("job scheduled", "job", job.Key.String(), "run_at", job.RunAt)
			r.broadcast(EventJobScheduled, job.Key, job.Source, &job.RunAt)
		}
	}

	if decision.Actuation != nil {
		if err := r.actuate(ctx, *decision.Actuation); err != nil {
			counters.skipped.Add(1)
			r.logger.Warn("actuation failed, will re-evaluate next tick", append(attrs, "error", err)...)
			return
		}
		counters.actuations.Add(1)
	}
}

func (r *Reconciler) decide(ctx context.Context, item workItem, cfg greenhouse.DeviceConfig) (Decision, error) {
	state := StateOf(item.greenhouseID, item.field, item.device)
	now := r.opts.Now().In(r.opts.Location)

	switch cfg.Mode {
	case greenhouse.ModeManual:
		return DecideManual(state, *cfg.Manual, now), nil

	case greenhouse.ModeScheduled:
		return DecideScheduled(state, *cfg.Scheduled, now, r.opts.MisfireGrace), nil

	case greenhouse.ModeAutomatic:
		features, err := BuildFeatures(item.device, item.field, now)
		if err != nil {
			return Decision{}, err
		}
		predicted, err := r.predict(ctx, item.device, features)
		if err != nil {
			return Decision{}, err
		}
		return DecideAutomatic(state, predicted), nil

	default:
		return Decision{}, fmt.Errorf("%w: unknown mode %q", greenhouse.ErrMalformedConfig, cfg.Mode)
	}
}

func (r *Reconciler) predict(ctx context.Context, device greenhouse.Device, features map[string]float64) (Action, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	answer, err := r.deps.Predictor.Predict(callCtx, device, features)
	if err != nil {
		return "", err
	}
	action, err := ParseAction(answer)
	if err != nil {
		return "", err
	}
	r.logger.Debug("prediction", "device", device, "features", features, "state", action)
	return action, nil
}

// actuate sends an immediate command and, on success, the notification.
func (r *Reconciler) actuate(ctx context.Context, a Actuation) error {
	if err := r.send(ctx, a.GreenhouseID, a.FieldIndex, a.Device, a.Action, a.Source); err != nil {
		return err
	}
	r.broadcast(EventDeviceActuated, NewJobKey(a.GreenhouseID, a.FieldIndex, a.Device, a.Action, r.opts.Now()), a.Source, nil)
	return nil
}

// executeJob is the scheduler callback for due jobs. A failed send releases
// the key, so the next tick re-derives and retries the job.
func (r *Reconciler) executeJob(job Job) error {
	k := job.Key
	if err := r.send(context.Background(), k.GreenhouseID, k.FieldIndex, k.Device, k.Action, job.Source); err != nil {
		r.logger.Error("scheduled job failed", "job", k.String(), "error", err)
		return err
	}
	r.logger.Info("scheduled job executed", "job", k.String())
	r.broadcast(EventJobExecuted, k, job.Source, &job.RunAt)
	return nil
}

// send dispatches one command and then the notification, each bounded by
// CallTimeout. A notification failure is logged and does not fail the send.
func (r *Reconciler) send(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, action Action, source greenhouse.Mode) error {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	err := r.deps.Dispatcher.SendControl(callCtx, greenhouseID, fieldIndex, device, action.Value())
	cancel()
	if err != nil {
		return err
	}
	r.logger.Info("control sent",
		"greenhouse_id", greenhouseID,
		"field_index", fieldIndex,
		"device", device,
		"value", action.Value(),
		"source", source,
	)

	if r.deps.Recorder != nil {
		r.deps.Recorder.WriteActuation(greenhouseID, fieldIndex, string(device), action.Value(), string(source), r.opts.Now())
	}

	if r.deps.Notifier != nil {
		notifyCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		defer cancel()
		if err := r.deps.Notifier.Notify(notifyCtx, notificationTitle, notificationContent(action, device, greenhouseID)); err != nil {
			r.logger.Warn("notification failed", "greenhouse_id", greenhouseID, "device", device, "error", err)
		}
	}
	return nil
}

// Actuate switches a device at once, bypassing the scheduler. It is the
// entry point for operator commands.
func (r *Reconciler) Actuate(ctx context.Context, greenhouseID string, fieldIndex int, device greenhouse.Device, action Action) error {
	return r.actuate(ctx, Actuation{
		GreenhouseID: greenhouseID,
		FieldIndex:   fieldIndex,
		Device:       device,
		Action:       action,
		Source:       greenhouse.ModeManual,
	})
}

func (r *Reconciler) broadcast(channel string, key JobKey, source greenhouse.Mode, runAt *time.Time) {
	if r.deps.Hub == nil {
		return
	}
	ev := Event{
		Type:         channel,
		GreenhouseID: key.GreenhouseID,
		FieldIndex:   key.FieldIndex,
		Device:       key.Device,
		Action:       key.Action,
		Source:       source,
		RunAt:        runAt,
		Timestamp:    r.opts.Now().UTC(),
	}
	if runAt != nil {
		ev.Job = key.String()
	}
	r.deps.Hub.Broadcast(channel, ev)
}
