// Package experiment orchestrates repeated stochastic simulation runs
// across a set of scenarios.
//
// An Orchestrator is built incrementally with Add and executed once with
// RunAll, which fans every scenario × repeat unit out to the Engine on a
// bounded worker pool. Per-run seeds are derived from the global seed, the
// scenario id and the repeat index, never drawn from a shared generator,
// so results are reproducible for any degree of parallelism.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/tracesim/internal/logging"
	"github.com/nvandessel/tracesim/internal/models"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator lifecycle state.
type State int

const (
	StateBuilding State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the experiment-wide settings.
type Config struct {
	Name        string
	Region      models.Region
	Horizon     models.TimeWindow // hours; runs simulate [0, Horizon.End)
	Repeats     int
	Parallelism int // 0 means runtime.NumCPU()
	Seed        int64
	FailFast    bool

	ExpectedDailyBaseExpoPer100k float64
	FullScale                    bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Horizon.Start != 0 {
		return models.NewConfigurationError("horizon", "must start at 0, got %s", c.Horizon)
	}
	if c.Horizon.End <= 0 {
		return models.NewConfigurationError("horizon", "simulation period must be positive, got %s", c.Horizon)
	}
	if c.Repeats < 1 {
		return models.NewConfigurationError("repeats", "must be at least 1, got %d", c.Repeats)
	}
	if c.Parallelism < 0 {
		return models.NewConfigurationError("parallelism", "must be non-negative, got %d", c.Parallelism)
	}
	return nil
}

// FailFastError is returned by RunAll when a run failed in fail-fast mode.
type FailFastError struct {
	Failure *models.RunFailure
}

func (e *FailFastError) Error() string {
	return "fail-fast: " + e.Failure.Error()
}

func (e *FailFastError) Unwrap() error { return e.Failure }

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResultSink streams every result to sink as it completes.
func WithResultSink(sink ResultSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithEventLogger records one JSONL event per finished run.
func WithEventLogger(el *logging.EventLogger) Option {
	return func(o *Orchestrator) { o.events = el }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithExperimentID overrides the generated experiment id.
func WithExperimentID(id string) Option {
	return func(o *Orchestrator) { o.id = id }
}

// Orchestrator owns the scenario list and drives the sweep.
// It is safe for concurrent use.
type Orchestrator struct {
	mu        sync.Mutex
	state     State
	scenarios []models.Scenario
	ids       map[string]bool

	id       string
	cfg      Config
	baseline models.Params
	engine   Engine
	sink     ResultSink
	events   *logging.EventLogger
	logger   *slog.Logger
}

// New creates an orchestrator in the Building state. baseline is the
// calibrated parameter set shared read-only by every run.
func New(cfg Config, baseline models.Params, engine Engine, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, models.NewConfigurationError("engine", "is required")
	}
	if cfg.Parallelism == 0 {
		cfg.Parallelism = runtime.NumCPU()
	}

	o := &Orchestrator{
		state:    StateBuilding,
		ids:      make(map[string]bool),
		id:       uuid.NewString(),
		cfg:      cfg,
		baseline: baseline,
		engine:   engine,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ID returns the experiment id results are recorded under.
func (o *Orchestrator) ID() string { return o.id }

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Scenarios returns the scenarios added so far, in order.
func (o *Orchestrator) Scenarios() []models.Scenario {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Scenario, len(o.scenarios))
	copy(out, o.scenarios)
	return out
}

// Add appends a scenario. It fails with a StateError once RunAll has
// started and with a ConfigurationError for a duplicate or invalid
// scenario, including one whose overlay rejects the baseline.
func (o *Orchestrator) Add(s models.Scenario) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateBuilding {
		return &models.StateError{Op: "add", State: o.state.String()}
	}
	if s.ID() == "" {
		return models.NewConfigurationError("scenario.id", "is required")
	}
	if o.ids[s.ID()] {
		return models.NewConfigurationError("scenario.id", "duplicate scenario %q", s.ID())
	}
	for _, m := range s.Measures() {
		if err := m.Validate(o.cfg.Horizon.End); err != nil {
			return fmt.Errorf("scenario %s: %w", s.ID(), err)
		}
	}
	// The overlay must accept this orchestrator's baseline, which may differ
	// from the one the scenario was built against.
	if _, err := s.Apply(o.baseline); err != nil {
		return fmt.Errorf("scenario %s: %w", s.ID(), err)
	}

	o.ids[s.ID()] = true
	o.scenarios = append(o.scenarios, s)
	return nil
}

// unit is one scenario × repeat combination.
type unit struct {
	scenario models.Scenario
	key      models.RunKey
	seed     int64
}

// RunAll executes every scenario × repeat unit and returns the outcome of
// each, keyed by (scenario id, repeat index).
//
// A failed run does not stop its siblings; failures are recorded in the
// results and reported by Results.Summary and Results.Err. In fail-fast
// mode the first failure stops submission, units not yet started are
// recorded as cancelled, and RunAll returns a *FailFastError alongside the
// partial results. Cancelling ctx likewise ends the run in StateFailed.
func (o *Orchestrator) RunAll(ctx context.Context) (*Results, error) {
	o.mu.Lock()
	if o.state != StateBuilding {
		state := o.state
		o.mu.Unlock()
		return nil, &models.StateError{Op: "run_all", State: state.String()}
	}
	if len(o.scenarios) == 0 {
		o.mu.Unlock()
		return nil, models.NewConfigurationError("scenarios", "no scenarios added")
	}
	o.state = StateRunning
	scenarios := make([]models.Scenario, len(o.scenarios))
	copy(scenarios, o.scenarios)
	o.mu.Unlock()

	units := o.plan(scenarios)
	order := make([]models.RunKey, len(units))
	for i, u := range units {
		order[i] = u.key
	}

	o.startExperiment(ctx, scenarios)
	o.logger.Info("experiment started",
		"experiment", o.id,
		"name", o.cfg.Name,
		"region", o.cfg.Region.String(),
		"scenarios", len(scenarios),
		"repeats", o.cfg.Repeats,
		"parallelism", o.cfg.Parallelism)

	start := time.Now()
	collected := newCollector(len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for _, u := range units {
		if gctx.Err() != nil {
			o.finish(ctx, collected, o.cancelled(u))
			continue
		}
		g.Go(func() error {
			// Units that were queued behind the pool limit when a fail-fast
			// failure happened are never started.
			if gctx.Err() != nil {
				o.finish(ctx, collected, o.cancelled(u))
				return nil
			}
			res := o.execute(ctx, u)
			o.finish(ctx, collected, res)
			if res.Failure != nil && o.cfg.FailFast {
				return res.Failure
			}
			return nil
		})
	}
	groupErr := g.Wait()

	results := collected.results(o.id, order)
	summary := results.Summary()

	var runErr error
	state := StateCompleted
	switch {
	case ctx.Err() != nil:
		state = StateFailed
		runErr = fmt.Errorf("experiment %s interrupted: %w", o.id, ctx.Err())
	case groupErr != nil:
		state = StateFailed
		var failure *models.RunFailure
		if errors.As(groupErr, &failure) {
			runErr = &FailFastError{Failure: failure}
		} else {
			runErr = groupErr
		}
	}

	o.mu.Lock()
	o.state = state
	o.mu.Unlock()

	o.finishExperiment(ctx, state, summary)
	o.logger.Info("experiment finished",
		"experiment", o.id,
		"state", state.String(),
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return results, runErr
}

// plan lists the units in submission order: scenario order, then repeat.
func (o *Orchestrator) plan(scenarios []models.Scenario) []unit {
	units := make([]unit, 0, len(scenarios)*o.cfg.Repeats)
	for _, s := range scenarios {
		for r := 0; r < o.cfg.Repeats; r++ {
			units = append(units, unit{
				scenario: s,
				key:      models.RunKey{ScenarioID: s.ID(), Repeat: r},
				seed:     DeriveSeed(o.cfg.Seed, s.ID(), r),
			})
		}
	}
	return units
}

// execute runs one unit. Engine panics are recovered into run failures.
func (o *Orchestrator) execute(ctx context.Context, u unit) (res models.RunResult) {
	res = models.RunResult{Key: u.key, Seed: u.seed}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("engine panic", "run", u.key.String(), "recover", r, "stack", string(debug.Stack()))
			res.Trajectory = nil
			res.Failure = models.NewRunFailure(u.key, u.seed, fmt.Errorf("engine panic: %v", r))
		}
		res.Duration = time.Since(start)
	}()

	// Each run gets its own copy of the effective parameters.
	params, err := u.scenario.Apply(o.baseline)
	if err != nil {
		res.Failure = models.NewRunFailure(u.key, u.seed, err)
		return res
	}
	res.ParamsHash = params.Hash()

	req := Request{
		ExperimentID:                 o.id,
		Region:                       o.cfg.Region,
		Key:                          u.key,
		Seed:                         u.seed,
		Horizon:                      o.cfg.Horizon.End,
		Measures:                     u.scenario.Measures(),
		Params:                       params,
		ExpectedDailyBaseExpoPer100k: o.cfg.ExpectedDailyBaseExpoPer100k,
		FullScale:                    o.cfg.FullScale,
	}
	o.logger.Log(ctx, logging.LevelTrace, "dispatching run",
		"run", u.key.String(), "seed", u.seed, "params", params.Hash(), "measures", len(req.Measures))

	traj, err := o.engine.Simulate(ctx, req)
	switch {
	case err != nil:
		res.Failure = models.NewRunFailure(u.key, u.seed, err)
	case traj == nil:
		res.Failure = models.NewRunFailure(u.key, u.seed, errors.New("engine returned no trajectory"))
	default:
		res.Trajectory = traj
	}
	return res
}

func (o *Orchestrator) cancelled(u unit) models.RunResult {
	f := models.NewRunFailure(u.key, u.seed, context.Canceled)
	f.Cancelled = true
	return models.RunResult{Key: u.key, Seed: u.seed, Failure: f}
}

// finish records a result in the collector, the sink and the event log.
// Sink errors are logged; they never fail the run.
func (o *Orchestrator) finish(ctx context.Context, c *collector, res models.RunResult) {
	c.put(res)

	if o.sink != nil {
		if err := o.sink.RecordRun(context.WithoutCancel(ctx), o.id, res); err != nil {
			o.logger.Warn("failed to record run", "run", res.Key.String(), "error", err)
		}
	}

	ev := logging.RunEvent{
		Event:      "run_finished",
		Experiment: o.id,
		ScenarioID: res.Key.ScenarioID,
		Repeat:     res.Key.Repeat,
		Seed:       res.Seed,
		Status:     res.Status(),
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Failure != nil {
		ev.Error = res.Failure.Message
	}
	o.events.Record(ev)

	switch res.Status() {
	case "failed":
		o.logger.Warn("run failed", "run", res.Key.String(), "seed", res.Seed, "error", res.Failure.Message)
	default:
		o.logger.Debug("run finished", "run", res.Key.String(), "seed", res.Seed, "status", res.Status(), "duration", res.Duration)
	}
}

func (o *Orchestrator) startExperiment(ctx context.Context, scenarios []models.Scenario) {
	es, ok := o.sink.(ExperimentSink)
	if !ok {
		return
	}
	ids := make([]string, len(scenarios))
	for i, s := range scenarios {
		ids[i] = s.ID()
	}
	info := Info{
		ID:          o.id,
		Name:        o.cfg.Name,
		Region:      o.cfg.Region,
		Seed:        o.cfg.Seed,
		Repeats:     o.cfg.Repeats,
		Parallelism: o.cfg.Parallelism,
		Horizon:     o.cfg.Horizon.End,
		ScenarioIDs: ids,
	}
	if err := es.StartExperiment(context.WithoutCancel(ctx), info); err != nil {
		o.logger.Warn("failed to record experiment start", "experiment", o.id, "error", err)
	}
}

func (o *Orchestrator) finishExperiment(ctx context.Context, state State, summary Summary) {
	es, ok := o.sink.(ExperimentSink)
	if !ok {
		return
	}
	if err := es.FinishExperiment(context.WithoutCancel(ctx), o.id, state, summary); err != nil {
		o.logger.Warn("failed to record experiment finish", "experiment", o.id, "error", err)
	}
}
