// Package runner schedules strategy engines: one tick goroutine per running
// strategy, plus a supervisor loop that reconciles the registry's enabled
// flags against what is actually running.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"straddle-runner/internal/broker"
	"straddle-runner/internal/engine"
	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/journal"
	"straddle-runner/internal/models"
	"straddle-runner/internal/notify"
	"straddle-runner/internal/registry"
)

// Config holds the runner's dependencies and scheduling parameters.
type Config struct {
	Broker   broker.Broker
	Registry registry.Registry
	Notify   notify.Notifier
	DataDir  string

	TickInterval      time.Duration
	SuperviseInterval time.Duration
	LotSize           int
	Product           models.ProductType
	DataTimeout       time.Duration
	OrderTimeout      time.Duration

	Logger zerolog.Logger
	Clock  func() time.Time
}

type strategyRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner owns the lifecycle of strategy engines. A strategy failure is
// contained to its own goroutine; the others keep ticking.
type Runner struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	running map[string]*strategyRun
	wg      sync.WaitGroup
}

// New creates a runner.
func New(cfg Config) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	if cfg.SuperviseInterval <= 0 {
		cfg.SuperviseInterval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Runner{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "runner").Logger(),
		running: make(map[string]*strategyRun),
	}
}

// Start launches the tick loop for a strategy. Starting a strategy that is
// already running is a no-op.
func (r *Runner) Start(ctx context.Context, sc models.StrategyConfig) error {
	r.mu.Lock()
	if _, ok := r.running[sc.ID]; ok {
		r.mu.Unlock()
		r.log.Debug().Str("strategy", sc.ID).Msg("Already running, start ignored")
		return nil
	}
	// Reserve the slot before the (slow) engine init so concurrent starts
	// cannot race in a second goroutine. The cancel func is live from the
	// reservation so Stop works even while init is still in flight.
	runCtx, cancel := context.WithCancel(context.Background())
	run := &strategyRun{cancel: cancel, done: make(chan struct{})}
	r.running[sc.ID] = run
	r.mu.Unlock()

	abort := func() {
		cancel()
		r.unregister(sc.ID)
		close(run.done)
	}

	jnl, err := journal.New(r.cfg.DataDir, sc.ID)
	if err != nil {
		abort()
		return apperrors.Wrap(err, "opening journal")
	}

	eng, err := engine.New(engine.Config{
		Strategy:     sc,
		Market:       r.cfg.Broker,
		Orders:       r.cfg.Broker,
		Events:       jnl,
		Status:       r.cfg.Registry,
		Notify:       r.cfg.Notify,
		Logger:       r.cfg.Logger,
		LotSize:      r.cfg.LotSize,
		Product:      r.cfg.Product,
		DataTimeout:  r.cfg.DataTimeout,
		OrderTimeout: r.cfg.OrderTimeout,
		Clock:        r.cfg.Clock,
	})
	if err != nil {
		jnl.Close()
		abort()
		return err
	}

	if err := eng.Init(runCtx); err != nil {
		jnl.Close()
		abort()
		return apperrors.Wrapf(err, "initializing strategy %s", sc.ID)
	}

	if runCtx.Err() != nil {
		// Stopped while initializing; never launch the loop.
		jnl.Close()
		abort()
		return nil
	}

	r.wg.Add(1)
	go r.loop(runCtx, eng, jnl, run)

	r.log.Info().Str("strategy", sc.ID).Msg("Strategy started")
	return nil
}

// loop drives one engine until its context is cancelled. A panic in the
// engine stops only this strategy.
func (r *Runner) loop(ctx context.Context, eng *engine.Engine, jnl *journal.Journal, run *strategyRun) {
	id := eng.StrategyID()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("strategy", id).Interface("panic", rec).Msg("Strategy panicked")
		}
		r.markStopped(id)
		jnl.Close()
		r.unregister(id)
		close(run.done)
		r.wg.Done()
	}()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Str("strategy", id).Msg("Strategy stopped")
			return
		case <-ticker.C:
			eng.Tick(ctx)
		}
	}
}

// markStopped flips the persisted heartbeat to not-running so dashboards do
// not show a dead strategy as live.
func (r *Runner) markStopped(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := r.cfg.Registry.GetStatus(ctx, id)
	if err != nil {
		status = &models.StrategyStatus{StrategyID: id}
	}
	status.Running = false
	status.UpdatedAt = r.cfg.Clock()
	if err := r.cfg.Registry.PutStatus(ctx, *status); err != nil {
		r.log.Error().Err(err).Str("strategy", id).Msg("Failed to mark strategy stopped")
	}
}

func (r *Runner) unregister(id string) {
	r.mu.Lock()
	delete(r.running, id)
	r.mu.Unlock()
}

// Stop cancels a strategy's tick loop and waits for it to drain. A strategy
// still initializing is cancelled mid-init and never launches its loop.
func (r *Runner) Stop(id string) {
	r.mu.Lock()
	run, ok := r.running[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	run.cancel()
	<-run.done
}

// StopAll stops every running strategy and waits for all loops to drain.
func (r *Runner) StopAll() {
	r.mu.Lock()
	runs := make([]*strategyRun, 0, len(r.running))
	for _, run := range r.running {
		runs = append(runs, run)
	}
	r.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	r.wg.Wait()
}

// IsRunning reports whether a strategy's loop is live.
func (r *Runner) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[id]
	return ok
}

// RunningIDs returns the ids of all live strategies.
func (r *Runner) RunningIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	return ids
}

// Supervise reconciles the registry against the running set until the
// context is cancelled: enabled strategies are started, disabled ones
// stopped. On exit every strategy is drained.
func (r *Runner) Supervise(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SuperviseInterval)
	defer ticker.Stop()

	r.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			r.StopAll()
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Runner) reconcile(ctx context.Context) {
	configs, err := r.cfg.Registry.ListConfigs(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to list strategies")
		return
	}

	known := make(map[string]bool, len(configs))
	for _, sc := range configs {
		known[sc.ID] = true
		switch {
		case sc.Enabled && !r.IsRunning(sc.ID):
			if err := r.Start(ctx, sc); err != nil {
				r.log.Error().Err(err).Str("strategy", sc.ID).Msg("Failed to start strategy")
			}
		case !sc.Enabled && r.IsRunning(sc.ID):
			r.Stop(sc.ID)
		}
	}

	// Strategies deleted from the registry while running.
	for _, id := range r.RunningIDs() {
		if !known[id] {
			r.Stop(id)
		}
	}
}
