package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voicecall-platform/internal/elevenlabs"
)

// Defaults match the dashboard's historic cadence: first check after 5s, then
// every 10s, giving up after 30 checks (about five minutes).
const (
	DefaultInitialDelay = 5 * time.Second
	DefaultInterval     = 10 * time.Second
	DefaultMaxAttempts  = 30
)

// StatusFetcher is the slice of the vendor client the loop needs.
type StatusFetcher interface {
	GetBatchCallStatus(ctx context.Context, batchID string) (elevenlabs.BatchResponse, error)
}

// Scheduler suspends the task between ticks. Wait returns early with the
// context's error when ctx is done.
type Scheduler interface {
	Wait(ctx context.Context, d time.Duration) error
}

type timerScheduler struct{}

func (timerScheduler) Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config tunes the loop. Zero values take the defaults.
type Config struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

func (c Config) withDefaults() Config {
	out := c
	if out.InitialDelay <= 0 {
		out.InitialDelay = DefaultInitialDelay
	}
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = DefaultMaxAttempts
	}
	return out
}

// UpdateFunc receives a copy of the state after every transition.
type UpdateFunc func(PollState)

// Poller re-queries batch status until a terminal status or the attempt budget.
type Poller struct {
	fetcher StatusFetcher
	cfg     Config
	sched   Scheduler
	now     func() time.Time
	log     *slog.Logger
}

type Option func(*Poller)

// WithScheduler replaces the real timer, mainly for tests.
func WithScheduler(s Scheduler) Option { return func(p *Poller) { p.sched = s } }

func WithClock(now func() time.Time) Option { return func(p *Poller) { p.now = now } }

func WithLogger(l *slog.Logger) Option { return func(p *Poller) { p.log = l } }

func New(fetcher StatusFetcher, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		sched:   timerScheduler{},
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run drives one task to a terminal state and returns it. Cancelling ctx
// stops the task in StateAbandoned with ReasonStopped.
func (p *Poller) Run(ctx context.Context, batchID string, onUpdate UpdateFunc) PollState {
	log := p.log.With("component", "poller", "batch_id", batchID)
	st := PollState{BatchID: batchID, State: StateInitiated, StartedAt: p.now().UTC()}
	emit := func() {
		if onUpdate != nil {
			onUpdate(st)
		}
	}
	finish := func(s State, reason string, err error) PollState {
		st.State = s
		st.Reason = reason
		if err != nil {
			st.err = err
			st.LastError = err.Error()
		}
		t := p.now().UTC()
		st.FinishedAt = &t
		log.Info("polling finished", "state", st.State, "attempts", st.AttemptsMade, "reason", reason)
		emit()
		return st
	}

	emit()
	if p.fetcher == nil {
		return finish(StateAbandoned, ReasonStatusError, errors.New("poller: status fetcher not configured"))
	}

	if err := p.sched.Wait(ctx, p.cfg.InitialDelay); err != nil {
		return finish(StateAbandoned, ReasonStopped, nil)
	}
	st.State = StatePolling
	emit()

	for {
		resp, err := p.fetcher.GetBatchCallStatus(ctx, batchID)
		st.AttemptsMade++
		if err != nil {
			if ctx.Err() != nil {
				return finish(StateAbandoned, ReasonStopped, nil)
			}
			log.Warn("status query failed, abandoning", "attempt", st.AttemptsMade, "err", err)
			return finish(StateAbandoned, ReasonStatusError, err)
		}
		last := resp
		st.LastResponse = &last

		if terminal, ok := stateForStatus(resp.Status); ok {
			return finish(terminal, "", nil)
		}
		if st.AttemptsMade >= p.cfg.MaxAttempts {
			return finish(StateAbandoned, ReasonBudgetExhausted, nil)
		}

		log.Debug("batch still running", "status", resp.Status, "attempt", st.AttemptsMade)
		emit()

		if err := p.sched.Wait(ctx, p.cfg.Interval); err != nil {
			return finish(StateAbandoned, ReasonStopped, nil)
		}
	}
}

// Handle controls a task started with Start.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state PollState
}

// Start runs the task in its own goroutine. The returned Handle reports the
// latest state and can stop the task.
func (p *Poller) Start(ctx context.Context, batchID string, onUpdate UpdateFunc) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
		state:  PollState{BatchID: batchID, State: StateInitiated, StartedAt: p.now().UTC()},
	}
	go func() {
		defer close(h.done)
		defer cancel()
		p.Run(ctx, batchID, func(s PollState) {
			h.mu.Lock()
			h.state = s
			h.mu.Unlock()
			if onUpdate != nil {
				onUpdate(s)
			}
		})
	}()
	return h
}

// Cancel stops the task. It is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed once the task has reached a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Snapshot returns the most recent state.
func (h *Handle) Snapshot() PollState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}
