package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/runbook/internal/model"
	"github.com/seantiz/runbook/internal/pty"
	"github.com/seantiz/runbook/internal/store"
)

const (
	// DefaultTimeoutS is the execution timeout in seconds when none is specified.
	DefaultTimeoutS = 1800

	// storeTimeout bounds best-effort run-history writes.
	storeTimeout = 5 * time.Second
)

// Engine owns the identifier→execution registry. Identifiers are opaque
// strings supplied by the caller; re-submitting an identifier discards the
// prior run's state after terminating its process. Executions own disjoint
// resources, so the registry maps are the only shared mutable state.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	shell  string
	wg     sync.WaitGroup

	mu    sync.Mutex
	runs  map[string]*run
	order []string // identifiers in start order, most recent last
}

// NewEngine creates an execution engine. An empty shell selects the host
// default. Run history is recorded to the store best-effort; output is never
// persisted there.
func NewEngine(s store.Store, shell string, logger *slog.Logger) *Engine {
	if shell == "" {
		shell = pty.DefaultShell()
	}
	return &Engine{
		store:  s,
		logger: logger,
		shell:  shell,
		runs:   make(map[string]*run),
	}
}

// Start launches the script under the given identifier and returns its event
// stream. The stream is lazy, single-consumption, and finite: it ends after
// one terminal event — an exit event on normal completion, or an error event
// on rejection, allocation failure, or timeout (a timed-out run never gets
// an exit event).
//
// A non-nil input channel makes the run interactive: strings sent on it are
// written to the PTY verbatim, and closing it signals end of input.
//
// Start never returns an error; every failure mode is an error event in the
// stream, making the stream the single source of truth for the outcome.
func (e *Engine) Start(id, script string, timeoutS int, input <-chan string) *Stream {
	s := newStream()

	if script == "" {
		e.reject(s, "script is empty")
		return s
	}
	if timeoutS <= 0 {
		timeoutS = DefaultTimeoutS
	}

	// Supersede: at most one live process per identifier. The prior run is
	// unregistered under the lock but torn down outside it — cleanup can
	// take a grace period on a stubborn process and must not stall
	// registry reads — and before the new process spawns, so no two
	// processes ever interleave under one id.
	e.mu.Lock()
	prior := e.runs[id]
	if prior != nil {
		delete(e.runs, id)
		e.dropFromOrder(id)
	}
	e.mu.Unlock()
	if prior != nil {
		prior.cleanup(e.logger)
	}

	ptmx, cmd, err := pty.Start(e.shell, script)
	if err != nil {
		e.reject(s, fmt.Sprintf("failed to start script: %v", err))
		return s
	}

	r := newRun(id, ptmx, cmd)

	var raced *run
	e.mu.Lock()
	if prev, ok := e.runs[id]; ok {
		// A concurrent Start on the same id registered while we spawned.
		raced = prev
		e.dropFromOrder(id)
	}
	e.runs[id] = r
	e.order = append(e.order, id)
	e.mu.Unlock()
	if raced != nil {
		raced.cleanup(e.logger)
	}

	e.logger.Info("execution started",
		"execution_id", id,
		"run_id", r.runID,
		"timeout_s", timeoutS,
		"interactive", input != nil,
	)
	executionsRunning.Inc()
	e.recordStart(r, script, timeoutS)

	go r.reap()
	go r.read(ptmx)
	if input != nil {
		go r.forwardInput(ptmx, input)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.consume(r, s, time.Duration(timeoutS)*time.Second)
	}()

	return s
}

// consume is the engine loop for one execution: it pulls events off the
// queue and forwards them to the consumer. Caching happens on the reader
// side, so a slow consumer never freezes replay. The deadline is absolute
// wall clock and is observed even while a delivery is blocked on a stalled
// consumer; a run always dies on time.
func (e *Engine) consume(r *run, s *Stream, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-r.queue:
			if !ok {
				e.finish(r, s)
				return
			}
			if !s.deliver(ev, timer.C) {
				e.expire(r, s, timeout)
				return
			}
		case <-timer.C:
			e.expire(r, s, timeout)
			return
		}
	}
}

// finish handles the normal-completion path after the reader signals EOF:
// clean up, reap the exit code, emit exactly one exit event, and move the
// state to completed or failed.
func (e *Engine) finish(r *run, s *Stream) {
	r.cleanup(e.logger)

	code := r.exitStatus()
	state := model.StateCompleted
	if code != 0 {
		state = model.StateFailed
	}
	r.setTerminal(state, code)

	// State and cache are final before delivery; a stalled consumer can
	// only delay its own exit event, not the queryable outcome.
	ev := model.ExitEvent(code)
	r.cache.Add(ev)
	s.deliver(ev, nil)
	s.end()

	e.logger.Info("execution finished",
		"execution_id", r.id,
		"run_id", r.runID,
		"state", state,
		"exit_code", code,
	)
	executionsRunning.Dec()
	executionsTotal.WithLabelValues(state).Inc()
	executionDuration.Observe(time.Since(r.startedAt).Seconds())
	e.recordFinish(r, state, &code)
}

// expire handles the timeout path: terminate the child, emit exactly one
// error event, and end the stream with no exit event. The registry state is
// left as running — failed is reserved for non-zero exits and forcible
// termination other than timeout — so a timed-out run is recognizable by
// its error-terminated cache. The history row does record the timeout
// outcome, with no exit code.
func (e *Engine) expire(r *run, s *Stream, timeout time.Duration) {
	r.cleanup(e.logger)

	// The reader owns the cache. Wait for it to wind down (cleanup poisons
	// its reads) so the timeout error lands last in the cache; whatever is
	// still queued was cached at read time and is only dropped as delivery.
	for range r.queue {
	}

	ev := model.ErrorEvent(fmt.Sprintf("execution timed out after %s; process terminated", timeout))
	r.cache.Add(ev)
	// Give an attached consumer a moment to take the error, but never hang
	// on a stalled one; the cache holds it either way.
	s.deliver(ev, time.After(time.Second))
	s.end()

	e.logger.Warn("execution timed out",
		"execution_id", r.id,
		"run_id", r.runID,
		"timeout", timeout,
	)
	executionsRunning.Dec()
	executionsTotal.WithLabelValues(outcomeTimeout).Inc()
	executionDuration.Observe(time.Since(r.startedAt).Seconds())
	e.recordFinish(r, outcomeTimeout, nil)
}

// reject ends a stream with a single error event before any process is
// spawned. Nothing is registered: the identifier remains unknown.
func (e *Engine) reject(s *Stream, msg string) {
	e.logger.Warn("execution rejected", "reason", msg)
	executionsTotal.WithLabelValues(outcomeRejected).Inc()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		s.deliver(model.ErrorEvent(msg), nil)
		s.end()
	}()
}

// WriteInput writes data to the execution's PTY, byte for byte. It is
// fire-and-forget: unknown identifiers and finished runs are no-ops, and
// write failures are swallowed.
func (e *Engine) WriteInput(id, data string) {
	e.mu.Lock()
	r := e.runs[id]
	e.mu.Unlock()
	if r == nil {
		return
	}

	ptmx := r.master()
	if ptmx == nil {
		return
	}
	if _, err := ptmx.Write([]byte(data)); err != nil {
		e.logger.Debug("write input", "execution_id", id, "error", err)
	}
}

// Kill forcibly terminates an execution and releases its resources. No-op
// for unknown identifiers or already-finished runs. The killed process's
// EOF cascades through the engine loop, which records a failed state from
// the signal exit status.
func (e *Engine) Kill(id string) {
	e.mu.Lock()
	r := e.runs[id]
	e.mu.Unlock()
	if r == nil {
		return
	}
	r.cleanup(e.logger)
}

// GetStatus returns the execution's state, cached events, and exit code.
// The second return is false when the identifier was never started. The
// snapshot is consistent but may trail an event being appended concurrently.
func (e *Engine) GetStatus(id string) (*model.Status, bool) {
	e.mu.Lock()
	r := e.runs[id]
	e.mu.Unlock()
	if r == nil {
		return nil, false
	}

	state, code := r.snapshot()
	return &model.Status{
		ID:           id,
		State:        state,
		CachedEvents: r.cache.Snapshot(),
		ExitCode:     code,
	}, true
}

// ListAll summarizes every execution ever started, in start order with the
// most recently started last. Re-submitted identifiers move to the end.
func (e *Engine) ListAll() []model.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Summary, 0, len(e.order))
	for _, id := range e.order {
		r, ok := e.runs[id]
		if !ok {
			continue
		}
		state, _ := r.snapshot()
		out = append(out, model.Summary{
			ID:               id,
			State:            state,
			CachedEventCount: r.cache.Len(),
		})
	}
	return out
}

// Shutdown terminates every live execution and waits for the engine loops
// to settle.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	runs := make([]*run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.Unlock()

	for _, r := range runs {
		r.cleanup(e.logger)
	}
	e.wg.Wait()
}

// Wait blocks until all in-flight engine loops complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// dropFromOrder removes id from the insertion-order slice. Caller holds e.mu.
func (e *Engine) dropFromOrder(id string) {
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}

func (e *Engine) recordStart(r *run, script string, timeoutS int) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	rec := &model.Run{
		RunID:       r.runID,
		ExecutionID: r.id,
		State:       model.StateRunning,
		Script:      script,
		TimeoutS:    timeoutS,
		StartedAt:   r.startedAt,
	}
	if err := e.store.RecordStart(ctx, rec); err != nil {
		e.logger.Error("record run start", "execution_id", r.id, "error", err)
	}
}

// recordFinish closes out the run-history row. A nil code records an
// outcome without an exit status, as on timeout.
func (e *Engine) recordFinish(r *run, state string, code *int) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := e.store.FinishRun(ctx, r.runID, state, code, time.Now().UTC()); err != nil {
		e.logger.Error("record run finish", "execution_id", r.id, "error", err)
	}
}
