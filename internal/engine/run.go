package engine

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/seantiz/runbook/internal/model"
)

const (
	// readBufSize matches one PTY read. Chunks are forwarded exactly as
	// read, with no line buffering, so prompts without a trailing newline
	// show up immediately.
	readBufSize = 4096

	// queueCapacity bounds the reader→engine queue. The engine loop drains
	// it continuously even after the consumer detaches, so the bound only
	// matters as backpressure against a slow attached consumer.
	queueCapacity = 1024

	// reapGrace is how long cleanup waits for the child to die after a
	// termination signal before escalating.
	reapGrace = time.Second
)

// run is one execution: its child process, PTY master, queue, cache, and
// lifecycle state. The engine keeps finished runs registered so their state
// and cached output stay queryable; only the live handles are released.
type run struct {
	id        string
	runID     string // run-history row key
	cache     *eventCache
	startedAt time.Time

	queue  chan model.Event // reader → engine loop; closed by the reader at EOF
	stop   chan struct{}    // closed by cleanup; releases reader and writer
	waitCh chan struct{}    // closed once the reaper has collected the exit status

	mu       sync.Mutex
	state    string
	exitCode *int
	cmd      *exec.Cmd
	ptmx     *os.File
	waitCode int
	cleaned  bool
}

func newRun(id string, ptmx *os.File, cmd *exec.Cmd) *run {
	return &run{
		id:        id,
		runID:     model.NewID(),
		cache:     newEventCache(cacheCapacity),
		startedAt: time.Now().UTC(),
		queue:     make(chan model.Event, queueCapacity),
		stop:      make(chan struct{}),
		waitCh:    make(chan struct{}),
		state:     model.StateRunning,
		cmd:       cmd,
		ptmx:      ptmx,
	}
}

// reap collects the child's exit status. cmd.Wait must be called exactly
// once; every other path learns the code through waitCh.
func (r *run) reap() {
	err := r.cmd.Wait()

	code := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			// ExitCode is -1 when the process died from a signal.
			code = ee.ExitCode()
		} else {
			code = -1
		}
	}

	r.mu.Lock()
	r.waitCode = code
	r.mu.Unlock()
	close(r.waitCh)
}

// exitStatus returns the reaped exit code, waiting briefly for the reaper.
// Defaults to 0 when the status cannot be determined in time.
func (r *run) exitStatus() int {
	select {
	case <-r.waitCh:
	case <-time.After(reapGrace):
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitCode
}

// exited reports whether the child has already been reaped.
func (r *run) exited() bool {
	select {
	case <-r.waitCh:
		return true
	default:
		return false
	}
}

// read is the output reader task. It pulls raw bytes off the PTY master,
// decodes them with replacement, and pushes one stdout event per chunk onto
// the queue. Each event goes into the cache here, at read time, so cache
// replay and the timeout watchdog never depend on how fast a stream
// consumer drains. Any read error counts as end-of-stream: once the child
// and everything holding the slave side exit, reads fail with EIO. Closing
// the queue is the end-of-stream sentinel the engine loop consumes.
func (r *run) read(ptmx *os.File) {
	defer close(r.queue)

	var dec chunkDecoder
	buf := make([]byte, readBufSize)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			if content := dec.decode(buf[:n]); content != "" {
				ev := model.StdoutEvent(content)
				r.cache.Add(ev)
				select {
				case r.queue <- ev:
				case <-r.stop:
					return
				}
			}
		}
		if err != nil {
			if rest := dec.flush(); rest != "" {
				ev := model.StdoutEvent(rest)
				r.cache.Add(ev)
				select {
				case r.queue <- ev:
				case <-r.stop:
				}
			}
			return
		}
	}
}

// forwardInput is the input writer task, present only for interactive runs.
// It drains caller-supplied strings to the PTY master verbatim; the caller
// decides whether input carries a newline. A closed channel is the caller's
// end-of-input sentinel. Write failures mean the process is gone; the task
// exits quietly either way.
func (r *run) forwardInput(ptmx *os.File, input <-chan string) {
	for {
		select {
		case data, ok := <-input:
			if !ok {
				return
			}
			if _, err := ptmx.Write([]byte(data)); err != nil {
				return
			}
		case <-r.stop:
			return
		}
	}
}

// master returns the PTY master while the run is live, nil afterwards.
func (r *run) master() *os.File {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ptmx
}

// cleanup releases the run's resources: stops the reader and writer tasks,
// closes the PTY master, and terminates the child if still alive, waiting
// briefly and escalating to SIGKILL. Idempotent and safe on every
// termination path — timeout, normal exit, kill, or supersession.
func (r *run) cleanup(logger *slog.Logger) {
	r.mu.Lock()
	if r.cleaned {
		r.mu.Unlock()
		return
	}
	r.cleaned = true
	ptmx := r.ptmx
	r.ptmx = nil
	cmd := r.cmd
	r.mu.Unlock()

	close(r.stop)

	if ptmx != nil {
		if err := ptmx.Close(); err != nil {
			logger.Debug("close pty master", "execution_id", r.id, "error", err)
		}
	}

	if cmd == nil || cmd.Process == nil {
		return
	}

	if !r.exited() {
		// The process may win the race and exit on its own; ESRCH and
		// "already finished" are expected here.
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil &&
			!errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
			logger.Debug("terminate process", "execution_id", r.id, "error", err)
		}
	}

	select {
	case <-r.waitCh:
	case <-time.After(reapGrace):
		if err := cmd.Process.Kill(); err != nil &&
			!errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
			logger.Debug("kill process", "execution_id", r.id, "error", err)
		}
		select {
		case <-r.waitCh:
		case <-time.After(reapGrace):
			logger.Warn("process did not exit after kill", "execution_id", r.id)
		}
	}
}

// setTerminal records the terminal state and exit code. The transition is
// checked so a terminal state is never overwritten.
func (r *run) setTerminal(state string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !model.ValidTransition(r.state, state) {
		return
	}
	r.state = state
	c := code
	r.exitCode = &c
}

// snapshot returns the current state and exit code.
func (r *run) snapshot() (string, *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.exitCode
}
