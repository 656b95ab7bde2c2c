package engine

import (
	"sync"
	"time"

	"github.com/seantiz/runbook/internal/model"
)

// streamBuffer is the channel buffer for a stream consumer. It only provides
// slack; a consumer that stops draining without calling Close stalls its own
// delivery, but never the cache or the timeout watchdog.
const streamBuffer = 64

// Stream is the single-consumption event sequence returned by Start. It is
// finite: the channel closes after the terminal exit or error event. A
// stream is not restartable — reattaching consumers replay history from the
// execution's cache instead.
//
// Close detaches the consumer without killing the child process; the engine
// keeps draining output into the cache until the process exits. A consumer
// must either drain Events to the end or call Close.
type Stream struct {
	events chan model.Event
	closed chan struct{}
	once   sync.Once
}

func newStream() *Stream {
	return &Stream{
		events: make(chan model.Event, streamBuffer),
		closed: make(chan struct{}),
	}
}

// Events returns the channel of output events. It closes after the terminal
// event is delivered.
func (s *Stream) Events() <-chan model.Event {
	return s.events
}

// Close detaches the consumer. Safe to call multiple times. The execution
// continues in the background and stays queryable via GetStatus.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.closed) })
}

// deliver hands an event to the consumer, or drops it if the consumer has
// detached. Blocks while an attached consumer is slow, but gives up and
// returns false if abort fires first; a nil abort never fires.
func (s *Stream) deliver(ev model.Event, abort <-chan time.Time) bool {
	select {
	case s.events <- ev:
	case <-s.closed:
	case <-abort:
		return false
	}
	return true
}

// end closes the event channel. Called exactly once, after the terminal event.
func (s *Stream) end() {
	close(s.events)
}
