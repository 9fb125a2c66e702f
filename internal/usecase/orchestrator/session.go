package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kailas-cloud/imagespace/internal/domain/query"
)

// State is a step of the search workflow.
type State int

// Workflow states. Stored-query searches go Idle -> Searching -> ResultsBound.
const (
	Idle State = iota
	ResolvingIdentity
	FoundRecord
	ComputingFeatures
	RecordReady
	Searching
	ResultsBound
	Failed
)

var stateNames = [...]string{
	Idle:              "idle",
	ResolvingIdentity: "resolving_identity",
	FoundRecord:       "found_record",
	ComputingFeatures: "computing_features",
	RecordReady:       "record_ready",
	Searching:         "searching",
	ResultsBound:      "results_bound",
	Failed:            "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is one search navigation. Its workflow runs on the event loop;
// observers may read it from any goroutine.
type Session struct {
	id     string
	kind   query.Kind
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	trail    []State
	err      error
	finished bool
	done     chan struct{}
}

func newSession(ctx context.Context, id string, kind query.Kind) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		id:     id,
		kind:   kind,
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
		trail:  []State{Idle},
		done:   make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Kind returns the search kind.
func (s *Session) Kind() query.Kind { return s.kind }

// State returns the current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trail returns every state the session has passed through, in order.
func (s *Session) Trail() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.trail)
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session reaches ResultsBound, fails or is superseded.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is done and returns its error.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return fmt.Errorf("wait for search: %w", ctx.Err())
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.state = to
	s.trail = append(s.trail, to)
}

// finish ends the session. A superseded session keeps its last state.
// Reports false if the session had already finished.
func (s *Session) finish(to State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	if to != s.state {
		s.state = to
		s.trail = append(s.trail, to)
	}
	s.err = err
	s.finished = true
	close(s.done)
	return true
}

// abandon ends the session in its current state with err.
func (s *Session) abandon(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.err = err
	s.finished = true
	close(s.done)
	return true
}
