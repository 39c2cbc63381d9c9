package workflow

import (
	"strings"
	"sync"
	"time"

	"github.com/digitorus/aissign/fault"
)

// State is a step of a signing request.
type State string

const (
	Received            State = "received"
	PlaceholderInserted State = "placeholder_inserted"
	Digested            State = "digested"
	Signed              State = "signed"
	LtvAugmented        State = "ltv_augmented"
	Finalized           State = "finalized"
	Failed              State = "failed"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	Received:            {PlaceholderInserted, Digested, Failed},
	PlaceholderInserted: {Digested, Failed},
	Digested:            {Signed, Failed},
	Signed:              {LtvAugmented, Finalized, Failed},
	LtvAugmented:        {Finalized, Failed},
	Finalized:           {},
	Failed:              {},
}

// CanTransition checks if a state transition is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Step is one recorded transition.
type Step struct {
	State State
	At    time.Time
}

// Trace records the states a request went through.
type Trace struct {
	ID string

	mu    sync.Mutex
	steps []Step
	err   error
}

func newTrace(id string) *Trace {
	return &Trace{ID: id, steps: []Step{{State: Received, At: time.Now()}}}
}

// Advance moves to state to.
func (t *Trace) Advance(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.steps[len(t.steps)-1].State
	if !CanTransition(from, to) {
		return fault.New(fault.Unknown, "workflow.Advance", "invalid transition from "+string(from)+" to "+string(to))
	}
	t.steps = append(t.steps, Step{State: to, At: time.Now()})
	return nil
}

// Fail moves to Failed unless the trace already ended, and keeps err.
func (t *Trace) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.steps[len(t.steps)-1].State.Terminal() {
		return
	}
	t.steps = append(t.steps, Step{State: Failed, At: time.Now()})
	t.err = err
}

// Current returns the latest state.
func (t *Trace) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.steps[len(t.steps)-1].State
}

// States returns the visited states in order.
func (t *Trace) States() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, len(t.steps))
	for i, s := range t.steps {
		out[i] = s.State
	}
	return out
}

// Err returns the failure recorded by Fail.
func (t *Trace) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Trace) String() string {
	var parts []string
	for _, s := range t.States() {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " -> ")
}
