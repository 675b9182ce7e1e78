package loader

import "time"

// Phase is the state of a Plan.
type Phase int

// Plan phases. A plan moves Pending -> Attempting and then either to
// Succeeded, to the next Attempting, or to Exhausted.
const (
	PhasePending Phase = iota
	PhaseAttempting
	PhaseSucceeded
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseAttempting:
		return "attempting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Attempt records one failed strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// Plan walks an ordered strategy list without doing any I/O, so escalation,
// backoff and the terminal error can be exercised on their own.
type Plan struct {
	strategies []Strategy
	backoff    Backoff
	phase      Phase
	index      int
	failures   []Attempt
}

// NewPlan starts a plan in PhasePending.
func NewPlan(strategies []Strategy, backoff Backoff) *Plan {
	return &Plan{strategies: strategies, backoff: backoff}
}

// Phase returns the current phase.
func (p *Plan) Phase() Phase { return p.phase }

// Start moves Pending -> Attempting(0). It reports false for an empty plan,
// which is immediately exhausted.
func (p *Plan) Start() (Strategy, bool) {
	if p.phase != PhasePending {
		return Strategy{}, false
	}
	if len(p.strategies) == 0 {
		p.phase = PhaseExhausted
		return Strategy{}, false
	}
	p.phase = PhaseAttempting
	p.index = 0
	return p.strategies[0], true
}

// Current returns the strategy being attempted and its 0-based index.
func (p *Plan) Current() (Strategy, int) {
	if p.phase != PhaseAttempting {
		return Strategy{}, -1
	}
	return p.strategies[p.index], p.index
}

// Succeed moves Attempting -> Succeeded.
func (p *Plan) Succeed() {
	if p.phase == PhaseAttempting {
		p.phase = PhaseSucceeded
	}
}

// Fail records err against the current strategy. If another strategy
// remains the plan moves to it and returns it with the backoff to sleep
// first; otherwise the plan is exhausted and ok is false.
func (p *Plan) Fail(err error) (next Strategy, delay time.Duration, ok bool) {
	if p.phase != PhaseAttempting {
		return Strategy{}, 0, false
	}
	p.failures = append(p.failures, Attempt{Strategy: p.strategies[p.index].Name, Err: err})
	if p.index+1 >= len(p.strategies) {
		p.phase = PhaseExhausted
		return Strategy{}, 0, false
	}
	p.index++
	return p.strategies[p.index], p.backoff.Delay(len(p.failures)), true
}

// Failures returns the recorded failed attempts in order.
func (p *Plan) Failures() []Attempt {
	return append([]Attempt(nil), p.failures...)
}

// Exhausted builds the aggregate error for url. It is only meaningful in
// PhaseExhausted.
func (p *Plan) Exhausted(url string) *ExhaustedError {
	e := &ExhaustedError{URL: url, Attempts: p.Failures()}
	if n := len(p.failures); n > 0 {
		e.Last = p.failures[n-1].Err
	}
	return e
}
