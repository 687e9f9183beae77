package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen rejects calls while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests rejects calls beyond the half-open trial quota.
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the breaker position: closed passes calls through, open
// rejects them, half-open lets a bounded trial through.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Counts holds the call outcomes of the current generation. A
// generation ends on every state change and when the closed-state
// window rolls over.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Settings tunes a Breaker. Zero values fall back to defaults sized
// for the catalog client: one trial call, 60s closed window, 60s open
// period, trip after 5 consecutive failures.
type Settings struct {
	MaxRequests   uint32        // calls let through while half-open
	Interval      time.Duration // closed-state window before counts reset
	Timeout       time.Duration // open-state period before the trial
	ReadyToTrip   func(Counts) bool
	OnStateChange func(name string, from, to State)
}

// Breaker fails fast once a dependency keeps erroring, then probes for
// recovery with a bounded trial. Safe for concurrent use.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New builds a breaker; name appears in the OnStateChange callback.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 60 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures >= 5 }
	}
	return &Breaker{
		name:     name,
		settings: settings,
		expiry:   time.Now().Add(settings.Interval),
	}
}

// State reports the position, advancing open to half-open when the
// open period has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.current(time.Now())
	return state
}

// Counts returns a copy of the current generation's counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs op unless the breaker rejects it. A panic inside op
// counts as a failure and is re-raised.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	gen, err := b.before()
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			b.after(gen, false)
			panic(r)
		}
	}()
	out, err := op()
	b.after(gen, err == nil)
	return out, err
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, gen := b.current(time.Now())
	if state == StateOpen {
		return gen, ErrCircuitOpen
	}
	if state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests {
		return gen, ErrTooManyRequests
	}
	b.counts.Requests++
	return gen, nil
}

func (b *Breaker) after(gen uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.current(now)
	if current != gen {
		// Outcome of a call started in an earlier generation.
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.shift(StateClosed, now)
		}
		return
	}

	switch state {
	case StateClosed:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.settings.ReadyToTrip(b.counts) {
			b.shift(StateOpen, now)
		}
	case StateHalfOpen:
		b.shift(StateOpen, now)
	}
}

// current applies time-based transitions and returns the state with
// its generation. Callers hold the mutex.
func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.newGeneration()
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.shift(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) shift(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.newGeneration()

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.settings.Interval)
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) newGeneration() {
	b.generation++
	b.counts = Counts{}
}
