// Package breaker implementa circuit breaking por nombre para aislar fallas
// de dependencias remotas.
//
// Máquina de estados por circuito:
//
//	CLOSED --(fallas consecutivas >= FailureThreshold)--> OPEN
//	OPEN   --(pasó ResetTimeout)--> HALF_OPEN
//	HALF_OPEN --(éxitos consecutivos >= SuccessThreshold)--> CLOSED
//	HALF_OPEN --(una falla)--> OPEN (y reinicia el timer)
//
// El estado es local al proceso y vive en un Registry construido una vez e
// inyectado; en despliegues horizontales cada instancia dispara y se recupera
// por su cuenta (fail fast, sin coordinación).
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State es el estado de un circuito.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen se retorna cuando el circuito está abierto y no hay fallback:
// la función nunca se invoca.
var ErrOpen = errors.New("breaker: circuit open")

// Settings umbrales de un circuito.
type Settings struct {
	// FailureThreshold fallas consecutivas para abrir (default 5).
	FailureThreshold int

	// SuccessThreshold éxitos consecutivos en half-open para cerrar (default 2).
	SuccessThreshold int

	// ResetTimeout espera en open antes de probar half-open (default 30s).
	ResetTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = 30 * time.Second
	}
	return s
}

// Snapshot estado observable de un circuito (para métricas/health).
type Snapshot struct {
	Name              string
	State             State
	FailureCount      int
	SuccessCount      int
	LastFailureAt     time.Time
	LastStateChangeAt time.Time
}

type circuit struct {
	settings Settings

	state       State
	failures    int
	successes   int
	lastFailure time.Time
	changedAt   time.Time
	openedAt    time.Time
}

// Registry administra circuitos por nombre. Los circuitos se crean lazy en el
// primer uso, con los defaults del registry salvo override por llamada.
type Registry struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	defaults Settings

	// OnStateChange hook opcional invocado en cada transición, fuera del
	// lock. Setearlo antes del primer uso del registry.
	OnStateChange func(name string, from, to State)

	// now inyectable para tests.
	now func() time.Time
}

// NewRegistry crea un Registry con los defaults dados.
func NewRegistry(defaults Settings) *Registry {
	return &Registry{
		circuits: make(map[string]*circuit),
		defaults: defaults.withDefaults(),
		now:      time.Now,
	}
}

type callOptions struct {
	settings *Settings
	fallback func(ctx context.Context, err error) error
}

// Option configura una llamada a Execute.
type Option func(*callOptions)

// WithSettings fija umbrales propios para el circuito. Sólo tiene efecto en
// la llamada que crea el circuito (primer uso del nombre).
func WithSettings(s Settings) Option {
	return func(o *callOptions) {
		ss := s.withDefaults()
		o.settings = &ss
	}
}

// WithFallback provee un fallback a usar cuando el circuito está abierto en
// lugar de retornar ErrOpen. Recibe el error de admisión.
func WithFallback(fn func(ctx context.Context, err error) error) Option {
	return func(o *callOptions) { o.fallback = fn }
}

// Execute corre fn protegida por el circuito `name`.
//
// Con el circuito abierto y el timeout de reset aún corriendo, fn no se
// invoca: se retorna ErrOpen (o el resultado del fallback). En cualquier otro
// caso el error original de fn se propaga tal cual, luego de registrarlo.
func (r *Registry) Execute(ctx context.Context, name string, fn func(context.Context) error, opts ...Option) error {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := r.admit(name, o.settings); err != nil {
		if o.fallback != nil {
			return o.fallback(ctx, err)
		}
		return err
	}

	err := fn(ctx)
	r.record(name, err == nil)
	return err
}

// admit decide si la llamada puede pasar, moviendo OPEN->HALF_OPEN si venció
// el timer.
func (r *Registry) admit(name string, override *Settings) error {
	r.mu.Lock()

	c := r.circuits[name]
	if c == nil {
		s := r.defaults
		if override != nil {
			s = *override
		}
		c = &circuit{settings: s, state: StateClosed, changedAt: r.now()}
		r.circuits[name] = c
	}

	switch c.state {
	case StateClosed, StateHalfOpen:
		r.mu.Unlock()
		return nil
	case StateOpen:
		if r.now().Sub(c.openedAt) >= c.settings.ResetTimeout {
			notify := r.transition(c, name, StateHalfOpen)
			r.mu.Unlock()
			notify()
			return nil
		}
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOpen, name)
	}
	r.mu.Unlock()
	return nil
}

// record registra el resultado de una llamada admitida.
func (r *Registry) record(name string, success bool) {
	r.mu.Lock()

	c := r.circuits[name]
	if c == nil {
		r.mu.Unlock()
		return
	}

	notify := func() {}
	if success {
		switch c.state {
		case StateClosed:
			// Un éxito corta la racha: las fallas deben ser consecutivas.
			c.failures = 0
		case StateHalfOpen:
			c.successes++
			if c.successes >= c.settings.SuccessThreshold {
				notify = r.transition(c, name, StateClosed)
			}
		}
	} else {
		c.lastFailure = r.now()
		switch c.state {
		case StateClosed:
			c.failures++
			if c.failures >= c.settings.FailureThreshold {
				notify = r.transition(c, name, StateOpen)
			}
		case StateHalfOpen:
			// Cualquier falla en half-open reabre de inmediato.
			notify = r.transition(c, name, StateOpen)
		}
	}

	r.mu.Unlock()
	notify()
}

// transition cambia el estado bajo lock y retorna el hook a invocar después
// de soltarlo.
func (r *Registry) transition(c *circuit, name string, to State) func() {
	from := c.state
	c.state = to
	c.changedAt = r.now()
	c.failures = 0
	c.successes = 0
	if to == StateOpen {
		c.openedAt = r.now()
	}

	hook := r.OnStateChange
	if hook == nil {
		return func() {}
	}
	return func() { hook(name, from, to) }
}

// StateOf retorna el estado actual del circuito; StateClosed si no existe.
func (r *Registry) StateOf(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.circuits[name]; c != nil {
		return c.state
	}
	return StateClosed
}

// Snapshots retorna el estado observable de todos los circuitos.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Snapshot, 0, len(r.circuits))
	for name, c := range r.circuits {
		out = append(out, Snapshot{
			Name:              name,
			State:             c.state,
			FailureCount:      c.failures,
			SuccessCount:      c.successes,
			LastFailureAt:     c.lastFailure,
			LastStateChangeAt: c.changedAt,
		})
	}
	return out
}
