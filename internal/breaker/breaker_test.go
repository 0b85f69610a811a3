package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock permite avanzar el tiempo sin sleeps.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestRegistry(s Settings) (*Registry, *fakeClock) {
	r := NewRegistry(s)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r.now = clk.now
	return r, clk
}

func fail(ctx context.Context) error { return errBoom }
func ok(ctx context.Context) error   { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(Settings{FailureThreshold: 3, SuccessThreshold: 2, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := r.Execute(context.Background(), "dep", fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected wrapped fn error, got %v", i, err)
		}
	}
	if got := r.StateOf("dep"); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// 4ta llamada: rechazada sin invocar fn
	invoked := false
	err := r.Execute(context.Background(), "dep", func(ctx context.Context) error {
		invoked = true
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Fatalf("fn must not be invoked while open")
	}
}

func TestBreaker_SuccessClearsStreak(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(Settings{FailureThreshold: 3, SuccessThreshold: 1, ResetTimeout: time.Minute})

	_ = r.Execute(context.Background(), "dep", fail)
	_ = r.Execute(context.Background(), "dep", fail)
	_ = r.Execute(context.Background(), "dep", ok) // corta la racha
	_ = r.Execute(context.Background(), "dep", fail)
	_ = r.Execute(context.Background(), "dep", fail)

	if got := r.StateOf("dep"); got != StateClosed {
		t.Fatalf("state = %v, want closed (failures not consecutive)", got)
	}
}

func TestBreaker_HalfOpenProbeAndClose(t *testing.T) {
	t.Parallel()
	r, clk := newTestRegistry(Settings{FailureThreshold: 3, SuccessThreshold: 2, ResetTimeout: 30 * time.Second})

	for i := 0; i < 3; i++ {
		_ = r.Execute(context.Background(), "dep", fail)
	}
	if r.StateOf("dep") != StateOpen {
		t.Fatalf("expected open")
	}

	clk.advance(31 * time.Second)

	// Primer probe pasa (half-open)
	if err := r.Execute(context.Background(), "dep", ok); err != nil {
		t.Fatalf("probe err: %v", err)
	}
	if r.StateOf("dep") != StateHalfOpen {
		t.Fatalf("expected half_open after first probe success")
	}

	// Segundo éxito consecutivo cierra
	if err := r.Execute(context.Background(), "dep", ok); err != nil {
		t.Fatal(err)
	}
	if r.StateOf("dep") != StateClosed {
		t.Fatalf("expected closed after success threshold")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	r, clk := newTestRegistry(Settings{FailureThreshold: 2, SuccessThreshold: 2, ResetTimeout: 30 * time.Second})

	_ = r.Execute(context.Background(), "dep", fail)
	_ = r.Execute(context.Background(), "dep", fail)
	clk.advance(31 * time.Second)

	// Probe falla: reabre y reinicia el timer
	if err := r.Execute(context.Background(), "dep", fail); !errors.Is(err, errBoom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if r.StateOf("dep") != StateOpen {
		t.Fatalf("expected reopen after half-open failure")
	}

	// Timer reiniciado: a los 15s sigue rechazando
	clk.advance(15 * time.Second)
	if err := r.Execute(context.Background(), "dep", ok); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen (timer reset), got %v", err)
	}
}

func TestBreaker_FallbackWhileOpen(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(Settings{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute})

	_ = r.Execute(context.Background(), "dep", fail)

	var sawErr error
	err := r.Execute(context.Background(), "dep", ok, WithFallback(func(ctx context.Context, admitErr error) error {
		sawErr = admitErr
		return nil
	}))
	if err != nil {
		t.Fatalf("fallback should swallow the open error, got %v", err)
	}
	if !errors.Is(sawErr, ErrOpen) {
		t.Fatalf("fallback must receive the admission error, got %v", sawErr)
	}
}

func TestBreaker_PerCallSettingsOnFirstUse(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(Settings{FailureThreshold: 10, SuccessThreshold: 2, ResetTimeout: time.Minute})

	// Umbral propio del circuito: abre a la 1ra falla
	_ = r.Execute(context.Background(), "fragile", fail,
		WithSettings(Settings{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Minute}))

	if r.StateOf("fragile") != StateOpen {
		t.Fatalf("expected per-call threshold to apply on first use")
	}
	// El default de 10 sigue rigiendo otros circuitos
	_ = r.Execute(context.Background(), "solid", fail)
	if r.StateOf("solid") != StateClosed {
		t.Fatalf("default circuit should still be closed")
	}
}

func TestBreaker_StateChangeHook(t *testing.T) {
	t.Parallel()
	r, clk := newTestRegistry(Settings{FailureThreshold: 1, SuccessThreshold: 1, ResetTimeout: time.Second})

	type change struct{ from, to State }
	var changes []change
	r.OnStateChange = func(name string, from, to State) {
		changes = append(changes, change{from, to})
	}

	_ = r.Execute(context.Background(), "dep", fail) // closed -> open
	clk.advance(2 * time.Second)
	_ = r.Execute(context.Background(), "dep", ok) // open -> half_open -> closed

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(changes) != len(want) {
		t.Fatalf("transitions = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, changes[i], want[i])
		}
	}
}
