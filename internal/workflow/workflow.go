// Package workflow define el contrato de sagas compensables que consumen los
// flujos multi-paso (baja de cuenta, limpieza de tenant). El scheduler vive
// fuera de este servicio; acá sólo se fija la interfaz step/compensate.
package workflow

import "context"

// Step es un paso de saga: acción hacia adelante y su compensación.
type Step interface {
	// Name identifica el paso en logs y resultados.
	Name() string
	// Execute aplica el paso. Si falla, el executor compensa los pasos ya
	// aplicados en orden inverso.
	Execute(ctx context.Context, sc *Context) error
	// Compensate deshace el efecto de Execute. Debe ser idempotente.
	Compensate(ctx context.Context, sc *Context) error
}

// Definition es una saga nombrada con sus pasos en orden de ejecución.
type Definition struct {
	Name  string
	Steps []Step
}

// Context transporta estado compartido entre pasos de una misma ejecución.
type Context struct {
	values map[string]any
}

func NewContext() *Context {
	return &Context{values: make(map[string]any)}
}

func (c *Context) Set(key string, v any) { c.values[key] = v }

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Result resume una ejecución terminada.
type Result struct {
	Success bool
	// FailedStep es el nombre del paso que falló, vacío si Success.
	FailedStep string
	// Err es el error del paso fallido.
	Err error
	// CompensationErrs acumula fallas de compensación, si las hubo.
	CompensationErrs []error
}

// Executor corre una saga completa. La semántica exacta de orden y de
// compensación ante fallo parcial la define la implementación externa.
type Executor interface {
	Execute(ctx context.Context, def Definition, sc *Context) (Result, error)
}
