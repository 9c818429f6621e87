package domain

import (
	"errors"
	"fmt"
)

// Categorías de error. Se comparan con errors.Is.
var (
	// ErrTransientNetwork: fallo o timeout de una llamada saliente.
	// El tick usa un default seguro o se salta.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrDataUnavailable: el dato todavía no existe (p.ej. la vela del strike).
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrConfig: documento de configuración inválido; se conserva el anterior.
	ErrConfig = errors.New("config error")

	// ErrRedemption: la redención on-chain falló; no afecta al settlement.
	ErrRedemption = errors.New("redemption error")
)

// OpError asocia una operación a una categoría de error.
type OpError struct {
	Kind error
	Op   string
	Err  error
}

// NewOpError envuelve err bajo la categoría kind.
func NewOpError(kind error, op string, err error) *OpError {
	return &OpError{Kind: kind, Op: op, Err: err}
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Is permite errors.Is(err, domain.ErrTransientNetwork) sobre la categoría.
func (e *OpError) Is(target error) bool {
	return target == e.Kind
}
