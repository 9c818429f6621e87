package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	// WindowDuration es la duración fija de cada mercado up/down.
	WindowDuration = 15 * time.Minute

	// SlugPrefix identifica los eventos BTC 15m en Gamma.
	SlugPrefix = "btc-updown-15m-"

	windowSeconds = int64(WindowDuration / time.Second)
)

// Direction es el lado de la apuesta.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// Opposite devuelve el lado contrario.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

var (
	ErrStrikeAlreadySet = errors.New("strike already captured")
	ErrInvalidStrike    = errors.New("strike must be positive")
)

// MarketWindow es el mercado activo de 15 minutos y sus dos tokens de outcome.
// El strike se captura una sola vez y después es de solo lectura.
type MarketWindow struct {
	Slug        string
	ConditionID string
	Question    string
	UpTokenID   string
	DownTokenID string
	StartTime   time.Time
	EndTime     time.Time

	strike    float64
	strikeSet bool
}

// WindowStart calcula el inicio de la ventana que contiene now: floor(now/900)*900.
func WindowStart(now time.Time) time.Time {
	ts := now.Unix()
	return time.Unix(ts-mod(ts, windowSeconds), 0).UTC()
}

// WindowSlug construye el slug determinista de la ventana que empieza en start.
func WindowSlug(start time.Time) string {
	return fmt.Sprintf("%s%d", SlugPrefix, start.Unix())
}

// SetStrike fija el strike. Falla si ya estaba fijado.
func (w *MarketWindow) SetStrike(price float64) error {
	if w.strikeSet {
		return ErrStrikeAlreadySet
	}
	if price <= 0 {
		return ErrInvalidStrike
	}
	w.strike = price
	w.strikeSet = true
	return nil
}

// Strike devuelve el strike y si ya fue capturado.
func (w *MarketWindow) Strike() (float64, bool) {
	return w.strike, w.strikeSet
}

// TimeRemaining devuelve el tiempo hasta el cierre de la ventana.
func (w *MarketWindow) TimeRemaining(now time.Time) time.Duration {
	return w.EndTime.Sub(now)
}

// IsActive es true mientras queda más de buffer hasta el cierre.
func (w *MarketWindow) IsActive(now time.Time, buffer time.Duration) bool {
	return w.TimeRemaining(now) > buffer
}

// TokenFor devuelve el token del outcome correspondiente a d.
func (w *MarketWindow) TokenFor(d Direction) string {
	if d == DirectionUp {
		return w.UpTokenID
	}
	return w.DownTokenID
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
