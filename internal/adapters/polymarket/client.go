package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/updown/internal/domain"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Límites al 60% de los documentados. El tick pide 2 books cada 2s,
	// así que sobra margen; el burst cubre el arranque de ventana.
	bookRatePerSec    = 90  // CLOB /book: 1500/10s
	gammaRatePerSec   = 18  // Gamma /events: 300/10s
	generalRatePerSec = 540 // CLOB neg-risk y órdenes: 9000/10s

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	// Retry-After por encima de esto no vale la pena: el tick siguiente
	// vuelve a pedir el dato.
	maxRetryAfter = 5 * time.Second
)

// StatusError es una respuesta HTTP no exitosa que no se reintenta más.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// Client es el HTTP client de lectura de Polymarket (Gamma + CLOB público).
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	bookLimiter  *rate.Limiter
}

// NewClient crea un Client. Base URLs vacíos usan producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     clobBase,
		gammaBase:    gammaBase,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		bookLimiter:  rate.NewLimiter(bookRatePerSec, 10),
	}
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	return c.do(ctx, limiter, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// do ejecuta la request con rate limiting y backoff exponencial.
// 429 y 5xx se reintentan; cualquier otro 4xx devuelve *StatusError en el acto.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, build func() (*http.Request, error), out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, backoff(attempt-1, lastErr)); err != nil {
				return fmt.Errorf("%w (last: %v)", err, lastErr)
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = &retryableStatus{
				StatusError: StatusError{Code: resp.StatusCode, Body: string(body)},
				after:       parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				slog.Warn("rate limited by API", "url", req.URL.Path, "attempt", attempt+1)
			}
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		err = decodeInto(resp.Body, out)
		resp.Body.Close()
		return err
	}
	if rs, ok := lastErr.(*retryableStatus); ok {
		return fmt.Errorf("giving up after %d retries: %w", maxRetries, &rs.StatusError)
	}
	return fmt.Errorf("giving up after %d retries: %w", maxRetries, lastErr)
}

func decodeInto(r io.Reader, out any) error {
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// retryableStatus lleva el Retry-After de un 429/5xx hasta el próximo intento.
type retryableStatus struct {
	StatusError
	after time.Duration
}

func (e *retryableStatus) Error() string { return e.StatusError.Error() }

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}

func backoff(attempt int, lastErr error) time.Duration {
	if rs, ok := lastErr.(*retryableStatus); ok && rs.after > 0 {
		return rs.after
	}
	return baseRetryWait << attempt
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify traduce el error de transporte a la categoría de dominio:
// un 404 es un dato que no existe (book de un mercado ya cerrado); el resto
// es transitorio y el tick siguiente lo reintenta.
func classify(op string, err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return domain.NewOpError(domain.ErrDataUnavailable, op, err)
	}
	return domain.NewOpError(domain.ErrTransientNetwork, op, err)
}
