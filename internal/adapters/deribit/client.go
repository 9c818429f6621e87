package deribit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/updown/internal/domain"
)

const (
	defaultBase     = "https://www.deribit.com"
	defaultCurrency = "BTC"

	volIndexPath = "/api/v2/public/get_volatility_index_data"

	requestTimeout = 3 * time.Second
	lookback       = 24 * time.Hour

	// DVOL diario: una lectura por refresco de volatilidad alcanza.
	ratePerSec = 2
)

// volIndexResponse es la respuesta de get_volatility_index_data.
// Cada fila es [timestamp, open, high, low, close].
type volIndexResponse struct {
	Result struct {
		Data [][]float64 `json:"data"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client lee el índice DVOL (volatilidad implícita anualizada, en %).
type Client struct {
	http     *http.Client
	base     string
	currency string
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker
	now      func() time.Time
}

// NewClient crea el cliente. base y currency vacíos usan producción y BTC.
func NewClient(base, currency string) *Client {
	if base == "" {
		base = defaultBase
	}
	if currency == "" {
		currency = defaultCurrency
	}
	return &Client{
		http:     &http.Client{Timeout: requestTimeout},
		base:     base,
		currency: currency,
		limiter:  rate.NewLimiter(ratePerSec, 2),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "deribit",
			Interval: 60 * time.Second,
			Timeout:  60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
		now: time.Now,
	}
}

// ImpliedVolatility devuelve el close de la última vela diaria del DVOL.
func (c *Client) ImpliedVolatility(ctx context.Context) (float64, error) {
	end := c.now()
	q := url.Values{
		"currency":        {c.currency},
		"start_timestamp": {strconv.FormatInt(end.Add(-lookback).UnixMilli(), 10)},
		"end_timestamp":   {strconv.FormatInt(end.UnixMilli(), 10)},
		"resolution":      {"1D"},
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	out, err := c.cb.Execute(func() (interface{}, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+volIndexPath+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		var r volIndexResponse
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if r.Error != nil {
			return nil, fmt.Errorf("api error %d: %s", r.Error.Code, r.Error.Message)
		}
		return r.Result.Data, nil
	})
	if err != nil {
		return 0, fmt.Errorf("deribit.ImpliedVolatility: %w", domain.NewOpError(domain.ErrTransientNetwork, volIndexPath, err))
	}

	rows := out.([][]float64)
	if len(rows) == 0 {
		return 0, fmt.Errorf("deribit.ImpliedVolatility: %w", domain.NewOpError(domain.ErrDataUnavailable, volIndexPath, nil))
	}
	last := rows[len(rows)-1]
	if len(last) < 5 || last[4] <= 0 {
		return 0, fmt.Errorf("deribit.ImpliedVolatility: malformed row %v", last)
	}
	return last[4], nil
}
