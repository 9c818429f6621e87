package binance

import (
	"context"
	"encoding/json"
	"errors"
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
	defaultBase   = "https://api.binance.com"
	defaultSymbol = "BTCUSDT"

	klinesPath = "/api/v3/klines"
	tickerPath = "/api/v3/ticker/price"
	depthPath  = "/api/v3/depth"

	depthLimit = 20

	// Peso de request de Binance: 6000/min. Nos quedamos muy por debajo.
	ratePerSec = 10

	candleTimeout  = 5 * time.Second
	spotTimeout    = 5 * time.Second
	depthTimeout   = 2 * time.Second
	historyTimeout = 2 * time.Second
)

// Oracle implementa ports.PriceOracle contra la API pública de Binance spot.
// Todas las llamadas pasan por el mismo circuit breaker: con Binance caído
// los ticks fallan al instante en lugar de esperar cada timeout.
type Oracle struct {
	http    *http.Client
	base    string
	symbol  string
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

// NewOracle crea el oráculo. base y symbol vacíos usan producción y BTCUSDT.
func NewOracle(base, symbol string) *Oracle {
	if base == "" {
		base = defaultBase
	}
	if symbol == "" {
		symbol = defaultSymbol
	}
	return &Oracle{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		symbol:  symbol,
		limiter: rate.NewLimiter(ratePerSec, 5),
		cb:      newBreaker("binance"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// CandleOpen devuelve el open de la vela de 1m que empieza exactamente en at.
// Si la vela todavía no existe devuelve ErrDataUnavailable.
func (o *Oracle) CandleOpen(ctx context.Context, at time.Time) (float64, error) {
	q := url.Values{
		"symbol":    {o.symbol},
		"interval":  {"1m"},
		"startTime": {strconv.FormatInt(at.UnixMilli(), 10)},
		"limit":     {"1"},
	}
	var rows [][]any
	if err := o.get(ctx, candleTimeout, klinesPath, q, &rows); err != nil {
		return 0, fmt.Errorf("binance.CandleOpen: %w", err)
	}
	if len(rows) == 0 || len(rows[0]) < 5 {
		return 0, domain.NewOpError(domain.ErrDataUnavailable, "binance.CandleOpen", fmt.Errorf("no candle at %s", at.UTC().Format(time.RFC3339)))
	}
	if openTime, ok := rows[0][0].(float64); ok && int64(openTime) != at.UnixMilli() {
		return 0, domain.NewOpError(domain.ErrDataUnavailable, "binance.CandleOpen", fmt.Errorf("candle at %s not published", at.UTC().Format(time.RFC3339)))
	}
	open, err := numberAt(rows[0], 1)
	if err != nil {
		return 0, fmt.Errorf("binance.CandleOpen: %w", err)
	}
	return open, nil
}

// SpotPrice devuelve el último precio negociado.
func (o *Oracle) SpotPrice(ctx context.Context) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	if err := o.get(ctx, spotTimeout, tickerPath, url.Values{"symbol": {o.symbol}}, &resp); err != nil {
		return 0, fmt.Errorf("binance.SpotPrice: %w", err)
	}
	p, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("binance.SpotPrice: bad price %q", resp.Price)
	}
	return p, nil
}

// RecentCloses devuelve los cierres de las últimas n velas de 1m, de la más antigua a la más nueva.
func (o *Oracle) RecentCloses(ctx context.Context, n int) ([]float64, error) {
	if n <= 0 {
		return nil, nil
	}
	q := url.Values{
		"symbol":   {o.symbol},
		"interval": {"1m"},
		"limit":    {strconv.Itoa(n)},
	}
	var rows [][]any
	if err := o.get(ctx, historyTimeout, klinesPath, q, &rows); err != nil {
		return nil, fmt.Errorf("binance.RecentCloses: %w", err)
	}
	closes := make([]float64, 0, len(rows))
	for _, r := range rows {
		c, err := numberAt(r, 4)
		if err != nil {
			return nil, fmt.Errorf("binance.RecentCloses: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, nil
}

// DepthImbalance devuelve la suma de cantidades bid / ask del top 20.
// Cualquier fallo o un lado vacío da 1.0, que nunca dispara un trade.
func (o *Oracle) DepthImbalance(ctx context.Context) float64 {
	var resp struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	q := url.Values{"symbol": {o.symbol}, "limit": {strconv.Itoa(depthLimit)}}
	if err := o.get(ctx, depthTimeout, depthPath, q, &resp); err != nil {
		slog.Debug("binance: depth unavailable, neutral obi", "err", err)
		return 1.0
	}
	bids := sumQty(resp.Bids)
	asks := sumQty(resp.Asks)
	if bids <= 0 || asks <= 0 {
		return 1.0
	}
	return bids / asks
}

// get ejecuta un GET con rate limit, timeout por llamada y circuit breaker.
// Los fallos se devuelven como ErrTransientNetwork.
func (o *Oracle) get(ctx context.Context, timeout time.Duration, path string, q url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := o.cb.Execute(func() (interface{}, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.base+path+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := o.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return domain.NewOpError(domain.ErrTransientNetwork, path, err)
	}
	return nil
}

// numberAt lee el campo i de una fila de klines; Binance manda precios como strings.
func numberAt(row []any, i int) (float64, error) {
	if i >= len(row) {
		return 0, errors.New("short kline row")
	}
	switch v := row[i].(type) {
	case string:
		return strconv.ParseFloat(v, 64)
	case float64:
		return v, nil
	}
	return 0, fmt.Errorf("unexpected kline field %T", row[i])
}

func sumQty(levels [][]string) float64 {
	var total float64
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		q, err := strconv.ParseFloat(l[1], 64)
		if err != nil {
			continue
		}
		total += q
	}
	return total
}
