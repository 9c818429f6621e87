package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/updown/internal/domain"
)

const gammaEventsPath = "/events"

// FetchWindow busca el evento del slug en Gamma y devuelve su ventana.
// nil, nil si el evento no existe, está cerrado o no acepta órdenes.
func (c *Client) FetchWindow(ctx context.Context, slug string) (*domain.MarketWindow, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaEventsPath, url.QueryEscape(slug))

	var resp gammaEventsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchWindow: %w", classify(slug, err))
	}
	if len(resp) == 0 {
		slog.Debug("gamma: no event for slug", "slug", slug)
		return nil, nil
	}

	w, err := mapWindow(resp[0])
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchWindow %s: %w", slug, err)
	}
	if w != nil && w.Slug == "" {
		w.Slug = slug
	}
	return w, nil
}
