package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/updown/internal/domain"
)

const bookPath = "/book"

// FetchOrderBook obtiene el orderbook completo de un token.
// Los bids quedan de mayor a menor y los asks de menor a mayor.
func (c *Client) FetchOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp orderBookResponse
	if err := c.get(ctx, c.bookLimiter, u, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.FetchOrderBook: %w", classify(tokenID, err))
	}

	book := mapOrderBook(tokenID, resp)
	slog.Debug("order book fetched",
		"token", tokenID,
		"bids", len(book.Bids),
		"asks", len(book.Asks),
	)
	return book, nil
}
