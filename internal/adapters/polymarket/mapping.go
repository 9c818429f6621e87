package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

// mapWindow convierte el primer mercado de un evento de Gamma a domain.MarketWindow.
// Devuelve nil si el evento está cerrado o no acepta órdenes.
func mapWindow(ev gammaEvent) (*domain.MarketWindow, error) {
	if ev.Closed || len(ev.Markets) == 0 {
		return nil, nil
	}
	m := ev.Markets[0]
	if m.Closed || !m.AcceptingOrders {
		return nil, nil
	}

	var tokenIDs, outcomes []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return nil, fmt.Errorf("clobTokenIds: %w", err)
	}
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return nil, fmt.Errorf("outcomes: %w", err)
	}
	if len(tokenIDs) < 2 || len(outcomes) != len(tokenIDs) {
		return nil, fmt.Errorf("expected 2 tokens, got %d ids / %d outcomes", len(tokenIDs), len(outcomes))
	}

	w := &domain.MarketWindow{
		Slug:        ev.Slug,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		EndTime:     parseISO(m.EndDateISO),
	}
	for i, o := range outcomes {
		switch strings.ToLower(strings.TrimSpace(o)) {
		case "up", "yes":
			w.UpTokenID = tokenIDs[i]
		case "down", "no":
			w.DownTokenID = tokenIDs[i]
		}
	}
	// Sin etiquetas reconocibles se asume el orden de Gamma: [Up, Down].
	if w.UpTokenID == "" || w.DownTokenID == "" {
		w.UpTokenID, w.DownTokenID = tokenIDs[0], tokenIDs[1]
	}
	if w.Question == "" {
		w.Question = ev.Title
	}
	return w, nil
}

// parseISO acepta los formatos de fecha que usa Gamma. Devuelve zero si ninguno encaja.
func parseISO(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBook convierte la respuesta de /book a domain.OrderBook.
func mapOrderBook(tokenID string, r orderBookResponse) domain.OrderBook {
	if r.AssetID != "" {
		tokenID = r.AssetID
	}
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    mapBookEntries(r.Bids, false),
		Asks:    mapBookEntries(r.Asks, true),
	}
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, _ := strconv.ParseFloat(r.Price, 64)
		size, _ := strconv.ParseFloat(r.Size, 64)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
