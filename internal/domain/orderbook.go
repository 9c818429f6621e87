package domain

import "strconv"

const (
	// DefaultBestBid y DefaultBestAsk representan "sin liquidez".
	DefaultBestBid = 0.0
	DefaultBestAsk = 1.0

	// DepthBand es la banda de precio (en unidades de probabilidad) usada para medir profundidad.
	DepthBand = 0.05
)

// OrderBookSide es el top-of-book de un token de outcome.
// Los valores por defecto (bid=0, ask=1) nunca son señal de trade.
type OrderBookSide struct {
	BestBid float64
	BestAsk float64
}

// NewOrderBookSide devuelve un lado vacío con los defaults de "sin liquidez".
func NewOrderBookSide() OrderBookSide {
	return OrderBookSide{BestBid: DefaultBestBid, BestAsk: DefaultBestAsk}
}

// HasBid es true si hay un bid utilizable.
func (s OrderBookSide) HasBid() bool {
	return s.BestBid > 0
}

// AskPrice devuelve el ask usado para el cálculo de edge. Un ask no positivo
// es "sin liquidez" (DefaultBestAsk), así el edge de ese lado nunca es positivo.
func (s OrderBookSide) AskPrice() float64 {
	if s.BestAsk <= 0 {
		return DefaultBestAsk
	}
	return s.BestAsk
}

// BookSnapshot es una foto consistente de ambos lados, tomada una vez por tick.
type BookSnapshot struct {
	Up   OrderBookSide
	Down OrderBookSide
}

// Side devuelve el lado del snapshot para la dirección dada.
func (b BookSnapshot) Side(d Direction) OrderBookSide {
	if d == DirectionUp {
		return b.Up
	}
	return b.Down
}

// OrderBook representa el libro de órdenes completo de un token (REST /book).
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// Liquidity resume la profundidad de un token dentro de la banda.
type Liquidity struct {
	BidDepth float64 // USDC (size × price)
	AskDepth float64
	BestBid  float64
	BestAsk  float64
	Spread   float64
}

// EmptyLiquidity es el valor conservador cuando el book no se pudo leer.
func EmptyLiquidity() Liquidity {
	return Liquidity{Spread: 0.99}
}

// Ratio devuelve bidDepth/askDepth, o 0 si no hay asks.
func (l Liquidity) Ratio() float64 {
	if l.AskDepth <= 0 {
		return 0
	}
	return l.BidDepth / l.AskDepth
}

// BandLiquidity calcula el notional en USDC de bids y asks dentro de band
// respecto al mejor precio de cada lado.
func (ob OrderBook) BandLiquidity(band float64) Liquidity {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return EmptyLiquidity()
	}

	bestBid := ob.BestBid()
	bestAsk := ob.BestAsk()
	bidLimit := bestBid - band
	askLimit := bestAsk + band

	var liq Liquidity
	for _, b := range ob.Bids {
		if b.Price >= bidLimit {
			liq.BidDepth += b.Size * b.Price
		}
	}
	for _, a := range ob.Asks {
		if a.Price <= askLimit {
			liq.AskDepth += a.Size * a.Price
		}
	}
	liq.BestBid = bestBid
	liq.BestAsk = bestAsk
	liq.Spread = bestAsk - bestBid
	return liq
}

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
