package domain

import (
	"errors"
	"fmt"
	"time"
)

// OrderSide es el lado de una orden en el CLOB.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderRequest es la orden estructurada que recibe un ExecutionBackend.
// Size son USDC para BUY y shares para SELL.
type OrderRequest struct {
	TokenID     string
	ConditionID string
	Price       float64
	Size        float64
	Side        OrderSide
	NegRisk     bool
}

// OrderAck es la respuesta del backend tras aceptar una orden.
type OrderAck struct {
	OrderID     string
	Status      string
	FilledPrice float64
	FilledSize  float64
	AcceptedAt  time.Time
}

// PlaceOrderRequest is sent to the CLOB order executor.
type PlaceOrderRequest struct {
	TokenID     string
	ConditionID string
	Price       float64
	Size        float64
	Side        OrderSide
	NegRisk     bool
}

// PlacedOrder is the response from the CLOB after placing an order.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string
	TakenAmount float64 // immediately filled (taker portion)
	MadeAmount  float64 // resting in book (maker portion)
}

// RedeemResult is the outcome of a relay redemption.
type RedeemResult struct {
	ConditionID string
	Nonce       uint64
	RelayTxID   string
	ExecutedAt  time.Time
}

// RedemptionRecord es un intento de redención tal como queda registrado.
type RedemptionRecord struct {
	RedeemResult
	Success bool
	Error   string
}

// Validate rechaza órdenes que el CLOB nunca aceptaría.
func (r OrderRequest) Validate() error {
	switch {
	case r.TokenID == "":
		return errors.New("order: missing token id")
	case r.Side != SideBuy && r.Side != SideSell:
		return fmt.Errorf("order: invalid side %q", r.Side)
	case r.Price <= 0 || r.Price >= 1:
		return fmt.Errorf("order: price %v out of (0,1)", r.Price)
	case r.Size <= 0:
		return fmt.Errorf("order: size %v must be positive", r.Size)
	}
	return nil
}

// FilledShares estima las shares de la orden si se llena completa.
func (r OrderRequest) FilledShares() float64 {
	if r.Side == SideSell {
		return r.Size
	}
	return SharesFor(r.Size, r.Price)
}
