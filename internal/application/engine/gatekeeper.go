package engine

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/alejandrodnm/updown/internal/ports"
)

// Outcome es el resultado de una decisión del gatekeeper.
type Outcome string

const (
	OutcomePositionOpen Outcome = "position_open"
	OutcomeCooldown     Outcome = "cooldown"
	OutcomeSafetyMargin Outcome = "safety_margin"
	OutcomeNoEdge       Outcome = "no_edge"
	OutcomeThinBook     Outcome = "thin_book"
	OutcomeWall         Outcome = "liquidity_wall"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeSignal       Outcome = "signal"
	OutcomeEnter        Outcome = "enter"
)

// DecisionInput es todo lo que el gatekeeper necesita de un tick.
type DecisionInput struct {
	Window          *domain.MarketWindow
	Now             time.Time
	Price           float64
	Strike          float64
	ProbUp          float64
	Book            domain.BookSnapshot
	HasOpenPosition bool
	Tunables        domain.Tunables

	// UpLiquidity y OBI, si no son nil, evitan repetir lecturas ya hechas
	// para las features del predictor.
	UpLiquidity *domain.Liquidity
	OBI         *float64
}

// Decision es la salida del gatekeeper, con diagnósticos para logs.
type Decision struct {
	Outcome      Outcome
	Direction    domain.Direction
	EntryPrice   float64
	EdgeUp       float64
	EdgeDown     float64
	SafetyMargin float64
	Diff         float64
	Liquidity    domain.Liquidity
	OBI          float64
	OBIConfirms  bool
}

// Gatekeeper aplica la secuencia de filtros de entrada.
type Gatekeeper struct {
	depth     ports.DepthProvider
	imbalance ports.ImbalanceSource
	cooldown  time.Duration

	windowSlug string
	attempted  map[string]struct{}
}

// NewGatekeeper crea el gatekeeper. imbalance puede ser nil (OBI neutro).
func NewGatekeeper(depth ports.DepthProvider, imbalance ports.ImbalanceSource, cooldown time.Duration) *Gatekeeper {
	return &Gatekeeper{
		depth:     depth,
		imbalance: imbalance,
		cooldown:  cooldown,
		attempted: make(map[string]struct{}),
	}
}

// ResetWindow limpia el set de de-dup cuando empieza una ventana nueva.
func (g *Gatekeeper) ResetWindow(slug string) {
	if g.windowSlug == slug {
		return
	}
	g.windowSlug = slug
	g.attempted = make(map[string]struct{})
}

// Attempted es true si ya hubo un intento para (ventana, dirección).
func (g *Gatekeeper) Attempted(slug string, d domain.Direction) bool {
	_, ok := g.attempted[dedupKey(slug, d)]
	return ok
}

func dedupKey(slug string, d domain.Direction) string {
	return slug + "_" + string(d)
}

// Decide evalúa un tick. Cada paso corta la secuencia si no pasa.
func (g *Gatekeeper) Decide(ctx context.Context, in DecisionInput) Decision {
	g.ResetWindow(in.Window.Slug)
	t := in.Tunables

	if in.HasOpenPosition {
		return Decision{Outcome: OutcomePositionOpen}
	}
	if in.Now.Sub(in.Window.StartTime) < g.cooldown {
		return Decision{Outcome: OutcomeCooldown}
	}

	probDown := 1 - in.ProbUp
	d := Decision{
		Diff:         in.Price - in.Strike,
		SafetyMargin: in.Strike * t.SafetyMarginPct,
		EdgeUp:       in.ProbUp - in.Book.Up.AskPrice() - t.FeePct,
		EdgeDown:     probDown - in.Book.Down.AskPrice() - t.FeePct,
		OBI:          1.0,
	}
	switch {
	case in.OBI != nil:
		d.OBI = *in.OBI
	case g.imbalance != nil:
		d.OBI = g.imbalance.DepthImbalance(ctx)
	}

	if math.Abs(d.Diff) < d.SafetyMargin {
		d.Outcome = OutcomeSafetyMargin
		return d
	}

	switch {
	case d.EdgeUp > t.MinEdge:
		d.Direction = domain.DirectionUp
	case d.EdgeDown > t.MinEdge:
		d.Direction = domain.DirectionDown
	default:
		d.Outcome = OutcomeNoEdge
		return d
	}
	d.OBIConfirms = obiConfirms(d.Direction, d.OBI, t.OBIThreshold)

	d.Liquidity = g.liquidity(ctx, in, d.Direction)
	if d.Liquidity.AskDepth < t.MinAskDepthUSD {
		d.Outcome = OutcomeThinBook
		return d
	}
	ratio := d.Liquidity.Ratio()
	if d.Direction == domain.DirectionUp && ratio < t.MinUpLiquidityRatio {
		d.Outcome = OutcomeWall
		return d
	}
	if d.Direction == domain.DirectionDown && ratio > t.MaxDownLiquidityRatio {
		d.Outcome = OutcomeWall
		return d
	}

	key := dedupKey(in.Window.Slug, d.Direction)
	if _, seen := g.attempted[key]; seen {
		d.Outcome = OutcomeDuplicate
		return d
	}
	g.attempted[key] = struct{}{}

	if !t.ExecutionEnabled {
		d.Outcome = OutcomeSignal
		return d
	}

	d.EntryPrice = domain.MakerEntryPrice(in.Book.Side(d.Direction).BestAsk)
	d.Outcome = OutcomeEnter
	return d
}

func (g *Gatekeeper) liquidity(ctx context.Context, in DecisionInput, dir domain.Direction) domain.Liquidity {
	if dir == domain.DirectionUp && in.UpLiquidity != nil {
		return *in.UpLiquidity
	}
	return FetchLiquidity(ctx, g.depth, in.Window.TokenFor(dir))
}

// FetchLiquidity lee el book REST del token y calcula la profundidad en banda.
// Ante cualquier error devuelve liquidez vacía, que nunca pasa el filtro.
func FetchLiquidity(ctx context.Context, depth ports.DepthProvider, tokenID string) domain.Liquidity {
	if depth == nil || tokenID == "" {
		return domain.EmptyLiquidity()
	}
	ob, err := depth.FetchOrderBook(ctx, tokenID)
	if err != nil {
		slog.Debug("depth fetch failed", "token", tokenID, "err", err)
		return domain.EmptyLiquidity()
	}
	return ob.BandLiquidity(domain.DepthBand)
}

// obiConfirms indica si el desequilibrio del book de referencia acompaña la
// dirección. Solo se usa como diagnóstico.
func obiConfirms(d domain.Direction, obi, threshold float64) bool {
	if threshold <= 0 {
		return false
	}
	if d == domain.DirectionUp {
		return obi >= threshold
	}
	return obi <= 1/threshold
}
