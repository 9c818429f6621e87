package notify

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Reporter escribiendo tablas en texto plano.
type Console struct {
	out io.Writer
	now func() time.Time
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, now: time.Now}
}

// NewConsoleWriter crea un reporter sobre w. Lo usan los tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Report imprime el resumen de rendimiento y la tabla de eventos recientes.
func (c *Console) Report(_ context.Context, s domain.PerformanceSummary, recent []domain.TradeEvent) error {
	now := c.now().Format("15:04:05")

	if s.Trades == 0 {
		fmt.Fprintf(c.out, "[%s] no closed trades yet\n", now)
	} else {
		fmt.Fprintf(c.out, "\n[%s] last %d trades — W:%d L:%d\n", now, s.Trades, s.Wins, s.Losses)
		c.printSummary(s)
	}

	if len(recent) > 0 {
		c.printEvents(recent)
	}
	return nil
}

func (c *Console) printSummary(s domain.PerformanceSummary) {
	pf := fmt.Sprintf("%.2f", s.ProfitFactor)
	if math.IsInf(s.ProfitFactor, 1) {
		pf = "INF"
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Trades", "Win rate", "Profit factor", "Avg win", "Avg loss", "Total PnL")
	table.Append(
		fmt.Sprintf("%d", s.Trades),
		fmt.Sprintf("%.1f%%", s.WinRate*100),
		pf,
		pct(s.AvgWin),
		pct(s.AvgLoss),
		pct(s.TotalPnL),
	)
	table.Render()
}

// printEvents imprime una fila por evento, en el orden recibido.
func (c *Console) printEvents(evs []domain.TradeEvent) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Type", "Window", "Dir", "Entry", "Exit", "PnL", "Result")

	for _, ev := range evs {
		exit, pnl := "-", "-"
		if ev.ExitPrice != nil {
			exit = fmt.Sprintf("%.2f", *ev.ExitPrice)
		}
		if ev.PnL != nil {
			pnl = pct(*ev.PnL)
		}
		table.Append(
			ev.Time.UTC().Format("01-02 15:04:05"),
			ev.Type,
			compactName(ev.Window, 28),
			string(ev.Direction),
			fmt.Sprintf("%.2f", ev.EntryPrice),
			exit,
			pnl,
			ev.Result,
		)
	}
	table.Render()
	fmt.Fprintln(c.out, "  PnL = (exit - entry) / entry | Result solo en settlements")
}

// PrintRedemptions imprime los últimos intentos de redención (modo live).
func (c *Console) PrintRedemptions(recs []domain.RedemptionRecord) {
	fmt.Fprintf(c.out, "\n── REDEMPTIONS (%d) ──\n", len(recs))
	if len(recs) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Executed", "Condition", "Nonce", "Relay tx", "Status")
	for _, r := range recs {
		status := "OK"
		if !r.Success {
			status = "FAILED: " + compactName(r.Error, 40)
		}
		table.Append(
			r.ExecutedAt.UTC().Format("01-02 15:04:05"),
			compactName(r.ConditionID, 14),
			fmt.Sprintf("%d", r.Nonce),
			compactName(r.RelayTxID, 18),
			status,
		)
	}
	table.Render()
}

func pct(x float64) string {
	return fmt.Sprintf("%+.2f%%", x*100)
}

// compactName trunca s a max runas con "..." al final.
func compactName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
