package storage

// sqlite.go: espejo consultable del trade log.
//
// Estrategia:
//   - `trade_events`: una fila por TradeEvent, en el mismo orden que el JSONL.
//     El JSONL es la fuente de verdad; esta tabla existe para el resumen de
//     rendimiento y el comando `report`.
//   - Prune automático al arrancar: eventos de más de 90 días.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    time           DATETIME NOT NULL,
    type           TEXT     NOT NULL,
    window_slug    TEXT     NOT NULL,
    condition_id   TEXT     NOT NULL DEFAULT '',
    position_id    TEXT     NOT NULL,
    direction      TEXT     NOT NULL,
    entry_price    REAL     NOT NULL DEFAULT 0,
    exit_price     REAL,
    size           REAL     NOT NULL DEFAULT 0,
    shares         REAL     NOT NULL DEFAULT 0,
    pnl            REAL,
    result         TEXT     NOT NULL DEFAULT '',
    strike         REAL     NOT NULL DEFAULT 0,
    fee            REAL     NOT NULL DEFAULT 0,
    mode           TEXT     NOT NULL,
    poly_spread    REAL,
    poly_bid_depth REAL,
    poly_ask_depth REAL,
    obi            REAL
);

CREATE INDEX IF NOT EXISTS idx_events_time     ON trade_events(time);
CREATE INDEX IF NOT EXISTS idx_events_position ON trade_events(position_id);
`

const retentionEvents = 90 * 24 * time.Hour

const eventColumns = `time, type, window_slug, condition_id, position_id, direction,
	entry_price, exit_price, size, shares, pnl, result, strike, fee, mode,
	poly_spread, poly_bid_depth, poly_ask_depth, obi`

// SQLiteStore implementa ports.TradeStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada,
// aplica el schema y limpia eventos antiguos.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	if _, err := db.Exec(redemptionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply redemption schema: %w", err)
	}

	s := &SQLiteStore{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Write inserta un evento. Lo llama el drain de la cola, nunca el loop.
func (s *SQLiteStore) Write(ctx context.Context, ev domain.TradeEvent) error {
	var spread, bidDepth, askDepth, obi *float64
	if d := ev.Diagnostics; d != nil {
		spread, bidDepth, askDepth, obi = &d.PolySpread, &d.PolyBidDepth, &d.PolyAskDepth, &d.OBI
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.UTC(), ev.Type, ev.Window, ev.ConditionID, ev.PositionID, string(ev.Direction),
		ev.EntryPrice, ev.ExitPrice, ev.Size, ev.Shares, ev.PnL, ev.Result, ev.Strike, ev.Fee, string(ev.Mode),
		spread, bidDepth, askDepth, obi,
	)
	if err != nil {
		return fmt.Errorf("storage.Write: insert %s: %w", ev.PositionID, err)
	}
	return nil
}

// RecentClosed devuelve los últimos n eventos con pnl, del más antiguo al más nuevo.
func (s *SQLiteStore) RecentClosed(ctx context.Context, n int) ([]domain.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM trade_events
		WHERE pnl IS NOT NULL
		ORDER BY id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentClosed: query: %w", err)
	}
	defer rows.Close()

	evs, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentClosed: %w", err)
	}
	// más antiguo primero
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
	return evs, nil
}

// Events devuelve los eventos cuyo time está en [from, to], en orden de escritura.
func (s *SQLiteStore) Events(ctx context.Context, from, to time.Time) ([]domain.TradeEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM trade_events
		WHERE time BETWEEN ? AND ?
		ORDER BY id ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage.Events: query: %w", err)
	}
	defer rows.Close()

	evs, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("storage.Events: %w", err)
	}
	return evs, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func scanEvents(rows *sql.Rows) ([]domain.TradeEvent, error) {
	var evs []domain.TradeEvent
	for rows.Next() {
		var (
			ev                              domain.TradeEvent
			at                              time.Time
			direction, mode                 string
			exit, pnl                       sql.NullFloat64
			spread, bidDepth, askDepth, obi sql.NullFloat64
		)
		if err := rows.Scan(
			&at, &ev.Type, &ev.Window, &ev.ConditionID, &ev.PositionID, &direction,
			&ev.EntryPrice, &exit, &ev.Size, &ev.Shares, &pnl, &ev.Result, &ev.Strike, &ev.Fee, &mode,
			&spread, &bidDepth, &askDepth, &obi,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ev.Time = at.UTC()
		ev.Direction = domain.Direction(direction)
		ev.Mode = domain.Mode(mode)
		if exit.Valid {
			v := exit.Float64
			ev.ExitPrice = &v
		}
		if pnl.Valid {
			v := pnl.Float64
			ev.PnL = &v
		}
		if spread.Valid {
			ev.Diagnostics = &domain.Diagnostics{
				PolySpread:   spread.Float64,
				PolyBidDepth: bidDepth.Float64,
				PolyAskDepth: askDepth.Float64,
				OBI:          obi.Float64,
			}
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStore) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionEvents)
	s.db.ExecContext(ctx, `DELETE FROM trade_events WHERE time < ?`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM redemptions WHERE executed_at < ?`, cutoff)
}
