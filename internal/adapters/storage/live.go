package storage

// live.go: SQLite persistence for on-chain redemptions (live mode only).
//
// Tables:
//   redemptions: every relay submission, successful or not

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/updown/internal/domain"
)

const redemptionSchema = `
CREATE TABLE IF NOT EXISTS redemptions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    condition_id    TEXT NOT NULL,
    nonce           INTEGER NOT NULL DEFAULT 0,
    relay_tx_id     TEXT NOT NULL DEFAULT '',
    success         INTEGER NOT NULL DEFAULT 0,
    error           TEXT,
    executed_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS redemptions_condition ON redemptions(condition_id);
`

// SaveRedemption records the outcome of a redemption attempt.
// redeemErr nil means the relay accepted it.
func (s *SQLiteStore) SaveRedemption(ctx context.Context, res domain.RedeemResult, redeemErr error) error {
	executed := res.ExecutedAt
	if executed.IsZero() {
		executed = time.Now()
	}
	var errText sql.NullString
	if redeemErr != nil {
		errText = sql.NullString{String: redeemErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO redemptions (condition_id, nonce, relay_tx_id, success, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		res.ConditionID, int64(res.Nonce), res.RelayTxID, boolToInt(redeemErr == nil), errText, executed.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveRedemption: %w", err)
	}
	return nil
}

// RecentRedemptions returns the last n redemptions, newest first.
func (s *SQLiteStore) RecentRedemptions(ctx context.Context, n int) ([]domain.RedemptionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT condition_id, nonce, relay_tx_id, success, error, executed_at
		FROM redemptions
		ORDER BY id DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentRedemptions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.RedemptionRecord
	for rows.Next() {
		var (
			r       domain.RedemptionRecord
			nonce   int64
			success int
			errText sql.NullString
			at      time.Time
		)
		if err := rows.Scan(&r.ConditionID, &nonce, &r.RelayTxID, &success, &errText, &at); err != nil {
			return nil, fmt.Errorf("storage.RecentRedemptions: scan: %w", err)
		}
		r.Nonce = uint64(nonce)
		r.Success = success == 1
		r.Error = errText.String
		r.ExecutedAt = at.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
