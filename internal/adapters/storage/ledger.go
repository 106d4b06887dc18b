package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// CommitFill writes one ledger fill in a single transaction.
func (s *SQLiteStorage) CommitFill(ctx context.Context, m domain.LedgerMutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.CommitFill: begin: %w", err)
	}
	defer tx.Rollback()

	t := m.Trade
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades (trade_id, timestamp, market_slug, market_title, side, token_id,
		                    price, size, usd_value, order_type, status, pnl, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, formatTime(t.Timestamp), t.MarketSlug, t.MarketTitle, string(t.Side), t.TokenID,
		t.Price, t.Size, t.USDValue, string(t.OrderType), string(t.Status), t.PnL, t.Notes,
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("storage.CommitFill: insert trade %s: %w: %w", t.ID, domain.ErrDuplicateTradeID, err)
		}
		return fmt.Errorf("storage.CommitFill: insert trade %s: %w", t.ID, err)
	}

	if len(m.ClosedTrades) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE trades SET status = ?, pnl = ? WHERE trade_id = ? AND status = 'OPEN'`)
		if err != nil {
			return fmt.Errorf("storage.CommitFill: prepare close: %w", err)
		}
		defer stmt.Close()

		for _, c := range m.ClosedTrades {
			res, err := stmt.ExecContext(ctx, string(c.Status), c.PnL, c.ID)
			if err != nil {
				return fmt.Errorf("storage.CommitFill: close %s: %w", c.ID, err)
			}
			if n, _ := res.RowsAffected(); n != 1 {
				return fmt.Errorf("storage.CommitFill: close %s: trade not open", c.ID)
			}
		}
	}

	if p := m.UpsertPosition; p != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (market_slug, token_id, market_title, side, entry_price, current_price,
			                       shares, entry_value, current_value, unrealized_pnl, opened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(market_slug, token_id) DO UPDATE SET
				market_title   = excluded.market_title,
				entry_price    = excluded.entry_price,
				current_price  = excluded.current_price,
				shares         = excluded.shares,
				entry_value    = excluded.entry_value,
				current_value  = excluded.current_value,
				unrealized_pnl = excluded.unrealized_pnl`,
			p.MarketSlug, p.TokenID, p.MarketTitle, string(p.Side), p.EntryPrice, p.CurrentPrice,
			p.Shares, p.EntryValue, p.CurrentValue, p.UnrealizedPnL, formatTime(p.OpenedAt),
		); err != nil {
			return fmt.Errorf("storage.CommitFill: upsert position: %w", err)
		}
	}

	if m.DeletePosition != "" {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM positions WHERE market_slug = ? AND token_id = ?`,
			m.Trade.MarketSlug, m.Trade.TokenID,
		); err != nil {
			return fmt.Errorf("storage.CommitFill: delete position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.CommitFill: commit: %w", err)
	}
	return nil
}

// AppendSnapshot adds a row to balance_history.
func (s *SQLiteStorage) AppendSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balance_history (timestamp, balance, total_pnl) VALUES (?, ?, ?)`,
		formatTime(snap.Timestamp), snap.Balance, snap.TotalPnL,
	)
	if err != nil {
		return fmt.Errorf("storage.AppendSnapshot: %w", err)
	}
	return nil
}

// SavePositions updates the marks of open positions.
func (s *SQLiteStorage) SavePositions(ctx context.Context, positions []domain.Position) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SavePositions: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE positions SET current_price = ?, current_value = ?, unrealized_pnl = ?
		WHERE market_slug = ? AND token_id = ?`)
	if err != nil {
		return fmt.Errorf("storage.SavePositions: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, p.CurrentPrice, p.CurrentValue, p.UnrealizedPnL, p.MarketSlug, p.TokenID); err != nil {
			return fmt.Errorf("storage.SavePositions: %s: %w", p.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SavePositions: commit: %w", err)
	}
	return nil
}

// LoadLedger reads trades, open positions and balance history.
func (s *SQLiteStorage) LoadLedger(ctx context.Context) (domain.LedgerState, error) {
	var state domain.LedgerState

	trades, err := s.queryTrades(ctx)
	if err != nil {
		return state, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	state.Trades = trades

	positions, err := s.OpenPositions(ctx)
	if err != nil {
		return state, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	state.Positions = positions

	snaps, err := s.BalanceHistory(ctx, 0)
	if err != nil {
		return state, fmt.Errorf("storage.LoadLedger: %w", err)
	}
	state.Snapshots = snaps
	return state, nil
}

// OpenPositions returns the persisted open positions, oldest first.
func (s *SQLiteStorage) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_slug, token_id, COALESCE(market_title, ''), side, entry_price, current_price,
		       shares, entry_value, current_value, unrealized_pnl, opened_at
		FROM positions ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var side, openedAt string
		if err := rows.Scan(&p.MarketSlug, &p.TokenID, &p.MarketTitle, &side, &p.EntryPrice, &p.CurrentPrice,
			&p.Shares, &p.EntryValue, &p.CurrentValue, &p.UnrealizedPnL, &openedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = domain.Side(side)
		p.OpenedAt = parseTime(openedAt)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// BalanceHistory returns snapshots oldest first; limit > 0 keeps only the most recent ones.
func (s *SQLiteStorage) BalanceHistory(ctx context.Context, limit int) ([]domain.BalanceSnapshot, error) {
	query := `SELECT timestamp, balance, total_pnl FROM balance_history ORDER BY id`
	args := []any{}
	if limit > 0 {
		query = `SELECT timestamp, balance, total_pnl FROM (
			SELECT id, timestamp, balance, total_pnl FROM balance_history ORDER BY id DESC LIMIT ?
		) ORDER BY id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balance history: %w", err)
	}
	defer rows.Close()

	var snaps []domain.BalanceSnapshot
	for rows.Next() {
		var snap domain.BalanceSnapshot
		var ts string
		if err := rows.Scan(&ts, &snap.Balance, &snap.TotalPnL); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Timestamp = parseTime(ts)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStorage) queryTrades(ctx context.Context) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, timestamp, market_slug, COALESCE(market_title, ''), side, token_id,
		       price, size, usd_value, order_type, status, pnl, COALESCE(notes, '')
		FROM trades ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func scanTrade(rows *sql.Rows) (domain.TradeRecord, error) {
	var t domain.TradeRecord
	var ts, side, orderType, status string
	if err := rows.Scan(&t.ID, &ts, &t.MarketSlug, &t.MarketTitle, &side, &t.TokenID,
		&t.Price, &t.Size, &t.USDValue, &orderType, &status, &t.PnL, &t.Notes); err != nil {
		return t, fmt.Errorf("scan trade: %w", err)
	}
	t.Timestamp = parseTime(ts)
	t.Side = domain.Side(side)
	t.OrderType = domain.OrderType(orderType)
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
