package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/whalebot/internal/domain"
)

// UpsertWallet inserta o actualiza el perfil de una wallet.
// first_seen no se sobreescribe en ON CONFLICT.
func (s *SQLiteStorage) UpsertWallet(ctx context.Context, w domain.WhaleWallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whale_wallets (wallet_address, win_rate, total_volume, profit_loss,
		                           first_seen, last_seen, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(wallet_address) DO UPDATE SET
			win_rate     = excluded.win_rate,
			total_volume = excluded.total_volume,
			profit_loss  = excluded.profit_loss,
			last_seen    = excluded.last_seen,
			trade_count  = excluded.trade_count`,
		w.Address, w.WinRate, w.TotalVolume, w.ProfitLoss,
		formatTime(w.FirstSeen), formatTime(w.LastSeen), w.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertWallet: %s: %w", w.Address, err)
	}
	return nil
}

// LoadWallets devuelve todas las wallets registradas.
func (s *SQLiteStorage) LoadWallets(ctx context.Context) ([]domain.WhaleWallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wallet_address, win_rate, total_volume, profit_loss, first_seen, last_seen, trade_count
		FROM whale_wallets ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadWallets: query: %w", err)
	}
	defer rows.Close()

	var wallets []domain.WhaleWallet
	for rows.Next() {
		var w domain.WhaleWallet
		var first, last string
		if err := rows.Scan(&w.Address, &w.WinRate, &w.TotalVolume, &w.ProfitLoss, &first, &last, &w.TradeCount); err != nil {
			return nil, fmt.Errorf("storage.LoadWallets: scan: %w", err)
		}
		w.FirstSeen = parseTime(first)
		w.LastSeen = parseTime(last)
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// SaveWhaleTrade registra un trade ballena detectado.
func (s *SQLiteStorage) SaveWhaleTrade(ctx context.Context, t domain.WhaleTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whale_trades (id, timestamp, market_slug, market_title, wallet_address, side,
		                          outcome, token_id, price, size, usd_value, tx_hash,
		                          trader_win_rate, ai_validated, copied)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, formatTime(t.DetectedAt), t.MarketSlug, t.MarketTitle, t.Wallet, string(t.Side),
		t.Outcome, t.TokenID, t.Price, t.Size, t.USDValue, t.TxHash,
		t.TraderWinRate, boolInt(t.AIValidated), boolInt(t.Copied),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveWhaleTrade: %w", err)
	}
	return nil
}

// MarkWhaleTrade actualiza el resultado de la evaluación de copia.
func (s *SQLiteStorage) MarkWhaleTrade(ctx context.Context, id string, aiValidated, copied bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE whale_trades SET ai_validated = ?, copied = ? WHERE id = ?`,
		boolInt(aiValidated), boolInt(copied), id,
	)
	if err != nil {
		return fmt.Errorf("storage.MarkWhaleTrade: %s: %w", id, err)
	}
	return nil
}

// RecentWhaleTrades devuelve los últimos limit trades, más recientes primero.
func (s *SQLiteStorage) RecentWhaleTrades(ctx context.Context, limit int) ([]domain.WhaleTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, market_slug, COALESCE(market_title, ''), wallet_address, side,
		       COALESCE(outcome, ''), COALESCE(token_id, ''), price, size, usd_value,
		       COALESCE(tx_hash, ''), trader_win_rate, ai_validated, copied
		FROM whale_trades ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentWhaleTrades: query: %w", err)
	}
	defer rows.Close()

	var trades []domain.WhaleTrade
	for rows.Next() {
		var t domain.WhaleTrade
		var ts, side string
		var validated, copied int
		if err := rows.Scan(&t.ID, &ts, &t.MarketSlug, &t.MarketTitle, &t.Wallet, &side,
			&t.Outcome, &t.TokenID, &t.Price, &t.Size, &t.USDValue,
			&t.TxHash, &t.TraderWinRate, &validated, &copied); err != nil {
			return nil, fmt.Errorf("storage.RecentWhaleTrades: scan: %w", err)
		}
		t.DetectedAt = parseTime(ts)
		t.Side = domain.Side(side)
		t.AIValidated = validated == 1
		t.Copied = copied == 1
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveCopySignal añade una señal de copia. Las señales nunca se modifican.
func (s *SQLiteStorage) SaveCopySignal(ctx context.Context, sig domain.CopySignal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_signals (id, timestamp, market_slug, market_title, whale_wallet, whale_side,
		                          whale_size, our_side, our_size, ai_consensus, executed, order_id, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, formatTime(sig.Timestamp), sig.MarketSlug, sig.MarketTitle, sig.WhaleWallet,
		string(sig.WhaleSide), sig.WhaleSize, string(sig.OurSide), sig.OurSize,
		sig.Consensus, boolInt(sig.Executed), sig.OrderID, string(sig.Outcome),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCopySignal: %w", err)
	}
	return nil
}

// CopySignals devuelve las últimas limit señales, más recientes primero.
func (s *SQLiteStorage) CopySignals(ctx context.Context, limit int) ([]domain.CopySignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, market_slug, COALESCE(market_title, ''), whale_wallet, whale_side,
		       whale_size, our_side, our_size, ai_consensus, executed, COALESCE(order_id, ''), outcome
		FROM copy_signals ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.CopySignals: query: %w", err)
	}
	defer rows.Close()

	var signals []domain.CopySignal
	for rows.Next() {
		var sig domain.CopySignal
		var ts, whaleSide, ourSide, outcome string
		var executed int
		if err := rows.Scan(&sig.ID, &ts, &sig.MarketSlug, &sig.MarketTitle, &sig.WhaleWallet, &whaleSide,
			&sig.WhaleSize, &ourSide, &sig.OurSize, &sig.Consensus, &executed, &sig.OrderID, &outcome); err != nil {
			return nil, fmt.Errorf("storage.CopySignals: scan: %w", err)
		}
		sig.Timestamp = parseTime(ts)
		sig.WhaleSide = domain.Side(whaleSide)
		sig.OurSide = domain.Side(ourSide)
		sig.Executed = executed == 1
		sig.Outcome = domain.SignalOutcome(outcome)
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}
