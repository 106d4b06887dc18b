package storage

// sqlite.go: persistencia del bot en un único archivo SQLite (pure Go, sin CGo).
//
// Tablas:
//   - trades / positions / balance_history: el ledger de paper trading.
//     positions solo contiene posiciones abiertas; la fila se borra al cerrar.
//     balance_history es append-only.
//   - whale_wallets / whale_trades / copy_signals: registro de ballenas y
//     auditoría de las decisiones de copia.
//   - Prune al arrancar: whale_trades no copiados con más de 30 días.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id     TEXT    NOT NULL UNIQUE,
    timestamp    TEXT    NOT NULL,
    market_slug  TEXT    NOT NULL,
    market_title TEXT,
    side         TEXT    NOT NULL,
    token_id     TEXT    NOT NULL,
    price        REAL    NOT NULL,
    size         REAL    NOT NULL,
    usd_value    REAL    NOT NULL,
    order_type   TEXT    NOT NULL,
    status       TEXT    NOT NULL DEFAULT 'OPEN',
    pnl          REAL    NOT NULL DEFAULT 0,
    notes        TEXT
);

-- Una fila por par (market, token) abierto
CREATE TABLE IF NOT EXISTS positions (
    market_slug    TEXT NOT NULL,
    token_id       TEXT NOT NULL,
    market_title   TEXT,
    side           TEXT NOT NULL,
    entry_price    REAL NOT NULL,
    current_price  REAL NOT NULL,
    shares         REAL NOT NULL,
    entry_value    REAL NOT NULL,
    current_value  REAL NOT NULL,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    opened_at      TEXT NOT NULL,
    PRIMARY KEY (market_slug, token_id)
);

CREATE TABLE IF NOT EXISTS balance_history (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    balance   REAL NOT NULL,
    total_pnl REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS whale_wallets (
    wallet_address TEXT PRIMARY KEY,
    win_rate       REAL    NOT NULL DEFAULT 0,
    total_volume   REAL    NOT NULL DEFAULT 0,
    profit_loss    REAL    NOT NULL DEFAULT 0,
    first_seen     TEXT    NOT NULL,
    last_seen      TEXT    NOT NULL,
    trade_count    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS whale_trades (
    id              TEXT PRIMARY KEY,
    timestamp       TEXT    NOT NULL,
    market_slug     TEXT    NOT NULL,
    market_title    TEXT,
    wallet_address  TEXT    NOT NULL,
    side            TEXT    NOT NULL,
    outcome         TEXT,
    token_id        TEXT,
    price           REAL    NOT NULL,
    size            REAL    NOT NULL,
    usd_value       REAL    NOT NULL,
    tx_hash         TEXT,
    trader_win_rate REAL    NOT NULL DEFAULT 0,
    ai_validated    INTEGER NOT NULL DEFAULT 0,
    copied          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS copy_signals (
    id           TEXT PRIMARY KEY,
    timestamp    TEXT    NOT NULL,
    market_slug  TEXT    NOT NULL,
    market_title TEXT,
    whale_wallet TEXT    NOT NULL,
    whale_side   TEXT    NOT NULL,
    whale_size   REAL    NOT NULL,
    our_side     TEXT    NOT NULL,
    our_size     REAL    NOT NULL,
    ai_consensus REAL    NOT NULL DEFAULT 0,
    executed     INTEGER NOT NULL DEFAULT 0,
    order_id     TEXT,
    outcome      TEXT    NOT NULL DEFAULT 'PENDING'
);

CREATE INDEX IF NOT EXISTS idx_trades_pair       ON trades(market_slug, token_id, status);
CREATE INDEX IF NOT EXISTS idx_whale_trades_at   ON whale_trades(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_whale_trades_addr ON whale_trades(wallet_address);
CREATE INDEX IF NOT EXISTS idx_copy_signals_at   ON copy_signals(timestamp DESC);
`

const retentionWhaleTrades = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.LedgerStorage, ports.WalletStorage,
// ports.WhaleTradeStorage y ports.SignalStorage.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
// ":memory:" sirve para tests: con una sola conexión la base vive mientras no se cierre.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld borra whale trades antiguos que nunca se copiaron. Best-effort.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := formatTime(time.Now().Add(-retentionWhaleTrades))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM whale_trades WHERE copied = 0 AND timestamp < ?`, cutoff)
	if err != nil {
		slog.Debug("storage: prune whale trades failed", "err", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("storage: pruned old whale trades", "rows", n)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
