// Package instruments provides the master-contract registry. Contract
// files downloaded from the brokerage are imported into a local SQLite
// database and queried by instrument name, trading symbol or token.
package instruments

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rtpalgo/terminal/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Contract is one master-contract row.
type Contract struct {
	Exchange      string
	Token         int64
	Symbol        string
	TradingSymbol string
	Name          string
	LotSize       int
}

// Store is the SQLite-backed contract registry.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the registry at path. Use ":memory:" for an
// ephemeral registry.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS contracts (
			exchange TEXT NOT NULL,
			token INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			trading_symbol TEXT NOT NULL,
			name TEXT NOT NULL,
			lot_size INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (exchange, token)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_name ON contracts(name)`,
		`CREATE INDEX IF NOT EXISTS idx_contracts_trading_symbol ON contracts(trading_symbol)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// ImportCSV replaces the contracts of one exchange with the rows read
// from r. Expected header: Token,Symbol,Trading Symbol,Instrument Name,
// Lot Size (column order taken from the header, case-insensitive).
func (s *Store) ImportCSV(ctx context.Context, exchange string, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"token", "symbol", "trading symbol", "instrument name"} {
		if _, ok := col[required]; !ok {
			return 0, fmt.Errorf("contract file for %s missing column %q", exchange, required)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contracts WHERE exchange = ?`, exchange); err != nil {
		return 0, fmt.Errorf("clear %s contracts: %w", exchange, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO contracts
		(exchange, token, symbol, trading_symbol, name, lot_size)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	count := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read contract row: %w", err)
		}

		token, err := strconv.ParseInt(field(rec, "token"), 10, 64)
		if err != nil {
			// Malformed token rows exist in downloaded masters; skip them.
			continue
		}

		lotSize := 1
		if v := field(rec, "lot size"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				lotSize = n
			}
		}

		if _, err := stmt.ExecContext(ctx, exchange, token,
			field(rec, "symbol"), field(rec, "trading symbol"),
			field(rec, "instrument name"), lotSize); err != nil {
			return 0, fmt.Errorf("insert contract: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return count, nil
}

// ResolveToken returns the instrument token for an instrument name.
func (s *Store) ResolveToken(ctx context.Context, name string) (int64, error) {
	c, err := s.byName(ctx, name)
	if err != nil {
		return 0, err
	}
	return c.Token, nil
}

// ByName returns the full contract for an instrument name.
func (s *Store) ByName(ctx context.Context, name string) (Contract, error) {
	return s.byName(ctx, name)
}

func (s *Store) byName(ctx context.Context, name string) (Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT exchange, token, symbol,
		trading_symbol, name, lot_size FROM contracts WHERE name = ? LIMIT 1`, name)
	return scanContract(row, name)
}

// ByTradingSymbol returns the contract for a trading symbol.
func (s *Store) ByTradingSymbol(ctx context.Context, symbol string) (Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT exchange, token, symbol,
		trading_symbol, name, lot_size FROM contracts WHERE trading_symbol = ? LIMIT 1`, symbol)
	return scanContract(row, symbol)
}

// Exists reports whether an instrument name resolves.
func (s *Store) Exists(ctx context.Context, name string) bool {
	_, err := s.byName(ctx, name)
	return err == nil
}

// Count returns the number of loaded contracts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contracts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contracts: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanContract(row *sql.Row, key string) (Contract, error) {
	var c Contract
	err := row.Scan(&c.Exchange, &c.Token, &c.Symbol, &c.TradingSymbol, &c.Name, &c.LotSize)
	if err == sql.ErrNoRows {
		return Contract{}, fmt.Errorf("%q: %w", key, types.ErrUnknownInstrument)
	}
	if err != nil {
		return Contract{}, fmt.Errorf("scan contract: %w", err)
	}
	return c, nil
}
