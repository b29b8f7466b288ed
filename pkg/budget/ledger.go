package budget

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Ledger is the durable store for daily spend totals, keyed by calendar
// date (YYYY-MM-DD). Add must be an atomic read-modify-write so that
// concurrent tasks posting costs never lose updates.
type Ledger interface {
	// Add atomically adds cost to the given day and returns the new total.
	Add(day string, cost float64) (float64, error)

	// Total returns the accumulated cost for the given day.
	Total(day string) (float64, error)

	// Close releases the underlying store.
	Close() error
}

// SQLiteLedger persists daily totals in a SQLite database. The upsert in Add
// performs the read-modify-write inside the engine, so multiple processes
// sharing the file cannot clobber each other.
type SQLiteLedger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS daily_costs (
	day  TEXT PRIMARY KEY,
	cost REAL NOT NULL DEFAULT 0
);`

// NewSQLiteLedger opens (creating if needed) the ledger database at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open budget ledger: %w", err)
	}

	// One connection so the busy_timeout pragma governs every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure budget ledger: %w", err)
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate budget ledger: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

// Add atomically adds cost to the given day and returns the new total.
func (l *SQLiteLedger) Add(day string, cost float64) (float64, error) {
	row := l.db.QueryRow(`
		INSERT INTO daily_costs (day, cost) VALUES (?, ?)
		ON CONFLICT(day) DO UPDATE SET cost = cost + excluded.cost
		RETURNING cost
	`, day, cost)

	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to post cost to ledger: %w", err)
	}
	return total, nil
}

// Total returns the accumulated cost for the given day.
func (l *SQLiteLedger) Total(day string) (float64, error) {
	row := l.db.QueryRow(`SELECT cost FROM daily_costs WHERE day = ?`, day)

	var total float64
	if err := row.Scan(&total); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read ledger total: %w", err)
	}
	return total, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// MemoryLedger is an in-process Ledger for tests and ephemeral runs.
type MemoryLedger struct {
	mu     sync.Mutex
	totals map[string]float64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{totals: make(map[string]float64)}
}

// Add atomically adds cost to the given day and returns the new total.
func (l *MemoryLedger) Add(day string, cost float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals[day] += cost
	return l.totals[day], nil
}

// Total returns the accumulated cost for the given day.
func (l *MemoryLedger) Total(day string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[day], nil
}

// Close is a no-op.
func (l *MemoryLedger) Close() error {
	return nil
}
