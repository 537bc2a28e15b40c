// Package state keeps an audit history of sync cycles in sqlite.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/mirrorsync/internal/domain"
)

// Manager handles cycle history persistence
type Manager struct {
	db *sql.DB
}

// CycleRecord represents a single sync cycle
type CycleRecord struct {
	ID          int64
	Source      string
	Replica     string
	StartTime   time.Time
	EndTime     time.Time
	Status      domain.CycleStatus
	Created     int
	Copied      int
	Replaced    int
	Deleted     int
	Errors      int
	BytesCopied int64
	Error       string
}

// NewCycleRecord summarises a finished cycle. cycleErr is the error that
// ended the cycle early, if any.
func NewCycleRecord(source, replica string, report *domain.CycleReport, cycleErr error) CycleRecord {
	record := CycleRecord{
		Source:      source,
		Replica:     replica,
		StartTime:   report.Started,
		EndTime:     report.Finished,
		Status:      report.Status(),
		Created:     report.Count(domain.ActionMkdir),
		Copied:      report.Count(domain.ActionCopy),
		Replaced:    report.Count(domain.ActionReplace),
		Deleted:     report.Count(domain.ActionDeleteFile) + report.Count(domain.ActionDeleteDir),
		Errors:      len(report.Errors),
		BytesCopied: report.BytesCopied,
	}
	if cycleErr != nil {
		record.Status = domain.CycleFailed
		if domain.IsCancellation(cycleErr) {
			record.Status = domain.CycleCancelled
		}
		record.Error = cycleErr.Error()
	}
	return record
}

// NewManager opens (creating if needed) the history database at dbPath
func NewManager(dbPath string) (*Manager, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL mode for better concurrency and set busy timeout
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	manager := &Manager{db: db}

	// Initialize schema
	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

// initSchema creates the database schema
func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		replica TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		created INTEGER DEFAULT 0,
		copied INTEGER DEFAULT 0,
		replaced INTEGER DEFAULT 0,
		deleted INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		bytes_copied INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_replica_time ON cycles(replica, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveCycle records a sync cycle
func (m *Manager) SaveCycle(record CycleRecord) error {
	if !record.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", record.Status)
	}

	query := `
		INSERT INTO cycles (source, replica, start_time, end_time, status,
			created, copied, replaced, deleted, errors, bytes_copied, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.Exec(query,
		record.Source,
		record.Replica,
		record.StartTime,
		record.EndTime,
		string(record.Status),
		record.Created,
		record.Copied,
		record.Replaced,
		record.Deleted,
		record.Errors,
		record.BytesCopied,
		record.Error,
	)

	if err != nil {
		return fmt.Errorf("failed to save cycle record: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, source, replica, start_time, end_time, status,
		created, copied, replaced, deleted, errors, bytes_copied, error
	FROM cycles
`

// GetHistory retrieves cycle history for a replica, newest first
func (m *Manager) GetHistory(replica string, limit int) ([]CycleRecord, error) {
	// Validate limit
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	return m.query(selectColumns+`WHERE replica = ? ORDER BY start_time DESC, id DESC LIMIT ?`, replica, limit)
}

// GetAllHistory retrieves cycle history for every replica, newest first
func (m *Manager) GetAllHistory(limit int) ([]CycleRecord, error) {
	// Validate limit
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	return m.query(selectColumns+`ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
}

// GetLastSuccess retrieves the last fully successful cycle for a replica
func (m *Manager) GetLastSuccess(replica string) (*CycleRecord, error) {
	records, err := m.query(selectColumns+`WHERE replica = ? AND status = ? ORDER BY start_time DESC, id DESC LIMIT 1`,
		replica, string(domain.CycleSuccess))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil // No successful cycle found
	}
	return &records[0], nil
}

func (m *Manager) query(query string, args ...any) ([]CycleRecord, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		var record CycleRecord
		var status string
		var errText sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.Source,
			&record.Replica,
			&record.StartTime,
			&record.EndTime,
			&status,
			&record.Created,
			&record.Copied,
			&record.Replaced,
			&record.Deleted,
			&record.Errors,
			&record.BytesCopied,
			&errText,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.Status = domain.CycleStatus(status)
		record.Error = errText.String
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
