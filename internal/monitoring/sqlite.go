package monitoring

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// IncidentStore keeps incidents in a SQLite database.
type IncidentStore struct {
	db *sql.DB
}

var _ Reporter = (*IncidentStore)(nil)

// NewIncidentStore opens (or creates) the database at dbPath.
func NewIncidentStore(dbPath string) (*IncidentStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &IncidentStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *IncidentStore) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			err_type TEXT NOT NULL,
			message TEXT NOT NULL,
			developer_message TEXT,
			debug_message TEXT,
			status INTEGER NOT NULL,
			url TEXT,
			method TEXT,
			ip TEXT,
			sid TEXT,
			request_id TEXT,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_created ON incidents(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_type ON incidents(err_type)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Report stores inc.
func (s *IncidentStore) Report(ctx context.Context, inc Incident) error {
	if inc.ID == "" || inc.Time.IsZero() {
		fresh := NewIncident()
		if inc.ID == "" {
			inc.ID = fresh.ID
		}
		if inc.Time.IsZero() {
			inc.Time = fresh.Time
		}
	}

	query := `INSERT INTO incidents (id, created_at, err_type, message, developer_message,
		debug_message, status, url, method, ip, sid, request_id, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		inc.ID, inc.Time, inc.Type, inc.Message, inc.DeveloperMessage,
		inc.DebugMessage, inc.Status, inc.URL, inc.Method, inc.IP, inc.SessionID,
		inc.RequestID, inc.Source)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}
	return nil
}

// Recent returns up to limit incidents, newest first.
func (s *IncidentStore) Recent(ctx context.Context, limit int) ([]Incident, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, created_at, err_type, message, developer_message, debug_message,
		status, url, method, ip, sid, request_id, source
		FROM incidents ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []Incident
	for rows.Next() {
		var inc Incident
		var created time.Time
		var developer, debug, url, method, ip, sid, requestID, source sql.NullString
		if err := rows.Scan(&inc.ID, &created, &inc.Type, &inc.Message, &developer, &debug,
			&inc.Status, &url, &method, &ip, &sid, &requestID, &source); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.Time = created.UTC()
		inc.DeveloperMessage = developer.String
		inc.DebugMessage = debug.String
		inc.URL = url.String
		inc.Method = method.String
		inc.IP = ip.String
		inc.SessionID = sid.String
		inc.RequestID = requestID.String
		inc.Source = source.String
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// Close closes the database.
func (s *IncidentStore) Close() error {
	return s.db.Close()
}
