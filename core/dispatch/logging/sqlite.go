package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists logs to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS dispatch_logs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        cycle_id TEXT,
        trigger_name TEXT,
        record TEXT
    )`,
		`CREATE TABLE IF NOT EXISTS dispatch_decisions (
        log_id INTEGER,
        phase TEXT,
        action TEXT,
        order_name TEXT,
        vehicle TEXT
    )`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the record and its decisions in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, rec LogRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO dispatch_logs (ts, cycle_id, trigger_name, record) VALUES (?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.CycleID, rec.Trigger, string(b))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, d := range rec.Decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dispatch_decisions (log_id, phase, action, order_name, vehicle) VALUES (?, ?, ?, ?, ?)`,
			id, d.Phase, d.Action, d.Order, d.Vehicle); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns records matching q ordered by time.
func (s *SQLiteStore) Query(ctx context.Context, q LogQuery) ([]LogRecord, error) {
	var args []any
	query := `SELECT record FROM dispatch_logs l WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.VehicleID != "" || q.OrderID != "" || q.Phase != "" {
		sub := `SELECT 1 FROM dispatch_decisions d WHERE d.log_id = l.id`
		if q.VehicleID != "" {
			sub += ` AND d.vehicle = ?`
			args = append(args, q.VehicleID)
		}
		if q.OrderID != "" {
			sub += ` AND d.order_name = ?`
			args = append(args, q.OrderID)
		}
		if q.Phase != "" {
			sub += ` AND d.phase = ?`
			args = append(args, q.Phase)
		}
		query += ` AND EXISTS (` + sub + `)`
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []LogRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r LogRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
