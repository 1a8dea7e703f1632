package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/patientcheck/patientcheck/internal/model"
)

// Session runs the lookups of a single check on one pooled connection.
// It is not safe for concurrent use. Release must be called exactly once.
type Session struct {
	conn *pgxpool.Conn
}

// Acquire takes a connection from the pool for the duration of one check.
func (r *Repository) Acquire(ctx context.Context) (*Session, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Release returns the connection to the pool.
func (s *Session) Release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

// ResolveNumber returns the distinct record identifiers registered under number.
// An unknown number yields an empty slice.
func (s *Session) ResolveNumber(ctx context.Context, number model.ExternalNumber) ([]string, error) {
	query := `
		SELECT DISTINCT pid
		FROM patientnumber
		WHERE patientid = $1 AND numbertype = $2
	`

	rows, err := s.conn.Query(ctx, query, number.Value, number.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve number: %w", err)
	}
	defer rows.Close()

	pids := make([]string, 0, 1)
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return nil, fmt.Errorf("failed to scan pid: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pids: %w", err)
	}

	return pids, nil
}

// Memberships returns every membership of pids in program, ended or not.
func (s *Session) Memberships(ctx context.Context, pids []string, program string) ([]model.Membership, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	query := `
		SELECT pid, programname, fromtime, totime
		FROM programmembership
		WHERE pid = ANY($1) AND programname = $2
	`

	rows, err := s.conn.Query(ctx, query, pq.Array(pids), program)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.PID, &m.ProgramName, &m.FromTime, &m.ToTime); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return memberships, nil
}

// HasActiveMembership reports whether any of pids holds an open membership in program.
func (s *Session) HasActiveMembership(ctx context.Context, pids []string, program string) (bool, error) {
	memberships, err := s.Memberships(ctx, pids, program)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// Records returns the identity records for pids.
func (s *Session) Records(ctx context.Context, pids []string) ([]model.PatientRecord, error) {
	if len(pids) == 0 {
		return nil, nil
	}

	query := `
		SELECT pid, birthtime
		FROM patient
		WHERE pid = ANY($1)
	`

	rows, err := s.conn.Query(ctx, query, pq.Array(pids))
	if err != nil {
		return nil, fmt.Errorf("failed to query patients: %w", err)
	}
	defer rows.Close()

	var records []model.PatientRecord
	for rows.Next() {
		var rec model.PatientRecord
		if err := rows.Scan(&rec.PID, &rec.BirthTime); err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}

	return records, nil
}

// BirthDates returns the recorded birth dates of pids. Records without one are skipped.
func (s *Session) BirthDates(ctx context.Context, pids []string) ([]model.Date, error) {
	records, err := s.Records(ctx, pids)
	if err != nil {
		return nil, err
	}

	dates := make([]model.Date, 0, len(records))
	for _, rec := range records {
		if d, ok := rec.BirthDate(); ok {
			dates = append(dates, d)
		}
	}
	return dates, nil
}
