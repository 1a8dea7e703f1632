// Package testutil holds shared helpers for database and cache backed tests.
package testutil

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Scenario data shared by repository, server and end-to-end tests.
const (
	ProgramName    = "RADAR.COHORT.INS"
	NationalIDType = "NI"
	HospitalIDType = "MRN"

	MemberNumber   = "8888888888"
	MemberPID      = "1"
	MemberBirthday = "2000-01-01"

	NonMemberNumber   = "9999999999"
	NonMemberPID      = "2"
	NonMemberBirthday = "2001-01-01"

	// EndedMemberNumber belongs to a record whose membership has an end time.
	EndedMemberNumber   = "7777777777"
	EndedMemberPID      = "3"
	EndedMemberBirthday = "1990-05-05"

	// SharedNumber is registered on two records; only the second is a member.
	SharedNumber    = "5555555555"
	SharedPIDA      = "4"
	SharedPIDB      = "5"
	SharedBirthdayA = "1980-03-03"
	SharedBirthdayB = "1981-04-04"

	// HospitalNumber is only registered under a non-national number type.
	HospitalNumber   = "4444444444"
	HospitalOnlyPID  = "6"
	HospitalBirthday = "1970-07-07"

	UnknownNumber = "6"
)

//go:embed testdata/schema.sql
var schemaSQL string

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema drops and recreates the registry tables.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS programmembership, patientnumber, patient CASCADE`); err != nil {
		return fmt.Errorf("drop registry tables: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create registry tables: %w", err)
	}
	return nil
}

// SeedScenarios inserts the shared scenario records.
func SeedScenarios(ctx context.Context, pool *pgxpool.Pool) error {
	patients := []struct {
		pid      string
		birthday string
	}{
		{MemberPID, MemberBirthday},
		{NonMemberPID, NonMemberBirthday},
		{EndedMemberPID, EndedMemberBirthday},
		{SharedPIDA, SharedBirthdayA},
		{SharedPIDB, SharedBirthdayB},
		{HospitalOnlyPID, HospitalBirthday},
	}
	for _, p := range patients {
		birth, err := time.Parse(time.DateOnly, p.birthday)
		if err != nil {
			return fmt.Errorf("parse birthday for %s: %w", p.pid, err)
		}
		// Non-midnight time of day must not affect date comparison.
		birth = birth.Add(13*time.Hour + 45*time.Minute)
		if _, err := pool.Exec(ctx, `INSERT INTO patient (pid, birthtime) VALUES ($1, $2)`, p.pid, birth); err != nil {
			return fmt.Errorf("insert patient %s: %w", p.pid, err)
		}
	}

	numbers := []struct {
		pid, number, numberType string
	}{
		{MemberPID, MemberNumber, NationalIDType},
		// Duplicate registration of the same number on the same record.
		{MemberPID, MemberNumber, NationalIDType},
		{NonMemberPID, NonMemberNumber, NationalIDType},
		{EndedMemberPID, EndedMemberNumber, NationalIDType},
		{SharedPIDA, SharedNumber, NationalIDType},
		{SharedPIDB, SharedNumber, NationalIDType},
		{HospitalOnlyPID, HospitalNumber, HospitalIDType},
	}
	for _, n := range numbers {
		if _, err := pool.Exec(ctx,
			`INSERT INTO patientnumber (pid, patientid, numbertype) VALUES ($1, $2, $3)`,
			n.pid, n.number, n.numberType,
		); err != nil {
			return fmt.Errorf("insert number for %s: %w", n.pid, err)
		}
	}

	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	memberships := []struct {
		pid     string
		program string
		to      *time.Time
	}{
		{MemberPID, ProgramName, nil},
		{NonMemberPID, "OTHER.PROGRAM", nil},
		{EndedMemberPID, ProgramName, &end},
		{SharedPIDB, ProgramName, nil},
		{HospitalOnlyPID, ProgramName, nil},
	}
	for _, m := range memberships {
		if _, err := pool.Exec(ctx,
			`INSERT INTO programmembership (pid, programname, fromtime, totime) VALUES ($1, $2, $3, $4)`,
			m.pid, m.program, start, m.to,
		); err != nil {
			return fmt.Errorf("insert membership for %s: %w", m.pid, err)
		}
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}
