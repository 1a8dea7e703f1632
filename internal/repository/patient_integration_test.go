//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patientcheck/patientcheck/internal/model"
	"github.com/patientcheck/patientcheck/internal/testutil"
)

func newSessionTestEnv(t *testing.T) (context.Context, *Repository, *Session) {
	t.Helper()

	ctx := context.Background()
	pg := testutil.NewPostgres(t)
	repo := NewFromPool(pg.Pool)

	session, err := repo.Acquire(ctx)
	require.NoError(t, err)
	t.Cleanup(session.Release)

	return ctx, repo, session
}

func national(number string) model.ExternalNumber {
	return model.ExternalNumber{Value: number, Type: model.NumberTypeNational}
}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestIntegrationSession_ResolveNumber(t *testing.T) {
	ctx, _, s := newSessionTestEnv(t)

	tests := []struct {
		name   string
		number model.ExternalNumber
		want   []string
	}{
		{"member with duplicate registration", national(testutil.MemberNumber), []string{testutil.MemberPID}},
		{"non-member", national(testutil.NonMemberNumber), []string{testutil.NonMemberPID}},
		{"shared number", national(testutil.SharedNumber), []string{testutil.SharedPIDA, testutil.SharedPIDB}},
		{"unknown number", national(testutil.UnknownNumber), []string{}},
		{"wrong number type", national(testutil.HospitalNumber), []string{}},
		{"hospital number type", model.ExternalNumber{Value: testutil.HospitalNumber, Type: testutil.HospitalIDType}, []string{testutil.HospitalOnlyPID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pids, err := s.ResolveNumber(ctx, tt.number)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, pids)
			assert.NotNil(t, pids)
		})
	}
}

func TestIntegrationSession_HasActiveMembership(t *testing.T) {
	ctx, _, s := newSessionTestEnv(t)

	tests := []struct {
		name string
		pids []string
		want bool
	}{
		{"active member", []string{testutil.MemberPID}, true},
		{"other program only", []string{testutil.NonMemberPID}, false},
		{"ended membership", []string{testutil.EndedMemberPID}, false},
		{"any of several", []string{testutil.SharedPIDA, testutil.SharedPIDB}, true},
		{"none of several", []string{testutil.SharedPIDA, testutil.NonMemberPID}, false},
		{"no pids", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.HasActiveMembership(ctx, tt.pids, testutil.ProgramName)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntegrationSession_Memberships(t *testing.T) {
	ctx, _, s := newSessionTestEnv(t)

	memberships, err := s.Memberships(ctx, []string{testutil.EndedMemberPID}, testutil.ProgramName)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, testutil.EndedMemberPID, memberships[0].PID)
	assert.NotNil(t, memberships[0].FromTime)
	assert.False(t, memberships[0].IsActive())
}

func TestIntegrationSession_BirthDates(t *testing.T) {
	ctx, _, s := newSessionTestEnv(t)

	dates, err := s.BirthDates(ctx, []string{testutil.MemberPID})
	require.NoError(t, err)
	assert.Equal(t, []model.Date{mustDate(t, testutil.MemberBirthday)}, dates)

	dates, err = s.BirthDates(ctx, []string{testutil.SharedPIDA, testutil.SharedPIDB})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Date{
		mustDate(t, testutil.SharedBirthdayA),
		mustDate(t, testutil.SharedBirthdayB),
	}, dates)

	dates, err = s.BirthDates(ctx, []string{"does-not-exist"})
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestIntegrationSession_NullBirthTimeSkipped(t *testing.T) {
	ctx, repo, s := newSessionTestEnv(t)

	_, err := repo.pool.Exec(ctx, `INSERT INTO patient (pid, birthtime) VALUES ('null-birth', NULL)`)
	require.NoError(t, err)

	records, err := s.Records(ctx, []string{"null-birth"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].BirthTime)

	dates, err := s.BirthDates(ctx, []string{"null-birth"})
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestIntegrationRepository_ReleaseReturnsConnection(t *testing.T) {
	ctx := context.Background()
	pg := testutil.NewPostgres(t)
	repo := NewFromPool(pg.Pool)

	before, _, _ := repo.Stats()

	s, err := repo.Acquire(ctx)
	require.NoError(t, err)
	during, _, _ := repo.Stats()
	assert.Equal(t, before+1, during)

	s.Release()
	s.Release()
	after, _, _ := repo.Stats()
	assert.Equal(t, before, after)

	require.NoError(t, repo.Ping(ctx))
}
