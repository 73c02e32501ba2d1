package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"membersync/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- ProcessedEventRepo Tests ---

func TestProcessedEventRepo_Claim_New(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	isNew, err := repo.Claim(context.Background(), "evt_1", "checkout.session.completed", true)
	require.NoError(t, err)
	assert.True(t, isNew)
	db.AssertExpectations(t)
}

func TestProcessedEventRepo_Claim_AlreadyHeld(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	// ON CONFLICT DO NOTHING reports zero rows for a held event id.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	isNew, err := repo.Claim(context.Background(), "evt_1", "checkout.session.completed", true)
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestProcessedEventRepo_Claim_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	_, err := repo.Claim(context.Background(), "evt_1", "checkout.session.completed", true)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestProcessedEventRepo_MarkSucceeded(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.MarkSucceeded(context.Background(), "evt_1", 120*time.Millisecond, false)
	require.NoError(t, err)
}

func TestProcessedEventRepo_MarkSucceeded_ClaimMissing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.MarkSucceeded(context.Background(), "evt_gone", time.Second, false)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}

func TestProcessedEventRepo_ReleaseFailed(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	var captured []any
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.ReleaseFailed(context.Background(), "evt_3", "internal_database_error", 50*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, captured, 5)
	assert.Equal(t, "evt_3", captured[0])
	assert.Equal(t, "internal_database_error", captured[2])
}

func TestProcessedEventRepo_ReleaseFailed_NoClaim_IsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := repo.ReleaseFailed(context.Background(), "evt_unknown", "processing_error", 0)
	require.NoError(t, err)
}

func TestProcessedEventRepo_WindowStats(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 11
			*dest[1].(*int) = 6
			*dest[2].(*int) = 5
			*dest[3].(*float64) = 820.5
			*dest[4].(*int64) = 4100
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	total, succeeded, failed, avgMs, slowestMs, err := repo.WindowStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.Equal(t, 6, succeeded)
	assert.Equal(t, 5, failed)
	assert.InDelta(t, 820.5, avgMs, 0.01)
	assert.Equal(t, int64(4100), slowestMs)
}

func TestProcessedEventRepo_CountStuckClaims(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProcessedEventRepo(db, testLogger())

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int) = 2
			return nil
		},
	}
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(row)

	count, err := repo.CountStuckClaims(context.Background(), time.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
