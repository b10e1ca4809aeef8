package store

import (
	"context"
	"database/sql/driver"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/wfde5/internal/table"
)

func TestDailyRows(t *testing.T) {
	id := uuid.New()
	d := &table.Daily{
		Days: []time.Time{
			time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		},
		Cells:    []table.Cell{{Column: 0}, {Column: 1, LatIndex: 0, LonIndex: 1, Lat: 1.25, Lon: -62.25}},
		Values:   [][]float64{{1.5, math.NaN()}, {0, 2}},
		Repaired: 3,
	}

	rows := dailyRows(id, d)
	require.Len(t, rows, 4)
	assert.Equal(t, 1, rows[1].Column)
	assert.False(t, rows[1].Precip.Valid)
	assert.True(t, rows[2].Precip.Valid)
	assert.Equal(t, d.Days[1], rows[3].Day)
	assert.Equal(t, 2.0, rows[3].Precip.Float64)

	run := newRunRow(id, "Rainf", d)
	assert.Equal(t, d.Days[0], run.FirstDay)
	assert.Equal(t, d.Days[1], run.LastDay)
	assert.Equal(t, 2, run.Cells)
	assert.Equal(t, 3, run.Repaired)

	cells := cellRows(id, d.Cells)
	assert.Equal(t, cellRow{RunID: id, Column: 1, LonIndex: 1, Lat: 1.25, Lon: -62.25}, cells[1])
}

func TestBatches(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 3}, {3, 6}, {6, 7}}, batches(7, 3))
	assert.Equal(t, [][2]int{{0, 4}}, batches(4, 10))
	assert.Empty(t, batches(0, 10))
}

func TestWithMigrationsTable(t *testing.T) {
	assert.Equal(t, "postgres://u@h/db?x-migrations-table=wfde5_schema_migrations", withMigrationsTable("postgres://u@h/db"))
	assert.Equal(t, "postgres://u@h/db?sslmode=disable&x-migrations-table=wfde5_schema_migrations", withMigrationsTable("postgres://u@h/db?sslmode=disable"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestBatchLimits(t *testing.T) {
	assert.LessOrEqual(t, MaxBatchSize*4, maxParams)
	assert.LessOrEqual(t, maxCellBatch*6, maxParams)
	assert.Len(t, batches(maxCellBatch+1, maxCellBatch), 2)
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func testDaily() *table.Daily {
	day := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return &table.Daily{
		Days:     []time.Time{day, day.AddDate(0, 0, 1), day.AddDate(0, 0, 2)},
		Cells:    []table.Cell{{Column: 0}, {Column: 1, LonIndex: 1}},
		Values:   [][]float64{{1, 2}, {3, 4}, {5, math.NaN()}},
		Repaired: 1,
	}
}

func TestSaveRun(t *testing.T) {
	s, mock := newMockStore(t)
	id := uuid.New()
	d := testDaily()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wfde5_runs").
		WithArgs(id.String(), "Rainf", d.Days[0], d.Days[2], 2, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wfde5_cells").WithArgs(anyArgs(2 * 6)...).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO wfde5_daily").WithArgs(anyArgs(4 * 4)...).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO wfde5_daily").WithArgs(anyArgs(2 * 4)...).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := s.SaveRun(context.Background(), id, "Rainf", d, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunClampsBatchSize(t *testing.T) {
	for _, size := range []int{0, MaxBatchSize + 1} {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wfde5_runs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO wfde5_cells").WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec("INSERT INTO wfde5_daily").WithArgs(anyArgs(6 * 4)...).WillReturnResult(sqlmock.NewResult(0, 6))
		mock.ExpectCommit()

		_, err := s.SaveRun(context.Background(), uuid.New(), "Rainf", testDaily(), size)
		require.NoError(t, err, "batch size %d", size)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestSaveRunRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wfde5_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO wfde5_cells").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.SaveRun(context.Background(), uuid.New(), "Rainf", testDaily(), 4)
	assert.ErrorContains(t, err, "insert cells 0-2: disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunEmpty(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.SaveRun(context.Background(), uuid.New(), "Rainf", &table.Daily{}, 4)
	assert.ErrorIs(t, err, table.ErrNoTables)
	assert.NoError(t, mock.ExpectationsWereMet())
}
