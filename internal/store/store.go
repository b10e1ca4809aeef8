// Package store persists merged daily tables into PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/rtm0/wfde5/internal/table"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "wfde5_schema_migrations"

// Migrate applies all pending up migrations to the database at dsn, which
// must be a postgres:// URL.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "open embedded migrations")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, withMigrationsTable(dsn))
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

func withMigrationsTable(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "x-migrations-table=" + migrationsTable
}

// PostgreSQL accepts at most maxParams bind parameters in one statement.
const maxParams = 65535

// MaxBatchSize is the largest number of daily rows one insert can carry.
const MaxBatchSize = maxParams / 4

const maxCellBatch = maxParams / 6

// Store writes runs to PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New wraps an open connection pool.
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open connects to the database and checks it is reachable.
func Open(ctx context.Context, logger *slog.Logger, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return New(db, logger), nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type runRow struct {
	RunID    uuid.UUID `db:"run_id"`
	Variable string    `db:"variable"`
	FirstDay time.Time `db:"first_day"`
	LastDay  time.Time `db:"last_day"`
	Cells    int       `db:"cells"`
	Repaired int       `db:"repaired"`
}

type cellRow struct {
	RunID    uuid.UUID `db:"run_id"`
	Column   int       `db:"col"`
	LatIndex int       `db:"lat_index"`
	LonIndex int       `db:"lon_index"`
	Lat      float64   `db:"lat"`
	Lon      float64   `db:"lon"`
}

type dailyRow struct {
	RunID  uuid.UUID       `db:"run_id"`
	Day    time.Time       `db:"day"`
	Column int             `db:"col"`
	Precip sql.NullFloat64 `db:"precip"`
}

const (
	insertRun = `INSERT INTO wfde5_runs (run_id, variable, first_day, last_day, cells, repaired)
VALUES (:run_id, :variable, :first_day, :last_day, :cells, :repaired)`
	insertCells = `INSERT INTO wfde5_cells (run_id, col, lat_index, lon_index, lat, lon)
VALUES (:run_id, :col, :lat_index, :lon_index, :lat, :lon)`
	insertDaily = `INSERT INTO wfde5_daily (run_id, day, col, precip)
VALUES (:run_id, :day, :col, :precip)`
)

// SaveRun stores d under runID in a single transaction. Daily values are
// inserted in batches of batchSize rows; a batchSize outside
// [1, MaxBatchSize] is replaced by MaxBatchSize.
func (s *Store) SaveRun(ctx context.Context, runID uuid.UUID, variable string, d *table.Daily, batchSize int) (int, error) {
	if len(d.Days) == 0 {
		return 0, errors.Wrap(table.ErrNoTables, "nothing to store")
	}
	if batchSize < 1 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertRun, newRunRow(runID, variable, d)); err != nil {
		return 0, errors.Wrap(err, "insert run")
	}
	cells := cellRows(runID, d.Cells)
	for _, b := range batches(len(cells), maxCellBatch) {
		if _, err := tx.NamedExecContext(ctx, insertCells, cells[b[0]:b[1]]); err != nil {
			return 0, errors.Wrapf(err, "insert cells %d-%d", b[0], b[1])
		}
	}
	rows := dailyRows(runID, d)
	for _, b := range batches(len(rows), batchSize) {
		if _, err := tx.NamedExecContext(ctx, insertDaily, rows[b[0]:b[1]]); err != nil {
			return 0, errors.Wrapf(err, "insert daily rows %d-%d", b[0], b[1])
		}
		s.logger.Debug("stored daily batch", "run", runID, "begin", b[0], "limit", b[1])
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return len(rows), nil
}

func newRunRow(runID uuid.UUID, variable string, d *table.Daily) runRow {
	return runRow{
		RunID:    runID,
		Variable: variable,
		FirstDay: d.Days[0],
		LastDay:  d.Days[len(d.Days)-1],
		Cells:    len(d.Cells),
		Repaired: d.Repaired,
	}
}

func cellRows(runID uuid.UUID, cells []table.Cell) []cellRow {
	rows := make([]cellRow, len(cells))
	for i, c := range cells {
		rows[i] = cellRow{RunID: runID, Column: c.Column, LatIndex: c.LatIndex, LonIndex: c.LonIndex, Lat: c.Lat, Lon: c.Lon}
	}
	return rows
}

// dailyRows flattens d in day-major order. NaN values become NULL.
func dailyRows(runID uuid.UUID, d *table.Daily) []dailyRow {
	rows := make([]dailyRow, 0, len(d.Days)*len(d.Cells))
	for i, day := range d.Days {
		for j, c := range d.Cells {
			v := d.Values[i][j]
			rows = append(rows, dailyRow{
				RunID:  runID,
				Day:    day,
				Column: c.Column,
				Precip: sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)},
			})
		}
	}
	return rows
}

// batches splits [0, n) into [begin, limit) pairs of at most size elements.
func batches(n, size int) [][2]int {
	if size < 1 {
		size = n
	}
	var out [][2]int
	for begin := 0; begin < n; begin += size {
		limit := begin + size
		if limit > n {
			limit = n
		}
		out = append(out, [2]int{begin, limit})
	}
	return out
}
