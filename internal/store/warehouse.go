// Package store provides the pipeline's local storage: the SQLite
// warehouse holding the tabular areas (processed, staging, quarantine,
// final) and the raw JSON document store written by ingest.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/weather-pipeline/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

// ErrBatchNotFound reports that a batch has no processed partition at all,
// as opposed to a partition that exists with zero rows.
var ErrBatchNotFound = errors.New("batch not found")

// observationDDL is the shared column layout of every tabular area.
const observationDDL = `
	city TEXT,
	local_time TEXT,
	last_updated TEXT,
	temperature_c TEXT,
	condition_desc TEXT,
	wind_kph TEXT,
	wind_dir TEXT,
	pressure_mb TEXT,
	precip_mm TEXT,
	humidity TEXT,
	feelslike_c TEXT,
	windchill_c TEXT,
	dewpoint_c TEXT,
	gust_kph TEXT,
	batch_id TEXT NOT NULL`

// Warehouse is the SQLite-backed tabular store shared by the pipeline
// phases. Every area is partitioned by batch_id and replaced per batch, so
// re-running a phase for one batch never touches another batch's rows.
type Warehouse struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the warehouse database and ensures
// its schema exists. The returned Warehouse is scoped to one phase
// invocation: close it on every exit path.
func Open(path string, logger *slog.Logger) (*Warehouse, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	w := &Warehouse{db: db, logger: logger}
	if err := w.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the database handle.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) ensureSchema() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS processed_weather (%s);`, observationDDL),
		`CREATE TABLE IF NOT EXISTS processed_batches (
			batch_id TEXT PRIMARY KEY,
			row_count INTEGER NOT NULL,
			processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS staging_valid_weather (%s);`, observationDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS quarantine_invalid_weather (%s,
	dq_type TEXT NOT NULL);`, observationDDL),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS weather (%s);`, observationDDL),
	}
	for _, stmt := range stmts {
		if _, err := w.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure warehouse schema: %w", err)
		}
	}
	return nil
}

// ReplaceBatch overwrites the batch's processed partition with the given
// rows and records a batch marker, so a batch with zero rows is still
// distinguishable from a batch that was never processed.
func (w *Warehouse) ReplaceBatch(ctx context.Context, batchID string, rows []domain.Observation) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace batch: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_weather WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear processed partition %s: %w", batchID, err)
	}
	if err := insertObservations(ctx, tx, "processed_weather", batchID, rows); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO processed_batches (batch_id, row_count) VALUES (?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
			row_count = excluded.row_count,
			processed_at = CURRENT_TIMESTAMP`,
		batchID, len(rows)); err != nil {
		return fmt.Errorf("record batch marker %s: %w", batchID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace batch: %w", err)
	}
	return nil
}

// Batch reads the batch's processed partition. Returns ErrBatchNotFound
// when no marker exists for the batch; an empty slice with a nil error
// means the batch was processed and genuinely has zero rows.
func (w *Warehouse) Batch(ctx context.Context, batchID string) ([]domain.Observation, error) {
	var rowCount int
	err := w.db.QueryRowContext(ctx,
		`SELECT row_count FROM processed_batches WHERE batch_id = ?`, batchID).Scan(&rowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("look up batch %s: %w", batchID, err)
	}
	return w.selectObservations(ctx, "processed_weather", batchID)
}

// ReplaceStaging overwrites the batch's staging partition with the valid rows.
func (w *Warehouse) ReplaceStaging(ctx context.Context, batchID string, rows []domain.Observation) error {
	return w.replacePartition(ctx, "staging_valid_weather", batchID, rows)
}

// StagingBatch reads the batch's staging partition.
func (w *Warehouse) StagingBatch(ctx context.Context, batchID string) ([]domain.Observation, error) {
	return w.selectObservations(ctx, "staging_valid_weather", batchID)
}

// ReplaceQuarantine overwrites the batch's quarantine partition with the
// deduplicated invalid rows, each tagged with its dq_type reason.
func (w *Warehouse) ReplaceQuarantine(ctx context.Context, batchID string, rows []domain.InvalidObservation) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace quarantine: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM quarantine_invalid_weather WHERE batch_id = ?`, batchID); err != nil {
		return fmt.Errorf("clear quarantine partition %s: %w", batchID, err)
	}

	cols := strings.Join(append(append([]string{}, domain.RequiredFields...), "batch_id", "dq_type"), ", ")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(domain.RequiredFields)+2), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO quarantine_invalid_weather (%s) VALUES (%s)`, cols, placeholders))
	if err != nil {
		return fmt.Errorf("prepare quarantine insert: %w", err)
	}
	defer stmt.Close()

	for _, iv := range rows {
		args := observationArgs(iv.Observation, batchID)
		args = append(args, string(iv.Reason()))
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert quarantine row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace quarantine: %w", err)
	}
	return nil
}

// QuarantineBatch reads the batch's quarantine partition; each returned
// record carries the single dq_type reason it was stored with.
func (w *Warehouse) QuarantineBatch(ctx context.Context, batchID string) ([]domain.InvalidObservation, error) {
	cols := strings.Join(append(append([]string{}, domain.RequiredFields...), "batch_id", "dq_type"), ", ")
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM quarantine_invalid_weather WHERE batch_id = ? ORDER BY rowid`, cols), batchID)
	if err != nil {
		return nil, fmt.Errorf("select quarantine partition %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []domain.InvalidObservation
	for rows.Next() {
		obs, dqType, err := scanObservationWithReason(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.InvalidObservation{
			Observation: obs,
			Reasons:     []domain.Reason{domain.Reason(dqType)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine partition %s: %w", batchID, err)
	}
	return out, nil
}

// AppendFinal moves the batch's staged rows into the long-lived weather
// table. The batch's prior final rows are deleted first, so re-running the
// load phase is idempotent. Returns the number of rows loaded.
func (w *Warehouse) AppendFinal(ctx context.Context, batchID string) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM weather WHERE batch_id = ?`, batchID); err != nil {
		return 0, fmt.Errorf("clear final partition %s: %w", batchID, err)
	}
	cols := strings.Join(append(append([]string{}, domain.RequiredFields...), "batch_id"), ", ")
	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO weather (%s) SELECT %s FROM staging_valid_weather WHERE batch_id = ?`,
		cols, cols), batchID)
	if err != nil {
		return 0, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count loaded rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit load: %w", err)
	}
	return int(n), nil
}

// FinalCount counts the batch's rows in the long-lived weather table.
func (w *Warehouse) FinalCount(ctx context.Context, batchID string) (int, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weather WHERE batch_id = ?`, batchID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count final partition %s: %w", batchID, err)
	}
	return n, nil
}

func (w *Warehouse) replacePartition(ctx context.Context, table, batchID string, rows []domain.Observation) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE batch_id = ?`, table), batchID); err != nil {
		return fmt.Errorf("clear %s partition %s: %w", table, batchID, err)
	}
	if err := insertObservations(ctx, tx, table, batchID, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %s: %w", table, err)
	}
	return nil
}

func (w *Warehouse) selectObservations(ctx context.Context, table, batchID string) ([]domain.Observation, error) {
	cols := strings.Join(append(append([]string{}, domain.RequiredFields...), "batch_id"), ", ")
	rows, err := w.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE batch_id = ? ORDER BY rowid`, cols, table), batchID)
	if err != nil {
		return nil, fmt.Errorf("select %s partition %s: %w", table, batchID, err)
	}
	defer rows.Close()

	out := []domain.Observation{}
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s partition %s: %w", table, batchID, err)
	}
	return out, nil
}

func insertObservations(ctx context.Context, tx *sql.Tx, table, batchID string, rows []domain.Observation) error {
	if len(rows) == 0 {
		return nil
	}
	cols := strings.Join(append(append([]string{}, domain.RequiredFields...), "batch_id"), ", ")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(domain.RequiredFields)+1), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`, table, cols, placeholders))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for _, obs := range rows {
		if _, err := stmt.ExecContext(ctx, observationArgs(obs, batchID)...); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}
	return nil
}

func observationArgs(obs domain.Observation, batchID string) []any {
	fields := obs.Fields()
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		if f == nil {
			args = append(args, nil)
			continue
		}
		args = append(args, *f)
	}
	return append(args, batchID)
}

func scanObservation(rows *sql.Rows) (domain.Observation, error) {
	fields := make([]sql.NullString, len(domain.RequiredFields))
	dest := make([]any, 0, len(fields)+1)
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	var batchID string
	dest = append(dest, &batchID)

	if err := rows.Scan(dest...); err != nil {
		return domain.Observation{}, fmt.Errorf("scan observation: %w", err)
	}
	return observationFromFields(fields, batchID), nil
}

func scanObservationWithReason(rows *sql.Rows) (domain.Observation, string, error) {
	fields := make([]sql.NullString, len(domain.RequiredFields))
	dest := make([]any, 0, len(fields)+2)
	for i := range fields {
		dest = append(dest, &fields[i])
	}
	var batchID, dqType string
	dest = append(dest, &batchID, &dqType)

	if err := rows.Scan(dest...); err != nil {
		return domain.Observation{}, "", fmt.Errorf("scan quarantine row: %w", err)
	}
	return observationFromFields(fields, batchID), dqType, nil
}

// observationFromFields maps scanned columns back onto the struct in
// RequiredFields order.
func observationFromFields(fields []sql.NullString, batchID string) domain.Observation {
	val := func(i int) *string {
		if !fields[i].Valid {
			return nil
		}
		s := fields[i].String
		return &s
	}
	return domain.Observation{
		City:          val(0),
		LocalTime:     val(1),
		LastUpdated:   val(2),
		TemperatureC:  val(3),
		ConditionDesc: val(4),
		WindKPH:       val(5),
		WindDir:       val(6),
		PressureMB:    val(7),
		PrecipMM:      val(8),
		Humidity:      val(9),
		FeelslikeC:    val(10),
		WindchillC:    val(11),
		DewpointC:     val(12),
		GustKPH:       val(13),
		BatchID:       batchID,
	}
}
