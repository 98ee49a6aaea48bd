package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"pdfshrink/internal/domain/entities"
)

// DefaultJournalName имя файла журнала по умолчанию
const DefaultJournalName = "pdfshrink.db"

// timeLayout фиксированной длины, чтобы строки сортировались как время
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	quality INTEGER NOT NULL,
	max_width INTEGER NOT NULL,
	grayscale INTEGER NOT NULL,
	total_files INTEGER NOT NULL DEFAULT 0,
	successful INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	original_bytes INTEGER NOT NULL DEFAULT 0,
	output_bytes INTEGER NOT NULL DEFAULT 0,
	reduction_percent REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	file_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	success INTEGER NOT NULL,
	error_kind TEXT,
	error TEXT,
	original_size INTEGER NOT NULL,
	output_size INTEGER NOT NULL,
	reduction_percent REAL NOT NULL,
	images_found INTEGER NOT NULL,
	images_replaced INTEGER NOT NULL,
	images_skipped INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
`

// SQLiteJournal журнал запусков в SQLite
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// Open открывает или создает журнал по пути path
func Open(path string) (*SQLiteJournal, error) {
	if path == "" {
		path = DefaultJournalName
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ошибка создания директории журнала: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия журнала: %w", err)
	}
	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка включения внешних ключей: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка инициализации схемы журнала: %w", err)
	}

	return &SQLiteJournal{db: db, path: path}, nil
}

// Path возвращает путь к файлу журнала
func (j *SQLiteJournal) Path() string {
	return j.path
}

// StartRun регистрирует новый запуск и возвращает его идентификатор
func (j *SQLiteJournal) StartRun(ctx context.Context, spec *entities.CompressionSpec) (string, error) {
	if spec == nil {
		return "", entities.ErrInvalidQuality
	}
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, quality, max_width, grayscale) VALUES (?, ?, ?, ?, ?)`,
		id, formatTime(time.Now()), spec.Quality, spec.MaxWidth, boolToInt(spec.Grayscale))
	if err != nil {
		return "", fmt.Errorf("ошибка записи запуска: %w", err)
	}
	return id, nil
}

// Record сохраняет результат одного файла
func (j *SQLiteJournal) Record(ctx context.Context, runID string, r *entities.BatchResult) error {
	if r == nil {
		return nil
	}
	var errText sql.NullString
	if r.Error != nil {
		errText = sql.NullString{String: r.Error.Error(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO results (run_id, file_name, kind, success, error_kind, error, original_size, output_size,
			reduction_percent, images_found, images_replaced, images_skipped, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.FileName, r.Kind.String(), boolToInt(r.Success), entities.ErrorKind(r.Error), errText,
		r.OriginalSize, r.OutputSize, r.ReductionPercent, r.ImagesFound, r.ImagesReplaced, r.ImagesSkipped,
		r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("ошибка записи результата %s: %w", r.FileName, err)
	}
	return nil
}

// FinishRun сохраняет итог запуска
func (j *SQLiteJournal) FinishRun(ctx context.Context, runID string, s *entities.BatchSummary) error {
	if s == nil {
		return nil
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total_files = ?, successful = ?, failed = ?,
			original_bytes = ?, output_bytes = ?, reduction_percent = ? WHERE id = ?`,
		formatTime(time.Now()), s.TotalFiles, s.Successful, s.Failed,
		s.OriginalBytes, s.OutputBytes, s.ReductionPercent(), runID)
	if err != nil {
		return fmt.Errorf("ошибка завершения запуска: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("запуск %s не найден в журнале", runID)
	}
	return nil
}

// RecentRuns возвращает последние запуски, новые первыми
func (j *SQLiteJournal) RecentRuns(ctx context.Context, limit int) ([]entities.RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, quality, max_width, grayscale, total_files, successful, failed,
			original_bytes, output_bytes, reduction_percent
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	defer rows.Close()

	var runs []entities.RunRecord
	for rows.Next() {
		var (
			rec       entities.RunRecord
			started   string
			finished  sql.NullString
			grayscale int
		)
		if err := rows.Scan(&rec.ID, &started, &finished, &rec.Quality, &rec.MaxWidth, &grayscale,
			&rec.TotalFiles, &rec.Successful, &rec.Failed, &rec.OriginalBytes, &rec.OutputBytes,
			&rec.ReductionPercent); err != nil {
			return nil, fmt.Errorf("ошибка чтения записи журнала: %w", err)
		}
		rec.Grayscale = grayscale != 0
		rec.StartedAt = parseTime(started)
		if finished.Valid {
			rec.FinishedAt = parseTime(finished.String)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// FileCount возвращает число записанных результатов запуска
func (j *SQLiteJournal) FileCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results WHERE run_id = ?`, runID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Close закрывает журнал
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
