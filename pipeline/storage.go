package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type StorageConfig struct {
	DBPath    string `json:"db_path"`
	EnableWAL bool   `json:"enable_wal"`
}

// Storage keeps the historical dataset, rejected rows and one log row per
// training run in SQLite.
type Storage struct {
	config StorageConfig
	db     *sql.DB
	logger *zap.Logger
}

// TrainingRun is one row of training_log.
type TrainingRun struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Records          int
	Rejected         int
	StudentsOrder    string
	StudentsAIC      float64
	EnrollmentsOrder string
	EnrollmentsAIC   float64
	Accuracy         float64
	MedianThreshold  float64
	ModelsDir        string
}

type StorageStats struct {
	Records int `json:"total_records"`
	Schools int `json:"total_schools"`
	Runs    int `json:"training_runs"`
}

func NewStorage(config StorageConfig, logger *zap.Logger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	storage := &Storage{config: config, logger: logger}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *Storage) initDB() error {
	if err := ensureDir(filepath.Dir(s.config.DBPath)); err != nil {
		return err
	}

	dsn := s.config.DBPath
	if s.config.EnableWAL {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	} else {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("open database failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.createTables(); err != nil {
		db.Close()
		return fmt.Errorf("create tables failed: %w", err)
	}
	if err := s.createIndexes(); err != nil {
		s.logger.Warn("Create indexes failed", zap.Error(err))
	}
	return nil
}

func (s *Storage) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS datos_educativos (
            anio INTEGER NOT NULL,
            semestre INTEGER NOT NULL,
            escuelaId TEXT NOT NULL,
            cantidad_alumnos REAL NOT NULL,
            numero_inscripciones REAL NOT NULL,
            numero_maestros REAL NOT NULL,
            promedio_calificaciones REAL NOT NULL,
            esUrbana INTEGER NOT NULL,
            tasa_desercion REAL NOT NULL,
            PRIMARY KEY (escuelaId, anio, semestre)
        )`,
		`CREATE TABLE IF NOT EXISTS data_quality (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            row_number INTEGER NOT NULL,
            escuelaId TEXT,
            issue_type TEXT NOT NULL,
            severity TEXT NOT NULL,
            message TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS training_log (
            run_id TEXT PRIMARY KEY,
            started_at TIMESTAMP NOT NULL,
            finished_at TIMESTAMP NOT NULL,
            records INTEGER NOT NULL,
            rejected INTEGER NOT NULL,
            students_order TEXT NOT NULL,
            students_aic REAL NOT NULL,
            enrollments_order TEXT NOT NULL,
            enrollments_aic REAL NOT NULL,
            accuracy REAL NOT NULL,
            median_threshold REAL NOT NULL,
            models_dir TEXT NOT NULL
        )`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) createIndexes() error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_period ON datos_educativos(anio, semestre)`,
		`CREATE INDEX IF NOT EXISTS idx_quality_run ON data_quality(run_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// SaveRecords upserts records keyed by school and semester.
func (s *Storage) SaveRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO datos_educativos
        (anio, semestre, escuelaId, cantidad_alumnos, numero_inscripciones, numero_maestros,
         promedio_calificaciones, esUrbana, tasa_desercion)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx,
			r.Year, r.Semester, r.SchoolID, r.Students, r.Enrollments,
			r.Teachers, r.AverageGrade, r.Urban, r.DropoutRate,
		)
		if err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}
	return tx.Commit()
}

// LoadRecords returns the stored dataset ordered by period and school.
func (s *Storage) LoadRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT anio, semestre, escuelaId, cantidad_alumnos,
        numero_inscripciones, numero_maestros, promedio_calificaciones, esUrbana, tasa_desercion
        FROM datos_educativos ORDER BY anio, semestre, escuelaId`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Year, &r.Semester, &r.SchoolID, &r.Students, &r.Enrollments,
			&r.Teachers, &r.AverageGrade, &r.Urban, &r.DropoutRate); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Storage) SaveQualityIssues(ctx context.Context, runID string, issues []QualityIssue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, issue := range issues {
		_, err := tx.ExecContext(ctx, `INSERT INTO data_quality
            (run_id, row_number, escuelaId, issue_type, severity, message) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, issue.Row, issue.SchoolID, issue.Type, issue.Severity, issue.Message)
		if err != nil {
			return fmt.Errorf("insert issue failed: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Storage) LogTraining(ctx context.Context, run TrainingRun) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO training_log
        (run_id, started_at, finished_at, records, rejected, students_order, students_aic,
         enrollments_order, enrollments_aic, accuracy, median_threshold, models_dir)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Records, run.Rejected,
		run.StudentsOrder, run.StudentsAIC, run.EnrollmentsOrder, run.EnrollmentsAIC,
		run.Accuracy, run.MedianThreshold, run.ModelsDir)
	return err
}

// LastTraining returns the most recent run, or nil when none was logged.
func (s *Storage) LastTraining(ctx context.Context) (*TrainingRun, error) {
	var run TrainingRun
	err := s.db.QueryRowContext(ctx, `SELECT run_id, started_at, finished_at, records, rejected,
        students_order, students_aic, enrollments_order, enrollments_aic, accuracy,
        median_threshold, models_dir
        FROM training_log ORDER BY finished_at DESC LIMIT 1`).Scan(
		&run.RunID, &run.StartedAt, &run.FinishedAt, &run.Records, &run.Rejected,
		&run.StudentsOrder, &run.StudentsAIC, &run.EnrollmentsOrder, &run.EnrollmentsAIC,
		&run.Accuracy, &run.MedianThreshold, &run.ModelsDir)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Storage) GetStorageStats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM datos_educativos", &stats.Records},
		{"SELECT COUNT(DISTINCT escuelaId) FROM datos_educativos", &stats.Schools},
		{"SELECT COUNT(*) FROM training_log", &stats.Runs},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return StorageStats{}, err
		}
	}
	return stats, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
