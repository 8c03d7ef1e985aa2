package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/sqlutil"
)

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// PostgresRepository implements Repository on pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const exerciseColumns = `id, name, category, duration_sec, thumbnail, video_url`

func scanExercise(row pgx.Row) (models.Exercise, error) {
	var (
		e        models.Exercise
		duration int32
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Category, &duration, &e.Thumbnail, &e.VideoURL); err != nil {
		return models.Exercise{}, err
	}
	e.DurationSec = int(duration)
	return e, nil
}

func (r *PostgresRepository) GetExercise(ctx context.Context, id string) (*models.Exercise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id = $1`, id)
	e, err := scanExercise(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}
	return &e, nil
}

func (r *PostgresRepository) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+exerciseColumns+` FROM exercises ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	defer rows.Close()

	var out []models.Exercise
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertExercise inserts or replaces one exercise. It reports whether a new row was created.
func (r *PostgresRepository) UpsertExercise(ctx context.Context, e models.Exercise) (bool, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO exercises (id, name, category, duration_sec, thumbnail, video_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		  name = EXCLUDED.name,
		  category = EXCLUDED.category,
		  duration_sec = EXCLUDED.duration_sec,
		  thumbnail = EXCLUDED.thumbnail,
		  video_url = EXCLUDED.video_url
		RETURNING (xmax = 0)`,
		e.ID, e.Name, e.Category, int32(e.DurationSec), e.Thumbnail, e.VideoURL,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert exercise %s: %w", e.ID, err)
	}
	return inserted, nil
}

func (r *PostgresRepository) GetWorkout(ctx context.Context, id string) (*models.Workout, error) {
	var (
		w    models.Workout
		days []int32
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, scheduled_days, last_modified FROM workouts WHERE id = $1`, id,
	).Scan(&w.ID, &w.Name, &days, &w.LastModified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workout %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}
	w.ScheduledDays = sqlutil.FromInt32Slice(days)

	modules, err := r.loadModules(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.Modules = modules
	return &w, nil
}

func (r *PostgresRepository) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM workouts ORDER BY last_modified DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workouts: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning workout ids: %w", err)
	}

	out := make([]models.Workout, 0, len(ids))
	for _, id := range ids {
		w, err := r.GetWorkout(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

func (r *PostgresRepository) loadModules(ctx context.Context, workoutID string) ([]models.WorkoutModule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, exercise_id, display_id, duration_sec
		FROM workout_modules WHERE workout_id = $1 ORDER BY position`, workoutID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	defer rows.Close()

	var modules []models.WorkoutModule
	for rows.Next() {
		var (
			m        models.WorkoutModule
			duration *int32
		)
		if err := rows.Scan(&m.ID, &m.ExerciseID, &m.DisplayID, &duration); err != nil {
			return nil, fmt.Errorf("scanning module: %w", err)
		}
		m.DurationSec = sqlutil.FromInt32Ptr(duration)
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// SaveWorkout replaces the workout and all of its modules in one transaction.
func (r *PostgresRepository) SaveWorkout(ctx context.Context, w models.Workout) error {
	if w.LastModified.IsZero() {
		w.LastModified = time.Now()
	}

	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO workouts (id, name, scheduled_days, last_modified)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
			  name = EXCLUDED.name,
			  scheduled_days = EXCLUDED.scheduled_days,
			  last_modified = EXCLUDED.last_modified`,
			w.ID, w.Name, sqlutil.ToInt32Slice(w.ScheduledDays), w.LastModified,
		)
		if err != nil {
			return fmt.Errorf("upserting workout: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM workout_modules WHERE workout_id = $1`, w.ID); err != nil {
			return fmt.Errorf("clearing modules: %w", err)
		}

		for i, m := range w.Modules {
			_, err := tx.Exec(ctx, `
				INSERT INTO workout_modules (workout_id, position, id, exercise_id, display_id, duration_sec)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				w.ID, int32(i), m.ID, m.ExerciseID, m.DisplayID, sqlutil.ToInt32Ptr(m.DurationSec),
			)
			if err != nil {
				return fmt.Errorf("inserting module %s: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save workout %s: %w", w.ID, err)
	}
	return nil
}

func (r *PostgresRepository) ListDisplays(ctx context.Context) ([]models.Display, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, is_active, paired_at FROM displays ORDER BY paired_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list displays: %w", err)
	}
	defer rows.Close()

	var out []models.Display
	for rows.Next() {
		var d models.Display
		if err := rows.Scan(&d.ID, &d.Name, &d.IsActive, &d.PairedAt); err != nil {
			return nil, fmt.Errorf("scanning display: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SaveDisplay(ctx context.Context, d models.Display) error {
	if d.PairedAt.IsZero() {
		d.PairedAt = time.Now()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO displays (id, name, is_active, paired_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active`,
		d.ID, d.Name, d.IsActive, d.PairedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save display %s: %w", d.ID, err)
	}
	return nil
}

func (r *PostgresRepository) ListFolders(ctx context.Context) ([]models.Folder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, workout_ids FROM folders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.WorkoutIDs); err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) SaveFolder(ctx context.Context, f models.Folder) error {
	ids := f.WorkoutIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO folders (id, name, workout_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, workout_ids = EXCLUDED.workout_ids`,
		f.ID, f.Name, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to save folder %s: %w", f.ID, err)
	}
	return nil
}
