package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

// App handles catalog business logic on top of a Repository.
type App struct {
	repo  Repository
	clock clockwork.Clock
}

// NewApp creates a new catalog App
func NewApp(repo Repository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{repo: repo, clock: clock}
}

func (a *App) ListExercises(ctx context.Context) ([]models.Exercise, error) {
	return a.repo.ListExercises(ctx)
}

func (a *App) ListWorkouts(ctx context.Context) ([]models.Workout, error) {
	return a.repo.ListWorkouts(ctx)
}

// GetWorkout retrieves a workout by ID
func (a *App) GetWorkout(ctx context.Context, id string) (*models.Workout, error) {
	w, err := a.repo.GetWorkout(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get workout: %w", err)
	}
	return w, nil
}

// SaveWorkout validates and stores a workout, stamping LastModified.
func (a *App) SaveWorkout(ctx context.Context, w models.Workout) (*models.Workout, error) {
	if err := a.validateWorkout(ctx, w); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	w = w.Clone()
	w.LastModified = a.clock.Now()
	if err := a.repo.SaveWorkout(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to save workout: %w", err)
	}

	log.Info().
		Str("workout_id", w.ID).
		Int("modules", len(w.Modules)).
		Msg("saved workout")
	return &w, nil
}

// CreateWorkout saves a new workout, assigning ids to the workout and to any
// module that has none.
func (a *App) CreateWorkout(ctx context.Context, w models.Workout) (*models.Workout, error) {
	w = w.Clone()
	if strings.TrimSpace(w.ID) == "" {
		w.ID = uuid.NewString()
	} else if _, err := a.repo.GetWorkout(ctx, w.ID); err == nil {
		return nil, fmt.Errorf("workout %s: %w", w.ID, ErrWorkoutExists)
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("failed to check workout: %w", err)
	}
	for i := range w.Modules {
		if w.Modules[i].ID == "" {
			w.Modules[i].ID = uuid.NewString()
		}
	}
	return a.SaveWorkout(ctx, w)
}

func (a *App) validateWorkout(ctx context.Context, w models.Workout) error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidWorkout)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidWorkout)
	}
	for _, d := range w.ScheduledDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: scheduled day %d out of range", ErrInvalidWorkout, d)
		}
	}

	seen := make(map[string]bool, len(w.Modules))
	for i, m := range w.Modules {
		if m.ID == "" {
			return fmt.Errorf("%w: module %d has no id", ErrInvalidWorkout, i)
		}
		if seen[m.ID] {
			return fmt.Errorf("%w: duplicate module id %s", ErrInvalidWorkout, m.ID)
		}
		seen[m.ID] = true

		if m.DurationSec != nil && *m.DurationSec < 0 {
			return fmt.Errorf("%w: module %s has negative duration", ErrInvalidWorkout, m.ID)
		}
		if _, err := a.repo.GetExercise(ctx, m.ExerciseID); err != nil {
			return fmt.Errorf("%w: module %s: %v", ErrInvalidWorkout, m.ID, err)
		}
	}
	return nil
}

// AdjustModuleDuration sets a module's duration override ahead of going live.
// Negative values clamp to zero.
func (a *App) AdjustModuleDuration(ctx context.Context, workoutID, moduleID string, secs int) (*models.Workout, error) {
	w, err := a.GetWorkout(ctx, workoutID)
	if err != nil {
		return nil, err
	}
	if secs < 0 {
		secs = 0
	}

	found := false
	for i := range w.Modules {
		if w.Modules[i].ID == moduleID {
			d := secs
			w.Modules[i].DurationSec = &d
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("module %s in workout %s: %w", moduleID, workoutID, ErrNotFound)
	}

	return a.SaveWorkout(ctx, *w)
}

// Lookup returns the exercises a workout references, keyed by id. Missing
// exercises are logged and left out, so their modules resolve to zero seconds.
func (a *App) Lookup(ctx context.Context, w models.Workout) (map[string]models.Exercise, error) {
	out := make(map[string]models.Exercise, len(w.Modules))
	for _, m := range w.Modules {
		if _, ok := out[m.ExerciseID]; ok {
			continue
		}
		e, err := a.repo.GetExercise(ctx, m.ExerciseID)
		if err != nil {
			if isNotFound(err) {
				log.Warn().
					Str("workout_id", w.ID).
					Str("exercise_id", m.ExerciseID).
					Msg("workout references unknown exercise")
				continue
			}
			return nil, fmt.Errorf("failed to look up exercise: %w", err)
		}
		out[m.ExerciseID] = *e
	}
	return out, nil
}

// Durations resolves each module's length in seconds along with the workout total.
func (a *App) Durations(ctx context.Context, w models.Workout) ([]int, int, error) {
	exercises, err := a.Lookup(ctx, w)
	if err != nil {
		return nil, 0, err
	}
	durations := models.ResolveDurations(w, exercises)
	total := 0
	for _, d := range durations {
		total += d
	}
	return durations, total, nil
}

func (a *App) ListDisplays(ctx context.Context) ([]models.Display, error) {
	return a.repo.ListDisplays(ctx)
}

// PairDisplay records a station the operator has paired with.
func (a *App) PairDisplay(ctx context.Context, id, name string) (*models.Display, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("display id is required")
	}
	if name == "" {
		name = id
	}
	d := models.Display{ID: id, Name: name, IsActive: true, PairedAt: a.clock.Now()}
	if err := a.repo.SaveDisplay(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to pair display: %w", err)
	}
	return &d, nil
}

func (a *App) ListFolders(ctx context.Context) ([]models.Folder, error) {
	return a.repo.ListFolders(ctx)
}

// SaveFolder stores a folder. Every listed workout must exist; duplicates are dropped.
func (a *App) SaveFolder(ctx context.Context, f models.Folder) (*models.Folder, error) {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	if f.ID == "" {
		return nil, fmt.Errorf("%w: folder id is required", ErrInvalidFolder)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("%w: folder name is required", ErrInvalidFolder)
	}

	seen := make(map[string]bool, len(f.WorkoutIDs))
	ids := make([]string, 0, len(f.WorkoutIDs))
	for _, id := range f.WorkoutIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := a.repo.GetWorkout(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: workout %s: %v", ErrInvalidFolder, id, err)
		}
		ids = append(ids, id)
	}
	f.WorkoutIDs = ids

	if err := a.repo.SaveFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to save folder: %w", err)
	}
	log.Info().
		Str("folder_id", f.ID).
		Int("workouts", len(f.WorkoutIDs)).
		Msg("saved folder")
	return &f, nil
}
