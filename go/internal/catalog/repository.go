package catalog

import (
	"context"
	"errors"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidWorkout = errors.New("invalid workout")
	ErrInvalidFolder  = errors.New("invalid folder")
	ErrWorkoutExists  = errors.New("workout already exists")
)

// Repository is the workout and exercise store read by the host before a
// session starts. A running session never reads it.
type Repository interface {
	GetExercise(ctx context.Context, id string) (*models.Exercise, error)
	ListExercises(ctx context.Context) ([]models.Exercise, error)
	GetWorkout(ctx context.Context, id string) (*models.Workout, error)
	ListWorkouts(ctx context.Context) ([]models.Workout, error)
	SaveWorkout(ctx context.Context, w models.Workout) error
	ListDisplays(ctx context.Context) ([]models.Display, error)
	SaveDisplay(ctx context.Context, d models.Display) error
	ListFolders(ctx context.Context) ([]models.Folder, error)
	SaveFolder(ctx context.Context, f models.Folder) error
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
