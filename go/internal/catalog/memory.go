package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/circuitcast/go/internal/models"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is the YAML document used to populate a catalog.
type Seed struct {
	Exercises []models.Exercise `yaml:"exercises"`
	Workouts  []models.Workout  `yaml:"workouts"`
	Displays  []models.Display  `yaml:"displays"`
	Folders   []models.Folder   `yaml:"folders"`
}

// ParseSeed decodes a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return &s, nil
}

// LoadSeed reads a seed file, or the built-in stock catalog when path is empty.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return ParseSeed(data)
}

// MemoryRepository keeps the catalog in process. Lists preserve insertion order.
type MemoryRepository struct {
	mu sync.RWMutex

	exercises     map[string]models.Exercise
	exerciseOrder []string
	workouts      map[string]models.Workout
	workoutOrder  []string
	displays      map[string]models.Display
	displayOrder  []string
	folders       map[string]models.Folder
	folderOrder   []string
}

// NewMemoryRepository creates a repository populated from seed (may be nil).
func NewMemoryRepository(seed *Seed) *MemoryRepository {
	r := &MemoryRepository{
		exercises: make(map[string]models.Exercise),
		workouts:  make(map[string]models.Workout),
		displays:  make(map[string]models.Display),
		folders:   make(map[string]models.Folder),
	}
	if seed == nil {
		return r
	}
	for _, e := range seed.Exercises {
		r.putExercise(e)
	}
	for _, w := range seed.Workouts {
		r.putWorkout(w)
	}
	for _, d := range seed.Displays {
		r.putDisplay(d)
	}
	for _, f := range seed.Folders {
		r.putFolder(f)
	}
	return r
}

func (r *MemoryRepository) GetExercise(_ context.Context, id string) (*models.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.exercises[id]
	if !ok {
		return nil, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	return &e, nil
}

func (r *MemoryRepository) ListExercises(_ context.Context) ([]models.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Exercise, 0, len(r.exerciseOrder))
	for _, id := range r.exerciseOrder {
		out = append(out, r.exercises[id])
	}
	return out, nil
}

func (r *MemoryRepository) GetWorkout(_ context.Context, id string) (*models.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workouts[id]
	if !ok {
		return nil, fmt.Errorf("workout %s: %w", id, ErrNotFound)
	}
	c := w.Clone()
	return &c, nil
}

func (r *MemoryRepository) ListWorkouts(_ context.Context) ([]models.Workout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Workout, 0, len(r.workoutOrder))
	for _, id := range r.workoutOrder {
		out = append(out, r.workouts[id].Clone())
	}
	return out, nil
}

func (r *MemoryRepository) SaveWorkout(_ context.Context, w models.Workout) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.putWorkout(w)
	return nil
}

func (r *MemoryRepository) ListDisplays(_ context.Context) ([]models.Display, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Display, 0, len(r.displayOrder))
	for _, id := range r.displayOrder {
		out = append(out, r.displays[id])
	}
	return out, nil
}

func (r *MemoryRepository) SaveDisplay(_ context.Context, d models.Display) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.putDisplay(d)
	return nil
}

func (r *MemoryRepository) ListFolders(_ context.Context) ([]models.Folder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Folder, 0, len(r.folderOrder))
	for _, id := range r.folderOrder {
		f := r.folders[id]
		f.WorkoutIDs = append([]string(nil), f.WorkoutIDs...)
		out = append(out, f)
	}
	return out, nil
}

func (r *MemoryRepository) SaveFolder(_ context.Context, f models.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.putFolder(f)
	return nil
}

func (r *MemoryRepository) putExercise(e models.Exercise) {
	if _, ok := r.exercises[e.ID]; !ok {
		r.exerciseOrder = append(r.exerciseOrder, e.ID)
	}
	r.exercises[e.ID] = e
}

func (r *MemoryRepository) putWorkout(w models.Workout) {
	if _, ok := r.workouts[w.ID]; !ok {
		r.workoutOrder = append(r.workoutOrder, w.ID)
	}
	r.workouts[w.ID] = w.Clone()
}

func (r *MemoryRepository) putDisplay(d models.Display) {
	if _, ok := r.displays[d.ID]; !ok {
		r.displayOrder = append(r.displayOrder, d.ID)
	}
	r.displays[d.ID] = d
}

func (r *MemoryRepository) putFolder(f models.Folder) {
	if _, ok := r.folders[f.ID]; !ok {
		r.folderOrder = append(r.folderOrder, f.ID)
	}
	f.WorkoutIDs = append([]string(nil), f.WorkoutIDs...)
	r.folders[f.ID] = f
}
