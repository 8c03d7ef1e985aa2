package host

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
)

// HealthChecker backs /health when set.
type HealthChecker interface {
	Check(ctx context.Context) outbox.HealthStatus
}

// Handler is the operator control API.
type Handler struct {
	service *Service
	catalog *catalog.App
	health  HealthChecker
	router  chi.Router
}

func NewHandler(service *Service, app *catalog.App) *Handler {
	h := &Handler{
		service: service,
		catalog: app,
		router:  chi.NewRouter(),
	}
	h.routes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.router.Use(middleware.Recoverer)
	h.router.Use(RequestLogging)

	h.router.Get("/health", h.handleHealth)
	h.router.Get("/ws/station", h.service.AcceptStation)

	h.router.Route("/api", func(r chi.Router) {
		r.Get("/exercises", h.handleListExercises)
		r.Get("/workouts", h.handleListWorkouts)
		r.Post("/workouts", h.handleCreateWorkout)
		r.Get("/workouts/{id}", h.handleGetWorkout)
		r.Put("/workouts/{id}", h.handleSaveWorkout)
		r.Put("/workouts/{id}/modules/{moduleID}/duration", h.handleAdjustDuration)
		r.Get("/folders", h.handleListFolders)
		r.Put("/folders/{id}", h.handleSaveFolder)
		r.Get("/displays", h.handleListDisplays)
		r.Post("/displays", h.handlePairDisplay)

		r.Route("/session", func(r chi.Router) {
			r.Post("/", h.handleStartSession)
			r.Get("/", h.handleSessionStatus)
			r.Delete("/", h.handleEndSession)
			r.Get("/stations", h.handleSessionStations)
			r.Post("/{action}", h.handleSessionCommand)
		})
	})
}

// WithHealth reports pipeline health on /health.
func (h *Handler) WithHealth(c HealthChecker) *Handler {
	h.health = c
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := h.health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handler) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := h.catalog.ListExercises(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (h *Handler) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	workouts, err := h.catalog.ListWorkouts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workouts)
}

type workoutResponse struct {
	Workout       *models.Workout `json:"workout"`
	Durations     []int           `json:"durations"`
	TotalDuration int             `json:"total_duration_sec"`
}

func (h *Handler) workoutResponse(ctx context.Context, wk *models.Workout) (*workoutResponse, error) {
	durations, total, err := h.catalog.Durations(ctx, *wk)
	if err != nil {
		return nil, err
	}
	return &workoutResponse{Workout: wk, Durations: durations, TotalDuration: total}, nil
}

func (h *Handler) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	wk, err := h.catalog.GetWorkout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeWorkout(w, r, http.StatusOK, wk)
}

func (h *Handler) handleCreateWorkout(w http.ResponseWriter, r *http.Request) {
	var body models.Workout
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	wk, err := h.catalog.CreateWorkout(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeWorkout(w, r, http.StatusCreated, wk)
}

func (h *Handler) handleSaveWorkout(w http.ResponseWriter, r *http.Request) {
	var body models.Workout
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	id := chi.URLParam(r, "id")
	if body.ID != "" && body.ID != id {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workout id does not match path"})
		return
	}
	body.ID = id

	wk, err := h.catalog.SaveWorkout(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeWorkout(w, r, http.StatusOK, wk)
}

func (h *Handler) writeWorkout(w http.ResponseWriter, r *http.Request, status int, wk *models.Workout) {
	resp, err := h.workoutResponse(r.Context(), wk)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleAdjustDuration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Duration int `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	wk, err := h.catalog.AdjustModuleDuration(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"), body.Duration)
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeWorkout(w, r, http.StatusOK, wk)
}

func (h *Handler) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.catalog.ListFolders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (h *Handler) handleSaveFolder(w http.ResponseWriter, r *http.Request) {
	var body models.Folder
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	body.ID = chi.URLParam(r, "id")

	f, err := h.catalog.SaveFolder(r.Context(), body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *Handler) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	displays, err := h.catalog.ListDisplays(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, displays)
}

func (h *Handler) handlePairDisplay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	d, err := h.catalog.PairDisplay(r.Context(), body.ID, body.Name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkoutID string `json:"workout_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.WorkoutID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workout_id is required"})
		return
	}

	sess, err := h.service.Start(r.Context(), body.WorkoutID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := h.service.Current()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (h *Handler) handleSessionStations(w http.ResponseWriter, r *http.Request) {
	sess := h.service.Current()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, sess.Stations())
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.service.Stop(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Current().Status())
}

type commandResponse struct {
	Applied bool   `json:"applied"`
	Status  Status `json:"status"`
}

func (h *Handler) handleSessionCommand(w http.ResponseWriter, r *http.Request) {
	sess := h.service.Current()
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
		return
	}

	var run func(context.Context) (bool, error)
	switch chi.URLParam(r, "action") {
	case "pause":
		run = sess.Pause
	case "resume":
		run = sess.Resume
	case "toggle":
		run = sess.TogglePause
	case "next":
		run = sess.Next
	case "previous":
		run = sess.Previous
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown action"})
		return
	}

	applied, err := run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Applied: applied, Status: sess.Status()})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidWorkout), errors.Is(err, catalog.ErrInvalidFolder):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrWorkoutExists):
		status = http.StatusConflict
	case errors.Is(err, ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, ErrSessionOver):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// RequestLogging logs each request.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
