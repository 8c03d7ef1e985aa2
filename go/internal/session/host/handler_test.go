package host

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/circuitcast/go/internal/catalog"
	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	seed, err := catalog.LoadSeed("")
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	app := catalog.NewApp(catalog.NewMemoryRepository(seed), nil)
	svc := NewService(app, func(string) Connections { return newFakeConns() }, nil,
		Config{Clock: clockwork.NewFakeClock()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return NewHandler(svc, app), svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleGetWorkoutIncludesTotal(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/workouts/t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp workoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.TotalDuration != 120 {
		t.Errorf("total_duration_sec = %d, want 120", resp.TotalDuration)
	}

	if rec := do(t, h, http.MethodGet, "/api/workouts/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing workout status = %d, want 404", rec.Code)
	}
}

func TestHandleAdjustDuration(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/api/workouts/t1/modules/m1/duration", `{"duration":90}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp workoutResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.TotalDuration != 180 || resp.Durations[0] != 90 {
		t.Errorf("durations = %v total %d, want [90 ...] total 180", resp.Durations, resp.TotalDuration)
	}
}

func TestHandleCreateWorkout(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPost, "/api/workouts",
		`{"name":"Legs","modules":[{"exercise_id":"ex-squats","display_id":"STATION 1"},{"exercise_id":"ex-plank","display_id":"local","duration":20}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var resp workoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Workout.ID == "" || resp.TotalDuration != 80 {
		t.Errorf("created = %+v total %d, want an id and total 80", resp.Workout, resp.TotalDuration)
	}

	if rec := do(t, h, http.MethodGet, "/api/workouts/"+resp.Workout.ID, ""); rec.Code != http.StatusOK {
		t.Errorf("get created status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/workouts", `{"id":"t1","name":"Again"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate id status = %d, want 409", rec.Code)
	}
}

func TestHandleSaveWorkout(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodPut, "/api/workouts/t1",
		`{"name":"Renamed","scheduled_days":[0,6],"modules":[{"id":"m1","exercise_id":"ex-burpees","display_id":"STATION 2"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp workoutResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Workout.Name != "Renamed" || resp.TotalDuration != 45 {
		t.Errorf("saved = %+v total %d, want Renamed total 45", resp.Workout, resp.TotalDuration)
	}

	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown exercise", "/api/workouts/t1", `{"name":"x","modules":[{"id":"a","exercise_id":"ex-nope","display_id":"local"}]}`},
		{"negative duration", "/api/workouts/t1", `{"name":"x","modules":[{"id":"a","exercise_id":"ex-plank","display_id":"local","duration":-5}]}`},
		{"bad scheduled day", "/api/workouts/t1", `{"name":"x","scheduled_days":[7]}`},
		{"blank name", "/api/workouts/t1", `{"name":" "}`},
		{"mismatched id", "/api/workouts/t1", `{"id":"t2","name":"x"}`},
		{"invalid json", "/api/workouts/t1", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPut, tt.path, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body)
			}
		})
	}

	rec = do(t, h, http.MethodGet, "/api/workouts/t1", "")
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Workout.Name != "Renamed" {
		t.Errorf("rejected save changed workout to %q", resp.Workout.Name)
	}
}

func TestHandleFolders(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, http.MethodGet, "/api/folders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var folders []models.Folder
	if err := json.NewDecoder(rec.Body).Decode(&folders); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != "f1" {
		t.Fatalf("folders = %+v, want seeded f1", folders)
	}

	if rec := do(t, h, http.MethodPut, "/api/folders/f2", `{"name":"Evenings","workout_ids":["t1"]}`); rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if rec := do(t, h, http.MethodPut, "/api/folders/f3", `{"name":"Bad","workout_ids":["missing"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown workout status = %d, want 400", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/folders", "")
	json.NewDecoder(rec.Body).Decode(&folders)
	if len(folders) != 2 || folders[1].Name != "Evenings" {
		t.Errorf("folders = %+v, want f1 and Evenings", folders)
	}
}

func TestWriteJSONLogsEncodeFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(buf.String(), "failed to encode response") {
		t.Errorf("log = %q, want encode failure", buf.String())
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	h, svc := newTestHandler(t)

	if rec := do(t, h, http.MethodGet, "/api/session", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status before start = %d, want 404", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/session", `{"workout_id":"t1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201: %s", rec.Code, rec.Body)
	}

	if rec := do(t, h, http.MethodPost, "/api/session", `{"workout_id":"t1"}`); rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/session/previous", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("previous status = %d, want 200", rec.Code)
	}
	var cmd commandResponse
	json.NewDecoder(rec.Body).Decode(&cmd)
	if cmd.Applied {
		t.Error("previous on first module applied")
	}

	rec = do(t, h, http.MethodPost, "/api/session/next", "")
	json.NewDecoder(rec.Body).Decode(&cmd)
	if !cmd.Applied || cmd.Status.ModuleIndex != 1 {
		t.Errorf("next = %+v, want applied at module 1", cmd)
	}

	if rec := do(t, h, http.MethodPost, "/api/session/jump", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/session", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d, want 200", rec.Code)
	}
	var st Status
	json.NewDecoder(rec.Body).Decode(&st)
	if st.State != StateComplete {
		t.Errorf("state after end = %s, want COMPLETE", st.State)
	}

	if rec := do(t, h, http.MethodDelete, "/api/session", ""); rec.Code != http.StatusConflict {
		t.Errorf("second end status = %d, want 409", rec.Code)
	}

	if _, err := svc.Start(t.Context(), "t1"); err != nil {
		t.Errorf("Start after end = %v, want nil", err)
	}
}

func TestStartUnknownWorkout(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := do(t, h, http.MethodPost, "/api/session", `{"workout_id":"missing"}`); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/session", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStationEndpointWithoutSession(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := do(t, h, http.MethodGet, "/ws/station?station_id=abc", ""); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

type staticHealth outbox.HealthStatus

func (s staticHealth) Check(context.Context) outbox.HealthStatus { return outbox.HealthStatus(s) }

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("plain health status = %d, want 200", rec.Code)
	}

	h.WithHealth(staticHealth{Healthy: false, Errors: []string{"NATS disconnected"}})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d, want 503", rec.Code)
	}
	var status outbox.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if len(status.Errors) != 1 {
		t.Errorf("errors = %v", status.Errors)
	}
}
