package host

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/circuitcast/go/internal/models"
	"github.com/mcdev12/circuitcast/go/internal/session/events"
	"github.com/mcdev12/circuitcast/go/internal/session/gateway"
	"github.com/mcdev12/circuitcast/go/internal/session/outbox"
)

type fakeChannel struct {
	id  string
	ids []string

	mu     sync.Mutex
	frames []events.Message
	closed bool
}

func newFakeChannel(id string, ids ...string) *fakeChannel {
	return &fakeChannel{id: id, ids: ids}
}

func (c *fakeChannel) ConnID() string       { return c.id }
func (c *fakeChannel) Identities() []string { return c.ids }

func (c *fakeChannel) Send(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	msg, err := events.Decode(b)
	if err != nil {
		return false
	}
	c.frames = append(c.frames, msg)
	return true
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) messages() []events.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Message(nil), c.frames...)
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) last() events.Message {
	msgs := c.messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type fakeConns struct {
	events    chan gateway.Event
	connected chan []string

	mu       sync.Mutex
	closeAll int
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		events:    make(chan gateway.Event),
		connected: make(chan []string, 1),
	}
}

func (f *fakeConns) Connect(_ context.Context, ids []string) { f.connected <- ids }
func (f *fakeConns) Accept(http.ResponseWriter, *http.Request) error {
	return errors.New("not supported")
}
func (f *fakeConns) Events() <-chan gateway.Event { return f.events }
func (f *fakeConns) Stats() gateway.Stats         { return gateway.Stats{} }
func (f *fakeConns) CloseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeAll++
}

func (f *fakeConns) closedAll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeAll > 0
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (p *recordingPublisher) Enqueue(e outbox.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return true
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func intPtr(v int) *int { return &v }

// circuit is [A->host, B->S1, C->S1, D->host].
func circuit(durations ...int) models.Workout {
	displays := []string{models.LocalDisplayID, "S1", "s1 ", "local", "S2"}
	w := models.Workout{ID: "w1", Name: "Circuit"}
	for i, d := range durations {
		w.Modules = append(w.Modules, models.WorkoutModule{
			ID:          string(rune('A' + i)),
			ExerciseID:  "ex-jacks",
			DisplayID:   displays[i%len(displays)],
			DurationSec: intPtr(d),
		})
	}
	return w
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *clockwork.FakeClock
	conns  *fakeConns
	pub    *recordingPublisher
	sess   *Session
	result chan error
}

func startSession(t *testing.T, w models.Workout) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	h := &harness{
		t:      t,
		ctx:    ctx,
		clock:  clockwork.NewFakeClock(),
		conns:  newFakeConns(),
		pub:    &recordingPublisher{},
		result: make(chan error, 1),
	}
	h.sess = NewSession(w, nil, h.conns, h.pub, Config{HeartbeatInterval: time.Second, Clock: h.clock})
	go func() { h.result <- h.sess.Run(ctx) }()

	select {
	case <-h.conns.connected:
	case <-ctx.Done():
		t.Fatal("session never connected stations")
	}
	h.waitTimer()
	return h
}

// waitTimer blocks until the loop has armed its heartbeat.
func (h *harness) waitTimer() {
	h.t.Helper()
	if err := h.clock.BlockUntilContext(h.ctx, 1); err != nil {
		h.t.Fatalf("heartbeat never armed: %v", err)
	}
}

// tick advances one second and waits for the loop to re-arm.
func (h *harness) tick() {
	h.t.Helper()
	h.clock.Advance(time.Second)
	h.waitTimer()
}

func (h *harness) open(ch *fakeChannel) {
	h.t.Helper()
	h.conns.events <- gateway.Event{Kind: gateway.Opened, Channel: ch}
	waitFor(h.t, func() bool { return len(ch.messages()) > 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func syncOf(t *testing.T, msg events.Message) events.Sync {
	t.Helper()
	s, ok := msg.(events.Sync)
	if !ok {
		t.Fatalf("message is %T, want Sync", msg)
	}
	return s
}

func TestConnectsUniqueRemoteStations(t *testing.T) {
	conns := newFakeConns()
	sess := NewSession(circuit(5, 5, 5, 5, 5), nil, conns, nil, Config{Clock: clockwork.NewFakeClock()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	ids := <-conns.connected
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Errorf("connected %v, want [s1 s2]", ids)
	}
}

func TestOpenedChannelGetsImmediateSync(t *testing.T) {
	h := startSession(t, circuit(30, 30))
	h.clock.Advance(400 * time.Millisecond)

	ch := newFakeChannel("c1", "s1")
	h.open(ch)

	s := syncOf(t, ch.messages()[0])
	if *s.CurrentIndex != 0 || s.Workout == nil || len(s.Workout.Modules) != 2 {
		t.Errorf("unexpected first sync: %+v", s)
	}
	if rem, _ := s.Remaining(); rem != 29600*time.Millisecond {
		t.Errorf("Remaining() = %v, want 29.6s", rem)
	}
	if got := h.sess.Status().Stations; len(got) != 1 || got[0] != "s1" {
		t.Errorf("Stations = %v, want [s1]", got)
	}
}

func TestHeartbeatAdvancesAndCompletes(t *testing.T) {
	h := startSession(t, circuit(2, 2))
	ch := newFakeChannel("c1", "s1")
	h.open(ch)

	h.tick()
	if got := h.sess.Status(); got.ModuleIndex != 0 || got.RemainingSec != 1 {
		t.Errorf("after 1s: index %d remaining %d, want 0/1", got.ModuleIndex, got.RemainingSec)
	}

	h.tick()
	st := h.sess.Status()
	if st.ModuleIndex != 1 || st.State != StateRunning || st.Progress != "2/2" {
		t.Errorf("after 2s: %+v, want module 1 RUNNING", st)
	}
	last := syncOf(t, ch.last())
	if *last.CurrentIndex != 1 {
		t.Errorf("last sync index = %d, want 1", *last.CurrentIndex)
	}

	h.clock.Advance(time.Second)
	h.waitTimer()
	h.clock.Advance(time.Second)

	select {
	case err := <-h.result:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not complete")
	}

	if _, ok := ch.last().(events.EndSession); !ok {
		t.Errorf("last frame = %T, want EndSession", ch.last())
	}
	if !h.conns.closedAll() {
		t.Error("channels not closed on completion")
	}
	if st := h.sess.Status(); st.State != StateComplete || st.EndReason != "completed" {
		t.Errorf("final status %s/%s, want COMPLETE/completed", st.State, st.EndReason)
	}

	types := h.pub.types()
	if types[0] != events.EventSessionStarted || types[len(types)-1] != events.EventSessionCompleted {
		t.Errorf("published %v", types)
	}
}

func TestPauseResumeShiftsEndTimestamp(t *testing.T) {
	h := startSession(t, circuit(30))
	h.tick()

	before := h.sess.Status().EndsAt
	if ok, err := h.sess.Pause(h.ctx); !ok || err != nil {
		t.Fatalf("Pause() = %v, %v", ok, err)
	}
	if ok, _ := h.sess.Pause(h.ctx); ok {
		t.Error("second Pause() applied")
	}

	h.clock.Advance(17 * time.Second)
	if st := h.sess.Status(); st.State != StatePaused || st.RemainingSec != 29 {
		t.Errorf("paused status %s remaining %d, want PAUSED/29", st.State, st.RemainingSec)
	}

	if ok, err := h.sess.TogglePause(h.ctx); !ok || err != nil {
		t.Fatalf("TogglePause() = %v, %v", ok, err)
	}
	after := h.sess.Status().EndsAt
	if want := before.Add(17 * time.Second); !after.Equal(want) {
		t.Errorf("EndsAt after resume = %v, want %v", after, want)
	}
}

func TestPausedHeartbeatStops(t *testing.T) {
	h := startSession(t, circuit(3))
	ch := newFakeChannel("c1", "s1")
	h.open(ch)

	h.sess.Pause(h.ctx)
	sent := len(ch.messages())
	paused := syncOf(t, ch.last())
	if paused.Paused == nil || !*paused.Paused || paused.PausedRemainingMs == nil {
		t.Fatalf("pause broadcast missing paused fields: %+v", paused)
	}

	h.clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := len(ch.messages()); got != sent {
		t.Errorf("frames while paused = %d, want %d", got, sent)
	}
	if h.sess.Status().State != StatePaused {
		t.Error("paused session advanced")
	}
}

func TestNavigationBounds(t *testing.T) {
	h := startSession(t, circuit(10, 10, 10))
	ch := newFakeChannel("c1", "s1")
	h.open(ch)

	if ok, err := h.sess.Previous(h.ctx); ok || err != nil {
		t.Errorf("Previous() on first module = %v, %v", ok, err)
	}
	h.clock.Advance(4 * time.Second)

	if ok, _ := h.sess.Next(h.ctx); !ok {
		t.Fatal("Next() = false")
	}
	st := h.sess.Status()
	if st.ModuleIndex != 1 || st.RemainingSec != 10 {
		t.Errorf("after Next: index %d remaining %d, want 1/10", st.ModuleIndex, st.RemainingSec)
	}
	if s := syncOf(t, ch.last()); *s.CurrentIndex != 1 {
		t.Errorf("broadcast index = %d, want 1", *s.CurrentIndex)
	}

	h.sess.Next(h.ctx)
	if ok, _ := h.sess.Next(h.ctx); ok {
		t.Error("Next() past last module applied")
	}
	if st := h.sess.Status(); !st.CanPrevious || st.CanNext {
		t.Errorf("CanPrevious/CanNext = %v/%v, want true/false", st.CanPrevious, st.CanNext)
	}
}

func TestEndSendsEndSessionBeforeClosing(t *testing.T) {
	h := startSession(t, circuit(30, 30))
	ch := newFakeChannel("c1", "s1")
	h.open(ch)

	if err := h.sess.End(h.ctx); err != nil {
		t.Fatalf("End() = %v", err)
	}
	if _, ok := ch.last().(events.EndSession); !ok {
		t.Errorf("last frame = %T, want EndSession", ch.last())
	}
	if !h.conns.closedAll() {
		t.Error("CloseAll not called")
	}
	if _, err := h.sess.Pause(context.Background()); !errors.Is(err, ErrSessionOver) {
		t.Errorf("Pause() after End = %v, want ErrSessionOver", err)
	}
	if st := h.sess.Status(); st.EndReason != "operator" {
		t.Errorf("EndReason = %q, want operator", st.EndReason)
	}
}

func TestReopenedIdentityReplacesChannel(t *testing.T) {
	h := startSession(t, circuit(30))
	old := newFakeChannel("c1", "abc123", "s1")
	h.open(old)

	fresh := newFakeChannel("c2", "s1")
	h.open(fresh)
	if !old.isClosed() {
		t.Error("previous channel for s1 not closed")
	}

	h.tick()
	waitFor(t, func() bool { return len(fresh.messages()) == 2 })
	if got := h.sess.Status().Stations; len(got) != 1 || got[0] != "s1" {
		t.Errorf("Stations = %v, want [s1]", got)
	}
}

func TestClosedChannelLeavesBroadcastSet(t *testing.T) {
	h := startSession(t, circuit(30))
	a := newFakeChannel("a", "s1")
	b := newFakeChannel("b", "s2")
	h.open(a)
	h.open(b)

	h.conns.events <- gateway.Event{Kind: gateway.Closed, Channel: a, Err: errors.New("reset by peer")}
	h.tick()
	waitFor(t, func() bool { return len(b.messages()) == 2 })

	if got := len(a.messages()); got != 1 {
		t.Errorf("closed channel got %d frames, want 1", got)
	}
	types := h.pub.types()
	if types[len(types)-1] != events.EventStationDisconnected {
		t.Errorf("last event = %s, want %s", types[len(types)-1], events.EventStationDisconnected)
	}
}

func TestEmptyWorkoutFailsToStart(t *testing.T) {
	conns := newFakeConns()
	sess := NewSession(models.Workout{ID: "empty"}, nil, conns, nil, Config{Clock: clockwork.NewFakeClock()})
	if err := sess.Run(context.Background()); err == nil {
		t.Fatal("Run() on empty workout should fail")
	}
	if sess.Status().State != StateComplete {
		t.Errorf("State = %s, want COMPLETE", sess.Status().State)
	}
}
