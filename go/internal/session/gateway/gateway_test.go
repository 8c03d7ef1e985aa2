package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testConfig() ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = 1
	return cfg
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func peerOf(t *testing.T, ev Event) *Peer {
	t.Helper()
	p, ok := ev.Channel.(*Peer)
	if !ok {
		t.Fatalf("channel is %T, want *Peer", ev.Channel)
	}
	return p
}

func nextEvent(t *testing.T, cm *ConnectionManager) Event {
	t.Helper()
	select {
	case ev := <-cm.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection event")
		return Event{}
	}
}

// stationServer accepts the host's dial and forwards every frame it reads.
func stationServer(t *testing.T, headers chan<- http.Header, frames chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			frames <- msg
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConnectDialsLocatedStation(t *testing.T) {
	headers := make(chan http.Header, 1)
	frames := make(chan []byte, 4)
	srv := stationServer(t, headers, frames)

	locator := NewStaticLocator(map[string]string{"Station 1": wsURL(srv)})
	cm := NewConnectionManager("sess-1", "ws://host.local/ws/station", locator, testConfig())
	cm.Connect(context.Background(), []string{"station 1", "station 2"})

	ev := nextEvent(t, cm)
	peer := peerOf(t, ev)
	if ev.Kind != Opened || peer.StationID != "station 1" || peer.Inbound {
		t.Fatalf("unexpected event %+v", ev)
	}

	h := <-headers
	if h.Get(HeaderSession) != "sess-1" {
		t.Errorf("%s = %q, want sess-1", HeaderSession, h.Get(HeaderSession))
	}
	if h.Get(HeaderCallback) != "ws://host.local/ws/station" {
		t.Errorf("%s = %q", HeaderCallback, h.Get(HeaderCallback))
	}

	if !peer.Send([]byte(`{"type":"END_SESSION"}`)) {
		t.Fatal("Send() = false on open peer")
	}
	select {
	case msg := <-frames:
		if string(msg) != `{"type":"END_SESSION"}` {
			t.Errorf("station got %s", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("station never received frame")
	}

	if got := cm.Stats().TotalConnections; got != 1 {
		t.Errorf("TotalConnections = %d, want 1", got)
	}

	cm.CloseAll()
	select {
	case <-peer.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer did not finish after CloseAll")
	}
}

func TestCloseFlushesQueuedFrames(t *testing.T) {
	headers := make(chan http.Header, 1)
	frames := make(chan []byte, 4)
	srv := stationServer(t, headers, frames)

	cm := NewConnectionManager("s", "", NewStaticLocator(map[string]string{"a": wsURL(srv)}), testConfig())
	cm.Connect(context.Background(), []string{"a"})
	ev := nextEvent(t, cm)

	ev.Channel.Send([]byte("last words"))
	ev.Channel.Close()

	var got []string
	for msg := range frames {
		got = append(got, string(msg))
	}
	if len(got) != 1 || got[0] != "last words" {
		t.Errorf("station received %v, want [last words]", got)
	}
}

func TestAcceptRegistersInboundStation(t *testing.T) {
	cm := NewConnectionManager("sess-2", "", nil, testConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cm.Accept(w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?station_id=ABC123&alias=%20Station%201%20&session_id=sess-2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ev := nextEvent(t, cm)
	peer := peerOf(t, ev)
	if ev.Kind != Opened || !peer.Inbound {
		t.Fatalf("unexpected event %+v", ev)
	}
	ids := ev.Channel.Identities()
	if len(ids) != 2 || ids[0] != "abc123" || ids[1] != "station 1" {
		t.Errorf("Identities() = %v, want [abc123 station 1]", ids)
	}

	conn.Close()
	ev = nextEvent(t, cm)
	if ev.Kind != Closed {
		t.Errorf("Kind = %v, want closed", ev.Kind)
	}
	if ev.Err == nil {
		t.Error("abrupt drop should report an error")
	}
}

func TestAcceptRejectsOtherSession(t *testing.T) {
	cm := NewConnectionManager("current", "", nil, testConfig())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ws/station?station_id=abc&session_id=old", nil)
	if err := cm.Accept(rec, req); err == nil {
		t.Fatal("expected error")
	}
	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusGone)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ws/station", nil)
	cm.Accept(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAcceptAfterCloseAllDropsConnection(t *testing.T) {
	cm := NewConnectionManager("sess-3", "", nil, testConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cm.Accept(w, r)
	}))
	defer srv.Close()

	cm.CloseAll()
	cm.CloseAll()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?station_id=late", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection accepted after CloseAll stayed open")
	} else if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatal("connection accepted after CloseAll was never closed")
	}
	if n := cm.Stats().TotalConnections; n != 0 {
		t.Errorf("TotalConnections = %d, want 0", n)
	}
	select {
	case ev := <-cm.Events():
		t.Errorf("unexpected event after CloseAll: %+v", ev)
	default:
	}
}

func TestSendSkipsWhenBufferFullOrClosed(t *testing.T) {
	p := NewPeer(nil, "s1", false, testConfig(), PeerHandler{})

	if !p.Send([]byte("one")) {
		t.Fatal("first Send() = false")
	}
	if p.Send([]byte("two")) {
		t.Error("Send() on full buffer = true, want skipped")
	}

	<-p.send
	p.Close()
	if p.Send([]byte("three")) {
		t.Error("Send() after Close = true")
	}
}

func TestLocateSubject(t *testing.T) {
	got := LocateSubject("", "  Station 1.A ")
	if got != "circuitcast.stations.locate.station_1_a" {
		t.Errorf("LocateSubject = %q", got)
	}
}

type fixedLocator struct {
	url string
	err error
}

func (f fixedLocator) Locate(context.Context, string) (string, error) { return f.url, f.err }

func TestChainLocator(t *testing.T) {
	chain := ChainLocator{
		NewStaticLocator(map[string]string{"known": "ws://a"}),
		fixedLocator{url: "ws://b"},
	}

	u, err := chain.Locate(context.Background(), "KNOWN")
	if err != nil || u != "ws://a" {
		t.Errorf("Locate(known) = %q, %v", u, err)
	}
	u, err = chain.Locate(context.Background(), "other")
	if err != nil || u != "ws://b" {
		t.Errorf("Locate(other) = %q, %v", u, err)
	}

	_, err = ChainLocator{NewStaticLocator(nil)}.Locate(context.Background(), "x")
	if !errors.Is(err, ErrStationUnknown) {
		t.Errorf("err = %v, want ErrStationUnknown", err)
	}
}
