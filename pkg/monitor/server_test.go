package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/gazelog/pkg/bridge"
	"github.com/teslashibe/gazelog/pkg/catalog"
	"github.com/teslashibe/gazelog/pkg/gaze"
	"github.com/teslashibe/gazelog/pkg/protocol"
	"github.com/teslashibe/gazelog/pkg/recorder"
	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

type mockLister struct {
	entries []catalog.Entry
	err     error
	limit   int
}

func (m *mockLister) List(ctx context.Context, limit int) ([]catalog.Entry, error) {
	m.limit = limit
	return m.entries, m.err
}

func getJSON(t *testing.T, app *fiber.App, url string, v interface{}) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil))
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			t.Fatalf("Bad JSON %s: %v", body, err)
		}
	}
	return resp.StatusCode
}

func TestStatusLifecycle(t *testing.T) {
	s := NewServer(Config{}, nil)

	var st Status
	if code := getJSON(t, s.App(), "/api/status", &st); code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	if st.Recording || st.Tick != nil || st.Session != nil {
		t.Errorf("Expected idle status, got %+v", st)
	}

	s.SessionStarted(3, "abc", "/logs/003.txt")
	s.HandleTick(recorder.Tick{Seq: 7, Recording: true, Gaze: gaze.Snapshot{Wink: gaze.WinkLeft}})
	s.AddComponent("bridge", func() interface{} { return bridge.Stats{FramesReceived: 42} })

	st = Status{}
	getJSON(t, s.App(), "/api/status", &st)
	if !st.Recording || st.Session.Serial != 3 {
		t.Errorf("Expected recording session 3, got %+v", st.Session)
	}
	if st.Tick == nil || st.Tick.Seq != 7 || st.Tick.Gaze.Wink != gaze.WinkLeft {
		t.Errorf("Expected latest tick, got %+v", st.Tick)
	}
	comp, ok := st.Components["bridge"].(map[string]interface{})
	if !ok || comp["frames_received"] != float64(42) {
		t.Errorf("Expected bridge component, got %+v", st.Components)
	}

	s.SessionEnded(sessionlog.Result{Serial: 3, Rows: 10, Reason: "tracker lost"})
	st = Status{}
	getJSON(t, s.App(), "/api/status", &st)
	if st.Recording || st.Session.Reason != "tracker lost" || st.Session.Rows != 10 {
		t.Errorf("Expected ended session, got %+v", st.Session)
	}
}

func TestSessionsEndpoint(t *testing.T) {
	lister := &mockLister{entries: []catalog.Entry{{Path: "/logs/002.txt", Serial: 2}, {Path: "/logs/001.txt", Serial: 1}}}
	s := NewServer(Config{}, lister)

	var body struct {
		Sessions []catalog.Entry `json:"sessions"`
		Count    int             `json:"count"`
	}
	if code := getJSON(t, s.App(), "/api/sessions?limit=5", &body); code != 200 {
		t.Fatalf("Status = %d, want 200", code)
	}
	if body.Count != 2 || body.Sessions[0].Serial != 2 {
		t.Errorf("Unexpected body %+v", body)
	}
	if lister.limit != 5 {
		t.Errorf("limit = %d, want 5", lister.limit)
	}

	getJSON(t, s.App(), "/api/sessions", nil)
	if lister.limit != defaultSessionLimit {
		t.Errorf("default limit = %d, want %d", lister.limit, defaultSessionLimit)
	}

	if code := getJSON(t, s.App(), "/api/sessions?limit=-1", nil); code != 400 {
		t.Errorf("Status = %d, want 400", code)
	}

	lister.err = errors.New("disk gone")
	if code := getJSON(t, s.App(), "/api/sessions", nil); code != 500 {
		t.Errorf("Status = %d, want 500", code)
	}
}

func TestSessionsWithoutCatalog(t *testing.T) {
	s := NewServer(Config{}, nil)
	if code := getJSON(t, s.App(), "/api/sessions", nil); code != 503 {
		t.Errorf("Status = %d, want 503", code)
	}
}

func TestGazeRequiresUpgrade(t *testing.T) {
	s := NewServer(Config{}, nil)
	if code := getJSON(t, s.App(), "/ws/gaze", nil); code != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426", code)
	}
}

func TestMountBridge(t *testing.T) {
	s := NewServer(Config{}, nil)
	s.Mount(bridge.NewReceiver(bridge.NewBuffer(0)))
	if code := getJSON(t, s.App(), bridge.TrackerPath, nil); code != fiber.StatusUpgradeRequired {
		t.Errorf("Status = %d, want 426 for mounted tracker route", code)
	}
}

func TestPublishThrottle(t *testing.T) {
	s := NewServer(Config{PublishInterval: 100 * time.Millisecond}, nil)
	base := time.Unix(1000, 0)

	s.HandleTick(recorder.Tick{Seq: 1, Time: base})
	first := s.lastPublish
	s.HandleTick(recorder.Tick{Seq: 2, Time: base.Add(50 * time.Millisecond)})
	if !s.lastPublish.Equal(first) {
		t.Error("Tick inside the interval should not publish")
	}
	s.HandleTick(recorder.Tick{Seq: 3, Time: base.Add(100 * time.Millisecond)})
	if !s.lastPublish.Equal(base.Add(100 * time.Millisecond)) {
		t.Error("Tick after the interval should publish")
	}
	if s.Status().Tick.Seq != 3 {
		t.Error("Status should always reflect the newest tick")
	}
}

func TestGazeStream(t *testing.T) {
	s := NewServer(Config{Port: "18191"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	s.SessionStarted(1, "id-1", "/logs/001.txt")

	ws, _, err := websocket.DefaultDialer.Dial("ws://localhost:18191/ws/gaze", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(time.Second))
	msg := readMessage(t, ws)
	if msg.Type != protocol.TypeSession {
		t.Fatalf("Expected session catch-up first, got %s", msg.Type)
	}

	deadline := time.Now().Add(time.Second)
	for s.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.HandleTick(recorder.Tick{Seq: 11, Recording: true})
	msg = readMessage(t, ws)
	if msg.Type != protocol.TypeTick {
		t.Fatalf("Expected tick, got %s", msg.Type)
	}
	var tick recorder.Tick
	msg.ParseData(&tick)
	if tick.Seq != 11 {
		t.Errorf("Seq = %d, want 11", tick.Seq)
	}

	ping, _ := protocol.NewPingMessage("m1")
	raw, _ := ping.Bytes()
	ws.WriteMessage(websocket.TextMessage, raw)
	if msg := readMessage(t, ws); msg.Type != protocol.TypePong {
		t.Errorf("Expected pong, got %s", msg.Type)
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(time.Second))
	kind, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("Expected a text frame, got type %d", kind)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage(%s) error = %v", strings.TrimSpace(string(data)), err)
	}
	return msg
}
