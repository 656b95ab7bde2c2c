package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seantiz/runbook/internal/model"
)

func dialRun(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/executions/" + id + "/run"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvents drains event frames until the server closes the connection.
func readEvents(t *testing.T, conn *websocket.Conn) []model.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var events []model.Event
	for {
		var ev model.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return events
			}
			t.Fatalf("read frame: %v", err)
		}
		events = append(events, ev)
	}
}

func TestRunSocketStreamsScript(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-echo")
	if err := conn.WriteJSON(runRequest{Script: "echo over the wire"}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	events := readEvents(t, conn)
	if len(events) == 0 {
		t.Fatal("no events received")
	}

	var out strings.Builder
	for _, ev := range events[:len(events)-1] {
		if ev.Type != model.EventStdout {
			t.Errorf("mid-stream event type = %q, want stdout", ev.Type)
		}
		out.WriteString(ev.Content)
	}
	if !strings.Contains(out.String(), "over the wire") {
		t.Errorf("output = %q, want script output", out.String())
	}

	last := events[len(events)-1]
	if last.Type != model.EventExit {
		t.Errorf("last event type = %q, want exit", last.Type)
	}
	if last.ExitCode == nil || *last.ExitCode != 0 {
		t.Errorf("exit_code = %v, want 0", last.ExitCode)
	}
}

func TestRunSocketInteractiveInput(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-interactive")
	if err := conn.WriteJSON(runRequest{Script: `read -p "name? " n; echo "hello $n"`}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	// Wait for the prompt before answering.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var prompt strings.Builder
	for !strings.Contains(prompt.String(), "name?") {
		var ev model.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read prompt: %v", err)
		}
		prompt.WriteString(ev.Content)
	}

	if err := conn.WriteJSON(inboundFrame{Type: "input", Content: "world\n"}); err != nil {
		t.Fatalf("write input frame: %v", err)
	}

	events := readEvents(t, conn)
	var out strings.Builder
	for _, ev := range events {
		out.WriteString(ev.Content)
	}
	if !strings.Contains(out.String(), "hello world") {
		t.Errorf("output = %q, want %q", out.String(), "hello world")
	}
}

func TestRunSocketByCatalogID(t *testing.T) {
	srv := newTestServerWithScripts(t, map[string]string{
		"ops.md": "```bash {\"id\": \"greet\"}\necho from the runbook\n```\n",
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-catalog")
	if err := conn.WriteJSON(runRequest{ScriptID: "greet"}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	events := readEvents(t, conn)
	var out strings.Builder
	for _, ev := range events {
		out.WriteString(ev.Content)
	}
	if !strings.Contains(out.String(), "from the runbook") {
		t.Errorf("output = %q, want catalog script output", out.String())
	}
}

func TestRunSocketUnknownCatalogID(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-missing")
	if err := conn.WriteJSON(runRequest{ScriptID: "does-not-exist"}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]string
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if !strings.Contains(frame["error"], "unknown script id") {
		t.Errorf("frame = %v, want unknown script id error", frame)
	}
}

func TestRunSocketStalledClientDetaches(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the socket write deadline")
	}

	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-stall")
	// Enough output to overrun the stream buffer and every socket buffer.
	script := `head -c 5000000 /dev/zero | tr '\0' x; echo finished`
	if err := conn.WriteJSON(runRequest{Script: script, TimeoutS: 120}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	// Never read a frame. The write deadline must detach the handler and
	// let the run finish on its own.
	st := waitForState(t, srv, "ws-stall", model.StateCompleted, 30*time.Second)

	var sawOutput, sawExit bool
	for _, ev := range st.CachedEvents {
		if ev.Type == model.EventStdout && strings.Contains(ev.Content, "finished") {
			sawOutput = true
		}
		if ev.Type == model.EventExit {
			sawExit = true
		}
	}
	if !sawOutput || !sawExit {
		t.Errorf("cache output=%v exit=%v, want the full run cached after detach", sawOutput, sawExit)
	}
}

func TestRunSocketDisconnectKeepsProcess(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn := dialRun(t, ts, "ws-detach")
	script := "sleep 0.3; echo survived"
	if err := conn.WriteJSON(runRequest{Script: script}); err != nil {
		t.Fatalf("write run request: %v", err)
	}

	// Wait until the execution is registered, then drop the connection.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := srv.engine.GetStatus("ws-detach"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("execution never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	conn.Close()

	status := waitForState(t, srv, "ws-detach", model.StateCompleted, 5*time.Second)
	var out strings.Builder
	for _, ev := range status.CachedEvents {
		if ev.Type == model.EventStdout {
			out.WriteString(ev.Content)
		}
	}
	if !strings.Contains(out.String(), "survived") {
		t.Errorf("cached output = %q, want output produced after detach", out.String())
	}
}
