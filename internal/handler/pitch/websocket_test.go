package pitch

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/pitch-tank/backend/internal/observability"
	pitchsvc "github.com/zhouzirui/pitch-tank/backend/internal/service/pitch"
)

func dialSession(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOutgoing(t *testing.T, conn *websocket.Conn) outgoingMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string          `json:"type"`
		SessionID string          `json:"sessionId"`
		Data      json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return outgoingMessage{Type: msg.Type, SessionID: msg.SessionID, Data: msg.Data}
}

func TestWebSocketTextAndReset(t *testing.T) {
	engine := &fakeEngine{reply: pitchsvc.Reply{Message: "How big is the market?"}}
	h := New(engine, nil, nil, nil)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialSession(t, srv, "/vc/ws/ws-1?persona=Shark")

	if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "We make drones"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readOutgoing(t, conn)
	if msg.Type != "result" || msg.SessionID != "ws-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	var reply pitchsvc.Reply
	if err := json.Unmarshal(msg.Data.(json.RawMessage), &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Message != "How big is the market?" {
		t.Fatalf("reply = %+v", reply)
	}

	engine.mu.Lock()
	if engine.lastMsg != "We make drones" || engine.lastPers != "Shark" {
		t.Fatalf("engine got msg=%q persona=%q", engine.lastMsg, engine.lastPers)
	}
	engine.mu.Unlock()

	if err := conn.WriteJSON(map[string]any{"type": "reset"}); err != nil {
		t.Fatalf("write reset: %v", err)
	}
	msg = readOutgoing(t, conn)
	if msg.Type != "reset" || !strings.Contains(string(msg.Data.(json.RawMessage)), "Session 'ws-1' reset.") {
		t.Fatalf("unexpected reset message %+v", msg)
	}
}

func TestWebSocketErrors(t *testing.T) {
	h := New(&fakeEngine{}, nil, nil, nil)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialSession(t, srv, "/vc/ws/ws-2")

	inputs := []map[string]any{
		{"type": "audio"},
		{"type": "text", "data": map[string]string{"text": "  "}},
		{"type": "text", "sessionId": "other", "data": map[string]string{"text": "hi"}},
	}
	for _, in := range inputs {
		if err := conn.WriteJSON(in); err != nil {
			t.Fatalf("write: %v", err)
		}
		if msg := readOutgoing(t, conn); msg.Type != "error" {
			t.Fatalf("input %v: got %+v", in, msg)
		}
	}
}

func TestWebSocketNewConnectionReplacesOld(t *testing.T) {
	h := New(&fakeEngine{}, nil, nil, nil)
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	first := dialSession(t, srv, "/vc/ws/ws-3")
	_ = dialSession(t, srv, "/vc/ws/ws-3")

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("expected the first connection to be closed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.conns.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := h.conns.Count(); n != 1 {
		t.Fatalf("connections = %d, want 1", n)
	}

	h.Close()
	if n := h.conns.Count(); n != 0 {
		t.Fatalf("connections after Close = %d", n)
	}
}

func TestWebSocketMessageTypeLabelsAreBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := New(&fakeEngine{}, nil, nil, observability.NewMetrics("test", reg))
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialSession(t, srv, "/vc/ws/ws-4")
	for i := 0; i < 20; i++ {
		if err := conn.WriteJSON(map[string]any{"type": fmt.Sprintf("junk-%d", i)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if msg := readOutgoing(t, conn); msg.Type != "error" {
			t.Fatalf("got %+v", msg)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	inbound := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "test_ws_messages_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["direction"] == "in" {
				inbound[labels["type"]] = m.GetCounter().GetValue()
			}
		}
	}
	if len(inbound) != 1 || inbound["unknown"] != 20 {
		t.Fatalf("inbound series = %v", inbound)
	}
}

func TestInboundLabel(t *testing.T) {
	for in, want := range map[string]string{"text": "text", "reset": "reset", "audio": "unknown", "": "unknown"} {
		if got := inboundLabel(in); got != want {
			t.Fatalf("inboundLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWebSocketSlowReplyKeepsConnection(t *testing.T) {
	engine := &fakeEngine{reply: pitchsvc.Reply{Message: "And your margins?"}, delay: 400 * time.Millisecond}
	h := New(engine, nil, nil, nil)
	h.readTimeout = 250 * time.Millisecond
	srv := httptest.NewServer(newTestRouter(h))
	defer srv.Close()

	conn := dialSession(t, srv, "/vc/ws/ws-5")
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "answer"}}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if msg := readOutgoing(t, conn); msg.Type != "result" {
			t.Fatalf("reply %d: %+v", i, msg)
		}
	}
}
