package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mock_interview_backend/internal/model"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func readWSMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

// TestSessionHubDeliversToRoom verifies local delivery, heartbeat replies and cleanup on disconnect.
func TestSessionHubDeliversToRoom(t *testing.T) {
	hub := NewSessionHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 7, 1)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "registration", func() bool { return hub.RoomSize(7) == 1 })

	// 其他会话的事件不应送达
	hub.Publish(context.Background(), SessionEvent{Type: EventSessionStarted, SessionID: 8, Status: model.StatusInProgress})
	hub.Publish(context.Background(), SessionEvent{Type: EventAnswerSubmitted, SessionID: 7, Status: model.StatusInProgress, QuestionID: 3})

	msg := readWSMessage(t, conn)
	if msg.Type != EventAnswerSubmitted {
		t.Fatalf("expected %s, got %s", EventAnswerSubmitted, msg.Type)
	}
	data, _ := msg.Data.(map[string]interface{})
	if data["questionId"] != float64(3) {
		t.Fatalf("unexpected payload %v", msg.Data)
	}

	if err := conn.WriteJSON(WSMessage{Type: "PING"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWSMessage(t, conn); msg.Type != "PONG" {
		t.Fatalf("expected PONG, got %s", msg.Type)
	}

	conn.Close()
	waitFor(t, "unregistration", func() bool { return hub.RoomSize(7) == 0 })
}

// TestSessionHubRejectsAfterStop verifies a stopped hub does not accept new clients.
func TestSessionHubRejectsAfterStop(t *testing.T) {
	hub := NewSessionHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()
	hub.Stop()
	<-stopped

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 7, 1)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed")
	}
	if hub.RoomSize(7) != 0 {
		t.Fatalf("expected empty room")
	}
}

// TestSessionHubStopClosesLiveClients verifies connected clients are closed cleanly on shutdown while still sending heartbeats.
func TestSessionHubStopClosesLiveClients(t *testing.T) {
	hub := NewSessionHub(nil)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, 9, 1)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "registration", func() bool { return hub.RoomSize(9) == 1 })

	// 关闭期间持续发送心跳
	stopPing := make(chan struct{})
	pinged := make(chan struct{})
	go func() {
		defer close(pinged)
		for {
			select {
			case <-stopPing:
				return
			default:
			}
			if err := conn.WriteJSON(WSMessage{Type: "PING"}); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	hub.Stop()
	if hub.RoomSize(9) != 0 {
		t.Fatalf("expected rooms cleared")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Fatalf("expected going-away close, got %v", err)
		}
		break
	}
	close(stopPing)
	<-pinged
}
