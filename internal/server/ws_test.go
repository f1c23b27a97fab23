package server_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxpipe/voxpipe/internal/realtime"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// dialRealtime connects to the realtime endpoint of a test server.
func dialRealtime(t *testing.T) *websocket.Conn {
	t.Helper()
	srv, _, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts)+"/v1/realtime/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readFrame reads one protocol frame with a timeout.
func readFrame(t *testing.T, conn *websocket.Conn) realtime.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg realtime.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return msg
}

// writeFrame sends one protocol frame.
func writeFrame(t *testing.T, conn *websocket.Conn, msg realtime.Message) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(msg)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestRealtime_HandshakeOverWebSocket(t *testing.T) {
	t.Parallel()
	conn := dialRealtime(t)

	writeFrame(t, conn, realtime.Message{Type: realtime.TypeHandshake, SessionID: "ws-1"})
	msg := readFrame(t, conn)
	if msg.Type != realtime.TypeSessionCreated || msg.SessionID != "ws-1" {
		t.Errorf("got %+v; want session.created ws-1", msg)
	}
}

func TestRealtime_FullTurnOverWebSocket(t *testing.T) {
	t.Parallel()
	conn := dialRealtime(t)

	writeFrame(t, conn, realtime.Message{Type: realtime.TypeHandshake})
	if msg := readFrame(t, conn); msg.Type != realtime.TypeSessionCreated {
		t.Fatalf("got %q; want session.created", msg.Type)
	}

	writeFrame(t, conn, realtime.Message{Type: realtime.TypeInputAudio, Audio: make([]byte, 4000)})
	writeFrame(t, conn, realtime.Message{Type: realtime.TypeInputCommit})

	if msg := readFrame(t, conn); msg.Type != realtime.TypeTranscriptFinal {
		t.Fatalf("got %q; want transcript.final", msg.Type)
	}
	if msg := readFrame(t, conn); msg.Type != realtime.TypeLLMResponse {
		t.Fatalf("got %q; want llm.response", msg.Type)
	}

	var sawComplete bool
	for !sawComplete {
		msg := readFrame(t, conn)
		switch msg.Type {
		case realtime.TypeOutputAudioChunk:
			if len(msg.Audio) == 0 {
				t.Error("audio chunk must carry data")
			}
		case realtime.TypeOutputComplete:
			sawComplete = true
		default:
			t.Fatalf("unexpected frame %+v", msg)
		}
	}
}

func TestRealtime_MalformedJSONIsViolation(t *testing.T) {
	t.Parallel()
	conn := dialRealtime(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readFrame(t, conn)
	if msg.Type != realtime.TypeError || msg.ErrorType != "ProtocolViolation" {
		t.Errorf("got %+v; want ProtocolViolation error", msg)
	}
}
