package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/voxpipe/voxpipe/internal/realtime"
)

// writeTimeout bounds a single outbound frame write.
const writeTimeout = 10 * time.Second

// handleRealtime upgrades the connection and bridges it to a realtime
// session: one goroutine pumps session events to the socket while this
// handler reads client frames into the session.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	sess := realtime.NewSession(s.transcribe, s.generate, s.synthesize,
		realtime.WithNudge(s.nudges),
		realtime.WithHistory(s.turns),
		realtime.WithMetrics(s.metrics),
		realtime.WithLogger(s.log),
		realtime.WithSampleRate(s.cfg.Audio.SampleRate),
	)
	defer sess.Close()

	ctx := r.Context()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for msg := range sess.Events() {
			if err := writeFrame(ctx, conn, msg); err != nil {
				return
			}
			if msg.Type == realtime.TypeConversationEnding {
				conn.Close(websocket.StatusNormalClosure, "farewell")
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg realtime.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Malformed JSON is a protocol violation, not a transport error.
			msg = realtime.Message{Type: "malformed"}
		}
		if err := sess.Handle(ctx, msg); err != nil {
			break
		}
	}

	sess.Close()
	<-writeDone
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg realtime.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}
