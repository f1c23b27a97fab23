// Package realtime implements the bidirectional streaming conversation
// protocol: a per-connection session state machine that accepts audio frames,
// produces partial and final transcripts, generates replies and streams
// synthesized audio back in chunks.
//
// The session is transport-agnostic: a server read loop feeds inbound frames
// through [Session.Handle] and forwards everything from [Session.Events] to
// the client. Protocol violations are reported as error frames without
// tearing down the session; only an explicit farewell or [Session.Close]
// ends it.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/history"
	"github.com/voxpipe/voxpipe/internal/nudge"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/pipeline"
	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// State is the session lifecycle phase.
type State uint8

// Session states. Transitions: AwaitingHandshake → Listening ⇄ Committing →
// Responding → Listening, with Closed terminal after a farewell or Close.
const (
	StateAwaitingHandshake State = iota
	StateListening
	StateCommitting
	StateResponding
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateListening:
		return "listening"
	case StateCommitting:
		return "committing"
	case StateResponding:
		return "responding"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	// partialWindow is how much buffered audio triggers a speculative
	// partial transcription attempt.
	partialWindow = 2 * time.Second

	// Output audio chunk sizes. Farewell replies use larger chunks since no
	// interruption is expected after conversation.ending.
	chunkMs         = 250
	farewellChunkMs = 500

	// historyContextTurns bounds the LLM conversation context.
	historyContextTurns = 10

	// eventBuffer sizes the outbound event channel; a reply's audio chunks
	// must fit without blocking the responder.
	eventBuffer = 256
)

// farewellWords end the conversation when present in a final transcript.
var farewellWords = []string{"goodbye", "bye", "exit", "quit"}

// Session is one realtime conversation. Handle may be called from a single
// reader goroutine; the session runs reply generation on its own goroutine
// so cancel frames take effect mid-reply.
type Session struct {
	transcribe stt.Transcriber
	generate   llm.Generator
	synthesize tts.Synthesizer

	nudges     *nudge.Engine
	turns      history.Store
	metrics    *observe.Metrics
	log        *slog.Logger
	sampleRate int

	mu          sync.Mutex
	id          string
	state       State
	lang, voice string
	buf         []byte
	partialAt   int  // buffer length at the last partial attempt
	partialBusy bool // a partial transcription is in flight
	cancelTurn  context.CancelFunc
	turnDone    sync.WaitGroup

	events    chan Message
	closeOnce sync.Once
}

// Option is a functional option for configuring a Session.
type Option func(*Session)

// WithNudge sets the nudge engine. Without one no nudges are evaluated.
func WithNudge(e *nudge.Engine) Option {
	return func(s *Session) { s.nudges = e }
}

// WithHistory sets the conversation history store used for LLM context.
func WithHistory(st history.Store) Option {
	return func(s *Session) { s.turns = st }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithSampleRate sets the PCM sample rate expected from the client and used
// for output chunking. Defaults to [audio.DefaultSampleRate].
func WithSampleRate(hz int) Option {
	return func(s *Session) { s.sampleRate = hz }
}

// NewSession creates a Session wired to the given providers, in the
// awaiting-handshake state.
func NewSession(t stt.Transcriber, g llm.Generator, ts tts.Synthesizer, opts ...Option) *Session {
	s := &Session{
		transcribe: t,
		generate:   g,
		synthesize: ts,
		sampleRate: audio.DefaultSampleRate,
		state:      StateAwaitingHandshake,
		events:     make(chan Message, eventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Events returns the outbound frame stream. It is closed when the session
// ends; the final frame before close is conversation.ending when the client
// said farewell.
func (s *Session) Events() <-chan Message { return s.events }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the session id, empty before the handshake.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Handle processes one inbound frame. A protocol violation emits an error
// frame and keeps the session alive; Handle only returns a non-nil error
// when the session is closed and the caller should stop reading.
func (s *Session) Handle(ctx context.Context, msg Message) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateClosed {
		return context.Canceled
	}

	switch msg.Type {
	case TypeHandshake:
		s.handleHandshake(msg)
	case TypeInputAudio:
		s.handleAudio(ctx, msg)
	case TypeInputCommit:
		s.handleCommit(ctx)
	case TypeCancel:
		s.handleCancel()
	default:
		s.violation("unknown message type %q", msg.Type)
	}
	return nil
}

// Close terminates the session, cancelling any in-flight reply and closing
// the event stream. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	cancel := s.cancelTurn
	s.cancelTurn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.turnDone.Wait()
	s.closeOnce.Do(func() {
		// The gauge was incremented at handshake time; an unhandshaken
		// session never counted.
		if s.ID() != "" {
			s.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		close(s.events)
	})
}

// ─── Frame handlers ───

func (s *Session) handleHandshake(msg Message) {
	s.mu.Lock()
	if s.state != StateAwaitingHandshake {
		s.mu.Unlock()
		s.violation("handshake in state %s", s.state)
		return
	}
	s.id = msg.SessionID
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.lang = msg.Lang
	s.voice = msg.Voice
	s.state = StateListening
	id := s.id
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(context.Background(), 1)
	s.log.Info("realtime session created", "session_id", id)
	s.emit(Message{Type: TypeSessionCreated, SessionID: id})
}

func (s *Session) handleAudio(ctx context.Context, msg Message) {
	s.mu.Lock()
	switch s.state {
	case StateCommitting, StateResponding:
		// Clients keep streaming while a reply is in flight; those frames
		// are the head of the next utterance, so hold on to them.
		s.buf = append(s.buf, msg.Audio...)
		s.mu.Unlock()
		return
	case StateListening:
	default:
		state := s.state
		s.mu.Unlock()
		s.violation("input.audio in state %s", state)
		return
	}
	s.buf = append(s.buf, msg.Audio...)

	// Attempt one speculative partial per window of new audio.
	window := int(partialWindow.Seconds()) * s.sampleRate * 2
	var snapshot []byte
	if !s.partialBusy && len(s.buf)-s.partialAt >= window {
		s.partialBusy = true
		s.partialAt = len(s.buf)
		snapshot = make([]byte, len(s.buf))
		copy(snapshot, s.buf)
	}
	lang := s.lang
	s.mu.Unlock()

	if snapshot == nil {
		return
	}
	s.turnDone.Add(1)
	go func() {
		defer s.turnDone.Done()
		defer func() {
			s.mu.Lock()
			s.partialBusy = false
			s.mu.Unlock()
		}()
		res, err := s.transcribe.Transcribe(ctx, snapshot, lang)
		text := res.Text
		if err != nil {
			// Partials are best-effort; show activity, keep listening.
			text = "..."
		}
		if s.State() == StateListening {
			s.emit(Message{Type: TypeTranscriptPartial, Text: text})
		}
	}()
}

func (s *Session) handleCommit(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateListening {
		state := s.state
		s.mu.Unlock()
		s.violation("input.commit in state %s", state)
		return
	}
	if len(s.buf) == 0 {
		s.mu.Unlock()
		s.violation("input.commit with no buffered audio")
		return
	}
	pcm := s.buf
	s.buf = nil
	s.partialAt = 0
	s.state = StateCommitting

	turnCtx, cancel := context.WithCancel(ctx)
	s.cancelTurn = cancel
	s.mu.Unlock()

	s.turnDone.Add(1)
	go func() {
		defer s.turnDone.Done()
		defer cancel()
		s.respond(turnCtx, pcm)
	}()
}

func (s *Session) handleCancel() {
	s.mu.Lock()
	if s.state != StateCommitting && s.state != StateResponding {
		state := s.state
		s.mu.Unlock()
		s.violation("cancel in state %s", state)
		return
	}
	cancel := s.cancelTurn
	s.cancelTurn = nil
	s.state = StateListening
	s.buf = nil
	s.partialAt = 0
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Debug("reply cancelled", "session_id", s.ID())
}

// ─── Reply generation ───

// respond runs the committed audio through the providers and streams the
// reply. It runs on its own goroutine; a cancel frame aborts it via ctx.
func (s *Session) respond(ctx context.Context, pcm []byte) {
	s.mu.Lock()
	id, lang, voice := s.id, s.lang, s.voice
	s.mu.Unlock()

	tr, err := s.transcribe.Transcribe(ctx, pcm, lang)
	if s.failed(ctx, "stt", err) {
		return
	}
	s.emit(Message{Type: TypeTranscriptFinal, Text: tr.Text, Confidence: tr.Confidence})
	s.appendTurn(ctx, id, "user", tr.Text)

	farewell := isFarewell(tr.Text)

	if !s.transition(StateCommitting, StateResponding) {
		return
	}

	resp, err := s.generate.Generate(ctx, llm.Request{
		Prompt:  tr.Text,
		History: s.context(ctx, id),
	})
	if s.failed(ctx, "llm", err) {
		return
	}
	reply := strings.TrimSpace(resp.Text)

	out := Message{Type: TypeLLMResponse, Text: reply}
	if s.nudges != nil {
		if out.Nudge = s.nudges.Evaluate(id, tr.Text); out.Nudge != nil {
			s.metrics.NudgesFired.Add(ctx, 1)
		}
	}
	s.emit(out)
	s.appendTurn(ctx, id, "assistant", reply)

	wav, err := s.synthesize.Synthesize(ctx, reply, voice)
	if s.failed(ctx, "tts", err) {
		return
	}

	ms := chunkMs
	if farewell {
		ms = farewellChunkMs
	}
	chunks := audio.Chunk(wav, ms, s.sampleRate)
	for i, c := range chunks {
		if ctx.Err() != nil {
			return
		}
		s.emit(Message{Type: TypeOutputAudioChunk, Audio: c, Seq: i})
	}
	s.emit(Message{Type: TypeOutputComplete, Chunks: len(chunks)})

	if farewell {
		s.emit(Message{Type: TypeConversationEnding, Text: reply})
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return
	}
	s.transition(StateResponding, StateListening)
}

// failed reports a provider error back to the client and returns the
// session to listening. Cancellation is silent: the cancel handler already
// restored the state.
func (s *Session) failed(ctx context.Context, stage string, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	s.metrics.RecordStage(ctx, stage, 0, true)
	s.log.Warn("realtime stage failed", "session_id", s.ID(), "stage", stage, "error", err)
	s.emit(errorMsg(pipeline.ErrorType(err), err.Error()))

	s.mu.Lock()
	if s.state == StateCommitting || s.state == StateResponding {
		s.state = StateListening
	}
	s.mu.Unlock()
	return true
}

// transition moves from → to, returning false when another frame (cancel,
// close) already changed the state.
func (s *Session) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) violation(format string, args ...any) {
	s.emit(errorMsg("ProtocolViolation", fmt.Sprintf(format, args...)))
}

func (s *Session) emit(msg Message) {
	select {
	case s.events <- msg:
	default:
		// A client that stops reading loses frames rather than wedging the
		// responder.
		s.log.Warn("realtime event dropped", "session_id", s.ID(), "type", msg.Type)
	}
}

func (s *Session) context(ctx context.Context, id string) []llm.Message {
	if s.turns == nil {
		return nil
	}
	turns, err := s.turns.RecentTurns(ctx, id, historyContextTurns)
	if err != nil {
		s.log.Warn("history lookup failed", "session_id", id, "error", err)
		return nil
	}
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Text})
	}
	return msgs
}

func (s *Session) appendTurn(ctx context.Context, id, role, text string) {
	if s.turns == nil {
		return
	}
	if err := s.turns.AppendTurn(ctx, id, history.Turn{Role: role, Text: text, At: time.Now()}); err != nil {
		s.log.Warn("history append failed", "session_id", id, "error", err)
	}
}

// isFarewell reports whether the transcript ends the conversation.
func isFarewell(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		for _, f := range farewellWords {
			if word == f {
				return true
			}
		}
	}
	return false
}
