// Package session implements the live protocol over a WebSocket transport:
// the setup handshake, the outbound intent queue, and the single inbound
// decode loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auralis-ai/geminilive/logger"
	"github.com/auralis-ai/geminilive/metrics"
	"github.com/auralis-ai/geminilive/transport"
	"github.com/auralis-ai/geminilive/wire"
)

// ErrNotConnected is returned by send operations when the session is not
// connected.
var ErrNotConnected = transport.ErrNotConnected

// ErrSetupTimeout indicates the service did not acknowledge setup in time.
var ErrSetupTimeout = errors.New("session: setup not acknowledged before deadline")

// State is the session lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingSetupAck
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingSetupAck:
		return "awaiting_setup_ack"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config configures a Session.
type Config struct {
	// URL is the full WebSocket endpoint including auth.
	URL string

	// Setup is the setup payload sent as the first frame after connecting.
	Setup wire.Setup

	// OnEvent receives every decoded inbound event, in arrival order, from
	// a single goroutine.
	OnEvent func(wire.Event)

	// OnClosed is invoked once when the receive loop ends. The error is nil
	// for a requested close. Optional.
	OnClosed func(err error)

	// DialTimeout, SetupDeadline, HeartbeatInterval and MaxRetries tune the
	// transport. Zero values take transport defaults; a zero SetupDeadline
	// defaults to 10s; a zero HeartbeatInterval disables the heartbeat.
	DialTimeout       time.Duration
	SetupDeadline     time.Duration
	HeartbeatInterval time.Duration
	MaxRetries        int
}

// Session drives one live protocol connection. Outbound intents sent before
// the service acknowledges setup are queued and flushed in order the moment
// the session becomes active.
type Session struct {
	id  string
	cfg Config

	mu     sync.Mutex
	state  State
	conn   *transport.Conn
	queue  []any
	cancel context.CancelFunc

	setupAck chan struct{}
}

// New creates a disconnected Session.
func New(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("session: url is required")
	}
	if cfg.OnEvent == nil {
		return nil, fmt.Errorf("session: event callback is required")
	}
	if cfg.SetupDeadline == 0 {
		cfg.SetupDeadline = 10 * time.Second
	}
	return &Session{
		id:  uuid.NewString(),
		cfg: cfg,
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the endpoint, sends the setup frame, and blocks until the
// service acknowledges it or the deadline passes. On return the session is
// active and queued intents have been flushed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: connect from state %s", state)
	}
	s.state = StateConnecting
	s.setupAck = make(chan struct{})
	if s.conn == nil {
		s.conn = transport.NewConn(&transport.Config{
			URL:         s.cfg.URL,
			DialTimeout: s.cfg.DialTimeout,
			MaxRetries:  s.cfg.MaxRetries,
			Logger:      slogAdapter{},
		})
	} else {
		// Reconnecting reuses the wrapper but never the old socket.
		s.conn.Reset()
	}
	conn := s.conn
	setupAck := s.setupAck
	s.mu.Unlock()

	started := time.Now()

	if err := conn.ConnectWithRetry(ctx); err != nil {
		s.toDisconnected()
		return fmt.Errorf("session: %w", err)
	}

	if err := conn.Send(&wire.SetupEnvelope{Setup: s.cfg.Setup}); err != nil {
		_ = conn.Close()
		s.toDisconnected()
		return fmt.Errorf("session: send setup: %w", err)
	}
	metrics.RecordMessage("sent", "setup")

	s.mu.Lock()
	s.state = StateAwaitingSetupAck
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.receiveLoop(loopCtx, conn)
	if s.cfg.HeartbeatInterval > 0 {
		conn.StartHeartbeat(loopCtx, s.cfg.HeartbeatInterval)
	}

	select {
	case <-setupAck:
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	case <-time.After(s.cfg.SetupDeadline):
		_ = s.Close()
		return ErrSetupTimeout
	}

	metrics.RecordConnectDuration(time.Since(started).Seconds())
	metrics.RecordSessionStart()
	logger.Info("session active", "session_id", s.id)
	return nil
}

// SendAudio sends one PCM16 chunk of microphone audio.
func (s *Session) SendAudio(pcm []byte) error {
	env, err := wire.EncodeAudioChunk(pcm)
	if err != nil {
		return err
	}
	if err := s.send(env, "realtimeInput"); err != nil {
		return err
	}
	metrics.RecordAudioBytes("sent", len(pcm))
	return nil
}

// SendFrame sends one encoded video frame.
func (s *Session) SendFrame(data []byte, mimeType string) error {
	env, err := wire.EncodeImageFrame(mimeType, data)
	if err != nil {
		return err
	}
	if err := s.send(env, "realtimeInput"); err != nil {
		return err
	}
	metrics.RecordFrameSent()
	return nil
}

// SendText sends one user text turn.
func (s *Session) SendText(text string) error {
	return s.send(wire.EncodeText(text, true), "clientContent")
}

// SendToolResponse sends the responses for a serviced tool call batch.
func (s *Session) SendToolResponse(responses []wire.FunctionResponse) error {
	return s.send(wire.EncodeToolResponse(responses), "toolResponse")
}

// send writes an envelope if active, queues it if the handshake is still in
// flight, and fails if disconnected.
func (s *Session) send(env any, msgType string) error {
	s.mu.Lock()
	switch s.state {
	case StateActive:
		conn := s.conn
		s.mu.Unlock()
		if !conn.IsConnected() {
			return ErrNotConnected
		}
		if err := conn.Send(env); err != nil {
			return err
		}
		metrics.RecordMessage("sent", msgType)
		return nil
	case StateConnecting, StateAwaitingSetupAck:
		s.queue = append(s.queue, env)
		metrics.SetQueuedIntents(len(s.queue))
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		return ErrNotConnected
	}
}

// Close tears the session down. Safe to call repeatedly and from any state.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateClosing {
		s.mu.Unlock()
		return nil
	}
	wasActive := s.state == StateActive
	s.state = StateClosing
	conn := s.conn
	cancel := s.cancel
	s.queue = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close()
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	if wasActive {
		metrics.RecordSessionEnd()
	}
	metrics.SetQueuedIntents(0)
	logger.Info("session closed", "session_id", s.id)
	return err
}

// receiveLoop is the only reader of the connection; events therefore reach
// OnEvent in exactly the order the service sent them. When the loop ends the
// session is torn down before OnClosed fires, so callers observing the close
// already see a Disconnected session.
func (s *Session) receiveLoop(ctx context.Context, conn *transport.Conn) {
	loopErr := conn.ReceiveLoop(ctx, func(data []byte) error {
		evts, err := wire.Decode(data)
		if err != nil {
			// One bad frame must not end the session.
			metrics.RecordMalformedEnvelope()
			logger.Warn("dropping malformed frame", "session_id", s.id, "error", err)
			return nil
		}

		for _, evt := range evts {
			if _, ok := evt.(wire.SetupCompleteEvent); ok {
				metrics.RecordMessage("received", "setupComplete")
				s.activate()
				continue
			}
			s.recordInbound(evt)
			s.cfg.OnEvent(evt)
		}
		return nil
	})
	if loopErr != nil {
		logger.Warn("session receive failed", "session_id", s.id, "error", loopErr)
	}

	s.dropConnection()
	if s.cfg.OnClosed != nil {
		s.cfg.OnClosed(loopErr)
	}
}

// dropConnection moves the session to Disconnected after the receive loop
// ends on a transport error or remote close. A close already in progress
// owns the transition and is left alone.
func (s *Session) dropConnection() {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateDisconnected
	s.queue = nil
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	if wasActive {
		metrics.RecordSessionEnd()
	}
	metrics.SetQueuedIntents(0)
	logger.Info("session disconnected by remote", "session_id", s.id)
}

// toDisconnected resets the lifecycle state after a failed connect.
func (s *Session) toDisconnected() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
}

// activate transitions to Active, flushing queued intents in FIFO order
// first so nothing sent mid-handshake is lost or reordered.
func (s *Session) activate() {
	for {
		s.mu.Lock()
		if s.state != StateAwaitingSetupAck && s.state != StateActive {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			if s.state == StateAwaitingSetupAck {
				s.state = StateActive
				close(s.setupAck)
				metrics.SetQueuedIntents(0)
			}
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		conn := s.conn
		s.mu.Unlock()

		for _, env := range batch {
			if err := conn.Send(env); err != nil {
				logger.Warn("flushing queued intent failed", "session_id", s.id, "error", err)
				return
			}
			metrics.RecordMessage("sent", "queued")
		}
	}
}

func (s *Session) recordInbound(evt wire.Event) {
	switch e := evt.(type) {
	case wire.AudioEvent:
		metrics.RecordMessage("received", "audio")
		metrics.RecordAudioBytes("received", len(e.Data))
	case wire.TextEvent:
		metrics.RecordMessage("received", "text")
	case wire.InterruptedEvent:
		metrics.RecordMessage("received", "interrupted")
		metrics.RecordInterruption()
	case wire.TurnCompleteEvent:
		metrics.RecordMessage("received", "turnComplete")
	case wire.ToolCallEvent:
		metrics.RecordMessage("received", "toolCall")
	case wire.TranscriptionEvent, wire.UserTranscriptionEvent:
		metrics.RecordMessage("received", "transcription")
	}
}

// slogAdapter bridges the transport's logger interface to the package
// logger.
type slogAdapter struct{}

func (slogAdapter) Debug(msg string, kv ...interface{}) { logger.Debug(msg, kv...) }
func (slogAdapter) Info(msg string, kv ...interface{})  { logger.Info(msg, kv...) }
func (slogAdapter) Warn(msg string, kv ...interface{})  { logger.Warn(msg, kv...) }
func (slogAdapter) Error(msg string, kv ...interface{}) { logger.Error(msg, kv...) }
