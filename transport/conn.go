// Package transport maintains the persistent WebSocket connection that
// carries live session traffic. It owns connect, send, receive, heartbeat,
// and reconnect mechanics; envelope encoding and decoding live in wire.
package transport

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auralis-ai/geminilive/logger"
)

// Default connection constants.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultMaxMessageSize   = 16 * 1024 * 1024 // 16MB
	DefaultMaxRetries       = 3
	DefaultRetryBackoffBase = 1 * time.Second
	DefaultRetryBackoffMax  = 30 * time.Second
	DefaultCloseGracePeriod = 5 * time.Second
)

// ErrNotConnected is returned when a send or receive is attempted before the
// connection is established or after it has been closed.
var ErrNotConnected = errors.New("transport: not connected")

// Config configures the WebSocket connection behavior.
type Config struct {
	// URL is the WebSocket endpoint URL, including any auth query parameters.
	// Auth material is redacted before the URL appears in any log output.
	URL string

	// Headers are sent during the WebSocket handshake.
	Headers http.Header

	// DialTimeout is the handshake timeout. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration

	// WriteWait is the write deadline for each frame. Defaults to DefaultWriteWait.
	WriteWait time.Duration

	// MaxMessageSize is the read limit. Defaults to DefaultMaxMessageSize.
	MaxMessageSize int64

	// MaxRetries is the number of connection attempts for ConnectWithRetry.
	// Defaults to DefaultMaxRetries.
	MaxRetries int

	// RetryBackoffBase is the delay after the first failed attempt; each
	// further attempt doubles it. Defaults to DefaultRetryBackoffBase.
	RetryBackoffBase time.Duration

	// RetryBackoffMax caps the backoff delay. Defaults to DefaultRetryBackoffMax.
	RetryBackoffMax time.Duration

	// CloseGracePeriod is the deadline for writing the close frame.
	// Defaults to DefaultCloseGracePeriod.
	CloseGracePeriod time.Duration

	// Logger receives debug/warn/error log messages. Optional.
	Logger Logger
}

// Logger is an optional interface for structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(_ string, _ ...interface{}) {}
func (noopLogger) Info(_ string, _ ...interface{})  {}
func (noopLogger) Warn(_ string, _ ...interface{})  {}
func (noopLogger) Error(_ string, _ ...interface{}) {}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = DefaultRetryBackoffMax
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
}

// Conn manages one WebSocket connection: retry, heartbeat, serialized
// writes, and graceful shutdown. Frame content is opaque to it; callers
// encode and decode.
type Conn struct {
	cfg Config

	mu      sync.Mutex
	ws      *websocket.Conn
	closed  bool
	closeCh chan struct{}

	writeMu sync.Mutex // serializes frame writes (gorilla/websocket requirement)
}

// NewConn creates a new Conn. Call Connect or ConnectWithRetry to establish
// the connection.
func NewConn(cfg *Config) *Conn {
	cfg.defaults()
	return &Conn{
		cfg:     *cfg,
		closeCh: make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("transport: connection is closed")
	}

	c.cfg.Logger.Debug("dialing live endpoint", "url", logger.RedactSensitiveData(c.cfg.URL))

	ws, err := c.dial(ctx)
	if err != nil {
		return err
	}

	ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws = ws
	c.cfg.Logger.Info("transport connected")
	return nil
}

// dial performs one handshake attempt. Dial errors can embed the full URL
// including the key query parameter, so they are redacted before logging and
// before being returned.
func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		redacted := logger.RedactSensitiveData(err.Error())
		if resp != nil {
			c.cfg.Logger.Error("dial failed", "error", redacted, "status", resp.StatusCode)
		} else {
			c.cfg.Logger.Error("dial failed", "error", redacted)
		}
		return nil, fmt.Errorf("transport: dial: %s", redacted)
	}
	return ws, nil
}

// ConnectWithRetry attempts to connect with exponential backoff and jitter.
func (c *Conn) ConnectWithRetry(ctx context.Context) error {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			c.cfg.Logger.Warn("retrying connection",
				"attempt", attempt+1, "maxAttempts", c.cfg.MaxRetries, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = c.Connect(ctx)
		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("transport: connect failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// retryDelay returns the backoff before the given attempt (1-based for the
// first retry): base doubled per retry, capped, with +-25% jitter.
func (c *Conn) retryDelay(attempt int) time.Duration {
	delay := c.cfg.RetryBackoffBase << (attempt - 1)
	if delay <= 0 || delay > c.cfg.RetryBackoffMax {
		delay = c.cfg.RetryBackoffMax
	}
	return jitter(delay)
}

// jitter spreads a delay uniformly across [0.75d, 1.25d].
func jitter(d time.Duration) time.Duration {
	span := big.NewInt(int64(d) / 2)
	if span.Sign() <= 0 {
		return d
	}
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return d
	}
	return d - d/4 + time.Duration(n.Int64())
}

// Send JSON-encodes msg and writes it as a single text frame.
func (c *Conn) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes pre-encoded data as a single text frame.
func (c *Conn) SendRaw(data []byte) error {
	return c.writeFrame(websocket.TextMessage, data, c.cfg.WriteWait)
}

// writeFrame writes one frame under the write mutex with a deadline.
func (c *Conn) writeFrame(frameType int, data []byte, wait time.Duration) error {
	c.mu.Lock()
	ws := c.ws
	if c.closed || ws == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := ws.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	if err := ws.WriteMessage(frameType, data); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

// Receive reads a single message. The call blocks until a message arrives or
// the context is canceled.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	ws := c.ws
	if c.closed || ws == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.mu.Unlock()

	type frame struct {
		data []byte
		err  error
	}
	ch := make(chan frame, 1)

	go func() {
		frameType, data, err := ws.ReadMessage()
		if err == nil && frameType != websocket.TextMessage && frameType != websocket.BinaryMessage {
			// The live endpoint sends JSON over both text and binary frames;
			// anything else is unexpected.
			err = fmt.Errorf("transport: unexpected frame type %d", frameType)
		}
		ch <- frame{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f := <-ch:
		return f.data, f.err
	}
}

// ReceiveLoop reads messages and hands each to handle until the connection
// closes, handle returns an error, or the context is canceled. A clean remote
// close or a requested local close returns nil.
func (c *Conn) ReceiveLoop(ctx context.Context, handle func(data []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.closeCh:
			return nil
		default:
		}

		data, err := c.Receive(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, c.IsClosed(), errors.Is(err, ErrNotConnected):
				return nil
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil
			default:
				return err
			}
		}

		if err := handle(data); err != nil {
			return err
		}
	}
}

// StartHeartbeat starts a goroutine that sends WebSocket ping frames at the
// given interval. The loop exits when the context is canceled, the connection
// closes, or a ping fails.
func (c *Conn) StartHeartbeat(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closeCh:
				return
			case <-ticker.C:
				if err := c.writeFrame(websocket.PingMessage, nil, c.cfg.WriteWait); err != nil {
					c.cfg.Logger.Warn("heartbeat ping failed", "error", err)
					return
				}
			}
		}
	}()
}

// Close writes a close frame and tears down the connection. Close is
// idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	c.writeMu.Lock()
	goodbye := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.SetWriteDeadline(time.Now().Add(c.cfg.CloseGracePeriod))
	_ = ws.WriteMessage(websocket.CloseMessage, goodbye)
	c.writeMu.Unlock()

	return ws.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsConnected returns true if the connection has been established and has not
// been closed.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil && !c.closed
}

// Reset drops the current connection, if any, and readies the Conn for a
// fresh Connect. Every session gets a new underlying socket; the Conn wrapper
// and its configuration are what carry over.
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		c.writeMu.Lock()
		_ = c.ws.Close()
		c.writeMu.Unlock()
		c.ws = nil
	}

	c.closed = false
	c.closeCh = make(chan struct{})
}
