// Package push maintains the WebSocket push channel to the service.
// The channel reconnects on abnormal closure with a bounded number of
// attempts, then parks in a terminal offline state until retried.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/whitea-cloud/photoshare-go/internal/logutil"
)

// Status is the channel connection state.
type Status string

const (
	// StatusDisconnected: not connected, a reconnect may be pending.
	StatusDisconnected Status = "disconnected"
	// StatusConnecting: a dial is in progress.
	StatusConnecting Status = "connecting"
	// StatusOpen: connected and reading.
	StatusOpen Status = "open"
	// StatusClosed: deliberately shut down, never reconnects.
	StatusClosed Status = "closed"
	// StatusOffline: reconnect budget exhausted, waiting for Retry.
	StatusOffline Status = "offline"
)

// Options configures a Channel.
type Options struct {
	// URL is the websocket base, e.g. wss://api.whitea.cloud/ws.
	URL    string
	UserID int64

	// HealthURL, when non-empty, is probed with a GET before the first
	// connection attempt. Probe failure is diagnostic only and never
	// blocks connecting.
	HealthURL string

	// MaxReconnectAttempts bounds consecutive reconnects after abnormal
	// closures. The counter resets every time a connection opens.
	MaxReconnectAttempts int

	// ReconnectDelay is the base wait between attempts.
	ReconnectDelay time.Duration

	// BackoffMultiplier of 1.0 keeps ReconnectDelay fixed; larger
	// values grow the wait between consecutive attempts.
	BackoffMultiplier float64

	// BackoffJitter randomizes the wait by the given factor in [0, 1).
	BackoffJitter float64

	DialTimeout time.Duration

	// OnMessage receives each valid JSON text message.
	OnMessage func(data []byte)

	// OnStatus receives every status transition.
	OnStatus func(status Status)

	Logger *slog.Logger
}

// Channel is a reconnecting push connection for one user.
type Channel struct {
	opts   Options
	logger *slog.Logger
	dialer *websocket.Dialer
	probe  func(ctx context.Context, url string) error

	mu      sync.Mutex
	status  Status
	conn    *websocket.Conn
	closed  bool
	running bool
	probed  bool
}

// New creates a channel. Start must be called to connect.
func New(opts Options) *Channel {
	if opts.MaxReconnectAttempts == 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	if opts.BackoffMultiplier < 1.0 {
		opts.BackoffMultiplier = 1.0
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 10 * time.Second
	}

	return &Channel{
		opts:   opts,
		logger: logutil.NoopIfNil(opts.Logger),
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
		},
		status: StatusDisconnected,
		probe:  defaultProbe,
	}
}

// Status returns the current connection state.
func (ch *Channel) Status() Status {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

// Connected reports whether the channel is open.
func (ch *Channel) Connected() bool {
	return ch.Status() == StatusOpen
}

// Start begins connecting in the background. It is a no-op if the
// channel is already running or deliberately closed.
func (ch *Channel) Start(ctx context.Context) {
	ch.mu.Lock()
	if ch.running || ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.running = true
	ch.mu.Unlock()

	go ch.run(ctx)
}

// Retry restarts connecting after the channel went offline.
// It is a no-op in any other state.
func (ch *Channel) Retry(ctx context.Context) {
	ch.mu.Lock()
	if ch.status != StatusOffline || ch.running || ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.running = true
	ch.mu.Unlock()

	go ch.run(ctx)
}

// Close shuts the channel down deliberately. The close frame carries
// code 1000 so neither side treats it as a failure; the channel never
// reconnects afterwards.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), deadline)
		conn.Close()
	}

	ch.setStatus(StatusClosed)
}

// run is the connect/read/reconnect loop.
func (ch *Channel) run(ctx context.Context) {
	defer func() {
		ch.mu.Lock()
		ch.running = false
		ch.mu.Unlock()
	}()

	ch.maybeProbe(ctx)

	wait := ch.newWaitPolicy()
	attempts := 0

	for {
		if ch.stopped(ctx) {
			return
		}

		ch.setStatus(StatusConnecting)

		conn, err := ch.dial(ctx)
		if err == nil {
			ch.mu.Lock()
			if ch.closed {
				ch.mu.Unlock()
				conn.Close()
				return
			}
			ch.conn = conn
			ch.mu.Unlock()

			ch.setStatus(StatusOpen)
			attempts = 0
			wait = ch.newWaitPolicy()

			normal := ch.readLoop(conn)

			ch.mu.Lock()
			ch.conn = nil
			closed := ch.closed
			ch.mu.Unlock()

			if closed {
				return
			}
			if normal {
				// The server closed with code 1000; treat it as final.
				ch.setStatus(StatusClosed)
				return
			}
		} else {
			ch.logger.Warn("push connection failed", "error", err)
		}

		if ch.stopped(ctx) {
			return
		}

		attempts++
		if attempts > ch.opts.MaxReconnectAttempts {
			ch.logger.Warn("push channel offline, reconnect budget exhausted",
				"attempts", ch.opts.MaxReconnectAttempts)
			ch.setStatus(StatusOffline)
			return
		}

		ch.setStatus(StatusDisconnected)
		delay := wait.NextBackOff()
		ch.logger.Info("push channel reconnecting",
			"attempt", attempts, "max", ch.opts.MaxReconnectAttempts, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// dial connects to /connect?user_id=<id> under the configured base.
func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(ch.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	u.Path = u.Path + "/connect"
	q := u.Query()
	q.Set("user_id", strconv.FormatInt(ch.opts.UserID, 10))
	u.RawQuery = q.Encode()

	conn, resp, err := ch.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// readLoop reads messages until the connection dies.
// It returns true if the peer closed with code 1000.
func (ch *Channel) readLoop(conn *websocket.Conn) bool {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				ch.logger.Debug("push connection closed normally")
				return true
			}
			ch.logger.Warn("push connection lost", "error", err)
			return false
		}

		if msgType != websocket.TextMessage {
			continue
		}
		if !json.Valid(data) {
			// Drop malformed payloads, never tear down the connection.
			ch.logger.Warn("dropping malformed push message", "size", len(data))
			continue
		}
		if ch.opts.OnMessage != nil {
			ch.opts.OnMessage(data)
		}
	}
}

// maybeProbe runs the one-time diagnostic health check.
func (ch *Channel) maybeProbe(ctx context.Context) {
	ch.mu.Lock()
	if ch.probed || ch.opts.HealthURL == "" {
		ch.mu.Unlock()
		return
	}
	ch.probed = true
	ch.mu.Unlock()

	if err := ch.probe(ctx, ch.opts.HealthURL); err != nil {
		ch.logger.Warn("push health probe failed", "url", ch.opts.HealthURL, "error", err)
		return
	}
	ch.logger.Debug("push health probe ok", "url", ch.opts.HealthURL)
}

// newWaitPolicy builds the inter-attempt wait policy.
func (ch *Channel) newWaitPolicy() backoff.BackOff {
	if ch.opts.BackoffMultiplier > 1.0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = ch.opts.ReconnectDelay
		b.Multiplier = ch.opts.BackoffMultiplier
		b.RandomizationFactor = ch.opts.BackoffJitter
		b.MaxInterval = 2 * time.Minute
		return b
	}
	return backoff.NewConstantBackOff(ch.opts.ReconnectDelay)
}

func (ch *Channel) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

func (ch *Channel) setStatus(s Status) {
	ch.mu.Lock()
	if ch.status == s {
		ch.mu.Unlock()
		return
	}
	ch.status = s
	ch.mu.Unlock()

	if ch.opts.OnStatus != nil {
		ch.opts.OnStatus(s)
	}
}
