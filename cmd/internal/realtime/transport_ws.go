package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	v1 "jobwire/shared/contracts/realtime/v1"

	"jobwire/cmd/internal/ids"

	"github.com/coder/websocket"
)

// WSConfig tunes the dial-side websocket transport.
type WSConfig struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadIdleTimeout  time.Duration
	SendQueueSize    int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
}

// DefaultWSConfig returns the transport defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		DialTimeout:      wsDefaultDialTimeout,
		HandshakeTimeout: wsDefaultHandshakeTimeout,
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
	}
}

func (c WSConfig) normalized() WSConfig {
	def := DefaultWSConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	return c
}

// WSDialer opens websocket sessions against the job-board realtime endpoint.
// The handshake identity travels as query parameters, matching the backend's
// expectations: ?clientType=...&clientId=...
type WSDialer struct {
	log *slog.Logger
	cfg WSConfig
}

// NewWSDialer constructs a dialer with normalized config.
func NewWSDialer(log *slog.Logger, cfg WSConfig) *WSDialer {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &WSDialer{log: log, cfg: cfg.normalized()}
}

// Dial opens a session and blocks until the server's connected acknowledgment
// arrives. The returned handle is live: read/write/heartbeat pumps are running.
func (d *WSDialer) Dial(ctx context.Context, endpoint string, hs Handshake) (Handle, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("realtime: empty endpoint")
	}
	if strings.TrimSpace(hs.ClientType) == "" || strings.TrimSpace(hs.ClientID) == "" {
		return nil, errors.New("realtime: incomplete handshake identity")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("realtime: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("clientType", hs.ClientType)
	q.Set("clientId", hs.ClientID)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)

	h := newWSHandle(d.log, conn, d.cfg)
	h.start()

	select {
	case <-h.connected:
		d.log.Info("ws.connected", "endpoint", u.Host, "client_type", hs.ClientType)
		return h, nil
	case <-h.Done():
		return nil, errors.New("realtime: session closed before connected ack")
	case <-time.After(d.cfg.HandshakeTimeout):
		h.Close()
		return nil, errors.New("realtime: connected ack timeout")
	case <-ctx.Done():
		h.Close()
		return nil, ctx.Err()
	}
}

// wsHandle is one live websocket session.
//
// Design notes:
//   - send is intentionally never closed to keep Emit safe under concurrency;
//     done signals the pumps to stop.
//   - Listener callbacks run on the read pump goroutine, one frame at a time,
//     preserving per-connection emission order.
type wsHandle struct {
	log  *slog.Logger
	conn *websocket.Conn
	cfg  WSConfig

	ctx    context.Context
	cancel context.CancelFunc

	listenerMu sync.RWMutex
	listeners  map[string]func(json.RawMessage)

	send      chan v1.Frame
	connected chan struct{}
	connOnce  sync.Once

	done      chan struct{}
	closeOnce sync.Once
}

func newWSHandle(log *slog.Logger, conn *websocket.Conn, cfg WSConfig) *wsHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsHandle{
		log:       log,
		conn:      conn,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string]func(json.RawMessage)),
		send:      make(chan v1.Frame, cfg.SendQueueSize),
		connected: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (h *wsHandle) start() {
	go h.readLoop()
	go h.writeLoop()
	go h.heartbeatLoop()
}

// On registers the listener for event, replacing any previous one.
func (h *wsHandle) On(event string, fn func(json.RawMessage)) {
	if event == "" || fn == nil {
		return
	}
	h.listenerMu.Lock()
	h.listeners[event] = fn
	h.listenerMu.Unlock()
}

// Off removes the listener for event.
func (h *wsHandle) Off(event string) {
	h.listenerMu.Lock()
	delete(h.listeners, event)
	h.listenerMu.Unlock()
}

// Emit enqueues a named event for delivery.
func (h *wsHandle) Emit(ctx context.Context, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: marshal payload: %w", err)
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return fmt.Errorf("realtime: frame id: %w", err)
	}

	frame := v1.Frame{Event: event, ID: id, TS: now, Data: raw}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrNotConnected
	case h.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

// Done returns a channel closed when the session is shutting down.
func (h *wsHandle) Done() <-chan struct{} { return h.done }

// Close tears the session down (idempotent).
func (h *wsHandle) Close() {
	h.closeOnce.Do(func() {
		close(h.done)
		h.cancel()
		_ = h.conn.Close(websocket.StatusNormalClosure, "bye")
	})
}

func (h *wsHandle) readLoop() {
	for {
		readCtx, cancel := context.WithTimeout(h.ctx, h.cfg.ReadIdleTimeout)
		frame, err := readFrame(readCtx, h.conn)
		cancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrBadJSON:
				// Malformed frame: diagnostic log, never a crash.
				h.log.Info("ws.frame.bad_json", "err", err)
				continue
			case readErrClose, readErrCtxDone, readErrConnClosed:
				h.Close()
				return
			default:
				h.log.Info("ws.read.fail", "err", err)
				h.Close()
				return
			}
		}

		if err := frame.Validate(); err != nil {
			// Unrecognized or malformed event: no-op plus diagnostic log.
			h.log.Info("ws.frame.invalid", "event", frame.Event, "err", err)
			continue
		}

		if frame.Event == v1.EventConnected {
			h.connOnce.Do(func() { close(h.connected) })
		}

		h.listenerMu.RLock()
		fn := h.listeners[frame.Event]
		h.listenerMu.RUnlock()

		if fn != nil {
			fn(frame.Data)
		}
	}
}

func (h *wsHandle) writeLoop() {
	for {
		select {
		case <-h.done:
			return
		case frame := <-h.send:
			if err := writeFrame(h.ctx, h.conn, frame, h.cfg.WriteTimeout); err != nil {
				h.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
				h.Close()
				return
			}
		}
	}
}

func (h *wsHandle) heartbeatLoop() {
	t := time.NewTicker(h.cfg.HeartbeatEvery)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-h.done:
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(h.ctx, h.cfg.HeartbeatTimeout)
			err := h.conn.Ping(hbCtx)
			hbCancel()

			if err != nil {
				failures++
				h.log.Info("ws.ping.fail", "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					h.Close()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ---- frame IO ----

func readFrame(ctx context.Context, conn *websocket.Conn) (v1.Frame, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Frame{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Frame{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var frame v1.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return v1.Frame{}, err
	}
	return frame, nil
}

func writeFrame(parent context.Context, conn *websocket.Conn, frame v1.Frame, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}
