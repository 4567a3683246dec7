package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrNoSubprotocol = errors.New("transport: no common websocket subprotocol")

const closeGracePeriod = time.Second

type DialOptions struct {
	// Subprotocols offered to the server in order of preference. At least one must be accepted.
	Subprotocols     []string
	Header           http.Header
	HandshakeTimeout time.Duration
	// PingInterval is how often a ping control frame is written. Zero disables keepalive.
	PingInterval time.Duration
	Logger       *zap.Logger
}

// WebSocket carries one envelope per text message.
type WebSocket struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket opens a websocket to url and requires the server to pick one of opts.Subprotocols.
func DialWebSocket(ctx context.Context, url string, opts DialOptions) (*WebSocket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     opts.Subprotocols,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if len(opts.Subprotocols) > 0 && !slices.Contains(opts.Subprotocols, conn.Subprotocol()) {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", url, ErrNoSubprotocol)
	}
	ws := newWebSocket(conn, opts.Logger)
	if opts.PingInterval > 0 {
		go ws.pingLoop(opts.PingInterval)
	}
	return ws, nil
}

// UpgradeWebSocket accepts a websocket on the server side. Requests that offer none of subprotocols
// are answered with 400 and never upgraded.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request, subprotocols []string) (*WebSocket, error) {
	if len(subprotocols) > 0 && !slices.ContainsFunc(websocket.Subprotocols(r), func(p string) bool {
		return slices.Contains(subprotocols, p)
	}) {
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return nil, ErrNoSubprotocol
	}
	upgrader := websocket.Upgrader{
		Subprotocols: subprotocols,
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return newWebSocket(conn, nil), nil
}

func newWebSocket(conn *websocket.Conn, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocket{
		conn:   conn,
		logger: logger.With(zap.String("remote", conn.RemoteAddr().String())),
		done:   make(chan struct{}),
	}
}

// Subprotocol is the protocol both sides agreed on during the handshake.
func (ws *WebSocket) Subprotocol() string {
	return ws.conn.Subprotocol()
}

func (ws *WebSocket) Send(ctx context.Context, frame []byte) error {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := ws.conn.SetWriteDeadline(deadline); err != nil {
		return ws.mapErr(ctx, err)
	}
	if err := ws.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return ws.mapErr(ctx, err)
	}
	return nil
}

func (ws *WebSocket) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		ws.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		typ, data, err := ws.conn.ReadMessage()
		if err != nil {
			return nil, ws.mapErr(ctx, err)
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// Close sends a normal closure and closes the connection.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		ws.closeErr = ws.conn.Close()
	})
	return ws.closeErr
}

func (ws *WebSocket) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ws.done:
			return
		case <-ticker.C:
			if err := ws.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				ws.logger.Debug("ping stopped", zap.Error(err))
				return
			}
		}
	}
}

func (ws *WebSocket) mapErr(ctx context.Context, err error) error {
	select {
	case <-ws.done:
		return ErrClosed
	default:
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
