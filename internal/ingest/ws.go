package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapvel/chessvision/internal/labels"
	"github.com/kapvel/chessvision/internal/obslog"
	"github.com/kapvel/chessvision/internal/snapshot"
	"github.com/kapvel/chessvision/pkg/visiondto"
)

type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
	ConnFailed
)

// WSSource consumes detector frames over a WebSocket and emits decoded
// snapshots in arrival order on a single channel.
type WSSource struct {
	wsURL   string
	catalog *labels.Catalog

	conn   *websocket.Conn
	state  ConnState
	stateM sync.RWMutex

	out chan snapshot.Snapshot

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewWSSource(wsURL string, catalog *labels.Catalog, maxReconnectAttempts int, reconnectDelay time.Duration) *WSSource {
	return &WSSource{
		wsURL:                wsURL,
		catalog:              catalog,
		state:                ConnDisconnected,
		out:                  make(chan snapshot.Snapshot, 16),
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// Frames delivers decoded snapshots; the channel is closed on shutdown.
func (ws *WSSource) Frames() <-chan snapshot.Snapshot { return ws.out }

func (ws *WSSource) State() ConnState {
	ws.stateM.RLock()
	defer ws.stateM.RUnlock()
	return ws.state
}

func (ws *WSSource) Connect(ctx context.Context) error {
	ws.stateM.Lock()
	if ws.state == ConnConnected || ws.state == ConnConnecting {
		ws.stateM.Unlock()
		return nil
	}
	ws.stateM.Unlock()

	ws.rootCtx, ws.rootCancel = context.WithCancel(context.Background())
	ws.setState(ConnConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		ws.setState(ConnFailed)
		ws.scheduleReconnect()
		return err
	}

	ws.conn = conn
	ws.setState(ConnConnected)

	ws.wg.Add(2)
	go ws.listen()
	go ws.pingLoop()
	return nil
}

func (ws *WSSource) listen() {
	defer ws.wg.Done()
	for {
		select {
		case <-ws.stopCh:
			return
		default:
		}
		if ws.conn == nil {
			return
		}

		var frame visiondto.Frame
		if err := wsjson.Read(ws.rootCtx, ws.conn, &frame); err != nil {
			if ws.isStopping() {
				return
			}
			ws.setState(ConnDisconnected)
			_ = ws.closeConn(websocket.StatusGoingAway, "reconnect")
			ws.scheduleReconnect()
			return
		}

		snap, err := DecodeFrame(frame, ws.catalog)
		if err != nil {
			obslog.L().Warn("frame_decode_failed", zap.Int64("frame_id", frame.FrameID), zap.Error(err))
			continue
		}

		// Blocking send keeps frame order; the consumer owns the pace.
		select {
		case <-ws.stopCh:
			return
		case ws.out <- snap:
		}
	}
}

func (ws *WSSource) pingLoop() {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.stopCh:
			return
		case <-t.C:
			if ws.conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := ws.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if ws.isStopping() {
						return
					}
					ws.setState(ConnDisconnected)
					_ = ws.closeConn(websocket.StatusGoingAway, "ping failure")
					ws.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (ws *WSSource) scheduleReconnect() {
	if ws.maxReconnectAttempts <= 0 {
		return
	}
	ws.setState(ConnReconnecting)

	go func() {
		for attempt := 1; attempt <= ws.maxReconnectAttempts; attempt++ {
			select {
			case <-ws.stopCh:
				return
			case <-time.After(ws.backoff(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(ws.rootCtx, 10*time.Second)
			conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
				CompressionMode: websocket.CompressionNoContextTakeover,
			})
			cancel()
			if err != nil {
				obslog.L().Warn("detector_reconnect_failed",
					zap.Int("attempt", attempt),
					zap.Int("max", ws.maxReconnectAttempts),
					zap.Error(err),
				)
				continue
			}

			ws.conn = conn
			ws.setState(ConnConnected)
			ws.wg.Add(2)
			go ws.listen()
			go ws.pingLoop()
			return
		}
		ws.setState(ConnFailed)
	}()
}

func (ws *WSSource) backoff(attempt int) time.Duration {
	d := ws.reconnectDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 30*time.Second {
			return 30 * time.Second
		}
	}
	return d
}

func (ws *WSSource) setState(state ConnState) {
	ws.stateM.Lock()
	ws.state = state
	ws.stateM.Unlock()
}

func (ws *WSSource) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() { close(ws.stopCh) })
	_ = ws.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if ws.rootCancel != nil {
			ws.rootCancel()
		}
		close(ws.out)
		return nil
	}
}

func (ws *WSSource) closeConn(code websocket.StatusCode, reason string) error {
	if ws.conn == nil {
		return nil
	}
	defer func() { ws.conn = nil }()
	return ws.conn.Close(code, reason)
}

func (ws *WSSource) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}
