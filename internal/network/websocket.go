package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSOptions configures a websocket hub.
type WSOptions struct {
	// QueueSize is the number of frames a client may lag behind before it
	// is disconnected.
	QueueSize    int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

func (o WSOptions) withDefaults() WSOptions {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// WSHub is a Broadcaster serving replicas over websocket. Mount it as an
// http.Handler; each upgraded connection receives every later frame as
// one binary message.
type WSHub struct {
	opts     WSOptions
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	joined  chan struct{} // closed and replaced whenever a client joins
	closed  bool
	wg      sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewWSHub creates a hub without clients.
func NewWSHub(opts WSOptions) *WSHub {
	opts = opts.withDefaults()
	return &WSHub{
		opts: opts,
		log:  opts.Logger.Named("wshub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		joined:  make(chan struct{}),
	}
}

// ServeHTTP upgrades a replica connection.
func (h *WSHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, h.opts.QueueSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closed"))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	close(h.joined)
	h.joined = make(chan struct{})
	n := len(h.clients)
	h.wg.Add(2)
	h.mu.Unlock()

	h.log.Info("replica connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", n))
	go h.writeLoop(c)
	go h.readLoop(c)
}

// writeLoop sends queued frames until the queue is closed.
func (h *WSHub) writeLoop(c *wsClient) {
	defer h.wg.Done()
	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			h.log.Warn("write failed", zap.Error(err))
			h.remove(c)
			// Drain so Broadcast never blocks on a dead client.
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"))
	_ = c.conn.Close()
}

// readLoop only watches for the replica going away.
func (h *WSHub) readLoop(c *wsClient) {
	defer h.wg.Done()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove detaches a client and closes its queue once.
func (h *WSHub) remove(c *wsClient) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	})
}

// Clients returns the number of connected replicas.
func (h *WSHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// WaitForClients blocks until at least n replicas are connected.
func (h *WSHub) WaitForClients(ctx context.Context, n int) error {
	for {
		h.mu.Lock()
		have, joined, closed := len(h.clients), h.joined, h.closed
		h.mu.Unlock()
		if closed {
			return ErrClosed
		}
		if have >= n {
			return nil
		}
		select {
		case <-joined:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Broadcast queues frame for every client. A client whose queue is full
// is disconnected: it could only continue with a gap in its stream.
func (h *WSHub) Broadcast(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	var slow []*wsClient
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.log.Warn("dropping slow replica", zap.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
		_ = c.conn.Close()
	}
	return nil
}

// Close flushes queued frames, sends a normal close to every client and
// waits for their connections to finish.
func (h *WSHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
	return nil
}

// WSReceiver reads frames from a WSHub.
type WSReceiver struct {
	conn   *websocket.Conn
	frames chan wsFrame
	done   chan struct{}
	once   sync.Once
}

type wsFrame struct {
	data []byte
	err  error
}

// DialWS connects to a hub at url (ws:// or wss://).
func DialWS(ctx context.Context, url string) (*WSReceiver, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	r := &WSReceiver{
		conn:   conn,
		frames: make(chan wsFrame, 64),
		done:   make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *WSReceiver) readLoop() {
	defer close(r.frames)
	for {
		kind, data, err := r.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				err = ErrClosed
			}
			select {
			case r.frames <- wsFrame{err: err}:
			case <-r.done:
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		select {
		case r.frames <- wsFrame{data: data}:
		case <-r.done:
			return
		}
	}
}

// Receive returns the next frame.
func (r *WSReceiver) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-r.frames:
		if !ok {
			return nil, ErrClosed
		}
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drops the connection.
func (r *WSReceiver) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.conn.Close()
	})
	return err
}
