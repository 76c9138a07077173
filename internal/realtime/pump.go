package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ragcore/internal/eventbus"
)

const writeWait = 10 * time.Second

// boundedQueue buffers events for one connection's write goroutine and
// implements the "drop oldest beyond ws_buffer_limit" backpressure policy
// from spec.md §4.9: the bus (and the rest of the system) must never block
// on a slow client.
type boundedQueue struct {
	conn  *websocket.Conn
	limit int
	log   *zerolog.Logger

	mu      sync.Mutex
	pending []eventbus.Event
	wake    chan struct{}
	drops   int64
}

func newBoundedQueue(conn *websocket.Conn, limit int, log *zerolog.Logger) *boundedQueue {
	if limit <= 0 {
		limit = 64
	}
	q := &boundedQueue{conn: conn, limit: limit, log: log, wake: make(chan struct{}, 1)}
	go q.writeLoop()
	return q
}

func (q *boundedQueue) enqueue(ev eventbus.Event) {
	q.mu.Lock()
	if len(q.pending) >= q.limit {
		q.pending = q.pending[1:]
		q.drops++
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *boundedQueue) drain() []eventbus.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *boundedQueue) writeLoop() {
	for range q.wake {
		for _, ev := range q.drain() {
			_ = q.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := q.conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (q *boundedQueue) close() { close(q.wake) }

// relayLoop drains the Event Bus subscription into the send queue and
// drives liveness pings, until ctx is cancelled (client disconnect or an
// upstream close) or the subscription itself ends (bus unavailability
// surfaced as a closed channel).
func (g *Gateway) relayLoop(ctx context.Context, conn *websocket.Conn, sub eventbus.Subscription, queue *boundedQueue) {
	defer queue.close()

	pingInterval := g.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				closeWith(conn, CloseBusUnavailable, "bus unavailable")
				return
			}
			queue.enqueue(ev)
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump only exists to drive gorilla/websocket's pong handler and detect
// client disconnects; the Realtime Gateway never accepts client-sent
// payloads. The read deadline is one ping interval plus pingTimeout past
// the connection start or the last pong, so it expires only when no pong
// arrives within pingTimeout after a ping; ReadMessage then returns an
// error, closing the connection with CloseIdleTimeout.
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelFunc, pingTimeout time.Duration) {
	defer cancel()
	if pingTimeout <= 0 {
		pingTimeout = 10 * time.Second
	}
	wait := g.cfg.PingInterval
	if wait <= 0 {
		wait = 30 * time.Second
	}
	wait += pingTimeout
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeWith(conn, CloseIdleTimeout, "idle timeout")
			return
		}
	}
}
