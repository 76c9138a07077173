// Package realtime implements the Realtime Gateway (C9): a WebSocket
// upgrade per client that bridges one tenant's Event Bus subscription to a
// socket, with a bounded send queue so a slow client can never stall the
// bus. Grounded on the gorilla/websocket upgrade-and-per-connection-loop
// shape demonstrated in semaj90-mau5law/go-chat-service's HandleWebSocket
// (the only pack example using the library), generalized from that
// example's single blocking read/write loop into the standard
// gorilla/websocket hub pattern — a dedicated write goroutine owns the
// connection so ping control frames and relayed bus events never race on
// the same writer.
package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ragcore/internal/config"
	"ragcore/internal/eventbus"
	"ragcore/internal/platform/logging"
)

// Close codes from spec.md §6: application-defined WebSocket close reasons
// a client can branch its reconnect logic on.
const (
	CloseBusUnavailable = 4000
	CloseUnauthorized   = 4001
	CloseMissingTenant  = 4002
	CloseIdleTimeout    = 4003
)

// Authenticator resolves an inbound upgrade request to a tenant ID. The
// HTTP Facade (C12) supplies the real bearer-token implementation; tests
// use a static stub. Returning "" with a nil error is treated as a
// successfully authenticated caller with no resolvable tenant (close
// CloseMissingTenant), distinct from returning a non-nil error
// (CloseUnauthorized).
type Authenticator interface {
	Authenticate(r *http.Request) (tenantID string, err error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (string, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request) (string, error) { return f(r) }

// Gateway owns the WebSocket upgrader and the Event Bus it relays from.
type Gateway struct {
	bus    eventbus.Bus
	auth   Authenticator
	cfg    config.RealtimeConfig
	upgrade websocket.Upgrader
}

func New(bus eventbus.Bus, auth Authenticator, cfg config.RealtimeConfig) *Gateway {
	return &Gateway{
		bus:  bus,
		auth: auth,
		cfg:  cfg,
		upgrade: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates the request, upgrades it, and blocks for the
// lifetime of the connection. It never returns an error to the caller:
// every failure mode closes the socket with the appropriate application
// close code instead, since by the time authentication fails the
// connection may already be an upgraded WebSocket rather than a plain
// HTTP response.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	tenantID, err := g.auth.Authenticate(r)
	if err != nil {
		conn, uerr := g.upgrade.Upgrade(w, r, nil)
		if uerr != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		closeWith(conn, CloseUnauthorized, "unauthorized")
		return
	}

	conn, err := g.upgrade.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if tenantID == "" {
		closeWith(conn, CloseMissingTenant, "missing tenant")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := g.bus.Subscribe(ctx, tenantID)
	if err != nil {
		closeWith(conn, CloseBusUnavailable, "bus unavailable")
		return
	}
	defer sub.Cancel()

	conn.SetCloseHandler(func(code int, text string) error {
		cancel()
		return nil
	})

	sendQueue := newBoundedQueue(conn, g.cfg.BufferLimit, log)
	sendQueue.enqueue(eventbus.Event{Event: eventbus.EventConnected, TenantID: tenantID})

	go g.readPump(conn, cancel, g.cfg.PingTimeout)
	g.relayLoop(ctx, conn, sub, sendQueue)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
	_ = conn.Close()
}
