// Package transporttest provides an in-process STOMP broker for tests
package transporttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/linesmerrill/evchat/transport"
)

// Broker is a minimal STOMP 1.2 broker speaking over websockets
type Broker struct {
	// Token, when set, must be presented in the CONNECT Authorization header
	Token string
	// OnSend is called for every SEND frame received
	OnSend func(*transport.Frame)
	// OnConnect runs before an accepted CONNECT is answered and may block
	OnConnect func()

	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[*websocket.Conn]*client
	connects int
	sent     []*transport.Frame
}

type client struct {
	writeMu sync.Mutex
	// destination -> subscription id
	subs map[string]string
}

// NewBroker starts a broker listening on a local httptest server
func NewBroker() *Broker {
	b := &Broker{
		conns: make(map[*websocket.Conn]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	return b
}

// URL returns the ws:// endpoint
func (b *Broker) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Close shuts the broker down
func (b *Broker) Close() {
	b.DropAll()
	b.server.Close()
}

// Connects returns how many CONNECT frames were accepted
func (b *Broker) Connects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

// Clients returns how many connections completed the handshake and are
// still open
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Sent returns every SEND frame received so far
func (b *Broker) Sent() []*transport.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*transport.Frame(nil), b.sent...)
}

// Subscriptions returns the live destinations across all connections
func (b *Broker) Subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.conns {
		for dest := range c.subs {
			out = append(out, dest)
		}
	}
	return out
}

// Deliver sends a MESSAGE frame to every client subscribed to destination.
// It reports how many clients received it.
func (b *Broker) Deliver(destination string, body []byte) int {
	b.mu.Lock()
	type target struct {
		conn *websocket.Conn
		c    *client
		id   string
	}
	var targets []target
	for conn, c := range b.conns {
		if id, ok := c.subs[destination]; ok {
			targets = append(targets, target{conn, c, id})
		}
	}
	b.mu.Unlock()

	n := 0
	for _, t := range targets {
		f := transport.NewFrame(transport.CommandMessage,
			"destination", destination,
			"subscription", t.id,
			"message-id", uuid.NewString(),
			"content-type", "application/json",
		)
		f.Body = body
		if t.c.write(t.conn, f) == nil {
			n++
		}
	}
	return n
}

// DropAll closes every client connection without a DISCONNECT, simulating
// a network loss
func (b *Broker) DropAll() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for conn := range b.conns {
		conns = append(conns, conn)
	}
	b.conns = make(map[*websocket.Conn]*client)
	b.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}

func (b *Broker) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	c := &client{subs: make(map[string]string)}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := transport.ParseFrame(data)
		if err != nil || f == nil {
			continue
		}
		switch f.Command {
		case transport.CommandConnect:
			if b.Token != "" && f.Get("Authorization") != "Bearer "+b.Token {
				e := transport.NewFrame(transport.CommandError, "message", "unauthorized")
				c.write(conn, e)
				return
			}
			b.mu.Lock()
			hook := b.OnConnect
			b.mu.Unlock()
			if hook != nil {
				hook()
			}
			b.mu.Lock()
			b.connects++
			b.conns[conn] = c
			b.mu.Unlock()
			c.write(conn, transport.NewFrame(transport.CommandConnected, "version", "1.2", "heart-beat", "0,0"))
		case transport.CommandSubscribe:
			b.mu.Lock()
			c.subs[f.Get("destination")] = f.Get("id")
			b.mu.Unlock()
		case transport.CommandUnsubscribe:
			b.mu.Lock()
			for dest, id := range c.subs {
				if id == f.Get("id") {
					delete(c.subs, dest)
				}
			}
			b.mu.Unlock()
		case transport.CommandSend:
			b.mu.Lock()
			b.sent = append(b.sent, f)
			hook := b.OnSend
			b.mu.Unlock()
			if hook != nil {
				hook(f)
			}
		case transport.CommandDisconnect:
			if receipt := f.Get("receipt"); receipt != "" {
				c.write(conn, transport.NewFrame(transport.CommandReceipt, "receipt-id", receipt))
			}
			return
		}
	}
}

func (c *client) write(conn *websocket.Conn, f *transport.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, f.Marshal())
}
