// Package transport owns the single publish/subscribe connection of a chat
// identity: STOMP 1.2 frames over a websocket, with automatic reconnection
// on a fixed delay.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/metrics"
)

// Status is the connection state of a Session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned by Publish while there is no live connection
	ErrNotConnected = errors.New("transport: not connected")
	// ErrNoCredential is recorded when Connect is called without a token
	ErrNoCredential = errors.New("transport: no credential available")
	// ErrClosed is returned when Disconnect races a connection attempt
	ErrClosed = errors.New("transport: session closed")
)

// ServerError is an ERROR frame sent by the broker
type ServerError struct {
	Message string
	Detail  string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return "stomp error: " + e.Message
	}
	return fmt.Sprintf("stomp error: %s: %s", e.Message, e.Detail)
}

const writeWait = 10 * time.Second

// Options configures a Session
type Options struct {
	// URL is the websocket endpoint, e.g. wss://shop.example/ws
	URL string
	// Host is sent in the CONNECT frame; defaults to the URL host
	Host string
	// SendDestination is the fixed address every chat message is sent to
	SendDestination string
	// TopicPrefix maps a topic such as conversation/C1 to its destination
	TopicPrefix      string
	ReconnectDelay   time.Duration
	HeartBeat        time.Duration
	HandshakeTimeout time.Duration
	// Resubscribe keeps the topic registry across reconnects and replays it
	// once the new connection is up
	Resubscribe bool
	Dialer      *websocket.Dialer
}

// DefaultOptions returns the options used by the shop frontend
func DefaultOptions(wsURL string) Options {
	return Options{
		URL:              wsURL,
		SendDestination:  "/app/chat.send",
		TopicPrefix:      "/topic/",
		ReconnectDelay:   5 * time.Second,
		HeartBeat:        10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Resubscribe:      true,
	}
}

// Delivery is an inbound MESSAGE frame routed to a subscription
type Delivery struct {
	Topic       string
	Destination string
	MessageID   string
	Body        []byte
}

// Handler receives deliveries for one topic
type Handler func(Delivery)

// Subscription is the handle returned by Subscribe
type Subscription struct {
	id    string
	topic string
}

// ID returns the STOMP subscription id
func (s *Subscription) ID() string { return s.id }

// Topic returns the subscribed topic
func (s *Subscription) Topic() string { return s.topic }

type registration struct {
	sub     *Subscription
	handler Handler
}

// Session is one persistent STOMP connection multiplexing every topic
type Session struct {
	opts Options

	mu         sync.Mutex
	conn       *websocket.Conn
	done       chan struct{}
	generation int
	status     Status
	err        error
	token      string
	closed     bool
	retry      *time.Timer
	topics     map[string]*registration
	ids        map[string]*registration
	observers  []func(Status, error)

	writeMu sync.Mutex
}

// New creates a disconnected session
func New(opts Options) *Session {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	return &Session{
		opts:   opts,
		topics: make(map[string]*registration),
		ids:    make(map[string]*registration),
	}
}

// Status returns the current connection state
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the last connection error, nil once connected
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// OnStatus registers an observer called on every state change
func (s *Session) OnStatus(fn func(Status, error)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Topics returns the registered topics, sorted
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Connect establishes the connection. It returns immediately when a
// connection is already up or being set up. A failed attempt leaves the
// session disconnected with the error recorded and a retry scheduled.
func (s *Session) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.closed = false
	if strings.TrimSpace(token) == "" {
		s.err = ErrNoCredential
		s.mu.Unlock()
		zap.S().Warnw("transport connect skipped", "error", ErrNoCredential)
		s.notify(StatusDisconnected, ErrNoCredential)
		return ErrNoCredential
	}
	s.token = token
	s.stopRetryLocked()
	s.setStatusLocked(StatusConnecting, nil)
	s.mu.Unlock()

	s.notify(StatusConnecting, nil)
	return s.dial(ctx)
}

// Disconnect tears the connection down, cancels pending retries and drops
// every subscription. Calling it on a disconnected session is a no-op.
func (s *Session) Disconnect() {
	s.mu.Lock()
	wasUp := s.status != StatusDisconnected || s.conn != nil
	s.closed = true
	s.stopRetryLocked()
	conn := s.conn
	s.conn = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.generation++
	s.token = ""
	s.topics = make(map[string]*registration)
	s.ids = make(map[string]*registration)
	s.setStatusLocked(StatusDisconnected, nil)
	s.mu.Unlock()

	if conn != nil {
		if err := s.write(conn, NewFrame(CommandDisconnect, "receipt", uuid.NewString())); err != nil {
			zap.S().Debugw("failed to send disconnect frame", "error", err)
		}
		conn.Close()
	}
	if wasUp {
		zap.S().Infow("transport disconnected", "url", s.opts.URL)
		s.notify(StatusDisconnected, nil)
	}
}

// Subscribe registers handler for topic. The registry is keyed by topic: a
// second call for the same topic swaps the handler and returns the existing
// handle without a second SUBSCRIBE. While disconnected the subscription is
// sent once the connection comes up.
func (s *Session) Subscribe(topic string, handler Handler) (*Subscription, error) {
	s.mu.Lock()
	if reg, ok := s.topics[topic]; ok {
		reg.handler = handler
		s.mu.Unlock()
		return reg.sub, nil
	}
	reg := &registration{
		sub:     &Subscription{id: uuid.NewString(), topic: topic},
		handler: handler,
	}
	s.topics[topic] = reg
	s.ids[reg.sub.id] = reg
	conn := s.liveConnLocked()
	s.mu.Unlock()

	if conn == nil {
		return reg.sub, nil
	}
	if err := s.write(conn, s.subscribeFrame(reg.sub)); err != nil {
		return reg.sub, errors.Wrapf(err, "failed to subscribe to %s", topic)
	}
	zap.S().Debugw("subscribed", "topic", topic, "subscription", reg.sub.id)
	return reg.sub, nil
}

// Unsubscribe removes a subscription. Unknown or nil handles are ignored.
func (s *Session) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	s.mu.Lock()
	reg, ok := s.ids[sub.id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.ids, sub.id)
	delete(s.topics, reg.sub.topic)
	conn := s.liveConnLocked()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := s.write(conn, NewFrame(CommandUnsubscribe, "id", sub.id)); err != nil {
		return errors.Wrapf(err, "failed to unsubscribe from %s", sub.topic)
	}
	zap.S().Debugw("unsubscribed", "topic", sub.topic, "subscription", sub.id)
	return nil
}

// Publish sends payload as JSON to the fixed send destination
func (s *Session) Publish(payload interface{}) error {
	return s.PublishTo(s.opts.SendDestination, payload)
}

// PublishTo sends payload as JSON to destination
func (s *Session) PublishTo(destination string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}
	s.mu.Lock()
	conn := s.liveConnLocked()
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	f := NewFrame(CommandSend, "destination", destination, "content-type", "application/json")
	f.Body = body
	if err := s.write(conn, f); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", destination)
	}
	return nil
}

func (s *Session) dial(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	started := s.generation
	s.mu.Unlock()

	conn, serverBeat, err := s.handshake(ctx, token)

	s.mu.Lock()
	// a Disconnect while the handshake was running invalidates this attempt,
	// even when a newer Connect has already reopened the session
	if s.closed || s.generation != started {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.setStatusLocked(StatusDisconnected, err)
		s.scheduleRetryLocked()
		s.mu.Unlock()
		zap.S().Warnw("transport connect failed", "url", s.opts.URL, "error", err, "retryIn", s.opts.ReconnectDelay)
		s.notify(StatusDisconnected, err)
		return err
	}
	s.conn = conn
	s.generation++
	gen := s.generation
	done := make(chan struct{})
	s.done = done
	s.setStatusLocked(StatusConnected, nil)
	replay := make([]*Subscription, 0, len(s.topics))
	for _, reg := range s.topics {
		replay = append(replay, reg.sub)
	}
	s.mu.Unlock()

	for _, sub := range replay {
		if err := s.write(conn, s.subscribeFrame(sub)); err != nil {
			zap.S().Warnw("failed to replay subscription", "topic", sub.topic, "error", err)
		}
	}

	go s.readLoop(conn, gen, serverBeat)
	go s.heartbeatLoop(conn, done)

	zap.S().Infow("transport connected", "url", s.opts.URL, "subscriptions", len(replay))
	s.notify(StatusConnected, nil)
	return nil
}

func (s *Session) handshake(ctx context.Context, token string) (*websocket.Conn, time.Duration, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, header)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to dial")
	}

	beat := s.opts.HeartBeat.Milliseconds()
	connect := NewFrame(CommandConnect,
		"accept-version", "1.2",
		"host", s.host(),
		"heart-beat", fmt.Sprintf("%d,%d", beat, beat),
		"Authorization", "Bearer "+token,
	)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		conn.Close()
		return nil, 0, errors.Wrap(err, "failed to send connect frame")
	}

	deadline := time.Now().Add(s.opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return nil, 0, errors.Wrap(err, "failed to read connected frame")
		}
		f, err := ParseFrame(data)
		if err != nil {
			conn.Close()
			return nil, 0, err
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case CommandConnected:
			conn.SetReadDeadline(time.Time{})
			return conn, serverHeartBeat(f.Get("heart-beat")), nil
		case CommandError:
			conn.Close()
			return nil, 0, &ServerError{Message: f.Get("message"), Detail: string(f.Body)}
		default:
			conn.Close()
			return nil, 0, errors.Errorf("unexpected %s frame during handshake", f.Command)
		}
	}
}

func (s *Session) readLoop(conn *websocket.Conn, gen int, serverBeat time.Duration) {
	for {
		if serverBeat > 0 {
			conn.SetReadDeadline(time.Now().Add(3 * serverBeat))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.lost(gen, err)
			return
		}
		f, err := ParseFrame(data)
		if err != nil {
			zap.S().Warnw("dropping malformed frame", "error", err)
			continue
		}
		if f == nil {
			continue
		}
		metrics.FramesReceived.WithLabelValues(f.Command).Inc()
		switch f.Command {
		case CommandMessage:
			s.dispatch(f)
		case CommandError:
			s.lost(gen, &ServerError{Message: f.Get("message"), Detail: string(f.Body)})
			return
		case CommandReceipt:
			zap.S().Debugw("receipt", "id", f.Get("receipt-id"))
		}
	}
}

func (s *Session) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	if s.opts.HeartBeat <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.HeartBeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.TextMessage, []byte("\n"))
			s.writeMu.Unlock()
			if err != nil {
				zap.S().Debugw("heart-beat write failed", "error", err)
				return
			}
		}
	}
}

func (s *Session) dispatch(f *Frame) {
	destination := f.Get("destination")
	s.mu.Lock()
	reg, ok := s.ids[f.Get("subscription")]
	if !ok {
		reg, ok = s.topics[strings.TrimPrefix(destination, s.opts.TopicPrefix)]
	}
	var handler Handler
	var topic string
	if ok {
		handler, topic = reg.handler, reg.sub.topic
	}
	s.mu.Unlock()

	if handler == nil {
		zap.S().Debugw("no subscription for frame", "destination", destination)
		return
	}
	handler(Delivery{
		Topic:       topic,
		Destination: destination,
		MessageID:   f.Get("message-id"),
		Body:        f.Body,
	})
}

// lost handles the end of connection gen. Anything but an explicit
// Disconnect schedules a reconnect.
func (s *Session) lost(gen int, err error) {
	s.mu.Lock()
	if gen != s.generation || s.conn == nil {
		s.mu.Unlock()
		return
	}
	s.conn.Close()
	s.conn = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if !s.opts.Resubscribe {
		s.topics = make(map[string]*registration)
		s.ids = make(map[string]*registration)
	}
	s.setStatusLocked(StatusDisconnected, err)
	s.scheduleRetryLocked()
	s.mu.Unlock()

	zap.S().Warnw("transport connection lost", "url", s.opts.URL, "error", err, "retryIn", s.opts.ReconnectDelay)
	s.notify(StatusDisconnected, err)
}

func (s *Session) reconnect() {
	s.mu.Lock()
	s.retry = nil
	if s.closed || s.status != StatusDisconnected || s.token == "" {
		s.mu.Unlock()
		return
	}
	s.setStatusLocked(StatusConnecting, nil)
	s.mu.Unlock()

	metrics.Reconnects.Inc()
	s.notify(StatusConnecting, nil)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	defer cancel()
	if err := s.dial(ctx); err != nil {
		zap.S().Debugw("reconnect attempt failed", "error", err)
	}
}

func (s *Session) scheduleRetryLocked() {
	if s.closed || s.opts.ReconnectDelay <= 0 || s.token == "" {
		return
	}
	s.stopRetryLocked()
	s.retry = time.AfterFunc(s.opts.ReconnectDelay, s.reconnect)
}

func (s *Session) stopRetryLocked() {
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
}

func (s *Session) setStatusLocked(status Status, err error) {
	s.status = status
	s.err = err
	metrics.ConnectionState.Set(float64(status))
}

func (s *Session) liveConnLocked() *websocket.Conn {
	if s.status != StatusConnected {
		return nil
	}
	return s.conn
}

func (s *Session) notify(status Status, err error) {
	s.mu.Lock()
	observers := append([]func(Status, error){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(status, err)
	}
}

func (s *Session) write(conn *websocket.Conn, f *Frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, f.Marshal())
}

func (s *Session) subscribeFrame(sub *Subscription) *Frame {
	return NewFrame(CommandSubscribe,
		"id", sub.id,
		"destination", s.opts.TopicPrefix+sub.topic,
		"ack", "auto",
	)
}

func (s *Session) host() string {
	if s.opts.Host != "" {
		return s.opts.Host
	}
	if u, err := url.Parse(s.opts.URL); err == nil {
		return u.Hostname()
	}
	return ""
}

// serverHeartBeat returns how often the server promised to send heart-beats
func serverHeartBeat(header string) time.Duration {
	parts := strings.Split(header, ",")
	if len(parts) != 2 {
		return 0
	}
	ms, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
