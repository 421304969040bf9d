// Package ws implements the push channel: a self-healing WebSocket
// client that receives authoritative server events, correlates the few
// request/response exchanges the channel supports, and queues outbound
// frames while the link is down.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stueble/guestsync/internal/core/domain"
	"github.com/stueble/guestsync/internal/core/ports"
	"github.com/stueble/guestsync/internal/metrics"
	"github.com/stueble/guestsync/internal/protocol"
)

// State is the lifecycle position of the push channel.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen          // socket up, status frame not yet received
	StateAuthenticated // status received with authorized=true
	StateUnauthorized  // status received with authorized=false; no retry
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "disconnected"
	}
}

// Conn is the subset of a WebSocket connection the client uses.
// *websocket.Conn satisfies it; tests substitute an in-memory pipe.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a Conn. The default wraps gorilla's DialContext.
type Dialer func(ctx context.Context, url string, header http.Header) (Conn, error)

// GorillaDialer dials with the package-default gorilla dialer. A 401
// handshake rejection maps to domain.ErrUnauthorized so the caller can
// stop retrying and reauthenticate instead.
func GorillaDialer(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: handshake rejected", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return conn, nil
}

// Options configure a push channel client.
type Options struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string
	// Encoding selects the frame codec for outbound traffic. Inbound
	// frames are decoded by their own frame type.
	Encoding protocol.Encoding
	// Token returns the current session token, stamped as a Bearer
	// header on each dial. May be nil for cookie-based sessions.
	Token func() string
	// HeartbeatInterval is the fire-and-forget keepalive period while
	// authenticated. Zero disables the heartbeat.
	HeartbeatInterval time.Duration
	// Dialer defaults to GorillaDialer.
	Dialer Dialer
	// OnStateChange, when set, observes lifecycle transitions. On a
	// transition to StateDisconnected, retryIn is the delay before the
	// next attempt.
	OnStateChange func(s State, retryIn time.Duration)
}

// pendingRequest is one in-flight (or queued) correlated request.
type pendingRequest struct {
	ch   chan response
	sent bool
}

type response struct {
	msg protocol.ServerMessage
	err error
}

// Client maintains the push channel across disconnects. Server events
// flow into the EventSink; a successful authorization triggers a buffer
// replay. Outbound frames written while the link is down are encoded
// eagerly and flushed, in order, once the channel is authenticated.
type Client struct {
	opts     Options
	dial     Dialer
	sink     ports.EventSink
	replayer ports.Replayer
	settings ports.SettingsStore
	log      zerolog.Logger

	mu           sync.Mutex
	conn         Conn
	state        State
	reqID        uint64
	pending      map[uint64]*pendingRequest
	queue        [][]byte
	retrySeconds int
	capabilities []domain.Capability
}

func NewClient(
	opts Options,
	sink ports.EventSink,
	replayer ports.Replayer,
	settings ports.SettingsStore,
	log zerolog.Logger,
) *Client {
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer
	}
	return &Client{
		opts:     opts,
		dial:     opts.Dialer,
		sink:     sink,
		replayer: replayer,
		settings: settings,
		log:      log,
		pending:  make(map[uint64]*pendingRequest),
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities returns the roles granted by the last status frame.
func (c *Client) Capabilities() []domain.Capability {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Capability, len(c.capabilities))
	copy(out, c.capabilities)
	return out
}

// errUnauthorized stops the reconnect loop from inside a session.
var errUnauthorized = errors.New("ws: session unauthorized")

// Run connects and keeps the channel alive until ctx is cancelled or
// the server declares the session unauthorized. It only returns
// ctx.Err() or domain.ErrUnauthorized.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(StateConnecting, 0)
		conn, err := c.dial(ctx, c.opts.URL, c.header())
		if err != nil {
			metrics.ConnectsTotal.WithLabelValues("error").Inc()
			if errors.Is(err, domain.ErrUnauthorized) {
				c.setState(StateUnauthorized, 0)
				return domain.ErrUnauthorized
			}
			c.log.Warn().Err(err).Str("url", c.opts.URL).Msg("push channel dial failed")
			if err := c.backoff(ctx); err != nil {
				return err
			}
			continue
		}

		err = c.serve(ctx, conn)
		c.drainPending(domain.ErrConnectionLost)
		if errors.Is(err, errUnauthorized) {
			c.setState(StateUnauthorized, 0)
			return domain.ErrUnauthorized
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected, 0)
			return ctx.Err()
		}

		c.log.Warn().Err(err).Msg("push channel lost")
		if err := c.backoff(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.opts.Token != nil {
		if token := c.opts.Token(); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

// backoff sleeps for the next retry delay. The delay grows by one
// second per consecutive failure and is capped at ten; any inbound
// frame resets it.
func (c *Client) backoff(ctx context.Context) error {
	delay := c.nextRetryDelay()
	c.setState(StateDisconnected, delay)
	if delay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) nextRetryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	seconds := c.retrySeconds
	if seconds > 10 {
		seconds = 10
	} else {
		c.retrySeconds++
	}
	return time.Duration(seconds) * time.Second
}

// serve owns one connection: it runs the read loop and the heartbeat
// until either fails, then closes the socket.
func (c *Client) serve(ctx context.Context, conn Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	c.notify(StateOpen, 0)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.state = StateDisconnected
		c.mu.Unlock()
		conn.Close()
	}()

	go c.heartbeatLoop(sessionCtx)
	go func() {
		// Unblocks ReadMessage when ctx is cancelled.
		<-sessionCtx.Done()
		conn.Close()
	}()

	for {
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		enc := protocol.Binary
		if frameType == websocket.TextMessage {
			enc = protocol.Text
		}

		c.mu.Lock()
		c.retrySeconds = 0
		c.mu.Unlock()

		msg, err := protocol.DecodeServer(enc, data)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable push frame dropped")
			continue
		}
		if err := c.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	if c.opts.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.State() != StateAuthenticated {
				continue
			}
			if err := c.send(protocol.Heartbeat{}); err != nil {
				c.log.Debug().Err(err).Msg("heartbeat not sent")
			}
		}
	}
}

// dispatch routes one decoded server message. Only an unauthorized
// status terminates the session; event application failures are logged
// and the channel stays up.
func (c *Client) dispatch(ctx context.Context, msg protocol.ServerMessage) error {
	metrics.MessagesReceivedTotal.WithLabelValues(eventName(msg)).Inc()

	switch m := msg.(type) {
	case protocol.Status:
		if !m.Data.Authorized {
			c.log.Warn().Msg("push channel rejected: session unauthorized")
			return errUnauthorized
		}
		c.mu.Lock()
		c.state = StateAuthenticated
		c.capabilities = m.Data.Capabilities
		c.mu.Unlock()
		c.notify(StateAuthenticated, 0)
		metrics.ConnectsTotal.WithLabelValues("ok").Inc()
		c.flushQueue()
		if c.replayer != nil {
			go func() {
				if err := c.replayer.Replay(ctx); err != nil {
					c.log.Warn().Err(err).Msg("buffer replay after reconnect failed")
				}
			}()
		}

	case protocol.Pong:
		c.resolve(m.ReqID, msg)

	case protocol.Motto:
		c.persistSetting(ctx, ports.SettingMotto, m.Data)
		c.resolve(m.ReqID, msg)

	case protocol.QRCode:
		c.persistJSONSetting(ctx, ports.SettingQRCodeData, m.Data)
		c.resolve(m.ReqID, msg)

	case protocol.PublicKey:
		c.persistJSONSetting(ctx, ports.SettingPublicKey, m.Data)
		c.resolve(m.ReqID, msg)

	case protocol.ServerError:
		err := fmt.Errorf("server error %s: %s", m.Data.Code, m.Data.Message)
		if m.ReqID != nil {
			c.reject(*m.ReqID, err)
		} else {
			c.log.Warn().Str("code", m.Data.Code).Str("message", m.Data.Message).Msg("unsolicited server error")
		}

	case protocol.GuestAdded:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.GuestUpserted(ctx, m.Data) })
	case protocol.GuestModified:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.GuestUpserted(ctx, m.Data) })
	case protocol.GuestRemoved:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.GuestRemoved(ctx, m.Data) })
	case protocol.HostAdded:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.HostUpserted(ctx, m.Data) })
	case protocol.HostRemoved:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.HostRemoved(ctx, m.Data) })
	case protocol.TutorAdded:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.TutorUpserted(ctx, m.Data) })
	case protocol.TutorRemoved:
		c.applyEvent(ctx, m.ResID, func() error { return c.sink.TutorRemoved(ctx, m.Data) })

	case protocol.PartyStatus:
		if err := c.sink.StatusChanged(ctx, m.Data); err != nil {
			c.log.Error().Err(err).Msg("event status not applied")
		}

	case protocol.Unknown:
		if m.ReqID != nil {
			c.resolve(*m.ReqID, msg)
		} else {
			c.log.Debug().Str("event", m.Event).Msg("unknown push event dropped")
		}
	}
	return nil
}

// applyEvent feeds a server event into the sink and acknowledges it
// when the server asked for delivery confirmation. A failed local apply
// is logged but still acknowledged: redelivery would fail identically.
func (c *Client) applyEvent(_ context.Context, resID *uint64, apply func() error) {
	if err := apply(); err != nil {
		c.log.Error().Err(err).Msg("push event not applied to local store")
	}
	if resID != nil {
		if err := c.send(protocol.Acknowledgment{ResID: *resID}); err != nil {
			c.log.Debug().Err(err).Uint64("resId", *resID).Msg("acknowledgment not sent")
		}
	}
}

func (c *Client) persistSetting(ctx context.Context, key, value string) {
	if c.settings == nil {
		return
	}
	if err := c.settings.Set(ctx, key, value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("setting not persisted")
	}
}

func (c *Client) persistJSONSetting(ctx context.Context, key string, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("setting not encoded")
		return
	}
	c.persistSetting(ctx, key, string(encoded))
}

/* Correlated requests */

// CheckConnection probes liveness with a correlated ping, giving the
// server three seconds to answer. Only a true-valued pong counts as
// alive.
func (c *Client) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	msg, err := c.request(ctx, func(id uint64) protocol.ClientMessage {
		return protocol.Ping{ReqID: id}
	})
	if err != nil {
		return false
	}
	pong, ok := msg.(protocol.Pong)
	return ok && pong.Data
}

// RequestMotto fetches the current motto over the push channel.
func (c *Client) RequestMotto(ctx context.Context) (string, error) {
	msg, err := c.request(ctx, func(id uint64) protocol.ClientMessage {
		return protocol.RequestMotto{ReqID: id}
	})
	if err != nil {
		return "", err
	}
	m, ok := msg.(protocol.Motto)
	if !ok {
		return "", fmt.Errorf("ws: unexpected reply %T to motto request", msg)
	}
	return m.Data, nil
}

// RequestQRCode fetches a fresh signed entry code.
func (c *Client) RequestQRCode(ctx context.Context) (domain.QRCodePayload, error) {
	msg, err := c.request(ctx, func(id uint64) protocol.ClientMessage {
		return protocol.RequestQRCode{ReqID: id}
	})
	if err != nil {
		return domain.QRCodePayload{}, err
	}
	m, ok := msg.(protocol.QRCode)
	if !ok {
		return domain.QRCodePayload{}, fmt.Errorf("ws: unexpected reply %T to qr code request", msg)
	}
	return m.Data, nil
}

// RequestPublicKey fetches the server's signing key.
func (c *Client) RequestPublicKey(ctx context.Context) (domain.JSONWebKey, error) {
	msg, err := c.request(ctx, func(id uint64) protocol.ClientMessage {
		return protocol.RequestPublicKey{ReqID: id}
	})
	if err != nil {
		return nil, err
	}
	m, ok := msg.(protocol.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ws: unexpected reply %T to public key request", msg)
	}
	return m.Data, nil
}

// request assigns the next correlation id, registers a pending entry,
// then writes the frame, or queues it when the channel is down. The
// entry resolves on the matching reply, on disconnect (sent requests
// only), or when ctx expires.
func (c *Client) request(ctx context.Context, build func(id uint64) protocol.ClientMessage) (protocol.ServerMessage, error) {
	c.mu.Lock()
	if c.state == StateUnauthorized {
		// The channel will not come back without a fresh login, so
		// queueing would strand the caller forever.
		c.mu.Unlock()
		return nil, domain.ErrNotConnected
	}
	c.reqID++
	id := c.reqID
	msg := build(id)
	data, err := protocol.EncodeClient(c.opts.Encoding, msg)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	entry := &pendingRequest{ch: make(chan response, 1)}
	c.pending[id] = entry

	conn := c.conn
	authenticated := c.state == StateAuthenticated
	if authenticated && conn != nil {
		entry.sent = true
	} else {
		c.queue = append(c.queue, data)
	}
	c.mu.Unlock()

	if entry.sent {
		if err := c.writeFrame(conn, data); err != nil {
			c.forget(id)
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
		}
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case r := <-entry.ch:
		return r.msg, r.err
	}
}

// send writes a fire-and-forget frame immediately, or queues it for
// the next authenticated session.
func (c *Client) send(msg protocol.ClientMessage) error {
	data, err := protocol.EncodeClient(c.opts.Encoding, msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	authenticated := c.state == StateAuthenticated
	if !authenticated || conn == nil {
		c.queue = append(c.queue, data)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.writeFrame(conn, data)
}

func (c *Client) writeFrame(conn Conn, data []byte) error {
	frameType := websocket.BinaryMessage
	if c.opts.Encoding == protocol.Text {
		frameType = websocket.TextMessage
	}

	// gorilla allows one concurrent writer.
	c.mu.Lock()
	defer c.mu.Unlock()
	return conn.WriteMessage(frameType, data)
}

// flushQueue sends every frame queued while the channel was down, in
// the order it was queued. Queued correlated requests become in-flight.
func (c *Client) flushQueue() {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	conn := c.conn
	for _, entry := range c.pending {
		entry.sent = true
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	for i, data := range queued {
		if err := c.writeFrame(conn, data); err != nil {
			// Everything not yet written goes back to the front so the
			// next flush keeps the original order.
			c.log.Warn().Err(err).Int("frames", len(queued)-i).Msg("queued frames not flushed")
			c.mu.Lock()
			c.queue = append(queued[i:], c.queue...)
			c.mu.Unlock()
			return
		}
	}
	if len(queued) > 0 {
		c.log.Info().Int("frames", len(queued)).Msg("outbound queue flushed")
	}
}

func (c *Client) resolve(id uint64, msg protocol.ServerMessage) {
	c.complete(id, response{msg: msg})
}

func (c *Client) reject(id uint64, err error) {
	c.complete(id, response{err: err})
}

func (c *Client) complete(id uint64, r response) {
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Uint64("reqId", id).Msg("reply without pending request")
		return
	}
	entry.ch <- r
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// drainPending rejects every request that was actually written to the
// lost connection. Queued-but-unsent requests keep waiting; their frames
// are still in the outbound queue. A drained in-flight request also
// raises the starting retry delay so the next attempt is not immediate.
func (c *Client) drainPending(cause error) {
	c.mu.Lock()
	var drained []*pendingRequest
	for id, entry := range c.pending {
		if entry.sent {
			drained = append(drained, entry)
			delete(c.pending, id)
		}
	}
	if len(drained) > 0 && c.retrySeconds == 0 {
		c.retrySeconds = 3
	}
	c.mu.Unlock()

	for _, entry := range drained {
		entry.ch <- response{err: cause}
		metrics.PendingRequestsDrained.Inc()
	}
}

func (c *Client) setState(s State, retryIn time.Duration) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify(s, retryIn)
}

func (c *Client) notify(s State, retryIn time.Duration) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s, retryIn)
	}
}

func eventName(msg protocol.ServerMessage) string {
	switch m := msg.(type) {
	case protocol.Status:
		return protocol.EventStatus
	case protocol.Pong:
		return protocol.EventPong
	case protocol.GuestAdded:
		return protocol.EventGuestAdded
	case protocol.GuestModified:
		return protocol.EventGuestModified
	case protocol.GuestRemoved:
		return protocol.EventGuestRemoved
	case protocol.HostAdded:
		return protocol.EventHostAdded
	case protocol.HostRemoved:
		return protocol.EventHostRemoved
	case protocol.TutorAdded:
		return protocol.EventTutorAdded
	case protocol.TutorRemoved:
		return protocol.EventTutorRemoved
	case protocol.Motto:
		return protocol.EventMotto
	case protocol.QRCode:
		return protocol.EventQRCode
	case protocol.PublicKey:
		return protocol.EventPublicKey
	case protocol.ServerError:
		return protocol.EventError
	case protocol.PartyStatus:
		return protocol.EventPartyStatus
	case protocol.Unknown:
		return "unknown:" + m.Event
	default:
		return "unknown"
	}
}
