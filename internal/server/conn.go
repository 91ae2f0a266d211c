package server

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
)

// conn is one WebSocket connection. It implements pubsub.Sink so the
// registry can hand it committed changes.
type conn struct {
	id   string
	srv  *Server
	ws   *websocket.Conn
	send chan protocol.Message

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(srv *Server, ws *websocket.Conn) *conn {
	return &conn{
		id:     uuid.NewString(),
		srv:    srv,
		ws:     ws,
		send:   make(chan protocol.Message, srv.opts.SendBuffer),
		closed: make(chan struct{}),
	}
}

// ID implements pubsub.Sink.
func (c *conn) ID() string { return c.id }

// Send implements pubsub.Sink: enqueue without blocking. False means the
// queue is full or the connection is closing; the registry drops us.
func (c *conn) Send(msg protocol.Message) bool {
	select {
	case <-c.closed:
		return false
	case c.send <- msg:
		return true
	default:
		glog.V(1).Infof("connection %s send queue full", c.id)
		return false
	}
}

// close tears the connection down exactly once. The write pump exits on
// the closed signal; the registry forgets every subscription.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.srv.registry.UnsubscribeAll(c.id)
		c.ws.Close()
		glog.V(1).Infof("connection %s closed", c.id)
	})
}

// readLoop consumes client messages until the socket dies. It is the only
// reader of the socket.
func (c *conn) readLoop(ctx context.Context) {
	defer c.close()

	c.ws.SetReadLimit(c.srv.opts.ReadLimit)
	readDeadline := func() {
		c.ws.SetReadDeadline(time.Now().Add(2 * c.srv.opts.PingInterval))
	}
	readDeadline()
	c.ws.SetPongHandler(func(string) error {
		readDeadline()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(1).Infof("connection %s read error: %v", c.id, err)
			}
			return
		}
		readDeadline()

		msg, err := protocol.Decode(data)
		if err != nil {
			glog.V(1).Infof("connection %s sent malformed message: %v", c.id, err)
			continue
		}
		c.handle(ctx, msg)
	}
}

// handle dispatches one inbound envelope.
func (c *conn) handle(ctx context.Context, msg protocol.Message) {
	key := msg.Key()

	switch msg.Type {
	case protocol.TypeSubscribe:
		// Register before reading (CP-2): a commit racing this subscribe
		// lands in the snapshot, the broadcast, or both.
		c.srv.registry.Subscribe(c, key)

		value, revision, err := c.srv.engine.Get(ctx, key.Namespace, key.Name, msg.Value)
		if err != nil {
			glog.Infof("connection %s subscribe %s failed: %v", c.id, key, err)
			c.Send(protocol.NewError(key, err))
			return
		}
		c.Send(protocol.NewInitial(key, value, revision))

	case protocol.TypeUnsubscribe:
		c.srv.registry.Unsubscribe(c.id, key)

	case protocol.TypeSet:
		// The broadcast reaches the sender through its own subscription;
		// only failures come back directly (CP-3).
		if _, _, err := c.srv.engine.Set(ctx, key.Namespace, key.Name, msg.Value, c.id); err != nil {
			if !replicant.IsSchemaValidation(err) {
				glog.Infof("connection %s set %s failed: %v", c.id, key, err)
			}
			c.Send(protocol.NewError(key, err))
		}

	default:
		// Server-to-client types arriving inbound are a client bug.
		c.Send(protocol.NewError(key, &replicant.TransportError{
			ConnID: c.id,
			Err:    errUnexpectedType(msg.Type),
		}))
	}
}

// writePump is the socket's only writer (CP-1): it drains the send queue
// and pings idle peers.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.srv.opts.PingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.closed:
			return

		case msg := <-c.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				glog.Errorf("connection %s encode failed: %v", c.id, err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				glog.V(1).Infof("connection %s write error: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.srv.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type errUnexpectedType protocol.Type

func (e errUnexpectedType) Error() string {
	return "unexpected message type " + string(e)
}
