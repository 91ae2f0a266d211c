package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/roach88/replicant/internal/protocol"
	"github.com/roach88/replicant/internal/replicant"
)

// Options tunes the client connection. Zero values take the defaults.
type Options struct {
	// ReconnectDelay is the pause between connection attempts.
	ReconnectDelay time.Duration

	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// ReadTimeout is the inactivity window before the connection is
	// presumed dead. The server pings well inside it.
	ReadTimeout time.Duration
}

const (
	DefaultReconnectDelay = time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultReadTimeout    = 75 * time.Second
)

func (o *Options) applyDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
}

// Client owns one WebSocket connection to a replicant server and the
// proxies tracked over it. It reconnects until closed, resubscribing
// every tracked key on each new connection.
type Client struct {
	url  string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	ws      *websocket.Conn
	proxies map[replicant.Key]*Proxy

	wmu sync.Mutex // serializes socket writes
}

// Dial connects to a replicant server. The first connection is made
// synchronously so callers fail fast on a bad address; afterwards the
// client reconnects in the background until Close.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	opts.applyDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		url:     url,
		opts:    opts,
		ctx:     runCtx,
		cancel:  cancel,
		proxies: make(map[replicant.Key]*Proxy),
	}

	ws, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	c.ws = ws

	go c.run(ws)
	return c, nil
}

// Close tears the connection down and stops reconnecting. Tracked
// proxies transition to Disconnected and stay there.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	c.mu.Unlock()

	if ws != nil {
		return ws.Close()
	}
	return nil
}

// Replicant returns the proxy for a key, creating and subscribing it on
// first use. defaultValue is what Get returns until the initial snapshot
// arrives; a zero default means JSON null. Subsequent calls for the same
// key return the same proxy and ignore the default.
func (c *Client) Replicant(namespace, name string, defaultValue replicant.Value) *Proxy {
	key := replicant.NewKey(namespace, name)

	c.mu.Lock()
	p := c.proxies[key]
	if p == nil {
		if defaultValue.IsZero() {
			defaultValue = replicant.Null
		}
		p = newProxy(c, key, defaultValue)
		c.proxies[key] = p
	}
	connected := c.ws != nil
	c.mu.Unlock()

	if connected {
		p.enterSubscribing()
		if err := c.send(protocol.NewSubscribeDefault(key, p.defaultValue)); err != nil {
			glog.V(1).Infof("subscribe %s failed, will retry on reconnect: %v", key, err)
		}
	}
	return p
}

// connect dials once and arms the read deadline machinery.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		c.wmu.Lock()
		defer c.wmu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteTimeout))
	})
	return ws, nil
}

// run reads the current connection until it dies, then reconnects with a
// fixed delay until the client is closed.
func (c *Client) run(ws *websocket.Conn) {
	for {
		c.resubscribe()
		c.readLoop(ws)
		c.dropProxiesToDisconnected()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(c.opts.ReconnectDelay):
			}

			next, err := c.connect(c.ctx)
			if err != nil {
				glog.V(1).Infof("reconnect failed: %v", err)
				continue
			}

			c.mu.Lock()
			c.ws = next
			c.mu.Unlock()
			ws = next
			break
		}
	}
}

// resubscribe re-issues subscribe for every tracked key. The resulting
// initial snapshots are authoritative (CP-2): nothing missed while
// disconnected is replayed.
func (c *Client) resubscribe() {
	c.mu.Lock()
	proxies := make([]*Proxy, 0, len(c.proxies))
	for _, p := range c.proxies {
		proxies = append(proxies, p)
	}
	c.mu.Unlock()

	for _, p := range proxies {
		p.enterSubscribing()
		if err := c.send(protocol.NewSubscribeDefault(p.key, p.defaultValue)); err != nil {
			glog.V(1).Infof("resubscribe %s failed: %v", p.key, err)
			return
		}
	}
}

// readLoop dispatches server messages to proxies until the socket dies.
func (c *Client) readLoop(ws *websocket.Conn) {
	for {
		ws.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				glog.V(1).Infof("connection lost: %v", err)
			}
			ws.Close()
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			glog.V(1).Infof("dropping malformed server message: %v", err)
			continue
		}

		c.mu.Lock()
		p := c.proxies[msg.Key()]
		c.mu.Unlock()
		if p == nil {
			continue
		}

		switch msg.Type {
		case protocol.TypeInitial:
			p.handleInitial(msg.Value, msg.Revision)
		case protocol.TypeChange:
			if msg.Deleted {
				p.handleDeleted()
				// The server voided the subscription; track the key anew.
				if err := c.send(protocol.NewSubscribeDefault(p.key, p.defaultValue)); err != nil {
					glog.V(1).Infof("resubscribe after delete %s failed: %v", p.key, err)
				}
			} else {
				p.handleChange(msg.Value, msg.Revision)
			}
		case protocol.TypeError:
			p.handleError(msg.Code, msg.Reason)
		}
	}
}

// dropProxiesToDisconnected marks every proxy Disconnected after the
// socket died. Local values stay readable; writes fail fast.
func (c *Client) dropProxiesToDisconnected() {
	c.mu.Lock()
	ws := c.ws
	c.ws = nil
	proxies := make([]*Proxy, 0, len(c.proxies))
	for _, p := range c.proxies {
		proxies = append(proxies, p)
	}
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	for _, p := range proxies {
		p.enterDisconnected()
	}
}

// send writes one envelope to the current socket.
func (c *Client) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return &replicant.TransportError{Err: errDisconnected}
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &replicant.TransportError{Err: err}
	}
	return nil
}

// forget removes a destroyed proxy from the table.
func (c *Client) forget(key replicant.Key) {
	c.mu.Lock()
	delete(c.proxies, key)
	c.mu.Unlock()
}

var errDisconnected = fmt.Errorf("not connected")
