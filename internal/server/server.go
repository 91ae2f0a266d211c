package server

import (
	"context"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/roach88/replicant/internal/engine"
	"github.com/roach88/replicant/internal/pubsub"
)

// Options tunes per-connection behavior. Zero values take the defaults.
type Options struct {
	// WriteTimeout bounds each socket write. A websocket write deadline
	// cannot be recovered from, so hitting it kills the connection.
	WriteTimeout time.Duration

	// PingInterval is how often the write pump pings an idle socket.
	// The read deadline is derived from it: a peer that misses two
	// pings in a row is considered gone.
	PingInterval time.Duration

	// SendBuffer is the outbound queue depth per connection. When the
	// queue is full the subscriber is dropped rather than stalling
	// publishers.
	SendBuffer int

	// ReadLimit caps inbound message size in bytes.
	ReadLimit int64
}

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultSendBuffer   = 64
	DefaultReadLimit    = 1 << 20
)

func (o *Options) applyDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = DefaultSendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
}

// Server upgrades HTTP requests to WebSocket connections and speaks the
// replicant protocol on them. It is an http.Handler; mount it wherever
// the transport endpoint should live.
type Server struct {
	engine   *engine.Engine
	registry *pubsub.Registry
	opts     Options
	upgrader websocket.Upgrader
}

// New creates a server over an engine and its subscription registry. The
// registry must be the same one wired into the engine as its notifier,
// otherwise subscribers never hear about commits.
func New(eng *engine.Engine, registry *pubsub.Registry, opts Options) *Server {
	opts.applyDefaults()
	return &Server{
		engine:   eng,
		registry: registry,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The graphics layers are served from arbitrary local origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler: upgrade, then hand the socket to a
// connection's read loop and write pump.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Infof("upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	c := newConn(s, ws)
	glog.V(1).Infof("connection %s open from %s", c.id, r.RemoteAddr)

	go c.writePump()
	c.readLoop(r.Context())
}

// Run serves the WebSocket endpoint on addr until ctx is canceled, then
// shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/replicants", s)

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		glog.Infof("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
