package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// DefaultListenAddr is the simulator's fixed server address.
const DefaultListenAddr = ":4567"

// PlannerFactory builds a fresh planner for each connection.
type PlannerFactory func() (*planner.Planner, error)

// RunStarter opens a new run and returns its id.
type RunStarter func(ctx context.Context) (string, error)

// ServerConfig configures a Server.
type ServerConfig struct {
	NewPlanner PlannerFactory       // required
	Smoother   PathSmoother         // nil uses DefaultContinuePath
	Sink       planner.DecisionSink // receives every decision, may be nil
	StartRun   RunStarter           // nil leaves decisions without a run id
	ReadLimit  int64                // max frame size, 0 for 1 MiB
}

// Server accepts simulator websocket connections. Each connection gets its
// own planner, so the ego lifecycle is the connection's lifecycle.
type Server struct {
	cfg ServerConfig

	active    atomic.Int64
	frames    atomic.Uint64
	decisions atomic.Uint64
	malformed atomic.Uint64
}

// ServerStats is a snapshot of the server's counters.
type ServerStats struct {
	ActiveConnections int64  `json:"active_connections"`
	Frames            uint64 `json:"frames"`
	Decisions         uint64 `json:"decisions"`
	Malformed         uint64 `json:"malformed"`
}

// NewServer returns a Server for cfg.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.NewPlanner == nil {
		return nil, errors.New("telemetry: planner factory is required")
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}
	return &Server{cfg: cfg}, nil
}

// Stats returns the current counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ActiveConnections: s.active.Load(),
		Frames:            s.frames.Load(),
		Decisions:         s.decisions.Load(),
		Malformed:         s.malformed.Load(),
	}
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// peer disconnects or the request context ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The simulator sends no Origin header.
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		opsf("websocket accept from %s failed: %v", r.RemoteAddr, err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(s.cfg.ReadLimit)

	if err := s.serveConn(r.Context(), c, r.RemoteAddr); err != nil {
		opsf("connection %s: %v", r.RemoteAddr, err)
		c.Close(websocket.StatusInternalError, "planner error")
		return
	}
	c.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) serveConn(ctx context.Context, c *websocket.Conn, remote string) error {
	p, err := s.cfg.NewPlanner()
	if err != nil {
		return fmt.Errorf("build planner: %w", err)
	}
	if s.cfg.StartRun != nil {
		runID, err := s.cfg.StartRun(ctx)
		if err != nil {
			return fmt.Errorf("start run: %w", err)
		}
		p.SetRunID(runID)
	}
	p.SetSink(planner.SinkFunc(func(ctx context.Context, d planner.Decision) {
		s.decisions.Add(1)
		if s.cfg.Sink != nil {
			s.cfg.Sink.HandleDecision(ctx, d)
		}
	}))
	session := NewSession(p, s.cfg.Smoother)

	s.active.Add(1)
	defer s.active.Add(-1)
	diagf("connected %s run=%s", remote, p.RunID())
	start := time.Now()

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				diagf("disconnected %s run=%s after %s", remote, p.RunID(), time.Since(start).Round(time.Millisecond))
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			diagf("read from %s ended: %v", remote, err)
			return nil
		}
		if typ != websocket.MessageText {
			continue
		}
		s.frames.Add(1)

		reply, d, err := session.Handle(ctx, string(data))
		switch {
		case errors.Is(err, ErrNotEvent):
			tracef("ignoring non-event frame from %s: %.32q", remote, data)
			continue
		case err != nil:
			s.malformed.Add(1)
			opsf("malformed frame from %s: %v", remote, err)
		}
		if d != nil {
			tracef("run=%s cycle=%d state=%s lane=%d v=%.2f", d.RunID, d.Cycle, d.State, d.Lane, d.Speed)
		}
		if reply == "" {
			continue
		}
		if err := c.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
			diagf("write to %s failed: %v", remote, err)
			return nil
		}
	}
}

// ListenAndServe serves the simulator endpoint on addr until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/", s)
	server := &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		diagf("listening for the simulator on %s", ln.Addr())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		opsf("simulator server shutdown error: %v", err)
		server.Close()
	}
	return nil
}
