package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/timeutil"
)

// ErrTooManyClients is returned to a subscriber when MaxClients are connected.
var ErrTooManyClients = errors.New("too many feed clients")

// Config configures the decision feed.
type Config struct {
	// ListenAddr is the gRPC listen address (e.g. "localhost:50061").
	ListenAddr string

	// MaxClients caps concurrent subscribers.
	MaxClients int

	// ClientBuffer is the number of decisions queued per subscriber before
	// new ones are dropped for that subscriber.
	ClientBuffer int

	// StatsInterval is how often throughput is logged. Zero disables it.
	StatsInterval time.Duration
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    "localhost:50061",
		MaxClients:    8,
		ClientBuffer:  64,
		StatsInterval: 30 * time.Second,
	}
}

// Stats is a snapshot of the publisher counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Clients   int    `json:"clients"`
}

// Publisher fans decisions out to gRPC subscribers. It is a
// planner.DecisionSink and implements DecisionFeedServer.
type Publisher struct {
	config Config
	clock  timeutil.Clock

	server   *grpc.Server
	listener net.Listener

	clients   map[string]*subscriber
	clientsMu sync.RWMutex

	published atomic.Uint64
	dropped   atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type subscriber struct {
	id string
	ch chan *structpb.Struct
}

var (
	_ DecisionFeedServer   = (*Publisher)(nil)
	_ planner.DecisionSink = (*Publisher)(nil)
)

// NewPublisher returns a stopped publisher. Non-positive limits in cfg take
// their DefaultConfig values.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{
		config:  cfg,
		clock:   timeutil.RealClock{},
		clients: make(map[string]*subscriber),
		stopCh:  make(chan struct{}),
	}
}

// SetClock replaces the clock driving the stats ticker. Call before Start.
func (p *Publisher) SetClock(c timeutil.Clock) {
	p.clock = c
}

// Start listens on the configured address and serves the feed.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves the feed on lis until Stop is called.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	RegisterDecisionFeedServer(p.server, p)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		diagf("gRPC decision feed listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			opsf("gRPC server error: %v", err)
		}
	}()

	if p.config.StatsInterval > 0 {
		p.wg.Add(1)
		go p.statsLoop()
	}
	return nil
}

// Stop ends every subscription and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.GracefulStop()
	}
	p.wg.Wait()
	diagf("gRPC decision feed stopped")
}

// HandleDecision implements planner.DecisionSink. It never blocks: a
// subscriber whose queue is full misses the decision.
func (p *Publisher) HandleDecision(_ context.Context, d planner.Decision) {
	p.clientsMu.RLock()
	defer p.clientsMu.RUnlock()
	if len(p.clients) == 0 {
		return
	}

	msg, err := DecisionToStruct(d)
	if err != nil {
		opsf("cycle %d not published: %v", d.Cycle, err)
		return
	}
	p.published.Add(1)
	for _, c := range p.clients {
		select {
		case c.ch <- msg:
		default:
			p.dropped.Add(1)
		}
	}
}

// Subscribe implements DecisionFeedServer.
func (p *Publisher) Subscribe(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	sub, err := p.addClient()
	if err != nil {
		opsf("subscriber rejected: %v", err)
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer p.removeClient(sub.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case msg := <-sub.ch:
			if err := stream.Send(msg); err != nil {
				diagf("send to %s failed: %v", sub.id, err)
				return err
			}
		}
	}
}

// Stats returns the current counters.
func (p *Publisher) Stats() Stats {
	p.clientsMu.RLock()
	n := len(p.clients)
	p.clientsMu.RUnlock()
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Clients:   n,
	}
}

func (p *Publisher) addClient() (*subscriber, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, ErrTooManyClients
	}
	sub := &subscriber{
		id: "grpc-" + uuid.NewString(),
		ch: make(chan *structpb.Struct, p.config.ClientBuffer),
	}
	p.clients[sub.id] = sub
	diagf("client connected: %s (total: %d)", sub.id, len(p.clients))
	return sub, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	delete(p.clients, id)
	diagf("client disconnected: %s (total: %d)", id, len(p.clients))
}

func (p *Publisher) statsLoop() {
	defer p.wg.Done()
	ticker := p.clock.NewTicker(p.config.StatsInterval)
	defer ticker.Stop()

	var lastPublished uint64
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C():
			s := p.Stats()
			diagf("stats: published=%d (+%d) dropped=%d clients=%d",
				s.Published, s.Published-lastPublished, s.Dropped, s.Clients)
			lastPublished = s.Published
		}
	}
}
