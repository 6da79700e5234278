package feed

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/timeutil"
	"github.com/banshee-data/highway.planner/internal/vehicle"
)

func stepDecision(t *testing.T, cycles int) []planner.Decision {
	t.Helper()
	p, err := planner.New(planner.DefaultConfig())
	require.NoError(t, err)
	p.SetClock(timeutil.NewMockClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)))
	p.SetRunID("feed-test")

	out := make([]planner.Decision, cycles)
	for i := range out {
		out[i] = p.Step(vehicle.PredictionMap{})
	}
	return out
}

func startFeed(t *testing.T, cfg Config) (*Publisher, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	pub := NewPublisher(cfg)
	require.NoError(t, pub.Serve(lis))
	t.Cleanup(pub.Stop)

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return pub, c
}

func waitForClients(t *testing.T, pub *Publisher, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return pub.Stats().Clients == n }, 5*time.Second, 10*time.Millisecond)
}

func TestDecisionStructRoundTrip(t *testing.T) {
	d := stepDecision(t, 1)[0]
	require.NotEmpty(t, d.Candidates)

	s, err := DecisionToStruct(d)
	require.NoError(t, err)
	assert.Equal(t, "feed-test", s.Fields["run_id"].GetStringValue())

	got, err := StructToDecision(s)
	require.NoError(t, err)
	if diff := cmp.Diff(d, got, cmpopts.IgnoreFields(planner.Decision{}, "Trajectory")); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeReceivesDecisions(t *testing.T) {
	pub, c := startFeed(t, Config{StatsInterval: 0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := c.Subscribe(ctx)
	require.NoError(t, err)
	waitForClients(t, pub, 1)

	want := stepDecision(t, 3)
	for _, d := range want {
		pub.HandleDecision(ctx, d)
	}
	for i := range want {
		got, err := sub.Recv()
		require.NoError(t, err)
		assert.Equal(t, want[i].Cycle, got.Cycle)
		assert.Equal(t, want[i].State, got.State)
		assert.Len(t, got.Candidates, len(want[i].Candidates))
	}
	assert.Equal(t, Stats{Published: 3, Clients: 1}, pub.Stats())

	cancel()
	waitForClients(t, pub, 0)
}

func TestSubscribeRejectsExtraClients(t *testing.T) {
	pub, c := startFeed(t, Config{MaxClients: 1})
	ctx := context.Background()

	_, err := c.Subscribe(ctx)
	require.NoError(t, err)
	waitForClients(t, pub, 1)

	second, err := c.Subscribe(ctx)
	require.NoError(t, err)
	_, err = second.Recv()
	assert.Equal(t, codes.ResourceExhausted, status.Code(err), "err = %v", err)
}

func TestStopEndsSubscriptions(t *testing.T) {
	pub, c := startFeed(t, DefaultConfig())
	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	waitForClients(t, pub, 1)

	pub.Stop()
	_, err = sub.Recv()
	assert.ErrorIs(t, err, io.EOF)

	// Second Stop is a no-op.
	pub.Stop()
}

func TestServeTwice(t *testing.T) {
	pub, _ := startFeed(t, DefaultConfig())
	assert.Error(t, pub.Serve(bufconn.Listen(1024)))
}

func TestHandleDecisionDropsForSlowClient(t *testing.T) {
	pub := NewPublisher(Config{ClientBuffer: 1})
	ctx := context.Background()

	pub.HandleDecision(ctx, planner.Decision{Cycle: 1})
	assert.Equal(t, Stats{}, pub.Stats(), "nothing is published without subscribers")

	sub, err := pub.addClient()
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		pub.HandleDecision(ctx, planner.Decision{Cycle: i})
	}
	assert.Equal(t, Stats{Published: 3, Dropped: 2, Clients: 1}, pub.Stats())
	require.Len(t, sub.ch, 1)
	first := <-sub.ch
	assert.Equal(t, float64(1), first.Fields["cycle"].GetNumberValue())

	pub.removeClient(sub.id)
	assert.Equal(t, 0, pub.Stats().Clients)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStatsLoopLogs(t *testing.T) {
	var diag syncBuffer
	SetLogWriters(nil, &diag, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	pub := NewPublisher(Config{StatsInterval: time.Minute})
	pub.SetClock(clock)
	require.NoError(t, pub.Serve(bufconn.Listen(1024)))
	defer pub.Stop()

	assert.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		return strings.Contains(diag.String(), "stats: published=0")
	}, 5*time.Second, 10*time.Millisecond)
}
