package feed

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/highway.planner/internal/planner"
)

// Client subscribes to a DecisionFeed.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to the feed at target without transport security. Extra
// options are appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed client: %w", err)
	}
	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection. Close does not close cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Subscription is an open Subscribe stream.
type Subscription struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Subscribe opens a stream of decisions. Cancel ctx to end it.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	stream, err := newSubscribeStream(ctx, c.cc)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return &Subscription{stream: stream}, nil
}

// Recv blocks for the next decision. It returns io.EOF when the server ends
// the stream.
func (s *Subscription) Recv() (planner.Decision, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return planner.Decision{}, err
	}
	return StructToDecision(msg)
}
