// Package feed streams committed planner decisions to gRPC subscribers.
//
// The service has a single server-streaming method,
// highway.planner.DecisionFeed/Subscribe. Requests are google.protobuf.Empty
// and each response is a google.protobuf.Struct holding one decision in its
// JSON form, so consumers need no generated code.
package feed

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "highway.planner.DecisionFeed"

	subscribeMethod = "/" + ServiceName + "/Subscribe"
)

// DecisionFeedServer is the server API for the DecisionFeed service.
type DecisionFeedServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the DecisionFeed service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DecisionFeedServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "highway/planner/feed.proto",
}

// RegisterDecisionFeedServer registers srv with s.
func RegisterDecisionFeedServer(s grpc.ServiceRegistrar, srv DecisionFeedServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(DecisionFeedServer).Subscribe(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// newSubscribeStream opens the Subscribe stream on cc.
func newSubscribeStream(ctx context.Context, cc grpc.ClientConnInterface, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], subscribeMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
