package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name for the peer
// broker's bidirectional stream. There is no .proto file behind it (see
// codec.go) but the path still needs to look like one to satisfy gRPC's
// method routing.
const ServiceName = "opendut.peer.PeerBroker"

// PeerBrokerServer is implemented by the CARL-side stream handler
// (internal/broker).
type PeerBrokerServer interface {
	Connect(stream PeerBroker_ConnectServer) error
}

// PeerBroker_ConnectServer is the CARL-side view of one peer's stream.
type PeerBroker_ConnectServer interface {
	Send(*CoordinatorMessage) error
	Recv() (*PeerMessage, error)
	grpc.ServerStream
}

type peerBrokerConnectServer struct {
	grpc.ServerStream
}

func (x *peerBrokerConnectServer) Send(m *CoordinatorMessage) error { return x.ServerStream.SendMsg(m) }

func (x *peerBrokerConnectServer) Recv() (*PeerMessage, error) {
	m := new(PeerMessage)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _PeerBroker_Connect_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(PeerBrokerServer).Connect(&peerBrokerConnectServer{ServerStream: stream})
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a service with a single bidirectional-streaming Connect
// method. Registering it against a *grpc.Server gets the real gRPC
// transport (HTTP/2 framing, TLS, deadlines, metadata) without requiring
// protobuf codegen.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeerBrokerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _PeerBroker_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "opendut/peer_broker",
}

// RegisterPeerBrokerServer wires srv into s under ServiceDesc.
func RegisterPeerBrokerServer(s *grpc.Server, srv PeerBrokerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// PeerBrokerClient is the EDGAR-side entry point for opening the stream.
type PeerBrokerClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (PeerBroker_ConnectClient, error)
}

type peerBrokerClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerBrokerClient wraps an established *grpc.ClientConn.
func NewPeerBrokerClient(cc grpc.ClientConnInterface) PeerBrokerClient {
	return &peerBrokerClient{cc: cc}
}

func (c *peerBrokerClient) Connect(ctx context.Context, opts ...grpc.CallOption) (PeerBroker_ConnectClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Connect", opts...)
	if err != nil {
		return nil, err
	}
	return &peerBrokerConnectClient{ClientStream: stream}, nil
}

// PeerBroker_ConnectClient is the EDGAR-side view of its own stream.
type PeerBroker_ConnectClient interface {
	Send(*PeerMessage) error
	Recv() (*CoordinatorMessage, error)
	grpc.ClientStream
}

type peerBrokerConnectClient struct {
	grpc.ClientStream
}

func (x *peerBrokerConnectClient) Send(m *PeerMessage) error { return x.ClientStream.SendMsg(m) }

func (x *peerBrokerConnectClient) Recv() (*CoordinatorMessage, error) {
	m := new(CoordinatorMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
