package rpc

import (
	"context"
	"crypto/tls"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ClientConfig controls how EDGAR dials CARL's peer broker.
type ClientConfig struct {
	Address  string
	Insecure bool
	TLS      *tls.Config
}

// Dial opens a *grpc.ClientConn to CARL's peer broker service, defaulting
// to the JSON codec registered in codec.go for every call on the
// connection so callers never have to pass CallContentSubtype manually.
func Dial(ctx context.Context, cfg ClientConfig) (*grpc.ClientConn, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("rpc: dial address is required")
	}
	var transportCreds credentials.TransportCredentials
	if cfg.Insecure {
		transportCreds = insecure.NewCredentials()
	} else {
		tlsCfg := cfg.TLS
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		transportCreds = credentials.NewTLS(tlsCfg)
	}
	return grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(transportCreds),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
	)
}

// Client wraps a connected PeerBrokerClient stream for the EDGAR agent's
// upstream message loop.
type Client struct {
	stream PeerBroker_ConnectClient
}

// Connect opens the bidirectional stream on an already-dialed connection.
func Connect(ctx context.Context, conn *grpc.ClientConn) (*Client, error) {
	stream, err := NewPeerBrokerClient(conn).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Client{stream: stream}, nil
}

func (c *Client) Send(msg *PeerMessage) error       { return c.stream.Send(msg) }
func (c *Client) Recv() (*CoordinatorMessage, error) { return c.stream.Recv() }
func (c *Client) CloseSend() error                  { return c.stream.CloseSend() }
