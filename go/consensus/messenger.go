package consensus

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Messenger dials quorum peers on behalf of distributed consensus
// implementations. LocalConsensus never dials.
type Messenger interface {
	Dial(ctx context.Context, address string) (*grpc.ClientConn, error)
}

// GRPCMessenger is the standard Messenger, dialing plaintext gRPC
// connections with the configured options.
type GRPCMessenger struct {
	Options []grpc.DialOption
}

func (m *GRPCMessenger) Dial(ctx context.Context, address string) (*grpc.ClientConn, error) {
	var opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, m.Options...)
	return grpc.DialContext(ctx, address, opts...)
}
