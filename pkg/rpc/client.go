package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a grpc.ClientConn. Its calls use the gob
// codec registered in codec.go only when cc was dialed with
// DefaultCallOption (or the option is passed per call); it adds no call
// option of its own.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an already-dialed connection. Callers should dial with
// grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)) so every
// call on cc picks up gobCodec without repeating the option per call.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Transact(ctx context.Context, req *TxRequest, opts ...grpc.CallOption) (*TxReply, error) {
	reply := new(TxReply)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Transact", req, reply, opts...); err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Client) Query(ctx context.Context, req *QueryRequest, opts ...grpc.CallOption) (*QueryReply, error) {
	reply := new(QueryReply)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Query", req, reply, opts...); err != nil {
		return nil, err
	}
	return reply, nil
}

// DefaultCallOption selects the gob codec for every call made on a
// connection dialed with it, e.g.:
//
//	grpc.Dial(addr, grpc.WithDefaultCallOptions(rpc.DefaultCallOption()))
func DefaultCallOption() grpc.CallOption {
	return grpc.CallContentSubtype(codecName)
}
