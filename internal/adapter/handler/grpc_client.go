package handler

import (
	"context"

	"google.golang.org/grpc"
)

// EconomyClient calls economy.Economy with the JSON codec.
type EconomyClient struct {
	cc grpc.ClientConnInterface
}

func NewEconomyClient(cc grpc.ClientConnInterface) *EconomyClient {
	return &EconomyClient{cc: cc}
}

func (c *EconomyClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+economyServiceName+"/"+method, in, out, opts...)
}

func (c *EconomyClient) Buy(ctx context.Context, in *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	out := new(TradeResponse)
	if err := c.invoke(ctx, "Buy", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EconomyClient) Sell(ctx context.Context, in *TradeRequest, opts ...grpc.CallOption) (*TradeResponse, error) {
	out := new(TradeResponse)
	if err := c.invoke(ctx, "Sell", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EconomyClient) Item(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*ItemResponse, error) {
	out := new(ItemResponse)
	if err := c.invoke(ctx, "Item", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EconomyClient) Backpack(ctx context.Context, in *BackpackRequest, opts ...grpc.CallOption) (*BackpackResponse, error) {
	out := new(BackpackResponse)
	if err := c.invoke(ctx, "Backpack", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EconomyClient) Leaderboard(ctx context.Context, in *LeaderboardRequest, opts ...grpc.CallOption) (*LeaderboardResponse, error) {
	out := new(LeaderboardResponse)
	if err := c.invoke(ctx, "Leaderboard", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EconomyClient) Navigate(ctx context.Context, in *SignalRequest, opts ...grpc.CallOption) (*SignalResponse, error) {
	out := new(SignalResponse)
	if err := c.invoke(ctx, "Navigate", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// BrowseStream receives the events of one browsing session.
type BrowseStream struct {
	grpc.ClientStream
}

func (s *BrowseStream) Recv() (*BrowseEvent, error) {
	ev := new(BrowseEvent)
	if err := s.ClientStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *EconomyClient) Browse(ctx context.Context, in *BrowseRequest, opts ...grpc.CallOption) (*BrowseStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &economyServiceDesc.Streams[0], "/"+economyServiceName+"/Browse", opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &BrowseStream{ClientStream: stream}, nil
}
