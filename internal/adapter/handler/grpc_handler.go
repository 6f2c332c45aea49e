package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/core/service"
)

const economyServiceName = "economy.Economy"

// EconomyServer is the server side of the economy.Economy service.
type EconomyServer interface {
	Buy(context.Context, *TradeRequest) (*TradeResponse, error)
	Sell(context.Context, *TradeRequest) (*TradeResponse, error)
	Item(context.Context, *ItemRequest) (*ItemResponse, error)
	Backpack(context.Context, *BackpackRequest) (*BackpackResponse, error)
	Leaderboard(context.Context, *LeaderboardRequest) (*LeaderboardResponse, error)
	Navigate(context.Context, *SignalRequest) (*SignalResponse, error)
	Browse(*BrowseRequest, grpc.ServerStream) error
}

func unaryHandler[Req, Resp any](method string, call func(EconomyServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EconomyServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + economyServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EconomyServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func browseHandler(srv any, stream grpc.ServerStream) error {
	in := new(BrowseRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EconomyServer).Browse(in, stream)
}

var economyServiceDesc = grpc.ServiceDesc{
	ServiceName: economyServiceName,
	HandlerType: (*EconomyServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Buy", Handler: unaryHandler("Buy", EconomyServer.Buy)},
		{MethodName: "Sell", Handler: unaryHandler("Sell", EconomyServer.Sell)},
		{MethodName: "Item", Handler: unaryHandler("Item", EconomyServer.Item)},
		{MethodName: "Backpack", Handler: unaryHandler("Backpack", EconomyServer.Backpack)},
		{MethodName: "Leaderboard", Handler: unaryHandler("Leaderboard", EconomyServer.Leaderboard)},
		{MethodName: "Navigate", Handler: unaryHandler("Navigate", EconomyServer.Navigate)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Browse", Handler: browseHandler, ServerStreams: true},
	},
	Metadata: "economy.json",
}

func RegisterEconomyServer(s grpc.ServiceRegistrar, srv EconomyServer) {
	s.RegisterService(&economyServiceDesc, srv)
}

type GRPCHandler struct {
	trades      *service.TradeService
	leaderboard *service.LeaderboardService
	browse      *service.BrowseService
}

func NewGRPCHandler(trades *service.TradeService, leaderboard *service.LeaderboardService, browse *service.BrowseService) *GRPCHandler {
	return &GRPCHandler{
		trades:      trades,
		leaderboard: leaderboard,
		browse:      browse,
	}
}

// Rejections travel in the response body. Only a partial apply and store
// failures become gRPC errors.
func (h *GRPCHandler) trade(ctx context.Context, kind domain.TransactionKind, req *TradeRequest) (*TradeResponse, error) {
	code, resp := executeTrade(ctx, h.trades, kind, *req)
	switch code {
	case http.StatusServiceUnavailable:
		return nil, status.Error(codes.Unavailable, resp.Message)
	case http.StatusInternalServerError:
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &resp, nil
}

func (h *GRPCHandler) Buy(ctx context.Context, req *TradeRequest) (*TradeResponse, error) {
	return h.trade(ctx, domain.TransactionBuy, req)
}

func (h *GRPCHandler) Sell(ctx context.Context, req *TradeRequest) (*TradeResponse, error) {
	return h.trade(ctx, domain.TransactionSell, req)
}

func (h *GRPCHandler) Item(ctx context.Context, req *ItemRequest) (*ItemResponse, error) {
	view, err := h.trades.Item(ctx, req.GuildID, req.UserID, req.ItemName)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := itemResponse(view.Item, view.Owned)
	return &resp, nil
}

func (h *GRPCHandler) Backpack(ctx context.Context, req *BackpackRequest) (*BackpackResponse, error) {
	holdings, err := h.trades.Backpack(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := backpackResponse(holdings)
	return &resp, nil
}

func (h *GRPCHandler) Leaderboard(ctx context.Context, req *LeaderboardRequest) (*LeaderboardResponse, error) {
	entries, err := h.leaderboard.Top(ctx, req.GuildID)
	if err == nil && len(entries) == 0 {
		err = service.ErrEmptyLeaderboard
	}
	if err != nil {
		return nil, grpcError(err)
	}
	return &LeaderboardResponse{Entries: entries}, nil
}

func (h *GRPCHandler) Navigate(ctx context.Context, req *SignalRequest) (*SignalResponse, error) {
	if err := dispatchSignal(ctx, h.browse, *req); err != nil {
		return nil, grpcError(err)
	}
	return &SignalResponse{Accepted: true}, nil
}

// Browse opens a session and streams its pages until the session ends or the
// client goes away. A departed client does not end the session; it still
// expires on its idle timeout.
func (h *GRPCHandler) Browse(req *BrowseRequest, stream grpc.ServerStream) error {
	r := &streamRenderer{stream: stream}
	defer r.detach()

	s, err := h.browse.Open(stream.Context(), req.GuildID, req.UserID, r)
	if err != nil {
		return grpcError(err)
	}

	select {
	case <-s.Done():
		return nil
	case <-stream.Context().Done():
		return stream.Context().Err()
	}
}

// streamRenderer draws a session onto a server stream. Sends after the RPC
// has returned are dropped.
type streamRenderer struct {
	mu       sync.Mutex
	stream   grpc.ServerStream
	detached bool
}

var errStreamDetached = errors.New("browse stream closed")

func (r *streamRenderer) send(ev *BrowseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return errStreamDetached
	}
	return r.stream.SendMsg(ev)
}

func (r *streamRenderer) detach() {
	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}

func (r *streamRenderer) Render(_ context.Context, page domain.Page) error {
	item := itemResponse(page.Item, page.Owned)
	return r.send(&BrowseEvent{
		Type:      eventPage,
		SessionID: page.SessionID,
		Item:      &item,
		Footer:    page.Footer(),
		Position:  page.Position,
		Total:     page.Total,
	})
}

func (r *streamRenderer) Acknowledge(_ context.Context, sig domain.Signal) error {
	return r.send(&BrowseEvent{Type: eventAck, Signal: string(sig.Kind)})
}

func (r *streamRenderer) Teardown(_ context.Context) error {
	return r.send(&BrowseEvent{Type: eventClosed})
}

func grpcError(err error) error {
	switch httpStatus(err) {
	case http.StatusBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	case http.StatusNotFound:
		return status.Error(codes.NotFound, err.Error())
	case http.StatusGone:
		return status.Error(codes.FailedPrecondition, err.Error())
	case http.StatusConflict:
		return status.Error(codes.AlreadyExists, err.Error())
	case http.StatusServiceUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	}
	log.Printf("[gRPC] request failed: %v", err)
	return status.Error(codes.Internal, "internal error")
}
