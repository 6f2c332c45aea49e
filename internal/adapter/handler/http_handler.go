package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/core/service"
)

type HTTPHandler struct {
	trades      *service.TradeService
	leaderboard *service.LeaderboardService
	browse      *service.BrowseService
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewHTTPHandler(trades *service.TradeService, leaderboard *service.LeaderboardService, browse *service.BrowseService) *HTTPHandler {
	return &HTTPHandler{
		trades:      trades,
		leaderboard: leaderboard,
		browse:      browse,
	}
}

// Router builds the /api/v1 surface.
func (h *HTTPHandler) Router(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Route("/guilds/{guild_id}", func(r chi.Router) {
			r.Get("/items", h.ListItems)
			r.Get("/items/{name}", h.GetItem)
			r.Post("/items/{name}/buy", h.trade(domain.TransactionBuy))
			r.Post("/items/{name}/sell", h.trade(domain.TransactionSell))

			r.Get("/users/{user_id}", h.Stat)
			r.Post("/users/{user_id}", h.Provision)
			r.Get("/users/{user_id}/backpack", h.Backpack)

			r.Get("/leaderboard", h.Leaderboard)
		})

		r.Post("/sessions/{session_id}/signals", h.Signal)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.browse.Active(),
	})
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	views, err := h.trades.Items(r.Context(), chi.URLParam(r, "guild_id"), r.URL.Query().Get("user_id"))
	if err == nil && len(views) == 0 {
		err = service.ErrEmptyCatalog
	}
	if err != nil {
		writeError(w, err)
		return
	}

	resp := ItemListResponse{Items: make([]ItemResponse, 0, len(views))}
	for _, v := range views {
		resp.Items = append(resp.Items, itemResponse(v.Item, v.Owned))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.trades.Item(r.Context(), chi.URLParam(r, "guild_id"), r.URL.Query().Get("user_id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemResponse(view.Item, view.Owned))
}

func (h *HTTPHandler) trade(kind domain.TransactionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, TradeResponse{
				Success: false,
				Message: "invalid request body",
			})
			return
		}
		req.GuildID = chi.URLParam(r, "guild_id")
		req.ItemName = chi.URLParam(r, "name")

		if req.UserID == "" {
			writeJSON(w, http.StatusBadRequest, TradeResponse{
				Success: false,
				Message: "missing required fields",
			})
			return
		}

		status, resp := executeTrade(r.Context(), h.trades, kind, req)
		writeJSON(w, status, resp)
	}
}

// executeTrade runs one request and maps the outcome for both transports.
func executeTrade(ctx context.Context, trades *service.TradeService, kind domain.TransactionKind, req TradeRequest) (int, TradeResponse) {
	count, err := service.ParseQuantity(string(req.Count))
	var res *domain.TransactionResult
	if err == nil {
		res, err = trades.Execute(ctx, domain.TransactionRequest{
			Kind:     kind,
			GuildID:  req.GuildID,
			UserID:   req.UserID,
			ItemName: req.ItemName,
			Count:    count,
		})
	}

	var rej *domain.RejectionError
	switch {
	case err == nil:
		return http.StatusOK, tradeResponse(res)
	case errors.As(err, &rej):
		return httpStatus(err), rejectionResponse(rej)
	}

	log.Printf("[HTTP] %s %s/%s for %s failed: %v", kind, req.GuildID, req.ItemName, req.UserID, err)
	return http.StatusInternalServerError, TradeResponse{
		Success: false,
		Message: "internal error",
	}
}

func (h *HTTPHandler) Backpack(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.trades.Backpack(r.Context(), chi.URLParam(r, "guild_id"), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, backpackResponse(holdings))
}

func backpackResponse(holdings []domain.Holding) BackpackResponse {
	resp := BackpackResponse{Holdings: make([]HoldingResponse, 0, len(holdings))}
	for _, hl := range holdings {
		resp.Holdings = append(resp.Holdings, HoldingResponse{ItemName: hl.ItemName, Quantity: hl.Quantity, Max: hl.Max})
	}
	return resp
}

func (h *HTTPHandler) Stat(w http.ResponseWriter, r *http.Request) {
	acct, err := h.leaderboard.Stat(r.Context(), chi.URLParam(r, "guild_id"), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(acct))
}

func (h *HTTPHandler) Provision(w http.ResponseWriter, r *http.Request) {
	acct, err := h.leaderboard.Provision(r.Context(), chi.URLParam(r, "guild_id"), chi.URLParam(r, "user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse(acct))
}

func (h *HTTPHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.Top(r.Context(), chi.URLParam(r, "guild_id"))
	if err == nil && len(entries) == 0 {
		err = service.ErrEmptyLeaderboard
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries})
}

// Signal forwards a reaction from the chat gateway to a browsing session.
func (h *HTTPHandler) Signal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "invalid request body"})
		return
	}
	req.SessionID = chi.URLParam(r, "session_id")

	if err := dispatchSignal(r.Context(), h.browse, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SignalResponse{Accepted: true})
}

func dispatchSignal(ctx context.Context, browse *service.BrowseService, req SignalRequest) error {
	return browse.Dispatch(ctx, req.SessionID, domain.Signal{
		Kind:         domain.ParseSignalKind(req.Kind),
		SourceUserID: req.UserID,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)

	var rej *domain.RejectionError
	switch {
	case errors.As(err, &rej):
		writeJSON(w, status, rejectionResponse(rej))
		return
	case status == http.StatusInternalServerError:
		log.Printf("[HTTP] request failed: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal", Message: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: errorCode(err), Message: err.Error()})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyCatalog):
		return "empty_catalog"
	case errors.Is(err, service.ErrEmptyLeaderboard):
		return "empty_leaderboard"
	case errors.Is(err, service.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, service.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, domain.ErrAccountExists):
		return "account_exists"
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
