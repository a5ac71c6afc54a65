package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/middleware"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/riftvanta/tms062025/internal/orderid"
	"github.com/riftvanta/tms062025/internal/storage"
	"github.com/riftvanta/tms062025/internal/workflow"
)

// loadOrder resolves the {orderID} path parameter and checks that the
// caller may see the order. Exchanges only ever see their own orders;
// a foreign order answers 404 rather than 403 to avoid leaking ids.
func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request) (model.Order, model.User, bool) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return model.Order{}, model.User{}, false
	}

	id := chi.URLParam(r, "orderID")
	if !orderid.Valid(id) {
		http.Error(w, "invalid order id", http.StatusUnprocessableEntity)
		return model.Order{}, model.User{}, false
	}

	order, err := s.orders.GetOrderByOrderID(r.Context(), id)
	if err != nil {
		if errors.Is(err, errs.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return model.Order{}, model.User{}, false
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return model.Order{}, model.User{}, false
	}

	if user.Role != model.RoleAdmin && order.ExchangeID != user.ID {
		http.Error(w, "order not found", http.StatusNotFound)
		return model.Order{}, model.User{}, false
	}

	return order, user, true
}

func (s *Server) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if user.Role != model.RoleExchange {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req model.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Type != model.Incoming && req.Type != model.Outgoing {
		http.Error(w, "invalid order type", http.StatusUnprocessableEntity)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusUnprocessableEntity)
		return
	}

	// An order is never persisted without a successfully allocated id.
	id, err := s.allocator.Allocate(r.Context(), time.Now())
	if err != nil {
		s.deps.Logger.Errorf("allocate order id: %v", err)
		if errors.Is(err, errs.ErrSequenceExhausted) {
			http.Error(w, "monthly order capacity reached", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "failed to allocate order id", http.StatusInternalServerError)
		return
	}

	order := model.Order{
		OrderID:         id,
		ExchangeID:      user.ID,
		Type:            req.Type,
		Status:          model.Submitted,
		SubmittedAmount: req.Amount,
		BankDetails:     req.BankDetails,
		SenderName:      req.SenderName,
	}

	created, err := s.orders.CreateOrder(r.Context(), order)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) GetOrdersHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(middleware.UserContextKey).(model.User)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter := storage.OrderFilter{
		Status: model.OrderStatus(r.URL.Query().Get("status")),
		Type:   model.OrderType(r.URL.Query().Get("type")),
	}
	if user.Role != model.RoleAdmin {
		filter.ExchangeID = user.ID
	}
	if filter.Status != "" && !filter.Status.Known() {
		http.Error(w, "invalid status filter", http.StatusUnprocessableEntity)
		return
	}

	orders, err := s.orders.ListOrders(r.Context(), filter)
	if err != nil {
		http.Error(w, "failed to get orders", http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, order)
}

// TransitionHandler moves an order through the workflow. Completing an
// order settles commission against the exchange balance in the same
// database transaction.
func (s *Server) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}

	var req model.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	now := time.Now()
	update, err := workflow.Transition(order, req.Status, req.Note, now)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidStatus):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, errs.ErrTerminalStatus):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, "transition failed", http.StatusInternalServerError)
		}
		return
	}

	var settle *storage.Settlement
	if req.Status == model.Completed && order.CompletedAt == nil {
		exchange, err := s.users.GetUserByID(r.Context(), order.ExchangeID)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}

		rate := exchange.CommissionIncoming
		if order.Type == model.Outgoing {
			rate = exchange.CommissionOutgoing
		}

		commission, delta := workflow.Settlement(order, rate)
		settle = &storage.Settlement{
			ExchangeID: order.ExchangeID,
			Commission: commission,
			Delta:      delta,
		}
	}

	if err := s.orders.ApplyTransition(r.Context(), order.OrderID, update, settle); err != nil {
		switch {
		case errors.Is(err, errs.ErrInsufficientFunds):
			http.Error(w, "insufficient exchange balance", http.StatusPaymentRequired)
		case errors.Is(err, errs.ErrOrderNotFound):
			http.Error(w, "order not found", http.StatusNotFound)
		default:
			http.Error(w, "db error", http.StatusInternalServerError)
		}
		return
	}

	updated := workflow.Apply(order, update)
	if settle != nil {
		updated.Commission = &settle.Commission
	}

	s.deps.Hub.Broadcast(order.OrderID, statusEvent(updated))

	s.writeJSON(w, http.StatusOK, updated)
}

// CancelOrderHandler lets an exchange withdraw its own order while it
// is still waiting on the admin.
func (s *Server) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, user, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if user.Role != model.RoleExchange {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if order.Status != model.Submitted && order.Status != model.PendingReview {
		http.Error(w, "order can no longer be cancelled", http.StatusConflict)
		return
	}

	update, err := workflow.Transition(order, model.Cancelled, "", time.Now())
	if err != nil {
		http.Error(w, "transition failed", http.StatusInternalServerError)
		return
	}

	if err := s.orders.ApplyTransition(r.Context(), order.OrderID, update, nil); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	updated := workflow.Apply(order, update)
	s.deps.Hub.Broadcast(order.OrderID, statusEvent(updated))

	s.writeJSON(w, http.StatusOK, updated)
}

// SetFinalAmountHandler records the reconciled amount of an incoming
// order before it is completed.
func (s *Server) SetFinalAmountHandler(w http.ResponseWriter, r *http.Request) {
	order, _, ok := s.loadOrder(w, r)
	if !ok {
		return
	}
	if order.Type != model.Incoming {
		http.Error(w, "final amount applies to incoming orders only", http.StatusUnprocessableEntity)
		return
	}
	if order.Status.Terminal() {
		http.Error(w, "order is in a terminal status", http.StatusConflict)
		return
	}

	var req model.FinalAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusUnprocessableEntity)
		return
	}

	if err := s.orders.SetFinalAmount(r.Context(), order.OrderID, req.Amount, time.Now()); err != nil {
		if errors.Is(err, errs.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	order.FinalAmount = &req.Amount
	s.writeJSON(w, http.StatusOK, order)
}

type orderEvent struct {
	Event string      `json:"event"`
	Order model.Order `json:"order"`
}

func statusEvent(order model.Order) orderEvent {
	return orderEvent{Event: "status_changed", Order: order}
}
