package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/riftvanta/tms062025/internal/storage"
	"github.com/riftvanta/tms062025/internal/workflow"
	"github.com/shopspring/decimal"
)

var admin = model.User{ID: 1, Username: "admin", Role: model.RoleAdmin}

func pendingOrder(orderID string, exchangeID int) model.Order {
	created := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	return model.Order{
		ID:              10,
		OrderID:         orderID,
		ExchangeID:      exchangeID,
		Type:            model.Incoming,
		Status:          model.PendingReview,
		SubmittedAmount: decimal.NewFromInt(100),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestTransitionHandlerApprove(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	m.orders.EXPECT().
		ApplyTransition(gomock.Any(), "T25060001", gomock.Any(), nil).
		DoAndReturn(func(_ context.Context, _ string, u workflow.Update, _ *storage.Settlement) error {
			if u.Status != model.Approved {
				t.Errorf("expected approved, got %s", u.Status)
			}
			if u.ApprovedAt == nil {
				t.Error("approved_at not stamped")
			}
			return nil
		})

	payload := `{"status":"approved"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/status", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.TransitionHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestTransitionHandlerCompleteSettlesCommission(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	final := decimal.NewFromInt(200)
	order.FinalAmount = &final

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	m.users.EXPECT().
		GetUserByID(gomock.Any(), 2).
		Return(model.User{ID: 2, Role: model.RoleExchange, CommissionIncoming: decimal.NewFromInt(2)}, nil)

	m.orders.EXPECT().
		ApplyTransition(gomock.Any(), "T25060001", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, u workflow.Update, settle *storage.Settlement) error {
			if settle == nil {
				t.Fatal("completion must settle")
			}
			if !settle.Commission.Equal(decimal.NewFromInt(4)) {
				t.Errorf("commission = %s, want 4", settle.Commission)
			}
			if !settle.Delta.Equal(decimal.NewFromInt(196)) {
				t.Errorf("delta = %s, want 196", settle.Delta)
			}
			if u.CompletedAt == nil {
				t.Error("completed_at not stamped")
			}
			return nil
		})

	payload := `{"status":"completed"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/status", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.TransitionHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"commission":"4"`) {
		t.Errorf("response missing commission: %s", w.Body.String())
	}
}

func TestTransitionHandlerRejectWithNote(t *testing.T) {
	srv, m := setup(t)

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(pendingOrder("T25060001", 2), nil)

	m.orders.EXPECT().
		ApplyTransition(gomock.Any(), "T25060001", gomock.Any(), nil).
		DoAndReturn(func(_ context.Context, _ string, u workflow.Update, _ *storage.Settlement) error {
			if u.RejectionReason == nil || *u.RejectionReason != "amount mismatch" {
				t.Errorf("note must land in rejection reason, got %+v", u.RejectionReason)
			}
			if u.AdminNotes != nil {
				t.Error("note must not land in admin notes on rejection")
			}
			return nil
		})

	payload := `{"status":"rejected","note":"amount mismatch"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/status", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.TransitionHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestTransitionHandlerTerminalOrderConflicts(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	order.Status = model.Completed

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	payload := `{"status":"processing"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/status", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.TransitionHandler(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestTransitionHandlerInsufficientFunds(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	order.Type = model.Outgoing

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	m.users.EXPECT().
		GetUserByID(gomock.Any(), 2).
		Return(model.User{ID: 2, Role: model.RoleExchange, CommissionOutgoing: decimal.NewFromInt(1)}, nil)

	m.orders.EXPECT().
		ApplyTransition(gomock.Any(), "T25060001", gomock.Any(), gomock.Any()).
		Return(errs.ErrInsufficientFunds)

	payload := `{"status":"completed"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/status", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.TransitionHandler(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", w.Code)
	}
}

func TestCancelOrderHandler(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	order.Status = model.Submitted

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	m.orders.EXPECT().
		ApplyTransition(gomock.Any(), "T25060001", gomock.Any(), nil).
		DoAndReturn(func(_ context.Context, _ string, u workflow.Update, _ *storage.Settlement) error {
			if u.Status != model.Cancelled {
				t.Errorf("expected cancelled, got %s", u.Status)
			}
			return nil
		})

	req := httptest.NewRequest("POST", "/api/orders/T25060001/cancel", nil)
	req = asUser(req, model.User{ID: 2, Role: model.RoleExchange})
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.CancelOrderHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestCancelOrderHandlerTooLate(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	order.Status = model.Processing

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	req := httptest.NewRequest("POST", "/api/orders/T25060001/cancel", nil)
	req = asUser(req, model.User{ID: 2, Role: model.RoleExchange})
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.CancelOrderHandler(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestSetFinalAmountHandler(t *testing.T) {
	srv, m := setup(t)

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(pendingOrder("T25060001", 2), nil)

	m.orders.EXPECT().
		SetFinalAmount(gomock.Any(), "T25060001", gomock.Any(), gomock.Any()).
		Return(nil)

	payload := `{"amount":"210.50"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/final-amount", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.SetFinalAmountHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestSetFinalAmountHandlerOutgoingRejected(t *testing.T) {
	srv, m := setup(t)

	order := pendingOrder("T25060001", 2)
	order.Type = model.Outgoing

	m.orders.EXPECT().
		GetOrderByOrderID(gomock.Any(), "T25060001").
		Return(order, nil)

	payload := `{"amount":"210.50"}`
	req := httptest.NewRequest("POST", "/api/admin/orders/T25060001/final-amount", strings.NewReader(payload))
	req = asUser(req, admin)
	req = withOrderParam(req, "T25060001")
	w := httptest.NewRecorder()

	srv.SetFinalAmountHandler(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}
