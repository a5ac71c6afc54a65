package workflow

import (
	"testing"
	"time"

	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newOrder(status model.OrderStatus) model.Order {
	created := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	return model.Order{
		OrderID:         "T25030001",
		Type:            model.Incoming,
		Status:          status,
		SubmittedAmount: decimal.NewFromInt(100),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestTransitionStampsUpdated(t *testing.T) {
	order := newOrder(model.Submitted)
	now := order.UpdatedAt.Add(time.Hour)

	u, err := Transition(order, model.PendingReview, "", now)
	require.NoError(t, err)
	require.Equal(t, model.PendingReview, u.Status)
	require.Equal(t, now, u.UpdatedAt)
	require.Nil(t, u.ApprovedAt)
	require.Nil(t, u.AdminNotes)

	updated := Apply(order, u)
	require.True(t, updated.UpdatedAt.After(order.UpdatedAt))
	require.Equal(t, order.CreatedAt, updated.CreatedAt)
}

func TestTransitionToCompletedKeepsEarlierTimestamps(t *testing.T) {
	order := newOrder(model.Approved)
	approved := order.CreatedAt.Add(time.Hour)
	order.ApprovedAt = &approved

	now := approved.Add(time.Hour)
	u, err := Transition(order, model.Completed, "", now)
	require.NoError(t, err)
	require.NotNil(t, u.CompletedAt)
	require.Equal(t, now, *u.CompletedAt)

	updated := Apply(order, u)
	require.Equal(t, order.CreatedAt, updated.CreatedAt)
	require.Equal(t, approved, *updated.ApprovedAt)
	require.Equal(t, now, *updated.CompletedAt)
}

func TestTransitionRejectedNoteGoesToRejectionReason(t *testing.T) {
	order := newOrder(model.PendingReview)

	u, err := Transition(order, model.Rejected, "screenshot mismatch", time.Now())
	require.NoError(t, err)
	require.NotNil(t, u.RejectionReason)
	require.Equal(t, "screenshot mismatch", *u.RejectionReason)
	require.Nil(t, u.AdminNotes)
	require.NotNil(t, u.RejectedAt)
}

func TestTransitionOtherNoteGoesToAdminNotes(t *testing.T) {
	order := newOrder(model.Submitted)

	u, err := Transition(order, model.Processing, "verifying with bank", time.Now())
	require.NoError(t, err)
	require.NotNil(t, u.AdminNotes)
	require.Equal(t, "verifying with bank", *u.AdminNotes)
	require.Nil(t, u.RejectionReason)
}

func TestTransitionApprovedStampsOnce(t *testing.T) {
	order := newOrder(model.PendingReview)

	first := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	u, err := Transition(order, model.Approved, "", first)
	require.NoError(t, err)
	require.NotNil(t, u.ApprovedAt)

	order = Apply(order, u)

	// Re-approving later must not move the approval timestamp.
	u, err = Transition(order, model.Approved, "", first.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, u.ApprovedAt)

	order = Apply(order, u)
	require.Equal(t, first, *order.ApprovedAt)
}

func TestTransitionSkippingStatesIsPermitted(t *testing.T) {
	order := newOrder(model.Submitted)

	u, err := Transition(order, model.Completed, "", time.Now())
	require.NoError(t, err)
	require.Equal(t, model.Completed, u.Status)
	require.NotNil(t, u.CompletedAt)
}

func TestTransitionOutOfTerminalStatusRejected(t *testing.T) {
	for _, status := range []model.OrderStatus{model.Completed, model.Rejected, model.Cancelled} {
		order := newOrder(status)
		_, err := Transition(order, model.Processing, "", time.Now())
		require.ErrorIs(t, err, errs.ErrTerminalStatus, "from %s", status)
	}
}

func TestTransitionToUnknownOrInitialStatusRejected(t *testing.T) {
	order := newOrder(model.PendingReview)

	_, err := Transition(order, model.OrderStatus("shipped"), "", time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidStatus)

	_, err = Transition(order, model.Submitted, "", time.Now())
	require.ErrorIs(t, err, errs.ErrInvalidStatus)
}

func TestSettlementIncoming(t *testing.T) {
	order := newOrder(model.Processing)
	final := decimal.NewFromFloat(250.50)
	order.FinalAmount = &final

	commission, delta := Settlement(order, decimal.NewFromInt(2))
	require.True(t, commission.Equal(decimal.NewFromFloat(5.01)), "commission %s", commission)
	require.True(t, delta.Equal(decimal.NewFromFloat(245.49)), "delta %s", delta)
}

func TestSettlementOutgoingDebits(t *testing.T) {
	order := newOrder(model.Processing)
	order.Type = model.Outgoing
	order.SubmittedAmount = decimal.NewFromInt(200)

	commission, delta := Settlement(order, decimal.NewFromFloat(1.5))
	require.True(t, commission.Equal(decimal.NewFromInt(3)), "commission %s", commission)
	require.True(t, delta.Equal(decimal.NewFromInt(-203)), "delta %s", delta)
}
