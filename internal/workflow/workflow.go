package workflow

import (
	"fmt"
	"time"

	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/shopspring/decimal"
)

// Update is the partial patch a transition produces. Nil pointer fields
// are left untouched when the patch is persisted.
type Update struct {
	Status          model.OrderStatus
	UpdatedAt       time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	CompletedAt     *time.Time
	AdminNotes      *string
	RejectionReason *string
}

// Transition validates a status change and builds the patch for it.
// Terminal orders accept no further transitions, and submitted is only
// ever an initial status. Beyond that any recognized status may follow
// any non-terminal one. The approved/rejected/completed timestamps are
// stamped the first time only, so repeating a transition never moves
// them.
func Transition(order model.Order, newStatus model.OrderStatus, note string, now time.Time) (Update, error) {
	if !newStatus.Known() || newStatus == model.Submitted {
		return Update{}, fmt.Errorf("%w: %q", errs.ErrInvalidStatus, newStatus)
	}
	if order.Status.Terminal() {
		return Update{}, fmt.Errorf("%w: %s", errs.ErrTerminalStatus, order.Status)
	}

	u := Update{Status: newStatus, UpdatedAt: now}

	switch newStatus {
	case model.Approved:
		if order.ApprovedAt == nil {
			u.ApprovedAt = &now
		}
		if note != "" {
			u.AdminNotes = &note
		}
	case model.Rejected:
		if order.RejectedAt == nil {
			u.RejectedAt = &now
		}
		if note != "" {
			u.RejectionReason = &note
		}
	case model.Completed:
		if order.CompletedAt == nil {
			u.CompletedAt = &now
		}
		if note != "" {
			u.AdminNotes = &note
		}
	default:
		if note != "" {
			u.AdminNotes = &note
		}
	}

	return u, nil
}

// Apply merges a patch into an in-memory order, mirroring the partial
// update the storage layer performs.
func Apply(order model.Order, u Update) model.Order {
	order.Status = u.Status
	order.UpdatedAt = u.UpdatedAt
	if u.ApprovedAt != nil {
		order.ApprovedAt = u.ApprovedAt
	}
	if u.RejectedAt != nil {
		order.RejectedAt = u.RejectedAt
	}
	if u.CompletedAt != nil {
		order.CompletedAt = u.CompletedAt
	}
	if u.AdminNotes != nil {
		order.AdminNotes = *u.AdminNotes
	}
	if u.RejectionReason != nil {
		order.RejectionReason = *u.RejectionReason
	}
	return order
}

// Settlement computes the commission owed on a completed order and the
// signed change to apply to the exchange balance. Incoming orders credit
// the effective amount net of commission, outgoing orders debit the
// effective amount plus commission. Rates are percentages.
func Settlement(order model.Order, rate decimal.Decimal) (commission, delta decimal.Decimal) {
	effective := order.EffectiveAmount()
	commission = effective.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)

	if order.Type == model.Incoming {
		return commission, effective.Sub(commission)
	}
	return commission, effective.Add(commission).Neg()
}
