package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	Submitted     OrderStatus = "submitted"
	PendingReview OrderStatus = "pending_review"
	Approved      OrderStatus = "approved"
	Rejected      OrderStatus = "rejected"
	Processing    OrderStatus = "processing"
	Completed     OrderStatus = "completed"
	Cancelled     OrderStatus = "cancelled"
)

// Known reports whether s is one of the seven workflow statuses.
func (s OrderStatus) Known() bool {
	switch s {
	case Submitted, PendingReview, Approved, Rejected, Processing, Completed, Cancelled:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	return s == Completed || s == Rejected || s == Cancelled
}

type OrderType string

const (
	Incoming OrderType = "incoming"
	Outgoing OrderType = "outgoing"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleExchange Role = "exchange"
)

type Order struct {
	ID              int              `json:"-"`
	OrderID         string           `json:"orderId"`
	ExchangeID      int              `json:"exchangeId"`
	Type            OrderType        `json:"type"`
	Status          OrderStatus      `json:"status"`
	SubmittedAmount decimal.Decimal  `json:"submittedAmount"`
	FinalAmount     *decimal.Decimal `json:"finalAmount,omitempty"`
	Commission      *decimal.Decimal `json:"commission,omitempty"`
	BankDetails     string           `json:"bankDetails,omitempty"`
	SenderName      string           `json:"senderName,omitempty"`
	AdminNotes      string           `json:"adminNotes,omitempty"`
	RejectionReason string           `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time        `json:"created"`
	UpdatedAt       time.Time        `json:"updated"`
	ApprovedAt      *time.Time       `json:"approved,omitempty"`
	RejectedAt      *time.Time       `json:"rejected,omitempty"`
	CompletedAt     *time.Time       `json:"completed,omitempty"`
}

// EffectiveAmount is the figure settlement works from: the reconciled
// final amount for incoming orders when present, otherwise the amount
// the exchange submitted.
func (o Order) EffectiveAmount() decimal.Decimal {
	if o.Type == Incoming && o.FinalAmount != nil {
		return *o.FinalAmount
	}
	return o.SubmittedAmount
}

type User struct {
	ID                 int             `json:"id"`
	Username           string          `json:"username"`
	Role               Role            `json:"role"`
	ExchangeName       string          `json:"exchangeName,omitempty"`
	Contact            string          `json:"contact,omitempty"`
	CommissionIncoming decimal.Decimal `json:"commissionIncoming"`
	CommissionOutgoing decimal.Decimal `json:"commissionOutgoing"`
}

type Balance struct {
	Current decimal.Decimal `json:"current"`
}

type Message struct {
	ID        int       `json:"id"`
	OrderID   int       `json:"-"`
	SenderID  int       `json:"senderId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	ID           string    `json:"id"`
	OrderID      int       `json:"-"`
	UploaderID   int       `json:"uploaderId"`
	Filename     string    `json:"-"`
	OriginalName string    `json:"originalName"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}
