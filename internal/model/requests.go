package model

import "github.com/shopspring/decimal"

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreateOrderRequest struct {
	Type        OrderType       `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	BankDetails string          `json:"bankDetails"`
	SenderName  string          `json:"senderName"`
}

type TransitionRequest struct {
	Status OrderStatus `json:"status"`
	Note   string      `json:"note"`
}

type FinalAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateExchangeRequest struct {
	Username           string          `json:"username"`
	Password           string          `json:"password"`
	ExchangeName       string          `json:"exchangeName"`
	Contact            string          `json:"contact"`
	CommissionIncoming decimal.Decimal `json:"commissionIncoming"`
	CommissionOutgoing decimal.Decimal `json:"commissionOutgoing"`
	OpeningBalance     decimal.Decimal `json:"openingBalance"`
}

type PostMessageRequest struct {
	Body string `json:"body"`
}
