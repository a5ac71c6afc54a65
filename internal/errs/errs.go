package errs

import "errors"

var ErrUserNotFound = errors.New("user not found")
var ErrInvalidToken = errors.New("invalid token")
var ErrUsernameAlreadyExists = errors.New("username already exists")

var ErrOrderNotFound = errors.New("order not found")
var ErrInsufficientFunds = errors.New("not enough balance")

var ErrAllocation = errors.New("order id allocation failed")
var ErrSequenceExhausted = errors.New("monthly order sequence exhausted")

var ErrInvalidStatus = errors.New("unrecognized order status")
var ErrTerminalStatus = errors.New("order is in a terminal status")
