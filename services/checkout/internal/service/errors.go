package service

import "errors"

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrGatewayInit         = errors.New("could not start the payment, please try again")
	ErrGatewayConfirm      = errors.New("could not confirm the payment, please try again")
	ErrTransactionNotFound = errors.New("original transaction not found")
	ErrPurchaseFailed      = errors.New("payment authorized but the purchase could not be created")
	ErrAmountMismatch      = errors.New("cart total does not match the charged amount")
)
