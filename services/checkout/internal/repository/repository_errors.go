package repository

import "errors"

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTransactionNotFound = errors.New("webpay transaction not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrAlreadyLinked       = errors.New("purchase or transaction already linked")
	ErrDuplicateBuyOrder   = errors.New("buy order already registered")
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)
