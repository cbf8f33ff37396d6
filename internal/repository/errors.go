package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInsufficientStock is returned when a reservation would drive stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStatusConflict is returned when a conditional status update finds the
	// order no longer in the expected status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)
