package models

import "errors"

var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidEventID    = errors.New("invalid event ID")
	ErrInvalidCalculator = errors.New("invalid calculator name")
)
