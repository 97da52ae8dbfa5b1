package features

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when no price points are supplied.
	ErrEmptyInput = errors.New("empty input")
	// ErrNonMonotonicInput is returned when timestamps are not strictly increasing.
	ErrNonMonotonicInput = errors.New("timestamps not strictly increasing")
	// ErrInvalidPrice is returned for non-positive or non-finite prices.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInsufficientHistory is returned when an incremental context window is
	// shorter than the required minimum.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("invalid feature config")
)

// InsufficientHistoryError reports how much context was supplied and needed.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d points, need %d", e.Have, e.Need)
}

func (e *InsufficientHistoryError) Is(target error) bool {
	return target == ErrInsufficientHistory
}
