package cart

import "fmt"

// StockExceededError rejects a mutation whose requested quantity is above
// the available stock. The operation is rejected outright, never clamped.
type StockExceededError struct {
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("Only %d available in stock", e.Available)
}

// ValidationError flags malformed input to a cart operation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
