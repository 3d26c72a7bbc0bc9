package orderbook

import "math/big"

// Status is the order lifecycle state. Transitions are one-way: an open
// order either fills or cancels, and terminal orders never mutate again.
type Status string

const (
	StatusOpen      Status = "open"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
)

// Order is a resting limit order. AmountIn is escrowed while the order is
// open; IDs are allocated from a strictly increasing counter and never
// reused.
type Order struct {
	ID           uint64   `json:"id"`
	Owner        string   `json:"owner"`
	TokenIn      string   `json:"tokenIn"`
	TokenOut     string   `json:"tokenOut"`
	AmountIn     *big.Int `json:"amountIn"`
	MinAmountOut *big.Int `json:"minAmountOut"`
	Status       Status   `json:"status"`
	CreatedAt    int64    `json:"createdAt"`
	// AmountOut records the net proceeds credited to the owner on fill.
	AmountOut *big.Int `json:"amountOut,omitempty"`
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	if o.AmountIn != nil {
		clone.AmountIn = new(big.Int).Set(o.AmountIn)
	}
	if o.MinAmountOut != nil {
		clone.MinAmountOut = new(big.Int).Set(o.MinAmountOut)
	}
	if o.AmountOut != nil {
		clone.AmountOut = new(big.Int).Set(o.AmountOut)
	}
	return &clone
}
