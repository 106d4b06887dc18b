package domain

import "time"

// PlaceOrderRequest contains the parameters for a real CLOB order.
type PlaceOrderRequest struct {
	TokenID string
	Side    Side
	Price   float64 // worst acceptable price per share
	Size    float64 // shares
	NegRisk bool
}

// PlacedOrder is the CLOB response after submitting an order.
type PlacedOrder struct {
	CLOBOrderID string
	Status      string  // "matched", "live", "delayed"
	TakenAmount float64 // amount received
	MadeAmount  float64 // amount given
}

// ExecutionRequest asks an execution backend to spend USD on one outcome token.
type ExecutionRequest struct {
	MarketSlug     string
	MarketTitle    string
	TokenID        string
	USD            float64
	ReferencePrice float64 // whale fill price, used when no book is available
	Notes          string
}

// Execution is the result of a successful backend BUY.
type Execution struct {
	OrderID    string
	Mode       string // "paper" | "live"
	Price      float64
	Shares     float64
	USD        float64
	ExecutedAt time.Time
}
