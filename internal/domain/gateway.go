package domain

import "context"

// LivePosition is the exchange's view of an open position for a symbol.
type LivePosition struct {
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
}

// CloseFill is the result of a successfully submitted close order.
type CloseFill struct {
	FillPrice float64
	OrderID   string
}

// ExchangeGateway is the engine's view of the exchange. Implementations must
// classify failures as Transient (retryable) or Permanent (not retried) via
// the domain error wrappers.
type ExchangeGateway interface {
	// GetMarkPrice returns the current mark price for a symbol.
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// GetPosition returns the live position for a symbol, or nil when the
	// exchange reports no open position (flat).
	GetPosition(ctx context.Context, symbol string) (*LivePosition, error)

	// ClosePosition submits a reduce-only market order closing quantity of
	// the position on the given side and returns the fill.
	ClosePosition(ctx context.Context, symbol string, quantity float64, side Side) (CloseFill, error)
}
