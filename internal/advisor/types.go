// Package advisor asks an LLM for stop-loss / take-profit proposals used in
// AI_PROMPT mode. Proposals are advisory only: the risk evaluator clamps
// them into hard bounds and falls back to the DEFAULT block when the advisor
// fails or returns garbage, so a broken model can never widen risk.
package advisor

// Proposal is the level suggestion returned by the model for one trade.
type Proposal struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Request describes the trade the model is asked to place levels for.
type Request struct {
	Symbol     string
	Side       string
	EntryPrice float64
	Quantity   float64
	PromptID   string
	Context    string // free-form market context assembled by the caller
}
