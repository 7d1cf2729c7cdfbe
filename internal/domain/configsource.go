package domain

import "context"

// RiskConfigSource resolves the risk profile for a subscription. Profiles are
// authored by the marketplace configuration surface; the engine only reads
// them. Implementations return ErrNotFound for unknown subscriptions.
type RiskConfigSource interface {
	Get(ctx context.Context, subscriptionID string) (RiskConfig, error)
}
