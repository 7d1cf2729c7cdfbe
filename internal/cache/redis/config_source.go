package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/botfolio/riskengine/internal/domain"
)

// ConfigSource implements domain.RiskConfigSource over Redis. The marketplace
// configuration surface writes one JSON risk profile per subscription at
// "riskcfg:{subscription_id}"; the engine only reads. A configured default
// profile covers subscriptions without an explicit document.
type ConfigSource struct {
	rdb        *redis.Client
	defaultCfg *domain.RiskConfig
	hasDefault bool
}

// NewConfigSource creates a ConfigSource. When defaultCfg is non-nil it is
// returned for subscriptions that have no stored profile; otherwise those
// lookups return domain.ErrNotFound.
func NewConfigSource(c *Client, defaultCfg *domain.RiskConfig) *ConfigSource {
	return &ConfigSource{
		rdb:        c.Underlying(),
		defaultCfg: defaultCfg,
		hasDefault: defaultCfg != nil,
	}
}

func riskConfigKey(subscriptionID string) string {
	return "riskcfg:" + subscriptionID
}

// Get resolves the risk profile for a subscription.
func (cs *ConfigSource) Get(ctx context.Context, subscriptionID string) (domain.RiskConfig, error) {
	raw, err := cs.rdb.Get(ctx, riskConfigKey(subscriptionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if cs.hasDefault {
				return *cs.defaultCfg, nil
			}
			return domain.RiskConfig{}, domain.ErrNotFound
		}
		return domain.RiskConfig{}, fmt.Errorf("redis: get risk config %s: %w", subscriptionID, err)
	}

	var cfg domain.RiskConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.RiskConfig{}, fmt.Errorf("redis: decode risk config %s: %w", subscriptionID, err)
	}
	return cfg, nil
}

// Compile-time interface check.
var _ domain.RiskConfigSource = (*ConfigSource)(nil)
