package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/botfolio/riskengine/internal/advisor"
	"github.com/botfolio/riskengine/internal/domain"
	"github.com/botfolio/riskengine/internal/notify"
	"github.com/botfolio/riskengine/internal/risk"
)

// StateProvider returns a subscription's current risk aggregate.
type StateProvider interface {
	State(ctx context.Context, subscriptionID string, now time.Time) (domain.SubscriptionRiskState, error)
}

// ProposalAdvisor asks the model for SL/TP levels in AI_PROMPT mode.
type ProposalAdvisor interface {
	Propose(ctx context.Context, req advisor.Request) (advisor.Proposal, error)
}

// EvaluateHandler serves pre-trade risk evaluation.
type EvaluateHandler struct {
	evaluator *risk.Evaluator
	configs   domain.RiskConfigSource
	states    StateProvider
	advisor   ProposalAdvisor  // nil disables model proposals
	notifier  *notify.Notifier // nil disables admission alerts
	logger    *slog.Logger
}

// NewEvaluateHandler creates an EvaluateHandler. adv may be nil; AI_PROMPT
// subscriptions then evaluate with the fallback parameters. notifier may be
// nil; daily-limit blocks then go unannounced.
func NewEvaluateHandler(
	evaluator *risk.Evaluator,
	configs domain.RiskConfigSource,
	states StateProvider,
	adv ProposalAdvisor,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *EvaluateHandler {
	return &EvaluateHandler{
		evaluator: evaluator,
		configs:   configs,
		states:    states,
		advisor:   adv,
		notifier:  notifier,
		logger:    logger,
	}
}

// evaluateRequest is the trade proposal submitted for admission.
type evaluateRequest struct {
	SubscriptionID string  `json:"subscription_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Quantity       float64 `json:"quantity"`
	EntryPrice     float64 `json:"entry_price"`
	Leverage       float64 `json:"leverage"`

	Balance      float64 `json:"balance"`
	OpenExposure float64 `json:"open_exposure"`

	// Pre-supplied levels skip the advisor call.
	ProposedStopLoss   *float64 `json:"proposed_stop_loss,omitempty"`
	ProposedTakeProfit *float64 `json:"proposed_take_profit,omitempty"`

	PromptID string `json:"prompt_id,omitempty"`
	Context  string `json:"context,omitempty"`
}

// evaluateResponse is the admission decision.
type evaluateResponse struct {
	Approved           bool    `json:"approved"`
	Reason             string  `json:"reason,omitempty"`
	Quantity           float64 `json:"quantity,omitempty"`
	EffectiveSL        float64 `json:"effective_stop_loss,omitempty"`
	EffectiveTP        float64 `json:"effective_take_profit,omitempty"`
	UsedFallbackParams bool    `json:"used_fallback_params,omitempty"`
}

// Evaluate admits or rejects a trade proposal against the subscription's
// risk profile.
// POST /api/evaluate
func (h *EvaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SubscriptionID == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "subscription_id and symbol are required")
		return
	}
	side := domain.Side(req.Side)
	if side != domain.SideLong && side != domain.SideShort {
		writeError(w, http.StatusBadRequest, "side must be LONG or SHORT")
		return
	}
	if req.EntryPrice <= 0 || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "entry_price and quantity must be positive")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	cfg, err := h.configs.Get(ctx, req.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no risk profile for subscription")
			return
		}
		h.logger.ErrorContext(ctx, "handler: risk config lookup failed",
			slog.String("subscription_id", req.SubscriptionID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load risk profile")
		return
	}

	state, err := h.states.State(ctx, req.SubscriptionID, now)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: risk state lookup failed",
			slog.String("subscription_id", req.SubscriptionID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load risk state")
		return
	}

	proposal := domain.TradeProposal{
		SubscriptionID:     req.SubscriptionID,
		Symbol:             req.Symbol,
		Side:               side,
		Quantity:           req.Quantity,
		EntryPrice:         req.EntryPrice,
		Leverage:           req.Leverage,
		ProposedStopLoss:   req.ProposedStopLoss,
		ProposedTakeProfit: req.ProposedTakeProfit,
	}

	// AI_PROMPT subscriptions without pre-supplied levels consult the model.
	// An advisor failure is not fatal: the evaluator falls back to the
	// DEFAULT block.
	if cfg.Mode == domain.RiskModeAIPrompt && h.advisor != nil &&
		proposal.ProposedStopLoss == nil && proposal.ProposedTakeProfit == nil {
		p, err := h.advisor.Propose(ctx, advisor.Request{
			Symbol:     req.Symbol,
			Side:       string(side),
			EntryPrice: req.EntryPrice,
			Quantity:   req.Quantity,
			PromptID:   req.PromptID,
			Context:    req.Context,
		})
		if err != nil {
			h.logger.WarnContext(ctx, "handler: advisor proposal failed, using fallback",
				slog.String("subscription_id", req.SubscriptionID),
				slog.Any("error", err),
			)
		} else {
			proposal.ProposedStopLoss = &p.StopLoss
			proposal.ProposedTakeProfit = &p.TakeProfit
		}
	}

	account := domain.AccountState{
		Balance:      req.Balance,
		OpenExposure: req.OpenExposure,
	}

	decision, err := h.evaluator.Evaluate(cfg, state, account, proposal, now)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: evaluation failed",
			slog.String("subscription_id", req.SubscriptionID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusUnprocessableEntity, "risk profile invalid: "+err.Error())
		return
	}

	if !decision.Approved && decision.Reason == domain.RejectDailyLossLimitHit && h.notifier != nil {
		go func(subscriptionID string, dailyLoss float64) {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			title, message := notify.FormatDailyLimit(subscriptionID, dailyLoss)
			if err := h.notifier.Notify(nctx, notify.EventDailyLimitHit, title, message); err != nil {
				h.logger.Warn("handler: daily limit alert failed",
					slog.String("subscription_id", subscriptionID),
					slog.Any("error", err),
				)
			}
		}(req.SubscriptionID, state.DailyLossAmount)
	}

	writeJSON(w, http.StatusOK, evaluateResponse{
		Approved:           decision.Approved,
		Reason:             string(decision.Reason),
		Quantity:           decision.Quantity,
		EffectiveSL:        decision.EffectiveSL,
		EffectiveTP:        decision.EffectiveTP,
		UsedFallbackParams: decision.UsedFallbackParams,
	})
}
