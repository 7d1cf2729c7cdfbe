package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You are a risk analyst for a crypto futures desk.
Given a trade, respond with a single JSON object and nothing else:
{"stop_loss": <price>, "take_profit": <price>, "confidence": <0..1>, "rationale": "<one sentence>"}
The stop_loss must be on the losing side of the entry price and the
take_profit on the winning side for the given direction.`

// Config holds the model endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the OpenAI default
	Model   string
	Timeout time.Duration
}

// Client calls the model and parses its proposal.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config, logger *slog.Logger) *Client {
	ocfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		ocfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		api:     openai.NewClientWithConfig(ocfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "advisor")),
	}
}

// Propose asks the model for SL/TP levels for one trade.
func (c *Client) Propose(ctx context.Context, req Request) (Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf(
		"Symbol: %s\nDirection: %s\nEntry price: %.8g\nQuantity: %.8g\n%s",
		req.Symbol, req.Side, req.EntryPrice, req.Quantity, req.Context,
	)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return Proposal{}, fmt.Errorf("advisor: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Proposal{}, fmt.Errorf("advisor: model returned no choices")
	}

	proposal, err := ParseProposal(resp.Choices[0].Message.Content)
	if err != nil {
		return Proposal{}, err
	}

	c.logger.DebugContext(ctx, "proposal received",
		slog.String("symbol", req.Symbol),
		slog.Float64("stop_loss", proposal.StopLoss),
		slog.Float64("take_profit", proposal.TakeProfit),
		slog.Float64("confidence", proposal.Confidence),
	)
	return proposal, nil
}
