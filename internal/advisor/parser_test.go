package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProposal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Proposal
		wantErr bool
	}{
		{
			name:  "plain json",
			input: `{"stop_loss": 48500, "take_profit": 53000, "confidence": 0.8}`,
			want:  Proposal{StopLoss: 48500, TakeProfit: 53000, Confidence: 0.8},
		},
		{
			name: "markdown fenced",
			input: "```json\n" +
				`{"stop_loss": 48500, "take_profit": 53000}` +
				"\n```",
			want: Proposal{StopLoss: 48500, TakeProfit: 53000},
		},
		{
			name: "reasoning tags stripped",
			input: "<think>the support level sits around 48500\nso the stop goes there</think>\n" +
				`{"stop_loss": 48500, "take_profit": 53000}`,
			want: Proposal{StopLoss: 48500, TakeProfit: 53000},
		},
		{
			name: "json embedded in prose",
			input: `Based on current volatility I suggest {"stop_loss": 48500, ` +
				`"take_profit": 53000, "rationale": "support at 48.5k"} for this entry.`,
			want: Proposal{StopLoss: 48500, TakeProfit: 53000, Rationale: "support at 48.5k"},
		},
		{
			name:    "no json object",
			input:   "I cannot determine appropriate levels for this trade.",
			wantErr: true,
		},
		{
			name:    "malformed object",
			input:   `{"stop_loss": 48500, "take_profit": }`,
			wantErr: true,
		},
		{
			name:    "negative stop loss",
			input:   `{"stop_loss": -1, "take_profit": 53000}`,
			wantErr: true,
		},
		{
			name:    "missing take profit",
			input:   `{"stop_loss": 48500}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProposal(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
