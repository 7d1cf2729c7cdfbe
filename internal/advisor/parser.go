package advisor

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var thinkTagRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ParseProposal extracts a level proposal from a raw model response. Models
// wrap JSON in reasoning tags, markdown fences, or prose; all of that is
// stripped before decoding. A response without a decodable object, or with
// non-finite or non-positive levels, is an error.
func ParseProposal(text string) (Proposal, error) {
	cleaned := strings.TrimSpace(thinkTagRegex.ReplaceAllString(text, ""))
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var p Proposal
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		// Fall back to the first {...} span in the text.
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start < 0 || end <= start {
			return Proposal{}, fmt.Errorf("advisor: no JSON object in response: %.200s", cleaned)
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &p); err != nil {
			return Proposal{}, fmt.Errorf("advisor: decode proposal: %w", err)
		}
	}

	if !finitePositive(p.StopLoss) || !finitePositive(p.TakeProfit) {
		return Proposal{}, fmt.Errorf("advisor: proposal levels invalid (sl=%v tp=%v)", p.StopLoss, p.TakeProfit)
	}
	return p, nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
