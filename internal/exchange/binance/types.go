package binance

// premiumIndexResponse is the /fapi/v1/premiumIndex payload, trimmed to the
// fields the engine reads. Binance serializes numbers as strings.
type premiumIndexResponse struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
	Time      int64  `json:"time"`
}

// positionRiskResponse is one entry of the /fapi/v2/positionRisk payload.
type positionRiskResponse struct {
	Symbol      string `json:"symbol"`
	PositionAmt string `json:"positionAmt"`
	EntryPrice  string `json:"entryPrice"`
	MarkPrice   string `json:"markPrice"`
}

// orderResponse is the /fapi/v1/order fill acknowledgement.
type orderResponse struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	AvgPrice    string `json:"avgPrice"`
	ExecutedQty string `json:"executedQty"`
}

// apiError is the Binance error envelope.
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
