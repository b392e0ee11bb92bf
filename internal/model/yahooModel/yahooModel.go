package yahooModel

type RawChart struct {
	Chart Chart `json:"chart"`
}

type Chart struct {
	Result []ChartResult `json:"result"`
	Error  *ChartError   `json:"error"`
}

type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type ChartResult struct {
	Meta       Meta       `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Events     Events     `json:"events"`
	Indicators Indicators `json:"indicators"`
}

type Meta struct {
	Currency           string  `json:"currency"`
	Symbol             string  `json:"symbol"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
}

type Events struct {
	// keyed by the unix timestamp of the ex-dividend date, as a string
	Dividends map[string]Dividend `json:"dividends"`
}

type Dividend struct {
	Amount float64 `json:"amount"`
	Date   int64   `json:"date"`
}

type Indicators struct {
	Quote []Quote `json:"quote"`
}

// Quote values are null on days without trading.
type Quote struct {
	Close []*float64 `json:"close"`
}
