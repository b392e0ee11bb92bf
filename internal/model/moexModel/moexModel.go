package moexModel

// Table is how ISS serialises every block with iss.meta=off: column names
// once, then rows of positional values.
type Table struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

type RawSecurity struct {
	Securities Table `json:"securities"`
	Marketdata Table `json:"marketdata"`
}

type RawHistory struct {
	History       Table `json:"history"`
	HistoryCursor Table `json:"history.cursor"`
}

type RawDividends struct {
	Dividends Table `json:"dividends"`
}
