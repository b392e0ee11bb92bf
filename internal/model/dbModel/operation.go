package dbModel

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerOperation struct {
	OperationID int64           `db:"operation_id"`
	ChatID      int64           `db:"chat_id"`
	Kind        string          `db:"kind"`
	Ticker      string          `db:"ticker"`
	Shares      decimal.Decimal `db:"shares"`
	Price       decimal.Decimal `db:"price"`
	Total       decimal.Decimal `db:"total"`
	DtCreate    time.Time       `db:"dt_create"`
}
