package dbConverter

import (
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/model/dbModel"
)

func ConvertLedgerOperation(dbOp dbModel.LedgerOperation) model.LedgerOperation {
	return model.LedgerOperation{
		ChatID:   dbOp.ChatID,
		Kind:     model.OperationKind(dbOp.Kind),
		Ticker:   dbOp.Ticker,
		Shares:   dbOp.Shares,
		Price:    dbOp.Price,
		Total:    dbOp.Total,
		DtCreate: dbOp.DtCreate,
	}
}

func ToDbLedgerOperation(op model.LedgerOperation) dbModel.LedgerOperation {
	return dbModel.LedgerOperation{
		ChatID:   op.ChatID,
		Kind:     string(op.Kind),
		Ticker:   op.Ticker,
		Shares:   op.Shares,
		Price:    op.Price,
		Total:    op.Total,
		DtCreate: op.DtCreate,
	}
}
