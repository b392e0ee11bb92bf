package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/dividend_helper_bot/data/repository"
	"github.com/KotFed0t/dividend_helper_bot/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/model/dbModel"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func (r *Postgres) InsertUser(ctx context.Context, chatID int64) (userID int64, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertUser"
	query := `INSERT INTO users(chat_id) VALUES($1) RETURNING user_id`

	slog.Debug("InsertUser start", slog.String("rqID", rqID), slog.String("op", op), slog.String("query", query))
	defer func() {
		if err != nil && !errors.Is(err, repository.ErrAlreadyExists) {
			slog.Error("InsertUser failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertUser completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	err = r.txOrDb(ctx).QueryRowContext(ctx, query, chatID).Scan(&userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, repository.ErrAlreadyExists
		}
		return 0, err
	}

	return userID, nil
}

func (r *Postgres) InsertOperation(ctx context.Context, operation model.LedgerOperation) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.InsertOperation"
	query := `
		INSERT INTO ledger_operations(chat_id, kind, ticker, shares, price, total, dt_create)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	slog.Debug(
		"InsertOperation start",
		slog.String("rqID", rqID),
		slog.String("op", op),
		slog.Any("operation", operation),
		slog.String("query", query),
	)
	defer func() {
		if err != nil {
			slog.Error("InsertOperation failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertOperation completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	dbOp := dbConverter.ToDbLedgerOperation(operation)
	_, err = r.txOrDb(ctx).ExecContext(
		ctx,
		query,
		dbOp.ChatID,
		dbOp.Kind,
		dbOp.Ticker,
		dbOp.Shares,
		dbOp.Price,
		dbOp.Total,
		dbOp.DtCreate,
	)

	return err
}

// GetOperations returns the journal of chatID, oldest first.
func (r *Postgres) GetOperations(ctx context.Context, chatID int64) (operations []model.LedgerOperation, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetOperations"
	query := `
		SELECT operation_id, chat_id, kind, ticker, shares, price, total, dt_create
		FROM ledger_operations
		WHERE chat_id = $1
		ORDER BY dt_create, operation_id
		`

	slog.Debug("GetOperations start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetOperations failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetOperations completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	rows, err := r.txOrDb(ctx).QueryxContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	operations = make([]model.LedgerOperation, 0)
	for rows.Next() {
		var dbOp dbModel.LedgerOperation
		err = rows.StructScan(&dbOp)
		if err != nil {
			return nil, err
		}
		operations = append(operations, dbConverter.ConvertLedgerOperation(dbOp))
	}

	return operations, rows.Err()
}

// DeleteOperations clears the journal of chatID when a new session starts.
func (r *Postgres) DeleteOperations(ctx context.Context, chatID int64) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.DeleteOperations"
	query := `DELETE FROM ledger_operations WHERE chat_id = $1`

	slog.Debug("DeleteOperations start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		if err != nil {
			slog.Error("DeleteOperations failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteOperations completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, chatID)
	return err
}
