package service

import (
	"errors"

	"github.com/KotFed0t/dividend_helper_bot/internal/ledger"
)

var (
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrEmptyPortfolio  = errors.New("portfolio is empty")

	// ErrInvalidInput is shared with the ledger so one errors.Is check covers both layers.
	ErrInvalidInput = ledger.ErrInvalidInput
)
