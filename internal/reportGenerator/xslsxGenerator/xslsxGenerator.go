package xslsxGenerator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/xuri/excelize/v2"
)

const (
	portfolioSheet  = "Portfolio"
	monthlySheet    = "Monthly dividends"
	operationsSheet = "Operations"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	// the default sheet becomes the first one
	if err = f.SetSheetName("Sheet1", portfolioSheet); err != nil {
		return nil, "", err
	}

	fills := []func(*excelize.File, model.PortfolioReport) error{
		g.fillPortfolio,
		g.fillMonthly,
		g.fillOperations,
	}
	for _, fill := range fills {
		if err = fill(f, report); err != nil {
			slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XSLSXGenerator) headerStyle(f *excelize.File, color string) (int, error) {
	return f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{color},
		},
	})
}

// writeHeader merges the title over the columns of headers and writes
// headers into the row below it.
func (g *XSLSXGenerator) writeHeader(f *excelize.File, sheet string, row int, title, color string, headers []string) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), row)
	if err != nil {
		return err
	}

	if err = f.MergeCell(sheet, first, last); err != nil {
		return err
	}
	if err = f.SetCellStr(sheet, first, title); err != nil {
		return err
	}

	styleID, err := g.headerStyle(f, color)
	if err != nil {
		return err
	}
	if err = f.SetCellStyle(sheet, first, first, styleID); err != nil {
		return fmt.Errorf("apply style: %w", err)
	}

	headerCell, err := excelize.CoordinatesToCellName(1, row+1)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, headerCell, &headers)
}

func (g *XSLSXGenerator) fillPortfolio(f *excelize.File, report model.PortfolioReport) error {
	err := g.writeHeader(f, portfolioSheet, 1, "Positions", "#cfe2f3", []string{
		"ticker", "shares", "purchase price", "total investment", "dividends received", "opened at",
	})
	if err != nil {
		return err
	}

	row := 3
	for _, p := range report.Ledger.Positions {
		_ = f.SetCellStr(portfolioSheet, fmt.Sprintf("A%d", row), p.Ticker)
		_ = f.SetCellValue(portfolioSheet, fmt.Sprintf("B%d", row), p.Shares.InexactFloat64())
		_ = f.SetCellValue(portfolioSheet, fmt.Sprintf("C%d", row), p.PurchasePrice.InexactFloat64())
		_ = f.SetCellValue(portfolioSheet, fmt.Sprintf("D%d", row), p.TotalInvestment.InexactFloat64())
		_ = f.SetCellValue(portfolioSheet, fmt.Sprintf("E%d", row), p.TotalDividends().InexactFloat64())
		_ = f.SetCellStr(portfolioSheet, fmt.Sprintf("F%d", row), p.OpenedAt.Format(time.DateOnly))
		row++
	}

	row++
	err = g.writeHeader(f, portfolioSheet, row, "Capital", "#d9ead3", []string{"initial", "invested", "remaining", "generated at"})
	if err != nil {
		return err
	}

	invested := report.Ledger.InitialCapital.Sub(report.Ledger.RemainingCapital)
	values := []any{
		report.Ledger.InitialCapital.InexactFloat64(),
		invested.InexactFloat64(),
		report.Ledger.RemainingCapital.InexactFloat64(),
		report.GeneratedAt.Format(time.DateTime),
	}
	return f.SetSheetRow(portfolioSheet, fmt.Sprintf("A%d", row+2), &values)
}

// fillMonthly writes a month by ticker matrix with a total column.
func (g *XSLSXGenerator) fillMonthly(f *excelize.File, report model.PortfolioReport) error {
	if _, err := f.NewSheet(monthlySheet); err != nil {
		return err
	}

	tickers := report.Monthly.Tickers()
	headers := append([]string{"month"}, tickers...)
	headers = append(headers, "total")

	if err := g.writeHeader(f, monthlySheet, 1, "Dividends by month", "#f9cb9c", headers); err != nil {
		return err
	}

	for m := time.January; m <= time.December; m++ {
		values := make([]any, 0, len(headers))
		values = append(values, m.String())
		for _, ticker := range tickers {
			values = append(values, report.Monthly[m][ticker].InexactFloat64())
		}
		values = append(values, report.Monthly.Total(m).InexactFloat64())

		if err := f.SetSheetRow(monthlySheet, fmt.Sprintf("A%d", int(m)+2), &values); err != nil {
			return err
		}
	}

	return nil
}

func (g *XSLSXGenerator) fillOperations(f *excelize.File, report model.PortfolioReport) error {
	if _, err := f.NewSheet(operationsSheet); err != nil {
		return err
	}

	err := g.writeHeader(f, operationsSheet, 1, "Operations history", "#cccccc", []string{
		"date", "operation", "ticker", "shares", "price", "total",
	})
	if err != nil {
		return err
	}

	for i, operation := range report.Operations {
		values := []any{
			operation.DtCreate.Format(time.DateTime),
			string(operation.Kind),
			operation.Ticker,
			operation.Shares.InexactFloat64(),
			operation.Price.InexactFloat64(),
			operation.Total.InexactFloat64(),
		}
		if err := f.SetSheetRow(operationsSheet, fmt.Sprintf("A%d", i+3), &values); err != nil {
			return err
		}
	}

	return nil
}
