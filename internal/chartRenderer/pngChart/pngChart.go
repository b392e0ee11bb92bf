package pngChart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var ErrNothingToDraw = errors.New("nothing to draw")

type PNGChart struct {
	width  int
	height int
}

func New() *PNGChart {
	return &PNGChart{width: 1024, height: 480}
}

// MonthlyDividends draws one bar per calendar month with the total paid
// across all tickers.
func (c *PNGChart) MonthlyDividends(ctx context.Context, monthly model.MonthlyDividends) ([]byte, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PNGChart.MonthlyDividends"

	slog.Debug("MonthlyDividends start", slog.String("rqID", rqID), slog.String("op", op))

	bars := make([]chart.Value, 0, 12)
	maxTotal := 0.0
	for m := time.January; m <= time.December; m++ {
		total := monthly.Total(m).InexactFloat64()
		if total > maxTotal {
			maxTotal = total
		}
		bars = append(bars, chart.Value{
			Label: m.String()[:3],
			Value: total,
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex("2563eb"),
				StrokeColor: drawing.ColorFromHex("1d4ed8"),
				StrokeWidth: 1,
			},
		})
	}

	if maxTotal == 0 {
		return nil, fmt.Errorf("%w: no dividends in any month", ErrNothingToDraw)
	}

	graph := chart.BarChart{
		Title:      "Monthly dividends",
		Width:      c.width,
		Height:     c.height,
		BarWidth:   50,
		BarSpacing: 20,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: maxTotal * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("$%.2f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		slog.Error("bar chart render failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	slog.Debug("MonthlyDividends completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), nil
}

// Simulation draws the position value with dividends reinvested next to the
// value of the initial shares alone.
func (c *PNGChart) Simulation(ctx context.Context, sim model.Simulation) ([]byte, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PNGChart.Simulation"

	if len(sim.Series) < 2 || len(sim.Result.Value) != len(sim.Series) {
		return nil, fmt.Errorf("%w: need at least 2 aligned points, got %d", ErrNothingToDraw, len(sim.Series))
	}

	slog.Debug("Simulation start", slog.String("rqID", rqID), slog.String("op", op), slog.String("ticker", sim.Ticker))

	initial := sim.Result.Shares[0]
	xValues := make([]time.Time, len(sim.Series))
	reinvestedY := make([]float64, len(sim.Series))
	holdY := make([]float64, len(sim.Series))

	for i, p := range sim.Series {
		xValues[i] = p.Date
		reinvestedY[i] = sim.Result.Value[i].InexactFloat64()
		holdY[i] = initial.Mul(p.Close).InexactFloat64()
	}

	reinvestedSeries := chart.TimeSeries{
		Name: "Dividends reinvested",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("16a34a"),
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: reinvestedY,
	}

	holdSeries := chart.TimeSeries{
		Name: "Initial shares only",
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("9ca3af"),
			StrokeWidth:     1.5,
			StrokeDashArray: []float64{5.0, 3.0},
		},
		XValues: xValues,
		YValues: holdY,
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s: %s shares, dividends reinvested", sim.Ticker, initial.StringFixed(2)),
		Width:  c.width,
		Height: c.height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("Jan 06")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return formatMoney(decimal.NewFromFloat(f))
				}
				return ""
			},
		},
		Series: []chart.Series{
			reinvestedSeries,
			holdSeries,
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		slog.Error("line chart render failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, fmt.Errorf("chart render failed: %w", err)
	}

	slog.Debug("Simulation completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), nil
}

func formatMoney(v decimal.Decimal) string {
	if v.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		return "$" + v.Div(decimal.NewFromInt(1000)).StringFixed(1) + "k"
	}
	return "$" + v.StringFixed(0)
}
