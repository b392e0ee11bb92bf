package externalApi

import (
	"testing"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAlignDividends(t *testing.T) {
	date := func(d int) time.Time { return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC) }
	series := []model.PricePoint{
		{Date: date(1), Close: decimal.NewFromInt(10)},
		{Date: date(4), Close: decimal.NewFromInt(11)},
		{Date: date(5), Close: decimal.NewFromInt(12)},
	}

	AlignDividends(series, []model.DividendEvent{
		{Date: date(2), Amount: decimal.RequireFromString("0.5")},
		{Date: date(4), Amount: decimal.RequireFromString("0.25")},
		{Date: date(9), Amount: decimal.NewFromInt(1)},
	})

	assert.True(t, series[0].Dividend.IsZero())
	assert.Equal(t, "0.75", series[1].Dividend.String())
	assert.True(t, series[2].Dividend.IsZero())
}
