package externalApi

import (
	"slices"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
)

// AlignDividends adds each event to the first point of the ascending series
// dated on or after it. Events after the last point are dropped.
func AlignDividends(series []model.PricePoint, events []model.DividendEvent) {
	for _, ev := range events {
		i, _ := slices.BinarySearchFunc(series, ev.Date, func(p model.PricePoint, t time.Time) int {
			return p.Date.Compare(t)
		})
		if i == len(series) {
			continue
		}
		series[i].Dividend = series[i].Dividend.Add(ev.Amount)
	}
}
