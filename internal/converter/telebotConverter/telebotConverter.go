package telebotConverter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

var ErrBadArgs = errors.New("bad command arguments")

var (
	BtnMonthlyChart = tele.Btn{Unique: "monthly_chart", Text: "📊 Дивиденды по месяцам"}
	BtnGap          = tele.Btn{Unique: "gap", Text: "⚖️ Итог реинвестирования"}
	BtnReport       = tele.Btn{Unique: "report", Text: "📄 Отчет xlsx"}
)

var monthNames = [...]string{
	"", "январь", "февраль", "март", "апрель", "май", "июнь",
	"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь",
}

// ParseAmount accepts both "1500.50" and "1 500,50".
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrBadArgs)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrBadArgs, s)
	}
	return amount, nil
}

func ParseTicker(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: expected one ticker", ErrBadArgs)
	}
	return strings.ToUpper(strings.TrimSpace(args[0])), nil
}

// ParseBuyArgs parses "TICKER AMOUNT".
func ParseBuyArgs(args []string) (ticker string, amount decimal.Decimal, err error) {
	if len(args) < 2 {
		return "", decimal.Zero, fmt.Errorf("%w: expected ticker and amount", ErrBadArgs)
	}

	ticker, err = ParseTicker(args[:1])
	if err != nil {
		return "", decimal.Zero, err
	}

	amount, err = ParseAmount(strings.Join(args[1:], ""))
	if err != nil {
		return "", decimal.Zero, err
	}
	return ticker, amount, nil
}

// ParseReinvestArgs parses "TICKER", "TICKER 5y" or "TICKER FROM TO" with
// dates as YYYY-MM-DD. Zero bounds are left for the caller to default.
func ParseReinvestArgs(args []string, now time.Time) (ticker string, from, to time.Time, err error) {
	if len(args) == 0 {
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: expected ticker", ErrBadArgs)
	}

	ticker, err = ParseTicker(args[:1])
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}

	switch len(args) {
	case 1:
		return ticker, time.Time{}, time.Time{}, nil
	case 2:
		years, err := parsePeriod(args[1])
		if err != nil {
			return "", time.Time{}, time.Time{}, err
		}
		y, m, d := now.UTC().Date()
		to = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		return ticker, to.AddDate(-years, 0, 0), to, nil
	case 3:
		from, err = time.Parse(time.DateOnly, args[1])
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: bad start date %q", ErrBadArgs, args[1])
		}
		to, err = time.Parse(time.DateOnly, args[2])
		if err != nil {
			return "", time.Time{}, time.Time{}, fmt.Errorf("%w: bad end date %q", ErrBadArgs, args[2])
		}
		return ticker, from, to, nil
	default:
		return "", time.Time{}, time.Time{}, fmt.Errorf("%w: too many arguments", ErrBadArgs)
	}
}

func parsePeriod(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	years, err := strconv.Atoi(strings.TrimSuffix(s, "y"))
	if err != nil || !strings.HasSuffix(s, "y") || years <= 0 {
		return 0, fmt.Errorf("%w: bad period %q, use e.g. 5y", ErrBadArgs, s)
	}
	return years, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func CapitalResponse(snapshot model.LedgerSnapshot) string {
	return fmt.Sprintf("💰 Стартовый капитал: %s\n💵 Свободно: %s", money(snapshot.InitialCapital), money(snapshot.RemainingCapital))
}

func QuoteResponse(q model.StockQuote) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("📈 %s: %s %s\n", q.Ticker, money(q.Price), q.Currency))
	if !q.AsOf.IsZero() {
		sb.WriteString(fmt.Sprintf("   ▸ на %s\n", q.AsOf.Format(time.DateOnly)))
	}
	if q.LatestDividend == nil {
		sb.WriteString("   ▸ дивиденды не выплачивались")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("   ▸ последний дивиденд: %s (%s)\n", q.LatestDividend.Amount.String(), q.LatestDividend.Date.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("   ▸ всего выплат в истории: %d", q.DividendCount))

	return sb.String()
}

func PositionAddedResponse(p model.Position, snapshot model.LedgerSnapshot) string {
	return fmt.Sprintf(
		"✅ Куплено %s x %s по %s\n   ▸ вложено: %s\n   ▸ дивиденды за историю: %s\n💵 Свободно: %s",
		p.Shares.String(), p.Ticker, money(p.PurchasePrice), money(p.TotalInvestment), money(p.TotalDividends()), money(snapshot.RemainingCapital),
	)
}

func PositionRemovedResponse(p model.Position, snapshot model.LedgerSnapshot) string {
	return fmt.Sprintf("🗑 %s удален, возвращено %s\n💵 Свободно: %s", p.Ticker, money(p.TotalInvestment), money(snapshot.RemainingCapital))
}

func PortfolioResponse(snapshot model.LedgerSnapshot) (text string, markup *tele.ReplyMarkup) {
	var sb strings.Builder

	sb.WriteString("📊 Портфель\n")
	sb.WriteString(CapitalResponse(snapshot))
	sb.WriteString("\n\n")

	if len(snapshot.Positions) == 0 {
		sb.WriteString("Позиций пока нет. Добавьте акцию: /buy TICKER сумма")
		return sb.String(), nil
	}

	sb.WriteString("📋 Позиции:\n\n")
	for i, p := range snapshot.Positions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, p.Ticker))
		sb.WriteString(fmt.Sprintf("   ▸ Кол-во: %s шт.\n", p.Shares.String()))
		sb.WriteString(fmt.Sprintf("   ▸ Цена покупки: %s\n", money(p.PurchasePrice)))
		sb.WriteString(fmt.Sprintf("   ▸ Вложено: %s\n", money(p.TotalInvestment)))
		sb.WriteString(fmt.Sprintf("   ▸ Дивиденды: %s\n\n", money(p.TotalDividends())))
	}

	markup = &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(BtnMonthlyChart, BtnGap),
		markup.Row(BtnReport),
	)

	return sb.String(), markup
}

func MonthlyResponse(monthly model.MonthlyDividends) string {
	var sb strings.Builder
	sb.WriteString("📅 Дивиденды по месяцам:\n")

	for m := time.January; m <= time.December; m++ {
		total := monthly.Total(m)
		if total.IsZero() {
			continue
		}
		sb.WriteString(fmt.Sprintf("   ▸ %s: %s\n", monthNames[m], money(total)))
	}

	return strings.TrimRight(sb.String(), "\n")
}

func GapResponse(gap model.ReinvestmentGap) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("💼 Вложено: %s\n", money(gap.InitialInvestment)))
	sb.WriteString(fmt.Sprintf("📈 Текущая стоимость: %s\n", money(gap.CurrentValue)))
	sb.WriteString(fmt.Sprintf("💸 Дивиденды: %s\n", money(gap.TotalDividends)))

	switch gap.Direction() {
	case 1:
		sb.WriteString(fmt.Sprintf("🟢 Прибыль: +%s", money(gap.Gap)))
	case -1:
		sb.WriteString(fmt.Sprintf("🔴 Убыток: %s", money(gap.Gap)))
	default:
		sb.WriteString("⚪️ В ноль")
	}

	if len(gap.Skipped) > 0 {
		sb.WriteString(fmt.Sprintf("\n⚠️ Нет цены, не учтены: %s", strings.Join(gap.Skipped, ", ")))
	}

	return sb.String()
}

func SimulationResponse(sim model.Simulation) string {
	s := sim.Summary
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("🔁 Реинвестирование %s\n", sim.Ticker))
	sb.WriteString(fmt.Sprintf("   ▸ период: %s .. %s\n", s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly)))
	sb.WriteString(fmt.Sprintf("   ▸ выплат: %d, на сумму %s\n", s.DividendEvents, money(s.DividendCash)))
	sb.WriteString(fmt.Sprintf("   ▸ акций: %s → %s\n", s.InitialShares.String(), s.FinalShares.StringFixed(4)))
	sb.WriteString(fmt.Sprintf("   ▸ стоимость: %s → %s\n", money(s.StartValue), money(s.EndValue)))
	sb.WriteString(fmt.Sprintf("   ▸ без реинвестирования: %s", money(s.ValueWithoutReinvestment)))

	return sb.String()
}
