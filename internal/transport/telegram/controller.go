package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/KotFed0t/dividend_helper_bot/data/session"
	"github.com/KotFed0t/dividend_helper_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/dividend_helper_bot/internal/externalApi"
	"github.com/KotFed0t/dividend_helper_bot/internal/ledger"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/reinvest"
	"github.com/KotFed0t/dividend_helper_bot/internal/service"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg = "что-то пошло не так..."
	helpMsg        = `Команды:
/capital 10000 - задать стартовый капитал
/quote KO - цена и последний дивиденд
/buy KO 1000 - купить акций на сумму
/remove KO - убрать позицию
/portfolio - портфель
/monthly - дивиденды по месяцам
/reinvest KO [5y | 2015-01-01 2024-01-01] - симуляция реинвестирования
/gap - итог портфеля с учетом дивидендов
/report - отчет xlsx`
)

type DividendService interface {
	StartSession(ctx context.Context, chatID int64, initialCapital decimal.Decimal) (model.LedgerSnapshot, error)
	SetInitialCapital(ctx context.Context, chatID int64, capital decimal.Decimal) (model.LedgerSnapshot, error)
	Quote(ctx context.Context, ticker string) (model.StockQuote, error)
	Buy(ctx context.Context, chatID int64, ticker string, amount decimal.Decimal) (model.Position, model.LedgerSnapshot, error)
	Remove(ctx context.Context, chatID int64, ticker string) (model.Position, model.LedgerSnapshot, error)
	Portfolio(ctx context.Context, chatID int64) (model.LedgerSnapshot, error)
	MonthlyDividends(ctx context.Context, chatID int64) (model.MonthlyDividends, error)
	MonthlyChart(ctx context.Context, chatID int64) ([]byte, error)
	ReinvestmentGap(ctx context.Context, chatID int64) (model.ReinvestmentGap, error)
	Simulate(ctx context.Context, ticker string, from, to time.Time, initialShares decimal.Decimal) (model.Simulation, error)
	SimulationChart(ctx context.Context, sim model.Simulation) ([]byte, error)
	ExportReport(ctx context.Context, chatID int64) (model.ReportFile, error)
}

type Session interface {
	GetSession(ctx context.Context, chatID int64) (model.Session, error)
	SetSession(ctx context.Context, chatID int64, session model.Session) error
}

type Controller struct {
	dividendService DividendService
	session         Session
	defaultCapital  decimal.Decimal
	now             func() time.Time
}

func NewController(dividendService DividendService, session Session, defaultCapital decimal.Decimal) *Controller {
	return &Controller{
		dividendService: dividendService,
		session:         session,
		defaultCapital:  defaultCapital,
		now:             time.Now,
	}
}

// Start resets the portfolio to the default capital and asks for a custom one.
func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	snapshot, err := ctrl.dividendService.StartSession(ctx, c.Chat().ID, ctrl.defaultCapital)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	if err = ctrl.setState(ctx, c, model.ExpectingCapital); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Привет! Я помогу собрать дивидендный портфель.\n\n" +
		telebotConverter.CapitalResponse(snapshot) +
		"\n\nВведите стартовый капитал или сразу используйте команды.\n\n" + helpMsg)
}

func (ctrl *Controller) Help(c tele.Context) error {
	return c.Send(helpMsg)
}

func (ctrl *Controller) InitCapital(c tele.Context) error {
	if len(c.Args()) > 0 {
		return ctrl.setCapital(c, strings.Join(c.Args(), ""))
	}

	ctx := utils.CreateCtxWithRqID(c)
	if err := ctrl.setState(ctx, c, model.ExpectingCapital); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send("Введите стартовый капитал:")
}

func (ctrl *Controller) ProcessCapital(c tele.Context) error {
	return ctrl.setCapital(c, c.Text())
}

func (ctrl *Controller) setCapital(c tele.Context, raw string) error {
	ctx := utils.CreateCtxWithRqID(c)

	capital, err := telebotConverter.ParseAmount(raw)
	if err != nil {
		return c.Send("Не получилось разобрать сумму, пример: 10000")
	}

	snapshot, err := ctrl.dividendService.SetInitialCapital(ctx, c.Chat().ID, capital)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	_ = ctrl.setState(ctx, c, model.DefaultState)

	return c.Send(telebotConverter.CapitalResponse(snapshot))
}

func (ctrl *Controller) Quote(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	ticker, err := telebotConverter.ParseTicker(c.Args())
	if err != nil {
		return c.Send("Пример: /quote KO")
	}

	quote, err := ctrl.dividendService.Quote(ctx, ticker)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	return c.Send(telebotConverter.QuoteResponse(quote))
}

func (ctrl *Controller) Buy(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	ticker, amount, err := telebotConverter.ParseBuyArgs(c.Args())
	if err != nil {
		return c.Send("Пример: /buy KO 1000")
	}

	position, snapshot, err := ctrl.dividendService.Buy(ctx, c.Chat().ID, ticker, amount)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	return c.Send(telebotConverter.PositionAddedResponse(position, snapshot))
}

func (ctrl *Controller) Remove(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	ticker, err := telebotConverter.ParseTicker(c.Args())
	if err != nil {
		return c.Send("Пример: /remove KO")
	}

	position, snapshot, err := ctrl.dividendService.Remove(ctx, c.Chat().ID, ticker)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	return c.Send(telebotConverter.PositionRemovedResponse(position, snapshot))
}

func (ctrl *Controller) Portfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	snapshot, err := ctrl.dividendService.Portfolio(ctx, c.Chat().ID)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	return c.Send(telebotConverter.PortfolioResponse(snapshot))
}

// Monthly sends the month totals as text followed by the bar chart.
func (ctrl *Controller) Monthly(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	_ = c.Respond()

	monthly, err := ctrl.dividendService.MonthlyDividends(ctx, c.Chat().ID)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	if err = c.Send(telebotConverter.MonthlyResponse(monthly)); err != nil {
		return err
	}

	png, err := ctrl.dividendService.MonthlyChart(ctx, c.Chat().ID)
	if err != nil {
		slog.Warn("monthly chart not sent", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return nil
	}

	return c.Send(&tele.Photo{File: tele.FromReader(bytes.NewReader(png))})
}

func (ctrl *Controller) Gap(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = c.Respond()

	gap, err := ctrl.dividendService.ReinvestmentGap(ctx, c.Chat().ID)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	return c.Send(telebotConverter.GapResponse(gap))
}

func (ctrl *Controller) InitReinvest(c tele.Context) error {
	if len(c.Args()) > 0 {
		return ctrl.reinvest(c, c.Args())
	}

	ctx := utils.CreateCtxWithRqID(c)
	if err := ctrl.setState(ctx, c, model.ExpectingReinvestTicker); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send("Введите тикер, можно с периодом: KO 10y")
}

func (ctrl *Controller) ProcessReinvest(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = ctrl.setState(ctx, c, model.DefaultState)
	return ctrl.reinvest(c, strings.Fields(c.Text()))
}

func (ctrl *Controller) reinvest(c tele.Context, args []string) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	ticker, from, to, err := telebotConverter.ParseReinvestArgs(args, ctrl.now())
	if err != nil {
		return c.Send("Пример: /reinvest KO, /reinvest KO 5y или /reinvest KO 2015-01-01 2024-01-01")
	}

	sim, err := ctrl.dividendService.Simulate(ctx, ticker, from, to, decimal.Zero)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	text := telebotConverter.SimulationResponse(sim)

	png, err := ctrl.dividendService.SimulationChart(ctx, sim)
	if err != nil {
		slog.Warn("simulation chart not sent", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(text)
	}

	return c.Send(&tele.Photo{File: tele.FromReader(bytes.NewReader(png)), Caption: text})
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	_ = c.Respond()

	file, err := ctrl.dividendService.ExportReport(ctx, c.Chat().ID)
	if err != nil {
		return ctrl.replyErr(ctx, c, err)
	}

	if file.Link != "" {
		return c.Send("Отчет слишком большой для телеграма, скачать: " + file.Link)
	}

	return c.Send(&tele.Document{File: tele.FromReader(bytes.NewReader(file.Bytes)), FileName: file.Name})
}

// replyErr picks a user message for err. Unknown errors are logged.
func (ctrl *Controller) replyErr(ctx context.Context, c tele.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCapital):
		return c.Send("Недостаточно свободного капитала: " + err.Error())
	case errors.Is(err, ledger.ErrDuplicateTicker):
		return c.Send("Эта акция уже есть в портфеле")
	case errors.Is(err, ledger.ErrNotFound):
		return c.Send("Такой позиции нет в портфеле")
	case errors.Is(err, service.ErrEmptyPortfolio):
		return c.Send("Портфель пуст, добавьте акцию: /buy KO 1000")
	case errors.Is(err, externalApi.ErrNotFound):
		return c.Send("Не удалось найти указанный тикер")
	case errors.Is(err, reinvest.ErrData):
		return c.Send("Биржевые данные по тикеру некорректны, попробуйте другой период")
	case errors.Is(err, reinvest.ErrInvalidInput):
		return c.Send("Не удалось построить симуляцию: " + err.Error())
	case errors.Is(err, service.ErrDataUnavailable):
		return c.Send("Нет данных: " + err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return c.Send("Некорректный ввод: " + err.Error())
	}

	slog.Error("request failed", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
	return c.Send(internalErrMsg)
}

func (ctrl *Controller) setState(ctx context.Context, c tele.Context, state model.State) error {
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return err
	}

	chatSession.State = state
	if err = ctrl.session.SetSession(ctx, c.Chat().ID, chatSession); err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("err", err.Error()))
		return err
	}
	return nil
}

func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, c.Chat().ID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
		return model.Session{}, err
	}
	return chatSession, nil
}
