package tgbot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/dividend_helper_bot/config"
	"github.com/KotFed0t/dividend_helper_bot/data/session"
	"github.com/KotFed0t/dividend_helper_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/dividend_helper_bot/internal/model"
	"github.com/KotFed0t/dividend_helper_bot/internal/transport/telegram"
	customMW "github.com/KotFed0t/dividend_helper_bot/internal/transport/telegram/middleware"
	"github.com/KotFed0t/dividend_helper_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, chatID int64) (model.Session, error)
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	// plain text is an answer to the question the chat was last asked
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)

		chatSession, err := b.session.GetSession(ctx, c.Chat().ID)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("что-то пошло не так...")
		}

		c.Set("session", chatSession)

		switch chatSession.State {
		case model.ExpectingCapital:
			return b.ctrl.ProcessCapital(c)
		case model.ExpectingReinvestTicker:
			return b.ctrl.ProcessReinvest(c)
		default:
			return b.ctrl.Help(c)
		}
	})

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/help", b.ctrl.Help)
	b.bot.Handle("/capital", b.ctrl.InitCapital)
	b.bot.Handle("/quote", b.ctrl.Quote)
	b.bot.Handle("/buy", b.ctrl.Buy)
	b.bot.Handle("/remove", b.ctrl.Remove)
	b.bot.Handle("/portfolio", b.ctrl.Portfolio)
	b.bot.Handle("/monthly", b.ctrl.Monthly)
	b.bot.Handle("/reinvest", b.ctrl.InitReinvest)
	b.bot.Handle("/gap", b.ctrl.Gap)
	b.bot.Handle("/report", b.ctrl.Report)

	b.bot.Handle(&telebotConverter.BtnMonthlyChart, b.ctrl.Monthly)
	b.bot.Handle(&telebotConverter.BtnGap, b.ctrl.Gap)
	b.bot.Handle(&telebotConverter.BtnReport, b.ctrl.Report)
}
