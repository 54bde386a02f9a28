// Package bot реализует Telegram-интерфейс маркетплейса поверх telebot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/telebot.v3"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/notify"
)

const (
	pollTimeout    = 10 * time.Second
	requestTimeout = 10 * time.Second
)

// Service описывает операции сервиса, доступные из чата.
type Service interface {
	IsAdmin(userID int64) bool

	CreateUserIfAbsent(ctx context.Context, nu model.NewUser) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	SubmitItem(ctx context.Context, userID int64, cred model.Credential) (int64, error)
	RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, destination string) (int64, error)
	PaymentMethods(ctx context.Context, onlyActive bool) ([]model.PaymentMethod, error)
	RedeemPromo(ctx context.Context, code string, userID int64) (decimal.Decimal, error)
	ClaimDailyBonus(ctx context.Context, userID int64) (decimal.Decimal, error)
	ReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error)
	History(ctx context.Context, userID int64) (*model.History, error)
	OpenTicket(ctx context.Context, userID int64, message string) (int64, error)

	Stats(ctx context.Context) (*model.Stats, error)
	ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error)
	ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error)
	PendingTickets(ctx context.Context) ([]model.SupportTicket, error)
	ReviewSubmission(ctx context.Context, id int64, decision model.Decision, reason string) (*model.SubmissionReview, error)
	ReviewWithdrawal(ctx context.Context, id int64, decision model.Decision) (*model.Withdrawal, error)
	Settings(ctx context.Context) ([]model.Setting, error)
	AdjustSetting(ctx context.Context, key string, value decimal.Decimal) error
	AdminAdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error
	BanUser(ctx context.Context, userID int64) error
	UnbanUser(ctx context.Context, userID int64) error
	CreatePromo(ctx context.Context, code string, amount decimal.Decimal, uses int64) (*model.PromoCode, error)
	SetPromoActive(ctx context.Context, code string, active bool) error
	ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error)
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
	AddPaymentMethod(ctx context.Context, name string) (*model.PaymentMethod, error)
	SetPaymentMethodActive(ctx context.Context, name string, active bool) error
}

var (
	menuBtnAccount  = telebot.Btn{Text: "👤 Account"}
	menuBtnBonus    = telebot.Btn{Text: "🎁 Bonus"}
	menuBtnReferral = telebot.Btn{Text: "🤝 Referral"}
	menuBtnHistory  = telebot.Btn{Text: "📜 History"}
	menuBtnMethods  = telebot.Btn{Text: "💳 Methods"}
)

func newMenu() *telebot.ReplyMarkup {
	menu := &telebot.ReplyMarkup{ResizeKeyboard: true}
	menu.Reply(
		menu.Row(menuBtnAccount, menuBtnBonus),
		menu.Row(menuBtnReferral, menuBtnHistory),
		menu.Row(menuBtnMethods),
	)
	return menu
}

// Bot связывает Telegram с сервисом и доставляет уведомления.
type Bot struct {
	tb     *telebot.Bot
	svc    Service
	menu   *telebot.ReplyMarkup
	logger *zap.Logger
	now    func() time.Time
}

// New подключается к Telegram с указанным токеном.
func New(token string, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bot{
		menu:   newMenu(),
		logger: logger,
		now:    time.Now,
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:   token,
		Poller:  &telebot.LongPoller{Timeout: pollTimeout},
		OnError: b.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	b.tb = tb
	return b, nil
}

// Run регистрирует обработчики и принимает обновления до отмены ctx.
func (b *Bot) Run(ctx context.Context, svc Service) error {
	b.svc = svc
	b.registerHandlers()

	go func() {
		<-ctx.Done()
		b.tb.Stop()
	}()

	b.logger.Info("telegram bot started", zap.String("username", b.tb.Me.Username))
	b.tb.Start()
	b.logger.Info("telegram bot stopped")
	return nil
}

func (b *Bot) registerHandlers() {
	b.tb.Use(b.registerUser)

	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/account", b.handleAccount)
	b.tb.Handle("/sell", b.handleSell)
	b.tb.Handle("/withdraw", b.handleWithdraw)
	b.tb.Handle("/methods", b.handleMethods)
	b.tb.Handle("/redeem", b.handleRedeem)
	b.tb.Handle("/bonus", b.handleBonus)
	b.tb.Handle("/referral", b.handleReferral)
	b.tb.Handle("/history", b.handleHistory)
	b.tb.Handle("/support", b.handleSupport)

	b.tb.Handle(&menuBtnAccount, b.handleAccount)
	b.tb.Handle(&menuBtnBonus, b.handleBonus)
	b.tb.Handle(&menuBtnReferral, b.handleReferral)
	b.tb.Handle(&menuBtnHistory, b.handleHistory)
	b.tb.Handle(&menuBtnMethods, b.handleMethods)

	admin := b.tb.Group()
	admin.Use(b.adminOnly)
	admin.Handle("/stats", b.handleStats)
	admin.Handle("/pending", b.handlePending)
	admin.Handle("/approve", b.reviewSubmission(model.DecisionApprove))
	admin.Handle("/reject", b.reviewSubmission(model.DecisionReject))
	admin.Handle("/repend", b.reviewSubmission(model.DecisionRepend))
	admin.Handle("/pay", b.reviewWithdrawal(model.DecisionApprove))
	admin.Handle("/decline", b.reviewWithdrawal(model.DecisionReject))
	admin.Handle("/setting", b.handleSetting)
	admin.Handle("/addbal", b.handleAddBalance)
	admin.Handle("/ban", b.handleBan(true))
	admin.Handle("/unban", b.handleBan(false))
	admin.Handle("/promo", b.handlePromo)
	admin.Handle("/promooff", b.handlePromoOff)
	admin.Handle("/reply", b.handleReply)
	admin.Handle("/find", b.handleFind)
	admin.Handle("/method", b.handleMethod)
}

// registerUser создаёт пользователя при первом обращении. Код приглашения берётся из /start.
func (b *Bot) registerUser(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil || sender.IsBot {
			return nil
		}

		nu := model.NewUser{ID: sender.ID, Username: sender.Username, FirstName: sender.FirstName}
		if msg := c.Message(); msg != nil && isStart(msg.Text) {
			nu.ReferralCode = msg.Payload
		}

		ctx, cancel := b.context()
		defer cancel()
		if _, err := b.svc.CreateUserIfAbsent(ctx, nu); err != nil {
			return b.replyError(c, err)
		}
		return next(c)
	}
}

func (b *Bot) adminOnly(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if !b.svc.IsAdmin(c.Sender().ID) {
			b.logger.Warn("admin command denied",
				zap.Int64("userID", c.Sender().ID),
				zap.String("text", c.Text()),
			)
			return c.Send("⛔ This command is for administrators only.")
		}
		return next(c)
	}
}

func (b *Bot) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// replyError отвечает пользователю понятным текстом, непредвиденные ошибки пишет в журнал.
func (b *Bot) replyError(c telebot.Context, err error) error {
	text, expected := userMessage(err, b.now())
	if !expected {
		b.logger.Error("command failed",
			zap.Int64("userID", c.Sender().ID),
			zap.String("text", c.Text()),
			zap.Error(err),
		)
	}
	return c.Send(text)
}

func (b *Bot) onError(err error, c telebot.Context) {
	fields := []zap.Field{zap.Error(err)}
	if c != nil && c.Sender() != nil {
		fields = append(fields, zap.Int64("userID", c.Sender().ID))
	}
	b.logger.Error("telegram handler error", fields...)
}

// SendEvent доставляет уведомление получателю события. Ошибка для пользователя,
// заблокировавшего бота, оборачивает notify.ErrUndeliverable.
func (b *Bot) SendEvent(_ context.Context, ev model.Event) error {
	_, err := b.tb.Send(telebot.ChatID(ev.UserID), RenderEvent(ev))
	if err == nil {
		return nil
	}
	if undeliverable(err) {
		return fmt.Errorf("%w: %v", notify.ErrUndeliverable, err)
	}
	return fmt.Errorf("send %s to %d: %w", ev.Kind, ev.UserID, err)
}

func undeliverable(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound) ||
		errors.Is(err, telebot.ErrKickedFromGroup)
}
