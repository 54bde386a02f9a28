package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/service"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

const helpText = `Sell Gmail accounts and withdraw your earnings.

/sell <gmail> <password> - submit an account
/withdraw <amount> <method> <number> - request a payout
/methods - payment methods
/account - your balance
/bonus - daily bonus
/redeem <code> - activate a promo code
/referral - your invite link
/history - your submissions and payouts
/support <message> - contact support`

func isStart(text string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd == "/start"
}

// splitFirst отделяет первое слово аргументов от остального текста.
func splitFirst(payload string) (string, string) {
	payload = strings.TrimSpace(payload)
	first, rest, _ := strings.Cut(payload, " ")
	return first, strings.TrimSpace(rest)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (b *Bot) handleStart(c telebot.Context) error {
	return c.Send("👋 Welcome to the Gmail marketplace!\n\n"+helpText, b.menu)
}

func (b *Bot) handleHelp(c telebot.Context) error {
	return c.Send(helpText, b.menu)
}

func (b *Bot) handleAccount(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	u, err := b.svc.GetUser(ctx, c.Sender().ID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderAccount(u))
}

func (b *Bot) handleSell(c telebot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /sell <gmail> <password>")
	}

	ctx, cancel := b.context()
	defer cancel()

	id, err := b.svc.SubmitItem(ctx, c.Sender().ID, model.Credential{Login: args[0], Password: args[1]})
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("📨 Submission #%d received. You will be notified after review.", id))
}

func (b *Bot) handleWithdraw(c telebot.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Usage: /withdraw <amount> <method> <number>\nSee /methods for available methods.")
	}

	ctx, cancel := b.context()
	defer cancel()

	amount, err := validation.ParseAmount(args[0])
	if err != nil {
		return b.replyError(c, b.banFirst(ctx, c.Sender().ID, err))
	}

	id, err := b.svc.RequestWithdrawal(ctx, c.Sender().ID, amount, args[1], args[2])
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("💸 Withdrawal #%d of %s requested. The amount is reserved until review.", id, formatMoney(amount)))
}

// banFirst подменяет ошибку разбора аргументов на ErrBanned для заблокированного пользователя.
func (b *Bot) banFirst(ctx context.Context, userID int64, err error) error {
	u, uerr := b.svc.GetUser(ctx, userID)
	if uerr == nil && u.IsBanned {
		return service.ErrBanned
	}
	return err
}

func (b *Bot) handleMethods(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	methods, err := b.svc.PaymentMethods(ctx, true)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderMethods(methods))
}

func (b *Bot) handleRedeem(c telebot.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /redeem <code>")
	}

	ctx, cancel := b.context()
	defer cancel()

	amount, err := b.svc.RedeemPromo(ctx, args[0], c.Sender().ID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("🎉 Promo code applied: %s added to your balance.", formatMoney(amount)))
}

func (b *Bot) handleBonus(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	amount, err := b.svc.ClaimDailyBonus(ctx, c.Sender().ID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("🎁 Daily bonus: %s added to your balance.", formatMoney(amount)))
}

func (b *Bot) handleReferral(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	stats, err := b.svc.ReferralStats(ctx, c.Sender().ID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderReferral(b.tb.Me.Username, stats))
}

func renderReferral(botName string, stats *model.ReferralStats) string {
	return fmt.Sprintf("🤝 Invite friends and earn a commission on every approved Gmail.\n\nLink: https://t.me/%s?start=%s\nInvited: %d\nEarned: %s",
		botName, stats.Code, stats.Count, formatMoney(stats.Earnings))
}

func (b *Bot) handleHistory(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	h, err := b.svc.History(ctx, c.Sender().ID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderHistory(h))
}

func (b *Bot) handleSupport(c telebot.Context) error {
	msg := strings.TrimSpace(c.Message().Payload)
	if msg == "" {
		return c.Send("Usage: /support <message>")
	}

	ctx, cancel := b.context()
	defer cancel()

	id, err := b.svc.OpenTicket(ctx, c.Sender().ID, msg)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("📩 Ticket #%d created. Support will reply here.", id))
}
