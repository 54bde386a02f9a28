package bot

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/telebot.v3"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

const pendingListLimit = 10

func (b *Bot) handleStats(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	stats, err := b.svc.Stats(ctx)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderStats(stats))
}

func (b *Bot) handlePending(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	subs, err := b.svc.ListSubmissions(ctx, model.SubmissionPending, 0, pendingListLimit)
	if err != nil {
		return b.replyError(c, err)
	}
	ws, err := b.svc.ListWithdrawals(ctx, model.WithdrawalPending, 0, pendingListLimit)
	if err != nil {
		return b.replyError(c, err)
	}
	tickets, err := b.svc.PendingTickets(ctx)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderPending(subs, ws, tickets))
}

func renderPending(subs []model.Submission, ws []model.Withdrawal, tickets []model.SupportTicket) string {
	if len(subs) == 0 && len(ws) == 0 && len(tickets) == 0 {
		return "✅ Nothing to review."
	}

	var sb strings.Builder
	for _, s := range subs {
		fmt.Fprintf(&sb, "📧 #%d user %d: %s / %s (%s)\n", s.ID, s.UserID, s.Login, s.Password, formatMoney(s.Amount))
	}
	for _, w := range ws {
		fmt.Fprintf(&sb, "💸 #%d user %d: %s via %s to %s\n", w.ID, w.UserID, formatMoney(w.Amount), w.Method, w.Number)
	}
	for _, t := range tickets[:min(len(tickets), pendingListLimit)] {
		fmt.Fprintf(&sb, "📩 #%d user %d: %s\n", t.ID, t.UserID, t.Message)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) reviewSubmission(decision model.Decision) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		idArg, reason := splitFirst(c.Message().Payload)
		id, err := parseID(idArg)
		if err != nil {
			return c.Send("Usage: /approve, /reject or /repend <submission id> [reason]")
		}

		ctx, cancel := b.context()
		defer cancel()

		review, err := b.svc.ReviewSubmission(ctx, id, decision, reason)
		if err != nil {
			return b.replyError(c, err)
		}
		if !review.Changed {
			return c.Send(fmt.Sprintf("Submission #%d is already %s.", id, review.Submission.Status))
		}

		b.logger.Info("admin reviewed submission",
			zap.Int64("adminID", c.Sender().ID),
			zap.Int64("submissionID", id),
			zap.String("decision", string(decision)),
		)
		return c.Send(fmt.Sprintf("Submission #%d: %s → %s.", id, review.Previous, review.Submission.Status))
	}
}

func (b *Bot) reviewWithdrawal(decision model.Decision) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /pay <withdrawal id> or /decline <withdrawal id>")
		}
		id, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}

		ctx, cancel := b.context()
		defer cancel()

		w, err := b.svc.ReviewWithdrawal(ctx, id, decision)
		if err != nil {
			return b.replyError(c, err)
		}

		b.logger.Info("admin reviewed withdrawal",
			zap.Int64("adminID", c.Sender().ID),
			zap.Int64("withdrawalID", id),
			zap.String("decision", string(decision)),
		)
		return c.Send(fmt.Sprintf("Withdrawal #%d of %s is now %s.", w.ID, formatMoney(w.Amount), w.Status))
	}
}

func (b *Bot) handleSetting(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	args := c.Args()
	switch len(args) {
	case 0:
		settings, err := b.svc.Settings(ctx)
		if err != nil {
			return b.replyError(c, err)
		}
		return c.Send(renderSettings(settings))
	case 2:
		value, err := validation.ParseSettingValue(args[1])
		if err != nil {
			return b.replyError(c, err)
		}
		if err := b.svc.AdjustSetting(ctx, args[0], value); err != nil {
			return b.replyError(c, err)
		}
		return c.Send(fmt.Sprintf("⚙️ %s = %s", args[0], value.String()))
	}
	return c.Send("Usage: /setting <key> <value>")
}

func (b *Bot) handleAddBalance(c telebot.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /addbal <user id> <amount>, negative amount debits")
	}
	userID, err := parseID(args[0])
	if err != nil {
		return c.Send(err.Error())
	}
	delta, err := validation.ParseSignedAmount(args[1])
	if err != nil {
		return b.replyError(c, err)
	}

	ctx, cancel := b.context()
	defer cancel()

	if err := b.svc.AdminAdjustBalance(ctx, userID, delta); err != nil {
		return b.replyError(c, err)
	}
	u, err := b.svc.GetUser(ctx, userID)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("Balance of %d is now %s.", userID, formatMoney(u.Balance)))
}

func (b *Bot) handleBan(banned bool) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /ban <user id> or /unban <user id>")
		}
		userID, err := parseID(args[0])
		if err != nil {
			return c.Send(err.Error())
		}

		ctx, cancel := b.context()
		defer cancel()

		if banned {
			err = b.svc.BanUser(ctx, userID)
		} else {
			err = b.svc.UnbanUser(ctx, userID)
		}
		if err != nil {
			return b.replyError(c, err)
		}
		if banned {
			return c.Send(fmt.Sprintf("🚫 User %d banned.", userID))
		}
		return c.Send(fmt.Sprintf("✅ User %d unbanned.", userID))
	}
}

func (b *Bot) handlePromo(c telebot.Context) error {
	args := c.Args()
	if len(args) != 3 {
		return c.Send("Usage: /promo <code> <amount> <uses>")
	}
	amount, err := validation.ParseAmount(args[1])
	if err != nil {
		return b.replyError(c, err)
	}
	uses, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return c.Send("Uses must be a whole number.")
	}

	ctx, cancel := b.context()
	defer cancel()

	p, err := b.svc.CreatePromo(ctx, args[0], amount, uses)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("🎟 Promo %s: %s × %d uses.", p.Code, formatMoney(p.Amount), p.UsesLeft))
}

func (b *Bot) handlePromoOff(c telebot.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /promooff <code>")
	}

	ctx, cancel := b.context()
	defer cancel()

	if err := b.svc.SetPromoActive(ctx, args[0], false); err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("Promo %s disabled.", strings.ToUpper(args[0])))
}

func (b *Bot) handleReply(c telebot.Context) error {
	idArg, text := splitFirst(c.Message().Payload)
	id, err := parseID(idArg)
	if err != nil || text == "" {
		return c.Send("Usage: /reply <ticket id> <text>")
	}

	ctx, cancel := b.context()
	defer cancel()

	t, err := b.svc.ReplyTicket(ctx, id, text)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("📩 Ticket #%d answered and closed.", t.ID))
}

func (b *Bot) handleFind(c telebot.Context) error {
	query := strings.TrimSpace(c.Message().Payload)
	if query == "" {
		return c.Send("Usage: /find <id, username or name>")
	}

	ctx, cancel := b.context()
	defer cancel()

	users, err := b.svc.SearchUsers(ctx, query)
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(renderUsers(users))
}

func (b *Bot) handleMethod(c telebot.Context) error {
	ctx, cancel := b.context()
	defer cancel()

	action, name := splitFirst(c.Message().Payload)
	switch {
	case action == "":
		methods, err := b.svc.PaymentMethods(ctx, false)
		if err != nil {
			return b.replyError(c, err)
		}
		return c.Send(renderMethods(methods) + "\nManage: /method add|on|off <name>")
	case name == "":
		return c.Send("Usage: /method add|on|off <name>")
	}

	var err error
	switch action {
	case "add":
		_, err = b.svc.AddPaymentMethod(ctx, name)
	case "on":
		err = b.svc.SetPaymentMethodActive(ctx, name, true)
	case "off":
		err = b.svc.SetPaymentMethodActive(ctx, name, false)
	default:
		return c.Send("Usage: /method add|on|off <name>")
	}
	if err != nil {
		return b.replyError(c, err)
	}
	return c.Send(fmt.Sprintf("💳 %s: %s done.", name, action))
}
