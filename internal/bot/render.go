package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/repository"
	"github.com/mmeshcher/gmailmart-bot/internal/service"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

const currency = "৳"

func formatMoney(d decimal.Decimal) string {
	return currency + d.StringFixed(2)
}

// RenderEvent формирует текст уведомления для получателя события.
func RenderEvent(ev model.Event) string {
	switch ev.Kind {
	case model.EventSubmissionApproved:
		return fmt.Sprintf("✅ Your Gmail %s (#%d) was approved. %s added to your balance.", ev.Text, ev.RefID, formatMoney(ev.Amount))
	case model.EventSubmissionRejected:
		msg := fmt.Sprintf("❌ Your submission #%d was rejected.", ev.RefID)
		if ev.Text != "" {
			msg += "\nReason: " + ev.Text
		}
		return msg
	case model.EventWithdrawalPaid:
		return fmt.Sprintf("💸 Withdrawal #%d of %s via %s has been paid.", ev.RefID, formatMoney(ev.Amount), ev.Text)
	case model.EventWithdrawalRejected:
		return fmt.Sprintf("⚠️ Withdrawal #%d of %s was rejected. The amount was returned to your balance.", ev.RefID, formatMoney(ev.Amount))
	case model.EventTicketReplied:
		return fmt.Sprintf("📩 Support replied to ticket #%d:\n%s", ev.RefID, ev.Text)
	case model.EventSubmissionReceived:
		return fmt.Sprintf("🆕 Submission #%d: %s (%s)\n/approve %d  /reject %d", ev.RefID, ev.Text, formatMoney(ev.Amount), ev.RefID, ev.RefID)
	case model.EventWithdrawalRequested:
		return fmt.Sprintf("🆕 Withdrawal #%d: %s via %s\n/pay %d  /decline %d", ev.RefID, formatMoney(ev.Amount), ev.Text, ev.RefID, ev.RefID)
	case model.EventTicketOpened:
		return fmt.Sprintf("🆕 Ticket #%d:\n%s\n/reply %d <text>", ev.RefID, ev.Text, ev.RefID)
	case model.EventPendingDigest:
		if ev.Stats == nil {
			return "Pending review: nothing."
		}
		return fmt.Sprintf("⏳ Pending review: %d submissions, %d withdrawals, %d tickets.",
			ev.Stats.PendingSubmissions, ev.Stats.PendingWithdrawals, ev.Stats.PendingTickets)
	}
	return ev.Text
}

// userMessage переводит ошибку сервиса в ответ пользователю. Второе значение false
// означает непредвиденную ошибку, которую нужно записать в журнал.
func userMessage(err error, now time.Time) (string, bool) {
	var claimed *service.AlreadyClaimedError
	switch {
	case errors.As(err, &claimed):
		return "🎁 You already claimed today's bonus. Next bonus " + humanize.RelTime(claimed.NextAt, now, "ago", "from now") + ".", true
	case errors.Is(err, service.ErrBanned):
		return "🚫 Your account is banned.", true
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "Insufficient balance.", true
	case errors.Is(err, service.ErrBelowMinimum):
		return "Amount is below the minimum withdrawal.", true
	case errors.Is(err, service.ErrUnknownMethod):
		return "Unknown payment method. See /methods.", true
	case errors.Is(err, validation.ErrInvalidAmount):
		return "Invalid amount.", true
	case errors.Is(err, validation.ErrInvalidCredential):
		return "Send a valid Gmail address and password: /sell <gmail> <password>", true
	case errors.Is(err, validation.ErrInvalidDestination):
		return "Invalid account number.", true
	case errors.Is(err, validation.ErrInvalidPromoCode):
		return "Invalid promo code format.", true
	case errors.Is(err, repository.ErrCodeNotFound):
		return "Invalid promo code.", true
	case errors.Is(err, repository.ErrCodeExhausted):
		return "This promo code has been fully used.", true
	case errors.Is(err, repository.ErrConflict):
		return "Already exists.", true
	case errors.Is(err, repository.ErrNotFound):
		return "Not found.", true
	case errors.Is(err, repository.ErrInvalidState):
		return "This request was already processed.", true
	case errors.Is(err, service.ErrUnknownKey):
		return "Unknown setting. Keys: " + settingKeys(), true
	case errors.Is(err, service.ErrEmptyMessage), errors.Is(err, service.ErrInvalidName):
		return "Message must not be empty.", true
	}
	return "Something went wrong, please try again later.", false
}

func settingKeys() string {
	keys := model.SettingKeys()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func renderAccount(u *model.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (ID %d)\n", displayName(u), u.ID)
	fmt.Fprintf(&b, "💰 Balance: %s\n", formatMoney(u.Balance))
	fmt.Fprintf(&b, "📧 Gmails sold: %d\n", u.GmailSellCount)
	fmt.Fprintf(&b, "💸 Total withdrawn: %s\n", formatMoney(u.TotalWithdraw))
	fmt.Fprintf(&b, "🤝 Referral earnings: %s\n", formatMoney(u.ReferralEarnings))
	fmt.Fprintf(&b, "📅 Joined: %s", u.JoinDate.Format("2006-01-02"))
	return b.String()
}

func displayName(u *model.User) string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	}
	return "user"
}

const historyLimit = 5

func renderHistory(h *model.History) string {
	if len(h.Submissions) == 0 && len(h.Withdrawals) == 0 && len(h.Tickets) == 0 {
		return "No history yet."
	}

	var b strings.Builder
	if len(h.Submissions) > 0 {
		b.WriteString("📧 Submissions:\n")
		for _, s := range h.Submissions[:min(len(h.Submissions), historyLimit)] {
			fmt.Fprintf(&b, "#%d %s %s %s\n", s.ID, s.Login, formatMoney(s.Amount), s.Status)
		}
	}
	if len(h.Withdrawals) > 0 {
		b.WriteString("💸 Withdrawals:\n")
		for _, w := range h.Withdrawals[:min(len(h.Withdrawals), historyLimit)] {
			fmt.Fprintf(&b, "#%d %s %s %s\n", w.ID, formatMoney(w.Amount), w.Method, w.Status)
		}
	}
	if len(h.Tickets) > 0 {
		b.WriteString("📩 Tickets:\n")
		for _, t := range h.Tickets[:min(len(h.Tickets), historyLimit)] {
			fmt.Fprintf(&b, "#%d %s\n", t.ID, t.Status)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStats(s *model.Stats) string {
	return fmt.Sprintf("📊 Users: %d\n💰 Total balance: %s\n📧 Sold: %d\n⏳ Pending: %d submissions, %d withdrawals, %d tickets",
		s.TotalUsers, formatMoney(s.TotalBalance), s.TotalSold,
		s.PendingSubmissions, s.PendingWithdrawals, s.PendingTickets)
}

func renderSettings(settings []model.Setting) string {
	var b strings.Builder
	b.WriteString("⚙️ Settings:\n")
	for _, s := range settings {
		fmt.Fprintf(&b, "%s = %s\n", s.Key, s.Value.String())
	}
	b.WriteString("Change: /setting <key> <value>")
	return b.String()
}

func renderMethods(methods []model.PaymentMethod) string {
	if len(methods) == 0 {
		return "No payment methods available."
	}
	names := make([]string, 0, len(methods))
	for _, m := range methods {
		name := m.Name
		if !m.IsActive {
			name += " (off)"
		}
		names = append(names, name)
	}
	return "💳 Payment methods: " + strings.Join(names, ", ")
}

func renderUsers(users []model.User) string {
	if len(users) == 0 {
		return "No users found."
	}
	var b strings.Builder
	for _, u := range users {
		status := ""
		if u.IsBanned {
			status = " 🚫"
		}
		fmt.Fprintf(&b, "%d %s %s%s\n", u.ID, displayName(&u), formatMoney(u.Balance), status)
	}
	return strings.TrimRight(b.String(), "\n")
}
