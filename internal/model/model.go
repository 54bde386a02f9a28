// Package model содержит доменные сущности бота-маркетплейса.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет пользователя бота. Баланс меняется только через журнал проводок.
type User struct {
	ID               int64
	Username         string
	FirstName        string
	Balance          decimal.Decimal
	GmailSellCount   int64
	TotalWithdraw    decimal.Decimal
	IsAdmin          bool
	IsBanned         bool
	LastDailyClaim   *time.Time
	JoinDate         time.Time
	ReferralCode     string
	ReferredBy       *int64
	ReferralEarnings decimal.Decimal
}

// NewUser содержит данные для регистрации пользователя при первом обращении.
type NewUser struct {
	ID        int64
	Username  string
	FirstName string
	// ReferralCode приходит из /start, сервис разрешает его в ReferrerID.
	ReferralCode string
	// ReferrerID проставляется один раз при создании.
	ReferrerID *int64
	IsAdmin    bool
}

// Credential описывает пару логин/пароль, передаваемую на продажу.
type Credential struct {
	Login    string
	Password string
}

// Submission описывает заявку на продажу аккаунта.
type Submission struct {
	ID           int64
	UserID       int64
	Login        string
	Password     string
	Amount       decimal.Decimal
	Status       SubmissionStatus
	RejectReason *string
	Commission   decimal.Decimal
	SubmittedAt  time.Time
}

// SubmissionReview возвращается хранилищем после смены статуса заявки.
type SubmissionReview struct {
	Submission *Submission
	Previous   SubmissionStatus
	Changed    bool
	// ReferrerID заполнен, если при переходе была начислена или списана комиссия.
	ReferrerID *int64
	Commission decimal.Decimal
}

// Withdrawal описывает запрос на вывод средств.
type Withdrawal struct {
	ID          int64
	UserID      int64
	Amount      decimal.Decimal
	Method      string
	Number      string
	Status      WithdrawalStatus
	RequestedAt time.Time
}

// PromoCode описывает промокод с ограниченным числом активаций.
type PromoCode struct {
	Code     string
	Amount   decimal.Decimal
	UsesLeft int64
	IsActive bool
}

// PaymentMethod описывает способ выплаты.
type PaymentMethod struct {
	ID       int64
	Name     string
	IsActive bool
}

// Setting содержит значение настройки.
type Setting struct {
	Key   SettingKey
	Value decimal.Decimal
}

// SupportTicket описывает обращение в поддержку.
type SupportTicket struct {
	ID        int64
	UserID    int64
	Message   string
	Reply     *string
	Status    TicketStatus
	CreatedAt time.Time
}

// EntryKind описывает источник проводки по балансу.
type EntryKind string

const (
	EntrySubmissionCredit   EntryKind = "submission_credit"
	EntrySubmissionReversal EntryKind = "submission_reversal"
	EntryReferralCommission EntryKind = "referral_commission"
	EntryReferralReversal   EntryKind = "referral_reversal"
	EntryWithdrawalReserve  EntryKind = "withdrawal_reserve"
	EntryWithdrawalRefund   EntryKind = "withdrawal_refund"
	EntryPromo              EntryKind = "promo"
	EntryDailyBonus         EntryKind = "daily_bonus"
	EntryAdminAdjust        EntryKind = "admin_adjust"
)

// BalanceEntry — запись журнала изменений баланса.
type BalanceEntry struct {
	ID        int64
	UserID    int64
	Delta     decimal.Decimal
	Kind      EntryKind
	Ref       string
	CreatedAt time.Time
}

// ReferralStats содержит статистику реферальной программы пользователя.
type ReferralStats struct {
	Code     string
	Count    int64
	Earnings decimal.Decimal
}

// Stats содержит сводку для администратора.
type Stats struct {
	TotalUsers         int64           `json:"total_users"`
	TotalBalance       decimal.Decimal `json:"total_balance"`
	TotalSold          int64           `json:"total_sold"`
	PendingSubmissions int64           `json:"pending_submissions"`
	PendingWithdrawals int64           `json:"pending_withdrawals"`
	PendingTickets     int64           `json:"pending_tickets"`
}

// HasPending сообщает, есть ли что-то, ожидающее решения администратора.
func (s Stats) HasPending() bool {
	return s.PendingSubmissions > 0 || s.PendingWithdrawals > 0 || s.PendingTickets > 0
}

// History объединяет заявки и выводы пользователя.
type History struct {
	Submissions []Submission
	Withdrawals []Withdrawal
	Tickets     []SupportTicket
}
