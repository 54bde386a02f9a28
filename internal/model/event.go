package model

import "github.com/shopspring/decimal"

// EventKind описывает тип уведомления пользователю.
type EventKind string

const (
	EventSubmissionApproved EventKind = "submission_approved"
	EventSubmissionRejected EventKind = "submission_rejected"
	EventWithdrawalPaid     EventKind = "withdrawal_paid"
	EventWithdrawalRejected EventKind = "withdrawal_rejected"
	EventTicketReplied      EventKind = "ticket_replied"
	EventPendingDigest      EventKind = "pending_digest"

	// События для администраторов о новых заявках.
	EventSubmissionReceived  EventKind = "submission_received"
	EventWithdrawalRequested EventKind = "withdrawal_requested"
	EventTicketOpened        EventKind = "ticket_opened"
)

// Event — результат операции, о котором нужно сообщить пользователю.
// Текст сообщения формирует транспорт.
type Event struct {
	Kind   EventKind       `json:"kind"`
	UserID int64           `json:"user_id"`
	RefID  int64           `json:"ref_id,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Text   string          `json:"text,omitempty"`
	Stats  *Stats          `json:"stats,omitempty"`
}
