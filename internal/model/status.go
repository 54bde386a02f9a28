package model

// SubmissionStatus описывает статус проверки заявки.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionSuccess  SubmissionStatus = "success"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Valid сообщает, известен ли статус.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionPending, SubmissionSuccess, SubmissionRejected:
		return true
	}
	return false
}

// WithdrawalStatus описывает статус вывода средств.
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalSuccess  WithdrawalStatus = "success"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Valid сообщает, известен ли статус.
func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalSuccess, WithdrawalRejected:
		return true
	}
	return false
}

// TicketStatus описывает статус обращения в поддержку.
type TicketStatus string

const (
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
)

// Decision описывает решение администратора по заявке или выводу.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionRepend  Decision = "repend"
)

// SubmissionTarget возвращает статус заявки, в который переводит решение.
func (d Decision) SubmissionTarget() (SubmissionStatus, bool) {
	switch d {
	case DecisionApprove:
		return SubmissionSuccess, true
	case DecisionReject:
		return SubmissionRejected, true
	case DecisionRepend:
		return SubmissionPending, true
	}
	return "", false
}

// WithdrawalTarget возвращает статус вывода, в который переводит решение.
// Возврат вывода в ожидание не предусмотрен.
func (d Decision) WithdrawalTarget() (WithdrawalStatus, bool) {
	switch d {
	case DecisionApprove:
		return WithdrawalSuccess, true
	case DecisionReject:
		return WithdrawalRejected, true
	}
	return "", false
}

// LedgerEffect описывает влияние перехода заявки на баланс владельца.
type LedgerEffect int

const (
	EffectNone   LedgerEffect = 0
	EffectCredit LedgerEffect = 1
	EffectDebit  LedgerEffect = -1
)

// SubmissionEffect определяет проводку для перехода заявки from -> to.
// Начисление происходит только при входе в success, списание только при выходе из него.
func SubmissionEffect(from, to SubmissionStatus) LedgerEffect {
	switch {
	case from == to:
		return EffectNone
	case to == SubmissionSuccess:
		return EffectCredit
	case from == SubmissionSuccess:
		return EffectDebit
	default:
		return EffectNone
	}
}

// WithdrawalTransitionAllowed сообщает, допустим ли переход вывода from -> to.
func WithdrawalTransitionAllowed(from, to WithdrawalStatus) bool {
	return from == WithdrawalPending && (to == WithdrawalSuccess || to == WithdrawalRejected)
}
