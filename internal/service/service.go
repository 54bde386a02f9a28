// Package service реализует бизнес-логику бота-маркетплейса: заявки, выводы, промокоды и бонусы.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/repository"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUserIfAbsent(ctx context.Context, u model.NewUser) (*model.User, bool, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error)
	ReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error)
	ApplyBalanceDelta(ctx context.Context, userID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error
	SetBanned(ctx context.Context, userID int64, banned bool) error
	ClaimDailyBonus(ctx context.Context, userID int64, amount decimal.Decimal, now time.Time, window time.Duration) (time.Time, error)

	CreateSubmission(ctx context.Context, userID int64, cred model.Credential, amount decimal.Decimal) (int64, error)
	GetSubmission(ctx context.Context, id int64) (*model.Submission, error)
	ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error)
	ListUserSubmissions(ctx context.Context, userID int64) ([]model.Submission, error)
	ReviewSubmission(ctx context.Context, id int64, to model.SubmissionStatus, reason *string, commissionRate decimal.Decimal) (*model.SubmissionReview, error)

	CreateWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, number string) (int64, error)
	GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error)
	ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error)
	ListUserWithdrawals(ctx context.Context, userID int64) ([]model.Withdrawal, error)
	ReviewWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus) (*model.Withdrawal, error)

	CreatePromo(ctx context.Context, p model.PromoCode) error
	GetPromo(ctx context.Context, code string) (*model.PromoCode, error)
	SetPromoActive(ctx context.Context, code string, active bool) error
	RedeemPromo(ctx context.Context, code string, userID int64) (decimal.Decimal, error)

	GetSetting(ctx context.Context, key model.SettingKey) (decimal.Decimal, error)
	SetSetting(ctx context.Context, key model.SettingKey, value decimal.Decimal) error
	ListSettings(ctx context.Context) ([]model.Setting, error)

	ListPaymentMethods(ctx context.Context, onlyActive bool) ([]model.PaymentMethod, error)
	AddPaymentMethod(ctx context.Context, name string) (*model.PaymentMethod, error)
	SetPaymentMethodActive(ctx context.Context, name string, active bool) error

	CreateTicket(ctx context.Context, userID int64, message string) (int64, error)
	GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error)
	ListPendingTickets(ctx context.Context) ([]model.SupportTicket, error)
	ListUserTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error)
	ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error)

	ListBalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// Notifier доставляет пользователю уведомление о результате операции.
type Notifier interface {
	Notify(ctx context.Context, ev model.Event) error
}

var (
	// ErrBanned возвращается для любых изменяющих операций заблокированного пользователя.
	// Хранилище повторяет проверку внутри транзакции записи.
	ErrBanned = repository.ErrBanned
	// ErrBelowMinimum возвращается, если сумма вывода меньше min_withdraw.
	ErrBelowMinimum = errors.New("amount is below minimum withdrawal")
	// ErrUnknownKey возвращается для неизвестного ключа настройки.
	ErrUnknownKey = errors.New("unknown setting key")
	// ErrUnknownMethod возвращается для неизвестного или выключенного способа выплаты.
	ErrUnknownMethod = errors.New("unknown payment method")
	// ErrEmptyMessage возвращается для пустого текста обращения или ответа.
	ErrEmptyMessage = errors.New("empty message")
	// ErrInvalidName возвращается для пустого названия способа выплаты.
	ErrInvalidName = errors.New("invalid name")

	ErrInvalidAmount     = validation.ErrInvalidAmount
	ErrInvalidCredential = validation.ErrInvalidCredential
)

// AlreadyClaimedError сообщает, когда ежедневный бонус станет снова доступен.
type AlreadyClaimedError struct {
	NextAt time.Time
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("daily bonus already claimed, next claim at %s", e.NextAt.Format(time.RFC3339))
}

func (e *AlreadyClaimedError) Unwrap() error {
	return repository.ErrAlreadyClaimed
}

const (
	bonusWindow      = 24 * time.Hour
	defaultPageLimit = 20
	maxPageLimit     = 100
	searchLimit      = 20
)

// Service содержит бизнес-логику бота.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
	admins   map[int64]struct{}
	now      func() time.Time
}

// NewService создаёт сервис. notifier может быть nil, тогда уведомления не отправляются.
func NewService(repo Repository, notifier Notifier, logger *zap.Logger, adminIDs []int64) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		admins:   admins,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IsAdmin сообщает, входит ли пользователь в список администраторов.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// AdminIDs возвращает идентификаторы администраторов.
func (s *Service) AdminIDs() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) notify(ctx context.Context, ev model.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("userID", ev.UserID),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyAdmins(ctx context.Context, ev model.Event) {
	for id := range s.admins {
		ev.UserID = id
		s.notify(ctx, ev)
	}
}

// setting возвращает значение настройки, подставляя значение по умолчанию для отсутствующего ключа.
func (s *Service) setting(ctx context.Context, key model.SettingKey) (decimal.Decimal, error) {
	v, err := s.repo.GetSetting(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return key.Default(), nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

// activeUser загружает пользователя и проверяет, что он не заблокирован.
func (s *Service) activeUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.IsBanned {
		return nil, ErrBanned
	}
	return u, nil
}

// CreateUserIfAbsent регистрирует пользователя при первом обращении.
// Неизвестный код приглашения и приглашение самого себя игнорируются.
func (s *Service) CreateUserIfAbsent(ctx context.Context, nu model.NewUser) (*model.User, error) {
	nu.IsAdmin = s.IsAdmin(nu.ID)
	nu.ReferrerID = nil

	if code := strings.ToUpper(strings.TrimSpace(nu.ReferralCode)); code != "" {
		ref, err := s.repo.GetUserByReferralCode(ctx, code)
		switch {
		case err == nil && ref.ID != nu.ID:
			nu.ReferrerID = &ref.ID
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("resolve referral code: %w", err)
		}
	}

	u, created, err := s.repo.CreateUserIfAbsent(ctx, nu)
	if err != nil {
		return nil, err
	}
	if created {
		fields := []zap.Field{zap.Int64("userID", u.ID)}
		if u.ReferredBy != nil {
			fields = append(fields, zap.Int64("referrerID", *u.ReferredBy))
		}
		s.logger.Info("user registered", fields...)
	}
	return u, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// SubmitItem принимает аккаунт на продажу по текущей цене.
func (s *Service) SubmitItem(ctx context.Context, userID int64, cred model.Credential) (int64, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return 0, err
	}

	cred, err := validation.NormalizeCredential(cred.Login, cred.Password)
	if err != nil {
		return 0, err
	}

	price, err := s.setting(ctx, model.SettingGmailPrice)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.CreateSubmission(ctx, userID, cred, price)
	if err != nil {
		return 0, err
	}

	s.logger.Info("submission created", zap.Int64("userID", userID), zap.Int64("submissionID", id))
	s.notifyAdmins(ctx, model.Event{Kind: model.EventSubmissionReceived, RefID: id, Amount: price, Text: cred.Login})
	return id, nil
}

// ReviewSubmission применяет решение администратора к заявке. Повторное решение не меняет баланс.
func (s *Service) ReviewSubmission(ctx context.Context, id int64, decision model.Decision, reason string) (*model.SubmissionReview, error) {
	to, ok := decision.SubmissionTarget()
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", repository.ErrInvalidState, decision)
	}

	rate, err := s.setting(ctx, model.SettingReferralCommission)
	if err != nil {
		return nil, err
	}

	var reasonPtr *string
	if r := strings.TrimSpace(reason); r != "" {
		reasonPtr = &r
	}

	review, err := s.repo.ReviewSubmission(ctx, id, to, reasonPtr, rate)
	if err != nil {
		return nil, err
	}
	if !review.Changed {
		return review, nil
	}

	sub := review.Submission
	s.logger.Info("submission reviewed",
		zap.Int64("submissionID", sub.ID),
		zap.String("from", string(review.Previous)),
		zap.String("to", string(sub.Status)),
	)

	switch sub.Status {
	case model.SubmissionSuccess:
		s.notify(ctx, model.Event{Kind: model.EventSubmissionApproved, UserID: sub.UserID, RefID: sub.ID, Amount: sub.Amount, Text: sub.Login})
	case model.SubmissionRejected:
		s.notify(ctx, model.Event{Kind: model.EventSubmissionRejected, UserID: sub.UserID, RefID: sub.ID, Amount: sub.Amount, Text: deref(sub.RejectReason)})
	}
	return review, nil
}

// RequestWithdrawal создаёт запрос на вывод, резервируя сумму на балансе.
func (s *Service) RequestWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, destination string) (int64, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return 0, err
	}

	if !amount.IsPositive() {
		return 0, ErrInvalidAmount
	}
	amount = amount.Round(2)

	minimum, err := s.setting(ctx, model.SettingMinWithdraw)
	if err != nil {
		return 0, err
	}
	if amount.LessThan(minimum) {
		return 0, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, minimum)
	}

	name, err := s.resolveMethod(ctx, method)
	if err != nil {
		return 0, err
	}

	number, err := validation.NormalizeDestination(destination)
	if err != nil {
		return 0, err
	}

	id, err := s.repo.CreateWithdrawal(ctx, userID, amount, name, number)
	if err != nil {
		return 0, err
	}

	s.logger.Info("withdrawal requested",
		zap.Int64("userID", userID),
		zap.Int64("withdrawalID", id),
		zap.String("amount", amount.String()),
		zap.String("method", name),
	)
	s.notifyAdmins(ctx, model.Event{Kind: model.EventWithdrawalRequested, RefID: id, Amount: amount, Text: name})
	return id, nil
}

func (s *Service) resolveMethod(ctx context.Context, method string) (string, error) {
	method = strings.TrimSpace(method)
	methods, err := s.repo.ListPaymentMethods(ctx, true)
	if err != nil {
		return "", fmt.Errorf("list payment methods: %w", err)
	}
	for _, m := range methods {
		if strings.EqualFold(m.Name, method) {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, method)
}

// ReviewWithdrawal завершает запрос на вывод решением администратора.
func (s *Service) ReviewWithdrawal(ctx context.Context, id int64, decision model.Decision) (*model.Withdrawal, error) {
	to, ok := decision.WithdrawalTarget()
	if !ok {
		return nil, fmt.Errorf("%w: unknown decision %q", repository.ErrInvalidState, decision)
	}

	w, err := s.repo.ReviewWithdrawal(ctx, id, to)
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal reviewed", zap.Int64("withdrawalID", w.ID), zap.String("status", string(w.Status)))

	kind := model.EventWithdrawalPaid
	if w.Status == model.WithdrawalRejected {
		kind = model.EventWithdrawalRejected
	}
	s.notify(ctx, model.Event{Kind: kind, UserID: w.UserID, RefID: w.ID, Amount: w.Amount, Text: w.Method})
	return w, nil
}

// RedeemPromo активирует промокод и возвращает начисленную сумму.
func (s *Service) RedeemPromo(ctx context.Context, code string, userID int64) (decimal.Decimal, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return decimal.Zero, err
	}

	normalized, err := validation.NormalizePromoCode(code)
	if err != nil {
		return decimal.Zero, repository.ErrCodeNotFound
	}

	amount, err := s.repo.RedeemPromo(ctx, normalized, userID)
	if err != nil {
		return decimal.Zero, err
	}

	s.logger.Info("promo redeemed", zap.Int64("userID", userID), zap.String("code", normalized))
	return amount, nil
}

// ClaimDailyBonus начисляет ежедневный бонус. Повторная попытка раньше чем через сутки
// возвращает *AlreadyClaimedError.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID int64) (decimal.Decimal, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return decimal.Zero, err
	}

	amount, err := s.setting(ctx, model.SettingDailyBonus)
	if err != nil {
		return decimal.Zero, err
	}
	amount = amount.Round(2)

	next, err := s.repo.ClaimDailyBonus(ctx, userID, amount, s.now().UTC(), bonusWindow)
	if errors.Is(err, repository.ErrAlreadyClaimed) {
		return decimal.Zero, &AlreadyClaimedError{NextAt: next}
	}
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// AdjustSetting изменяет настройку. Значение должно быть неотрицательным и хранится с точностью до сотых.
func (s *Service) AdjustSetting(ctx context.Context, key string, value decimal.Decimal) error {
	k, ok := model.ParseSettingKey(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if value.IsNegative() {
		return ErrInvalidAmount
	}
	value = value.Round(2)

	if err := s.repo.SetSetting(ctx, k, value); err != nil {
		return err
	}
	s.logger.Info("setting changed", zap.String("key", string(k)), zap.String("value", value.String()))
	return nil
}

// Settings возвращает все настройки, подставляя значения по умолчанию для отсутствующих.
func (s *Service) Settings(ctx context.Context) ([]model.Setting, error) {
	stored, err := s.repo.ListSettings(ctx)
	if err != nil {
		return nil, err
	}

	byKey := make(map[model.SettingKey]decimal.Decimal, len(stored))
	for _, st := range stored {
		byKey[st.Key] = st.Value
	}

	keys := model.SettingKeys()
	res := make([]model.Setting, 0, len(keys))
	for _, k := range keys {
		v, ok := byKey[k]
		if !ok {
			v = k.Default()
		}
		res = append(res, model.Setting{Key: k, Value: v})
	}
	return res, nil
}

// AdminAdjustBalance меняет баланс пользователя на delta, положительный или отрицательный.
func (s *Service) AdminAdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error {
	delta = delta.Round(2)
	if delta.IsZero() {
		return ErrInvalidAmount
	}
	if err := s.repo.ApplyBalanceDelta(ctx, userID, delta, model.EntryAdminAdjust, "admin"); err != nil {
		return err
	}
	s.logger.Info("balance adjusted", zap.Int64("userID", userID), zap.String("delta", delta.String()))
	return nil
}

// BanUser блокирует пользователя.
func (s *Service) BanUser(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, true); err != nil {
		return err
	}
	s.logger.Info("user banned", zap.Int64("userID", userID))
	return nil
}

// UnbanUser снимает блокировку.
func (s *Service) UnbanUser(ctx context.Context, userID int64) error {
	if err := s.repo.SetBanned(ctx, userID, false); err != nil {
		return err
	}
	s.logger.Info("user unbanned", zap.Int64("userID", userID))
	return nil
}

// CreatePromo создаёт активный промокод с заданным числом активаций.
func (s *Service) CreatePromo(ctx context.Context, code string, amount decimal.Decimal, uses int64) (*model.PromoCode, error) {
	normalized, err := validation.NormalizePromoCode(code)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() || uses <= 0 {
		return nil, ErrInvalidAmount
	}

	p := model.PromoCode{Code: normalized, Amount: amount.Round(2), UsesLeft: uses, IsActive: true}
	if err := s.repo.CreatePromo(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("promo created", zap.String("code", normalized), zap.Int64("uses", uses))
	return &p, nil
}

// SetPromoActive включает или выключает промокод.
func (s *Service) SetPromoActive(ctx context.Context, code string, active bool) error {
	normalized, err := validation.NormalizePromoCode(code)
	if err != nil {
		return repository.ErrNotFound
	}
	return s.repo.SetPromoActive(ctx, normalized, active)
}

// OpenTicket создаёт обращение в поддержку.
func (s *Service) OpenTicket(ctx context.Context, userID int64, message string) (int64, error) {
	if _, err := s.activeUser(ctx, userID); err != nil {
		return 0, err
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return 0, ErrEmptyMessage
	}

	id, err := s.repo.CreateTicket(ctx, userID, message)
	if err != nil {
		return 0, err
	}
	s.notifyAdmins(ctx, model.Event{Kind: model.EventTicketOpened, RefID: id, Text: message})
	return id, nil
}

// ReplyTicket отвечает на обращение и закрывает его.
func (s *Service) ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, ErrEmptyMessage
	}

	t, err := s.repo.ReplyTicket(ctx, id, reply)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, model.Event{Kind: model.EventTicketReplied, UserID: t.UserID, RefID: t.ID, Text: reply})
	return t, nil
}

// PendingTickets возвращает обращения без ответа.
func (s *Service) PendingTickets(ctx context.Context) ([]model.SupportTicket, error) {
	return s.repo.ListPendingTickets(ctx)
}

// ReferralStats возвращает статистику приглашений пользователя.
func (s *Service) ReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	return s.repo.ReferralStats(ctx, userID)
}

// Stats возвращает сводку для администратора.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	return s.repo.Stats(ctx)
}

// SendPendingDigest отправляет администраторам сводку, если есть что проверять.
func (s *Service) SendPendingDigest(ctx context.Context) error {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return err
	}
	if !stats.HasPending() {
		return nil
	}
	s.notifyAdmins(ctx, model.Event{Kind: model.EventPendingDigest, Stats: stats})
	return nil
}

// PaymentMethods возвращает способы выплаты.
func (s *Service) PaymentMethods(ctx context.Context, onlyActive bool) ([]model.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx, onlyActive)
}

// AddPaymentMethod добавляет способ выплаты.
func (s *Service) AddPaymentMethod(ctx context.Context, name string) (*model.PaymentMethod, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	return s.repo.AddPaymentMethod(ctx, name)
}

// SetPaymentMethodActive включает или выключает способ выплаты.
func (s *Service) SetPaymentMethodActive(ctx context.Context, name string, active bool) error {
	return s.repo.SetPaymentMethodActive(ctx, strings.TrimSpace(name), active)
}

// SearchUsers ищет пользователей по id, username или имени.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return s.repo.SearchUsers(ctx, query, searchLimit)
}

// ListSubmissions возвращает страницу заявок. Пустой статус означает все заявки.
func (s *Service) ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidState, status)
	}
	offset, limit = page(offset, limit)
	return s.repo.ListSubmissions(ctx, status, offset, limit)
}

// ListWithdrawals возвращает страницу запросов на вывод.
func (s *Service) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidState, status)
	}
	offset, limit = page(offset, limit)
	return s.repo.ListWithdrawals(ctx, status, offset, limit)
}

func page(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return offset, limit
}

// History возвращает заявки, выводы и обращения пользователя.
func (s *Service) History(ctx context.Context, userID int64) (*model.History, error) {
	subs, err := s.repo.ListUserSubmissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	ws, err := s.repo.ListUserWithdrawals(ctx, userID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.repo.ListUserTickets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.History{Submissions: subs, Withdrawals: ws, Tickets: tickets}, nil
}

// BalanceEntries возвращает журнал изменений баланса пользователя.
func (s *Service) BalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error) {
	return s.repo.ListBalanceEntries(ctx, userID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
