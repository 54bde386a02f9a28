// Package handler содержит HTTP-обработчики административного API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/gmailmart-bot/internal/middleware"
	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/repository"
	"github.com/mmeshcher/gmailmart-bot/internal/service"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Stats(ctx context.Context) (*model.Stats, error)
	ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error)
	ReviewSubmission(ctx context.Context, id int64, decision model.Decision, reason string) (*model.SubmissionReview, error)
	ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error)
	ReviewWithdrawal(ctx context.Context, id int64, decision model.Decision) (*model.Withdrawal, error)
	Settings(ctx context.Context) ([]model.Setting, error)
	AdjustSetting(ctx context.Context, key string, value decimal.Decimal) error
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	SearchUsers(ctx context.Context, query string) ([]model.User, error)
	BalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error)
	AdminAdjustBalance(ctx context.Context, userID int64, delta decimal.Decimal) error
	BanUser(ctx context.Context, userID int64) error
	UnbanUser(ctx context.Context, userID int64) error
	CreatePromo(ctx context.Context, code string, amount decimal.Decimal, uses int64) (*model.PromoCode, error)
	PendingTickets(ctx context.Context) ([]model.SupportTicket, error)
	ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error)
}

// Handler реализует HTTP-обработчики административного API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку сервиса в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrUnknownKey):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrConflict), errors.Is(err, repository.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, repository.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, validation.ErrInvalidAmount),
		errors.Is(err, validation.ErrInvalidPromoCode),
		errors.Is(err, service.ErrEmptyMessage):
		status = http.StatusBadRequest
	default:
		h.logger.Error("admin api error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
	}
	http.Error(w, http.StatusText(status), status)
}

func badRequest(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// pageParams читает offset и limit. Пустые значения означают параметры по умолчанию.
func pageParams(r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	var offset, limit int
	var err error
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil {
			return 0, 0, false
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, false
		}
	}
	return offset, limit, true
}

// Healthz сообщает, что сервис запущен.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetStats возвращает сводку по пользователям и очередям проверки.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type submissionResponse struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Gmail        string          `json:"gmail"`
	Password     string          `json:"password"`
	Amount       decimal.Decimal `json:"amount"`
	Status       string          `json:"status"`
	RejectReason *string         `json:"reject_reason,omitempty"`
	SubmittedAt  string          `json:"submitted_at"`
}

func toSubmissionResponse(s *model.Submission) submissionResponse {
	return submissionResponse{
		ID:           s.ID,
		UserID:       s.UserID,
		Gmail:        s.Login,
		Password:     s.Password,
		Amount:       s.Amount,
		Status:       string(s.Status),
		RejectReason: s.RejectReason,
		SubmittedAt:  s.SubmittedAt.Format(time.RFC3339),
	}
}

// ListSubmissions возвращает страницу заявок с фильтром по статусу.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := pageParams(r)
	if !ok {
		badRequest(w)
		return
	}

	status := model.SubmissionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w)
		return
	}

	subs, err := h.service.ListSubmissions(r.Context(), status, offset, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]submissionResponse, 0, len(subs))
	for i := range subs {
		resp = append(resp, toSubmissionResponse(&subs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Decision model.Decision `json:"decision"`
	Reason   string         `json:"reason,omitempty"`
}

type reviewResponse struct {
	Submission submissionResponse `json:"submission"`
	Previous   string             `json:"previous"`
	Changed    bool               `json:"changed"`
}

// ReviewSubmission применяет решение администратора к заявке.
func (h *Handler) ReviewSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	if _, ok := req.Decision.SubmissionTarget(); !ok {
		badRequest(w)
		return
	}

	review, err := h.service.ReviewSubmission(r.Context(), id, req.Decision, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewResponse{
		Submission: toSubmissionResponse(review.Submission),
		Previous:   string(review.Previous),
		Changed:    review.Changed,
	})
}

type withdrawalResponse struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	Number      string          `json:"number"`
	Status      string          `json:"status"`
	RequestedAt string          `json:"requested_at"`
}

func toWithdrawalResponse(wd *model.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:          wd.ID,
		UserID:      wd.UserID,
		Amount:      wd.Amount,
		Method:      wd.Method,
		Number:      wd.Number,
		Status:      string(wd.Status),
		RequestedAt: wd.RequestedAt.Format(time.RFC3339),
	}
}

// ListWithdrawals возвращает страницу запросов на вывод.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	offset, limit, ok := pageParams(r)
	if !ok {
		badRequest(w)
		return
	}

	status := model.WithdrawalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w)
		return
	}

	ws, err := h.service.ListWithdrawals(r.Context(), status, offset, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]withdrawalResponse, 0, len(ws))
	for i := range ws {
		resp = append(resp, toWithdrawalResponse(&ws[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReviewWithdrawal выплачивает или отклоняет запрос на вывод.
func (h *Handler) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}
	if _, ok := req.Decision.WithdrawalTarget(); !ok {
		badRequest(w)
		return
	}

	wd, err := h.service.ReviewWithdrawal(r.Context(), id, req.Decision)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(wd))
}

// GetSettings возвращает все настройки.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.Settings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make(map[string]decimal.Decimal, len(settings))
	for _, s := range settings {
		resp[string(s.Key)] = s.Value
	}
	writeJSON(w, http.StatusOK, resp)
}

type settingRequest struct {
	Value decimal.Decimal `json:"value"`
}

// PutSetting изменяет значение настройки.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	if err := h.service.AdjustSetting(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type userResponse struct {
	ID               int64           `json:"id"`
	Username         string          `json:"username,omitempty"`
	FirstName        string          `json:"first_name,omitempty"`
	Balance          decimal.Decimal `json:"balance"`
	GmailSellCount   int64           `json:"gmail_sell_count"`
	TotalWithdraw    decimal.Decimal `json:"total_withdraw"`
	IsBanned         bool            `json:"is_banned"`
	ReferralCode     string          `json:"referral_code"`
	ReferredBy       *int64          `json:"referred_by,omitempty"`
	ReferralEarnings decimal.Decimal `json:"referral_earnings"`
	JoinDate         string          `json:"join_date"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		FirstName:        u.FirstName,
		Balance:          u.Balance,
		GmailSellCount:   u.GmailSellCount,
		TotalWithdraw:    u.TotalWithdraw,
		IsBanned:         u.IsBanned,
		ReferralCode:     u.ReferralCode,
		ReferredBy:       u.ReferredBy,
		ReferralEarnings: u.ReferralEarnings,
		JoinDate:         u.JoinDate.Format(time.RFC3339),
	}
}

// SearchUsers ищет пользователей по параметру q.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetUser возвращает пользователя.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type entryResponse struct {
	ID        int64           `json:"id"`
	Delta     decimal.Decimal `json:"delta"`
	Kind      string          `json:"kind"`
	Ref       string          `json:"ref"`
	CreatedAt string          `json:"created_at"`
}

// GetBalanceEntries возвращает журнал изменений баланса пользователя.
func (h *Handler) GetBalanceEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	entries, err := h.service.BalanceEntries(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, entryResponse{
			ID:        e.ID,
			Delta:     e.Delta,
			Kind:      string(e.Kind),
			Ref:       e.Ref,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceRequest struct {
	Delta decimal.Decimal `json:"delta"`
}

// AdjustBalance меняет баланс пользователя на delta.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	if err := h.service.AdminAdjustBalance(r.Context(), id, req.Delta); err != nil {
		h.writeError(w, r, err)
		return
	}

	adminID, _ := middleware.GetAdminIDFromContext(r.Context())
	h.logger.Info("balance adjusted via api",
		zap.Int64("adminID", adminID),
		zap.Int64("userID", id),
		zap.String("delta", req.Delta.String()),
	)

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Ban блокирует пользователя.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

// Unban снимает блокировку с пользователя.
func (h *Handler) Unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *Handler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var err error
	if banned {
		err = h.service.BanUser(r.Context(), id)
	} else {
		err = h.service.UnbanUser(r.Context(), id)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type promoRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
	Uses   int64           `json:"uses"`
}

type promoResponse struct {
	Code     string          `json:"code"`
	Amount   decimal.Decimal `json:"amount"`
	UsesLeft int64           `json:"uses_left"`
	IsActive bool            `json:"is_active"`
}

// CreatePromo создаёт промокод.
func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	p, err := h.service.CreatePromo(r.Context(), req.Code, req.Amount, req.Uses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, promoResponse{
		Code:     p.Code,
		Amount:   p.Amount,
		UsesLeft: p.UsesLeft,
		IsActive: p.IsActive,
	})
}

type ticketResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Message   string  `json:"message"`
	Reply     *string `json:"reply,omitempty"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

func toTicketResponse(t *model.SupportTicket) ticketResponse {
	return ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Message:   t.Message,
		Reply:     t.Reply,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
}

// PendingTickets возвращает обращения без ответа.
func (h *Handler) PendingTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.service.PendingTickets(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, toTicketResponse(&tickets[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type replyRequest struct {
	Reply string `json:"reply"`
}

// ReplyTicket отвечает на обращение.
func (h *Handler) ReplyTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w)
		return
	}

	t, err := h.service.ReplyTicket(r.Context(), id, req.Reply)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}
