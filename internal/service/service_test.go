package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
	"github.com/mmeshcher/gmailmart-bot/internal/repository"
	"github.com/mmeshcher/gmailmart-bot/internal/validation"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) kinds() []model.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]model.EventKind, 0, len(n.events))
	for _, ev := range n.events {
		res = append(res, ev.Kind)
	}
	return res
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

const adminID = 1000

func newTestService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	n := &recordingNotifier{}
	return NewService(repo, n, zap.NewNop(), []int64{adminID}), n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func register(t *testing.T, svc *Service, id int64) *model.User {
	t.Helper()
	u, err := svc.CreateUserIfAbsent(context.Background(), model.NewUser{ID: id, Username: "u", FirstName: "U"})
	require.NoError(t, err)
	return u
}

func balance(t *testing.T, svc *Service, id int64) decimal.Decimal {
	t.Helper()
	u, err := svc.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Balance
}

func TestCreateUserIfAbsentResolvesReferral(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	admin := register(t, svc, adminID)
	assert.True(t, admin.IsAdmin)

	invited, err := svc.CreateUserIfAbsent(ctx, model.NewUser{ID: 2, ReferralCode: " " + admin.ReferralCode + " "})
	require.NoError(t, err)
	require.NotNil(t, invited.ReferredBy)
	assert.Equal(t, int64(adminID), *invited.ReferredBy)
	assert.False(t, invited.IsAdmin)

	unknown, err := svc.CreateUserIfAbsent(ctx, model.NewUser{ID: 3, ReferralCode: "NOPE1234"})
	require.NoError(t, err)
	assert.Nil(t, unknown.ReferredBy)

	// Реферер не меняется после создания.
	again, err := svc.CreateUserIfAbsent(ctx, model.NewUser{ID: 3, ReferralCode: admin.ReferralCode})
	require.NoError(t, err)
	assert.Nil(t, again.ReferredBy)
}

func TestSubmitAndReviewSubmission(t *testing.T) {
	svc, n := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	_, err := svc.SubmitItem(ctx, 1, model.Credential{Login: "not-an-email", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredential)

	id, err := svc.SubmitItem(ctx, 1, model.Credential{Login: " Seller@Gmail.com ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, []model.EventKind{model.EventSubmissionReceived}, n.kinds())

	_, err = svc.SubmitItem(ctx, 1, model.Credential{Login: "seller@gmail.com", Password: "pw"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	n.reset()
	review, err := svc.ReviewSubmission(ctx, id, model.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, review.Changed)
	assert.True(t, balance(t, svc, 1).Equal(dec("5")))

	review, err = svc.ReviewSubmission(ctx, id, model.DecisionApprove, "")
	require.NoError(t, err)
	assert.False(t, review.Changed)
	assert.True(t, balance(t, svc, 1).Equal(dec("5")))
	assert.Equal(t, []model.EventKind{model.EventSubmissionApproved}, n.kinds())

	review, err = svc.ReviewSubmission(ctx, id, model.DecisionReject, "wrong password")
	require.NoError(t, err)
	assert.True(t, balance(t, svc, 1).IsZero())
	require.Len(t, n.events, 2)
	assert.Equal(t, model.EventSubmissionRejected, n.events[1].Kind)
	assert.Equal(t, "wrong password", n.events[1].Text)

	_, err = svc.ReviewSubmission(ctx, id, model.Decision("maybe"), "")
	assert.ErrorIs(t, err, repository.ErrInvalidState)

	_, err = svc.ReviewSubmission(ctx, 999, model.DecisionApprove, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSubmitItemSnapshotsPrice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	require.NoError(t, svc.AdjustSetting(ctx, "gmail_price", dec("7")))
	id, err := svc.SubmitItem(ctx, 1, model.Credential{Login: "a@gmail.com", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, svc.AdjustSetting(ctx, "gmail_price", dec("9")))

	review, err := svc.ReviewSubmission(ctx, id, model.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, review.Submission.Amount.Equal(dec("7")))
	assert.True(t, balance(t, svc, 1).Equal(dec("7")))
}

func TestRequestWithdrawal(t *testing.T) {
	svc, n := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)
	require.NoError(t, svc.AdminAdjustBalance(ctx, 1, dec("200")))

	tests := []struct {
		name        string
		amount      string
		method      string
		destination string
		err         error
	}{
		{name: "zero", amount: "0", method: "bKash", destination: "01712345678", err: ErrInvalidAmount},
		{name: "below minimum", amount: "50", method: "bKash", destination: "01712345678", err: ErrBelowMinimum},
		{name: "unknown method", amount: "150", method: "PayPal", destination: "01712345678", err: ErrUnknownMethod},
		{name: "bad destination", amount: "150", method: "bKash", destination: "123", err: validation.ErrInvalidDestination},
		{name: "insufficient", amount: "250", method: "bKash", destination: "01712345678", err: repository.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RequestWithdrawal(ctx, 1, dec(tt.amount), tt.method, tt.destination)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, balance(t, svc, 1).Equal(dec("200")))
		})
	}

	id, err := svc.RequestWithdrawal(ctx, 1, dec("150"), "bkash", "01712345678")
	require.NoError(t, err)
	assert.True(t, balance(t, svc, 1).Equal(dec("50")))

	n.reset()
	w, err := svc.ReviewWithdrawal(ctx, id, model.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, "bKash", w.Method)
	assert.True(t, balance(t, svc, 1).Equal(dec("200")))
	assert.Equal(t, []model.EventKind{model.EventWithdrawalRejected}, n.kinds())

	_, err = svc.ReviewWithdrawal(ctx, id, model.DecisionApprove)
	assert.ErrorIs(t, err, repository.ErrInvalidState)

	_, err = svc.ReviewWithdrawal(ctx, id, model.DecisionRepend)
	assert.ErrorIs(t, err, repository.ErrInvalidState)

	id, err = svc.RequestWithdrawal(ctx, 1, dec("150"), "Nagad", "01712345678")
	require.NoError(t, err)
	_, err = svc.ReviewWithdrawal(ctx, id, model.DecisionApprove)
	require.NoError(t, err)

	u, err := svc.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.Balance.Equal(dec("50")))
	assert.True(t, u.TotalWithdraw.Equal(dec("150")))
}

func TestClaimDailyBonus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	amount, err := svc.ClaimDailyBonus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("2")))

	now = now.Add(time.Hour)
	_, err = svc.ClaimDailyBonus(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrAlreadyClaimed)

	var claimed *AlreadyClaimedError
	require.True(t, errors.As(err, &claimed))
	assert.Equal(t, time.Date(2026, 5, 11, 9, 0, 0, 0, time.UTC), claimed.NextAt.UTC())

	now = now.Add(23 * time.Hour)
	_, err = svc.ClaimDailyBonus(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance(t, svc, 1).Equal(dec("4")))
}

func TestClaimDailyBonusRoundsSubCentSetting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	require.NoError(t, svc.repo.SetSetting(ctx, model.SettingDailyBonus, dec("0.005")))
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		amount, err := svc.ClaimDailyBonus(ctx, 1)
		require.NoError(t, err)
		assert.True(t, amount.Equal(dec("0.01")), "amount = %s", amount)
		now = now.Add(25 * time.Hour)
	}

	entries, err := svc.BalanceEntries(ctx, 1)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	assert.True(t, balance(t, svc, 1).Equal(dec("0.02")))
	assert.True(t, sum.Equal(dec("0.02")), "journal sum = %s", sum)

	require.NoError(t, svc.AdjustSetting(ctx, "daily_bonus_amount", dec("1.239")))
	settings, err := svc.Settings(ctx)
	require.NoError(t, err)
	for _, st := range settings {
		if st.Key == model.SettingDailyBonus {
			assert.True(t, st.Value.Equal(dec("1.24")), "stored = %s", st.Value)
		}
	}
}

func TestRedeemPromo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)
	register(t, svc, 2)

	p, err := svc.CreatePromo(ctx, "welcome", dec("10"), 1)
	require.NoError(t, err)
	assert.Equal(t, "WELCOME", p.Code)

	_, err = svc.CreatePromo(ctx, "WELCOME", dec("10"), 1)
	assert.ErrorIs(t, err, repository.ErrConflict)
	_, err = svc.CreatePromo(ctx, "FREE", dec("10"), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	amount, err := svc.RedeemPromo(ctx, " welcome", 1)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("10")))

	_, err = svc.RedeemPromo(ctx, "WELCOME", 2)
	assert.ErrorIs(t, err, repository.ErrCodeExhausted)

	_, err = svc.RedeemPromo(ctx, "bad code!", 2)
	assert.ErrorIs(t, err, repository.ErrCodeNotFound)
	assert.True(t, balance(t, svc, 2).IsZero())
}

func TestBannedUserCannotMutate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)
	require.NoError(t, svc.AdminAdjustBalance(ctx, 1, dec("500")))
	_, err := svc.CreatePromo(ctx, "BONUS", dec("5"), 10)
	require.NoError(t, err)

	require.NoError(t, svc.BanUser(ctx, 1))

	_, err = svc.SubmitItem(ctx, 1, model.Credential{Login: "b@gmail.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrBanned)
	_, err = svc.SubmitItem(ctx, 1, model.Credential{Login: "invalid", Password: ""})
	assert.ErrorIs(t, err, ErrBanned, "ban must be checked before input validation")
	_, err = svc.RequestWithdrawal(ctx, 1, dec("150"), "bKash", "01712345678")
	assert.ErrorIs(t, err, ErrBanned)
	_, err = svc.RedeemPromo(ctx, "BONUS", 1)
	assert.ErrorIs(t, err, ErrBanned)
	_, err = svc.ClaimDailyBonus(ctx, 1)
	assert.ErrorIs(t, err, ErrBanned)
	_, err = svc.OpenTicket(ctx, 1, "unban me")
	assert.ErrorIs(t, err, ErrBanned)

	assert.True(t, balance(t, svc, 1).Equal(dec("500")))
	history, err := svc.History(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, history.Submissions)
	assert.Empty(t, history.Withdrawals)
	assert.Empty(t, history.Tickets)

	require.NoError(t, svc.UnbanUser(ctx, 1))
	_, err = svc.ClaimDailyBonus(ctx, 1)
	assert.NoError(t, err)

	assert.ErrorIs(t, svc.BanUser(ctx, 77), repository.ErrNotFound)
}

func TestAdjustSetting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AdjustSetting(ctx, "price", dec("1")), ErrUnknownKey)
	assert.ErrorIs(t, svc.AdjustSetting(ctx, "gmail_price", dec("-1")), ErrInvalidAmount)
	require.NoError(t, svc.AdjustSetting(ctx, "DAILY_BONUS", dec("0")))

	settings, err := svc.Settings(ctx)
	require.NoError(t, err)
	require.Len(t, settings, 4)
	for _, st := range settings {
		if st.Key == model.SettingDailyBonus {
			assert.True(t, st.Value.IsZero())
		}
	}
}

func TestAdminAdjustBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	require.NoError(t, svc.AdminAdjustBalance(ctx, 1, dec("12.5")))
	require.NoError(t, svc.AdminAdjustBalance(ctx, 1, dec("-20")))
	assert.True(t, balance(t, svc, 1).Equal(dec("-7.5")))

	assert.ErrorIs(t, svc.AdminAdjustBalance(ctx, 1, decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, svc.AdminAdjustBalance(ctx, 42, dec("1")), repository.ErrNotFound)

	entries, err := svc.BalanceEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.EntryAdminAdjust, entries[0].Kind)
}

func TestSupportTicketFlow(t *testing.T) {
	svc, n := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)

	_, err := svc.OpenTicket(ctx, 1, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	id, err := svc.OpenTicket(ctx, 1, "payment missing")
	require.NoError(t, err)
	require.Len(t, n.events, 1)
	assert.Equal(t, model.EventTicketOpened, n.events[0].Kind)
	assert.Equal(t, int64(adminID), n.events[0].UserID)

	pending, err := svc.PendingTickets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	n.reset()
	ticket, err := svc.ReplyTicket(ctx, id, "sent")
	require.NoError(t, err)
	assert.Equal(t, model.TicketClosed, ticket.Status)
	require.Len(t, n.events, 1)
	assert.Equal(t, int64(1), n.events[0].UserID)

	_, err = svc.ReplyTicket(ctx, id, "sent again")
	assert.ErrorIs(t, err, repository.ErrInvalidState)
}

func TestNotificationFailureKeepsMutation(t *testing.T) {
	svc, n := newTestService(t)
	ctx := context.Background()
	register(t, svc, 1)
	n.err = errors.New("telegram is down")

	id, err := svc.SubmitItem(ctx, 1, model.Credential{Login: "c@gmail.com", Password: "pw"})
	require.NoError(t, err)
	_, err = svc.ReviewSubmission(ctx, id, model.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, balance(t, svc, 1).Equal(dec("5")))
}

func TestSendPendingDigest(t *testing.T) {
	svc, n := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SendPendingDigest(ctx))
	assert.Empty(t, n.kinds())

	register(t, svc, 1)
	_, err := svc.SubmitItem(ctx, 1, model.Credential{Login: "d@gmail.com", Password: "pw"})
	require.NoError(t, err)
	n.reset()

	require.NoError(t, svc.SendPendingDigest(ctx))
	require.Len(t, n.events, 1)
	assert.Equal(t, model.EventPendingDigest, n.events[0].Kind)
	require.NotNil(t, n.events[0].Stats)
	assert.Equal(t, int64(1), n.events[0].Stats.PendingSubmissions)
}

type failingSettingsRepo struct {
	Repository
	err error
}

func (r *failingSettingsRepo) GetSetting(context.Context, model.SettingKey) (decimal.Decimal, error) {
	return decimal.Zero, r.err
}

func TestSettingFallback(t *testing.T) {
	svc := NewService(&failingSettingsRepo{err: repository.ErrNotFound}, nil, nil, nil)
	v, err := svc.setting(context.Background(), model.SettingMinWithdraw)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec("100")))

	svc = NewService(&failingSettingsRepo{err: errors.New("disk I/O error")}, nil, nil, nil)
	_, err = svc.setting(context.Background(), model.SettingMinWithdraw)
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	tests := []struct {
		offset, limit         int
		wantOffset, wantLimit int
	}{
		{0, 0, 0, defaultPageLimit},
		{-5, 10, 0, 10},
		{40, 1000, 40, maxPageLimit},
	}
	for _, tt := range tests {
		o, l := page(tt.offset, tt.limit)
		assert.Equal(t, tt.wantOffset, o)
		assert.Equal(t, tt.wantLimit, l)
	}
}
