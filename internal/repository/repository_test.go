package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
)

type ledgerStore interface {
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
	ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error)
	ListBalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

var (
	_ ledgerStore = (*SQLiteRepository)(nil)
	_ ledgerStore = (*PostgresRepository)(nil)
)

func newSQLite(t *testing.T) ledgerStore {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newPostgres(t *testing.T) ledgerStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	repo.delays = []time.Duration{10 * time.Millisecond}

	_, err = repo.pool.Exec(context.Background(),
		`TRUNCATE users, submissions, withdrawals, support_tickets, promo_codes, balance_entries RESTART IDENTITY`)
	require.NoError(t, err)
	_, err = repo.pool.Exec(context.Background(),
		`DELETE FROM payment_methods WHERE name NOT IN ('bKash', 'Nagad', 'Rocket', 'Recharge/Skrill')`)
	require.NoError(t, err)
	_, err = repo.pool.Exec(context.Background(), `UPDATE payment_methods SET is_active = TRUE`)
	require.NoError(t, err)

	t.Cleanup(func() { repo.Close() })
	return repo
}

func forEachStore(t *testing.T, fn func(t *testing.T, s ledgerStore)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPostgres(t)) })
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustUser(t *testing.T, s ledgerStore, id int64, referrer *int64) *model.User {
	t.Helper()
	u, _, err := s.CreateUserIfAbsent(context.Background(), model.NewUser{ID: id, Username: "user", FirstName: "User", ReferrerID: referrer})
	require.NoError(t, err)
	return u
}

func assertBalance(t *testing.T, s ledgerStore, userID int64, want string) {
	t.Helper()
	ctx := context.Background()

	u, err := s.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Truef(t, u.Balance.Equal(dec(want)), "balance = %s, want %s", u.Balance, want)

	entries, err := s.ListBalanceEntries(ctx, userID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Delta)
	}
	assert.Truef(t, u.Balance.Equal(sum), "balance %s differs from journal sum %s", u.Balance, sum)
}

func TestCreateUserIfAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()

		u, created, err := s.CreateUserIfAbsent(ctx, model.NewUser{ID: 1, Username: "alice", FirstName: "Alice", IsAdmin: true})
		require.NoError(t, err)
		assert.True(t, created)
		assert.True(t, u.IsAdmin)
		assert.Len(t, u.ReferralCode, referralCodeLen)
		assert.True(t, u.Balance.IsZero())

		again, created, err := s.CreateUserIfAbsent(ctx, model.NewUser{ID: 1, Username: "renamed"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "alice", again.Username)
		assert.Equal(t, u.ReferralCode, again.ReferralCode)

		self := int64(2)
		selfRef := mustUser(t, s, 2, &self)
		assert.Nil(t, selfRef.ReferredBy)

		ghost := int64(999)
		unknownRef := mustUser(t, s, 3, &ghost)
		assert.Nil(t, unknownRef.ReferredBy)

		one := int64(1)
		invited := mustUser(t, s, 4, &one)
		require.NotNil(t, invited.ReferredBy)
		assert.Equal(t, int64(1), *invited.ReferredBy)

		found, err := s.GetUserByReferralCode(ctx, u.ReferralCode)
		require.NoError(t, err)
		assert.Equal(t, int64(1), found.ID)

		_, err = s.GetUser(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)

		users, err := s.SearchUsers(ctx, "ali", 10)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, int64(1), users[0].ID)

		users, err = s.SearchUsers(ctx, "4", 10)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, int64(4), users[0].ID)
	})
}

func TestSubmissionReviewLedger(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)

		id, err := s.CreateSubmission(ctx, 1, model.Credential{Login: "a@gmail.com", Password: "p"}, dec("5"))
		require.NoError(t, err)

		_, err = s.CreateSubmission(ctx, 1, model.Credential{Login: "a@gmail.com", Password: "other"}, dec("5"))
		assert.ErrorIs(t, err, ErrConflict)

		review, err := s.ReviewSubmission(ctx, id, model.SubmissionSuccess, nil, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, review.Changed)
		assert.Equal(t, model.SubmissionPending, review.Previous)
		assertBalance(t, s, 1, "5")

		// Повторное одобрение не начисляет второй раз.
		review, err = s.ReviewSubmission(ctx, id, model.SubmissionSuccess, nil, decimal.Zero)
		require.NoError(t, err)
		assert.False(t, review.Changed)
		assertBalance(t, s, 1, "5")

		reason := "bad password"
		review, err = s.ReviewSubmission(ctx, id, model.SubmissionRejected, &reason, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, review.Changed)
		require.NotNil(t, review.Submission.RejectReason)
		assert.Equal(t, reason, *review.Submission.RejectReason)
		assertBalance(t, s, 1, "0")

		u, err := s.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), u.GmailSellCount)

		review, err = s.ReviewSubmission(ctx, id, model.SubmissionPending, nil, decimal.Zero)
		require.NoError(t, err)
		assert.Nil(t, review.Submission.RejectReason)
		assertBalance(t, s, 1, "0")

		_, err = s.ReviewSubmission(ctx, 999, model.SubmissionSuccess, nil, decimal.Zero)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRejectAfterSuccessDebitsSnapshot(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)

		id, err := s.CreateSubmission(ctx, 1, model.Credential{Login: "snap@gmail.com", Password: "p"}, dec("5"))
		require.NoError(t, err)
		_, err = s.ReviewSubmission(ctx, id, model.SubmissionSuccess, nil, decimal.Zero)
		require.NoError(t, err)

		require.NoError(t, s.SetSetting(ctx, model.SettingGmailPrice, dec("8")))
		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("1.5"), model.EntryAdminAdjust, "test"))

		_, err = s.ReviewSubmission(ctx, id, model.SubmissionRejected, nil, decimal.Zero)
		require.NoError(t, err)
		assertBalance(t, s, 1, "1.5")
	})
}

func TestReferralCommission(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		referrer := int64(1)
		mustUser(t, s, 2, &referrer)

		id, err := s.CreateSubmission(ctx, 2, model.Credential{Login: "ref@gmail.com", Password: "p"}, dec("5"))
		require.NoError(t, err)

		review, err := s.ReviewSubmission(ctx, id, model.SubmissionSuccess, nil, dec("5"))
		require.NoError(t, err)
		require.NotNil(t, review.ReferrerID)
		assert.True(t, review.Commission.Equal(dec("0.25")))
		assert.True(t, review.Submission.Commission.Equal(dec("0.25")))
		assertBalance(t, s, 1, "0.25")
		assertBalance(t, s, 2, "5")

		stats, err := s.ReferralStats(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Count)
		assert.True(t, stats.Earnings.Equal(dec("0.25")))

		// Ставка могла измениться, но списывается ровно начисленная комиссия.
		review, err = s.ReviewSubmission(ctx, id, model.SubmissionPending, nil, dec("50"))
		require.NoError(t, err)
		assert.True(t, review.Submission.Commission.IsZero())
		assertBalance(t, s, 1, "0")
		assertBalance(t, s, 2, "0")

		stats, err = s.ReferralStats(ctx, 1)
		require.NoError(t, err)
		assert.True(t, stats.Earnings.IsZero())
	})
}

func TestWithdrawalLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("100"), model.EntryAdminAdjust, "seed"))

		_, err := s.CreateWithdrawal(ctx, 1, dec("150"), "bKash", "01712345678")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assertBalance(t, s, 1, "100")
		pending, err := s.ListWithdrawals(ctx, model.WithdrawalPending, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, pending)

		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("100"), model.EntryAdminAdjust, "seed"))

		rejectedID, err := s.CreateWithdrawal(ctx, 1, dec("150"), "bKash", "01712345678")
		require.NoError(t, err)
		assertBalance(t, s, 1, "50")

		w, err := s.GetWithdrawal(ctx, rejectedID)
		require.NoError(t, err)
		assert.Equal(t, model.WithdrawalPending, w.Status)

		w, err = s.ReviewWithdrawal(ctx, rejectedID, model.WithdrawalRejected)
		require.NoError(t, err)
		assert.Equal(t, model.WithdrawalRejected, w.Status)
		assertBalance(t, s, 1, "200")

		_, err = s.ReviewWithdrawal(ctx, rejectedID, model.WithdrawalSuccess)
		assert.ErrorIs(t, err, ErrInvalidState)
		assertBalance(t, s, 1, "200")

		paidID, err := s.CreateWithdrawal(ctx, 1, dec("150"), "Nagad", "01712345678")
		require.NoError(t, err)
		_, err = s.ReviewWithdrawal(ctx, paidID, model.WithdrawalSuccess)
		require.NoError(t, err)
		assertBalance(t, s, 1, "50")

		u, err := s.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.True(t, u.TotalWithdraw.Equal(dec("150")))

		_, err = s.ReviewWithdrawal(ctx, paidID, model.WithdrawalRejected)
		assert.ErrorIs(t, err, ErrInvalidState)
		assertBalance(t, s, 1, "50")

		_, err = s.ReviewWithdrawal(ctx, 999, model.WithdrawalSuccess)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("100"), model.EntryAdminAdjust, "seed"))

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.CreateWithdrawal(ctx, 1, dec("30"), "bKash", "01712345678")
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				if !errors.Is(err, ErrInsufficientFunds) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 3, succeeded)
		assertBalance(t, s, 1, "10")
	})
}

func TestRedeemPromo(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		mustUser(t, s, 2, nil)

		require.NoError(t, s.CreatePromo(ctx, model.PromoCode{Code: "ONCE", Amount: dec("10"), UsesLeft: 1, IsActive: true}))
		assert.ErrorIs(t, s.CreatePromo(ctx, model.PromoCode{Code: "ONCE", Amount: dec("1"), UsesLeft: 1, IsActive: true}), ErrConflict)

		amount, err := s.RedeemPromo(ctx, "ONCE", 1)
		require.NoError(t, err)
		assert.True(t, amount.Equal(dec("10")))
		assertBalance(t, s, 1, "10")

		_, err = s.RedeemPromo(ctx, "ONCE", 2)
		assert.ErrorIs(t, err, ErrCodeExhausted)
		assertBalance(t, s, 2, "0")

		p, err := s.GetPromo(ctx, "ONCE")
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.UsesLeft)

		require.NoError(t, s.CreatePromo(ctx, model.PromoCode{Code: "MANY", Amount: dec("2"), UsesLeft: 5, IsActive: true}))
		for i := 0; i < 2; i++ {
			_, err = s.RedeemPromo(ctx, "MANY", 1)
			require.NoError(t, err)
		}
		assertBalance(t, s, 1, "14")
		p, err = s.GetPromo(ctx, "MANY")
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.UsesLeft)

		require.NoError(t, s.SetPromoActive(ctx, "MANY", false))
		_, err = s.RedeemPromo(ctx, "MANY", 2)
		assert.ErrorIs(t, err, ErrCodeNotFound)

		_, err = s.RedeemPromo(ctx, "MISSING", 2)
		assert.ErrorIs(t, err, ErrCodeNotFound)
		assert.ErrorIs(t, s.SetPromoActive(ctx, "MISSING", true), ErrNotFound)
		assertBalance(t, s, 2, "0")
	})
}

func TestClaimDailyBonus(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		next, err := s.ClaimDailyBonus(ctx, 1, dec("2"), now, 24*time.Hour)
		require.NoError(t, err)
		assert.True(t, next.Equal(now.Add(24*time.Hour)))
		assertBalance(t, s, 1, "2")

		next, err = s.ClaimDailyBonus(ctx, 1, dec("2"), now.Add(23*time.Hour), 24*time.Hour)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
		assert.True(t, next.Equal(now.Add(24*time.Hour)), "next = %s", next)
		assertBalance(t, s, 1, "2")

		_, err = s.ClaimDailyBonus(ctx, 1, dec("2"), now.Add(24*time.Hour), 24*time.Hour)
		require.NoError(t, err)
		assertBalance(t, s, 1, "4")

		_, err = s.ClaimDailyBonus(ctx, 7, dec("2"), now, 24*time.Hour)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSubCentDeltasAreRounded(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		_, err := s.ClaimDailyBonus(ctx, 1, dec("0.005"), now, 24*time.Hour)
		require.NoError(t, err)
		_, err = s.ClaimDailyBonus(ctx, 1, dec("0.005"), now.Add(25*time.Hour), 24*time.Hour)
		require.NoError(t, err)
		assertBalance(t, s, 1, "0.02")

		for i := 0; i < 3; i++ {
			require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("0.333"), model.EntryAdminAdjust, "admin"))
		}
		assertBalance(t, s, 1, "1.01")
	})
}

func TestBannedUserIsRejectedInsideStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("200"), model.EntryAdminAdjust, "admin"))
		require.NoError(t, s.CreatePromo(ctx, model.PromoCode{Code: "BAN", Amount: dec("5"), UsesLeft: 1, IsActive: true}))
		require.NoError(t, s.SetBanned(ctx, 1, true))

		_, err := s.CreateSubmission(ctx, 1, model.Credential{Login: "b@gmail.com", Password: "p"}, dec("5"))
		assert.ErrorIs(t, err, ErrBanned)
		_, err = s.CreateWithdrawal(ctx, 1, dec("150"), "bKash", "01712345678")
		assert.ErrorIs(t, err, ErrBanned)
		_, err = s.RedeemPromo(ctx, "BAN", 1)
		assert.ErrorIs(t, err, ErrBanned)
		_, err = s.ClaimDailyBonus(ctx, 1, dec("2"), time.Now(), 24*time.Hour)
		assert.ErrorIs(t, err, ErrBanned)
		_, err = s.CreateTicket(ctx, 1, "let me in")
		assert.ErrorIs(t, err, ErrBanned)

		assertBalance(t, s, 1, "200")
		p, err := s.GetPromo(ctx, "BAN")
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.UsesLeft)
		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.PendingSubmissions)
		assert.Zero(t, stats.PendingWithdrawals)
		assert.Zero(t, stats.PendingTickets)

		require.NoError(t, s.SetBanned(ctx, 1, false))
		_, err = s.CreateTicket(ctx, 1, "thanks")
		assert.NoError(t, err)
	})
}

func TestListsAreNeverNil(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)

		subs, err := s.ListSubmissions(ctx, model.SubmissionPending, 0, 10)
		require.NoError(t, err)
		assert.NotNil(t, subs)
		ws, err := s.ListWithdrawals(ctx, model.WithdrawalPending, 0, 10)
		require.NoError(t, err)
		assert.NotNil(t, ws)
		tickets, err := s.ListPendingTickets(ctx)
		require.NoError(t, err)
		assert.NotNil(t, tickets)
		entries, err := s.ListBalanceEntries(ctx, 1)
		require.NoError(t, err)
		assert.NotNil(t, entries)
		users, err := s.SearchUsers(ctx, "42", 5)
		require.NoError(t, err)
		assert.NotNil(t, users)
		assert.Empty(t, users)
	})
}

func TestSettingsAndPaymentMethods(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()

		v, err := s.GetSetting(ctx, model.SettingMinWithdraw)
		require.NoError(t, err)
		assert.True(t, v.Equal(dec("100")))

		require.NoError(t, s.SetSetting(ctx, model.SettingGmailPrice, dec("7.5")))
		v, err = s.GetSetting(ctx, model.SettingGmailPrice)
		require.NoError(t, err)
		assert.True(t, v.Equal(dec("7.5")))

		settings, err := s.ListSettings(ctx)
		require.NoError(t, err)
		assert.Len(t, settings, len(model.SettingKeys()))

		_, err = s.GetSetting(ctx, model.SettingKey("missing"))
		assert.ErrorIs(t, err, ErrNotFound)

		methods, err := s.ListPaymentMethods(ctx, true)
		require.NoError(t, err)
		assert.Len(t, methods, 4)

		_, err = s.AddPaymentMethod(ctx, "bKash")
		assert.ErrorIs(t, err, ErrConflict)

		m, err := s.AddPaymentMethod(ctx, "Upay")
		require.NoError(t, err)
		assert.True(t, m.IsActive)

		require.NoError(t, s.SetPaymentMethodActive(ctx, "Rocket", false))
		methods, err = s.ListPaymentMethods(ctx, true)
		require.NoError(t, err)
		assert.Len(t, methods, 4)
		all, err := s.ListPaymentMethods(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		assert.ErrorIs(t, s.SetPaymentMethodActive(ctx, "Missing", true), ErrNotFound)
	})
}

func TestSupportTickets(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)

		id, err := s.CreateTicket(ctx, 1, "where is my payment?")
		require.NoError(t, err)

		pending, err := s.ListPendingTickets(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, id, pending[0].ID)

		ticket, err := s.ReplyTicket(ctx, id, "sent today")
		require.NoError(t, err)
		assert.Equal(t, model.TicketClosed, ticket.Status)
		require.NotNil(t, ticket.Reply)
		assert.Equal(t, "sent today", *ticket.Reply)

		_, err = s.ReplyTicket(ctx, id, "again")
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = s.GetTicket(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStatsAndBan(t *testing.T) {
	forEachStore(t, func(t *testing.T, s ledgerStore) {
		ctx := context.Background()
		mustUser(t, s, 1, nil)
		mustUser(t, s, 2, nil)
		require.NoError(t, s.ApplyBalanceDelta(ctx, 1, dec("120"), model.EntryAdminAdjust, "seed"))

		sub, err := s.CreateSubmission(ctx, 2, model.Credential{Login: "s@gmail.com", Password: "p"}, dec("5"))
		require.NoError(t, err)
		_, err = s.CreateSubmission(ctx, 2, model.Credential{Login: "t@gmail.com", Password: "p"}, dec("5"))
		require.NoError(t, err)
		_, err = s.ReviewSubmission(ctx, sub, model.SubmissionSuccess, nil, decimal.Zero)
		require.NoError(t, err)
		_, err = s.CreateWithdrawal(ctx, 1, dec("100"), "bKash", "01712345678")
		require.NoError(t, err)
		_, err = s.CreateTicket(ctx, 2, "hi")
		require.NoError(t, err)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.TotalUsers)
		assert.True(t, stats.TotalBalance.Equal(dec("25")), "total balance = %s", stats.TotalBalance)
		assert.Equal(t, int64(1), stats.TotalSold)
		assert.Equal(t, int64(1), stats.PendingSubmissions)
		assert.Equal(t, int64(1), stats.PendingWithdrawals)
		assert.Equal(t, int64(1), stats.PendingTickets)

		listed, err := s.ListSubmissions(ctx, model.SubmissionPending, 0, 10)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, "t@gmail.com", listed[0].Login)

		require.NoError(t, s.SetBanned(ctx, 2, true))
		u, err := s.GetUser(ctx, 2)
		require.NoError(t, err)
		assert.True(t, u.IsBanned)
		assert.ErrorIs(t, s.SetBanned(ctx, 9, true), ErrNotFound)
		assert.ErrorIs(t, s.ApplyBalanceDelta(ctx, 9, dec("1"), model.EntryAdminAdjust, ""), ErrNotFound)
	})
}
