package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		delays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations/postgres"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(r.delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delays[i]):
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// inTx выполняет fn в транзакции, повторяя её при конфликте сериализации.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func pgNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// pgLockActiveUser блокирует строку пользователя до конца транзакции и проверяет,
// что он не заблокирован. Возвращает текущий баланс.
func pgLockActiveUser(ctx context.Context, tx pgx.Tx, userID int64) (float64, error) {
	var (
		balance float64
		banned  bool
	)
	err := tx.QueryRow(ctx, `SELECT balance, is_banned FROM users WHERE user_id = $1 FOR UPDATE`, userID).Scan(&balance, &banned)
	if err != nil {
		return 0, pgNotFound(err)
	}
	if banned {
		return 0, ErrBanned
	}
	return balance, nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func pgApplyDelta(ctx context.Context, tx pgx.Tx, userID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	delta = delta.Round(2)
	tag, err := tx.Exec(ctx,
		`UPDATE users SET balance = balance + $2 WHERE user_id = $1`,
		userID, delta.InexactFloat64(),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO balance_entries (user_id, delta, kind, ref, created_at) VALUES ($1, $2, $3, $4, $5)`,
		userID, delta.InexactFloat64(), string(kind), ref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert balance entry: %w", err)
	}
	return nil
}

const userColumns = `user_id, username, first_name, balance, gmail_sell_count, total_withdraw,
	is_admin, is_banned, last_daily_claim, join_date, referral_code, referred_by, referral_earnings`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                                 model.User
		username, firstName, referralCode *string
		balance, withdrawn, earnings      float64
	)
	err := row.Scan(&u.ID, &username, &firstName, &balance, &u.GmailSellCount, &withdrawn,
		&u.IsAdmin, &u.IsBanned, &u.LastDailyClaim, &u.JoinDate, &referralCode, &u.ReferredBy, &earnings)
	if err != nil {
		return nil, err
	}
	u.Username, u.FirstName, u.ReferralCode = deref(username), deref(firstName), deref(referralCode)
	u.Balance, u.TotalWithdraw, u.ReferralEarnings = money(balance), money(withdrawn), money(earnings)
	return &u, nil
}

// CreateUserIfAbsent создаёт пользователя, если его ещё нет. Второе значение сообщает, был ли он создан.
func (r *PostgresRepository) CreateUserIfAbsent(ctx context.Context, nu model.NewUser) (*model.User, bool, error) {
	var (
		res   *model.User
		isNew bool
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, nu.ID))
		if err == nil {
			res, isNew = u, false
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select user: %w", err)
		}

		code, err := uniqueReferralCode(func(c string) (bool, error) {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`, c).Scan(&exists)
			return exists, err
		})
		if err != nil {
			return err
		}

		var referrer *int64
		if nu.ReferrerID != nil && *nu.ReferrerID != nu.ID {
			var exists bool
			err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, *nu.ReferrerID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check referrer: %w", err)
			}
			if exists {
				referrer = nu.ReferrerID
			}
		}

		u, err = scanUser(tx.QueryRow(ctx,
			`INSERT INTO users (user_id, username, first_name, is_admin, join_date, referral_code, referred_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+userColumns,
			nu.ID, nu.Username, nu.FirstName, nu.IsAdmin, time.Now().UTC(), code, referrer,
		))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		res, isNew = u, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return res, isNew, nil
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return u, nil
}

// GetUserByReferralCode ищет пользователя по реферальному коду.
func (r *PostgresRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE referral_code = $1`, code))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return u, nil
}

// SearchUsers ищет пользователей по идентификатору, имени пользователя или имени.
func (r *PostgresRepository) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if id, perr := strconv.ParseInt(query, 10, 64); perr == nil {
		rows, err = r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1 LIMIT $2`, id, pgLimit(limit))
	} else {
		like := "%" + strings.TrimPrefix(query, "@") + "%"
		rows, err = r.pool.Query(ctx,
			`SELECT `+userColumns+` FROM users
			 WHERE username ILIKE $1 OR first_name ILIKE $1
			 ORDER BY user_id LIMIT $2`,
			like, pgLimit(limit),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return users, nil
}

// pgLimit переводит неположительный лимит в NULL, то есть в LIMIT ALL.
func pgLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

// ReferralStats возвращает статистику приглашений пользователя.
func (r *PostgresRepository) ReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	var (
		code     *string
		earnings float64
		count    int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT u.referral_code, u.referral_earnings,
		        (SELECT COUNT(*) FROM users r WHERE r.referred_by = u.user_id)
		 FROM users u WHERE u.user_id = $1`,
		userID,
	).Scan(&code, &earnings, &count)
	if err != nil {
		return nil, pgNotFound(err)
	}
	return &model.ReferralStats{Code: deref(code), Count: count, Earnings: money(earnings)}, nil
}

// ApplyBalanceDelta меняет баланс пользователя на delta с записью в журнал.
func (r *PostgresRepository) ApplyBalanceDelta(ctx context.Context, userID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return pgApplyDelta(ctx, tx, userID, delta, kind, ref)
	})
}

// SetBanned устанавливает признак блокировки пользователя.
func (r *PostgresRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_banned = $2 WHERE user_id = $1`, userID, banned)
	if err != nil {
		return fmt.Errorf("update ban: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDailyBonus начисляет ежедневный бонус, если с прошлого получения прошло не меньше window.
func (r *PostgresRepository) ClaimDailyBonus(ctx context.Context, userID int64, amount decimal.Decimal, now time.Time, window time.Duration) (time.Time, error) {
	var next time.Time
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var (
			last   *time.Time
			banned bool
		)
		err := tx.QueryRow(ctx, `SELECT last_daily_claim, is_banned FROM users WHERE user_id = $1 FOR UPDATE`, userID).Scan(&last, &banned)
		if err != nil {
			return pgNotFound(err)
		}
		if banned {
			return ErrBanned
		}

		var ok bool
		if next, ok = nextClaimAt(last, now, window); !ok {
			return ErrAlreadyClaimed
		}

		if _, err := tx.Exec(ctx, `UPDATE users SET last_daily_claim = $2 WHERE user_id = $1`, userID, now.UTC()); err != nil {
			return fmt.Errorf("update last claim: %w", err)
		}
		next = now.Add(window)
		return pgApplyDelta(ctx, tx, userID, amount, model.EntryDailyBonus, bonusRef(now))
	})
	return next, err
}

const submissionColumns = `id, user_id, gmail, password, amount, status, submission_date, reject_reason, commission`

func scanSubmission(row pgx.Row) (*model.Submission, error) {
	var (
		s                  model.Submission
		status             string
		amount, commission float64
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Login, &s.Password, &amount, &status, &s.SubmittedAt, &s.RejectReason, &commission)
	if err != nil {
		return nil, err
	}
	s.Status = model.SubmissionStatus(status)
	s.Amount, s.Commission = money(amount), money(commission)
	return &s, nil
}

func collectSubmissions(rows pgx.Rows) ([]model.Submission, error) {
	defer rows.Close()
	res := make([]model.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		res = append(res, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateSubmission сохраняет заявку на продажу со снимком цены.
func (r *PostgresRepository) CreateSubmission(ctx context.Context, userID int64, cred model.Credential, amount decimal.Decimal) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgLockActiveUser(ctx, tx, userID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO submissions (user_id, gmail, password, amount, status, submission_date)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			userID, cred.Login, cred.Password, amount.InexactFloat64(), string(model.SubmissionPending), time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrConflict, cred.Login)
			}
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	})
	return id, err
}

// GetSubmission возвращает заявку по идентификатору.
func (r *PostgresRepository) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	s, err := scanSubmission(r.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return s, nil
}

// ListSubmissions возвращает заявки в порядке поступления. Пустой статус означает все заявки.
func (r *PostgresRepository) ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions
		 WHERE $1 = '' OR status = $1
		 ORDER BY submission_date, id
		 OFFSET $2 LIMIT $3`,
		string(status), offset, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	return collectSubmissions(rows)
}

// ListUserSubmissions возвращает заявки пользователя, начиная с последних.
func (r *PostgresRepository) ListUserSubmissions(ctx context.Context, userID int64) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1 ORDER BY submission_date DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user submissions: %w", err)
	}
	return collectSubmissions(rows)
}

// ReviewSubmission переводит заявку в статус to и проводит связанные начисления или списания.
func (r *PostgresRepository) ReviewSubmission(ctx context.Context, id int64, to model.SubmissionStatus, reason *string, commissionRate decimal.Decimal) (*model.SubmissionReview, error) {
	if !to.Valid() {
		return nil, ErrInvalidState
	}

	var review *model.SubmissionReview
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		sub, err := scanSubmission(tx.QueryRow(ctx,
			`SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return pgNotFound(err)
		}

		review = &model.SubmissionReview{Previous: sub.Status}
		if sub.Status == to {
			review.Submission = sub
			return nil
		}

		var referredBy *int64
		err = tx.QueryRow(ctx, `SELECT referred_by FROM users WHERE user_id = $1 FOR UPDATE`, sub.UserID).Scan(&referredBy)
		if err != nil {
			return fmt.Errorf("select owner: %w", pgNotFound(err))
		}

		ref := submissionRef(sub.ID)
		commission := sub.Commission

		switch model.SubmissionEffect(sub.Status, to) {
		case model.EffectCredit:
			if err := pgApplyDelta(ctx, tx, sub.UserID, sub.Amount, model.EntrySubmissionCredit, ref); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE users SET gmail_sell_count = gmail_sell_count + 1 WHERE user_id = $1`, sub.UserID); err != nil {
				return fmt.Errorf("update sell count: %w", err)
			}

			commission = decimal.Zero
			if referredBy != nil {
				commission = commissionFor(sub.Amount, commissionRate)
				if commission.IsPositive() {
					if err := pgCreditReferrer(ctx, tx, *referredBy, commission, model.EntryReferralCommission, ref); err != nil {
						return err
					}
					review.ReferrerID, review.Commission = referredBy, commission
				}
			}

		case model.EffectDebit:
			if err := pgApplyDelta(ctx, tx, sub.UserID, sub.Amount.Neg(), model.EntrySubmissionReversal, ref); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `UPDATE users SET gmail_sell_count = gmail_sell_count - 1 WHERE user_id = $1`, sub.UserID); err != nil {
				return fmt.Errorf("update sell count: %w", err)
			}

			if commission.IsPositive() && referredBy != nil {
				if err := pgCreditReferrer(ctx, tx, *referredBy, commission.Neg(), model.EntryReferralReversal, ref); err != nil {
					return err
				}
				review.ReferrerID, review.Commission = referredBy, commission.Neg()
			}
			commission = decimal.Zero
		}

		var storedReason *string
		if to == model.SubmissionRejected {
			storedReason = reason
		}

		updated, err := scanSubmission(tx.QueryRow(ctx,
			`UPDATE submissions SET status = $2, reject_reason = $3, commission = $4
			 WHERE id = $1 RETURNING `+submissionColumns,
			sub.ID, string(to), storedReason, commission.InexactFloat64(),
		))
		if err != nil {
			return fmt.Errorf("update submission: %w", err)
		}

		review.Submission = updated
		review.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func pgCreditReferrer(ctx context.Context, tx pgx.Tx, referrerID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	if err := pgApplyDelta(ctx, tx, referrerID, delta, kind, ref); err != nil {
		return fmt.Errorf("referrer %d: %w", referrerID, err)
	}
	_, err := tx.Exec(ctx,
		`UPDATE users SET referral_earnings = referral_earnings + $2 WHERE user_id = $1`,
		referrerID, delta.InexactFloat64(),
	)
	if err != nil {
		return fmt.Errorf("update referral earnings: %w", err)
	}
	return nil
}

// CreateWithdrawal резервирует сумму на балансе и создаёт запрос на вывод.
// Строка пользователя блокируется, чтобы параллельные выводы не превысили баланс.
func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, number string) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		balance, err := pgLockActiveUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if money(balance).LessThan(amount) {
			return ErrInsufficientFunds
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO withdrawals (user_id, amount, method, number, status, request_date)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			userID, amount.InexactFloat64(), method, number, string(model.WithdrawalPending), time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return pgApplyDelta(ctx, tx, userID, amount.Neg(), model.EntryWithdrawalReserve, withdrawalRef(id))
	})
	return id, err
}

const withdrawalColumns = `id, user_id, amount, method, number, status, request_date`

func scanWithdrawal(row pgx.Row) (*model.Withdrawal, error) {
	var (
		w      model.Withdrawal
		status string
		amount float64
	)
	if err := row.Scan(&w.ID, &w.UserID, &amount, &w.Method, &w.Number, &status, &w.RequestedAt); err != nil {
		return nil, err
	}
	w.Status, w.Amount = model.WithdrawalStatus(status), money(amount)
	return &w, nil
}

func collectWithdrawals(rows pgx.Rows) ([]model.Withdrawal, error) {
	defer rows.Close()
	res := make([]model.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan withdrawal: %w", err)
		}
		res = append(res, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(r.pool.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return w, nil
}

// ListWithdrawals возвращает запросы на вывод в порядке поступления.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals
		 WHERE $1 = '' OR status = $1
		 ORDER BY request_date, id
		 OFFSET $2 LIMIT $3`,
		string(status), offset, pgLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// ListUserWithdrawals возвращает выводы пользователя, начиная с последних.
func (r *PostgresRepository) ListUserWithdrawals(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1 ORDER BY request_date DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user withdrawals: %w", err)
	}
	return collectWithdrawals(rows)
}

// ReviewWithdrawal завершает запрос на вывод.
func (r *PostgresRepository) ReviewWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus) (*model.Withdrawal, error) {
	var res *model.Withdrawal
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		w, err := scanWithdrawal(tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return pgNotFound(err)
		}
		if !model.WithdrawalTransitionAllowed(w.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, w.Status, to)
		}

		if _, err := tx.Exec(ctx, `UPDATE withdrawals SET status = $2 WHERE id = $1`, id, string(to)); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		switch to {
		case model.WithdrawalSuccess:
			_, err = tx.Exec(ctx,
				`UPDATE users SET total_withdraw = total_withdraw + $2 WHERE user_id = $1`,
				w.UserID, w.Amount.InexactFloat64(),
			)
			if err != nil {
				return fmt.Errorf("update total withdraw: %w", err)
			}
		case model.WithdrawalRejected:
			if err := pgApplyDelta(ctx, tx, w.UserID, w.Amount, model.EntryWithdrawalRefund, withdrawalRef(id)); err != nil {
				return err
			}
		}

		w.Status = to
		res = w
		return nil
	})
	return res, err
}

// CreatePromo создаёт промокод.
func (r *PostgresRepository) CreatePromo(ctx context.Context, p model.PromoCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO promo_codes (code, amount, uses_left, is_active) VALUES ($1, $2, $3, $4)`,
		p.Code, p.Amount.InexactFloat64(), p.UsesLeft, p.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrConflict, p.Code)
		}
		return fmt.Errorf("insert promo: %w", err)
	}
	return nil
}

// GetPromo возвращает промокод.
func (r *PostgresRepository) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	var (
		p      model.PromoCode
		amount float64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT code, amount, uses_left, is_active FROM promo_codes WHERE code = $1`, code,
	).Scan(&p.Code, &amount, &p.UsesLeft, &p.IsActive)
	if err != nil {
		return nil, pgNotFound(err)
	}
	p.Amount = money(amount)
	return &p, nil
}

// SetPromoActive включает или выключает промокод.
func (r *PostgresRepository) SetPromoActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE promo_codes SET is_active = $2 WHERE code = $1`, code, active)
	if err != nil {
		return fmt.Errorf("update promo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RedeemPromo активирует промокод для пользователя и начисляет его сумму.
func (r *PostgresRepository) RedeemPromo(ctx context.Context, code string, userID int64) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgLockActiveUser(ctx, tx, userID); err != nil {
			return err
		}

		var value float64
		err := tx.QueryRow(ctx,
			`UPDATE promo_codes SET uses_left = uses_left - 1
			 WHERE code = $1 AND is_active AND uses_left > 0
			 RETURNING amount`,
			code,
		).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.promoUnavailable(ctx, tx, code)
		}
		if err != nil {
			return fmt.Errorf("decrement promo: %w", err)
		}

		amount = money(value)
		return pgApplyDelta(ctx, tx, userID, amount, model.EntryPromo, code)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// promoUnavailable объясняет, почему условное списание активации не затронуло ни одной строки.
func (r *PostgresRepository) promoUnavailable(ctx context.Context, tx pgx.Tx, code string) error {
	var active bool
	err := tx.QueryRow(ctx, `SELECT is_active FROM promo_codes WHERE code = $1`, code).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !active) {
		return ErrCodeNotFound
	}
	if err != nil {
		return fmt.Errorf("select promo: %w", err)
	}
	return ErrCodeExhausted
}

// GetSetting возвращает значение настройки. Отсутствующий ключ даёт ErrNotFound.
func (r *PostgresRepository) GetSetting(ctx context.Context, key model.SettingKey) (decimal.Decimal, error) {
	var value *string
	if err := r.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, string(key)).Scan(&value); err != nil {
		return decimal.Zero, pgNotFound(err)
	}
	return parseSetting(string(key), value)
}

// SetSetting сохраняет значение настройки.
func (r *PostgresRepository) SetSetting(ctx context.Context, key model.SettingKey, value decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		string(key), value.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}

// ListSettings возвращает сохранённые настройки с корректными значениями.
func (r *PostgresRepository) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	res := make([]model.Setting, 0)
	for rows.Next() {
		var (
			key   string
			value *string
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		v, err := parseSetting(key, value)
		if err != nil {
			continue
		}
		res = append(res, model.Setting{Key: model.SettingKey(key), Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// ListPaymentMethods возвращает способы выплаты.
func (r *PostgresRepository) ListPaymentMethods(ctx context.Context, onlyActive bool) ([]model.PaymentMethod, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, is_active FROM payment_methods WHERE NOT $1 OR is_active ORDER BY id`,
		onlyActive,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}
	defer rows.Close()

	res := make([]model.PaymentMethod, 0)
	for rows.Next() {
		var m model.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.IsActive); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// AddPaymentMethod добавляет активный способ выплаты.
func (r *PostgresRepository) AddPaymentMethod(ctx context.Context, name string) (*model.PaymentMethod, error) {
	m := model.PaymentMethod{Name: name, IsActive: true}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payment_methods (name, is_active) VALUES ($1, TRUE) RETURNING id`, name,
	).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, name)
		}
		return nil, fmt.Errorf("insert payment method: %w", err)
	}
	return &m, nil
}

// SetPaymentMethodActive включает или выключает способ выплаты.
func (r *PostgresRepository) SetPaymentMethodActive(ctx context.Context, name string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payment_methods SET is_active = $2 WHERE name = $1`, name, active)
	if err != nil {
		return fmt.Errorf("update payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const ticketColumns = `id, user_id, message, reply, status, created_at`

func scanTicket(row pgx.Row) (*model.SupportTicket, error) {
	var (
		t      model.SupportTicket
		status string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Message, &t.Reply, &status, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TicketStatus(status)
	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]model.SupportTicket, error) {
	defer rows.Close()
	res := make([]model.SupportTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		res = append(res, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateTicket создаёт обращение в поддержку.
func (r *PostgresRepository) CreateTicket(ctx context.Context, userID int64, message string) (int64, error) {
	var id int64
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := pgLockActiveUser(ctx, tx, userID); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO support_tickets (user_id, message, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
			userID, message, string(model.TicketPending), time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return nil
	})
	return id, err
}

// GetTicket возвращает обращение по идентификатору.
func (r *PostgresRepository) GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id))
	if err != nil {
		return nil, pgNotFound(err)
	}
	return t, nil
}

// ListPendingTickets возвращает обращения без ответа.
func (r *PostgresRepository) ListPendingTickets(ctx context.Context) ([]model.SupportTicket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE status = $1 ORDER BY created_at, id`,
		string(model.TicketPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	return collectTickets(rows)
}

// ListUserTickets возвращает обращения пользователя.
func (r *PostgresRepository) ListUserTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM support_tickets WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select user tickets: %w", err)
	}
	return collectTickets(rows)
}

// ReplyTicket сохраняет ответ и закрывает обращение.
func (r *PostgresRepository) ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error) {
	var res *model.SupportTicket
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return pgNotFound(err)
		}
		if t.Status != model.TicketPending {
			return fmt.Errorf("%w: ticket %d is %s", ErrInvalidState, id, t.Status)
		}

		res, err = scanTicket(tx.QueryRow(ctx,
			`UPDATE support_tickets SET reply = $2, status = $3 WHERE id = $1 RETURNING `+ticketColumns,
			id, reply, string(model.TicketClosed),
		))
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		return nil
	})
	return res, err
}

// ListBalanceEntries возвращает журнал проводок пользователя в хронологическом порядке.
func (r *PostgresRepository) ListBalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, delta, kind, ref, created_at FROM balance_entries WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select balance entries: %w", err)
	}
	defer rows.Close()

	res := make([]model.BalanceEntry, 0)
	for rows.Next() {
		var (
			e     model.BalanceEntry
			delta float64
			kind  string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &delta, &kind, &e.Ref, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan balance entry: %w", err)
		}
		e.Delta, e.Kind = money(delta), model.EntryKind(kind)
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// Stats возвращает сводку для администратора.
func (r *PostgresRepository) Stats(ctx context.Context) (*model.Stats, error) {
	var (
		s       model.Stats
		balance float64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users),
		   (SELECT COALESCE(SUM(balance), 0)::DOUBLE PRECISION FROM users),
		   (SELECT COALESCE(SUM(gmail_sell_count), 0)::BIGINT FROM users),
		   (SELECT COUNT(*) FROM submissions WHERE status = $1),
		   (SELECT COUNT(*) FROM withdrawals WHERE status = $1),
		   (SELECT COUNT(*) FROM support_tickets WHERE status = $1)`,
		"pending",
	).Scan(&s.TotalUsers, &balance, &s.TotalSold, &s.PendingSubmissions, &s.PendingWithdrawals, &s.PendingTickets)
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	s.TotalBalance = money(balance)
	return &s, nil
}
