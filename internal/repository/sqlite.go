package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
)

type userRow struct {
	UserID           int64      `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	Username         *string    `gorm:"column:username"`
	FirstName        *string    `gorm:"column:first_name"`
	Balance          float64    `gorm:"column:balance"`
	GmailSellCount   int64      `gorm:"column:gmail_sell_count"`
	TotalWithdraw    float64    `gorm:"column:total_withdraw"`
	IsAdmin          bool       `gorm:"column:is_admin"`
	IsBanned         bool       `gorm:"column:is_banned"`
	LastDailyClaim   *time.Time `gorm:"column:last_daily_claim"`
	JoinDate         time.Time  `gorm:"column:join_date"`
	ReferralCode     *string    `gorm:"column:referral_code"`
	ReferredBy       *int64     `gorm:"column:referred_by"`
	ReferralEarnings float64    `gorm:"column:referral_earnings"`
}

func (userRow) TableName() string { return "users" }

func (r userRow) toModel() *model.User {
	return &model.User{
		ID:               r.UserID,
		Username:         deref(r.Username),
		FirstName:        deref(r.FirstName),
		Balance:          money(r.Balance),
		GmailSellCount:   r.GmailSellCount,
		TotalWithdraw:    money(r.TotalWithdraw),
		IsAdmin:          r.IsAdmin,
		IsBanned:         r.IsBanned,
		LastDailyClaim:   r.LastDailyClaim,
		JoinDate:         r.JoinDate,
		ReferralCode:     deref(r.ReferralCode),
		ReferredBy:       r.ReferredBy,
		ReferralEarnings: money(r.ReferralEarnings),
	}
}

type submissionRow struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	UserID         int64     `gorm:"column:user_id"`
	Gmail          string    `gorm:"column:gmail"`
	Password       string    `gorm:"column:password"`
	Amount         float64   `gorm:"column:amount"`
	Status         string    `gorm:"column:status"`
	SubmissionDate time.Time `gorm:"column:submission_date"`
	RejectReason   *string   `gorm:"column:reject_reason"`
	Commission     float64   `gorm:"column:commission"`
}

func (submissionRow) TableName() string { return "submissions" }

func (r submissionRow) toModel() *model.Submission {
	return &model.Submission{
		ID:           r.ID,
		UserID:       r.UserID,
		Login:        r.Gmail,
		Password:     r.Password,
		Amount:       money(r.Amount),
		Status:       model.SubmissionStatus(r.Status),
		RejectReason: r.RejectReason,
		Commission:   money(r.Commission),
		SubmittedAt:  r.SubmissionDate,
	}
}

type withdrawalRow struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	UserID      int64     `gorm:"column:user_id"`
	Amount      float64   `gorm:"column:amount"`
	Method      string    `gorm:"column:method"`
	Number      string    `gorm:"column:number"`
	Status      string    `gorm:"column:status"`
	RequestDate time.Time `gorm:"column:request_date"`
}

func (withdrawalRow) TableName() string { return "withdrawals" }

func (r withdrawalRow) toModel() *model.Withdrawal {
	return &model.Withdrawal{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      money(r.Amount),
		Method:      r.Method,
		Number:      r.Number,
		Status:      model.WithdrawalStatus(r.Status),
		RequestedAt: r.RequestDate,
	}
}

type ticketRow struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	Message   string    `gorm:"column:message"`
	Reply     *string   `gorm:"column:reply"`
	Status    string    `gorm:"column:status"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ticketRow) TableName() string { return "support_tickets" }

func (r ticketRow) toModel() *model.SupportTicket {
	return &model.SupportTicket{
		ID:        r.ID,
		UserID:    r.UserID,
		Message:   r.Message,
		Reply:     r.Reply,
		Status:    model.TicketStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

type promoRow struct {
	Code     string  `gorm:"column:code;primaryKey"`
	Amount   float64 `gorm:"column:amount"`
	UsesLeft int64   `gorm:"column:uses_left"`
	IsActive bool    `gorm:"column:is_active"`
}

func (promoRow) TableName() string { return "promo_codes" }

func (r promoRow) toModel() *model.PromoCode {
	return &model.PromoCode{
		Code:     r.Code,
		Amount:   money(r.Amount),
		UsesLeft: r.UsesLeft,
		IsActive: r.IsActive,
	}
}

type paymentMethodRow struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	Name     string `gorm:"column:name"`
	IsActive bool   `gorm:"column:is_active"`
}

func (paymentMethodRow) TableName() string { return "payment_methods" }

type settingRow struct {
	Key   string  `gorm:"column:key;primaryKey"`
	Value *string `gorm:"column:value"`
}

func (settingRow) TableName() string { return "settings" }

type balanceEntryRow struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	Delta     float64   `gorm:"column:delta"`
	Kind      string    `gorm:"column:kind"`
	Ref       string    `gorm:"column:ref"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (balanceEntryRow) TableName() string { return "balance_entries" }

// SQLiteRepository хранит данные во встраиваемой SQLite.
// Все изменяющие операции выполняются под общим мьютексом в одной транзакции.
type SQLiteRepository struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewSQLiteRepository открывает файл базы данных и применяет миграции.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// SQLite допускает одного писателя, поэтому держим одно соединение.
	sqlDB.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations/sqlite"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Close закрывает соединение с БД.
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *SQLiteRepository) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.WithContext(ctx).Transaction(fn)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// activeUserRow загружает пользователя внутри транзакции записи и проверяет блокировку.
func activeUserRow(tx *gorm.DB, userID int64) (*userRow, error) {
	var row userRow
	if err := tx.Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	if row.IsBanned {
		return nil, ErrBanned
	}
	return &row, nil
}

// applyDelta меняет баланс и пишет проводку в журнал. Вызывается только внутри транзакции.
// Сумма округляется до копеек, чтобы баланс совпадал с суммой проводок.
func applyDelta(tx *gorm.DB, userID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	delta = delta.Round(2)
	res := tx.Model(&userRow{}).Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", delta.InexactFloat64()))
	if res.Error != nil {
		return fmt.Errorf("update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	entry := balanceEntryRow{
		UserID:    userID,
		Delta:     delta.InexactFloat64(),
		Kind:      string(kind),
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("insert balance entry: %w", err)
	}
	return nil
}

// CreateUserIfAbsent создаёт пользователя, если его ещё нет. Второе значение сообщает, был ли он создан.
func (r *SQLiteRepository) CreateUserIfAbsent(ctx context.Context, u model.NewUser) (*model.User, bool, error) {
	var (
		created *model.User
		isNew   bool
	)
	err := r.write(ctx, func(tx *gorm.DB) error {
		var existing userRow
		err := tx.Where("user_id = ?", u.ID).First(&existing).Error
		if err == nil {
			created = existing.toModel()
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("select user: %w", err)
		}

		code, err := uniqueReferralCode(func(c string) (bool, error) {
			var n int64
			err := tx.Model(&userRow{}).Where("referral_code = ?", c).Count(&n).Error
			return n > 0, err
		})
		if err != nil {
			return err
		}

		var referrer *int64
		if u.ReferrerID != nil && *u.ReferrerID != u.ID {
			var n int64
			if err := tx.Model(&userRow{}).Where("user_id = ?", *u.ReferrerID).Count(&n).Error; err != nil {
				return fmt.Errorf("check referrer: %w", err)
			}
			if n > 0 {
				referrer = u.ReferrerID
			}
		}

		row := userRow{
			UserID:       u.ID,
			Username:     &u.Username,
			FirstName:    &u.FirstName,
			IsAdmin:      u.IsAdmin,
			JoinDate:     time.Now().UTC(),
			ReferralCode: &code,
			ReferredBy:   referrer,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		created, isNew = row.toModel(), true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return created, isNew, nil
}

func uniqueReferralCode(taken func(string) (bool, error)) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code, err := generateReferralCode()
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		busy, err := taken(code)
		if err != nil {
			return "", fmt.Errorf("check referral code: %w", err)
		}
		if !busy {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate referral code: %w", ErrConflict)
}

// GetUser возвращает пользователя по идентификатору.
func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// GetUserByReferralCode ищет пользователя по реферальному коду.
func (r *SQLiteRepository) GetUserByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// SearchUsers ищет пользователей по идентификатору, имени пользователя или имени.
func (r *SQLiteRepository) SearchUsers(ctx context.Context, query string, limit int) ([]model.User, error) {
	q := r.db.WithContext(ctx).Model(&userRow{})
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		q = q.Where("user_id = ?", id)
	} else {
		like := "%" + strings.TrimPrefix(query, "@") + "%"
		q = q.Where("username LIKE ? OR first_name LIKE ?", like, like)
	}

	var rows []userRow
	if err := q.Order("user_id").Limit(limitOrAll(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, *row.toModel())
	}
	return users, nil
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ReferralStats возвращает статистику приглашений пользователя.
func (r *SQLiteRepository) ReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, notFound(err)
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&userRow{}).Where("referred_by = ?", userID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}

	return &model.ReferralStats{
		Code:     deref(row.ReferralCode),
		Count:    count,
		Earnings: money(row.ReferralEarnings),
	}, nil
}

// ApplyBalanceDelta меняет баланс пользователя на delta с записью в журнал.
func (r *SQLiteRepository) ApplyBalanceDelta(ctx context.Context, userID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		return applyDelta(tx, userID, delta, kind, ref)
	})
}

// SetBanned устанавливает признак блокировки пользователя.
func (r *SQLiteRepository) SetBanned(ctx context.Context, userID int64, banned bool) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&userRow{}).Where("user_id = ?", userID).Update("is_banned", banned)
		if res.Error != nil {
			return fmt.Errorf("update ban: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ClaimDailyBonus начисляет ежедневный бонус, если с прошлого получения прошло не меньше window.
// При отказе возвращает время, когда бонус станет доступен, и ErrAlreadyClaimed.
func (r *SQLiteRepository) ClaimDailyBonus(ctx context.Context, userID int64, amount decimal.Decimal, now time.Time, window time.Duration) (time.Time, error) {
	var next time.Time
	err := r.write(ctx, func(tx *gorm.DB) error {
		row, err := activeUserRow(tx, userID)
		if err != nil {
			return err
		}

		var ok bool
		if next, ok = nextClaimAt(row.LastDailyClaim, now, window); !ok {
			return ErrAlreadyClaimed
		}

		if err := tx.Model(&userRow{}).Where("user_id = ?", userID).Update("last_daily_claim", now.UTC()).Error; err != nil {
			return fmt.Errorf("update last claim: %w", err)
		}
		next = now.Add(window)
		return applyDelta(tx, userID, amount, model.EntryDailyBonus, bonusRef(now))
	})
	return next, err
}

// CreateSubmission сохраняет заявку на продажу со снимком цены.
func (r *SQLiteRepository) CreateSubmission(ctx context.Context, userID int64, cred model.Credential, amount decimal.Decimal) (int64, error) {
	var id int64
	err := r.write(ctx, func(tx *gorm.DB) error {
		if _, err := activeUserRow(tx, userID); err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&submissionRow{}).Where("gmail = ?", cred.Login).Count(&n).Error; err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrConflict, cred.Login)
		}

		row := submissionRow{
			UserID:         userID,
			Gmail:          cred.Login,
			Password:       cred.Password,
			Amount:         amount.InexactFloat64(),
			Status:         string(model.SubmissionPending),
			SubmissionDate: time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrConflict, cred.Login)
			}
			return fmt.Errorf("insert submission: %w", err)
		}
		id = row.ID
		return nil
	})
	return id, err
}

// GetSubmission возвращает заявку по идентификатору.
func (r *SQLiteRepository) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	var row submissionRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// ListSubmissions возвращает заявки в порядке поступления. Пустой статус означает все заявки.
func (r *SQLiteRepository) ListSubmissions(ctx context.Context, status model.SubmissionStatus, offset, limit int) ([]model.Submission, error) {
	q := r.db.WithContext(ctx).Model(&submissionRow{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []submissionRow
	if err := q.Order("submission_date, id").Offset(offset).Limit(limitOrAll(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	return submissionsToModel(rows), nil
}

// ListUserSubmissions возвращает заявки пользователя, начиная с последних.
func (r *SQLiteRepository) ListUserSubmissions(ctx context.Context, userID int64) ([]model.Submission, error) {
	var rows []submissionRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("submission_date DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select user submissions: %w", err)
	}
	return submissionsToModel(rows), nil
}

func submissionsToModel(rows []submissionRow) []model.Submission {
	res := make([]model.Submission, 0, len(rows))
	for _, row := range rows {
		res = append(res, *row.toModel())
	}
	return res
}

// ReviewSubmission переводит заявку в статус to и проводит связанные начисления или списания.
// Комиссия реферера рассчитывается по ставке commissionRate (в процентах) при входе в success.
func (r *SQLiteRepository) ReviewSubmission(ctx context.Context, id int64, to model.SubmissionStatus, reason *string, commissionRate decimal.Decimal) (*model.SubmissionReview, error) {
	if !to.Valid() {
		return nil, ErrInvalidState
	}

	var review *model.SubmissionReview
	err := r.write(ctx, func(tx *gorm.DB) error {
		var sub submissionRow
		if err := tx.Where("id = ?", id).First(&sub).Error; err != nil {
			return notFound(err)
		}

		prev := model.SubmissionStatus(sub.Status)
		review = &model.SubmissionReview{Previous: prev}
		if prev == to {
			review.Submission = sub.toModel()
			return nil
		}

		var owner userRow
		if err := tx.Where("user_id = ?", sub.UserID).First(&owner).Error; err != nil {
			return fmt.Errorf("select owner: %w", notFound(err))
		}

		amount := money(sub.Amount)
		commission := money(sub.Commission)
		ref := submissionRef(sub.ID)

		switch model.SubmissionEffect(prev, to) {
		case model.EffectCredit:
			if err := applyDelta(tx, owner.UserID, amount, model.EntrySubmissionCredit, ref); err != nil {
				return err
			}
			if err := tx.Model(&userRow{}).Where("user_id = ?", owner.UserID).
				Update("gmail_sell_count", gorm.Expr("gmail_sell_count + 1")).Error; err != nil {
				return fmt.Errorf("update sell count: %w", err)
			}

			commission = decimal.Zero
			if owner.ReferredBy != nil {
				commission = commissionFor(amount, commissionRate)
				if commission.IsPositive() {
					if err := creditReferrer(tx, *owner.ReferredBy, commission, model.EntryReferralCommission, ref); err != nil {
						return err
					}
					review.ReferrerID, review.Commission = owner.ReferredBy, commission
				}
			}

		case model.EffectDebit:
			if err := applyDelta(tx, owner.UserID, amount.Neg(), model.EntrySubmissionReversal, ref); err != nil {
				return err
			}
			if err := tx.Model(&userRow{}).Where("user_id = ?", owner.UserID).
				Update("gmail_sell_count", gorm.Expr("gmail_sell_count - 1")).Error; err != nil {
				return fmt.Errorf("update sell count: %w", err)
			}

			if commission.IsPositive() && owner.ReferredBy != nil {
				if err := creditReferrer(tx, *owner.ReferredBy, commission.Neg(), model.EntryReferralReversal, ref); err != nil {
					return err
				}
				review.ReferrerID, review.Commission = owner.ReferredBy, commission.Neg()
			}
			commission = decimal.Zero
		}

		updates := map[string]any{
			"status":        string(to),
			"reject_reason": nil,
			"commission":    commission.InexactFloat64(),
		}
		if to == model.SubmissionRejected && reason != nil {
			updates["reject_reason"] = *reason
		}
		if err := tx.Model(&submissionRow{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update submission: %w", err)
		}

		if err := tx.Where("id = ?", sub.ID).First(&sub).Error; err != nil {
			return fmt.Errorf("reload submission: %w", err)
		}
		review.Submission = sub.toModel()
		review.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

func creditReferrer(tx *gorm.DB, referrerID int64, delta decimal.Decimal, kind model.EntryKind, ref string) error {
	if err := applyDelta(tx, referrerID, delta, kind, ref); err != nil {
		return fmt.Errorf("referrer %d: %w", referrerID, err)
	}
	if err := tx.Model(&userRow{}).Where("user_id = ?", referrerID).
		Update("referral_earnings", gorm.Expr("referral_earnings + ?", delta.InexactFloat64())).Error; err != nil {
		return fmt.Errorf("update referral earnings: %w", err)
	}
	return nil
}

// CreateWithdrawal резервирует сумму на балансе и создаёт запрос на вывод.
func (r *SQLiteRepository) CreateWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, number string) (int64, error) {
	var id int64
	err := r.write(ctx, func(tx *gorm.DB) error {
		user, err := activeUserRow(tx, userID)
		if err != nil {
			return err
		}
		if money(user.Balance).LessThan(amount) {
			return ErrInsufficientFunds
		}

		row := withdrawalRow{
			UserID:      userID,
			Amount:      amount.InexactFloat64(),
			Method:      method,
			Number:      number,
			Status:      string(model.WithdrawalPending),
			RequestDate: time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		id = row.ID
		return applyDelta(tx, userID, amount.Neg(), model.EntryWithdrawalReserve, withdrawalRef(row.ID))
	})
	return id, err
}

// GetWithdrawal возвращает запрос на вывод по идентификатору.
func (r *SQLiteRepository) GetWithdrawal(ctx context.Context, id int64) (*model.Withdrawal, error) {
	var row withdrawalRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// ListWithdrawals возвращает запросы на вывод в порядке поступления.
func (r *SQLiteRepository) ListWithdrawals(ctx context.Context, status model.WithdrawalStatus, offset, limit int) ([]model.Withdrawal, error) {
	q := r.db.WithContext(ctx).Model(&withdrawalRow{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var rows []withdrawalRow
	if err := q.Order("request_date, id").Offset(offset).Limit(limitOrAll(limit)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select withdrawals: %w", err)
	}
	return withdrawalsToModel(rows), nil
}

// ListUserWithdrawals возвращает выводы пользователя, начиная с последних.
func (r *SQLiteRepository) ListUserWithdrawals(ctx context.Context, userID int64) ([]model.Withdrawal, error) {
	var rows []withdrawalRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("request_date DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select user withdrawals: %w", err)
	}
	return withdrawalsToModel(rows), nil
}

func withdrawalsToModel(rows []withdrawalRow) []model.Withdrawal {
	res := make([]model.Withdrawal, 0, len(rows))
	for _, row := range rows {
		res = append(res, *row.toModel())
	}
	return res
}

// ReviewWithdrawal завершает запрос на вывод: success учитывает сумму в total_withdraw, rejected возвращает её на баланс.
func (r *SQLiteRepository) ReviewWithdrawal(ctx context.Context, id int64, to model.WithdrawalStatus) (*model.Withdrawal, error) {
	var res *model.Withdrawal
	err := r.write(ctx, func(tx *gorm.DB) error {
		var row withdrawalRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return notFound(err)
		}
		if !model.WithdrawalTransitionAllowed(model.WithdrawalStatus(row.Status), to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidState, row.Status, to)
		}

		if err := tx.Model(&withdrawalRow{}).Where("id = ?", id).Update("status", string(to)).Error; err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		switch to {
		case model.WithdrawalSuccess:
			if err := tx.Model(&userRow{}).Where("user_id = ?", row.UserID).
				Update("total_withdraw", gorm.Expr("total_withdraw + ?", row.Amount)).Error; err != nil {
				return fmt.Errorf("update total withdraw: %w", err)
			}
		case model.WithdrawalRejected:
			if err := applyDelta(tx, row.UserID, money(row.Amount), model.EntryWithdrawalRefund, withdrawalRef(id)); err != nil {
				return err
			}
		}

		row.Status = string(to)
		res = row.toModel()
		return nil
	})
	return res, err
}

// CreatePromo создаёт промокод.
func (r *SQLiteRepository) CreatePromo(ctx context.Context, p model.PromoCode) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&promoRow{}).Where("code = ?", p.Code).Count(&n).Error; err != nil {
			return fmt.Errorf("check promo: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrConflict, p.Code)
		}

		row := promoRow{Code: p.Code, Amount: p.Amount.InexactFloat64(), UsesLeft: p.UsesLeft, IsActive: p.IsActive}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrConflict, p.Code)
			}
			return fmt.Errorf("insert promo: %w", err)
		}
		return nil
	})
}

// GetPromo возвращает промокод.
func (r *SQLiteRepository) GetPromo(ctx context.Context, code string) (*model.PromoCode, error) {
	var row promoRow
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// SetPromoActive включает или выключает промокод.
func (r *SQLiteRepository) SetPromoActive(ctx context.Context, code string, active bool) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&promoRow{}).Where("code = ?", code).Update("is_active", active)
		if res.Error != nil {
			return fmt.Errorf("update promo: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RedeemPromo активирует промокод для пользователя и начисляет его сумму.
func (r *SQLiteRepository) RedeemPromo(ctx context.Context, code string, userID int64) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := r.write(ctx, func(tx *gorm.DB) error {
		if _, err := activeUserRow(tx, userID); err != nil {
			return err
		}

		var p promoRow
		if err := tx.Where("code = ?", code).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCodeNotFound
			}
			return fmt.Errorf("select promo: %w", err)
		}
		if !p.IsActive {
			return ErrCodeNotFound
		}
		if p.UsesLeft <= 0 {
			return ErrCodeExhausted
		}

		res := tx.Model(&promoRow{}).
			Where("code = ? AND is_active = ? AND uses_left > 0", code, true).
			Update("uses_left", gorm.Expr("uses_left - 1"))
		if res.Error != nil {
			return fmt.Errorf("decrement promo: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrCodeExhausted
		}

		amount = money(p.Amount)
		return applyDelta(tx, userID, amount, model.EntryPromo, code)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// GetSetting возвращает значение настройки. Отсутствующий ключ даёт ErrNotFound.
func (r *SQLiteRepository) GetSetting(ctx context.Context, key model.SettingKey) (decimal.Decimal, error) {
	var row settingRow
	if err := r.db.WithContext(ctx).Where("key = ?", string(key)).First(&row).Error; err != nil {
		return decimal.Zero, notFound(err)
	}
	return parseSetting(row.Key, row.Value)
}

func parseSetting(key string, value *string) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, ErrNotFound
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*value))
	if err != nil {
		// Испорченное значение равносильно отсутствующему: сервис подставит значение по умолчанию.
		return decimal.Zero, fmt.Errorf("%w: setting %s has invalid value %q", ErrNotFound, key, *value)
	}
	return d, nil
}

// SetSetting сохраняет значение настройки.
func (r *SQLiteRepository) SetSetting(ctx context.Context, key model.SettingKey, value decimal.Decimal) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		v := value.String()
		row := settingRow{Key: string(key), Value: &v}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert setting: %w", err)
		}
		return nil
	})
}

// ListSettings возвращает сохранённые настройки с корректными значениями.
func (r *SQLiteRepository) ListSettings(ctx context.Context) ([]model.Setting, error) {
	var rows []settingRow
	if err := r.db.WithContext(ctx).Order("key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}

	res := make([]model.Setting, 0, len(rows))
	for _, row := range rows {
		v, err := parseSetting(row.Key, row.Value)
		if err != nil {
			continue
		}
		res = append(res, model.Setting{Key: model.SettingKey(row.Key), Value: v})
	}
	return res, nil
}

// ListPaymentMethods возвращает способы выплаты.
func (r *SQLiteRepository) ListPaymentMethods(ctx context.Context, onlyActive bool) ([]model.PaymentMethod, error) {
	q := r.db.WithContext(ctx).Model(&paymentMethodRow{})
	if onlyActive {
		q = q.Where("is_active = ?", true)
	}
	var rows []paymentMethodRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select payment methods: %w", err)
	}

	res := make([]model.PaymentMethod, 0, len(rows))
	for _, row := range rows {
		res = append(res, model.PaymentMethod{ID: row.ID, Name: row.Name, IsActive: row.IsActive})
	}
	return res, nil
}

// AddPaymentMethod добавляет активный способ выплаты.
func (r *SQLiteRepository) AddPaymentMethod(ctx context.Context, name string) (*model.PaymentMethod, error) {
	var res *model.PaymentMethod
	err := r.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&paymentMethodRow{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("check payment method: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrConflict, name)
		}

		row := paymentMethodRow{Name: name, IsActive: true}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert payment method: %w", err)
		}
		res = &model.PaymentMethod{ID: row.ID, Name: row.Name, IsActive: row.IsActive}
		return nil
	})
	return res, err
}

// SetPaymentMethodActive включает или выключает способ выплаты.
func (r *SQLiteRepository) SetPaymentMethodActive(ctx context.Context, name string, active bool) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&paymentMethodRow{}).Where("name = ?", name).Update("is_active", active)
		if res.Error != nil {
			return fmt.Errorf("update payment method: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateTicket создаёт обращение в поддержку.
func (r *SQLiteRepository) CreateTicket(ctx context.Context, userID int64, message string) (int64, error) {
	var id int64
	err := r.write(ctx, func(tx *gorm.DB) error {
		if _, err := activeUserRow(tx, userID); err != nil {
			return err
		}

		row := ticketRow{
			UserID:    userID,
			Message:   message,
			Status:    string(model.TicketPending),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		id = row.ID
		return nil
	})
	return id, err
}

// GetTicket возвращает обращение по идентификатору.
func (r *SQLiteRepository) GetTicket(ctx context.Context, id int64) (*model.SupportTicket, error) {
	var row ticketRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// ListPendingTickets возвращает обращения без ответа.
func (r *SQLiteRepository) ListPendingTickets(ctx context.Context) ([]model.SupportTicket, error) {
	var rows []ticketRow
	if err := r.db.WithContext(ctx).Where("status = ?", string(model.TicketPending)).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	return ticketsToModel(rows), nil
}

// ListUserTickets возвращает обращения пользователя.
func (r *SQLiteRepository) ListUserTickets(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	var rows []ticketRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select user tickets: %w", err)
	}
	return ticketsToModel(rows), nil
}

func ticketsToModel(rows []ticketRow) []model.SupportTicket {
	res := make([]model.SupportTicket, 0, len(rows))
	for _, row := range rows {
		res = append(res, *row.toModel())
	}
	return res
}

// ReplyTicket сохраняет ответ и закрывает обращение.
func (r *SQLiteRepository) ReplyTicket(ctx context.Context, id int64, reply string) (*model.SupportTicket, error) {
	var res *model.SupportTicket
	err := r.write(ctx, func(tx *gorm.DB) error {
		var row ticketRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return notFound(err)
		}
		if row.Status != string(model.TicketPending) {
			return fmt.Errorf("%w: ticket %d is %s", ErrInvalidState, id, row.Status)
		}

		err := tx.Model(&ticketRow{}).Where("id = ?", id).Updates(map[string]any{
			"reply":  reply,
			"status": string(model.TicketClosed),
		}).Error
		if err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}

		row.Reply, row.Status = &reply, string(model.TicketClosed)
		res = row.toModel()
		return nil
	})
	return res, err
}

// ListBalanceEntries возвращает журнал проводок пользователя в хронологическом порядке.
func (r *SQLiteRepository) ListBalanceEntries(ctx context.Context, userID int64) ([]model.BalanceEntry, error) {
	var rows []balanceEntryRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select balance entries: %w", err)
	}

	res := make([]model.BalanceEntry, 0, len(rows))
	for _, row := range rows {
		res = append(res, model.BalanceEntry{
			ID:        row.ID,
			UserID:    row.UserID,
			Delta:     money(row.Delta),
			Kind:      model.EntryKind(row.Kind),
			Ref:       row.Ref,
			CreatedAt: row.CreatedAt,
		})
	}
	return res, nil
}

// Stats возвращает сводку для администратора.
func (r *SQLiteRepository) Stats(ctx context.Context) (*model.Stats, error) {
	db := r.db.WithContext(ctx)

	var agg struct {
		Users   int64
		Balance float64
		Sold    int64
	}
	err := db.Raw(`SELECT COUNT(*) AS users,
		COALESCE(SUM(balance), 0) AS balance,
		COALESCE(SUM(gmail_sell_count), 0) AS sold
		FROM users`).Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate users: %w", err)
	}

	s := &model.Stats{
		TotalUsers:   agg.Users,
		TotalBalance: money(agg.Balance),
		TotalSold:    agg.Sold,
	}
	if err := db.Model(&submissionRow{}).Where("status = ?", string(model.SubmissionPending)).Count(&s.PendingSubmissions).Error; err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	if err := db.Model(&withdrawalRow{}).Where("status = ?", string(model.WithdrawalPending)).Count(&s.PendingWithdrawals).Error; err != nil {
		return nil, fmt.Errorf("count withdrawals: %w", err)
	}
	if err := db.Model(&ticketRow{}).Where("status = ?", string(model.TicketPending)).Count(&s.PendingTickets).Error; err != nil {
		return nil, fmt.Errorf("count tickets: %w", err)
	}
	return s, nil
}
