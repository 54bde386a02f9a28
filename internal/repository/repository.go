// Package repository содержит реализации хранилища данных бота: встраиваемую SQLite и PostgreSQL.
package repository

import (
	"crypto/rand"
	"embed"
	"errors"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound возвращается, если запрошенная сущность отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrConflict возвращается при нарушении уникальности.
	ErrConflict = errors.New("already exists")
	// ErrInvalidState возвращается при недопустимом переходе статуса.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrInsufficientFunds возвращается при попытке вывести больше, чем есть на балансе.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrCodeNotFound возвращается для несуществующего или выключенного промокода.
	ErrCodeNotFound = errors.New("promo code not found")
	// ErrCodeExhausted возвращается, если активации промокода закончились.
	ErrCodeExhausted = errors.New("promo code exhausted")
	// ErrBanned возвращается изменяющими операциями, если пользователь заблокирован.
	ErrBanned = errors.New("user is banned")
	// ErrAlreadyClaimed возвращается, если ежедневный бонус уже получен.
	ErrAlreadyClaimed = errors.New("daily bonus already claimed")
)

const (
	referralCodeLen      = 8
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeAttempts = 10
)

func generateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLen)
	limit := big.NewInt(int64(len(referralCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = referralCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// money переводит значение REAL-колонки в сумму с точностью до копеек.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func commissionFor(amount, ratePercent decimal.Decimal) decimal.Decimal {
	if !ratePercent.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(2)
}

func submissionRef(id int64) string {
	return "submission:" + strconv.FormatInt(id, 10)
}

func withdrawalRef(id int64) string {
	return "withdrawal:" + strconv.FormatInt(id, 10)
}

func bonusRef(now time.Time) string {
	return "bonus:" + now.UTC().Format("2006-01-02")
}

func nextClaimAt(last *time.Time, now time.Time, window time.Duration) (time.Time, bool) {
	if last == nil {
		return now, true
	}
	next := last.Add(window)
	return next, !now.Before(next)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
