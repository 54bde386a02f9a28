// Package validation содержит функции нормализации и валидации входных данных.
package validation

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
)

var (
	// ErrInvalidAmount возвращается для нечисловых, нулевых или отрицательных сумм.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCredential возвращается для некорректной пары логин/пароль.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidDestination возвращается для некорректного реквизита выплаты.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrInvalidPromoCode возвращается для пустого или слишком длинного промокода.
	ErrInvalidPromoCode = errors.New("invalid promo code")
)

const (
	maxAmountLen      = 32
	// Границы показателя степени: за ними округление строит огромные множители.
	minAmountExponent = -maxAmountLen
	maxAmountExponent = 12

	maxPromoCodeLen   = 32
	maxLoginLen       = 254
	maxDestinationLen = 64
)

var upper = cases.Upper(language.Und)

// ParseAmount разбирает положительную денежную сумму, округляя её до копеек.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseSignedAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSignedAmount разбирает сумму со знаком, например корректировку баланса.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "৳")
	s = strings.ReplaceAll(s, ",", "")
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, err
	}
	d = d.Round(2)
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseSettingValue разбирает неотрицательное значение настройки. Ноль допустим.
func ParseSettingValue(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// parseDecimal разбирает число ограниченной длины и порядка.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" || len(s) > maxAmountLen {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if exp := d.Exponent(); exp < minAmountExponent || exp > maxAmountExponent {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// NormalizeCredential приводит логин к нижнему регистру и проверяет пару логин/пароль.
func NormalizeCredential(login, password string) (model.Credential, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	password = strings.TrimSpace(password)

	if login == "" || password == "" || len(login) > maxLoginLen {
		return model.Credential{}, ErrInvalidCredential
	}
	if strings.IndexFunc(login, unicode.IsSpace) >= 0 {
		return model.Credential{}, ErrInvalidCredential
	}

	at := strings.LastIndexByte(login, '@')
	if at <= 0 || at == len(login)-1 || !strings.Contains(login[at:], ".") {
		return model.Credential{}, ErrInvalidCredential
	}

	return model.Credential{Login: login, Password: password}, nil
}

// NormalizeDestination проверяет реквизит выплаты: номер телефона или адрес кошелька.
func NormalizeDestination(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxDestinationLen {
		return "", ErrInvalidDestination
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", ErrInvalidDestination
	}

	digits := strings.TrimPrefix(s, "+")
	if isDigits(digits) && (len(digits) < 10 || len(digits) > 15) {
		return "", ErrInvalidDestination
	}

	return s, nil
}

// NormalizePromoCode приводит промокод к верхнему регистру.
func NormalizePromoCode(code string) (string, error) {
	code = upper.String(strings.TrimSpace(code))
	if code == "" || len(code) > maxPromoCodeLen {
		return "", ErrInvalidPromoCode
	}
	for _, ch := range code {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '_' && ch != '-' {
			return "", ErrInvalidPromoCode
		}
	}
	return code, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
