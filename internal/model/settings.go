package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SettingKey — ключ настройки, изменяемой администратором.
type SettingKey string

const (
	SettingMinWithdraw        SettingKey = "min_withdraw"
	SettingGmailPrice         SettingKey = "gmail_price"
	SettingReferralCommission SettingKey = "referral_commission"
	SettingDailyBonus         SettingKey = "daily_bonus_amount"
)

var settingDefaults = map[SettingKey]decimal.Decimal{
	SettingMinWithdraw:        decimal.NewFromInt(100),
	SettingGmailPrice:         decimal.NewFromInt(5),
	SettingReferralCommission: decimal.NewFromInt(5),
	SettingDailyBonus:         decimal.NewFromInt(2),
}

// SettingKeys возвращает все поддерживаемые ключи в фиксированном порядке.
func SettingKeys() []SettingKey {
	return []SettingKey{SettingGmailPrice, SettingMinWithdraw, SettingDailyBonus, SettingReferralCommission}
}

// ParseSettingKey разбирает ключ настройки. Допускается короткая форма daily_bonus.
func ParseSettingKey(s string) (SettingKey, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "daily_bonus" {
		return SettingDailyBonus, true
	}
	k := SettingKey(s)
	_, ok := settingDefaults[k]
	return k, ok
}

// Default возвращает значение настройки по умолчанию.
func (k SettingKey) Default() decimal.Decimal {
	return settingDefaults[k]
}
