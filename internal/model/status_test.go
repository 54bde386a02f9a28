package model

import "testing"

func TestSubmissionEffect(t *testing.T) {
	tests := []struct {
		name string
		from SubmissionStatus
		to   SubmissionStatus
		want LedgerEffect
	}{
		{name: "approve pending", from: SubmissionPending, to: SubmissionSuccess, want: EffectCredit},
		{name: "approve rejected", from: SubmissionRejected, to: SubmissionSuccess, want: EffectCredit},
		{name: "approve twice", from: SubmissionSuccess, to: SubmissionSuccess, want: EffectNone},
		{name: "reject approved", from: SubmissionSuccess, to: SubmissionRejected, want: EffectDebit},
		{name: "repend approved", from: SubmissionSuccess, to: SubmissionPending, want: EffectDebit},
		{name: "reject pending", from: SubmissionPending, to: SubmissionRejected, want: EffectNone},
		{name: "repend rejected", from: SubmissionRejected, to: SubmissionPending, want: EffectNone},
		{name: "repend pending", from: SubmissionPending, to: SubmissionPending, want: EffectNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SubmissionEffect(tt.from, tt.to); got != tt.want {
				t.Fatalf("SubmissionEffect(%s, %s) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestWithdrawalTransitionAllowed(t *testing.T) {
	tests := []struct {
		from WithdrawalStatus
		to   WithdrawalStatus
		want bool
	}{
		{WithdrawalPending, WithdrawalSuccess, true},
		{WithdrawalPending, WithdrawalRejected, true},
		{WithdrawalPending, WithdrawalPending, false},
		{WithdrawalSuccess, WithdrawalRejected, false},
		{WithdrawalRejected, WithdrawalSuccess, false},
		{WithdrawalSuccess, WithdrawalSuccess, false},
	}

	for _, tt := range tests {
		if got := WithdrawalTransitionAllowed(tt.from, tt.to); got != tt.want {
			t.Fatalf("WithdrawalTransitionAllowed(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDecisionTargets(t *testing.T) {
	if s, ok := DecisionRepend.SubmissionTarget(); !ok || s != SubmissionPending {
		t.Fatalf("repend target = %q, %v", s, ok)
	}
	if _, ok := DecisionRepend.WithdrawalTarget(); ok {
		t.Fatalf("withdrawals must not be re-pended")
	}
	if _, ok := Decision("maybe").SubmissionTarget(); ok {
		t.Fatalf("unknown decision must be rejected")
	}
}

func TestParseSettingKey(t *testing.T) {
	tests := []struct {
		in   string
		want SettingKey
		ok   bool
	}{
		{"gmail_price", SettingGmailPrice, true},
		{" MIN_WITHDRAW ", SettingMinWithdraw, true},
		{"daily_bonus", SettingDailyBonus, true},
		{"daily_bonus_amount", SettingDailyBonus, true},
		{"referral_commission", SettingReferralCommission, true},
		{"unknown", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseSettingKey(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Fatalf("ParseSettingKey(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	if SettingMinWithdraw.Default().IntPart() != 100 {
		t.Fatalf("unexpected min_withdraw default %s", SettingMinWithdraw.Default())
	}
}
