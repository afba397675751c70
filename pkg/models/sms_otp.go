package models

import (
	"time"

	"github.com/google/uuid"
)

// PurposeLogin is the only OTP purpose the auth core issues.
const PurposeLogin = "login"

// SmsOtp is a one-shot login code. The plaintext code is never stored.
type SmsOtp struct {
	ID         string     `json:"id" db:"id"`
	Phone      string     `json:"phone" db:"phone"`
	CodeHash   string     `json:"-" db:"code_hash"`
	Purpose    string     `json:"purpose" db:"purpose"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
	IP         *string    `json:"ip,omitempty" db:"ip"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// NewSmsOtp returns a login OTP for phone that expires ttl from now.
func NewSmsOtp(phone, codeHash, ip string, ttl time.Duration) *SmsOtp {
	now := time.Now().UTC()
	return &SmsOtp{
		ID:        uuid.NewString(),
		Phone:     phone,
		CodeHash:  codeHash,
		Purpose:   PurposeLogin,
		ExpiresAt: now.Add(ttl),
		IP:        nullable(ip),
		CreatedAt: now,
	}
}

// IsExpired reports whether the code has expired at now.
func (o *SmsOtp) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

func (o *SmsOtp) IsConsumed() bool {
	return o.ConsumedAt != nil
}
