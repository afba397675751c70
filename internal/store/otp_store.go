package store

import (
	"context"
	"time"

	"github.com/StricklySoft/learnhub-auth/pkg/clients/postgres"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const (
	queryInsertOtp = `INSERT INTO sms_otps (id, phone, code_hash, purpose, expires_at, ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	queryLatestUnconsumedOtp = `SELECT id::text, phone, code_hash, purpose, expires_at, consumed_at, ip, created_at
FROM sms_otps WHERE phone = $1 AND consumed_at IS NULL
ORDER BY created_at DESC LIMIT 1`

	queryConsumeOtp = `UPDATE sms_otps SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`
)

// OtpStore persists hashed SMS login codes.
type OtpStore struct {
	db DB
}

func NewOtpStore(db DB) *OtpStore {
	return &OtpStore{db: db}
}

func (s *OtpStore) CreateOtp(ctx context.Context, otp *models.SmsOtp) error {
	purpose := otp.Purpose
	if purpose == "" {
		purpose = models.PurposeLogin
	}
	_, err := s.db.Exec(ctx, queryInsertOtp,
		otp.ID, otp.Phone, otp.CodeHash, purpose, otp.ExpiresAt, otp.IP, otp.CreatedAt,
	)
	return err
}

func (s *OtpStore) LatestUnconsumedOtp(ctx context.Context, phone string) (*models.SmsOtp, error) {
	var o models.SmsOtp
	err := s.db.QueryRow(ctx, queryLatestUnconsumedOtp, phone).Scan(
		&o.ID, &o.Phone, &o.CodeHash, &o.Purpose, &o.ExpiresAt, &o.ConsumedAt, &o.IP, &o.CreatedAt,
	)
	if err != nil {
		return nil, postgres.ScanError(err, "store: otp not found")
	}
	return &o, nil
}

// ConsumeOtp reports false when another request consumed the row first.
func (s *OtpStore) ConsumeOtp(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, queryConsumeOtp, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
