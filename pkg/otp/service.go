// Package otp implements SMS one-time-password login codes.
//
// Sending is rate limited twice: a per-phone cooldown key blocks a second
// send for the same number, and a per-IP counter caps sends per clock
// hour. Codes are six digits drawn from crypto/rand, stored only as a
// SHA-256 digest, valid for a few minutes, and redeemable once. Wrong
// guesses are counted per code; after the limit the code is dead even if
// the right digits arrive later.
//
// Redis keys:
//
//	sms:phone:{phone}               cooldown marker
//	sms:ip:{ip}:{YYYYMMDDHH}        sends from one IP in one UTC hour
//	sms:attempt:{otp_id}            wrong guesses against one code
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"math/big"
	"time"

	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

const (
	// DefaultCodeTTL is how long a code can be redeemed.
	DefaultCodeTTL = 5 * time.Minute

	// DefaultPhoneCooldown is the minimum gap between sends to a phone.
	DefaultPhoneCooldown = 60 * time.Second

	// DefaultIPHourlyLimit caps sends per client IP per UTC hour.
	DefaultIPHourlyLimit = 20

	// DefaultMaxAttempts is the number of wrong guesses that kills a code.
	DefaultMaxAttempts = 5

	codeLength = 6
	ipWindow   = time.Hour
	unknownIP  = "unknown"
)

// Store persists OTP rows.
type Store interface {
	CreateOtp(ctx context.Context, otp *models.SmsOtp) error

	// LatestUnconsumedOtp returns the newest unconsumed code for phone or
	// an error with [sserr.CodeNotFound].
	LatestUnconsumedOtp(ctx context.Context, phone string) (*models.SmsOtp, error)

	// ConsumeOtp sets consumed_at if it is still unset and reports
	// whether this call did so.
	ConsumeOtp(ctx context.Context, id string, now time.Time) (bool, error)
}

// Counters is the key-value store behind the rate limits and attempt
// counters. *redis.Client from pkg/clients/redis implements it.
// IncrWithTTL must increment and set the expiry atomically.
type Counters interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Del(ctx context.Context, keys ...string) (int64, error)
}

// Config configures a [Service]. Zero values use the defaults.
type Config struct {
	CodeTTL       time.Duration
	PhoneCooldown time.Duration
	IPHourlyLimit int
	MaxAttempts   int
}

// Service sends and verifies login codes. It is safe for concurrent use.
type Service struct {
	store    Store
	counters Counters
	sender   Sender
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewService returns a Service. A nil logger uses slog.Default().
func NewService(store Store, counters Counters, sender Sender, cfg Config, logger *slog.Logger) (*Service, error) {
	if store == nil || counters == nil || sender == nil {
		return nil, sserr.New(sserr.CodeValidationRequired, "otp: store, counters and sender are required")
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.PhoneCooldown <= 0 {
		cfg.PhoneCooldown = DefaultPhoneCooldown
	}
	if cfg.IPHourlyLimit <= 0 {
		cfg.IPHourlyLimit = DefaultIPHourlyLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		counters: counters,
		sender:   sender,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Send issues a new code for phone on behalf of a client at ip.
//
// Error codes returned:
//   - [sserr.CodeValidationRequired]: empty phone
//   - [sserr.CodeRateLimited]: phone cooldown active or IP hourly cap hit
//   - storage errors from the Store or Counters
//
// Delivery is fire-and-forget: a Sender failure is logged and Send still
// succeeds, because the code is already persisted.
func (s *Service) Send(ctx context.Context, phone, ip string) error {
	if phone == "" {
		return sserr.New(sserr.CodeValidationRequired, "otp: phone is required")
	}
	if ip == "" {
		ip = unknownIP
	}
	now := s.now().UTC()

	phoneKey := PhoneCooldownKey(phone)
	claimed, err := s.counters.SetNX(ctx, phoneKey, "1", s.cfg.PhoneCooldown)
	if err != nil {
		return err
	}
	if !claimed {
		return sserr.RateLimited("rate limit").WithDetail("limit", "phone")
	}

	code, err := s.issue(ctx, phone, ip, now)
	if err != nil {
		// The cooldown only starts once a code exists.
		if _, delErr := s.counters.Del(ctx, phoneKey); delErr != nil {
			s.logger.WarnContext(ctx, "otp: failed to release phone cooldown", "phone", phone, "error", delErr)
		}
		return err
	}

	if err := s.sender.Send(ctx, phone, code); err != nil {
		s.logger.WarnContext(ctx, "otp: sms delivery failed", "phone", phone, "error", err)
	}
	return nil
}

func (s *Service) issue(ctx context.Context, phone, ip string, now time.Time) (string, error) {
	sent, err := s.counters.IncrWithTTL(ctx, IPCounterKey(ip, now), ipWindow)
	if err != nil {
		return "", err
	}
	if sent > int64(s.cfg.IPHourlyLimit) {
		s.logger.WarnContext(ctx, "otp: ip hourly limit reached", "ip", ip, "count", sent)
		return "", sserr.RateLimited("rate limit").WithDetail("limit", "ip")
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}
	otp := models.NewSmsOtp(phone, hashCode(code), ip, s.cfg.CodeTTL)
	otp.CreatedAt = now
	otp.ExpiresAt = now.Add(s.cfg.CodeTTL)
	if err := s.store.CreateOtp(ctx, otp); err != nil {
		return "", err
	}
	return code, nil
}

// Verify redeems code for phone. ok is false for every non-matching
// case: no outstanding code, expired code, exhausted attempts, wrong
// digits, or a code consumed concurrently. err is only set for storage
// failures.
func (s *Service) Verify(ctx context.Context, phone, code string) (otp *models.SmsOtp, ok bool, err error) {
	if phone == "" || code == "" {
		return nil, false, nil
	}
	now := s.now().UTC()

	otp, err = s.store.LatestUnconsumedOtp(ctx, phone)
	if err != nil {
		if sserr.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if otp.IsExpired(now) {
		return nil, false, nil
	}

	// Every guess takes a slot before the digits are compared, so
	// concurrent guesses cannot exceed MaxAttempts comparisons.
	attemptKey := AttemptKey(otp.ID)
	attempts, err := s.counters.IncrWithTTL(ctx, attemptKey, s.cfg.CodeTTL)
	if err != nil {
		return nil, false, err
	}
	if attempts > int64(s.cfg.MaxAttempts) {
		return nil, false, nil
	}

	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(otp.CodeHash)) != 1 {
		return nil, false, nil
	}

	consumed, err := s.store.ConsumeOtp(ctx, otp.ID, now)
	if err != nil {
		return nil, false, err
	}
	if !consumed {
		return nil, false, nil
	}
	if _, err := s.counters.Del(ctx, attemptKey); err != nil {
		s.logger.WarnContext(ctx, "otp: failed to clear attempt counter", "otp_id", otp.ID, "error", err)
	}
	otp.ConsumedAt = &now
	return otp, true, nil
}

// PhoneCooldownKey is the cooldown marker for phone.
func PhoneCooldownKey(phone string) string {
	return "sms:phone:" + phone
}

// IPCounterKey is the hourly send counter for ip at t.
func IPCounterKey(ip string, t time.Time) string {
	return "sms:ip:" + ip + ":" + t.UTC().Format("2006010215")
}

// AttemptKey is the wrong-guess counter for one code.
func AttemptKey(otpID string) string {
	return "sms:attempt:" + otpID
}

// generateCode returns codeLength digits, each uniform in 0-9.
func generateCode() (string, error) {
	digits := make([]byte, codeLength)
	ten := big.NewInt(10)
	for i := range digits {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", sserr.Wrap(err, sserr.CodeInternal, "otp: failed to generate code")
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
