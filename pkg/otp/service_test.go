package otp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/learnhub-auth/internal/testutil"
	"github.com/StricklySoft/learnhub-auth/internal/testutil/fixtures"
	redisclient "github.com/StricklySoft/learnhub-auth/pkg/clients/redis"
	sserr "github.com/StricklySoft/learnhub-auth/pkg/errors"
	"github.com/StricklySoft/learnhub-auth/pkg/models"
)

var _ Counters = (*redisclient.Client)(nil)

// captureSender remembers the last code per phone.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
	err   error
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (c *captureSender) Send(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
	c.codes[phone] = code
	return c.err
}

func (c *captureSender) Code(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[phone]
}

// stingyOtpStore never lets a code be consumed and counts how often a
// guess got far enough to try.
type stingyOtpStore struct {
	*testutil.MemoryOtpStore
	consumeCalls atomic.Int64
}

func (s *stingyOtpStore) ConsumeOtp(context.Context, string, time.Time) (bool, error) {
	s.consumeCalls.Add(1)
	return false, nil
}

// brokenOtpStore fails every insert.
type brokenOtpStore struct {
	*testutil.MemoryOtpStore
}

func (brokenOtpStore) CreateOtp(context.Context, *models.SmsOtp) error {
	return sserr.New(sserr.CodeInternalDatabase, "insert failed")
}

type harness struct {
	svc    *Service
	mr     *miniredis.Miniredis
	store  *testutil.MemoryOtpStore
	sender *captureSender
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	mr, client := testutil.StartMiniRedis(t)
	store := testutil.NewMemoryOtpStore()
	sender := newCaptureSender()
	svc, err := NewService(store, client, sender, cfg, nil)
	require.NoError(t, err)
	return &harness{svc: svc, mr: mr, store: store, sender: sender}
}

// wrongCode returns a code that differs from code in every digit.
func wrongCode(code string) string {
	b := []byte(code)
	for i := range b {
		b[i] = '0' + (b[i]-'0'+1)%10
	}
	return string(b)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()
	_, err := NewService(nil, nil, nil, Config{}, nil)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)

	h := newHarness(t, Config{})
	assert.Equal(t, DefaultCodeTTL, h.svc.cfg.CodeTTL)
	assert.Equal(t, DefaultPhoneCooldown, h.svc.cfg.PhoneCooldown)
	assert.Equal(t, DefaultIPHourlyLimit, h.svc.cfg.IPHourlyLimit)
	assert.Equal(t, DefaultMaxAttempts, h.svc.cfg.MaxAttempts)
}

func TestSend_PersistsHashedCode(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))

	code := h.sender.Code(fixtures.Phone)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), code)

	otps := h.store.Otps()
	require.Len(t, otps, 1)
	assert.Equal(t, fixtures.Phone, otps[0].Phone)
	assert.Equal(t, hashCode(code), otps[0].CodeHash)
	assert.NotContains(t, otps[0].CodeHash, code)
	assert.Equal(t, "login", otps[0].Purpose)
	require.NotNil(t, otps[0].IP)
	assert.Equal(t, fixtures.ClientIP, *otps[0].IP)
	assert.WithinDuration(t, time.Now().Add(DefaultCodeTTL), otps[0].ExpiresAt, 5*time.Second)

	assert.True(t, h.mr.Exists(PhoneCooldownKey(fixtures.Phone)))
	assert.Equal(t, DefaultPhoneCooldown, h.mr.TTL(PhoneCooldownKey(fixtures.Phone)))
}

func TestSend_RequiresPhone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	err := h.svc.Send(context.Background(), "", fixtures.ClientIP)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
}

func TestSend_PhoneCooldown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))

	err := h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP)
	testutil.RequireErrorCode(t, err, sserr.CodeRateLimited)
	ssErr, _ := sserr.AsError(err)
	assert.Equal(t, 429, ssErr.HTTPStatus())
	assert.Len(t, h.store.Otps(), 1)

	// Another phone is not affected.
	require.NoError(t, h.svc.Send(ctx, fixtures.AltPhone, fixtures.ClientIP))

	h.mr.FastForward(DefaultPhoneCooldown + time.Second)
	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	assert.Len(t, h.store.Otps(), 3)
}

func TestSend_ConcurrentSendsForOnePhone(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	const workers = 50
	var (
		wg      sync.WaitGroup
		sent    atomic.Int64
		limited atomic.Int64
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.svc.Send(ctx, fixtures.Phone, fmt.Sprintf("198.51.100.%d", i+1))
			switch {
			case err == nil:
				sent.Add(1)
			case sserr.IsRateLimited(err):
				limited.Add(1)
			default:
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), sent.Load(), "one send per cooldown window")
	assert.Equal(t, int64(workers-1), limited.Load())
	assert.Len(t, h.store.Otps(), 1)
}

func TestSend_FailedIssueReleasesCooldown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ip limit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{IPHourlyLimit: 1})
		require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))

		err := h.svc.Send(ctx, fixtures.AltPhone, fixtures.ClientIP)
		testutil.RequireErrorCode(t, err, sserr.CodeRateLimited)
		assert.False(t, h.mr.Exists(PhoneCooldownKey(fixtures.AltPhone)))

		require.NoError(t, h.svc.Send(ctx, fixtures.AltPhone, "198.51.100.1"))
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()
		mr, client := testutil.StartMiniRedis(t)
		svc, err := NewService(brokenOtpStore{testutil.NewMemoryOtpStore()}, client, newCaptureSender(), Config{}, nil)
		require.NoError(t, err)

		err = svc.Send(ctx, fixtures.Phone, fixtures.ClientIP)
		testutil.RequireErrorCode(t, err, sserr.CodeInternalDatabase)
		assert.False(t, mr.Exists(PhoneCooldownKey(fixtures.Phone)))
	})
}

func TestSend_IPHourlyLimit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{IPHourlyLimit: 3})
	ctx := context.Background()
	phones := []string{"+8613000000001", "+8613000000002", "+8613000000003", "+8613000000004"}

	for _, p := range phones[:3] {
		require.NoError(t, h.svc.Send(ctx, p, fixtures.ClientIP))
	}
	err := h.svc.Send(ctx, phones[3], fixtures.ClientIP)
	testutil.RequireErrorCode(t, err, sserr.CodeRateLimited)

	// A different IP has its own budget.
	require.NoError(t, h.svc.Send(ctx, phones[3], "198.51.100.1"))

	key := IPCounterKey(fixtures.ClientIP, time.Now())
	ttl := h.mr.TTL(key)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestSend_EmptyIPUsesUnknownBucket(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	require.NoError(t, h.svc.Send(context.Background(), fixtures.Phone, ""))
	assert.True(t, h.mr.Exists(IPCounterKey(unknownIP, time.Now())))
}

func TestSend_DeliveryFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	h.sender.err = errors.New("sms gateway down")

	require.NoError(t, h.svc.Send(context.Background(), fixtures.Phone, fixtures.ClientIP))
	assert.Len(t, h.store.Otps(), 1)
}

func TestVerify_OneShot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := h.sender.Code(fixtures.Phone)

	otp, ok, err := h.svc.Verify(ctx, fixtures.Phone, code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, fixtures.Phone, otp.Phone)
	assert.True(t, otp.IsConsumed())

	_, ok, err = h.svc.Verify(ctx, fixtures.Phone, code)
	require.NoError(t, err)
	assert.False(t, ok, "a code can be redeemed once")
}

func TestVerify_NoMatchCases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("no code sent", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		_, ok, err := h.svc.Verify(ctx, fixtures.Phone, "123456")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		_, ok, err := h.svc.Verify(ctx, "", "")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
		h.store.ExpireAll(time.Now().Add(-time.Second))

		_, ok, err := h.svc.Verify(ctx, fixtures.Phone, h.sender.Code(fixtures.Phone))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong phone", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, Config{})
		require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))

		_, ok, err := h.svc.Verify(ctx, fixtures.AltPhone, h.sender.Code(fixtures.Phone))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerify_AttemptLockout(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := h.sender.Code(fixtures.Phone)
	otpID := h.store.Otps()[0].ID

	for range DefaultMaxAttempts {
		_, ok, err := h.svc.Verify(ctx, fixtures.Phone, wrongCode(code))
		require.NoError(t, err)
		require.False(t, ok)
	}
	got, err := h.mr.Get(AttemptKey(otpID))
	require.NoError(t, err)
	assert.Equal(t, "5", got)
	assert.Equal(t, DefaultCodeTTL, h.mr.TTL(AttemptKey(otpID)))

	_, ok, err := h.svc.Verify(ctx, fixtures.Phone, code)
	require.NoError(t, err)
	assert.False(t, ok, "the right code is refused after the attempt limit")
	assert.False(t, h.store.Otps()[0].IsConsumed())
}

func TestVerify_ConcurrentWrongGuesses(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := h.sender.Code(fixtures.Phone)
	otpID := h.store.Otps()[0].ID

	const workers = 200
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := h.svc.Verify(ctx, fixtures.Phone, wrongCode(code))
			assert.NoError(t, err)
			assert.False(t, ok)
		}()
	}
	wg.Wait()

	got, err := h.mr.Get(AttemptKey(otpID))
	require.NoError(t, err)
	assert.Equal(t, "200", got)

	_, ok, err := h.svc.Verify(ctx, fixtures.Phone, code)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, h.store.Otps()[0].IsConsumed())
}

func TestVerify_ConcurrentGuessesBoundedByAttemptLimit(t *testing.T) {
	t.Parallel()
	_, client := testutil.StartMiniRedis(t)
	store := &stingyOtpStore{MemoryOtpStore: testutil.NewMemoryOtpStore()}
	sender := newCaptureSender()
	svc, err := NewService(store, client, sender, Config{}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := sender.Code(fixtures.Phone)

	// Matching guesses reach ConsumeOtp only while attempt slots remain.
	const workers = 100
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.Verify(ctx, fixtures.Phone, code)
			assert.NoError(t, err)
			assert.False(t, ok)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(DefaultMaxAttempts), store.consumeCalls.Load())
}

func TestVerify_SuccessClearsAttempts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := h.sender.Code(fixtures.Phone)
	otpID := h.store.Otps()[0].ID

	_, ok, err := h.svc.Verify(ctx, fixtures.Phone, wrongCode(code))
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, h.mr.Exists(AttemptKey(otpID)))

	_, ok, err = h.svc.Verify(ctx, fixtures.Phone, code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, h.mr.Exists(AttemptKey(otpID)))
}

func TestVerify_LatestCodeWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	first := h.sender.Code(fixtures.Phone)
	h.mr.FastForward(DefaultPhoneCooldown + time.Second)
	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	second := h.sender.Code(fixtures.Phone)

	if first != second {
		_, ok, err := h.svc.Verify(ctx, fixtures.Phone, first)
		require.NoError(t, err)
		assert.False(t, ok, "an older code is superseded")
	}
	_, ok, err := h.svc.Verify(ctx, fixtures.Phone, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_ConcurrentRedeemSucceedsOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.Send(ctx, fixtures.Phone, fixtures.ClientIP))
	code := h.sender.Code(fixtures.Phone)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := h.svc.Verify(ctx, fixtures.Phone, code)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestGenerateCode(t *testing.T) {
	t.Parallel()
	seen := make(map[byte]bool)
	for range 200 {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, codeLength)
		for i := 0; i < len(code); i++ {
			require.True(t, code[i] >= '0' && code[i] <= '9')
			seen[code[i]] = true
		}
	}
	assert.Len(t, seen, 10, "every digit should appear across 1200 draws")
}

func TestKeys(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 10, 17, 9, 45, 0, 0, time.FixedZone("CST", 8*3600))
	assert.Equal(t, "sms:phone:+8613800138000", PhoneCooldownKey(fixtures.Phone))
	assert.Equal(t, "sms:ip:203.0.113.7:2026101701", IPCounterKey(fixtures.ClientIP, at))
	assert.Equal(t, "sms:attempt:abc", AttemptKey("abc"))
}
