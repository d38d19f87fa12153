package twofactor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestChallenger(t *testing.T, cfg Config) (*Challenger, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	c, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, mr
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestIssueWritesCodeAndAttempts(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	before := time.Now()
	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if len(ch.Code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", ch.Code)
	}
	if ch.RemainingAttempts != 3 {
		t.Fatalf("expected 3 remaining attempts, got %d", ch.RemainingAttempts)
	}
	if ch.ExpiresAt.Before(before.Add(10*time.Minute)) || ch.ExpiresAt.After(time.Now().Add(10*time.Minute)) {
		t.Fatalf("unexpected expiry %v", ch.ExpiresAt)
	}

	stored, err := mr.Get("2fa:code:{u1}")
	if err != nil || stored != ch.Code {
		t.Fatalf("expected stored code %q, got %q (%v)", ch.Code, stored, err)
	}
	attempts, err := mr.Get("2fa:attempts:{u1}")
	if err != nil || attempts != "3" {
		t.Fatalf("expected attempts 3, got %q (%v)", attempts, err)
	}
	if ttl := mr.TTL("2fa:code:{u1}"); ttl != 10*time.Minute {
		t.Fatalf("expected code TTL 10m, got %v", ttl)
	}
	if ttl := mr.TTL("2fa:attempts:{u1}"); ttl != 10*time.Minute {
		t.Fatalf("expected attempts TTL 10m, got %v", ttl)
	}
}

func TestVerifyCorrectCodeConsumesChallenge(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := c.Verify(ctx, "u1", ch.Code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if mr.Exists("2fa:code:{u1}") || mr.Exists("2fa:attempts:{u1}") {
		t.Fatal("expected code and attempts to be deleted")
	}
	if mr.Exists("2fa:blocked:{u1}") {
		t.Fatal("expected no blocked marker after success")
	}
	if err := c.Verify(ctx, "u1", ch.Code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired on replay, got %v", err)
	}
}

func TestVerifyWithoutChallengeIsExpired(t *testing.T) {
	c, _ := newTestChallenger(t, DefaultConfig())

	if err := c.Verify(context.Background(), "nobody", "123456"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerifyAfterTTLIsExpired(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.FastForward(10*time.Minute + time.Second)

	if err := c.Verify(ctx, "u1", ch.Code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestRetryThenLockout(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	bad := wrongCode(ch.Code)

	for _, want := range []int{2, 1} {
		err := c.Verify(ctx, "u1", bad)
		var incorrect *IncorrectCodeError
		if !errors.As(err, &incorrect) {
			t.Fatalf("expected IncorrectCodeError, got %v", err)
		}
		if incorrect.RemainingAttempts != want {
			t.Fatalf("expected %d remaining, got %d", want, incorrect.RemainingAttempts)
		}
		if !errors.Is(err, ErrIncorrectCode) {
			t.Fatal("expected IncorrectCodeError to match ErrIncorrectCode")
		}
	}

	err = c.Verify(ctx, "u1", bad)
	var exceeded *MaxAttemptsError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected MaxAttemptsError, got %v", err)
	}
	if exceeded.BlockDurationSeconds() != 1800 {
		t.Fatalf("expected block of 1800s, got %d", exceeded.BlockDurationSeconds())
	}
	if mr.Exists("2fa:code:{u1}") || mr.Exists("2fa:attempts:{u1}") {
		t.Fatal("expected code and attempts to be deleted on lockout")
	}
	if ttl := mr.TTL("2fa:blocked:{u1}"); ttl != 30*time.Minute {
		t.Fatalf("expected blocked TTL 30m, got %v", ttl)
	}

	err = c.Verify(ctx, "u1", ch.Code)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError for correct code after lockout, got %v", err)
	}
	if blocked.RetryAfterSeconds() <= 0 || blocked.RetryAfterSeconds() > 1800 {
		t.Fatalf("unexpected retry-after %d", blocked.RetryAfterSeconds())
	}
}

func TestMismatchPreservesTTLWindow(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.FastForward(4 * time.Minute)

	if err := c.Verify(ctx, "u1", wrongCode(ch.Code)); !errors.Is(err, ErrIncorrectCode) {
		t.Fatalf("expected ErrIncorrectCode, got %v", err)
	}
	if ttl := mr.TTL("2fa:attempts:{u1}"); ttl > 6*time.Minute || ttl <= 0 {
		t.Fatalf("expected attempts TTL to keep the original window, got %v", ttl)
	}
}

func TestIssueWhileBlockedReportsRetryAfter(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	mr.Set("2fa:blocked:{u1}", "1")
	mr.SetTTL("2fa:blocked:{u1}", 90*time.Second)

	_, err := c.Issue(ctx, "u1")
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected BlockedError, got %v", err)
	}
	if blocked.RetryAfter <= 0 || blocked.RetryAfter > 90*time.Second {
		t.Fatalf("unexpected retry-after %v", blocked.RetryAfter)
	}
	if blocked.Error() != "user blocked, retry in 2 minutes" {
		t.Fatalf("unexpected message %q", blocked.Error())
	}
	if mr.Exists("2fa:code:{u1}") {
		t.Fatal("expected no code to be written while blocked")
	}

	mr.FastForward(91 * time.Second)
	if _, err := c.Issue(ctx, "u1"); err != nil {
		t.Fatalf("expected issue to succeed after block lapses, got %v", err)
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	c, _ := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		first, err := c.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		second, err := c.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("second Issue failed: %v", err)
		}
		if first.Code == second.Code {
			continue
		}

		err = c.Verify(ctx, "u1", first.Code)
		if err == nil {
			t.Fatal("first code must not verify after re-issue")
		}
		if !errors.Is(err, ErrIncorrectCode) && !errors.Is(err, ErrChallengeExpired) {
			t.Fatalf("unexpected error %v", err)
		}
		if err := c.Verify(ctx, "u1", second.Code); err != nil {
			t.Fatalf("second code should verify, got %v", err)
		}
		return
	}
	t.Fatal("generator returned identical codes twenty times")
}

func TestReissueResetsAttempts(t *testing.T) {
	c, _ := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_ = c.Verify(ctx, "u1", wrongCode(ch.Code))

	if _, err := c.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	st, err := c.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !st.Active || st.RemainingAttempts != 3 {
		t.Fatalf("expected fresh challenge with 3 attempts, got %+v", st)
	}
}

func TestConcurrentWrongSubmissionsBlockOnce(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	bad := wrongCode(ch.Code)
	for i := 0; i < 2; i++ {
		if err := c.Verify(ctx, "u1", bad); !errors.Is(err, ErrIncorrectCode) {
			t.Fatalf("expected ErrIncorrectCode, got %v", err)
		}
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.Verify(ctx, "u1", bad)
		}(i)
	}
	close(start)
	wg.Wait()

	var exceeded, blocked int
	for _, err := range errs {
		switch {
		case errors.Is(err, ErrMaxAttemptsExceeded):
			exceeded++
		case errors.Is(err, ErrUserBlocked):
			blocked++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if exceeded != 1 {
		t.Fatalf("expected exactly one lockout transition, got %d", exceeded)
	}
	if blocked != workers-1 {
		t.Fatalf("expected %d blocked results, got %d", workers-1, blocked)
	}
	if mr.Exists("2fa:attempts:{u1}") {
		t.Fatal("attempts key must not survive the lockout")
	}
}

func TestRevokeKeepsLockout(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	if _, err := c.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	mr.Set("2fa:blocked:{u1}", "1")

	if err := c.Revoke(ctx, "u1"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if mr.Exists("2fa:code:{u1}") || mr.Exists("2fa:attempts:{u1}") {
		t.Fatal("expected code and attempts to be deleted")
	}
	if !mr.Exists("2fa:blocked:{u1}") {
		t.Fatal("expected blocked marker to survive revoke")
	}
}

func TestCleanupRemovesEverything(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	ctx := context.Background()

	ch, err := c.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	bad := wrongCode(ch.Code)
	for i := 0; i < 3; i++ {
		_ = c.Verify(ctx, "u1", bad)
	}
	if !mr.Exists("2fa:blocked:{u1}") {
		t.Fatal("expected lockout before cleanup")
	}

	if err := c.Cleanup(ctx, "u1"); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	st, err := c.Status(ctx, "u1")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.Blocked || st.Active {
		t.Fatalf("expected empty state, got %+v", st)
	}
	if _, err := c.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue after cleanup failed: %v", err)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	c, mr := newTestChallenger(t, DefaultConfig())
	mr.Close()

	if _, err := c.Issue(context.Background(), "u1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := c.Verify(context.Background(), "u1", "123456"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"short code":   func(c *Config) { c.CodeLength = 3 },
		"long code":    func(c *Config) { c.CodeLength = 11 },
		"zero ttl":     func(c *Config) { c.CodeTTL = 0 },
		"no attempts":  func(c *Config) { c.MaxAttempts = 0 },
		"zero block":   func(c *Config) { c.BlockDuration = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
