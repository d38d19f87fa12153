package otpgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestTwoLegLoginEndToEnd(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)

	pair, err := engine.VerifyChallenge(ctx, tempToken, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if pair.UserID != testUserID || pair.Role != "finca" {
		t.Fatalf("unexpected pair identity %q/%q", pair.UserID, pair.Role)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if d := time.Until(pair.RefreshExpiresAt); d > time.Hour || d < 59*time.Minute {
		t.Fatalf("expected 1h refresh lifetime, got %v", d)
	}

	claims, err := engine.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if claims.UserID != testUserID || claims.Role != "finca" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	for _, key := range []string{"2fa:code:{" + testUserID + "}", "2fa:attempts:{" + testUserID + "}"} {
		if env.mr.Exists(key) {
			t.Fatalf("expected %s consumed", key)
		}
	}

	if _, err := engine.VerifyChallenge(ctx, tempToken, code, false); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected replay to find no challenge, got %v", err)
	}
}

func TestVerifyChallengeLockoutSequence(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)
	wrong := otherCode(code)

	for _, want := range []int{2, 1} {
		_, err := engine.VerifyChallenge(ctx, tempToken, wrong, false)
		var incorrect *IncorrectCodeError
		if !errors.As(err, &incorrect) {
			t.Fatalf("expected IncorrectCodeError, got %v", err)
		}
		if incorrect.RemainingAttempts != want {
			t.Fatalf("expected %d remaining, got %d", want, incorrect.RemainingAttempts)
		}
	}

	_, err := engine.VerifyChallenge(ctx, tempToken, wrong, false)
	var exhausted *MaxAttemptsError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected MaxAttemptsError, got %v", err)
	}
	if exhausted.BlockDuration != 30*time.Minute {
		t.Fatalf("unexpected block duration %v", exhausted.BlockDuration)
	}

	_, err = engine.VerifyChallenge(ctx, tempToken, code, false)
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected correct code to be refused while blocked, got %v", err)
	}
	if AuthErrorCode(err) != CodeUserBlocked {
		t.Fatalf("expected user_blocked, got %s", AuthErrorCode(err))
	}

	if _, err := engine.Login(ctx, testUsername, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected generic login failure while blocked, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricChallengeIncorrect] != 2 || snap.Counters[MetricChallengeLockout] != 1 || snap.Counters[MetricChallengeBlocked] != 1 {
		t.Fatalf("unexpected challenge counters %+v", snap.Counters)
	}

	env.mr.FastForward(30*time.Minute + time.Second)
	tempToken, code = loginFor(t, engine, env, testUsername, testEmail)
	if _, err := engine.VerifyChallenge(ctx, tempToken, code, false); err != nil {
		t.Fatalf("expected success after lockout elapsed, got %v", err)
	}
}

func TestVerifyChallengeConcurrentWrongCodesLockOnce(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)
	wrong := otherCode(code)
	for i := 0; i < 2; i++ {
		_, _ = engine.VerifyChallenge(ctx, tempToken, wrong, false)
	}

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := engine.VerifyChallenge(ctx, tempToken, wrong, false)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	lockouts, blocked := 0, 0
	for err := range results {
		switch {
		case errors.Is(err, ErrMaxAttemptsExceeded):
			lockouts++
		case errors.Is(err, ErrUserBlocked):
			blocked++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if lockouts != 1 || blocked != n-1 {
		t.Fatalf("expected 1 lockout and %d blocked, got %d and %d", n-1, lockouts, blocked)
	}
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	firstToken, firstCode := loginFor(t, engine, env, testUsername, testEmail)
	secondToken, secondCode := loginFor(t, engine, env, testUsername, testEmail)

	if firstCode != secondCode {
		_, err := engine.VerifyChallenge(ctx, firstToken, firstCode, false)
		if !errors.Is(err, ErrIncorrectCode) {
			t.Fatalf("expected first code rejected, got %v", err)
		}
	}
	if _, err := engine.VerifyChallenge(ctx, secondToken, secondCode, false); err != nil {
		t.Fatalf("expected second code accepted, got %v", err)
	}
}

func TestVerifyChallengeCodeExpired(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)
	env.mr.FastForward(10*time.Minute + time.Second)

	_, err := engine.VerifyChallenge(context.Background(), tempToken, code, false)
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestVerifyChallengeTokenChecksPrecedeCode(t *testing.T) {
	cfg := testConfig()
	engine, env := newTestEngine(t, cfg, nil)
	ctx := context.Background()

	_, code := loginFor(t, engine, env, testUsername, testEmail)
	attemptsKey := "2fa:attempts:{" + testUserID + "}"

	if _, err := engine.VerifyChallenge(ctx, "not-a-token", code, false); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	expired := signRawToken(t, cfg.JWT.AccessSecret, gojwt.MapClaims{
		"uid": testUserID,
		"typ": "2fa",
		"iss": cfg.JWT.Issuer,
		"iat": time.Now().Add(-20 * time.Minute).Unix(),
		"exp": time.Now().Add(-10 * time.Minute).Unix(),
	})
	if _, err := engine.VerifyChallenge(ctx, expired, code, false); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired for expired temp token, got %v", err)
	}

	forged := signRawToken(t, "some-other-secret", gojwt.MapClaims{
		"uid": testUserID,
		"typ": "2fa",
		"iss": cfg.JWT.Issuer,
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	if _, err := engine.VerifyChallenge(ctx, forged, code, false); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged token, got %v", err)
	}

	if got, _ := env.mr.Get(attemptsKey); got != "3" {
		t.Fatalf("expected attempts untouched, got %q", got)
	}
	if env.outbox.last(testEmail) != code {
		t.Fatal("expected code unchanged")
	}
}

func TestVerifyChallengeRejectsAccessTokenAsTemp(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)
	pair, err := engine.VerifyChallenge(ctx, tempToken, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}

	_, code = loginFor(t, engine, env, testUsername, testEmail)
	if _, err := engine.VerifyChallenge(ctx, pair.AccessToken, code, false); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected access token refused as temp token, got %v", err)
	}
}

func TestVerifyChallengeRoleNotAssigned(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)

	tempToken, code := loginFor(t, engine, env, "norole01", "norole@example.com")
	_, err := engine.VerifyChallenge(context.Background(), tempToken, code, false)
	if !errors.Is(err, ErrRoleNotAssigned) {
		t.Fatalf("expected ErrRoleNotAssigned, got %v", err)
	}
	if AuthErrorCode(err) != CodeRoleNotAssigned {
		t.Fatalf("unexpected code %s", AuthErrorCode(err))
	}
}

func TestVerifyChallengeFirstConfiguredRoleWins(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)

	tempToken, code := loginFor(t, engine, env, "admin01", "admin@example.com")
	pair, err := engine.VerifyChallenge(context.Background(), tempToken, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if pair.Role != "admin" {
		t.Fatalf("expected admin to win over finca, got %q", pair.Role)
	}
}

func TestVerifyChallengeRemember(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail, WithRemember(true))
	pair, err := engine.VerifyChallenge(ctx, tempToken, code, false)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if !pair.Remember {
		t.Fatal("expected remember carried from first leg")
	}
	if d := time.Until(pair.RefreshExpiresAt); d < 167*time.Hour {
		t.Fatalf("expected extended refresh lifetime, got %v", d)
	}

	tempToken, code = loginFor(t, engine, env, testUsername, testEmail)
	pair, err = engine.VerifyChallenge(ctx, tempToken, code, true)
	if err != nil {
		t.Fatalf("VerifyChallenge failed: %v", err)
	}
	if !pair.Remember {
		t.Fatal("expected remember from second leg")
	}
}

func TestResetChallengeClearsLockout(t *testing.T) {
	engine, env := newTestEngine(t, testConfig(), nil)
	ctx := context.Background()

	tempToken, code := loginFor(t, engine, env, testUsername, testEmail)
	for i := 0; i < 3; i++ {
		_, _ = engine.VerifyChallenge(ctx, tempToken, otherCode(code), false)
	}

	status, err := engine.ChallengeStatus(ctx, testUserID)
	if err != nil {
		t.Fatalf("ChallengeStatus failed: %v", err)
	}
	if !status.Blocked || status.RetryAfter <= 29*time.Minute {
		t.Fatalf("expected blocked status, got %+v", status)
	}

	if err := engine.ResetChallenge(ctx, testUserID); err != nil {
		t.Fatalf("ResetChallenge failed: %v", err)
	}
	status, err = engine.ChallengeStatus(ctx, testUserID)
	if err != nil {
		t.Fatalf("ChallengeStatus failed: %v", err)
	}
	if status.Blocked || status.Active {
		t.Fatalf("expected clean status, got %+v", status)
	}

	tempToken, code = loginFor(t, engine, env, testUsername, testEmail)
	if _, err := engine.VerifyChallenge(ctx, tempToken, code, false); err != nil {
		t.Fatalf("expected login after reset, got %v", err)
	}
}

func signRawToken(t *testing.T, secret string, claims gojwt.MapClaims) string {
	t.Helper()
	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return signed
}
