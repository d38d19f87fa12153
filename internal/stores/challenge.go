package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrChallengeBackend = errors.New("challenge backend unavailable")
	ErrChallengeReply   = errors.New("unexpected challenge script reply")
)

const (
	issueStatusIssued  int64 = 0
	issueStatusBlocked int64 = 1
)

// VerifyStatus is the outcome of a single atomic verification round.
type VerifyStatus int64

const (
	VerifyMatched   VerifyStatus = 0
	VerifyBlocked   VerifyStatus = 1
	VerifyMissing   VerifyStatus = 2
	VerifyExhausted VerifyStatus = 3
	VerifyMismatch  VerifyStatus = 4
)

// issueChallengeLua refuses to issue while the blocked marker exists, otherwise writes
// code and attempts with one shared TTL.
// KEYS[1] = code, KEYS[2] = attempts, KEYS[3] = blocked
// ARGV[1] = code, ARGV[2] = max attempts, ARGV[3] = ttl (ms)
//
// Returns {status, blockedPTTL}.
var issueChallengeLua = redis.NewScript(`
local blocked = redis.call('PTTL', KEYS[3])
if blocked ~= -2 then
  return {1, blocked}
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return {0, 0}
`)

// verifyChallengeLua performs blocked-check, compare, decrement-or-block in one step.
// KEYS[1] = code, KEYS[2] = attempts, KEYS[3] = blocked
// ARGV[1] = submitted code, ARGV[2] = block duration (ms)
//
// Returns {status, value} where value is the blocked PTTL, the block duration or the
// remaining attempts depending on status.
var verifyChallengeLua = redis.NewScript(`
local blocked = redis.call('PTTL', KEYS[3])
if blocked ~= -2 then
  return {1, blocked}
end

local stored = redis.call('GET', KEYS[1])
local raw = redis.call('GET', KEYS[2])
if not stored or not raw then
  return {2, 0}
end

if stored == ARGV[1] then
  redis.call('DEL', KEYS[1], KEYS[2])
  return {0, 0}
end

local remaining = (tonumber(raw) or 0) - 1
if remaining <= 0 then
  redis.call('SET', KEYS[3], '1', 'PX', ARGV[2])
  redis.call('DEL', KEYS[1], KEYS[2])
  return {3, tonumber(ARGV[2])}
end

local ttl = redis.call('PTTL', KEYS[2])
if ttl > 0 then
  redis.call('SET', KEYS[2], remaining, 'PX', ttl)
else
  redis.call('SET', KEYS[2], remaining)
end
return {4, remaining}
`)

// ChallengeKeys names the three keys that hold one user's challenge state.
type ChallengeKeys struct {
	Code     string
	Attempts string
	Blocked  string
}

// IssueResult reports whether a code was written. BlockedTTL is -1 for a marker with no
// expiry.
type IssueResult struct {
	Blocked    bool
	BlockedTTL time.Duration
}

// VerifyResult carries the script outcome. Remaining is set for VerifyMismatch,
// BlockedTTL for VerifyBlocked and VerifyExhausted.
type VerifyResult struct {
	Status     VerifyStatus
	Remaining  int
	BlockedTTL time.Duration
}

// ChallengeSnapshot is a read-only view of a user's challenge keys.
type ChallengeSnapshot struct {
	Blocked           bool
	BlockedTTL        time.Duration
	Active            bool
	RemainingAttempts int
	CodeTTL           time.Duration
}

type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(redisClient redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = "2fa"
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Keys wraps the user id in braces so the three keys share a cluster hash slot.
func (s *ChallengeStore) Keys(userID string) ChallengeKeys {
	tag := "{" + userID + "}"
	return ChallengeKeys{
		Code:     s.prefix + ":code:" + tag,
		Attempts: s.prefix + ":attempts:" + tag,
		Blocked:  s.prefix + ":blocked:" + tag,
	}
}

func (k ChallengeKeys) list() []string {
	return []string{k.Code, k.Attempts, k.Blocked}
}

func (s *ChallengeStore) Issue(
	ctx context.Context,
	userID string,
	code string,
	maxAttempts int,
	ttl time.Duration,
) (IssueResult, error) {
	keys := s.Keys(userID)
	reply, err := issueChallengeLua.Run(ctx, s.redis, keys.list(),
		code,
		strconv.Itoa(maxAttempts),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return IssueResult{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if len(reply) != 2 {
		return IssueResult{}, ErrChallengeReply
	}

	switch reply[0] {
	case issueStatusIssued:
		return IssueResult{}, nil
	case issueStatusBlocked:
		return IssueResult{Blocked: true, BlockedTTL: pttl(reply[1])}, nil
	default:
		return IssueResult{}, ErrChallengeReply
	}
}

func (s *ChallengeStore) Verify(
	ctx context.Context,
	userID string,
	code string,
	blockDuration time.Duration,
) (VerifyResult, error) {
	keys := s.Keys(userID)
	reply, err := verifyChallengeLua.Run(ctx, s.redis, keys.list(),
		code,
		strconv.FormatInt(blockDuration.Milliseconds(), 10),
	).Int64Slice()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	if len(reply) != 2 {
		return VerifyResult{}, ErrChallengeReply
	}

	status := VerifyStatus(reply[0])
	switch status {
	case VerifyMatched, VerifyMissing:
		return VerifyResult{Status: status}, nil
	case VerifyBlocked, VerifyExhausted:
		return VerifyResult{Status: status, BlockedTTL: pttl(reply[1])}, nil
	case VerifyMismatch:
		return VerifyResult{Status: status, Remaining: int(reply[1])}, nil
	default:
		return VerifyResult{}, ErrChallengeReply
	}
}

// Revoke deletes code and attempts and leaves any blocked marker in place.
func (s *ChallengeStore) Revoke(ctx context.Context, userID string) error {
	keys := s.Keys(userID)
	if err := s.redis.Del(ctx, keys.Code, keys.Attempts).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// Clear deletes every key of the user's challenge, including the blocked marker.
func (s *ChallengeStore) Clear(ctx context.Context, userID string) error {
	keys := s.Keys(userID)
	if err := s.redis.Del(ctx, keys.list()...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *ChallengeStore) Inspect(ctx context.Context, userID string) (ChallengeSnapshot, error) {
	keys := s.Keys(userID)

	pipe := s.redis.Pipeline()
	blocked := pipe.PTTL(ctx, keys.Blocked)
	attempts := pipe.Get(ctx, keys.Attempts)
	code := pipe.PTTL(ctx, keys.Code)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return ChallengeSnapshot{}, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	var snap ChallengeSnapshot
	if ttl := blocked.Val(); ttl != -2 {
		snap.Blocked = true
		snap.BlockedTTL = ttl
	}
	if n, err := attempts.Int(); err == nil {
		snap.RemainingAttempts = n
		if ttl := code.Val(); ttl != -2 {
			snap.Active = true
			snap.CodeTTL = ttl
		}
	}
	return snap, nil
}

func pttl(ms int64) time.Duration {
	if ms < 0 {
		return time.Duration(ms)
	}
	return time.Duration(ms) * time.Millisecond
}
