package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"fashionhub/internal/domain"
)

// DefaultAttemptTTL bounds how long a customer has to finish paying on the
// gateway's page before the attempt is forgotten.
const DefaultAttemptTTL = 30 * time.Minute

const attemptKeyPrefix = "session:khalti_attempt:"

// deleteAttemptScript removes the session's attempt only if it still refers
// to the given pidx, so a newer attempt started in another tab survives.
var deleteAttemptScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
	return 0
end

local attempt = cjson.decode(data)
if attempt['pidx'] == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end

return 0
`)

// AttemptStore keeps payment attempts scoped to a browser session.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAttemptStore creates a new AttemptStore. A zero ttl uses DefaultAttemptTTL.
func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	return &AttemptStore{client: client, ttl: ttl}
}

// Save stores the attempt for the session, replacing any earlier one.
func (s *AttemptStore) Save(ctx context.Context, sessionID string, attempt *domain.PaymentAttempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, attemptKeyPrefix+sessionID, data, s.ttl).Err()
}

// Get returns the session's attempt, or nil if none exists or it expired.
func (s *AttemptStore) Get(ctx context.Context, sessionID string) (*domain.PaymentAttempt, error) {
	data, err := s.client.Get(ctx, attemptKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var attempt domain.PaymentAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// Delete discards the session's attempt if it is still the one for pidx.
func (s *AttemptStore) Delete(ctx context.Context, sessionID, pidx string) error {
	return deleteAttemptScript.Run(ctx, s.client, []string{attemptKeyPrefix + sessionID}, pidx).Err()
}
