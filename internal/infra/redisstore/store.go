package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sigqueue/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Store implements the account, status, queue, lease and poison contracts
// on top of one pooled Redis client. The client is safe for concurrent use,
// so no process-level lock is involved.
type Store struct {
	client *redis.Client
}

type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// setUnlessCompleteScript writes ARGV[1] unless a complete record is already
// present. Pending writes and terminal commits both go through it, so a
// terminal record is written at most once.
var setUnlessCompleteScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
  local ok, record = pcall(cjson.decode, current)
  if ok and type(record) == "table" and record["complete"] == true then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[1])
return 1
`)

var bindOwnerScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current then
  return current
end
redis.call("SET", KEYS[1], ARGV[1])
return ARGV[1]
`)

var recordPoisonScript = redis.NewScript(`
if redis.call("SADD", KEYS[2], ARGV[1]) == 1 then
  redis.call("RPUSH", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var claimLeaseScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and current ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var renewLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func New(opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	return &Store{client: client}, nil
}

func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) PutPublicKey(ctx context.Context, accountID, publicKey string) error {
	if err := s.client.Set(ctx, domain.AccountKey(accountID), publicKey, 0).Err(); err != nil {
		return storeErr("set account", err)
	}
	return nil
}

func (s *Store) GetPublicKey(ctx context.Context, accountID string) (string, error) {
	v, err := s.client.Get(ctx, domain.AccountKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr("get account", err)
	}
	return v, nil
}

func (s *Store) PutPending(ctx context.Context, transactionID string) (bool, error) {
	payload, err := json.Marshal(domain.PendingRecord(transactionID))
	if err != nil {
		return false, err
	}
	written, err := setUnlessCompleteScript.Run(ctx, s.client, []string{domain.StatusKey(transactionID)}, string(payload)).Int64()
	if err != nil {
		return false, storeErr("put pending", err)
	}
	return written == 1, nil
}

func (s *Store) CompleteStatus(ctx context.Context, record domain.VerificationRecord) (bool, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	written, err := setUnlessCompleteScript.Run(ctx, s.client, []string{domain.StatusKey(record.TransactionID)}, string(payload)).Int64()
	if err != nil {
		return false, storeErr("complete status", err)
	}
	return written == 1, nil
}

func (s *Store) GetStatus(ctx context.Context, transactionID string) (domain.VerificationRecord, error) {
	raw, err := s.client.Get(ctx, domain.StatusKey(transactionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.VerificationRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VerificationRecord{}, storeErr("get status", err)
	}
	var record domain.VerificationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.VerificationRecord{}, fmt.Errorf("decode verification record: %w", err)
	}
	return record, nil
}

func (s *Store) BindOwner(ctx context.Context, transactionID, accountID string) (string, error) {
	owner, err := bindOwnerScript.Run(ctx, s.client, []string{domain.OwnerKey(transactionID)}, accountID).Text()
	if err != nil {
		return "", storeErr("bind owner", err)
	}
	return owner, nil
}

func (s *Store) GetOwner(ctx context.Context, transactionID string) (string, error) {
	owner, err := s.client.Get(ctx, domain.OwnerKey(transactionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", storeErr("get owner", err)
	}
	return owner, nil
}

func (s *Store) Enqueue(ctx context.Context, entry string) error {
	if err := s.client.RPush(ctx, domain.QueueKey, entry).Err(); err != nil {
		return storeErr("enqueue", err)
	}
	return nil
}

// Reserve is BLMOVE queue stage LEFT RIGHT. A zero wait blocks until an
// entry arrives; callers that need cancellation pass a bounded wait.
func (s *Store) Reserve(ctx context.Context, worker domain.WorkerIdentity, wait time.Duration) (string, error) {
	entry, err := s.client.BLMove(ctx, domain.QueueKey, worker.StageKey(), "LEFT", "RIGHT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrQueueEmpty
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", storeErr("reserve", err)
	}
	return entry, nil
}

func (s *Store) Ack(ctx context.Context, worker domain.WorkerIdentity, entry string) error {
	if err := s.client.LRem(ctx, worker.StageKey(), 1, entry).Err(); err != nil {
		return storeErr("ack", err)
	}
	return nil
}

func (s *Store) Staged(ctx context.Context, worker domain.WorkerIdentity) ([]string, error) {
	entries, err := s.client.LRange(ctx, worker.StageKey(), 0, -1).Result()
	if err != nil {
		return nil, storeErr("list stage", err)
	}
	return entries, nil
}

// Requeue pops from the tail of the staging list onto the head of the
// queue one entry at a time, so the staged order is kept at the front.
func (s *Store) Requeue(ctx context.Context, worker domain.WorkerIdentity) (int, error) {
	moved := 0
	for {
		err := s.client.LMove(ctx, worker.StageKey(), domain.QueueKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, storeErr("requeue", err)
		}
		moved++
	}
}

func (s *Store) Depth(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, domain.QueueKey).Result()
	if err != nil {
		return 0, storeErr("queue depth", err)
	}
	return n, nil
}

func (s *Store) Record(ctx context.Context, msg domain.PoisonMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	keys := []string{domain.PoisonKey, domain.PoisonIDsKey}
	if err := recordPoisonScript.Run(ctx, s.client, keys, msg.ID, string(payload)).Err(); err != nil {
		return storeErr("record poison", err)
	}
	return nil
}

func (s *Store) ListPoison(ctx context.Context, limit int) ([]domain.PoisonMessage, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.client.LRange(ctx, domain.PoisonKey, start, -1).Result()
	if err != nil {
		return nil, storeErr("list poison", err)
	}
	out := make([]domain.PoisonMessage, 0, len(raw))
	for _, entry := range raw {
		var msg domain.PoisonMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			return nil, fmt.Errorf("decode poison message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) Claim(ctx context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error {
	ok, err := claimLeaseScript.Run(ctx, s.client, []string{worker.LeaseKey()}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return storeErr("claim identity", err)
	}
	if ok != 1 {
		return domain.ErrIdentityClaimed
	}
	return nil
}

func (s *Store) Renew(ctx context.Context, worker domain.WorkerIdentity, token string, ttl time.Duration) error {
	ok, err := renewLeaseScript.Run(ctx, s.client, []string{worker.LeaseKey()}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return storeErr("renew identity", err)
	}
	if ok != 1 {
		return domain.ErrIdentityClaimed
	}
	return nil
}

func (s *Store) Release(ctx context.Context, worker domain.WorkerIdentity, token string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{worker.LeaseKey()}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return storeErr("release identity", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
