package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"

	goredis "github.com/go-redis/redis/v8"
)

const (
	accountKeyFmt = "point:account:%d"
	historyKeyFmt = "point:history:%d"
	historySeqKey = "point:history:seq"
)

// saveScript updates an existing account hash in one round trip, so a missing
// account is never resurrected by a write.
var saveScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
redis.call("HSET", KEYS[1], "balance", ARGV[1], "updated_at", ARGV[2])
return 1
`)

// createScript provisions an account hash only when absent.
var createScript = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "balance", 0, "created_at", ARGV[1], "updated_at", ARGV[1])
return 1
`)

// Store keeps accounts as hashes and history as per-user lists of JSON
// entries. Record ids come from one global counter, so they are unique
// across users and increase in append order for each user.
type Store struct {
	client *goredis.Client
}

func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

func accountKey(userID int64) string { return fmt.Sprintf(accountKeyFmt, userID) }
func historyKey(userID int64) string { return fmt.Sprintf(historyKeyFmt, userID) }

func (s *Store) Get(ctx context.Context, userID int64) (*model.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get account %d: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, repository.ErrAccountNotFound
	}
	return decodeAccount(userID, fields)
}

func (s *Store) Create(ctx context.Context, userID int64, at time.Time) (*model.Account, error) {
	created, err := createScript.Run(ctx, s.client, []string{accountKey(userID)}, at.UnixNano()).Int()
	if err != nil {
		return nil, fmt.Errorf("redis: create account %d: %w", userID, err)
	}
	if created == 0 {
		return nil, repository.ErrAccountExists
	}
	return &model.Account{UserID: userID, CreatedAt: at, UpdatedAt: at}, nil
}

func (s *Store) Save(ctx context.Context, userID, balance int64, at time.Time) (*model.Account, error) {
	saved, err := saveScript.Run(ctx, s.client, []string{accountKey(userID)}, balance, at.UnixNano()).Int()
	if err != nil {
		return nil, fmt.Errorf("redis: save account %d: %w", userID, err)
	}
	if saved == 0 {
		return nil, repository.ErrAccountNotFound
	}
	return s.Get(ctx, userID)
}

func (s *Store) Append(ctx context.Context, trans *model.PointTransaction) (*model.PointTransaction, error) {
	id, err := s.client.Incr(ctx, historySeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: next transaction id: %w", err)
	}

	stored := *trans
	stored.ID = id
	payload, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("redis: encode transaction: %w", err)
	}
	if err := s.client.RPush(ctx, historyKey(stored.UserID), payload).Err(); err != nil {
		return nil, fmt.Errorf("redis: append transaction for user %d: %w", stored.UserID, err)
	}
	return &stored, nil
}

func (s *Store) ListByUserID(ctx context.Context, userID int64) ([]*model.PointTransaction, error) {
	raw, err := s.client.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list transactions for user %d: %w", userID, err)
	}

	transactions := make([]*model.PointTransaction, 0, len(raw))
	for _, item := range raw {
		var trans model.PointTransaction
		if err := json.Unmarshal([]byte(item), &trans); err != nil {
			return nil, fmt.Errorf("redis: decode transaction for user %d: %w", userID, err)
		}
		if !trans.Type.Valid() {
			return nil, fmt.Errorf("redis: transaction %d for user %d has unknown type %q", trans.ID, userID, trans.Type)
		}
		transactions = append(transactions, &trans)
	}
	return transactions, nil
}

func decodeAccount(userID int64, fields map[string]string) (*model.Account, error) {
	balance, err := strconv.ParseInt(fields["balance"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: account %d balance: %w", userID, err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: account %d created_at: %w", userID, err)
	}
	updated, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis: account %d updated_at: %w", userID, err)
	}
	return &model.Account{
		UserID:    userID,
		Balance:   balance,
		CreatedAt: time.Unix(0, created),
		UpdatedAt: time.Unix(0, updated),
	}, nil
}
