package redis

import (
	"context"
	"testing"
	"time"

	"pointsystem/internal/model"
	"pointsystem/internal/repository"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestStore_Accounts(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	now := time.Unix(1700000000, 0)

	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)

	_, err = s.Save(ctx, 1, 10, now)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	assert.False(t, mr.Exists("point:account:1"))

	created, err := s.Create(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), created.Balance)

	_, err = s.Create(ctx, 1, now)
	assert.ErrorIs(t, err, repository.ErrAccountExists)

	later := now.Add(time.Minute)
	saved, err := s.Save(ctx, 1, 70, later)
	require.NoError(t, err)
	assert.Equal(t, int64(70), saved.Balance)
	assert.True(t, saved.UpdatedAt.Equal(later))
	assert.True(t, saved.CreatedAt.Equal(now))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(70), got.Balance)
	assert.Equal(t, "70", mr.HGet("point:account:1", "balance"))
}

func TestStore_History(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	now := time.UnixMilli(1700000000123)

	list, err := s.ListByUserID(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)

	first, err := s.Append(ctx, &model.PointTransaction{
		TransactionNo: "CHG1", UserID: 1, Amount: 50, Type: model.TransactionTypeCharge, BalanceAfter: 50, CreatedAt: now,
	})
	require.NoError(t, err)
	_, err = s.Append(ctx, &model.PointTransaction{
		TransactionNo: "CHG2", UserID: 2, Amount: 5, Type: model.TransactionTypeCharge, BalanceAfter: 5, CreatedAt: now,
	})
	require.NoError(t, err)
	second, err := s.Append(ctx, &model.PointTransaction{
		TransactionNo: "USE3", UserID: 1, Amount: 20, Type: model.TransactionTypeUse, BalanceAfter: 30, CreatedAt: now,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(3), second.ID)

	list, err = s.ListByUserID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, "USE3", list[1].TransactionNo)
	assert.Equal(t, model.TransactionTypeUse, list[1].Type)
	assert.Equal(t, int64(30), list[1].BalanceAfter)
	assert.Equal(t, now.UnixMilli(), list[1].TimeMillis())
}

func TestStore_UnavailableServer(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)
	mr.Close()

	_, err := s.Get(ctx, 1)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestStore_HistoryRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, err := mr.Push("point:history:4", `{"id":1,"user_id":4,"amount":10,"type":"REFUND"}`)
	require.NoError(t, err)

	_, err = s.ListByUserID(ctx, 4)
	assert.ErrorContains(t, err, "unknown type")
}

func TestStore_HistoryRejectsMalformedEntry(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t)

	_, err := mr.Push("point:history:4", `{"id":`)
	require.NoError(t, err)

	_, err = s.ListByUserID(ctx, 4)
	assert.Error(t, err)
}
