package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/metrics"
	"pointsystem/internal/model"
	"pointsystem/internal/repository"
	"pointsystem/pkg/idgen"

	"go.uber.org/zap"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive integer")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrBalanceLimitExceeded = errors.New("balance limit exceeded")
	ErrAccountNotFound      = repository.ErrAccountNotFound
	ErrAccountExists        = repository.ErrAccountExists
)

const (
	opCharge = "charge"
	opUse    = "use"
	opOpen   = "open"
)

// EventSink receives every committed transaction, in commit order per user.
// Enqueue is called while the user's lock is held and must not block.
type EventSink interface {
	Enqueue(trans *model.PointTransaction)
}

// NumberGenerator produces transaction numbers; *idgen.Snowflake satisfies it.
type NumberGenerator interface {
	Number(prefix string) string
}

// Option configures a PointService.
type Option func(*PointService)

// WithLogger sets the logger; the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *PointService) { s.log = log }
}

// WithMetrics records operation counts and latencies on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PointService) { s.metrics = m }
}

// WithEventSink publishes every committed transaction to sink.
func WithEventSink(sink EventSink) Option {
	return func(s *PointService) { s.sink = sink }
}

// WithTxManager makes the balance write and history append commit together.
func WithTxManager(tx repository.TxManager) Option {
	return func(s *PointService) {
		s.tx = tx
		s.transactional = tx.Transactional()
	}
}

// WithNumberGenerator sets the source of transaction numbers.
func WithNumberGenerator(numbers NumberGenerator) Option {
	return func(s *PointService) { s.numbers = numbers }
}

// WithAutoCreate lets Charge open a missing account instead of failing.
func WithAutoCreate(enabled bool) Option {
	return func(s *PointService) { s.autoCreate = enabled }
}

// WithMaxBalance caps balances; limit <= 0 means no cap beyond int64.
func WithMaxBalance(limit int64) Option {
	return func(s *PointService) {
		if limit <= 0 {
			limit = math.MaxInt64
		}
		s.maxBalance = limit
	}
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *PointService) { s.now = now }
}

// PointService charges and uses points. Mutations of one user run one at a
// time in arrival order; different users never wait on each other. Reads do
// not take the user's lock.
type PointService struct {
	accounts      repository.AccountStore
	history       repository.HistoryStore
	tx            repository.TxManager
	transactional bool
	locks         *lock.KeyedMutex
	numbers       NumberGenerator
	sink          EventSink
	log           *zap.Logger
	metrics       *metrics.Metrics
	now           func() time.Time
	autoCreate    bool
	maxBalance    int64
}

// NewPointService creates the service over the given stores.
func NewPointService(accounts repository.AccountStore, history repository.HistoryStore, opts ...Option) *PointService {
	s := &PointService{
		accounts:   accounts,
		history:    history,
		tx:         repository.NopTxManager{},
		locks:      lock.NewKeyedMutex(),
		log:        zap.NewNop(),
		now:        time.Now,
		maxBalance: math.MaxInt64,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.numbers == nil {
		// worker 0 is always in range
		s.numbers, _ = idgen.NewSnowflake(0)
	}
	s.metrics.ObserveLockEntries(s.locks.Len)
	return s
}

// Charge adds amount to the user's balance and returns the new history entry.
func (s *PointService) Charge(ctx context.Context, userID, amount int64) (*model.PointTransaction, error) {
	return s.apply(ctx, model.TransactionTypeCharge, userID, amount)
}

// Use takes amount from the user's balance and returns the new history entry.
// It fails with ErrInsufficientBalance, leaving everything unchanged, when the
// balance at the caller's turn is lower than amount.
func (s *PointService) Use(ctx context.Context, userID, amount int64) (*model.PointTransaction, error) {
	return s.apply(ctx, model.TransactionTypeUse, userID, amount)
}

func (s *PointService) apply(ctx context.Context, kind model.TransactionType, userID, amount int64) (trans *model.PointTransaction, err error) {
	op, prefix := opCharge, idgen.PrefixCharge
	if kind == model.TransactionTypeUse {
		op, prefix = opUse, idgen.PrefixUse
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(op, resultOf(err), time.Since(start))
	}()

	if amount <= 0 {
		s.log.Warn("rejected point operation",
			zap.String("op", op), zap.Int64("user_id", userID), zap.Int64("amount", amount), zap.Error(ErrInvalidAmount))
		return nil, ErrInvalidAmount
	}

	ticket := s.locks.Acquire(userID)
	defer s.locks.Release(ticket)
	s.metrics.RecordLockWait(time.Since(start))

	// Once the lock is held the operation commits or fails before mutating;
	// a caller going away must not abort it halfway.
	ctx = context.WithoutCancel(ctx)

	account, err := s.loadForUpdate(ctx, kind, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.log.Warn("rejected point operation",
				zap.String("op", op), zap.Int64("user_id", userID), zap.Int64("amount", amount), zap.Error(err))
			return nil, ErrAccountNotFound
		}
		s.log.Error("read account failed", zap.String("op", op), zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("%s: read account %d: %w", op, userID, err)
	}

	var balance int64
	switch kind {
	case model.TransactionTypeCharge:
		if amount > s.maxBalance-account.Balance {
			err = ErrBalanceLimitExceeded
		}
		balance = account.Balance + amount
	case model.TransactionTypeUse:
		if account.Balance < amount {
			err = ErrInsufficientBalance
		}
		balance = account.Balance - amount
	}
	if err != nil {
		s.log.Warn("rejected point operation",
			zap.String("op", op), zap.Int64("user_id", userID), zap.Int64("amount", amount),
			zap.Int64("balance", account.Balance), zap.Error(err))
		return nil, err
	}

	now := s.now()
	record := &model.PointTransaction{
		TransactionNo: s.numbers.Number(prefix),
		UserID:        userID,
		Amount:        amount,
		Type:          kind,
		BalanceAfter:  balance,
		CreatedAt:     now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.accounts.Save(ctx, userID, balance, now); err != nil {
			return fmt.Errorf("write balance: %w", err)
		}
		stored, err := s.history.Append(ctx, record)
		if err != nil {
			if !s.transactional {
				s.restore(ctx, account)
			}
			return fmt.Errorf("append history: %w", err)
		}
		trans = stored
		return nil
	})
	if err != nil {
		s.log.Error("commit point operation failed",
			zap.String("op", op), zap.Int64("user_id", userID), zap.Int64("amount", amount), zap.Error(err))
		return nil, fmt.Errorf("%s: user %d: %w", op, userID, err)
	}

	if s.sink != nil {
		s.sink.Enqueue(trans)
	}

	s.log.Info("point operation committed",
		zap.String("op", op),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance),
		zap.String("transaction_no", trans.TransactionNo),
	)
	return trans, nil
}

// loadForUpdate reads the account; with auto-create enabled a charge opens a
// missing account first. Must be called with the user's lock held.
func (s *PointService) loadForUpdate(ctx context.Context, kind model.TransactionType, userID int64) (*model.Account, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err == nil || !errors.Is(err, ErrAccountNotFound) || !s.autoCreate || kind != model.TransactionTypeCharge {
		return account, err
	}

	account, err = s.accounts.Create(ctx, userID, s.now())
	if errors.Is(err, ErrAccountExists) {
		// opened by another process between the two calls
		return s.accounts.Get(ctx, userID)
	}
	if err == nil {
		s.log.Info("account opened on first charge", zap.Int64("user_id", userID))
	}
	return account, err
}

// restore puts the previous balance back after a failed append on stores
// without transactions.
func (s *PointService) restore(ctx context.Context, previous *model.Account) {
	if _, err := s.accounts.Save(ctx, previous.UserID, previous.Balance, previous.UpdatedAt); err != nil {
		s.log.Error("restore balance failed",
			zap.Int64("user_id", previous.UserID), zap.Int64("balance", previous.Balance), zap.Error(err))
	}
}

// Open provisions an account with a zero balance.
func (s *PointService) Open(ctx context.Context, userID int64) (account *model.Account, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(opOpen, resultOf(err), time.Since(start))
	}()

	ticket := s.locks.Acquire(userID)
	defer s.locks.Release(ticket)

	account, err = s.accounts.Create(context.WithoutCancel(ctx), userID, s.now())
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("open: user %d: %w", userID, err)
	}
	s.log.Info("account opened", zap.Int64("user_id", userID))
	return account, nil
}

// GetPoint returns the committed account state.
func (s *PointService) GetPoint(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := s.accounts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get point: user %d: %w", userID, err)
	}
	return account, nil
}

// GetHistories returns every history entry of the user, oldest first.
func (s *PointService) GetHistories(ctx context.Context, userID int64) ([]*model.PointTransaction, error) {
	if _, err := s.GetPoint(ctx, userID); err != nil {
		return nil, err
	}
	transactions, err := s.history.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get histories: user %d: %w", userID, err)
	}
	return transactions, nil
}

// CanUse reports whether the committed balance covers amount. The answer is
// advisory: a concurrent operation may change the balance before a later Use.
func (s *PointService) CanUse(ctx context.Context, userID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}
	account, err := s.GetPoint(ctx, userID)
	if err != nil {
		return false, err
	}
	return account.Balance >= amount, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrInvalidAmount):
		return metrics.ResultInvalidAmount
	case errors.Is(err, ErrAccountNotFound):
		return metrics.ResultAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return metrics.ResultAccountExists
	case errors.Is(err, ErrInsufficientBalance):
		return metrics.ResultInsufficientBalance
	case errors.Is(err, ErrBalanceLimitExceeded):
		return metrics.ResultLimitExceeded
	default:
		return metrics.ResultError
	}
}
