package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"

	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/internal/txattr"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// Strategy selects where serialization failures are absorbed.
type Strategy string

const (
	// StrategyTransaction restarts the whole transaction from BEGIN.
	StrategyTransaction Strategy = "transaction"
	// StrategySavepoint additionally retries the balance mutation inside a
	// savepoint before falling back to a full restart.
	StrategySavepoint Strategy = "savepoint"
)

// ParseStrategy parses "transaction" or "savepoint".
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyTransaction, "":
		return StrategyTransaction, nil
	case StrategySavepoint:
		return StrategySavepoint, nil
	}
	return "", fmt.Errorf("%w: unknown retry strategy %q (want transaction or savepoint)", txretry.ErrInvalidConfig, s)
}

// TransferOperation names the retry policy used by Submit.
const TransferOperation = "bank.transfer"

// DefaultTransferOptions disables the idle timeout for the transfer
// transaction and lets CockroachDB lock rows read by UPDATE statements.
func DefaultTransferOptions() txretry.TransactionOptions {
	return txretry.TransactionOptions{
		Variables: []txretry.SessionVariable{
			txretry.Local("idle_in_transaction_session_timeout", "0"),
			txretry.Local("enable_implicit_select_for_update", "on"),
		},
	}
}

// TransferService books transfers.
//
// Thread-Safety: Safe for concurrent use once constructed.
type TransferService struct {
	strategy     Strategy
	policy       txretry.RetryPolicy
	txOptions    txretry.TransactionOptions
	retryOpts    []retry.Option
	cache        ResultCache
	logger       txretry.Logger
	configurator *txattr.Configurator
	retrier      *retry.TxRetrier
	savepoints   *retry.SavepointRetrier
	now          func() time.Time
}

// TransferOption configures a TransferService.
type TransferOption func(*TransferService)

// WithStrategy selects the retry strategy. Defaults to StrategyTransaction.
func WithStrategy(s Strategy) TransferOption {
	return func(ts *TransferService) { ts.strategy = s }
}

// WithRetryPolicy overrides the attempt budget and backoff cap. The policy
// name is always TransferOperation.
func WithRetryPolicy(p txretry.RetryPolicy) TransferOption {
	return func(ts *TransferService) {
		p.Name = TransferOperation
		ts.policy = p
	}
}

// WithTransactionOptions replaces DefaultTransferOptions.
func WithTransactionOptions(opts txretry.TransactionOptions) TransferOption {
	return func(ts *TransferService) { ts.txOptions = opts }
}

// WithRetryOptions passes options to both coordinators, e.g. an event sink.
func WithRetryOptions(opts ...retry.Option) TransferOption {
	return func(ts *TransferService) { ts.retryOpts = append(ts.retryOpts, opts...) }
}

// WithResultCache enables the idempotency result cache.
func WithResultCache(c ResultCache) TransferOption {
	return func(ts *TransferService) { ts.cache = c }
}

// WithTransferLogger sets the logger for the service and its coordinators.
func WithTransferLogger(l txretry.Logger) TransferOption {
	return func(ts *TransferService) { ts.logger = l }
}

// NewTransferService creates a service opening transactions on manager.
// Panics if manager is nil; returns an error for invalid options.
func NewTransferService(manager txretry.TxManager, opts ...TransferOption) (*TransferService, error) {
	if manager == nil {
		panic("manager cannot be nil")
	}
	ts := &TransferService{
		strategy:  StrategyTransaction,
		policy:    txretry.DefaultRetryPolicy(TransferOperation),
		txOptions: DefaultTransferOptions(),
		logger:    logging.NewNullLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	if ts.logger == nil {
		ts.logger = logging.NewNullLogger()
	}
	if _, err := ParseStrategy(string(ts.strategy)); err != nil {
		return nil, err
	}
	if err := ts.policy.Validate(); err != nil {
		return nil, err
	}
	if err := txattr.Validate(ts.txOptions); err != nil {
		return nil, err
	}

	ts.configurator = txattr.NewConfigurator(ts.logger)
	outer := []retry.Option{retry.WithLogger(ts.logger)}
	outer = append(outer, ts.retryOpts...)
	outer = append(outer, retry.WithBeginHook(ts.configurator.Hook(ts.txOptions)))
	ts.retrier = retry.NewTxRetrier(manager, outer...)

	inner := []retry.Option{retry.WithLogger(ts.logger), retry.WithSavepointName("bank_transfer")}
	inner = append(inner, ts.retryOpts...)
	ts.savepoints = retry.NewSavepointRetrier(inner...)
	return ts, nil
}

// Strategy reports the configured retry strategy.
func (s *TransferService) Strategy() Strategy {
	return s.strategy
}

// Submit books req in a single retried transaction and returns the booked
// transfer. If a transfer with the same idempotency key exists, it is
// returned with Duplicate set and no account is modified.
func (s *TransferService) Submit(ctx context.Context, req TransferRequest) (*Transfer, error) {
	legs, err := req.Coalesce()
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, req.IdempotencyKey)
		if err != nil {
			s.logger.Warn("Result cache lookup for %s failed: %v", req.IdempotencyKey, err)
		} else if ok {
			cached.Duplicate = true
			return cached, nil
		}
	}

	t, err := retry.Run(ctx, s.retrier, s.policy, func(ctx context.Context, tx txretry.Tx) (*Transfer, error) {
		existing, err := findTransferByKey(ctx, tx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			existing.Duplicate = true
			return existing, nil
		}

		book := func(ctx context.Context, tx txretry.Tx) (*Transfer, error) {
			return s.book(ctx, tx, req, legs)
		}
		if s.strategy == StrategySavepoint {
			return retry.RunInSavepoint(ctx, s.savepoints, s.policy, book)
		}
		return book(ctx, tx)
	})
	if err != nil {
		if retry.SQLState(err) == pgerrcode.UniqueViolation {
			return s.committedConcurrently(ctx, req.IdempotencyKey, err)
		}
		return nil, err
	}

	if s.cache != nil && !t.Duplicate {
		if err := s.cache.Put(ctx, t); err != nil {
			s.logger.Warn("Caching transfer %s failed: %v", t.ID, err)
		}
	}
	return t, nil
}

// committedConcurrently resolves a unique violation raised while booking:
// a concurrent Submit with the same idempotency key committed first, so its
// transfer is returned as a duplicate. cause is returned when no transfer
// holds the key.
func (s *TransferService) committedConcurrently(ctx context.Context, key uuid.UUID, cause error) (*Transfer, error) {
	t, err := retry.Run(ctx, s.retrier, s.policy, func(ctx context.Context, tx txretry.Tx) (*Transfer, error) {
		return findTransferByKey(ctx, tx, key)
	})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, cause
	}
	s.logger.Verbose("Transfer %s was booked concurrently as %s", key, t.ID)
	t.Duplicate = true
	return t, nil
}

// book applies legs to their accounts and records the transfer and its
// outbox event. Accounts are locked in leg order.
func (s *TransferService) book(ctx context.Context, tx txretry.Tx, req TransferRequest, legs []Leg) (*Transfer, error) {
	region := req.Region
	if region == "" {
		region = DefaultRegion
	}
	bookingDate := req.BookingDate
	if bookingDate.IsZero() {
		bookingDate = s.now().UTC()
	}
	transferType := req.Type
	if transferType == "" {
		transferType = TypeBankTransfer
	}

	t := &Transfer{
		ID:             uuid.New(),
		IdempotencyKey: req.IdempotencyKey,
		Type:           transferType,
		Region:         region,
		BookingDate:    bookingDate.Truncate(24 * time.Hour),
		CreatedAt:      s.now().UTC(),
		Items:          make([]TransferItem, 0, len(legs)),
	}

	for _, leg := range legs {
		account, err := lockAccount(ctx, tx, leg.AccountID)
		if err != nil {
			return nil, err
		}
		if account.closed {
			return nil, fmt.Errorf("%w: account %s is closed", ErrBadRequest, leg.AccountID)
		}
		if account.currency != leg.Currency {
			return nil, fmt.Errorf("%w: account %s holds %s, leg is in %s",
				ErrBadRequest, leg.AccountID, account.currency, leg.Currency)
		}

		balance := account.balance.Add(leg.Amount)
		if balance.IsNegative() && !account.allowNegative {
			return nil, fmt.Errorf("%w: account %s would have balance %s %s",
				ErrNegativeBalance, leg.AccountID, balance.StringFixed(2), leg.Currency)
		}
		if err := updateBalance(ctx, tx, leg.AccountID, balance, leg.Currency); err != nil {
			return nil, err
		}

		t.Items = append(t.Items, TransferItem{
			AccountID:      leg.AccountID,
			Amount:         leg.Amount,
			Currency:       leg.Currency,
			RunningBalance: account.balance,
			Note:           leg.Note,
		})
	}

	if err := insertTransfer(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := insertOutboxEvent(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}
