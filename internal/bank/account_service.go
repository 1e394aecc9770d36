package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/internal/txattr"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// DefaultBatchSize is the number of accounts inserted per transaction.
const DefaultBatchSize = 128

// CreateAccountsRequest describes a batch of identical accounts.
type CreateAccountsRequest struct {
	Region         string
	Count          int
	InitialBalance decimal.Decimal
	Currency       string
	AllowNegative  bool
	BatchSize      int
	// Progress, when set, is called with the number of accounts created so far.
	Progress func(created int)
}

type foreignSystem struct {
	ID            string    `json:"id"`
	Label         string    `json:"label"`
	Owner         string    `json:"owner"`
	InceptionTime time.Time `json:"inception_time"`
}

// AccountService manages accounts and answers balance queries.
//
// Thread-Safety: Safe for concurrent use.
type AccountService struct {
	retrier      *retry.TxRetrier
	configurator *txattr.Configurator
	logger       txretry.Logger
}

// NewAccountService creates a service opening transactions on manager.
// Panics if manager or logger is nil.
func NewAccountService(manager txretry.TxManager, logger txretry.Logger, opts ...retry.Option) *AccountService {
	if manager == nil {
		panic("manager cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &AccountService{
		retrier:      retry.NewTxRetrier(manager, append([]retry.Option{retry.WithLogger(logger)}, opts...)...),
		configurator: txattr.NewConfigurator(logger),
		logger:       logger,
	}
}

// readOnly are the options of plain balance queries.
func readOnly() txretry.TransactionOptions {
	return txretry.TransactionOptions{ReadOnly: true}
}

// snapshotOptions read slightly stale data from the nearest replica.
// CockroachDB only.
func snapshotOptions() txretry.TransactionOptions {
	return txretry.TransactionOptions{ReadOnly: true, TimeTravel: txretry.FollowerRead()}
}

// CreateAccounts inserts req.Count accounts in batches and returns their IDs.
func (s *AccountService) CreateAccounts(ctx context.Context, req CreateAccountsRequest) ([]uuid.UUID, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("%w: account count must be positive, got %d", ErrBadRequest, req.Count)
	}
	currency := normalizeCurrency(req.Currency)
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: invalid currency %q", ErrBadRequest, req.Currency)
	}
	region := req.Region
	if region == "" {
		region = DefaultRegion
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ids := make([]uuid.UUID, 0, req.Count)
	policy := txretry.DefaultRetryPolicy("bank.create_accounts")
	for start := 0; start < req.Count; start += batchSize {
		n := min(batchSize, req.Count-start)
		batch := make([]uuid.UUID, n)
		for i := range batch {
			batch[i] = uuid.New()
		}

		err := s.retrier.Execute(ctx, policy, func(ctx context.Context, tx txretry.Tx) error {
			for i, id := range batch {
				metadata, err := json.Marshal(foreignSystem{
					ID:            strconv.Itoa(rand.IntN(999) + 1),
					Label:         "System X",
					Owner:         "Chuck Norris",
					InceptionTime: time.Now().UTC(),
				})
				if err != nil {
					return err
				}
				name := "user:" + strconv.Itoa(start+i+1)
				if _, err := tx.Exec(ctx, sqlInsertAccount, id.String(), region, name,
					req.InitialBalance.String(), currency, req.AllowNegative, string(metadata)); err != nil {
					return fmt.Errorf("insert account: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, batch...)
		if req.Progress != nil {
			req.Progress(len(ids))
		}
	}
	s.logger.Verbose("Created %d accounts in region %q", len(ids), region)
	return ids, nil
}

// ListAccounts returns accounts of region ordered by ID.
func (s *AccountService) ListAccounts(ctx context.Context, region string, offset, limit int) ([]Account, error) {
	if region == "" {
		region = DefaultRegion
	}
	op := func(ctx context.Context, tx txretry.Tx) ([]Account, error) {
		rows, err := tx.Query(ctx, sqlListAccounts, region, offset, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var accounts []Account
		for rows.Next() {
			var id, balance string
			var a Account
			if err := rows.Scan(&id, &a.Region, &a.Name, &balance, &a.Currency,
				&a.AllowNegative, &a.Closed, &a.UpdatedAt); err != nil {
				return nil, err
			}
			if a.ID, err = uuid.Parse(id); err != nil {
				return nil, fmt.Errorf("parse account id: %w", err)
			}
			if a.Balance, err = decimal.NewFromString(balance); err != nil {
				return nil, fmt.Errorf("parse balance: %w", err)
			}
			accounts = append(accounts, a)
		}
		return accounts, rows.Err()
	}
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.list_accounts"),
		txattr.Wrap(s.configurator, readOnly(), op))
}

// Balance returns the current balance of account id.
func (s *AccountService) Balance(ctx context.Context, id uuid.UUID) (Money, error) {
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.balance"),
		txattr.Wrap(s.configurator, readOnly(), balanceOf(id)))
}

// BalanceSnapshot returns the balance of account id as of the follower read
// timestamp. Accounts created within the last few seconds are not visible yet.
func (s *AccountService) BalanceSnapshot(ctx context.Context, id uuid.UUID) (Money, error) {
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.balance_snapshot"),
		txattr.Wrap(s.configurator, snapshotOptions(), balanceOf(id)))
}

func balanceOf(id uuid.UUID) txretry.TxFunc[Money] {
	return func(ctx context.Context, tx txretry.Tx) (Money, error) {
		rows, err := tx.Query(ctx, sqlAccountBalance, id.String())
		if err != nil {
			return Money{}, err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return Money{}, err
			}
			return Money{}, fmt.Errorf("%w: %s", ErrNoSuchAccount, id)
		}
		var balance string
		var m Money
		if err := rows.Scan(&balance, &m.Currency); err != nil {
			return Money{}, err
		}
		if m.Amount, err = decimal.NewFromString(balance); err != nil {
			return Money{}, fmt.Errorf("parse balance: %w", err)
		}
		return m, rows.Err()
	}
}

// TotalBalance sums all balances per currency, ordered by currency.
func (s *AccountService) TotalBalance(ctx context.Context) ([]Money, error) {
	op := func(ctx context.Context, tx txretry.Tx) ([]Money, error) {
		rows, err := tx.Query(ctx, sqlTotalBalance)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var totals []Money
		for rows.Next() {
			var sum string
			var m Money
			if err := rows.Scan(&m.Currency, &sum); err != nil {
				return nil, err
			}
			if m.Amount, err = decimal.NewFromString(sum); err != nil {
				return nil, fmt.Errorf("parse total: %w", err)
			}
			totals = append(totals, m)
		}
		return totals, rows.Err()
	}
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.total_balance"),
		txattr.Wrap(s.configurator, readOnly(), op))
}

// OutboxEvents counts the transfer events written to the outbox.
func (s *AccountService) OutboxEvents(ctx context.Context) (int64, error) {
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.outbox_events"),
		func(ctx context.Context, tx txretry.Tx) (int64, error) {
			var n int64
			err := tx.QueryRow(ctx, sqlCountOutbox).Scan(&n)
			return n, err
		})
}

// Transfers counts the booked transfers.
func (s *AccountService) Transfers(ctx context.Context) (int64, error) {
	return retry.Run(ctx, s.retrier, txretry.DefaultRetryPolicy("bank.transfers"),
		func(ctx context.Context, tx txretry.Tx) (int64, error) {
			var n int64
			err := tx.QueryRow(ctx, sqlCountTransfers).Scan(&n)
			return n, err
		})
}

// DeleteAll removes all accounts, transfers and outbox events.
func (s *AccountService) DeleteAll(ctx context.Context) error {
	return s.retrier.Execute(ctx, txretry.DefaultRetryPolicy("bank.delete_all"),
		func(ctx context.Context, tx txretry.Tx) error {
			for _, table := range []string{"outbox", "transfer_item", "transfer", "account"} {
				if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE true"); err != nil {
					return fmt.Errorf("delete %s: %w", table, err)
				}
			}
			return nil
		})
}
