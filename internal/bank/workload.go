package bank

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/txretry/internal/telemetry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// WorkloadConfig describes a run of random two-leg transfers.
type WorkloadConfig struct {
	Tasks       int
	Concurrency int
	Accounts    []uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	// Rand picks accounts. Defaults to a randomly seeded source.
	Rand *rand.Rand
}

// Report summarizes a workload run.
type Report struct {
	Strategy    Strategy
	Tasks       int
	Succeeded   int
	Failed      int
	Elapsed     time.Duration
	Retries     telemetry.Snapshot
	TotalBefore []Money
	TotalAfter  []Money
	// Failures counts failed transfers by cause.
	Failures map[string]int
	// Committed is the number of transfers the run booked, read from the
	// ledger. Every request carries a fresh idempotency key, so it equals
	// Succeeded.
	Committed int64
}

// Conserved reports whether the per-currency totals did not change.
func (r *Report) Conserved() bool {
	if len(r.TotalBefore) != len(r.TotalAfter) {
		return false
	}
	for i := range r.TotalBefore {
		if r.TotalBefore[i].Currency != r.TotalAfter[i].Currency ||
			!r.TotalBefore[i].Amount.Equal(r.TotalAfter[i].Amount) {
			return false
		}
	}
	return true
}

// Workload drives concurrent transfers against a TransferService.
type Workload struct {
	transfers *TransferService
	accounts  *AccountService
	counters  *telemetry.Counters
}

// NewWorkload creates a workload runner. counters must be the event sink
// attached to the transfer service; it is reset at the start of every run.
// Panics if any argument is nil.
func NewWorkload(transfers *TransferService, accounts *AccountService, counters *telemetry.Counters) *Workload {
	if transfers == nil {
		panic("transfers cannot be nil")
	}
	if accounts == nil {
		panic("accounts cannot be nil")
	}
	if counters == nil {
		panic("counters cannot be nil")
	}
	return &Workload{transfers: transfers, accounts: accounts, counters: counters}
}

// Run submits cfg.Tasks transfers between two distinct random accounts,
// at most cfg.Concurrency at a time. Failed transfers are counted, not
// returned; Run fails only when totals cannot be read or ctx is done.
func (w *Workload) Run(ctx context.Context, cfg WorkloadConfig) (*Report, error) {
	if cfg.Tasks <= 0 {
		return nil, fmt.Errorf("%w: tasks must be positive, got %d", txretry.ErrInvalidConfig, cfg.Tasks)
	}
	if len(cfg.Accounts) < 2 {
		return nil, fmt.Errorf("%w: need at least two accounts, got %d", txretry.ErrInvalidConfig, len(cfg.Accounts))
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	before, err := w.accounts.TotalBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read totals before run: %w", err)
	}
	booked, err := w.accounts.Transfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count transfers before run: %w", err)
	}
	w.counters.Reset()

	report := &Report{
		Strategy:    w.transfers.Strategy(),
		Tasks:       cfg.Tasks,
		TotalBefore: before,
		Failures:    make(map[string]int),
	}

	requests := make([]TransferRequest, cfg.Tasks)
	for i := range requests {
		from := rnd.IntN(len(cfg.Accounts))
		to := rnd.IntN(len(cfg.Accounts) - 1)
		if to >= from {
			to++
		}
		requests[i] = NewTransferRequest(cfg.Accounts[from], cfg.Accounts[to], cfg.Amount, cfg.Currency)
	}

	var mu sync.Mutex
	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, req := range requests {
		g.Go(func() error {
			_, err := w.transfers.Submit(gctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				report.Succeeded++
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			report.Failed++
			report.Failures[failureCause(err)]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Elapsed = time.Since(started)
	report.Retries = w.counters.Snapshot()

	after, err := w.accounts.TotalBalance(ctx)
	if err != nil {
		return report, fmt.Errorf("read totals after run: %w", err)
	}
	report.TotalAfter = after

	bookedAfter, err := w.accounts.Transfers(ctx)
	if err != nil {
		return report, fmt.Errorf("count transfers after run: %w", err)
	}
	report.Committed = bookedAfter - booked
	return report, nil
}

func failureCause(err error) string {
	var exhausted *txretry.RetryExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return "retries exhausted"
	case errors.Is(err, ErrNegativeBalance):
		return "negative balance"
	case errors.Is(err, ErrNoSuchAccount):
		return "no such account"
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrUnbalanced):
		return "bad request"
	default:
		return "other"
	}
}
