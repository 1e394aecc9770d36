package bank

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/pkg/txretry"
)

func TestCreateAccounts_Batches(t *testing.T) {
	b := newMemBank()
	s := NewAccountService(b, logging.NewNullLogger())

	var progress []int
	ids, err := s.CreateAccounts(context.Background(), CreateAccountsRequest{
		Count:          5,
		InitialBalance: amount("250.00"),
		Currency:       "sek",
		BatchSize:      2,
		Progress:       func(n int) { progress = append(progress, n) },
	})
	require.NoError(t, err)

	assert.Len(t, ids, 5)
	assert.Equal(t, []int{2, 4, 5}, progress)
	assert.Equal(t, 3, b.beginCount())

	totals, err := s.TotalBalance(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "SEK", totals[0].Currency)
	assert.True(t, totals[0].Amount.Equal(amount("1250")))
}

func TestCreateAccounts_Validation(t *testing.T) {
	s := NewAccountService(newMemBank(), logging.NewNullLogger())

	_, err := s.CreateAccounts(context.Background(), CreateAccountsRequest{Count: 0, Currency: "USD"})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = s.CreateAccounts(context.Background(), CreateAccountsRequest{Count: 1, Currency: "dollars"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestBalance_ReadOnly(t *testing.T) {
	b := newMemBank()
	id := uuid.New()
	b.addAccount(id.String(), "42.00", "USD", false)
	s := NewAccountService(b, logging.NewNullLogger())

	m, err := s.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "42.00 USD", m.String())
	assert.Equal(t, 1, b.executed("SET transaction_read_only = true"))
	assert.Equal(t, 0, b.executed("SET TRANSACTION AS OF SYSTEM TIME"))

	_, err = s.Balance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestBalanceSnapshot_UsesFollowerRead(t *testing.T) {
	b := newMemBank()
	id := uuid.New()
	b.addAccount(id.String(), "7", "EUR", false)
	s := NewAccountService(b, logging.NewNullLogger())

	m, err := s.BalanceSnapshot(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, m.Amount.Equal(amount("7")))
	assert.Equal(t, 1, b.executed("SET TRANSACTION AS OF SYSTEM TIME follower_read_timestamp()"))
}

func TestSnapshotOptions(t *testing.T) {
	opts := snapshotOptions()
	assert.True(t, opts.ReadOnly)
	assert.Equal(t, txretry.TimeTravelFollowerRead, opts.TimeTravel.Mode)
}

func TestOutboxEvents(t *testing.T) {
	f := newLedger(t)
	s := newService(t, f.bank)
	accounts := NewAccountService(f.bank, logging.NewNullLogger())

	_, err := s.Submit(context.Background(), NewTransferRequest(f.from, f.to, amount("1"), "USD"))
	require.NoError(t, err)

	n, err := accounts.OutboxEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewAccountService_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewAccountService(nil, logging.NewNullLogger()) })
	assert.Panics(t, func() { NewAccountService(newMemBank(), nil) })
}
