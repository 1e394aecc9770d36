package bank

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// memBank is an in-memory ledger that understands the statements of this
// package. Commits are validated optimistically: a transaction that read an
// account modified by a concurrent commit fails with SQLSTATE 40001.
type memBank struct {
	mu        sync.Mutex
	accounts  map[string]*memAccount
	transfers []memTransfer
	items     []memItem
	outbox    int

	commitFailures int
	updateFailures int
	begins         int
	statements     []string

	// onCommit runs once, under the lock, before the next commit is
	// validated. Tests use it to commit a competing transaction.
	onCommit func(b *memBank, stage memStage)
}

type memAccount struct {
	region        string
	name          string
	balance       string
	currency      string
	allowNegative bool
	closed        bool
	version       int64
	updatedAt     time.Time
}

type memTransfer struct {
	id, key, typ, region, bookingDate string
	createdAt                         time.Time
}

type memItem struct {
	transferID, accountID, amount, currency, running, note string
}

type memStage struct {
	balances  map[string]string
	accounts  map[string]*memAccount
	transfers []memTransfer
	items     []memItem
	outbox    int
}

func (s memStage) clone() memStage {
	c := memStage{
		balances:  make(map[string]string, len(s.balances)),
		accounts:  make(map[string]*memAccount, len(s.accounts)),
		transfers: append([]memTransfer(nil), s.transfers...),
		items:     append([]memItem(nil), s.items...),
		outbox:    s.outbox,
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.accounts {
		a := *v
		c.accounts[k] = &a
	}
	return c
}

func newMemBank() *memBank {
	return &memBank{accounts: make(map[string]*memAccount)}
}

func serializationFailure() error {
	return &pgconn.PgError{Code: "40001", Message: "restart transaction: TransactionRetryWithProtoRefreshError"}
}

func (b *memBank) addAccount(id, balance, currency string, allowNegative bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[id] = &memAccount{region: DefaultRegion, name: id, balance: balance, currency: currency, allowNegative: allowNegative}
}

func (b *memBank) balance(id string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return decimal.RequireFromString(b.accounts[id].balance)
}

func (b *memBank) counts() (transfers, items, outbox int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.transfers), len(b.items), b.outbox
}

func (b *memBank) beginCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begins
}

func (b *memBank) executed(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.statements {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func (b *memBank) Begin(ctx context.Context) (txretry.Tx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.begins++
	return &memTx{
		bank:       b,
		reads:      make(map[string]int64),
		stage:      memStage{}.clone(),
		savepoints: make(map[string]memStage),
	}, nil
}

type memTx struct {
	bank       *memBank
	reads      map[string]int64
	stage      memStage
	savepoints map[string]memStage
	done       bool
}

func (t *memTx) record(sql string) {
	t.bank.statements = append(t.bank.statements, sql)
}

func (t *memTx) accountLocked(id string) (*memAccount, bool) {
	if a, ok := t.stage.accounts[id]; ok {
		return a, true
	}
	a, ok := t.bank.accounts[id]
	return a, ok
}

func (t *memTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	b := t.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	t.record(sql)

	switch sql {
	case sqlUpdateBalance:
		if b.updateFailures > 0 {
			b.updateFailures--
			return 0, serializationFailure()
		}
		id := args[1].(string)
		a, ok := t.accountLocked(id)
		if !ok || a.closed || a.currency != args[2].(string) {
			return 0, nil
		}
		t.stage.balances[id] = args[0].(string)
		return 1, nil
	case sqlInsertTransfer:
		t.stage.transfers = append(t.stage.transfers, memTransfer{
			id: args[0].(string), key: args[1].(string), typ: args[2].(string),
			region: args[3].(string), bookingDate: args[4].(string), createdAt: args[5].(time.Time),
		})
		return 1, nil
	case sqlInsertTransferItem:
		t.stage.items = append(t.stage.items, memItem{
			transferID: args[0].(string), accountID: args[1].(string), amount: args[2].(string),
			currency: args[3].(string), running: args[4].(string), note: args[5].(string),
		})
		return 1, nil
	case sqlInsertOutbox:
		t.stage.outbox++
		return 1, nil
	case sqlInsertAccount:
		t.stage.accounts[args[0].(string)] = &memAccount{
			region: args[1].(string), name: args[2].(string), balance: args[3].(string),
			currency: args[4].(string), allowNegative: args[5].(bool),
		}
		return 1, nil
	}
	if strings.HasPrefix(sql, "SET ") || strings.HasPrefix(sql, "DELETE ") {
		return 0, nil
	}
	return 0, fmt.Errorf("memBank: unexpected statement %q", sql)
}

func (t *memTx) Query(ctx context.Context, sql string, args ...any) (txretry.Rows, error) {
	b := t.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	t.record(sql)

	switch sql {
	case sqlFindTransferByKey:
		for _, tr := range append(append([]memTransfer(nil), b.transfers...), t.stage.transfers...) {
			if tr.key == args[0].(string) {
				return &memRows{data: [][]any{{tr.id, tr.typ, tr.region, tr.bookingDate, tr.createdAt}}}, nil
			}
		}
		return &memRows{}, nil
	case sqlFindTransferItems:
		var data [][]any
		for _, it := range append(append([]memItem(nil), b.items...), t.stage.items...) {
			if it.transferID == args[0].(string) {
				data = append(data, []any{it.accountID, it.amount, it.currency, it.running, it.note})
			}
		}
		return &memRows{data: data}, nil
	case sqlLockAccount, sqlAccountBalance:
		id := args[0].(string)
		a, ok := t.accountLocked(id)
		if !ok {
			return &memRows{}, nil
		}
		t.reads[id] = a.version
		balance := a.balance
		if staged, ok := t.stage.balances[id]; ok {
			balance = staged
		}
		if sql == sqlAccountBalance {
			return &memRows{data: [][]any{{balance, a.currency}}}, nil
		}
		return &memRows{data: [][]any{{balance, a.currency, a.allowNegative, a.closed}}}, nil
	case sqlTotalBalance:
		totals := make(map[string]decimal.Decimal)
		for id, a := range b.accounts {
			t.reads[id] = a.version
			totals[a.currency] = totals[a.currency].Add(decimal.RequireFromString(a.balance))
		}
		currencies := make([]string, 0, len(totals))
		for c := range totals {
			currencies = append(currencies, c)
		}
		sort.Strings(currencies)
		var data [][]any
		for _, c := range currencies {
			data = append(data, []any{c, totals[c].String()})
		}
		return &memRows{data: data}, nil
	}
	return nil, fmt.Errorf("memBank: unexpected query %q", sql)
}

func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) txretry.Row {
	b := t.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	t.record(sql)

	switch sql {
	case sqlCountOutbox:
		return &memRows{data: [][]any{{int64(b.outbox)}}, i: 1}
	case sqlCountTransfers:
		return &memRows{data: [][]any{{int64(len(b.transfers))}}, i: 1}
	}
	return &memRows{err: fmt.Errorf("memBank: unexpected query %q", sql), i: 1}
}

func (t *memTx) Commit(ctx context.Context) error {
	b := t.bank
	b.mu.Lock()
	defer b.mu.Unlock()
	t.record("COMMIT")
	t.done = true

	if hook := b.onCommit; hook != nil {
		b.onCommit = nil
		hook(b, t.stage)
	}

	if b.commitFailures > 0 {
		b.commitFailures--
		return serializationFailure()
	}
	for id, version := range t.reads {
		if a, ok := b.accounts[id]; ok && a.version != version {
			return serializationFailure()
		}
	}
	for _, tr := range t.stage.transfers {
		for _, existing := range b.transfers {
			if existing.key == tr.key {
				return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
			}
		}
	}

	for id, a := range t.stage.accounts {
		b.accounts[id] = a
	}
	for id, balance := range t.stage.balances {
		a := b.accounts[id]
		a.balance = balance
		a.version++
	}
	b.transfers = append(b.transfers, t.stage.transfers...)
	b.items = append(b.items, t.stage.items...)
	b.outbox += t.stage.outbox
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.bank.mu.Lock()
	defer t.bank.mu.Unlock()
	t.record("ROLLBACK")
	t.done = true
	return nil
}

func (t *memTx) Savepoint(ctx context.Context, name string) error {
	t.bank.mu.Lock()
	defer t.bank.mu.Unlock()
	t.record("SAVEPOINT " + name)
	t.savepoints[name] = t.stage.clone()
	return nil
}

func (t *memTx) RollbackToSavepoint(ctx context.Context, name string) error {
	t.bank.mu.Lock()
	defer t.bank.mu.Unlock()
	t.record("ROLLBACK TO SAVEPOINT " + name)
	t.stage = t.savepoints[name].clone()
	return nil
}

func (t *memTx) ReleaseSavepoint(ctx context.Context, name string) error {
	t.bank.mu.Lock()
	defer t.bank.mu.Unlock()
	t.record("RELEASE SAVEPOINT " + name)
	delete(t.savepoints, name)
	return nil
}

type memRows struct {
	data [][]any
	i    int
	err  error
}

func (r *memRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *memRows) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	row := r.data[r.i-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *bool:
			*p = row[i].(bool)
		case *int64:
			*p = row[i].(int64)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return fmt.Errorf("memRows: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *memRows) Err() error { return r.err }
func (r *memRows) Close()     {}
