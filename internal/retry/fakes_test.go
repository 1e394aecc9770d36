package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/txretry/pkg/txretry"
)

func serializationFailure(msg string) error {
	return &pgconn.PgError{Code: "40001", Message: "restart transaction: " + msg}
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

// fakeTx records every call made against it in order.
type fakeTx struct {
	id        int
	log       *callLog
	commitErr error
	releaseFn func() error
	done      bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	t.log.add(fmt.Sprintf("tx%d exec %s", t.id, sql))
	return 0, nil
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (txretry.Rows, error) {
	return nil, errors.New("not supported by fake")
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) txretry.Row {
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.log.add(fmt.Sprintf("tx%d commit", t.id))
	t.done = true
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.log.add(fmt.Sprintf("tx%d rollback", t.id))
	return nil
}

func (t *fakeTx) Savepoint(ctx context.Context, name string) error {
	t.log.add(fmt.Sprintf("tx%d savepoint %s", t.id, name))
	return nil
}

func (t *fakeTx) RollbackToSavepoint(ctx context.Context, name string) error {
	t.log.add(fmt.Sprintf("tx%d rollback to %s", t.id, name))
	return nil
}

func (t *fakeTx) ReleaseSavepoint(ctx context.Context, name string) error {
	t.log.add(fmt.Sprintf("tx%d release %s", t.id, name))
	if t.releaseFn != nil {
		return t.releaseFn()
	}
	return nil
}

// fakeManager hands out fakeTx values. commitErrs[i] is returned by the
// commit of the i-th transaction (0-based).
type fakeManager struct {
	mu         sync.Mutex
	log        callLog
	begun      []*fakeTx
	beginErr   error
	commitErrs []error
}

func (m *fakeManager) Begin(ctx context.Context) (txretry.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	tx := &fakeTx{id: len(m.begun) + 1, log: &m.log}
	if i := len(m.begun); i < len(m.commitErrs) {
		tx.commitErr = m.commitErrs[i]
	}
	m.begun = append(m.begun, tx)
	m.log.add(fmt.Sprintf("tx%d begin", tx.id))
	return tx, nil
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// recordingSleeper never blocks; it remembers every requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []txretry.RetryEvent
}

func (r *eventRecorder) OnRetryEvent(e txretry.RetryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []txretry.RetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]txretry.RetryEvent(nil), r.events...)
}

// failingOp fails with errs in order, then succeeds with value.
type failingOp struct {
	errs  []error
	calls int
	value string
}

func (o *failingOp) run(ctx context.Context, tx txretry.Tx) (string, error) {
	o.calls++
	if o.calls <= len(o.errs) {
		return "", o.errs[o.calls-1]
	}
	return o.value, nil
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}
