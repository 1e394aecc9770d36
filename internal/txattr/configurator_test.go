package txattr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/internal/logging"
	"github.com/vvka-141/txretry/pkg/txretry"
)

type recordingExecer struct {
	stmts  []string
	failOn string
	err    error
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	r.stmts = append(r.stmts, sql)
	if r.failOn != "" && sql == r.failOn {
		return 0, r.err
	}
	return 0, nil
}

// recordingTx is a minimal txretry.Tx that only records Exec.
type recordingTx struct {
	recordingExecer
}

func (t *recordingTx) Query(context.Context, string, ...any) (txretry.Rows, error) { return nil, nil }
func (t *recordingTx) QueryRow(context.Context, string, ...any) txretry.Row        { return nil }
func (t *recordingTx) Commit(context.Context) error                                { return nil }
func (t *recordingTx) Rollback(context.Context) error                              { return nil }
func (t *recordingTx) Savepoint(context.Context, string) error                     { return nil }
func (t *recordingTx) RollbackToSavepoint(context.Context, string) error           { return nil }
func (t *recordingTx) ReleaseSavepoint(context.Context, string) error              { return nil }

func newConfigurator() *Configurator {
	return NewConfigurator(logging.NewNullLogger())
}

func TestApply_EmptyOptionsSendNothing(t *testing.T) {
	exec := &recordingExecer{}
	require.NoError(t, newConfigurator().Apply(context.Background(), exec, txretry.TransactionOptions{}))
	assert.Empty(t, exec.stmts)
}

func TestApply_StatementOrder(t *testing.T) {
	exec := &recordingExecer{}
	opts := txretry.TransactionOptions{
		ApplicationName: "bank",
		Priority:        txretry.PriorityHigh,
		IdleTimeout:     30 * time.Second,
		ReadOnly:        true,
		TimeTravel:      txretry.FollowerRead(),
		Variables: []txretry.SessionVariable{
			txretry.Local("enable_implicit_select_for_update", "on"),
			txretry.Session("statement_timeout", "5s"),
		},
	}

	require.NoError(t, newConfigurator().Apply(context.Background(), exec, opts))

	assert.Equal(t, []string{
		"SET application_name = 'bank'",
		"SET TRANSACTION PRIORITY HIGH",
		"SET idle_in_transaction_session_timeout = 30000",
		"SET transaction_read_only = true",
		"SET TRANSACTION AS OF SYSTEM TIME follower_read_timestamp()",
		`SET LOCAL "enable_implicit_select_for_update" = 'on'`,
		`SET SESSION "statement_timeout" = '5s'`,
	}, exec.stmts)
}

func TestApply_HistoricalRead(t *testing.T) {
	for _, d := range []time.Duration{10 * time.Second, -10 * time.Second} {
		exec := &recordingExecer{}
		opts := txretry.TransactionOptions{TimeTravel: txretry.HistoricalRead(d)}

		require.NoError(t, newConfigurator().Apply(context.Background(), exec, opts))
		assert.Equal(t, []string{"SET TRANSACTION AS OF SYSTEM TIME INTERVAL '-10s'"}, exec.stmts)
	}
}

func TestApply_QuotesLiterals(t *testing.T) {
	exec := &recordingExecer{}
	opts := txretry.TransactionOptions{ApplicationName: "o'brien; DROP TABLE account"}

	require.NoError(t, newConfigurator().Apply(context.Background(), exec, opts))
	assert.Equal(t, []string{"SET application_name = 'o''brien; DROP TABLE account'"}, exec.stmts)
}

func TestApply_LowPriority(t *testing.T) {
	exec := &recordingExecer{}
	require.NoError(t, newConfigurator().Apply(context.Background(), exec, txretry.TransactionOptions{Priority: txretry.PriorityLow}))
	assert.Equal(t, []string{"SET TRANSACTION PRIORITY LOW"}, exec.stmts)
}

func TestApply_ValidationSendsNothing(t *testing.T) {
	tests := []struct {
		name string
		opts txretry.TransactionOptions
		want error
	}{
		{
			name: "immutable variable",
			opts: txretry.TransactionOptions{
				ApplicationName: "bank",
				Variables:       []txretry.SessionVariable{txretry.Local("node_id", "2")},
			},
			want: txretry.ErrImmutableVariable,
		},
		{
			name: "unknown variable",
			opts: txretry.TransactionOptions{
				ReadOnly:  true,
				Variables: []txretry.SessionVariable{txretry.Local("no_such_thing", "1")},
			},
			want: txretry.ErrUnknownVariable,
		},
		{
			name: "historical read without interval",
			opts: txretry.TransactionOptions{ApplicationName: "x", TimeTravel: txretry.TimeTravel{Mode: txretry.TimeTravelHistoricalRead}},
			want: txretry.ErrInvalidOptions,
		},
		{
			name: "negative idle timeout",
			opts: txretry.TransactionOptions{IdleTimeout: -time.Second},
			want: txretry.ErrInvalidOptions,
		},
		{
			name: "bad priority",
			opts: txretry.TransactionOptions{Priority: txretry.Priority(42)},
			want: txretry.ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &recordingExecer{}
			err := newConfigurator().Apply(context.Background(), exec, tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, exec.stmts)
		})
	}
}

func TestApply_ImmutableVariableError(t *testing.T) {
	err := Validate(txretry.TransactionOptions{Variables: []txretry.SessionVariable{txretry.Local("Transaction_Isolation", "read committed")}})

	var varErr *txretry.VariableError
	require.ErrorAs(t, err, &varErr)
	assert.Equal(t, "transaction_isolation", varErr.Name)
}

func TestApply_StatementFailurePropagates(t *testing.T) {
	failure := errors.New("boom")
	exec := &recordingExecer{failOn: "SET transaction_read_only = true", err: failure}
	opts := txretry.TransactionOptions{ApplicationName: "a", ReadOnly: true, TimeTravel: txretry.FollowerRead()}

	err := newConfigurator().Apply(context.Background(), exec, opts)

	assert.Same(t, failure, err)
	assert.Len(t, exec.stmts, 2, "stops at the failing statement")
}

func TestWrap_RequiresTransaction(t *testing.T) {
	called := false
	op := Wrap(newConfigurator(), txretry.TransactionOptions{ReadOnly: true}, func(ctx context.Context, tx txretry.Tx) (int, error) {
		called = true
		return 1, nil
	})

	_, err := op(context.Background(), &recordingTx{})

	assert.ErrorIs(t, err, txretry.ErrNoTransaction)
	assert.False(t, called)
}

func TestWrap_AppliesBeforeOperation(t *testing.T) {
	tx := &recordingTx{}
	ctx := txretry.ContextWithTx(context.Background(), tx)
	op := Wrap(newConfigurator(), txretry.TransactionOptions{ApplicationName: "w"}, func(ctx context.Context, tx txretry.Tx) (int, error) {
		_, err := tx.Exec(ctx, "SELECT 1")
		return 7, err
	})

	got, err := op(ctx, tx)

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, []string{"SET application_name = 'w'", "SELECT 1"}, tx.stmts)
}

func TestHook(t *testing.T) {
	tx := &recordingTx{}
	hook := newConfigurator().Hook(txretry.TransactionOptions{Priority: txretry.PriorityLow})
	require.NoError(t, hook(context.Background(), tx))
	assert.Equal(t, []string{"SET TRANSACTION PRIORITY LOW"}, tx.stmts)
}

func TestVariables(t *testing.T) {
	all := Variables()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}

	v, ok := LookupVariable("APPLICATION_NAME")
	require.True(t, ok)
	assert.Equal(t, "application_name", v.Name)
	assert.True(t, v.Mutable())
	assert.True(t, v.Official())
	assert.Equal(t, "(undefined)", v.DefaultOrUndefined())

	v, ok = LookupVariable("avoid_buffering")
	require.True(t, ok)
	assert.False(t, v.Mutable())
	assert.False(t, v.Official())

	v, ok = LookupVariable("inject_retry_errors_enabled")
	require.True(t, ok)
	assert.Equal(t, "v22.1", v.Version())

	_, ok = LookupVariable("bogus")
	assert.False(t, ok)
}
