package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vvka-141/txretry/internal/bank"
	"github.com/vvka-141/txretry/internal/config"
	"github.com/vvka-141/txretry/internal/db"
	"github.com/vvka-141/txretry/internal/db/manager"
	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/internal/tui"
	"github.com/vvka-141/txretry/internal/ui"
	"github.com/vvka-141/txretry/pkg/txretry"
)

var bankCmd = &cobra.Command{
	Use:   "bank",
	Short: "Drive the sample ledger",
	Long: `Commands for the sample double-entry ledger used to exercise the retry
coordinators under contention.

Examples:
  # Create the schema and 100 accounts
  txretry bank init --accounts 100

  # Run 10000 random transfers with 32 workers, retrying inside a savepoint
  txretry bank transfer --tasks 10000 --concurrency 32 --strategy savepoint

  # Show totals per currency
  txretry bank balance`,
}

type bankInitOptions struct {
	accounts       int
	initialBalance string
	currency       string
	region         string
	reset          bool
	force          bool
	createDatabase bool
	maintenanceDB  string
}

type bankTransferOptions struct {
	tasks       int
	concurrency int
	accounts    int
	amount      string
	currency    string
	region      string
	strategy    string
	redisURL    string
}

type bankBalanceOptions struct {
	account  string
	snapshot bool
}

var (
	initFlags     bankInitOptions
	transferFlags bankTransferOptions
	balanceFlags  bankBalanceOptions
)

var bankInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Apply the ledger schema and create accounts",
	Long: `Applies the ledger migrations and creates accounts with an initial balance.

--reset deletes every account, transfer and outbox event first. It asks for
confirmation by typing the database name; --force skips the prompt after a
short countdown and is required when not attached to a terminal.`,
	Args: cobra.NoArgs,
}

var bankTransferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Run concurrent random transfers and verify money is conserved",
	Args:  cobra.NoArgs,
	RunE:  runBankTransfer,
}

var bankBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the balance of one account or totals per currency",
	Args:  cobra.NoArgs,
	RunE:  runBankBalance,
}

func init() {
	rootCmd.AddCommand(bankCmd)
	// Assigned here rather than in the literal to break the initialization
	// cycle bankInitCmd -> runBankInit -> bankDefaults -> bankInitCmd.
	bankInitCmd.RunE = runBankInit
	bankCmd.AddCommand(bankInitCmd, bankTransferCmd, bankBalanceCmd)

	f := bankInitCmd.Flags()
	f.IntVar(&initFlags.accounts, "accounts", 100, "Number of accounts to create")
	f.StringVar(&initFlags.initialBalance, "initial-balance", "1000.00", "Opening balance of each account")
	f.StringVar(&initFlags.currency, "currency", "USD", "ISO 4217 currency code")
	f.StringVar(&initFlags.region, "region", bank.DefaultRegion, "Region of the new accounts")
	f.BoolVar(&initFlags.reset, "reset", false, "Delete all ledger data before creating accounts")
	f.BoolVar(&initFlags.force, "force", false, "Skip the interactive confirmation for --reset")
	f.BoolVar(&initFlags.createDatabase, "create-database", false, "Create the target database if it does not exist")
	f.StringVar(&initFlags.maintenanceDB, "maintenance-db", "defaultdb",
		"Database to connect to when creating the target (use postgres on PostgreSQL)")

	f = bankTransferCmd.Flags()
	f.IntVar(&transferFlags.tasks, "tasks", 1000, "Number of transfers to submit")
	f.IntVar(&transferFlags.concurrency, "concurrency", 16, "Transfers in flight at once")
	f.IntVar(&transferFlags.accounts, "accounts", 20, "Number of accounts to pick from; fewer means more contention")
	f.StringVar(&transferFlags.amount, "amount", "10.00", "Amount moved by each transfer")
	f.StringVar(&transferFlags.currency, "currency", "USD", "Currency of the transfers")
	f.StringVar(&transferFlags.region, "region", bank.DefaultRegion, "Region to pick accounts from")
	f.StringVar(&transferFlags.strategy, "strategy", "", "Retry strategy: transaction or savepoint (default: transaction)")
	f.StringVar(&transferFlags.redisURL, "redis", "", "Redis URL for the idempotency result cache")
	_ = bankTransferCmd.RegisterFlagCompletionFunc("strategy", completeStrategies)

	f = bankBalanceCmd.Flags()
	f.StringVar(&balanceFlags.account, "account", "", "Account ID; totals per currency when empty")
	f.BoolVar(&balanceFlags.snapshot, "snapshot", false, "Read a slightly stale follower-read snapshot (CockroachDB only)")
}

// bankDefaults applies the bank section of the config file to flags the
// user did not set.
func bankDefaults(cmd *cobra.Command, cfg *config.ProjectConfig) {
	if cfg == nil {
		return
	}
	b := cfg.Bank
	flags := cmd.Flags()
	if b.Accounts > 0 && !flags.Changed("accounts") && cmd == bankInitCmd {
		initFlags.accounts = b.Accounts
	}
	if b.InitialBalance != "" && !flags.Changed("initial-balance") {
		initFlags.initialBalance = b.InitialBalance
	}
	if b.Currency != "" && !flags.Changed("currency") {
		initFlags.currency = b.Currency
		transferFlags.currency = b.Currency
	}
	if b.Region != "" && !flags.Changed("region") {
		initFlags.region = b.Region
		transferFlags.region = b.Region
	}
	if cfg.Retry.Strategy != "" && !flags.Changed("strategy") {
		transferFlags.strategy = cfg.Retry.Strategy
	}
	if cfg.Cache.RedisURL != "" && !flags.Changed("redis") {
		transferFlags.redisURL = cfg.Cache.RedisURL
	}
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid argument for --%s %q: %w", name, s, err)
	}
	return d, nil
}

// resetApprover picks how --reset is confirmed.
func resetApprover(force, verbose bool) (ui.Approver, error) {
	if force {
		return ui.NewForcedApprover(verbose), nil
	}
	if !tui.IsInteractive() {
		return nil, fmt.Errorf("--reset needs --force when not attached to a terminal: %w", txretry.ErrInvalidConfig)
	}
	return ui.NewInteractiveApprover(verbose), nil
}

func runBankInit(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	bankDefaults(cmd, rt.cfg)

	balance, err := parseAmount("initial-balance", initFlags.initialBalance)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	conn, err := rt.resolveConnection()
	if err != nil {
		return err
	}
	if initFlags.createDatabase {
		if err := ensureDatabase(ctx, rt, conn, initFlags.maintenanceDB); err != nil {
			return err
		}
	}
	pool, err := rt.connect(ctx, conn)
	if err != nil {
		return err
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := bank.Migrate(ctx, sqlDB); err != nil {
		return err
	}
	schemaVersion, err := bank.SchemaVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	rt.logger.Verbose("Ledger schema at version %d", schemaVersion)

	_, sinks, err := rt.sinks(ctx)
	if err != nil {
		return err
	}
	accounts := bank.NewAccountService(db.NewPoolTxManager(pool), rt.logger, retry.WithEventSink(sinks))

	if initFlags.reset {
		approver, err := resetApprover(initFlags.force, rt.verbose)
		if err != nil {
			return err
		}
		approved, err := approver.RequestApproval(ctx, pool.Config().ConnConfig.Database)
		if err != nil {
			return err
		}
		if !approved {
			return fmt.Errorf("reset of %q not approved", pool.Config().ConnConfig.Database)
		}
		if err := accounts.DeleteAll(ctx); err != nil {
			return err
		}
		rt.logger.Info("Deleted all ledger data")
	}

	ids, err := accounts.CreateAccounts(ctx, bank.CreateAccountsRequest{
		Region:         initFlags.region,
		Count:          initFlags.accounts,
		InitialBalance: balance,
		Currency:       initFlags.currency,
		Progress: func(created int) {
			rt.logger.Verbose("Created %d/%d accounts", created, initFlags.accounts)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), tui.SuccessStyle.Render(fmt.Sprintf("%s Created %d accounts in region %q",
		tui.SymbolCheck, len(ids), initFlags.region)))
	return nil
}

// ensureDatabase creates conn.Database through a short-lived connection to
// the maintenance database.
func ensureDatabase(ctx context.Context, rt *runtime, conn *db.ConnectionConfig, maintenanceDB string) error {
	maint := *conn
	maint.Database = maintenanceDB
	maint.MaxConns, maint.MinConns = 1, 0

	connector := db.NewConnector(&maint, rt.logger)
	defer connector.Close()
	pool, err := connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	created, err := manager.New().Ensure(ctx, pool, conn.Database)
	if err != nil {
		return err
	}
	if created {
		rt.logger.Info("Created database %q", conn.Database)
	} else {
		rt.logger.Verbose("Database %q already exists", conn.Database)
	}
	return nil
}

// transferTxOptions overlays the transaction section of the config file
// on bank.DefaultTransferOptions. Configured variables replace the default
// ones, which lets PostgreSQL users drop the CockroachDB-only variable.
func transferTxOptions(cfg *config.ProjectConfig) (txretry.TransactionOptions, error) {
	opts := bank.DefaultTransferOptions()
	custom, err := cfg.TransactionOptions()
	if err != nil {
		return opts, err
	}
	if custom.ApplicationName != "" {
		opts.ApplicationName = custom.ApplicationName
	}
	if custom.Priority != txretry.PriorityNormal {
		opts.Priority = custom.Priority
	}
	if custom.IdleTimeout > 0 {
		opts.IdleTimeout = custom.IdleTimeout
	}
	if len(custom.Variables) > 0 {
		opts.Variables = custom.Variables
	}
	return opts, nil
}

func runBankTransfer(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	bankDefaults(cmd, rt.cfg)

	amount, err := parseAmount("amount", transferFlags.amount)
	if err != nil {
		return err
	}
	strategy, err := bank.ParseStrategy(transferFlags.strategy)
	if err != nil {
		return err
	}
	policy, err := rt.cfg.RetryPolicy(bank.TransferOperation)
	if err != nil {
		return err
	}
	txOptions, err := transferTxOptions(rt.cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := rt.connectTarget(ctx)
	if err != nil {
		return err
	}
	counters, sinks, err := rt.sinks(ctx)
	if err != nil {
		return err
	}

	opts := []bank.TransferOption{
		bank.WithStrategy(strategy),
		bank.WithRetryPolicy(policy),
		bank.WithTransactionOptions(txOptions),
		bank.WithTransferLogger(rt.logger),
		bank.WithRetryOptions(retry.WithEventSink(sinks)),
	}
	if transferFlags.redisURL != "" {
		ttl, err := rt.cfg.CacheTTL()
		if err != nil {
			return err
		}
		cache, err := bank.NewRedisResultCacheFromURL(ctx, transferFlags.redisURL, ttl)
		if err != nil {
			return err
		}
		defer cache.Close()
		opts = append(opts, bank.WithResultCache(cache))
	}

	manager := db.NewPoolTxManager(pool)
	transfers, err := bank.NewTransferService(manager, opts...)
	if err != nil {
		return err
	}
	accounts := bank.NewAccountService(manager, rt.logger)

	ids, err := pickAccounts(ctx, accounts, transferFlags.region, transferFlags.accounts)
	if err != nil {
		return err
	}

	rt.logger.Info("Submitting %d transfers over %d accounts (strategy %s, concurrency %d)",
		transferFlags.tasks, len(ids), strategy, transferFlags.concurrency)
	report, err := bank.NewWorkload(transfers, accounts, counters).Run(ctx, bank.WorkloadConfig{
		Tasks:       transferFlags.tasks,
		Concurrency: transferFlags.concurrency,
		Accounts:    ids,
		Amount:      amount,
		Currency:    transferFlags.currency,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, tui.TitleStyle.Render(fmt.Sprintf("Transfer workload on %s", pool.Config().ConnConfig.Database)))
	fmt.Fprintln(out, tui.ReportTable(report))
	fmt.Fprintln(out, tui.Conservation(report))
	if !report.Conserved() {
		return fmt.Errorf("ledger totals changed from %v to %v", report.TotalBefore, report.TotalAfter)
	}
	if report.Committed != int64(report.Succeeded) {
		return fmt.Errorf("%d transfers succeeded but %d were booked", report.Succeeded, report.Committed)
	}
	return nil
}

func pickAccounts(ctx context.Context, accounts *bank.AccountService, region string, n int) ([]uuid.UUID, error) {
	if n < 2 {
		return nil, fmt.Errorf("invalid argument for --accounts %d: need at least 2", n)
	}
	list, err := accounts.ListAccounts(ctx, region, 0, n)
	if err != nil {
		return nil, err
	}
	if len(list) < 2 {
		return nil, fmt.Errorf("region %q has %d accounts; run 'txretry bank init' first: %w",
			region, len(list), txretry.ErrInvalidConfig)
	}
	ids := make([]uuid.UUID, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids, nil
}

func runBankBalance(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	var id uuid.UUID
	if balanceFlags.account != "" {
		if id, err = uuid.Parse(balanceFlags.account); err != nil {
			return fmt.Errorf("invalid argument for --account %q: %w", balanceFlags.account, err)
		}
	}

	ctx := cmd.Context()
	pool, err := rt.connectTarget(ctx)
	if err != nil {
		return err
	}
	accounts := bank.NewAccountService(db.NewPoolTxManager(pool), rt.logger)
	out := cmd.OutOrStdout()

	if id == uuid.Nil {
		totals, err := accounts.TotalBalance(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tui.BalancesTable(totals))
		return nil
	}

	read := accounts.Balance
	if balanceFlags.snapshot {
		read = accounts.BalanceSnapshot
	}
	m, err := read(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, m.String())
	return nil
}
