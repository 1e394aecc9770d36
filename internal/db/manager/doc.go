// Package manager creates and drops databases.
//
// Every statement quotes the database name with pgx.Identifier.Sanitize(),
// so names with spaces, quotes or mixed case are handled safely. The
// statements work on both CockroachDB and PostgreSQL.
//
// # Example Usage
//
//	mgr := manager.New()
//
//	// Create the ledger database on first run
//	created, err := mgr.Ensure(ctx, pool, "bank")
//
//	// Drop it again
//	err = mgr.Drop(ctx, pool, "bank")
package manager
