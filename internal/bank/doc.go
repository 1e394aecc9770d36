// Package bank is a small double-entry ledger used to exercise the retry
// coordinators under contention.
//
// Transfers move money between accounts. Every transfer is balanced per
// currency, identified by a client supplied idempotency key, and recorded
// together with an outbox event in the same SERIALIZABLE transaction.
// Concurrent transfers touching the same accounts routinely fail with
// SQLSTATE 40001; TransferService absorbs those failures with either a
// transaction-level or a savepoint-level retry strategy.
//
// The schema is managed with goose; see Migrate.
package bank
